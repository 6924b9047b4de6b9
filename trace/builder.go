package trace

import (
	"fmt"
	"math"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
)

// Builder assembles a Trace incrementally. Methods chain; the first error is
// kept and returned by Build.
//
// Example:
//
//	t, err := trace.NewBuilder().
//	    SetFlavor("my_tool").
//	    AddModule("/bin/prog", 0x400000, 0x500000).
//	    AddBlock(0, 0x1000, 32).
//	    Build()
type Builder struct {
	header  Header
	modules []Module
	blocks  []BasicBlock
	hits    []uint32
	err     error
}

// NewBuilder creates a builder for a version 2 trace with the standard flavor.
func NewBuilder() *Builder {
	return &Builder{
		header: Header{Version: 2, Flavor: FlavorStandard},
	}
}

// SetFlavor sets the header flavor.
func (b *Builder) SetFlavor(flavor string) *Builder {
	b.header.Flavor = flavor
	return b
}

// AddModule appends a module with the next sequential id.
func (b *Builder) AddModule(path string, base, end uint64) *Builder {
	return b.AddModuleEntry(Module{Base: base, End: end, Path: path, ContainingID: NoContainingID})
}

// AddModuleEntry appends a fully specified module. Its ID is replaced by the
// next sequential id.
func (b *Builder) AddModuleEntry(m Module) *Builder {
	if b.err != nil {
		return b
	}
	if len(b.modules) > math.MaxUint16 {
		b.err = fmt.Errorf("%w: more than %d modules", errs.ErrTooManyModules, math.MaxUint16+1)
		return b
	}

	m.ID = uint16(len(b.modules)) //nolint: gosec
	b.modules = append(b.modules, m)

	return b
}

// AddBlock appends a block without a hit count. If hit counts are already
// enabled the block gets a count of 1.
func (b *Builder) AddBlock(moduleID uint16, offset uint32, size uint16) *Builder {
	b.blocks = append(b.blocks, BasicBlock{ModuleID: moduleID, Offset: offset, Size: size})
	if b.hits != nil {
		b.hits = append(b.hits, 1)
	}

	return b
}

// AddBlockWithHits appends a block with a hit count, enabling hit counts for
// the whole trace. Blocks added earlier default to 1.
func (b *Builder) AddBlockWithHits(moduleID uint16, offset uint32, size uint16, hits uint32) *Builder {
	b.EnableHitCounts()
	b.blocks = append(b.blocks, BasicBlock{ModuleID: moduleID, Offset: offset, Size: size})
	b.hits = append(b.hits, hits)

	return b
}

// EnableHitCounts turns on hit counts, defaulting every existing block to 1.
func (b *Builder) EnableHitCounts() *Builder {
	if b.hits != nil {
		return b
	}

	b.hits = make([]uint32, len(b.blocks))
	for i := range b.hits {
		b.hits[i] = 1
	}

	return b
}

// SetHitCounts replaces all hit counts. The length is validated by Build.
func (b *Builder) SetHitCounts(hits []uint32) *Builder {
	b.hits = append([]uint32{}, hits...)
	return b
}

// ClearBlocks drops all blocks and hit counts, keeping the module table.
func (b *Builder) ClearBlocks() *Builder {
	b.blocks = b.blocks[:0]
	b.hits = nil

	return b
}

// Build validates and returns the trace.
func (b *Builder) Build() (*Trace, error) {
	if b.err != nil {
		return nil, b.err
	}

	header := b.header
	if b.hits != nil {
		header.Flavor = HitsFlavor(header.Flavor)
	}

	return New(Parts{
		Header:    header,
		Layout:    Layout{ModuleTable: format.ModuleTableV2, Blocks: format.BlockEncodingBinary},
		Modules:   b.modules,
		Blocks:    b.blocks,
		HitCounts: b.hits,
	})
}
