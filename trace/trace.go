package trace

import (
	"fmt"
	"iter"
	"slices"
	"sort"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
)

// Default flavor strings.
const (
	FlavorStandard = "drcov"
	HitsSuffix     = "-hits"
)

// Header is the two-line DrCov file header.
type Header struct {
	Version int
	Flavor  string
}

// Layout records which on-disk variant a trace was read from.
// It is informational; writers always emit the canonical modern layout.
type Layout struct {
	ModuleTable  format.ModuleTableVersion
	Columns      []string
	EndInclusive bool
	Blocks       format.BlockEncoding
}

// Parts are the raw pieces a Trace is assembled from.
type Parts struct {
	Header  Header
	Layout  Layout
	Modules []Module
	Blocks  []BasicBlock
	// HitCounts is nil for boolean coverage, otherwise one count per block.
	HitCounts []uint32
}

// Trace is an immutable coverage trace.
type Trace struct {
	header  Header
	layout  Layout
	modules []Module
	blocks  []BasicBlock
	hits    []uint32
	byID    map[uint16]int // module id → index into modules
}

// New validates parts and builds a Trace that owns copies of the slices.
//
// Returns:
//   - *Trace: the constructed trace
//   - error: ErrMalformedTrace wrapped with the first violated invariant
func New(parts Parts) (*Trace, error) {
	t := &Trace{
		header:  parts.Header,
		layout:  parts.Layout,
		modules: slices.Clone(parts.Modules),
		blocks:  slices.Clone(parts.Blocks),
		byID:    make(map[uint16]int, len(parts.Modules)),
	}
	t.layout.Columns = slices.Clone(parts.Layout.Columns)
	if parts.HitCounts != nil {
		t.hits = slices.Clone(parts.HitCounts)
	}

	for i, m := range t.modules {
		if _, dup := t.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate module id %d", errs.ErrMalformedTrace, m.ID)
		}
		if m.End < m.Base {
			return nil, fmt.Errorf("%w: module %d end 0x%x below base 0x%x", errs.ErrMalformedTrace, m.ID, m.End, m.Base)
		}
		t.byID[m.ID] = i
	}

	for i, b := range t.blocks {
		if _, ok := t.byID[b.ModuleID]; !ok {
			return nil, fmt.Errorf("%w: block %d references unknown module %d", errs.ErrMalformedTrace, i, b.ModuleID)
		}
	}

	if t.hits != nil && len(t.hits) != len(t.blocks) {
		return nil, fmt.Errorf("%w: %d hit counts for %d blocks", errs.ErrMalformedTrace, len(t.hits), len(t.blocks))
	}

	return t, nil
}

// Empty returns a trace with no modules and no blocks.
func Empty() *Trace {
	return &Trace{
		header: Header{Version: 2, Flavor: FlavorStandard},
		byID:   map[uint16]int{},
	}
}

// Header returns the file header.
func (t *Trace) Header() Header {
	return t.header
}

// Layout returns the on-disk layout the trace was read from.
func (t *Trace) Layout() Layout {
	l := t.layout
	l.Columns = slices.Clone(l.Columns)

	return l
}

// NumModules returns the size of the module table.
func (t *Trace) NumModules() int {
	return len(t.modules)
}

// NumBlocks returns the number of recorded blocks, duplicates included.
func (t *Trace) NumBlocks() int {
	return len(t.blocks)
}

// HasHitCounts reports whether the trace carries a hit count per block.
func (t *Trace) HasHitCounts() bool {
	return t.hits != nil
}

// Module looks up a module by id in O(1).
func (t *Trace) Module(id uint16) (Module, bool) {
	i, ok := t.byID[id]
	if !ok {
		return Module{}, false
	}

	return t.modules[i], true
}

// ModuleAt returns the i-th module in table order.
func (t *Trace) ModuleAt(i int) Module {
	return t.modules[i]
}

// Block returns the i-th block in file order.
func (t *Trace) Block(i int) BasicBlock {
	return t.blocks[i]
}

// HitCount returns the hit count of the i-th block, or 1 for boolean coverage.
func (t *Trace) HitCount(i int) uint32 {
	if t.hits == nil {
		return 1
	}

	return t.hits[i]
}

// Modules iterates over the module table in table order.
func (t *Trace) Modules() iter.Seq2[int, Module] {
	return func(yield func(int, Module) bool) {
		for i, m := range t.modules {
			if !yield(i, m) {
				return
			}
		}
	}
}

// Blocks iterates over the blocks in file order.
func (t *Trace) Blocks() iter.Seq2[int, BasicBlock] {
	return func(yield func(int, BasicBlock) bool) {
		for i, b := range t.blocks {
			if !yield(i, b) {
				return
			}
		}
	}
}

// ModuleSlice returns a copy of the module table.
func (t *Trace) ModuleSlice() []Module {
	return slices.Clone(t.modules)
}

// BlockSlice returns a copy of the block sequence.
func (t *Trace) BlockSlice() []BasicBlock {
	return slices.Clone(t.blocks)
}

// HitCounts returns a copy of the hit counts, nil for boolean coverage.
func (t *Trace) HitCounts() []uint32 {
	if t.hits == nil {
		return nil
	}

	return slices.Clone(t.hits)
}

// TotalHits sums the hit counts; for boolean coverage it equals NumBlocks.
func (t *Trace) TotalHits() uint64 {
	if t.hits == nil {
		return uint64(len(t.blocks))
	}

	var sum uint64
	for _, h := range t.hits {
		sum += uint64(h)
	}

	return sum
}

// AbsoluteAddress returns the absolute address of the i-th block.
func (t *Trace) AbsoluteAddress(i int) uint64 {
	b := t.blocks[i]
	m := t.modules[t.byID[b.ModuleID]]

	return m.Base + uint64(b.Offset)
}

// Overlaps reports every pair of modules whose ranges intersect without
// containing_id linkage. Overlap is a consistency warning, not an error.
func (t *Trace) Overlaps() []Overlap {
	sorted := slices.Clone(t.modules)
	sort.SliceStable(sorted, func(i, k int) bool { return sorted[i].Base < sorted[k].Base })

	var out []Overlap
	for i := range sorted {
		for k := i + 1; k < len(sorted) && sorted[k].Base < sorted[i].End; k++ {
			if !sorted[i].Overlaps(sorted[k]) || sorted[i].Linked(sorted[k]) {
				continue
			}
			out = append(out, Overlap{First: sorted[i].ID, Second: sorted[k].ID})
		}
	}

	return out
}

// Filter returns a new trace restricted to the modules keep selects and the
// blocks that reference them. Hit counts follow their blocks.
func (t *Trace) Filter(keep func(Module) bool) *Trace {
	out := &Trace{
		header: t.header,
		layout: t.Layout(),
		byID:   make(map[uint16]int),
	}

	for _, m := range t.modules {
		if keep(m) {
			out.byID[m.ID] = len(out.modules)
			out.modules = append(out.modules, m)
		}
	}

	if t.hits != nil {
		out.hits = make([]uint32, 0)
	}
	for i, b := range t.blocks {
		if _, ok := out.byID[b.ModuleID]; !ok {
			continue
		}
		out.blocks = append(out.blocks, b)
		if t.hits != nil {
			out.hits = append(out.hits, t.hits[i])
		}
	}

	return out
}
