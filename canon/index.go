package canon

import (
	"fmt"
	"math"

	"github.com/redthing1/covtool/internal/collision"
	"github.com/redthing1/covtool/internal/hash"
	"github.com/redthing1/covtool/trace"
)

// ModuleKey is the hashed identity of a module path.
type ModuleKey uint64

// pathKey is swapped out by tests that need colliding keys.
var pathKey = hash.PathKey

// KeyOf returns the identity key for path.
func KeyOf(path string) ModuleKey {
	return ModuleKey(pathKey(path))
}

// BlockKey is the cross-trace identity of a block.
type BlockKey struct {
	Module ModuleKey
	Offset uint32
}

// Entry aggregates every occurrence of one block identity in a trace.
type Entry struct {
	Size uint16 // size of the first occurrence
	// Hits is the saturating sum of hit counts, or 1 for boolean coverage.
	Hits       uint32
	First      int // position of the first occurrence in the block sequence
	Duplicates int // occurrences after the first
}

// ModuleInfo is the merged metadata for one module identity in a trace.
type ModuleInfo struct {
	Key ModuleKey
	// Module is the first table entry with this path. End is widened to the
	// furthest end among all modules sharing the path.
	Module trace.Module
}

// Warning reports metadata that was dropped while canonicalizing.
type Warning struct {
	Path    string
	Field   string
	Kept    string
	Ignored string
}

func (w Warning) String() string {
	return fmt.Sprintf("%s: conflicting %s, kept %s, ignored %s", w.Path, w.Field, w.Kept, w.Ignored)
}

// Index maps block identities to their aggregated entries for one trace.
type Index struct {
	entries  map[BlockKey]Entry
	order    []BlockKey
	modules  []ModuleInfo
	byModule map[ModuleKey]int
	hasHits  bool
	warnings []Warning
}

// Build canonicalizes t.
//
// Returns:
//   - *Index: the identity index
//   - error: ErrHashCollision if two paths in t share a key
func Build(t *trace.Trace) (*Index, error) {
	idx := &Index{
		entries:  make(map[BlockKey]Entry, t.NumBlocks()),
		order:    make([]BlockKey, 0, t.NumBlocks()),
		byModule: make(map[ModuleKey]int),
		hasHits:  t.HasHitCounts(),
	}

	type primary struct {
		key  ModuleKey
		base uint64
	}
	byID := make(map[uint16]primary, t.NumModules())
	tracker := collision.NewTracker()

	for _, m := range t.Modules() {
		key := KeyOf(m.Path)
		if _, err := tracker.Track(m.Path, uint64(key)); err != nil {
			return nil, err
		}

		i, seen := idx.byModule[key]
		if !seen {
			i = len(idx.modules)
			idx.byModule[key] = i
			idx.modules = append(idx.modules, ModuleInfo{Key: key, Module: m})
		} else if m.End > idx.modules[i].Module.End {
			idx.modules[i].Module.End = m.End
		}
		byID[m.ID] = primary{key: key, base: idx.modules[i].Module.Base}
	}

	for i, b := range t.Blocks() {
		m, _ := t.Module(b.ModuleID)
		p := byID[b.ModuleID]

		offset, ok := rebase(m.Base, b.Offset, p.base)
		if !ok {
			idx.warnings = append(idx.warnings, Warning{
				Path:    m.Path,
				Field:   "offset",
				Kept:    fmt.Sprintf("0x%x", b.Offset),
				Ignored: fmt.Sprintf("segment base 0x%x", m.Base),
			})
		}

		key := BlockKey{Module: p.key, Offset: offset}
		hits := uint32(1)
		if idx.hasHits {
			hits = t.HitCount(i)
		}

		e, dup := idx.entries[key]
		if !dup {
			idx.entries[key] = Entry{Size: b.Size, Hits: hits, First: i}
			idx.order = append(idx.order, key)

			continue
		}

		e.Duplicates++
		if idx.hasHits {
			e.Hits = SaturatingAdd(e.Hits, hits)
		}
		idx.entries[key] = e
	}

	return idx, nil
}

// rebase moves an offset relative to segBase onto primaryBase. When the
// result does not fit in 32 bits the raw offset is kept.
func rebase(segBase uint64, offset uint32, primaryBase uint64) (uint32, bool) {
	if segBase == primaryBase {
		return offset, true
	}

	addr := segBase + uint64(offset)
	if addr < primaryBase || addr-primaryBase > math.MaxUint32 {
		return offset, false
	}

	return uint32(addr - primaryBase), true
}

// SaturatingAdd adds two hit counts, clamping at math.MaxUint32.
func SaturatingAdd(a, b uint32) uint32 {
	if a > math.MaxUint32-b {
		return math.MaxUint32
	}

	return a + b
}

// Len returns the number of distinct block identities.
func (idx *Index) Len() int {
	return len(idx.order)
}

// HasHits reports whether the source trace carried hit counts.
func (idx *Index) HasHits() bool {
	return idx.hasHits
}

// Lookup returns the entry for key.
func (idx *Index) Lookup(key BlockKey) (Entry, bool) {
	e, ok := idx.entries[key]
	return e, ok
}

// Contains reports whether key occurs in the trace.
func (idx *Index) Contains(key BlockKey) bool {
	_, ok := idx.entries[key]
	return ok
}

// Keys returns the block identities in first-seen order.
func (idx *Index) Keys() []BlockKey {
	out := make([]BlockKey, len(idx.order))
	copy(out, idx.order)

	return out
}

// Modules returns the per-identity module metadata in table order.
func (idx *Index) Modules() []ModuleInfo {
	out := make([]ModuleInfo, len(idx.modules))
	copy(out, idx.modules)

	return out
}

// Module returns the metadata for a module identity.
func (idx *Index) Module(key ModuleKey) (ModuleInfo, bool) {
	i, ok := idx.byModule[key]
	if !ok {
		return ModuleInfo{}, false
	}

	return idx.modules[i], true
}

// Warnings returns the canonicalization warnings for this trace.
func (idx *Index) Warnings() []Warning {
	return idx.warnings
}
