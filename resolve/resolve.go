// Package resolve maps absolute addresses to (module, offset) pairs and back.
package resolve

import (
	"fmt"
	"math"
	"sort"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/trace"
)

// Resolution is the module an address falls into.
type Resolution struct {
	ModuleID uint16
	Offset   uint64
	// Ambiguous is set when unlinked modules overlap at the address. The
	// first module in sorted order wins; Candidates lists every module that
	// contains the address, winner first.
	Ambiguous  bool
	Candidates []uint16
}

// Resolver is an interval index over one module table. It is immutable and
// safe for concurrent use.
type Resolver struct {
	sorted []trace.Module // stable-sorted by Base
	maxEnd []uint64       // maxEnd[i] is the largest End in sorted[:i+1]
	byID   map[uint16]int // module id → index into sorted
}

// New builds the index. Modules with equal bases keep their table order.
func New(modules []trace.Module) *Resolver {
	r := &Resolver{
		sorted: make([]trace.Module, len(modules)),
		maxEnd: make([]uint64, len(modules)),
		byID:   make(map[uint16]int, len(modules)),
	}
	copy(r.sorted, modules)
	sort.SliceStable(r.sorted, func(i, k int) bool { return r.sorted[i].Base < r.sorted[k].Base })

	var running uint64
	for i, m := range r.sorted {
		running = max(running, m.End)
		r.maxEnd[i] = running
		if _, dup := r.byID[m.ID]; !dup {
			r.byID[m.ID] = i
		}
	}

	return r
}

// Len returns the number of indexed modules.
func (r *Resolver) Len() int {
	return len(r.sorted)
}

// Resolve finds the module whose [Base, End) contains addr.
func (r *Resolver) Resolve(addr uint64) (Resolution, bool) {
	// first module starting above addr; every candidate lies before it
	k := sort.Search(len(r.sorted), func(k int) bool {
		return r.sorted[k].Base > addr
	})

	var hits []int
	for i := k - 1; i >= 0 && r.maxEnd[i] > addr; i-- {
		if r.sorted[i].Contains(addr) {
			hits = append(hits, i)
		}
	}
	if len(hits) == 0 {
		return Resolution{}, false
	}

	// hits were collected backwards; the winner is the lowest index
	winner := r.sorted[hits[len(hits)-1]]
	res := Resolution{ModuleID: winner.ID, Offset: addr - winner.Base}
	if len(hits) == 1 {
		return res, true
	}

	res.Candidates = make([]uint16, 0, len(hits))
	for i := len(hits) - 1; i >= 0; i-- {
		other := r.sorted[hits[i]]
		res.Candidates = append(res.Candidates, other.ID)
		if other.ID != winner.ID && !winner.Linked(other) {
			res.Ambiguous = true
		}
	}
	if !res.Ambiguous {
		res.Candidates = nil
	}

	return res, true
}

// Unresolve computes base + offset for module id. The offset is not checked
// against the module's end, since lifted modules may have no known size.
//
// Returns:
//   - uint64: the absolute address
//   - error: ErrModuleNotFound for an unknown id, ErrAddressOverflow on wrap-around
func (r *Resolver) Unresolve(id uint16, offset uint64) (uint64, error) {
	i, ok := r.byID[id]
	if !ok {
		return 0, fmt.Errorf("%w: id %d", errs.ErrModuleNotFound, id)
	}

	base := r.sorted[i].Base
	if offset > math.MaxUint64-base {
		return 0, fmt.Errorf("%w: module %d base 0x%x + offset 0x%x", errs.ErrAddressOverflow, id, base, offset)
	}

	return base + offset, nil
}

// Overlaps lists every pair of modules whose ranges intersect without
// containing_id linkage, in sorted order.
func (r *Resolver) Overlaps() []trace.Overlap {
	var out []trace.Overlap
	for i := range r.sorted {
		a := r.sorted[i]
		for k := i + 1; k < len(r.sorted) && r.sorted[k].Base < a.End; k++ {
			b := r.sorted[k]
			if b.Overlaps(a) && !a.Linked(b) {
				out = append(out, trace.Overlap{First: a.ID, Second: b.ID})
			}
		}
	}

	return out
}
