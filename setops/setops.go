// Package setops implements union, intersection, difference and symmetric
// difference over coverage traces with independent module numbering.
//
// Blocks are compared by canonical identity (module path, offset), never by
// module id or absolute address. Every operation returns a new trace whose
// module table is the identity-merged union of all input tables, renumbered
// 0..n-1, and whose blocks appear in first-seen order across the inputs in
// caller order.
package setops

import (
	"context"
	"fmt"
	"math"

	"github.com/redthing1/covtool/canon"
	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/trace"
)

// Result is the output trace of a set operation plus the metadata conflicts
// found while merging module tables.
type Result struct {
	Trace    *trace.Trace
	Warnings []canon.Warning
}

// Union keeps every identity present in any input. Hit counts are summed with
// saturation; a boolean input contributes 1 for each identity it contains.
// The result carries hit counts iff any input does.
func Union(traces ...*trace.Trace) (*Result, error) {
	return run(traces, func(p *plan) []row {
		rows := make([]row, 0, len(p.order))
		for _, key := range p.order {
			r := row{key: key}
			for _, idx := range p.indexes {
				if e, ok := idx.Lookup(key); ok {
					r.hits = canon.SaturatingAdd(r.hits, contribution(idx, e))
				}
			}
			rows = append(rows, r)
		}

		return rows
	}, anyHits)
}

// Intersect keeps identities present in every input. The hit count is the
// minimum over inputs; the result is boolean if any input is.
func Intersect(traces ...*trace.Trace) (*Result, error) {
	return run(traces, func(p *plan) []row {
		var rows []row
		for _, key := range p.order {
			r := row{key: key, hits: math.MaxUint32}
			inAll := true
			for _, idx := range p.indexes {
				e, ok := idx.Lookup(key)
				if !ok {
					inAll = false
					break
				}
				r.hits = min(r.hits, e.Hits)
			}
			if inAll {
				rows = append(rows, r)
			}
		}

		return rows
	}, allHits)
}

// Difference keeps identities of a absent from every other input, with a's
// hit counts.
func Difference(a *trace.Trace, others ...*trace.Trace) (*Result, error) {
	if a == nil {
		return nil, errs.ErrNoInputs
	}

	traces := append([]*trace.Trace{a}, others...)

	return run(traces, func(p *plan) []row {
		var rows []row
		first := p.indexes[0]
		for _, key := range first.Keys() {
			absent := true
			for _, idx := range p.indexes[1:] {
				if idx.Contains(key) {
					absent = false
					break
				}
			}
			if absent {
				e, _ := first.Lookup(key)
				rows = append(rows, row{key: key, hits: e.Hits})
			}
		}

		return rows
	}, firstHits)
}

// SymmetricDifference keeps identities present in exactly one of a and b.
// Each keeps the count of the input that contains it, or 1 when that input is
// boolean and the other carries hit counts.
func SymmetricDifference(a, b *trace.Trace) (*Result, error) {
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: symmetric difference needs two traces", errs.ErrNoInputs)
	}

	return run([]*trace.Trace{a, b}, func(p *plan) []row {
		var rows []row
		for _, key := range p.order {
			ea, inA := p.indexes[0].Lookup(key)
			eb, inB := p.indexes[1].Lookup(key)
			switch {
			case inA && !inB:
				rows = append(rows, row{key: key, hits: contribution(p.indexes[0], ea)})
			case inB && !inA:
				rows = append(rows, row{key: key, hits: contribution(p.indexes[1], eb)})
			}
		}

		return rows
	}, anyHits)
}

// Apply dispatches op over traces. For OpDifference the first trace is the
// minuend; OpSymmetricDifference needs exactly two traces.
func Apply(op format.SetOp, traces ...*trace.Trace) (*Result, error) {
	if len(traces) == 0 {
		return nil, errs.ErrNoInputs
	}

	switch op {
	case format.OpUnion:
		return Union(traces...)
	case format.OpIntersect:
		return Intersect(traces...)
	case format.OpDifference:
		return Difference(traces[0], traces[1:]...)
	case format.OpSymmetricDifference:
		if len(traces) != 2 {
			return nil, fmt.Errorf("symmetric difference needs exactly 2 traces, got %d", len(traces))
		}

		return SymmetricDifference(traces[0], traces[1])
	default:
		return nil, fmt.Errorf("unknown set operation %s", op)
	}
}

// contribution is an entry's hit count as seen by a hit-carrying result.
func contribution(idx *canon.Index, e canon.Entry) uint32 {
	if !idx.HasHits() {
		return 1
	}

	return e.Hits
}

func anyHits(indexes []*canon.Index) bool {
	for _, idx := range indexes {
		if idx.HasHits() {
			return true
		}
	}

	return false
}

func allHits(indexes []*canon.Index) bool {
	for _, idx := range indexes {
		if !idx.HasHits() {
			return false
		}
	}

	return true
}

func firstHits(indexes []*canon.Index) bool {
	return indexes[0].HasHits()
}

// row is one identity selected for the result.
type row struct {
	key  canon.BlockKey
	hits uint32
}

// plan holds the canonicalized inputs of one operation.
type plan struct {
	indexes []*canon.Index
	order   []canon.BlockKey // first-seen order across inputs
}

func run(traces []*trace.Trace, selectRows func(*plan) []row, withHits func([]*canon.Index) bool) (*Result, error) {
	if len(traces) == 0 {
		return nil, errs.ErrNoInputs
	}
	for i, t := range traces {
		if t == nil {
			return nil, fmt.Errorf("%w: trace %d is nil", errs.ErrNoInputs, i)
		}
	}

	indexes, err := canon.BuildAll(context.Background(), traces)
	if err != nil {
		return nil, err
	}

	merged, err := canon.MergeModules(indexes)
	if err != nil {
		return nil, err
	}

	p := &plan{indexes: indexes}
	seen := make(map[canon.BlockKey]struct{})
	for _, idx := range indexes {
		for _, key := range idx.Keys() {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				p.order = append(p.order, key)
			}
		}
	}

	rows := selectRows(p)
	hasHits := withHits(indexes)

	blocks := make([]trace.BasicBlock, 0, len(rows))
	var hits []uint32
	if hasHits {
		hits = make([]uint32, 0, len(rows))
	}
	for _, r := range rows {
		blocks = append(blocks, trace.BasicBlock{
			ModuleID: merged.IDs[r.key.Module],
			Offset:   r.key.Offset,
			Size:     sizeOf(indexes, r.key),
		})
		if hasHits {
			hits = append(hits, r.hits)
		}
	}

	header := traces[0].Header()
	header.Version = 2
	if hasHits {
		header.Flavor = trace.HitsFlavor(header.Flavor)
	} else {
		header.Flavor = trace.PlainFlavor(header.Flavor)
	}

	out, err := trace.New(trace.Parts{
		Header:    header,
		Layout:    trace.Layout{ModuleTable: format.ModuleTableV2, Blocks: format.BlockEncodingBinary},
		Modules:   merged.Modules,
		Blocks:    blocks,
		HitCounts: hits,
	})
	if err != nil {
		return nil, err
	}

	warnings := merged.Warnings
	for _, idx := range indexes {
		warnings = append(warnings, idx.Warnings()...)
	}

	return &Result{Trace: out, Warnings: warnings}, nil
}

// sizeOf takes the block size from the first input containing key.
func sizeOf(indexes []*canon.Index, key canon.BlockKey) uint16 {
	for _, idx := range indexes {
		if e, ok := idx.Lookup(key); ok {
			return e.Size
		}
	}

	return 1
}
