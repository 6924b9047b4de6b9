// Package trace holds the canonical in-memory model of a coverage trace:
// a module table, an ordered sequence of basic blocks, and optional
// per-block hit counts.
//
// A Trace is immutable once constructed. Every transforming operation in
// covtool (set algebra, rebasing, offset adjustment, filtering) returns a new
// Trace; no Trace shares its module or block slices with another.
//
// # Construction
//
// Traces are built either by the drcov codec, by the lifter, or directly:
//
//	t, err := trace.New(trace.Parts{
//	    Header:  trace.Header{Version: 2, Flavor: "drcov"},
//	    Modules: []trace.Module{{ID: 0, Base: 0x400000, End: 0x402000, Path: "/a", ContainingID: trace.NoContainingID}},
//	    Blocks:  []trace.BasicBlock{{ModuleID: 0, Offset: 0x1100, Size: 10}},
//	})
//
// New rejects inputs that break a model invariant with errs.ErrMalformedTrace
// instead of silently dropping data:
//   - module ids are unique
//   - every module satisfies Base <= End
//   - every block references an existing module
//   - hit counts, when present, cover every block exactly once
//
// # Hit counts
//
// Hit counts are all-or-nothing. A trace without them is boolean coverage:
// every recorded block counts as hit at least once, and HitCount reports 1.
package trace
