// Package covtool reads, writes and combines DrCov coverage traces.
//
// A trace is a module table plus the basic blocks executed inside those
// modules, optionally with a per-block hit count. Traces from different runs
// can be combined even when module numbering and load addresses differ:
// blocks are identified by module path and offset, not by module id.
//
// # Basic Usage
//
// Loading, combining and storing traces:
//
//	import "github.com/redthing1/covtool"
//
//	a, _ := covtool.LoadFile("run1.drcov")
//	b, _ := covtool.LoadFile("run2.drcov")
//
//	res, _ := covtool.Union(a, b)
//	for _, w := range res.Warnings {
//	    log.Println(w)
//	}
//	_ = covtool.StoreFile("merged.drcov", res.Trace)
//
// Lifting a plain address log:
//
//	mods, _ := lift.ParseModuleDefs([]string{"boombox@0x140000000"})
//	res, _ := covtool.Lift(f, mods)
//
// # Package Structure
//
// This package wraps the most common entry points. The drcov, setops, edit,
// lift and analysis packages expose the full feature set.
package covtool

import (
	"io"

	"github.com/redthing1/covtool/drcov"
	"github.com/redthing1/covtool/lift"
	"github.com/redthing1/covtool/setops"
	"github.com/redthing1/covtool/trace"
)

// Load decodes a trace from r. Compressed input is detected automatically.
//
// Available options:
//   - drcov.WithCompression(format.CompressionNone|Zstd|S2|LZ4)
//   - drcov.WithInclusiveEnd()
func Load(r io.Reader, opts ...drcov.Option) (*trace.Trace, error) {
	return drcov.Read(r, opts...)
}

// LoadFile decodes the trace stored at path.
func LoadFile(path string, opts ...drcov.Option) (*trace.Trace, error) {
	return drcov.ReadFile(path, opts...)
}

// Store encodes t to w.
//
// Available options:
//   - drcov.WithCompression(format.CompressionNone|Zstd|S2|LZ4)
//   - drcov.WithInclusiveEnd()
//   - drcov.WithFlavor(string)
func Store(w io.Writer, t *trace.Trace, opts ...drcov.Option) error {
	return drcov.Write(w, t, opts...)
}

// StoreFile atomically replaces path with the encoded trace. A .zst, .s2 or
// .lz4 extension selects compression unless an option overrides it.
//
// Example:
//
//	if err := covtool.StoreFile("out.drcov.zst", t); err != nil {
//	    log.Fatal(err)
//	}
func StoreFile(path string, t *trace.Trace, opts ...drcov.Option) error {
	return drcov.WriteFile(path, t, opts...)
}

// Union returns every block present in any trace, hit counts summed.
func Union(traces ...*trace.Trace) (*setops.Result, error) {
	return setops.Union(traces...)
}

// Intersect returns the blocks present in every trace.
func Intersect(traces ...*trace.Trace) (*setops.Result, error) {
	return setops.Intersect(traces...)
}

// Difference returns the blocks of a that no other trace contains.
func Difference(a *trace.Trace, others ...*trace.Trace) (*setops.Result, error) {
	return setops.Difference(a, others...)
}

// SymmetricDifference returns the blocks present in exactly one of a and b.
func SymmetricDifference(a, b *trace.Trace) (*setops.Result, error) {
	return setops.SymmetricDifference(a, b)
}

// Lift converts a line-oriented address log into a trace. Lines that cannot
// be lifted are reported in the result's diagnostics.
func Lift(r io.Reader, mods []lift.ModuleDef, opts ...lift.Option) (*lift.Result, error) {
	return lift.Lift(r, mods, opts...)
}
