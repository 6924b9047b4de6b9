package canon

import (
	"context"
	"fmt"
	"math"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/internal/collision"
	"github.com/redthing1/covtool/trace"
)

// MaxModules is the largest merged module table 16-bit ids can address.
const MaxModules = math.MaxUint16 + 1

// BuildAll canonicalizes traces concurrently, bounded by GOMAXPROCS. The
// result is in input order.
func BuildAll(ctx context.Context, traces []*trace.Trace) ([]*Index, error) {
	out := make([]*Index, len(traces))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, t := range traces {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}

			idx, err := Build(t)
			if err != nil {
				return fmt.Errorf("trace %d: %w", i, err)
			}
			out[i] = idx

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return out, nil
}

// Merged is the identity-merged module table of several traces.
type Merged struct {
	// Modules carries fresh contiguous ids 0..n-1 in first-seen order.
	Modules  []trace.Module
	IDs      map[ModuleKey]uint16
	Warnings []Warning
}

// MergeModules merges the module tables of indexes in caller order. When two
// traces disagree on a module's metadata the first value is kept and a
// Warning records the ignored one.
//
// Returns:
//   - *Merged: the merged table
//   - error: ErrHashCollision, or ErrTooManyModules past MaxModules identities
func MergeModules(indexes []*Index) (*Merged, error) {
	merged := &Merged{IDs: make(map[ModuleKey]uint16)}
	tracker := collision.NewTracker()

	for _, idx := range indexes {
		for _, info := range idx.modules {
			if _, err := tracker.Track(info.Module.Path, uint64(info.Key)); err != nil {
				return nil, err
			}

			id, seen := merged.IDs[info.Key]
			if seen {
				merged.Warnings = append(merged.Warnings, conflicts(merged.Modules[id], info.Module)...)
				continue
			}

			if len(merged.Modules) >= MaxModules {
				return nil, fmt.Errorf("%w: more than %d distinct module paths", errs.ErrTooManyModules, MaxModules)
			}

			m := info.Module
			m.ID = uint16(len(merged.Modules)) //nolint: gosec
			m.ContainingID = trace.NoContainingID
			merged.IDs[info.Key] = m.ID
			merged.Modules = append(merged.Modules, m)
		}
	}

	return merged, nil
}

func conflicts(kept, other trace.Module) []Warning {
	var out []Warning
	check := func(field string, a, b uint64, width int) {
		if a != b {
			out = append(out, Warning{
				Path:    kept.Path,
				Field:   field,
				Kept:    fmt.Sprintf("0x%0*x", width, a),
				Ignored: fmt.Sprintf("0x%0*x", width, b),
			})
		}
	}

	check("base", kept.Base, other.Base, 16)
	check("end", kept.End, other.End, 16)
	check("entry", kept.Entry, other.Entry, 16)
	check("offset", kept.Offset, other.Offset, 16)
	check("checksum", uint64(kept.Checksum), uint64(other.Checksum), 8)
	check("timestamp", uint64(kept.Timestamp), uint64(other.Timestamp), 8)

	return out
}
