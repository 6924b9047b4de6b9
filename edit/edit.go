// Package edit rewrites module addresses and block offsets of a trace.
//
// Both operations select modules by path, the same identity the set algebra
// uses, and return a new trace; the input is never modified.
package edit

import (
	"fmt"
	"math"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/internal/options"
	"github.com/redthing1/covtool/trace"
)

// Rebase moves every module whose path equals path so that the first such
// module starts at newBase. All of them shift by the same delta, keeping
// segment layout intact; block offsets are unchanged.
//
// Returns:
//   - *trace.Trace: the rebased trace
//   - error: ErrModuleNotFound for an unknown path, ErrAddressOverflow if a
//     shifted range wraps around
func Rebase(t *trace.Trace, path string, newBase uint64) (*trace.Trace, error) {
	modules := t.ModuleSlice()

	first := -1
	for i, m := range modules {
		if m.Path == path {
			first = i
			break
		}
	}
	if first < 0 {
		return nil, fmt.Errorf("%w: %q", errs.ErrModuleNotFound, path)
	}

	oldBase := modules[first].Base
	for i, m := range modules {
		if m.Path != path {
			continue
		}

		base, ok := shift(m.Base, oldBase, newBase)
		if !ok {
			return nil, fmt.Errorf("%w: module %d base 0x%x", errs.ErrAddressOverflow, m.ID, m.Base)
		}
		end, ok := shift(m.End, oldBase, newBase)
		if !ok {
			return nil, fmt.Errorf("%w: module %d end 0x%x", errs.ErrAddressOverflow, m.ID, m.End)
		}
		modules[i].Base, modules[i].End = base, end
	}

	return rebuild(t, modules, t.BlockSlice(), t.HitCounts())
}

// shift applies addr + (newBase - oldBase) with wrap-around detection.
func shift(addr, oldBase, newBase uint64) (uint64, bool) {
	if newBase >= oldBase {
		d := newBase - oldBase
		if addr > math.MaxUint64-d {
			return 0, false
		}

		return addr + d, true
	}

	d := oldBase - newBase
	if addr < d {
		return 0, false
	}

	return addr - d, true
}

// Policy decides what happens to a block whose adjusted offset is out of range.
type Policy uint8

const (
	// PolicyAbort fails the whole edit with ErrOffsetOutOfRange.
	PolicyAbort Policy = iota
	// PolicyDrop removes offending blocks.
	PolicyDrop
	// PolicyClamp pins offending offsets to the nearest valid value.
	PolicyClamp
)

func (p Policy) String() string {
	switch p {
	case PolicyAbort:
		return "abort"
	case PolicyDrop:
		return "drop"
	case PolicyClamp:
		return "clamp"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a policy name to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "abort", "":
		return PolicyAbort, nil
	case "drop":
		return PolicyDrop, nil
	case "clamp":
		return PolicyClamp, nil
	default:
		return 0, fmt.Errorf("unknown out-of-range policy %q", s)
	}
}

// AdjustConfig holds AdjustOffsets settings.
type AdjustConfig struct {
	policy Policy
}

// AdjustOption configures AdjustOffsets.
type AdjustOption = options.Option[*AdjustConfig]

// WithPolicy selects the out-of-range policy. The default is PolicyAbort.
func WithPolicy(p Policy) AdjustOption {
	return options.New(func(c *AdjustConfig) error {
		if p > PolicyClamp {
			return fmt.Errorf("invalid policy %d", p)
		}
		c.policy = p

		return nil
	})
}

// Report lists the block positions, in the input trace, whose adjusted
// offset fell out of range.
type Report struct {
	Flagged []int
}

// AdjustOffsets adds delta to the offset of every block in modules whose path
// equals path. A result is out of range when it is negative, at or past the
// module size (when the size is known), or larger than 32 bits.
//
// Returns:
//   - *trace.Trace: the adjusted trace (nil when aborted)
//   - Report: flagged block positions
//   - error: ErrModuleNotFound, or ErrOffsetOutOfRange under PolicyAbort
func AdjustOffsets(t *trace.Trace, path string, delta int64, opts ...AdjustOption) (*trace.Trace, Report, error) {
	cfg := &AdjustConfig{policy: PolicyAbort}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, Report{}, err
	}

	selected := make(map[uint16]trace.Module)
	for _, m := range t.Modules() {
		if m.Path == path {
			selected[m.ID] = m
		}
	}
	if len(selected) == 0 {
		return nil, Report{}, fmt.Errorf("%w: %q", errs.ErrModuleNotFound, path)
	}

	var (
		report Report
		blocks = make([]trace.BasicBlock, 0, t.NumBlocks())
		hits   []uint32
	)
	if t.HasHitCounts() {
		hits = make([]uint32, 0, t.NumBlocks())
	}

	for i, b := range t.Blocks() {
		m, ok := selected[b.ModuleID]
		if ok {
			offset, inRange := adjust(b.Offset, delta, m)
			if !inRange {
				report.Flagged = append(report.Flagged, i)
				switch cfg.policy {
				case PolicyAbort:
					return nil, report, fmt.Errorf("%w: block %d offset 0x%x%+d in module %d",
						errs.ErrOffsetOutOfRange, i, b.Offset, delta, m.ID)
				case PolicyDrop:
					continue
				case PolicyClamp:
					offset = clamp(addOffset(b.Offset, delta), m)
				}
			}
			b.Offset = offset
		}

		blocks = append(blocks, b)
		if hits != nil {
			hits = append(hits, t.HitCount(i))
		}
	}

	out, err := rebuild(t, t.ModuleSlice(), blocks, hits)
	if err != nil {
		return nil, report, err
	}

	return out, report, nil
}

// limit returns the largest valid offset in m.
func limit(m trace.Module) int64 {
	if m.HasSize() && m.Size() <= math.MaxUint32 {
		return int64(m.Size()) - 1
	}

	return math.MaxUint32
}

// addOffset computes offset + delta, saturating instead of overflowing int64.
func addOffset(offset uint32, delta int64) int64 {
	if delta > math.MaxInt64-math.MaxUint32 {
		return math.MaxInt64
	}

	return int64(offset) + delta
}

func adjust(offset uint32, delta int64, m trace.Module) (uint32, bool) {
	v := addOffset(offset, delta)
	if v < 0 || v > limit(m) {
		return 0, false
	}

	return uint32(v), true
}

func clamp(v int64, m trace.Module) uint32 {
	if v < 0 {
		return 0
	}

	return uint32(min(v, limit(m)))
}

func rebuild(t *trace.Trace, modules []trace.Module, blocks []trace.BasicBlock, hits []uint32) (*trace.Trace, error) {
	return trace.New(trace.Parts{
		Header:    t.Header(),
		Layout:    t.Layout(),
		Modules:   modules,
		Blocks:    blocks,
		HitCounts: hits,
	})
}
