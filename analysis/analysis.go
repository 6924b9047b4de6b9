// Package analysis computes summaries over traces: per-module statistics,
// cross-trace rarity, baseline comparison and hottest blocks.
package analysis

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/redthing1/covtool/canon"
	"github.com/redthing1/covtool/setops"
	"github.com/redthing1/covtool/trace"
)

// FilterByModule keeps the modules whose path contains substr, ignoring
// case, and the blocks that reference them. An empty substr keeps all.
func FilterByModule(t *trace.Trace, substr string) *trace.Trace {
	if substr == "" {
		return t
	}
	needle := strings.ToLower(substr)

	return t.Filter(func(m trace.Module) bool {
		return strings.Contains(strings.ToLower(m.Path), needle)
	})
}

// ModuleStats summarizes the blocks of every module sharing one name.
type ModuleStats struct {
	Name         string  `json:"name"`
	Blocks       int     `json:"block_count"`
	CoveredBytes uint64  `json:"coverage_size"`
	Hits         uint64  `json:"hits,omitempty"`
	Percent      float64 `json:"percentage"` // share of all blocks in the trace
}

// AddressSpace is the span of covered absolute addresses.
type AddressSpace struct {
	Lowest  uint64 `json:"lowest"`
	Highest uint64 `json:"highest"` // end of the highest block
}

// Summary is the headline statistics of one trace.
type Summary struct {
	Blocks           int          `json:"total_blocks"`
	Modules          int          `json:"total_modules"`
	CoveredBytes     uint64       `json:"total_coverage_size"`
	AverageBlockSize float64      `json:"average_block_size"`
	HasHits          bool         `json:"has_hit_counts"`
	TotalHits        uint64       `json:"total_hits"`
	AddressSpace     AddressSpace `json:"address_space"`
	// SizeHistogram counts blocks per power-of-two size bucket, keyed by
	// the bucket's upper bound.
	SizeHistogram map[uint32]int `json:"block_size_distribution"`
	PerModule     []ModuleStats  `json:"modules"`
}

// Stats summarizes t. PerModule is sorted by name and omits modules
// without blocks.
func Stats(t *trace.Trace) Summary {
	s := Summary{
		Blocks:        t.NumBlocks(),
		Modules:       t.NumModules(),
		HasHits:       t.HasHitCounts(),
		TotalHits:     t.TotalHits(),
		SizeHistogram: make(map[uint32]int),
	}

	byName := make(map[string]*ModuleStats)
	for i, b := range t.Blocks() {
		m, _ := t.Module(b.ModuleID)
		ms, ok := byName[m.Name()]
		if !ok {
			ms = &ModuleStats{Name: m.Name()}
			byName[m.Name()] = ms
		}
		ms.Blocks++
		ms.CoveredBytes += uint64(b.Size)
		ms.Hits += uint64(t.HitCount(i))

		s.CoveredBytes += uint64(b.Size)
		s.SizeHistogram[bucket(b.Size)]++

		addr := t.AbsoluteAddress(i)
		if i == 0 || addr < s.AddressSpace.Lowest {
			s.AddressSpace.Lowest = addr
		}
		s.AddressSpace.Highest = max(s.AddressSpace.Highest, addr+uint64(b.Size))
	}

	if s.Blocks > 0 {
		s.AverageBlockSize = float64(s.CoveredBytes) / float64(s.Blocks)
	}
	for _, ms := range byName {
		if s.Blocks > 0 {
			ms.Percent = 100 * float64(ms.Blocks) / float64(s.Blocks)
		}
		s.PerModule = append(s.PerModule, *ms)
	}
	slices.SortFunc(s.PerModule, func(a, b ModuleStats) int { return cmp.Compare(a.Name, b.Name) })

	return s
}

func bucket(size uint16) uint32 {
	b := uint32(1)
	for b < uint32(size) {
		b <<= 1
	}

	return b
}

// RareBlock is a block identity seen in few traces.
type RareBlock struct {
	Offset uint32 `json:"offset"`
	Size   uint16 `json:"size"`
	Traces int    `json:"traces"`
}

// RareGroup collects the rare blocks of one module name.
type RareGroup struct {
	Name   string      `json:"name"`
	Blocks []RareBlock `json:"blocks"`
}

// Rarity finds block identities contained in at most threshold of the
// traces. Groups are sorted by name, blocks by trace count then offset.
func Rarity(ctx context.Context, traces []*trace.Trace, threshold int) ([]RareGroup, error) {
	indexes, err := canon.BuildAll(ctx, traces)
	if err != nil {
		return nil, err
	}

	type seen struct {
		size   uint16
		traces int
	}
	counts := make(map[canon.BlockKey]*seen)
	names := make(map[canon.ModuleKey]string)
	for _, idx := range indexes {
		for _, key := range idx.Keys() {
			if s, ok := counts[key]; ok {
				s.traces++
				continue
			}
			e, _ := idx.Lookup(key)
			counts[key] = &seen{size: e.Size, traces: 1}
			if _, ok := names[key.Module]; !ok {
				info, _ := idx.Module(key.Module)
				names[key.Module] = info.Module.Name()
			}
		}
	}

	byName := make(map[string][]RareBlock)
	for key, s := range counts {
		if s.traces > threshold {
			continue
		}
		name := names[key.Module]
		byName[name] = append(byName[name], RareBlock{Offset: key.Offset, Size: s.size, Traces: s.traces})
	}

	out := make([]RareGroup, 0, len(byName))
	for name, blocks := range byName {
		slices.SortFunc(blocks, func(a, b RareBlock) int {
			return cmp.Or(cmp.Compare(a.Traces, b.Traces), cmp.Compare(a.Offset, b.Offset))
		})
		out = append(out, RareGroup{Name: name, Blocks: blocks})
	}
	slices.SortFunc(out, func(a, b RareGroup) int { return cmp.Compare(a.Name, b.Name) })

	return out, nil
}

// Comparison relates one target trace to a baseline, counting distinct
// block identities.
type Comparison struct {
	Total   int `json:"total"`
	Common  int `json:"common"`
	Unique  int `json:"unique"`  // in target only
	Missing int `json:"missing"` // in baseline only
	// Coverage is Common over the baseline size, 0 for an empty baseline.
	Coverage float64 `json:"coverage"`
}

// Compare computes a Comparison for every target, in order.
func Compare(baseline *trace.Trace, targets ...*trace.Trace) ([]Comparison, error) {
	base, err := canon.Build(baseline)
	if err != nil {
		return nil, err
	}

	out := make([]Comparison, 0, len(targets))
	for _, target := range targets {
		idx, err := canon.Build(target)
		if err != nil {
			return nil, err
		}
		common, err := setops.Intersect(baseline, target)
		if err != nil {
			return nil, err
		}
		unique, err := setops.Difference(target, baseline)
		if err != nil {
			return nil, err
		}
		missing, err := setops.Difference(baseline, target)
		if err != nil {
			return nil, err
		}

		c := Comparison{
			Total:   idx.Len(),
			Common:  common.Trace.NumBlocks(),
			Unique:  unique.Trace.NumBlocks(),
			Missing: missing.Trace.NumBlocks(),
		}
		if base.Len() > 0 {
			c.Coverage = float64(c.Common) / float64(base.Len())
		}
		out = append(out, c)
	}

	return out, nil
}

// HotBlock is one block of a TopBlocks listing.
type HotBlock struct {
	Offset  uint32 `json:"offset"`
	Address uint64 `json:"address"`
	Size    uint16 `json:"size"`
	Hits    uint32 `json:"hits"`
}

// ModuleTop lists the hottest blocks of one module.
type ModuleTop struct {
	ModuleID uint16     `json:"module_id"`
	Name     string     `json:"name"`
	Blocks   []HotBlock `json:"blocks"`
}

// TopBlocks returns, per module in table order, the k blocks with the most
// hits. Without hit counts the largest blocks come first. Ties break on
// offset; modules without blocks are omitted.
func TopBlocks(t *trace.Trace, k int) []ModuleTop {
	if k <= 0 {
		return nil
	}

	perModule := make(map[uint16][]HotBlock)
	for i, b := range t.Blocks() {
		perModule[b.ModuleID] = append(perModule[b.ModuleID], HotBlock{
			Offset:  b.Offset,
			Address: t.AbsoluteAddress(i),
			Size:    b.Size,
			Hits:    t.HitCount(i),
		})
	}

	var out []ModuleTop
	for _, m := range t.Modules() {
		blocks := perModule[m.ID]
		if len(blocks) == 0 {
			continue
		}
		slices.SortStableFunc(blocks, func(a, b HotBlock) int {
			return cmp.Or(
				cmp.Compare(b.Hits, a.Hits),
				cmp.Compare(b.Size, a.Size),
				cmp.Compare(a.Offset, b.Offset),
			)
		})
		out = append(out, ModuleTop{ModuleID: m.ID, Name: m.Name(), Blocks: blocks[:min(k, len(blocks))]})
	}

	return out
}
