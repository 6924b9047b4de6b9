package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redthing1/covtool/analysis"
	"github.com/redthing1/covtool/trace"
)

func (a *app) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats FILE...",
		Short: "Print block and module counts for each trace",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			out := cmd.OutOrStdout()
			for _, p := range paths {
				t, err := a.load(p)
				if err != nil {
					return err
				}
				printStats(out, filepath.Base(p), analysis.Stats(t))
				fmt.Fprintln(out)
			}

			return nil
		},
	}
}

func printStats(w io.Writer, name string, s analysis.Summary) {
	fmt.Fprintf(w, "%s:\n", name)
	fmt.Fprintf(w, "  basic blocks: %d\n", s.Blocks)
	fmt.Fprintf(w, "  modules: %d\n", s.Modules)
	if s.HasHits {
		fmt.Fprintf(w, "  total hits: %d\n", s.TotalHits)
	}
	if len(s.PerModule) == 0 {
		return
	}

	fmt.Fprintln(w, "  coverage by module:")
	for _, m := range s.PerModule {
		fmt.Fprintf(w, "    %s: %d blocks\n", m.Name, m.Blocks)
	}
}

func (a *app) rarityCmd() *cobra.Command {
	var threshold int

	cmd := &cobra.Command{
		Use:   "rarity FILE...",
		Short: "List blocks covered by at most --threshold traces",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			traces, err := a.loadAll(paths)
			if err != nil {
				return err
			}

			groups, err := analysis.Rarity(cmd.Context(), traces, threshold)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "rarity analysis (threshold <= %d):\n", threshold)
			if len(groups) == 0 {
				fmt.Fprintf(out, "no blocks found with rarity <= %d\n", threshold)
				return nil
			}
			for _, g := range groups {
				fmt.Fprintf(out, "\n%s:\n", g.Name)
				for _, b := range g.Blocks {
					fmt.Fprintf(out, "  0x%08x (size: %d, hit by %d %s)\n", b.Offset, b.Size, b.Traces, plural(b.Traces, "trace"))
				}
			}

			return nil
		},
	}

	cmd.Flags().IntVarP(&threshold, "threshold", "t", 1, "maximum number of traces containing a block")

	return cmd
}

func (a *app) compareCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "compare BASELINE TARGET...",
		Short: "Compare traces against a baseline",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, paths []string) error {
			traces, err := a.loadAll(paths)
			if err != nil {
				return err
			}

			results, err := analysis.Compare(traces[0], traces[1:]...)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "baseline: %s (%d blocks)\n", filepath.Base(paths[0]), traces[0].NumBlocks())
			fmt.Fprintln(out, strings.Repeat("=", 70))
			fmt.Fprintf(out, "%-30s %-8s %-8s %-8s %-8s %-10s\n", "file", "total", "common", "unique", "missing", "coverage")
			fmt.Fprintln(out, strings.Repeat("-", 70))
			for i, r := range results {
				fmt.Fprintf(out, "%-30s %-8d %-8d %-8d %-8d %-10s\n",
					filepath.Base(paths[i+1]), r.Total, r.Common, r.Unique, r.Missing,
					fmt.Sprintf("%.2f%%", 100*r.Coverage))
			}

			return nil
		},
	}
}

// infoReport is the --json form of the info command.
type infoReport struct {
	Filename string               `json:"filename"`
	Filter   string               `json:"filter,omitempty"`
	Header   trace.Header         `json:"header"`
	Summary  analysis.Summary     `json:"summary"`
	Modules  []infoModule         `json:"module_table"`
	Top      []analysis.ModuleTop `json:"top_blocks"`
}

type infoModule struct {
	ID   uint16 `json:"id"`
	Path string `json:"path"`
	Base uint64 `json:"base"`
	End  uint64 `json:"end"`
}

func (a *app) infoCmd() *cobra.Command {
	var (
		asJSON bool
		top    int
	)

	cmd := &cobra.Command{
		Use:   "info FILE",
		Short: "Show detailed information about one trace",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, paths []string) error {
			t, err := a.load(paths[0])
			if err != nil {
				return err
			}

			report := infoReport{
				Filename: filepath.Base(paths[0]),
				Filter:   a.moduleFilter,
				Header:   t.Header(),
				Summary:  analysis.Stats(t),
				Top:      analysis.TopBlocks(t, top),
			}
			for _, m := range t.Modules() {
				report.Modules = append(report.Modules, infoModule{ID: m.ID, Path: m.Path, Base: m.Base, End: m.End})
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")

				return enc.Encode(report)
			}
			printInfo(out, report)

			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	cmd.Flags().IntVarP(&top, "top-blocks", "k", 5, "number of top blocks to show per module")

	return cmd
}

func printInfo(w io.Writer, r infoReport) {
	fmt.Fprintf(w, "%s\n", r.Filename)
	fmt.Fprintf(w, "  version: %d\n", r.Header.Version)
	fmt.Fprintf(w, "  flavor: %s\n", r.Header.Flavor)
	if r.Filter != "" {
		fmt.Fprintf(w, "  filter: %s\n", r.Filter)
	}
	fmt.Fprintf(w, "  basic blocks: %d\n", r.Summary.Blocks)
	fmt.Fprintf(w, "  modules: %d\n", r.Summary.Modules)
	fmt.Fprintf(w, "  covered bytes: %d (average block %.1f)\n", r.Summary.CoveredBytes, r.Summary.AverageBlockSize)
	if r.Summary.Blocks > 0 {
		fmt.Fprintf(w, "  address space: 0x%x-0x%x\n", r.Summary.AddressSpace.Lowest, r.Summary.AddressSpace.Highest)
	}
	if r.Summary.HasHits {
		fmt.Fprintf(w, "  total hits: %d\n", r.Summary.TotalHits)
	}

	fmt.Fprintln(w, "\nmodules:")
	for _, m := range r.Modules {
		fmt.Fprintf(w, "  %3d  0x%016x-0x%016x  %s\n", m.ID, m.Base, m.End, m.Path)
	}

	if len(r.Summary.PerModule) > 0 {
		fmt.Fprintln(w, "\ncoverage by module:")
		for _, m := range r.Summary.PerModule {
			fmt.Fprintf(w, "  %-30s %6d blocks %8d bytes %6.2f%%\n", m.Name, m.Blocks, m.CoveredBytes, m.Percent)
		}
	}

	for _, mt := range r.Top {
		fmt.Fprintf(w, "\ntop blocks in %s:\n", mt.Name)
		for _, b := range mt.Blocks {
			fmt.Fprintf(w, "  0x%016x  +0x%08x  size %-5d hits %d\n", b.Address, b.Offset, b.Size, b.Hits)
		}
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}

	return word + "s"
}
