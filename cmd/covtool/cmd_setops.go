package main

import (
	"github.com/spf13/cobra"

	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/setops"
)

func (a *app) unionCmd() *cobra.Command {
	return a.setopCmd(format.OpUnion, "union FILE...", "Combine traces, keeping every block seen in any of them", cobra.MinimumNArgs(1))
}

func (a *app) intersectCmd() *cobra.Command {
	return a.setopCmd(format.OpIntersect, "intersect FILE...", "Keep only the blocks present in every trace", cobra.MinimumNArgs(1))
}

func (a *app) diffCmd() *cobra.Command {
	return a.setopCmd(format.OpDifference, "diff FILE OTHER...", "Keep the blocks of the first trace that no other trace contains", cobra.MinimumNArgs(2))
}

func (a *app) symdiffCmd() *cobra.Command {
	return a.setopCmd(format.OpSymmetricDifference, "symdiff FILE OTHER", "Keep the blocks present in exactly one of two traces", cobra.ExactArgs(2))
}

func (a *app) setopCmd(op format.SetOp, use, short string, args cobra.PositionalArgs) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  args,
		RunE: func(cmd *cobra.Command, paths []string) error {
			traces, err := a.loadAll(paths)
			if err != nil {
				return err
			}

			res, err := setops.Apply(op, traces...)
			if err != nil {
				return err
			}
			a.reportWarnings(cmd.Context(), res.Warnings)

			for i, t := range traces {
				a.log.Debug("input", "path", paths[i], "blocks", t.NumBlocks())
			}
			a.log.Debug("result", "op", op.String(), "blocks", res.Trace.NumBlocks(), "modules", res.Trace.NumModules())

			return a.store(cmd, output, res.Trace)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output trace file (.zst, .s2 or .lz4 to compress)")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

