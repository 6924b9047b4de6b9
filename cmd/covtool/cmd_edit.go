package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/redthing1/covtool/edit"
)

func (a *app) rebaseCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "rebase FILE MODULE_PATH NEW_BASE",
		Short: "Move a module to a new base address",
		Long: `Move every module with the given path so that its first segment starts
at NEW_BASE (hex). Segments keep their relative layout; block offsets are
unchanged.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			newBase, err := parseHexUint(args[2])
			if err != nil {
				return err
			}

			t, err := a.load(args[0])
			if err != nil {
				return err
			}

			out, err := edit.Rebase(t, args[1], newBase)
			if err != nil {
				return err
			}
			a.log.Debug("rebased", "module", args[1], "base", fmt.Sprintf("0x%x", newBase))

			return a.store(cmd, output, out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output trace file")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

func (a *app) adjustCmd() *cobra.Command {
	var (
		output string
		delta  string
		policy string
	)

	cmd := &cobra.Command{
		Use:   "adjust FILE MODULE_PATH --delta HEX",
		Short: "Shift block offsets inside a module",
		Long: `Add a signed hex delta (for example --delta=-0x200) to the offset of every
block in the modules with the given path. --policy decides what happens to
blocks that land outside the module: abort, drop or clamp.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := parseHexDelta(delta)
			if err != nil {
				return err
			}
			p, err := edit.ParsePolicy(policy)
			if err != nil {
				return err
			}

			t, err := a.load(args[0])
			if err != nil {
				return err
			}

			out, report, err := edit.AdjustOffsets(t, args[1], d, edit.WithPolicy(p))
			if err != nil {
				return err
			}
			if n := len(report.Flagged); n > 0 {
				a.log.Warn("blocks out of range", "count", n, "policy", p.String())
			}

			return a.store(cmd, output, out)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "output trace file")
	cmd.Flags().StringVar(&delta, "delta", "", "signed hex offset delta")
	cmd.Flags().StringVar(&policy, "policy", "abort", "out-of-range policy: abort, drop or clamp")
	_ = cmd.MarkFlagRequired("output")
	_ = cmd.MarkFlagRequired("delta")

	return cmd
}
