package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/redthing1/covtool/analysis"
	"github.com/redthing1/covtool/canon"
	"github.com/redthing1/covtool/drcov"
	"github.com/redthing1/covtool/trace"
)

// app carries the persistent flags and the logger shared by all commands.
type app struct {
	moduleFilter string
	verbose      bool
	logLevel     string
	inclusiveEnd bool

	log *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{log: slog.New(slog.DiscardHandler)}

	root := &cobra.Command{
		Use:           "covtool",
		Short:         "Analyze and manipulate DrCov coverage traces",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := newLogger(cmd.ErrOrStderr(), a.logLevel, a.verbose)
			if err != nil {
				return err
			}
			a.log = logger

			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&a.moduleFilter, "module", "m", "", "only keep modules whose path contains this text (case-insensitive)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "verbose output, same as --log-level debug")
	flags.StringVar(&a.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flags.BoolVar(&a.inclusiveEnd, "inclusive-end", false, "module end addresses in files are inclusive")

	root.AddCommand(
		a.unionCmd(),
		a.intersectCmd(),
		a.diffCmd(),
		a.symdiffCmd(),
		a.statsCmd(),
		a.rarityCmd(),
		a.compareCmd(),
		a.infoCmd(),
		a.rebaseCmd(),
		a.adjustCmd(),
		a.liftCmd(),
	)

	return root
}

// newLogger builds the stderr text logger. verbose forces debug level.
func newLogger(w io.Writer, level string, verbose bool) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	if verbose {
		lvl = slog.LevelDebug
	}

	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})), nil
}

func (a *app) codecOptions() []drcov.Option {
	if a.inclusiveEnd {
		return []drcov.Option{drcov.WithInclusiveEnd()}
	}

	return nil
}

// load reads a trace and applies the module filter.
func (a *app) load(path string) (*trace.Trace, error) {
	t, err := drcov.ReadFile(path, a.codecOptions()...)
	if err != nil {
		return nil, err
	}
	a.log.Debug("loaded trace", "path", path, "modules", t.NumModules(), "blocks", t.NumBlocks(), "hits", t.HasHitCounts())
	for _, o := range t.Overlaps() {
		a.log.Debug("overlapping modules", "path", path, "overlap", o.String())
	}

	return analysis.FilterByModule(t, a.moduleFilter), nil
}

func (a *app) loadAll(paths []string) ([]*trace.Trace, error) {
	out := make([]*trace.Trace, 0, len(paths))
	for _, p := range paths {
		t, err := a.load(p)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, nil
}

func (a *app) store(cmd *cobra.Command, path string, t *trace.Trace) error {
	if err := drcov.WriteFile(path, t, a.codecOptions()...); err != nil {
		return err
	}
	a.log.Info("wrote trace", "path", path, "blocks", t.NumBlocks())
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %d blocks to %s\n", t.NumBlocks(), path)

	return nil
}

// reportWarnings logs each metadata conflict at debug level and only the
// count at warn level.
func (a *app) reportWarnings(ctx context.Context, warnings []canon.Warning) {
	if len(warnings) == 0 {
		return
	}
	for _, w := range warnings {
		a.log.DebugContext(ctx, "module metadata conflict", "path", w.Path, "field", w.Field, "kept", w.Kept, "ignored", w.Ignored)
	}
	a.log.WarnContext(ctx, "module metadata conflicts, first value kept", "count", len(warnings))
}

// parseHexUint parses a hex number with an optional 0x prefix.
func parseHexUint(s string) (uint64, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	v, err := strconv.ParseUint(trimmed, 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid hex number %q", s)
	}

	return v, nil
}

// parseHexDelta parses a signed hex delta such as -0x200 or +10.
func parseHexDelta(s string) (int64, error) {
	neg := strings.HasPrefix(s, "-")
	v, err := parseHexUint(strings.TrimPrefix(strings.TrimPrefix(s, "-"), "+"))
	if err != nil || v > 1<<63 || (!neg && v == 1<<63) {
		return 0, fmt.Errorf("invalid hex delta %q", s)
	}
	if neg {
		return -int64(v), nil //nolint: gosec
	}

	return int64(v), nil //nolint: gosec
}
