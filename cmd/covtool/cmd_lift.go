package main

import (
	"bufio"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/lift"
)

// moduleMap is the --modules-file document:
//
//	modules:
//	  - name: boombox
//	    base: 0x140000000
type moduleMap struct {
	Modules []struct {
		Name string `yaml:"name"`
		Base string `yaml:"base"`
	} `yaml:"modules"`
}

// loadModuleMap reads a YAML module map and returns its entries as
// name@base definitions.
func loadModuleMap(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read module map: %w", err)
	}

	var m moduleMap
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse module map %s: %w", path, err)
	}

	defs := make([]string, 0, len(m.Modules))
	for _, mod := range m.Modules {
		if mod.Base == "" {
			defs = append(defs, mod.Name)
			continue
		}
		defs = append(defs, mod.Name+"@"+mod.Base)
	}

	return defs, nil
}

// liftFormatAliases are the short --format spellings of the lift input kinds.
var liftFormatAliases = map[string]format.InputKind{
	"module-offset": format.InputLiftModuleOffset,
	"address":       format.InputLiftAddress,
	"address-hits":  format.InputLiftAddressHits,
}

// parseLiftFormat maps a --format value to a grammar. auto and detect both
// yield GrammarAuto; detect is resolved against the input afterwards.
func parseLiftFormat(name string) (format.Grammar, error) {
	if name == "auto" || name == "detect" {
		return format.GrammarAuto, nil
	}

	k, ok := liftFormatAliases[name]
	if !ok {
		k, ok = format.ParseInputKind(name)
	}
	if !ok {
		return format.GrammarAuto, fmt.Errorf("unknown lift format %q", name)
	}
	if !k.IsLift() {
		return format.GrammarAuto, fmt.Errorf("%s is not a lift input format", k)
	}

	return k.Grammar(), nil
}

func (a *app) liftCmd() *cobra.Command {
	var (
		output      string
		defs        []string
		modulesFile string
		grammar     string
		flavor      string
	)

	cmd := &cobra.Command{
		Use:   "lift INPUT",
		Short: "Convert a plain address log into a DrCov trace",
		Long: `Convert a line-oriented coverage log into a DrCov trace. Each line is one of:

  boombox+3a06      module name and hex offset
  0x14000419c       hex absolute address
  14000419c 24      hex absolute address and hit count

Modules are defined with -M name@hexbase (repeatable) or a YAML file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := parseLiftFormat(grammar)
			if err != nil {
				return err
			}

			all := defs
			if modulesFile != "" {
				fromFile, err := loadModuleMap(modulesFile)
				if err != nil {
					return err
				}
				all = append(fromFile, defs...)
			}
			mods, err := lift.ParseModuleDefs(all)
			if err != nil {
				return err
			}
			for _, m := range mods {
				a.log.Debug("module", "def", m.String())
			}

			if grammar == "detect" {
				g, err = detectFileGrammar(args[0])
				if err != nil {
					return err
				}
				a.log.Info("detected lift format", "format", g.String())
			}

			f, err := os.Open(args[0])
			if err != nil {
				return fmt.Errorf("open lift input: %w", err)
			}
			defer f.Close()

			opts := []lift.Option{lift.WithGrammar(g)}
			if flavor != "" {
				opts = append(opts, lift.WithFlavor(flavor))
			}
			res, err := lift.Lift(f, mods, opts...)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			for _, d := range res.Diagnostics {
				a.log.Debug("skipped line", "line", d.Line, "text", d.Text, "error", d.Err)
			}
			if n := len(res.Diagnostics); n > 0 {
				a.log.Warn("lines skipped", "count", n)
			}

			return a.store(cmd, output, res.Trace)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&output, "output", "o", "", "output trace file")
	flags.StringArrayVarP(&defs, "define", "M", nil, "module definition name@hexbase (repeatable)")
	flags.StringVar(&modulesFile, "modules-file", "", "YAML module map")
	flags.StringVar(&grammar, "format", "auto", "input format: auto, detect, module-offset (lift-moduleoffset), address (lift-address) or address-hits (lift-address-hits)")
	flags.StringVar(&flavor, "flavor", "", "header flavor of the lifted trace")
	_ = cmd.MarkFlagRequired("output")

	return cmd
}

// detectFileGrammar sniffs the first lines of path.
func detectFileGrammar(path string) (format.Grammar, error) {
	f, err := os.Open(path)
	if err != nil {
		return format.GrammarAuto, fmt.Errorf("open lift input: %w", err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for len(lines) < 32 && sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return format.GrammarAuto, fmt.Errorf("read lift input: %w", err)
	}

	g, ok := lift.DetectGrammar(lines)
	if !ok {
		return format.GrammarAuto, fmt.Errorf("%s: unable to detect lift format", path)
	}

	return g, nil
}
