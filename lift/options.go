package lift

import (
	"fmt"

	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/internal/options"
)

// Flavor is the header flavor of lifted traces.
const Flavor = "covtool_lift"

// maxLineBytes bounds a single input line.
const maxLineBytes = 1 << 20

// Config holds Lift settings.
type Config struct {
	grammar format.Grammar
	flavor  string
}

// Option configures Lift.
type Option = options.Option[*Config]

func newConfig(opts ...Option) (*Config, error) {
	cfg := &Config{grammar: format.GrammarAuto, flavor: Flavor}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WithGrammar restricts every line to one grammar. Lines in any other
// grammar become ErrMalformedLine diagnostics. GrammarAuto, the default,
// classifies each line on its own.
func WithGrammar(g format.Grammar) Option {
	return options.New(func(c *Config) error {
		if g > format.GrammarAddressHits {
			return fmt.Errorf("invalid lift grammar %d", g)
		}
		c.grammar = g

		return nil
	})
}

// WithFlavor overrides the header flavor. A "-hits" suffix is still added
// when the lifted trace carries hit counts.
func WithFlavor(flavor string) Option {
	return options.NoError(func(c *Config) {
		c.flavor = flavor
	})
}
