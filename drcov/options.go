package drcov

import (
	"fmt"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/internal/options"
)

// Config holds reader and writer settings. Options that only affect one
// direction are ignored by the other.
type Config struct {
	compression    format.CompressionType
	compressionSet bool
	inclusiveEnd   bool
	flavor         string
	flavorSet      bool
}

// Option configures Decode, Encode and the file helpers.
type Option = options.Option[*Config]

func newConfig(opts []Option) (*Config, error) {
	cfg := &Config{compression: format.CompressionNone}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// WithCompression sets the container compression. Without it the reader
// detects compression from magic bytes and the writer emits plain DrCov.
func WithCompression(c format.CompressionType) Option {
	return options.New(func(cfg *Config) error {
		switch c {
		case format.CompressionNone, format.CompressionZstd, format.CompressionS2, format.CompressionLZ4:
			cfg.compression = c
			cfg.compressionSet = true

			return nil
		default:
			return fmt.Errorf("%w: %s", errs.ErrInvalidCompression, c)
		}
	})
}

// WithInclusiveEnd declares that module end addresses are stored inclusive.
// The reader adds one to every end; the writer subtracts one.
func WithInclusiveEnd() Option {
	return options.NoError(func(cfg *Config) {
		cfg.inclusiveEnd = true
	})
}

// WithFlavor overrides the flavor prefix written to the header. The "-hits"
// suffix is still managed by the writer.
func WithFlavor(flavor string) Option {
	return options.NoError(func(cfg *Config) {
		cfg.flavor = flavor
		cfg.flavorSet = true
	})
}
