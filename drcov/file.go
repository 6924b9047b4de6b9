package drcov

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/trace"
)

// Read loads a trace from r. The whole input is buffered; traces larger than
// memory are not supported.
func Read(r io.Reader, opts ...Option) (*trace.Trace, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	return Decode(data, opts...)
}

// ReadFile loads the trace stored at path. A .zst, .s2 or .lz4 extension
// selects the container unless WithCompression is given.
func ReadFile(path string, opts ...Option) (*trace.Trace, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read trace: %w", err)
	}

	t, err := Decode(data, withPathCompression(path, opts)...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return t, nil
}

// Write serializes t to w.
func Write(w io.Writer, t *trace.Trace, opts ...Option) error {
	data, err := Encode(t, opts...)
	if err != nil {
		return err
	}

	_, err = w.Write(data)

	return err
}

// WriteFile atomically replaces path with the serialized trace: the bytes go
// to a temporary file in the same directory, which is synced and renamed over
// path. A failed write leaves any previous file untouched.
func WriteFile(path string, t *trace.Trace, opts ...Option) error {
	data, err := Encode(t, withPathCompression(path, opts)...)
	if err != nil {
		return err
	}

	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp-*")
	if err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write trace: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}

	return nil
}

// withPathCompression prepends the extension-derived compression so an
// explicit WithCompression in opts still wins.
func withPathCompression(path string, opts []Option) []Option {
	ct := format.CompressionFromPath(path)
	if ct == format.CompressionNone {
		return opts
	}

	return append([]Option{WithCompression(ct)}, opts...)
}
