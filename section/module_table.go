package section

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
)

// ModuleTableHeader is the "Module Table:" line.
//
// Legacy files write "Module Table: <count>"; modern files write
// "Module Table: version <v>, count <count>" followed by a Columns: line.
type ModuleTableHeader struct {
	// Version is the raw table version, 0 for the legacy form.
	Version int
	Count   int
}

// IsLegacy reports whether the header used the unversioned form.
func (h ModuleTableHeader) IsLegacy() bool {
	return h.Version == 0
}

// Format maps the raw version onto a known layout. Versions above 4 are
// treated as supersets of version 4.
func (h ModuleTableHeader) Format() format.ModuleTableVersion {
	switch {
	case h.Version == 0:
		return format.ModuleTableLegacy
	case h.Version <= 2:
		return format.ModuleTableV2
	case h.Version == 3:
		return format.ModuleTableV3
	default:
		return format.ModuleTableV4
	}
}

// Parse parses the module table header line.
//
// Returns:
//   - error: ErrMalformedTrace if the line is not a module table header
func (h *ModuleTableHeader) Parse(line string) error {
	rest, ok := strings.CutPrefix(line, ModuleTablePrefix)
	if !ok {
		return fmt.Errorf("%w: expected module table header, got %q", errs.ErrMalformedTrace, line)
	}
	rest = strings.TrimSpace(rest)

	if !strings.HasPrefix(rest, "version") {
		n, err := strconv.Atoi(rest)
		if err != nil || n < 0 {
			return fmt.Errorf("%w: invalid module count %q", errs.ErrMalformedTrace, rest)
		}
		h.Version, h.Count = 0, n

		return nil
	}

	var v, n int
	if _, err := fmt.Sscanf(rest, "version %d, count %d", &v, &n); err != nil {
		return fmt.Errorf("%w: invalid module table header %q", errs.ErrMalformedTrace, rest)
	}
	if v < 1 || n < 0 {
		return fmt.Errorf("%w: invalid module table header %q", errs.ErrMalformedTrace, rest)
	}
	h.Version, h.Count = v, n

	return nil
}

// AppendTo appends the modern header line to dst.
func (h ModuleTableHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, ModuleTablePrefix...)
	if h.IsLegacy() {
		dst = strconv.AppendInt(dst, int64(h.Count), 10)
		return append(dst, '\n')
	}

	dst = append(dst, "version "...)
	dst = strconv.AppendInt(dst, int64(h.Version), 10)
	dst = append(dst, ", count "...)
	dst = strconv.AppendInt(dst, int64(h.Count), 10)

	return append(dst, '\n')
}
