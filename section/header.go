package section

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redthing1/covtool/errs"
)

// FileHeader is the two-line text header that opens every DrCov file.
type FileHeader struct {
	Version int
	Flavor  string
}

// ParseVersionLine parses "DRCOV VERSION: n". Any integer version is accepted.
func (h *FileHeader) ParseVersionLine(line string) error {
	rest, ok := strings.CutPrefix(line, VersionPrefix)
	if !ok {
		return fmt.Errorf("%w: expected %q, got %q", errs.ErrUnknownHeaderLine, strings.TrimSpace(VersionPrefix), line)
	}

	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return fmt.Errorf("%w: invalid version %q", errs.ErrUnknownHeaderLine, rest)
	}
	h.Version = v

	return nil
}

// ParseFlavorLine parses "DRCOV FLAVOR: s". The flavor is free text.
func (h *FileHeader) ParseFlavorLine(line string) error {
	rest, ok := strings.CutPrefix(line, FlavorPrefix)
	if !ok {
		// an empty flavor leaves no trailing space after the colon
		if line != strings.TrimSpace(FlavorPrefix) {
			return fmt.Errorf("%w: expected %q, got %q", errs.ErrUnknownHeaderLine, strings.TrimSpace(FlavorPrefix), line)
		}
		rest = ""
	}
	h.Flavor = rest

	return nil
}

// AppendTo appends both header lines to dst.
func (h FileHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, VersionPrefix...)
	dst = strconv.AppendInt(dst, int64(h.Version), 10)
	dst = append(dst, '\n')
	dst = append(dst, FlavorPrefix...)
	dst = append(dst, h.Flavor...)

	return append(dst, '\n')
}
