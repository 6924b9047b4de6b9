package section

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/redthing1/covtool/errs"
)

// BBTableHeader is the "BB Table: <count> bbs" line.
type BBTableHeader struct {
	Count int
}

// Parse parses the BB table header line.
func (h *BBTableHeader) Parse(line string) error {
	rest, ok := strings.CutPrefix(line, BBTablePrefix)
	if !ok {
		return fmt.Errorf("%w: expected bb table header, got %q", errs.ErrMalformedTrace, line)
	}
	rest = strings.TrimSuffix(strings.TrimSpace(rest), strings.TrimSpace(BBTableSuffix))

	n, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil || n < 0 {
		return fmt.Errorf("%w: invalid bb count %q", errs.ErrMalformedTrace, rest)
	}
	h.Count = n

	return nil
}

// PayloadSize returns the number of bytes the packed table occupies.
func (h BBTableHeader) PayloadSize() int {
	return h.Count * BlockEntrySize
}

// AppendTo appends the header line to dst.
func (h BBTableHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, BBTablePrefix...)
	dst = strconv.AppendInt(dst, int64(h.Count), 10)
	dst = append(dst, BBTableSuffix...)

	return append(dst, '\n')
}

// HitTableHeader is the "Hit Count Table: version <v>, count <c>" line.
type HitTableHeader struct {
	Version int
	Count   int
}

// ParseHitTableHeader reports whether line is a well-formed hit count table
// header. A line that is not one leaves the hit table absent rather than
// failing the load.
func ParseHitTableHeader(line string) (HitTableHeader, bool) {
	rest, ok := strings.CutPrefix(line, HitTablePrefix)
	if !ok {
		return HitTableHeader{}, false
	}

	versionPart, countPart, ok := strings.Cut(strings.TrimSpace(rest), ",")
	if !ok {
		return HitTableHeader{}, false
	}
	versionText, ok := strings.CutPrefix(versionPart, "version ")
	if !ok {
		return HitTableHeader{}, false
	}
	countText, ok := strings.CutPrefix(strings.TrimSpace(countPart), "count ")
	if !ok {
		return HitTableHeader{}, false
	}

	version, err := strconv.Atoi(versionText)
	if err != nil {
		return HitTableHeader{}, false
	}
	count, err := strconv.Atoi(countText)
	if err != nil || count < 0 {
		return HitTableHeader{}, false
	}

	return HitTableHeader{Version: version, Count: count}, true
}

// PayloadSize returns the number of bytes the hit counts occupy.
func (h HitTableHeader) PayloadSize() int {
	return h.Count * HitCountSize
}

// AppendTo appends the header line to dst.
func (h HitTableHeader) AppendTo(dst []byte) []byte {
	dst = append(dst, HitTablePrefix...)
	dst = append(dst, "version "...)
	dst = strconv.AppendInt(dst, int64(h.Version), 10)
	dst = append(dst, ", count "...)
	dst = strconv.AppendInt(dst, int64(h.Count), 10)

	return append(dst, '\n')
}
