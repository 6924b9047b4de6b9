package section

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/trace"
)

const absent = -1

// Columns maps module table column names to field positions. It is built once
// per table from the Columns: line and then used to decode every row.
type Columns struct {
	names []string
	index map[string]int

	id, containingID, base, end, entry, offset, checksum, timestamp, path int
}

// Well-known layouts for tables that carry no Columns: line.
var (
	windowsV2Columns = []string{ColumnID, ColumnBase, ColumnEnd, ColumnEntry, ColumnChecksum, ColumnTimestamp, ColumnPath}
	linuxV2Columns   = []string{ColumnID, ColumnBase, ColumnEnd, ColumnEntry, ColumnPath}
	linuxV3Columns   = []string{ColumnID, ColumnContainingID, ColumnStart, ColumnEnd, ColumnEntry, ColumnPath}
	linuxV4Columns   = []string{ColumnID, ColumnContainingID, ColumnStart, ColumnEnd, ColumnEntry, ColumnOffset, ColumnPath}

	// writeOrder is the fixed order optional columns are emitted in.
	writeOrder = []string{
		ColumnID, ColumnContainingID, ColumnBase, ColumnEnd, ColumnEntry,
		ColumnOffset, ColumnChecksum, ColumnTimestamp, ColumnPath,
	}
)

// NewColumns builds a column map from names in table order.
//
// Returns:
//   - *Columns: the resolved map
//   - error: ErrMalformedTrace when a required column is missing or path is not last
func NewColumns(names []string) (*Columns, error) {
	c := &Columns{
		names: make([]string, len(names)),
		index: make(map[string]int, len(names)),
	}
	for i, n := range names {
		n = strings.TrimSpace(n)
		c.names[i] = n
		if _, dup := c.index[n]; !dup {
			c.index[n] = i
		}
	}

	c.id = c.lookup(ColumnID)
	c.containingID = c.lookup(ColumnContainingID)
	c.base = c.lookup(ColumnBase)
	if c.base == absent {
		c.base = c.lookup(ColumnStart)
	}
	c.end = c.lookup(ColumnEnd)
	c.entry = c.lookup(ColumnEntry)
	c.offset = c.lookup(ColumnOffset)
	c.checksum = c.lookup(ColumnChecksum)
	c.timestamp = c.lookup(ColumnTimestamp)
	c.path = c.lookup(ColumnPath)

	for _, req := range []struct {
		name string
		pos  int
	}{{ColumnID, c.id}, {ColumnBase, c.base}, {ColumnEnd, c.end}, {ColumnPath, c.path}} {
		if req.pos == absent {
			return nil, fmt.Errorf("%w: missing required column %q", errs.ErrMalformedTrace, req.name)
		}
	}

	// Rows are split into exactly len(names) fields, so only a trailing path
	// may contain commas.
	if c.path != len(c.names)-1 {
		return nil, fmt.Errorf("%w: path must be the last column", errs.ErrMalformedTrace)
	}

	return c, nil
}

// ParseColumns parses a "Columns: a, b, c" line.
func ParseColumns(line string) (*Columns, error) {
	rest, ok := strings.CutPrefix(line, strings.TrimSpace(ColumnsPrefix))
	if !ok {
		return nil, fmt.Errorf("%w: expected columns line, got %q", errs.ErrMalformedTrace, line)
	}

	return NewColumns(strings.Split(rest, ","))
}

// DefaultColumns returns the layout assumed for a modern table of the given
// version that carries no Columns: line.
func DefaultColumns(v format.ModuleTableVersion) *Columns {
	var names []string
	switch v {
	case format.ModuleTableV3:
		names = linuxV3Columns
	case format.ModuleTableV4:
		names = linuxV4Columns
	case format.ModuleTableLegacy:
		names = windowsV2Columns
	default:
		names = linuxV2Columns
	}

	c, _ := NewColumns(names)

	return c
}

// ColumnsFor selects the columns needed to write modules losslessly: the
// mandatory set plus every optional column that is non-default on any module.
func ColumnsFor(modules []trace.Module) *Columns {
	need := map[string]bool{
		ColumnID: true, ColumnBase: true, ColumnEnd: true, ColumnEntry: true, ColumnPath: true,
	}
	for _, m := range modules {
		if m.HasContainingID() && m.ContainingID != int32(m.ID) {
			need[ColumnContainingID] = true
		}
		if m.Offset != 0 {
			need[ColumnOffset] = true
		}
		if m.Checksum != 0 {
			need[ColumnChecksum] = true
		}
		if m.Timestamp != 0 {
			need[ColumnTimestamp] = true
		}
	}

	names := make([]string, 0, len(writeOrder))
	for _, n := range writeOrder {
		if need[n] {
			names = append(names, n)
		}
	}

	c, _ := NewColumns(names)

	return c
}

// Names returns the column names in table order.
func (c *Columns) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)

	return out
}

// Len returns the number of columns.
func (c *Columns) Len() int {
	return len(c.names)
}

// Has reports whether the table carries the named column.
func (c *Columns) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// ParseRow decodes one module row.
//
// Returns:
//   - trace.Module: the module with absent optional fields defaulted
//   - error: ErrMalformedTrace or ErrModuleIDOverflow
func (c *Columns) ParseRow(line string) (trace.Module, error) {
	fields := strings.SplitN(line, ",", len(c.names))
	if len(fields) != len(c.names) {
		return trace.Module{}, fmt.Errorf("%w: row has %d fields, want %d: %q",
			errs.ErrMalformedTrace, len(fields), len(c.names), line)
	}
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}

	var (
		m   = trace.Module{ContainingID: trace.NoContainingID, Path: fields[c.path]}
		err error
	)

	id, err := strconv.ParseUint(fields[c.id], 10, 64)
	if err != nil {
		return m, fmt.Errorf("%w: invalid module id %q", errs.ErrMalformedTrace, fields[c.id])
	}
	if id > math.MaxUint16 {
		return m, fmt.Errorf("%w: module id %d", errs.ErrModuleIDOverflow, id)
	}
	m.ID = uint16(id)

	if m.Base, err = parseHexField(fields, c.base, ColumnBase, 64); err != nil {
		return m, err
	}
	if m.End, err = parseHexField(fields, c.end, ColumnEnd, 64); err != nil {
		return m, err
	}
	if m.Entry, err = parseHexField(fields, c.entry, ColumnEntry, 64); err != nil {
		return m, err
	}
	if m.Offset, err = parseHexField(fields, c.offset, ColumnOffset, 64); err != nil {
		return m, err
	}

	checksum, err := parseHexField(fields, c.checksum, ColumnChecksum, 32)
	if err != nil {
		return m, err
	}
	m.Checksum = uint32(checksum)

	timestamp, err := parseHexField(fields, c.timestamp, ColumnTimestamp, 32)
	if err != nil {
		return m, err
	}
	m.Timestamp = uint32(timestamp)

	if c.containingID != absent {
		cid, err := strconv.ParseInt(fields[c.containingID], 10, 32)
		if err != nil {
			return m, fmt.Errorf("%w: invalid containing_id %q", errs.ErrMalformedTrace, fields[c.containingID])
		}
		// A module that contains itself carries no linkage.
		if cid >= 0 && cid != int64(m.ID) {
			m.ContainingID = int32(cid)
		}
	}

	return m, nil
}

// AppendHeader appends the "Columns:" line to dst.
func (c *Columns) AppendHeader(dst []byte) []byte {
	dst = append(dst, ColumnsPrefix...)
	dst = append(dst, strings.Join(c.names, ", ")...)

	return append(dst, '\n')
}

// AppendRow appends one module row formatted for this column set.
func (c *Columns) AppendRow(dst []byte, m trace.Module) []byte {
	for i, name := range c.names {
		if i > 0 {
			dst = append(dst, ", "...)
		}

		switch name {
		case ColumnID:
			dst = fmt.Appendf(dst, "%2d", m.ID)
		case ColumnContainingID:
			cid := int64(m.ID)
			if m.HasContainingID() {
				cid = int64(m.ContainingID)
			}
			dst = fmt.Appendf(dst, "%2d", cid)
		case ColumnBase, ColumnStart:
			dst = fmt.Appendf(dst, "0x%016x", m.Base)
		case ColumnEnd:
			dst = fmt.Appendf(dst, "0x%016x", m.End)
		case ColumnEntry:
			dst = fmt.Appendf(dst, "0x%016x", m.Entry)
		case ColumnOffset:
			dst = fmt.Appendf(dst, "0x%016x", m.Offset)
		case ColumnChecksum:
			dst = fmt.Appendf(dst, "0x%08x", m.Checksum)
		case ColumnTimestamp:
			dst = fmt.Appendf(dst, "0x%08x", m.Timestamp)
		case ColumnPath:
			dst = append(dst, m.Path...)
		}
	}

	return append(dst, '\n')
}

// ParseLegacyRow decodes a row of an unversioned module table. Rows use the
// Windows v2 order unless the checksum and timestamp fields are not hex, in
// which case the Linux v2 order is assumed.
//
// Returns:
//   - trace.Module: the decoded module
//   - bool: true when the Windows layout matched
//   - error: the Linux layout's error when neither layout fits
func ParseLegacyRow(line string) (trace.Module, bool, error) {
	win := legacyWindows()
	fields := strings.SplitN(line, ",", win.Len())
	if len(fields) == win.Len() && isHex(fields[win.checksum]) && isHex(fields[win.timestamp]) {
		m, err := win.ParseRow(line)
		if err == nil {
			return m, true, nil
		}
	}

	m, err := DefaultColumns(format.ModuleTableV2).ParseRow(line)

	return m, false, err
}

func legacyWindows() *Columns {
	return DefaultColumns(format.ModuleTableLegacy)
}

func parseHexField(fields []string, pos int, name string, bits int) (uint64, error) {
	if pos == absent {
		return 0, nil
	}

	v, err := parseHex(fields[pos], bits)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", errs.ErrMalformedTrace, name, fields[pos])
	}

	return v, nil
}

func parseHex(s string, bits int) (uint64, error) {
	s = strings.TrimSpace(s)
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}

	return strconv.ParseUint(s, 16, bits)
}

func isHex(s string) bool {
	_, err := parseHex(s, 64)
	return err == nil
}

func (c *Columns) lookup(name string) int {
	if i, ok := c.index[name]; ok {
		return i
	}

	return absent
}
