package drcov

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"

	"github.com/redthing1/covtool/compress"
	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/section"
	"github.com/redthing1/covtool/trace"
)

// Decoder parses one serialized DrCov file.
//
// Note: a Decoder is NOT reusable. Create a new one for every input.
type Decoder struct {
	data []byte
	pos  int
	line int // number of text lines consumed so far
	cfg  *Config

	header  section.FileHeader
	layout  trace.Layout
	modules []trace.Module
	blocks  []trace.BasicBlock
	hits    []uint32
}

// NewDecoder prepares a decoder for data, decompressing it first when it is
// wrapped in a known container.
//
// Parameters:
//   - data: Serialized trace, plain or compressed
//   - opts: WithCompression, WithInclusiveEnd
//
// Returns:
//   - *Decoder: Decoder ready for Decode
//   - error: Option or decompression errors
func NewDecoder(data []byte, opts ...Option) (*Decoder, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	ct := cfg.compression
	if !cfg.compressionSet {
		ct = compress.Detect(data)
	}
	if ct != format.CompressionNone {
		codec, err := compress.GetCodec(ct)
		if err != nil {
			return nil, err
		}
		if data, err = codec.Decompress(data); err != nil {
			return nil, fmt.Errorf("%w: %w", errs.ErrInvalidCompression, err)
		}
	}

	return &Decoder{data: data, cfg: cfg}, nil
}

// Decode parses every section and assembles the trace. Any structural failure
// aborts the whole load with a *errs.SectionError.
func (d *Decoder) Decode() (*trace.Trace, error) {
	if err := d.parseHeader(); err != nil {
		return nil, err
	}
	if err := d.parseModuleTable(); err != nil {
		return nil, err
	}
	if err := d.parseBBTable(); err != nil {
		return nil, err
	}
	if err := d.parseHitTable(); err != nil {
		return nil, err
	}

	d.layout.EndInclusive = d.cfg.inclusiveEnd

	t, err := trace.New(trace.Parts{
		Header:    trace.Header{Version: d.header.Version, Flavor: d.header.Flavor},
		Layout:    d.layout,
		Modules:   d.modules,
		Blocks:    d.blocks,
		HitCounts: d.hits,
	})
	if err != nil {
		return nil, &errs.SectionError{Section: errs.SectionModuleTable, Err: err}
	}

	return t, nil
}

// Decode parses a serialized trace in one call.
func Decode(data []byte, opts ...Option) (*trace.Trace, error) {
	d, err := NewDecoder(data, opts...)
	if err != nil {
		return nil, err
	}

	return d.Decode()
}

func (d *Decoder) parseHeader() error {
	line, ok := d.nextLine()
	if !ok {
		return d.fail(errs.SectionHeader, fmt.Errorf("%w: empty input", errs.ErrUnknownHeaderLine))
	}
	if err := d.header.ParseVersionLine(line); err != nil {
		return d.fail(errs.SectionHeader, err)
	}

	line, ok = d.nextLine()
	if !ok {
		return d.fail(errs.SectionHeader, fmt.Errorf("%w: missing flavor line", errs.ErrUnknownHeaderLine))
	}
	if err := d.header.ParseFlavorLine(line); err != nil {
		return d.fail(errs.SectionHeader, err)
	}

	return nil
}

func (d *Decoder) parseModuleTable() error {
	line, ok := d.nextLine()
	if !ok {
		return d.fail(errs.SectionModuleTable, fmt.Errorf("%w: missing module table", errs.ErrMalformedTrace))
	}

	var h section.ModuleTableHeader
	if err := h.Parse(line); err != nil {
		return d.fail(errs.SectionModuleTable, err)
	}
	d.layout.ModuleTable = h.Format()

	var cols *section.Columns
	if !h.IsLegacy() {
		mark, markLine := d.pos, d.line
		next, ok := d.nextLine()
		switch {
		case ok && strings.HasPrefix(next, strings.TrimSpace(section.ColumnsPrefix)):
			c, err := section.ParseColumns(next)
			if err != nil {
				return d.fail(errs.SectionModuleTable, err)
			}
			cols = c
		default:
			d.pos, d.line = mark, markLine
			cols = section.DefaultColumns(h.Format())
		}
		d.layout.Columns = cols.Names()
	}

	d.modules = make([]trace.Module, 0, h.Count)
	for range h.Count {
		row, ok := d.nextLine()
		if !ok {
			return d.fail(errs.SectionModuleTable, fmt.Errorf("%w: expected %d module rows, got %d",
				errs.ErrMalformedTrace, h.Count, len(d.modules)))
		}

		m, err := d.parseModuleRow(cols, row)
		if err != nil {
			return d.fail(errs.SectionModuleTable, err)
		}
		d.modules = append(d.modules, m)
	}

	return nil
}

func (d *Decoder) parseModuleRow(cols *section.Columns, row string) (trace.Module, error) {
	var (
		m   trace.Module
		err error
	)
	if cols != nil {
		m, err = cols.ParseRow(row)
	} else {
		var windows bool
		m, windows, err = section.ParseLegacyRow(row)
		if err == nil && d.layout.Columns == nil {
			if windows {
				d.layout.Columns = section.DefaultColumns(format.ModuleTableLegacy).Names()
			} else {
				d.layout.Columns = section.DefaultColumns(format.ModuleTableV2).Names()
			}
		}
	}
	if err != nil {
		return m, err
	}

	if d.cfg.inclusiveEnd {
		if m.End == math.MaxUint64 {
			return m, fmt.Errorf("%w: module %d inclusive end 0x%x", errs.ErrAddressOverflow, m.ID, m.End)
		}
		m.End++
	}
	if m.End < m.Base {
		return m, fmt.Errorf("%w: module %d end 0x%x below base 0x%x", errs.ErrMalformedTrace, m.ID, m.End, m.Base)
	}

	return m, nil
}

func (d *Decoder) parseBBTable() error {
	line, ok := d.nextLine()
	if !ok {
		return d.fail(errs.SectionBBTable, fmt.Errorf("%w: missing bb table", errs.ErrMalformedTrace))
	}

	var h section.BBTableHeader
	if err := h.Parse(line); err != nil {
		return d.fail(errs.SectionBBTable, err)
	}

	known := make(map[uint16]struct{}, len(d.modules))
	for _, m := range d.modules {
		known[m.ID] = struct{}{}
	}

	d.blocks = make([]trace.BasicBlock, 0, min(h.Count, len(d.data)/section.BlockEntrySize+1))

	if bytes.HasPrefix(d.data[d.pos:], []byte(section.ASCIIBlockHeader)) {
		d.nextLine()
		d.layout.Blocks = format.BlockEncodingASCII
		for range h.Count {
			row, ok := d.nextLine()
			if !ok {
				return d.fail(errs.SectionBBTable, fmt.Errorf("%w: expected %d bb rows, got %d",
					errs.ErrTruncatedBinary, h.Count, len(d.blocks)))
			}
			entry, err := section.ParseASCIIBlockRow(row)
			if err != nil {
				return d.fail(errs.SectionBBTable, err)
			}
			if err := d.addBlock(known, entry); err != nil {
				return err
			}
		}

		return nil
	}
	d.layout.Blocks = format.BlockEncodingBinary

	if h.Count > (len(d.data)-d.pos)/section.BlockEntrySize {
		return &errs.SectionError{Section: errs.SectionBBTable, Err: fmt.Errorf("%w: %d bbs need %d bytes, %d left",
			errs.ErrTruncatedBinary, h.Count, h.PayloadSize(), len(d.data)-d.pos)}
	}

	var entry section.BlockEntry
	for range h.Count {
		if err := entry.Parse(d.data[d.pos : d.pos+section.BlockEntrySize]); err != nil {
			return &errs.SectionError{Section: errs.SectionBBTable, Err: err}
		}
		d.pos += section.BlockEntrySize
		if err := d.addBlock(known, entry); err != nil {
			return err
		}
	}

	return nil
}

func (d *Decoder) addBlock(known map[uint16]struct{}, entry section.BlockEntry) error {
	if _, ok := known[entry.ModuleID]; !ok {
		return &errs.SectionError{Section: errs.SectionBBTable, Err: fmt.Errorf("%w: block %d references module %d",
			errs.ErrDanglingModuleReference, len(d.blocks), entry.ModuleID)}
	}
	d.blocks = append(d.blocks, entry.Block())

	return nil
}

// parseHitTable looks ahead one line. Anything other than a well-formed hit
// count table header leaves the hits absent and consumes nothing.
func (d *Decoder) parseHitTable() error {
	mark, markLine := d.pos, d.line
	line, ok := d.nextLine()
	if !ok {
		return nil
	}

	h, ok := section.ParseHitTableHeader(line)
	if !ok {
		d.pos, d.line = mark, markLine
		return nil
	}

	if h.Count != len(d.blocks) {
		return d.fail(errs.SectionHitTable, fmt.Errorf("%w: %d hit counts for %d bbs",
			errs.ErrCountMismatch, h.Count, len(d.blocks)))
	}
	if h.PayloadSize() > len(d.data)-d.pos {
		return &errs.SectionError{Section: errs.SectionHitTable, Err: fmt.Errorf("%w: %d hit counts need %d bytes, %d left",
			errs.ErrTruncatedBinary, h.Count, h.PayloadSize(), len(d.data)-d.pos)}
	}

	d.hits = make([]uint32, h.Count)
	for i := range d.hits {
		d.hits[i] = binary.LittleEndian.Uint32(d.data[d.pos:])
		d.pos += section.HitCountSize
	}

	return nil
}

// nextLine returns the next '\n'-terminated line without the terminator or a
// trailing '\r'. A final unterminated line is returned as well.
func (d *Decoder) nextLine() (string, bool) {
	if d.pos >= len(d.data) {
		return "", false
	}

	rest := d.data[d.pos:]
	n := bytes.IndexByte(rest, '\n')
	var raw []byte
	if n < 0 {
		raw = rest
		d.pos = len(d.data)
	} else {
		raw = rest[:n]
		d.pos += n + 1
	}
	d.line++

	return string(bytes.TrimSuffix(raw, []byte{'\r'})), true
}

func (d *Decoder) fail(sec string, err error) error {
	return &errs.SectionError{Section: sec, Line: d.line, Err: err}
}
