package section

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/trace"
)

// BlockEntry is one packed BB table record (8 bytes, little-endian).
//
//	Bytes | Field    | Type
//	------|----------|-------
//	0-3   | Start    | uint32
//	4-5   | Size     | uint16
//	6-7   | ModuleID | uint16
type BlockEntry struct {
	Start    uint32
	Size     uint16
	ModuleID uint16
}

// NewBlockEntry converts a model block into its on-disk record.
func NewBlockEntry(b trace.BasicBlock) BlockEntry {
	return BlockEntry{Start: b.Offset, Size: b.Size, ModuleID: b.ModuleID}
}

// Block converts the record into a model block.
func (e BlockEntry) Block() trace.BasicBlock {
	return trace.BasicBlock{ModuleID: e.ModuleID, Offset: e.Start, Size: e.Size}
}

// Parse parses the entry from exactly BlockEntrySize bytes.
func (e *BlockEntry) Parse(data []byte) error {
	if len(data) != BlockEntrySize {
		return fmt.Errorf("%w: block entry needs %d bytes, got %d", errs.ErrTruncatedBinary, BlockEntrySize, len(data))
	}

	e.Start = binary.LittleEndian.Uint32(data[0:4])
	e.Size = binary.LittleEndian.Uint16(data[4:6])
	e.ModuleID = binary.LittleEndian.Uint16(data[6:8])

	return nil
}

// Bytes serializes the entry into a new slice.
func (e BlockEntry) Bytes() []byte {
	b := make([]byte, BlockEntrySize)
	e.WriteToSlice(b, 0)

	return b
}

// WriteToSlice writes the entry into data at offset without allocating.
// The caller guarantees data has room for BlockEntrySize bytes.
//
// Returns the offset just past the written entry.
func (e BlockEntry) WriteToSlice(data []byte, offset int) int {
	binary.LittleEndian.PutUint32(data[offset:], e.Start)
	binary.LittleEndian.PutUint16(data[offset+4:], e.Size)
	binary.LittleEndian.PutUint16(data[offset+6:], e.ModuleID)

	return offset + BlockEntrySize
}

// ParseASCIIBlockRow parses a text-mode BB table row such as
// "module[  4]: 0x0000000000001234,   8".
func ParseASCIIBlockRow(line string) (BlockEntry, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), ASCIIBlockRowStart)
	if !ok {
		return BlockEntry{}, fmt.Errorf("%w: invalid bb row %q", errs.ErrMalformedTrace, line)
	}

	idStr, rest, ok := strings.Cut(rest, "]:")
	if !ok {
		return BlockEntry{}, fmt.Errorf("%w: invalid bb row %q", errs.ErrMalformedTrace, line)
	}
	startStr, sizeStr, ok := strings.Cut(rest, ",")
	if !ok {
		return BlockEntry{}, fmt.Errorf("%w: invalid bb row %q", errs.ErrMalformedTrace, line)
	}

	id, err := strconv.ParseUint(strings.TrimSpace(idStr), 10, 16)
	if err != nil {
		return BlockEntry{}, fmt.Errorf("%w: invalid bb module id %q", errs.ErrMalformedTrace, idStr)
	}
	start, err := parseHex(startStr, 32)
	if err != nil {
		return BlockEntry{}, fmt.Errorf("%w: invalid bb start %q", errs.ErrMalformedTrace, startStr)
	}
	size, err := strconv.ParseUint(strings.TrimSpace(sizeStr), 10, 16)
	if err != nil {
		return BlockEntry{}, fmt.Errorf("%w: invalid bb size %q", errs.ErrMalformedTrace, sizeStr)
	}

	return BlockEntry{Start: uint32(start), Size: uint16(size), ModuleID: uint16(id)}, nil
}
