package trace

import (
	"fmt"
	"path"
	"strings"
)

// NoContainingID marks a module that carries no containing_id linkage.
const NoContainingID int32 = -1

// Module is one loaded image in a trace's module table.
type Module struct {
	// ID is unique within the module table. BB entries reference modules by
	// a 16-bit id, so ids are 16 bits wide.
	ID uint16
	// Base and End bound the image as a half-open range [Base, End).
	Base uint64
	End  uint64
	// Path is the on-disk path and the cross-trace identity key.
	Path string

	Entry        uint64
	Checksum     uint32
	Timestamp    uint32
	ContainingID int32 // NoContainingID when absent
	Offset       uint64
}

// Size returns End - Base.
func (m Module) Size() uint64 {
	return m.End - m.Base
}

// HasSize reports whether the module's extent is known (End > Base).
func (m Module) HasSize() bool {
	return m.End > m.Base
}

// Contains reports whether addr lies in [Base, End).
func (m Module) Contains(addr uint64) bool {
	return m.Base <= addr && addr < m.End
}

// Name returns the final element of the path. Both '/' and '\' separate
// elements so Windows paths recorded on any host yield the file name.
func (m Module) Name() string {
	p := m.Path
	if i := strings.LastIndexByte(p, '\\'); i >= 0 {
		p = p[i+1:]
	}

	return path.Base(p)
}

// HasContainingID reports whether the module carries containing_id linkage.
func (m Module) HasContainingID() bool {
	return m.ContainingID >= 0
}

// Linked reports whether m and other belong to the same segmented module,
// which makes their address ranges legitimately overlap.
func (m Module) Linked(other Module) bool {
	if m.HasContainingID() && int32(other.ID) == m.ContainingID {
		return true
	}
	if other.HasContainingID() && int32(m.ID) == other.ContainingID {
		return true
	}

	return m.HasContainingID() && m.ContainingID == other.ContainingID
}

// Overlaps reports whether the ranges of m and other intersect.
func (m Module) Overlaps(other Module) bool {
	return m.Base < other.End && other.Base < m.End
}

func (m Module) String() string {
	return fmt.Sprintf("Module{id:%d, range:[0x%x,0x%x), path:%q}", m.ID, m.Base, m.End, m.Path)
}

// Overlap describes two unlinked modules whose address ranges intersect.
type Overlap struct {
	First  uint16
	Second uint16
}

func (o Overlap) String() string {
	return fmt.Sprintf("modules %d and %d overlap without containing_id linkage", o.First, o.Second)
}
