package trace

import "fmt"

// BasicBlock is one recorded coverage unit.
type BasicBlock struct {
	// ModuleID references a Module in the same trace.
	ModuleID uint16
	// Offset is the start of the block relative to its module's base.
	Offset uint32
	// Size is the block length in bytes; 1 when unknown.
	Size uint16
}

// AbsoluteAddress returns module.Base + Offset. The caller supplies the
// module the block references.
func (b BasicBlock) AbsoluteAddress(m Module) (uint64, error) {
	if m.ID != b.ModuleID {
		return 0, fmt.Errorf("block references module %d, got module %d", b.ModuleID, m.ID)
	}

	return m.Base + uint64(b.Offset), nil
}

func (b BasicBlock) String() string {
	return fmt.Sprintf("BasicBlock{mod:%d, offset:0x%x, size:%d}", b.ModuleID, b.Offset, b.Size)
}
