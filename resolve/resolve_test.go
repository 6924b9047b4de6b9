package resolve

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/trace"
)

func mod(id uint16, base, end uint64) trace.Module {
	return trace.Module{ID: id, Base: base, End: end, Path: "/m", ContainingID: trace.NoContainingID}
}

func TestResolve(t *testing.T) {
	r := New([]trace.Module{
		mod(2, 0x7f0000, 0x7f1000),
		mod(0, 0x400000, 0x402000),
		mod(1, 0x500000, 0x500000), // zero-sized
	})

	tests := []struct {
		name   string
		addr   uint64
		ok     bool
		id     uint16
		offset uint64
	}{
		{"below all", 0x1000, false, 0, 0},
		{"module base", 0x400000, true, 0, 0},
		{"inside", 0x401100, true, 0, 0x1100},
		{"end is exclusive", 0x402000, false, 0, 0},
		{"zero sized never contains", 0x500000, false, 0, 0},
		{"last module", 0x7f0fff, true, 2, 0xfff},
		{"above all", math.MaxUint64, false, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, ok := r.Resolve(tt.addr)
			require.Equal(t, tt.ok, ok)
			if ok {
				require.Equal(t, tt.id, res.ModuleID)
				require.Equal(t, tt.offset, res.Offset)
				require.False(t, res.Ambiguous)
			}
		})
	}
}

func TestResolve_Overlap(t *testing.T) {
	t.Run("unlinked overlap picks first and reports", func(t *testing.T) {
		r := New([]trace.Module{
			mod(0, 0x1000, 0x3000),
			mod(1, 0x2000, 0x4000),
		})

		res, ok := r.Resolve(0x2500)
		require.True(t, ok)
		require.Equal(t, uint16(0), res.ModuleID)
		require.Equal(t, uint64(0x1500), res.Offset)
		require.True(t, res.Ambiguous)
		require.Equal(t, []uint16{0, 1}, res.Candidates)

		require.Equal(t, []trace.Overlap{{First: 0, Second: 1}}, r.Overlaps())
	})

	t.Run("wide early module still found", func(t *testing.T) {
		r := New([]trace.Module{
			mod(0, 0x1000, 0x10000),
			mod(1, 0x2000, 0x3000),
			mod(2, 0x4000, 0x5000),
		})

		res, ok := r.Resolve(0x8000)
		require.True(t, ok)
		require.Equal(t, uint16(0), res.ModuleID)
	})

	t.Run("linked segments are not ambiguous", func(t *testing.T) {
		seg := mod(1, 0x2000, 0x4000)
		seg.ContainingID = 0
		r := New([]trace.Module{mod(0, 0x1000, 0x3000), seg})

		res, ok := r.Resolve(0x2500)
		require.True(t, ok)
		require.Equal(t, uint16(0), res.ModuleID)
		require.False(t, res.Ambiguous)
		require.Empty(t, r.Overlaps())
	})

	t.Run("equal bases keep table order", func(t *testing.T) {
		r := New([]trace.Module{mod(5, 0x1000, 0x2000), mod(3, 0x1000, 0x2000)})

		res, ok := r.Resolve(0x1000)
		require.True(t, ok)
		require.Equal(t, uint16(5), res.ModuleID)
	})
}

func TestUnresolve(t *testing.T) {
	r := New([]trace.Module{mod(0, 0x400000, 0x401000), mod(1, math.MaxUint64-0x10, math.MaxUint64)})

	addr, err := r.Unresolve(0, 0x10)
	require.NoError(t, err)
	require.Equal(t, uint64(0x400010), addr)

	addr, err = r.Unresolve(0, 0x5000)
	require.NoError(t, err, "no range check against End")
	require.Equal(t, uint64(0x405000), addr)

	_, err = r.Unresolve(9, 0)
	require.ErrorIs(t, err, errs.ErrModuleNotFound)

	_, err = r.Unresolve(1, 0x20)
	require.ErrorIs(t, err, errs.ErrAddressOverflow)
}

func TestRoundTrip(t *testing.T) {
	tr, err := trace.NewBuilder().
		AddModule("/a", 0x400000, 0x500000).
		AddModule("/b", 0x600000, 0x700000).
		AddBlock(0, 0x1234, 4).
		AddBlock(1, 0xff, 4).
		Build()
	require.NoError(t, err)

	r := New(tr.ModuleSlice())
	require.Equal(t, 2, r.Len())
	for i, b := range tr.Blocks() {
		res, ok := r.Resolve(tr.AbsoluteAddress(i))
		require.True(t, ok)
		require.Equal(t, b.ModuleID, res.ModuleID)
		require.Equal(t, uint64(b.Offset), res.Offset)

		addr, err := r.Unresolve(res.ModuleID, res.Offset)
		require.NoError(t, err)
		require.Equal(t, tr.AbsoluteAddress(i), addr)
	}
}

func BenchmarkResolve(b *testing.B) {
	mods := make([]trace.Module, 0, 512)
	for i := range 512 {
		mods = append(mods, mod(uint16(i), uint64(i)*0x100000, uint64(i)*0x100000+0x80000))
	}
	r := New(mods)

	for b.Loop() {
		_, _ = r.Resolve(0x12345678)
	}
}
