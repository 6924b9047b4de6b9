package lift

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/trace"
)

func mustDefs(t *testing.T, defs ...string) []ModuleDef {
	t.Helper()
	mods, err := ParseModuleDefs(defs)
	require.NoError(t, err)

	return mods
}

func liftString(t *testing.T, input string, mods []ModuleDef, opts ...Option) *Result {
	t.Helper()
	res, err := Lift(strings.NewReader(input), mods, opts...)
	require.NoError(t, err)

	return res
}

func TestParseModuleDefs(t *testing.T) {
	t.Run("Forms", func(t *testing.T) {
		mods := mustDefs(t, "boombox@0x140000000", "libc@7f0000", "bare")
		require.Equal(t, []ModuleDef{
			{Name: "boombox", Base: 0x140000000},
			{Name: "libc", Base: 0x7f0000},
			{Name: "bare", Base: 0},
		}, mods)
		require.Equal(t, "boombox@0x140000000", mods[0].String())
	})

	t.Run("RedefinitionKeepsPosition", func(t *testing.T) {
		mods := mustDefs(t, "a@1000", "b@2000", "a@3000")
		require.Equal(t, []ModuleDef{{Name: "a", Base: 0x3000}, {Name: "b", Base: 0x2000}}, mods)
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, def := range []string{"@1000", "a@", "a@0xzz", "  "} {
			_, err := ParseModuleDefs([]string{def})
			require.ErrorIs(t, err, errs.ErrMalformedLine, def)
		}
	})
}

func TestLiftMixedGrammars(t *testing.T) {
	res := liftString(t, "boombox+3a06\n14000419c\n", mustDefs(t, "boombox@0x140000000"))
	require.Empty(t, res.Diagnostics)

	tr := res.Trace
	require.Equal(t, 1, tr.NumModules())
	require.Equal(t, 2, tr.NumBlocks())
	require.Equal(t, "boombox", tr.ModuleAt(0).Path)
	require.Equal(t, trace.BasicBlock{ModuleID: 0, Offset: 0x3a06, Size: 1}, tr.Block(0))
	require.Equal(t, trace.BasicBlock{ModuleID: 0, Offset: 0x419c, Size: 1}, tr.Block(1))
	require.Equal(t, uint64(0x140000000+0x419c+1), tr.ModuleAt(0).End)
	require.False(t, tr.HasHitCounts())
	require.Equal(t, Flavor, tr.Header().Flavor)
}

func TestLiftResolvesAcrossModules(t *testing.T) {
	mods := mustDefs(t, "high@0x20000", "low@0x10000")
	res := liftString(t, "0x10010\n0x20020\n0x1fff0\n", mods)
	require.Empty(t, res.Diagnostics)

	tr := res.Trace
	require.Equal(t, "high", tr.ModuleAt(0).Path, "ids follow definition order")
	require.Equal(t, "low", tr.ModuleAt(1).Path)
	require.Equal(t, []trace.BasicBlock{
		{ModuleID: 1, Offset: 0x10, Size: 1},
		{ModuleID: 0, Offset: 0x20, Size: 1},
		{ModuleID: 1, Offset: 0xfff0, Size: 1},
	}, tr.BlockSlice())
	require.Equal(t, uint64(0x10000+0xfff0+1), tr.ModuleAt(1).End)
}

func TestLiftHitCounts(t *testing.T) {
	t.Run("CountsSummed", func(t *testing.T) {
		res := liftString(t, "037fb7c0 24\n0x37fb7d0 1\n037fb7c0 6\n", mustDefs(t, "app@0x3000000"))
		tr := res.Trace
		require.True(t, tr.HasHitCounts())
		require.Equal(t, []uint32{30, 1}, tr.HitCounts())
		require.Equal(t, trace.HitsFlavor(Flavor), tr.Header().Flavor)
	})

	t.Run("RepeatsWithoutCountsCollapse", func(t *testing.T) {
		res := liftString(t, "app+10\napp+20\napp+10\n0x1010\n", mustDefs(t, "app@0x1000"))
		tr := res.Trace
		require.Equal(t, 2, tr.NumBlocks())
		require.False(t, tr.HasHitCounts(), "only address hitcount lines attach counts")
		require.Equal(t, Flavor, tr.Header().Flavor)
	})

	t.Run("Saturates", func(t *testing.T) {
		res := liftString(t, "1000 4294967295\n1000 5\n", mustDefs(t, "app@0x1000"))
		require.Equal(t, []uint32{math.MaxUint32}, res.Trace.HitCounts())
	})

	t.Run("MixedPresenceIsFatal", func(t *testing.T) {
		_, err := Lift(strings.NewReader("1000 3\napp+4\n"), mustDefs(t, "app@0x1000"))
		require.ErrorIs(t, err, errs.ErrMixedHitCountPresence)
	})
}

func TestLiftDiagnostics(t *testing.T) {
	input := strings.Join([]string{
		"# comment",
		"app+10",
		"",
		"nope+10",       // unknown module
		"app+100000000", // offset past 32 bits
		"0x500",         // below every base
		"app+zz",        // bad offset
		"what is this",  // no grammar
		"0x1020",
	}, "\n")

	res := liftString(t, input, mustDefs(t, "app@0x1000"))
	require.Equal(t, 2, res.Trace.NumBlocks())

	type want struct {
		line int
		err  error
	}
	expected := []want{
		{4, errs.ErrUnresolvedAddress},
		{5, errs.ErrUnresolvedAddress},
		{6, errs.ErrUnresolvedAddress},
		{7, errs.ErrMalformedLine},
		{8, errs.ErrMalformedLine},
	}
	require.Len(t, res.Diagnostics, len(expected))
	for i, w := range expected {
		d := res.Diagnostics[i]
		assert.Equal(t, w.line, d.Line, "diagnostic %d", i)
		assert.ErrorIs(t, d, w.err, "diagnostic %d", i)
	}

	var diag Diagnostic
	require.True(t, errors.As(error(res.Diagnostics[0]), &diag))
	require.Contains(t, diag.Error(), "nope+10")
}

func TestLiftOffsetPast32BitsFromAddress(t *testing.T) {
	res := liftString(t, "0x200001000\n", mustDefs(t, "app@0x1000"))
	require.Len(t, res.Diagnostics, 1)
	require.ErrorIs(t, res.Diagnostics[0], errs.ErrUnresolvedAddress)
	require.Equal(t, 0, res.Trace.NumBlocks())
	require.Equal(t, uint64(0x1000), res.Trace.ModuleAt(0).End, "no blocks leaves an empty module")
}

func TestLiftWithGrammar(t *testing.T) {
	mods := mustDefs(t, "app@0x1000")

	res := liftString(t, "app+10\n0x1020\n", mods, WithGrammar(format.GrammarModuleOffset))
	require.Equal(t, 1, res.Trace.NumBlocks())
	require.Len(t, res.Diagnostics, 1)
	require.Equal(t, 2, res.Diagnostics[0].Line)
	require.ErrorIs(t, res.Diagnostics[0], errs.ErrMalformedLine)

	res = liftString(t, "0x1020 2\n", mods, WithGrammar(format.InputLiftAddressHits.Grammar()))
	require.Equal(t, []uint32{2}, res.Trace.HitCounts())

	_, err := Lift(strings.NewReader(""), mods, WithGrammar(format.Grammar(9)))
	require.Error(t, err)
}

func TestLiftOptionsAndErrors(t *testing.T) {
	res := liftString(t, "app+1\n", mustDefs(t, "app@0"), WithFlavor("my_tool"))
	require.Equal(t, "my_tool", res.Trace.Header().Flavor)

	_, err := Lift(strings.NewReader("app+1\n"), nil)
	require.ErrorIs(t, err, errs.ErrModuleNotFound)

	res = liftString(t, "\r\n  0x10  \r\n", mustDefs(t, "app@0"))
	require.Equal(t, 1, res.Trace.NumBlocks())
	require.Equal(t, uint32(0x10), res.Trace.Block(0).Offset)
}

func TestDetectGrammar(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  format.Grammar
		ok    bool
	}{
		{"ModuleOffset", []string{"", "# x", "boombox+3a06"}, format.GrammarModuleOffset, true},
		{"Address", []string{"0x14000419c"}, format.GrammarAddress, true},
		{"AddressHits", []string{"037fb7c0 24"}, format.GrammarAddressHits, true},
		{"SkipsJunk", []string{"junk line here", "1000"}, format.GrammarAddress, true},
		{"Nothing", []string{"", "hello world !"}, format.GrammarAuto, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectGrammar(tt.lines)
			require.Equal(t, tt.ok, ok)
			require.Equal(t, tt.want, got)
		})
	}
}

func BenchmarkLift(b *testing.B) {
	var sb strings.Builder
	for i := range 10000 {
		sb.WriteString("app+")
		sb.WriteString(strconv.FormatUint(uint64(i*16), 16))
		sb.WriteByte('\n')
	}
	input := sb.String()
	mods := []ModuleDef{{Name: "app", Base: 0x400000}}

	b.ReportAllocs()
	for b.Loop() {
		if _, err := Lift(strings.NewReader(input), mods); err != nil {
			b.Fatal(err)
		}
	}
}
