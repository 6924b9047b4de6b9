package drcov

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/redthing1/covtool/errs"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/section"
	"github.com/redthing1/covtool/trace"
)

func packBlocks(entries ...section.BlockEntry) []byte {
	out := make([]byte, len(entries)*section.BlockEntrySize)
	off := 0
	for _, e := range entries {
		off = e.WriteToSlice(out, off)
	}

	return out
}

func packHits(hits ...uint32) []byte {
	out := make([]byte, len(hits)*section.HitCountSize)
	for i, h := range hits {
		binary.LittleEndian.PutUint32(out[i*4:], h)
	}

	return out
}

func file(parts ...any) []byte {
	var buf bytes.Buffer
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			buf.WriteString(v)
		case []byte:
			buf.Write(v)
		}
	}

	return buf.Bytes()
}

const scenarioText = "DRCOV VERSION: 2\n" +
	"DRCOV FLAVOR: drcov-hits\n" +
	"Module Table: version 2, count 1\n" +
	"Columns: id, base, end, entry, path\n" +
	" 0, 0x0000000000400000, 0x0000000000401fff, 0x0000000000000000, /a\n" +
	"BB Table: 3 bbs\n"

var scenarioBlocks = []section.BlockEntry{
	{Start: 0x1100, Size: 10, ModuleID: 0},
	{Start: 0x110a, Size: 5, ModuleID: 0},
	{Start: 0x110f, Size: 22, ModuleID: 0},
}

func scenarioFile() []byte {
	return file(scenarioText, packBlocks(scenarioBlocks...),
		"Hit Count Table: version 1, count 3\n", packHits(1, 150, 149))
}

func requireSection(t *testing.T, err error, sec string, target error) {
	t.Helper()

	require.ErrorIs(t, err, target)
	var se *errs.SectionError
	require.True(t, errors.As(err, &se), "want *errs.SectionError, got %T", err)
	require.Equal(t, sec, se.Section)
}

func TestDecode_HitCountScenario(t *testing.T) {
	data := scenarioFile()

	tr, err := Decode(data)
	require.NoError(t, err)

	require.Equal(t, trace.Header{Version: 2, Flavor: "drcov-hits"}, tr.Header())
	require.Equal(t, 1, tr.NumModules())
	require.Equal(t, 3, tr.NumBlocks())
	require.True(t, tr.HasHitCounts())
	require.Equal(t, []uint32{1, 150, 149}, tr.HitCounts())
	require.Equal(t, uint64(0x401100), tr.AbsoluteAddress(0))
	require.Equal(t, trace.BasicBlock{ModuleID: 0, Offset: 0x110f, Size: 22}, tr.Block(2))

	layout := tr.Layout()
	require.Equal(t, format.ModuleTableV2, layout.ModuleTable)
	require.Equal(t, format.BlockEncodingBinary, layout.Blocks)
	require.Equal(t, []string{"id", "base", "end", "entry", "path"}, layout.Columns)

	out, err := Encode(tr)
	require.NoError(t, err)
	require.Equal(t, data, out, "canonical layout round trips byte for byte")
}

func TestDecode_EmptyFlavor(t *testing.T) {
	text := strings.Replace(scenarioText, "DRCOV FLAVOR: drcov-hits\n", "DRCOV FLAVOR:\n", 1)
	data := file(text, packBlocks(scenarioBlocks...))

	tr, err := Decode(data)
	require.NoError(t, err)
	require.Empty(t, tr.Header().Flavor)
	require.Equal(t, 3, tr.NumBlocks())

	out, err := Encode(tr)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\n")), "empty flavor falls back to the default")

	again, err := Decode(out)
	require.NoError(t, err)
	require.Equal(t, trace.FlavorStandard, again.Header().Flavor)
	require.Equal(t, tr.BlockSlice(), again.BlockSlice())
	require.Equal(t, tr.ModuleSlice(), again.ModuleSlice())
}

func TestDecode_HitTable(t *testing.T) {
	t.Run("count mismatch", func(t *testing.T) {
		data := file(scenarioText, packBlocks(scenarioBlocks...),
			"Hit Count Table: version 1, count 4\n", packHits(1, 2, 3, 4))

		_, err := Decode(data)
		requireSection(t, err, errs.SectionHitTable, errs.ErrCountMismatch)
	})

	t.Run("truncated counts", func(t *testing.T) {
		data := file(scenarioText, packBlocks(scenarioBlocks...),
			"Hit Count Table: version 1, count 3\n", packHits(1, 2)[:7])

		_, err := Decode(data)
		requireSection(t, err, errs.SectionHitTable, errs.ErrTruncatedBinary)
	})

	t.Run("absent at end of file", func(t *testing.T) {
		tr, err := Decode(file(scenarioText, packBlocks(scenarioBlocks...)))
		require.NoError(t, err)
		require.False(t, tr.HasHitCounts())
		require.Equal(t, uint32(1), tr.HitCount(0))
	})

	t.Run("unrelated trailing line ignored", func(t *testing.T) {
		tr, err := Decode(file(scenarioText, packBlocks(scenarioBlocks...), "Debug Section: 1\n"))
		require.NoError(t, err)
		require.False(t, tr.HasHitCounts())
	})

	t.Run("present regardless of flavor", func(t *testing.T) {
		text := strings.Replace(scenarioText, "drcov-hits", "drcov", 1)
		tr, err := Decode(file(text, packBlocks(scenarioBlocks...),
			"Hit Count Table: version 1, count 3\n", packHits(7, 8, 9)))
		require.NoError(t, err)
		require.Equal(t, []uint32{7, 8, 9}, tr.HitCounts())
		require.Equal(t, "drcov", tr.Header().Flavor)
	})
}

func TestDecode_StructuralErrors(t *testing.T) {
	t.Run("unknown header line", func(t *testing.T) {
		_, err := Decode([]byte("NOT A DRCOV FILE\n"))
		requireSection(t, err, errs.SectionHeader, errs.ErrUnknownHeaderLine)

		var se *errs.SectionError
		require.ErrorAs(t, err, &se)
		require.Equal(t, 1, se.Line)
	})

	t.Run("empty input", func(t *testing.T) {
		_, err := Decode(nil)
		requireSection(t, err, errs.SectionHeader, errs.ErrUnknownHeaderLine)
	})

	t.Run("truncated bb table", func(t *testing.T) {
		data := file(scenarioText, packBlocks(scenarioBlocks...)[:20])
		_, err := Decode(data)
		requireSection(t, err, errs.SectionBBTable, errs.ErrTruncatedBinary)
	})

	t.Run("dangling module reference", func(t *testing.T) {
		data := file(scenarioText, packBlocks(
			section.BlockEntry{Start: 1, Size: 1, ModuleID: 0},
			section.BlockEntry{Start: 2, Size: 1, ModuleID: 5},
			section.BlockEntry{Start: 3, Size: 1, ModuleID: 0},
		))
		_, err := Decode(data)
		requireSection(t, err, errs.SectionBBTable, errs.ErrDanglingModuleReference)
	})

	t.Run("missing required column", func(t *testing.T) {
		data := strings.Replace(scenarioText, "Columns: id, base, end, entry, path", "Columns: id, base, entry, path", 1)
		_, err := Decode([]byte(data))
		requireSection(t, err, errs.SectionModuleTable, errs.ErrMalformedTrace)
	})

	t.Run("too few module rows", func(t *testing.T) {
		data := "DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\nModule Table: version 2, count 2\n" +
			"Columns: id, base, end, entry, path\n 0, 0x0, 0x10, 0x0, /a\n"
		_, err := Decode([]byte(data))
		requireSection(t, err, errs.SectionModuleTable, errs.ErrMalformedTrace)
	})

	t.Run("duplicate module id", func(t *testing.T) {
		data := "DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\nModule Table: version 2, count 2\n" +
			"Columns: id, base, end, entry, path\n 0, 0x0, 0x10, 0x0, /a\n 0, 0x10, 0x20, 0x0, /b\nBB Table: 0 bbs\n"
		_, err := Decode([]byte(data))
		requireSection(t, err, errs.SectionModuleTable, errs.ErrMalformedTrace)
	})
}

func TestDecode_ModuleTableLayouts(t *testing.T) {
	bbs := packBlocks(section.BlockEntry{Start: 0x10, Size: 4, ModuleID: 1})

	t.Run("legacy windows", func(t *testing.T) {
		data := file("DRCOV VERSION: 1\nDRCOV FLAVOR: drcov\nModule Table: 2\n",
			" 0, 0x00007ff600000000, 0x00007ff600010000, 0x00007ff600001000, 5a3c1f00, 5e8f2a11, C:\\app\\prog.exe\n",
			" 1, 0x00007ffa00000000, 0x00007ffa00200000, 0x00007ffa00001000, 00ab12cd, 5e8f2a12, C:\\Windows\\System32\\ntdll.dll\n",
			"BB Table: 1 bbs\n", bbs)

		tr, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, format.ModuleTableLegacy, tr.Layout().ModuleTable)
		m, ok := tr.Module(1)
		require.True(t, ok)
		require.Equal(t, uint32(0x00ab12cd), m.Checksum)
		require.Equal(t, "ntdll.dll", m.Name())
		require.Equal(t, uint64(0x7ffa00000010), tr.AbsoluteAddress(0))
	})

	t.Run("legacy linux", func(t *testing.T) {
		data := file("DRCOV VERSION: 1\nDRCOV FLAVOR: drcov\nModule Table: 2\n",
			" 0, 0x400000, 0x401000, 0x400100, /bin/prog\n",
			" 1, 0x7f0000000000, 0x7f0000100000, 0x7f0000001000, /lib/libc.so\n",
			"BB Table: 1 bbs\n", bbs)

		tr, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, []string{"id", "base", "end", "entry", "path"}, tr.Layout().Columns)
		require.Equal(t, "/lib/libc.so", tr.ModuleAt(1).Path)
	})

	t.Run("v3 segmented module", func(t *testing.T) {
		data := file("DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\nModule Table: version 3, count 2\n",
			"Columns: id, containing_id, start, end, entry, path\n",
			" 0,  0, 0x400000, 0x402000, 0x400100, /bin/prog\n",
			" 1,  0, 0x401000, 0x403000, 0x0, /bin/prog\n",
			"BB Table: 1 bbs\n", bbs)

		tr, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, format.ModuleTableV3, tr.Layout().ModuleTable)
		require.False(t, tr.ModuleAt(0).HasContainingID())
		require.Equal(t, int32(0), tr.ModuleAt(1).ContainingID)
		require.Empty(t, tr.Overlaps())
	})

	t.Run("v4 windows columns", func(t *testing.T) {
		data := file("DRCOV VERSION: 3\nDRCOV FLAVOR: drcov\nModule Table: version 4, count 2\n",
			"Columns: id, containing_id, start, end, entry, offset, checksum, timestamp, path\n",
			" 0,  0, 0x140000000, 0x140100000, 0x140001000, 0x0, 0x12345678, 0x5e8f2a11, C:\\app,with,commas.exe\n",
			" 1,  1, 0x7ffa00000000, 0x7ffa00200000, 0x0, 0x1000, 0x0, 0x0, C:\\Windows\\System32\\ntdll.dll\n",
			"BB Table: 1 bbs\n", bbs)

		tr, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, format.ModuleTableV4, tr.Layout().ModuleTable)
		require.Equal(t, `C:\app,with,commas.exe`, tr.ModuleAt(0).Path)
		require.Equal(t, uint64(0x1000), tr.ModuleAt(1).Offset)
		require.Equal(t, uint32(0x12345678), tr.ModuleAt(0).Checksum)
	})

	t.Run("modern table without columns line", func(t *testing.T) {
		data := file("DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\nModule Table: version 2, count 2\n",
			" 0, 0x400000, 0x401000, 0x0, /bin/prog\n",
			" 1, 0x500000, 0x501000, 0x0, /bin/lib\n",
			"BB Table: 1 bbs\n", bbs)

		tr, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, "/bin/lib", tr.ModuleAt(1).Path)
	})

	t.Run("crlf text lines", func(t *testing.T) {
		data := file("DRCOV VERSION: 2\r\nDRCOV FLAVOR: drcov\r\nModule Table: version 2, count 2\r\n",
			"Columns: id, base, end, entry, path\r\n",
			" 0, 0x400000, 0x401000, 0x0, /bin/prog\r\n",
			" 1, 0x500000, 0x501000, 0x0, /bin/lib\r\n",
			"BB Table: 1 bbs\r\n", bbs)

		tr, err := Decode(data)
		require.NoError(t, err)
		require.Equal(t, "drcov", tr.Header().Flavor)
		require.Equal(t, "/bin/lib", tr.ModuleAt(1).Path)
	})
}

func TestDecode_ASCIIBlockTable(t *testing.T) {
	data := "DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\nModule Table: version 2, count 1\n" +
		"Columns: id, base, end, entry, path\n 0, 0x400000, 0x500000, 0x0, /bin/prog\n" +
		"BB Table: 2 bbs\nmodule id, start, size:\n" +
		"module[  0]: 0x0000000000001234,   8\n" +
		"module[  0]: 0x0000000000002000,  16\n"

	tr, err := Decode([]byte(data))
	require.NoError(t, err)
	require.Equal(t, format.BlockEncodingASCII, tr.Layout().Blocks)
	require.Equal(t, []trace.BasicBlock{{ModuleID: 0, Offset: 0x1234, Size: 8}, {ModuleID: 0, Offset: 0x2000, Size: 16}}, tr.BlockSlice())

	out, err := Encode(tr)
	require.NoError(t, err)
	back, err := Decode(out)
	require.NoError(t, err)
	require.Equal(t, format.BlockEncodingBinary, back.Layout().Blocks)
	require.Equal(t, tr.BlockSlice(), back.BlockSlice())
}

func TestInclusiveEnd(t *testing.T) {
	data := file("DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\nModule Table: version 2, count 1\n",
		"Columns: id, base, end, entry, path\n 0, 0x0000000000400000, 0x0000000000400fff, 0x0000000000000000, /a\n",
		"BB Table: 0 bbs\n")

	tr, err := Decode(data, WithInclusiveEnd())
	require.NoError(t, err)
	require.Equal(t, uint64(0x401000), tr.ModuleAt(0).End)
	require.True(t, tr.Layout().EndInclusive)

	out, err := Encode(tr, WithInclusiveEnd())
	require.NoError(t, err)
	require.Equal(t, data, out)
}

func TestEncode_Flavor(t *testing.T) {
	boolean, err := trace.NewBuilder().
		SetFlavor("drcov-hits").
		AddModule("/a", 0x1000, 0x2000).
		AddBlock(0, 0x10, 4).
		Build()
	require.NoError(t, err)

	out, err := Encode(boolean)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("DRCOV VERSION: 2\nDRCOV FLAVOR: drcov\n")))
	require.NotContains(t, string(out), "Hit Count Table")

	hits, err := trace.NewBuilder().
		AddModule("/a", 0x1000, 0x2000).
		AddBlockWithHits(0, 0x10, 4, 42).
		Build()
	require.NoError(t, err)

	out, err = Encode(hits, WithFlavor("fuzzer"))
	require.NoError(t, err)
	require.Contains(t, string(out), "DRCOV FLAVOR: fuzzer-hits\n")
	require.Contains(t, string(out), "Hit Count Table: version 1, count 1\n")
}

func TestEncode_OptionalColumns(t *testing.T) {
	tr, err := trace.NewBuilder().
		AddModuleEntry(trace.Module{Path: "/bin/prog", Base: 0x400000, End: 0x402000, ContainingID: trace.NoContainingID, Timestamp: 0x5e8f2a11}).
		AddModuleEntry(trace.Module{Path: "/bin/prog", Base: 0x401000, End: 0x403000, ContainingID: 0, Offset: 0x1000}).
		AddBlock(1, 0x20, 2).
		Build()
	require.NoError(t, err)

	out, err := Encode(tr)
	require.NoError(t, err)
	require.Contains(t, string(out), "Columns: id, containing_id, base, end, entry, offset, timestamp, path\n")

	back, err := Decode(out)
	require.NoError(t, err)
	require.Equal(t, tr.ModuleSlice(), back.ModuleSlice())

	again, err := Encode(back)
	require.NoError(t, err)
	require.Equal(t, out, again)
}

func TestCompressedRoundTrip(t *testing.T) {
	data := scenarioFile()
	tr, err := Decode(data)
	require.NoError(t, err)

	for _, ct := range []format.CompressionType{format.CompressionZstd, format.CompressionS2, format.CompressionLZ4} {
		t.Run(ct.String(), func(t *testing.T) {
			packed, err := Encode(tr, WithCompression(ct))
			require.NoError(t, err)
			require.NotEqual(t, data, packed)

			back, err := Decode(packed)
			require.NoError(t, err, "container detected by magic")
			require.Equal(t, tr.HitCounts(), back.HitCounts())

			plain, err := Encode(back)
			require.NoError(t, err)
			require.Equal(t, data, plain)
		})
	}

	t.Run("invalid compression option", func(t *testing.T) {
		_, err := Encode(tr, WithCompression(format.CompressionType(42)))
		require.ErrorIs(t, err, errs.ErrInvalidCompression)
	})
}

func TestFiles(t *testing.T) {
	dir := t.TempDir()
	tr, err := Decode(scenarioFile())
	require.NoError(t, err)

	t.Run("atomic write leaves no temp files", func(t *testing.T) {
		path := filepath.Join(dir, "out.drcov")
		require.NoError(t, WriteFile(path, tr))
		require.NoError(t, WriteFile(path, tr))

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "out.drcov", entries[0].Name())

		onDisk, err := os.ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, scenarioFile(), onDisk)

		back, err := ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, tr.BlockSlice(), back.BlockSlice())
	})

	t.Run("extension selects compression", func(t *testing.T) {
		path := filepath.Join(dir, "out.drcov.lz4")
		require.NoError(t, WriteFile(path, tr))

		raw, err := os.ReadFile(path)
		require.NoError(t, err)
		require.False(t, bytes.HasPrefix(raw, []byte("DRCOV")))

		back, err := ReadFile(path)
		require.NoError(t, err)
		require.Equal(t, tr.HitCounts(), back.HitCounts())
	})

	t.Run("missing directory", func(t *testing.T) {
		err := WriteFile(filepath.Join(dir, "nope", "out.drcov"), tr)
		require.Error(t, err)
	})

	t.Run("read errors name the file", func(t *testing.T) {
		path := filepath.Join(dir, "bad.drcov")
		require.NoError(t, os.WriteFile(path, []byte("garbage\n"), 0o644))

		_, err := ReadFile(path)
		require.ErrorIs(t, err, errs.ErrUnknownHeaderLine)
		require.Contains(t, err.Error(), "bad.drcov")
	})

	t.Run("reader and writer streams", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, Write(&buf, tr))

		back, err := Read(&buf)
		require.NoError(t, err)
		require.Equal(t, 3, back.NumBlocks())
	})
}

func BenchmarkDecode(b *testing.B) {
	builder := trace.NewBuilder().AddModule("/bin/prog", 0x400000, 0x500000)
	for i := range 100_000 {
		builder.AddBlockWithHits(0, uint32(i*16), 16, uint32(i))
	}
	tr, _ := builder.Build()
	data, _ := Encode(tr)

	b.SetBytes(int64(len(data)))
	for b.Loop() {
		_, _ = Decode(data)
	}
}

func BenchmarkEncode(b *testing.B) {
	builder := trace.NewBuilder().AddModule("/bin/prog", 0x400000, 0x500000)
	for i := range 100_000 {
		builder.AddBlockWithHits(0, uint32(i*16), 16, uint32(i))
	}
	tr, _ := builder.Build()

	for b.Loop() {
		_, _ = Encode(tr)
	}
}
