// Package drcov reads and writes DrCov coverage files.
//
// The reader accepts every documented variant: legacy and modern module table
// headers, column layouts from version 2 to 4 on Windows and Linux, packed or
// ASCII BB tables, and an optional hit count table regardless of the flavor
// string. The writer always emits the canonical modern layout:
//
//	DRCOV VERSION: 2
//	DRCOV FLAVOR: drcov-hits
//	Module Table: version 2, count 1
//	Columns: id, base, end, entry, path
//	 0, 0x0000000000400000, 0x0000000000402000, 0x0000000000000000, /bin/prog
//	BB Table: 2 bbs
//	<packed entries>
//	Hit Count Table: version 1, count 2
//	<packed u32 counts>
//
// Loading a file in this layout and storing it again is byte-identical.
//
// Structural failures are reported as *errs.SectionError naming the section
// and wrapping a sentinel from package errs:
//
//	t, err := drcov.ReadFile("run.drcov")
//	if errors.Is(err, errs.ErrCountMismatch) {
//	    // hit table disagrees with the BB table
//	}
//
// Compressed containers (zstd, s2, lz4) are handled transparently: the reader
// detects them by magic number and the file helpers also honor the file
// extension.
package drcov
