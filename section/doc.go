// Package section defines the text and binary structures that make up a DrCov
// file.
//
// A DrCov file is a sequence of sections, each opened by a text line:
//
//	DRCOV VERSION: 2
//	DRCOV FLAVOR: drcov-hits
//	Module Table: version 2, count 1
//	Columns: id, base, end, entry, path
//	 0, 0x0000000000400000, 0x0000000000402000, 0x0000000000000000, /bin/prog
//	BB Table: 3 bbs
//	<3 × 8 bytes of packed block entries>
//	Hit Count Table: version 1, count 3
//	<3 × 4 bytes of little-endian hit counts>
//
// # Module Tables
//
// Legacy files write "Module Table: <count>" with no Columns: line and use
// the Windows v2 column order; rows whose checksum and timestamp fields are
// not hex fall back to the Linux v2 order. Modern files name their columns,
// and Columns maps each name to its position once per table:
//
//	Version | Linux columns                                       | Windows adds
//	--------|-----------------------------------------------------|--------------------
//	2       | id, base, end, entry, path                          | checksum, timestamp
//	3       | id, containing_id, start, end, entry, path          | checksum, timestamp
//	4       | id, containing_id, start, end, entry, offset, path  | checksum, timestamp
//
// Address-like columns are hex with an optional 0x prefix; id and
// containing_id are decimal. The path column is always last and may contain
// commas.
//
// # Block Entries
//
// BlockEntry (8 bytes):
//
//	Bytes | Field    | Type
//	------|----------|-------
//	0-3   | Start    | uint32 (offset from module base)
//	4-5   | Size     | uint16
//	6-7   | ModuleID | uint16
//
// DrCov is little-endian on every platform, so the entries are decoded with
// encoding/binary.LittleEndian directly.
//
// # Hit Count Table
//
// The optional hit count table follows the BB table. Its count must equal the
// BB table count; older readers stop after the BB table and never see it.
package section
