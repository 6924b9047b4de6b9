package section

// Text markers that open each DrCov section.
const (
	VersionPrefix      = "DRCOV VERSION: "
	FlavorPrefix       = "DRCOV FLAVOR: "
	ModuleTablePrefix  = "Module Table: "
	ColumnsPrefix      = "Columns: "
	BBTablePrefix      = "BB Table: "
	BBTableSuffix      = " bbs"
	HitTablePrefix     = "Hit Count Table: "
	ASCIIBlockHeader   = "module id, start, size:"
	ASCIIBlockRowStart = "module["
)

// sizes of the binary sections
const (
	BlockEntrySize = 8 // packed (start u32, size u16, mod_id u16)
	HitCountSize   = 4 // one little-endian u32 per block

	// HitTableVersion is the only hit count table version writers emit.
	HitTableVersion = 1
	// FileVersion is the DRCOV VERSION writers emit.
	FileVersion = 2
	// ModuleTableWriteVersion is the module table version writers emit.
	ModuleTableWriteVersion = 2
)

// Column names as they appear on the Columns: line.
const (
	ColumnID           = "id"
	ColumnContainingID = "containing_id"
	ColumnBase         = "base"
	ColumnStart        = "start"
	ColumnEnd          = "end"
	ColumnEntry        = "entry"
	ColumnOffset       = "offset"
	ColumnChecksum     = "checksum"
	ColumnTimestamp    = "timestamp"
	ColumnPath         = "path"
)
