package format

import "strings"

type (
	ModuleTableVersion uint8
	BlockEncoding      uint8
	CompressionType    uint8
	Grammar            uint8
	InputKind          uint8
	SetOp              uint8
)

const (
	ModuleTableLegacy ModuleTableVersion = 0x1 // ModuleTableLegacy is the unversioned "Module Table: <count>" form.
	ModuleTableV2     ModuleTableVersion = 0x2 // ModuleTableV2 has id, base, end, entry[, checksum, timestamp], path.
	ModuleTableV3     ModuleTableVersion = 0x3 // ModuleTableV3 adds containing_id and renames base to start.
	ModuleTableV4     ModuleTableVersion = 0x4 // ModuleTableV4 adds the offset column.

	BlockEncodingBinary BlockEncoding = 0x1 // BlockEncodingBinary is the packed 8-byte entry table.
	BlockEncodingASCII  BlockEncoding = 0x2 // BlockEncodingASCII is the "module[  n]: 0x..., size" text table.

	CompressionNone CompressionType = 0x1 // CompressionNone represents a plain DrCov file.
	CompressionZstd CompressionType = 0x2 // CompressionZstd represents a Zstandard-compressed file.
	CompressionS2   CompressionType = 0x3 // CompressionS2 represents an S2-compressed file.
	CompressionLZ4  CompressionType = 0x4 // CompressionLZ4 represents an LZ4 block-compressed file.

	GrammarAuto         Grammar = 0x0 // GrammarAuto classifies every line on its own.
	GrammarModuleOffset Grammar = 0x1 // GrammarModuleOffset is "name+hexoffset".
	GrammarAddress      Grammar = 0x2 // GrammarAddress is "hexaddress".
	GrammarAddressHits  Grammar = 0x3 // GrammarAddressHits is "hexaddress hitcount".

	InputDrcov            InputKind = 0x1
	InputLiftModuleOffset InputKind = 0x2
	InputLiftAddress      InputKind = 0x3
	InputLiftAddressHits  InputKind = 0x4

	OpUnion               SetOp = 0x1
	OpIntersect           SetOp = 0x2
	OpDifference          SetOp = 0x3
	OpSymmetricDifference SetOp = 0x4
)

func (v ModuleTableVersion) String() string {
	switch v {
	case ModuleTableLegacy:
		return "Legacy"
	case ModuleTableV2:
		return "V2"
	case ModuleTableV3:
		return "V3"
	case ModuleTableV4:
		return "V4"
	default:
		return "Unknown"
	}
}

func (e BlockEncoding) String() string {
	switch e {
	case BlockEncodingBinary:
		return "Binary"
	case BlockEncodingASCII:
		return "ASCII"
	default:
		return "Unknown"
	}
}

func (c CompressionType) String() string {
	switch c {
	case CompressionNone:
		return "None"
	case CompressionZstd:
		return "Zstd"
	case CompressionS2:
		return "S2"
	case CompressionLZ4:
		return "LZ4"
	default:
		return "Unknown"
	}
}

// CompressionFromPath infers the container compression from a file extension.
func CompressionFromPath(path string) CompressionType {
	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zst"), strings.HasSuffix(lower, ".zstd"):
		return CompressionZstd
	case strings.HasSuffix(lower, ".s2"):
		return CompressionS2
	case strings.HasSuffix(lower, ".lz4"):
		return CompressionLZ4
	default:
		return CompressionNone
	}
}

func (g Grammar) String() string {
	switch g {
	case GrammarAuto:
		return "Auto"
	case GrammarModuleOffset:
		return "ModuleOffset"
	case GrammarAddress:
		return "Address"
	case GrammarAddressHits:
		return "AddressHits"
	default:
		return "Unknown"
	}
}

func (k InputKind) String() string {
	switch k {
	case InputDrcov:
		return "drcov-binary"
	case InputLiftModuleOffset:
		return "lift-moduleoffset"
	case InputLiftAddress:
		return "lift-address"
	case InputLiftAddressHits:
		return "lift-address-hits"
	default:
		return "unknown"
	}
}

// ParseInputKind maps a name such as "lift-address" back to its InputKind.
func ParseInputKind(name string) (InputKind, bool) {
	for _, k := range []InputKind{InputDrcov, InputLiftModuleOffset, InputLiftAddress, InputLiftAddressHits} {
		if k.String() == name {
			return k, true
		}
	}

	return 0, false
}

// IsLift reports whether k names one of the line-oriented lift inputs.
func (k InputKind) IsLift() bool {
	return k >= InputLiftModuleOffset && k <= InputLiftAddressHits
}

// Grammar returns the lift grammar for a lift input kind, GrammarAuto otherwise.
func (k InputKind) Grammar() Grammar {
	switch k {
	case InputLiftModuleOffset:
		return GrammarModuleOffset
	case InputLiftAddress:
		return GrammarAddress
	case InputLiftAddressHits:
		return GrammarAddressHits
	default:
		return GrammarAuto
	}
}

func (o SetOp) String() string {
	switch o {
	case OpUnion:
		return "Union"
	case OpIntersect:
		return "Intersect"
	case OpDifference:
		return "Difference"
	case OpSymmetricDifference:
		return "SymmetricDifference"
	default:
		return "Unknown"
	}
}
