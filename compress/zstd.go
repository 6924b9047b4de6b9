package compress

// ZstdCompressor provides Zstandard compression for archived trace files.
//
// The pure Go implementation from klauspost/compress is used by default.
// Building with the gozstd tag switches to the cgo binding of the reference
// library.
//
// Example:
//
//	compressor := NewZstdCompressor()
//	compressed, err := compressor.Compress(data)
//	if err != nil {
//		return err
//	}
type ZstdCompressor struct{}

var _ Codec = (*ZstdCompressor)(nil)

// NewZstdCompressor creates a new Zstd compressor with default settings.
func NewZstdCompressor() ZstdCompressor {
	return ZstdCompressor{}
}
