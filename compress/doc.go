// Package compress provides whole-file compression codecs for stored traces.
//
// Coverage traces from long fuzzing campaigns are large and highly
// repetitive: the module table repeats the same paths across runs and the BB
// table is dense in small offsets. Archiving them compressed is common, so the
// drcov reader and writer accept a compression type and this package performs
// the container step around the plain DrCov bytes.
//
// # Supported Containers
//
//	Type                   | Format                      | Extension
//	-----------------------|-----------------------------|--------------
//	format.CompressionNone | plain DrCov                 | (any)
//	format.CompressionZstd | Zstandard frame             | .zst, .zstd
//	format.CompressionS2   | S2 stream (reads Snappy)    | .s2
//	format.CompressionLZ4  | LZ4 frame                   | .lz4
//
// Detect recognizes every container by its magic number, so a reader can
// accept compressed input without being told its type.
//
// # Usage
//
//	codec, err := compress.GetCodec(format.CompressionZstd)
//	if err != nil {
//	    return err
//	}
//	packed, err := codec.Compress(raw)
//
// All codecs are stateless values backed by pooled encoders and decoders and
// are safe for concurrent use.
//
// # Build Tags
//
// The gozstd tag replaces the pure Go Zstandard implementation with the cgo
// binding github.com/valyala/gozstd.
package compress
