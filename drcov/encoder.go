package drcov

import (
	"encoding/binary"
	"slices"

	"github.com/redthing1/covtool/compress"
	"github.com/redthing1/covtool/format"
	"github.com/redthing1/covtool/internal/pool"
	"github.com/redthing1/covtool/section"
	"github.com/redthing1/covtool/trace"
)

// Encode serializes t in the canonical modern layout: DRCOV VERSION 2, a
// version 2 module table with an explicit Columns: line, the packed BB table
// and, when t carries hit counts, the hit count table.
//
// Encoding is deterministic; the same trace always yields the same bytes.
//
// Parameters:
//   - t: Trace to serialize
//   - opts: WithFlavor, WithInclusiveEnd, WithCompression
//
// Returns:
//   - []byte: Serialized (and optionally compressed) file contents
//   - error: Option or compression errors
func Encode(t *trace.Trace, opts ...Option) ([]byte, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	bb := pool.GetTraceBuffer()
	defer pool.PutTraceBuffer(bb)

	encodeTo(bb, t, cfg)

	codec, err := compress.GetCodec(cfg.compression)
	if err != nil {
		return nil, err
	}
	// the buffer goes back to the pool, so the result must not alias it
	raw := slices.Clone(bb.Bytes())
	if cfg.compression == format.CompressionNone {
		return raw, nil
	}

	return codec.Compress(raw)
}

func encodeTo(bb *pool.ByteBuffer, t *trace.Trace, cfg *Config) {
	flavor := t.Header().Flavor
	if cfg.flavorSet {
		flavor = cfg.flavor
	}
	if t.HasHitCounts() {
		flavor = trace.HitsFlavor(flavor)
	} else {
		flavor = trace.PlainFlavor(flavor)
	}

	header := section.FileHeader{Version: section.FileVersion, Flavor: flavor}
	bb.B = header.AppendTo(bb.B)

	modules := t.ModuleSlice()
	mh := section.ModuleTableHeader{Version: section.ModuleTableWriteVersion, Count: len(modules)}
	bb.B = mh.AppendTo(bb.B)

	cols := section.ColumnsFor(modules)
	bb.B = cols.AppendHeader(bb.B)
	for _, m := range modules {
		if cfg.inclusiveEnd && m.End > m.Base {
			m.End--
		}
		bb.B = cols.AppendRow(bb.B, m)
	}

	bh := section.BBTableHeader{Count: t.NumBlocks()}
	bb.B = bh.AppendTo(bb.B)

	payload := bb.ExtendOrGrow(bh.PayloadSize())
	offset := 0
	for _, b := range t.Blocks() {
		offset = section.NewBlockEntry(b).WriteToSlice(payload, offset)
	}

	if !t.HasHitCounts() {
		return
	}

	hh := section.HitTableHeader{Version: section.HitTableVersion, Count: t.NumBlocks()}
	bb.B = hh.AppendTo(bb.B)

	payload = bb.ExtendOrGrow(hh.PayloadSize())
	for i := range t.NumBlocks() {
		binary.LittleEndian.PutUint32(payload[i*section.HitCountSize:], t.HitCount(i))
	}
}
