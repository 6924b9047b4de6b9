package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewByteBuffer(t *testing.T) {
	bb := NewByteBuffer(1024)

	require.NotNil(t, bb)
	assert.Equal(t, 0, bb.Len())
	assert.Equal(t, 1024, cap(bb.B))
}

func TestByteBuffer_WriteAndReset(t *testing.T) {
	bb := NewByteBuffer(16)
	_, _ = bb.Write([]byte("DRCOV "))
	_, _ = bb.Write([]byte("VERSION: 2\n"))

	assert.Equal(t, "DRCOV VERSION: 2\n", string(bb.Bytes()))

	capBefore := cap(bb.B)
	bb.Reset()
	assert.Equal(t, 0, bb.Len())
	assert.Equal(t, capBefore, cap(bb.B))
}

func TestByteBuffer_Grow(t *testing.T) {
	t.Run("no-op with enough capacity", func(t *testing.T) {
		bb := NewByteBuffer(64)
		bb.Grow(32)
		assert.Equal(t, 64, cap(bb.B))
	})

	t.Run("grows by default size for small buffers", func(t *testing.T) {
		bb := NewByteBuffer(8)
		_, _ = bb.Write([]byte("abcd"))
		bb.Grow(100)
		assert.Equal(t, 4+TraceBufferDefaultSize, cap(bb.B))
		assert.Equal(t, "abcd", string(bb.Bytes()))
	})

	t.Run("grows by the required amount when larger", func(t *testing.T) {
		bb := NewByteBuffer(0)
		bb.Grow(TraceBufferDefaultSize * 2)
		assert.Equal(t, TraceBufferDefaultSize*2, cap(bb.B))
	})
}

func TestByteBuffer_ExtendOrGrow(t *testing.T) {
	bb := NewByteBuffer(4)
	_, _ = bb.Write([]byte("ab"))

	region := bb.ExtendOrGrow(8)
	require.Len(t, region, 8)
	region[0] = 'x'

	assert.Equal(t, 10, bb.Len())
	assert.Equal(t, byte('x'), bb.Bytes()[2])
}

func TestByteBuffer_WriteTo(t *testing.T) {
	bb := NewByteBuffer(16)
	_, _ = bb.Write([]byte("BB Table: 0 bbs\n"))

	var out bytes.Buffer
	n, err := bb.WriteTo(&out)
	require.NoError(t, err)
	assert.Equal(t, int64(16), n)
	assert.Equal(t, "BB Table: 0 bbs\n", out.String())
}

func TestByteBufferPool(t *testing.T) {
	t.Run("reuses reset buffers", func(t *testing.T) {
		p := NewByteBufferPool(32, 0)
		bb := p.Get()
		_, _ = bb.Write([]byte("data"))
		p.Put(bb)

		again := p.Get()
		assert.Equal(t, 0, again.Len())
	})

	t.Run("drops oversized buffers", func(t *testing.T) {
		p := NewByteBufferPool(8, 16)
		bb := p.Get()
		bb.Grow(1024)
		p.Put(bb) // must not panic and must not be retained
		assert.LessOrEqual(t, cap(p.Get().B), 1024+8)
	})

	t.Run("nil put is ignored", func(t *testing.T) {
		p := NewByteBufferPool(8, 0)
		p.Put(nil)
	})

	t.Run("concurrent use", func(t *testing.T) {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				bb := GetTraceBuffer()
				_, _ = bb.Write([]byte("x"))
				PutTraceBuffer(bb)
			}()
		}
		wg.Wait()
	})
}
