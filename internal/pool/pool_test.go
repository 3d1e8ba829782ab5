package pool

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestByteBuffer_Write(t *testing.T) {
	bb := NewByteBuffer(8)
	bb.MustWrite([]byte("hello"))
	n, err := bb.Write([]byte(" world"))

	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.Equal(t, []byte("hello world"), bb.Bytes())
	require.Equal(t, 11, bb.Len())

	var out bytes.Buffer
	written, err := bb.WriteTo(&out)
	require.NoError(t, err)
	require.Equal(t, int64(11), written)
	require.Equal(t, "hello world", out.String())
}

func TestByteBuffer_Grow(t *testing.T) {
	t.Run("sufficient capacity", func(t *testing.T) {
		bb := NewByteBuffer(64)
		bb.Grow(32)
		require.Equal(t, 64, cap(bb.B))
	})

	t.Run("small buffer grows by default size", func(t *testing.T) {
		bb := NewByteBuffer(16)
		bb.MustWrite(make([]byte, 16))
		bb.Grow(1)
		require.Equal(t, 16+PayloadBufferDefaultSize, cap(bb.B))
	})

	t.Run("large request", func(t *testing.T) {
		bb := NewByteBuffer(16)
		bb.Grow(PayloadBufferDefaultSize * 3)
		require.GreaterOrEqual(t, cap(bb.B), PayloadBufferDefaultSize*3)
	})

	t.Run("preserves data", func(t *testing.T) {
		bb := NewByteBuffer(4)
		bb.MustWrite([]byte("abcd"))
		bb.Grow(100)
		require.Equal(t, []byte("abcd"), bb.B)
	})
}

func TestByteBuffer_ExtendOrGrow(t *testing.T) {
	bb := NewByteBuffer(2)
	bb.MustWrite([]byte{1, 2})
	region := bb.ExtendOrGrow(3)

	require.Len(t, region, 3)
	copy(region, []byte{3, 4, 5})
	require.Equal(t, []byte{1, 2, 3, 4, 5}, bb.B)
}

func TestByteBufferPool(t *testing.T) {
	t.Run("reset on put", func(t *testing.T) {
		p := NewByteBufferPool(32, 0)
		bb := p.Get()
		bb.MustWrite([]byte("data"))
		p.Put(bb)

		again := p.Get()
		require.Equal(t, 0, again.Len())
	})

	t.Run("nil put is ignored", func(t *testing.T) {
		p := NewByteBufferPool(32, 0)
		require.NotPanics(t, func() { p.Put(nil) })
	})

	t.Run("oversized buffers are dropped", func(t *testing.T) {
		p := NewByteBufferPool(8, 16)
		bb := NewByteBuffer(64)
		bb.MustWrite([]byte("marker"))
		p.Put(bb)
		require.Equal(t, "marker", string(bb.B), "dropped buffer must not be reset")
	})

	t.Run("concurrent access", func(t *testing.T) {
		var wg sync.WaitGroup
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for range 100 {
					bb := GetPayloadBuffer()
					bb.MustWrite([]byte("x"))
					PutPayloadBuffer(bb)
				}
			}()
		}
		wg.Wait()
	})

	t.Run("default pools", func(t *testing.T) {
		p := GetPayloadBuffer()
		a := GetArchiveBuffer()
		require.GreaterOrEqual(t, cap(p.B), 0)
		require.GreaterOrEqual(t, cap(a.B), 0)
		PutPayloadBuffer(p)
		PutArchiveBuffer(a)
	})
}

func TestGetFloat64Slice(t *testing.T) {
	s, release := GetFloat64Slice(10)
	require.Len(t, s, 10)
	release()

	s, release = GetFloat64Slice(3)
	defer release()
	require.Len(t, s, 3)
}
