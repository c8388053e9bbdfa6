package asm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/asm"
)

func TestCodeSegmentZeroValue(t *testing.T) {
	code := asm.NewCodeSegment(nil)
	require.Equal(t, 0, code.Size())
	require.Equal(t, 0, code.Len())
	require.Equal(t, 0, len(code.Bytes()))

	buf := code.Next()
	require.Equal(t, 0, buf.Len())
	require.Equal(t, 0, buf.Offset())
	require.Equal(t, 0, len(buf.Bytes()))
}

func TestCodeSegmentNextAligns(t *testing.T) {
	code := asm.NewCodeSegment(nil)
	for i, n := range []int{3, 16, 17, 0, 1} {
		buf := code.Next()
		require.Equal(t, 0, buf.Offset()%16, i)
		copy(buf.Append(n), make([]byte, n))
	}
	require.Equal(t, 4*16+1, code.Size())
}

func TestBufferWrite(t *testing.T) {
	withBuffer(t, func(buf asm.Buffer) {
		n, err := buf.Write([]byte("Hello World!"))
		require.NoError(t, err)
		require.Equal(t, 12, n)
		require.Equal(t, 12, buf.Len())
		require.Equal(t, []byte("Hello World!"), buf.Bytes())
	})
}

func TestBufferWriteUint32(t *testing.T) {
	withBuffer(t, func(buf asm.Buffer) {
		values := []uint32{0, 1, 0x01020304, 0xffffffff}
		var expected []byte
		for i, v := range values {
			buf.WriteUint32(v)
			expected = append(expected, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
			require.Equal(t, 4*(i+1), buf.Len())
			require.Equal(t, expected, buf.Bytes())
		}
	})
}

func TestBufferReset(t *testing.T) {
	withBuffer(t, func(buf asm.Buffer) {
		_, _ = buf.Write([]byte("Hello World!"))
		require.Equal(t, 12, buf.Len())

		buf.Reset()
		require.Equal(t, 0, buf.Len())
		require.Equal(t, []byte{}, buf.Bytes())
	})
}

func TestBufferTruncate(t *testing.T) {
	withBuffer(t, func(buf asm.Buffer) {
		_, _ = buf.Write([]byte("Hello World!"))
		require.Equal(t, 12, buf.Len())

		buf.Truncate(5)
		require.Equal(t, 5, buf.Len())
		require.Equal(t, []byte("Hello"), buf.Bytes())
	})
}

func withBuffer(t *testing.T, f func(asm.Buffer)) {
	code := asm.NewCodeSegment(nil)
	// Repeat the test multiple times to ensure that Next works as expected.
	for i := 0; i < 10; i++ {
		buf := code.Next()
		require.Zero(t, buf.Offset()%16)
		require.Zero(t, buf.Len())
		f(buf)
	}
}
