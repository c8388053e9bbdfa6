package jnicompiler

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/isa"
)

func TestImage(t *testing.T) {
	first, err := Compile(isa.Arm64, AccNative, "V", nil)
	require.NoError(t, err)
	second, err := Compile(isa.Arm64, AccNative|AccStatic, "LLI", nil)
	require.NoError(t, err)
	noCFI, err := Compile(isa.Arm64, AccNative, "IIJ", NewOptions().WithCFI(false))
	require.NoError(t, err)

	img := NewImage(isa.Arm64)
	require.Nil(t, img.DebugFrame(0))

	off, err := img.Add(first)
	require.NoError(t, err)
	require.Zero(t, off)
	off, err = img.Add(noCFI)
	require.NoError(t, err)
	require.Equal(t, (len(first.Code)+15)&^15, off)
	off, err = img.Add(second)
	require.NoError(t, err)
	require.Zero(t, off%16)

	text := img.Text()
	offsets := img.Offsets()
	require.Equal(t, 3, len(offsets))
	require.Equal(t, first.Code, text[offsets[0]:offsets[0]+len(first.Code)])
	require.Equal(t, noCFI.Code, text[offsets[1]:offsets[1]+len(noCFI.Code)])
	require.Equal(t, second.Code, text[offsets[2]:])

	// One CIE, then an FDE for each stub with call frame information.
	const base = 0x10000
	buf := img.DebugFrame(base)
	cieLen := int(binary.LittleEndian.Uint32(buf))
	rest := buf[4+cieLen:]
	var addrs []uint64
	for len(rest) > 0 {
		n := int(binary.LittleEndian.Uint32(rest))
		require.Zero(t, binary.LittleEndian.Uint32(rest[4:]))
		addrs = append(addrs, binary.LittleEndian.Uint64(rest[8:]))
		rest = rest[4+n:]
	}
	require.Equal(t, []uint64{base, base + uint64(offsets[2])}, addrs)
}

func TestImage_Add_otherISA(t *testing.T) {
	m, err := Compile(isa.X86, AccNative, "V", nil)
	require.NoError(t, err)
	_, err = NewImage(isa.X86_64).Add(m)
	require.EqualError(t, err, "cannot add x86 stub to x86_64 image")
}
