package quickapi

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBitVector(t *testing.T) {
	b := NewBitVector(130, nil)
	require.Equal(t, 130, b.Size())
	require.Equal(t, 0, b.NumSetBits())

	b.SetBit(0)
	b.SetBit(64)
	b.SetBit(129)
	require.True(t, b.IsBitSet(0))
	require.True(t, b.IsBitSet(64))
	require.True(t, b.IsBitSet(129))
	require.False(t, b.IsBitSet(1))
	require.False(t, b.IsBitSet(1000))
	require.Equal(t, 3, b.NumSetBits())

	var got []int
	b.Range(func(i int) { got = append(got, i) })
	require.Equal(t, []int{0, 64, 129}, got)

	b.ClearBit(64)
	require.False(t, b.IsBitSet(64))
	require.Panics(t, func() { b.SetBit(130) })

	b.SetInitialBits(70)
	require.Equal(t, 70, b.NumSetBits())
	require.True(t, b.IsBitSet(69))
	require.False(t, b.IsBitSet(70))
	require.False(t, b.IsBitSet(129))

	b.ClearAllBits()
	require.Equal(t, 0, b.NumSetBits())
}

func TestBitVector_Union(t *testing.T) {
	words := make([]uint64, BitVectorWords(10))
	a := NewBitVector(10, words)
	other := NewBitVector(10, nil)
	a.SetBit(1)
	other.SetBit(2)
	a.Union(&other)
	require.True(t, a.IsBitSet(1))
	require.True(t, a.IsBitSet(2))
	require.Equal(t, uint64(0b110), words[0])
}
