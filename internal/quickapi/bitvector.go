package quickapi

import "math/bits"

// BitVector is a fixed-size set of small non-negative integers, typically
// block ids or bucket indexes.
//
// The backing words are supplied by the caller so that vectors created
// during a pass can live in that pass's SlicePool.
type BitVector struct {
	bits []uint64
	size int
}

// BitVectorWords returns the number of uint64 words needed for n bits.
func BitVectorWords(n int) int {
	return (n + 63) / 64
}

// NewBitVector returns a cleared BitVector of n bits using the given words,
// which must hold at least BitVectorWords(n) elements. If words is nil, a
// fresh backing array is allocated.
func NewBitVector(n int, words []uint64) BitVector {
	need := BitVectorWords(n)
	if words == nil {
		words = make([]uint64, need)
	} else if len(words) < need {
		panic("BUG: bit vector backing array too short")
	}
	ret := BitVector{bits: words[:need], size: n}
	ret.ClearAllBits()
	return ret
}

// Size returns the number of bits this vector can hold.
func (b *BitVector) Size() int {
	return b.size
}

// IsBitSet returns true if the i-th bit is set.
func (b *BitVector) IsBitSet(i int) bool {
	index, shift := uint(i)/64, uint(i)%64
	return index < uint(len(b.bits)) && (b.bits[index]&(1<<shift)) != 0
}

// SetBit sets the i-th bit.
func (b *BitVector) SetBit(i int) {
	b.check(i)
	b.bits[uint(i)/64] |= 1 << (uint(i) % 64)
}

// ClearBit clears the i-th bit.
func (b *BitVector) ClearBit(i int) {
	b.check(i)
	b.bits[uint(i)/64] &^= 1 << (uint(i) % 64)
}

// ClearAllBits clears every bit.
func (b *BitVector) ClearAllBits() {
	for i := range b.bits {
		b.bits[i] = 0
	}
}

// SetInitialBits sets bits [0, n) and clears everything above.
func (b *BitVector) SetInitialBits(n int) {
	if n > b.size {
		panic("BUG: SetInitialBits beyond the bit vector size")
	}
	full := n / 64
	for i := range b.bits {
		switch {
		case i < full:
			b.bits[i] = ^uint64(0)
		case i == full && n%64 != 0:
			b.bits[i] = (1 << (uint(n) % 64)) - 1
		default:
			b.bits[i] = 0
		}
	}
}

// Union sets every bit that is set in other.
func (b *BitVector) Union(other *BitVector) {
	if other.size > b.size {
		panic("BUG: union with a larger bit vector")
	}
	for i, w := range other.bits {
		b.bits[i] |= w
	}
}

// NumSetBits returns the number of set bits.
func (b *BitVector) NumSetBits() (ret int) {
	for _, w := range b.bits {
		ret += bits.OnesCount64(w)
	}
	return
}

// Range calls f for each set bit in ascending order.
func (b *BitVector) Range(f func(i int)) {
	for i, v := range b.bits {
		for j := i * 64; v != 0; j++ {
			n := bits.TrailingZeros64(v)
			j += n
			v >>= uint(n) + 1
			f(j)
		}
	}
}

func (b *BitVector) check(i int) {
	if i < 0 || i >= b.size {
		panic("BUG: bit index out of range")
	}
}
