// Package leb128 reads the variable-length integers of DWARF call frame
// information. Encoding is left to golang-asm's dwarf package, which the
// writers use directly; the wrappers here exist so tests can round-trip.
package leb128

import (
	"errors"
	"fmt"
	"io"

	"github.com/twitchyliquid64/golang-asm/dwarf"
)

// maxLen is the longest encoding of a 64-bit value.
const maxLen = 10

var errOverflow = errors.New("LEB128 value overflows 64 bits")

// AppendUint64 appends the unsigned LEB128 encoding of v to buf.
func AppendUint64(buf []byte, v uint64) []byte {
	return dwarf.AppendUleb128(buf, v)
}

// AppendInt64 appends the signed LEB128 encoding of v to buf.
func AppendInt64(buf []byte, v int64) []byte {
	return dwarf.AppendSleb128(buf, v)
}

// DecodeUint64 reads one unsigned value from r and returns it with the number
// of bytes consumed.
func DecodeUint64(r io.ByteReader) (v uint64, n int, err error) {
	for shift := uint(0); ; shift += 7 {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, fmt.Errorf("truncated LEB128 value: %w", err)
		}
		n++
		// The last byte may only contribute bit 63.
		if n == maxLen && b > 1 {
			return 0, n, errOverflow
		}
		v |= uint64(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, n, nil
		}
	}
}

// DecodeInt64 reads one signed value from r and returns it with the number of
// bytes consumed.
func DecodeInt64(r io.ByteReader) (v int64, n int, err error) {
	var shift uint
	for {
		b, err := r.ReadByte()
		if err != nil {
			return 0, n, fmt.Errorf("truncated LEB128 value: %w", err)
		}
		n++
		// Bit 63 plus its sign extension: all zeros or all ones.
		if n == maxLen && b != 0 && b != 0x7f {
			return 0, n, errOverflow
		}
		v |= int64(b&0x7f) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				v |= -1 << shift
			}
			return v, n, nil
		}
	}
}
