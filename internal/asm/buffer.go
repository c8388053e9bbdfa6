package asm

import "encoding/binary"

var zero [16]byte

// CodeSegment is a growable region where the code of several compiled stubs is laid
// out back to back, like the text section of an image.
//
// To append code, the program must call Next to obtain a buffer view capable of writing
// data at the end of the segment. Next must be called before writing the code of a stub
// because it aligns the next write on 16 bytes.
//
// The zero value is a valid, empty code segment, equivalent to being
// constructed by calling NewCodeSegment(nil).
type CodeSegment struct {
	code []byte
	size int
}

// NewCodeSegment constructs a CodeSegment value from a byte slice.
func NewCodeSegment(code []byte) *CodeSegment {
	return &CodeSegment{code: code, size: len(code)}
}

// Size returns the number of bytes written to the code segment, which is less or equal
// to the length of the byte slice returned by Len or Bytes.
func (seg *CodeSegment) Size() int {
	return seg.size
}

// Len returns the length of the byte slice backing the code segment.
func (seg *CodeSegment) Len() int {
	return len(seg.code)
}

// Bytes returns the written part of the code segment.
//
// The returned slice remains valid until more bytes are written to a buffer
// of the code segment.
func (seg *CodeSegment) Bytes() []byte {
	return seg.code[:seg.size]
}

// Next returns a buffer pointed at the end of the code segment to support
// writing more code instructions to it.
//
// Buffers are passed by value, but they hold a reference to the code segment
// that they were created from.
func (seg *CodeSegment) Next() Buffer {
	// Align 16-bytes boundary.
	seg.write(zero[:(16-seg.size&15)&15])
	return Buffer{seg: seg, off: seg.size}
}

func (seg *CodeSegment) append(n int) []byte {
	i := seg.size
	j := seg.size + n
	if j > len(seg.code) {
		seg.grow(n)
	}
	seg.size = j
	return seg.code[i:j:j]
}

func (seg *CodeSegment) write(b []byte) {
	copy(seg.append(len(b)), b)
}

func (seg *CodeSegment) writeUint32(u uint32) {
	binary.LittleEndian.PutUint32(seg.append(4), u)
}

func (seg *CodeSegment) grow(n int) {
	size := len(seg.code)
	want := seg.size + n
	if size >= want {
		return
	}
	if size == 0 {
		size = 4096
	}
	for size < want {
		size *= 2
	}
	b := make([]byte, size)
	copy(b, seg.code[:seg.size])
	seg.code = b
}

// Buffer is a reference type representing a section beginning at the end of a
// code segment where new instructions can be written.
type Buffer struct {
	seg *CodeSegment
	off int
}

// Offset returns the offset of the buffer in its code segment.
func (buf Buffer) Offset() int {
	return buf.off
}

// Len returns the number of bytes written to the buffer.
func (buf Buffer) Len() int {
	return buf.seg.size - buf.off
}

// Bytes returns the bytes written to the buffer.
func (buf Buffer) Bytes() []byte {
	i := buf.off
	j := buf.seg.size
	return buf.seg.code[i:j:j]
}

// Reset discards everything written to the buffer.
func (buf Buffer) Reset() {
	buf.seg.size = buf.off
}

// Append grows the buffer by n bytes and returns them for writing.
func (buf Buffer) Append(n int) []byte {
	return buf.seg.append(n)
}

// Truncate keeps the first n bytes written to the buffer.
func (buf Buffer) Truncate(n int) {
	buf.seg.size = buf.off + n
}

// WriteUint32 appends u in little endian.
func (buf Buffer) WriteUint32(u uint32) {
	buf.seg.writeUint32(u)
}

// Write implements io.Writer.
func (buf Buffer) Write(b []byte) (int, error) {
	buf.seg.write(b)
	return len(b), nil
}
