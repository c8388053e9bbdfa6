package jnicompiler

import (
	"golang.org/x/xerrors"

	"github.com/artquick/quick/internal/asm"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
)

// Image lays out the code of stubs of one instruction set back to back, each
// starting on a 16-byte boundary, as they are placed in the text of an image file.
type Image struct {
	set     isa.InstructionSet
	text    asm.CodeSegment
	methods []*CompiledMethod
	offsets []int
}

// NewImage returns an empty image for stubs of the given instruction set.
func NewImage(set isa.InstructionSet) *Image {
	return &Image{set: set}
}

// Add appends the code of m to the image and returns its offset in Text.
func (img *Image) Add(m *CompiledMethod) (int, error) {
	if m.ISA != img.set {
		return 0, xerrors.Errorf("cannot add %s stub to %s image", m.ISA, img.set)
	}
	buf := img.text.Next()
	_, _ = buf.Write(m.Code)
	img.methods = append(img.methods, m)
	img.offsets = append(img.offsets, buf.Offset())
	return buf.Offset(), nil
}

// Text returns the code of every stub added so far.
func (img *Image) Text() []byte {
	return img.text.Bytes()
}

// Offsets returns the offset in Text of each stub, in the order they were added.
func (img *Image) Offsets() []int {
	return img.offsets
}

// DebugFrame returns a .debug_frame section with one CIE shared by all stubs and
// an FDE for each stub that has call frame information, for Text loaded at
// baseAddress. It returns nil when no stub has call frame information.
func (img *Image) DebugFrame(baseAddress uint64) []byte {
	var buf []byte
	for i, m := range img.methods {
		if len(m.CFI) == 0 {
			continue
		}
		is64 := isa.Is64Bit(img.set)
		if buf == nil {
			e := newCIE(img.set)
			buf = dwarf.WriteCIE(is64, e.returnAddress, e.opcodes, nil)
		}
		addr := baseAddress + uint64(img.offsets[i])
		buf, _ = dwarf.WriteFDE(is64, 0, addr, uint64(len(m.Code)), m.CFI, buf)
	}
	return buf
}
