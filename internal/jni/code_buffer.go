package jni

import (
	"golang.org/x/xerrors"

	"github.com/artquick/quick/internal/asm"
	"github.com/artquick/quick/internal/dwarf"
)

// CodeBuffer holds the assembled code of a macro-assembler. The per-instruction set
// macro-assemblers embed it.
type CodeBuffer struct {
	code      []byte
	finalized bool
}

// Finalize assembles a and resolves the positions recorded by cfi to PCs.
// It must be called exactly once.
func (b *CodeBuffer) Finalize(a asm.AssemblerBase, cfi *dwarf.DebugFrameOpCodeWriter) error {
	if b.finalized {
		panic("BUG: FinalizeCode called twice")
	}
	b.finalized = true
	code, err := a.Assemble()
	if err != nil {
		return xerrors.Errorf("assembling JNI stub: %w", err)
	}
	b.code = code
	cfi.Patch(a.PCOf)
	return nil
}

// CodeSize returns the size of the assembled code.
func (b *CodeBuffer) CodeSize() int {
	b.checkFinalized()
	return len(b.code)
}

// FinalizeInstructions copies the assembled code to region, which must be at least
// CodeSize bytes long.
func (b *CodeBuffer) FinalizeInstructions(region []byte) {
	b.checkFinalized()
	if len(region) < len(b.code) {
		panic("BUG: region is smaller than the code")
	}
	copy(region, b.code)
}

func (b *CodeBuffer) checkFinalized() {
	if !b.finalized {
		panic("BUG: FinalizeCode not called")
	}
}
