// Package dwarf writes DWARF call frame information for generated stubs.
package dwarf

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/bits"

	asmdwarf "github.com/twitchyliquid64/golang-asm/dwarf"

	"github.com/artquick/quick/internal/quickapi"
)

const (
	// CodeAlignmentFactor is the factor every advance_loc delta is multiplied by.
	CodeAlignmentFactor = 1
	// DataAlignmentFactor is the factor every factored register offset is multiplied by.
	DataAlignmentFactor = -4
)

// delayedAdvance is an advance_loc that could not be encoded at the time the opcode was
// recorded because the PC of the instruction was not known yet.
type delayedAdvance struct {
	// dataOffset is the offset in data where the advance must be inserted.
	dataOffset int
	// pos is the position of the next instruction as reported by the position source.
	pos int
}

// DebugFrameOpCodeWriter accumulates DW_CFA_* opcodes.
//
// When a position source is installed with SetPositionSource, every opcode is implicitly
// preceded by an advance to the position of the next instruction. Positions are resolved to
// PCs later by Patch once the machine code is assembled.
type DebugFrameOpCodeWriter struct {
	data             []byte
	enabled          bool
	currentCFAOffset int
	currentPC        int
	usesDWARF3       bool

	positionSource func() int
	delayed        []delayedAdvance
	lastPos        int

	// rememberedCFAOffsets is the stack maintained by RememberState and RestoreState.
	rememberedCFAOffsets []int
}

// NewDebugFrameOpCodeWriter returns an enabled writer.
func NewDebugFrameOpCodeWriter() *DebugFrameOpCodeWriter {
	return &DebugFrameOpCodeWriter{enabled: true, lastPos: -1}
}

// SetPositionSource installs the function that reports the position of the next instruction.
func (w *DebugFrameOpCodeWriter) SetPositionSource(f func() int) {
	w.positionSource = f
}

// Data returns the opcodes written so far.
func (w *DebugFrameOpCodeWriter) Data() []byte { return w.data }

// SetEnabled toggles emission. The CFA offset is tracked regardless.
func (w *DebugFrameOpCodeWriter) SetEnabled(v bool) { w.enabled = v }

// Enabled returns true if opcodes are emitted.
func (w *DebugFrameOpCodeWriter) Enabled() bool { return w.enabled }

// SetCurrentCFAOffset sets the tracked CFA offset without emitting anything.
func (w *DebugFrameOpCodeWriter) SetCurrentCFAOffset(offset int) { w.currentCFAOffset = offset }

// CurrentCFAOffset returns the tracked CFA offset.
func (w *DebugFrameOpCodeWriter) CurrentCFAOffset() int { return w.currentCFAOffset }

// UsesDWARF3Features returns true if a *_sf opcode or an expression has been written.
func (w *DebugFrameOpCodeWriter) UsesDWARF3Features() bool { return w.usesDWARF3 }

// AdvancePC explicitly advances the PC to absolutePC.
func (w *DebugFrameOpCodeWriter) AdvancePC(absolutePC int) {
	if absolutePC < w.currentPC {
		panic(fmt.Sprintf("BUG: cannot move pc backwards from %d to %d", w.currentPC, absolutePC))
	}
	if w.enabled {
		w.data = appendAdvance(w.data, absolutePC-w.currentPC)
		w.currentPC = absolutePC
	}
}

func appendAdvance(b []byte, delta int) []byte {
	delta /= CodeAlignmentFactor
	switch {
	case delta == 0:
	case delta <= 0x3f:
		b = append(b, asmdwarf.DW_CFA_advance_loc|byte(delta))
	case delta <= math.MaxUint8:
		b = append(b, asmdwarf.DW_CFA_advance_loc1, byte(delta))
	case delta <= math.MaxUint16:
		b = append(b, asmdwarf.DW_CFA_advance_loc2)
		b = binary.LittleEndian.AppendUint16(b, uint16(delta))
	default:
		b = append(b, asmdwarf.DW_CFA_advance_loc4)
		b = binary.LittleEndian.AppendUint32(b, uint32(delta))
	}
	return b
}

// ImplicitlyAdvancePC records an advance to the next instruction if a position source is set.
func (w *DebugFrameOpCodeWriter) ImplicitlyAdvancePC() {
	if w.positionSource == nil {
		return
	}
	pos := w.positionSource()
	if pos == w.lastPos {
		return
	}
	w.lastPos = pos
	w.delayed = append(w.delayed, delayedAdvance{dataOffset: len(w.data), pos: pos})
}

// Patch rewrites the opcode stream, inserting the advances recorded by ImplicitlyAdvancePC.
// resolve converts a recorded position into a PC.
func (w *DebugFrameOpCodeWriter) Patch(resolve func(pos int) int) {
	if len(w.delayed) == 0 {
		return
	}
	patched := make([]byte, 0, len(w.data)+len(w.delayed)*2)
	prev, pc := 0, 0
	for _, d := range w.delayed {
		patched = append(patched, w.data[prev:d.dataOffset]...)
		prev = d.dataOffset
		next := resolve(d.pos)
		if next < pc {
			panic(fmt.Sprintf("BUG: CFI position %d resolved backwards to pc %d (previous %d)", d.pos, next, pc))
		}
		patched = appendAdvance(patched, next-pc)
		pc = next
	}
	patched = append(patched, w.data[prev:]...)
	if quickapi.CFILoggingEnabled {
		fmt.Printf("cfi: patched %d advances, %d -> %d bytes\n", len(w.delayed), len(w.data), len(patched))
	}
	w.data, w.currentPC, w.delayed = patched, pc, w.delayed[:0]
}

// RelOffset records that reg is saved at offset from the current stack pointer.
func (w *DebugFrameOpCodeWriter) RelOffset(reg Reg, offset int) {
	w.Offset(reg, offset-w.currentCFAOffset)
}

// AdjustCFAOffset grows the frame by delta bytes.
func (w *DebugFrameOpCodeWriter) AdjustCFAOffset(delta int) {
	w.DefCFAOffset(w.currentCFAOffset + delta)
}

// RelOffsetForMany records a save slot for every register set in regMask, starting from
// regBase and offset, one slot of regSize bytes per register.
func (w *DebugFrameOpCodeWriter) RelOffsetForMany(regBase Reg, offset int, regMask uint32, regSize int) {
	if regSize != 4 && regSize != 8 {
		panic(fmt.Sprintf("BUG: invalid register size %d", regSize))
	}
	if !w.enabled {
		return
	}
	for i := 0; regMask != 0; regMask, i = regMask>>1, i+1 {
		zeros := bits.TrailingZeros32(regMask)
		i += zeros
		regMask >>= zeros
		w.RelOffset(Reg(regBase.Num()+i), offset)
		offset += regSize
	}
}

// RestoreMany restores every register set in regMask, relative to regBase.
func (w *DebugFrameOpCodeWriter) RestoreMany(regBase Reg, regMask uint32) {
	if !w.enabled {
		return
	}
	for i := 0; regMask != 0; regMask, i = regMask>>1, i+1 {
		zeros := bits.TrailingZeros32(regMask)
		i += zeros
		regMask >>= zeros
		w.Restore(Reg(regBase.Num() + i))
	}
}

func (w *DebugFrameOpCodeWriter) Nop() {
	if w.enabled {
		w.data = append(w.data, asmdwarf.DW_CFA_nop)
	}
}

// Offset records that reg is saved at CFA+offset.
func (w *DebugFrameOpCodeWriter) Offset(reg Reg, offset int) {
	if !w.enabled {
		return
	}
	w.ImplicitlyAdvancePC()
	factored := factorDataOffset(offset)
	switch {
	case factored >= 0 && reg.Num() <= 0x3f:
		w.data = append(w.data, asmdwarf.DW_CFA_offset|byte(reg.Num()))
		w.data = asmdwarf.AppendUleb128(w.data, uint64(factored))
	case factored >= 0:
		w.data = append(w.data, asmdwarf.DW_CFA_offset_extended)
		w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
		w.data = asmdwarf.AppendUleb128(w.data, uint64(factored))
	default:
		w.usesDWARF3 = true
		w.data = append(w.data, asmdwarf.DW_CFA_offset_extended_sf)
		w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
		w.data = asmdwarf.AppendSleb128(w.data, int64(factored))
	}
}

// Restore restores reg to its value in the CIE.
func (w *DebugFrameOpCodeWriter) Restore(reg Reg) {
	if !w.enabled {
		return
	}
	w.ImplicitlyAdvancePC()
	if reg.Num() <= 0x3f {
		w.data = append(w.data, asmdwarf.DW_CFA_restore|byte(reg.Num()))
	} else {
		w.data = append(w.data, asmdwarf.DW_CFA_restore_extended)
		w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
	}
}

func (w *DebugFrameOpCodeWriter) Undefined(reg Reg) {
	w.regOp(asmdwarf.DW_CFA_undefined, reg)
}

func (w *DebugFrameOpCodeWriter) SameValue(reg Reg) {
	w.regOp(asmdwarf.DW_CFA_same_value, reg)
}

// Register records that reg has been moved to newReg.
func (w *DebugFrameOpCodeWriter) Register(reg, newReg Reg) {
	if !w.enabled {
		return
	}
	w.ImplicitlyAdvancePC()
	w.data = append(w.data, asmdwarf.DW_CFA_register)
	w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
	w.data = asmdwarf.AppendUleb128(w.data, uint64(newReg.Num()))
}

func (w *DebugFrameOpCodeWriter) regOp(op byte, reg Reg) {
	if !w.enabled {
		return
	}
	w.ImplicitlyAdvancePC()
	w.data = append(w.data, op)
	w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
}

// RememberState pushes the current register rules and CFA offset.
func (w *DebugFrameOpCodeWriter) RememberState() {
	w.rememberedCFAOffsets = append(w.rememberedCFAOffsets, w.currentCFAOffset)
	if w.enabled {
		w.ImplicitlyAdvancePC()
		w.data = append(w.data, asmdwarf.DW_CFA_remember_state)
	}
}

// RestoreState pops the state pushed by the matching RememberState.
func (w *DebugFrameOpCodeWriter) RestoreState() {
	n := len(w.rememberedCFAOffsets)
	if n == 0 {
		if quickapi.CFIValidationEnabled {
			panic("BUG: RestoreState without a matching RememberState")
		}
	} else {
		w.currentCFAOffset = w.rememberedCFAOffsets[n-1]
		w.rememberedCFAOffsets = w.rememberedCFAOffsets[:n-1]
	}
	if w.enabled {
		w.ImplicitlyAdvancePC()
		w.data = append(w.data, asmdwarf.DW_CFA_restore_state)
	}
}

// RememberedStates returns the depth of the remember/restore stack.
func (w *DebugFrameOpCodeWriter) RememberedStates() int { return len(w.rememberedCFAOffsets) }

// DefCFA sets the CFA to reg+offset.
func (w *DebugFrameOpCodeWriter) DefCFA(reg Reg, offset int) {
	if w.enabled {
		w.ImplicitlyAdvancePC()
		if offset >= 0 {
			w.data = append(w.data, asmdwarf.DW_CFA_def_cfa)
			w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
			w.data = asmdwarf.AppendUleb128(w.data, uint64(offset))
		} else {
			w.usesDWARF3 = true
			w.data = append(w.data, asmdwarf.DW_CFA_def_cfa_sf)
			w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
			w.data = asmdwarf.AppendSleb128(w.data, int64(factorDataOffset(offset)))
		}
	}
	w.currentCFAOffset = offset
}

func (w *DebugFrameOpCodeWriter) DefCFARegister(reg Reg) {
	w.regOp(asmdwarf.DW_CFA_def_cfa_register, reg)
}

// DefCFAOffset sets the CFA offset to an absolute value. Nothing is emitted if it does not change.
func (w *DebugFrameOpCodeWriter) DefCFAOffset(offset int) {
	if w.enabled && w.currentCFAOffset != offset {
		w.ImplicitlyAdvancePC()
		if offset >= 0 {
			w.data = append(w.data, asmdwarf.DW_CFA_def_cfa_offset)
			w.data = asmdwarf.AppendUleb128(w.data, uint64(offset))
		} else {
			w.usesDWARF3 = true
			w.data = append(w.data, asmdwarf.DW_CFA_def_cfa_offset_sf)
			w.data = asmdwarf.AppendSleb128(w.data, int64(factorDataOffset(offset)))
		}
	}
	// Tracked even when disabled so that callers can still check it.
	w.currentCFAOffset = offset
}

// ValOffset records that the value of reg is CFA+offset.
func (w *DebugFrameOpCodeWriter) ValOffset(reg Reg, offset int) {
	if !w.enabled {
		return
	}
	w.ImplicitlyAdvancePC()
	w.usesDWARF3 = true
	factored := factorDataOffset(offset)
	if factored >= 0 {
		w.data = append(w.data, asmdwarf.DW_CFA_val_offset)
		w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
		w.data = asmdwarf.AppendUleb128(w.data, uint64(factored))
	} else {
		w.data = append(w.data, asmdwarf.DW_CFA_val_offset_sf)
		w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
		w.data = asmdwarf.AppendSleb128(w.data, int64(factored))
	}
}

func (w *DebugFrameOpCodeWriter) DefCFAExpression(expr []byte) {
	if !w.enabled {
		return
	}
	w.ImplicitlyAdvancePC()
	w.usesDWARF3 = true
	w.data = append(w.data, asmdwarf.DW_CFA_def_cfa_expression)
	w.data = appendBlock(w.data, expr)
}

func (w *DebugFrameOpCodeWriter) Expression(reg Reg, expr []byte) {
	w.regExpression(asmdwarf.DW_CFA_expression, reg, expr)
}

func (w *DebugFrameOpCodeWriter) ValExpression(reg Reg, expr []byte) {
	w.regExpression(asmdwarf.DW_CFA_val_expression, reg, expr)
}

func (w *DebugFrameOpCodeWriter) regExpression(op byte, reg Reg, expr []byte) {
	if !w.enabled {
		return
	}
	w.ImplicitlyAdvancePC()
	w.usesDWARF3 = true
	w.data = append(w.data, op)
	w.data = asmdwarf.AppendUleb128(w.data, uint64(reg.Num()))
	w.data = appendBlock(w.data, expr)
}

func appendBlock(b, block []byte) []byte {
	b = asmdwarf.AppendUleb128(b, uint64(len(block)))
	return append(b, block...)
}

func factorDataOffset(offset int) int {
	if offset%DataAlignmentFactor != 0 {
		panic(fmt.Sprintf("BUG: offset %d is not a multiple of the data alignment factor", offset))
	}
	return offset / DataAlignmentFactor
}
