package asm_arm64

import (
	"math"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm64"

	"github.com/artquick/quick/internal/asm"
	"github.com/artquick/quick/internal/asm/golang_asm"
)

// NewAssembler returns an Assembler which uses `temporaryRegister` to materialize
// constants and offsets that do not fit in an instruction.
func NewAssembler(temporaryRegister asm.Register) (Assembler, error) {
	g, err := golang_asm.NewGolangAsmBaseAssembler("arm64")
	return &assemblerGoAsmImpl{GolangAsmBaseAssembler: g, temporaryRegister: temporaryRegister}, err
}

// assemblerGoAsmImpl implements Assembler for golang-asm library.
type assemblerGoAsmImpl struct {
	*golang_asm.GolangAsmBaseAssembler
	temporaryRegister asm.Register
}

// CompileConstToRegister implements Assembler.CompileConstToRegisterInstruction.
func (a *assemblerGoAsmImpl) CompileConstToRegister(instruction asm.Instruction, constValue asm.ConstantValue, destinationReg asm.Register) asm.Node {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	if constValue == 0 {
		inst.From.Type = obj.TYPE_REG
		inst.From.Reg = arm64.REGZERO
	} else {
		inst.From.Type = obj.TYPE_CONST
		// Note: in raw arm64 assembly, immediates larger than 16-bits
		// are not supported, but the assembler takes care of this and
		// emits corresponding (at most) 4-instructions to load such large constants.
		inst.From.Offset = constValue
	}

	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[destinationReg]
	a.AddInstruction(inst)
	return golang_asm.NewGolangAsmNode(inst)
}

// isAddSubImmediate returns true if c can be encoded as the immediate of ADD or SUB,
// that is 12 bits optionally shifted left by 12.
func isAddSubImmediate(c asm.ConstantValue) bool {
	return c >= 0 && (c < 1<<12 || (c&0xfff == 0 && c < 1<<24))
}

// CompileRegisterAndConstToRegister implements Assembler.CompileRegisterAndConstToRegister.
func (a *assemblerGoAsmImpl) CompileRegisterAndConstToRegister(instruction asm.Instruction, src asm.Register, c asm.ConstantValue, dst asm.Register) {
	if (instruction == ADD || instruction == SUB || instruction == ADDW || instruction == SUBW) && !isAddSubImmediate(c) {
		if src == a.temporaryRegister {
			panic("BUG: temporary register used as a source of a large constant operation")
		}
		// The assembler would split this with its own temporary register, which we cannot track.
		a.CompileConstToRegister(MOVD, c, a.temporaryRegister)
		a.CompileTwoRegistersToRegister(instruction, a.temporaryRegister, src, dst)
		return
	}
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = c
	inst.Reg = castAsGolangAsmRegister[src]
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[dst]
	a.AddInstruction(inst)
}

// CompileMemoryToRegister implements AssemblerBase.CompileMemoryToRegister.
func (a *assemblerGoAsmImpl) CompileMemoryToRegister(instruction asm.Instruction, sourceBaseReg asm.Register, sourceOffsetConst asm.ConstantValue, destinationReg asm.Register) {
	if sourceOffsetConst > math.MaxInt16 {
		// The assembler can take care of offsets larger than 2^15-1 by emitting additional instructions to load such large offset,
		// but it uses "its" temporary register which we cannot track. Therefore, we avoid directly emitting memory load with large offsets,
		// but instead load the constant manually to "our" temporary register, then emit the load with it.
		a.CompileConstToRegister(MOVD, sourceOffsetConst, a.temporaryRegister)
		a.CompileMemoryWithRegisterOffsetToRegister(instruction, sourceBaseReg, a.temporaryRegister, destinationReg)
	} else {
		inst := a.NewProg()
		inst.As = castAsGolangAsmInstruction[instruction]
		inst.From.Type = obj.TYPE_MEM
		inst.From.Reg = castAsGolangAsmRegister[sourceBaseReg]
		inst.From.Offset = sourceOffsetConst
		inst.To.Type = obj.TYPE_REG
		inst.To.Reg = castAsGolangAsmRegister[destinationReg]
		a.AddInstruction(inst)
	}
}

// CompileMemoryWithRegisterOffsetToRegister implements Assembler.CompileMemoryWithRegisterOffsetToRegister.
func (a *assemblerGoAsmImpl) CompileMemoryWithRegisterOffsetToRegister(instruction asm.Instruction, sourceBaseReg, sourceOffsetReg, destinationReg asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_MEM
	inst.From.Reg = castAsGolangAsmRegister[sourceBaseReg]
	inst.From.Index = castAsGolangAsmRegister[sourceOffsetReg]
	inst.From.Scale = 1
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[destinationReg]
	a.AddInstruction(inst)
}

// CompileRegisterToMemory implements Assembler.CompileRegisterToMemory.
func (a *assemblerGoAsmImpl) CompileRegisterToMemory(instruction asm.Instruction, sourceReg asm.Register, destinationBaseReg asm.Register, destinationOffsetConst asm.ConstantValue) {
	if destinationOffsetConst > math.MaxInt16 {
		// See the comment in CompileMemoryToRegister.
		a.CompileConstToRegister(MOVD, destinationOffsetConst, a.temporaryRegister)
		a.CompileRegisterToMemoryWithRegisterOffset(instruction, sourceReg, destinationBaseReg, a.temporaryRegister)
	} else {
		inst := a.NewProg()
		inst.As = castAsGolangAsmInstruction[instruction]
		inst.To.Type = obj.TYPE_MEM
		inst.To.Reg = castAsGolangAsmRegister[destinationBaseReg]
		inst.To.Offset = destinationOffsetConst
		inst.From.Type = obj.TYPE_REG
		inst.From.Reg = castAsGolangAsmRegister[sourceReg]
		a.AddInstruction(inst)
	}
}

// CompileRegisterToMemoryWithRegisterOffset implements Assembler.CompileRegisterToMemoryWithRegisterOffset.
func (a *assemblerGoAsmImpl) CompileRegisterToMemoryWithRegisterOffset(instruction asm.Instruction, sourceReg, destinationBaseReg, destinationOffsetReg asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.To.Type = obj.TYPE_MEM
	inst.To.Reg = castAsGolangAsmRegister[destinationBaseReg]
	inst.To.Index = castAsGolangAsmRegister[destinationOffsetReg]
	inst.To.Scale = 1
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmRegister[sourceReg]
	a.AddInstruction(inst)
}

// CompileRegisterToRegister implements Assembler.CompileRegisterToRegister.
func (a *assemblerGoAsmImpl) CompileRegisterToRegister(instruction asm.Instruction, from, to asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[to]
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmRegister[from]
	a.AddInstruction(inst)
}

// CompileTwoRegistersToRegister implements Assembler.CompileTwoRegistersToRegister.
func (a *assemblerGoAsmImpl) CompileTwoRegistersToRegister(instruction asm.Instruction, src1, src2, destination asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[destination]
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmRegister[src1]
	inst.Reg = castAsGolangAsmRegister[src2]
	a.AddInstruction(inst)
}

// CompileTwoRegistersToNone implements Assembler.CompileTwoRegistersToNone.
func (a *assemblerGoAsmImpl) CompileTwoRegistersToNone(instruction asm.Instruction, src1, src2 asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	// TYPE_NONE indicates that this instruction doesn't have a destination.
	inst.To.Type = obj.TYPE_NONE
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmRegister[src1]
	inst.Reg = castAsGolangAsmRegister[src2]
	a.AddInstruction(inst)
}

// CompileRegisterAndConstToNone implements Assembler.CompileRegisterAndConstToNone.
func (a *assemblerGoAsmImpl) CompileRegisterAndConstToNone(instruction asm.Instruction, src asm.Register, srcConst asm.ConstantValue) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.To.Type = obj.TYPE_NONE
	if srcConst == 0 {
		// golang-asm would otherwise encode the zero as R0.
		inst.From.Type = obj.TYPE_REG
		inst.From.Reg = arm64.REGZERO
	} else {
		inst.From.Type = obj.TYPE_CONST
		inst.From.Offset = srcConst
	}
	inst.Reg = castAsGolangAsmRegister[src]
	a.AddInstruction(inst)
}

// CompileRegisterPairToMemory implements Assembler.CompileRegisterPairToMemory.
func (a *assemblerGoAsmImpl) CompileRegisterPairToMemory(instruction asm.Instruction, src1, src2, dstBaseReg asm.Register, dstOffset asm.ConstantValue) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	// See https://github.com/twitchyliquid64/golang-asm/blob/v0.15.1/obj/link.go#L149-L152
	inst.From.Type = obj.TYPE_REGREG
	inst.From.Reg = castAsGolangAsmRegister[src1]
	inst.From.Offset = int64(castAsGolangAsmRegister[src2])
	inst.To.Type = obj.TYPE_MEM
	inst.To.Reg = castAsGolangAsmRegister[dstBaseReg]
	inst.To.Offset = dstOffset
	a.AddInstruction(inst)
}

// CompileMemoryToRegisterPair implements Assembler.CompileMemoryToRegisterPair.
func (a *assemblerGoAsmImpl) CompileMemoryToRegisterPair(instruction asm.Instruction, srcBaseReg asm.Register, srcOffset asm.ConstantValue, dst1, dst2 asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_MEM
	inst.From.Reg = castAsGolangAsmRegister[srcBaseReg]
	inst.From.Offset = srcOffset
	inst.To.Type = obj.TYPE_REGREG
	inst.To.Reg = castAsGolangAsmRegister[dst1]
	inst.To.Offset = int64(castAsGolangAsmRegister[dst2])
	a.AddInstruction(inst)
}

// CompileConditionalSelect implements Assembler.CompileConditionalSelect.
//
// See https://developer.arm.com/documentation/ddi0596/2021-12/Base-Instructions/CSEL--Conditional-Select-
func (a *assemblerGoAsmImpl) CompileConditionalSelect(instruction asm.Instruction, cond asm.ConditionalRegisterState, ifTrue, ifFalse, dst asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	// The assembler encodes the conditional bits in From.Reg.
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmConditionalRegister[cond]
	inst.Reg = castAsGolangAsmRegister[ifTrue]
	inst.SetFrom3(obj.Addr{Type: obj.TYPE_REG, Reg: castAsGolangAsmRegister[ifFalse]})
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[dst]
	a.AddInstruction(inst)
}

// CompileBranchOnRegisterToLabel implements Assembler.CompileBranchOnRegisterToLabel.
func (a *assemblerGoAsmImpl) CompileBranchOnRegisterToLabel(instruction asm.Instruction, reg asm.Register, l *asm.Label) asm.Node {
	br := a.NewProg()
	br.As = castAsGolangAsmInstruction[instruction]
	br.From.Type = obj.TYPE_REG
	br.From.Reg = castAsGolangAsmRegister[reg]
	br.To.Type = obj.TYPE_BRANCH
	a.AddInstruction(br)
	n := golang_asm.NewGolangAsmNode(br)
	a.JumpToLabel(n, l)
	return n
}

// CompileConst implements Assembler.CompileConst.
func (a *assemblerGoAsmImpl) CompileConst(instruction asm.Instruction, c asm.ConstantValue) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = c
	a.AddInstruction(inst)
}

// CompileJump implements AssemblerBase.CompileJump.
func (a *assemblerGoAsmImpl) CompileJump(jmpInstruction asm.Instruction) asm.Node {
	br := a.NewProg()
	br.As = castAsGolangAsmInstruction[jmpInstruction]
	br.To.Type = obj.TYPE_BRANCH
	a.AddInstruction(br)
	return golang_asm.NewGolangAsmNode(br)
}

// CompileJumpToLabel implements AssemblerBase.CompileJumpToLabel.
func (a *assemblerGoAsmImpl) CompileJumpToLabel(jmpInstruction asm.Instruction, l *asm.Label) asm.Node {
	n := a.CompileJump(jmpInstruction)
	a.JumpToLabel(n, l)
	return n
}

// CompileJumpToRegister implements AssemblerBase.CompileJumpToRegister.
//
// BL to a register is encoded as BLR, and RET takes the link register explicitly.
func (a *assemblerGoAsmImpl) CompileJumpToRegister(jmpInstruction asm.Instruction, reg asm.Register) {
	ret := a.NewProg()
	ret.As = castAsGolangAsmInstruction[jmpInstruction]
	ret.To.Type = obj.TYPE_REG
	ret.To.Reg = castAsGolangAsmRegister[reg]
	a.AddInstruction(ret)
}

// CompileStandAlone implements AssemblerBase.CompileStandAlone.
func (a *assemblerGoAsmImpl) CompileStandAlone(instruction asm.Instruction) asm.Node {
	prog := a.NewProg()
	prog.As = castAsGolangAsmInstruction[instruction]
	a.AddInstruction(prog)
	return golang_asm.NewGolangAsmNode(prog)
}

// castAsGolangAsmConditionalRegister maps the conditional states to golang-asm specific conditional state register values.
var castAsGolangAsmConditionalRegister = [...]int16{
	COND_EQ: arm64.COND_EQ,
	COND_NE: arm64.COND_NE,
	COND_HS: arm64.COND_HS,
	COND_LO: arm64.COND_LO,
	COND_MI: arm64.COND_MI,
	COND_PL: arm64.COND_PL,
	COND_VS: arm64.COND_VS,
	COND_VC: arm64.COND_VC,
	COND_HI: arm64.COND_HI,
	COND_LS: arm64.COND_LS,
	COND_GE: arm64.COND_GE,
	COND_LT: arm64.COND_LT,
	COND_GT: arm64.COND_GT,
	COND_LE: arm64.COND_LE,
	COND_AL: arm64.COND_AL,
	COND_NV: arm64.COND_NV,
}

// castAsGolangAsmRegister maps the registers to golang-asm specific registers values.
var castAsGolangAsmRegister = [...]int16{
	REG_R0:  arm64.REG_R0,
	REG_R1:  arm64.REG_R1,
	REG_R2:  arm64.REG_R2,
	REG_R3:  arm64.REG_R3,
	REG_R4:  arm64.REG_R4,
	REG_R5:  arm64.REG_R5,
	REG_R6:  arm64.REG_R6,
	REG_R7:  arm64.REG_R7,
	REG_R8:  arm64.REG_R8,
	REG_R9:  arm64.REG_R9,
	REG_R10: arm64.REG_R10,
	REG_R11: arm64.REG_R11,
	REG_R12: arm64.REG_R12,
	REG_R13: arm64.REG_R13,
	REG_R14: arm64.REG_R14,
	REG_R15: arm64.REG_R15,
	REG_R16: arm64.REG_R16,
	REG_R17: arm64.REG_R17,
	REG_R18: arm64.REG_R18,
	REG_R19: arm64.REG_R19,
	REG_R20: arm64.REG_R20,
	REG_R21: arm64.REG_R21,
	REG_R22: arm64.REG_R22,
	REG_R23: arm64.REG_R23,
	REG_R24: arm64.REG_R24,
	REG_R25: arm64.REG_R25,
	REG_R26: arm64.REG_R26,
	REG_R27: arm64.REG_R27,
	REG_R28: arm64.REG_R28,
	REG_R29: arm64.REG_R29,
	REG_R30: arm64.REG_R30,
	REGZERO: arm64.REGZERO,
	REG_RSP: arm64.REGSP,
	REG_F0:  arm64.REG_F0,
	REG_F1:  arm64.REG_F1,
	REG_F2:  arm64.REG_F2,
	REG_F3:  arm64.REG_F3,
	REG_F4:  arm64.REG_F4,
	REG_F5:  arm64.REG_F5,
	REG_F6:  arm64.REG_F6,
	REG_F7:  arm64.REG_F7,
	REG_F8:  arm64.REG_F8,
	REG_F9:  arm64.REG_F9,
	REG_F10: arm64.REG_F10,
	REG_F11: arm64.REG_F11,
	REG_F12: arm64.REG_F12,
	REG_F13: arm64.REG_F13,
	REG_F14: arm64.REG_F14,
	REG_F15: arm64.REG_F15,
	REG_F16: arm64.REG_F16,
	REG_F17: arm64.REG_F17,
	REG_F18: arm64.REG_F18,
	REG_F19: arm64.REG_F19,
	REG_F20: arm64.REG_F20,
	REG_F21: arm64.REG_F21,
	REG_F22: arm64.REG_F22,
	REG_F23: arm64.REG_F23,
	REG_F24: arm64.REG_F24,
	REG_F25: arm64.REG_F25,
	REG_F26: arm64.REG_F26,
	REG_F27: arm64.REG_F27,
	REG_F28: arm64.REG_F28,
	REG_F29: arm64.REG_F29,
	REG_F30: arm64.REG_F30,
	REG_F31: arm64.REG_F31,
}

// castAsGolangAsmInstruction maps the instructions to golang-asm specific instructions values.
var castAsGolangAsmInstruction = [...]obj.As{
	NOP:   obj.ANOP,
	ADD:   arm64.AADD,
	ADDW:  arm64.AADDW,
	AND:   arm64.AAND,
	ANDW:  arm64.AANDW,
	B:     arm64.AB,
	BEQ:   arm64.ABEQ,
	BNE:   arm64.ABNE,
	BL:    arm64.ABL,
	BRK:   arm64.ABRK,
	CBNZ:  arm64.ACBNZ,
	CBNZW: arm64.ACBNZW,
	CBZ:   arm64.ACBZ,
	CBZW:  arm64.ACBZW,
	CMP:   arm64.ACMP,
	CMPW:  arm64.ACMPW,
	CSEL:  arm64.ACSEL,
	CSELW: arm64.ACSELW,
	DMB:   arm64.ADMB,
	FLDPD: arm64.AFLDPD,
	FMOVD: arm64.AFMOVD,
	FMOVS: arm64.AFMOVS,
	FSTPD: arm64.AFSTPD,
	LDP:   arm64.ALDP,
	MOVB:  arm64.AMOVB,
	MOVBU: arm64.AMOVBU,
	MOVD:  arm64.AMOVD,
	MOVH:  arm64.AMOVH,
	MOVHU: arm64.AMOVHU,
	MOVW:  arm64.AMOVW,
	MOVWU: arm64.AMOVWU,
	NEG:   arm64.ANEG,
	NEGW:  arm64.ANEGW,
	ORR:   arm64.AORR,
	RET:   obj.ARET,
	STP:   arm64.ASTP,
	SUB:   arm64.ASUB,
	SUBW:  arm64.ASUBW,
	SXTBW: arm64.ASXTBW,
	SXTHW: arm64.ASXTHW,
	UXTBW: arm64.AUXTBW,
	UXTHW: arm64.AUXTHW,
}
