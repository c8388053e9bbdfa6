package asm_x86

import (
	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/x86"

	"github.com/artquick/quick/internal/asm"
	"github.com/artquick/quick/internal/asm/golang_asm"
)

// NewAssembler returns an Assembler for the 64-bit mode if is64 is true, otherwise for the 32-bit mode.
func NewAssembler(is64 bool) (Assembler, error) {
	arch := "386"
	if is64 {
		arch = "amd64"
	}
	g, err := golang_asm.NewGolangAsmBaseAssembler(arch)
	return &assemblerGoAsmImpl{GolangAsmBaseAssembler: g, is64: is64}, err
}

// assemblerGoAsmImpl implements Assembler for golang-asm library.
type assemblerGoAsmImpl struct {
	*golang_asm.GolangAsmBaseAssembler
	is64 bool
}

func (a *assemblerGoAsmImpl) checkRegister(r asm.Register) {
	if !a.is64 && ((REG_R8 <= r && r <= REG_R15) || (REG_X8 <= r && r <= REG_X15)) {
		panic("BUG: " + RegisterName(r) + " is not available in the 32-bit mode")
	}
}

// checkByteSource panics if the low byte of r cannot be addressed.
func (a *assemblerGoAsmImpl) checkByteSource(instruction asm.Instruction, r asm.Register) {
	if a.is64 || (instruction != MOVBLSX && instruction != MOVBLZX) {
		return
	}
	if r < REG_AX || r > REG_BX {
		panic("BUG: the low byte of " + RegisterName(r) + " is not addressable in the 32-bit mode")
	}
}

func (a *assemblerGoAsmImpl) memory(addr *obj.Addr, base asm.Register, offset asm.ConstantValue) {
	a.checkRegister(base)
	addr.Type = obj.TYPE_MEM
	// With REG_FS or REG_GS, the offset is the absolute address in the segment.
	addr.Reg = castAsGolangAsmRegister[base]
	addr.Offset = offset
}

func (a *assemblerGoAsmImpl) register(addr *obj.Addr, r asm.Register) {
	a.checkRegister(r)
	addr.Type = obj.TYPE_REG
	addr.Reg = castAsGolangAsmRegister[r]
}

// CompileStandAlone implements AssemblerBase.CompileStandAlone.
func (a *assemblerGoAsmImpl) CompileStandAlone(instruction asm.Instruction) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	if instruction == INT3 {
		// The assembler only knows the two byte form "INT $3".
		p.From.Type = obj.TYPE_CONST
		p.From.Offset = 0xcc
	}
	a.AddInstruction(p)
	return golang_asm.NewGolangAsmNode(p)
}

// CompileConstToRegister implements AssemblerBase.CompileConstToRegister.
func (a *assemblerGoAsmImpl) CompileConstToRegister(instruction asm.Instruction, value asm.ConstantValue, destinationReg asm.Register) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	a.register(&p.To, destinationReg)
	a.AddInstruction(p)
	return golang_asm.NewGolangAsmNode(p)
}

// CompileRegisterToRegister implements AssemblerBase.CompileRegisterToRegister.
func (a *assemblerGoAsmImpl) CompileRegisterToRegister(instruction asm.Instruction, from, to asm.Register) {
	a.checkByteSource(instruction, from)
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.register(&p.From, from)
	a.register(&p.To, to)
	a.AddInstruction(p)
}

// CompileMemoryToRegister implements AssemblerBase.CompileMemoryToRegister.
func (a *assemblerGoAsmImpl) CompileMemoryToRegister(instruction asm.Instruction, sourceBaseReg asm.Register, sourceOffsetConst asm.ConstantValue, destinationReg asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.memory(&p.From, sourceBaseReg, sourceOffsetConst)
	a.register(&p.To, destinationReg)
	a.AddInstruction(p)
}

// CompileRegisterToMemory implements AssemblerBase.CompileRegisterToMemory.
func (a *assemblerGoAsmImpl) CompileRegisterToMemory(instruction asm.Instruction, sourceRegister asm.Register, destinationBaseRegister asm.Register, destinationOffsetConst asm.ConstantValue) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.register(&p.From, sourceRegister)
	a.memory(&p.To, destinationBaseRegister, destinationOffsetConst)
	a.AddInstruction(p)
}

// CompileConstToMemory implements Assembler.CompileConstToMemory.
func (a *assemblerGoAsmImpl) CompileConstToMemory(instruction asm.Instruction, value asm.ConstantValue, dstBaseReg asm.Register, dstOffset asm.ConstantValue) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	p.From.Type = obj.TYPE_CONST
	p.From.Offset = value
	a.memory(&p.To, dstBaseReg, dstOffset)
	a.AddInstruction(p)
	return golang_asm.NewGolangAsmNode(p)
}

// CompileMemoryToConst implements Assembler.CompileMemoryToConst.
func (a *assemblerGoAsmImpl) CompileMemoryToConst(instruction asm.Instruction, srcBaseReg asm.Register, srcOffset asm.ConstantValue, value asm.ConstantValue) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.memory(&p.From, srcBaseReg, srcOffset)
	p.To.Type = obj.TYPE_CONST
	p.To.Offset = value
	a.AddInstruction(p)
	return golang_asm.NewGolangAsmNode(p)
}

// CompileRegisterToNone implements Assembler.CompileRegisterToNone.
func (a *assemblerGoAsmImpl) CompileRegisterToNone(instruction asm.Instruction, register asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.register(&p.From, register)
	a.AddInstruction(p)
}

// CompileNoneToRegister implements Assembler.CompileNoneToRegister.
func (a *assemblerGoAsmImpl) CompileNoneToRegister(instruction asm.Instruction, register asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.register(&p.To, register)
	a.AddInstruction(p)
}

// CompileMemoryToNone implements Assembler.CompileMemoryToNone.
func (a *assemblerGoAsmImpl) CompileMemoryToNone(instruction asm.Instruction, baseReg asm.Register, offset asm.ConstantValue) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.memory(&p.From, baseReg, offset)
	a.AddInstruction(p)
}

// CompileNoneToMemory implements Assembler.CompileNoneToMemory.
func (a *assemblerGoAsmImpl) CompileNoneToMemory(instruction asm.Instruction, baseReg asm.Register, offset asm.ConstantValue) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[instruction]
	a.memory(&p.To, baseReg, offset)
	a.AddInstruction(p)
}

// CompileJump implements AssemblerBase.CompileJump.
func (a *assemblerGoAsmImpl) CompileJump(jmpInstruction asm.Instruction) asm.Node {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[jmpInstruction]
	p.To.Type = obj.TYPE_BRANCH
	a.AddInstruction(p)
	return golang_asm.NewGolangAsmNode(p)
}

// CompileJumpToLabel implements AssemblerBase.CompileJumpToLabel.
func (a *assemblerGoAsmImpl) CompileJumpToLabel(jmpInstruction asm.Instruction, l *asm.Label) asm.Node {
	n := a.CompileJump(jmpInstruction)
	a.JumpToLabel(n, l)
	return n
}

// CompileJumpToRegister implements AssemblerBase.CompileJumpToRegister.
func (a *assemblerGoAsmImpl) CompileJumpToRegister(jmpInstruction asm.Instruction, reg asm.Register) {
	p := a.NewProg()
	p.As = castAsGolangAsmInstruction[jmpInstruction]
	a.register(&p.To, reg)
	a.AddInstruction(p)
}

// CompileJumpToMemory implements Assembler.CompileJumpToMemory.
func (a *assemblerGoAsmImpl) CompileJumpToMemory(jmpInstruction asm.Instruction, baseReg asm.Register, offset asm.ConstantValue) {
	a.CompileNoneToMemory(jmpInstruction, baseReg, offset)
}

// castAsGolangAsmRegister maps the registers to golang-asm specific registers values.
var castAsGolangAsmRegister = [...]int16{
	REG_AX:  x86.REG_AX,
	REG_CX:  x86.REG_CX,
	REG_DX:  x86.REG_DX,
	REG_BX:  x86.REG_BX,
	REG_SP:  x86.REG_SP,
	REG_BP:  x86.REG_BP,
	REG_SI:  x86.REG_SI,
	REG_DI:  x86.REG_DI,
	REG_R8:  x86.REG_R8,
	REG_R9:  x86.REG_R9,
	REG_R10: x86.REG_R10,
	REG_R11: x86.REG_R11,
	REG_R12: x86.REG_R12,
	REG_R13: x86.REG_R13,
	REG_R14: x86.REG_R14,
	REG_R15: x86.REG_R15,
	REG_X0:  x86.REG_X0,
	REG_X1:  x86.REG_X1,
	REG_X2:  x86.REG_X2,
	REG_X3:  x86.REG_X3,
	REG_X4:  x86.REG_X4,
	REG_X5:  x86.REG_X5,
	REG_X6:  x86.REG_X6,
	REG_X7:  x86.REG_X7,
	REG_X8:  x86.REG_X8,
	REG_X9:  x86.REG_X9,
	REG_X10: x86.REG_X10,
	REG_X11: x86.REG_X11,
	REG_X12: x86.REG_X12,
	REG_X13: x86.REG_X13,
	REG_X14: x86.REG_X14,
	REG_X15: x86.REG_X15,
	REG_F0:  x86.REG_F0,
	REG_FS:  x86.REG_FS,
	REG_GS:  x86.REG_GS,
}

// castAsGolangAsmInstruction maps the instructions to golang-asm specific instructions values.
var castAsGolangAsmInstruction = [...]obj.As{
	NOP:     obj.ANOP,
	ADDL:    x86.AADDL,
	ADDQ:    x86.AADDQ,
	CALL:    obj.ACALL,
	CMPL:    x86.ACMPL,
	CMPQ:    x86.ACMPQ,
	FMOVD:   x86.AFMOVD,
	FMOVDP:  x86.AFMOVDP,
	FMOVF:   x86.AFMOVF,
	FMOVFP:  x86.AFMOVFP,
	INT3:    x86.ABYTE,
	JEQ:     x86.AJEQ,
	JMP:     obj.AJMP,
	JNE:     x86.AJNE,
	LEAL:    x86.ALEAL,
	LEAQ:    x86.ALEAQ,
	LOCK:    x86.ALOCK,
	MFENCE:  x86.AMFENCE,
	MOVBLSX: x86.AMOVBLSX,
	MOVBLZX: x86.AMOVBLZX,
	MOVL:    x86.AMOVL,
	MOVQ:    x86.AMOVQ,
	MOVSD:   x86.AMOVSD,
	MOVSS:   x86.AMOVSS,
	MOVWLSX: x86.AMOVWLSX,
	MOVWLZX: x86.AMOVWLZX,
	NEGL:    x86.ANEGL,
	POPL:    x86.APOPL,
	POPQ:    x86.APOPQ,
	PUSHL:   x86.APUSHL,
	PUSHQ:   x86.APUSHQ,
	RET:     obj.ARET,
	SUBL:    x86.ASUBL,
	SUBQ:    x86.ASUBQ,
	TESTL:   x86.ATESTL,
	TESTQ:   x86.ATESTQ,
	XORL:    x86.AXORL,
	XORQ:    x86.AXORQ,
}
