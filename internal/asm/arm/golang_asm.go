package asm_arm

import (
	"math/bits"

	"github.com/twitchyliquid64/golang-asm/obj"
	"github.com/twitchyliquid64/golang-asm/obj/arm"

	"github.com/artquick/quick/internal/asm"
	"github.com/artquick/quick/internal/asm/golang_asm"
)

// NewAssembler returns an Assembler which uses `temporaryRegister` to materialize
// constants and offsets that do not fit in an instruction.
func NewAssembler(temporaryRegister asm.Register) (Assembler, error) {
	g, err := golang_asm.NewGolangAsmBaseAssembler("arm")
	return &assemblerGoAsmImpl{GolangAsmBaseAssembler: g, temporaryRegister: temporaryRegister}, err
}

// assemblerGoAsmImpl implements Assembler for golang-asm library.
//
// golang-asm has no encoding for single precision registers with odd numbers and for a few
// ARMv6+ instructions, so those are emitted as raw instruction words.
type assemblerGoAsmImpl struct {
	*golang_asm.GolangAsmBaseAssembler
	temporaryRegister asm.Register
}

// Raw A32 encodings, all with the "always" condition.
const (
	encBxLr    uint32 = 0xe12fff1e
	encBkpt    uint32 = 0xe1200070
	encSxtb    uint32 = 0xe6af0070
	encSxth    uint32 = 0xe6bf0070
	encUxtb    uint32 = 0xe6ef0070
	encUxth    uint32 = 0xe6ff0070
	encVstrS   uint32 = 0xed000a00
	encVldrS   uint32 = 0xed100a00
	encVpushS  uint32 = 0xed2d0a00
	encVpopS   uint32 = 0xecbd0a00
	encVmovSR  uint32 = 0xee000a10
	encVmovRS  uint32 = 0xee100a10
	encVmovF32 uint32 = 0xeeb00a40
	encVmovDRR uint32 = 0xec400b10
	encVmovRRD uint32 = 0xec500b10
	condShift         = 28
	condMask   uint32 = 0xf << condShift
)

// isModifiedImmediate returns true if v is an 8-bit value rotated right by an even amount.
func isModifiedImmediate(v uint32) bool {
	for rot := 0; rot < 32; rot += 2 {
		if bits.RotateLeft32(v, rot) <= 0xff {
			return true
		}
	}
	return false
}

// CompileWord adds a raw instruction word.
func (a *assemblerGoAsmImpl) CompileWord(word uint32) {
	inst := a.NewProg()
	inst.As = arm.AWORD
	inst.To.Type = obj.TYPE_CONST
	inst.To.Offset = int64(word)
	a.AddInstruction(inst)
}

// CompileConstToRegister implements AssemblerBase.CompileConstToRegister.
func (a *assemblerGoAsmImpl) CompileConstToRegister(instruction asm.Instruction, constValue asm.ConstantValue, destinationReg asm.Register) asm.Node {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_CONST
	// Constants which cannot be encoded as an immediate are loaded from the literal pool
	// placed by the assembler.
	inst.From.Offset = int64(int32(constValue))
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[destinationReg]
	a.AddInstruction(inst)
	return golang_asm.NewGolangAsmNode(inst)
}

// CompileRegisterAndConstToRegister implements Assembler.CompileRegisterAndConstToRegister.
func (a *assemblerGoAsmImpl) CompileRegisterAndConstToRegister(instruction asm.Instruction, src asm.Register, c asm.ConstantValue, dst asm.Register) {
	v := uint32(int32(c))
	if !isModifiedImmediate(v) {
		switch {
		case instruction == ADD && isModifiedImmediate(-v):
			instruction, v = SUB, -v
		case instruction == SUB && isModifiedImmediate(-v):
			instruction, v = ADD, -v
		default:
			if src == a.temporaryRegister {
				panic("BUG: temporary register used as a source of a large constant operation")
			}
			// The assembler would split this with its own temporary register, which we cannot track.
			a.CompileConstToRegister(MOVW, c, a.temporaryRegister)
			a.CompileTwoRegistersToRegister(instruction, a.temporaryRegister, src, dst)
			return
		}
	}
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = int64(v)
	inst.Reg = castAsGolangAsmRegister[src]
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[dst]
	a.AddInstruction(inst)
}

// CompileTwoRegistersToRegister implements Assembler.CompileTwoRegistersToRegister.
//
// As in the Go assembler, the operation computes `src2 op src1`.
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

// CompileRegisterAndConstToNone implements Assembler.CompileRegisterAndConstToNone.
func (a *assemblerGoAsmImpl) CompileRegisterAndConstToNone(instruction asm.Instruction, src asm.Register, srcConst asm.ConstantValue) {
	if !isModifiedImmediate(uint32(int32(srcConst))) {
		if src == a.temporaryRegister {
			panic("BUG: temporary register used as a source of a large constant operation")
		}
		a.CompileConstToRegister(MOVW, srcConst, a.temporaryRegister)
		inst := a.NewProg()
		inst.As = castAsGolangAsmInstruction[instruction]
		inst.From.Type = obj.TYPE_REG
		inst.From.Reg = castAsGolangAsmRegister[a.temporaryRegister]
		inst.Reg = castAsGolangAsmRegister[src]
		a.AddInstruction(inst)
		return
	}
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = int64(uint32(int32(srcConst)))
	inst.Reg = castAsGolangAsmRegister[src]
	a.AddInstruction(inst)
}

// CompileTwoRegistersToNone implements Assembler.CompileTwoRegistersToNone.
func (a *assemblerGoAsmImpl) CompileTwoRegistersToNone(instruction asm.Instruction, src1, src2 asm.Register) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmRegister[src1]
	inst.Reg = castAsGolangAsmRegister[src2]
	a.AddInstruction(inst)
}

// CompileRegisterToRegister implements AssemblerBase.CompileRegisterToRegister.
func (a *assemblerGoAsmImpl) CompileRegisterToRegister(instruction asm.Instruction, from, to asm.Register) {
	switch instruction {
	case SXTB:
		a.CompileWord(encSxtb | coreBits(to)<<12 | coreBits(from))
		return
	case SXTH:
		a.CompileWord(encSxth | coreBits(to)<<12 | coreBits(from))
		return
	case UXTB:
		a.CompileWord(encUxtb | coreBits(to)<<12 | coreBits(from))
		return
	case UXTH:
		a.CompileWord(encUxth | coreBits(to)<<12 | coreBits(from))
		return
	case MOVF:
		switch {
		case isCoreRegister(from) && isSingleRegister(to):
			vn, n := singleBits(to)
			a.CompileWord(encVmovSR | vn<<16 | coreBits(from)<<12 | n<<7)
		case isSingleRegister(from) && isCoreRegister(to):
			vn, n := singleBits(from)
			a.CompileWord(encVmovRS | vn<<16 | coreBits(to)<<12 | n<<7)
		case isSingleRegister(from) && isSingleRegister(to):
			vd, d := singleBits(to)
			vm, m := singleBits(from)
			a.CompileWord(encVmovF32 | d<<22 | vd<<12 | m<<5 | vm)
		default:
			panic("BUG: invalid single precision move from " + RegisterName(from) + " to " + RegisterName(to))
		}
		return
	}
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[to]
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmRegister[from]
	a.AddInstruction(inst)
}

// CompileRegisterPairToDouble implements Assembler.CompileRegisterPairToDouble.
func (a *assemblerGoAsmImpl) CompileRegisterPairToDouble(lo, hi, dst asm.Register) {
	vm, m := doubleBits(dst)
	a.CompileWord(encVmovDRR | coreBits(hi)<<16 | coreBits(lo)<<12 | m<<5 | vm)
}

// CompileDoubleToRegisterPair implements Assembler.CompileDoubleToRegisterPair.
func (a *assemblerGoAsmImpl) CompileDoubleToRegisterPair(src, lo, hi asm.Register) {
	vm, m := doubleBits(src)
	a.CompileWord(encVmovRRD | coreBits(hi)<<16 | coreBits(lo)<<12 | m<<5 | vm)
}

// offsetFits returns true if `offset` can be encoded in the addressing mode of the instruction.
func offsetFits(instruction asm.Instruction, load bool, offset asm.ConstantValue) bool {
	switch instruction {
	case MOVF, MOVD:
		return offset&3 == 0 && -1020 <= offset && offset <= 1020
	case MOVH, MOVHU:
		return -255 <= offset && offset <= 255
	case MOVB:
		if load {
			// Sign extending byte loads share the halfword addressing mode.
			return -255 <= offset && offset <= 255
		}
	}
	return -4095 <= offset && offset <= 4095
}

// addressable returns a base register and an offset usable by the instruction, computing
// the address into the temporary register if needed.
func (a *assemblerGoAsmImpl) addressable(instruction asm.Instruction, load bool, base asm.Register, offset asm.ConstantValue) (asm.Register, asm.ConstantValue) {
	if offsetFits(instruction, load, offset) {
		return base, offset
	}
	a.CompileRegisterAndConstToRegister(ADD, base, offset, a.temporaryRegister)
	return a.temporaryRegister, 0
}

// CompileMemoryToRegister implements AssemblerBase.CompileMemoryToRegister.
func (a *assemblerGoAsmImpl) CompileMemoryToRegister(instruction asm.Instruction, sourceBaseReg asm.Register, sourceOffsetConst asm.ConstantValue, destinationReg asm.Register) {
	base, offset := a.addressable(instruction, true, sourceBaseReg, sourceOffsetConst)
	if instruction == MOVF {
		a.CompileWord(vfpSingleTransfer(encVldrS, destinationReg, base, offset))
		return
	}
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_MEM
	inst.From.Reg = castAsGolangAsmRegister[base]
	inst.From.Offset = offset
	inst.To.Type = obj.TYPE_REG
	inst.To.Reg = castAsGolangAsmRegister[destinationReg]
	a.AddInstruction(inst)
}

// CompileRegisterToMemory implements AssemblerBase.CompileRegisterToMemory.
func (a *assemblerGoAsmImpl) CompileRegisterToMemory(instruction asm.Instruction, sourceRegister asm.Register, destinationBaseRegister asm.Register, destinationOffsetConst asm.ConstantValue) {
	if sourceRegister == a.temporaryRegister && !offsetFits(instruction, false, destinationOffsetConst) {
		panic("BUG: temporary register stored at an offset out of range")
	}
	base, offset := a.addressable(instruction, false, destinationBaseRegister, destinationOffsetConst)
	if instruction == MOVF {
		a.CompileWord(vfpSingleTransfer(encVstrS, sourceRegister, base, offset))
		return
	}
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.To.Type = obj.TYPE_MEM
	inst.To.Reg = castAsGolangAsmRegister[base]
	inst.To.Offset = offset
	inst.From.Type = obj.TYPE_REG
	inst.From.Reg = castAsGolangAsmRegister[sourceRegister]
	a.AddInstruction(inst)
}

func vfpSingleTransfer(enc uint32, s, base asm.Register, offset asm.ConstantValue) uint32 {
	vd, d := singleBits(s)
	var u uint32 = 1
	if offset < 0 {
		u, offset = 0, -offset
	}
	return enc | u<<23 | d<<22 | coreBits(base)<<16 | vd<<12 | uint32(offset>>2)
}

func registerMask(regs []asm.Register) (mask int64) {
	for _, r := range regs {
		if !isCoreRegister(r) {
			panic("BUG: " + RegisterName(r) + " is not a core register")
		}
		mask |= 1 << (r - REG_R0)
	}
	return
}

// CompilePush implements Assembler.CompilePush.
func (a *assemblerGoAsmImpl) CompilePush(regs ...asm.Register) {
	inst := a.NewProg()
	inst.As = arm.AMOVM
	// STMDB SP!, {regs}
	inst.Scond = arm.C_PBIT | arm.C_WBIT
	inst.From.Type = obj.TYPE_REGLIST
	inst.From.Offset = registerMask(regs)
	inst.To.Type = obj.TYPE_MEM
	inst.To.Reg = arm.REGSP
	a.AddInstruction(inst)
}

// CompilePop implements Assembler.CompilePop.
func (a *assemblerGoAsmImpl) CompilePop(regs ...asm.Register) {
	inst := a.NewProg()
	inst.As = arm.AMOVM
	// LDMIA SP!, {regs}
	inst.Scond = arm.C_UBIT | arm.C_WBIT
	inst.From.Type = obj.TYPE_MEM
	inst.From.Reg = arm.REGSP
	inst.To.Type = obj.TYPE_REGLIST
	inst.To.Offset = registerMask(regs)
	a.AddInstruction(inst)
}

// CompileVPush implements Assembler.CompileVPush.
func (a *assemblerGoAsmImpl) CompileVPush(first asm.Register, count int) {
	vd, d := singleBits(first)
	a.CompileWord(encVpushS | d<<22 | vd<<12 | uint32(count))
}

// CompileVPop implements Assembler.CompileVPop.
func (a *assemblerGoAsmImpl) CompileVPop(first asm.Register, count int) {
	vd, d := singleBits(first)
	a.CompileWord(encVpopS | d<<22 | vd<<12 | uint32(count))
}

// CompileConditional implements Assembler.CompileConditional.
func (a *assemblerGoAsmImpl) CompileConditional(cond asm.ConditionalRegisterState, fn func()) {
	pos := a.Position()
	fn()
	scond := castAsGolangAsmConditionalRegister[cond]
	for _, p := range a.ProgsSince(pos) {
		switch p.As {
		case arm.AWORD:
			raw := (uint32(scond) ^ arm.C_SCOND_XOR) & 0xf
			p.To.Offset = int64(uint32(p.To.Offset)&^condMask | raw<<condShift)
		case obj.ANOP:
		default:
			p.Scond = p.Scond&^arm.C_SCOND | scond
		}
	}
}

// CompileConst implements Assembler.CompileConst.
func (a *assemblerGoAsmImpl) CompileConst(instruction asm.Instruction, c asm.ConstantValue) {
	inst := a.NewProg()
	inst.As = castAsGolangAsmInstruction[instruction]
	inst.From.Type = obj.TYPE_CONST
	inst.From.Offset = c
	a.AddInstruction(inst)
}

// CompileReturn implements Assembler.CompileReturn.
func (a *assemblerGoAsmImpl) CompileReturn() {
	a.CompileWord(encBxLr)
}

// CompileBreakpoint implements Assembler.CompileBreakpoint.
func (a *assemblerGoAsmImpl) CompileBreakpoint() {
	a.CompileWord(encBkpt)
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
// BL to a register is encoded as BLX.
func (a *assemblerGoAsmImpl) CompileJumpToRegister(jmpInstruction asm.Instruction, reg asm.Register) {
	br := a.NewProg()
	br.As = castAsGolangAsmInstruction[jmpInstruction]
	br.To.Type = obj.TYPE_MEM
	br.To.Reg = castAsGolangAsmRegister[reg]
	a.AddInstruction(br)
}

// CompileStandAlone implements AssemblerBase.CompileStandAlone.
func (a *assemblerGoAsmImpl) CompileStandAlone(instruction asm.Instruction) asm.Node {
	prog := a.NewProg()
	prog.As = castAsGolangAsmInstruction[instruction]
	a.AddInstruction(prog)
	return golang_asm.NewGolangAsmNode(prog)
}

func coreBits(r asm.Register) uint32 {
	if !isCoreRegister(r) {
		panic("BUG: " + RegisterName(r) + " is not a core register")
	}
	return uint32(r - REG_R0)
}

// singleBits returns the 4-bit field and the extra bit encoding a single precision register.
func singleBits(r asm.Register) (field, extra uint32) {
	if !isSingleRegister(r) {
		panic("BUG: " + RegisterName(r) + " is not a single precision register")
	}
	s := uint32(r - REG_S0)
	return s >> 1, s & 1
}

// doubleBits returns the 4-bit field and the extra bit encoding a double precision register.
func doubleBits(r asm.Register) (field, extra uint32) {
	if !isDoubleRegister(r) {
		panic("BUG: " + RegisterName(r) + " is not a double precision register")
	}
	d := uint32(r - REG_F0)
	return d & 15, d >> 4
}

// castAsGolangAsmConditionalRegister maps the conditional states to golang-asm specific condition bits.
var castAsGolangAsmConditionalRegister = [...]uint8{
	COND_EQ: arm.C_SCOND_EQ,
	COND_NE: arm.C_SCOND_NE,
	COND_HS: arm.C_SCOND_HS,
	COND_LO: arm.C_SCOND_LO,
	COND_MI: arm.C_SCOND_MI,
	COND_PL: arm.C_SCOND_PL,
	COND_VS: arm.C_SCOND_VS,
	COND_VC: arm.C_SCOND_VC,
	COND_HI: arm.C_SCOND_HI,
	COND_LS: arm.C_SCOND_LS,
	COND_GE: arm.C_SCOND_GE,
	COND_LT: arm.C_SCOND_LT,
	COND_GT: arm.C_SCOND_GT,
	COND_LE: arm.C_SCOND_LE,
	COND_AL: arm.C_SCOND_NONE,
}

// castAsGolangAsmRegister maps the registers to golang-asm specific registers values.
var castAsGolangAsmRegister = [...]int16{
	REG_R0:  arm.REG_R0,
	REG_R1:  arm.REG_R1,
	REG_R2:  arm.REG_R2,
	REG_R3:  arm.REG_R3,
	REG_R4:  arm.REG_R4,
	REG_R5:  arm.REG_R5,
	REG_R6:  arm.REG_R6,
	REG_R7:  arm.REG_R7,
	REG_R8:  arm.REG_R8,
	REG_R9:  arm.REG_R9,
	REG_R10: arm.REG_R10,
	REG_R11: arm.REG_R11,
	REG_R12: arm.REG_R12,
	REG_R13: arm.REG_R13,
	REG_R14: arm.REG_R14,
	REG_R15: arm.REG_R15,
	REG_F0:  arm.REG_F0,
	REG_F1:  arm.REG_F1,
	REG_F2:  arm.REG_F2,
	REG_F3:  arm.REG_F3,
	REG_F4:  arm.REG_F4,
	REG_F5:  arm.REG_F5,
	REG_F6:  arm.REG_F6,
	REG_F7:  arm.REG_F7,
	REG_F8:  arm.REG_F8,
	REG_F9:  arm.REG_F9,
	REG_F10: arm.REG_F10,
	REG_F11: arm.REG_F11,
	REG_F12: arm.REG_F12,
	REG_F13: arm.REG_F13,
	REG_F14: arm.REG_F14,
	REG_F15: arm.REG_F15,
}

// castAsGolangAsmInstruction maps the instructions to golang-asm specific instructions values.
var castAsGolangAsmInstruction = [...]obj.As{
	NOP:   obj.ANOP,
	ADD:   arm.AADD,
	AND:   arm.AAND,
	B:     arm.AB,
	BEQ:   arm.ABEQ,
	BNE:   arm.ABNE,
	BL:    arm.ABL,
	CMP:   arm.ACMP,
	DMB:   arm.ADMB,
	EOR:   arm.AEOR,
	MOVB:  arm.AMOVB,
	MOVBU: arm.AMOVBU,
	MOVD:  arm.AMOVD,
	MOVF:  arm.AMOVF,
	MOVH:  arm.AMOVH,
	MOVHU: arm.AMOVHU,
	MOVW:  arm.AMOVW,
	ORR:   arm.AORR,
	RSB:   arm.ARSB,
	SUB:   arm.ASUB,
}
