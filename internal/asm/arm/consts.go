package asm_arm

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
)

// Arm-specific conditional register states.
// Note: naming convention is exactly the same as Go assembler: https://go.dev/doc/asm
const (
	COND_EQ asm.ConditionalRegisterState = asm.ConditionalRegisterStateUnset + 1 + iota
	COND_NE
	COND_HS
	COND_LO
	COND_MI
	COND_PL
	COND_VS
	COND_VC
	COND_HI
	COND_LS
	COND_GE
	COND_LT
	COND_GT
	COND_LE
	COND_AL
)

// Arm-specific registers.
//
// REG_F0 to REG_F15 are the double precision registers D0 to D15, and
// REG_S0 to REG_S31 the single precision registers overlapping them.
const (
	// Integer registers.

	REG_R0 asm.Register = asm.NilRegister + 1 + iota
	REG_R1
	REG_R2
	REG_R3
	REG_R4
	REG_R5
	REG_R6
	REG_R7
	REG_R8
	REG_R9
	REG_R10
	REG_R11
	REG_R12
	REG_R13
	REG_R14
	REG_R15

	// Double precision floating point registers.

	REG_F0
	REG_F1
	REG_F2
	REG_F3
	REG_F4
	REG_F5
	REG_F6
	REG_F7
	REG_F8
	REG_F9
	REG_F10
	REG_F11
	REG_F12
	REG_F13
	REG_F14
	REG_F15

	// Single precision floating point registers.

	REG_S0
	REG_S1
	REG_S2
	REG_S3
	REG_S4
	REG_S5
	REG_S6
	REG_S7
	REG_S8
	REG_S9
	REG_S10
	REG_S11
	REG_S12
	REG_S13
	REG_S14
	REG_S15
	REG_S16
	REG_S17
	REG_S18
	REG_S19
	REG_S20
	REG_S21
	REG_S22
	REG_S23
	REG_S24
	REG_S25
	REG_S26
	REG_S27
	REG_S28
	REG_S29
	REG_S30
	REG_S31
)

// Aliases of the integer registers with dedicated roles.
const (
	REG_SP = REG_R13
	REG_LR = REG_R14
	REG_PC = REG_R15
)

// RegisterName returns the name of a given register
func RegisterName(r asm.Register) string {
	switch {
	case r == asm.NilRegister:
		return "nil"
	case r == REG_SP:
		return "SP"
	case r == REG_LR:
		return "LR"
	case r == REG_PC:
		return "PC"
	case REG_R0 <= r && r <= REG_R12:
		return fmt.Sprintf("R%d", r-REG_R0)
	case isDoubleRegister(r):
		return fmt.Sprintf("D%d", r-REG_F0)
	case isSingleRegister(r):
		return fmt.Sprintf("S%d", r-REG_S0)
	}
	return "UNKNOWN"
}

func isCoreRegister(r asm.Register) bool {
	return REG_R0 <= r && r <= REG_R15
}

func isDoubleRegister(r asm.Register) bool {
	return REG_F0 <= r && r <= REG_F15
}

func isSingleRegister(r asm.Register) bool {
	return REG_S0 <= r && r <= REG_S31
}

// Arm-specific instructions.
//
// Note: This only defines the A32 instructions used by the JNI stubs.
// MOVF moves single precision values and works on REG_S* registers.
const (
	NOP asm.Instruction = iota
	ADD
	AND
	B
	BEQ
	BNE
	BL
	CMP
	DMB
	EOR
	MOVB
	MOVBU
	MOVD
	MOVF
	MOVH
	MOVHU
	MOVW
	ORR
	RSB
	SUB
	SXTB
	SXTH
	UXTB
	UXTH
)

// InstructionName returns the name of a given instruction
func InstructionName(i asm.Instruction) string {
	switch i {
	case NOP:
		return "NOP"
	case ADD:
		return "ADD"
	case AND:
		return "AND"
	case B:
		return "B"
	case BEQ:
		return "BEQ"
	case BNE:
		return "BNE"
	case BL:
		return "BL"
	case CMP:
		return "CMP"
	case DMB:
		return "DMB"
	case EOR:
		return "EOR"
	case MOVB:
		return "MOVB"
	case MOVBU:
		return "MOVBU"
	case MOVD:
		return "MOVD"
	case MOVF:
		return "MOVF"
	case MOVH:
		return "MOVH"
	case MOVHU:
		return "MOVHU"
	case MOVW:
		return "MOVW"
	case ORR:
		return "ORR"
	case RSB:
		return "RSB"
	case SUB:
		return "SUB"
	case SXTB:
		return "SXTB"
	case SXTH:
		return "SXTH"
	case UXTB:
		return "UXTB"
	case UXTH:
		return "UXTH"
	}
	return fmt.Sprintf("UNKNOWN(%d)", i)
}

// DMB option for the inner shareable domain, covering both loads and stores.
const DMB_ISH asm.ConstantValue = 0b1011
