package asm_arm64

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
)

// Arm64-specific conditional register states.
// https://community.arm.com/arm-community-blogs/b/architectures-and-processors-blog/posts/condition-codes-1-condition-flags-and-codes
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
	COND_NV
)

// Arm64-specific registers.
// https://developer.arm.com/documentation/dui0801/a/Overview-of-AArch64-state/Predeclared-core-register-names-in-AArch64-state
// Note: naming convention is exactly the same as Go assembler: https://go.dev/doc/asm
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
	REG_R16
	REG_R17
	REG_R18
	REG_R19
	REG_R20
	REG_R21
	REG_R22
	REG_R23
	REG_R24
	REG_R25
	REG_R26
	REG_R27
	REG_R28
	REG_R29
	REG_R30
	REGZERO
	REG_RSP

	// Scalar floating point registers.

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
	REG_F16
	REG_F17
	REG_F18
	REG_F19
	REG_F20
	REG_F21
	REG_F22
	REG_F23
	REG_F24
	REG_F25
	REG_F26
	REG_F27
	REG_F28
	REG_F29
	REG_F30
	REG_F31
)

// RegisterName returns the name of a given register
func RegisterName(r asm.Register) string {
	switch r {
	case asm.NilRegister:
		return "nil"
	case REG_R0:
		return "R0"
	case REG_R1:
		return "R1"
	case REG_R2:
		return "R2"
	case REG_R3:
		return "R3"
	case REG_R4:
		return "R4"
	case REG_R5:
		return "R5"
	case REG_R6:
		return "R6"
	case REG_R7:
		return "R7"
	case REG_R8:
		return "R8"
	case REG_R9:
		return "R9"
	case REG_R10:
		return "R10"
	case REG_R11:
		return "R11"
	case REG_R12:
		return "R12"
	case REG_R13:
		return "R13"
	case REG_R14:
		return "R14"
	case REG_R15:
		return "R15"
	case REG_R16:
		return "R16"
	case REG_R17:
		return "R17"
	case REG_R18:
		return "R18"
	case REG_R19:
		return "R19"
	case REG_R20:
		return "R20"
	case REG_R21:
		return "R21"
	case REG_R22:
		return "R22"
	case REG_R23:
		return "R23"
	case REG_R24:
		return "R24"
	case REG_R25:
		return "R25"
	case REG_R26:
		return "R26"
	case REG_R27:
		return "R27"
	case REG_R28:
		return "R28"
	case REG_R29:
		return "R29"
	case REG_R30:
		return "R30"
	case REGZERO:
		return "RZR"
	case REG_RSP:
		return "RSP"
	case REG_F0:
		return "F0"
	case REG_F1:
		return "F1"
	case REG_F2:
		return "F2"
	case REG_F3:
		return "F3"
	case REG_F4:
		return "F4"
	case REG_F5:
		return "F5"
	case REG_F6:
		return "F6"
	case REG_F7:
		return "F7"
	case REG_F8:
		return "F8"
	case REG_F9:
		return "F9"
	case REG_F10:
		return "F10"
	case REG_F11:
		return "F11"
	case REG_F12:
		return "F12"
	case REG_F13:
		return "F13"
	case REG_F14:
		return "F14"
	case REG_F15:
		return "F15"
	case REG_F16:
		return "F16"
	case REG_F17:
		return "F17"
	case REG_F18:
		return "F18"
	case REG_F19:
		return "F19"
	case REG_F20:
		return "F20"
	case REG_F21:
		return "F21"
	case REG_F22:
		return "F22"
	case REG_F23:
		return "F23"
	case REG_F24:
		return "F24"
	case REG_F25:
		return "F25"
	case REG_F26:
		return "F26"
	case REG_F27:
		return "F27"
	case REG_F28:
		return "F28"
	case REG_F29:
		return "F29"
	case REG_F30:
		return "F30"
	case REG_F31:
		return "F31"
	}
	return "UNKNOWN"
}

// Arm64-specific instructions.
//
// Note: This only defines arm64 instructions used by the JNI stubs.
// Note: Naming conventions intentionally match the Go assembler: https://go.dev/doc/asm
// See https://community.arm.com/arm-community-blogs/b/architectures-and-processors-blog/posts/arm64-assembly-language
const (
	NOP asm.Instruction = iota
	ADD
	ADDW
	AND
	ANDW
	B
	BEQ
	BNE
	BL
	BRK
	CBNZ
	CBNZW
	CBZ
	CBZW
	CMP
	CMPW
	CSEL
	CSELW
	DMB
	FLDPD
	FMOVD
	FMOVS
	FSTPD
	LDP
	MOVB
	MOVBU
	MOVD
	MOVH
	MOVHU
	MOVW
	MOVWU
	NEG
	NEGW
	ORR
	RET
	STP
	SUB
	SUBW
	SXTBW
	SXTHW
	UXTBW
	UXTHW
)

// InstructionName returns the name of a given instruction
func InstructionName(i asm.Instruction) string {
	switch i {
	case NOP:
		return "NOP"
	case ADD:
		return "ADD"
	case ADDW:
		return "ADDW"
	case AND:
		return "AND"
	case ANDW:
		return "ANDW"
	case B:
		return "B"
	case BEQ:
		return "BEQ"
	case BNE:
		return "BNE"
	case BL:
		return "BL"
	case BRK:
		return "BRK"
	case CBNZ:
		return "CBNZ"
	case CBNZW:
		return "CBNZW"
	case CBZ:
		return "CBZ"
	case CBZW:
		return "CBZW"
	case CMP:
		return "CMP"
	case CMPW:
		return "CMPW"
	case CSEL:
		return "CSEL"
	case CSELW:
		return "CSELW"
	case DMB:
		return "DMB"
	case FLDPD:
		return "FLDPD"
	case FMOVD:
		return "FMOVD"
	case FMOVS:
		return "FMOVS"
	case FSTPD:
		return "FSTPD"
	case LDP:
		return "LDP"
	case MOVB:
		return "MOVB"
	case MOVBU:
		return "MOVBU"
	case MOVD:
		return "MOVD"
	case MOVH:
		return "MOVH"
	case MOVHU:
		return "MOVHU"
	case MOVW:
		return "MOVW"
	case MOVWU:
		return "MOVWU"
	case NEG:
		return "NEG"
	case NEGW:
		return "NEGW"
	case ORR:
		return "ORR"
	case RET:
		return "RET"
	case STP:
		return "STP"
	case SUB:
		return "SUB"
	case SUBW:
		return "SUBW"
	case SXTBW:
		return "SXTBW"
	case SXTHW:
		return "SXTHW"
	case UXTBW:
		return "UXTBW"
	case UXTHW:
		return "UXTHW"
	}
	return fmt.Sprintf("UNKNOWN(%d)", i)
}

// DMB option for the inner shareable domain, covering both loads and stores.
const DMB_ISH asm.ConstantValue = 0b1011
