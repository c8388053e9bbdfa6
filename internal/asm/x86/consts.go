package asm_x86

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
)

// x86 registers, shared by the 32-bit and the 64-bit modes.
//
// REG_R8 to REG_R15 and REG_X8 to REG_X15 only exist in the 64-bit mode.
// REG_F0 is the top of the x87 register stack. REG_FS and REG_GS are only valid
// as base registers of memory operands, which then address the segment directly.
// Note: naming convention is exactly the same as Go assembler: https://go.dev/doc/asm
const (
	REG_AX asm.Register = asm.NilRegister + 1 + iota
	REG_CX
	REG_DX
	REG_BX
	REG_SP
	REG_BP
	REG_SI
	REG_DI
	REG_R8
	REG_R9
	REG_R10
	REG_R11
	REG_R12
	REG_R13
	REG_R14
	REG_R15
	REG_X0
	REG_X1
	REG_X2
	REG_X3
	REG_X4
	REG_X5
	REG_X6
	REG_X7
	REG_X8
	REG_X9
	REG_X10
	REG_X11
	REG_X12
	REG_X13
	REG_X14
	REG_X15
	REG_F0
	REG_FS
	REG_GS
)

// RegisterName returns the name of a given register
func RegisterName(r asm.Register) string {
	switch {
	case r == asm.NilRegister:
		return "nil"
	case r == REG_F0:
		return "F0"
	case r == REG_FS:
		return "FS"
	case r == REG_GS:
		return "GS"
	case REG_AX <= r && r <= REG_R15:
		return coreRegisterNames[r-REG_AX]
	case isVectorRegister(r):
		return fmt.Sprintf("X%d", r-REG_X0)
	}
	return "UNKNOWN"
}

var coreRegisterNames = [...]string{"AX", "CX", "DX", "BX", "SP", "BP", "SI", "DI", "R8", "R9", "R10", "R11", "R12", "R13", "R14", "R15"}

func isVectorRegister(r asm.Register) bool {
	return REG_X0 <= r && r <= REG_X15
}

// x86 instructions.
//
// Note: This only defines x86 instructions used by the JNI stubs.
// Note: Naming conventions intentionally match the Go assembler: https://go.dev/doc/asm
const (
	NOP asm.Instruction = iota
	ADDL
	ADDQ
	CALL
	CMPL
	CMPQ
	FMOVD
	FMOVDP
	FMOVF
	FMOVFP
	INT3
	JEQ
	JMP
	JNE
	LEAL
	LEAQ
	LOCK
	MFENCE
	MOVBLSX
	MOVBLZX
	MOVL
	MOVQ
	MOVSD
	MOVSS
	MOVWLSX
	MOVWLZX
	NEGL
	POPL
	POPQ
	PUSHL
	PUSHQ
	RET
	SUBL
	SUBQ
	TESTL
	TESTQ
	XORL
	XORQ
)

// InstructionName returns the name of a given instruction
func InstructionName(i asm.Instruction) string {
	switch i {
	case NOP:
		return "NOP"
	case ADDL:
		return "ADDL"
	case ADDQ:
		return "ADDQ"
	case CALL:
		return "CALL"
	case CMPL:
		return "CMPL"
	case CMPQ:
		return "CMPQ"
	case FMOVD:
		return "FMOVD"
	case FMOVDP:
		return "FMOVDP"
	case FMOVF:
		return "FMOVF"
	case FMOVFP:
		return "FMOVFP"
	case INT3:
		return "INT3"
	case JEQ:
		return "JEQ"
	case JMP:
		return "JMP"
	case JNE:
		return "JNE"
	case LEAL:
		return "LEAL"
	case LEAQ:
		return "LEAQ"
	case LOCK:
		return "LOCK"
	case MFENCE:
		return "MFENCE"
	case MOVBLSX:
		return "MOVBLSX"
	case MOVBLZX:
		return "MOVBLZX"
	case MOVL:
		return "MOVL"
	case MOVQ:
		return "MOVQ"
	case MOVSD:
		return "MOVSD"
	case MOVSS:
		return "MOVSS"
	case MOVWLSX:
		return "MOVWLSX"
	case MOVWLZX:
		return "MOVWLZX"
	case NEGL:
		return "NEGL"
	case POPL:
		return "POPL"
	case POPQ:
		return "POPQ"
	case PUSHL:
		return "PUSHL"
	case PUSHQ:
		return "PUSHQ"
	case RET:
		return "RET"
	case SUBL:
		return "SUBL"
	case SUBQ:
		return "SUBQ"
	case TESTL:
		return "TESTL"
	case TESTQ:
		return "TESTQ"
	case XORL:
		return "XORL"
	case XORQ:
		return "XORQ"
	}
	return fmt.Sprintf("UNKNOWN(%d)", i)
}
