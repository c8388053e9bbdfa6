package asm_x86

import (
	"github.com/artquick/quick/internal/asm"
)

// Assembler is the interface for x86 specific assembler, used for both 386 and amd64.
type Assembler interface {
	asm.AssemblerBase

	// CompileConstToMemory adds an instruction where source operand is the constant `value` and
	// the destination is the memory address specified by `dstBaseReg+dstOffset`.
	CompileConstToMemory(instruction asm.Instruction, value asm.ConstantValue, dstBaseReg asm.Register, dstOffset asm.ConstantValue) asm.Node

	// CompileMemoryToConst adds an instruction where source operand is the memory address specified by
	// `srcBaseReg+srcOffset` and the destination is the constant `value`. For example, `CMPL off(base), $value`.
	CompileMemoryToConst(instruction asm.Instruction, srcBaseReg asm.Register, srcOffset asm.ConstantValue, value asm.ConstantValue) asm.Node

	// CompileRegisterToNone adds an instruction where source operand is `register`, and the destination is unspecified.
	CompileRegisterToNone(instruction asm.Instruction, register asm.Register)

	// CompileNoneToRegister adds an instruction where destination operand is `register`, and the source is unspecified.
	CompileNoneToRegister(instruction asm.Instruction, register asm.Register)

	// CompileMemoryToNone adds an instruction where source operand is the memory address specified by
	// `baseReg+offset`, and the destination is unspecified.
	CompileMemoryToNone(instruction asm.Instruction, baseReg asm.Register, offset asm.ConstantValue)

	// CompileNoneToMemory adds an instruction where destination operand is the memory address specified by
	// `baseReg+offset`, and the source is unspecified.
	CompileNoneToMemory(instruction asm.Instruction, baseReg asm.Register, offset asm.ConstantValue)

	// CompileJumpToMemory adds jump-type instruction whose destination is stored in the memory address specified by
	// `baseReg+offset`.
	CompileJumpToMemory(jmpInstruction asm.Instruction, baseReg asm.Register, offset asm.ConstantValue)

	// ForEachInstruction calls fn with the offset and the text of every encoded instruction.
	ForEachInstruction(fn func(pc int, text string))
}
