package asm_arm64

import (
	"github.com/artquick/quick/internal/asm"
)

// Assembler is the interface for arm64 specific assembler.
type Assembler interface {
	asm.AssemblerBase

	// CompileRegisterAndConstToRegister adds an instruction where source operands are the register `src`
	// and the constant `c`, and the destination is the register `dst`. For example, `ADD $c, src, dst`.
	CompileRegisterAndConstToRegister(instruction asm.Instruction, src asm.Register, c asm.ConstantValue, dst asm.Register)

	// CompileMemoryWithRegisterOffsetToRegister adds an instruction where source operand is the memory address
	// specified as `srcBaseReg + srcOffsetReg` and dst is the register `dstReg`.
	CompileMemoryWithRegisterOffsetToRegister(instruction asm.Instruction, srcBaseReg, srcOffsetReg, dstReg asm.Register)

	// CompileRegisterToMemoryWithRegisterOffset adds an instruction where source operand is the register `srcReg`,
	// and the destination is the memory address specified as `dstBaseReg + dstOffsetReg`
	CompileRegisterToMemoryWithRegisterOffset(instruction asm.Instruction, srcReg, dstBaseReg, dstOffsetReg asm.Register)

	// CompileTwoRegistersToRegister adds an instruction where source operands consists of two registers `src1` and `src2`,
	// and the destination is the register `dst`.
	CompileTwoRegistersToRegister(instruction asm.Instruction, src1, src2, dst asm.Register)

	// CompileTwoRegistersToNone adds an instruction where source operands consist of two registers `src1` and `src2`,
	// and destination operand is unspecified.
	CompileTwoRegistersToNone(instruction asm.Instruction, src1, src2 asm.Register)

	// CompileRegisterAndConstToNone adds an instruction where source operands consist of one register `src` and
	// constant `srcConst`, and destination operand is unspecified.
	CompileRegisterAndConstToNone(instruction asm.Instruction, src asm.Register, srcConst asm.ConstantValue)

	// CompileRegisterPairToMemory adds a store-pair instruction of `src1` and `src2` to `dstBaseReg+dstOffset`.
	CompileRegisterPairToMemory(instruction asm.Instruction, src1, src2, dstBaseReg asm.Register, dstOffset asm.ConstantValue)

	// CompileMemoryToRegisterPair adds a load-pair instruction from `srcBaseReg+srcOffset` into `dst1` and `dst2`.
	CompileMemoryToRegisterPair(instruction asm.Instruction, srcBaseReg asm.Register, srcOffset asm.ConstantValue, dst1, dst2 asm.Register)

	// CompileConditionalSelect adds an instruction which sets `dst` to `ifTrue` if the condition
	// satisfies, otherwise to `ifFalse`.
	CompileConditionalSelect(instruction asm.Instruction, cond asm.ConditionalRegisterState, ifTrue, ifFalse, dst asm.Register)

	// CompileBranchOnRegisterToLabel adds a compare-and-branch instruction (CBZ, CBNZ) testing `reg`
	// whose destination is the given label.
	CompileBranchOnRegisterToLabel(instruction asm.Instruction, reg asm.Register, l *asm.Label) asm.Node

	// CompileConst adds an instruction whose only operand is the constant `c`. For example, `DMB $c`.
	CompileConst(instruction asm.Instruction, c asm.ConstantValue)

	// ForEachInstruction calls fn with the offset and the text of every encoded instruction.
	ForEachInstruction(fn func(pc int, text string))
}
