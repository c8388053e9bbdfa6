package asm_arm

import (
	"github.com/artquick/quick/internal/asm"
)

// Assembler is the interface for arm (A32) specific assembler.
type Assembler interface {
	asm.AssemblerBase

	// CompileRegisterAndConstToRegister adds an instruction where source operands are the register `src`
	// and the constant `c`, and the destination is the register `dst`. For example, `ADD $c, src, dst`.
	CompileRegisterAndConstToRegister(instruction asm.Instruction, src asm.Register, c asm.ConstantValue, dst asm.Register)

	// CompileTwoRegistersToRegister adds an instruction where source operands consists of two registers `src1` and `src2`,
	// and the destination is the register `dst`.
	CompileTwoRegistersToRegister(instruction asm.Instruction, src1, src2, dst asm.Register)

	// CompileRegisterAndConstToNone adds an instruction where source operands consist of one register `src` and
	// constant `srcConst`, and destination operand is unspecified.
	CompileRegisterAndConstToNone(instruction asm.Instruction, src asm.Register, srcConst asm.ConstantValue)

	// CompileTwoRegistersToNone adds an instruction where source operands consist of two registers `src1` and `src2`,
	// and destination operand is unspecified. For example, `CMP src1, src2` compares src2 with src1.
	CompileTwoRegistersToNone(instruction asm.Instruction, src1, src2 asm.Register)

	// CompileRegisterPairToDouble moves `lo` and `hi` into the double precision register `dst`.
	CompileRegisterPairToDouble(lo, hi, dst asm.Register)

	// CompileDoubleToRegisterPair moves the double precision register `src` into `lo` and `hi`.
	CompileDoubleToRegisterPair(src, lo, hi asm.Register)

	// CompilePush pushes the core registers in `regs` to the stack, the lowest numbered at the lowest address.
	CompilePush(regs ...asm.Register)

	// CompilePop pops the core registers in `regs` from the stack.
	CompilePop(regs ...asm.Register)

	// CompileVPush pushes `count` consecutive single precision registers starting at `first`.
	CompileVPush(first asm.Register, count int)

	// CompileVPop pops `count` consecutive single precision registers starting at `first`.
	CompileVPop(first asm.Register, count int)

	// CompileConditional makes every instruction added by `fn` execute only if `cond` holds.
	CompileConditional(cond asm.ConditionalRegisterState, fn func())

	// CompileConst adds an instruction whose only operand is the constant `c`. For example, `DMB $c`.
	CompileConst(instruction asm.Instruction, c asm.ConstantValue)

	// CompileReturn adds `BX LR`.
	CompileReturn()

	// CompileBreakpoint adds `BKPT #0`.
	CompileBreakpoint()

	// ForEachInstruction calls fn with the offset and the text of every encoded instruction.
	ForEachInstruction(fn func(pc int, text string))
}
