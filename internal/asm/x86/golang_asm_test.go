package asm_x86

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/asm"
)

func TestAssemblerGoAsmImpl_Encodings(t *testing.T) {
	tests := []struct {
		name  string
		is64  bool
		setup func(a Assembler)
		exp   []byte
	}{
		{
			name:  "movq %rax, %rbx",
			is64:  true,
			setup: func(a Assembler) { a.CompileRegisterToRegister(MOVQ, REG_AX, REG_BX) },
			exp:   []byte{0x48, 0x89, 0xc3},
		},
		{
			name:  "ret",
			is64:  true,
			setup: func(a Assembler) { a.CompileStandAlone(RET) },
			exp:   []byte{0xc3},
		},
		{
			name:  "int3",
			is64:  true,
			setup: func(a Assembler) { a.CompileStandAlone(INT3) },
			exp:   []byte{0xcc},
		},
		{
			name:  "mfence",
			is64:  true,
			setup: func(a Assembler) { a.CompileStandAlone(MFENCE) },
			exp:   []byte{0x0f, 0xae, 0xf0},
		},
		{
			name: "pushq %rbx; popq %rbx",
			is64: true,
			setup: func(a Assembler) {
				a.CompileRegisterToNone(PUSHQ, REG_BX)
				a.CompileNoneToRegister(POPQ, REG_BX)
			},
			exp: []byte{0x53, 0x5b},
		},
		{
			name:  "movq 8(%rsp), %rax",
			is64:  true,
			setup: func(a Assembler) { a.CompileMemoryToRegister(MOVQ, REG_SP, 8, REG_AX) },
			exp:   []byte{0x48, 0x8b, 0x44, 0x24, 0x08},
		},
		{
			name:  "call *8(%rax)",
			is64:  true,
			setup: func(a Assembler) { a.CompileJumpToMemory(CALL, REG_AX, 8) },
			exp:   []byte{0xff, 0x50, 0x08},
		},
		{
			name:  "subq $16, %rsp",
			is64:  true,
			setup: func(a Assembler) { a.CompileConstToRegister(SUBQ, 16, REG_SP) },
			exp:   []byte{0x48, 0x83, 0xec, 0x10},
		},
		{
			name:  "movsd %xmm0, 8(%rsp)",
			is64:  true,
			setup: func(a Assembler) { a.CompileRegisterToMemory(MOVSD, REG_X0, REG_SP, 8) },
			exp:   []byte{0xf2, 0x0f, 0x11, 0x44, 0x24, 0x08},
		},
		{
			name:  "pushl %ebx",
			setup: func(a Assembler) { a.CompileRegisterToNone(PUSHL, REG_BX) },
			exp:   []byte{0x53},
		},
		{
			name:  "movl 4(%esp), %eax",
			setup: func(a Assembler) { a.CompileMemoryToRegister(MOVL, REG_SP, 4, REG_AX) },
			exp:   []byte{0x8b, 0x44, 0x24, 0x04},
		},
		{
			name:  "flds 4(%esp)",
			setup: func(a Assembler) { a.CompileMemoryToRegister(FMOVF, REG_SP, 4, REG_F0) },
			exp:   []byte{0xd9, 0x44, 0x24, 0x04},
		},
		{
			name:  "fstps 4(%esp)",
			setup: func(a Assembler) { a.CompileRegisterToMemory(FMOVFP, REG_F0, REG_SP, 4) },
			exp:   []byte{0xd9, 0x5c, 0x24, 0x04},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewAssembler(tc.is64)
			require.NoError(t, err)
			tc.setup(a)
			code, err := a.Assemble()
			require.NoError(t, err)
			require.Equal(t, tc.exp, code)
		})
	}
}

func TestAssemblerGoAsmImpl_SegmentPrefix(t *testing.T) {
	for _, tc := range []struct {
		is64   bool
		seg    asm.Register
		prefix byte
	}{{is64: false, seg: REG_FS, prefix: 0x64}, {is64: true, seg: REG_GS, prefix: 0x65}} {
		a, err := NewAssembler(tc.is64)
		require.NoError(t, err)
		a.CompileMemoryToRegister(MOVL, tc.seg, 0x10, REG_AX)
		code, err := a.Assemble()
		require.NoError(t, err)
		require.Equal(t, tc.prefix, code[0])
	}
}

func TestAssemblerGoAsmImpl_BranchToLabel(t *testing.T) {
	a, err := NewAssembler(true)
	require.NoError(t, err)

	var l asm.Label
	a.CompileJumpToLabel(JEQ, &l)
	a.CompileStandAlone(RET)
	a.Bind(&l)
	pos := a.Position()
	a.CompileStandAlone(RET)

	code, err := a.Assemble()
	require.NoError(t, err)
	require.Equal(t, []byte{0x74, 0x01, 0xc3, 0xc3}, code)
	require.Equal(t, 3, a.PCOf(pos))
}

func TestAssemblerGoAsmImpl_32BitChecks(t *testing.T) {
	a, err := NewAssembler(false)
	require.NoError(t, err)
	require.PanicsWithValue(t, "BUG: R8 is not available in the 32-bit mode", func() {
		a.CompileRegisterToRegister(MOVL, REG_R8, REG_AX)
	})
	require.PanicsWithValue(t, "BUG: the low byte of SI is not addressable in the 32-bit mode", func() {
		a.CompileRegisterToRegister(MOVBLSX, REG_SI, REG_AX)
	})
}

func TestRegisterName(t *testing.T) {
	require.Equal(t, "SP", RegisterName(REG_SP))
	require.Equal(t, "R15", RegisterName(REG_R15))
	require.Equal(t, "X7", RegisterName(REG_X7))
	require.Equal(t, "GS", RegisterName(REG_GS))
	require.Equal(t, "MOVWLZX", InstructionName(MOVWLZX))
}
