package asm_arm64

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/asm"
)

func words(code []byte) (ret []uint32) {
	for i := 0; i+4 <= len(code); i += 4 {
		ret = append(ret, binary.LittleEndian.Uint32(code[i:]))
	}
	return
}

func TestAssemblerGoAsmImpl_Encodings(t *testing.T) {
	tests := []struct {
		name  string
		setup func(a Assembler)
		exp   uint32
	}{
		{
			name:  "mov x2, x1",
			setup: func(a Assembler) { a.CompileRegisterToRegister(MOVD, REG_R1, REG_R2) },
			exp:   0xaa0103e2,
		},
		{
			name:  "ret",
			setup: func(a Assembler) { a.CompileJumpToRegister(RET, REG_R30) },
			exp:   0xd65f03c0,
		},
		{
			name:  "blr x16",
			setup: func(a Assembler) { a.CompileJumpToRegister(BL, REG_R16) },
			exp:   0xd63f0200,
		},
		{
			name:  "brk #0",
			setup: func(a Assembler) { a.CompileConst(BRK, 0) },
			exp:   0xd4200000,
		},
		{
			name:  "dmb ish",
			setup: func(a Assembler) { a.CompileConst(DMB, DMB_ISH) },
			exp:   0xd5033bbf,
		},
		{
			name:  "add sp, sp, #16",
			setup: func(a Assembler) { a.CompileRegisterAndConstToRegister(ADD, REG_RSP, 16, REG_RSP) },
			exp:   0x910043ff,
		},
		{
			name:  "sub sp, sp, #16",
			setup: func(a Assembler) { a.CompileRegisterAndConstToRegister(SUB, REG_RSP, 16, REG_RSP) },
			exp:   0xd10043ff,
		},
		{
			name:  "cmp w2, wzr",
			setup: func(a Assembler) { a.CompileRegisterAndConstToNone(CMPW, REG_R2, 0) },
			exp:   0x6b1f005f,
		},
		{
			name:  "cmp x2, #1",
			setup: func(a Assembler) { a.CompileRegisterAndConstToNone(CMP, REG_R2, 1) },
			exp:   0xf100045f,
		},
		{
			name:  "stp x19, x20, [sp, #16]",
			setup: func(a Assembler) { a.CompileRegisterPairToMemory(STP, REG_R19, REG_R20, REG_RSP, 16) },
			exp:   0xa90153f3,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			a, err := NewAssembler(REG_R17)
			require.NoError(t, err)
			tc.setup(a)
			code, err := a.Assemble()
			require.NoError(t, err)
			require.Equal(t, []uint32{tc.exp}, words(code))
		})
	}
}

func TestAssemblerGoAsmImpl_BranchToLabel(t *testing.T) {
	a, err := NewAssembler(REG_R17)
	require.NoError(t, err)

	var l asm.Label
	require.Equal(t, 0, a.Position())
	a.CompileBranchOnRegisterToLabel(CBZ, REG_R0, &l)
	a.CompileRegisterToRegister(MOVD, REG_R1, REG_R2)
	a.Bind(&l)
	retPos := a.Position()
	a.CompileJumpToRegister(RET, REG_R30)
	require.False(t, l.IsLinked())

	code, err := a.Assemble()
	require.NoError(t, err)
	require.Equal(t, []uint32{0xb4000040, 0xaa0103e2, 0xd65f03c0}, words(code))
	require.Equal(t, 8, a.PCOf(retPos))
	require.Equal(t, 12, a.PCOf(a.Position()))
}

func TestAssemblerGoAsmImpl_BindAtEnd(t *testing.T) {
	a, err := NewAssembler(REG_R17)
	require.NoError(t, err)

	var l asm.Label
	a.CompileJumpToLabel(B, &l)
	a.Bind(&l)
	code, err := a.Assemble()
	require.NoError(t, err)
	// b #4, to the end of the code.
	require.Equal(t, []uint32{0x14000001}, words(code))
}

func TestAssemblerGoAsmImpl_AssembleTwice(t *testing.T) {
	a, err := NewAssembler(REG_R17)
	require.NoError(t, err)
	a.CompileStandAlone(NOP)
	_, err = a.Assemble()
	require.NoError(t, err)
	_, err = a.Assemble()
	require.EqualError(t, err, "already assembled")
}

func TestRegisterName(t *testing.T) {
	require.Equal(t, "R19", RegisterName(REG_R19))
	require.Equal(t, "RSP", RegisterName(REG_RSP))
	require.Equal(t, "F31", RegisterName(REG_F31))
	require.Equal(t, "STP", InstructionName(STP))
}
