package jni_x86_64

import (
	"testing"

	"github.com/stretchr/testify/require"

	asm_x86 "github.com/artquick/quick/internal/asm/x86"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/jni"
)

func TestManagedRegister_kinds(t *testing.T) {
	tests := []struct {
		reg                         ManagedRegister
		name                        string
		isCpu, isXmm, isX87, isPair bool
	}{
		{reg: FromCpuRegister(RAX), name: "RAX", isCpu: true},
		{reg: FromCpuRegister(R15), name: "R15", isCpu: true},
		{reg: FromXmmRegister(XMM12), name: "XMM12", isXmm: true},
		{reg: FromX87Register(ST0), name: "ST0", isX87: true},
		{reg: FromRegisterPair(RAX_RDX), name: "RAX_RDX", isPair: true},
		{reg: NoRegister, name: "No Register"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.name, tc.reg.String())
			require.Equal(t, tc.isCpu, tc.reg.IsCpuRegister())
			require.Equal(t, tc.isXmm, tc.reg.IsXmmRegister())
			require.Equal(t, tc.isX87, tc.reg.IsX87Register())
			require.Equal(t, tc.isPair, tc.reg.IsRegisterPair())
			require.Equal(t, tc.reg, FromJNI(tc.reg.JNI()))
		})
	}
}

func TestManagedRegister_Overlaps(t *testing.T) {
	pair := FromRegisterPair(RAX_RDX)
	require.True(t, pair.Overlaps(FromCpuRegister(RAX)))
	require.True(t, FromCpuRegister(RDX).Overlaps(pair))
	require.False(t, pair.Overlaps(FromCpuRegister(RCX)))
	require.False(t, pair.Overlaps(NoRegister))
	require.False(t, FromXmmRegister(XMM0).Overlaps(FromCpuRegister(RAX)))
	require.True(t, FromXmmRegister(XMM3).Overlaps(FromXmmRegister(XMM3)))
	require.Equal(t, RAX, pair.AsRegisterPairLow())
	require.Equal(t, RDX, pair.AsRegisterPairHigh())
}

func TestManagedRegister_invalid(t *testing.T) {
	require.Panics(t, func() { FromJNI(jni.ManagedRegister(41)) })
	require.Panics(t, func() { FromXmmRegister(XMM0).AsCpuRegister() })
	require.Panics(t, func() { FromCpuRegister(RAX).AsXmmRegister() })
	require.Panics(t, func() { FromX87Register(ST0).DWARFReg() })
}

func TestManagedRegister_numbering(t *testing.T) {
	require.Equal(t, asm_x86.REG_SP, FromCpuRegister(RSP).asmRegister())
	require.Equal(t, asm_x86.REG_R12, FromCpuRegister(R12).asmRegister())
	require.Equal(t, asm_x86.REG_X15, FromXmmRegister(XMM15).asmRegister())

	// DWARF swaps RCX and RDX and puts RSI and RDI before RBP and RSP.
	require.Equal(t, dwarf.Reg(2), FromCpuRegister(RCX).DWARFReg())
	require.Equal(t, dwarf.Reg(1), FromCpuRegister(RDX).DWARFReg())
	require.Equal(t, dwarf.Reg(7), FromCpuRegister(RSP).DWARFReg())
	require.Equal(t, dwarf.Reg(6), FromCpuRegister(RBP).DWARFReg())
	require.Equal(t, dwarf.Reg(13), FromCpuRegister(R13).DWARFReg())
	require.Equal(t, dwarf.Reg(29), FromXmmRegister(XMM12).DWARFReg())
}

func TestManagedRegister_idRange(t *testing.T) {
	// The last register pair has the highest id.
	last := FromRegisterPair(RAX_RDX)
	require.Equal(t, jni.ManagedRegister(numRegIDs-1), last.JNI())
	require.Equal(t, last, FromJNI(last.JNI()))
	require.True(t, last.IsRegisterPair())
	require.Equal(t, RAX_RDX, last.AsRegisterPair())
	require.Panics(t, func() { FromJNI(last.JNI() + 1) })
}
