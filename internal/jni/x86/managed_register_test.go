package jni_x86

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
		{reg: FromCpuRegister(EAX), name: "EAX", isCpu: true},
		{reg: FromCpuRegister(EDI), name: "EDI", isCpu: true},
		{reg: FromXmmRegister(XMM7), name: "XMM7", isXmm: true},
		{reg: FromX87Register(ST0), name: "ST0", isX87: true},
		{reg: FromRegisterPair(EAX_EDX), name: "EAX_EDX", isPair: true},
		{reg: FromRegisterPair(ECX_EDX), name: "ECX_EDX", isPair: true},
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
	eaxEdx := FromRegisterPair(EAX_EDX)
	require.True(t, eaxEdx.Overlaps(FromCpuRegister(EDX)))
	require.True(t, FromCpuRegister(EAX).Overlaps(eaxEdx))
	require.True(t, FromRegisterPair(EDX_ECX).Overlaps(eaxEdx))
	require.False(t, FromRegisterPair(ECX_EBX).Overlaps(eaxEdx))
	require.False(t, eaxEdx.Overlaps(NoRegister))

	xmm0 := FromXmmRegister(XMM0)
	require.True(t, xmm0.Overlaps(xmm0))
	require.False(t, xmm0.Overlaps(FromXmmRegister(XMM1)))
	require.False(t, xmm0.Overlaps(FromCpuRegister(EAX)))
	require.False(t, FromX87Register(ST0).Overlaps(xmm0))

	require.Equal(t, ECX, FromRegisterPair(ECX_EDX).AsRegisterPairLow())
	require.Equal(t, EDX, FromRegisterPair(ECX_EDX).AsRegisterPairHigh())
}

func TestManagedRegister_invalid(t *testing.T) {
	require.Panics(t, func() { FromJNI(jni.ManagedRegister(1000)) })
	require.Panics(t, func() { FromXmmRegister(XMM0).AsCpuRegister() })
	require.Panics(t, func() { FromCpuRegister(EAX).AsRegisterPair() })
	require.Panics(t, func() { FromX87Register(ST1).asmRegister() })
	require.Panics(t, func() { FromX87Register(ST0).DWARFReg() })
}

func TestManagedRegister_numbering(t *testing.T) {
	require.Equal(t, asm_x86.REG_SP, FromCpuRegister(ESP).asmRegister())
	require.Equal(t, asm_x86.REG_DI, FromCpuRegister(EDI).asmRegister())
	require.Equal(t, asm_x86.REG_X3, FromXmmRegister(XMM3).asmRegister())
	require.Equal(t, asm_x86.REG_F0, FromX87Register(ST0).asmRegister())

	require.Equal(t, dwarf.X86Core(3), FromCpuRegister(EBX).DWARFReg())
	require.Equal(t, 23, FromXmmRegister(XMM2).DWARFReg().Num())
}

func TestManagedRegister_idRange(t *testing.T) {
	// The last register pair has the highest id.
	last := FromRegisterPair(ECX_EDX)
	require.Equal(t, jni.ManagedRegister(numRegIDs-1), last.JNI())
	require.Equal(t, last, FromJNI(last.JNI()))
	require.True(t, last.IsRegisterPair())
	require.Equal(t, ECX_EDX, last.AsRegisterPair())
	require.Panics(t, func() { FromJNI(last.JNI() + 1) })
}
