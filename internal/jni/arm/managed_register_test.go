package jni_arm

import (
	"testing"

	"github.com/stretchr/testify/require"

	asm_arm "github.com/artquick/quick/internal/asm/arm"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/jni"
)

func TestManagedRegister_kinds(t *testing.T) {
	tests := []struct {
		reg                      ManagedRegister
		name                     string
		isCore, isS, isD, isPair bool
	}{
		{reg: FromCoreRegister(R0), name: "R0", isCore: true},
		{reg: FromCoreRegister(SP), name: "SP", isCore: true},
		{reg: FromCoreRegister(TR), name: "R9", isCore: true},
		{reg: FromSRegister(S31), name: "S31", isS: true},
		{reg: FromDRegister(D15), name: "D15", isD: true},
		{reg: FromRegisterPair(R2_R3), name: "R2_R3", isPair: true},
		{reg: NoRegister, name: "No Register"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.name, tc.reg.String())
			require.Equal(t, tc.isCore, tc.reg.IsCoreRegister())
			require.Equal(t, tc.isS, tc.reg.IsSRegister())
			require.Equal(t, tc.isD, tc.reg.IsDRegister())
			require.Equal(t, tc.isPair, tc.reg.IsRegisterPair())
			require.Equal(t, tc.reg, FromJNI(tc.reg.JNI()))
		})
	}
}

func TestManagedRegister_Overlaps(t *testing.T) {
	r0r1 := FromRegisterPair(R0_R1)
	require.True(t, r0r1.Overlaps(FromCoreRegister(R1)))
	require.True(t, FromCoreRegister(R0).Overlaps(r0r1))
	require.True(t, FromRegisterPair(R1_R2).Overlaps(r0r1))
	require.False(t, FromRegisterPair(R2_R3).Overlaps(r0r1))

	d1 := FromDRegister(D1)
	require.True(t, d1.Overlaps(FromSRegister(S2)))
	require.True(t, d1.Overlaps(FromSRegister(S3)))
	require.False(t, d1.Overlaps(FromSRegister(S4)))
	require.False(t, d1.Overlaps(FromCoreRegister(R1)))
	require.False(t, d1.Overlaps(NoRegister))

	require.Equal(t, S2, d1.AsOverlappingDRegisterLow())
	require.Equal(t, S3, d1.AsOverlappingDRegisterHigh())
	require.Equal(t, R4, FromRegisterPair(R4_R5).AsRegisterPairLow())
	require.Equal(t, R5, FromRegisterPair(R4_R5).AsRegisterPairHigh())
}

func TestManagedRegister_invalid(t *testing.T) {
	require.Panics(t, func() { FromJNI(jni.ManagedRegister(numRegIDs)) })
	require.Panics(t, func() { FromSRegister(S0).AsCoreRegister() })
	require.Panics(t, func() { FromCoreRegister(R0).AsRegisterPair() })
	require.Panics(t, func() { FromDRegister(D0).DWARFReg() })
	require.Panics(t, func() { FromRegisterPair(R0_R1).asmRegister() })
}

func TestManagedRegister_numbering(t *testing.T) {
	require.Equal(t, asm_arm.REG_R12, FromCoreRegister(IP).asmRegister())
	require.Equal(t, asm_arm.REG_SP, FromCoreRegister(SP).asmRegister())
	require.Equal(t, asm_arm.REG_S17, FromSRegister(S17).asmRegister())
	require.Equal(t, asm_arm.REG_F3, FromDRegister(D3).asmRegister())
	require.Equal(t, dwarf.ArmCore(14), FromCoreRegister(LR).DWARFReg())
	require.Equal(t, dwarf.ArmFp(16), FromSRegister(S16).DWARFReg())
}

func TestManagedRegister_idRange(t *testing.T) {
	// The last register pair has the highest id.
	last := FromRegisterPair(R1_R2)
	require.Equal(t, jni.ManagedRegister(numRegIDs-1), last.JNI())
	require.Equal(t, last, FromJNI(last.JNI()))
	require.True(t, last.IsRegisterPair())
	require.Equal(t, R1_R2, last.AsRegisterPair())
	require.Panics(t, func() { FromJNI(last.JNI() + 1) })
}
