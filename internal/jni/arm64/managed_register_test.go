package jni_arm64

import (
	"testing"

	"github.com/stretchr/testify/require"

	asm_arm64 "github.com/artquick/quick/internal/asm/arm64"
	"github.com/artquick/quick/internal/jni"
)

func TestManagedRegister_kinds(t *testing.T) {
	tests := []struct {
		reg                ManagedRegister
		name               string
		isX, isW, isD, isS bool
	}{
		{reg: FromXRegister(X0), name: "X0", isX: true},
		{reg: FromXRegister(SP), name: "SP", isX: true},
		{reg: FromXRegister(XZR), name: "XZR", isX: true},
		{reg: FromWRegister(W7), name: "W7", isW: true},
		{reg: FromDRegister(D31), name: "D31", isD: true},
		{reg: FromSRegister(S0), name: "S0", isS: true},
		{reg: NoRegister, name: "No Register"},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.name, tc.reg.String())
			require.Equal(t, tc.isX, tc.reg.IsXRegister())
			require.Equal(t, tc.isW, tc.reg.IsWRegister())
			require.Equal(t, tc.isD, tc.reg.IsDRegister())
			require.Equal(t, tc.isS, tc.reg.IsSRegister())
			require.Equal(t, tc.isX || tc.isW, tc.reg.IsGPRegister())
			require.Equal(t, tc.isD || tc.isS, tc.reg.IsFPRegister())
			require.Equal(t, tc.reg, FromJNI(tc.reg.JNI()))
		})
	}
}

func TestManagedRegister_Overlaps(t *testing.T) {
	x3, w3 := FromXRegister(X3), FromWRegister(W3)
	d3, s3 := FromDRegister(D3), FromSRegister(S3)

	require.True(t, x3.Overlaps(w3))
	require.True(t, w3.Overlaps(x3))
	require.True(t, d3.Overlaps(s3))
	require.False(t, x3.Overlaps(d3))
	require.False(t, x3.Overlaps(FromWRegister(W4)))
	require.False(t, FromXRegister(SP).Overlaps(FromXRegister(XZR)))
	require.False(t, x3.Overlaps(NoRegister))

	require.Equal(t, W3, x3.AsOverlappingWRegister())
	require.Equal(t, X3, w3.AsOverlappingXRegister())
	require.Equal(t, S3, d3.AsOverlappingSRegister())
	require.Equal(t, D3, s3.AsOverlappingDRegister())
}

func TestManagedRegister_invalid(t *testing.T) {
	require.Panics(t, func() { FromJNI(jni.ManagedRegister(numRegIDs)) })
	require.Panics(t, func() { FromWRegister(W0).AsXRegister() })
	require.Panics(t, func() { FromXRegister(X0).AsDRegister() })
	require.Panics(t, func() { FromSRegister(S0).DWARFReg() })
}

func TestManagedRegister_asmRegister(t *testing.T) {
	require.Equal(t, asm_arm64.REG_R5, FromXRegister(X5).asmRegister())
	require.Equal(t, asm_arm64.REG_R5, FromWRegister(W5).asmRegister())
	require.Equal(t, asm_arm64.REG_RSP, FromXRegister(SP).asmRegister())
	require.Equal(t, asm_arm64.REGZERO, FromXRegister(XZR).asmRegister())
	require.Equal(t, asm_arm64.REG_F9, FromDRegister(D9).asmRegister())
	require.Equal(t, asm_arm64.REG_F9, FromSRegister(S9).asmRegister())
}
