package jnicompiler

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
)

func TestKind_String(t *testing.T) {
	require.Equal(t, "arm", KindArm.String())
	require.Equal(t, "x86_64", KindX86_64.String())
	require.Equal(t, "Kind(42)", Kind(42).String())
}

func TestNewMacroAssembler(t *testing.T) {
	tests := []struct {
		set  isa.InstructionSet
		ptr  isa.PointerSize
		kind Kind
	}{
		{set: isa.Arm, ptr: isa.PointerSize32, kind: KindArm},
		{set: isa.Thumb2, ptr: isa.PointerSize32, kind: KindArm},
		{set: isa.Arm64, ptr: isa.PointerSize64, kind: KindArm64},
		{set: isa.X86, ptr: isa.PointerSize32, kind: KindX86},
		{set: isa.X86_64, ptr: isa.PointerSize64, kind: KindX86_64},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.set.String(), func(t *testing.T) {
			m, err := NewMacroAssembler(tc.set, nil, tc.ptr, jni.NewConfig())
			require.NoError(t, err)
			require.Equal(t, tc.kind, m.Kind)
			require.NotNil(t, m.CFI())
			require.Equal(t, 0, m.CFI().CurrentCFAOffset())

			require.Equal(t, tc.kind == KindArm, m.Arm != nil)
			require.Equal(t, tc.kind == KindArm64, m.Arm64 != nil)
			require.Equal(t, tc.kind == KindX86, m.X86 != nil)
			require.Equal(t, tc.kind == KindX86_64, m.X86_64 != nil)
		})
	}
}

func TestNewMacroAssembler_errors(t *testing.T) {
	x86_64Features, err := isa.FromVariant(isa.X86_64, "generic")
	require.NoError(t, err)
	armFeatures, err := isa.FromVariant(isa.Arm, "cortex-a53")
	require.NoError(t, err)

	tests := []struct {
		name     string
		set      isa.InstructionSet
		ptr      isa.PointerSize
		features *isa.Features
		expErr   string
	}{
		{
			name:   "none",
			set:    isa.None,
			ptr:    isa.PointerSize32,
			expErr: "no JNI macro-assembler for instruction set none",
		},
		{
			name:   "mips",
			set:    isa.Mips,
			ptr:    isa.PointerSize32,
			expErr: "no JNI macro-assembler for instruction set mips",
		},
		{
			name:   "pointer size",
			set:    isa.Arm64,
			ptr:    isa.PointerSize32,
			expErr: "pointer size 4 does not match instruction set arm64 (8)",
		},
		{
			name:     "x86_64 features on x86",
			set:      isa.X86,
			ptr:      isa.PointerSize32,
			features: x86_64Features,
			expErr:   "features for x86_64 used with instruction set x86",
		},
		{
			name:     "arm features on arm64",
			set:      isa.Arm64,
			ptr:      isa.PointerSize64,
			features: armFeatures,
			expErr:   "features for arm used with instruction set arm64",
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewMacroAssembler(tc.set, tc.features, tc.ptr, jni.NewConfig())
			require.EqualError(t, err, tc.expErr)
		})
	}
}

func TestNewMacroAssembler_thumb2Features(t *testing.T) {
	features, err := isa.FromVariant(isa.Thumb2, "krait")
	require.NoError(t, err)
	m, err := NewMacroAssembler(isa.Arm, features, isa.PointerSize32, jni.NewConfig())
	require.NoError(t, err)
	require.Equal(t, KindArm, m.Kind)
}

func TestNewCallingConventions(t *testing.T) {
	for _, set := range []isa.InstructionSet{isa.Arm, isa.Thumb2, isa.Arm64, isa.X86, isa.X86_64} {
		set := set
		t.Run(set.String(), func(t *testing.T) {
			mr, err := NewManagedRuntimeCallingConvention(set, true, false, "IJL")
			require.NoError(t, err)
			require.Equal(t, 2, mr.NumArgs())
			require.Equal(t, 1, mr.NumReferenceArgs())

			conv, err := NewJniCallingConvention(set, false, true, false, false, "VL")
			require.NoError(t, err)
			require.Equal(t, 2, conv.ReferenceCount())
			require.Zero(t, conv.FrameSize()%isa.StackAlignment)
		})
	}
}

func TestNewCallingConventions_errors(t *testing.T) {
	_, err := NewManagedRuntimeCallingConvention(isa.Mips64, true, false, "V")
	require.EqualError(t, err, "no JNI macro-assembler for instruction set mips64")

	_, err = NewManagedRuntimeCallingConvention(isa.X86, true, false, "IV")
	require.EqualError(t, err, `invalid parameter type 'V' at 1 in shorty "IV"`)

	_, err = NewJniCallingConvention(isa.Arm64, true, false, false, false, "")
	require.EqualError(t, err, "empty shorty")

	_, err = NewJniCallingConvention(isa.X86_64, false, false, false, true, "V")
	require.Error(t, err)
}
