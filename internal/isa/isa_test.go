package isa

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstructionSet_String(t *testing.T) {
	for _, s := range []InstructionSet{Arm, Arm64, Thumb2, X86, X86_64, Mips, Mips64} {
		actual, err := InstructionSetFromString(s.String())
		require.NoError(t, err)
		require.Equal(t, s, actual)
	}
	_, err := InstructionSetFromString("sparc")
	require.Error(t, err)
}

func TestPointerSizeOf(t *testing.T) {
	for _, tc := range []struct {
		set InstructionSet
		exp PointerSize
	}{
		{set: Arm, exp: PointerSize32},
		{set: Thumb2, exp: PointerSize32},
		{set: X86, exp: PointerSize32},
		{set: Arm64, exp: PointerSize64},
		{set: X86_64, exp: PointerSize64},
	} {
		tc := tc
		t.Run(tc.set.String(), func(t *testing.T) {
			require.Equal(t, tc.exp, PointerSizeOf(tc.set))
			require.Equal(t, tc.exp == PointerSize64, Is64Bit(tc.set))
		})
	}
	require.Panics(t, func() { PointerSizeOf(None) })
}

func TestRoundUp(t *testing.T) {
	require.Equal(t, 0, RoundUp(0, 16))
	require.Equal(t, 16, RoundUp(1, 16))
	require.Equal(t, 16, RoundUp(16, 16))
	require.Equal(t, 112, RoundUp(100, 16))
	require.True(t, IsAligned(32, 16))
	require.False(t, IsAligned(36, 16))
}

func TestFromVariant(t *testing.T) {
	f, err := FromVariant(X86_64, "silvermont")
	require.NoError(t, err)
	require.True(t, f.PrefersLockedAddSync())
	require.True(t, f.HasSSE4_1())
	require.False(t, f.HasAVX())

	f, err = FromVariant(X86, "generic")
	require.NoError(t, err)
	require.False(t, f.PrefersLockedAddSync())

	f, err = FromVariant(Arm64, "cortex-a75")
	require.NoError(t, err)
	require.True(t, f.HasLSE())
	require.Equal(t, Arm64, f.InstructionSet())

	_, err = FromVariant(Arm, "pentium")
	require.Error(t, err)
	_, err = FromVariant(Mips, "generic")
	require.Error(t, err)
}

func TestFromHost(t *testing.T) {
	f, err := FromHost()
	if err != nil {
		t.Skip(err)
	}
	require.NotEqual(t, None, f.InstructionSet())
	require.Equal(t, "host", f.Variant())
	require.NotEmpty(t, f.String())
}
