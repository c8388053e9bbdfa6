package jni

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrimitiveTypeOf(t *testing.T) {
	for _, tc := range []struct {
		c        byte
		exp      PrimitiveType
		size     int
		fp, is64 bool
	}{
		{c: 'L', exp: PrimNot, size: 4},
		{c: 'Z', exp: PrimBoolean, size: 1},
		{c: 'B', exp: PrimByte, size: 1},
		{c: 'C', exp: PrimChar, size: 2},
		{c: 'S', exp: PrimShort, size: 2},
		{c: 'I', exp: PrimInt, size: 4},
		{c: 'J', exp: PrimLong, size: 8, is64: true},
		{c: 'F', exp: PrimFloat, size: 4, fp: true},
		{c: 'D', exp: PrimDouble, size: 8, fp: true, is64: true},
		{c: 'V', exp: PrimVoid, size: 0},
	} {
		tc := tc
		t.Run(string(tc.c), func(t *testing.T) {
			actual := PrimitiveTypeOf(tc.c)
			require.Equal(t, tc.exp, actual)
			require.Equal(t, tc.c, actual.Descriptor())
			require.Equal(t, tc.size, actual.ComponentSize())
			require.Equal(t, tc.fp, actual.IsFloatingPoint())
			require.Equal(t, tc.is64, actual.Is64Bit())
		})
	}

	require.Panics(t, func() { PrimitiveTypeOf('X') })
}

func TestValidateShorty(t *testing.T) {
	for _, shorty := range []string{"V", "L", "VZBCSIJFDL", "JJ"} {
		require.NoError(t, ValidateShorty(shorty), shorty)
	}

	tests := []struct {
		shorty, expErr string
	}{
		{shorty: "", expErr: "empty shorty"},
		{shorty: "IV", expErr: `invalid parameter type 'V' at 1 in shorty "IV"`},
		{shorty: "Vi", expErr: `invalid character 'i' at 1 in shorty "Vi"`},
		{shorty: "[", expErr: `invalid character '[' at 0 in shorty "["`},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.shorty, func(t *testing.T) {
			require.EqualError(t, ValidateShorty(tc.shorty), tc.expErr)
		})
	}
}
