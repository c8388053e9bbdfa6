package jnicompiler

import (
	"encoding/binary"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
)

var compileSets = []isa.InstructionSet{isa.Arm, isa.Thumb2, isa.Arm64, isa.X86, isa.X86_64}

func TestEndShorty(t *testing.T) {
	require.Equal(t, "ILL", endShorty(true, true))
	require.Equal(t, "IL", endShorty(true, false))
	require.Equal(t, "VL", endShorty(false, true))
	require.Equal(t, "V", endShorty(false, false))
}

func TestCompile_errors(t *testing.T) {
	tests := []struct {
		name   string
		set    isa.InstructionSet
		flags  AccessFlags
		shorty string
		expErr string
	}{
		{
			name:   "unsupported isa",
			set:    isa.Mips,
			flags:  AccNative,
			shorty: "V",
			expErr: "no JNI macro-assembler for instruction set mips",
		},
		{
			name:   "not native",
			set:    isa.X86_64,
			flags:  AccStatic,
			shorty: "V",
			expErr: "compiling JNI stub: method is not native",
		},
		{
			name:   "bad shorty",
			set:    isa.Arm64,
			flags:  AccNative,
			shorty: "VX",
			expErr: `compiling JNI stub: invalid character 'X' at 1 in shorty "VX"`,
		},
		{
			name:   "critical and fast",
			set:    isa.Arm,
			flags:  AccNative | AccStatic | AccCriticalNative | AccFastNative,
			shorty: "V",
			expErr: "compiling JNI stub: method cannot be both @CriticalNative and @FastNative",
		},
		{
			name:   "critical virtual",
			set:    isa.X86,
			flags:  AccNative | AccCriticalNative,
			shorty: "V",
			expErr: "compiling JNI stub: @CriticalNative method cannot be virtual",
		},
		{
			name:   "critical synchronized",
			set:    isa.X86,
			flags:  AccNative | AccStatic | AccSynchronized | AccCriticalNative,
			shorty: "V",
			expErr: "compiling JNI stub: @CriticalNative method cannot be synchronized",
		},
		{
			name:   "critical reference",
			set:    isa.Arm64,
			flags:  AccNative | AccStatic | AccCriticalNative,
			shorty: "IIL",
			expErr: `compiling JNI stub: @CriticalNative method cannot take or return references: "IIL"`,
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			ret, err := Compile(tc.set, tc.flags, tc.shorty, nil)
			require.EqualError(t, err, tc.expErr)
			require.Nil(t, ret)
		})
	}
}

type compileCase struct {
	name   string
	flags  AccessFlags
	shorty string
}

var compileCases = []compileCase{
	{name: "static void", flags: AccNative | AccStatic, shorty: "V"},
	{name: "instance int", flags: AccNative, shorty: "IIJ"},
	{name: "static reference", flags: AccNative | AccStatic, shorty: "LLI"},
	{name: "synchronized reference", flags: AccNative | AccSynchronized, shorty: "LL"},
	{name: "static synchronized", flags: AccNative | AccStatic | AccSynchronized, shorty: "JJ"},
	{name: "fast", flags: AccNative | AccFastNative, shorty: "IL"},
	{name: "small results", flags: AccNative | AccStatic, shorty: "ZB"},
	{name: "char", flags: AccNative, shorty: "CS"},
	{name: "critical", flags: AccNative | AccStatic | AccCriticalNative, shorty: "JIJ"},
	{name: "critical void", flags: AccNative | AccStatic | AccCriticalNative, shorty: "V"},
}

func TestCompile(t *testing.T) {
	for _, set := range compileSets {
		set := set
		for _, c := range compileCases {
			tc := c
			t.Run(set.String()+"/"+tc.name, func(t *testing.T) {
				ret, err := Compile(set, tc.flags, tc.shorty, nil)
				require.NoError(t, err)
				require.Equal(t, set, ret.ISA)
				require.NotEmpty(t, ret.Code)
				require.NotEmpty(t, ret.CFI)
				require.Nil(t, ret.Listing)

				conv, err := NewJniCallingConvention(set, tc.flags&AccStatic != 0, tc.flags&AccSynchronized != 0,
					tc.flags&AccFastNative != 0, tc.flags&AccCriticalNative != 0, tc.shorty)
				require.NoError(t, err)
				require.Equal(t, conv.FrameSize(), ret.FrameSize)
				require.Equal(t, conv.CoreSpillMask(), ret.CoreSpillMask)
				require.Equal(t, conv.FpSpillMask(), ret.FpSpillMask)
				require.Zero(t, ret.FrameSize%isa.StackAlignment)

				rows, err := ret.UnwindRows()
				require.NoError(t, err)
				require.True(t, len(rows) > 1)

				initial := newCIE(set).initial
				require.Equal(t, 0, rows[0].PC)
				require.Equal(t, initial.CFARegister, rows[0].CFARegister)
				require.Equal(t, initial.CFAOffset, rows[0].CFAOffset)
				for i := 1; i < len(rows); i++ {
					require.True(t, rows[i-1].PC < rows[i].PC)
					require.True(t, rows[i].PC <= len(ret.Code))
				}
				// The frame is fully built at some point before the call.
				cfaOffsets := lo.Map(rows, func(r dwarf.Row, _ int) int { return r.CFAOffset })
				require.Contains(t, cfaOffsets, ret.FrameSize)
			})
		}
	}
}

func TestCompile_x86TrapAfterExceptionDelivery(t *testing.T) {
	for _, set := range []isa.InstructionSet{isa.X86, isa.X86_64} {
		ret, err := Compile(set, AccNative|AccStatic, "V", nil)
		require.NoError(t, err)
		// pDeliverException does not return.
		require.Equal(t, byte(0xcc), ret.Code[len(ret.Code)-1])
	}
}

func TestCompile_options(t *testing.T) {
	t.Run("no cfi", func(t *testing.T) {
		ret, err := Compile(isa.Arm64, AccNative, "IJ", NewOptions().WithCFI(false))
		require.NoError(t, err)
		require.Empty(t, ret.CFI)
		require.Nil(t, ret.DebugFrame(0x1000))
	})
	t.Run("listing", func(t *testing.T) {
		ret, err := Compile(isa.X86_64, AccNative|AccStatic, "V", NewOptions().WithListing(true))
		require.NoError(t, err)
		require.Contains(t, string(ret.Listing), "// x86_64 JNI stub V")
		require.Contains(t, string(ret.Listing), "RET")
		require.Contains(t, string(ret.Listing), "// 0x00")
	})
	t.Run("no read barrier", func(t *testing.T) {
		withRB, err := Compile(isa.Arm, AccNative|AccStatic, "V", nil)
		require.NoError(t, err)
		withoutRB, err := Compile(isa.Arm, AccNative|AccStatic, "V",
			NewOptions().WithConfig(jni.NewConfig().WithReadBarrier(false)))
		require.NoError(t, err)
		require.True(t, len(withoutRB.Code) < len(withRB.Code))
	})
	t.Run("features", func(t *testing.T) {
		features, err := isa.FromVariant(isa.X86, "silvermont")
		require.NoError(t, err)
		_, err = Compile(isa.X86, AccNative|AccSynchronized, "VL", NewOptions().WithFeatures(features))
		require.NoError(t, err)

		_, err = Compile(isa.X86_64, AccNative, "V", NewOptions().WithFeatures(features))
		require.EqualError(t, err, "features for x86 used with instruction set x86_64")
	})
	t.Run("options are copied", func(t *testing.T) {
		base := NewOptions()
		_ = base.WithCFI(false).WithListing(true)
		require.True(t, base.cfi)
		require.False(t, base.listing)
	})
}

func TestCompiledMethod_DebugFrame(t *testing.T) {
	tests := []struct {
		set     isa.InstructionSet
		addrLen int
	}{
		{set: isa.Arm, addrLen: 4},
		{set: isa.Arm64, addrLen: 8},
		{set: isa.X86, addrLen: 4},
		{set: isa.X86_64, addrLen: 8},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.set.String(), func(t *testing.T) {
			ret, err := Compile(tc.set, AccNative, "IL", nil)
			require.NoError(t, err)

			const addr = 0x4000
			buf := ret.DebugFrame(addr)

			cieLen := int(binary.LittleEndian.Uint32(buf))
			require.Zero(t, (cieLen+4)%tc.addrLen)
			require.Equal(t, uint32(0xffffffff), binary.LittleEndian.Uint32(buf[4:]))

			fde := buf[4+cieLen:]
			fdeLen := int(binary.LittleEndian.Uint32(fde))
			require.Equal(t, len(fde), 4+fdeLen)
			require.Zero(t, (fdeLen+4)%tc.addrLen)
			require.Zero(t, binary.LittleEndian.Uint32(fde[4:]))

			if tc.addrLen == 8 {
				require.Equal(t, uint64(addr), binary.LittleEndian.Uint64(fde[8:]))
				require.Equal(t, uint64(len(ret.Code)), binary.LittleEndian.Uint64(fde[16:]))
			} else {
				require.Equal(t, uint32(addr), binary.LittleEndian.Uint32(fde[8:]))
				require.Equal(t, uint32(len(ret.Code)), binary.LittleEndian.Uint32(fde[12:]))
			}
		})
	}
}
