package jni_arm

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

func spillsOf(regs ...ManagedRegister) (ret []jni.ManagedRegisterSpill) {
	for _, r := range regs {
		size := 4
		if r.IsDRegister() {
			size = 8
		}
		ret = append(ret, jni.ManagedRegisterSpill{Reg: r.JNI(), Size: size, SpillOffset: jni.SequentialSpillOffset})
	}
	return
}

func TestManagedRuntimeCallingConvention_EntrySpills(t *testing.T) {
	tests := []struct {
		name     string
		isStatic bool
		shorty   string
		exp      []jni.ManagedRegisterSpill
	}{
		{
			name:     "long skips R1",
			isStatic: true,
			shorty:   "VJ",
			exp:      spillsOf(FromCoreRegister(R2), FromCoreRegister(R3)),
		},
		{
			name:   "long split between R3 and the stack",
			shorty: "VIJFD",
			exp: spillsOf(
				FromCoreRegister(R1), // this
				FromCoreRegister(R2),
				NoRegister, NoRegister,
				FromSRegister(S0),
				FromDRegister(D1),
			),
		},
		{
			name:     "float back-fills",
			isStatic: true,
			shorty:   "VFDF",
			exp:      spillsOf(FromSRegister(S0), FromDRegister(D1), FromSRegister(S1)),
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			c := NewManagedRuntimeCallingConvention(tc.isStatic, false, tc.shorty)
			require.Equal(t, FromCoreRegister(R0).JNI(), c.MethodRegister())
			require.Equal(t, tc.exp, c.EntrySpills())
		})
	}
}

func TestManagedRuntimeCallingConvention_stackOffsets(t *testing.T) {
	c := NewManagedRuntimeCallingConvention(false, false, "VIJ")
	c.ResetIterator(quickapi.FrameOffset(112))
	var offsets []quickapi.FrameOffset
	for c.HasNext() {
		require.True(t, c.IsCurrentParamOnStack())
		offsets = append(offsets, c.CurrentParamStackOffset())
		c.Next()
	}
	require.Equal(t, []quickapi.FrameOffset{116, 120, 124}, offsets)
	require.Panics(t, func() { c.CurrentParamRegister() })
}

func TestJniCallingConvention_FrameSize(t *testing.T) {
	tests := []struct {
		name                 string
		isStatic, isCritical bool
		shorty               string
		expFrameSize         int
	}{
		{name: "static void", isStatic: true, shorty: "V", expFrameSize: 112},
		{name: "instance int", shorty: "IIJ", expFrameSize: 128},
		{name: "critical", isStatic: true, isCritical: true, shorty: "JJ", expFrameSize: 112},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			c := NewJniCallingConvention(tc.isStatic, false, false, tc.isCritical, tc.shorty)
			require.Equal(t, tc.expFrameSize, c.FrameSize())
		})
	}
}

func TestJniCallingConvention_arguments(t *testing.T) {
	c := NewJniCallingConvention(true, false, false, false, "VJDF")
	require.Equal(t, 16, c.OutArgSize())
	c.ResetIterator(quickapi.FrameOffset(c.OutArgSize()))

	var regs []jni.ManagedRegister
	var offsets []quickapi.FrameOffset
	for c.HasNext() {
		if c.IsCurrentParamInRegister() {
			regs = append(regs, c.CurrentParamRegister())
		} else {
			offsets = append(offsets, c.CurrentParamStackOffset())
		}
		c.Next()
	}
	require.Equal(t, []jni.ManagedRegister{
		FromCoreRegister(R0).JNI(), // JNIEnv
		FromCoreRegister(R1).JNI(), // jclass
		FromRegisterPair(R2_R3).JNI(),
	}, regs)
	require.Equal(t, []quickapi.FrameOffset{0, 8}, offsets)
}

func TestJniCallingConvention_alignedLong(t *testing.T) {
	// The long would start at R3, so it moves to the stack and R3 is left unused.
	c := NewJniCallingConvention(true, false, false, false, "VIJ")
	c.ResetIterator(quickapi.FrameOffset(c.OutArgSize()))
	var inRegs int
	var offsets []quickapi.FrameOffset
	for c.HasNext() {
		if c.IsCurrentParamInRegister() {
			inRegs++
		} else {
			offsets = append(offsets, c.CurrentParamStackOffset())
		}
		c.Next()
	}
	require.Equal(t, 3, inRegs)
	require.Equal(t, []quickapi.FrameOffset{0}, offsets)
	require.Equal(t, 16, c.OutArgSize())
}

func TestJniCallingConvention_masks(t *testing.T) {
	c := NewJniCallingConvention(true, false, false, false, "V")
	require.Equal(t, uint32(0x4de0), c.CoreSpillMask())
	require.Equal(t, uint32(0xffff0000), c.FpSpillMask())
	require.Equal(t, FromCoreRegister(R0).JNI(), c.IntReturnRegister())
	require.Equal(t, FromCoreRegister(R2).JNI(), c.ReturnScratchRegister())
	require.Equal(t, FromCoreRegister(IP).JNI(), c.InterproceduralScratchRegister())
	require.False(t, c.RequiresSmallResultTypeExtension())
	require.Equal(t, jni.NoRegister, c.ReturnRegister())
	require.Equal(t, FromRegisterPair(R0_R1).JNI(), NewJniCallingConvention(true, false, false, false, "D").ReturnRegister())

	mr := NewManagedRuntimeCallingConvention(true, false, "F")
	require.Equal(t, FromSRegister(S0).JNI(), mr.ReturnRegister())
	mr = NewManagedRuntimeCallingConvention(true, false, "J")
	require.Equal(t, FromRegisterPair(R0_R1).JNI(), mr.ReturnRegister())
}
