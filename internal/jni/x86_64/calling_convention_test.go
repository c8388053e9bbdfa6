package jni_x86_64

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

func spill(r ManagedRegister, size, offset int) jni.ManagedRegisterSpill {
	return jni.ManagedRegisterSpill{Reg: r.JNI(), Size: size, SpillOffset: offset}
}

func TestManagedRuntimeCallingConvention_EntrySpills(t *testing.T) {
	tests := []struct {
		name     string
		isStatic bool
		shorty   string
		exp      []jni.ManagedRegisterSpill
	}{
		{name: "no arguments", isStatic: true, shorty: "V"},
		{
			name:     "long",
			isStatic: true,
			shorty:   "VJ",
			exp:      []jni.ManagedRegisterSpill{spill(FromCpuRegister(RSI), 8, 8)},
		},
		{
			name:   "mixed",
			shorty: "VIJFD",
			exp: []jni.ManagedRegisterSpill{
				spill(FromCpuRegister(RSI), 4, 8), // this
				spill(FromCpuRegister(RDX), 4, 12),
				spill(FromCpuRegister(RCX), 8, 16),
				spill(FromXmmRegister(XMM0), 4, 24),
				spill(FromXmmRegister(XMM1), 8, 28),
			},
		},
		{
			name:     "sixth int on the stack",
			isStatic: true,
			shorty:   "VIIIIII",
			exp: []jni.ManagedRegisterSpill{
				spill(FromCpuRegister(RSI), 4, 8),
				spill(FromCpuRegister(RDX), 4, 12),
				spill(FromCpuRegister(RCX), 4, 16),
				spill(FromCpuRegister(R8), 4, 20),
				spill(FromCpuRegister(R9), 4, 24),
			},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			c := NewManagedRuntimeCallingConvention(tc.isStatic, false, tc.shorty)
			require.Equal(t, FromCpuRegister(RDI).JNI(), c.MethodRegister())
			require.Equal(t, tc.exp, c.EntrySpills())
		})
	}
}

func TestManagedRuntimeCallingConvention_registers(t *testing.T) {
	c := NewManagedRuntimeCallingConvention(true, false, "VIIIIIID")
	c.ResetIterator(0)
	var regs []jni.ManagedRegister
	for c.HasNext() {
		regs = append(regs, c.CurrentParamRegister())
		require.True(t, c.IsCurrentParamOnStack())
		require.False(t, c.IsCurrentParamInRegister())
		c.Next()
	}
	require.Equal(t, []jni.ManagedRegister{
		FromCpuRegister(RSI).JNI(),
		FromCpuRegister(RDX).JNI(),
		FromCpuRegister(RCX).JNI(),
		FromCpuRegister(R8).JNI(),
		FromCpuRegister(R9).JNI(),
		jni.NoRegister,
		FromXmmRegister(XMM0).JNI(),
	}, regs)
}

func TestCallingConvention_ReturnRegister(t *testing.T) {
	tests := []struct {
		shorty string
		exp    ManagedRegister
	}{
		{shorty: "V", exp: NoRegister},
		{shorty: "Z", exp: FromCpuRegister(RAX)},
		{shorty: "J", exp: FromCpuRegister(RAX)},
		{shorty: "L", exp: FromCpuRegister(RAX)},
		{shorty: "F", exp: FromXmmRegister(XMM0)},
		{shorty: "D", exp: FromXmmRegister(XMM0)},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.shorty, func(t *testing.T) {
			require.Equal(t, tc.exp.JNI(), NewManagedRuntimeCallingConvention(true, false, tc.shorty).ReturnRegister())
			require.Equal(t, tc.exp.JNI(), NewJniCallingConvention(true, false, false, false, tc.shorty).ReturnRegister())
		})
	}
}

func TestJniCallingConvention_FrameSize(t *testing.T) {
	tests := []struct {
		name                 string
		isStatic, isCritical bool
		shorty               string
		expFrameSize         int
		expOutArgSize        int
	}{
		{name: "static void", isStatic: true, shorty: "V", expFrameSize: 128},
		{name: "instance int", shorty: "IIJ", expFrameSize: 128},
		{name: "static references", isStatic: true, shorty: "LLLLL", expFrameSize: 144},
		{name: "critical", isStatic: true, isCritical: true, shorty: "JJ", expFrameSize: 112},
		{name: "stack ints", isStatic: true, shorty: "VIIIIIII", expFrameSize: 128, expOutArgSize: 32},
		{name: "stack floats", isStatic: true, shorty: "VFFFFFFFFF", expFrameSize: 128, expOutArgSize: 16},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			c := NewJniCallingConvention(tc.isStatic, false, false, tc.isCritical, tc.shorty)
			require.Equal(t, tc.expFrameSize, c.FrameSize())
			require.Equal(t, tc.expOutArgSize, c.OutArgSize())
		})
	}
}

func TestJniCallingConvention_arguments(t *testing.T) {
	tests := []struct {
		name       string
		shorty     string
		expRegs    []jni.ManagedRegister
		expOffsets []quickapi.FrameOffset
	}{
		{
			name:   "all in registers",
			shorty: "VJDF",
			expRegs: []jni.ManagedRegister{
				FromCpuRegister(RDI).JNI(), // JNIEnv
				FromCpuRegister(RSI).JNI(), // jclass
				FromCpuRegister(RDX).JNI(),
				FromXmmRegister(XMM0).JNI(),
				FromXmmRegister(XMM1).JNI(),
			},
		},
		{
			name:   "ints spill to the stack",
			shorty: "VIIIIIII",
			expRegs: []jni.ManagedRegister{
				FromCpuRegister(RDI).JNI(),
				FromCpuRegister(RSI).JNI(),
				FromCpuRegister(RDX).JNI(),
				FromCpuRegister(RCX).JNI(),
				FromCpuRegister(R8).JNI(),
				FromCpuRegister(R9).JNI(),
			},
			expOffsets: []quickapi.FrameOffset{0, 8, 16},
		},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			c := NewJniCallingConvention(true, false, false, false, tc.shorty)
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
			require.Equal(t, tc.expRegs, regs)
			require.Equal(t, tc.expOffsets, offsets)
		})
	}
}

func TestJniCallingConvention_spills(t *testing.T) {
	c := NewJniCallingConvention(true, false, false, false, "V")
	require.Equal(t, uint32(0x1f028), c.CoreSpillMask())
	require.Equal(t, uint32(0xf000), c.FpSpillMask())
	require.Len(t, c.CalleeSaveRegisters(), 10)
	require.True(t, c.RequiresSmallResultTypeExtension())
	require.Equal(t, FromCpuRegister(RAX).JNI(), c.IntReturnRegister())
	require.Equal(t, jni.NoRegister, c.ReturnScratchRegister())
}
