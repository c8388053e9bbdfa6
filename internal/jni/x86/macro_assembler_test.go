package jni_x86

import (
	"testing"

	"github.com/stretchr/testify/require"

	asm_x86 "github.com/artquick/quick/internal/asm/x86"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

func newMacroAssembler(t *testing.T, cfg *jni.Config, features *isa.Features) *MacroAssembler {
	m, err := NewMacroAssembler(cfg, features)
	require.NoError(t, err)
	return m
}

func assembled(t *testing.T, m *MacroAssembler) []byte {
	require.NoError(t, m.FinalizeCode())
	code := make([]byte, m.CodeSize())
	m.FinalizeInstructions(code)
	return code
}

// rowAt returns the unwind row in effect at pc.
func rowAt(rows []dwarf.Row, pc int) dwarf.Row {
	ret := rows[0]
	for _, r := range rows {
		if r.PC <= pc {
			ret = r
		}
	}
	return ret
}

var initialRow = dwarf.Row{CFARegister: dwarf.X86Core(int(ESP)), CFAOffset: 4}

func TestMacroAssembler_staticVoidFrame(t *testing.T) {
	m := newMacroAssembler(t, jni.NewConfig(), nil)
	m.BuildFrame(48, FromCpuRegister(EAX).JNI(), calleeSaveRegisters, nil)
	m.RemoveFrame(48, calleeSaveRegisters, true)

	code := assembled(t, m)
	require.Equal(t, []byte{
		0x57, 0x56, 0x55, // pushl %edi; pushl %esi; pushl %ebp
		0x83, 0xec, 0x1c, // subl $28, %esp
		0x50,             // pushl %eax
		0x83, 0xc4, 0x20, // addl $32, %esp
		0x5d, 0x5e, 0x5f, // popl %ebp; popl %esi; popl %edi
		0xc3, // ret
	}, code)

	rows, err := dwarf.Interpret(m.CFI().Data(), initialRow)
	require.NoError(t, err)

	atRet := rowAt(rows, len(code)-1)
	require.Equal(t, 4, atRet.CFAOffset)
	require.Empty(t, atRet.Saved)

	inFrame := rows[len(rows)-1]
	require.Equal(t, 48, inFrame.CFAOffset)
	require.Equal(t, -8, inFrame.Saved[dwarf.X86Core(int(EDI))])
	require.Equal(t, -12, inFrame.Saved[dwarf.X86Core(int(ESI))])
	require.Equal(t, -16, inFrame.Saved[dwarf.X86Core(int(EBP))])
}

func TestMacroAssembler_frameSymmetry(t *testing.T) {
	tests := []struct {
		name     string
		shorty   string
		isStatic bool
	}{
		{name: "static void", shorty: "V", isStatic: true},
		{name: "instance mixed", shorty: "DIJFDL"},
		{name: "static longs", shorty: "JJJ", isStatic: true},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			m := newMacroAssembler(t, jni.NewConfig(), nil)
			jniConv := NewJniCallingConvention(tc.isStatic, false, false, false, tc.shorty)
			mrConv := NewManagedRuntimeCallingConvention(tc.isStatic, false, tc.shorty)
			frameSize := jniConv.FrameSize()

			m.BuildFrame(frameSize, mrConv.MethodRegister(), jniConv.CalleeSaveRegisters(), mrConv.EntrySpills())
			require.Equal(t, frameSize, m.CFI().CurrentCFAOffset())
			m.IncreaseFrameSize(jniConv.OutArgSize())
			m.Store(0, FromCpuRegister(ECX).JNI(), 4)
			m.Load(FromXmmRegister(XMM1).JNI(), 8, 8)
			m.DecreaseFrameSize(jniConv.OutArgSize())
			m.RemoveFrame(frameSize, jniConv.CalleeSaveRegisters(), true)
			require.Equal(t, frameSize, m.CFI().CurrentCFAOffset())
			require.Zero(t, m.CFI().RememberedStates())

			code := assembled(t, m)
			require.Equal(t, byte(0xc3), code[len(code)-1])

			rows, err := dwarf.Interpret(m.CFI().Data(), initialRow)
			require.NoError(t, err)
			atRet := rowAt(rows, len(code)-1)
			require.Equal(t, 4, atRet.CFAOffset)
			require.Empty(t, atRet.Saved)
			require.Equal(t, frameSize, rows[len(rows)-1].CFAOffset)
		})
	}
}

func TestMacroAssembler_MemoryBarrier(t *testing.T) {
	atom, err := isa.FromVariant(isa.X86, "atom")
	require.NoError(t, err)
	generic, err := isa.FromVariant(isa.X86, "generic")
	require.NoError(t, err)

	tests := []struct {
		name     string
		features *isa.Features
		exp      []byte
	}{
		{name: "no features", exp: []byte{0x0f, 0xae, 0xf0}},
		{name: "generic", features: generic, exp: []byte{0x0f, 0xae, 0xf0}},
		// lock; addl $0, (%esp)
		{name: "atom", features: atom, exp: []byte{0xf0, 0x83, 0x04, 0x24, 0x00}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			m := newMacroAssembler(t, jni.NewConfig(), tc.features)
			m.MemoryBarrier(jni.NoRegister)
			require.Equal(t, tc.exp, assembled(t, m))
		})
	}
}

func TestMacroAssembler_ExceptionPoll(t *testing.T) {
	m := newMacroAssembler(t, jni.NewConfig(), nil)
	m.ExceptionPoll(FromCpuRegister(ECX).JNI(), 16)
	m.Assembler().CompileStandAlone(asm_x86.RET)
	code := assembled(t, m)
	// cmpl $0, %fs:exception
	require.Equal(t, byte(0x64), code[0])
	// The slow path ends in int3 after the call to pDeliverException.
	require.Equal(t, byte(0xcc), code[len(code)-1])
	require.Zero(t, m.CFI().RememberedStates())

	require.Panics(t, func() { m.ExceptionPoll(FromCpuRegister(ECX).JNI(), 16) })
}

func TestMacroAssembler_handleScopeEntry(t *testing.T) {
	m := newMacroAssembler(t, jni.NewConfig(), nil)
	m.CreateHandleScopeEntry(FromCpuRegister(ECX).JNI(), 8, FromCpuRegister(EDX).JNI(), true)
	require.Equal(t, []byte{
		0x31, 0xc9, // xorl %ecx, %ecx
		0x85, 0xd2, // testl %edx, %edx
		0x74, 0x04, // je null
		0x8d, 0x4c, 0x24, 0x08, // leal 8(%esp), %ecx
	}, assembled(t, m))
}

func TestMacroAssembler_heapPoisoning(t *testing.T) {
	for _, poisoning := range []bool{false, true} {
		m := newMacroAssembler(t, jni.NewConfig().WithHeapPoisoning(poisoning), nil)
		m.LoadRefFromMember(FromCpuRegister(ECX).JNI(), FromCpuRegister(EAX).JNI(), quickapi.ArtMethodDeclaringClassOffset, true)
		code := assembled(t, m)
		// movl (%eax), %ecx followed by negl %ecx when references are poisoned.
		if poisoning {
			require.Equal(t, []byte{0x8b, 0x08, 0xf7, 0xd9}, code)
		} else {
			require.Equal(t, []byte{0x8b, 0x08}, code)
		}
	}
}

func TestMacroAssembler_threadAccess(t *testing.T) {
	offsets := quickapi.ThreadOffsets(isa.PointerSize32)
	tests := []struct {
		name string
		fn   func(m *MacroAssembler)
	}{
		{name: "GetCurrentThread", fn: func(m *MacroAssembler) { m.GetCurrentThread(FromCpuRegister(EAX).JNI()) }},
		{name: "StoreStackPointerToThread", fn: func(m *MacroAssembler) { m.StoreStackPointerToThread(offsets.TopOfManagedStack) }},
		{name: "CallFromThread", fn: func(m *MacroAssembler) {
			m.CallFromThread(offsets.QuickEntrypoint(quickapi.QuickDeliverException), jni.NoRegister)
		}},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			m := newMacroAssembler(t, jni.NewConfig(), nil)
			tc.fn(m)
			// FS segment override.
			require.Equal(t, byte(0x64), assembled(t, m)[0])
		})
	}
}

func TestMacroAssembler_invalid(t *testing.T) {
	tests := []struct {
		name string
		fn   func(m *MacroAssembler)
	}{
		{name: "unaligned frame", fn: func(m *MacroAssembler) { m.IncreaseFrameSize(4) }},
		{name: "unaligned exception poll", fn: func(m *MacroAssembler) { m.ExceptionPoll(FromCpuRegister(ECX).JNI(), 8) }},
		{name: "store size", fn: func(m *MacroAssembler) { m.Store(0, FromCpuRegister(EAX).JNI(), 8) }},
		{name: "load size", fn: func(m *MacroAssembler) { m.Load(FromCpuRegister(EAX).JNI(), 0, 1) }},
		{name: "move xmm to cpu", fn: func(m *MacroAssembler) { m.Move(FromCpuRegister(EAX).JNI(), FromXmmRegister(XMM0).JNI(), 4) }},
		{name: "sign extend size", fn: func(m *MacroAssembler) { m.SignExtend(FromCpuRegister(EAX).JNI(), 4) }},
		{name: "store spanning", fn: func(m *MacroAssembler) {
			m.StoreSpanning(0, FromCpuRegister(EAX).JNI(), 4, FromCpuRegister(ECX).JNI())
		}},
		{name: "copy from base", fn: func(m *MacroAssembler) {
			m.CopyFromBase(0, FromCpuRegister(EAX).JNI(), 0, FromCpuRegister(ECX).JNI(), 4)
		}},
		{name: "copy to base with scratch", fn: func(m *MacroAssembler) {
			m.CopyToBase(FromCpuRegister(EAX).JNI(), 0, 4, FromCpuRegister(ECX).JNI(), 4)
		}},
		{name: "copy between frame bases", fn: func(m *MacroAssembler) {
			m.CopyFrameBaseToFrameBase(0, 0, 8, 0, FromCpuRegister(ECX).JNI(), 4)
		}},
		{name: "foreign register", fn: func(m *MacroAssembler) { m.Store(0, jni.ManagedRegister(1000), 4) }},
	}

	for _, tt := range tests {
		tc := tt
		t.Run(tc.name, func(t *testing.T) {
			m := newMacroAssembler(t, jni.NewConfig(), nil)
			require.Panics(t, func() { tc.fn(m) })
		})
	}
}
