package jni_x86

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
	asm_x86 "github.com/artquick/quick/internal/asm/x86"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

// Label is a jump target of a MacroAssembler.
type Label = jni.Label[MacroAssembler]

// MacroAssembler implements jni.MacroAssembler for x86. The current Thread is
// addressed through the FS segment.
type MacroAssembler struct {
	jni.CodeBuffer

	asm        asm_x86.Assembler
	cfi        *dwarf.DebugFrameOpCodeWriter
	cfg        *jni.Config
	features   *isa.Features
	offsets    *quickapi.ThreadOffsetData
	exceptions jni.ExceptionSlowPaths[*Label]
}

var _ jni.MacroAssembler[*Label] = (*MacroAssembler)(nil)

// NewMacroAssembler returns a MacroAssembler emitting code for cfg. features may be nil.
func NewMacroAssembler(cfg *jni.Config, features *isa.Features) (*MacroAssembler, error) {
	a, err := asm_x86.NewAssembler(false)
	if err != nil {
		return nil, err
	}
	m := &MacroAssembler{
		asm:      a,
		cfi:      dwarf.NewDebugFrameOpCodeWriter(),
		cfg:      cfg,
		features: features,
		offsets:  quickapi.ThreadOffsets(isa.PointerSize32),
	}
	m.cfi.SetPositionSource(a.Position)
	return m, nil
}

// Assembler returns the low-level assembler, for listings.
func (m *MacroAssembler) Assembler() asm_x86.Assembler { return m.asm }

// CFI implements jni.MacroAssembler.CFI.
func (m *MacroAssembler) CFI() *dwarf.DebugFrameOpCodeWriter { return m.cfi }

func reg(r jni.ManagedRegister) ManagedRegister { return FromJNI(r) }

// cpu panics unless r is a cpu register.
func cpu(r jni.ManagedRegister) asm.Register {
	return cpuToAsm(reg(r).AsCpuRegister())
}

var espReg = cpuToAsm(ESP)

func checkSize(r ManagedRegister, got, want int) {
	if got != want {
		panic(fmt.Sprintf("BUG: size %d does not match %s", got, r))
	}
}

func checkFrameAlignment(size int) {
	if !isa.IsAligned(size, isa.StackAlignment) {
		panic(fmt.Sprintf("BUG: frame size %d is not %d-byte aligned", size, isa.StackAlignment))
	}
}

// BuildFrame implements jni.MacroAssembler.BuildFrame.
//
// The callee saves are pushed in reverse order above the return address, then the
// frame is grown so that pushing the method completes it.
func (m *MacroAssembler) BuildFrame(frameSize int, methodReg jni.ManagedRegister, calleeSaves []jni.ManagedRegister, entrySpills []jni.ManagedRegisterSpill) {
	checkFrameAlignment(frameSize)
	// The return address is on the stack.
	m.cfi.SetCurrentCFAOffset(framePointerSize)

	for i := len(calleeSaves) - 1; i >= 0; i-- {
		r := reg(calleeSaves[i])
		m.asm.CompileRegisterToNone(asm_x86.PUSHL, cpu(r.JNI()))
		m.cfi.AdjustCFAOffset(framePointerSize)
		m.cfi.RelOffset(r.DWARFReg(), 0)
	}

	adjust := frameSize - len(calleeSaves)*framePointerSize - framePointerSize /* method */ - framePointerSize /* return address */
	if adjust < 0 {
		panic(fmt.Sprintf("BUG: frame size %d is too small for %d callee saves", frameSize, len(calleeSaves)))
	}
	if adjust > 0 {
		m.asm.CompileConstToRegister(asm_x86.SUBL, int64(adjust), espReg)
		m.cfi.AdjustCFAOffset(adjust)
	}
	m.asm.CompileRegisterToNone(asm_x86.PUSHL, cpu(methodReg))
	m.cfi.AdjustCFAOffset(framePointerSize)
	if m.cfi.CurrentCFAOffset() != frameSize {
		panic(fmt.Sprintf("BUG: CFA offset %d does not match the frame size %d", m.cfi.CurrentCFAOffset(), frameSize))
	}

	offset := frameSize + framePointerSize
	for _, spill := range entrySpills {
		if spill.SpillOffset != jni.SequentialSpillOffset {
			offset = frameSize + spill.SpillOffset
		}
		switch r := reg(spill.Reg); {
		case r.IsNoRegister():
		case r.IsCpuRegister():
			checkSize(r, spill.Size, 4)
			m.asm.CompileRegisterToMemory(asm_x86.MOVL, r.asmRegister(), espReg, int64(offset))
		case r.IsXmmRegister() && spill.Size == 8:
			m.asm.CompileRegisterToMemory(asm_x86.MOVSD, r.asmRegister(), espReg, int64(offset))
		case r.IsXmmRegister():
			checkSize(r, spill.Size, 4)
			m.asm.CompileRegisterToMemory(asm_x86.MOVSS, r.asmRegister(), espReg, int64(offset))
		default:
			panic(fmt.Sprintf("BUG: invalid entry spill %s", r))
		}
		offset += spill.Size
	}
}

// RemoveFrame implements jni.MacroAssembler.RemoveFrame. There is no marking register
// to refresh on x86.
func (m *MacroAssembler) RemoveFrame(frameSize int, calleeSaves []jni.ManagedRegister, _ bool) {
	checkFrameAlignment(frameSize)
	// The exit block is followed by code that still runs with the frame.
	m.cfi.RememberState()

	adjust := frameSize - len(calleeSaves)*framePointerSize - framePointerSize /* method */
	m.asm.CompileConstToRegister(asm_x86.ADDL, int64(adjust), espReg)
	m.cfi.AdjustCFAOffset(-adjust)
	for _, cs := range calleeSaves {
		r := reg(cs)
		m.asm.CompileNoneToRegister(asm_x86.POPL, cpu(cs))
		m.cfi.AdjustCFAOffset(-framePointerSize)
		m.cfi.Restore(r.DWARFReg())
	}
	m.asm.CompileStandAlone(asm_x86.RET)

	m.cfi.RestoreState()
	m.cfi.DefCFAOffset(frameSize)
}

// IncreaseFrameSize implements jni.MacroAssembler.IncreaseFrameSize.
func (m *MacroAssembler) IncreaseFrameSize(adjust int) {
	checkFrameAlignment(adjust)
	if adjust == 0 {
		return
	}
	m.asm.CompileConstToRegister(asm_x86.SUBL, int64(adjust), espReg)
	m.cfi.AdjustCFAOffset(adjust)
}

// DecreaseFrameSize implements jni.MacroAssembler.DecreaseFrameSize.
func (m *MacroAssembler) DecreaseFrameSize(adjust int) {
	checkFrameAlignment(adjust)
	if adjust == 0 {
		return
	}
	m.asm.CompileConstToRegister(asm_x86.ADDL, int64(adjust), espReg)
	m.cfi.AdjustCFAOffset(-adjust)
}

func (m *MacroAssembler) store(base asm.Register, offset int32, src ManagedRegister, size int) {
	switch {
	case src.IsNoRegister():
		checkSize(src, size, 0)
	case src.IsCpuRegister():
		checkSize(src, size, 4)
		m.asm.CompileRegisterToMemory(asm_x86.MOVL, src.asmRegister(), base, int64(offset))
	case src.IsRegisterPair():
		checkSize(src, size, 8)
		m.asm.CompileRegisterToMemory(asm_x86.MOVL, cpuToAsm(src.AsRegisterPairLow()), base, int64(offset))
		m.asm.CompileRegisterToMemory(asm_x86.MOVL, cpuToAsm(src.AsRegisterPairHigh()), base, int64(offset)+4)
	case src.IsX87Register():
		// Pops the x87 stack.
		inst := asm_x86.FMOVDP
		if size == 4 {
			inst = asm_x86.FMOVFP
		}
		m.asm.CompileRegisterToMemory(inst, src.asmRegister(), base, int64(offset))
	case src.IsXmmRegister():
		inst := asm_x86.MOVSD
		if size == 4 {
			inst = asm_x86.MOVSS
		}
		m.asm.CompileRegisterToMemory(inst, src.asmRegister(), base, int64(offset))
	}
}

// Store implements jni.MacroAssembler.Store.
func (m *MacroAssembler) Store(dest quickapi.FrameOffset, src jni.ManagedRegister, size int) {
	m.store(espReg, int32(dest), reg(src), size)
}

// StoreRef implements jni.MacroAssembler.StoreRef.
func (m *MacroAssembler) StoreRef(dest quickapi.FrameOffset, src jni.ManagedRegister) {
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, cpu(src), espReg, dest.I64())
}

// StoreRawPtr implements jni.MacroAssembler.StoreRawPtr.
func (m *MacroAssembler) StoreRawPtr(dest quickapi.FrameOffset, src jni.ManagedRegister) {
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, cpu(src), espReg, dest.I64())
}

// StoreImmediateToFrame implements jni.MacroAssembler.StoreImmediateToFrame. No scratch
// register is needed.
func (m *MacroAssembler) StoreImmediateToFrame(dest quickapi.FrameOffset, imm uint32, _ jni.ManagedRegister) {
	m.asm.CompileConstToMemory(asm_x86.MOVL, int64(int32(imm)), espReg, dest.I64())
}

// StoreStackOffsetToThread implements jni.MacroAssembler.StoreStackOffsetToThread.
func (m *MacroAssembler) StoreStackOffsetToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.LEAL, espReg, frOffs.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, asm_x86.REG_FS, trOffs.I64())
}

// StoreStackPointerToThread implements jni.MacroAssembler.StoreStackPointerToThread.
func (m *MacroAssembler) StoreStackPointerToThread(trOffs quickapi.ThreadOffset) {
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, espReg, asm_x86.REG_FS, trOffs.I64())
}

// StoreSpanning implements jni.MacroAssembler.StoreSpanning. Only arm passes values
// spanning a register and the stack.
func (m *MacroAssembler) StoreSpanning(quickapi.FrameOffset, jni.ManagedRegister, quickapi.FrameOffset, jni.ManagedRegister) {
	panic("BUG: StoreSpanning is unimplemented on x86")
}

func (m *MacroAssembler) load(dest ManagedRegister, base asm.Register, offset int32, size int) {
	switch {
	case dest.IsNoRegister():
		checkSize(dest, size, 0)
	case dest.IsCpuRegister():
		switch size {
		case 1:
			m.asm.CompileMemoryToRegister(asm_x86.MOVBLZX, base, int64(offset), dest.asmRegister())
		case 4:
			m.asm.CompileMemoryToRegister(asm_x86.MOVL, base, int64(offset), dest.asmRegister())
		default:
			panic(fmt.Sprintf("BUG: invalid load size %d into %s", size, dest))
		}
	case dest.IsRegisterPair():
		checkSize(dest, size, 8)
		m.asm.CompileMemoryToRegister(asm_x86.MOVL, base, int64(offset), cpuToAsm(dest.AsRegisterPairLow()))
		m.asm.CompileMemoryToRegister(asm_x86.MOVL, base, int64(offset)+4, cpuToAsm(dest.AsRegisterPairHigh()))
	case dest.IsX87Register():
		// Pushes on the x87 stack.
		inst := asm_x86.FMOVD
		if size == 4 {
			inst = asm_x86.FMOVF
		}
		m.asm.CompileMemoryToRegister(inst, base, int64(offset), dest.asmRegister())
	case dest.IsXmmRegister():
		inst := asm_x86.MOVSD
		if size == 4 {
			inst = asm_x86.MOVSS
		}
		m.asm.CompileMemoryToRegister(inst, base, int64(offset), dest.asmRegister())
	}
}

// Load implements jni.MacroAssembler.Load.
func (m *MacroAssembler) Load(dest jni.ManagedRegister, src quickapi.FrameOffset, size int) {
	if d := reg(dest); d.IsCpuRegister() {
		checkSize(d, size, 4)
	}
	m.load(reg(dest), espReg, int32(src), size)
}

// LoadFromThread implements jni.MacroAssembler.LoadFromThread.
func (m *MacroAssembler) LoadFromThread(dest jni.ManagedRegister, src quickapi.ThreadOffset, size int) {
	m.load(reg(dest), asm_x86.REG_FS, int32(src), size)
}

// LoadRef implements jni.MacroAssembler.LoadRef.
func (m *MacroAssembler) LoadRef(dest jni.ManagedRegister, src quickapi.FrameOffset) {
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, src.I64(), cpu(dest))
}

// LoadRefFromMember implements jni.MacroAssembler.LoadRefFromMember.
func (m *MacroAssembler) LoadRefFromMember(mdest jni.ManagedRegister, base jni.ManagedRegister, offs quickapi.MemberOffset, unpoisonReference bool) {
	dest := cpu(mdest)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, cpu(base), offs.I64(), dest)
	if unpoisonReference && m.cfg.HeapPoisoning() {
		// Poisoned references are negated.
		m.asm.CompileNoneToRegister(asm_x86.NEGL, dest)
	}
}

// LoadRawPtr implements jni.MacroAssembler.LoadRawPtr.
func (m *MacroAssembler) LoadRawPtr(dest jni.ManagedRegister, base jni.ManagedRegister, offs quickapi.Offset) {
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, cpu(base), offs.I64(), cpu(dest))
}

// LoadRawPtrFromThread implements jni.MacroAssembler.LoadRawPtrFromThread.
func (m *MacroAssembler) LoadRawPtrFromThread(dest jni.ManagedRegister, offs quickapi.ThreadOffset) {
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, asm_x86.REG_FS, offs.I64(), cpu(dest))
}

// Move implements jni.MacroAssembler.Move.
func (m *MacroAssembler) Move(mdest jni.ManagedRegister, msrc jni.ManagedRegister, size int) {
	dest, src := reg(mdest), reg(msrc)
	if dest.Equals(src) {
		return
	}
	switch {
	case dest.IsCpuRegister() && src.IsCpuRegister():
		m.asm.CompileRegisterToRegister(asm_x86.MOVL, src.asmRegister(), dest.asmRegister())
	case dest.IsRegisterPair() && src.IsRegisterPair():
		slo, shi := cpuToAsm(src.AsRegisterPairLow()), cpuToAsm(src.AsRegisterPairHigh())
		dlo, dhi := cpuToAsm(dest.AsRegisterPairLow()), cpuToAsm(dest.AsRegisterPairHigh())
		if shi == dlo {
			if slo == dhi {
				panic(fmt.Sprintf("BUG: cannot swap %s into %s", src, dest))
			}
			m.asm.CompileRegisterToRegister(asm_x86.MOVL, shi, dhi)
			m.asm.CompileRegisterToRegister(asm_x86.MOVL, slo, dlo)
		} else {
			m.asm.CompileRegisterToRegister(asm_x86.MOVL, slo, dlo)
			m.asm.CompileRegisterToRegister(asm_x86.MOVL, shi, dhi)
		}
	case dest.IsXmmRegister() && src.IsXmmRegister():
		m.asm.CompileRegisterToRegister(asm_x86.MOVSD, src.asmRegister(), dest.asmRegister())
	case dest.IsXmmRegister() && src.IsX87Register():
		// Go through the stack, popping the x87 register.
		m.IncreaseFrameSize(16)
		if size == 4 {
			m.asm.CompileRegisterToMemory(asm_x86.FMOVFP, src.asmRegister(), espReg, 0)
			m.asm.CompileMemoryToRegister(asm_x86.MOVSS, espReg, 0, dest.asmRegister())
		} else {
			m.asm.CompileRegisterToMemory(asm_x86.FMOVDP, src.asmRegister(), espReg, 0)
			m.asm.CompileMemoryToRegister(asm_x86.MOVSD, espReg, 0, dest.asmRegister())
		}
		m.DecreaseFrameSize(16)
	default:
		panic(fmt.Sprintf("BUG: Move %s to %s is unimplemented on x86", src, dest))
	}
}

// CopyRef implements jni.MacroAssembler.CopyRef.
func (m *MacroAssembler) CopyRef(dest quickapi.FrameOffset, src quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, src.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, espReg, dest.I64())
}

// CopyRawPtrFromThread implements jni.MacroAssembler.CopyRawPtrFromThread.
func (m *MacroAssembler) CopyRawPtrFromThread(frOffs quickapi.FrameOffset, trOffs quickapi.ThreadOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, asm_x86.REG_FS, trOffs.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, espReg, frOffs.I64())
}

// CopyRawPtrToThread implements jni.MacroAssembler.CopyRawPtrToThread.
func (m *MacroAssembler) CopyRawPtrToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, frOffs.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, asm_x86.REG_FS, trOffs.I64())
}

// Copy implements jni.MacroAssembler.Copy. Eight bytes go through a cpu scratch one
// word at a time.
func (m *MacroAssembler) Copy(dest quickapi.FrameOffset, src quickapi.FrameOffset, mscratch jni.ManagedRegister, size int) {
	scratch := reg(mscratch)
	if scratch.IsCpuRegister() && size == 8 {
		m.Load(mscratch, src, 4)
		m.Store(dest, mscratch, 4)
		m.Load(mscratch, src.Add(4), 4)
		m.Store(dest.Add(4), mscratch, 4)
		return
	}
	m.Load(mscratch, src, size)
	m.Store(dest, mscratch, size)
}

// CopyFromBase implements jni.MacroAssembler.CopyFromBase. It is not supported on x86.
func (m *MacroAssembler) CopyFromBase(quickapi.FrameOffset, jni.ManagedRegister, quickapi.Offset, jni.ManagedRegister, int) {
	panic("BUG: CopyFromBase is unimplemented on x86")
}

func checkPushPopCopy(scratch jni.ManagedRegister, size int) {
	if !reg(scratch).IsNoRegister() {
		panic("BUG: memory to memory copies do not use a scratch register on x86")
	}
	if size != 4 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
}

// CopyToBase implements jni.MacroAssembler.CopyToBase with a push and a pop, scratch
// must be NoRegister.
func (m *MacroAssembler) CopyToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, src quickapi.FrameOffset, scratch jni.ManagedRegister, size int) {
	checkPushPopCopy(scratch, size)
	m.asm.CompileMemoryToNone(asm_x86.PUSHL, espReg, src.I64())
	m.asm.CompileNoneToMemory(asm_x86.POPL, cpu(destBase), destOffset.I64())
}

// CopyFromFrameBase implements jni.MacroAssembler.CopyFromFrameBase.
func (m *MacroAssembler) CopyFromFrameBase(dest quickapi.FrameOffset, srcBase quickapi.FrameOffset, srcOffset quickapi.Offset, mscratch jni.ManagedRegister, size int) {
	if size != 4 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, srcBase.I64(), scratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, scratch, srcOffset.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, espReg, dest.I64())
}

// CopyBaseToBase implements jni.MacroAssembler.CopyBaseToBase with a push and a pop,
// scratch must be NoRegister.
func (m *MacroAssembler) CopyBaseToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, srcBase jni.ManagedRegister, srcOffset quickapi.Offset, scratch jni.ManagedRegister, size int) {
	checkPushPopCopy(scratch, size)
	m.asm.CompileMemoryToNone(asm_x86.PUSHL, cpu(srcBase), srcOffset.I64())
	m.asm.CompileNoneToMemory(asm_x86.POPL, cpu(destBase), destOffset.I64())
}

// CopyFrameBaseToFrameBase implements jni.MacroAssembler.CopyFrameBaseToFrameBase. Both
// bases must be the same frame slot.
func (m *MacroAssembler) CopyFrameBaseToFrameBase(destBase quickapi.FrameOffset, destOffset quickapi.Offset, srcBase quickapi.FrameOffset, srcOffset quickapi.Offset, mscratch jni.ManagedRegister, size int) {
	if size != 4 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
	if destBase != srcBase {
		panic("BUG: CopyFrameBaseToFrameBase between different bases is unimplemented on x86")
	}
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, srcBase.I64(), scratch)
	m.asm.CompileMemoryToNone(asm_x86.PUSHL, scratch, srcOffset.I64())
	m.asm.CompileNoneToMemory(asm_x86.POPL, scratch, destOffset.I64())
}

// MemoryBarrier implements jni.MacroAssembler.MemoryBarrier.
func (m *MacroAssembler) MemoryBarrier(jni.ManagedRegister) {
	if m.features != nil && m.features.PrefersLockedAddSync() {
		m.asm.CompileStandAlone(asm_x86.LOCK)
		m.asm.CompileConstToMemory(asm_x86.ADDL, 0, espReg, 0)
		return
	}
	m.asm.CompileStandAlone(asm_x86.MFENCE)
}

func extension(size int, byteInst, wordInst asm.Instruction) asm.Instruction {
	switch size {
	case 1:
		return byteInst
	case 2:
		return wordInst
	}
	panic(fmt.Sprintf("BUG: invalid extension size %d", size))
}

// SignExtend implements jni.MacroAssembler.SignExtend.
func (m *MacroAssembler) SignExtend(mreg jni.ManagedRegister, size int) {
	inst := extension(size, asm_x86.MOVBLSX, asm_x86.MOVWLSX)
	r := cpu(mreg)
	m.asm.CompileRegisterToRegister(inst, r, r)
}

// ZeroExtend implements jni.MacroAssembler.ZeroExtend.
func (m *MacroAssembler) ZeroExtend(mreg jni.ManagedRegister, size int) {
	inst := extension(size, asm_x86.MOVBLZX, asm_x86.MOVWLZX)
	r := cpu(mreg)
	m.asm.CompileRegisterToRegister(inst, r, r)
}

// GetCurrentThread implements jni.MacroAssembler.GetCurrentThread.
func (m *MacroAssembler) GetCurrentThread(dest jni.ManagedRegister) {
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, asm_x86.REG_FS, m.offsets.Self.I64(), cpu(dest))
}

// GetCurrentThreadToFrame implements jni.MacroAssembler.GetCurrentThreadToFrame.
func (m *MacroAssembler) GetCurrentThreadToFrame(dest quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, asm_x86.REG_FS, m.offsets.Self.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, espReg, dest.I64())
}

// CreateHandleScopeEntry implements jni.MacroAssembler.CreateHandleScopeEntry.
func (m *MacroAssembler) CreateHandleScopeEntry(mout jni.ManagedRegister, handleScopeOffset quickapi.FrameOffset, min jni.ManagedRegister, nullAllowed bool) {
	out := cpu(mout)
	if nullAllowed {
		var in asm.Register
		if reg(min).IsNoRegister() {
			in = out
			m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, handleScopeOffset.I64(), in)
		} else {
			in = cpu(min)
		}
		if in != out {
			m.asm.CompileRegisterToRegister(asm_x86.XORL, out, out)
		}
		var null asm.Label
		m.asm.CompileRegisterToRegister(asm_x86.TESTL, in, in)
		m.asm.CompileJumpToLabel(asm_x86.JEQ, &null)
		m.asm.CompileMemoryToRegister(asm_x86.LEAL, espReg, handleScopeOffset.I64(), out)
		m.asm.Bind(&null)
		return
	}
	m.asm.CompileMemoryToRegister(asm_x86.LEAL, espReg, handleScopeOffset.I64(), out)
}

// CreateHandleScopeEntryInFrame implements jni.MacroAssembler.CreateHandleScopeEntryInFrame.
func (m *MacroAssembler) CreateHandleScopeEntryInFrame(outOff quickapi.FrameOffset, handleScopeOffset quickapi.FrameOffset, mscratch jni.ManagedRegister, nullAllowed bool) {
	scratch := cpu(mscratch)
	if nullAllowed {
		var null asm.Label
		m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, handleScopeOffset.I64(), scratch)
		m.asm.CompileRegisterToRegister(asm_x86.TESTL, scratch, scratch)
		m.asm.CompileJumpToLabel(asm_x86.JEQ, &null)
		m.asm.CompileMemoryToRegister(asm_x86.LEAL, espReg, handleScopeOffset.I64(), scratch)
		m.asm.Bind(&null)
	} else {
		m.asm.CompileMemoryToRegister(asm_x86.LEAL, espReg, handleScopeOffset.I64(), scratch)
	}
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, espReg, outOff.I64())
}

// LoadReferenceFromHandleScope implements jni.MacroAssembler.LoadReferenceFromHandleScope.
func (m *MacroAssembler) LoadReferenceFromHandleScope(mout jni.ManagedRegister, min jni.ManagedRegister) {
	out, in := cpu(mout), cpu(min)
	if out != in {
		m.asm.CompileRegisterToRegister(asm_x86.XORL, out, out)
	}
	var null asm.Label
	m.asm.CompileRegisterToRegister(asm_x86.TESTL, in, in)
	m.asm.CompileJumpToLabel(asm_x86.JEQ, &null)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, in, 0, out)
	m.asm.Bind(&null)
}

// VerifyObject implements jni.MacroAssembler.VerifyObject. References are not verified.
func (m *MacroAssembler) VerifyObject(jni.ManagedRegister, bool) {}

// VerifyObjectInFrame implements jni.MacroAssembler.VerifyObjectInFrame. References are not verified.
func (m *MacroAssembler) VerifyObjectInFrame(quickapi.FrameOffset, bool) {}

// Call implements jni.MacroAssembler.Call.
func (m *MacroAssembler) Call(base jni.ManagedRegister, offs quickapi.Offset, _ jni.ManagedRegister) {
	m.asm.CompileJumpToMemory(asm_x86.CALL, cpu(base), offs.I64())
}

// CallFromFrame implements jni.MacroAssembler.CallFromFrame.
func (m *MacroAssembler) CallFromFrame(base quickapi.FrameOffset, offs quickapi.Offset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, espReg, base.I64(), scratch)
	m.asm.CompileJumpToMemory(asm_x86.CALL, scratch, offs.I64())
}

// CallFromThread implements jni.MacroAssembler.CallFromThread.
func (m *MacroAssembler) CallFromThread(offs quickapi.ThreadOffset, _ jni.ManagedRegister) {
	m.asm.CompileJumpToMemory(asm_x86.CALL, asm_x86.REG_FS, offs.I64())
}

// ExceptionPoll implements jni.MacroAssembler.ExceptionPoll.
func (m *MacroAssembler) ExceptionPoll(mscratch jni.ManagedRegister, stackAdjust int) {
	checkFrameAlignment(stackAdjust)
	entry := m.CreateLabel()
	m.exceptions.Add(jni.ExceptionSlowPath[*Label]{
		Scratch:     mscratch,
		StackAdjust: stackAdjust,
		CFAOffset:   m.cfi.CurrentCFAOffset(),
		Entry:       entry,
	})
	m.asm.CompileMemoryToConst(asm_x86.CMPL, asm_x86.REG_FS, m.offsets.Exception.I64(), 0)
	m.asm.CompileJumpToLabel(asm_x86.JNE, entry.For(m))
}

// emitExceptionPoll emits the slow path of an ExceptionPoll: pass the pending exception
// in EAX to pDeliverException, which does not return.
func (m *MacroAssembler) emitExceptionPoll(p jni.ExceptionSlowPath[*Label]) {
	m.cfi.RememberState()
	m.cfi.DefCFAOffset(p.CFAOffset)
	m.asm.Bind(p.Entry.For(m))
	if p.StackAdjust != 0 {
		m.DecreaseFrameSize(p.StackAdjust)
	}
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, asm_x86.REG_FS, m.offsets.Exception.I64(), cpuToAsm(EAX))
	m.asm.CompileJumpToMemory(asm_x86.CALL, asm_x86.REG_FS, m.offsets.QuickEntrypoint(quickapi.QuickDeliverException).I64())
	m.asm.CompileStandAlone(asm_x86.INT3)
	m.cfi.RestoreState()
}

// CreateLabel implements jni.MacroAssembler.CreateLabel.
func (m *MacroAssembler) CreateLabel() *Label { return jni.NewLabel(m) }

// Jump implements jni.MacroAssembler.Jump.
func (m *MacroAssembler) Jump(l *Label) {
	m.asm.CompileJumpToLabel(asm_x86.JMP, l.For(m))
}

// JumpIf implements jni.MacroAssembler.JumpIf.
func (m *MacroAssembler) JumpIf(l *Label, cond jni.UnaryCondition, mtest jni.ManagedRegister) {
	var inst asm.Instruction
	switch cond {
	case jni.Zero:
		inst = asm_x86.JEQ
	case jni.NotZero:
		inst = asm_x86.JNE
	default:
		panic(fmt.Sprintf("BUG: invalid condition %s", cond))
	}
	test := cpu(mtest)
	m.asm.CompileRegisterToRegister(asm_x86.TESTL, test, test)
	m.asm.CompileJumpToLabel(inst, l.For(m))
}

// Bind implements jni.MacroAssembler.Bind.
func (m *MacroAssembler) Bind(l *Label) {
	m.asm.Bind(l.For(m))
}

// FinalizeCode implements jni.MacroAssembler.FinalizeCode.
func (m *MacroAssembler) FinalizeCode() error {
	m.exceptions.Flush(m.emitExceptionPoll)
	return m.CodeBuffer.Finalize(m.asm, m.cfi)
}
