package jni_x86_64

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/artquick/quick/internal/asm"
	asm_x86 "github.com/artquick/quick/internal/asm/x86"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

// Label is a jump target of a MacroAssembler.
type Label = jni.Label[MacroAssembler]

// MacroAssembler implements jni.MacroAssembler for x86-64. The current Thread is
// addressed through the GS segment.
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
	a, err := asm_x86.NewAssembler(true)
	if err != nil {
		return nil, err
	}
	m := &MacroAssembler{
		asm:      a,
		cfi:      dwarf.NewDebugFrameOpCodeWriter(),
		cfg:      cfg,
		features: features,
		offsets:  quickapi.ThreadOffsets(isa.PointerSize64),
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

var rspReg = cpuToAsm(RSP)

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

// splitCalleeSaves returns the cpu and the xmm callee saves, keeping their order.
func splitCalleeSaves(calleeSaves []jni.ManagedRegister) (cpus, xmms []ManagedRegister) {
	regs := lo.Map(calleeSaves, func(r jni.ManagedRegister, _ int) ManagedRegister { return FromJNI(r) })
	cpus = lo.Filter(regs, func(r ManagedRegister, _ int) bool { return r.IsCpuRegister() })
	xmms = lo.Filter(regs, func(r ManagedRegister, _ int) bool { return r.IsXmmRegister() })
	if len(cpus)+len(xmms) != len(regs) {
		panic("BUG: callee saves must be cpu or xmm registers")
	}
	return
}

// BuildFrame implements jni.MacroAssembler.BuildFrame.
//
// The cpu callee saves are pushed in reverse order above the return address. The
// xmm callee saves go right below them, and the method is stored at the bottom.
func (m *MacroAssembler) BuildFrame(frameSize int, methodReg jni.ManagedRegister, calleeSaves []jni.ManagedRegister, entrySpills []jni.ManagedRegisterSpill) {
	checkFrameAlignment(frameSize)
	cpus, xmms := splitCalleeSaves(calleeSaves)
	// The return address is on the stack.
	m.cfi.SetCurrentCFAOffset(framePointerSize)

	for i := len(cpus) - 1; i >= 0; i-- {
		m.asm.CompileRegisterToNone(asm_x86.PUSHQ, cpus[i].asmRegister())
		m.cfi.AdjustCFAOffset(framePointerSize)
		m.cfi.RelOffset(cpus[i].DWARFReg(), 0)
	}

	rest := frameSize - len(cpus)*framePointerSize - framePointerSize /* return address */
	if rest < (len(xmms)+1)*framePointerSize {
		panic(fmt.Sprintf("BUG: frame size %d is too small for %d callee saves", frameSize, len(calleeSaves)))
	}
	m.asm.CompileConstToRegister(asm_x86.SUBQ, int64(rest), rspReg)
	m.cfi.AdjustCFAOffset(rest)

	offset := rest
	for i := len(xmms) - 1; i >= 0; i-- {
		offset -= framePointerSize
		m.asm.CompileRegisterToMemory(asm_x86.MOVSD, xmms[i].asmRegister(), rspReg, int64(offset))
		m.cfi.RelOffset(xmms[i].DWARFReg(), offset)
	}
	if m.cfi.CurrentCFAOffset() != frameSize {
		panic(fmt.Sprintf("BUG: CFA offset %d does not match the frame size %d", m.cfi.CurrentCFAOffset(), frameSize))
	}

	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, cpu(methodReg), rspReg, 0)

	offset = frameSize + framePointerSize
	for _, spill := range entrySpills {
		if spill.SpillOffset != jni.SequentialSpillOffset {
			offset = frameSize + spill.SpillOffset
		}
		r := reg(spill.Reg)
		switch {
		case r.IsNoRegister():
		case r.IsCpuRegister() && spill.Size == 8:
			m.asm.CompileRegisterToMemory(asm_x86.MOVQ, r.asmRegister(), rspReg, int64(offset))
		case r.IsCpuRegister():
			checkSize(r, spill.Size, 4)
			m.asm.CompileRegisterToMemory(asm_x86.MOVL, r.asmRegister(), rspReg, int64(offset))
		case r.IsXmmRegister() && spill.Size == 8:
			m.asm.CompileRegisterToMemory(asm_x86.MOVSD, r.asmRegister(), rspReg, int64(offset))
		case r.IsXmmRegister():
			checkSize(r, spill.Size, 4)
			m.asm.CompileRegisterToMemory(asm_x86.MOVSS, r.asmRegister(), rspReg, int64(offset))
		default:
			panic(fmt.Sprintf("BUG: invalid entry spill %s", r))
		}
		offset += spill.Size
	}
}

// RemoveFrame implements jni.MacroAssembler.RemoveFrame. There is no marking register
// to refresh on x86-64.
func (m *MacroAssembler) RemoveFrame(frameSize int, calleeSaves []jni.ManagedRegister, _ bool) {
	checkFrameAlignment(frameSize)
	cpus, xmms := splitCalleeSaves(calleeSaves)
	// The exit block is followed by code that still runs with the frame.
	m.cfi.RememberState()

	rest := frameSize - len(cpus)*framePointerSize - framePointerSize /* return address */
	offset := rest - len(xmms)*framePointerSize
	for _, x := range xmms {
		m.asm.CompileMemoryToRegister(asm_x86.MOVSD, rspReg, int64(offset), x.asmRegister())
		m.cfi.Restore(x.DWARFReg())
		offset += framePointerSize
	}
	m.asm.CompileConstToRegister(asm_x86.ADDQ, int64(rest), rspReg)
	m.cfi.AdjustCFAOffset(-rest)
	for _, c := range cpus {
		m.asm.CompileNoneToRegister(asm_x86.POPQ, c.asmRegister())
		m.cfi.AdjustCFAOffset(-framePointerSize)
		m.cfi.Restore(c.DWARFReg())
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
	m.asm.CompileConstToRegister(asm_x86.SUBQ, int64(adjust), rspReg)
	m.cfi.AdjustCFAOffset(adjust)
}

// DecreaseFrameSize implements jni.MacroAssembler.DecreaseFrameSize.
func (m *MacroAssembler) DecreaseFrameSize(adjust int) {
	checkFrameAlignment(adjust)
	if adjust == 0 {
		return
	}
	m.asm.CompileConstToRegister(asm_x86.ADDQ, int64(adjust), rspReg)
	m.cfi.AdjustCFAOffset(-adjust)
}

func wordMove(size int) asm.Instruction {
	switch size {
	case 4:
		return asm_x86.MOVL
	case 8:
		return asm_x86.MOVQ
	}
	panic(fmt.Sprintf("BUG: invalid word size %d", size))
}

func (m *MacroAssembler) store(base asm.Register, offset int32, src ManagedRegister, size int) {
	switch {
	case src.IsNoRegister():
		checkSize(src, size, 0)
	case src.IsCpuRegister():
		m.asm.CompileRegisterToMemory(wordMove(size), src.asmRegister(), base, int64(offset))
	case src.IsRegisterPair():
		checkSize(src, size, 16)
		m.asm.CompileRegisterToMemory(asm_x86.MOVQ, cpuToAsm(src.AsRegisterPairLow()), base, int64(offset))
		m.asm.CompileRegisterToMemory(asm_x86.MOVQ, cpuToAsm(src.AsRegisterPairHigh()), base, int64(offset)+8)
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
	m.store(rspReg, int32(dest), reg(src), size)
}

// StoreRef implements jni.MacroAssembler.StoreRef. References are 32-bit.
func (m *MacroAssembler) StoreRef(dest quickapi.FrameOffset, src jni.ManagedRegister) {
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, cpu(src), rspReg, dest.I64())
}

// StoreRawPtr implements jni.MacroAssembler.StoreRawPtr.
func (m *MacroAssembler) StoreRawPtr(dest quickapi.FrameOffset, src jni.ManagedRegister) {
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, cpu(src), rspReg, dest.I64())
}

// StoreImmediateToFrame implements jni.MacroAssembler.StoreImmediateToFrame. No scratch
// register is needed.
func (m *MacroAssembler) StoreImmediateToFrame(dest quickapi.FrameOffset, imm uint32, _ jni.ManagedRegister) {
	m.asm.CompileConstToMemory(asm_x86.MOVL, int64(int32(imm)), rspReg, dest.I64())
}

// StoreStackOffsetToThread implements jni.MacroAssembler.StoreStackOffsetToThread.
func (m *MacroAssembler) StoreStackOffsetToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.LEAQ, rspReg, frOffs.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, scratch, asm_x86.REG_GS, trOffs.I64())
}

// StoreStackPointerToThread implements jni.MacroAssembler.StoreStackPointerToThread.
func (m *MacroAssembler) StoreStackPointerToThread(trOffs quickapi.ThreadOffset) {
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, rspReg, asm_x86.REG_GS, trOffs.I64())
}

// StoreSpanning implements jni.MacroAssembler.StoreSpanning. Only arm passes values
// spanning a register and the stack.
func (m *MacroAssembler) StoreSpanning(quickapi.FrameOffset, jni.ManagedRegister, quickapi.FrameOffset, jni.ManagedRegister) {
	panic("BUG: StoreSpanning is unimplemented on x86-64")
}

func (m *MacroAssembler) load(dest ManagedRegister, base asm.Register, offset int32, size int) {
	switch {
	case dest.IsNoRegister():
		checkSize(dest, size, 0)
	case dest.IsCpuRegister() && size == 1:
		m.asm.CompileMemoryToRegister(asm_x86.MOVBLZX, base, int64(offset), dest.asmRegister())
	case dest.IsCpuRegister():
		m.asm.CompileMemoryToRegister(wordMove(size), base, int64(offset), dest.asmRegister())
	case dest.IsRegisterPair():
		checkSize(dest, size, 16)
		m.asm.CompileMemoryToRegister(asm_x86.MOVQ, base, int64(offset), cpuToAsm(dest.AsRegisterPairLow()))
		m.asm.CompileMemoryToRegister(asm_x86.MOVQ, base, int64(offset)+8, cpuToAsm(dest.AsRegisterPairHigh()))
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
	if d := reg(dest); d.IsCpuRegister() && size == 1 {
		panic(fmt.Sprintf("BUG: invalid load size %d into %s", size, d))
	}
	m.load(reg(dest), rspReg, int32(src), size)
}

// LoadFromThread implements jni.MacroAssembler.LoadFromThread.
func (m *MacroAssembler) LoadFromThread(dest jni.ManagedRegister, src quickapi.ThreadOffset, size int) {
	m.load(reg(dest), asm_x86.REG_GS, int32(src), size)
}

// LoadRef implements jni.MacroAssembler.LoadRef. References are 32-bit.
func (m *MacroAssembler) LoadRef(dest jni.ManagedRegister, src quickapi.FrameOffset) {
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, rspReg, src.I64(), cpu(dest))
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
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, cpu(base), offs.I64(), cpu(dest))
}

// LoadRawPtrFromThread implements jni.MacroAssembler.LoadRawPtrFromThread.
func (m *MacroAssembler) LoadRawPtrFromThread(dest jni.ManagedRegister, offs quickapi.ThreadOffset) {
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, asm_x86.REG_GS, offs.I64(), cpu(dest))
}

// Move implements jni.MacroAssembler.Move.
func (m *MacroAssembler) Move(mdest jni.ManagedRegister, msrc jni.ManagedRegister, size int) {
	dest, src := reg(mdest), reg(msrc)
	if dest.Equals(src) {
		return
	}
	switch {
	case dest.IsCpuRegister() && src.IsCpuRegister():
		m.asm.CompileRegisterToRegister(asm_x86.MOVQ, src.asmRegister(), dest.asmRegister())
	case dest.IsXmmRegister() && src.IsXmmRegister():
		m.asm.CompileRegisterToRegister(asm_x86.MOVSD, src.asmRegister(), dest.asmRegister())
	case dest.IsXmmRegister() && src.IsX87Register():
		// Go through the stack, popping the x87 register.
		m.IncreaseFrameSize(16)
		if size == 4 {
			m.asm.CompileRegisterToMemory(asm_x86.FMOVFP, src.asmRegister(), rspReg, 0)
			m.asm.CompileMemoryToRegister(asm_x86.MOVSS, rspReg, 0, dest.asmRegister())
		} else {
			m.asm.CompileRegisterToMemory(asm_x86.FMOVDP, src.asmRegister(), rspReg, 0)
			m.asm.CompileMemoryToRegister(asm_x86.MOVSD, rspReg, 0, dest.asmRegister())
		}
		m.DecreaseFrameSize(16)
	default:
		panic(fmt.Sprintf("BUG: Move %s to %s is unimplemented on x86-64", src, dest))
	}
}

// CopyRef implements jni.MacroAssembler.CopyRef.
func (m *MacroAssembler) CopyRef(dest quickapi.FrameOffset, src quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVL, rspReg, src.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVL, scratch, rspReg, dest.I64())
}

// CopyRawPtrFromThread implements jni.MacroAssembler.CopyRawPtrFromThread.
func (m *MacroAssembler) CopyRawPtrFromThread(frOffs quickapi.FrameOffset, trOffs quickapi.ThreadOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, asm_x86.REG_GS, trOffs.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, scratch, rspReg, frOffs.I64())
}

// CopyRawPtrToThread implements jni.MacroAssembler.CopyRawPtrToThread.
func (m *MacroAssembler) CopyRawPtrToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, rspReg, frOffs.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, scratch, asm_x86.REG_GS, trOffs.I64())
}

// Copy implements jni.MacroAssembler.Copy.
func (m *MacroAssembler) Copy(dest quickapi.FrameOffset, src quickapi.FrameOffset, mscratch jni.ManagedRegister, size int) {
	m.Load(mscratch, src, size)
	m.Store(dest, mscratch, size)
}

// CopyFromBase implements jni.MacroAssembler.CopyFromBase. It is not supported on x86-64.
func (m *MacroAssembler) CopyFromBase(quickapi.FrameOffset, jni.ManagedRegister, quickapi.Offset, jni.ManagedRegister, int) {
	panic("BUG: CopyFromBase is unimplemented on x86-64")
}

// checkPushPopCopy panics unless a push and a pop can do the copy: they move a whole
// 8-byte slot without a scratch register.
func checkPushPopCopy(scratch jni.ManagedRegister, size int) {
	if !reg(scratch).IsNoRegister() {
		panic("BUG: memory to memory copies do not use a scratch register on x86-64")
	}
	if size != 8 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
}

// CopyToBase implements jni.MacroAssembler.CopyToBase.
func (m *MacroAssembler) CopyToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, src quickapi.FrameOffset, scratch jni.ManagedRegister, size int) {
	checkPushPopCopy(scratch, size)
	m.asm.CompileMemoryToNone(asm_x86.PUSHQ, rspReg, src.I64())
	m.asm.CompileNoneToMemory(asm_x86.POPQ, cpu(destBase), destOffset.I64())
}

// CopyFromFrameBase implements jni.MacroAssembler.CopyFromFrameBase.
func (m *MacroAssembler) CopyFromFrameBase(dest quickapi.FrameOffset, srcBase quickapi.FrameOffset, srcOffset quickapi.Offset, mscratch jni.ManagedRegister, size int) {
	if size != 8 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, rspReg, srcBase.I64(), scratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, scratch, srcOffset.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, scratch, rspReg, dest.I64())
}

// CopyBaseToBase implements jni.MacroAssembler.CopyBaseToBase.
func (m *MacroAssembler) CopyBaseToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, srcBase jni.ManagedRegister, srcOffset quickapi.Offset, scratch jni.ManagedRegister, size int) {
	checkPushPopCopy(scratch, size)
	m.asm.CompileMemoryToNone(asm_x86.PUSHQ, cpu(srcBase), srcOffset.I64())
	m.asm.CompileNoneToMemory(asm_x86.POPQ, cpu(destBase), destOffset.I64())
}

// CopyFrameBaseToFrameBase implements jni.MacroAssembler.CopyFrameBaseToFrameBase. Both
// bases must be the same frame slot.
func (m *MacroAssembler) CopyFrameBaseToFrameBase(destBase quickapi.FrameOffset, destOffset quickapi.Offset, srcBase quickapi.FrameOffset, srcOffset quickapi.Offset, mscratch jni.ManagedRegister, size int) {
	if size != 8 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
	if destBase != srcBase {
		panic("BUG: CopyFrameBaseToFrameBase between different bases is unimplemented on x86-64")
	}
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, rspReg, srcBase.I64(), scratch)
	m.asm.CompileMemoryToNone(asm_x86.PUSHQ, scratch, srcOffset.I64())
	m.asm.CompileNoneToMemory(asm_x86.POPQ, scratch, destOffset.I64())
}

// MemoryBarrier implements jni.MacroAssembler.MemoryBarrier.
func (m *MacroAssembler) MemoryBarrier(jni.ManagedRegister) {
	if m.features != nil && m.features.PrefersLockedAddSync() {
		m.asm.CompileStandAlone(asm_x86.LOCK)
		m.asm.CompileConstToMemory(asm_x86.ADDL, 0, rspReg, 0)
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
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, asm_x86.REG_GS, m.offsets.Self.I64(), cpu(dest))
}

// GetCurrentThreadToFrame implements jni.MacroAssembler.GetCurrentThreadToFrame.
func (m *MacroAssembler) GetCurrentThreadToFrame(dest quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := cpu(mscratch)
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, asm_x86.REG_GS, m.offsets.Self.I64(), scratch)
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, scratch, rspReg, dest.I64())
}

// CreateHandleScopeEntry implements jni.MacroAssembler.CreateHandleScopeEntry.
func (m *MacroAssembler) CreateHandleScopeEntry(mout jni.ManagedRegister, handleScopeOffset quickapi.FrameOffset, min jni.ManagedRegister, nullAllowed bool) {
	out := cpu(mout)
	if !nullAllowed {
		m.asm.CompileMemoryToRegister(asm_x86.LEAQ, rspReg, handleScopeOffset.I64(), out)
		return
	}
	var in asm.Register
	if reg(min).IsNoRegister() {
		in = out
		m.asm.CompileMemoryToRegister(asm_x86.MOVL, rspReg, handleScopeOffset.I64(), in)
	} else {
		in = cpu(min)
	}
	if in != out {
		m.asm.CompileRegisterToRegister(asm_x86.XORL, out, out)
	}
	var null asm.Label
	m.asm.CompileRegisterToRegister(asm_x86.TESTL, in, in)
	m.asm.CompileJumpToLabel(asm_x86.JEQ, &null)
	m.asm.CompileMemoryToRegister(asm_x86.LEAQ, rspReg, handleScopeOffset.I64(), out)
	m.asm.Bind(&null)
}

// CreateHandleScopeEntryInFrame implements jni.MacroAssembler.CreateHandleScopeEntryInFrame.
// The entry is a pointer, so all 8 bytes of the slot are written.
func (m *MacroAssembler) CreateHandleScopeEntryInFrame(outOff quickapi.FrameOffset, handleScopeOffset quickapi.FrameOffset, mscratch jni.ManagedRegister, nullAllowed bool) {
	scratch := cpu(mscratch)
	if nullAllowed {
		var null asm.Label
		m.asm.CompileMemoryToRegister(asm_x86.MOVL, rspReg, handleScopeOffset.I64(), scratch)
		m.asm.CompileRegisterToRegister(asm_x86.TESTL, scratch, scratch)
		m.asm.CompileJumpToLabel(asm_x86.JEQ, &null)
		m.asm.CompileMemoryToRegister(asm_x86.LEAQ, rspReg, handleScopeOffset.I64(), scratch)
		m.asm.Bind(&null)
	} else {
		m.asm.CompileMemoryToRegister(asm_x86.LEAQ, rspReg, handleScopeOffset.I64(), scratch)
	}
	m.asm.CompileRegisterToMemory(asm_x86.MOVQ, scratch, rspReg, outOff.I64())
}

// LoadReferenceFromHandleScope implements jni.MacroAssembler.LoadReferenceFromHandleScope.
func (m *MacroAssembler) LoadReferenceFromHandleScope(mout jni.ManagedRegister, min jni.ManagedRegister) {
	out, in := cpu(mout), cpu(min)
	if out != in {
		m.asm.CompileRegisterToRegister(asm_x86.XORL, out, out)
	}
	var null asm.Label
	m.asm.CompileRegisterToRegister(asm_x86.TESTQ, in, in)
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
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, rspReg, base.I64(), scratch)
	m.asm.CompileJumpToMemory(asm_x86.CALL, scratch, offs.I64())
}

// CallFromThread implements jni.MacroAssembler.CallFromThread.
func (m *MacroAssembler) CallFromThread(offs quickapi.ThreadOffset, _ jni.ManagedRegister) {
	m.asm.CompileJumpToMemory(asm_x86.CALL, asm_x86.REG_GS, offs.I64())
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
	m.asm.CompileMemoryToConst(asm_x86.CMPL, asm_x86.REG_GS, m.offsets.Exception.I64(), 0)
	m.asm.CompileJumpToLabel(asm_x86.JNE, entry.For(m))
}

// emitExceptionPoll emits the slow path of an ExceptionPoll: pass the pending exception
// in RDI to pDeliverException, which does not return.
func (m *MacroAssembler) emitExceptionPoll(p jni.ExceptionSlowPath[*Label]) {
	m.cfi.RememberState()
	m.cfi.DefCFAOffset(p.CFAOffset)
	m.asm.Bind(p.Entry.For(m))
	if p.StackAdjust != 0 {
		m.DecreaseFrameSize(p.StackAdjust)
	}
	m.asm.CompileMemoryToRegister(asm_x86.MOVQ, asm_x86.REG_GS, m.offsets.Exception.I64(), cpuToAsm(RDI))
	m.asm.CompileJumpToMemory(asm_x86.CALL, asm_x86.REG_GS, m.offsets.QuickEntrypoint(quickapi.QuickDeliverException).I64())
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
	m.asm.CompileRegisterToRegister(asm_x86.TESTQ, test, test)
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
