package jni_arm

import (
	"fmt"
	"math/bits"

	"github.com/artquick/quick/internal/asm"
	asm_arm "github.com/artquick/quick/internal/asm/arm"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

// Label is a jump target of a MacroAssembler.
type Label = jni.Label[MacroAssembler]

// MacroAssembler implements jni.MacroAssembler for arm (A32).
type MacroAssembler struct {
	jni.CodeBuffer

	asm        asm_arm.Assembler
	cfi        *dwarf.DebugFrameOpCodeWriter
	cfg        *jni.Config
	temps      *asm.ScratchRegisters
	offsets    *quickapi.ThreadOffsetData
	exceptions jni.ExceptionSlowPaths[*Label]
}

var _ jni.MacroAssembler[*Label] = (*MacroAssembler)(nil)

// NewMacroAssembler returns a MacroAssembler emitting code for cfg.
func NewMacroAssembler(cfg *jni.Config) (*MacroAssembler, error) {
	a, err := asm_arm.NewAssembler(coreToAsm(IP))
	if err != nil {
		return nil, err
	}
	m := &MacroAssembler{
		asm:     a,
		cfi:     dwarf.NewDebugFrameOpCodeWriter(),
		cfg:     cfg,
		temps:   asm.NewScratchRegisters(coreToAsm(IP)),
		offsets: quickapi.ThreadOffsets(isa.PointerSize32),
	}
	m.cfi.SetPositionSource(a.Position)
	return m, nil
}

// Assembler returns the low-level assembler, for listings.
func (m *MacroAssembler) Assembler() asm_arm.Assembler { return m.asm }

// CFI implements jni.MacroAssembler.CFI.
func (m *MacroAssembler) CFI() *dwarf.DebugFrameOpCodeWriter { return m.cfi }

func reg(r jni.ManagedRegister) ManagedRegister { return FromJNI(r) }

// core panics unless r is a core register.
func core(r jni.ManagedRegister) asm.Register {
	return coreToAsm(reg(r).AsCoreRegister())
}

var (
	spReg = coreToAsm(SP)
	trReg = coreToAsm(TR)
)

func (m *MacroAssembler) loadWord(dest, base asm.Register, offset int32) {
	m.asm.CompileMemoryToRegister(asm_arm.MOVW, base, int64(offset), dest)
}

func (m *MacroAssembler) storeWord(src, base asm.Register, offset int32) {
	m.asm.CompileRegisterToMemory(asm_arm.MOVW, src, base, int64(offset))
}

func checkSize(r ManagedRegister, got, want int) {
	if got != want {
		panic(fmt.Sprintf("BUG: size %d does not match %s", got, r))
	}
}

// spillMasksOf returns the core registers to push, LR included, and the S registers to
// push, which must be consecutive.
func spillMasksOf(calleeSaves []jni.ManagedRegister) (coreMask, fpMask uint32) {
	coreMask = 1 << uint(LR)
	for _, r := range calleeSaves {
		switch mr := reg(r); {
		case mr.IsCoreRegister():
			coreMask |= 1 << uint(mr.AsCoreRegister())
		case mr.IsSRegister():
			fpMask |= 1 << uint(mr.AsSRegister())
		default:
			panic(fmt.Sprintf("BUG: invalid callee save %s", mr))
		}
	}
	if fpMask != 0 && fpMask>>bits.TrailingZeros32(fpMask) != ^uint32(0)>>(32-bits.OnesCount32(fpMask)) {
		panic(fmt.Sprintf("BUG: FP callee saves %#x are not consecutive", fpMask))
	}
	return
}

func coreRegisters(mask uint32) (ret []asm.Register) {
	for i := 0; i < numberOfCoreRegisters; i++ {
		if mask&(1<<uint(i)) != 0 {
			ret = append(ret, coreToAsm(Register(i)))
		}
	}
	return
}

// BuildFrame implements jni.MacroAssembler.BuildFrame.
//
// The core callee saves and LR are pushed first, then the S callee saves, then the
// frame is grown to frameSize with the method pointer at [sp].
func (m *MacroAssembler) BuildFrame(frameSize int, methodReg jni.ManagedRegister, calleeSaves []jni.ManagedRegister, entrySpills []jni.ManagedRegisterSpill) {
	checkFrameAlignment(frameSize)
	if mr := reg(methodReg); !mr.Equals(FromCoreRegister(R0)) {
		panic(fmt.Sprintf("BUG: method register must be R0, got %s", mr))
	}
	coreMask, fpMask := spillMasksOf(calleeSaves)

	m.asm.CompilePush(coreRegisters(coreMask)...)
	m.cfi.AdjustCFAOffset(bits.OnesCount32(coreMask) * framePointerSize)
	m.cfi.RelOffsetForMany(dwarf.ArmCore(0), 0, coreMask, framePointerSize)
	if fpMask != 0 {
		m.asm.CompileVPush(sToAsm(SRegister(bits.TrailingZeros32(fpMask))), bits.OnesCount32(fpMask))
		m.cfi.AdjustCFAOffset(bits.OnesCount32(fpMask) * framePointerSize)
		m.cfi.RelOffsetForMany(dwarf.ArmFp(0), 0, fpMask, framePointerSize)
	}

	pushed := (bits.OnesCount32(coreMask) + bits.OnesCount32(fpMask)) * framePointerSize
	if frameSize <= pushed {
		panic(fmt.Sprintf("BUG: frame size %d leaves no room for the method after %d bytes of callee saves", frameSize, pushed))
	}
	m.IncreaseFrameSize(frameSize - pushed)

	m.storeWord(coreToAsm(R0), spReg, 0)

	offset := frameSize + framePointerSize
	for _, spill := range entrySpills {
		r := reg(spill.Reg)
		if spill.SpillOffset != jni.SequentialSpillOffset {
			offset = frameSize + spill.SpillOffset
		}
		switch {
		case r.IsNoRegister():
			offset += spill.Size
		case r.IsCoreRegister():
			m.storeWord(r.asmRegister(), spReg, int32(offset))
			offset += 4
		case r.IsSRegister():
			m.asm.CompileRegisterToMemory(asm_arm.MOVF, r.asmRegister(), spReg, int64(offset))
			offset += 4
		case r.IsDRegister():
			m.asm.CompileRegisterToMemory(asm_arm.MOVD, r.asmRegister(), spReg, int64(offset))
			offset += 8
		default:
			panic(fmt.Sprintf("BUG: invalid entry spill %s", r))
		}
	}
}

// RemoveFrame implements jni.MacroAssembler.RemoveFrame.
func (m *MacroAssembler) RemoveFrame(frameSize int, calleeSaves []jni.ManagedRegister, maySuspend bool) {
	checkFrameAlignment(frameSize)
	coreMask, fpMask := spillMasksOf(calleeSaves)
	popped := (bits.OnesCount32(coreMask) + bits.OnesCount32(fpMask)) * framePointerSize
	if frameSize <= popped {
		panic(fmt.Sprintf("BUG: frame size %d leaves no room for the method after %d bytes of callee saves", frameSize, popped))
	}

	// The exit block is followed by code that still runs with the frame.
	m.cfi.RememberState()

	m.DecreaseFrameSize(frameSize - popped)
	if fpMask != 0 {
		m.asm.CompileVPop(sToAsm(SRegister(bits.TrailingZeros32(fpMask))), bits.OnesCount32(fpMask))
		m.cfi.AdjustCFAOffset(-bits.OnesCount32(fpMask) * framePointerSize)
		m.cfi.RestoreMany(dwarf.ArmFp(0), fpMask)
	}
	m.asm.CompilePop(coreRegisters(coreMask)...)
	m.cfi.AdjustCFAOffset(-bits.OnesCount32(coreMask) * framePointerSize)
	m.cfi.RestoreMany(dwarf.ArmCore(0), coreMask)

	if m.cfg.ReadBarrier() {
		if maySuspend {
			// The GC may have started or finished marking while the thread was suspended.
			m.loadWord(coreToAsm(MR), trReg, int32(m.offsets.IsGcMarking))
		} else {
			if coreMask&(1<<uint(MR)) == 0 {
				panic("BUG: the marking register must be a callee save")
			}
			if m.cfg.RuntimeDebugChecks() {
				m.markingRegisterCheck(coreMask)
			}
		}
	}

	m.asm.CompileReturn()

	m.cfi.RestoreState()
	m.cfi.DefCFAOffset(frameSize)
}

// markingRegisterCheck traps unless the marking register equals Thread::is_gc_marking.
func (m *MacroAssembler) markingRegisterCheck(coreMask uint32) {
	temps := m.temps.Open()
	defer temps.Release()
	tmp := temps.Acquire()
	if coreMask&(1<<uint(tmp-asm_arm.REG_R0)) != 0 {
		panic("BUG: the scratch register of the marking register check is a callee save")
	}

	var ok asm.Label
	m.loadWord(tmp, trReg, int32(m.offsets.IsGcMarking))
	m.asm.CompileTwoRegistersToNone(asm_arm.CMP, coreToAsm(MR), tmp)
	m.asm.CompileJumpToLabel(asm_arm.BEQ, &ok)
	m.asm.CompileBreakpoint()
	m.asm.Bind(&ok)
}

func checkFrameAlignment(size int) {
	if !isa.IsAligned(size, isa.StackAlignment) {
		panic(fmt.Sprintf("BUG: frame size %d is not %d-byte aligned", size, isa.StackAlignment))
	}
}

func checkWordAlignment(adjust int) {
	if !isa.IsAligned(adjust, framePointerSize) {
		panic(fmt.Sprintf("BUG: frame adjustment %d is not word aligned", adjust))
	}
}

// IncreaseFrameSize implements jni.MacroAssembler.IncreaseFrameSize. The adjustment
// only needs to be word aligned, BuildFrame uses it to round up to the stack alignment.
func (m *MacroAssembler) IncreaseFrameSize(adjust int) {
	checkWordAlignment(adjust)
	if adjust == 0 {
		return
	}
	m.asm.CompileRegisterAndConstToRegister(asm_arm.SUB, spReg, int64(adjust), spReg)
	m.cfi.AdjustCFAOffset(adjust)
}

// DecreaseFrameSize implements jni.MacroAssembler.DecreaseFrameSize.
func (m *MacroAssembler) DecreaseFrameSize(adjust int) {
	checkWordAlignment(adjust)
	if adjust == 0 {
		return
	}
	m.asm.CompileRegisterAndConstToRegister(asm_arm.ADD, spReg, int64(adjust), spReg)
	m.cfi.AdjustCFAOffset(-adjust)
}

// Store implements jni.MacroAssembler.Store.
func (m *MacroAssembler) Store(dest quickapi.FrameOffset, msrc jni.ManagedRegister, size int) {
	src := reg(msrc)
	switch {
	case src.IsNoRegister():
		checkSize(src, size, 0)
	case src.IsCoreRegister():
		checkSize(src, size, 4)
		m.storeWord(src.asmRegister(), spReg, int32(dest))
	case src.IsRegisterPair():
		checkSize(src, size, 8)
		m.storeWord(coreToAsm(src.AsRegisterPairLow()), spReg, int32(dest))
		m.storeWord(coreToAsm(src.AsRegisterPairHigh()), spReg, int32(dest)+4)
	case src.IsSRegister():
		checkSize(src, size, 4)
		m.asm.CompileRegisterToMemory(asm_arm.MOVF, src.asmRegister(), spReg, dest.I64())
	case src.IsDRegister():
		checkSize(src, size, 8)
		m.asm.CompileRegisterToMemory(asm_arm.MOVD, src.asmRegister(), spReg, dest.I64())
	}
}

// StoreRef implements jni.MacroAssembler.StoreRef.
func (m *MacroAssembler) StoreRef(dest quickapi.FrameOffset, src jni.ManagedRegister) {
	m.storeWord(core(src), spReg, int32(dest))
}

// StoreRawPtr implements jni.MacroAssembler.StoreRawPtr.
func (m *MacroAssembler) StoreRawPtr(dest quickapi.FrameOffset, src jni.ManagedRegister) {
	m.storeWord(core(src), spReg, int32(dest))
}

// StoreImmediateToFrame implements jni.MacroAssembler.StoreImmediateToFrame.
func (m *MacroAssembler) StoreImmediateToFrame(dest quickapi.FrameOffset, imm uint32, mscratch jni.ManagedRegister) {
	scratch := core(mscratch)
	m.asm.CompileConstToRegister(asm_arm.MOVW, int64(imm), scratch)
	m.storeWord(scratch, spReg, int32(dest))
}

// StoreStackOffsetToThread implements jni.MacroAssembler.StoreStackOffsetToThread.
func (m *MacroAssembler) StoreStackOffsetToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := core(mscratch)
	m.asm.CompileRegisterAndConstToRegister(asm_arm.ADD, spReg, frOffs.I64(), scratch)
	m.storeWord(scratch, trReg, int32(trOffs))
}

// StoreStackPointerToThread implements jni.MacroAssembler.StoreStackPointerToThread.
func (m *MacroAssembler) StoreStackPointerToThread(trOffs quickapi.ThreadOffset) {
	m.storeWord(spReg, trReg, int32(trOffs))
}

// StoreSpanning implements jni.MacroAssembler.StoreSpanning.
func (m *MacroAssembler) StoreSpanning(dest quickapi.FrameOffset, msrc jni.ManagedRegister, inOff quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := core(mscratch)
	m.storeWord(core(msrc), spReg, int32(dest))
	m.loadWord(scratch, spReg, int32(inOff))
	m.storeWord(scratch, spReg, int32(dest)+4)
}

func (m *MacroAssembler) load(dest ManagedRegister, base asm.Register, offset int32, size int) {
	switch {
	case dest.IsNoRegister():
		checkSize(dest, size, 0)
	case dest.IsCoreRegister():
		if dest.AsCoreRegister() == SP {
			panic("BUG: cannot load into SP")
		}
		switch size {
		case 1:
			m.asm.CompileMemoryToRegister(asm_arm.MOVBU, base, int64(offset), dest.asmRegister())
		case 4:
			m.loadWord(dest.asmRegister(), base, offset)
		default:
			panic(fmt.Sprintf("BUG: invalid load size %d into %s", size, dest))
		}
	case dest.IsRegisterPair():
		checkSize(dest, size, 8)
		lo, hi := coreToAsm(dest.AsRegisterPairLow()), coreToAsm(dest.AsRegisterPairHigh())
		if lo == base {
			// Keep the base alive for the second load.
			m.loadWord(hi, base, offset+4)
			m.loadWord(lo, base, offset)
		} else {
			m.loadWord(lo, base, offset)
			m.loadWord(hi, base, offset+4)
		}
	case dest.IsSRegister():
		checkSize(dest, size, 4)
		m.asm.CompileMemoryToRegister(asm_arm.MOVF, base, int64(offset), dest.asmRegister())
	case dest.IsDRegister():
		checkSize(dest, size, 8)
		m.asm.CompileMemoryToRegister(asm_arm.MOVD, base, int64(offset), dest.asmRegister())
	}
}

// Load implements jni.MacroAssembler.Load.
func (m *MacroAssembler) Load(dest jni.ManagedRegister, src quickapi.FrameOffset, size int) {
	m.load(reg(dest), spReg, int32(src), size)
}

// LoadFromThread implements jni.MacroAssembler.LoadFromThread.
func (m *MacroAssembler) LoadFromThread(dest jni.ManagedRegister, src quickapi.ThreadOffset, size int) {
	m.load(reg(dest), trReg, int32(src), size)
}

// LoadRef implements jni.MacroAssembler.LoadRef.
func (m *MacroAssembler) LoadRef(dest jni.ManagedRegister, src quickapi.FrameOffset) {
	m.loadWord(core(dest), spReg, int32(src))
}

// LoadRefFromMember implements jni.MacroAssembler.LoadRefFromMember.
func (m *MacroAssembler) LoadRefFromMember(mdest jni.ManagedRegister, base jni.ManagedRegister, offs quickapi.MemberOffset, unpoisonReference bool) {
	dest := core(mdest)
	m.loadWord(dest, core(base), int32(offs))
	if unpoisonReference && m.cfg.HeapPoisoning() {
		// Poisoned references are negated.
		m.asm.CompileRegisterAndConstToRegister(asm_arm.RSB, dest, 0, dest)
	}
}

// LoadRawPtr implements jni.MacroAssembler.LoadRawPtr.
func (m *MacroAssembler) LoadRawPtr(dest jni.ManagedRegister, base jni.ManagedRegister, offs quickapi.Offset) {
	m.loadWord(core(dest), core(base), int32(offs))
}

// LoadRawPtrFromThread implements jni.MacroAssembler.LoadRawPtrFromThread.
func (m *MacroAssembler) LoadRawPtrFromThread(dest jni.ManagedRegister, offs quickapi.ThreadOffset) {
	m.loadWord(core(dest), trReg, int32(offs))
}

// Move implements jni.MacroAssembler.Move. The size is implied by the registers.
func (m *MacroAssembler) Move(mdest jni.ManagedRegister, msrc jni.ManagedRegister, _ int) {
	dest, src := reg(mdest), reg(msrc)
	if dest.Equals(src) {
		return
	}
	invalid := func() { panic(fmt.Sprintf("BUG: cannot move %s to %s", src, dest)) }
	switch {
	case dest.IsCoreRegister():
		switch {
		case src.IsCoreRegister():
			m.asm.CompileRegisterToRegister(asm_arm.MOVW, src.asmRegister(), dest.asmRegister())
		case src.IsSRegister():
			m.asm.CompileRegisterToRegister(asm_arm.MOVF, src.asmRegister(), dest.asmRegister())
		default:
			invalid()
		}
	case dest.IsDRegister():
		switch {
		case src.IsDRegister():
			m.asm.CompileRegisterToRegister(asm_arm.MOVD, src.asmRegister(), dest.asmRegister())
		case src.IsRegisterPair():
			m.asm.CompileRegisterPairToDouble(coreToAsm(src.AsRegisterPairLow()), coreToAsm(src.AsRegisterPairHigh()), dest.asmRegister())
		default:
			invalid()
		}
	case dest.IsSRegister():
		if !src.IsSRegister() && !src.IsCoreRegister() {
			invalid()
		}
		m.asm.CompileRegisterToRegister(asm_arm.MOVF, src.asmRegister(), dest.asmRegister())
	case dest.IsRegisterPair():
		dlo, dhi := coreToAsm(dest.AsRegisterPairLow()), coreToAsm(dest.AsRegisterPairHigh())
		switch {
		case src.IsDRegister():
			m.asm.CompileDoubleToRegisterPair(src.asmRegister(), dlo, dhi)
		case src.IsRegisterPair():
			slo, shi := coreToAsm(src.AsRegisterPairLow()), coreToAsm(src.AsRegisterPairHigh())
			// The first move must not clobber the input of the second.
			if shi != dlo {
				m.asm.CompileRegisterToRegister(asm_arm.MOVW, slo, dlo)
				m.asm.CompileRegisterToRegister(asm_arm.MOVW, shi, dhi)
			} else {
				m.asm.CompileRegisterToRegister(asm_arm.MOVW, shi, dhi)
				m.asm.CompileRegisterToRegister(asm_arm.MOVW, slo, dlo)
			}
		default:
			invalid()
		}
	default:
		invalid()
	}
}

// copyWords copies size bytes, one or two words, through scratch.
func (m *MacroAssembler) copyWords(destBase asm.Register, destOff int32, srcBase asm.Register, srcOff int32, scratch asm.Register, size int) {
	if size != 4 && size != 8 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
	for i := int32(0); i < int32(size); i += 4 {
		m.loadWord(scratch, srcBase, srcOff+i)
		m.storeWord(scratch, destBase, destOff+i)
	}
}

// CopyRef implements jni.MacroAssembler.CopyRef.
func (m *MacroAssembler) CopyRef(dest quickapi.FrameOffset, src quickapi.FrameOffset, scratch jni.ManagedRegister) {
	m.copyWords(spReg, int32(dest), spReg, int32(src), core(scratch), 4)
}

// CopyRawPtrFromThread implements jni.MacroAssembler.CopyRawPtrFromThread.
func (m *MacroAssembler) CopyRawPtrFromThread(frOffs quickapi.FrameOffset, trOffs quickapi.ThreadOffset, scratch jni.ManagedRegister) {
	m.copyWords(spReg, int32(frOffs), trReg, int32(trOffs), core(scratch), 4)
}

// CopyRawPtrToThread implements jni.MacroAssembler.CopyRawPtrToThread.
func (m *MacroAssembler) CopyRawPtrToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, scratch jni.ManagedRegister) {
	m.copyWords(trReg, int32(trOffs), spReg, int32(frOffs), core(scratch), 4)
}

// Copy implements jni.MacroAssembler.Copy.
func (m *MacroAssembler) Copy(dest quickapi.FrameOffset, src quickapi.FrameOffset, scratch jni.ManagedRegister, size int) {
	m.copyWords(spReg, int32(dest), spReg, int32(src), core(scratch), size)
}

// CopyFromBase implements jni.MacroAssembler.CopyFromBase.
func (m *MacroAssembler) CopyFromBase(dest quickapi.FrameOffset, srcBase jni.ManagedRegister, srcOffset quickapi.Offset, scratch jni.ManagedRegister, size int) {
	m.copyWords(spReg, int32(dest), core(srcBase), int32(srcOffset), core(scratch), size)
}

// CopyToBase implements jni.MacroAssembler.CopyToBase.
func (m *MacroAssembler) CopyToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, src quickapi.FrameOffset, scratch jni.ManagedRegister, size int) {
	m.copyWords(core(destBase), int32(destOffset), spReg, int32(src), core(scratch), size)
}

// CopyFromFrameBase implements jni.MacroAssembler.CopyFromFrameBase: the base address
// is loaded from the frame into scratch first.
func (m *MacroAssembler) CopyFromFrameBase(dest quickapi.FrameOffset, srcBase quickapi.FrameOffset, srcOffset quickapi.Offset, mscratch jni.ManagedRegister, size int) {
	if size != 4 {
		panic(fmt.Sprintf("BUG: invalid copy size %d", size))
	}
	scratch := core(mscratch)
	m.loadWord(scratch, spReg, int32(srcBase))
	m.loadWord(scratch, scratch, int32(srcOffset))
	m.storeWord(scratch, spReg, int32(dest))
}

// CopyBaseToBase implements jni.MacroAssembler.CopyBaseToBase.
func (m *MacroAssembler) CopyBaseToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, srcBase jni.ManagedRegister, srcOffset quickapi.Offset, scratch jni.ManagedRegister, size int) {
	m.copyWords(core(destBase), int32(destOffset), core(srcBase), int32(srcOffset), core(scratch), size)
}

// CopyFrameBaseToFrameBase implements jni.MacroAssembler.CopyFrameBaseToFrameBase. It is
// not supported on arm.
func (m *MacroAssembler) CopyFrameBaseToFrameBase(quickapi.FrameOffset, quickapi.Offset, quickapi.FrameOffset, quickapi.Offset, jni.ManagedRegister, int) {
	panic("BUG: CopyFrameBaseToFrameBase is unimplemented on arm")
}

// MemoryBarrier implements jni.MacroAssembler.MemoryBarrier.
func (m *MacroAssembler) MemoryBarrier(jni.ManagedRegister) {
	m.asm.CompileConst(asm_arm.DMB, asm_arm.DMB_ISH)
}

func extensionRegister(mreg jni.ManagedRegister, size int) asm.Register {
	if size != 1 && size != 2 {
		panic(fmt.Sprintf("BUG: invalid extension size %d", size))
	}
	return core(mreg)
}

// SignExtend implements jni.MacroAssembler.SignExtend. The native ABI extends small
// results itself, so the stub compiler does not need this on arm.
func (m *MacroAssembler) SignExtend(mreg jni.ManagedRegister, size int) {
	r := extensionRegister(mreg, size)
	if size == 1 {
		m.asm.CompileRegisterToRegister(asm_arm.SXTB, r, r)
	} else {
		m.asm.CompileRegisterToRegister(asm_arm.SXTH, r, r)
	}
}

// ZeroExtend implements jni.MacroAssembler.ZeroExtend.
func (m *MacroAssembler) ZeroExtend(mreg jni.ManagedRegister, size int) {
	r := extensionRegister(mreg, size)
	if size == 1 {
		m.asm.CompileRegisterToRegister(asm_arm.UXTB, r, r)
	} else {
		m.asm.CompileRegisterToRegister(asm_arm.UXTH, r, r)
	}
}

// GetCurrentThread implements jni.MacroAssembler.GetCurrentThread.
func (m *MacroAssembler) GetCurrentThread(dest jni.ManagedRegister) {
	m.asm.CompileRegisterToRegister(asm_arm.MOVW, trReg, core(dest))
}

// GetCurrentThreadToFrame implements jni.MacroAssembler.GetCurrentThreadToFrame.
func (m *MacroAssembler) GetCurrentThreadToFrame(dest quickapi.FrameOffset, _ jni.ManagedRegister) {
	m.storeWord(trReg, spReg, int32(dest))
}

// CreateHandleScopeEntry implements jni.MacroAssembler.CreateHandleScopeEntry.
func (m *MacroAssembler) CreateHandleScopeEntry(mout jni.ManagedRegister, handleScopeOffset quickapi.FrameOffset, min jni.ManagedRegister, nullAllowed bool) {
	out := core(mout)
	if !nullAllowed {
		m.asm.CompileRegisterAndConstToRegister(asm_arm.ADD, spReg, handleScopeOffset.I64(), out)
		return
	}
	var in asm.Register
	if reg(min).IsNoRegister() {
		m.loadWord(out, spReg, int32(handleScopeOffset))
		in = out
	} else {
		in = core(min)
	}
	m.asm.CompileRegisterAndConstToNone(asm_arm.CMP, in, 0)
	if in != out {
		m.asm.CompileConditional(asm_arm.COND_EQ, func() {
			m.asm.CompileConstToRegister(asm_arm.MOVW, 0, out)
		})
	}
	m.asm.CompileConditional(asm_arm.COND_NE, func() {
		m.asm.CompileRegisterAndConstToRegister(asm_arm.ADD, spReg, handleScopeOffset.I64(), out)
	})
}

// CreateHandleScopeEntryInFrame implements jni.MacroAssembler.CreateHandleScopeEntryInFrame.
func (m *MacroAssembler) CreateHandleScopeEntryInFrame(outOff quickapi.FrameOffset, handleScopeOffset quickapi.FrameOffset, mscratch jni.ManagedRegister, nullAllowed bool) {
	scratch := core(mscratch)
	if nullAllowed {
		m.loadWord(scratch, spReg, int32(handleScopeOffset))
		m.asm.CompileRegisterAndConstToNone(asm_arm.CMP, scratch, 0)
		m.asm.CompileConditional(asm_arm.COND_NE, func() {
			m.asm.CompileRegisterAndConstToRegister(asm_arm.ADD, spReg, handleScopeOffset.I64(), scratch)
		})
	} else {
		m.asm.CompileRegisterAndConstToRegister(asm_arm.ADD, spReg, handleScopeOffset.I64(), scratch)
	}
	m.storeWord(scratch, spReg, int32(outOff))
}

// LoadReferenceFromHandleScope implements jni.MacroAssembler.LoadReferenceFromHandleScope.
func (m *MacroAssembler) LoadReferenceFromHandleScope(mout jni.ManagedRegister, min jni.ManagedRegister) {
	out, in := core(mout), core(min)
	m.asm.CompileRegisterAndConstToNone(asm_arm.CMP, in, 0)
	m.asm.CompileConditional(asm_arm.COND_NE, func() {
		m.loadWord(out, in, 0)
	})
	if out != in {
		m.asm.CompileConditional(asm_arm.COND_EQ, func() {
			m.asm.CompileConstToRegister(asm_arm.MOVW, 0, out)
		})
	}
}

// VerifyObject implements jni.MacroAssembler.VerifyObject. References are not verified.
func (m *MacroAssembler) VerifyObject(jni.ManagedRegister, bool) {}

// VerifyObjectInFrame implements jni.MacroAssembler.VerifyObjectInFrame. References are not verified.
func (m *MacroAssembler) VerifyObjectInFrame(quickapi.FrameOffset, bool) {}

// Call implements jni.MacroAssembler.Call.
func (m *MacroAssembler) Call(base jni.ManagedRegister, offs quickapi.Offset, mscratch jni.ManagedRegister) {
	scratch := core(mscratch)
	m.loadWord(scratch, core(base), int32(offs))
	m.asm.CompileJumpToRegister(asm_arm.BL, scratch)
}

// CallFromFrame implements jni.MacroAssembler.CallFromFrame.
func (m *MacroAssembler) CallFromFrame(base quickapi.FrameOffset, offs quickapi.Offset, mscratch jni.ManagedRegister) {
	scratch := core(mscratch)
	m.loadWord(scratch, spReg, int32(base))
	m.loadWord(scratch, scratch, int32(offs))
	m.asm.CompileJumpToRegister(asm_arm.BL, scratch)
}

// CallFromThread implements jni.MacroAssembler.CallFromThread.
func (m *MacroAssembler) CallFromThread(offs quickapi.ThreadOffset, mscratch jni.ManagedRegister) {
	scratch := core(mscratch)
	m.loadWord(scratch, trReg, int32(offs))
	m.asm.CompileJumpToRegister(asm_arm.BL, scratch)
}

// ExceptionPoll implements jni.MacroAssembler.ExceptionPoll.
func (m *MacroAssembler) ExceptionPoll(mscratch jni.ManagedRegister, stackAdjust int) {
	checkFrameAlignment(stackAdjust)
	scratch := core(mscratch)
	entry := m.CreateLabel()
	m.exceptions.Add(jni.ExceptionSlowPath[*Label]{
		Scratch:     mscratch,
		StackAdjust: stackAdjust,
		CFAOffset:   m.cfi.CurrentCFAOffset(),
		Entry:       entry,
	})
	m.loadWord(scratch, trReg, int32(m.offsets.Exception))
	m.asm.CompileRegisterAndConstToNone(asm_arm.CMP, scratch, 0)
	m.asm.CompileJumpToLabel(asm_arm.BNE, entry.For(m))
}

// emitExceptionPoll emits the slow path of an ExceptionPoll: pass the pending exception
// to pDeliverException, which does not return.
func (m *MacroAssembler) emitExceptionPoll(p jni.ExceptionSlowPath[*Label]) {
	m.cfi.RememberState()
	m.cfi.DefCFAOffset(p.CFAOffset)
	m.asm.Bind(p.Entry.For(m))
	if p.StackAdjust != 0 {
		m.DecreaseFrameSize(p.StackAdjust)
	}

	scratch := core(p.Scratch)
	temps := m.temps.Open()
	defer temps.Release()
	temps.Exclude(scratch)
	// R0 need not be preserved, nothing returns here.
	m.asm.CompileRegisterToRegister(asm_arm.MOVW, scratch, coreToAsm(R0))
	temps.Include(scratch)
	tmp := temps.Acquire()
	m.loadWord(tmp, trReg, int32(m.offsets.QuickEntrypoint(quickapi.QuickDeliverException)))
	m.asm.CompileJumpToRegister(asm_arm.BL, tmp)
	m.cfi.RestoreState()
}

// CreateLabel implements jni.MacroAssembler.CreateLabel.
func (m *MacroAssembler) CreateLabel() *Label { return jni.NewLabel(m) }

// Jump implements jni.MacroAssembler.Jump.
func (m *MacroAssembler) Jump(l *Label) {
	m.asm.CompileJumpToLabel(asm_arm.B, l.For(m))
}

// JumpIf implements jni.MacroAssembler.JumpIf.
func (m *MacroAssembler) JumpIf(l *Label, cond jni.UnaryCondition, test jni.ManagedRegister) {
	var inst asm.Instruction
	switch cond {
	case jni.Zero:
		inst = asm_arm.BEQ
	case jni.NotZero:
		inst = asm_arm.BNE
	default:
		panic(fmt.Sprintf("BUG: invalid condition %s", cond))
	}
	m.asm.CompileRegisterAndConstToNone(asm_arm.CMP, core(test), 0)
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
