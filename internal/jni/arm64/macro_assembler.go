package jni_arm64

import (
	"fmt"

	"github.com/samber/lo"

	"github.com/artquick/quick/internal/asm"
	asm_arm64 "github.com/artquick/quick/internal/asm/arm64"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

// Label is a jump target of a MacroAssembler.
type Label = jni.Label[MacroAssembler]

const (
	// asmTemporaryRegister is used by the low-level assembler to materialize offsets
	// and constants that do not fit in an instruction.
	asmTemporaryRegister = IP1
	// markingRegisterCheckBreakCode is the BRK immediate of a failed marking register check.
	markingRegisterCheckBreakCode = 0x100
)

// MacroAssembler implements jni.MacroAssembler for arm64.
type MacroAssembler struct {
	jni.CodeBuffer

	asm        asm_arm64.Assembler
	cfi        *dwarf.DebugFrameOpCodeWriter
	cfg        *jni.Config
	temps      *asm.ScratchRegisters
	offsets    *quickapi.ThreadOffsetData
	exceptions jni.ExceptionSlowPaths[*Label]
}

var _ jni.MacroAssembler[*Label] = (*MacroAssembler)(nil)

// NewMacroAssembler returns a MacroAssembler emitting code for cfg.
func NewMacroAssembler(cfg *jni.Config) (*MacroAssembler, error) {
	a, err := asm_arm64.NewAssembler(xToAsm(asmTemporaryRegister))
	if err != nil {
		return nil, err
	}
	m := &MacroAssembler{
		asm:     a,
		cfi:     dwarf.NewDebugFrameOpCodeWriter(),
		cfg:     cfg,
		temps:   asm.NewScratchRegisters(xToAsm(IP0)),
		offsets: quickapi.ThreadOffsets(isa.PointerSize64),
	}
	m.cfi.SetPositionSource(a.Position)
	return m, nil
}

// Assembler returns the low-level assembler, for listings.
func (m *MacroAssembler) Assembler() asm_arm64.Assembler { return m.asm }

// CFI implements jni.MacroAssembler.CFI.
func (m *MacroAssembler) CFI() *dwarf.DebugFrameOpCodeWriter { return m.cfi }

func reg(r jni.ManagedRegister) ManagedRegister { return FromJNI(r) }

var (
	spReg = xToAsm(SP)
	trReg = xToAsm(TR)
)

func (m *MacroAssembler) loadFromOffset(dest asm.Register, base asm.Register, offset int64, inst asm.Instruction) {
	m.asm.CompileMemoryToRegister(inst, base, offset, dest)
}

func (m *MacroAssembler) storeToOffset(src asm.Register, base asm.Register, offset int64, inst asm.Instruction) {
	m.asm.CompileRegisterToMemory(inst, src, base, offset)
}

func checkFrameAlignment(size int) {
	if !isa.IsAligned(size, isa.StackAlignment) {
		panic(fmt.Sprintf("BUG: frame adjustment %d is not %d-byte aligned", size, isa.StackAlignment))
	}
}

// splitCalleeSaves returns the X and the D registers of calleeSaves, each in ascending
// register order.
func splitCalleeSaves(calleeSaves []jni.ManagedRegister) (core, fp []ManagedRegister) {
	var coreMask, fpMask uint64
	for _, r := range calleeSaves {
		switch mr := reg(r); {
		case mr.IsXRegister():
			coreMask |= 1 << uint(mr.AsXRegister())
		case mr.IsDRegister():
			fpMask |= 1 << uint(mr.AsDRegister())
		default:
			panic(fmt.Sprintf("BUG: invalid callee save %s", mr))
		}
	}
	for i := 0; i < numberOfXRegisters; i++ {
		if coreMask&(1<<uint(i)) != 0 {
			core = append(core, FromXRegister(XRegister(i)))
		}
	}
	for i := 0; i < numberOfDRegisters; i++ {
		if fpMask&(1<<uint(i)) != 0 {
			fp = append(fp, FromDRegister(DRegister(i)))
		}
	}
	return
}

// pairOffsetFits returns true if offset is encodable in the scaled 7-bit immediate of STP and LDP.
func pairOffsetFits(offset int) bool {
	return offset%8 == 0 && offset >= -512 && offset <= 504
}

func (m *MacroAssembler) spillRegisters(regs []ManagedRegister, offset int) {
	const size = 8
	single, pair := asm_arm64.MOVD, asm_arm64.STP
	if len(regs) > 0 && regs[0].IsDRegister() {
		single, pair = asm_arm64.FMOVD, asm_arm64.FSTPD
	}
	spillOne := func(r ManagedRegister) {
		m.storeToOffset(r.asmRegister(), spReg, int64(offset), single)
		m.cfi.RelOffset(r.DWARFReg(), offset)
		offset += size
	}
	if len(regs)%2 != 0 && !isa.IsAligned(offset, 2*size) {
		spillOne(regs[0])
		regs = regs[1:]
	}
	for ; len(regs) >= 2; regs = regs[2:] {
		if !pairOffsetFits(offset) {
			spillOne(regs[0])
			spillOne(regs[1])
			continue
		}
		m.asm.CompileRegisterPairToMemory(pair, regs[0].asmRegister(), regs[1].asmRegister(), spReg, int64(offset))
		m.cfi.RelOffset(regs[0].DWARFReg(), offset)
		m.cfi.RelOffset(regs[1].DWARFReg(), offset+size)
		offset += 2 * size
	}
	if len(regs) == 1 {
		spillOne(regs[0])
	}
}

func (m *MacroAssembler) unspillRegisters(regs []ManagedRegister, offset int) {
	const size = 8
	single, pair := asm_arm64.MOVD, asm_arm64.LDP
	if len(regs) > 0 && regs[0].IsDRegister() {
		single, pair = asm_arm64.FMOVD, asm_arm64.FLDPD
	}
	unspillOne := func(r ManagedRegister) {
		m.loadFromOffset(r.asmRegister(), spReg, int64(offset), single)
		m.cfi.Restore(r.DWARFReg())
		offset += size
	}
	if len(regs)%2 != 0 && !isa.IsAligned(offset, 2*size) {
		unspillOne(regs[0])
		regs = regs[1:]
	}
	for ; len(regs) >= 2; regs = regs[2:] {
		if !pairOffsetFits(offset) {
			unspillOne(regs[0])
			unspillOne(regs[1])
			continue
		}
		m.asm.CompileMemoryToRegisterPair(pair, spReg, int64(offset), regs[0].asmRegister(), regs[1].asmRegister())
		m.cfi.Restore(regs[0].DWARFReg())
		m.cfi.Restore(regs[1].DWARFReg())
		offset += 2 * size
	}
	if len(regs) == 1 {
		unspillOne(regs[0])
	}
}

// BuildFrame implements jni.MacroAssembler.BuildFrame.
//
// The frame is laid out from the top as: core callee saves, FP callee saves, the rest of
// the frame, and the method pointer at [sp].
func (m *MacroAssembler) BuildFrame(frameSize int, methodReg jni.ManagedRegister, calleeSaves []jni.ManagedRegister, entrySpills []jni.ManagedRegisterSpill) {
	core, fp := splitCalleeSaves(calleeSaves)
	coreSize, fpSize := len(core)*framePointerSize, len(fp)*framePointerSize
	if frameSize < coreSize+fpSize+framePointerSize {
		panic(fmt.Sprintf("BUG: frame size %d too small for %d callee saves", frameSize, len(calleeSaves)))
	}
	if !lo.Contains(core, FromXRegister(TR)) {
		panic("BUG: the thread register must be a callee save")
	}
	m.IncreaseFrameSize(frameSize)

	m.spillRegisters(core, frameSize-coreSize)
	m.spillRegisters(fp, frameSize-coreSize-fpSize)

	if mr := reg(methodReg); !mr.Equals(FromXRegister(X0)) {
		panic(fmt.Sprintf("BUG: method register must be X0, got %s", mr))
	}
	m.storeToOffset(xToAsm(X0), spReg, 0, asm_arm64.MOVD)

	offset := frameSize + framePointerSize
	for _, spill := range entrySpills {
		r := reg(spill.Reg)
		if spill.SpillOffset != jni.SequentialSpillOffset {
			offset = frameSize + spill.SpillOffset
		}
		switch {
		case r.IsNoRegister():
		case r.IsXRegister():
			m.storeToOffset(r.asmRegister(), spReg, int64(offset), asm_arm64.MOVD)
		case r.IsWRegister():
			m.storeToOffset(r.asmRegister(), spReg, int64(offset), asm_arm64.MOVWU)
		case r.IsDRegister():
			m.storeToOffset(r.asmRegister(), spReg, int64(offset), asm_arm64.FMOVD)
		case r.IsSRegister():
			m.storeToOffset(r.asmRegister(), spReg, int64(offset), asm_arm64.FMOVS)
		}
		offset += spill.Size
	}
}

// RemoveFrame implements jni.MacroAssembler.RemoveFrame.
func (m *MacroAssembler) RemoveFrame(frameSize int, calleeSaves []jni.ManagedRegister, maySuspend bool) {
	core, fp := splitCalleeSaves(calleeSaves)
	coreSize, fpSize := len(core)*framePointerSize, len(fp)*framePointerSize
	if frameSize < coreSize+fpSize+framePointerSize {
		panic(fmt.Sprintf("BUG: frame size %d too small for %d callee saves", frameSize, len(calleeSaves)))
	}

	// The exit block is followed by code that still runs with the frame.
	m.cfi.RememberState()

	m.unspillRegisters(core, frameSize-coreSize)
	m.unspillRegisters(fp, frameSize-coreSize-fpSize)

	if m.cfg.ReadBarrier() {
		if maySuspend {
			// The GC may have started or finished marking while the thread was suspended.
			m.loadFromOffset(xToAsm(MR), trReg, m.offsets.IsGcMarking.I64(), asm_arm64.MOVWU)
		} else {
			if !lo.Contains(core, FromXRegister(MR)) {
				panic("BUG: the marking register must be a callee save")
			}
			if m.cfg.RuntimeDebugChecks() {
				m.markingRegisterCheck()
			}
		}
	}

	m.DecreaseFrameSize(frameSize)
	m.asm.CompileJumpToRegister(asm_arm64.RET, xToAsm(LR))

	m.cfi.RestoreState()
	m.cfi.DefCFAOffset(frameSize)
}

// markingRegisterCheck traps unless the marking register equals Thread::is_gc_marking.
func (m *MacroAssembler) markingRegisterCheck() {
	temps := m.temps.Open()
	defer temps.Release()
	tmp := temps.Acquire()

	var ok asm.Label
	m.loadFromOffset(tmp, trReg, m.offsets.IsGcMarking.I64(), asm_arm64.MOVWU)
	m.asm.CompileTwoRegistersToNone(asm_arm64.CMPW, tmp, xToAsm(MR))
	m.asm.CompileJumpToLabel(asm_arm64.BEQ, &ok)
	m.asm.CompileConst(asm_arm64.BRK, markingRegisterCheckBreakCode)
	m.asm.Bind(&ok)
}

// IncreaseFrameSize implements jni.MacroAssembler.IncreaseFrameSize.
func (m *MacroAssembler) IncreaseFrameSize(adjust int) {
	checkFrameAlignment(adjust)
	if adjust == 0 {
		return
	}
	m.asm.CompileRegisterAndConstToRegister(asm_arm64.SUB, spReg, int64(adjust), spReg)
	m.cfi.AdjustCFAOffset(adjust)
}

// DecreaseFrameSize implements jni.MacroAssembler.DecreaseFrameSize.
func (m *MacroAssembler) DecreaseFrameSize(adjust int) {
	checkFrameAlignment(adjust)
	if adjust == 0 {
		return
	}
	m.asm.CompileRegisterAndConstToRegister(asm_arm64.ADD, spReg, int64(adjust), spReg)
	m.cfi.AdjustCFAOffset(-adjust)
}

// Store implements jni.MacroAssembler.Store.
func (m *MacroAssembler) Store(offs quickapi.FrameOffset, msrc jni.ManagedRegister, size int) {
	src := reg(msrc)
	var inst asm.Instruction
	switch {
	case src.IsNoRegister():
		checkSize(src, size, 0)
		return
	case src.IsWRegister():
		checkSize(src, size, 4)
		inst = asm_arm64.MOVWU
	case src.IsXRegister():
		checkSize(src, size, 8)
		inst = asm_arm64.MOVD
	case src.IsSRegister():
		checkSize(src, size, 4)
		inst = asm_arm64.FMOVS
	case src.IsDRegister():
		checkSize(src, size, 8)
		inst = asm_arm64.FMOVD
	}
	m.storeToOffset(src.asmRegister(), spReg, offs.I64(), inst)
}

func checkSize(r ManagedRegister, got, want int) {
	if got != want {
		panic(fmt.Sprintf("BUG: size %d does not match %s", got, r))
	}
}

// StoreRef implements jni.MacroAssembler.StoreRef.
func (m *MacroAssembler) StoreRef(dest quickapi.FrameOffset, msrc jni.ManagedRegister) {
	src := reg(msrc)
	m.storeToOffset(src.wAsmRegister(), spReg, dest.I64(), asm_arm64.MOVWU)
}

// StoreRawPtr implements jni.MacroAssembler.StoreRawPtr.
func (m *MacroAssembler) StoreRawPtr(dest quickapi.FrameOffset, msrc jni.ManagedRegister) {
	src := reg(msrc)
	m.storeToOffset(xToAsm(src.AsXRegister()), spReg, dest.I64(), asm_arm64.MOVD)
}

// StoreImmediateToFrame implements jni.MacroAssembler.StoreImmediateToFrame.
func (m *MacroAssembler) StoreImmediateToFrame(dest quickapi.FrameOffset, imm uint32, mscratch jni.ManagedRegister) {
	scratch := xToAsm(reg(mscratch).AsXRegister())
	m.asm.CompileConstToRegister(asm_arm64.MOVD, int64(imm), scratch)
	m.storeToOffset(scratch, spReg, dest.I64(), asm_arm64.MOVWU)
}

// StoreStackOffsetToThread implements jni.MacroAssembler.StoreStackOffsetToThread.
func (m *MacroAssembler) StoreStackOffsetToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := xToAsm(reg(mscratch).AsXRegister())
	m.asm.CompileRegisterAndConstToRegister(asm_arm64.ADD, spReg, frOffs.I64(), scratch)
	m.storeToOffset(scratch, trReg, trOffs.I64(), asm_arm64.MOVD)
}

// StoreStackPointerToThread implements jni.MacroAssembler.StoreStackPointerToThread.
func (m *MacroAssembler) StoreStackPointerToThread(trOffs quickapi.ThreadOffset) {
	temps := m.temps.Open()
	defer temps.Release()
	tmp := temps.Acquire()
	m.asm.CompileRegisterToRegister(asm_arm64.MOVD, spReg, tmp)
	m.storeToOffset(tmp, trReg, trOffs.I64(), asm_arm64.MOVD)
}

// StoreSpanning implements jni.MacroAssembler.StoreSpanning.
func (m *MacroAssembler) StoreSpanning(dest quickapi.FrameOffset, msrc jni.ManagedRegister, inOff quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	src := xToAsm(reg(msrc).AsXRegister())
	scratch := xToAsm(reg(mscratch).AsXRegister())
	m.storeToOffset(src, spReg, dest.I64(), asm_arm64.MOVD)
	m.loadFromOffset(scratch, spReg, inOff.I64(), asm_arm64.MOVD)
	m.storeToOffset(scratch, spReg, dest.I64()+8, asm_arm64.MOVD)
}

func (m *MacroAssembler) load(dest ManagedRegister, base asm.Register, offset int64, size int) {
	switch {
	case dest.IsNoRegister():
		checkSize(dest, size, 0)
	case dest.IsWRegister():
		checkSize(dest, size, 4)
		m.loadFromOffset(dest.asmRegister(), base, offset, asm_arm64.MOVWU)
	case dest.IsXRegister():
		if dest.AsXRegister() == SP {
			panic("BUG: cannot load into SP")
		}
		switch size {
		case 1:
			m.loadFromOffset(dest.asmRegister(), base, offset, asm_arm64.MOVBU)
		case 4:
			m.loadFromOffset(dest.asmRegister(), base, offset, asm_arm64.MOVWU)
		case 8:
			m.loadFromOffset(dest.asmRegister(), base, offset, asm_arm64.MOVD)
		default:
			panic(fmt.Sprintf("BUG: invalid load size %d into %s", size, dest))
		}
	case dest.IsSRegister():
		checkSize(dest, size, 4)
		m.loadFromOffset(dest.asmRegister(), base, offset, asm_arm64.FMOVS)
	case dest.IsDRegister():
		checkSize(dest, size, 8)
		m.loadFromOffset(dest.asmRegister(), base, offset, asm_arm64.FMOVD)
	}
}

// Load implements jni.MacroAssembler.Load.
func (m *MacroAssembler) Load(dest jni.ManagedRegister, src quickapi.FrameOffset, size int) {
	m.load(reg(dest), spReg, src.I64(), size)
}

// LoadFromThread implements jni.MacroAssembler.LoadFromThread.
func (m *MacroAssembler) LoadFromThread(dest jni.ManagedRegister, src quickapi.ThreadOffset, size int) {
	m.load(reg(dest), trReg, src.I64(), size)
}

// LoadRef implements jni.MacroAssembler.LoadRef.
func (m *MacroAssembler) LoadRef(mdest jni.ManagedRegister, offs quickapi.FrameOffset) {
	dest := reg(mdest)
	m.loadFromOffset(dest.wAsmRegister(), spReg, offs.I64(), asm_arm64.MOVWU)
}

// LoadRefFromMember implements jni.MacroAssembler.LoadRefFromMember.
func (m *MacroAssembler) LoadRefFromMember(mdest jni.ManagedRegister, mbase jni.ManagedRegister, offs quickapi.MemberOffset, unpoisonReference bool) {
	dest, base := reg(mdest), reg(mbase)
	if !base.IsXRegister() {
		panic(fmt.Sprintf("BUG: %s is not an X register", base))
	}
	w := dest.wAsmRegister()
	m.loadFromOffset(w, base.asmRegister(), offs.I64(), asm_arm64.MOVWU)
	if unpoisonReference && m.cfg.HeapPoisoning() {
		m.asm.CompileRegisterToRegister(asm_arm64.NEGW, w, w)
	}
}

// LoadRawPtr implements jni.MacroAssembler.LoadRawPtr.
func (m *MacroAssembler) LoadRawPtr(mdest jni.ManagedRegister, mbase jni.ManagedRegister, offs quickapi.Offset) {
	dest, base := reg(mdest), reg(mbase)
	m.loadFromOffset(xToAsm(dest.AsXRegister()), xToAsm(base.AsXRegister()), offs.I64(), asm_arm64.MOVD)
}

// LoadRawPtrFromThread implements jni.MacroAssembler.LoadRawPtrFromThread.
func (m *MacroAssembler) LoadRawPtrFromThread(mdest jni.ManagedRegister, offs quickapi.ThreadOffset) {
	m.loadFromOffset(xToAsm(reg(mdest).AsXRegister()), trReg, offs.I64(), asm_arm64.MOVD)
}

// Move implements jni.MacroAssembler.Move.
func (m *MacroAssembler) Move(mdest jni.ManagedRegister, msrc jni.ManagedRegister, size int) {
	dest, src := reg(mdest), reg(msrc)
	if dest.Equals(src) {
		return
	}
	switch {
	case dest.IsXRegister():
		if size == 4 {
			if !src.IsWRegister() {
				panic(fmt.Sprintf("BUG: 4-byte move from %s", src))
			}
			m.asm.CompileRegisterToRegister(asm_arm64.MOVWU, src.asmRegister(), dest.asmRegister())
		} else if src.IsXRegister() || src.IsWRegister() {
			m.asm.CompileRegisterToRegister(asm_arm64.MOVD, src.asmRegister(), dest.asmRegister())
		} else {
			panic(fmt.Sprintf("BUG: cannot move %s to %s", src, dest))
		}
	case dest.IsWRegister():
		if !src.IsWRegister() {
			panic(fmt.Sprintf("BUG: cannot move %s to %s", src, dest))
		}
		m.asm.CompileRegisterToRegister(asm_arm64.MOVWU, src.asmRegister(), dest.asmRegister())
	case dest.IsSRegister():
		if !src.IsSRegister() {
			panic(fmt.Sprintf("BUG: cannot move %s to %s", src, dest))
		}
		m.asm.CompileRegisterToRegister(asm_arm64.FMOVS, src.asmRegister(), dest.asmRegister())
	case dest.IsDRegister():
		if !src.IsDRegister() {
			panic(fmt.Sprintf("BUG: cannot move %s to %s", src, dest))
		}
		m.asm.CompileRegisterToRegister(asm_arm64.FMOVD, src.asmRegister(), dest.asmRegister())
	default:
		panic(fmt.Sprintf("BUG: cannot move %s to %s", src, dest))
	}
}

// CopyRef implements jni.MacroAssembler.CopyRef.
func (m *MacroAssembler) CopyRef(dest quickapi.FrameOffset, src quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := reg(mscratch).wAsmRegister()
	m.loadFromOffset(scratch, spReg, src.I64(), asm_arm64.MOVWU)
	m.storeToOffset(scratch, spReg, dest.I64(), asm_arm64.MOVWU)
}

// CopyRawPtrFromThread implements jni.MacroAssembler.CopyRawPtrFromThread.
func (m *MacroAssembler) CopyRawPtrFromThread(frOffs quickapi.FrameOffset, trOffs quickapi.ThreadOffset, mscratch jni.ManagedRegister) {
	scratch := xToAsm(reg(mscratch).AsXRegister())
	m.loadFromOffset(scratch, trReg, trOffs.I64(), asm_arm64.MOVD)
	m.storeToOffset(scratch, spReg, frOffs.I64(), asm_arm64.MOVD)
}

// CopyRawPtrToThread implements jni.MacroAssembler.CopyRawPtrToThread.
func (m *MacroAssembler) CopyRawPtrToThread(trOffs quickapi.ThreadOffset, frOffs quickapi.FrameOffset, mscratch jni.ManagedRegister) {
	scratch := xToAsm(reg(mscratch).AsXRegister())
	m.loadFromOffset(scratch, spReg, frOffs.I64(), asm_arm64.MOVD)
	m.storeToOffset(scratch, trReg, trOffs.I64(), asm_arm64.MOVD)
}

// copyInstruction returns the load/store instruction moving size bytes through scratch,
// which may be an X or a W register.
func copyInstruction(scratch ManagedRegister, size int) asm.Instruction {
	switch {
	case size == 4 && (scratch.IsXRegister() || scratch.IsWRegister()):
		return asm_arm64.MOVWU
	case size == 8 && scratch.IsXRegister():
		return asm_arm64.MOVD
	}
	panic(fmt.Sprintf("BUG: cannot copy %d bytes through %s", size, scratch))
}

// Copy implements jni.MacroAssembler.Copy.
func (m *MacroAssembler) Copy(dest quickapi.FrameOffset, src quickapi.FrameOffset, mscratch jni.ManagedRegister, size int) {
	scratch := reg(mscratch)
	inst := copyInstruction(scratch, size)
	m.loadFromOffset(scratch.asmRegister(), spReg, src.I64(), inst)
	m.storeToOffset(scratch.asmRegister(), spReg, dest.I64(), inst)
}

// CopyFromBase implements jni.MacroAssembler.CopyFromBase.
func (m *MacroAssembler) CopyFromBase(dest quickapi.FrameOffset, srcBase jni.ManagedRegister, srcOffset quickapi.Offset, mscratch jni.ManagedRegister, size int) {
	scratch, base := reg(mscratch), reg(srcBase)
	inst := copyInstruction(scratch, size)
	m.loadFromOffset(scratch.asmRegister(), xToAsm(base.AsXRegister()), srcOffset.I64(), inst)
	m.storeToOffset(scratch.asmRegister(), spReg, dest.I64(), inst)
}

// CopyToBase implements jni.MacroAssembler.CopyToBase.
func (m *MacroAssembler) CopyToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, src quickapi.FrameOffset, mscratch jni.ManagedRegister, size int) {
	scratch, base := reg(mscratch), reg(destBase)
	inst := copyInstruction(scratch, size)
	m.loadFromOffset(scratch.asmRegister(), spReg, src.I64(), inst)
	m.storeToOffset(scratch.asmRegister(), xToAsm(base.AsXRegister()), destOffset.I64(), inst)
}

// CopyFromFrameBase implements jni.MacroAssembler.CopyFromFrameBase. It is not
// supported on arm64.
func (m *MacroAssembler) CopyFromFrameBase(quickapi.FrameOffset, quickapi.FrameOffset, quickapi.Offset, jni.ManagedRegister, int) {
	panic("BUG: CopyFromFrameBase is not supported on arm64")
}

// CopyBaseToBase implements jni.MacroAssembler.CopyBaseToBase.
func (m *MacroAssembler) CopyBaseToBase(destBase jni.ManagedRegister, destOffset quickapi.Offset, srcBase jni.ManagedRegister, srcOffset quickapi.Offset, mscratch jni.ManagedRegister, size int) {
	scratch, src, dest := reg(mscratch), reg(srcBase), reg(destBase)
	inst := copyInstruction(scratch, size)
	m.loadFromOffset(scratch.asmRegister(), xToAsm(src.AsXRegister()), srcOffset.I64(), inst)
	m.storeToOffset(scratch.asmRegister(), xToAsm(dest.AsXRegister()), destOffset.I64(), inst)
}

// CopyFrameBaseToFrameBase implements jni.MacroAssembler.CopyFrameBaseToFrameBase. It
// is not supported on arm64.
func (m *MacroAssembler) CopyFrameBaseToFrameBase(quickapi.FrameOffset, quickapi.Offset, quickapi.FrameOffset, quickapi.Offset, jni.ManagedRegister, int) {
	panic("BUG: CopyFrameBaseToFrameBase is not supported on arm64")
}

// MemoryBarrier implements jni.MacroAssembler.MemoryBarrier.
func (m *MacroAssembler) MemoryBarrier(jni.ManagedRegister) {
	m.asm.CompileConst(asm_arm64.DMB, asm_arm64.DMB_ISH)
}

func extensionRegister(mreg jni.ManagedRegister, size int) asm.Register {
	r := reg(mreg)
	if !r.IsWRegister() {
		panic(fmt.Sprintf("BUG: %s is not a W register", r))
	}
	if size != 1 && size != 2 {
		panic(fmt.Sprintf("BUG: invalid extension size %d", size))
	}
	return r.asmRegister()
}

// SignExtend implements jni.MacroAssembler.SignExtend.
func (m *MacroAssembler) SignExtend(mreg jni.ManagedRegister, size int) {
	r := extensionRegister(mreg, size)
	if size == 1 {
		m.asm.CompileRegisterToRegister(asm_arm64.SXTBW, r, r)
	} else {
		m.asm.CompileRegisterToRegister(asm_arm64.SXTHW, r, r)
	}
}

// ZeroExtend implements jni.MacroAssembler.ZeroExtend.
func (m *MacroAssembler) ZeroExtend(mreg jni.ManagedRegister, size int) {
	r := extensionRegister(mreg, size)
	if size == 1 {
		m.asm.CompileRegisterToRegister(asm_arm64.UXTBW, r, r)
	} else {
		m.asm.CompileRegisterToRegister(asm_arm64.UXTHW, r, r)
	}
}

// GetCurrentThread implements jni.MacroAssembler.GetCurrentThread.
func (m *MacroAssembler) GetCurrentThread(dest jni.ManagedRegister) {
	m.asm.CompileRegisterToRegister(asm_arm64.MOVD, trReg, xToAsm(reg(dest).AsXRegister()))
}

// GetCurrentThreadToFrame implements jni.MacroAssembler.GetCurrentThreadToFrame.
func (m *MacroAssembler) GetCurrentThreadToFrame(offset quickapi.FrameOffset, _ jni.ManagedRegister) {
	m.storeToOffset(trReg, spReg, offset.I64(), asm_arm64.MOVD)
}

// CreateHandleScopeEntry implements jni.MacroAssembler.CreateHandleScopeEntry.
//
// With nullAllowed, out is set to the address of the handle scope entry, or to 0 if the
// reference held by in (or stored in the entry if in is NoRegister) is null.
func (m *MacroAssembler) CreateHandleScopeEntry(mout jni.ManagedRegister, handleScopeOffset quickapi.FrameOffset, min jni.ManagedRegister, nullAllowed bool) {
	out, in := reg(mout), reg(min)
	if !out.IsXRegister() {
		panic(fmt.Sprintf("BUG: %s is not an X register", out))
	}
	if !nullAllowed {
		m.asm.CompileRegisterAndConstToRegister(asm_arm64.ADD, spReg, handleScopeOffset.I64(), out.asmRegister())
		return
	}
	if in.IsNoRegister() {
		m.loadFromOffset(out.wAsmRegister(), spReg, handleScopeOffset.I64(), asm_arm64.MOVWU)
		in = out
	} else if !in.IsXRegister() {
		panic(fmt.Sprintf("BUG: %s is not an X register", in))
	}
	// Compare against WZR: an immediate zero would be rewritten to a register operand.
	m.asm.CompileTwoRegistersToNone(asm_arm64.CMPW, asm_arm64.REGZERO, in.wAsmRegister())
	m.asm.CompileRegisterAndConstToRegister(asm_arm64.ADD, spReg, handleScopeOffset.I64(), out.asmRegister())
	m.asm.CompileConditionalSelect(asm_arm64.CSEL, asm_arm64.COND_NE, out.asmRegister(), asm_arm64.REGZERO, out.asmRegister())
}

// CreateHandleScopeEntryInFrame implements jni.MacroAssembler.CreateHandleScopeEntryInFrame.
func (m *MacroAssembler) CreateHandleScopeEntryInFrame(outOff quickapi.FrameOffset, handleScopeOffset quickapi.FrameOffset, mscratch jni.ManagedRegister, nullAllowed bool) {
	scratch := reg(mscratch)
	if !scratch.IsXRegister() {
		panic(fmt.Sprintf("BUG: %s is not an X register", scratch))
	}
	if nullAllowed {
		w := scratch.wAsmRegister()
		m.loadFromOffset(w, spReg, handleScopeOffset.I64(), asm_arm64.MOVWU)
		m.asm.CompileTwoRegistersToNone(asm_arm64.CMPW, asm_arm64.REGZERO, w)
		m.asm.CompileRegisterAndConstToRegister(asm_arm64.ADD, spReg, handleScopeOffset.I64(), scratch.asmRegister())
		m.asm.CompileConditionalSelect(asm_arm64.CSEL, asm_arm64.COND_NE, scratch.asmRegister(), asm_arm64.REGZERO, scratch.asmRegister())
	} else {
		m.asm.CompileRegisterAndConstToRegister(asm_arm64.ADD, spReg, handleScopeOffset.I64(), scratch.asmRegister())
	}
	m.storeToOffset(scratch.asmRegister(), spReg, outOff.I64(), asm_arm64.MOVD)
}

// LoadReferenceFromHandleScope implements jni.MacroAssembler.LoadReferenceFromHandleScope.
// A null entry pointer yields a null reference.
func (m *MacroAssembler) LoadReferenceFromHandleScope(mout jni.ManagedRegister, min jni.ManagedRegister) {
	out, in := reg(mout), reg(min)
	if !out.IsXRegister() || !in.IsXRegister() {
		panic(fmt.Sprintf("BUG: %s and %s must be X registers", out, in))
	}
	var exit asm.Label
	if !out.Equals(in) {
		m.asm.CompileConstToRegister(asm_arm64.MOVD, 0, out.asmRegister())
	}
	m.asm.CompileBranchOnRegisterToLabel(asm_arm64.CBZ, in.asmRegister(), &exit)
	m.loadFromOffset(out.wAsmRegister(), in.asmRegister(), 0, asm_arm64.MOVWU)
	m.asm.Bind(&exit)
}

// VerifyObject implements jni.MacroAssembler.VerifyObject. References are not verified.
func (m *MacroAssembler) VerifyObject(jni.ManagedRegister, bool) {}

// VerifyObjectInFrame implements jni.MacroAssembler.VerifyObjectInFrame. References are not verified.
func (m *MacroAssembler) VerifyObjectInFrame(quickapi.FrameOffset, bool) {}

// Call implements jni.MacroAssembler.Call.
func (m *MacroAssembler) Call(mbase jni.ManagedRegister, offs quickapi.Offset, mscratch jni.ManagedRegister) {
	base, scratch := reg(mbase), reg(mscratch)
	s := xToAsm(scratch.AsXRegister())
	m.loadFromOffset(s, xToAsm(base.AsXRegister()), offs.I64(), asm_arm64.MOVD)
	m.asm.CompileJumpToRegister(asm_arm64.BL, s)
}

// CallFromFrame implements jni.MacroAssembler.CallFromFrame.
func (m *MacroAssembler) CallFromFrame(base quickapi.FrameOffset, offs quickapi.Offset, mscratch jni.ManagedRegister) {
	s := xToAsm(reg(mscratch).AsXRegister())
	m.loadFromOffset(s, spReg, base.I64(), asm_arm64.MOVD)
	m.loadFromOffset(s, s, offs.I64(), asm_arm64.MOVD)
	m.asm.CompileJumpToRegister(asm_arm64.BL, s)
}

// CallFromThread implements jni.MacroAssembler.CallFromThread.
func (m *MacroAssembler) CallFromThread(offs quickapi.ThreadOffset, mscratch jni.ManagedRegister) {
	s := xToAsm(reg(mscratch).AsXRegister())
	m.loadFromOffset(s, trReg, offs.I64(), asm_arm64.MOVD)
	m.asm.CompileJumpToRegister(asm_arm64.BL, s)
}

// ExceptionPoll implements jni.MacroAssembler.ExceptionPoll.
func (m *MacroAssembler) ExceptionPoll(mscratch jni.ManagedRegister, stackAdjust int) {
	checkFrameAlignment(stackAdjust)
	scratch := reg(mscratch)
	entry := m.CreateLabel()
	m.exceptions.Add(jni.ExceptionSlowPath[*Label]{
		Scratch:     mscratch,
		StackAdjust: stackAdjust,
		CFAOffset:   m.cfi.CurrentCFAOffset(),
		Entry:       entry,
	})
	s := xToAsm(scratch.AsXRegister())
	m.loadFromOffset(s, trReg, m.offsets.Exception.I64(), asm_arm64.MOVD)
	m.asm.CompileBranchOnRegisterToLabel(asm_arm64.CBNZ, s, entry.For(m))
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
	m.asm.CompileRegisterToRegister(asm_arm64.MOVD, xToAsm(reg(p.Scratch).AsXRegister()), xToAsm(X0))

	temps := m.temps.Open()
	defer temps.Release()
	tmp := temps.Acquire()
	m.loadFromOffset(tmp, trReg, m.offsets.QuickEntrypoint(quickapi.QuickDeliverException).I64(), asm_arm64.MOVD)
	m.asm.CompileJumpToRegister(asm_arm64.BL, tmp)
	m.asm.CompileConst(asm_arm64.BRK, 0)
	m.cfi.RestoreState()
}

// CreateLabel implements jni.MacroAssembler.CreateLabel.
func (m *MacroAssembler) CreateLabel() *Label { return jni.NewLabel(m) }

// Jump implements jni.MacroAssembler.Jump.
func (m *MacroAssembler) Jump(l *Label) {
	m.asm.CompileJumpToLabel(asm_arm64.B, l.For(m))
}

// JumpIf implements jni.MacroAssembler.JumpIf.
func (m *MacroAssembler) JumpIf(l *Label, cond jni.UnaryCondition, mtest jni.ManagedRegister) {
	test := reg(mtest)
	inst := asm_arm64.CBZ
	if test.IsWRegister() {
		inst = asm_arm64.CBZW
	}
	switch cond {
	case jni.Zero:
	case jni.NotZero:
		inst = asm_arm64.CBNZ
		if test.IsWRegister() {
			inst = asm_arm64.CBNZW
		}
	default:
		panic(fmt.Sprintf("BUG: invalid condition %s", cond))
	}
	if !test.IsGPRegister() {
		panic(fmt.Sprintf("BUG: cannot test %s", test))
	}
	m.asm.CompileBranchOnRegisterToLabel(inst, test.asmRegister(), l.For(m))
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
