package jni

import (
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/quickapi"
)

// MacroAssembler is implemented by the JNI macro-assembler of every instruction set.
// L is that instruction set's label type.
//
// Every operation panics with a "BUG: " message on a register of the wrong kind, a
// size that does not match the register, or a variant the instruction set does not
// implement. Those are compiler bugs, not input errors.
type MacroAssembler[L any] interface {
	// BuildFrame pushes the callee saves and the return address, grows the stack to
	// frameSize, stores methodReg at offset 0 and writes entrySpills to the caller's frame.
	BuildFrame(frameSize int, methodReg ManagedRegister, calleeSaves []ManagedRegister, entrySpills []ManagedRegisterSpill)
	// RemoveFrame undoes BuildFrame and returns. With read barriers on and maySuspend set,
	// the marking register is reloaded from the thread.
	RemoveFrame(frameSize int, calleeSaves []ManagedRegister, maySuspend bool)
	IncreaseFrameSize(adjust int)
	DecreaseFrameSize(adjust int)

	Store(dest quickapi.FrameOffset, src ManagedRegister, size int)
	StoreRef(dest quickapi.FrameOffset, src ManagedRegister)
	StoreRawPtr(dest quickapi.FrameOffset, src ManagedRegister)
	StoreImmediateToFrame(dest quickapi.FrameOffset, imm uint32, scratch ManagedRegister)
	// StoreStackOffsetToThread stores the address sp+fr to the thread.
	StoreStackOffsetToThread(dest quickapi.ThreadOffset, fr quickapi.FrameOffset, scratch ManagedRegister)
	StoreStackPointerToThread(dest quickapi.ThreadOffset)
	// StoreSpanning stores src to dest and copies the next word from inOff, for a 64-bit
	// value split between a register and the stack.
	StoreSpanning(dest quickapi.FrameOffset, src ManagedRegister, inOff quickapi.FrameOffset, scratch ManagedRegister)

	Load(dest ManagedRegister, src quickapi.FrameOffset, size int)
	LoadFromThread(dest ManagedRegister, src quickapi.ThreadOffset, size int)
	LoadRef(dest ManagedRegister, src quickapi.FrameOffset)
	// LoadRefFromMember loads a heap reference, unpoisoning it if heap poisoning is on
	// and unpoisonReference is set.
	LoadRefFromMember(dest, base ManagedRegister, offs quickapi.MemberOffset, unpoisonReference bool)
	LoadRawPtr(dest, base ManagedRegister, offs quickapi.Offset)
	LoadRawPtrFromThread(dest ManagedRegister, offs quickapi.ThreadOffset)

	Move(dest, src ManagedRegister, size int)
	CopyRef(dest, src quickapi.FrameOffset, scratch ManagedRegister)
	CopyRawPtrFromThread(dest quickapi.FrameOffset, src quickapi.ThreadOffset, scratch ManagedRegister)
	CopyRawPtrToThread(dest quickapi.ThreadOffset, src quickapi.FrameOffset, scratch ManagedRegister)
	Copy(dest, src quickapi.FrameOffset, scratch ManagedRegister, size int)
	CopyFromBase(dest quickapi.FrameOffset, srcBase ManagedRegister, srcOff quickapi.Offset, scratch ManagedRegister, size int)
	CopyToBase(destBase ManagedRegister, destOff quickapi.Offset, src quickapi.FrameOffset, scratch ManagedRegister, size int)
	CopyFromFrameBase(dest, srcBase quickapi.FrameOffset, srcOff quickapi.Offset, scratch ManagedRegister, size int)
	CopyBaseToBase(destBase ManagedRegister, destOff quickapi.Offset, srcBase ManagedRegister, srcOff quickapi.Offset, scratch ManagedRegister, size int)
	CopyFrameBaseToFrameBase(dest quickapi.FrameOffset, destOff quickapi.Offset, src quickapi.FrameOffset, srcOff quickapi.Offset, scratch ManagedRegister, size int)

	MemoryBarrier(scratch ManagedRegister)
	SignExtend(reg ManagedRegister, size int)
	ZeroExtend(reg ManagedRegister, size int)
	GetCurrentThread(dest ManagedRegister)
	GetCurrentThreadToFrame(dest quickapi.FrameOffset, scratch ManagedRegister)

	// CreateHandleScopeEntry sets out to sp+hsOff, or to 0 when nullAllowed and the
	// reference in in (or at hsOff when in is NoRegister) is null.
	CreateHandleScopeEntry(out ManagedRegister, hsOff quickapi.FrameOffset, in ManagedRegister, nullAllowed bool)
	// CreateHandleScopeEntryInFrame is CreateHandleScopeEntry with the result stored at out.
	CreateHandleScopeEntryInFrame(out, hsOff quickapi.FrameOffset, scratch ManagedRegister, nullAllowed bool)
	// LoadReferenceFromHandleScope loads the reference a handle scope entry points to,
	// or null for a null entry.
	LoadReferenceFromHandleScope(dest, in ManagedRegister)
	VerifyObject(src ManagedRegister, couldBeNull bool)
	VerifyObjectInFrame(src quickapi.FrameOffset, couldBeNull bool)

	// Call calls the function whose address is at [base+offs].
	Call(base ManagedRegister, offs quickapi.Offset, scratch ManagedRegister)
	// CallFromFrame calls the function whose address is at [[sp+base]+offs].
	CallFromFrame(base quickapi.FrameOffset, offs quickapi.Offset, scratch ManagedRegister)
	// CallFromThread calls the function whose address is at [thread+offs].
	CallFromThread(offs quickapi.ThreadOffset, scratch ManagedRegister)
	// ExceptionPoll branches to a slow path delivering the pending exception, if any.
	// The slow path drops stackAdjust bytes of frame first and is emitted by FinalizeCode.
	ExceptionPoll(scratch ManagedRegister, stackAdjust int)

	CreateLabel() L
	Jump(l L)
	JumpIf(l L, cond UnaryCondition, test ManagedRegister)
	Bind(l L)

	// FinalizeCode emits the pending slow paths and assembles the code. It must be called
	// exactly once, after every other emitting call.
	FinalizeCode() error
	CodeSize() int
	FinalizeInstructions(region []byte)
	CFI() *dwarf.DebugFrameOpCodeWriter
}

// ExceptionSlowPath is an ExceptionPoll whose slow path is not emitted yet.
type ExceptionSlowPath[L any] struct {
	Scratch     ManagedRegister
	StackAdjust int
	// CFAOffset is the CFA offset at the poll, which the slow path starts with.
	CFAOffset int
	Entry     L
}

// ExceptionSlowPaths is the list of pending ExceptionSlowPath a macro-assembler
// emits at FinalizeCode.
type ExceptionSlowPaths[L any] struct {
	pending []ExceptionSlowPath[L]
	flushed bool
}

// Add queues a slow path.
func (e *ExceptionSlowPaths[L]) Add(p ExceptionSlowPath[L]) {
	if e.flushed {
		panic("BUG: ExceptionPoll after FinalizeCode")
	}
	e.pending = append(e.pending, p)
}

// Flush calls emit for every queued slow path in order, then empties the queue.
func (e *ExceptionSlowPaths[L]) Flush(emit func(ExceptionSlowPath[L])) {
	e.flushed = true
	for _, p := range e.pending {
		emit(p)
	}
	e.pending = nil
}

// Len returns the number of queued slow paths.
func (e *ExceptionSlowPaths[L]) Len() int {
	return len(e.pending)
}
