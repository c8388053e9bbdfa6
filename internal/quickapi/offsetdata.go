package quickapi

import (
	"fmt"

	"github.com/artquick/quick/internal/isa"
)

// Offset is a byte offset that is not relative to anything in particular.
type Offset int32

// FrameOffset is a byte offset from the stack pointer of the current frame.
type FrameOffset int32

// ThreadOffset is a byte offset into the Thread object that the thread
// register (or segment) points to.
type ThreadOffset int32

// MemberOffset is a byte offset of a field within a heap object.
type MemberOffset int32

// U32 encodes an Offset as uint32 for convenience.
func (o Offset) U32() uint32 { return uint32(o) }

// I64 encodes an Offset as int64 for convenience.
func (o Offset) I64() int64 { return int64(o) }

// U32 encodes a FrameOffset as uint32 for convenience.
func (o FrameOffset) U32() uint32 { return uint32(o) }

// I64 encodes a FrameOffset as int64 for convenience.
func (o FrameOffset) I64() int64 { return int64(o) }

// Add returns the frame offset n bytes above o.
func (o FrameOffset) Add(n int) FrameOffset { return o + FrameOffset(n) }

// U32 encodes a ThreadOffset as uint32 for convenience.
func (o ThreadOffset) U32() uint32 { return uint32(o) }

// I64 encodes a ThreadOffset as int64 for convenience.
func (o ThreadOffset) I64() int64 { return int64(o) }

// U32 encodes a MemberOffset as uint32 for convenience.
func (o MemberOffset) U32() uint32 { return uint32(o) }

// I64 encodes a MemberOffset as int64 for convenience.
func (o MemberOffset) I64() int64 { return int64(o) }

// String implements fmt.Stringer.
func (o FrameOffset) String() string { return fmt.Sprintf("[sp, #%d]", int32(o)) }

// String implements fmt.Stringer.
func (o ThreadOffset) String() string { return fmt.Sprintf("[tr, #%d]", int32(o)) }

// ----- Thread -----

// threadTLS32Size is the size of the 32-bit per-thread fields at the start of Thread:
//
//	state_and_flags, suspend_count, thin_lock_thread_id, tid, daemon, throwing_oome,
//	no_thread_suspension, thread_exit_check_count, handling_signal, is_transitioning_to_runnable,
//	ready_for_debug_invocation, debug_method_entry, is_gc_marking, weak_ref_access_enabled,
//	disable_thread_flip_count, user_code_suspend_count.
const (
	threadFlagsOffset       = 0
	threadIsGcMarkingOffset = 48
	threadTLS32Size         = 64
	// threadTLS64Size covers trace_clock_base and eight allocation statistics counters.
	threadTLS64Size = 72
)

// threadPtrField enumerates the pointer-sized Thread fields in layout order.
type threadPtrField int

const (
	threadPtrCardTable threadPtrField = iota
	threadPtrException
	threadPtrStackEnd
	threadPtrManagedStackTopQuickFrame
	threadPtrManagedStackLink
	threadPtrManagedStackTopShadowFrame
	threadPtrSuspendTrigger
	threadPtrJniEnv
	threadPtrTmpJniEnv
	threadPtrSelf
	threadPtrOPeer
	threadPtrJPeer
	threadPtrStackBegin
	threadPtrStackSize
	threadPtrStackTraceSample
	threadPtrWaitNext
	threadPtrMonitorEnterObject
	threadPtrTopHandleScope
	threadPtrClassLoaderOverride
	threadPtrLongJumpContext
	threadPtrInstrumentationStack
	threadPtrStackedShadowFrameRecord
	threadPtrDeoptimizationContextStack
	threadPtrName
	threadPtrPthreadSelf
	threadPtrLastNoThreadSuspensionCause
	threadPtrCheckpointFunction
	threadPtrActiveSuspendBarrier0
	threadPtrActiveSuspendBarrier1
	threadPtrActiveSuspendBarrier2
	threadPtrThreadLocalStart
	threadPtrThreadLocalPos
	threadPtrThreadLocalEnd
	threadPtrThreadLocalLimit
	threadPtrThreadLocalObjects
	threadPtrJniEntrypointDlsymLookup
	// threadPtrQuickEntrypoints is the first entry of the quick entrypoint table.
	threadPtrQuickEntrypoints
)

// QuickEntrypoint identifies a runtime function reachable through the
// thread's quick entrypoint table.
type QuickEntrypoint int

const (
	QuickDeliverException QuickEntrypoint = iota
	QuickJniMethodStart
	QuickJniMethodFastStart
	QuickJniMethodStartSynchronized
	QuickJniMethodEnd
	QuickJniMethodFastEnd
	QuickJniMethodEndSynchronized
	QuickJniMethodEndWithReference
	QuickJniMethodFastEndWithReference
	QuickJniMethodEndWithReferenceSynchronized
	QuickGenericJniTrampoline
	QuickTestSuspend
	QuickReadBarrierJni
	QuickThrowStackOverflow
	quickEntrypointEnd
)

// String implements fmt.Stringer.
func (e QuickEntrypoint) String() string {
	switch e {
	case QuickDeliverException:
		return "pDeliverException"
	case QuickJniMethodStart:
		return "pJniMethodStart"
	case QuickJniMethodFastStart:
		return "pJniMethodFastStart"
	case QuickJniMethodStartSynchronized:
		return "pJniMethodStartSynchronized"
	case QuickJniMethodEnd:
		return "pJniMethodEnd"
	case QuickJniMethodFastEnd:
		return "pJniMethodFastEnd"
	case QuickJniMethodEndSynchronized:
		return "pJniMethodEndSynchronized"
	case QuickJniMethodEndWithReference:
		return "pJniMethodEndWithReference"
	case QuickJniMethodFastEndWithReference:
		return "pJniMethodFastEndWithReference"
	case QuickJniMethodEndWithReferenceSynchronized:
		return "pJniMethodEndWithReferenceSynchronized"
	case QuickGenericJniTrampoline:
		return "pQuickGenericJniTrampoline"
	case QuickTestSuspend:
		return "pTestSuspend"
	case QuickReadBarrierJni:
		return "pReadBarrierJni"
	case QuickThrowStackOverflow:
		return "pThrowStackOverflow"
	}
	return fmt.Sprintf("QuickEntrypoint(%d)", int(e))
}

// ThreadOffsetData allows the JNI compiler to get the offsets of the Thread
// fields that generated code reads or writes. The values depend only on the
// pointer size and are part of the ABI between generated code and the runtime.
type ThreadOffsetData struct {
	// PointerSize is the pointer size this layout was computed for.
	PointerSize isa.PointerSize
	// ThreadFlags is the offset of the 32-bit state-and-flags word.
	ThreadFlags ThreadOffset
	// IsGcMarking is the offset of the 32-bit flag mirrored by the marking register.
	IsGcMarking ThreadOffset
	// CardTable is the offset of the card table base pointer.
	CardTable ThreadOffset
	// Exception is the offset of the pending exception reference.
	Exception ThreadOffset
	// TopOfManagedStack is the offset of ManagedStack::top_quick_frame.
	TopOfManagedStack ThreadOffset
	// JniEnv is the offset of the thread's JNIEnv pointer.
	JniEnv ThreadOffset
	// Self is the offset of the pointer to the Thread itself.
	Self ThreadOffset
	// TopHandleScope is the offset of the head of the handle scope chain.
	TopHandleScope ThreadOffset
	// QuickEntrypoints is the offset of the first quick entrypoint.
	QuickEntrypoints ThreadOffset
}

var (
	threadOffsets32 = newThreadOffsetData(isa.PointerSize32)
	threadOffsets64 = newThreadOffsetData(isa.PointerSize64)
)

// ThreadOffsets returns the Thread layout for the given pointer size.
func ThreadOffsets(ptr isa.PointerSize) *ThreadOffsetData {
	switch ptr {
	case isa.PointerSize32:
		return &threadOffsets32
	case isa.PointerSize64:
		return &threadOffsets64
	}
	panic(fmt.Sprintf("BUG: invalid pointer size %d", ptr))
}

func newThreadOffsetData(ptr isa.PointerSize) ThreadOffsetData {
	base := threadTLS32Size + threadTLS64Size
	at := func(f threadPtrField) ThreadOffset {
		return ThreadOffset(base + int(f)*ptr.Bytes())
	}
	return ThreadOffsetData{
		PointerSize:       ptr,
		ThreadFlags:       threadFlagsOffset,
		IsGcMarking:       threadIsGcMarkingOffset,
		CardTable:         at(threadPtrCardTable),
		Exception:         at(threadPtrException),
		TopOfManagedStack: at(threadPtrManagedStackTopQuickFrame),
		JniEnv:            at(threadPtrJniEnv),
		Self:              at(threadPtrSelf),
		TopHandleScope:    at(threadPtrTopHandleScope),
		QuickEntrypoints:  at(threadPtrQuickEntrypoints),
	}
}

// QuickEntrypoint returns the offset of the given quick entrypoint.
func (d *ThreadOffsetData) QuickEntrypoint(e QuickEntrypoint) ThreadOffset {
	if e < 0 || e >= quickEntrypointEnd {
		panic(fmt.Sprintf("BUG: invalid quick entrypoint %d", int(e)))
	}
	return d.QuickEntrypoints + ThreadOffset(int(e)*d.PointerSize.Bytes())
}

// ----- HandleScope -----

// HandleScopeLinkOffset is the offset of the pointer to the enclosing handle scope.
func HandleScopeLinkOffset(isa.PointerSize) Offset {
	return 0
}

// HandleScopeNumberOfReferencesOffset is the offset of the 32-bit reference count.
func HandleScopeNumberOfReferencesOffset(ptr isa.PointerSize) Offset {
	return Offset(ptr.Bytes())
}

// HandleScopeReferencesOffset is the offset of the first 32-bit reference slot.
func HandleScopeReferencesOffset(ptr isa.PointerSize) Offset {
	return Offset(ptr.Bytes() + 4)
}

// HandleScopeSizeOf returns the size of a handle scope holding n references.
func HandleScopeSizeOf(ptr isa.PointerSize, n int) int {
	return ptr.Bytes() + 4 + 4*n
}

// HeapReferenceSize is the size of a compressed reference to a heap object.
const HeapReferenceSize = 4

// ----- ArtMethod -----

// artMethodPtrSizedFieldsBegin is the end of the fixed 32-bit ArtMethod fields:
// declaring_class, access_flags, dex_code_item_offset, dex_method_index,
// method_index and hotness_count.
const artMethodPtrSizedFieldsBegin = 20

// ArtMethodDeclaringClassOffset is the offset of the declaring class reference.
const ArtMethodDeclaringClassOffset MemberOffset = 0

// ArtMethodEntryPointFromJniOffset is the offset of the registered native
// function pointer.
func ArtMethodEntryPointFromJniOffset(ptr isa.PointerSize) Offset {
	return Offset(isa.RoundUp(artMethodPtrSizedFieldsBegin, ptr.Bytes()))
}

// ArtMethodEntryPointFromQuickCompiledCodeOffset is the offset of the compiled
// code entrypoint.
func ArtMethodEntryPointFromQuickCompiledCodeOffset(ptr isa.PointerSize) Offset {
	return ArtMethodEntryPointFromJniOffset(ptr) + Offset(ptr.Bytes())
}
