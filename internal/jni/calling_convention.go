package jni

import (
	"fmt"

	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/quickapi"
)

// Iterator is the cursor of a calling convention walking the arguments of a method.
type Iterator struct {
	// Slots counts 32-bit argument slots, with a long or double taking two.
	Slots int
	// Refs counts the references seen so far.
	Refs int
	// Args counts the arguments seen so far.
	Args int
	// LongsAndDoubles counts the 64-bit arguments seen so far.
	LongsAndDoubles int
	// FloatAndDoubles counts the floating point arguments seen so far.
	FloatAndDoubles int
	// Displacement is the offset added to every frame offset the convention computes.
	Displacement quickapi.FrameOffset
}

// CallingConvention is the state shared by the managed and the JNI views of a method.
// The per-instruction set conventions embed one of ManagedRuntimeCallingConventionBase
// or JniCallingConventionBase which in turn embed this.
type CallingConvention struct {
	Itr Iterator

	framePointerSize isa.PointerSize
	isStatic         bool
	isSynchronized   bool
	shorty           string
	numArgs          int
	numRefArgs       int
	numFloatOrDouble int
	numLongOrDouble  int
}

func newCallingConvention(isStatic, isSynchronized bool, shorty string, ptr isa.PointerSize) CallingConvention {
	if err := ValidateShorty(shorty); err != nil {
		panic("BUG: " + err.Error())
	}
	c := CallingConvention{
		framePointerSize: ptr,
		isStatic:         isStatic,
		isSynchronized:   isSynchronized,
		shorty:           shorty,
		numArgs:          len(shorty) - 1,
	}
	if !isStatic {
		// The implicit this.
		c.numArgs++
		c.numRefArgs++
	}
	for i := 1; i < len(shorty); i++ {
		switch shorty[i] {
		case 'L':
			c.numRefArgs++
		case 'J':
			c.numLongOrDouble++
		case 'D':
			c.numLongOrDouble++
			c.numFloatOrDouble++
		case 'F':
			c.numFloatOrDouble++
		}
	}
	return c
}

// Shorty returns the shorty of the method.
func (c *CallingConvention) Shorty() string { return c.shorty }

// IsStatic returns true if the method has no implicit this.
func (c *CallingConvention) IsStatic() bool { return c.isStatic }

// IsSynchronized returns true if the method locks its receiver or class.
func (c *CallingConvention) IsSynchronized() bool { return c.isSynchronized }

// FramePointerSize returns the pointer size of the target.
func (c *CallingConvention) FramePointerSize() isa.PointerSize { return c.framePointerSize }

// NumArgs returns the number of arguments including the implicit this.
func (c *CallingConvention) NumArgs() int { return c.numArgs }

// NumImplicitArgs returns 1 for an instance method and 0 otherwise.
func (c *CallingConvention) NumImplicitArgs() int {
	if c.isStatic {
		return 0
	}
	return 1
}

// NumLongOrDoubleArgs returns the number of 64-bit arguments.
func (c *CallingConvention) NumLongOrDoubleArgs() int { return c.numLongOrDouble }

// NumFloatOrDoubleArgs returns the number of floating point arguments.
func (c *CallingConvention) NumFloatOrDoubleArgs() int { return c.numFloatOrDouble }

// NumReferenceArgs returns the number of reference arguments including the implicit this.
func (c *CallingConvention) NumReferenceArgs() int { return c.numRefArgs }

// ReturnType returns the type of the return value.
func (c *CallingConvention) ReturnType() PrimitiveType {
	return PrimitiveTypeOf(c.shorty[0])
}

// IsReturnAReference returns true if the method returns an object.
func (c *CallingConvention) IsReturnAReference() bool { return c.shorty[0] == 'L' }

// SizeOfReturnValue returns the size of the return value, with 1-3 byte types widened to 4.
func (c *CallingConvention) SizeOfReturnValue() int {
	return widen(c.ReturnType().ComponentSize())
}

// MethodStackOffset is where the method pointer lives in the frame.
func (c *CallingConvention) MethodStackOffset() quickapi.FrameOffset {
	return c.Itr.Displacement
}

// ResetIterator rewinds the iterator and sets the displacement applied to the
// frame offsets computed from now on.
func (c *CallingConvention) ResetIterator(displacement quickapi.FrameOffset) {
	c.Itr = Iterator{Displacement: displacement}
}

// paramType returns the type of param, where param 0 of an instance method is this.
func (c *CallingConvention) paramType(param int) PrimitiveType {
	if param < 0 || param >= c.numArgs {
		panic(fmt.Sprintf("BUG: param %d out of range [0, %d)", param, c.numArgs))
	}
	if c.isStatic {
		// Skip the return type.
		param++
	} else if param == 0 {
		return PrimNot
	}
	return PrimitiveTypeOf(c.shorty[param])
}

// IsParamALongOrDouble returns true if param is 64 bits wide.
func (c *CallingConvention) IsParamALongOrDouble(param int) bool {
	return c.paramType(param).Is64Bit()
}

// IsParamAFloatOrDouble returns true if param is a floating point value.
func (c *CallingConvention) IsParamAFloatOrDouble(param int) bool {
	return c.paramType(param).IsFloatingPoint()
}

// IsParamADouble returns true if param is a double.
func (c *CallingConvention) IsParamADouble(param int) bool {
	return c.paramType(param) == PrimDouble
}

// IsParamALong returns true if param is a long.
func (c *CallingConvention) IsParamALong(param int) bool {
	return c.paramType(param) == PrimLong
}

// IsParamAReference returns true if param is an object, including this.
func (c *CallingConvention) IsParamAReference(param int) bool {
	return c.paramType(param) == PrimNot
}

// ParamSize returns the size of param, with 1-3 byte types widened to 4.
func (c *CallingConvention) ParamSize(param int) int {
	return widen(c.paramType(param).ComponentSize())
}

func widen(size int) int {
	if size >= 1 && size < 4 {
		return 4
	}
	return size
}

// ManagedRuntimeCallingConventionBase implements the architecture independent part of
// ManagedRuntimeCallingConvention.
type ManagedRuntimeCallingConventionBase struct {
	CallingConvention
}

// NewManagedRuntimeCallingConventionBase is called by the per-instruction set constructors.
func NewManagedRuntimeCallingConventionBase(isStatic, isSynchronized bool, shorty string, ptr isa.PointerSize) ManagedRuntimeCallingConventionBase {
	return ManagedRuntimeCallingConventionBase{CallingConvention: newCallingConvention(isStatic, isSynchronized, shorty, ptr)}
}

// HasNext returns true if the iterator has not passed the last argument.
func (c *ManagedRuntimeCallingConventionBase) HasNext() bool {
	return c.Itr.Args < c.numArgs
}

// Next advances the iterator.
func (c *ManagedRuntimeCallingConventionBase) Next() {
	if !c.HasNext() {
		panic("BUG: Next called past the last argument")
	}
	// The type of the implicit this must not be queried as a shorty parameter.
	if c.IsCurrentArgExplicit() && c.IsParamALongOrDouble(c.Itr.Args) {
		c.Itr.LongsAndDoubles++
		c.Itr.Slots++
	}
	if c.IsParamAFloatOrDouble(c.Itr.Args) {
		c.Itr.FloatAndDoubles++
	}
	if c.IsCurrentParamAReference() {
		c.Itr.Refs++
	}
	c.Itr.Args++
	c.Itr.Slots++
}

// IsCurrentArgExplicit returns false for the implicit this.
func (c *ManagedRuntimeCallingConventionBase) IsCurrentArgExplicit() bool {
	return c.isStatic || c.Itr.Args != 0
}

// IsCurrentArgPossiblyNull returns true for any argument but this.
func (c *ManagedRuntimeCallingConventionBase) IsCurrentArgPossiblyNull() bool {
	return c.IsCurrentArgExplicit()
}

// CurrentParamSize returns the size of the current argument.
func (c *ManagedRuntimeCallingConventionBase) CurrentParamSize() int {
	return c.ParamSize(c.Itr.Args)
}

// IsCurrentParamAReference returns true if the current argument is an object.
func (c *ManagedRuntimeCallingConventionBase) IsCurrentParamAReference() bool {
	return c.IsParamAReference(c.Itr.Args)
}

// IsCurrentParamAFloatOrDouble returns true if the current argument is a floating point value.
func (c *ManagedRuntimeCallingConventionBase) IsCurrentParamAFloatOrDouble() bool {
	return c.IsParamAFloatOrDouble(c.Itr.Args)
}

// IsCurrentParamADouble returns true if the current argument is a double.
func (c *ManagedRuntimeCallingConventionBase) IsCurrentParamADouble() bool {
	return c.IsParamADouble(c.Itr.Args)
}

// IsCurrentParamALong returns true if the current argument is a long.
func (c *ManagedRuntimeCallingConventionBase) IsCurrentParamALong() bool {
	return c.IsParamALong(c.Itr.Args)
}

// JNI iterator positions of the arguments added in front of the shorty ones.
const (
	jniEnvPosition      = 0
	jniObjectOrClassPos = 1
)

const (
	handleScopeEntrySize = quickapi.HeapReferenceSize
	localRefCookieSize   = 4
)

// JniCallingConventionBase implements the architecture independent part of
// JniCallingConvention.
type JniCallingConventionBase struct {
	CallingConvention
	isFastNative     bool
	isCriticalNative bool
}

// NewJniCallingConventionBase is called by the per-instruction set constructors.
func NewJniCallingConventionBase(isStatic, isSynchronized, isFastNative, isCriticalNative bool, shorty string, ptr isa.PointerSize) JniCallingConventionBase {
	if isCriticalNative && (!isStatic || isSynchronized || isFastNative) {
		panic("BUG: @CriticalNative methods must be static, not synchronized and not @FastNative")
	}
	return JniCallingConventionBase{
		CallingConvention: newCallingConvention(isStatic, isSynchronized, shorty, ptr),
		isFastNative:      isFastNative,
		isCriticalNative:  isCriticalNative,
	}
}

// IsFastNative returns true for a @FastNative method, which does not transition out of
// the runnable state.
func (c *JniCallingConventionBase) IsFastNative() bool { return c.isFastNative }

// IsCriticalNative returns true for a @CriticalNative method, which gets neither a
// JNIEnv nor a handle scope.
func (c *JniCallingConventionBase) IsCriticalNative() bool { return c.isCriticalNative }

// HasHandleScope returns true unless the method is @CriticalNative.
func (c *JniCallingConventionBase) HasHandleScope() bool { return !c.isCriticalNative }

// HasLocalReferenceSegmentState returns true unless the method is @CriticalNative.
func (c *JniCallingConventionBase) HasLocalReferenceSegmentState() bool { return !c.isCriticalNative }

// HasExtraArgumentsForJni returns true unless the method is @CriticalNative.
func (c *JniCallingConventionBase) HasExtraArgumentsForJni() bool { return !c.isCriticalNative }

// HasJniEnv returns true if the native function takes a JNIEnv.
func (c *JniCallingConventionBase) HasJniEnv() bool { return c.HasExtraArgumentsForJni() }

// HasSelfClass returns true if the native function takes a jclass.
func (c *JniCallingConventionBase) HasSelfClass() bool {
	return c.isStatic && c.HasExtraArgumentsForJni()
}

// NumberOfExtraArgumentsForJni returns the number of arguments the native function
// takes in front of the ones in the shorty: the JNIEnv and, for static methods, the jclass.
func (c *JniCallingConventionBase) NumberOfExtraArgumentsForJni() int {
	switch {
	case !c.HasExtraArgumentsForJni():
		// @CriticalNative functions take neither.
		return 0
	case c.isStatic:
		return 2
	default:
		return 1
	}
}

// ReferenceCount returns the number of handle scope entries: every reference argument
// plus the class of a static method.
func (c *JniCallingConventionBase) ReferenceCount() int {
	if c.isStatic {
		return c.numRefArgs + 1
	}
	return c.numRefArgs
}

// HandleScopeOffset is the frame offset of the handle scope, right after the method pointer.
func (c *JniCallingConventionBase) HandleScopeOffset() quickapi.FrameOffset {
	return c.Itr.Displacement.Add(c.framePointerSize.Bytes())
}

// HandleScopeLinkOffset is the frame offset of the link to the enclosing handle scope.
func (c *JniCallingConventionBase) HandleScopeLinkOffset() quickapi.FrameOffset {
	return c.HandleScopeOffset().Add(int(quickapi.HandleScopeLinkOffset(c.framePointerSize)))
}

// HandleScopeNumRefsOffset is the frame offset of the number of handle scope entries.
func (c *JniCallingConventionBase) HandleScopeNumRefsOffset() quickapi.FrameOffset {
	return c.HandleScopeOffset().Add(int(quickapi.HandleScopeNumberOfReferencesOffset(c.framePointerSize)))
}

// HandleReferencesOffset is the frame offset of the first handle scope entry.
func (c *JniCallingConventionBase) HandleReferencesOffset() quickapi.FrameOffset {
	return c.HandleScopeOffset().Add(int(quickapi.HandleScopeReferencesOffset(c.framePointerSize)))
}

// SavedLocalReferenceCookieOffset is the frame offset of the saved local reference
// segment state, right after the handle scope entries.
func (c *JniCallingConventionBase) SavedLocalReferenceCookieOffset() quickapi.FrameOffset {
	return c.HandleReferencesOffset().Add(handleScopeEntrySize * c.ReferenceCount())
}

// ReturnValueSaveLocation is where the return value of the native function is kept
// while JniMethodEnd runs.
func (c *JniCallingConventionBase) ReturnValueSaveLocation() quickapi.FrameOffset {
	if c.HasHandleScope() {
		return c.SavedLocalReferenceCookieOffset().Add(localRefCookieSize)
	}
	// Only the method pointer is in front.
	return c.Itr.Displacement.Add(c.framePointerSize.Bytes())
}

// HandleScopeSize returns the size in bytes of the handle scope, or 0 without one.
func (c *JniCallingConventionBase) HandleScopeSize() int {
	if !c.HasHandleScope() {
		return 0
	}
	return quickapi.HandleScopeSizeOf(c.framePointerSize, c.ReferenceCount())
}

// HasNext returns true if the iterator has not passed the last native argument.
func (c *JniCallingConventionBase) HasNext() bool {
	if c.IsCurrentArgExtraForJni() {
		return true
	}
	return c.IteratorPositionWithinShorty() < c.numArgs
}

// Next advances the iterator. arm overrides this to align 64-bit arguments.
func (c *JniCallingConventionBase) Next() {
	if !c.HasNext() {
		panic("BUG: Next called past the last argument")
	}
	if c.IsCurrentParamALongOrDouble() {
		c.Itr.LongsAndDoubles++
		c.Itr.Slots++
	}
	if c.IsCurrentParamAFloatOrDouble() {
		c.Itr.FloatAndDoubles++
	}
	if c.IsCurrentParamAReference() {
		c.Itr.Refs++
	}
	// The JNIEnv and any single slot primitive only take this.
	c.Itr.Args++
	c.Itr.Slots++
}

// IsCurrentArgExtraForJni returns true while iterating the JNIEnv or the jobject/jclass.
func (c *JniCallingConventionBase) IsCurrentArgExtraForJni() bool {
	if !c.HasExtraArgumentsForJni() {
		return false
	}
	return c.Itr.Args <= jniObjectOrClassPos
}

// IteratorPositionWithinShorty returns the iterator position with the extra JNI
// arguments taken out, so that it can be passed to the CallingConvention param methods.
func (c *JniCallingConventionBase) IteratorPositionWithinShorty() int {
	n := c.NumberOfExtraArgumentsForJni()
	if c.Itr.Args < n {
		panic(fmt.Sprintf("BUG: iterator position %d is within the %d extra JNI arguments", c.Itr.Args, n))
	}
	return c.Itr.Args - n
}

// extraArg reports what the current argument is when it is the JNIEnv or the
// jobject/jclass. ok is false for any other argument.
func (c *JniCallingConventionBase) extraArg(caseJniEnv, caseObjectOrClass bool) (ret, ok bool) {
	if !c.HasExtraArgumentsForJni() {
		return false, false
	}
	switch c.Itr.Args {
	case jniEnvPosition:
		return caseJniEnv, true
	case jniObjectOrClassPos:
		return caseObjectOrClass, true
	}
	return false, false
}

// IsCurrentParamAReference returns true for the jobject/jclass and reference arguments.
func (c *JniCallingConventionBase) IsCurrentParamAReference() bool {
	if ret, ok := c.extraArg(false, true); ok {
		return ret
	}
	return c.IsParamAReference(c.IteratorPositionWithinShorty())
}

// IsCurrentParamJniEnv returns true while iterating the JNIEnv.
func (c *JniCallingConventionBase) IsCurrentParamJniEnv() bool {
	return c.HasJniEnv() && c.Itr.Args == jniEnvPosition
}

// IsCurrentParamAFloatOrDouble returns true if the current argument is a floating point value.
func (c *JniCallingConventionBase) IsCurrentParamAFloatOrDouble() bool {
	if ret, ok := c.extraArg(false, false); ok {
		return ret
	}
	return c.IsParamAFloatOrDouble(c.IteratorPositionWithinShorty())
}

// IsCurrentParamADouble returns true if the current argument is a double.
func (c *JniCallingConventionBase) IsCurrentParamADouble() bool {
	if ret, ok := c.extraArg(false, false); ok {
		return ret
	}
	return c.IsParamADouble(c.IteratorPositionWithinShorty())
}

// IsCurrentParamALong returns true if the current argument is a long.
func (c *JniCallingConventionBase) IsCurrentParamALong() bool {
	if ret, ok := c.extraArg(false, false); ok {
		return ret
	}
	return c.IsParamALong(c.IteratorPositionWithinShorty())
}

// IsCurrentParamALongOrDouble returns true if the current argument is 64 bits wide.
func (c *JniCallingConventionBase) IsCurrentParamALongOrDouble() bool {
	return c.IsCurrentParamALong() || c.IsCurrentParamADouble()
}

// CurrentParamSize returns the size of the current argument. The extra JNI arguments
// are pointer sized.
func (c *JniCallingConventionBase) CurrentParamSize() int {
	if c.IsCurrentArgExtraForJni() {
		return c.framePointerSize.Bytes()
	}
	return c.ParamSize(c.IteratorPositionWithinShorty())
}

// CurrentParamHandleScopeEntryOffset returns the frame offset of the handle scope entry
// holding the current reference argument.
func (c *JniCallingConventionBase) CurrentParamHandleScopeEntryOffset() quickapi.FrameOffset {
	if !c.IsCurrentParamAReference() {
		panic("BUG: current argument is not a reference")
	}
	return c.HandleReferencesOffset().Add(c.Itr.Refs * handleScopeEntrySize)
}

// callingConvention is implemented by both conventions.
type callingConvention interface {
	Shorty() string
	IsStatic() bool
	IsSynchronized() bool
	NumArgs() int
	NumReferenceArgs() int
	NumLongOrDoubleArgs() int
	ReturnType() PrimitiveType
	IsReturnAReference() bool
	SizeOfReturnValue() int
	MethodStackOffset() quickapi.FrameOffset
	ResetIterator(displacement quickapi.FrameOffset)

	// ReturnRegister is where the callee leaves its return value, or NoRegister for void.
	ReturnRegister() ManagedRegister
	// InterproceduralScratchRegister can be clobbered freely around calls.
	InterproceduralScratchRegister() ManagedRegister

	HasNext() bool
	Next()
	IsCurrentParamAReference() bool
	IsCurrentParamAFloatOrDouble() bool
	IsCurrentParamADouble() bool
	IsCurrentParamALong() bool
	CurrentParamSize() int
	IsCurrentParamInRegister() bool
	IsCurrentParamOnStack() bool
	CurrentParamRegister() ManagedRegister
	CurrentParamStackOffset() quickapi.FrameOffset
}

// ManagedRuntimeCallingConvention describes how compiled managed code passes arguments,
// which is how the stub receives them.
type ManagedRuntimeCallingConvention interface {
	callingConvention

	// MethodRegister holds the ArtMethod pointer on entry.
	MethodRegister() ManagedRegister
	IsCurrentArgExplicit() bool
	IsCurrentArgPossiblyNull() bool
	// EntrySpills lists the argument registers BuildFrame stores to the caller's frame.
	EntrySpills() []ManagedRegisterSpill
}

// JniCallingConvention describes how the stub passes arguments to the native function.
type JniCallingConvention interface {
	callingConvention

	IsFastNative() bool
	IsCriticalNative() bool
	HasHandleScope() bool
	HasJniEnv() bool
	HasSelfClass() bool
	NumberOfExtraArgumentsForJni() int

	// FrameSize is the size of the stub frame excluding outgoing arguments.
	FrameSize() int
	// OutArgSize is the size of the outgoing argument area, aligned to the stack alignment.
	OutArgSize() int
	ReferenceCount() int
	SavedLocalReferenceCookieOffset() quickapi.FrameOffset
	ReturnValueSaveLocation() quickapi.FrameOffset
	// IntReturnRegister is where a native function returns a 32-bit integer.
	IntReturnRegister() ManagedRegister
	// RequiresSmallResultTypeExtension returns true if the native ABI leaves the upper
	// bits of a sub-word result undefined.
	RequiresSmallResultTypeExtension() bool
	CalleeSaveRegisters() []ManagedRegister
	CoreSpillMask() uint32
	FpSpillMask() uint32
	// ReturnScratchRegister is free across the JniMethodEnd call, or NoRegister.
	ReturnScratchRegister() ManagedRegister

	IsCurrentParamJniEnv() bool
	IsCurrentParamALongOrDouble() bool
	CurrentParamHandleScopeEntryOffset() quickapi.FrameOffset
	HandleScopeOffset() quickapi.FrameOffset
	HandleScopeLinkOffset() quickapi.FrameOffset
	HandleScopeNumRefsOffset() quickapi.FrameOffset
	HandleReferencesOffset() quickapi.FrameOffset
	HandleScopeSize() int
}
