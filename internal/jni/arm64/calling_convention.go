package jni_arm64

import (
	"github.com/samber/lo"

	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

const (
	framePointerSize = 8
	// maxFloatOrDoubleRegisterArguments is how many floating point arguments go in registers.
	maxFloatOrDoubleRegisterArguments = 8
	// maxIntLikeRegisterArguments is how many other arguments go in registers.
	maxIntLikeRegisterArguments = 8
)

var (
	xArgumentRegisters = [...]XRegister{X0, X1, X2, X3, X4, X5, X6, X7}
	wArgumentRegisters = [...]WRegister{W0, W1, W2, W3, W4, W5, W6, W7}
	dArgumentRegisters = [...]DRegister{D0, D1, D2, D3, D4, D5, D6, D7}
	sArgumentRegisters = [...]SRegister{S0, S1, S2, S3, S4, S5, S6, S7}
)

// calleeSaveRegisters are saved by the stub so that the GC and the debugger can walk
// through it as through a callee-save frame. X19 is the thread register.
var calleeSaveRegisters = []jni.ManagedRegister{
	FromXRegister(X19).JNI(),
	FromXRegister(X20).JNI(),
	FromXRegister(X21).JNI(),
	FromXRegister(X22).JNI(),
	FromXRegister(X23).JNI(),
	FromXRegister(X24).JNI(),
	FromXRegister(X25).JNI(),
	FromXRegister(X26).JNI(),
	FromXRegister(X27).JNI(),
	FromXRegister(X28).JNI(),
	FromXRegister(X29).JNI(),
	FromXRegister(LR).JNI(),
	FromDRegister(D8).JNI(),
	FromDRegister(D9).JNI(),
	FromDRegister(D10).JNI(),
	FromDRegister(D11).JNI(),
	FromDRegister(D12).JNI(),
	FromDRegister(D13).JNI(),
	FromDRegister(D14).JNI(),
	FromDRegister(D15).JNI(),
}

var coreSpillMask, fpSpillMask = spillMasks(calleeSaveRegisters)

func spillMasks(regs []jni.ManagedRegister) (core, fp uint32) {
	for _, r := range lo.Map(regs, func(r jni.ManagedRegister, _ int) ManagedRegister { return FromJNI(r) }) {
		if r.IsXRegister() {
			core |= 1 << uint(r.AsXRegister())
		} else {
			fp |= 1 << uint(r.AsDRegister())
		}
	}
	return
}

// interproceduralScratchRegister is X20. With Baker read barriers it is the marking
// register, refreshed by RemoveFrame, and otherwise it is a callee save.
var interproceduralScratchRegister = FromXRegister(X20).JNI()

func returnRegisterForShorty(shorty string) jni.ManagedRegister {
	switch shorty[0] {
	case 'F':
		return FromSRegister(S0).JNI()
	case 'D':
		return FromDRegister(D0).JNI()
	case 'J':
		return FromXRegister(X0).JNI()
	case 'V':
		return jni.NoRegister
	default:
		return FromWRegister(W0).JNI()
	}
}

// ManagedRuntimeCallingConvention is the arm64 jni.ManagedRuntimeCallingConvention.
// Every argument register is spilled on entry, so all arguments are read from the stack.
type ManagedRuntimeCallingConvention struct {
	jni.ManagedRuntimeCallingConventionBase
	entrySpills []jni.ManagedRegisterSpill
}

// NewManagedRuntimeCallingConvention returns the arm64 managed convention for a method.
func NewManagedRuntimeCallingConvention(isStatic, isSynchronized bool, shorty string) *ManagedRuntimeCallingConvention {
	return &ManagedRuntimeCallingConvention{
		ManagedRuntimeCallingConventionBase: jni.NewManagedRuntimeCallingConventionBase(isStatic, isSynchronized, shorty, isa.PointerSize64),
	}
}

// ReturnRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) ReturnRegister() jni.ManagedRegister {
	return returnRegisterForShorty(c.Shorty())
}

// InterproceduralScratchRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) InterproceduralScratchRegister() jni.ManagedRegister {
	return interproceduralScratchRegister
}

// MethodRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) MethodRegister() jni.ManagedRegister {
	return FromXRegister(X0).JNI()
}

// IsCurrentParamInRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) IsCurrentParamInRegister() bool {
	return false
}

// IsCurrentParamOnStack implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) IsCurrentParamOnStack() bool {
	return true
}

// CurrentParamRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) CurrentParamRegister() jni.ManagedRegister {
	panic("BUG: managed arguments are always on the stack")
}

// CurrentParamStackOffset implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) CurrentParamStackOffset() quickapi.FrameOffset {
	return c.Itr.Displacement.Add(framePointerSize + c.Itr.Slots*4)
}

// EntrySpills implements jni.ManagedRuntimeCallingConvention.
//
// The arguments arrive in X1-X7/W1-W7 (X0 holds the method) and D0-D7/S0-S7. Managed
// stack slots are 32-bit, so the register width follows the argument type.
func (c *ManagedRuntimeCallingConvention) EntrySpills() []jni.ManagedRegisterSpill {
	if len(c.entrySpills) > 0 || c.NumArgs() == 0 {
		return c.entrySpills
	}
	gpIndex, fpIndex := 1, 0
	spill := func(r ManagedRegister, size int) {
		c.entrySpills = append(c.entrySpills, jni.ManagedRegisterSpill{
			Reg: r.JNI(), Size: size, SpillOffset: jni.SequentialSpillOffset,
		})
	}
	c.ResetIterator(0)
	for c.HasNext() {
		if c.IsCurrentParamAFloatOrDouble() {
			isDouble := c.IsCurrentParamADouble()
			switch {
			case fpIndex >= maxFloatOrDoubleRegisterArguments && isDouble:
				spill(NoRegister, 8)
			case fpIndex >= maxFloatOrDoubleRegisterArguments:
				spill(NoRegister, 4)
			case isDouble:
				spill(FromDRegister(dArgumentRegisters[fpIndex]), 8)
				fpIndex++
			default:
				spill(FromSRegister(sArgumentRegisters[fpIndex]), 4)
				fpIndex++
			}
		} else {
			isLong := c.IsCurrentParamALong() && !c.IsCurrentParamAReference()
			switch {
			case gpIndex >= maxIntLikeRegisterArguments && isLong:
				spill(NoRegister, 8)
			case gpIndex >= maxIntLikeRegisterArguments:
				spill(NoRegister, 4)
			case isLong:
				spill(FromXRegister(xArgumentRegisters[gpIndex]), 8)
				gpIndex++
			default:
				spill(FromWRegister(wArgumentRegisters[gpIndex]), 4)
				gpIndex++
			}
		}
		c.Next()
	}
	return c.entrySpills
}

// JniCallingConvention is the arm64 jni.JniCallingConvention, following AAPCS64.
type JniCallingConvention struct {
	jni.JniCallingConventionBase
}

// NewJniCallingConvention returns the arm64 native convention for a method.
func NewJniCallingConvention(isStatic, isSynchronized, isFastNative, isCriticalNative bool, shorty string) *JniCallingConvention {
	return &JniCallingConvention{
		JniCallingConventionBase: jni.NewJniCallingConventionBase(isStatic, isSynchronized, isFastNative, isCriticalNative, shorty, isa.PointerSize64),
	}
}

// ReturnRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) ReturnRegister() jni.ManagedRegister {
	return returnRegisterForShorty(c.Shorty())
}

// InterproceduralScratchRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) InterproceduralScratchRegister() jni.ManagedRegister {
	return interproceduralScratchRegister
}

// IntReturnRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) IntReturnRegister() jni.ManagedRegister {
	return FromWRegister(W0).JNI()
}

// RequiresSmallResultTypeExtension implements jni.JniCallingConvention.
func (c *JniCallingConvention) RequiresSmallResultTypeExtension() bool {
	return false
}

// CalleeSaveRegisters implements jni.JniCallingConvention.
func (c *JniCallingConvention) CalleeSaveRegisters() []jni.ManagedRegister {
	return calleeSaveRegisters
}

// CoreSpillMask implements jni.JniCallingConvention.
func (c *JniCallingConvention) CoreSpillMask() uint32 { return coreSpillMask }

// FpSpillMask implements jni.JniCallingConvention.
func (c *JniCallingConvention) FpSpillMask() uint32 { return fpSpillMask }

// ReturnScratchRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) ReturnScratchRegister() jni.ManagedRegister {
	return jni.NoRegister
}

// FrameSize implements jni.JniCallingConvention.
//
// The frame holds the method pointer, the callee saves, the local reference cookie,
// the handle scope and the return value. Unlike x86-64 there is no return address.
func (c *JniCallingConvention) FrameSize() int {
	size := framePointerSize + len(calleeSaveRegisters)*framePointerSize
	if c.HasLocalReferenceSegmentState() {
		size += 4
	}
	size += c.HandleScopeSize()
	size += c.SizeOfReturnValue()
	return isa.RoundUp(size, isa.StackAlignment)
}

// OutArgSize implements jni.JniCallingConvention.
func (c *JniCallingConvention) OutArgSize() int {
	return isa.RoundUp(c.numberOfOutgoingStackArgs()*framePointerSize, isa.StackAlignment)
}

// IsCurrentParamInRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) IsCurrentParamInRegister() bool {
	if c.IsCurrentParamAFloatOrDouble() {
		return c.Itr.FloatAndDoubles < maxFloatOrDoubleRegisterArguments
	}
	return c.Itr.Args-c.Itr.FloatAndDoubles < maxIntLikeRegisterArguments
}

// IsCurrentParamOnStack implements jni.JniCallingConvention.
func (c *JniCallingConvention) IsCurrentParamOnStack() bool {
	return !c.IsCurrentParamInRegister()
}

// CurrentParamRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) CurrentParamRegister() jni.ManagedRegister {
	if !c.IsCurrentParamInRegister() {
		panic("BUG: current argument is on the stack")
	}
	if c.IsCurrentParamAFloatOrDouble() {
		if c.IsCurrentParamADouble() {
			return FromDRegister(dArgumentRegisters[c.Itr.FloatAndDoubles]).JNI()
		}
		return FromSRegister(sArgumentRegisters[c.Itr.FloatAndDoubles]).JNI()
	}
	gp := c.Itr.Args - c.Itr.FloatAndDoubles
	if c.IsCurrentParamALong() || c.IsCurrentParamAReference() || c.IsCurrentParamJniEnv() {
		return FromXRegister(xArgumentRegisters[gp]).JNI()
	}
	return FromWRegister(wArgumentRegisters[gp]).JNI()
}

// CurrentParamStackOffset implements jni.JniCallingConvention.
func (c *JniCallingConvention) CurrentParamStackOffset() quickapi.FrameOffset {
	if !c.IsCurrentParamOnStack() {
		panic("BUG: current argument is in a register")
	}
	argsOnStack := c.Itr.Args -
		lo.Min([]int{maxFloatOrDoubleRegisterArguments, c.Itr.FloatAndDoubles}) -
		lo.Min([]int{maxIntLikeRegisterArguments, c.Itr.Args - c.Itr.FloatAndDoubles})
	offset := int(c.Itr.Displacement) - c.OutArgSize() + argsOnStack*framePointerSize
	if offset >= c.OutArgSize() {
		panic("BUG: stack argument beyond the outgoing argument area")
	}
	return quickapi.FrameOffset(offset)
}

func (c *JniCallingConvention) numberOfOutgoingStackArgs() int {
	all := c.NumArgs() + c.NumberOfExtraArgumentsForJni()
	fp := c.NumFloatOrDoubleArgs()
	return all -
		lo.Min([]int{maxFloatOrDoubleRegisterArguments, fp}) -
		lo.Min([]int{maxIntLikeRegisterArguments, all - fp})
}
