package jni_x86_64

import (
	"github.com/samber/lo"

	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

const (
	framePointerSize = 8
	// maxFloatOrDoubleRegisterArguments is how many floating point arguments go in XMM0-XMM7.
	maxFloatOrDoubleRegisterArguments = 8
	// maxIntLikeRegisterArguments is how many other native arguments go in registers.
	maxIntLikeRegisterArguments = 6
)

var (
	// managedArgumentRegisters follow RDI, which holds the method.
	managedArgumentRegisters = [...]Register{RSI, RDX, RCX, R8, R9}
	nativeArgumentRegisters  = [...]Register{RDI, RSI, RDX, RCX, R8, R9}
)

var calleeSaveRegisters = []jni.ManagedRegister{
	FromCpuRegister(RBX).JNI(),
	FromCpuRegister(RBP).JNI(),
	FromCpuRegister(R12).JNI(),
	FromCpuRegister(R13).JNI(),
	FromCpuRegister(R14).JNI(),
	FromCpuRegister(R15).JNI(),
	// Native code preserves no XMM register, managed code expects these kept.
	FromXmmRegister(XMM12).JNI(),
	FromXmmRegister(XMM13).JNI(),
	FromXmmRegister(XMM14).JNI(),
	FromXmmRegister(XMM15).JNI(),
}

// The return address is recorded as a fake register after the real ones.
var coreSpillMask, fpSpillMask = spillMasks(calleeSaveRegisters)

func spillMasks(regs []jni.ManagedRegister) (core, fp uint32) {
	for _, r := range lo.Map(regs, func(r jni.ManagedRegister, _ int) ManagedRegister { return FromJNI(r) }) {
		if r.IsCpuRegister() {
			core |= 1 << uint(r.AsCpuRegister())
		} else {
			fp |= 1 << uint(r.AsXmmRegister())
		}
	}
	core |= 1 << numberOfCpuRegisters
	return
}

var interproceduralScratchRegister = FromCpuRegister(RAX).JNI()

func returnRegisterForShorty(shorty string) jni.ManagedRegister {
	switch shorty[0] {
	case 'V':
		return jni.NoRegister
	case 'F', 'D':
		return FromXmmRegister(XMM0).JNI()
	default:
		return FromCpuRegister(RAX).JNI()
	}
}

// floatArgumentRegister returns XMMn for the n-th floating point argument, or NoRegister.
func floatArgumentRegister(n int) ManagedRegister {
	if n < maxFloatOrDoubleRegisterArguments {
		return FromXmmRegister(XMM0 + XmmRegister(n))
	}
	return NoRegister
}

// ManagedRuntimeCallingConvention is the x86-64 jni.ManagedRuntimeCallingConvention.
type ManagedRuntimeCallingConvention struct {
	jni.ManagedRuntimeCallingConventionBase
	entrySpills []jni.ManagedRegisterSpill
}

// NewManagedRuntimeCallingConvention returns the x86-64 managed convention for a method.
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
	return FromCpuRegister(RDI).JNI()
}

// IsCurrentParamInRegister implements jni.ManagedRuntimeCallingConvention. Register
// arguments are spilled on entry and read back from the stack.
func (c *ManagedRuntimeCallingConvention) IsCurrentParamInRegister() bool { return false }

// IsCurrentParamOnStack implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) IsCurrentParamOnStack() bool { return true }

// CurrentParamRegister implements jni.ManagedRuntimeCallingConvention. It returns the
// register the argument arrives in, or NoRegister for an argument passed on the stack.
func (c *ManagedRuntimeCallingConvention) CurrentParamRegister() jni.ManagedRegister {
	return c.currentParamRegister().JNI()
}

func (c *ManagedRuntimeCallingConvention) currentParamRegister() ManagedRegister {
	if c.IsCurrentParamAFloatOrDouble() {
		return floatArgumentRegister(c.Itr.FloatAndDoubles)
	}
	if gp := c.Itr.Args - c.Itr.FloatAndDoubles; gp < len(managedArgumentRegisters) {
		return FromCpuRegister(managedArgumentRegisters[gp])
	}
	return NoRegister
}

// CurrentParamStackOffset implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) CurrentParamStackOffset() quickapi.FrameOffset {
	return c.Itr.Displacement.Add(framePointerSize + c.Itr.Slots*4)
}

// EntrySpills implements jni.ManagedRuntimeCallingConvention. Spills carry the offset
// of their stack slot.
func (c *ManagedRuntimeCallingConvention) EntrySpills() []jni.ManagedRegisterSpill {
	if len(c.entrySpills) > 0 || c.NumArgs() == 0 {
		return c.entrySpills
	}
	c.ResetIterator(0)
	for c.HasNext() {
		if in := c.currentParamRegister(); !in.IsNoRegister() {
			size := 4
			if c.IsCurrentParamALong() || c.IsCurrentParamADouble() {
				size = 8
			}
			c.entrySpills = append(c.entrySpills, jni.ManagedRegisterSpill{
				Reg: in.JNI(), Size: size, SpillOffset: int(c.CurrentParamStackOffset()),
			})
		}
		c.Next()
	}
	return c.entrySpills
}

// JniCallingConvention is the x86-64 jni.JniCallingConvention, following the System V ABI.
type JniCallingConvention struct {
	jni.JniCallingConventionBase
}

// NewJniCallingConvention returns the x86-64 native convention for a method.
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
	return FromCpuRegister(RAX).JNI()
}

// RequiresSmallResultTypeExtension implements jni.JniCallingConvention.
func (c *JniCallingConvention) RequiresSmallResultTypeExtension() bool { return true }

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
func (c *JniCallingConvention) FrameSize() int {
	// Method*, the return address and the callee saves.
	size := framePointerSize + framePointerSize + len(calleeSaveRegisters)*framePointerSize
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
	return !c.IsCurrentParamOnStack()
}

// IsCurrentParamOnStack implements jni.JniCallingConvention.
func (c *JniCallingConvention) IsCurrentParamOnStack() bool {
	return c.currentParamRegister().IsNoRegister()
}

// CurrentParamRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) CurrentParamRegister() jni.ManagedRegister {
	r := c.currentParamRegister()
	if r.IsNoRegister() {
		panic("BUG: current argument is on the stack")
	}
	return r.JNI()
}

func (c *JniCallingConvention) currentParamRegister() ManagedRegister {
	if c.IsCurrentParamAFloatOrDouble() {
		return floatArgumentRegister(c.Itr.FloatAndDoubles)
	}
	if gp := c.Itr.Args - c.Itr.FloatAndDoubles; gp < len(nativeArgumentRegisters) {
		return FromCpuRegister(nativeArgumentRegisters[gp])
	}
	return NoRegister
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

// numberOfOutgoingStackArgs counts 8-byte slots. The JNIEnv and the jclass are
// int-like arguments.
func (c *JniCallingConvention) numberOfOutgoingStackArgs() int {
	all := c.NumArgs() + c.NumberOfExtraArgumentsForJni()
	fp := c.NumFloatOrDoubleArgs()
	return all -
		lo.Min([]int{maxFloatOrDoubleRegisterArguments, fp}) -
		lo.Min([]int{maxIntLikeRegisterArguments, all - fp})
}
