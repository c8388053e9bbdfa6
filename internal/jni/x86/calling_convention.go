package jni_x86

import (
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

const framePointerSize = 4

var calleeSaveRegisters = []jni.ManagedRegister{
	FromCpuRegister(EBP).JNI(),
	FromCpuRegister(ESI).JNI(),
	FromCpuRegister(EDI).JNI(),
}

// The return address is recorded as a fake register after the real ones.
const (
	coreSpillMask uint32 = 1<<uint(EBP) | 1<<uint(ESI) | 1<<uint(EDI) | 1<<numberOfCpuRegisters
	fpSpillMask   uint32 = 0
)

var interproceduralScratchRegister = FromCpuRegister(ECX).JNI()

func returnRegisterForShorty(shorty string, jniABI bool) jni.ManagedRegister {
	switch shorty[0] {
	case 'V':
		return jni.NoRegister
	case 'F', 'D':
		if jniABI {
			// Native code returns floating point values on the x87 stack.
			return FromX87Register(ST0).JNI()
		}
		return FromXmmRegister(XMM0).JNI()
	case 'J':
		return FromRegisterPair(EAX_EDX).JNI()
	default:
		return FromCpuRegister(EAX).JNI()
	}
}

// ManagedRuntimeCallingConvention is the x86 jni.ManagedRuntimeCallingConvention.
// Managed code passes the first ints in ECX, EDX and EBX and the first floats in
// XMM0-XMM3, and the stub spills them to their stack slots on entry.
type ManagedRuntimeCallingConvention struct {
	jni.ManagedRuntimeCallingConventionBase
	entrySpills []jni.ManagedRegisterSpill
}

// NewManagedRuntimeCallingConvention returns the x86 managed convention for a method.
func NewManagedRuntimeCallingConvention(isStatic, isSynchronized bool, shorty string) *ManagedRuntimeCallingConvention {
	return &ManagedRuntimeCallingConvention{
		ManagedRuntimeCallingConventionBase: jni.NewManagedRuntimeCallingConventionBase(isStatic, isSynchronized, shorty, isa.PointerSize32),
	}
}

// ReturnRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) ReturnRegister() jni.ManagedRegister {
	return returnRegisterForShorty(c.Shorty(), false)
}

// InterproceduralScratchRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) InterproceduralScratchRegister() jni.ManagedRegister {
	return interproceduralScratchRegister
}

// MethodRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) MethodRegister() jni.ManagedRegister {
	return FromCpuRegister(EAX).JNI()
}

// IsCurrentParamInRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) IsCurrentParamInRegister() bool { return false }

// IsCurrentParamOnStack implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) IsCurrentParamOnStack() bool { return true }

// CurrentParamRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) CurrentParamRegister() jni.ManagedRegister {
	panic("BUG: managed arguments are always on the stack")
}

// CurrentParamStackOffset implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) CurrentParamStackOffset() quickapi.FrameOffset {
	return c.Itr.Displacement.Add(framePointerSize + c.Itr.Slots*framePointerSize)
}

// incomingRegister returns the register managed code passes the current argument in,
// given the number of core registers taken so far.
func (c *ManagedRuntimeCallingConvention) incomingRegister(gprCount int) ManagedRegister {
	if c.IsCurrentParamAFloatOrDouble() {
		if c.Itr.FloatAndDoubles < 4 {
			return FromXmmRegister(XMM0 + XmmRegister(c.Itr.FloatAndDoubles))
		}
		return NoRegister
	}
	switch gprCount {
	case 0:
		return FromCpuRegister(ECX)
	case 1:
		return FromCpuRegister(EDX)
	case 2:
		// A long is never split between EBX and the stack.
		if c.IsCurrentParamALong() {
			return NoRegister
		}
		return FromCpuRegister(EBX)
	}
	return NoRegister
}

// incomingHighLongRegister returns the register holding the high word of a long.
func incomingHighLongRegister(gprCount int) ManagedRegister {
	switch gprCount {
	case 0:
		return FromCpuRegister(EDX)
	case 1:
		return FromCpuRegister(EBX)
	}
	panic("BUG: long argument has no high register")
}

// EntrySpills implements jni.ManagedRuntimeCallingConvention. Spills carry the offset
// of their stack slot.
func (c *ManagedRuntimeCallingConvention) EntrySpills() []jni.ManagedRegisterSpill {
	if len(c.entrySpills) > 0 || c.NumArgs() == 0 {
		return c.entrySpills
	}
	gprCount := 0
	c.ResetIterator(0)
	for c.HasNext() {
		in := c.incomingRegister(gprCount)
		isLong := c.IsCurrentParamALong()
		if !in.IsNoRegister() {
			size := 4
			if c.IsCurrentParamADouble() {
				size = 8
			}
			offset := int(c.CurrentParamStackOffset())
			c.entrySpills = append(c.entrySpills, jni.ManagedRegisterSpill{Reg: in.JNI(), Size: size, SpillOffset: offset})
			if isLong {
				c.entrySpills = append(c.entrySpills, jni.ManagedRegisterSpill{
					Reg: incomingHighLongRegister(gprCount).JNI(), Size: size, SpillOffset: offset + 4,
				})
			}
			if !c.IsCurrentParamAFloatOrDouble() {
				if isLong {
					gprCount += 2
				} else {
					gprCount++
				}
			}
		} else if isLong {
			// The register left over is not used by later arguments either.
			gprCount += 2
		}
		c.Next()
	}
	return c.entrySpills
}

// JniCallingConvention is the x86 jni.JniCallingConvention: cdecl, every argument on
// the stack.
type JniCallingConvention struct {
	jni.JniCallingConventionBase
}

// NewJniCallingConvention returns the x86 native convention for a method.
func NewJniCallingConvention(isStatic, isSynchronized, isFastNative, isCriticalNative bool, shorty string) *JniCallingConvention {
	return &JniCallingConvention{
		JniCallingConventionBase: jni.NewJniCallingConventionBase(isStatic, isSynchronized, isFastNative, isCriticalNative, shorty, isa.PointerSize32),
	}
}

// ReturnRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) ReturnRegister() jni.ManagedRegister {
	return returnRegisterForShorty(c.Shorty(), true)
}

// InterproceduralScratchRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) InterproceduralScratchRegister() jni.ManagedRegister {
	return interproceduralScratchRegister
}

// IntReturnRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) IntReturnRegister() jni.ManagedRegister {
	return FromCpuRegister(EAX).JNI()
}

// RequiresSmallResultTypeExtension implements jni.JniCallingConvention. cdecl leaves the
// upper bits of small results undefined.
func (c *JniCallingConvention) RequiresSmallResultTypeExtension() bool { return true }

// CalleeSaveRegisters implements jni.JniCallingConvention.
func (c *JniCallingConvention) CalleeSaveRegisters() []jni.ManagedRegister {
	return calleeSaveRegisters
}

// CoreSpillMask implements jni.JniCallingConvention.
func (c *JniCallingConvention) CoreSpillMask() uint32 { return coreSpillMask }

// FpSpillMask implements jni.JniCallingConvention.
func (c *JniCallingConvention) FpSpillMask() uint32 { return fpSpillMask }

// ReturnScratchRegister implements jni.JniCallingConvention. The return value is saved
// in the frame instead.
func (c *JniCallingConvention) ReturnScratchRegister() jni.ManagedRegister {
	return jni.NoRegister
}

// FrameSize implements jni.JniCallingConvention.
func (c *JniCallingConvention) FrameSize() int {
	// Method*, the return address and the callee saves.
	size := framePointerSize + framePointerSize + len(calleeSaveRegisters)*framePointerSize
	if c.HasLocalReferenceSegmentState() {
		size += framePointerSize
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
func (c *JniCallingConvention) IsCurrentParamInRegister() bool { return false }

// IsCurrentParamOnStack implements jni.JniCallingConvention.
func (c *JniCallingConvention) IsCurrentParamOnStack() bool { return true }

// CurrentParamRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) CurrentParamRegister() jni.ManagedRegister {
	panic("BUG: native arguments are always on the stack")
}

// CurrentParamStackOffset implements jni.JniCallingConvention.
func (c *JniCallingConvention) CurrentParamStackOffset() quickapi.FrameOffset {
	return quickapi.FrameOffset(int(c.Itr.Displacement) - c.OutArgSize() + c.Itr.Slots*framePointerSize)
}

// numberOfOutgoingStackArgs counts 32-bit slots, with 64-bit values taking two.
func (c *JniCallingConvention) numberOfOutgoingStackArgs() int {
	total := c.NumArgs() + c.NumLongOrDoubleArgs()
	if c.HasSelfClass() {
		total++
	}
	if c.HasJniEnv() {
		total++
	}
	return total
}
