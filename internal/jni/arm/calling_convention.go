package jni_arm

import (
	"github.com/samber/lo"

	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	"github.com/artquick/quick/internal/quickapi"
)

const framePointerSize = 4

// Native code is soft-float: every argument goes in the core registers or on the stack.
var jniArgumentRegisters = [...]Register{R0, R1, R2, R3}

// Managed code is hard-float.
var (
	hfCoreArgumentRegisters = [...]Register{R0, R1, R2, R3}
	hfSArgumentRegisters    = [...]SRegister{S0, S1, S2, S3, S4, S5, S6, S7, S8, S9, S10, S11, S12, S13, S14, S15}
	hfDArgumentRegisters    = [...]DRegister{D0, D1, D2, D3, D4, D5, D6, D7}
)

// calleeSaveRegisters are saved by the stub. LR is saved too but is not listed here, it
// only shows in the core spill mask.
var calleeSaveRegisters = []jni.ManagedRegister{
	FromCoreRegister(R5).JNI(),
	FromCoreRegister(R6).JNI(),
	FromCoreRegister(R7).JNI(),
	FromCoreRegister(R8).JNI(),
	FromCoreRegister(R10).JNI(),
	FromCoreRegister(R11).JNI(),
	FromSRegister(S16).JNI(),
	FromSRegister(S17).JNI(),
	FromSRegister(S18).JNI(),
	FromSRegister(S19).JNI(),
	FromSRegister(S20).JNI(),
	FromSRegister(S21).JNI(),
	FromSRegister(S22).JNI(),
	FromSRegister(S23).JNI(),
	FromSRegister(S24).JNI(),
	FromSRegister(S25).JNI(),
	FromSRegister(S26).JNI(),
	FromSRegister(S27).JNI(),
	FromSRegister(S28).JNI(),
	FromSRegister(S29).JNI(),
	FromSRegister(S30).JNI(),
	FromSRegister(S31).JNI(),
}

var coreSpillMask, fpSpillMask = spillMasks(calleeSaveRegisters)

func spillMasks(regs []jni.ManagedRegister) (core, fp uint32) {
	core = 1 << uint(LR)
	for _, r := range lo.Map(regs, func(r jni.ManagedRegister, _ int) ManagedRegister { return FromJNI(r) }) {
		if r.IsCoreRegister() {
			core |= 1 << uint(r.AsCoreRegister())
		} else {
			fp |= 1 << uint(r.AsSRegister())
		}
	}
	return
}

var interproceduralScratchRegister = FromCoreRegister(IP).JNI()

// ManagedRuntimeCallingConvention is the arm jni.ManagedRuntimeCallingConvention.
// Every argument register is spilled on entry, so all arguments are read from the stack.
type ManagedRuntimeCallingConvention struct {
	jni.ManagedRuntimeCallingConventionBase
	entrySpills []jni.ManagedRegisterSpill
}

// NewManagedRuntimeCallingConvention returns the arm managed convention for a method.
func NewManagedRuntimeCallingConvention(isStatic, isSynchronized bool, shorty string) *ManagedRuntimeCallingConvention {
	return &ManagedRuntimeCallingConvention{
		ManagedRuntimeCallingConventionBase: jni.NewManagedRuntimeCallingConventionBase(isStatic, isSynchronized, shorty, isa.PointerSize32),
	}
}

// ReturnRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) ReturnRegister() jni.ManagedRegister {
	switch c.Shorty()[0] {
	case 'V':
		return jni.NoRegister
	case 'D':
		return FromDRegister(D0).JNI()
	case 'F':
		return FromSRegister(S0).JNI()
	case 'J':
		return FromRegisterPair(R0_R1).JNI()
	default:
		return FromCoreRegister(R0).JNI()
	}
}

// InterproceduralScratchRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) InterproceduralScratchRegister() jni.ManagedRegister {
	return interproceduralScratchRegister
}

// MethodRegister implements jni.ManagedRuntimeCallingConvention.
func (c *ManagedRuntimeCallingConvention) MethodRegister() jni.ManagedRegister {
	return FromCoreRegister(R0).JNI()
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

// EntrySpills implements jni.ManagedRuntimeCallingConvention.
//
// R0 holds the method, so core arguments start at R1. A double takes the next even
// pair of S registers not used by a float, and a float back-fills the odd S register
// a double alignment left free. A long never starts in R1, and one that would span R3
// and the stack is read from the stack.
func (c *ManagedRuntimeCallingConvention) EntrySpills() []jni.ManagedRegisterSpill {
	if len(c.entrySpills) > 0 || c.NumArgs() == 0 {
		return c.entrySpills
	}
	spill := func(r ManagedRegister, size int) {
		c.entrySpills = append(c.entrySpills, jni.ManagedRegisterSpill{
			Reg: r.JNI(), Size: size, SpillOffset: jni.SequentialSpillOffset,
		})
	}
	gpr, fpr, fprDouble := 1, 0, 0
	c.ResetIterator(0)
	for c.HasNext() {
		switch {
		case c.IsCurrentParamADouble():
			fprDouble = lo.Max([]int{fprDouble * 2, isa.RoundUp(fpr, 2)}) / 2
			if fprDouble < len(hfDArgumentRegisters) {
				spill(FromDRegister(hfDArgumentRegisters[fprDouble]), 8)
				fprDouble++
			} else {
				spill(NoRegister, 8)
			}
		case c.IsCurrentParamAFloatOrDouble():
			if fpr%2 == 0 {
				fpr = lo.Max([]int{fprDouble * 2, fpr})
			}
			if fpr < len(hfSArgumentRegisters) {
				spill(FromSRegister(hfSArgumentRegisters[fpr]), 4)
				fpr++
			} else {
				spill(NoRegister, 4)
			}
		default:
			if c.IsCurrentParamALong() {
				last := len(hfCoreArgumentRegisters) - 1
				if gpr == 1 {
					// Use R2_R3 rather than R1_R2.
					gpr++
				}
				switch {
				case gpr < last:
					spill(FromCoreRegister(hfCoreArgumentRegisters[gpr]), 4)
					gpr++
				case gpr == last:
					// Split between R3 and the stack, use the copy on the stack.
					gpr++
					spill(NoRegister, 4)
				default:
					spill(NoRegister, 4)
				}
			}
			// The high word of a long, or a 32-bit argument.
			if gpr < len(hfCoreArgumentRegisters) {
				spill(FromCoreRegister(hfCoreArgumentRegisters[gpr]), 4)
				gpr++
			} else {
				spill(NoRegister, 4)
			}
		}
		c.Next()
	}
	return c.entrySpills
}

// JniCallingConvention is the arm jni.JniCallingConvention, following the soft-float
// AAPCS: 64-bit values start at an even register or an 8-byte aligned stack slot.
type JniCallingConvention struct {
	jni.JniCallingConventionBase
	// padding is the stack space lost to aligning 64-bit values.
	padding int
}

// NewJniCallingConvention returns the arm native convention for a method.
func NewJniCallingConvention(isStatic, isSynchronized, isFastNative, isCriticalNative bool, shorty string) *JniCallingConvention {
	c := &JniCallingConvention{
		JniCallingConventionBase: jni.NewJniCallingConventionBase(isStatic, isSynchronized, isFastNative, isCriticalNative, shorty, isa.PointerSize32),
	}

	// Walk the logical slots r0-r3 followed by the stack, bumping every 64-bit value that
	// would start at an odd slot. JNIEnv and jobject/jclass fill r0 and r1.
	curArg, curReg, shift := 0, 0, 0
	if c.HasExtraArgumentsForJni() {
		curArg, curReg = c.NumImplicitArgs(), 2
	}
	for ; curArg < c.NumArgs(); curArg++ {
		if c.IsParamALongOrDouble(curArg) {
			if curReg&1 != 0 {
				shift += 4
				curReg++
			}
			curReg += 2
		} else {
			curReg++
		}
	}
	// Shifting costs no stack if everything still fits in registers.
	if curReg >= len(jniArgumentRegisters) {
		c.padding = shift
	}
	return c
}

// ReturnRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) ReturnRegister() jni.ManagedRegister {
	switch c.Shorty()[0] {
	case 'V':
		return jni.NoRegister
	case 'D', 'J':
		return FromRegisterPair(R0_R1).JNI()
	default:
		return FromCoreRegister(R0).JNI()
	}
}

// InterproceduralScratchRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) InterproceduralScratchRegister() jni.ManagedRegister {
	return interproceduralScratchRegister
}

// IntReturnRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) IntReturnRegister() jni.ManagedRegister {
	return FromCoreRegister(R0).JNI()
}

// RequiresSmallResultTypeExtension implements jni.JniCallingConvention.
func (c *JniCallingConvention) RequiresSmallResultTypeExtension() bool { return false }

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
	return FromCoreRegister(R2).JNI()
}

// FrameSize implements jni.JniCallingConvention.
func (c *JniCallingConvention) FrameSize() int {
	// Method*, LR and the callee saves.
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
	return isa.RoundUp(c.numberOfOutgoingStackArgs()*framePointerSize+c.padding, isa.StackAlignment)
}

// Next implements jni.JniCallingConvention. A 64-bit argument skips a slot to start at
// an even one.
func (c *JniCallingConvention) Next() {
	c.JniCallingConventionBase.Next()
	if c.HasNext() && c.IsCurrentParamALongOrDouble() && c.Itr.Slots&1 != 0 {
		c.Itr.Slots++
	}
}

// IsCurrentParamInRegister implements jni.JniCallingConvention.
func (c *JniCallingConvention) IsCurrentParamInRegister() bool {
	return c.Itr.Slots < len(jniArgumentRegisters)
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
	if c.IsCurrentParamALongOrDouble() {
		switch c.Itr.Slots {
		case 0:
			return FromRegisterPair(R0_R1).JNI()
		case 2:
			return FromRegisterPair(R2_R3).JNI()
		}
		panic("BUG: 64-bit argument at an odd register")
	}
	return FromCoreRegister(jniArgumentRegisters[c.Itr.Slots]).JNI()
}

// CurrentParamStackOffset implements jni.JniCallingConvention.
func (c *JniCallingConvention) CurrentParamStackOffset() quickapi.FrameOffset {
	if !c.IsCurrentParamOnStack() {
		panic("BUG: current argument is in a register")
	}
	offset := int(c.Itr.Displacement) - c.OutArgSize() + (c.Itr.Slots-len(jniArgumentRegisters))*framePointerSize
	if offset >= c.OutArgSize() {
		panic("BUG: stack argument beyond the outgoing argument area")
	}
	return quickapi.FrameOffset(offset)
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
	return total - lo.Min([]int{len(jniArgumentRegisters), total})
}
