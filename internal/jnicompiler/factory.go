// Package jnicompiler compiles the stubs that bridge managed code to native
// methods, on top of the JNI macro-assemblers of every supported instruction set.
package jnicompiler

import (
	"fmt"

	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
	"github.com/artquick/quick/internal/jni"
	jni_arm "github.com/artquick/quick/internal/jni/arm"
	jni_arm64 "github.com/artquick/quick/internal/jni/arm64"
	jni_x86 "github.com/artquick/quick/internal/jni/x86"
	jni_x86_64 "github.com/artquick/quick/internal/jni/x86_64"
)

// Kind identifies which field of MacroAssembler is set.
type Kind byte

const (
	KindInvalid Kind = iota
	KindArm
	KindArm64
	KindX86
	KindX86_64
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindArm:
		return "arm"
	case KindArm64:
		return "arm64"
	case KindX86:
		return "x86"
	case KindX86_64:
		return "x86_64"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

func kindOf(set isa.InstructionSet) (Kind, error) {
	switch set {
	case isa.Arm, isa.Thumb2:
		return KindArm, nil
	case isa.Arm64:
		return KindArm64, nil
	case isa.X86:
		return KindX86, nil
	case isa.X86_64:
		return KindX86_64, nil
	}
	return KindInvalid, fmt.Errorf("no JNI macro-assembler for instruction set %s", set)
}

// MacroAssembler is the JNI macro-assembler of one instruction set. Only the
// field selected by Kind is non-nil.
type MacroAssembler struct {
	Kind   Kind
	Arm    *jni_arm.MacroAssembler
	Arm64  *jni_arm64.MacroAssembler
	X86    *jni_x86.MacroAssembler
	X86_64 *jni_x86_64.MacroAssembler
}

// NewMacroAssembler returns the JNI macro-assembler for set. Thumb2 is served by
// the arm one. ptr must be the pointer size of set. features may be nil, in which
// case the generic variant of set is assumed.
func NewMacroAssembler(set isa.InstructionSet, features *isa.Features, ptr isa.PointerSize, cfg *jni.Config) (*MacroAssembler, error) {
	kind, err := kindOf(set)
	if err != nil {
		return nil, err
	}
	if want := isa.PointerSizeOf(set); ptr != want {
		return nil, fmt.Errorf("pointer size %d does not match instruction set %s (%d)", ptr, set, want)
	}
	if features != nil {
		if fk, _ := kindOf(features.InstructionSet()); fk != kind {
			return nil, fmt.Errorf("features for %s used with instruction set %s", features.InstructionSet(), set)
		}
	}

	ret := &MacroAssembler{Kind: kind}
	switch kind {
	case KindArm:
		ret.Arm, err = jni_arm.NewMacroAssembler(cfg)
	case KindArm64:
		ret.Arm64, err = jni_arm64.NewMacroAssembler(cfg)
	case KindX86:
		ret.X86, err = jni_x86.NewMacroAssembler(cfg, features)
	case KindX86_64:
		ret.X86_64, err = jni_x86_64.NewMacroAssembler(cfg, features)
	}
	if err != nil {
		return nil, err
	}
	return ret, nil
}

// CFI returns the call frame information writer of the selected macro-assembler.
func (m *MacroAssembler) CFI() *dwarf.DebugFrameOpCodeWriter {
	switch m.Kind {
	case KindArm:
		return m.Arm.CFI()
	case KindArm64:
		return m.Arm64.CFI()
	case KindX86:
		return m.X86.CFI()
	case KindX86_64:
		return m.X86_64.CFI()
	}
	panic("BUG: invalid macro-assembler kind " + m.Kind.String())
}

// FinalizeCode finalizes the selected macro-assembler.
func (m *MacroAssembler) FinalizeCode() error {
	switch m.Kind {
	case KindArm:
		return m.Arm.FinalizeCode()
	case KindArm64:
		return m.Arm64.FinalizeCode()
	case KindX86:
		return m.X86.FinalizeCode()
	case KindX86_64:
		return m.X86_64.FinalizeCode()
	}
	panic("BUG: invalid macro-assembler kind " + m.Kind.String())
}

// Code returns the finalized code of the selected macro-assembler.
func (m *MacroAssembler) Code() []byte {
	var b *jni.CodeBuffer
	switch m.Kind {
	case KindArm:
		b = &m.Arm.CodeBuffer
	case KindArm64:
		b = &m.Arm64.CodeBuffer
	case KindX86:
		b = &m.X86.CodeBuffer
	case KindX86_64:
		b = &m.X86_64.CodeBuffer
	default:
		panic("BUG: invalid macro-assembler kind " + m.Kind.String())
	}
	code := make([]byte, b.CodeSize())
	b.FinalizeInstructions(code)
	return code
}

// forEachInstruction walks the encoded instructions. It must be called after FinalizeCode.
func (m *MacroAssembler) forEachInstruction(fn func(pc int, text string)) {
	switch m.Kind {
	case KindArm:
		m.Arm.Assembler().ForEachInstruction(fn)
	case KindArm64:
		m.Arm64.Assembler().ForEachInstruction(fn)
	case KindX86:
		m.X86.Assembler().ForEachInstruction(fn)
	case KindX86_64:
		m.X86_64.Assembler().ForEachInstruction(fn)
	default:
		panic("BUG: invalid macro-assembler kind " + m.Kind.String())
	}
}

// NewManagedRuntimeCallingConvention returns the convention managed code of set
// uses to call a method.
func NewManagedRuntimeCallingConvention(set isa.InstructionSet, isStatic, isSynchronized bool, shorty string) (jni.ManagedRuntimeCallingConvention, error) {
	kind, err := kindOf(set)
	if err != nil {
		return nil, err
	}
	if err = jni.ValidateShorty(shorty); err != nil {
		return nil, err
	}
	switch kind {
	case KindArm:
		return jni_arm.NewManagedRuntimeCallingConvention(isStatic, isSynchronized, shorty), nil
	case KindArm64:
		return jni_arm64.NewManagedRuntimeCallingConvention(isStatic, isSynchronized, shorty), nil
	case KindX86:
		return jni_x86.NewManagedRuntimeCallingConvention(isStatic, isSynchronized, shorty), nil
	default:
		return jni_x86_64.NewManagedRuntimeCallingConvention(isStatic, isSynchronized, shorty), nil
	}
}

// NewJniCallingConvention returns the convention native code of set expects.
func NewJniCallingConvention(set isa.InstructionSet, isStatic, isSynchronized, isFastNative, isCriticalNative bool, shorty string) (jni.JniCallingConvention, error) {
	kind, err := kindOf(set)
	if err != nil {
		return nil, err
	}
	if err = jni.ValidateShorty(shorty); err != nil {
		return nil, err
	}
	if isCriticalNative && (!isStatic || isSynchronized || isFastNative) {
		return nil, fmt.Errorf("@CriticalNative method must be static, not synchronized and not @FastNative")
	}
	switch kind {
	case KindArm:
		return jni_arm.NewJniCallingConvention(isStatic, isSynchronized, isFastNative, isCriticalNative, shorty), nil
	case KindArm64:
		return jni_arm64.NewJniCallingConvention(isStatic, isSynchronized, isFastNative, isCriticalNative, shorty), nil
	case KindX86:
		return jni_x86.NewJniCallingConvention(isStatic, isSynchronized, isFastNative, isCriticalNative, shorty), nil
	default:
		return jni_x86_64.NewJniCallingConvention(isStatic, isSynchronized, isFastNative, isCriticalNative, shorty), nil
	}
}
