// Package jni holds the instruction set independent parts of the JNI stub backend:
// managed registers, calling conventions and the macro-assembler contract.
package jni

import "fmt"

// ManagedRegister identifies a register (or a register pair) without telling which
// instruction set it belongs to. Each instruction set package converts it to and from
// its own register type, which gives meaning to the value.
//
// ManagedRegister is comparable: two values are equal iff they denote the same location.
type ManagedRegister int32

// NoRegister is the distinguished absent register.
const NoRegister ManagedRegister = -1

// IsNoRegister returns true if r is NoRegister.
func (r ManagedRegister) IsNoRegister() bool {
	return r == NoRegister
}

// Equals returns true if r and o denote the same location.
func (r ManagedRegister) Equals(o ManagedRegister) bool {
	return r == o
}

// String implements fmt.Stringer.
func (r ManagedRegister) String() string {
	if r.IsNoRegister() {
		return "NoRegister"
	}
	return fmt.Sprintf("ManagedRegister(%d)", int32(r))
}

// SequentialSpillOffset is the SpillOffset of a ManagedRegisterSpill stored right
// after the previous one.
const SequentialSpillOffset = -1

// ManagedRegisterSpill is an incoming argument register that BuildFrame stores to the
// caller's frame so that every argument can be read from the stack afterwards.
type ManagedRegisterSpill struct {
	// Reg is the register to store. It is NoRegister for an argument that already lives
	// on the stack, in which case only its Size is skipped.
	Reg ManagedRegister
	// Size is the number of bytes the argument occupies in the frame.
	Size int
	// SpillOffset is the offset of the slot relative to the end of the frame being
	// built, or SequentialSpillOffset.
	SpillOffset int
}

// UnaryCondition is tested against a register by MacroAssembler.JumpIf.
type UnaryCondition byte

const (
	// Zero holds if the register is zero.
	Zero UnaryCondition = iota
	// NotZero holds if the register is not zero.
	NotZero
)

// String implements fmt.Stringer.
func (c UnaryCondition) String() string {
	switch c {
	case Zero:
		return "Zero"
	case NotZero:
		return "NotZero"
	}
	return fmt.Sprintf("UnaryCondition(%d)", byte(c))
}
