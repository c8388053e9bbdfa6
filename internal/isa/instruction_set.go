package isa

import "fmt"

// InstructionSet identifies a target instruction set.
type InstructionSet byte

const (
	None InstructionSet = iota
	Arm
	Arm64
	Thumb2
	X86
	X86_64
	Mips
	Mips64
)

// String implements fmt.Stringer.
func (s InstructionSet) String() string {
	switch s {
	case None:
		return "none"
	case Arm:
		return "arm"
	case Arm64:
		return "arm64"
	case Thumb2:
		return "thumb2"
	case X86:
		return "x86"
	case X86_64:
		return "x86_64"
	case Mips:
		return "mips"
	case Mips64:
		return "mips64"
	}
	return fmt.Sprintf("InstructionSet(%d)", byte(s))
}

// InstructionSetFromString parses the names returned by InstructionSet.String.
func InstructionSetFromString(name string) (InstructionSet, error) {
	for s := Arm; s <= Mips64; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return None, fmt.Errorf("unknown instruction set %q", name)
}

// PointerSize is the size in bytes of a native pointer.
type PointerSize byte

const (
	PointerSize32 PointerSize = 4
	PointerSize64 PointerSize = 8
)

// Bytes returns the pointer size as an int.
func (p PointerSize) Bytes() int {
	return int(p)
}

// PointerSizeOf returns the pointer size of the given instruction set.
func PointerSizeOf(s InstructionSet) PointerSize {
	switch s {
	case Arm, Thumb2, X86, Mips:
		return PointerSize32
	case Arm64, X86_64, Mips64:
		return PointerSize64
	}
	panic("BUG: no pointer size for " + s.String())
}

// Is64Bit returns true if the instruction set has 64-bit pointers.
func Is64Bit(s InstructionSet) bool {
	return PointerSizeOf(s) == PointerSize64
}

// StackAlignment is the required alignment of the stack pointer at call
// boundaries. It is the same for every supported instruction set.
const StackAlignment = 16

// StackAlignmentOf returns the stack alignment of the given instruction set.
func StackAlignmentOf(s InstructionSet) int {
	switch s {
	case Arm, Thumb2, Arm64, X86, X86_64, Mips, Mips64:
		return StackAlignment
	}
	panic("BUG: no stack alignment for " + s.String())
}

// GoArch returns the GOARCH name golang-asm uses for the instruction set.
func GoArch(s InstructionSet) string {
	switch s {
	case Arm, Thumb2:
		return "arm"
	case Arm64:
		return "arm64"
	case X86:
		return "386"
	case X86_64:
		return "amd64"
	}
	panic("BUG: golang-asm does not support " + s.String())
}

// RoundUp rounds x up to the next multiple of n, which must be a power of two.
func RoundUp(x, n int) int {
	return (x + n - 1) &^ (n - 1)
}

// IsAligned returns true if x is a multiple of n, which must be a power of two.
func IsAligned(x, n int) bool {
	return x&(n-1) == 0
}
