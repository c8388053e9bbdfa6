package dwarf

import "fmt"

// Reg is a DWARF register number.
type Reg int

// Num returns the DWARF register number.
func (r Reg) Num() int { return int(r) }

// String implements fmt.Stringer.
func (r Reg) String() string { return fmt.Sprintf("r%d", int(r)) }

// ArmCore returns the DWARF number of the arm core register rN.
func ArmCore(n int) Reg { return Reg(n) }

// ArmFp returns the DWARF number of the VFP register sN.
func ArmFp(n int) Reg { return Reg(64 + n) }

// Arm64Core returns the DWARF number of xN. 31 is sp.
func Arm64Core(n int) Reg { return Reg(n) }

// Arm64Fp returns the DWARF number of vN.
func Arm64Fp(n int) Reg { return Reg(64 + n) }

// X86Core returns the DWARF number of an x86 general purpose register in encoding order.
func X86Core(n int) Reg { return Reg(n) }

// X86Fp returns the DWARF number of xmmN on x86.
func X86Fp(n int) Reg { return Reg(21 + n) }

// x86_64CoreMapping maps the hardware encoding of rax..r15 to DWARF numbers.
// DWARF swaps rdx/rcx and orders rsi/rdi before rbp/rsp.
var x86_64CoreMapping = [16]Reg{
	0, // rax
	2, // rcx
	1, // rdx
	3, // rbx
	7, // rsp
	6, // rbp
	4, // rsi
	5, // rdi
	8, 9, 10, 11, 12, 13, 14, 15,
}

// X86_64Core returns the DWARF number of an x86-64 general purpose register in encoding order.
func X86_64Core(n int) Reg {
	if n < 0 || n >= len(x86_64CoreMapping) {
		panic(fmt.Sprintf("BUG: invalid x86-64 core register %d", n))
	}
	return x86_64CoreMapping[n]
}

// X86_64Fp returns the DWARF number of xmmN on x86-64.
func X86_64Fp(n int) Reg { return Reg(17 + n) }

// Return address columns of the instruction sets that have no register for it.
const (
	X86ReturnAddress    Reg = 8
	X86_64ReturnAddress Reg = 16
)
