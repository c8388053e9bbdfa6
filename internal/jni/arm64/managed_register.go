package jni_arm64

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
	asm_arm64 "github.com/artquick/quick/internal/asm/arm64"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/jni"
)

// XRegister is a 64-bit general purpose register. SP and XZR share encoding 31 in
// instructions but are distinct registers here.
type XRegister int8

const (
	X0 XRegister = iota
	X1
	X2
	X3
	X4
	X5
	X6
	X7
	X8
	X9
	X10
	X11
	X12
	X13
	X14
	X15
	X16
	X17
	X18
	X19
	X20
	X21
	X22
	X23
	X24
	X25
	X26
	X27
	X28
	X29
	X30
	SP
	XZR
)

// Aliases used by the runtime.
const (
	// IP0 and IP1 are the intra-procedure-call scratch registers.
	IP0 = X16
	IP1 = X17
	// TR holds the current Thread.
	TR = X19
	// MR is the marking register of the Baker read barrier.
	MR = X20
	FP = X29
	LR = X30
)

// WRegister is the low 32 bits of an XRegister.
type WRegister int8

const (
	W0 WRegister = iota
	W1
	W2
	W3
	W4
	W5
	W6
	W7
	W8
	W9
	W10
	W11
	W12
	W13
	W14
	W15
	W16
	W17
	W18
	W19
	W20
	W21
	W22
	W23
	W24
	W25
	W26
	W27
	W28
	W29
	W30
	WSP
	WZR
)

// DRegister is a 64-bit floating point register.
type DRegister int8

const (
	D0 DRegister = iota
	D1
	D2
	D3
	D4
	D5
	D6
	D7
	D8
	D9
	D10
	D11
	D12
	D13
	D14
	D15
	D16
	D17
	D18
	D19
	D20
	D21
	D22
	D23
	D24
	D25
	D26
	D27
	D28
	D29
	D30
	D31
)

// SRegister is the low 32 bits of a DRegister.
type SRegister int8

const (
	S0 SRegister = iota
	S1
	S2
	S3
	S4
	S5
	S6
	S7
	S8
	S9
	S10
	S11
	S12
	S13
	S14
	S15
	S16
	S17
	S18
	S19
	S20
	S21
	S22
	S23
	S24
	S25
	S26
	S27
	S28
	S29
	S30
	S31
)

const (
	numberOfXRegisters = 33
	numberOfWRegisters = 33
	numberOfDRegisters = 32
	numberOfSRegisters = 32

	regIDXBase = 0
	regIDWBase = regIDXBase + numberOfXRegisters
	regIDDBase = regIDWBase + numberOfWRegisters
	regIDSBase = regIDDBase + numberOfDRegisters
	numRegIDs  = regIDSBase + numberOfSRegisters
)

var xRegisterNames = [numberOfXRegisters]string{
	"X0",
	"X1",
	"X2",
	"X3",
	"X4",
	"X5",
	"X6",
	"X7",
	"X8",
	"X9",
	"X10",
	"X11",
	"X12",
	"X13",
	"X14",
	"X15",
	"X16",
	"X17",
	"X18",
	"X19",
	"X20",
	"X21",
	"X22",
	"X23",
	"X24",
	"X25",
	"X26",
	"X27",
	"X28",
	"X29",
	"X30",
	"SP",
	"XZR",
}

var wRegisterNames = [numberOfWRegisters]string{
	"W0",
	"W1",
	"W2",
	"W3",
	"W4",
	"W5",
	"W6",
	"W7",
	"W8",
	"W9",
	"W10",
	"W11",
	"W12",
	"W13",
	"W14",
	"W15",
	"W16",
	"W17",
	"W18",
	"W19",
	"W20",
	"W21",
	"W22",
	"W23",
	"W24",
	"W25",
	"W26",
	"W27",
	"W28",
	"W29",
	"W30",
	"WSP",
	"WZR",
}

// ManagedRegister is the arm64 view of a jni.ManagedRegister: one of an X, W, D or S register.
type ManagedRegister jni.ManagedRegister

// NoRegister is jni.NoRegister.
const NoRegister = ManagedRegister(jni.NoRegister)

// FromJNI converts r, which must be NoRegister or an arm64 register.
func FromJNI(r jni.ManagedRegister) ManagedRegister {
	if r != jni.NoRegister && (r < 0 || r >= numRegIDs) {
		panic(fmt.Sprintf("BUG: %v is not an arm64 register", r))
	}
	return ManagedRegister(r)
}

// JNI converts r back to the architecture independent type.
func (r ManagedRegister) JNI() jni.ManagedRegister {
	return jni.ManagedRegister(r)
}

// FromXRegister returns the managed register of x.
func FromXRegister(x XRegister) ManagedRegister {
	return ManagedRegister(regIDXBase + int32(x))
}

// FromWRegister returns the managed register of w.
func FromWRegister(w WRegister) ManagedRegister {
	return ManagedRegister(regIDWBase + int32(w))
}

// FromDRegister returns the managed register of d.
func FromDRegister(d DRegister) ManagedRegister {
	return ManagedRegister(regIDDBase + int32(d))
}

// FromSRegister returns the managed register of s.
func FromSRegister(s SRegister) ManagedRegister {
	return ManagedRegister(regIDSBase + int32(s))
}

func (r ManagedRegister) id() int32 { return int32(r) }

// IsNoRegister returns true for NoRegister.
func (r ManagedRegister) IsNoRegister() bool { return r == NoRegister }

// Equals returns true if r and o are the same register.
func (r ManagedRegister) Equals(o ManagedRegister) bool { return r == o }

// IsXRegister returns true for X0-X30, SP and XZR.
func (r ManagedRegister) IsXRegister() bool {
	return regIDXBase <= r.id() && r.id() < regIDWBase
}

// IsWRegister returns true for W0-W30, WSP and WZR.
func (r ManagedRegister) IsWRegister() bool {
	return regIDWBase <= r.id() && r.id() < regIDDBase
}

// IsDRegister returns true for D0-D31.
func (r ManagedRegister) IsDRegister() bool {
	return regIDDBase <= r.id() && r.id() < regIDSBase
}

// IsSRegister returns true for S0-S31.
func (r ManagedRegister) IsSRegister() bool {
	return regIDSBase <= r.id() && r.id() < numRegIDs
}

// IsGPRegister returns true for X and W registers.
func (r ManagedRegister) IsGPRegister() bool {
	return r.IsXRegister() || r.IsWRegister()
}

// IsFPRegister returns true for D and S registers.
func (r ManagedRegister) IsFPRegister() bool {
	return r.IsDRegister() || r.IsSRegister()
}

// AsXRegister panics unless r is an X register.
func (r ManagedRegister) AsXRegister() XRegister {
	if !r.IsXRegister() {
		panic(fmt.Sprintf("BUG: %s is not an X register", r))
	}
	return XRegister(r.id() - regIDXBase)
}

// AsWRegister panics unless r is a W register.
func (r ManagedRegister) AsWRegister() WRegister {
	if !r.IsWRegister() {
		panic(fmt.Sprintf("BUG: %s is not a W register", r))
	}
	return WRegister(r.id() - regIDWBase)
}

// AsDRegister panics unless r is a D register.
func (r ManagedRegister) AsDRegister() DRegister {
	if !r.IsDRegister() {
		panic(fmt.Sprintf("BUG: %s is not a D register", r))
	}
	return DRegister(r.id() - regIDDBase)
}

// AsSRegister panics unless r is an S register.
func (r ManagedRegister) AsSRegister() SRegister {
	if !r.IsSRegister() {
		panic(fmt.Sprintf("BUG: %s is not an S register", r))
	}
	return SRegister(r.id() - regIDSBase)
}

// AsOverlappingXRegister returns the X register whose low half is the W register r.
func (r ManagedRegister) AsOverlappingXRegister() XRegister {
	return XRegister(r.AsWRegister())
}

// AsOverlappingWRegister returns the low half of the X register r.
func (r ManagedRegister) AsOverlappingWRegister() WRegister {
	return WRegister(r.AsXRegister())
}

// AsOverlappingDRegister returns the D register whose low half is the S register r.
func (r ManagedRegister) AsOverlappingDRegister() DRegister {
	return DRegister(r.AsSRegister())
}

// AsOverlappingSRegister returns the low half of the D register r.
func (r ManagedRegister) AsOverlappingSRegister() SRegister {
	return SRegister(r.AsDRegister())
}

// regNo is the register number shared by aliasing registers.
func (r ManagedRegister) regNo() int32 {
	switch {
	case r.IsXRegister():
		return r.id() - regIDXBase
	case r.IsWRegister():
		return r.id() - regIDWBase
	case r.IsDRegister():
		return r.id() - regIDDBase
	case r.IsSRegister():
		return r.id() - regIDSBase
	}
	panic(fmt.Sprintf("BUG: invalid register %d", r.id()))
}

// Overlaps returns true if writing r may change o: an X register and its W half, or a
// D register and its S half. SP and XZR do not overlap.
func (r ManagedRegister) Overlaps(o ManagedRegister) bool {
	if r.IsNoRegister() || o.IsNoRegister() {
		return false
	}
	if (r.IsGPRegister() && o.IsGPRegister()) || (r.IsFPRegister() && o.IsFPRegister()) {
		return r.regNo() == o.regNo()
	}
	return false
}

// String implements fmt.Stringer.
func (r ManagedRegister) String() string {
	switch {
	case r.IsNoRegister():
		return "No Register"
	case r.IsXRegister():
		return xRegisterNames[r.AsXRegister()]
	case r.IsWRegister():
		return wRegisterNames[r.AsWRegister()]
	case r.IsDRegister():
		return fmt.Sprintf("D%d", r.AsDRegister())
	case r.IsSRegister():
		return fmt.Sprintf("S%d", r.AsSRegister())
	}
	return fmt.Sprintf("ManagedRegister(%d)", r.id())
}

// asmRegister returns the low-level assembler register of r. W and S registers map to
// the same register as their X and D counterparts, the instruction picks the width.
func (r ManagedRegister) asmRegister() asm.Register {
	switch {
	case r.IsXRegister():
		return xToAsm(r.AsXRegister())
	case r.IsWRegister():
		return xToAsm(r.AsOverlappingXRegister())
	case r.IsDRegister():
		return asm_arm64.REG_F0 + asm.Register(r.AsDRegister())
	case r.IsSRegister():
		return asm_arm64.REG_F0 + asm.Register(r.AsSRegister())
	}
	panic(fmt.Sprintf("BUG: %s has no assembler register", r))
}

// wAsmRegister returns the assembler register of r for a 32-bit access. r must be a
// W or X register.
func (r ManagedRegister) wAsmRegister() asm.Register {
	if !r.IsGPRegister() {
		panic(fmt.Sprintf("BUG: %s is not a general purpose register", r))
	}
	return r.asmRegister()
}

func xToAsm(x XRegister) asm.Register {
	switch x {
	case SP:
		return asm_arm64.REG_RSP
	case XZR:
		return asm_arm64.REGZERO
	}
	return asm_arm64.REG_R0 + asm.Register(x)
}

// DWARFReg returns the DWARF number of an X or D register.
func (r ManagedRegister) DWARFReg() dwarf.Reg {
	switch {
	case r.IsXRegister():
		return dwarf.Arm64Core(int(r.AsXRegister()))
	case r.IsDRegister():
		return dwarf.Arm64Fp(int(r.AsDRegister()))
	}
	panic(fmt.Sprintf("BUG: %s has no DWARF number", r))
}
