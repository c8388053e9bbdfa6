package jni_arm

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
	asm_arm "github.com/artquick/quick/internal/asm/arm"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/jni"
)

// Register is a core register.
type Register int8

const (
	R0 Register = iota
	R1
	R2
	R3
	R4
	R5
	R6
	R7
	R8
	R9
	R10
	R11
	R12
	SP
	LR
	PC
)

const (
	// TR holds the current Thread.
	TR = R9
	// MR is the marking register of the Baker read barrier.
	MR = R8
	// IP is the intra-procedure-call scratch register.
	IP = R12
)

// SRegister is a single precision VFP register.
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

// DRegister is a double precision VFP register. Only D0-D15 are used, each overlapping
// two S registers.
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
)

// RegisterPair is two core registers holding a 64-bit value, low word first.
type RegisterPair int8

const (
	R0_R1 RegisterPair = iota
	R2_R3
	R4_R5
	R6_R7
	// R1_R2 is used by the managed code for a long argument following the method.
	R1_R2
)

var registerPairs = [numberOfRegisterPairs][2]Register{
	R0_R1: {R0, R1},
	R2_R3: {R2, R3},
	R4_R5: {R4, R5},
	R6_R7: {R6, R7},
	R1_R2: {R1, R2},
}

const (
	numberOfCoreRegisters = 16
	numberOfSRegisters    = 32
	numberOfDRegisters    = 16
	numberOfRegisterPairs = 5

	regIDCoreBase = 0
	regIDSBase    = regIDCoreBase + numberOfCoreRegisters
	regIDDBase    = regIDSBase + numberOfSRegisters
	regIDPairBase = regIDDBase + numberOfDRegisters
	numRegIDs     = regIDPairBase + numberOfRegisterPairs
)

// ManagedRegister is the arm view of a jni.ManagedRegister: a core, S or D register
// or a core register pair.
type ManagedRegister jni.ManagedRegister

// NoRegister is jni.NoRegister.
const NoRegister = ManagedRegister(jni.NoRegister)

// FromJNI converts r, which must be NoRegister or an arm register.
func FromJNI(r jni.ManagedRegister) ManagedRegister {
	if r != jni.NoRegister && (r < 0 || r >= numRegIDs) {
		panic(fmt.Sprintf("BUG: %v is not an arm register", r))
	}
	return ManagedRegister(r)
}

// JNI converts r back to the architecture independent type.
func (r ManagedRegister) JNI() jni.ManagedRegister { return jni.ManagedRegister(r) }

// FromCoreRegister returns the managed register of c.
func FromCoreRegister(c Register) ManagedRegister {
	return ManagedRegister(regIDCoreBase + int32(c))
}

// FromSRegister returns the managed register of s.
func FromSRegister(s SRegister) ManagedRegister {
	return ManagedRegister(regIDSBase + int32(s))
}

// FromDRegister returns the managed register of d.
func FromDRegister(d DRegister) ManagedRegister {
	return ManagedRegister(regIDDBase + int32(d))
}

// FromRegisterPair returns the managed register of p.
func FromRegisterPair(p RegisterPair) ManagedRegister {
	return ManagedRegister(regIDPairBase + int32(p))
}

func (r ManagedRegister) id() int32 { return int32(r) }

// IsNoRegister returns true for NoRegister.
func (r ManagedRegister) IsNoRegister() bool { return r == NoRegister }

// Equals returns true if r and o are the same register.
func (r ManagedRegister) Equals(o ManagedRegister) bool { return r == o }

func (r ManagedRegister) IsCoreRegister() bool {
	return regIDCoreBase <= r.id() && r.id() < regIDSBase
}

func (r ManagedRegister) IsSRegister() bool {
	return regIDSBase <= r.id() && r.id() < regIDDBase
}

func (r ManagedRegister) IsDRegister() bool {
	return regIDDBase <= r.id() && r.id() < regIDPairBase
}

func (r ManagedRegister) IsRegisterPair() bool {
	return regIDPairBase <= r.id() && r.id() < numRegIDs
}

// IsOverlappingDRegister returns true for a D register, all of which alias two S
// registers here.
func (r ManagedRegister) IsOverlappingDRegister() bool {
	return r.IsDRegister()
}

func (r ManagedRegister) AsCoreRegister() Register {
	if !r.IsCoreRegister() {
		panic(fmt.Sprintf("BUG: %s is not a core register", r))
	}
	return Register(r.id() - regIDCoreBase)
}

func (r ManagedRegister) AsSRegister() SRegister {
	if !r.IsSRegister() {
		panic(fmt.Sprintf("BUG: %s is not an S register", r))
	}
	return SRegister(r.id() - regIDSBase)
}

func (r ManagedRegister) AsDRegister() DRegister {
	if !r.IsDRegister() {
		panic(fmt.Sprintf("BUG: %s is not a D register", r))
	}
	return DRegister(r.id() - regIDDBase)
}

func (r ManagedRegister) AsRegisterPair() RegisterPair {
	if !r.IsRegisterPair() {
		panic(fmt.Sprintf("BUG: %s is not a register pair", r))
	}
	return RegisterPair(r.id() - regIDPairBase)
}

// AsOverlappingDRegisterLow returns the low S register of a D register.
func (r ManagedRegister) AsOverlappingDRegisterLow() SRegister {
	return SRegister(r.AsDRegister() * 2)
}

// AsOverlappingDRegisterHigh returns the high S register of a D register.
func (r ManagedRegister) AsOverlappingDRegisterHigh() SRegister {
	return SRegister(r.AsDRegister()*2 + 1)
}

// AsRegisterPairLow returns the core register holding the low word of a pair.
func (r ManagedRegister) AsRegisterPairLow() Register {
	return registerPairs[r.AsRegisterPair()][0]
}

// AsRegisterPairHigh returns the core register holding the high word of a pair.
func (r ManagedRegister) AsRegisterPairHigh() Register {
	return registerPairs[r.AsRegisterPair()][1]
}

// coreMask returns the core registers r occupies.
func (r ManagedRegister) coreMask() uint32 {
	switch {
	case r.IsCoreRegister():
		return 1 << uint(r.AsCoreRegister())
	case r.IsRegisterPair():
		return 1<<uint(r.AsRegisterPairLow()) | 1<<uint(r.AsRegisterPairHigh())
	}
	return 0
}

// sMask returns the S registers r occupies.
func (r ManagedRegister) sMask() uint32 {
	switch {
	case r.IsSRegister():
		return 1 << uint(r.AsSRegister())
	case r.IsDRegister():
		return 3 << uint(r.AsDRegister()*2)
	}
	return 0
}

// Overlaps returns true if writing r may change o: a pair and its halves, or a D
// register and its two S registers.
func (r ManagedRegister) Overlaps(o ManagedRegister) bool {
	if r.IsNoRegister() || o.IsNoRegister() {
		return false
	}
	return r.coreMask()&o.coreMask() != 0 || r.sMask()&o.sMask() != 0
}

var coreRegisterNames = [numberOfCoreRegisters]string{
	"R0", "R1", "R2", "R3", "R4", "R5", "R6", "R7",
	"R8", "R9", "R10", "R11", "R12", "SP", "LR", "PC",
}

// String implements fmt.Stringer.
func (r ManagedRegister) String() string {
	switch {
	case r.IsNoRegister():
		return "No Register"
	case r.IsCoreRegister():
		return coreRegisterNames[r.AsCoreRegister()]
	case r.IsSRegister():
		return fmt.Sprintf("S%d", r.AsSRegister())
	case r.IsDRegister():
		return fmt.Sprintf("D%d", r.AsDRegister())
	case r.IsRegisterPair():
		return coreRegisterNames[r.AsRegisterPairLow()] + "_" + coreRegisterNames[r.AsRegisterPairHigh()]
	}
	return fmt.Sprintf("ManagedRegister(%d)", r.id())
}

func coreToAsm(c Register) asm.Register { return asm_arm.REG_R0 + asm.Register(c) }

func sToAsm(s SRegister) asm.Register { return asm_arm.REG_S0 + asm.Register(s) }

func dToAsm(d DRegister) asm.Register { return asm_arm.REG_F0 + asm.Register(d) }

// asmRegister returns the low-level assembler register of a core, S or D register.
func (r ManagedRegister) asmRegister() asm.Register {
	switch {
	case r.IsCoreRegister():
		return coreToAsm(r.AsCoreRegister())
	case r.IsSRegister():
		return sToAsm(r.AsSRegister())
	case r.IsDRegister():
		return dToAsm(r.AsDRegister())
	}
	panic(fmt.Sprintf("BUG: %s has no assembler register", r))
}

// DWARFReg returns the DWARF number of a core or S register. D registers are described
// by their S halves.
func (r ManagedRegister) DWARFReg() dwarf.Reg {
	switch {
	case r.IsCoreRegister():
		return dwarf.ArmCore(int(r.AsCoreRegister()))
	case r.IsSRegister():
		return dwarf.ArmFp(int(r.AsSRegister()))
	}
	panic(fmt.Sprintf("BUG: %s has no DWARF number", r))
}
