package jni_x86

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
	asm_x86 "github.com/artquick/quick/internal/asm/x86"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/jni"
)

// Register is a general purpose register, in encoding order.
type Register int8

const (
	EAX Register = iota
	ECX
	EDX
	EBX
	ESP
	EBP
	ESI
	EDI
)

// XmmRegister is an SSE register.
type XmmRegister int8

const (
	XMM0 XmmRegister = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
)

// X87Register is a slot of the x87 register stack, ST0 being the top.
type X87Register int8

const (
	ST0 X87Register = iota
	ST1
	ST2
	ST3
	ST4
	ST5
	ST6
	ST7
)

// RegisterPair is two registers holding a 64-bit value, low word first.
type RegisterPair int8

const (
	EAX_EDX RegisterPair = iota
	EAX_ECX
	EAX_EBX
	EAX_EDI
	EDX_ECX
	EDX_EBX
	EDX_EDI
	ECX_EBX
	ECX_EDI
	EBX_EDI
	// ECX_EDX holds the second long argument of managed code.
	ECX_EDX
)

var registerPairs = [numberOfRegisterPairs][2]Register{
	EAX_EDX: {EAX, EDX},
	EAX_ECX: {EAX, ECX},
	EAX_EBX: {EAX, EBX},
	EAX_EDI: {EAX, EDI},
	EDX_ECX: {EDX, ECX},
	EDX_EBX: {EDX, EBX},
	EDX_EDI: {EDX, EDI},
	ECX_EBX: {ECX, EBX},
	ECX_EDI: {ECX, EDI},
	EBX_EDI: {EBX, EDI},
	ECX_EDX: {ECX, EDX},
}

const (
	numberOfCpuRegisters  = 8
	numberOfXmmRegisters  = 8
	numberOfX87Registers  = 8
	numberOfRegisterPairs = 11

	regIDCpuBase  = 0
	regIDXmmBase  = regIDCpuBase + numberOfCpuRegisters
	regIDX87Base  = regIDXmmBase + numberOfXmmRegisters
	regIDPairBase = regIDX87Base + numberOfX87Registers
	numRegIDs     = regIDPairBase + numberOfRegisterPairs
)

// ManagedRegister is the x86 view of a jni.ManagedRegister.
type ManagedRegister jni.ManagedRegister

// NoRegister is jni.NoRegister.
const NoRegister = ManagedRegister(jni.NoRegister)

// FromJNI converts r, which must be NoRegister or an x86 register.
func FromJNI(r jni.ManagedRegister) ManagedRegister {
	if r != jni.NoRegister && (r < 0 || r >= numRegIDs) {
		panic(fmt.Sprintf("BUG: %v is not an x86 register", r))
	}
	return ManagedRegister(r)
}

// JNI converts r back to the architecture independent type.
func (r ManagedRegister) JNI() jni.ManagedRegister { return jni.ManagedRegister(r) }

func FromCpuRegister(c Register) ManagedRegister { return ManagedRegister(regIDCpuBase + int32(c)) }

func FromXmmRegister(x XmmRegister) ManagedRegister { return ManagedRegister(regIDXmmBase + int32(x)) }

func FromX87Register(s X87Register) ManagedRegister { return ManagedRegister(regIDX87Base + int32(s)) }

func FromRegisterPair(p RegisterPair) ManagedRegister {
	return ManagedRegister(regIDPairBase + int32(p))
}

func (r ManagedRegister) id() int32 { return int32(r) }

func (r ManagedRegister) IsNoRegister() bool { return r == NoRegister }

func (r ManagedRegister) Equals(o ManagedRegister) bool { return r == o }

func (r ManagedRegister) IsCpuRegister() bool {
	return regIDCpuBase <= r.id() && r.id() < regIDXmmBase
}

func (r ManagedRegister) IsXmmRegister() bool {
	return regIDXmmBase <= r.id() && r.id() < regIDX87Base
}

func (r ManagedRegister) IsX87Register() bool {
	return regIDX87Base <= r.id() && r.id() < regIDPairBase
}

func (r ManagedRegister) IsRegisterPair() bool {
	return regIDPairBase <= r.id() && r.id() < numRegIDs
}

func (r ManagedRegister) AsCpuRegister() Register {
	if !r.IsCpuRegister() {
		panic(fmt.Sprintf("BUG: %s is not a cpu register", r))
	}
	return Register(r.id() - regIDCpuBase)
}

func (r ManagedRegister) AsXmmRegister() XmmRegister {
	if !r.IsXmmRegister() {
		panic(fmt.Sprintf("BUG: %s is not an xmm register", r))
	}
	return XmmRegister(r.id() - regIDXmmBase)
}

func (r ManagedRegister) AsX87Register() X87Register {
	if !r.IsX87Register() {
		panic(fmt.Sprintf("BUG: %s is not an x87 register", r))
	}
	return X87Register(r.id() - regIDX87Base)
}

func (r ManagedRegister) AsRegisterPair() RegisterPair {
	if !r.IsRegisterPair() {
		panic(fmt.Sprintf("BUG: %s is not a register pair", r))
	}
	return RegisterPair(r.id() - regIDPairBase)
}

func (r ManagedRegister) AsRegisterPairLow() Register {
	return registerPairs[r.AsRegisterPair()][0]
}

func (r ManagedRegister) AsRegisterPairHigh() Register {
	return registerPairs[r.AsRegisterPair()][1]
}

func (r ManagedRegister) cpuMask() uint32 {
	switch {
	case r.IsCpuRegister():
		return 1 << uint(r.AsCpuRegister())
	case r.IsRegisterPair():
		return 1<<uint(r.AsRegisterPairLow()) | 1<<uint(r.AsRegisterPairHigh())
	}
	return 0
}

// Overlaps returns true if r and o share a cpu register. Xmm and x87 registers only
// overlap themselves.
func (r ManagedRegister) Overlaps(o ManagedRegister) bool {
	if r.IsNoRegister() || o.IsNoRegister() {
		return false
	}
	if r.Equals(o) {
		return true
	}
	return r.cpuMask()&o.cpuMask() != 0
}

var cpuRegisterNames = [numberOfCpuRegisters]string{"EAX", "ECX", "EDX", "EBX", "ESP", "EBP", "ESI", "EDI"}

// String implements fmt.Stringer.
func (r ManagedRegister) String() string {
	switch {
	case r.IsNoRegister():
		return "No Register"
	case r.IsCpuRegister():
		return cpuRegisterNames[r.AsCpuRegister()]
	case r.IsXmmRegister():
		return fmt.Sprintf("XMM%d", r.AsXmmRegister())
	case r.IsX87Register():
		return fmt.Sprintf("ST%d", r.AsX87Register())
	case r.IsRegisterPair():
		return cpuRegisterNames[r.AsRegisterPairLow()] + "_" + cpuRegisterNames[r.AsRegisterPairHigh()]
	}
	return fmt.Sprintf("ManagedRegister(%d)", r.id())
}

func cpuToAsm(c Register) asm.Register { return asm_x86.REG_AX + asm.Register(c) }

func xmmToAsm(x XmmRegister) asm.Register { return asm_x86.REG_X0 + asm.Register(x) }

// asmRegister returns the assembler register of a cpu or xmm register, or of ST0.
func (r ManagedRegister) asmRegister() asm.Register {
	switch {
	case r.IsCpuRegister():
		return cpuToAsm(r.AsCpuRegister())
	case r.IsXmmRegister():
		return xmmToAsm(r.AsXmmRegister())
	case r.IsX87Register() && r.AsX87Register() == ST0:
		return asm_x86.REG_F0
	}
	panic(fmt.Sprintf("BUG: %s has no assembler register", r))
}

// DWARFReg returns the DWARF number of a cpu or xmm register.
func (r ManagedRegister) DWARFReg() dwarf.Reg {
	switch {
	case r.IsCpuRegister():
		return dwarf.X86Core(int(r.AsCpuRegister()))
	case r.IsXmmRegister():
		return dwarf.X86Fp(int(r.AsXmmRegister()))
	}
	panic(fmt.Sprintf("BUG: %s has no DWARF number", r))
}
