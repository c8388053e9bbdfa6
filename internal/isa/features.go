package isa

import (
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/sys/cpu"
)

// Features describes the optional parts of an instruction set that code
// generation may rely on. The zero value of the per-ISA flags is the most
// conservative baseline.
type Features struct {
	set     InstructionSet
	variant string

	// arm
	hasDivideInstruction bool
	hasAtomicLdrdStrd    bool

	// arm64
	hasLSE   bool
	hasCRC32 bool

	// x86 and x86_64
	hasSSE4_1            bool
	hasSSE4_2            bool
	hasAVX               bool
	hasAVX2              bool
	hasPOPCNT            bool
	prefersLockedAddSync bool
}

// x86VariantsPreferLockedAddSync lists the x86 variants on which a locked add
// to the stack is a cheaper full barrier than mfence.
var x86VariantsPreferLockedAddSync = []string{"atom", "sandybridge", "silvermont", "kabylake"}

// FromVariant returns the features of a named CPU variant, e.g. "cortex-a53",
// "silvermont" or "generic".
func FromVariant(set InstructionSet, variant string) (*Features, error) {
	f := &Features{set: set, variant: variant}
	switch set {
	case Arm, Thumb2:
		switch variant {
		case "generic", "default":
		case "cortex-a7", "cortex-a15", "cortex-a17", "cortex-a53", "cortex-a57", "krait", "kryo":
			f.hasDivideInstruction = true
			f.hasAtomicLdrdStrd = true
		default:
			return nil, fmt.Errorf("unknown %s variant %q", set, variant)
		}
	case Arm64:
		switch variant {
		case "generic", "default", "cortex-a53", "cortex-a57", "cortex-a72", "cortex-a73", "kryo":
		case "cortex-a55", "cortex-a75", "cortex-a76":
			f.hasLSE = true
			f.hasCRC32 = true
		default:
			return nil, fmt.Errorf("unknown %s variant %q", set, variant)
		}
	case X86, X86_64:
		switch variant {
		case "generic", "default", "x86_64":
		case "atom":
		case "sandybridge", "silvermont":
			f.hasSSE4_1, f.hasSSE4_2, f.hasPOPCNT = true, true, true
		case "kabylake", "haswell":
			f.hasSSE4_1, f.hasSSE4_2, f.hasPOPCNT = true, true, true
			f.hasAVX, f.hasAVX2 = true, true
		default:
			return nil, fmt.Errorf("unknown %s variant %q", set, variant)
		}
		for _, v := range x86VariantsPreferLockedAddSync {
			if v == variant {
				f.prefersLockedAddSync = true
			}
		}
	default:
		return nil, fmt.Errorf("no features for %s", set)
	}
	return f, nil
}

// FromHost returns the features of the CPU this process runs on, for the
// instruction set matching runtime.GOARCH.
func FromHost() (*Features, error) {
	f := &Features{variant: "host"}
	switch runtime.GOARCH {
	case "arm":
		f.set = Thumb2
		f.hasDivideInstruction = cpu.ARM.HasIDIVA
		f.hasAtomicLdrdStrd = cpu.ARM.HasLPAE
	case "arm64":
		f.set = Arm64
		f.hasLSE = cpu.ARM64.HasATOMICS
		f.hasCRC32 = cpu.ARM64.HasCRC32
	case "386", "amd64":
		if runtime.GOARCH == "386" {
			f.set = X86
		} else {
			f.set = X86_64
		}
		f.hasSSE4_1 = cpu.X86.HasSSE41
		f.hasSSE4_2 = cpu.X86.HasSSE42
		f.hasAVX = cpu.X86.HasAVX
		f.hasAVX2 = cpu.X86.HasAVX2
		f.hasPOPCNT = cpu.X86.HasPOPCNT
	default:
		return nil, fmt.Errorf("unsupported host architecture %s", runtime.GOARCH)
	}
	return f, nil
}

// InstructionSet returns the instruction set these features describe.
func (f *Features) InstructionSet() InstructionSet {
	return f.set
}

// Variant returns the variant name the features were created from.
func (f *Features) Variant() string {
	return f.variant
}

// HasDivideInstruction returns true if arm sdiv/udiv are available.
func (f *Features) HasDivideInstruction() bool { return f.hasDivideInstruction }

// HasAtomicLdrdStrd returns true if arm ldrd/strd are single-copy atomic.
func (f *Features) HasAtomicLdrdStrd() bool { return f.hasAtomicLdrdStrd }

// HasLSE returns true if the arm64 large system extension atomics are available.
func (f *Features) HasLSE() bool { return f.hasLSE }

// HasCRC32 returns true if the arm64 crc32 instructions are available.
func (f *Features) HasCRC32() bool { return f.hasCRC32 }

// HasSSE4_1 returns true if SSE4.1 is available.
func (f *Features) HasSSE4_1() bool { return f.hasSSE4_1 }

// HasSSE4_2 returns true if SSE4.2 is available.
func (f *Features) HasSSE4_2() bool { return f.hasSSE4_2 }

// HasAVX returns true if AVX is available.
func (f *Features) HasAVX() bool { return f.hasAVX }

// HasAVX2 returns true if AVX2 is available.
func (f *Features) HasAVX2() bool { return f.hasAVX2 }

// HasPOPCNT returns true if popcnt is available.
func (f *Features) HasPOPCNT() bool { return f.hasPOPCNT }

// PrefersLockedAddSync returns true if "lock addl $0, (sp)" should be used
// as a full memory barrier instead of mfence.
func (f *Features) PrefersLockedAddSync() bool { return f.prefersLockedAddSync }

// String implements fmt.Stringer.
func (f *Features) String() string {
	var flags []string
	add := func(name string, on bool) {
		if on {
			flags = append(flags, name)
		} else {
			flags = append(flags, "-"+name)
		}
	}
	switch f.set {
	case Arm, Thumb2:
		add("div", f.hasDivideInstruction)
		add("atomic_ldrd_strd", f.hasAtomicLdrdStrd)
	case Arm64:
		add("lse", f.hasLSE)
		add("crc", f.hasCRC32)
	case X86, X86_64:
		add("sse4.1", f.hasSSE4_1)
		add("sse4.2", f.hasSSE4_2)
		add("avx", f.hasAVX)
		add("avx2", f.hasAVX2)
		add("popcnt", f.hasPOPCNT)
		add("lock_add", f.prefersLockedAddSync)
	}
	return strings.Join(flags, ",")
}
