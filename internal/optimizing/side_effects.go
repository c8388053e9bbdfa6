package optimizing

import (
	"fmt"
	"strings"
)

// SideEffects is a bit set of what an instruction changes and what it depends on.
//
//   - bits [0, 9): field writes, one bit per Type
//   - bits [9, 18): array writes
//   - bit 18: can trigger GC
//   - bits [19, 28): field reads
//   - bits [28, 37): array reads
//   - bit 37: depends on GC
//
// The "depends on" half mirrors the "changes" half shifted by sideEffectsChangeBits,
// which is what makes MayDependOn a single shift and mask.
type SideEffects uint64

const (
	sideEffectsFieldWriteOffset = 0
	sideEffectsArrayWriteOffset = sideEffectsFieldWriteOffset + sideEffectsTypeBits
	sideEffectsLastBitForWrites = sideEffectsArrayWriteOffset + sideEffectsTypeBits - 1
	sideEffectsCanTriggerGCBit  = sideEffectsLastBitForWrites + 1
	sideEffectsChangeBits       = sideEffectsCanTriggerGCBit + 1

	sideEffectsFieldReadOffset = sideEffectsCanTriggerGCBit + 1
	sideEffectsArrayReadOffset = sideEffectsFieldReadOffset + sideEffectsTypeBits
	sideEffectsLastBitForReads = sideEffectsArrayReadOffset + sideEffectsTypeBits - 1
	sideEffectsDependsOnGCBit  = sideEffectsLastBitForReads + 1
	sideEffectsLastBit         = sideEffectsDependsOnGCBit
	sideEffectsDependOnBits    = sideEffectsLastBit + 1 - sideEffectsChangeBits

	// sideEffectsTypeBits is the number of types with their own field/array bit.
	sideEffectsTypeBits = 9

	sideEffectsAllChangeBits   SideEffects = 1<<sideEffectsChangeBits - 1
	sideEffectsAllDependOnBits SideEffects = (1<<sideEffectsDependOnBits - 1) << sideEffectsChangeBits
	sideEffectsAllWrites       SideEffects = (1<<(sideEffectsLastBitForWrites+1-sideEffectsFieldWriteOffset) - 1) << sideEffectsFieldWriteOffset
	sideEffectsAllReads        SideEffects = (1<<(sideEffectsLastBitForReads+1-sideEffectsFieldReadOffset) - 1) << sideEffectsFieldReadOffset
)

// SideEffectsNone returns SideEffects with nothing set.
func SideEffectsNone() SideEffects { return 0 }

// SideEffectsAll returns SideEffects that change and depend on everything.
func SideEffectsAll() SideEffects { return sideEffectsAllChangeBits | sideEffectsAllDependOnBits }

// SideEffectsAllChanges returns every "changes" bit.
func SideEffectsAllChanges() SideEffects { return sideEffectsAllChangeBits }

// SideEffectsAllDependencies returns every "depends on" bit.
func SideEffectsAllDependencies() SideEffects { return sideEffectsAllDependOnBits }

// SideEffectsAllExceptGCDependency returns All without the GC dependency.
func SideEffectsAllExceptGCDependency() SideEffects {
	return SideEffectsAllWritesAndReads().Union(SideEffectsCanTriggerGC())
}

// SideEffectsAllWritesAndReads returns every field and array write and read.
func SideEffectsAllWritesAndReads() SideEffects { return sideEffectsAllWrites | sideEffectsAllReads }

// SideEffectsAllWrites returns every field and array write.
func SideEffectsAllWrites() SideEffects { return sideEffectsAllWrites }

// SideEffectsAllReads returns every field and array read.
func SideEffectsAllReads() SideEffects { return sideEffectsAllReads }

// SideEffectsFieldWriteOfType returns the effect of writing a field of the given type.
// Volatile accesses order against every other memory access.
func SideEffectsFieldWriteOfType(typ Type, volatile bool) SideEffects {
	if volatile {
		return SideEffectsAllWritesAndReads()
	}
	return typeFlag(typ, sideEffectsFieldWriteOffset)
}

// SideEffectsArrayWriteOfType returns the effect of writing an array element of the given type.
func SideEffectsArrayWriteOfType(typ Type) SideEffects {
	return typeFlag(typ, sideEffectsArrayWriteOffset)
}

// SideEffectsFieldReadOfType returns the dependency of reading a field of the given type.
func SideEffectsFieldReadOfType(typ Type, volatile bool) SideEffects {
	if volatile {
		return SideEffectsAllWritesAndReads()
	}
	return typeFlag(typ, sideEffectsFieldReadOffset)
}

// SideEffectsArrayReadOfType returns the dependency of reading an array element of the given type.
func SideEffectsArrayReadOfType(typ Type) SideEffects {
	return typeFlag(typ, sideEffectsArrayReadOffset)
}

// SideEffectsCanTriggerGC returns the effect of an instruction that may suspend for GC.
func SideEffectsCanTriggerGC() SideEffects { return 1 << sideEffectsCanTriggerGCBit }

// SideEffectsDependsOnGC returns the dependency of an instruction whose result a GC may move.
func SideEffectsDependsOnGC() SideEffects { return 1 << sideEffectsDependsOnGCBit }

// Union returns the bits set in either.
func (s SideEffects) Union(other SideEffects) SideEffects { return s | other }

// Exclusion returns s without the bits of other.
func (s SideEffects) Exclusion(other SideEffects) SideEffects { return s &^ other }

// Add sets the bits of other in place.
func (s *SideEffects) Add(other SideEffects) { *s |= other }

// Includes returns true if every bit of other is set in s.
func (s SideEffects) Includes(other SideEffects) bool { return s&other == other }

// HasSideEffects returns true if any "changes" bit is set.
func (s SideEffects) HasSideEffects() bool { return s&sideEffectsAllChangeBits != 0 }

// HasDependencies returns true if any "depends on" bit is set.
func (s SideEffects) HasDependencies() bool { return s&sideEffectsAllDependOnBits != 0 }

// DoesNothing returns true if no bit is set.
func (s SideEffects) DoesNothing() bool { return s == 0 }

// DoesAnyWrite returns true if any field or array write bit is set.
func (s SideEffects) DoesAnyWrite() bool { return s&sideEffectsAllWrites != 0 }

// DoesAnyRead returns true if any field or array read bit is set.
func (s SideEffects) DoesAnyRead() bool { return s&sideEffectsAllReads != 0 }

// DoesAllReadWrite returns true if every write and read bit is set.
func (s SideEffects) DoesAllReadWrite() bool {
	return s&(sideEffectsAllWrites|sideEffectsAllReads) == sideEffectsAllWrites|sideEffectsAllReads
}

// DoesAll returns true if s equals SideEffectsAll.
func (s SideEffects) DoesAll() bool { return s == SideEffectsAll() }

// Equals returns true if both have the same bits.
func (s SideEffects) Equals(other SideEffects) bool { return s == other }

// MayDependOn returns true if something s depends on may be changed by other.
func (s SideEffects) MayDependOn(other SideEffects) bool {
	dependOn := (s & sideEffectsAllDependOnBits) >> sideEffectsChangeBits
	return other&dependOn != 0
}

// sideEffectsDebug names the type of each field/array bit; '_' is the can-trigger-GC bit.
const sideEffectsDebug = "LZBCSIJFDLZBCSIJFD_LZBCSIJFDLZBCSIJFD"

// String implements fmt.Stringer. Groups are printed from the highest bit down:
// |depends on GC|array reads|field reads|can trigger GC|array writes|field writes|.
func (s SideEffects) String() string {
	var b strings.Builder
	b.WriteByte('|')
	for bit := sideEffectsLastBit; bit >= 0; bit-- {
		set := (s>>uint(bit))&1 != 0
		if bit == sideEffectsDependsOnGCBit || bit == sideEffectsCanTriggerGCBit {
			if set {
				b.WriteString("GC")
			}
			b.WriteByte('|')
			continue
		}
		if set {
			b.WriteByte(sideEffectsDebug[bit])
		}
		switch bit {
		case sideEffectsFieldWriteOffset, sideEffectsArrayWriteOffset, sideEffectsFieldReadOffset, sideEffectsArrayReadOffset:
			b.WriteByte('|')
		}
	}
	return b.String()
}

func typeFlag(typ Type, offset int) SideEffects {
	var shift int
	switch typ {
	case TypeReference:
		shift = 0
	case TypeBool:
		shift = 1
	case TypeInt8:
		shift = 2
	case TypeUint16:
		shift = 3
	case TypeInt16:
		shift = 4
	case TypeInt32:
		shift = 5
	case TypeInt64:
		shift = 6
	case TypeFloat32:
		shift = 7
	case TypeFloat64:
		shift = 8
	default:
		panic(fmt.Sprintf("BUG: no side effects bit for type %s", typ))
	}
	return 1 << uint(shift+offset)
}
