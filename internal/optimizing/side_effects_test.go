package optimizing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var sideEffectsTypes = []Type{
	TypeReference, TypeBool, TypeInt8, TypeUint16, TypeInt16,
	TypeInt32, TypeInt64, TypeFloat32, TypeFloat64,
}

func TestSideEffects_String(t *testing.T) {
	for _, tc := range []struct {
		effects SideEffects
		exp     string
	}{
		{effects: SideEffectsNone(), exp: "|||||||"},
		{effects: SideEffectsAll(), exp: "|GC|DFJISCBZL|DFJISCBZL|GC|DFJISCBZL|DFJISCBZL|"},
		{effects: SideEffectsAllWrites(), exp: "|||||DFJISCBZL|DFJISCBZL|"},
		{effects: SideEffectsAllReads(), exp: "||DFJISCBZL|DFJISCBZL||||"},
		{effects: SideEffectsCanTriggerGC(), exp: "||||GC|||"},
		{effects: SideEffectsDependsOnGC(), exp: "|GC||||||"},
		{effects: SideEffectsFieldWriteOfType(TypeInt32, false), exp: "||||||I|"},
		{effects: SideEffectsArrayWriteOfType(TypeFloat64), exp: "|||||D||"},
		{effects: SideEffectsFieldReadOfType(TypeBool, false), exp: "|||Z||||"},
		{effects: SideEffectsArrayReadOfType(TypeReference), exp: "||L|||||"},
		{
			effects: SideEffectsFieldWriteOfType(TypeInt64, false).Union(SideEffectsArrayReadOfType(TypeUint16)),
			exp:     "||C||||J|",
		},
	} {
		require.Equal(t, tc.exp, tc.effects.String())
	}
}

func TestSideEffects_dependencies(t *testing.T) {
	for _, typ := range sideEffectsTypes {
		write := SideEffectsFieldWriteOfType(typ, false)
		read := SideEffectsFieldReadOfType(typ, false)
		arrayWrite := SideEffectsArrayWriteOfType(typ)
		arrayRead := SideEffectsArrayReadOfType(typ)

		require.True(t, read.MayDependOn(write), typ.String())
		require.False(t, write.MayDependOn(read), typ.String())
		require.True(t, arrayRead.MayDependOn(arrayWrite), typ.String())
		require.False(t, arrayRead.MayDependOn(write), typ.String())
		require.False(t, read.MayDependOn(arrayWrite), typ.String())

		require.True(t, write.DoesAnyWrite())
		require.False(t, write.DoesAnyRead())
		require.True(t, read.DoesAnyRead())
		require.True(t, write.HasSideEffects())
		require.False(t, write.HasDependencies())
		require.True(t, read.HasDependencies())
		require.False(t, read.HasSideEffects())

		for _, other := range sideEffectsTypes {
			if other != typ {
				require.False(t, read.MayDependOn(SideEffectsFieldWriteOfType(other, false)))
			}
		}
	}
}

func TestSideEffects_volatile(t *testing.T) {
	volatileWrite := SideEffectsFieldWriteOfType(TypeInt32, true)
	volatileRead := SideEffectsFieldReadOfType(TypeInt32, true)
	require.True(t, volatileWrite.DoesAllReadWrite())
	require.True(t, volatileRead.DoesAllReadWrite())
	require.True(t, volatileRead.MayDependOn(SideEffectsArrayWriteOfType(TypeFloat32)))
	require.True(t, SideEffectsFieldReadOfType(TypeInt8, false).MayDependOn(volatileWrite))
	require.False(t, volatileRead.MayDependOn(SideEffectsCanTriggerGC()))
}

func TestSideEffects_gc(t *testing.T) {
	require.True(t, SideEffectsDependsOnGC().MayDependOn(SideEffectsCanTriggerGC()))
	require.False(t, SideEffectsCanTriggerGC().MayDependOn(SideEffectsDependsOnGC()))
	require.False(t, SideEffectsAllReads().MayDependOn(SideEffectsCanTriggerGC()))
	require.True(t, SideEffectsAll().MayDependOn(SideEffectsCanTriggerGC()))
	require.False(t, SideEffectsAllExceptGCDependency().MayDependOn(SideEffectsCanTriggerGC()))
	require.True(t, SideEffectsAllExceptGCDependency().Includes(SideEffectsCanTriggerGC()))
}

func TestSideEffects_setOperations(t *testing.T) {
	all := SideEffectsAll()
	require.True(t, all.DoesAll())
	require.True(t, all.DoesAllReadWrite())
	require.True(t, SideEffectsNone().DoesNothing())
	require.True(t, SideEffectsAllChanges().Union(SideEffectsAllDependencies()).Equals(all))
	require.True(t, SideEffectsAllWritesAndReads().Includes(SideEffectsAllWrites()))
	require.False(t, SideEffectsAllWrites().Includes(SideEffectsAllWritesAndReads()))
	require.True(t, all.Exclusion(SideEffectsAllDependencies()).Equals(SideEffectsAllChanges()))
	require.True(t, all.Includes(SideEffectsNone()))

	e := SideEffectsNone()
	e.Add(SideEffectsFieldWriteOfType(TypeInt32, false))
	e.Add(SideEffectsCanTriggerGC())
	require.True(t, e.DoesAnyWrite())
	require.True(t, e.Includes(SideEffectsCanTriggerGC()))
	require.False(t, e.DoesAll())
	require.True(t, e.Exclusion(SideEffectsCanTriggerGC()).Equals(SideEffectsFieldWriteOfType(TypeInt32, false)))
}

func TestType_String(t *testing.T) {
	require.Equal(t, "ref", TypeReference.String())
	require.Equal(t, "u16", TypeUint16.String())
	require.Equal(t, "Type(42)", Type(42).String())
	require.True(t, TypeFloat32.IsFloatingPoint())
	require.False(t, TypeInt64.IsFloatingPoint())
}
