package optimizing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// valueSetTestEnv holds a single-block graph to create instructions in.
type valueSetTestEnv struct {
	g      *Graph
	blk    *BasicBlock
	arena  *valueSetArena
	params []*Instruction
}

func newValueSetTestEnv(numParams int) *valueSetTestEnv {
	g := NewGraph()
	blk := g.AllocateBasicBlock()
	g.SetEntryBlock(blk)
	env := &valueSetTestEnv{g: g, blk: blk, arena: newValueSetArena(g)}
	for i := 0; i < numParams; i++ {
		p := g.AllocateInstruction().AsParameter(i, TypeReference)
		blk.AddInstruction(p)
		env.params = append(env.params, p)
	}
	return env
}

func (e *valueSetTestEnv) add(instr *Instruction) *Instruction {
	e.blk.AddInstruction(instr)
	return instr
}

func (e *valueSetTestEnv) fieldGet(obj *Instruction, typ Type, offset uint32) *Instruction {
	return e.add(e.g.AllocateInstruction().AsFieldGet(obj, typ, offset, false))
}

func (e *valueSetTestEnv) addOf(x, y *Instruction) *Instruction {
	return e.add(e.g.AllocateInstruction().AsAdd(TypeInt32, x, y))
}

func TestValueSet_AddLookup(t *testing.T) {
	env := newValueSetTestEnv(2)
	p0, p1 := env.params[0], env.params[1]
	set := newValueSet(env.arena)
	require.True(t, set.IsEmpty())
	require.Equal(t, valueSetMinimumNumberOfBuckets, set.NumBuckets())

	get := env.fieldGet(p0, TypeInt32, 8)
	set.Add(get)
	require.Equal(t, 1, set.Size())
	require.True(t, set.Contains(get))

	same := env.fieldGet(p0, TypeInt32, 8)
	require.Equal(t, get, set.Lookup(same))
	require.False(t, set.Contains(same))

	require.Nil(t, set.Lookup(env.fieldGet(p0, TypeInt32, 12)))
	require.Nil(t, set.Lookup(env.fieldGet(p1, TypeInt32, 8)))
	require.Nil(t, set.Lookup(env.fieldGet(p0, TypeInt64, 8)))

	require.Panics(t, func() { set.Add(same) })
}

func TestValueSet_Kill(t *testing.T) {
	env := newValueSetTestEnv(2)
	p0, p1 := env.params[0], env.params[1]
	set := newValueSet(env.arena)
	getInt := env.fieldGet(p0, TypeInt32, 8)
	getLong := env.fieldGet(p0, TypeInt64, 16)
	sum := env.addOf(p0, p1)
	for _, instr := range []*Instruction{getInt, getLong, sum} {
		set.Add(instr)
	}

	set.Kill(SideEffectsFieldWriteOfType(TypeFloat32, false))
	require.Equal(t, 3, set.Size())

	set.Kill(SideEffectsFieldWriteOfType(TypeInt32, false))
	require.Equal(t, 2, set.Size())
	require.False(t, set.Contains(getInt))
	require.True(t, set.Contains(getLong))

	// Nothing kills an instruction without dependencies.
	set.Kill(SideEffectsAll())
	require.Equal(t, 1, set.Size())
	require.True(t, set.Contains(sum))

	set.Clear()
	require.True(t, set.IsEmpty())
	require.Nil(t, set.Lookup(sum))
}

func TestValueSet_copyOnWrite(t *testing.T) {
	env := newValueSetTestEnv(2)
	p0, p1 := env.params[0], env.params[1]
	original := newValueSet(env.arena)
	var gets []*Instruction
	for offset := uint32(0); offset < 16; offset += 4 {
		get := env.fieldGet(p0, TypeInt32, offset)
		original.Add(get)
		gets = append(gets, get)
	}

	cp := newValueSetCopy(env.arena, original)
	require.Equal(t, original.NumBuckets(), cp.NumBuckets())
	require.Equal(t, 4, cp.Size())

	// Changing the copy leaves the original intact, and the other way around.
	cp.Kill(SideEffectsFieldWriteOfType(TypeInt32, false))
	require.True(t, cp.IsEmpty())
	require.Equal(t, 4, original.Size())
	for _, get := range gets {
		require.True(t, original.Contains(get))
	}

	cp2 := newValueSetCopy(env.arena, original)
	extra := env.fieldGet(p1, TypeInt32, 0)
	original.Add(extra)
	require.False(t, cp2.Contains(extra))
	original.Kill(SideEffectsFieldWriteOfType(TypeInt32, false))
	require.Equal(t, 4, cp2.Size())
	for _, get := range gets {
		require.True(t, cp2.Contains(get))
	}
}

func TestValueSet_IntersectWith(t *testing.T) {
	env := newValueSetTestEnv(2)
	p0, p1 := env.params[0], env.params[1]
	getInt := env.fieldGet(p0, TypeInt32, 8)
	getRef := env.fieldGet(p1, TypeReference, 8)
	sum := env.addOf(p0, p1)

	set := newValueSet(env.arena)
	set.Add(getInt)
	set.Add(getRef)
	set.Add(sum)

	pred := newValueSetCopy(env.arena, set)
	pred.Kill(SideEffectsFieldWriteOfType(TypeReference, false))

	set.IntersectWith(pred)
	require.Equal(t, 2, set.Size())
	require.True(t, set.Contains(getInt))
	require.False(t, set.Contains(getRef))
	require.True(t, set.Contains(sum))

	// Pure instructions are kept even if the predecessor does not have them.
	other := newValueSet(env.arena)
	other.Add(getInt)
	other.Add(env.addOf(p1, p1))
	set.IntersectWith(other)
	require.Equal(t, 2, set.Size())
	require.True(t, set.Contains(sum))

	set.IntersectWith(newValueSet(env.arena))
	require.True(t, set.IsEmpty())
}

func TestValueSet_idealBucketCount(t *testing.T) {
	env := newValueSetTestEnv(1)
	set := newValueSet(env.arena)
	for _, tc := range []struct {
		entries, exp int
	}{
		{entries: 1, exp: 8},
		{entries: 5, exp: 8},
		{entries: 6, exp: 16},
		{entries: 10, exp: 16},
		{entries: 11, exp: 16},
		{entries: 12, exp: 32},
		{entries: 40, exp: 64},
	} {
		for set.Size() < tc.entries {
			set.Add(env.fieldGet(env.params[0], TypeInt32, uint32(set.Size()*4)))
		}
		require.Equal(t, tc.exp, set.idealBucketCount(), tc.entries)
	}
}

func TestValueSet_CanHoldCopyOf(t *testing.T) {
	env := newValueSetTestEnv(1)
	small := newValueSet(env.arena)
	big := newValueSet(env.arena)
	for i := 0; i < 6; i++ {
		big.Add(env.fieldGet(env.params[0], TypeInt32, uint32(i*4)))
	}

	require.True(t, small.CanHoldCopyOf(newValueSet(env.arena), true))
	require.False(t, small.CanHoldCopyOf(big, false))

	cp := newValueSetCopy(env.arena, big)
	require.Equal(t, 16, cp.NumBuckets())
	require.Equal(t, 6, cp.Size())
	require.True(t, cp.CanHoldCopyOf(big, true))
	require.True(t, cp.CanHoldCopyOf(small, false))
	require.False(t, cp.CanHoldCopyOf(small, true))

	// Rehashing into a bigger table keeps every entry.
	cp.PopulateFrom(small)
	require.True(t, cp.IsEmpty())
	cp.PopulateFrom(big)
	for _, instr := range valueSetEntries(big) {
		require.True(t, cp.Contains(instr))
	}
	require.Panics(t, func() { small.PopulateFrom(big) })
}

func valueSetEntries(s *ValueSet) (ret []*Instruction) {
	for _, head := range s.buckets {
		for node := head; node != nil; node = node.next {
			ret = append(ret, node.instr)
		}
	}
	return
}

// TestValueSet_random applies random operations to a few sets and checks them
// against a naive list based model after every step.
func TestValueSet_random(t *testing.T) {
	env := newValueSetTestEnv(3)
	var candidates []*Instruction
	// Each shape is created twice so that structurally equal duplicates exist.
	for dup := 0; dup < 2; dup++ {
		for _, p := range env.params {
			for _, typ := range []Type{TypeInt32, TypeInt64, TypeReference} {
				for _, offset := range []uint32{0, 8, 200} {
					candidates = append(candidates, env.fieldGet(p, typ, offset))
				}
				candidates = append(candidates,
					env.add(env.g.AllocateInstruction().AsArrayGet(p, env.params[0], typ)))
			}
			for _, q := range env.params {
				candidates = append(candidates, env.addOf(p, q))
			}
		}
	}
	effects := []SideEffects{
		SideEffectsNone(),
		SideEffectsAll(),
		SideEffectsCanTriggerGC(),
		SideEffectsFieldWriteOfType(TypeInt32, false),
		SideEffectsFieldWriteOfType(TypeReference, false),
		SideEffectsArrayWriteOfType(TypeInt64),
		SideEffectsAllWrites(),
	}

	const numSets = 4
	sets := make([]*ValueSet, numSets)
	models := make([][]*Instruction, numSets)
	for i := range sets {
		sets[i] = newValueSet(env.arena)
	}

	filter := func(model []*Instruction, keep func(*Instruction) bool) []*Instruction {
		var ret []*Instruction
		for _, instr := range model {
			if keep(instr) {
				ret = append(ret, instr)
			}
		}
		return ret
	}
	isPure := func(instr *Instruction) bool { return !instr.sideEffects.HasDependencies() }

	r := rand.New(rand.NewSource(0x5eed))
	for step := 0; step < 1000; step++ {
		i, j := r.Intn(numSets), r.Intn(numSets)
		switch op := r.Intn(10); {
		case op < 4:
			instr := candidates[r.Intn(len(candidates))]
			if sets[i].Lookup(instr) == nil {
				sets[i].Add(instr)
				models[i] = append(models[i], instr)
			}
		case op < 6:
			e := effects[r.Intn(len(effects))]
			sets[i].Kill(e)
			models[i] = filter(models[i], func(instr *Instruction) bool {
				return !instr.sideEffects.MayDependOn(e)
			})
		case op == 6:
			if i != j {
				sets[i] = newValueSetCopy(env.arena, sets[j])
				models[i] = append([]*Instruction(nil), models[j]...)
			}
		case op == 7:
			if i != j && sets[i].CanHoldCopyOf(sets[j], false) {
				sets[i].PopulateFrom(sets[j])
				models[i] = append([]*Instruction(nil), models[j]...)
			}
		case op == 8:
			if i == j {
				break
			}
			sets[i].IntersectWith(sets[j])
			switch {
			case len(models[i]) == 0:
			case len(models[j]) == 0:
				models[i] = nil
			default:
				other := models[j]
				models[i] = filter(models[i], func(instr *Instruction) bool {
					if isPure(instr) {
						return true
					}
					for _, o := range other {
						if o == instr {
							return true
						}
					}
					return false
				})
			}
		default:
			if r.Intn(4) == 0 {
				sets[i].Clear()
				models[i] = nil
			}
		}

		for k, set := range sets {
			model := models[k]
			require.Equal(t, len(model), set.Size(), "step %d set %d", step, k)
			for _, instr := range model {
				require.True(t, set.Contains(instr), "step %d set %d: %s", step, k, instr)
			}
			for _, c := range candidates {
				expected := false
				for _, instr := range model {
					if instr.Equals(c) {
						expected = true
						break
					}
				}
				require.Equal(t, expected, set.Lookup(c) != nil, "step %d set %d: %s", step, k, c)
			}
		}
	}
}
