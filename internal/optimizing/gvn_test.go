package optimizing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// insertBeforeTail adds instr to blk right before its control-flow instruction.
func insertBeforeTail(blk *BasicBlock, instr *Instruction) *Instruction {
	blk.InsertInstructionBefore(instr, blk.Tail())
	return instr
}

// addParameter appends a parameter of type typ to the entry block of g.
func addParameter(g *Graph, index int, typ Type) *Instruction {
	return insertBeforeTail(g.EntryBlock(), g.AllocateInstruction().AsParameter(index, typ))
}

func runGVN(g *Graph) bool {
	g.BuildDominatorTree()
	sideEffects := NewSideEffectsAnalysis(g)
	sideEffects.Run()
	return NewGVNOptimization(g, sideEffects).Run()
}

func TestGVN_localFieldElimination(t *testing.T) {
	g := constructGraphFromEdges(t, edgesCase{0: {1}})
	obj := addParameter(g, 1, TypeReference)
	blk := g.Block(1)

	first := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeReference, 42, false))
	toRemove := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeReference, 42, false))
	differentOffset := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeReference, 43, false))
	// Kills the reference field reads.
	insertBeforeTail(blk, g.AllocateInstruction().AsFieldSet(obj, obj, TypeReference, 42, false))
	useAfterKill := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeReference, 42, false))

	require.True(t, runGVN(g))
	require.Equal(t, blk, first.Block())
	require.Nil(t, toRemove.Block())
	require.Equal(t, blk, differentOffset.Block())
	require.Equal(t, blk, useAfterKill.Block())
}

func TestGVN_globalFieldElimination(t *testing.T) {
	//     1
	//    / \
	//   2   3
	//    \ /
	//     4
	g := constructGraphFromEdges(t, edgesCase{0: {1}, 1: {2, 3}, 2: {4}, 3: {4}})
	obj := addParameter(g, 1, TypeReference)
	newGet := func(blk *BasicBlock) *Instruction {
		return insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeBool, 42, false))
	}
	kept := newGet(g.Block(1))
	removed := []*Instruction{newGet(g.Block(2)), newGet(g.Block(3)), newGet(g.Block(4))}

	require.True(t, runGVN(g))
	require.Equal(t, g.Block(1), kept.Block())
	for _, instr := range removed {
		require.Nil(t, instr.Block(), instr.String())
	}
}

func TestGVN_loopFieldElimination(t *testing.T) {
	// 1 -> 2 -> 4
	//      ^ \
	//      |  3
	//      +--/
	g := constructGraphFromEdges(t, edgesCase{0: {1}, 1: {2}, 2: {3, 4}, 3: {2}})
	obj := addParameter(g, 1, TypeReference)
	flag := addParameter(g, 2, TypeBool)
	preHeader, header, body, exit := g.Block(1), g.Block(2), g.Block(3), g.Block(4)

	getInPreHeader := insertBeforeTail(preHeader, g.AllocateInstruction().AsFieldGet(obj, TypeBool, 42, false))
	getInHeader := insertBeforeTail(header, g.AllocateInstruction().AsFieldGet(obj, TypeBool, 42, false))
	// The write in the body prevents the gets of the header and of the body
	// from being eliminated.
	fieldSet := insertBeforeTail(body, g.AllocateInstruction().AsFieldSet(obj, flag, TypeBool, 42, false))
	getInBody := insertBeforeTail(body, g.AllocateInstruction().AsFieldGet(obj, TypeBool, 42, false))
	getInExit := insertBeforeTail(exit, g.AllocateInstruction().AsFieldGet(obj, TypeBool, 42, false))

	require.True(t, runGVN(g))
	require.Equal(t, preHeader, getInPreHeader.Block())
	require.Equal(t, header, getInHeader.Block())
	require.Equal(t, body, getInBody.Block())
	// Nothing writes between the header and the exit.
	require.Nil(t, getInExit.Block())

	body.RemoveInstruction(fieldSet)
	sideEffects := NewSideEffectsAnalysis(g)
	sideEffects.Run()
	require.True(t, NewGVNOptimization(g, sideEffects).Run())
	require.Equal(t, preHeader, getInPreHeader.Block())
	require.Nil(t, getInHeader.Block())
	require.Nil(t, getInBody.Block())
}

func TestGVN_arithmetic(t *testing.T) {
	g := constructGraphFromEdges(t, edgesCase{0: {1}})
	obj := addParameter(g, 1, TypeReference)
	x := addParameter(g, 2, TypeInt32)
	y := addParameter(g, 3, TypeInt32)
	blk := g.Block(1)
	newInstr := func() *Instruction { return g.AllocateInstruction() }

	sum := insertBeforeTail(blk, newInstr().AsAdd(TypeInt32, x, y))
	swapped := insertBeforeTail(blk, newInstr().AsAdd(TypeInt32, y, x))
	diff := insertBeforeTail(blk, newInstr().AsSub(TypeInt32, x, y))
	// Subtraction is not commutative.
	diffSwapped := insertBeforeTail(blk, newInstr().AsSub(TypeInt32, y, x))
	five := insertBeforeTail(blk, newInstr().AsIntConstant(TypeInt32, 5))
	fiveAgain := insertBeforeTail(blk, newInstr().AsIntConstant(TypeInt32, 5))
	six := insertBeforeTail(blk, newInstr().AsIntConstant(TypeInt32, 6))
	plusFive := insertBeforeTail(blk, newInstr().AsAdd(TypeInt32, five, x))
	plusFiveAgain := insertBeforeTail(blk, newInstr().AsAdd(TypeInt32, x, fiveAgain))
	plusSix := insertBeforeTail(blk, newInstr().AsAdd(TypeInt32, x, six))
	result := insertBeforeTail(blk, newInstr().AsXor(TypeInt32, plusFiveAgain, swapped))
	insertBeforeTail(blk, newInstr().AsFieldSet(obj, result, TypeInt32, 8, false))

	require.True(t, runGVN(g))
	for _, instr := range []*Instruction{sum, diff, diffSwapped, five, six, plusFive, plusSix, result} {
		require.Equal(t, blk, instr.Block(), instr.String())
	}
	for _, instr := range []*Instruction{swapped, fiveAgain, plusFiveAgain} {
		require.Nil(t, instr.Block(), instr.String())
	}
	require.Equal(t, []*Instruction{x, five}, plusFive.Inputs())
	require.Equal(t, []*Instruction{sum, plusFive}, result.Inputs())
	require.False(t, swapped.HasUses())
}

func TestGVN_invokeKillsFieldGets(t *testing.T) {
	g := constructGraphFromEdges(t, edgesCase{0: {1}})
	obj := addParameter(g, 1, TypeReference)
	x := addParameter(g, 2, TypeInt32)
	blk := g.Block(1)

	get := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeInt32, 8, false))
	length := insertBeforeTail(blk, g.AllocateInstruction().AsArrayLength(obj))
	sum := insertBeforeTail(blk, g.AllocateInstruction().AsAdd(TypeInt32, x, x))
	insertBeforeTail(blk, g.AllocateInstruction().AsInvoke(TypeVoid, obj))
	getAfterCall := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeInt32, 8, false))
	lengthAfterCall := insertBeforeTail(blk, g.AllocateInstruction().AsArrayLength(obj))
	sumAfterCall := insertBeforeTail(blk, g.AllocateInstruction().AsAdd(TypeInt32, x, x))

	require.True(t, runGVN(g))
	require.Equal(t, blk, get.Block())
	require.Equal(t, blk, getAfterCall.Block())
	require.Equal(t, blk, length.Block())
	require.Equal(t, blk, sum.Block())
	// Array lengths and additions depend on nothing.
	require.Nil(t, lengthAfterCall.Block())
	require.Nil(t, sumAfterCall.Block())
}

func TestGVN_volatileFieldGetsStay(t *testing.T) {
	g := constructGraphFromEdges(t, edgesCase{0: {1}})
	obj := addParameter(g, 1, TypeReference)
	blk := g.Block(1)
	first := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeInt32, 8, true))
	second := insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeInt32, 8, true))

	require.False(t, runGVN(g))
	require.Equal(t, blk, first.Block())
	require.Equal(t, blk, second.Block())
}

func TestGVN_diamondIntersection(t *testing.T) {
	g := constructGraphFromEdges(t, edgesCase{0: {1}, 1: {2, 3}, 2: {4}, 3: {4}})
	obj := addParameter(g, 1, TypeReference)
	v := addParameter(g, 2, TypeInt32)

	getInt := insertBeforeTail(g.Block(1), g.AllocateInstruction().AsFieldGet(obj, TypeInt32, 8, false))
	getLong := insertBeforeTail(g.Block(1), g.AllocateInstruction().AsFieldGet(obj, TypeInt64, 16, false))
	// Only one side of the diamond writes an int field.
	insertBeforeTail(g.Block(2), g.AllocateInstruction().AsFieldSet(obj, v, TypeInt32, 8, false))
	getIntInJoin := insertBeforeTail(g.Block(4), g.AllocateInstruction().AsFieldGet(obj, TypeInt32, 8, false))
	getLongInJoin := insertBeforeTail(g.Block(4), g.AllocateInstruction().AsFieldGet(obj, TypeInt64, 16, false))

	require.True(t, runGVN(g))
	require.Equal(t, g.Block(1), getInt.Block())
	require.Equal(t, g.Block(1), getLong.Block())
	require.Equal(t, g.Block(4), getIntInJoin.Block())
	require.Nil(t, getLongInJoin.Block())
}

func TestGVN_irreducibleLoop(t *testing.T) {
	//   1
	//  / \
	// 2 <-> 3 -> 4
	g := constructGraphFromEdges(t, edgesCase{0: {1}, 1: {2, 3}, 2: {3}, 3: {2, 4}})
	obj := addParameter(g, 1, TypeReference)

	newGet := func(blk *BasicBlock) *Instruction {
		return insertBeforeTail(blk, g.AllocateInstruction().AsFieldGet(obj, TypeInt32, 8, false))
	}
	getBefore := newGet(g.Block(1))
	getInHeader := newGet(g.Block(2))
	getInOther := newGet(g.Block(3))

	require.False(t, runGVN(g))
	require.True(t, g.HasIrreducibleLoops())
	require.True(t, g.Block(2).LoopInformation().IsIrreducible())
	require.Equal(t, g.Block(1), getBefore.Block())
	require.Equal(t, g.Block(2), getInHeader.Block())
	require.Equal(t, g.Block(3), getInOther.Block())
}

func TestGVN_Name(t *testing.T) {
	g := constructGraphFromEdges(t, edgesCase{0: {1}})
	g.BuildDominatorTree()
	sideEffects := NewSideEffectsAnalysis(g)
	gvn := NewGVNOptimization(g, sideEffects)
	require.Equal(t, "GVN", gvn.Name())
	require.Equal(t, "side_effects", sideEffects.Name())
	// The side effects analysis has not run.
	require.Panics(t, func() { gvn.Run() })
}
