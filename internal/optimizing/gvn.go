package optimizing

import (
	"fmt"

	"github.com/artquick/quick/internal/quickapi"
)

// GVNOptimization eliminates instructions which compute a value already
// available in a dominating instruction.
type GVNOptimization struct {
	graph       *Graph
	sideEffects *SideEffectsAnalysis
	arena       *valueSetArena

	// sets holds the ValueSet at the end of each block, indexed by block id.
	// An entry is nil before the block is visited and after its set was taken
	// over by another block.
	sets          []*ValueSet
	visitedBlocks quickapi.BitVector
	eliminated    int
}

// NewGVNOptimization returns a GVNOptimization for g. sideEffects must have run
// on g before Run is called.
func NewGVNOptimization(g *Graph, sideEffects *SideEffectsAnalysis) *GVNOptimization {
	return &GVNOptimization{graph: g, sideEffects: sideEffects, arena: newValueSetArena(g)}
}

// Name returns the name of this pass.
func (o *GVNOptimization) Name() string { return "GVN" }

// Run runs the pass and returns true if an instruction was eliminated.
func (o *GVNOptimization) Run() bool {
	if !o.sideEffects.HasRun() {
		panic("BUG: GVN requires the side effects analysis")
	}
	g := o.graph
	if quickapi.PrintGVNGraph {
		fmt.Printf("[GVN] before:\n%s\n", g.Format())
	}

	o.reset()
	o.sets[g.entry.id] = newValueSet(o.arena)
	// Reverse postorder makes sure the non back edge predecessors of a block
	// are visited before the block itself.
	for _, blk := range g.ReversePostOrder() {
		o.visitBasicBlock(blk)
	}

	if quickapi.PrintGVNOptimizedGraph {
		fmt.Printf("[GVN] after (%d eliminated):\n%s\n", o.eliminated, g.Format())
	}
	if quickapi.GVNValidationEnabled {
		if err := CheckGraph(g); err != nil {
			panic(fmt.Sprintf("BUG: invalid graph after GVN: %v", err))
		}
	}
	changed := o.eliminated > 0
	o.arena.reset()
	return changed
}

func (o *GVNOptimization) reset() {
	n := len(o.graph.blocks)
	o.arena.reset()
	if cap(o.sets) < n {
		o.sets = make([]*ValueSet, n)
	}
	o.sets = o.sets[:n]
	for i := range o.sets {
		o.sets[i] = nil
	}
	o.visitedBlocks = quickapi.NewBitVector(n, nil)
	o.eliminated = 0
}

func (o *GVNOptimization) visitBasicBlock(blk *BasicBlock) {
	var set *ValueSet

	preds := blk.preds
	if len(preds) == 0 || preds[0].IsEntry() {
		// The entry block only holds constants and parameters, so there is
		// nothing worth propagating from it.
		set = newValueSet(o.arena)
	} else {
		dominator := blk.dominator
		dominatorSet := o.findSetFor(dominator)

		if len(dominator.succs) == 1 {
			// blk is the only successor of its dominator, so the set can be taken over as is.
			if dominator.succs[0] != blk {
				panic(fmt.Sprintf("BUG: %s is not the successor of its dominator %s", blk.Name(), dominator.Name()))
			}
			o.abandonSetFor(dominator)
			set = dominatorSet
		} else if recyclable := o.findVisitedBlockWithRecyclableSet(blk, dominatorSet); recyclable == nil {
			set = newValueSetCopy(o.arena, dominatorSet)
		} else {
			set = o.findSetFor(recyclable)
			o.abandonSetFor(recyclable)
			set.PopulateFrom(dominatorSet)
		}

		if !set.IsEmpty() {
			switch {
			case blk.IsLoopHeader():
				if blk.loop.ContainsIrreducibleLoop() {
					// GVN could extend the liveness of an instruction across
					// the irreducible loop, so nothing may flow into it.
					set.Clear()
				} else {
					if blk.dominator != blk.loop.PreHeader() {
						panic(fmt.Sprintf("BUG: pre-header of %s is not its dominator", blk.Name()))
					}
					set.Kill(o.sideEffects.LoopEffects(blk))
				}
			case len(preds) > 1:
				for _, pred := range preds {
					set.IntersectWith(o.findSetFor(pred))
					if set.IsEmpty() {
						break
					}
				}
			}
		}
	}

	o.sets[blk.id] = set

	for cur := blk.rootInstr; cur != nil; {
		// cur may be removed below.
		next := cur.next
		if cur.CanBeMoved() {
			if cur.IsCommutative() {
				cur.OrderInputs()
			}
			if existing := set.Lookup(cur); existing != nil {
				if quickapi.GVNLoggingEnabled {
					fmt.Printf("[GVN] %s: replacing %s with %s\n", blk.Name(), cur.Format(), existing.name())
				}
				cur.ReplaceWith(existing)
				blk.RemoveInstruction(cur)
				o.eliminated++
			} else {
				// Kill before adding so that cur does not invalidate itself.
				set.Kill(cur.sideEffects)
				set.Add(cur)
			}
		} else {
			set.Kill(cur.sideEffects)
		}
		cur = next
	}

	o.visitedBlocks.SetBit(int(blk.id))
}

func (o *GVNOptimization) findSetFor(blk *BasicBlock) *ValueSet {
	if int(blk.id) >= len(o.sets) {
		panic(fmt.Sprintf("BUG: no value set slot for %s", blk.Name()))
	}
	set := o.sets[blk.id]
	if set == nil {
		panic(fmt.Sprintf("BUG: could not find the value set of %s", blk.Name()))
	}
	return set
}

func (o *GVNOptimization) abandonSetFor(blk *BasicBlock) {
	if o.sets[blk.id] == nil {
		panic(fmt.Sprintf("BUG: the value set of %s was already abandoned", blk.Name()))
	}
	o.sets[blk.id] = nil
}

// findVisitedBlockWithRecyclableSet returns a visited block whose set can
// receive a copy of reference and will not be read anymore. A set with exactly
// the ideal number of buckets is preferred. willBeReferencedAgain is checked
// last as it is the most expensive.
func (o *GVNOptimization) findVisitedBlockWithRecyclableSet(blk *BasicBlock, reference *ValueSet) *BasicBlock {
	var secondaryMatch *BasicBlock
	var found *BasicBlock
	o.visitedBlocks.Range(func(id int) {
		if found != nil {
			return
		}
		set := o.sets[id]
		if set == nil {
			// Already recycled or taken over.
			return
		}
		current := o.graph.blocks[id]
		if current == blk {
			panic("BUG: looking for a recyclable set while visiting its block")
		}
		if set.CanHoldCopyOf(reference, true) {
			if !o.willBeReferencedAgain(current) {
				found = current
			}
		} else if secondaryMatch == nil && set.CanHoldCopyOf(reference, false) {
			if !o.willBeReferencedAgain(current) {
				secondaryMatch = current
			}
		}
	})
	if found != nil {
		return found
	}
	return secondaryMatch
}

// willBeReferencedAgain returns true if a block not visited yet may still
// read the set of blk, as a dominator or as a predecessor.
func (o *GVNOptimization) willBeReferencedAgain(blk *BasicBlock) bool {
	for _, dominated := range blk.dominated {
		if !o.visitedBlocks.IsBitSet(int(dominated.id)) {
			return true
		}
	}
	for _, succ := range blk.succs {
		if !o.visitedBlocks.IsBitSet(int(succ.id)) {
			return true
		}
	}
	return false
}
