package optimizing

import (
	"golang.org/x/exp/slices"

	"github.com/artquick/quick/internal/quickapi"
)

// LoopInformation describes a loop found by Graph.BuildDominatorTree.
type LoopInformation struct {
	header    *BasicBlock
	backEdges []*BasicBlock
	// blocks holds the ids of the blocks in the loop, header included.
	blocks    quickapi.BitVector
	populated bool

	irreducible             bool
	containsIrreducibleLoop bool
}

func newLoopInformation(header *BasicBlock) *LoopInformation {
	return &LoopInformation{header: header}
}

// Header returns the header of the loop.
func (l *LoopInformation) Header() *BasicBlock { return l.header }

// PreHeader returns the only block entering the loop from outside.
func (l *LoopInformation) PreHeader() *BasicBlock { return l.header.preds[0] }

// BackEdges returns the sources of the edges jumping back to the header.
func (l *LoopInformation) BackEdges() []*BasicBlock { return l.backEdges }

// NumberOfBackEdges returns len(BackEdges()).
func (l *LoopInformation) NumberOfBackEdges() int { return len(l.backEdges) }

// IsBackEdge returns true if b -> header is a back edge of this loop.
func (l *LoopInformation) IsBackEdge(b *BasicBlock) bool {
	return slices.Contains(l.backEdges, b)
}

// IsIrreducible returns true if the loop has an entry other than its header.
func (l *LoopInformation) IsIrreducible() bool { return l.irreducible }

// ContainsIrreducibleLoop returns true if this loop or a loop nested in it is irreducible.
func (l *LoopInformation) ContainsIrreducibleLoop() bool { return l.containsIrreducibleLoop }

// Contains returns true if b is in this loop, nested loops included.
func (l *LoopInformation) Contains(b *BasicBlock) bool {
	return l.blocks.IsBitSet(int(b.id))
}

// IsIn returns true if this loop is nested in other, or is other.
func (l *LoopInformation) IsIn(other *LoopInformation) bool {
	return other.Contains(l.header)
}

// Blocks returns the blocks of the loop in id order.
func (l *LoopInformation) Blocks() []*BasicBlock {
	g := l.header.graph
	ret := make([]*BasicBlock, 0, l.blocks.NumSetBits())
	l.blocks.Range(func(i int) {
		ret = append(ret, g.blocks[i])
	})
	return ret
}

func (l *LoopInformation) addBackEdge(b *BasicBlock) {
	l.backEdges = append(l.backEdges, b)
}

func (l *LoopInformation) replaceBackEdge(existing, newBlk *BasicBlock) {
	index := slices.Index(l.backEdges, existing)
	if index < 0 {
		panic("BUG: replacing a block which is not a back edge")
	}
	l.backEdges[index] = newBlk
}

func (l *LoopInformation) hasBackEdgeNotDominatedByHeader() bool {
	for _, backEdge := range l.backEdges {
		if !l.header.Dominates(backEdge) {
			return true
		}
	}
	return false
}

// populate finds the blocks of the loop, walking backwards from the back
// edges. Loops nested in this one must be populated first.
func (l *LoopInformation) populate() {
	if l.populated {
		panic("BUG: loop information has already been populated")
	}
	g := l.header.graph
	l.blocks = quickapi.NewBitVector(len(g.blocks), nil)
	l.blocks.SetBit(int(l.header.id))
	l.header.setInLoop(l)

	irreducible := l.hasBackEdgeNotDominatedByHeader()
	if irreducible {
		finalized := quickapi.NewBitVector(len(g.blocks), nil)
		finalized.SetBit(int(l.header.id))
		for _, backEdge := range l.backEdges {
			l.populateIrreducible(backEdge, &finalized)
		}
	} else {
		stack := g.blkStack[:0]
		stack = append(stack, l.backEdges...)
		for len(stack) > 0 {
			tail := len(stack) - 1
			blk := stack[tail]
			stack = stack[:tail]
			if l.blocks.IsBitSet(int(blk.id)) {
				continue
			}
			l.blocks.SetBit(int(blk.id))
			blk.setInLoop(l)
			if blk.IsLoopHeader() && blk.loop.irreducible {
				l.containsIrreducibleLoop = true
			}
			stack = append(stack, blk.preds...)
		}
		g.blkStack = stack
	}

	if irreducible {
		l.irreducible = true
		l.containsIrreducibleLoop = true
		g.hasIrreducibleLoops = true
	}
	g.hasLoops = true
	l.populated = true
}

// populateIrreducible adds b to the loop if one of its predecessors is in it.
// A block is finalized once its membership is decided.
func (l *LoopInformation) populateIrreducible(b *BasicBlock, finalized *quickapi.BitVector) {
	id := int(b.id)
	if finalized.IsBitSet(id) {
		return
	}

	isFinalized := false
	if b.IsLoopHeader() {
		// An inner loop belongs to this one if its pre-header does. The inner
		// loop may not be populated yet, so its pre-header is read off the
		// predecessors directly.
		preHeader := b.preds[0]
		l.populateIrreducible(preHeader, finalized)
		if l.blocks.IsBitSet(int(preHeader.id)) {
			b.setInLoop(l)
			l.blocks.SetBit(id)
			finalized.SetBit(id)
			isFinalized = true
			for _, backEdge := range b.loop.backEdges {
				l.populateIrreducible(backEdge, finalized)
			}
		}
	} else {
		for _, pred := range b.preds {
			l.populateIrreducible(pred, finalized)
			if !isFinalized && l.blocks.IsBitSet(int(pred.id)) {
				b.setInLoop(l)
				l.blocks.SetBit(id)
				finalized.SetBit(id)
				isFinalized = true
			}
		}
	}

	if !isFinalized {
		finalized.SetBit(id)
	}
}

// setInLoop records that b belongs to l, keeping the innermost loop.
func (b *BasicBlock) setInLoop(l *LoopInformation) {
	switch {
	case b.IsLoopHeader():
		// l is an outer loop of b's own loop.
	case b.loop == nil:
		b.loop = l
	case b.loop.Contains(l.header):
		// b was only known to be in a loop enclosing l.
		b.loop = l
	}
}
