package optimizing

import (
	"fmt"

	"github.com/artquick/quick/internal/quickapi"
)

// BuildDominatorTree analyzes the control flow of the graph. In order, it
//
//   - finds the back edges and removes the blocks unreachable from the entry,
//   - splits critical edges and gives every loop a single pre-header which is
//     the first predecessor of the header,
//   - computes the reverse postorder and the immediate dominators,
//   - finds the blocks of every loop and whether it is irreducible.
//
// It can be called again after the graph changes.
func (g *Graph) BuildDominatorTree() {
	if g.entry == nil {
		panic("BUG: graph has no entry block")
	}
	g.clearDominanceInformation()

	visited := g.findBackEdges()
	g.removeDeadBlocks(&visited)
	g.simplifyCFG()
	g.computeReversePostOrder()
	g.computeDominators()
	g.analyzeLoops()
	g.dominatorTreeBuilt = true
}

func (g *Graph) clearDominanceInformation() {
	for _, blk := range g.blocks {
		if blk == nil {
			continue
		}
		blk.dominator = nil
		blk.dominated = blk.dominated[:0]
		blk.loop = nil
		blk.reversePostOrderIndex = -1
	}
	g.reversePostOrder = g.reversePostOrder[:0]
	g.hasLoops, g.hasIrreducibleLoops, g.dominatorTreeBuilt = false, false, false
}

// depthFirst walks the graph from the entry, visiting successors in order, and
// calls onBackEdge for every edge to a block still on the stack. It returns the
// set of reachable blocks and appends them in postorder to postOrder.
func (g *Graph) depthFirst(onBackEdge func(from, to *BasicBlock), postOrder []*BasicBlock) (quickapi.BitVector, []*BasicBlock) {
	n := len(g.blocks)
	visited := quickapi.NewBitVector(n, nil)
	visiting := quickapi.NewBitVector(n, nil)
	if cap(g.successorsVisited) < n {
		g.successorsVisited = make([]int, n)
	}
	successorsVisited := g.successorsVisited[:n]
	for i := range successorsVisited {
		successorsVisited[i] = 0
	}

	stack := g.blkStack[:0]
	stack = append(stack, g.entry)
	visited.SetBit(int(g.entry.id))
	visiting.SetBit(int(g.entry.id))
	for len(stack) > 0 {
		tail := len(stack) - 1
		cur := stack[tail]
		if successorsVisited[cur.id] == len(cur.succs) {
			visiting.ClearBit(int(cur.id))
			stack = stack[:tail]
			postOrder = append(postOrder, cur)
			continue
		}
		succ := cur.succs[successorsVisited[cur.id]]
		successorsVisited[cur.id]++
		switch {
		case visiting.IsBitSet(int(succ.id)):
			onBackEdge(cur, succ)
		case !visited.IsBitSet(int(succ.id)):
			visited.SetBit(int(succ.id))
			visiting.SetBit(int(succ.id))
			stack = append(stack, succ)
		}
	}
	g.blkStack = stack
	return visited, postOrder
}

func (g *Graph) findBackEdges() quickapi.BitVector {
	visited, _ := g.depthFirst(func(from, to *BasicBlock) {
		if to == g.entry {
			panic("BUG: the entry block cannot be a loop header")
		}
		if to.loop == nil {
			to.loop = newLoopInformation(to)
		}
		to.loop.addBackEdge(from)
	}, nil)
	return visited
}

func (g *Graph) removeDeadBlocks(visited *quickapi.BitVector) {
	for i, blk := range g.blocks {
		if blk == nil || visited.IsBitSet(i) {
			continue
		}
		for _, succ := range blk.succs {
			if visited.IsBitSet(int(succ.id)) {
				succ.removePredecessor(blk)
			}
		}
		for cur := blk.rootInstr; cur != nil; cur = cur.next {
			for index, in := range cur.inputs {
				in.removeUse(cur, index)
			}
		}
		if g.exit == blk {
			g.exit = nil
		}
		g.blocks[i] = nil
	}
}

// simplifyCFG splits critical edges and makes loops have a single pre-header.
func (g *Graph) simplifyCFG() {
	// Blocks appended while iterating are already simple.
	for i, end := 0, len(g.blocks); i < end; i++ {
		blk := g.blocks[i]
		if blk == nil {
			continue
		}
		if len(blk.succs) > 1 {
			for _, succ := range blk.succs {
				if succ != g.exit && len(succ.preds) > 1 {
					g.splitCriticalEdge(blk, succ)
				}
			}
		}
		if blk.IsLoopHeader() {
			g.simplifyLoop(blk)
		}
	}
}

func (g *Graph) splitCriticalEdge(from, to *BasicBlock) {
	newBlk := g.AllocateBasicBlock()
	newBlk.AddInstruction(g.AllocateInstruction().AsGoto())
	newBlk.insertBetween(from, to)
	if to.IsLoopHeader() && to.loop.IsBackEdge(from) {
		to.loop.replaceBackEdge(from, newBlk)
	}
}

func (g *Graph) simplifyLoop(header *BasicBlock) {
	info := header.loop
	incomings := len(header.preds) - info.NumberOfBackEdges()
	if incomings != 1 || g.entry.SingleSuccessor() == header {
		preHeader := g.AllocateBasicBlock()
		preHeader.AddInstruction(g.AllocateInstruction().AsGoto())
		for i := 0; i < len(header.preds); i++ {
			pred := header.preds[i]
			if !info.IsBackEdge(pred) {
				pred.replaceSuccessor(header, preHeader)
				i--
			}
		}
		preHeader.AddSuccessor(header)
	}
	g.orderLoopHeaderPredecessors(header)
}

// orderLoopHeaderPredecessors makes the incoming edge the first predecessor.
func (g *Graph) orderLoopHeaderPredecessors(header *BasicBlock) {
	info := header.loop
	if !info.IsBackEdge(header.preds[0]) {
		return
	}
	for i := 1; i < len(header.preds); i++ {
		if !info.IsBackEdge(header.preds[i]) {
			header.preds[0], header.preds[i] = header.preds[i], header.preds[0]
			return
		}
	}
	panic(fmt.Sprintf("BUG: loop header %s has no incoming edge", header.Name()))
}

func (g *Graph) computeReversePostOrder() {
	_, order := g.depthFirst(func(from, to *BasicBlock) {}, g.reversePostOrder[:0])
	// At this point, order has postorder actually, so we reverse it.
	for i := len(order)/2 - 1; i >= 0; i-- {
		j := len(order) - 1 - i
		order[i], order[j] = order[j], order[i]
	}
	for i, blk := range order {
		blk.reversePostOrderIndex = i
	}
	g.reversePostOrder = order
}

// computeDominators calculates the immediate dominator of each block with the
// algorithm of "A Simple, Fast Dominance Algorithm" by Cooper, Harvey and Kennedy.
// Irreducible loops only take more iterations to converge.
func (g *Graph) computeDominators() {
	entry, blks := g.reversePostOrder[0], g.reversePostOrder[1:]
	entry.dominator = entry

	changed := true
	for changed {
		changed = false
		for _, blk := range blks {
			var u *BasicBlock
			for _, pred := range blk.preds {
				// Skip the predecessors not processed yet. They are sources of back edges.
				if pred.dominator == nil {
					continue
				}
				if u == nil {
					u = pred
				} else {
					u = intersect(u, pred)
				}
			}
			if blk.dominator != u {
				blk.dominator = u
				changed = true
			}
		}
	}
	entry.dominator = nil

	for _, blk := range blks {
		blk.dominator.dominated = append(blk.dominator.dominated, blk)
	}
}

// intersect returns the closest common dominator of blk1 and blk2.
func intersect(blk1, blk2 *BasicBlock) *BasicBlock {
	finger1, finger2 := blk1, blk2
	for finger1 != finger2 {
		for finger1.reversePostOrderIndex > finger2.reversePostOrderIndex {
			finger1 = finger1.dominator
		}
		for finger2.reversePostOrderIndex > finger1.reversePostOrderIndex {
			finger2 = finger2.dominator
		}
	}
	return finger1
}

// analyzeLoops populates the loops, inner loops first so that an outer loop
// knows whether it contains an irreducible one.
func (g *Graph) analyzeLoops() {
	for i := len(g.reversePostOrder) - 1; i >= 0; i-- {
		if blk := g.reversePostOrder[i]; blk.IsLoopHeader() {
			blk.loop.populate()
		}
	}
}
