package optimizing

import "fmt"

// SideEffectsAnalysis computes the union of the side effects of every block and
// of every loop of a Graph whose dominator tree is built.
type SideEffectsAnalysis struct {
	graph        *Graph
	blockEffects []SideEffects
	// loopEffects is indexed by the id of the loop header.
	loopEffects []SideEffects
	hasRun      bool
}

// NewSideEffectsAnalysis returns a SideEffectsAnalysis for g. Run must be called
// before the results are read.
func NewSideEffectsAnalysis(g *Graph) *SideEffectsAnalysis {
	return &SideEffectsAnalysis{graph: g}
}

// Name returns the name of this pass.
func (a *SideEffectsAnalysis) Name() string { return "side_effects" }

// Run computes the side effects. Blocks are visited in postorder so that inner
// loops are complete before their effects are folded into the outer loop.
func (a *SideEffectsAnalysis) Run() {
	g := a.graph
	n := len(g.blocks)
	a.blockEffects = resetSideEffects(a.blockEffects, n)
	a.loopEffects = resetSideEffects(a.loopEffects, n)

	rpo := g.ReversePostOrder()
	for i := len(rpo) - 1; i >= 0; i-- {
		blk := rpo[i]
		effects := SideEffectsNone()
		for cur := blk.tailInstr; cur != nil; cur = cur.prev {
			effects = effects.Union(cur.sideEffects)
			// Once everything is set, nothing can be added.
			if effects.DoesAll() {
				break
			}
		}
		a.blockEffects[blk.id] = effects

		switch {
		case blk.IsLoopHeader():
			// The header is part of its own loop.
			a.updateLoopEffects(blk.loop, effects)
			if preHeader := blk.loop.PreHeader(); preHeader.IsInLoop() {
				a.updateLoopEffects(preHeader.loop, a.loopEffects[blk.id])
			}
		case blk.IsInLoop():
			a.updateLoopEffects(blk.loop, effects)
		}
	}
	a.hasRun = true
}

// HasRun returns true once Run has completed.
func (a *SideEffectsAnalysis) HasRun() bool { return a.hasRun }

// BlockEffects returns the union of the side effects of the instructions in blk.
func (a *SideEffectsAnalysis) BlockEffects(blk *BasicBlock) SideEffects {
	a.checkHasRun()
	return a.blockEffects[blk.id]
}

// LoopEffects returns the union of the side effects of every block in the
// loop headed by header, nested loops included.
func (a *SideEffectsAnalysis) LoopEffects(header *BasicBlock) SideEffects {
	a.checkHasRun()
	if !header.IsLoopHeader() {
		panic(fmt.Sprintf("BUG: %s is not a loop header", header.Name()))
	}
	return a.loopEffects[header.id]
}

func (a *SideEffectsAnalysis) updateLoopEffects(l *LoopInformation, effects SideEffects) {
	a.loopEffects[l.header.id].Add(effects)
}

func (a *SideEffectsAnalysis) checkHasRun() {
	if !a.hasRun {
		panic("BUG: side effects analysis has not run")
	}
}

func resetSideEffects(s []SideEffects, n int) []SideEffects {
	if cap(s) < n {
		return make([]SideEffects, n)
	}
	s = s[:n]
	for i := range s {
		s[i] = SideEffectsNone()
	}
	return s
}
