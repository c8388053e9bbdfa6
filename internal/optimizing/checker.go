package optimizing

import (
	"fmt"
	"strings"

	"github.com/samber/lo"
	"golang.org/x/exp/slices"
)

// CheckGraph verifies the structural invariants of g and returns an error
// listing every violation found. Dominance and loop invariants are only
// checked once BuildDominatorTree has run.
func CheckGraph(g *Graph) error {
	c := &graphChecker{g: g}
	c.run()
	if len(c.errors) == 0 {
		return nil
	}
	return fmt.Errorf("%d error(s):\n\t%s", len(c.errors), strings.Join(c.errors, "\n\t"))
}

type graphChecker struct {
	g      *Graph
	errors []string
}

func (c *graphChecker) addError(format string, args ...interface{}) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
}

func (c *graphChecker) run() {
	g := c.g
	if g.entry == nil {
		c.addError("graph has no entry block")
		return
	}
	if len(g.entry.preds) != 0 {
		c.addError("entry block %s has predecessors", g.entry.Name())
	}
	for i, blk := range g.blocks {
		if blk == nil {
			continue
		}
		if int(blk.id) != i || blk.graph != g {
			c.addError("%s is registered at index %d", blk.Name(), i)
		}
		c.checkEdges(blk)
		c.checkInstructions(blk)
		if g.dominatorTreeBuilt {
			c.checkDominance(blk)
			if blk.IsLoopHeader() {
				c.checkLoop(blk)
			}
		}
	}
}

func (c *graphChecker) checkEdges(blk *BasicBlock) {
	for _, succ := range blk.succs {
		if c.g.blocks[succ.id] != succ {
			c.addError("%s has removed successor %s", blk.Name(), succ.Name())
		}
		count := lo.Count(blk.succs, succ)
		if backCount := lo.Count(succ.preds, blk); count != backCount {
			c.addError("%s lists %s %d time(s) as successor but is listed %d time(s) as its predecessor",
				blk.Name(), succ.Name(), count, backCount)
		}
	}
	for _, pred := range blk.preds {
		if c.g.blocks[pred.id] != pred {
			c.addError("%s has removed predecessor %s", blk.Name(), pred.Name())
		}
		if !slices.Contains(pred.succs, blk) {
			c.addError("%s lists %s as predecessor but is not its successor", blk.Name(), pred.Name())
		}
	}
}

func (c *graphChecker) checkInstructions(blk *BasicBlock) {
	if blk.rootInstr == nil {
		c.addError("%s is empty", blk.Name())
		return
	}
	if blk.rootInstr.prev != nil || blk.tailInstr.next != nil {
		c.addError("%s has a broken instruction list", blk.Name())
	}
	var prev *Instruction
	for cur := blk.rootInstr; cur != nil; cur = cur.next {
		if cur.prev != prev {
			c.addError("%s: %s does not link back to its previous instruction", blk.Name(), cur.name())
		}
		prev = cur
		if cur.block != blk {
			c.addError("%s: %s belongs to another block", blk.Name(), cur.name())
		}
		if cur.IsControlFlow() != (cur == blk.tailInstr) {
			c.addError("%s: control flow %s is not the last instruction", blk.Name(), cur.Format())
		}
		c.checkInputsAndUses(blk, cur)
	}
	if prev != blk.tailInstr {
		c.addError("%s: tail is not the last instruction", blk.Name())
	}
	if tail := blk.tailInstr; tail.IsControlFlow() {
		if want := successorCount(tail.opcode); want >= 0 && len(blk.succs) != want {
			c.addError("%s: %s needs %d successor(s), has %d", blk.Name(), tail.opcode, want, len(blk.succs))
		}
	}
}

func successorCount(op Opcode) int {
	switch op {
	case OpcodeGoto, OpcodeReturn, OpcodeReturnVoid:
		return 1
	case OpcodeIf:
		return 2
	case OpcodeExit:
		return 0
	}
	return -1
}

func (c *graphChecker) checkInputsAndUses(blk *BasicBlock, instr *Instruction) {
	for index, in := range instr.inputs {
		if in.block == nil {
			c.addError("%s: input %d of %s is not in a block", blk.Name(), index, instr.name())
			continue
		}
		if !lo.Contains(in.uses, instructionUse{user: instr, index: index}) {
			c.addError("%s: %s does not record its use by %s", blk.Name(), in.name(), instr.name())
		}
		if c.g.dominatorTreeBuilt && !inputDominates(in, instr) {
			c.addError("%s: input %s does not dominate %s", blk.Name(), in.name(), instr.name())
		}
	}
	for _, u := range instr.uses {
		if u.user.block == nil {
			c.addError("%s: %s is used by %s which is not in a block", blk.Name(), instr.name(), u.user.name())
		} else if u.index >= len(u.user.inputs) || u.user.inputs[u.index] != instr {
			c.addError("%s: %s is not input %d of %s", blk.Name(), instr.name(), u.index, u.user.name())
		}
	}
}

func inputDominates(in, instr *Instruction) bool {
	if in.block != instr.block {
		return in.block.StrictlyDominates(instr.block)
	}
	for cur := in.next; cur != nil; cur = cur.next {
		if cur == instr {
			return true
		}
	}
	return false
}

func (c *graphChecker) checkDominance(blk *BasicBlock) {
	if blk == c.g.entry {
		if blk.dominator != nil {
			c.addError("entry block %s has a dominator", blk.Name())
		}
		return
	}
	dom := blk.dominator
	if dom == nil {
		c.addError("%s has no dominator", blk.Name())
		return
	}
	if !slices.Contains(dom.dominated, blk) {
		c.addError("%s is not in the dominated list of %s", blk.Name(), dom.Name())
	}
	for _, pred := range blk.preds {
		if !dom.Dominates(pred) {
			c.addError("dominator %s of %s does not dominate predecessor %s", dom.Name(), blk.Name(), pred.Name())
		}
	}
}

func (c *graphChecker) checkLoop(header *BasicBlock) {
	info := header.loop
	if len(header.preds) < 2 {
		c.addError("loop header %s has less than two predecessors", header.Name())
		return
	}
	preHeader := info.PreHeader()
	if info.IsBackEdge(preHeader) {
		c.addError("first predecessor %s of loop header %s is a back edge", preHeader.Name(), header.Name())
	}
	if incomings := len(header.preds) - info.NumberOfBackEdges(); incomings != 1 {
		c.addError("loop header %s has %d incoming edges", header.Name(), incomings)
	}
	for _, backEdge := range info.backEdges {
		if !slices.Contains(header.preds, backEdge) {
			c.addError("back edge %s is not a predecessor of loop header %s", backEdge.Name(), header.Name())
		}
		if !info.Contains(backEdge) {
			c.addError("back edge %s is not in the loop of %s", backEdge.Name(), header.Name())
		}
	}
	if !info.irreducible {
		if header.dominator != preHeader {
			c.addError("pre-header %s does not dominate loop header %s", preHeader.Name(), header.Name())
		}
		info.blocks.Range(func(id int) {
			if blk := c.g.blocks[id]; blk != nil && !header.Dominates(blk) {
				c.addError("loop header %s does not dominate %s", header.Name(), blk.Name())
			}
		})
	}
}
