package optimizing

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"github.com/artquick/quick/internal/quickapi"
)

// BasicBlockID is the unique ID of a BasicBlock within its Graph.
type BasicBlockID uint32

// String implements fmt.Stringer.
func (id BasicBlockID) String() string {
	return fmt.Sprintf("blk%d", id)
}

// BasicBlock is a sequence of instructions ending with a control-flow instruction.
type BasicBlock struct {
	id                   BasicBlockID
	graph                *Graph
	preds, succs         []*BasicBlock
	rootInstr, tailInstr *Instruction

	// Set by Graph.BuildDominatorTree.
	dominator             *BasicBlock
	dominated             []*BasicBlock
	loop                  *LoopInformation
	reversePostOrderIndex int
}

// ID returns the id of this block.
func (b *BasicBlock) ID() BasicBlockID { return b.id }

// Name returns the name of this block for debugging.
func (b *BasicBlock) Name() string { return b.id.String() }

// Graph returns the graph this block belongs to.
func (b *BasicBlock) Graph() *Graph { return b.graph }

// Preds returns the predecessors of this block. The returned slice must not be modified.
func (b *BasicBlock) Preds() []*BasicBlock { return b.preds }

// Succs returns the successors of this block. The returned slice must not be modified.
func (b *BasicBlock) Succs() []*BasicBlock { return b.succs }

// Root returns the first instruction of this block.
func (b *BasicBlock) Root() *Instruction { return b.rootInstr }

// Tail returns the last instruction of this block.
func (b *BasicBlock) Tail() *Instruction { return b.tailInstr }

// Dominator returns the immediate dominator, or nil for the entry block.
func (b *BasicBlock) Dominator() *BasicBlock { return b.dominator }

// Dominated returns the blocks this block immediately dominates, in reverse postorder.
func (b *BasicBlock) Dominated() []*BasicBlock { return b.dominated }

// LoopInformation returns the innermost loop containing this block, or nil.
func (b *BasicBlock) LoopInformation() *LoopInformation { return b.loop }

// IsInLoop returns true if this block belongs to a loop.
func (b *BasicBlock) IsInLoop() bool { return b.loop != nil }

// IsLoopHeader returns true if this block is the header of a loop.
func (b *BasicBlock) IsLoopHeader() bool { return b.loop != nil && b.loop.header == b }

// IsEntry returns true if this is the entry block of its graph.
func (b *BasicBlock) IsEntry() bool { return b.graph.entry == b }

// IsExit returns true if this is the exit block of its graph.
func (b *BasicBlock) IsExit() bool { return b.graph.exit == b }

// SingleSuccessor returns the only successor, or nil if there are zero or several.
func (b *BasicBlock) SingleSuccessor() *BasicBlock {
	if len(b.succs) != 1 {
		return nil
	}
	return b.succs[0]
}

// Dominates returns true if every path from the entry to other goes through b.
// A block dominates itself.
func (b *BasicBlock) Dominates(other *BasicBlock) bool {
	for cur := other; cur != nil; cur = cur.dominator {
		if cur == b {
			return true
		}
	}
	return false
}

// StrictlyDominates is Dominates for a block other than b.
func (b *BasicBlock) StrictlyDominates(other *BasicBlock) bool {
	return b != other && b.Dominates(other)
}

// AddSuccessor adds a control-flow edge from b to succ.
func (b *BasicBlock) AddSuccessor(succ *BasicBlock) {
	b.succs = append(b.succs, succ)
	succ.preds = append(succ.preds, b)
}

// replaceSuccessor makes the edge b -> existing an edge b -> newBlk. The
// predecessor is appended to newBlk.
func (b *BasicBlock) replaceSuccessor(existing, newBlk *BasicBlock) {
	index := slices.Index(b.succs, existing)
	if index < 0 {
		panic(fmt.Sprintf("BUG: %s is not a successor of %s", existing.Name(), b.Name()))
	}
	existing.removePredecessor(b)
	b.succs[index] = newBlk
	newBlk.preds = append(newBlk.preds, b)
}

// insertBetween puts b on the edge pred -> succ, keeping the position of the edge
// in both pred's successors and succ's predecessors.
func (b *BasicBlock) insertBetween(pred, succ *BasicBlock) {
	predIndex := slices.Index(pred.succs, succ)
	succIndex := slices.Index(succ.preds, pred)
	if predIndex < 0 || succIndex < 0 {
		panic(fmt.Sprintf("BUG: no edge %s -> %s", pred.Name(), succ.Name()))
	}
	pred.succs[predIndex] = b
	succ.preds[succIndex] = b
	b.preds = append(b.preds, pred)
	b.succs = append(b.succs, succ)
}

func (b *BasicBlock) removePredecessor(pred *BasicBlock) {
	index := slices.Index(b.preds, pred)
	if index < 0 {
		panic(fmt.Sprintf("BUG: %s is not a predecessor of %s", pred.Name(), b.Name()))
	}
	b.preds = slices.Delete(b.preds, index, index+1)
}

// AddInstruction appends instr to this block and registers it as a user of its inputs.
func (b *BasicBlock) AddInstruction(instr *Instruction) {
	if instr.block != nil {
		panic(fmt.Sprintf("BUG: %s is already in %s", instr.name(), instr.block.Name()))
	}
	if instr.opcode == OpcodeInvalid {
		panic("BUG: adding an uninitialized instruction")
	}
	instr.block = b
	for index, in := range instr.inputs {
		in.uses = append(in.uses, instructionUse{user: instr, index: index})
	}
	if b.rootInstr == nil {
		b.rootInstr = instr
	} else {
		b.tailInstr.next = instr
		instr.prev = b.tailInstr
	}
	b.tailInstr = instr
}

// InsertInstructionBefore inserts instr right before cursor, which must be in this block.
func (b *BasicBlock) InsertInstructionBefore(instr, cursor *Instruction) {
	if cursor.block != b {
		panic(fmt.Sprintf("BUG: %s is not in %s", cursor.name(), b.Name()))
	}
	b.AddInstruction(instr)
	b.unlink(instr)
	instr.next = cursor
	instr.prev = cursor.prev
	if cursor.prev == nil {
		b.rootInstr = instr
	} else {
		cursor.prev.next = instr
	}
	cursor.prev = instr
}

// RemoveInstruction unlinks instr from this block. instr must not have uses.
func (b *BasicBlock) RemoveInstruction(instr *Instruction) {
	if instr.block != b {
		panic(fmt.Sprintf("BUG: %s is not in %s", instr.name(), b.Name()))
	}
	if instr.HasUses() {
		panic(fmt.Sprintf("BUG: removing %s which still has uses", instr.name()))
	}
	for index, in := range instr.inputs {
		in.removeUse(instr, index)
	}
	b.unlink(instr)
	instr.block = nil
}

// unlink takes instr out of the instruction list, leaving its uses untouched.
func (b *BasicBlock) unlink(instr *Instruction) {
	if instr.prev == nil {
		b.rootInstr = instr.next
	} else {
		instr.prev.next = instr.next
	}
	if instr.next == nil {
		b.tailInstr = instr.prev
	} else {
		instr.next.prev = instr.prev
	}
	instr.prev, instr.next = nil, nil
}

// Format returns a string representation of this block.
func (b *BasicBlock) Format() string {
	var str strings.Builder
	str.WriteString(b.Name())
	str.WriteString(": <-- (")
	for i, pred := range b.preds {
		if i > 0 {
			str.WriteString(", ")
		}
		str.WriteString(pred.Name())
	}
	str.WriteString(")")
	if b.dominator != nil {
		fmt.Fprintf(&str, " dom=%s", b.dominator.Name())
	}
	if b.IsLoopHeader() {
		str.WriteString(" loop")
		if b.loop.irreducible {
			str.WriteString(" irreducible")
		}
	}
	str.WriteByte('\n')
	for cur := b.rootInstr; cur != nil; cur = cur.next {
		str.WriteByte('\t')
		str.WriteString(cur.Format())
		str.WriteByte('\n')
	}
	if len(b.succs) > 0 {
		str.WriteString("\t--> ")
		for i, succ := range b.succs {
			if i > 0 {
				str.WriteString(", ")
			}
			str.WriteString(succ.Name())
		}
		str.WriteByte('\n')
	}
	return str.String()
}

// Graph is the control-flow graph of one method in SSA form.
type Graph struct {
	blocksPool       quickapi.Pool[BasicBlock]
	instructionsPool quickapi.Pool[Instruction]

	// blocks is indexed by BasicBlockID. Removed blocks leave a nil hole.
	blocks      []*BasicBlock
	entry, exit *BasicBlock

	reversePostOrder    []*BasicBlock
	hasLoops            bool
	hasIrreducibleLoops bool
	dominatorTreeBuilt  bool

	// Scratch for the passes.
	blkStack          []*BasicBlock
	successorsVisited []int
}

// NewGraph returns a new empty Graph.
func NewGraph() *Graph {
	return &Graph{
		blocksPool:       quickapi.NewPool[BasicBlock](),
		instructionsPool: quickapi.NewPool[Instruction](),
	}
}

// Reset clears the graph so that it can be reused for another method.
// Every block and instruction previously allocated becomes invalid.
func (g *Graph) Reset() {
	g.blocksPool.Reset()
	g.instructionsPool.Reset()
	g.blocks = g.blocks[:0]
	g.entry, g.exit = nil, nil
	g.reversePostOrder = g.reversePostOrder[:0]
	g.hasLoops, g.hasIrreducibleLoops, g.dominatorTreeBuilt = false, false, false
}

// AllocateBasicBlock returns a new empty block of this graph.
func (g *Graph) AllocateBasicBlock() *BasicBlock {
	blk := g.blocksPool.Allocate()
	blk.id = BasicBlockID(len(g.blocks))
	blk.graph = g
	g.blocks = append(g.blocks, blk)
	return blk
}

// AllocateInstruction returns a new uninitialized instruction. It must be
// initialized with one of the As* methods before being added to a block.
func (g *Graph) AllocateInstruction() *Instruction {
	instr := g.instructionsPool.Allocate()
	instr.id = g.instructionsPool.Allocated() - 1
	return instr
}

// SetEntryBlock sets the block control enters the method through.
func (g *Graph) SetEntryBlock(b *BasicBlock) { g.entry = b }

// EntryBlock returns the entry block.
func (g *Graph) EntryBlock() *BasicBlock { return g.entry }

// SetExitBlock sets the block every return jumps to.
func (g *Graph) SetExitBlock(b *BasicBlock) { g.exit = b }

// ExitBlock returns the exit block, or nil if no return is reachable.
func (g *Graph) ExitBlock() *BasicBlock { return g.exit }

// Blocks returns the blocks indexed by id. Blocks removed as dead are nil.
func (g *Graph) Blocks() []*BasicBlock { return g.blocks }

// Block returns the block with the given id, or nil if it was removed.
func (g *Graph) Block(id BasicBlockID) *BasicBlock { return g.blocks[id] }

// ReversePostOrder returns the blocks such that every block comes after the
// sources of its incoming forward edges. Only valid after BuildDominatorTree.
func (g *Graph) ReversePostOrder() []*BasicBlock {
	if !g.dominatorTreeBuilt {
		panic("BUG: reverse postorder requested before BuildDominatorTree")
	}
	return g.reversePostOrder
}

// HasLoops returns true if BuildDominatorTree found a loop.
func (g *Graph) HasLoops() bool { return g.hasLoops }

// HasIrreducibleLoops returns true if BuildDominatorTree found a loop with
// more than one entry.
func (g *Graph) HasIrreducibleLoops() bool { return g.hasIrreducibleLoops }

// Format returns a string representation of this graph in reverse postorder
// if available, in id order otherwise.
func (g *Graph) Format() string {
	blocks := g.blocks
	if g.dominatorTreeBuilt {
		blocks = g.reversePostOrder
	}
	var str strings.Builder
	for _, blk := range blocks {
		if blk == nil {
			continue
		}
		str.WriteString(blk.Format())
	}
	return str.String()
}
