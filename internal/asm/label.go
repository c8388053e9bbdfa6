package asm

// Label is a jump destination that can be referenced before and after it is bound.
//
// Forward jumps are queued on the label and resolved when the instruction following
// the Bind is added. Backward jumps are resolved immediately.
type Label struct {
	target  Node
	bound   bool
	pending []Node
}

// IsBound returns true if Bind has been called with this label.
func (l *Label) IsBound() bool {
	return l.bound
}

// IsLinked returns true if there are jumps waiting for this label to be resolved.
func (l *Label) IsLinked() bool {
	return len(l.pending) > 0
}

// Target returns the node this label is bound to, or nil if that node is not added yet.
func (l *Label) Target() Node {
	return l.target
}

// MarkBound is used by assembler implementations when binding l.
func (l *Label) MarkBound() {
	if l.bound {
		panic("BUG: label bound twice")
	}
	l.bound = true
}

// AddJump is used by assembler implementations to resolve the jump node to l,
// either now or once l has a target.
func (l *Label) AddJump(n Node) {
	if l.target != nil {
		n.AssignJumpTarget(l.target)
		return
	}
	l.pending = append(l.pending, n)
}

// Resolve is used by assembler implementations to set the target of a bound label.
func (l *Label) Resolve(target Node) {
	l.target = target
	for _, n := range l.pending {
		n.AssignJumpTarget(target)
	}
	l.pending = l.pending[:0]
}
