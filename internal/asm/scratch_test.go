package asm

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestScratchRegisterScope(t *testing.T) {
	regs := NewScratchRegisters(1, 2, 3)

	outer := regs.Open()
	require.Equal(t, Register(1), outer.Acquire())
	outer.Exclude(3)
	require.False(t, outer.IsAvailable(3))
	require.Equal(t, []Register{2}, regs.Available())

	inner := regs.Open()
	require.Equal(t, Register(2), inner.Acquire())
	inner.Include(7)
	require.Equal(t, Register(7), inner.Acquire())
	require.Panics(t, func() { inner.Acquire() })
	inner.Release()
	require.Equal(t, []Register{2}, regs.Available())

	outer.Release()
	require.Equal(t, []Register{1, 2, 3}, regs.Available())
	require.Panics(t, func() { outer.Release() })
}

type fakeNode struct {
	target Node
}

func (n *fakeNode) String() string               { return "fake" }
func (n *fakeNode) AssignJumpTarget(target Node) { n.target = target }

func TestLabel(t *testing.T) {
	var l Label
	require.False(t, l.IsBound())

	forward := &fakeNode{}
	l.AddJump(forward)
	require.True(t, l.IsLinked())
	require.Nil(t, forward.target)

	l.MarkBound()
	require.True(t, l.IsBound())
	require.Panics(t, func() { l.MarkBound() })

	target := &fakeNode{}
	l.Resolve(target)
	require.False(t, l.IsLinked())
	require.Equal(t, target, forward.target)
	require.Equal(t, target, l.Target())

	backward := &fakeNode{}
	l.AddJump(backward)
	require.Equal(t, target, backward.target)
}
