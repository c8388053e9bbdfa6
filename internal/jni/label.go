package jni

import (
	"fmt"

	"github.com/artquick/quick/internal/asm"
)

// Label is a jump target created by a macro-assembler of type M. The type parameter
// keeps the labels of different instruction sets apart at compile time, and the
// owner check keeps apart the labels of two macro-assemblers of the same type.
type Label[M any] struct {
	owner *M
	label asm.Label
}

// NewLabel returns a label usable with owner only.
func NewLabel[M any](owner *M) *Label[M] {
	return &Label[M]{owner: owner}
}

// For returns the underlying assembler label, after checking that m created l.
func (l *Label[M]) For(m *M) *asm.Label {
	if l.owner != m {
		panic(fmt.Sprintf("BUG: label created by %p used with %p", l.owner, m))
	}
	return &l.label
}

// IsBound returns true once the label was bound.
func (l *Label[M]) IsBound() bool {
	return l.label.IsBound()
}
