package jni_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	asm_x86 "github.com/artquick/quick/internal/asm/x86"
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/jni"
)

func TestCodeBuffer(t *testing.T) {
	var b jni.CodeBuffer
	require.Panics(t, func() { b.CodeSize() })
	require.Panics(t, func() { b.FinalizeInstructions(make([]byte, 16)) })

	a, err := asm_x86.NewAssembler(true)
	require.NoError(t, err)
	a.CompileStandAlone(asm_x86.RET)

	require.NoError(t, b.Finalize(a, dwarf.NewDebugFrameOpCodeWriter()))
	require.Equal(t, 1, b.CodeSize())

	region := make([]byte, 4)
	b.FinalizeInstructions(region)
	require.Equal(t, []byte{0xc3, 0, 0, 0}, region)

	require.Panics(t, func() { b.FinalizeInstructions(nil) })
	require.Panics(t, func() { _ = b.Finalize(a, dwarf.NewDebugFrameOpCodeWriter()) })
}
