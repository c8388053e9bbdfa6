package jnicompiler

import (
	"fmt"
	"strings"

	"github.com/klauspost/asmfmt"
	"github.com/samber/lo"
	"golang.org/x/xerrors"
)

// listing returns the Go assembler text of the finalized code of m, one instruction
// per line with its offset as a trailing comment.
func listing(m *MacroAssembler, name string) ([]byte, error) {
	var insts []lo.Tuple2[int, string]
	m.forEachInstruction(func(pc int, text string) {
		insts = append(insts, lo.Tuple2[int, string]{A: pc, B: text})
	})

	lines := lo.Map(insts, func(inst lo.Tuple2[int, string], _ int) string {
		return fmt.Sprintf("\t%s // %#04x", inst.B, inst.A)
	})

	var builder strings.Builder
	builder.WriteString(fmt.Sprintf("// %s JNI stub %s\n", m.Kind, name))
	builder.WriteString(strings.Join(lines, "\n"))
	builder.WriteString("\n")

	formatted, err := asmfmt.Format(strings.NewReader(builder.String()))
	if err != nil {
		return nil, xerrors.Errorf("formatting listing: %w", err)
	}
	return formatted, nil
}
