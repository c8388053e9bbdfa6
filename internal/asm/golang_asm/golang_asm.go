package golang_asm

import (
	goasm "github.com/twitchyliquid64/golang-asm"
	"github.com/twitchyliquid64/golang-asm/obj"
	"golang.org/x/xerrors"

	"github.com/artquick/quick/internal/asm"
)

// GolangAsmNode implements Node for golang-asm library.
type GolangAsmNode struct {
	prog *obj.Prog
}

func NewGolangAsmNode(p *obj.Prog) asm.Node {
	return &GolangAsmNode{prog: p}
}

// String implements fmt.Stringer.
func (n *GolangAsmNode) String() string {
	return n.prog.String()
}

// Prog returns the underlying golang-asm instruction.
func (n *GolangAsmNode) Prog() *obj.Prog {
	return n.prog
}

// AssignJumpTarget implements Node.AssignJumpTarget.
func (n *GolangAsmNode) AssignJumpTarget(target asm.Node) {
	b := target.(*GolangAsmNode)
	n.prog.To.SetTarget(b.prog)
}

// GolangAsmBaseAssembler implements *part of* AssemblerBase for golang-asm library.
type GolangAsmBaseAssembler struct {
	b *goasm.Builder
	// progs holds the instructions added by AddInstruction, in order. The index of an
	// instruction in progs is its position.
	progs []*obj.Prog
	// pendingLabels holds the labels bound since the last instruction was added.
	pendingLabels []*asm.Label
	// onGenerateCallbacks holds the callbacks which are called after generating native code.
	onGenerateCallbacks []func(code []byte) error
	code                []byte
	assembled           bool
}

// NewGolangAsmBaseAssembler returns the base assembler for the given GOARCH name.
func NewGolangAsmBaseAssembler(arch string) (*GolangAsmBaseAssembler, error) {
	b, err := goasm.NewBuilder(arch, 1024)
	if err != nil {
		return nil, xerrors.Errorf("failed to create a new assembly builder: %w", err)
	}
	// The arm and arm64 backends treat the first instruction as the function header and never
	// encode it, so the list always starts with a NOP that every backend emits as zero bytes.
	head := b.NewProg()
	head.As = obj.ANOP
	b.AddInstruction(head)
	return &GolangAsmBaseAssembler{b: b}, nil
}

// Assemble implements AssemblerBase.Assemble
func (a *GolangAsmBaseAssembler) Assemble() ([]byte, error) {
	if a.assembled {
		return nil, xerrors.New("already assembled")
	}
	// Jumps to the end of the code target this, and its pc tells where the code ends.
	end := a.CompileTerminalNOP().(*GolangAsmNode).prog
	code := a.b.Assemble()
	// arm64 pads the code with zeros to the function alignment.
	if n := int(end.Pc); n < len(code) && isZero(code[n:]) {
		code = code[:n]
	}
	for _, cb := range a.onGenerateCallbacks {
		if err := cb(code); err != nil {
			return nil, err
		}
	}
	a.code, a.assembled = code, true
	return code, nil
}

// Assembled returns true once Assemble has succeeded.
func (a *GolangAsmBaseAssembler) Assembled() bool {
	return a.assembled
}

func isZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}

// CompileTerminalNOP adds a zero-sized instruction. It is used as the target of jumps
// to the end of the code.
func (a *GolangAsmBaseAssembler) CompileTerminalNOP() asm.Node {
	nop := a.NewProg()
	nop.As = obj.ANOP
	a.AddInstruction(nop)
	return NewGolangAsmNode(nop)
}

// Bind implements AssemblerBase.Bind
func (a *GolangAsmBaseAssembler) Bind(l *asm.Label) {
	l.MarkBound()
	a.pendingLabels = append(a.pendingLabels, l)
}

// AddOnGenerateCallBack registers cb to be called with the machine code once assembled.
func (a *GolangAsmBaseAssembler) AddOnGenerateCallBack(cb func([]byte) error) {
	a.onGenerateCallbacks = append(a.onGenerateCallbacks, cb)
}

// Position implements AssemblerBase.Position
func (a *GolangAsmBaseAssembler) Position() int {
	return len(a.progs)
}

// PCOf implements AssemblerBase.PCOf
func (a *GolangAsmBaseAssembler) PCOf(pos int) int {
	if !a.assembled {
		panic("BUG: PCOf called before Assemble")
	}
	if pos < len(a.progs) {
		return int(a.progs[pos].Pc)
	}
	return len(a.code)
}

// ForEachInstruction calls fn with the offset and the text of every encoded instruction,
// in order. It must be called after Assemble.
func (a *GolangAsmBaseAssembler) ForEachInstruction(fn func(pc int, text string)) {
	for _, p := range a.progs {
		if p.As == obj.ANOP {
			continue
		}
		fn(int(p.Pc), p.InstructionString())
	}
}

// AddInstruction is used in architecture specific assembler implementation for golang-asm.
func (a *GolangAsmBaseAssembler) AddInstruction(next *obj.Prog) {
	if a.assembled {
		panic("BUG: instruction added after Assemble")
	}
	a.b.AddInstruction(next)
	a.progs = append(a.progs, next)
	if len(a.pendingLabels) > 0 {
		target := NewGolangAsmNode(next)
		for _, l := range a.pendingLabels {
			l.Resolve(target)
		}
		a.pendingLabels = a.pendingLabels[:0]
	}
}

// JumpToLabel resolves the jump node to the label, now if the label has a target,
// otherwise once it gets one.
func (a *GolangAsmBaseAssembler) JumpToLabel(jump asm.Node, l *asm.Label) {
	l.AddJump(jump)
}

// NewProg is used in architecture specific assembler implementation for golang-asm.
func (a *GolangAsmBaseAssembler) NewProg() (prog *obj.Prog) {
	prog = a.b.NewProg()
	return
}

// ProgsSince returns the instructions added at or after the given position.
func (a *GolangAsmBaseAssembler) ProgsSince(pos int) []*obj.Prog {
	return a.progs[pos:]
}
