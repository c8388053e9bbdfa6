package jnicompiler

import (
	"github.com/artquick/quick/internal/dwarf"
	"github.com/artquick/quick/internal/isa"
)

// cie describes the state at the entry of every stub of an instruction set.
type cie struct {
	returnAddress dwarf.Reg
	opcodes       []byte
	initial       dwarf.Row
}

func newCIE(set isa.InstructionSet) cie {
	w := dwarf.NewDebugFrameOpCodeWriter()
	var ret cie
	switch set {
	case isa.Arm, isa.Thumb2:
		sp := dwarf.ArmCore(13)
		w.DefCFA(sp, 0)
		ret.returnAddress = dwarf.ArmCore(14)
		ret.initial = dwarf.Row{CFARegister: sp}
	case isa.Arm64:
		sp := dwarf.Arm64Core(31)
		w.DefCFA(sp, 0)
		ret.returnAddress = dwarf.Arm64Core(30)
		ret.initial = dwarf.Row{CFARegister: sp}
	case isa.X86:
		// The call pushed the return address.
		esp := dwarf.X86Core(4)
		w.DefCFA(esp, 4)
		w.Offset(dwarf.X86ReturnAddress, -4)
		ret.returnAddress = dwarf.X86ReturnAddress
		ret.initial = dwarf.Row{CFARegister: esp, CFAOffset: 4, Saved: map[dwarf.Reg]int{dwarf.X86ReturnAddress: -4}}
	case isa.X86_64:
		rsp := dwarf.X86_64Core(4)
		w.DefCFA(rsp, 8)
		w.Offset(dwarf.X86_64ReturnAddress, -8)
		ret.returnAddress = dwarf.X86_64ReturnAddress
		ret.initial = dwarf.Row{CFARegister: rsp, CFAOffset: 8, Saved: map[dwarf.Reg]int{dwarf.X86_64ReturnAddress: -8}}
	default:
		panic("BUG: no CIE for " + set.String())
	}
	ret.opcodes = w.Data()
	return ret
}

// DebugFrame returns a .debug_frame section holding one CIE and the FDE of the stub,
// for the code loaded at codeAddress. It returns nil without call frame information.
func (c *CompiledMethod) DebugFrame(codeAddress uint64) []byte {
	img := NewImage(c.ISA)
	if _, err := img.Add(c); err != nil {
		panic("BUG: " + err.Error())
	}
	return img.DebugFrame(codeAddress)
}

// UnwindRows replays the call frame information of the stub from the state at its entry.
func (c *CompiledMethod) UnwindRows() ([]dwarf.Row, error) {
	return dwarf.Interpret(c.CFI, newCIE(c.ISA).initial)
}
