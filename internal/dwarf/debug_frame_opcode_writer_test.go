package dwarf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDebugFrameOpCodeWriter_AdvancePC(t *testing.T) {
	w := NewDebugFrameOpCodeWriter()
	pc := 0
	for _, delta := range []int{0, 1, 0x3f, 0x40, 0xff, 0x100, 0xffff, 0x10000} {
		pc += delta
		w.AdvancePC(pc)
	}
	require.Equal(t, []byte{
		0x41,
		0x7f,
		0x02, 0x40,
		0x02, 0xff,
		0x03, 0x00, 0x01,
		0x03, 0xff, 0xff,
		0x04, 0x00, 0x00, 0x01, 0x00,
	}, w.Data())
	require.Panics(t, func() { w.AdvancePC(0) })
}

func TestDebugFrameOpCodeWriter_encodings(t *testing.T) {
	const offset = 40000
	reg := Reg(6)
	for _, tc := range []struct {
		name string
		emit func(w *DebugFrameOpCodeWriter)
		exp  []byte
	}{
		{name: "def_cfa", emit: func(w *DebugFrameOpCodeWriter) { w.DefCFA(reg, offset) }, exp: []byte{0x0c, 0x06, 0xc0, 0xb8, 0x02}},
		{name: "def_cfa_sf", emit: func(w *DebugFrameOpCodeWriter) { w.DefCFA(reg, -offset) }, exp: []byte{0x12, 0x06, 0x90, 0xce, 0x00}},
		{name: "def_cfa_register", emit: func(w *DebugFrameOpCodeWriter) { w.DefCFARegister(reg) }, exp: []byte{0x0d, 0x06}},
		{name: "def_cfa_offset", emit: func(w *DebugFrameOpCodeWriter) { w.DefCFAOffset(offset) }, exp: []byte{0x0e, 0xc0, 0xb8, 0x02}},
		{name: "def_cfa_offset_sf", emit: func(w *DebugFrameOpCodeWriter) { w.DefCFAOffset(-offset) }, exp: []byte{0x13, 0x90, 0xce, 0x00}},
		{name: "def_cfa_expression", emit: func(w *DebugFrameOpCodeWriter) { w.DefCFAExpression([]byte{0}) }, exp: []byte{0x0f, 0x01, 0x00}},
		{name: "undefined", emit: func(w *DebugFrameOpCodeWriter) { w.Undefined(reg) }, exp: []byte{0x07, 0x06}},
		{name: "same_value", emit: func(w *DebugFrameOpCodeWriter) { w.SameValue(reg) }, exp: []byte{0x08, 0x06}},
		{name: "offset", emit: func(w *DebugFrameOpCodeWriter) { w.Offset(Reg(0x3f), -offset) }, exp: []byte{0xbf, 0x90, 0x4e}},
		{name: "offset_extended", emit: func(w *DebugFrameOpCodeWriter) { w.Offset(Reg(0x40), -offset) }, exp: []byte{0x05, 0x40, 0x90, 0x4e}},
		{name: "offset_extended_sf", emit: func(w *DebugFrameOpCodeWriter) { w.Offset(Reg(0x40), offset) }, exp: []byte{0x11, 0x40, 0xf0, 0xb1, 0x7f}},
		{name: "val_offset", emit: func(w *DebugFrameOpCodeWriter) { w.ValOffset(reg, -offset) }, exp: []byte{0x14, 0x06, 0x90, 0x4e}},
		{name: "val_offset_sf", emit: func(w *DebugFrameOpCodeWriter) { w.ValOffset(reg, offset) }, exp: []byte{0x15, 0x06, 0xf0, 0xb1, 0x7f}},
		{name: "register", emit: func(w *DebugFrameOpCodeWriter) { w.Register(reg, Reg(1)) }, exp: []byte{0x09, 0x06, 0x01}},
		{name: "expression", emit: func(w *DebugFrameOpCodeWriter) { w.Expression(reg, []byte{0}) }, exp: []byte{0x10, 0x06, 0x01, 0x00}},
		{name: "val_expression", emit: func(w *DebugFrameOpCodeWriter) { w.ValExpression(reg, []byte{0}) }, exp: []byte{0x16, 0x06, 0x01, 0x00}},
		{name: "restore", emit: func(w *DebugFrameOpCodeWriter) { w.Restore(Reg(0x3f)) }, exp: []byte{0xff}},
		{name: "restore_extended", emit: func(w *DebugFrameOpCodeWriter) { w.Restore(Reg(0x40)) }, exp: []byte{0x06, 0x40}},
		{name: "remember_state", emit: func(w *DebugFrameOpCodeWriter) { w.RememberState() }, exp: []byte{0x0a}},
		{name: "nop", emit: func(w *DebugFrameOpCodeWriter) { w.Nop() }, exp: []byte{0x00}},
	} {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			w := NewDebugFrameOpCodeWriter()
			tc.emit(w)
			require.Equal(t, tc.exp, w.Data())
		})
	}
}

func TestDebugFrameOpCodeWriter_helpers(t *testing.T) {
	w := NewDebugFrameOpCodeWriter()
	w.DefCFA(Reg(4), 100)
	w.AdjustCFAOffset(8)
	w.RelOffset(Reg(0), 0)
	w.RelOffset(Reg(1), 4)
	w.RelOffsetForMany(Reg(2), 8, 1|1<<3, 4)
	w.RestoreMany(Reg(2), 1|1<<3)
	require.Equal(t, []byte{
		0x0c, 0x04, 0x64, // def_cfa r4 ofs 100
		0x0e, 0x6c, // def_cfa_offset 108
		0x80, 0x1b, // r0 at cfa-108
		0x81, 0x1a, // r1 at cfa-104
		0x82, 0x19, // r2 at cfa-100
		0x85, 0x18, // r5 at cfa-96
		0xc2, 0xc5,
	}, w.Data())
	require.Equal(t, 108, w.CurrentCFAOffset())

	rows, err := Interpret(w.Data(), Row{})
	require.NoError(t, err)
	require.Equal(t, []Row{{CFARegister: 4, CFAOffset: 108, Saved: map[Reg]int{0: -108, 1: -104}}}, rows)
}

func TestDebugFrameOpCodeWriter_disabled(t *testing.T) {
	w := NewDebugFrameOpCodeWriter()
	w.SetEnabled(false)
	require.False(t, w.Enabled())
	w.AdjustCFAOffset(32)
	w.RelOffset(Reg(30), 24)
	w.Nop()
	require.Empty(t, w.Data())
	require.Equal(t, 32, w.CurrentCFAOffset())
}

func TestDebugFrameOpCodeWriter_rememberRestore(t *testing.T) {
	w := NewDebugFrameOpCodeWriter()
	w.SetCurrentCFAOffset(16)
	w.RememberState()
	w.AdjustCFAOffset(-8)
	w.AdjustCFAOffset(-8)
	require.Equal(t, 0, w.CurrentCFAOffset())
	w.RestoreState()
	require.Equal(t, 16, w.CurrentCFAOffset())
	require.Zero(t, w.RememberedStates())

	rows, err := Interpret(w.Data(), Row{CFAOffset: 16})
	require.NoError(t, err)
	require.Equal(t, 16, rows[len(rows)-1].CFAOffset)

	require.Panics(t, func() { w.RestoreState() })
}

func TestDebugFrameOpCodeWriter_Patch(t *testing.T) {
	w := NewDebugFrameOpCodeWriter()
	pos := 0
	w.SetPositionSource(func() int { return pos })

	w.AdjustCFAOffset(16)
	pos = 2
	w.RelOffset(Reg(30), 8)
	pos = 5
	w.AdjustCFAOffset(-16)
	require.Equal(t, []byte{0x0e, 0x10, 0x9e, 0x02, 0x0e, 0x00}, w.Data())

	w.Patch(func(pos int) int { return pos * 4 })
	require.Equal(t, []byte{0x0e, 0x10, 0x48, 0x9e, 0x02, 0x4c, 0x0e, 0x00}, w.Data())

	rows, err := Interpret(w.Data(), Row{})
	require.NoError(t, err)
	require.Equal(t, []Row{
		{PC: 0, CFAOffset: 16, Saved: map[Reg]int{}},
		{PC: 8, CFAOffset: 16, Saved: map[Reg]int{30: -8}},
		{PC: 20, CFAOffset: 0, Saved: map[Reg]int{30: -8}},
	}, rows)
}

func TestX86_64CoreMapping(t *testing.T) {
	var got []Reg
	for i := 0; i < 16; i++ {
		got = append(got, X86_64Core(i))
	}
	require.Equal(t, []Reg{0, 2, 1, 3, 7, 6, 4, 5, 8, 9, 10, 11, 12, 13, 14, 15}, got)
	require.Equal(t, Reg(17), X86_64Fp(0))
	require.Equal(t, Reg(64+16), ArmFp(16))
	require.Panics(t, func() { X86_64Core(16) })
}
