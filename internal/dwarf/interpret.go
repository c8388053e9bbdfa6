package dwarf

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/samber/lo"
	asmdwarf "github.com/twitchyliquid64/golang-asm/dwarf"

	"github.com/artquick/quick/internal/leb128"
)

// Row is the unwind state in effect from PC until the PC of the next row.
type Row struct {
	PC          int
	CFARegister Reg
	CFAOffset   int
	// Saved maps a register to the CFA-relative offset of its save slot.
	Saved map[Reg]int
}

func (r Row) clone() Row {
	r.Saved = lo.Assign(r.Saved)
	return r
}

// Interpret replays opcodes starting from initial and returns one Row per distinct PC.
// Expression opcodes are skipped.
func Interpret(opcodes []byte, initial Row) ([]Row, error) {
	r := bytes.NewReader(opcodes)
	cur := initial.clone()
	if cur.Saved == nil {
		cur.Saved = map[Reg]int{}
	}
	var rows []Row
	var stack []Row

	uleb := func() (int, error) {
		v, _, err := leb128.DecodeUint64(r)
		return int(v), err
	}
	sleb := func() (int, error) {
		v, _, err := leb128.DecodeInt64(r)
		return int(v), err
	}
	advance := func(delta int) {
		if delta == 0 {
			return
		}
		rows = append(rows, cur.clone())
		cur.PC += delta * CodeAlignmentFactor
	}

	for r.Len() > 0 {
		op, _ := r.ReadByte()
		switch op & 0xc0 {
		case asmdwarf.DW_CFA_advance_loc:
			advance(int(op & 0x3f))
			continue
		case asmdwarf.DW_CFA_offset:
			off, err := uleb()
			if err != nil {
				return nil, err
			}
			cur.Saved[Reg(op&0x3f)] = off * DataAlignmentFactor
			continue
		case asmdwarf.DW_CFA_restore:
			restore(&cur, initial, Reg(op&0x3f))
			continue
		}

		var err error
		switch op {
		case asmdwarf.DW_CFA_nop:
		case asmdwarf.DW_CFA_advance_loc1:
			var b byte
			if b, err = r.ReadByte(); err == nil {
				advance(int(b))
			}
		case asmdwarf.DW_CFA_advance_loc2:
			var v uint16
			if err = binary.Read(r, binary.LittleEndian, &v); err == nil {
				advance(int(v))
			}
		case asmdwarf.DW_CFA_advance_loc4:
			var v uint32
			if err = binary.Read(r, binary.LittleEndian, &v); err == nil {
				advance(int(v))
			}
		case asmdwarf.DW_CFA_offset_extended, asmdwarf.DW_CFA_offset_extended_sf:
			var reg, off int
			if reg, err = uleb(); err != nil {
				break
			}
			if op == asmdwarf.DW_CFA_offset_extended {
				off, err = uleb()
			} else {
				off, err = sleb()
			}
			cur.Saved[Reg(reg)] = off * DataAlignmentFactor
		case asmdwarf.DW_CFA_restore_extended:
			var reg int
			if reg, err = uleb(); err == nil {
				restore(&cur, initial, Reg(reg))
			}
		case asmdwarf.DW_CFA_undefined, asmdwarf.DW_CFA_same_value:
			var reg int
			if reg, err = uleb(); err == nil {
				delete(cur.Saved, Reg(reg))
			}
		case asmdwarf.DW_CFA_register, asmdwarf.DW_CFA_val_offset, asmdwarf.DW_CFA_val_offset_sf:
			if _, err = uleb(); err != nil {
				break
			}
			if op == asmdwarf.DW_CFA_val_offset_sf {
				_, err = sleb()
			} else {
				_, err = uleb()
			}
		case asmdwarf.DW_CFA_remember_state:
			stack = append(stack, cur.clone())
		case asmdwarf.DW_CFA_restore_state:
			if len(stack) == 0 {
				return nil, fmt.Errorf("restore_state without remember_state at offset %d", len(opcodes)-r.Len()-1)
			}
			pc := cur.PC
			cur = stack[len(stack)-1]
			cur.PC = pc
			stack = stack[:len(stack)-1]
		case asmdwarf.DW_CFA_def_cfa, asmdwarf.DW_CFA_def_cfa_sf:
			var reg, off int
			if reg, err = uleb(); err != nil {
				break
			}
			if op == asmdwarf.DW_CFA_def_cfa {
				off, err = uleb()
			} else {
				off, err = sleb()
				off *= DataAlignmentFactor
			}
			cur.CFARegister, cur.CFAOffset = Reg(reg), off
		case asmdwarf.DW_CFA_def_cfa_register:
			var reg int
			if reg, err = uleb(); err == nil {
				cur.CFARegister = Reg(reg)
			}
		case asmdwarf.DW_CFA_def_cfa_offset:
			cur.CFAOffset, err = uleb()
		case asmdwarf.DW_CFA_def_cfa_offset_sf:
			var off int
			if off, err = sleb(); err == nil {
				cur.CFAOffset = off * DataAlignmentFactor
			}
		case asmdwarf.DW_CFA_def_cfa_expression:
			err = skipBlock(r)
		case asmdwarf.DW_CFA_expression, asmdwarf.DW_CFA_val_expression:
			if _, err = uleb(); err == nil {
				err = skipBlock(r)
			}
		default:
			return nil, fmt.Errorf("unsupported CFA opcode %#x", op)
		}
		if err != nil {
			return nil, fmt.Errorf("decoding CFA opcode %#x: %w", op, err)
		}
	}
	return append(rows, cur), nil
}

func restore(cur *Row, initial Row, reg Reg) {
	if off, ok := initial.Saved[reg]; ok {
		cur.Saved[reg] = off
	} else {
		delete(cur.Saved, reg)
	}
}

func skipBlock(r *bytes.Reader) error {
	n, _, err := leb128.DecodeUint64(r)
	if err != nil {
		return err
	}
	if uint64(r.Len()) < n {
		return fmt.Errorf("block of %d bytes overruns the opcodes", n)
	}
	_, err = r.Seek(int64(n), 1)
	return err
}
