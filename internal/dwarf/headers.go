package dwarf

import (
	"encoding/binary"

	asmdwarf "github.com/twitchyliquid64/golang-asm/dwarf"
)

const (
	dwEHPEAbsptr = 0x00
	dwEHPEUdata4 = 0x03
	dwEHPEUdata8 = 0x04

	// cieID marks a CIE in .debug_frame.
	cieID = 0xffffffff
)

// WriteCIE appends a .debug_frame Common Information Entry to buf. opcodes are the
// initial instructions shared by every FDE referring to the CIE.
func WriteCIE(is64bit bool, returnAddressRegister Reg, opcodes []byte, buf []byte) []byte {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // Length, patched below.
	buf = binary.LittleEndian.AppendUint32(buf, cieID)
	buf = append(buf, 1) // Version.
	buf = append(buf, 'z', 'R', 0)
	buf = asmdwarf.AppendUleb128(buf, CodeAlignmentFactor)
	buf = asmdwarf.AppendSleb128(buf, DataAlignmentFactor)
	buf = asmdwarf.AppendUleb128(buf, uint64(returnAddressRegister.Num()))
	buf = asmdwarf.AppendUleb128(buf, 1) // Augmentation data size.
	if is64bit {
		buf = append(buf, dwEHPEAbsptr|dwEHPEUdata8)
	} else {
		buf = append(buf, dwEHPEAbsptr|dwEHPEUdata4)
	}
	buf = append(buf, opcodes...)
	buf = pad(buf, start, is64bit)
	binary.LittleEndian.PutUint32(buf[start:], uint32(len(buf)-start-4))
	return buf
}

// WriteFDE appends a Frame Description Entry covering [codeAddress, codeAddress+codeSize) to
// buf. cieOffset is the offset of the CIE in the section. It returns the extended buffer and
// the offset of the code address field, which needs a relocation if the code moves.
func WriteFDE(is64bit bool, cieOffset uint32, codeAddress, codeSize uint64, opcodes []byte, buf []byte) ([]byte, int) {
	start := len(buf)
	buf = binary.LittleEndian.AppendUint32(buf, 0) // Length, patched below.
	buf = binary.LittleEndian.AppendUint32(buf, cieOffset)
	patch := len(buf)
	if is64bit {
		buf = binary.LittleEndian.AppendUint64(buf, codeAddress)
		buf = binary.LittleEndian.AppendUint64(buf, codeSize)
	} else {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(codeAddress))
		buf = binary.LittleEndian.AppendUint32(buf, uint32(codeSize))
	}
	buf = asmdwarf.AppendUleb128(buf, 0) // Augmentation data size.
	buf = append(buf, opcodes...)
	buf = pad(buf, start, is64bit)
	binary.LittleEndian.PutUint32(buf[start:], uint32(len(buf)-start-4))
	return buf, patch
}

// pad appends DW_CFA_nop until the entry starting at start is pointer aligned.
func pad(buf []byte, start int, is64bit bool) []byte {
	align := 4
	if is64bit {
		align = 8
	}
	for (len(buf)-start)%align != 0 {
		buf = append(buf, asmdwarf.DW_CFA_nop)
	}
	return buf
}
