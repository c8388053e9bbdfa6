package dwarf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteCIE_FDE(t *testing.T) {
	for _, tc := range []struct {
		is64bit        bool
		cieSize, patch int
	}{
		{is64bit: false, cieSize: 20, patch: 28},
		{is64bit: true, cieSize: 24, patch: 32},
	} {
		tc := tc
		t.Run("", func(t *testing.T) {
			ra := Reg(8)
			if tc.is64bit {
				ra = Reg(16)
			}
			buf := WriteCIE(tc.is64bit, ra, nil, nil)
			require.Equal(t, tc.cieSize, len(buf))
			require.Equal(t, uint32(tc.cieSize-4), binary.LittleEndian.Uint32(buf))
			require.Equal(t, uint32(0xffffffff), binary.LittleEndian.Uint32(buf[4:]))
			require.Equal(t, []byte{1, 'z', 'R', 0, 1, 0x7c, byte(ra)}, buf[8:15])

			opcodes := []byte{0x0e, 0x10}
			buf, patch := WriteFDE(tc.is64bit, 0, 0x1000, 0x40, opcodes, buf)
			require.Equal(t, tc.patch, patch)
			require.Zero(t, len(buf)%4)
			fdeLen := binary.LittleEndian.Uint32(buf[tc.cieSize:])
			require.Equal(t, len(buf)-tc.cieSize-4, int(fdeLen))
			if tc.is64bit {
				require.Equal(t, uint64(0x1000), binary.LittleEndian.Uint64(buf[patch:]))
				require.Equal(t, uint64(0x40), binary.LittleEndian.Uint64(buf[patch+8:]))
			} else {
				require.Equal(t, uint32(0x1000), binary.LittleEndian.Uint32(buf[patch:]))
				require.Equal(t, uint32(0x40), binary.LittleEndian.Uint32(buf[patch+4:]))
			}
		})
	}
}
