package payload

import (
	"encoding/binary"
)

// o32 syscall numbers start at 4000.
const mipsPause = 4000 + 29

// The two nops keep the jump target out of the first 16 bytes.
func mips(jump uint32, order binary.ByteOrder) ([]byte, error) {
	return words(order,
		0x24020000|mipsPause,   // li    v0, __NR_pause
		0x0000000c,             // syscall
		0x00000000,             // nop
		0x00000000,             // nop
		0x3c080000|jump>>16,    // lui   t0, %hi(jump)
		0x35080000|jump&0xffff, // ori   t0, t0, %lo(jump)
		0x01000008,             // jr    t0
		0x00000000,             // nop
	), nil
}
