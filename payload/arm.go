package payload

import (
	"encoding/binary"
)

const armPause = 29

const armNop = 0xe1a00000 // mov r0, r0

// The jump target sits in a literal word right after the ldr, which reads
// pc as its own address plus 8. It has to start past byte 16.
func arm(jump uint32, order binary.ByteOrder) ([]byte, error) {
	return words(order,
		0xe3a07000|armPause, // mov   r7, #__NR_pause
		0xef000000,          // svc   #0
		armNop,              // nop
		armNop,              // nop
		0xe51ff004,          // ldr   pc, [pc, #-4]
		jump,                // .word jump
	), nil
}
