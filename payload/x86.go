package payload

import (
	"bytes"
	"encoding/binary"

	"github.com/devttys0/botox/elf32"
)

var preserve32 = []byte{0x60} //pusha

var restoration32 = []byte{0x61} //popa

var pause32 = []byte{
	0xb8, 0x1d, 0x00, 0x00, 0x00, //mov    $0x1d,%eax
	0xcd, 0x80, //int    $0x80
}

func x86(jump uint32, order binary.ByteOrder) ([]byte, error) {
	if err := littleEndianOnly(elf32.ArchX86, order); err != nil {
		return nil, err
	}
	var stub bytes.Buffer
	stub.Write(preserve32)
	stub.Write(pause32)
	stub.Write(restoration32)
	for stub.Len() < 16 {
		stub.WriteByte(0x90) //nop
	}

	//push   $jump
	//ret
	stub.WriteByte(0x68)
	stub.Write(words(binary.LittleEndian, jump))
	stub.WriteByte(0xc3)
	return stub.Bytes(), nil
}

// syscall clobbers rcx and r11; the rest are what the loader hands _start.
var preserveX32 = []byte{
	0x57,       //push   %rdi
	0x56,       //push   %rsi
	0x52,       //push   %rdx
	0x51,       //push   %rcx
	0x41, 0x53, //push   %r11
}

var restorationX32 = []byte{
	0x41, 0x5b, //pop    %r11
	0x59, //pop    %rcx
	0x5a, //pop    %rdx
	0x5e, //pop    %rsi
	0x5f, //pop    %rdi
}

// x32 syscalls are the x86-64 numbers with bit 30 set.
var pauseX32 = []byte{
	0xb8, 0x22, 0x00, 0x00, 0x40, //mov    $0x40000022,%eax
	0x0f, 0x05, //syscall
}

func x32(jump uint32, order binary.ByteOrder) ([]byte, error) {
	if err := littleEndianOnly(elf32.ArchX8664, order); err != nil {
		return nil, err
	}
	var stub bytes.Buffer
	stub.Write(preserveX32)
	stub.Write(pauseX32)
	stub.Write(restorationX32)

	//mov    $jump,%eax
	//jmp    *%rax
	stub.WriteByte(0xb8)
	stub.Write(words(binary.LittleEndian, jump))
	stub.Write([]byte{0xff, 0xe0})
	return stub.Bytes(), nil
}
