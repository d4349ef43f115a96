// Package testelf builds small, well-formed 32-bit ELF executables for tests.
//
// The image has a text segment starting at file offset 0 (ELF header, program
// headers, .note, .text), a data segment holding .data and .bss, followed by
// .comment, .shstrtab and the section header table.
package testelf

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Spec describes the image to build. Zero fields take the defaults below.
type Spec struct {
	Order   binary.ByteOrder // little endian
	Class   elf.Class        // ELFCLASS32
	Machine elf.Machine      // EM_MIPS
	Type    elf.Type         // ET_EXEC

	Base     uint32 // 0x400000, virtual address of the text segment
	Align    uint32 // 0x1000
	TextOff  uint32 // 0x100
	TextSize uint32 // 0x200
	DataSize uint32 // 0x40
	BssSize  uint32 // 0x20

	// TextFlags overrides the text segment's p_flags.
	TextFlags elf.ProgFlag
}

// Image is a built ELF file plus the layout the tests assert against.
type Image struct {
	Data []byte

	Entry     uint32
	TextOff   uint32 // .text
	TextEnd   uint32 // end of the text segment
	DataOff   uint32
	DataVaddr uint32
	ShOff     uint32
}

const (
	noteOff  = 0xb4
	noteSize = 0x20
)

// Section indices.
const (
	SecNull = iota
	SecNote
	SecText
	SecData
	SecBss
	SecComment
	SecShstrtab
	NumSections
)

// Program header indices.
const (
	ProgText = iota
	ProgData
	ProgNote
	ProgStack
	NumProgs
)

var shstrtab = []byte("\x00.note\x00.text\x00.data\x00.bss\x00.comment\x00.shstrtab\x00")

var nameIndex = [NumSections]uint32{0, 1, 7, 13, 19, 24, 33}

// TextFill is the byte pattern .text is filled with.
func TextFill(i int) byte {
	return byte(0xa0 + i%0x20)
}

// Build lays out and encodes the image described by s.
func Build(s Spec) *Image {
	if s.Order == nil {
		s.Order = binary.LittleEndian
	}
	if s.Class == elf.ELFCLASSNONE {
		s.Class = elf.ELFCLASS32
	}
	if s.Machine == elf.EM_NONE {
		s.Machine = elf.EM_MIPS
	}
	if s.Type == elf.ET_NONE {
		s.Type = elf.ET_EXEC
	}
	if s.Base == 0 {
		s.Base = 0x400000
	}
	if s.Align == 0 {
		s.Align = 0x1000
	}
	if s.TextOff == 0 {
		s.TextOff = 0x100
	}
	if s.TextSize == 0 {
		s.TextSize = 0x200
	}
	if s.DataSize == 0 {
		s.DataSize = 0x40
	}
	if s.BssSize == 0 {
		s.BssSize = 0x20
	}
	if s.TextFlags == 0 {
		s.TextFlags = elf.PF_R | elf.PF_X
	}

	img := &Image{
		TextOff: s.TextOff,
		TextEnd: s.TextOff + s.TextSize,
		Entry:   s.Base + s.TextOff,
	}
	img.DataOff = img.TextEnd
	img.DataVaddr = s.Base + s.Align + img.DataOff
	commentOff := img.DataOff + s.DataSize
	const commentSize = 0x10
	strOff := commentOff + commentSize
	img.ShOff = align4(strOff + uint32(len(shstrtab)))
	total := img.ShOff + NumSections*40

	buf := make([]byte, total)
	put := func(off uint32, v interface{}) {
		var b bytes.Buffer
		if err := binary.Write(&b, s.Order, v); err != nil {
			panic(err)
		}
		copy(buf[off:], b.Bytes())
	}

	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(s.Class)
	ident[elf.EI_DATA] = byte(elfData(s.Order))
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)
	put(0, elf.Header32{
		Ident:     ident,
		Type:      uint16(s.Type),
		Machine:   uint16(s.Machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     img.Entry,
		Phoff:     52,
		Shoff:     img.ShOff,
		Ehsize:    52,
		Phentsize: 32,
		Phnum:     NumProgs,
		Shentsize: 40,
		Shnum:     NumSections,
		Shstrndx:  SecShstrtab,
	})

	progs := [NumProgs]elf.Prog32{
		ProgText: {
			Type: uint32(elf.PT_LOAD), Off: 0, Vaddr: s.Base, Paddr: s.Base,
			Filesz: img.TextEnd, Memsz: img.TextEnd,
			Flags: uint32(s.TextFlags), Align: s.Align,
		},
		ProgData: {
			Type: uint32(elf.PT_LOAD), Off: img.DataOff, Vaddr: img.DataVaddr, Paddr: img.DataVaddr,
			Filesz: s.DataSize, Memsz: s.DataSize + s.BssSize,
			Flags: uint32(elf.PF_R | elf.PF_W), Align: s.Align,
		},
		ProgNote: {
			Type: uint32(elf.PT_NOTE), Off: noteOff, Vaddr: s.Base + noteOff, Paddr: s.Base + noteOff,
			Filesz: noteSize, Memsz: noteSize, Flags: uint32(elf.PF_R), Align: 4,
		},
		ProgStack: {
			Type: uint32(elf.PT_GNU_STACK), Flags: uint32(elf.PF_R | elf.PF_W), Align: 0x10,
		},
	}
	put(52, progs)

	for i := uint32(0); i < s.TextSize; i++ {
		buf[s.TextOff+i] = TextFill(int(i))
	}
	for i := uint32(0); i < s.DataSize; i++ {
		buf[img.DataOff+i] = 0xd0
	}
	copy(buf[commentOff:], "GCC: (botox) 1\x00")
	copy(buf[strOff:], shstrtab)

	alloc := uint32(elf.SHF_ALLOC)
	sections := [NumSections]elf.Section32{
		SecNote: {
			Type: uint32(elf.SHT_NOTE), Flags: alloc,
			Addr: s.Base + noteOff, Off: noteOff, Size: noteSize, Addralign: 4,
		},
		SecText: {
			Type: uint32(elf.SHT_PROGBITS), Flags: alloc | uint32(elf.SHF_EXECINSTR),
			Addr: s.Base + s.TextOff, Off: s.TextOff, Size: s.TextSize, Addralign: 16,
		},
		SecData: {
			Type: uint32(elf.SHT_PROGBITS), Flags: alloc | uint32(elf.SHF_WRITE),
			Addr: img.DataVaddr, Off: img.DataOff, Size: s.DataSize, Addralign: 16,
		},
		SecBss: {
			Type: uint32(elf.SHT_NOBITS), Flags: alloc | uint32(elf.SHF_WRITE),
			Addr: img.DataVaddr + s.DataSize, Off: commentOff, Size: s.BssSize, Addralign: 16,
		},
		SecComment: {
			Type: uint32(elf.SHT_PROGBITS), Off: commentOff, Size: commentSize, Addralign: 1, Entsize: 1,
		},
		SecShstrtab: {
			Type: uint32(elf.SHT_STRTAB), Off: strOff, Size: uint32(len(shstrtab)), Addralign: 1,
		},
	}
	for i := range sections {
		sections[i].Name = nameIndex[i]
	}
	put(img.ShOff, sections)

	img.Data = buf
	return img
}

func elfData(order binary.ByteOrder) elf.Data {
	if order == binary.ByteOrder(binary.BigEndian) {
		return elf.ELFDATA2MSB
	}
	return elf.ELFDATA2LSB
}

func align4(v uint32) uint32 {
	return (v + 3) &^ 3
}
