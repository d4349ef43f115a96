package elf32

import (
	"debug/elf"
)

// Program header field offsets.
const (
	pType   = 0
	pOffset = 4
	pVaddr  = 8
	pPaddr  = 12
	pFilesz = 16
	pMemsz  = 20
	pFlags  = 24
	pAlign  = 28
)

// ProgHeader accesses one entry of the program header table. Its address
// follows e_phoff and e_phentsize.
type ProgHeader struct {
	f     *File
	index int
}

func (p ProgHeader) Index() int { return p.index }

func (p ProgHeader) addr(field int64) int64 {
	h := p.f.Header()
	return int64(h.Phoff()) + int64(p.index)*int64(h.Phentsize()) + field
}

func (p ProgHeader) Type() elf.ProgType  { return elf.ProgType(p.f.get(p.addr(pType), 4)) }
func (p ProgHeader) Off() uint32         { return p.f.get(p.addr(pOffset), 4) }
func (p ProgHeader) Vaddr() uint32       { return p.f.get(p.addr(pVaddr), 4) }
func (p ProgHeader) Paddr() uint32       { return p.f.get(p.addr(pPaddr), 4) }
func (p ProgHeader) Filesz() uint32      { return p.f.get(p.addr(pFilesz), 4) }
func (p ProgHeader) Memsz() uint32       { return p.f.get(p.addr(pMemsz), 4) }
func (p ProgHeader) Flags() elf.ProgFlag { return elf.ProgFlag(p.f.get(p.addr(pFlags), 4)) }
func (p ProgHeader) Align() uint32       { return p.f.get(p.addr(pAlign), 4) }

func (p ProgHeader) SetType(t elf.ProgType)   { p.f.set(p.addr(pType), 4, uint32(t)) }
func (p ProgHeader) SetOff(v uint32)          { p.f.set(p.addr(pOffset), 4, v) }
func (p ProgHeader) SetVaddr(v uint32)        { p.f.set(p.addr(pVaddr), 4, v) }
func (p ProgHeader) SetPaddr(v uint32)        { p.f.set(p.addr(pPaddr), 4, v) }
func (p ProgHeader) SetFilesz(v uint32)       { p.f.set(p.addr(pFilesz), 4, v) }
func (p ProgHeader) SetMemsz(v uint32)        { p.f.set(p.addr(pMemsz), 4, v) }
func (p ProgHeader) SetFlags(fl elf.ProgFlag) { p.f.set(p.addr(pFlags), 4, uint32(fl)) }
func (p ProgHeader) SetAlign(v uint32)        { p.f.set(p.addr(pAlign), 4, v) }

func (p ProgHeader) Readable() bool   { return p.Flags()&elf.PF_R != 0 }
func (p ProgHeader) Writable() bool   { return p.Flags()&elf.PF_W != 0 }
func (p ProgHeader) Executable() bool { return p.Flags()&elf.PF_X != 0 }

func (p ProgHeader) SetReadable(on bool)   { p.setFlag(elf.PF_R, on) }
func (p ProgHeader) SetWritable(on bool)   { p.setFlag(elf.PF_W, on) }
func (p ProgHeader) SetExecutable(on bool) { p.setFlag(elf.PF_X, on) }

func (p ProgHeader) setFlag(bit elf.ProgFlag, on bool) {
	fl := p.Flags()
	if on {
		fl |= bit
	} else {
		fl &^= bit
	}
	p.SetFlags(fl)
}

// Contains reports whether vaddr lies in the segment's memory image.
func (p ProgHeader) Contains(vaddr uint32) bool {
	start := p.Vaddr()
	return vaddr >= start && uint64(vaddr) < uint64(start)+uint64(p.Memsz())
}
