package elf32

import (
	"debug/elf"
)

// Ident accesses e_ident.
type Ident struct {
	f *File
}

func (id Ident) Magic() []byte {
	if id.f.err != nil {
		return nil
	}
	b, err := id.f.v.Read(0, 4)
	if err != nil {
		id.f.err = err
	}
	return b
}

func (id Ident) Class() elf.Class     { return elf.Class(id.f.get(elf.EI_CLASS, 1)) }
func (id Ident) Data() elf.Data       { return elf.Data(id.f.get(elf.EI_DATA, 1)) }
func (id Ident) Version() elf.Version { return elf.Version(id.f.get(elf.EI_VERSION, 1)) }

func (id Ident) SetVersion(v elf.Version) { id.f.set(elf.EI_VERSION, 1, uint32(v)) }

// Header accesses the fixed ELF32 file header.
type Header struct {
	f *File
}

func (h Header) Type() elf.Type       { return elf.Type(h.f.get(offType, 2)) }
func (h Header) Machine() elf.Machine { return elf.Machine(h.f.get(offMachine, 2)) }
func (h Header) Version() uint32      { return h.f.get(offVersion, 4) }
func (h Header) Entry() uint32        { return h.f.get(offEntry, 4) }
func (h Header) Phoff() uint32        { return h.f.get(offPhoff, 4) }
func (h Header) Shoff() uint32        { return h.f.get(offShoff, 4) }
func (h Header) Flags() uint32        { return h.f.get(offFlags, 4) }
func (h Header) Ehsize() uint16       { return uint16(h.f.get(offEhsize, 2)) }
func (h Header) Phentsize() uint16    { return uint16(h.f.get(offPhentsize, 2)) }
func (h Header) Phnum() uint16        { return uint16(h.f.get(offPhnum, 2)) }
func (h Header) Shentsize() uint16    { return uint16(h.f.get(offShentsize, 2)) }
func (h Header) Shnum() uint16        { return uint16(h.f.get(offShnum, 2)) }
func (h Header) Shstrndx() uint16     { return uint16(h.f.get(offShstrndx, 2)) }

func (h Header) SetType(t elf.Type)       { h.f.set(offType, 2, uint32(t)) }
func (h Header) SetMachine(m elf.Machine) { h.f.set(offMachine, 2, uint32(m)) }
func (h Header) SetVersion(v uint32)      { h.f.set(offVersion, 4, v) }
func (h Header) SetEntry(v uint32)        { h.f.set(offEntry, 4, v) }
func (h Header) SetPhoff(v uint32)        { h.f.set(offPhoff, 4, v) }
func (h Header) SetShoff(v uint32)        { h.f.set(offShoff, 4, v) }
func (h Header) SetFlags(v uint32)        { h.f.set(offFlags, 4, v) }
func (h Header) SetEhsize(v uint16)       { h.f.set(offEhsize, 2, uint32(v)) }
func (h Header) SetPhentsize(v uint16)    { h.f.set(offPhentsize, 2, uint32(v)) }
func (h Header) SetPhnum(v uint16)        { h.f.set(offPhnum, 2, uint32(v)) }
func (h Header) SetShentsize(v uint16)    { h.f.set(offShentsize, 2, uint32(v)) }
func (h Header) SetShnum(v uint16)        { h.f.set(offShnum, 2, uint32(v)) }
func (h Header) SetShstrndx(v uint16)     { h.f.set(offShstrndx, 2, uint32(v)) }
