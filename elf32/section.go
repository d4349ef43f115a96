package elf32

import (
	"debug/elf"

	"github.com/pkg/errors"
)

// ShstrtabName is reported for the section name string table itself, whose
// name cannot be resolved through the table it names.
const ShstrtabName = ".shstrtab"

// Section header field offsets.
const (
	sName      = 0
	sType      = 4
	sFlags     = 8
	sAddr      = 12
	sOffset    = 16
	sSize      = 20
	sLink      = 24
	sInfo      = 28
	sAddralign = 32
	sEntsize   = 36
)

// SectionHeader accesses one entry of the section header table. Its address
// follows e_shoff and e_shentsize.
type SectionHeader struct {
	f     *File
	index int
}

func (s SectionHeader) Index() int { return s.index }

func (s SectionHeader) addr(field int64) int64 {
	h := s.f.Header()
	return int64(h.Shoff()) + int64(s.index)*int64(h.Shentsize()) + field
}

func (s SectionHeader) NameIndex() uint32           { return s.f.get(s.addr(sName), 4) }
func (s SectionHeader) Type() elf.SectionType       { return elf.SectionType(s.f.get(s.addr(sType), 4)) }
func (s SectionHeader) Flags() elf.SectionFlag      { return elf.SectionFlag(s.f.get(s.addr(sFlags), 4)) }
func (s SectionHeader) Addr() uint32                { return s.f.get(s.addr(sAddr), 4) }
func (s SectionHeader) Offset() uint32              { return s.f.get(s.addr(sOffset), 4) }
func (s SectionHeader) Size() uint32                { return s.f.get(s.addr(sSize), 4) }
func (s SectionHeader) Link() uint32                { return s.f.get(s.addr(sLink), 4) }
func (s SectionHeader) Info() uint32                { return s.f.get(s.addr(sInfo), 4) }
func (s SectionHeader) Addralign() uint32           { return s.f.get(s.addr(sAddralign), 4) }
func (s SectionHeader) Entsize() uint32             { return s.f.get(s.addr(sEntsize), 4) }
func (s SectionHeader) SetNameIndex(v uint32)       { s.f.set(s.addr(sName), 4, v) }
func (s SectionHeader) SetType(t elf.SectionType)   { s.f.set(s.addr(sType), 4, uint32(t)) }
func (s SectionHeader) SetFlags(fl elf.SectionFlag) { s.f.set(s.addr(sFlags), 4, uint32(fl)) }
func (s SectionHeader) SetAddr(v uint32)            { s.f.set(s.addr(sAddr), 4, v) }
func (s SectionHeader) SetOffset(v uint32)          { s.f.set(s.addr(sOffset), 4, v) }
func (s SectionHeader) SetSize(v uint32)            { s.f.set(s.addr(sSize), 4, v) }
func (s SectionHeader) SetLink(v uint32)            { s.f.set(s.addr(sLink), 4, v) }
func (s SectionHeader) SetInfo(v uint32)            { s.f.set(s.addr(sInfo), 4, v) }
func (s SectionHeader) SetAddralign(v uint32)       { s.f.set(s.addr(sAddralign), 4, v) }
func (s SectionHeader) SetEntsize(v uint32)         { s.f.set(s.addr(sEntsize), 4, v) }

func (s SectionHeader) Write() bool { return s.Flags()&elf.SHF_WRITE != 0 }
func (s SectionHeader) Alloc() bool { return s.Flags()&elf.SHF_ALLOC != 0 }
func (s SectionHeader) Exec() bool  { return s.Flags()&elf.SHF_EXECINSTR != 0 }

func (s SectionHeader) SetWrite(on bool) { s.setFlag(elf.SHF_WRITE, on) }
func (s SectionHeader) SetAlloc(on bool) { s.setFlag(elf.SHF_ALLOC, on) }
func (s SectionHeader) SetExec(on bool)  { s.setFlag(elf.SHF_EXECINSTR, on) }

func (s SectionHeader) setFlag(bit elf.SectionFlag, on bool) {
	fl := s.Flags()
	if on {
		fl |= bit
	} else {
		fl &^= bit
	}
	s.SetFlags(fl)
}

func (s SectionHeader) isStrtab() bool {
	ndx := s.f.Header().Shstrndx()
	return ndx != uint16(elf.SHN_UNDEF) && s.index == int(ndx)
}

// strtabOffset returns the file offset of this section's name, or false when
// the file has no usable section name string table.
func (s SectionHeader) strtabOffset() (int64, bool) {
	h := s.f.Header()
	ndx := h.Shstrndx()
	if ndx == uint16(elf.SHN_UNDEF) || ndx >= h.Shnum() {
		return 0, false
	}
	return int64(s.f.Section(int(ndx)).Offset()) + int64(s.NameIndex()), true
}

// Name resolves sh_name through the section name string table.
func (s SectionHeader) Name() string {
	if s.isStrtab() {
		return ShstrtabName
	}
	off, ok := s.strtabOffset()
	if !ok || s.f.err != nil {
		return ""
	}
	name, err := s.f.v.ReadCString(off)
	if err != nil {
		s.f.err = err
		return ""
	}
	return string(name)
}

// SetName overwrites the section's name in place. The new name may not be
// longer than the current one.
func (s SectionHeader) SetName(name string) error {
	if s.isStrtab() {
		return errors.Errorf("the name of %s cannot be changed", ShstrtabName)
	}
	off, ok := s.strtabOffset()
	if !ok {
		return errors.New("file has no section name string table")
	}
	if s.f.err != nil {
		return s.f.err
	}
	return errors.Wrapf(s.f.v.WriteCString(off, []byte(name)), "renaming section %d", s.index)
}
