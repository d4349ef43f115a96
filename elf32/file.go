// Package elf32 is a live, typed overlay over a 32-bit ELF image. Nothing is
// parsed up front: every accessor computes its byte address from the current
// header fields and reads or writes straight through to the elfio.View, so a
// header can never drift out of sync with the bytes it describes.
//
// Accessors do not return errors. The first failed access is remembered and
// returned by File.Err, after which reads return zero and writes are dropped.
package elf32

import (
	"bytes"
	"debug/elf"
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/devttys0/botox/elfio"
)

// ErrFormat reports an image that is not a usable 32-bit ELF file.
var ErrFormat = errors.New("malformed ELF")

const (
	identSize   = elf.EI_NIDENT
	HeaderSize  = 52
	ProgSize    = 32
	SectionSize = 40
)

// File header field offsets.
const (
	offType      = 16
	offMachine   = 18
	offVersion   = 20
	offEntry     = 24
	offPhoff     = 28
	offShoff     = 32
	offFlags     = 36
	offEhsize    = 40
	offPhentsize = 42
	offPhnum     = 44
	offShentsize = 46
	offShnum     = 48
	offShstrndx  = 50
)

// File is an ELF32 overlay over a View.
type File struct {
	v     *elfio.View
	order binary.ByteOrder
	err   error
}

// New checks the identity and table bounds of the image in v and returns an
// overlay over it. 64-bit images are rejected.
func New(v *elfio.View) (*File, error) {
	if v.Size() < HeaderSize {
		return nil, errors.Wrapf(ErrFormat, "file is %d bytes, shorter than an ELF header", v.Size())
	}
	ident, err := v.Read(0, identSize)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(ident[:4], []byte(elf.ELFMAG)) {
		return nil, errors.Wrapf(ErrFormat, "bad magic %q", ident[:4])
	}

	switch c := elf.Class(ident[elf.EI_CLASS]); c {
	case elf.ELFCLASS32:
	case elf.ELFCLASS64:
		return nil, errors.Wrap(ErrFormat, "64-bit ELF layouts are not supported")
	default:
		return nil, errors.Wrapf(ErrFormat, "invalid class %d", c)
	}

	f := &File{v: v}
	switch d := elf.Data(ident[elf.EI_DATA]); d {
	case elf.ELFDATA2LSB:
		f.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		f.order = binary.BigEndian
	default:
		return nil, errors.Wrapf(ErrFormat, "unknown byte order %d", d)
	}

	if err := f.checkTables(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) checkTables() error {
	h := f.Header()
	size := f.v.Size()
	if n := h.Phnum(); n > 0 {
		if h.Phentsize() < ProgSize {
			return errors.Wrapf(ErrFormat, "program header size %d < %d", h.Phentsize(), ProgSize)
		}
		if end := int64(h.Phoff()) + int64(n)*int64(h.Phentsize()); end > size {
			return errors.Wrapf(ErrFormat, "program header table ends at 0x%x past end of file 0x%x", end, size)
		}
	}
	if n := h.Shnum(); n > 0 {
		if h.Shentsize() < SectionSize {
			return errors.Wrapf(ErrFormat, "section header size %d < %d", h.Shentsize(), SectionSize)
		}
		if end := int64(h.Shoff()) + int64(n)*int64(h.Shentsize()); end > size {
			return errors.Wrapf(ErrFormat, "section header table ends at 0x%x past end of file 0x%x", end, size)
		}
	}
	return f.err
}

// Err returns the first error hit by an accessor.
func (f *File) Err() error {
	return f.err
}

// View returns the underlying byte view.
func (f *File) View() *elfio.View {
	return f.v
}

// ByteOrder is the byte order declared by the identity.
func (f *File) ByteOrder() binary.ByteOrder {
	return f.order
}

func (f *File) get(off int64, width int) uint32 {
	if f.err != nil {
		return 0
	}
	val, err := f.v.ReadUint(off, width, f.order)
	if err != nil {
		f.err = err
		return 0
	}
	return uint32(val)
}

func (f *File) set(off int64, width int, val uint32) {
	if f.err != nil {
		return
	}
	if err := f.v.WriteUint(off, width, f.order, uint64(val)); err != nil {
		f.err = err
	}
}

func (f *File) Ident() Ident {
	return Ident{f: f}
}

func (f *File) Header() Header {
	return Header{f: f}
}

// Prog returns the accessor for program header i.
func (f *File) Prog(i int) ProgHeader {
	return ProgHeader{f: f, index: i}
}

// Progs returns accessors for every program header currently in the table.
func (f *File) Progs() []ProgHeader {
	n := int(f.Header().Phnum())
	progs := make([]ProgHeader, n)
	for i := range progs {
		progs[i] = f.Prog(i)
	}
	return progs
}

// Section returns the accessor for section header i.
func (f *File) Section(i int) SectionHeader {
	return SectionHeader{f: f, index: i}
}

// Sections returns accessors for every section header currently in the table.
func (f *File) Sections() []SectionHeader {
	n := int(f.Header().Shnum())
	sections := make([]SectionHeader, n)
	for i := range sections {
		sections[i] = f.Section(i)
	}
	return sections
}

// SectionByName returns the first section called name.
func (f *File) SectionByName(name string) (SectionHeader, bool) {
	for _, s := range f.Sections() {
		if s.Name() == name {
			return s, true
		}
	}
	return SectionHeader{}, false
}

// OffsetOf maps a virtual address to a file offset through the LOAD segments.
// Addresses that fall in the zero-filled tail of a segment have no file offset.
func (f *File) OffsetOf(vaddr uint32) (uint32, bool) {
	for _, p := range f.Progs() {
		if p.Type() != elf.PT_LOAD {
			continue
		}
		start := p.Vaddr()
		if vaddr >= start && uint64(vaddr) < uint64(start)+uint64(p.Filesz()) {
			return p.Off() + (vaddr - start), true
		}
	}
	return 0, false
}
