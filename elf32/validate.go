package elf32

import (
	"debug/elf"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Validate checks the layout described by the headers against the size of
// the image and returns every violation it finds. Each reported error wraps
// ErrFormat.
func (f *File) Validate() error {
	var result *multierror.Error
	bad := func(format string, args ...interface{}) {
		result = multierror.Append(result, errors.Wrapf(ErrFormat, format, args...))
	}

	size := uint64(f.v.Size())
	h := f.Header()

	if end := uint64(h.Phoff()) + uint64(h.Phnum())*uint64(h.Phentsize()); end > size {
		bad("program header table ends at 0x%x past end of file 0x%x", end, size)
	}
	if end := uint64(h.Shoff()) + uint64(h.Shnum())*uint64(h.Shentsize()); end > size {
		bad("section header table ends at 0x%x past end of file 0x%x", end, size)
	}
	if n := h.Shnum(); n > 0 && h.Shstrndx() >= n {
		bad("section name table index %d out of range (%d sections)", h.Shstrndx(), n)
	}
	if result != nil {
		// tables themselves are unreadable, the entries would be garbage
		return result.ErrorOrNil()
	}

	for _, p := range f.Progs() {
		if end := uint64(p.Off()) + uint64(p.Filesz()); end > size {
			bad("segment %d (%s) ends at 0x%x past end of file 0x%x", p.Index(), p.Type(), end, size)
		}
		if p.Type() != elf.PT_LOAD {
			continue
		}
		if p.Filesz() > p.Memsz() {
			bad("segment %d file size 0x%x exceeds memory size 0x%x", p.Index(), p.Filesz(), p.Memsz())
		}
		if a := p.Align(); a > 1 {
			if a&(a-1) != 0 {
				bad("segment %d alignment 0x%x is not a power of two", p.Index(), a)
			} else if p.Off()%a != p.Vaddr()%a {
				bad("segment %d offset 0x%x and address 0x%x disagree modulo 0x%x", p.Index(), p.Off(), p.Vaddr(), a)
			}
		}
	}

	for _, s := range f.Sections() {
		if s.Type() == elf.SHT_NULL || s.Type() == elf.SHT_NOBITS {
			continue
		}
		if end := uint64(s.Offset()) + uint64(s.Size()); end > size {
			bad("section %d %q ends at 0x%x past end of file 0x%x", s.Index(), s.Name(), end, size)
		}
	}

	if h.Type() == elf.ET_EXEC && h.Phnum() > 0 {
		if _, ok := f.OffsetOf(h.Entry()); !ok {
			bad("entry point 0x%x is not backed by any LOAD segment", h.Entry())
		}
	}

	if f.err != nil {
		result = multierror.Append(result, f.err)
	}
	return result.ErrorOrNil()
}
