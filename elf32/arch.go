package elf32

import (
	"debug/elf"

	"github.com/pkg/errors"
)

// ErrUnsupportedArchitecture is returned for machine, class and byte order
// combinations that have no payload provider.
var ErrUnsupportedArchitecture = errors.New("unsupported architecture")

// Arch identifies an instruction set the patcher knows how to target.
type Arch int

const (
	ArchUnknown Arch = iota
	ArchX86
	ArchX8664
	ArchMIPS
	ArchARM
)

var archNames = map[Arch]string{
	ArchUnknown: "unknown",
	ArchX86:     "x86",
	ArchX8664:   "x86-64",
	ArchMIPS:    "mips",
	ArchARM:     "arm",
}

func (a Arch) String() string {
	if s, ok := archNames[a]; ok {
		return s
	}
	return archNames[ArchUnknown]
}

type archKey struct {
	machine elf.Machine
	class   elf.Class
	data    elf.Data
}

// x86-64 only shows up here with the 32-bit (x32) layout.
var archTable = map[archKey]Arch{
	{elf.EM_386, elf.ELFCLASS32, elf.ELFDATA2LSB}:    ArchX86,
	{elf.EM_X86_64, elf.ELFCLASS32, elf.ELFDATA2LSB}: ArchX8664,
	{elf.EM_MIPS, elf.ELFCLASS32, elf.ELFDATA2LSB}:   ArchMIPS,
	{elf.EM_MIPS, elf.ELFCLASS32, elf.ELFDATA2MSB}:   ArchMIPS,
	{elf.EM_ARM, elf.ELFCLASS32, elf.ELFDATA2LSB}:    ArchARM,
	{elf.EM_ARM, elf.ELFCLASS32, elf.ELFDATA2MSB}:    ArchARM,
}

// Arch identifies the target from e_machine, EI_CLASS and EI_DATA.
func (f *File) Arch() (Arch, error) {
	key := archKey{
		machine: f.Header().Machine(),
		class:   f.Ident().Class(),
		data:    f.Ident().Data(),
	}
	if f.err != nil {
		return ArchUnknown, f.err
	}
	if a, ok := archTable[key]; ok {
		return a, nil
	}
	return ArchUnknown, errors.Wrapf(ErrUnsupportedArchitecture, "%s %s %s", key.machine, key.class, key.data)
}
