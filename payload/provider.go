// Package payload generates the machine code that botox places at a patched
// binary's new entry point. Every stub pauses the process until a signal
// arrives and then jumps to the original entry point.
package payload

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/devttys0/botox/elf32"
)

// ErrEncoding is returned when a provider cannot express its stub for the
// requested byte order or jump target.
var ErrEncoding = errors.New("cannot encode payload")

// Provider emits a pause-then-jump stub. jump is the address control is
// transferred to once the process is resumed.
type Provider interface {
	Generate(jump uint32, order binary.ByteOrder) ([]byte, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(jump uint32, order binary.ByteOrder) ([]byte, error)

func (f ProviderFunc) Generate(jump uint32, order binary.ByteOrder) ([]byte, error) {
	return f(jump, order)
}

var providers = map[elf32.Arch]Provider{
	elf32.ArchX86:   ProviderFunc(x86),
	elf32.ArchX8664: ProviderFunc(x32),
	elf32.ArchMIPS:  ProviderFunc(mips),
	elf32.ArchARM:   ProviderFunc(arm),
}

// Lookup returns the built-in provider for arch.
func Lookup(arch elf32.Arch) (Provider, error) {
	p, ok := providers[arch]
	if !ok {
		return nil, errors.Wrapf(elf32.ErrUnsupportedArchitecture, "no payload for %s", arch)
	}
	return p, nil
}

// Raw is a provider that always returns the same caller supplied bytes. The
// jump target is ignored, so the bytes must find the original entry point on
// their own.
type Raw []byte

func (r Raw) Generate(uint32, binary.ByteOrder) ([]byte, error) {
	return append([]byte(nil), r...), nil
}

// words encodes fixed width instruction words in the given byte order.
func words(order binary.ByteOrder, ws ...uint32) []byte {
	b := make([]byte, 4*len(ws))
	for i, w := range ws {
		order.PutUint32(b[4*i:], w)
	}
	return b
}

func littleEndianOnly(arch elf32.Arch, order binary.ByteOrder) error {
	if order != binary.ByteOrder(binary.LittleEndian) {
		return errors.Wrapf(ErrEncoding, "%s stub is little endian only, got %s", arch, order)
	}
	return nil
}
