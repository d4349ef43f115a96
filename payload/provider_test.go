package payload

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devttys0/botox/elf32"
)

func generate(t *testing.T, arch elf32.Arch, jump uint32, order binary.ByteOrder) []byte {
	t.Helper()
	p, err := Lookup(arch)
	require.NoError(t, err)
	b, err := p.Generate(jump, order)
	require.NoError(t, err)
	return b
}

func TestMIPS(t *testing.T) {
	want := []uint32{
		0x24020fbd,
		0x0000000c,
		0x00000000,
		0x00000000,
		0x3c080040,
		0x35080190,
		0x01000008,
		0x00000000,
	}
	for _, order := range []binary.ByteOrder{binary.BigEndian, binary.LittleEndian} {
		t.Run(order.String(), func(t *testing.T) {
			b := generate(t, elf32.ArchMIPS, 0x00400190, order)
			require.Len(t, b, 4*len(want))
			for i, w := range want {
				assert.Equal(t, w, order.Uint32(b[4*i:]), "word %d", i)
			}
		})
	}
}

func TestMIPSHighBitsOfLow(t *testing.T) {
	// ori zero extends, so a low half with its top bit set must not borrow
	// from the high half.
	b := generate(t, elf32.ArchMIPS, 0x0040fff0, binary.BigEndian)
	assert.Equal(t, uint32(0x3c080040), binary.BigEndian.Uint32(b[16:]))
	assert.Equal(t, uint32(0x3508fff0), binary.BigEndian.Uint32(b[20:]))
}

func TestARM(t *testing.T) {
	b := generate(t, elf32.ArchARM, 0x00010074, binary.LittleEndian)
	assert.Equal(t, []byte{
		0x1d, 0x70, 0xa0, 0xe3,
		0x00, 0x00, 0x00, 0xef,
		0x00, 0x00, 0xa0, 0xe1,
		0x00, 0x00, 0xa0, 0xe1,
		0x04, 0xf0, 0x1f, 0xe5,
		0x74, 0x00, 0x01, 0x00,
	}, b)

	b = generate(t, elf32.ArchARM, 0x00010074, binary.BigEndian)
	assert.Equal(t, uint32(0xe3a0701d), binary.BigEndian.Uint32(b))
	assert.Equal(t, uint32(0x00010074), binary.BigEndian.Uint32(b[20:]))
}

func TestX86(t *testing.T) {
	b := generate(t, elf32.ArchX86, 0x08048080, binary.LittleEndian)
	assert.Equal(t, []byte{
		0x60,
		0xb8, 0x1d, 0x00, 0x00, 0x00,
		0xcd, 0x80,
		0x61,
		0x90, 0x90, 0x90, 0x90, 0x90, 0x90, 0x90,
		0x68, 0x80, 0x80, 0x04, 0x08,
		0xc3,
	}, b)
}

func TestX32(t *testing.T) {
	b := generate(t, elf32.ArchX8664, 0x00401000, binary.LittleEndian)
	assert.Equal(t, []byte{
		0x57, 0x56, 0x52, 0x51, 0x41, 0x53,
		0xb8, 0x22, 0x00, 0x00, 0x40,
		0x0f, 0x05,
		0x41, 0x5b, 0x59, 0x5a, 0x5e, 0x5f,
		0xb8, 0x00, 0x10, 0x40, 0x00,
		0xff, 0xe0,
	}, b)
}

func TestLittleEndianOnly(t *testing.T) {
	for _, arch := range []elf32.Arch{elf32.ArchX86, elf32.ArchX8664} {
		p, err := Lookup(arch)
		require.NoError(t, err)
		_, err = p.Generate(0x1000, binary.BigEndian)
		assert.True(t, errors.Is(err, ErrEncoding), "%s: got %v", arch, err)
	}
}

func TestJumpChangesStub(t *testing.T) {
	for _, arch := range []elf32.Arch{elf32.ArchX86, elf32.ArchX8664, elf32.ArchMIPS, elf32.ArchARM} {
		a := generate(t, arch, 0x00400000, binary.LittleEndian)
		b := generate(t, arch, 0x00400004, binary.LittleEndian)
		assert.Len(t, b, len(a), "%s", arch)
		assert.NotEqual(t, a, b, "%s", arch)
	}
}

func TestStubHeadIgnoresJump(t *testing.T) {
	for _, arch := range []elf32.Arch{elf32.ArchX86, elf32.ArchX8664, elf32.ArchMIPS, elf32.ArchARM} {
		for _, order := range []binary.ByteOrder{binary.LittleEndian, binary.BigEndian} {
			p, err := Lookup(arch)
			require.NoError(t, err)
			a, err := p.Generate(0x00400100, order)
			if errors.Is(err, ErrEncoding) {
				continue
			}
			require.NoError(t, err)
			b, err := p.Generate(0x8fff_fff0, order)
			require.NoError(t, err)
			require.Greater(t, len(a), 16, "%s", arch)
			assert.Equal(t, a[:16], b[:16], "%s %s", arch, order)
		}
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup(elf32.ArchUnknown)
	assert.True(t, errors.Is(err, elf32.ErrUnsupportedArchitecture))
}

func TestRaw(t *testing.T) {
	src := []byte{1, 2, 3}
	r := Raw(src)
	b, err := r.Generate(0xdeadbeef, binary.BigEndian)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, b)

	b[0] = 9
	assert.Equal(t, byte(1), src[0])
}
