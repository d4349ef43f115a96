package elfinfect

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"os"
	"testing"

	"github.com/go-kit/log"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devttys0/botox/elf32"
	"github.com/devttys0/botox/elfio"
	"github.com/devttys0/botox/internal/testelf"
	"github.com/devttys0/botox/payload"
)

const targetPath = "/firmware/bin/httpd"

func setup(t *testing.T, data []byte) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, targetPath, data, 0o755))
	return fs
}

func patch(fs afero.Fs, p payload.Provider) (*Plan, error) {
	tb, err := Open(fs, targetPath, nil)
	if err != nil {
		return nil, err
	}
	return tb.TextSegmentPaddingInfection(p, 0)
}

func readFile(t *testing.T, fs afero.Fs, path string) []byte {
	t.Helper()
	b, err := afero.ReadFile(fs, path)
	require.NoError(t, err)
	return b
}

func parse(t *testing.T, data []byte) *elf32.File {
	t.Helper()
	f, err := elf32.New(elfio.NewBuffer(append([]byte(nil), data...)))
	require.NoError(t, err)
	return f
}

func filled(n int, b byte) payload.Raw {
	return payload.Raw(bytes.Repeat([]byte{b}, n))
}

func TestPatchMIPSExample(t *testing.T) {
	img := testelf.Build(testelf.Spec{
		Machine:  elf.EM_MIPS,
		Order:    binary.LittleEndian,
		Align:    0x10000,
		TextOff:  0x190,
		TextSize: 0x1000 - 0x190,
	})
	require.Equal(t, uint32(0x00400190), img.Entry)
	fs := setup(t, img.Data)

	plan, err := patch(fs, nil)
	require.NoError(t, err)
	assert.Equal(t, elf32.ArchMIPS, plan.Arch)
	assert.Equal(t, uint32(0x1000), plan.InsertionOffset)
	assert.Equal(t, uint32(0x00400000+0x1000), plan.NewEntry)
	assert.Equal(t, 32, plan.PayloadLen)

	out := readFile(t, fs, targetPath)
	assert.Len(t, out, len(img.Data)+0x10000)

	f := parse(t, out)
	assert.Equal(t, uint32(0x00401000), f.Header().Entry())
	off, ok := f.OffsetOf(f.Header().Entry())
	require.True(t, ok)
	assert.Equal(t, uint32(0x1000), off)
	assert.Equal(t, uint32(0x24020fbd), binary.LittleEndian.Uint32(out[off:]))
	// lui/ori pair rebuilds the original entry point.
	assert.Equal(t, uint32(0x3c080040), binary.LittleEndian.Uint32(out[off+16:]))
	assert.Equal(t, uint32(0x35080190), binary.LittleEndian.Uint32(out[off+20:]))
	assert.Equal(t, make([]byte, 0x10000-32), out[off+32:off+0x10000])

	st, err := fs.Stat(targetPath)
	require.NoError(t, err)
	assert.Equal(t, "-rwxr-xr-x", st.Mode().Perm().String())

	ef, err := elf.NewFile(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, uint64(0x00401000), ef.Entry)
	assert.Equal(t, uint64(0x1000-0x190+0x10000), ef.Section(".text").Size)
}

type snapshot struct {
	progOff  []uint32
	secOff   []uint32
	secSize  []uint32
	secFlags []elf.SectionFlag
	secName  []string
	shoff    uint32
}

func takeSnapshot(f *elf32.File) snapshot {
	var s snapshot
	for _, p := range f.Progs() {
		s.progOff = append(s.progOff, p.Off())
	}
	for _, sh := range f.Sections() {
		s.secOff = append(s.secOff, sh.Offset())
		s.secSize = append(s.secSize, sh.Size())
		s.secFlags = append(s.secFlags, sh.Flags())
		s.secName = append(s.secName, sh.Name())
	}
	s.shoff = f.Header().Shoff()
	return s
}

func TestPatchMovesOnlyWhatFollowsInsertion(t *testing.T) {
	for _, tc := range []struct {
		name    string
		machine elf.Machine
		order   binary.ByteOrder
	}{
		{"mips le", elf.EM_MIPS, binary.LittleEndian},
		{"mips be", elf.EM_MIPS, binary.BigEndian},
		{"arm le", elf.EM_ARM, binary.LittleEndian},
		{"arm be", elf.EM_ARM, binary.BigEndian},
		{"x86", elf.EM_386, binary.LittleEndian},
		{"x32", elf.EM_X86_64, binary.LittleEndian},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img := testelf.Build(testelf.Spec{Machine: tc.machine, Order: tc.order})
			before := parse(t, img.Data)
			// .text loses its execute flag so the patch has to restore it.
			before.Section(testelf.SecText).SetExec(false)
			data, err := before.View().Bytes()
			require.NoError(t, err)
			pre := takeSnapshot(before)

			fs := setup(t, data)
			plan, err := patch(fs, nil)
			require.NoError(t, err)

			a := plan.Align
			ins := plan.InsertionOffset
			assert.Equal(t, uint32(0x1000), a)
			assert.Equal(t, img.TextEnd, ins)

			after := parse(t, readFile(t, fs, targetPath))
			post := takeSnapshot(after)

			for i := range pre.progOff {
				if pre.progOff[i] >= ins {
					assert.Equal(t, pre.progOff[i]+a, post.progOff[i], "program header %d", i)
				} else {
					assert.Equal(t, pre.progOff[i], post.progOff[i], "program header %d", i)
				}
			}
			for i := range pre.secOff {
				if pre.secOff[i] >= ins {
					assert.Equal(t, pre.secOff[i]+a, post.secOff[i], "section %d", i)
				} else {
					assert.Equal(t, pre.secOff[i], post.secOff[i], "section %d", i)
				}
			}
			assert.Equal(t, pre.shoff+a, post.shoff)
			assert.Equal(t, pre.secName, post.secName)

			var grown []int
			for i := range pre.secSize {
				if post.secSize[i] != pre.secSize[i] {
					grown = append(grown, i)
					assert.Equal(t, pre.secSize[i]+a, post.secSize[i])
					assert.Equal(t, pre.secFlags[i]|elf.SHF_ALLOC|elf.SHF_EXECINSTR, post.secFlags[i])
					continue
				}
				assert.Equal(t, pre.secFlags[i], post.secFlags[i], "section %d", i)
			}
			assert.Equal(t, []int{testelf.SecText}, grown)

			text := after.Prog(testelf.ProgText)
			assert.Equal(t, img.TextEnd+a, text.Filesz())
			assert.Equal(t, img.TextEnd+a, text.Memsz())
			require.NoError(t, after.Validate())
		})
	}
}

func TestPayloadSizeLimit(t *testing.T) {
	img := testelf.Build(testelf.Spec{Align: 0x1000})

	fs := setup(t, img.Data)
	_, err := patch(fs, filled(0x1001, 0x90))
	assert.True(t, errors.Is(err, ErrPayloadTooLarge), "got %v", err)
	assert.Equal(t, img.Data, readFile(t, fs, targetPath))

	plan, err := patch(fs, filled(0x1000, 0x90))
	require.NoError(t, err)
	assert.Equal(t, 0x1000, plan.PayloadLen)
	out := readFile(t, fs, targetPath)
	assert.Len(t, out, len(img.Data)+0x1000)
	assert.Equal(t, []byte(filled(0x1000, 0x90)), out[img.TextEnd:img.TextEnd+0x1000])
}

func TestAlreadyPatched(t *testing.T) {
	fs := setup(t, testelf.Build(testelf.Spec{}).Data)

	stub := append(filled(16, 0x11), filled(16, 0x22)...)
	_, err := patch(fs, stub)
	require.NoError(t, err)
	once := readFile(t, fs, targetPath)

	_, err = patch(fs, stub)
	assert.True(t, errors.Is(err, ErrAlreadyPatched), "got %v", err)
	assert.Equal(t, once, readFile(t, fs, targetPath))

	// Only the leading bytes are compared.
	sameHead := append(filled(16, 0x11), filled(16, 0x33)...)
	_, err = patch(fs, sameHead)
	assert.True(t, errors.Is(err, ErrAlreadyPatched), "got %v", err)

	other := append(filled(16, 0x44), filled(16, 0x22)...)
	_, err = patch(fs, other)
	require.NoError(t, err)
	assert.Len(t, readFile(t, fs, targetPath), len(once)+0x1000)
}

func TestBuiltinStubRepatch(t *testing.T) {
	for _, tc := range []struct {
		name    string
		machine elf.Machine
		order   binary.ByteOrder
	}{
		{"mips le", elf.EM_MIPS, binary.LittleEndian},
		{"mips be", elf.EM_MIPS, binary.BigEndian},
		{"arm le", elf.EM_ARM, binary.LittleEndian},
		{"arm be", elf.EM_ARM, binary.BigEndian},
		{"x86", elf.EM_386, binary.LittleEndian},
		{"x32", elf.EM_X86_64, binary.LittleEndian},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fs := setup(t, testelf.Build(testelf.Spec{Machine: tc.machine, Order: tc.order}).Data)
			_, err := patch(fs, nil)
			require.NoError(t, err)
			once := readFile(t, fs, targetPath)

			// The new entry point is the stub, so a second run targets it.
			_, err = patch(fs, nil)
			assert.True(t, errors.Is(err, ErrAlreadyPatched), "got %v", err)
			assert.Equal(t, once, readFile(t, fs, targetPath))
		})
	}
}

func TestHeaderOverflow(t *testing.T) {
	for _, tc := range []struct {
		name string
		edit func(f *elf32.File)
	}{
		{"segment end", func(f *elf32.File) {
			f.Prog(testelf.ProgText).SetFilesz(0xfffff800)
		}},
		{"section offset", func(f *elf32.File) {
			f.Section(testelf.SecComment).SetOffset(0xfffff800)
		}},
		{"grown section size", func(f *elf32.File) {
			f.Section(testelf.SecText).SetSize(0xffffff00)
		}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			f := parse(t, testelf.Build(testelf.Spec{}).Data)
			tc.edit(f)
			data, err := f.View().Bytes()
			require.NoError(t, err)

			fs := setup(t, data)
			_, err = patch(fs, nil)
			assert.True(t, errors.Is(err, elf32.ErrFormat), "got %v", err)
			assert.Equal(t, data, readFile(t, fs, targetPath))
		})
	}
}

func TestSpecialModeBitsKept(t *testing.T) {
	fs := setup(t, testelf.Build(testelf.Spec{}).Data)
	mode := 0o755 | os.ModeSetuid
	require.NoError(t, fs.Chmod(targetPath, mode))

	_, err := patch(fs, nil)
	require.NoError(t, err)
	st, err := fs.Stat(targetPath)
	require.NoError(t, err)
	assert.Equal(t, mode, st.Mode()&modeBits)
}

func TestShortPayloadGuard(t *testing.T) {
	img := testelf.Build(testelf.Spec{})
	head := []byte{testelf.TextFill(0), testelf.TextFill(1)}

	fs := setup(t, img.Data)
	_, err := patch(fs, payload.Raw(head))
	assert.True(t, errors.Is(err, ErrAlreadyPatched), "got %v", err)
}

func TestSharedObjectRejected(t *testing.T) {
	img := testelf.Build(testelf.Spec{Type: elf.ET_DYN})
	fs := setup(t, img.Data)

	_, err := patch(fs, nil)
	assert.True(t, errors.Is(err, ErrUnsupportedFileType), "got %v", err)
	assert.Equal(t, img.Data, readFile(t, fs, targetPath))
}

func TestPreconditions(t *testing.T) {
	x86, err := payload.Lookup(elf32.ArchX86)
	require.NoError(t, err)

	for _, tc := range []struct {
		name string
		spec testelf.Spec
		p    payload.Provider
		want error
	}{
		{"no executable segment", testelf.Spec{TextFlags: elf.PF_R}, nil, ErrNoExecutableLoadSegment},
		{"unsupported architecture", testelf.Spec{Machine: elf.EM_PPC, Order: binary.BigEndian}, nil, elf32.ErrUnsupportedArchitecture},
		{"x86 stub on big endian", testelf.Spec{Order: binary.BigEndian}, x86, payload.ErrEncoding},
		{"empty payload", testelf.Spec{}, payload.Raw{}, ErrEmptyPayload},
	} {
		t.Run(tc.name, func(t *testing.T) {
			img := testelf.Build(tc.spec)
			fs := setup(t, img.Data)
			_, err := patch(fs, tc.p)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
			assert.Equal(t, img.Data, readFile(t, fs, targetPath))
		})
	}
}

func TestRawPayloadOnUnknownArchitecture(t *testing.T) {
	img := testelf.Build(testelf.Spec{Machine: elf.EM_PPC, Order: binary.BigEndian})
	fs := setup(t, img.Data)

	plan, err := patch(fs, filled(8, 0x60))
	require.NoError(t, err)
	assert.Equal(t, elf32.ArchUnknown, plan.Arch)
	assert.Equal(t, 0x00400000+img.TextEnd, plan.NewEntry)
}

func TestEntryNotMapped(t *testing.T) {
	f := parse(t, testelf.Build(testelf.Spec{}).Data)
	f.Header().SetEntry(0x10)
	data, err := f.View().Bytes()
	require.NoError(t, err)

	_, err = patch(setup(t, data), nil)
	assert.True(t, errors.Is(err, elf32.ErrFormat), "got %v", err)
}

func TestDryRun(t *testing.T) {
	img := testelf.Build(testelf.Spec{})
	fs := setup(t, img.Data)

	tb, err := Open(fs, targetPath, nil)
	require.NoError(t, err)
	plan, err := tb.TextSegmentPaddingInfection(nil, DryRun)
	require.NoError(t, err)

	assert.Equal(t, img.TextEnd, plan.InsertionOffset)
	assert.Equal(t, []int{testelf.ProgData}, plan.Progs)
	assert.Equal(t, []int{testelf.SecData, testelf.SecBss, testelf.SecComment, testelf.SecShstrtab}, plan.Sections)
	assert.Equal(t, testelf.SecText, plan.GrowSection)
	assert.True(t, plan.ShiftShoff)
	assert.False(t, plan.ShiftPhoff)
	assert.Equal(t, plan.PayloadLen, tb.Payload.Len())

	assert.Equal(t, img.Data, readFile(t, fs, targetPath))
}

func TestOutPath(t *testing.T) {
	img := testelf.Build(testelf.Spec{Machine: elf.EM_ARM})
	fs := setup(t, img.Data)

	tb, err := Open(fs, targetPath, nil)
	require.NoError(t, err)
	tb.OutPath = targetPath + "-patched"
	_, err = tb.TextSegmentPaddingInfection(nil, 0)
	require.NoError(t, err)

	assert.Equal(t, img.Data, readFile(t, fs, targetPath))
	assert.Len(t, readFile(t, fs, tb.OutPath), len(img.Data)+0x1000)
}

func TestProgramHeaderTableAfterInsertion(t *testing.T) {
	img := testelf.Build(testelf.Spec{})
	table := img.Data[elf32.HeaderSize : elf32.HeaderSize+testelf.NumProgs*elf32.ProgSize]
	moved := append(append([]byte(nil), img.Data...), table...)

	f := parse(t, moved)
	f.Header().SetPhoff(uint32(len(img.Data)))
	data, err := f.View().Bytes()
	require.NoError(t, err)

	fs := setup(t, data)
	plan, err := patch(fs, nil)
	require.NoError(t, err)
	assert.True(t, plan.ShiftPhoff)

	after := parse(t, readFile(t, fs, targetPath))
	assert.Equal(t, uint32(len(img.Data))+0x1000, after.Header().Phoff())
	assert.Equal(t, img.TextEnd+0x1000, after.Prog(testelf.ProgText).Filesz())
	assert.Equal(t, img.DataOff+0x1000, after.Prog(testelf.ProgData).Off())
}

func TestDebugTrail(t *testing.T) {
	fs := setup(t, testelf.Build(testelf.Spec{}).Data)

	var buf bytes.Buffer
	tb, err := Open(fs, targetPath, log.NewLogfmtLogger(&buf))
	require.NoError(t, err)
	_, err = tb.TextSegmentPaddingInfection(nil, 0)
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `msg="modified entry point" from=0x00400100 to=0x00400300`)
	assert.Contains(t, out, `msg="moving section past text segment" index=3 name=.data`)
	assert.Contains(t, out, `msg="moving section past text segment" index=6 name=.shstrtab`)
	assert.Contains(t, out, `msg="extending section holding the insertion point" index=2 name=.text`)
	assert.Contains(t, out, `msg=payload`)
	assert.Contains(t, out, `msg=patched`)
}
