package elfinfect

import (
	"debug/elf"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/spf13/afero"

	"github.com/devttys0/botox/elf32"
	"github.com/devttys0/botox/elfio"
	"github.com/devttys0/botox/payload"
)

// modeBits are the permission bits carried over to the patched file.
const modeBits = os.ModePerm | os.ModeSetuid | os.ModeSetgid | os.ModeSticky

// Open reads the ELF file at path into memory. A nil logger discards output.
func Open(fs afero.Fs, path string, logger log.Logger) (*TargetBin, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	st, err := fs.Stat(path)
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, errors.Errorf("%s is a directory", path)
	}

	v, err := elfio.LoadFile(fs, path)
	if err != nil {
		return nil, err
	}
	f, err := elf32.New(v)
	if err != nil {
		return nil, errors.Wrap(err, path)
	}

	level.Debug(logger).Log("msg", "loaded target", "path", path,
		"size", humanize.IBytes(uint64(v.Size())),
		"type", f.Header().Type(), "machine", f.Header().Machine(), "order", f.ByteOrder())

	return &TargetBin{
		Path:    path,
		OutPath: path,
		Mode:    st.Mode() & modeBits,
		View:    v,
		Elf:     f,
		fs:      fs,
		logger:  logger,
	}, nil
}

// TextSegment returns the first LOAD segment with the execute bit set.
func (t *TargetBin) TextSegment() (elf32.ProgHeader, error) {
	for _, p := range t.Elf.Progs() {
		if p.Type() == elf.PT_LOAD && p.Executable() {
			return p, nil
		}
	}
	if err := t.Elf.Err(); err != nil {
		return elf32.ProgHeader{}, err
	}
	return elf32.ProgHeader{}, ErrNoExecutableLoadSegment
}

// DefaultProvider returns the built-in stub generator for the target's
// architecture.
func (t *TargetBin) DefaultProvider() (payload.Provider, error) {
	arch, err := t.Elf.Arch()
	if err != nil {
		return nil, err
	}
	return payload.Lookup(arch)
}

// entryBytes returns up to n bytes at the entry point's file offset.
func (t *TargetBin) entryBytes(n int) ([]byte, error) {
	entry := t.Elf.Header().Entry()
	off, ok := t.Elf.OffsetOf(entry)
	if !ok {
		return nil, errors.Wrapf(elf32.ErrFormat, "entry point 0x%x is not backed by the file", entry)
	}
	if rem := t.View.Size() - int64(off); rem < int64(n) {
		n = int(rem)
	}
	return t.View.Read(int64(off), n)
}
