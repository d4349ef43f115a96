package elfio

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

type memBacking struct {
	data []byte
}

// NewBuffer returns a View over data held in memory. The View takes
// ownership of data.
func NewBuffer(data []byte) *View {
	return &View{b: &memBacking{data: data}}
}

func (m *memBacking) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, errOutOfRange
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *memBacking) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > int64(len(m.data)) {
		return 0, errOutOfRange
	}
	return copy(m.data[off:], p), nil
}

func (m *memBacking) size() int64 { return int64(len(m.data)) }

func (m *memBacking) replace(data []byte) error {
	m.data = data
	return nil
}

func (m *memBacking) close() error { return nil }

type fileBacking struct {
	f  afero.File
	sz int64
}

// OpenFile returns a View that reads and writes straight through to the file
// at path. Every Write reaches the file before it returns.
func OpenFile(fs afero.Fs, path string, writable bool) (*View, error) {
	flag := os.O_RDONLY
	if writable {
		flag = os.O_RDWR
	}
	f, err := fs.OpenFile(path, flag, 0)
	if err != nil {
		return nil, fileError("open "+path, err)
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fileError("stat "+path, err)
	}
	return &View{b: &fileBacking{f: f, sz: st.Size()}}, nil
}

func (fb *fileBacking) ReadAt(p []byte, off int64) (int, error) {
	return fb.f.ReadAt(p, off)
}

func (fb *fileBacking) WriteAt(p []byte, off int64) (int, error) {
	return fb.f.WriteAt(p, off)
}

func (fb *fileBacking) size() int64 { return fb.sz }

func (fb *fileBacking) replace(data []byte) error {
	if err := fb.f.Truncate(0); err != nil {
		return err
	}
	if _, err := fb.f.WriteAt(data, 0); err != nil {
		return err
	}
	fb.sz = int64(len(data))
	return fb.f.Sync()
}

func (fb *fileBacking) close() error { return fb.f.Close() }

// LoadFile reads the whole file at path into a memory backed View. The file
// handle is closed before LoadFile returns.
func LoadFile(fs afero.Fs, path string) (*View, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fileError("open "+path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fileError("read "+path, err)
	}
	return NewBuffer(data), nil
}

// WriteFileAtomic replaces the file at path with data. The data goes to a
// temporary file in the same directory which is then renamed over path, so
// readers see either the old or the new content. When path is a symlink the
// file it points to is replaced and the link is kept.
func WriteFileAtomic(fs afero.Fs, path string, data []byte, perm os.FileMode) (err error) {
	target, err := resolveLink(fs, path)
	if err != nil {
		return fileError("resolve "+path, err)
	}
	path = target
	dir, base := filepath.Split(path)
	if dir == "" {
		dir = "."
	}
	tmp, err := afero.TempFile(fs, dir, "."+base+".botox-")
	if err != nil {
		return fileError("create temp for "+path, err)
	}
	name := tmp.Name()
	defer func() {
		if err != nil {
			_ = fs.Remove(name)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fileError("write "+name, err)
	}
	if err = tmp.Sync(); err != nil {
		tmp.Close()
		return fileError("sync "+name, err)
	}
	if err = tmp.Close(); err != nil {
		return fileError("close "+name, err)
	}
	if err = fs.Chmod(name, perm); err != nil {
		return fileError("chmod "+name, err)
	}
	if err = fs.Rename(name, path); err != nil {
		return fileError("rename "+name, errors.Wrapf(err, "replacing %s", path))
	}
	return nil
}

const maxLinks = 40

// resolveLink follows symlinks at path. Filesystems without symlinks, and
// paths that do not exist yet, come back unchanged.
func resolveLink(fs afero.Fs, path string) (string, error) {
	ls, ok := fs.(afero.Lstater)
	if !ok {
		return path, nil
	}
	lr, ok := fs.(afero.LinkReader)
	if !ok {
		return path, nil
	}
	for i := 0; i < maxLinks; i++ {
		st, lstatCalled, err := ls.LstatIfPossible(path)
		if !lstatCalled || os.IsNotExist(err) {
			return path, nil
		}
		if err != nil {
			return "", err
		}
		if st.Mode()&os.ModeSymlink == 0 {
			return path, nil
		}
		target, err := lr.ReadlinkIfPossible(path)
		if err != nil {
			return "", err
		}
		if !filepath.IsAbs(target) {
			target = filepath.Join(filepath.Dir(path), target)
		}
		path = target
	}
	return "", errors.Errorf("%s: too many levels of symbolic links", path)
}

func fileError(op string, err error) error {
	return &IOError{Op: op, Offset: -1, Err: err}
}
