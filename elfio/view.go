// Package elfio provides byte level access to an ELF image: absolute offset
// reads and writes, endian aware integers, C strings and splicing.
package elfio

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// ErrNameTooLong is returned by WriteCString when the new string would not
// fit in the space taken by the string it replaces.
var ErrNameTooLong = errors.New("new string is longer than the stored string")

var errOutOfRange = errors.New("out of range")

// IOError describes a failed access to the backing store.
type IOError struct {
	Op     string
	Offset int64
	Err    error
}

func (e *IOError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s @ 0x%x: %v", e.Op, e.Offset, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// Cause lets github.com/pkg/errors.Cause see through the IOError.
func (e *IOError) Cause() error { return e.Err }

type backing interface {
	io.ReaderAt
	io.WriterAt
	size() int64
	replace(data []byte) error
	close() error
}

// View is a mutable window over an ELF image. Writes never change the size of
// the image; only Insert and Delete do, and they rewrite the whole store.
type View struct {
	b backing
}

// Size returns the current length of the image.
func (v *View) Size() int64 {
	return v.b.size()
}

// Close releases the backing store.
func (v *View) Close() error {
	return v.b.close()
}

// Read returns n bytes starting at off.
func (v *View) Read(off int64, n int) ([]byte, error) {
	if off < 0 || n < 0 || off+int64(n) > v.Size() {
		return nil, &IOError{Op: "read", Offset: off, Err: errOutOfRange}
	}
	p := make([]byte, n)
	if _, err := v.b.ReadAt(p, off); err != nil && err != io.EOF {
		return nil, &IOError{Op: "read", Offset: off, Err: err}
	}
	return p, nil
}

// Write overwrites len(p) bytes at off. The range must already exist.
func (v *View) Write(off int64, p []byte) error {
	if off < 0 || off+int64(len(p)) > v.Size() {
		return &IOError{Op: "write", Offset: off, Err: errOutOfRange}
	}
	if _, err := v.b.WriteAt(p, off); err != nil {
		return &IOError{Op: "write", Offset: off, Err: err}
	}
	return nil
}

// Bytes returns a copy of the whole image.
func (v *View) Bytes() ([]byte, error) {
	return v.Read(0, int(v.Size()))
}

// ReadUint reads an unsigned integer of width 1, 2, 4 or 8 bytes.
func (v *View) ReadUint(off int64, width int, order binary.ByteOrder) (uint64, error) {
	if err := checkWidth(width); err != nil {
		return 0, &IOError{Op: "read", Offset: off, Err: err}
	}
	p, err := v.Read(off, width)
	if err != nil {
		return 0, err
	}
	switch width {
	case 1:
		return uint64(p[0]), nil
	case 2:
		return uint64(order.Uint16(p)), nil
	case 4:
		return uint64(order.Uint32(p)), nil
	default:
		return order.Uint64(p), nil
	}
}

// WriteUint writes val as an unsigned integer of the given width. Values that
// do not fit in width bytes are rejected rather than truncated.
func (v *View) WriteUint(off int64, width int, order binary.ByteOrder, val uint64) error {
	if err := checkWidth(width); err != nil {
		return &IOError{Op: "write", Offset: off, Err: err}
	}
	if width < 8 && val>>(uint(width)*8) != 0 {
		return &IOError{Op: "write", Offset: off, Err: errors.Errorf("value 0x%x overflows %d bytes", val, width)}
	}
	p := make([]byte, width)
	switch width {
	case 1:
		p[0] = byte(val)
	case 2:
		order.PutUint16(p, uint16(val))
	case 4:
		order.PutUint32(p, uint32(val))
	default:
		order.PutUint64(p, val)
	}
	return v.Write(off, p)
}

func checkWidth(width int) error {
	switch width {
	case 1, 2, 4, 8:
		return nil
	}
	return errors.Errorf("unsupported integer width %d", width)
}

const cstringBlock = 1024

// ReadCString returns the bytes from off up to, not including, the first NUL
// byte or the end of the image.
func (v *View) ReadCString(off int64) ([]byte, error) {
	size := v.Size()
	if off < 0 || off > size {
		return nil, &IOError{Op: "read string", Offset: off, Err: errOutOfRange}
	}
	var s []byte
	for pos := off; pos < size; pos += cstringBlock {
		n := cstringBlock
		if rem := size - pos; rem < int64(n) {
			n = int(rem)
		}
		chunk, err := v.Read(pos, n)
		if err != nil {
			return nil, err
		}
		if i := bytes.IndexByte(chunk, 0); i >= 0 {
			return append(s, chunk[:i]...), nil
		}
		s = append(s, chunk...)
	}
	return s, nil
}

// WriteCString replaces the C string stored at off with s followed by a NUL
// byte. It refuses to grow the stored string, which would clobber whatever
// follows it.
func (v *View) WriteCString(off int64, s []byte) error {
	cur, err := v.ReadCString(off)
	if err != nil {
		return err
	}
	if len(s) > len(cur) {
		return errors.Wrapf(ErrNameTooLong, "%q is %d bytes, %q is %d", s, len(s), cur, len(cur))
	}
	if bytes.IndexByte(s, 0) >= 0 {
		return errors.Errorf("string %q contains a NUL byte", s)
	}
	p := make([]byte, len(s)+1)
	copy(p, s)
	if off+int64(len(p)) > v.Size() {
		// stored string ran to the end of the image without a terminator
		p = p[:len(s)]
	}
	return v.Write(off, p)
}

// Insert splices p into the image at off, moving everything from off onwards
// forward by len(p).
func (v *View) Insert(off int64, p []byte) error {
	size := v.Size()
	if off < 0 || off > size {
		return &IOError{Op: "insert", Offset: off, Err: errOutOfRange}
	}
	cur, err := v.Bytes()
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(cur)+len(p))
	data = append(data, cur[:off]...)
	data = append(data, p...)
	data = append(data, cur[off:]...)
	if err := v.b.replace(data); err != nil {
		return &IOError{Op: "insert", Offset: off, Err: err}
	}
	return nil
}

// Delete removes n bytes at off, moving the tail back.
func (v *View) Delete(off int64, n int) error {
	size := v.Size()
	if off < 0 || n < 0 || off+int64(n) > size {
		return &IOError{Op: "delete", Offset: off, Err: errOutOfRange}
	}
	cur, err := v.Bytes()
	if err != nil {
		return err
	}
	data := make([]byte, 0, len(cur)-n)
	data = append(data, cur[:off]...)
	data = append(data, cur[off+int64(n):]...)
	if err := v.b.replace(data); err != nil {
		return &IOError{Op: "delete", Offset: off, Err: err}
	}
	return nil
}
