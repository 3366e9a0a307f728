// Package rforktest provides an in-memory stand-in for a file's
// resource fork, so the container package's round-trip tests can run
// on any OS. internal/rfork itself only builds on darwin, since
// fgetxattr/fsetxattr's position argument is a Darwin extension, and
// Linux rejects the com.apple.* xattr names outright, so there is
// nothing real to fall back to on Linux (SPEC_FULL.md §10.4).
package rforktest

import (
	"bytes"
	"errors"
	"io"
)

// Fork is an io.ReadWriteSeeker backed by an in-memory buffer,
// growing on Write the way a real resource fork does.
type Fork struct {
	buf []byte
	pos int64
}

// New returns an empty in-memory resource fork.
func New() *Fork { return &Fork{} }

func (f *Fork) Seek(offset int64, whence int) (int64, error) {
	var next int64
	switch whence {
	case io.SeekStart:
		next = offset
	case io.SeekCurrent:
		next = f.pos + offset
	case io.SeekEnd:
		next = int64(len(f.buf)) + offset
	default:
		return 0, errors.New("rforktest: invalid whence")
	}
	if next < 0 {
		return 0, errors.New("rforktest: negative seek position")
	}
	f.pos = next
	return f.pos, nil
}

func (f *Fork) Read(p []byte) (int, error) {
	if f.pos >= int64(len(f.buf)) {
		return 0, io.EOF
	}
	n := copy(p, f.buf[f.pos:])
	f.pos += int64(n)
	return n, nil
}

func (f *Fork) Write(p []byte) (int, error) {
	end := f.pos + int64(len(p))
	if end > int64(len(f.buf)) {
		grown := make([]byte, end)
		copy(grown, f.buf)
		f.buf = grown
	}
	n := copy(f.buf[f.pos:end], p)
	f.pos = end
	return n, nil
}

// Bytes returns the fork's current contents.
func (f *Fork) Bytes() []byte { return bytes.Clone(f.buf) }
