//go:build darwin

// Package rfork implements position-addressed access to a file's
// com.apple.ResourceFork extended attribute, the out-of-line storage
// decmpfs uses once a file's compressed data no longer fits inline in
// the decmpfs xattr itself (SPEC_FULL.md §4.10).
//
// golang.org/x/sys/unix's portable Fsetxattr/Fgetxattr wrappers always
// pass position 0, matching every xattr except this one — Darwin's
// resource fork is the one xattr addressable at an arbitrary byte
// offset, via the extra `position` argument fsetxattr(2)/fgetxattr(2)
// take and XATTR_NOFOLLOW-style flag callers on other platforms never
// see. Reaching that argument means going around the wrapper with the
// raw syscall.
//
// Grounded on original_source/crates/resource-fork/src/lib.rs, which
// does the equivalent through libc::fsetxattr/fgetxattr directly.
package rfork

import (
	"errors"
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

const xattrName = "com.apple.ResourceFork"

// File implements io.ReadWriteSeeker over a regular file's resource
// fork. The zero value is not usable; construct with Open.
type File struct {
	f   *os.File
	pos int64
}

// Open returns the resource fork of f as a position-addressed stream.
func Open(f *os.File) *File {
	return &File{f: f}
}

func (r *File) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		r.pos = offset
	case io.SeekCurrent:
		r.pos += offset
	case io.SeekEnd:
		size, err := r.size()
		if err != nil {
			return 0, err
		}
		r.pos = size + offset
	default:
		return 0, errors.New("rfork: invalid whence")
	}
	if r.pos < 0 {
		return 0, errors.New("rfork: negative seek position")
	}
	return r.pos, nil
}

// size probes the resource fork's current length with a nil-buffer
// fgetxattr, which reports the attribute's full length; a missing
// attribute counts as length zero rather than an error.
func (r *File) size() (int64, error) {
	n, err := fgetxattrPosition(r.f, xattrName, nil, 0)
	if err != nil {
		if isNoAttr(err) {
			return 0, nil
		}
		return 0, err
	}
	return int64(n), nil
}

func (r *File) Read(p []byte) (int, error) {
	n, err := fgetxattrPosition(r.f, xattrName, p, uint32(r.pos))
	if err != nil {
		if isNoAttr(err) {
			return 0, io.EOF
		}
		return 0, err
	}
	if n == 0 {
		return 0, io.EOF
	}
	r.pos += int64(n)
	return n, nil
}

func (r *File) Write(p []byte) (int, error) {
	if err := fsetxattrPosition(r.f, xattrName, p, uint32(r.pos)); err != nil {
		return 0, err
	}
	r.pos += int64(len(p))
	return len(p), nil
}

func isNoAttr(err error) bool {
	return errors.Is(err, unix.ENOATTR) || errors.Is(err, unix.ENODATA)
}

// fgetxattrPosition is unix.Fgetxattr with the position argument
// exposed, via the raw syscall fgetxattr(2) takes on Darwin:
//
//	ssize_t fgetxattr(int fd, const char *name, void *value,
//	    size_t size, u_int32_t position, int options);
func fgetxattrPosition(f *os.File, name string, dst []byte, position uint32) (int, error) {
	nameBytes, err := unix.BytePtrFromString(name)
	if err != nil {
		return 0, err
	}
	var valuePtr unsafe.Pointer
	if len(dst) > 0 {
		valuePtr = unsafe.Pointer(&dst[0])
	}
	r0, _, errno := unix.Syscall6(
		unix.SYS_FGETXATTR,
		uintptr(f.Fd()),
		uintptr(unsafe.Pointer(nameBytes)),
		uintptr(valuePtr),
		uintptr(len(dst)),
		uintptr(position),
		0,
	)
	if errno != 0 {
		return 0, errno
	}
	return int(r0), nil
}

// fsetxattrPosition is unix.Fsetxattr with the position argument
// exposed, via the raw syscall fsetxattr(2) takes on Darwin:
//
//	int fsetxattr(int fd, const char *name, void *value, size_t size,
//	    u_int32_t position, int options);
func fsetxattrPosition(f *os.File, name string, src []byte, position uint32) error {
	nameBytes, err := unix.BytePtrFromString(name)
	if err != nil {
		return err
	}
	var valuePtr unsafe.Pointer
	if len(src) > 0 {
		valuePtr = unsafe.Pointer(&src[0])
	}
	_, _, errno := unix.Syscall6(
		unix.SYS_FSETXATTR,
		uintptr(f.Fd()),
		uintptr(unsafe.Pointer(nameBytes)),
		uintptr(valuePtr),
		uintptr(len(src)),
		uintptr(position),
		0,
	)
	if errno != 0 {
		return errno
	}
	return nil
}
