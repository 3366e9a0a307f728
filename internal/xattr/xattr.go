// Package xattr wraps the extended-attribute syscalls the decmpfs
// container needs: get/set/list/remove at offset zero (used for the
// com.apple.decmpfs xattr and for copying a file's other xattrs across
// to a tempfile). Position-addressed access to the resource fork,
// where the OS lets a single xattr be written in pieces at arbitrary
// offsets, is not here; internal/rfork does it with raw syscalls.
//
// Grounded on distr1-distri/internal/build/build.go's readXattrs
// (the Flistxattr-then-Fgetxattr two-call size-then-fill pattern) and
// original_source/crates/applesauce/src/xattr.rs's fuller
// get/set/list/remove surface. Uses golang.org/x/sys/unix, the
// teacher's own xattr-syscall dependency.
package xattr

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrNotPresent is returned by Get when the attribute does not exist.
var ErrNotPresent = errors.New("xattr: attribute not present")

// List returns the names of every extended attribute set on f.
//
// Grounded directly on distr1-distri/internal/build/build.go's
// readXattrs: query the required size with a nil buffer, then fill a
// buffer of that size, splitting on NUL bytes.
func List(f *os.File) ([]string, error) {
	fd := int(f.Fd())
	size, err := unix.Flistxattr(fd, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Flistxattr(fd, buf)
	if err != nil {
		return nil, err
	}
	return splitNames(buf[:n]), nil
}

func splitNames(buf []byte) []string {
	var names []string
	start := 0
	for i, b := range buf {
		if b == 0 {
			if i > start {
				names = append(names, string(buf[start:i]))
			}
			start = i + 1
		}
	}
	return names
}

// Get reads the full value of the named extended attribute.
func Get(f *os.File, name string) ([]byte, error) {
	fd := int(f.Fd())
	size, err := unix.Fgetxattr(fd, name, nil)
	if err != nil {
		if errors.Is(err, unix.ENOATTR) || errors.Is(err, unix.ENODATA) {
			return nil, ErrNotPresent
		}
		return nil, err
	}
	if size == 0 {
		return []byte{}, nil
	}
	buf := make([]byte, size)
	n, err := unix.Fgetxattr(fd, name, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Set writes the named extended attribute's full value.
func Set(f *os.File, name string, data []byte) error {
	return unix.Fsetxattr(int(f.Fd()), name, data, 0)
}

// Remove deletes the named extended attribute. It is not an error for
// the attribute to already be absent.
func Remove(f *os.File, name string) error {
	err := unix.Fremovexattr(int(f.Fd()), name)
	if err != nil && (errors.Is(err, unix.ENOATTR) || errors.Is(err, unix.ENODATA)) {
		return nil
	}
	return err
}

// CopyAll copies every non-decmpfs, non-resource-fork extended
// attribute from src to dst. Used by the writer stage (SPEC_FULL.md
// §4.5 step 1) before a tempfile's own decmpfs/resource-fork xattrs
// are written.
func CopyAll(dst, src *os.File, skip map[string]bool) error {
	names, err := List(src)
	if err != nil {
		return err
	}
	for _, name := range names {
		if skip[name] {
			continue
		}
		val, err := Get(src, name)
		if err != nil {
			if errors.Is(err, ErrNotPresent) {
				continue
			}
			return err
		}
		if err := Set(dst, name, val); err != nil {
			return err
		}
	}
	return nil
}
