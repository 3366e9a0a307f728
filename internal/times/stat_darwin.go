//go:build darwin

package times

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

func statAccessTime(st *syscall.Stat_t) time.Time {
	return time.Unix(st.Atimespec.Sec, st.Atimespec.Nsec)
}

// CompressedFlag is the BSD flag the kernel consults to transparently
// decompress a file's data on open/read; it must be set last and
// cleared first relative to every other piece of a file's decmpfs
// metadata (container invariant 3, SPEC_FULL.md §3).
const CompressedFlag = unix.UF_COMPRESSED

func getFlags(path string) (uint32, error) {
	st := unix.Stat_t{}
	if err := unix.Lstat(path, &st); err != nil {
		return 0, err
	}
	return st.Flags, nil
}

func setFlags(path string, flags uint32) error {
	return unix.Chflags(path, int(flags))
}
