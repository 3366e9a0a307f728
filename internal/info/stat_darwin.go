//go:build darwin

package info

import (
	"syscall"

	"golang.org/x/sys/unix"
)

func blockSizeOf(st *syscall.Stat_t) uint64 {
	return uint64(st.Blksize)
}

func hasCompressedFlag(st *syscall.Stat_t) bool {
	return st.Flags&unix.UF_COMPRESSED == unix.UF_COMPRESSED
}
