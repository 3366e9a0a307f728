//go:build !darwin

package info

import "syscall"

func blockSizeOf(st *syscall.Stat_t) uint64 {
	return uint64(st.Blksize)
}

// hasCompressedFlag is always false off Darwin: BSD file flags
// (chflags(2)) have no Linux equivalent, and decmpfs compression
// itself is a Darwin-only filesystem feature.
func hasCompressedFlag(st *syscall.Stat_t) bool {
	return false
}
