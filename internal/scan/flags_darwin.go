//go:build darwin

package scan

import (
	"io/fs"
	"syscall"

	"golang.org/x/sys/unix"
)

func hasCompressedFlag(info fs.FileInfo) bool {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return false
	}
	return st.Flags&unix.UF_COMPRESSED != 0
}
