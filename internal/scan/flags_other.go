//go:build !darwin

package scan

import "io/fs"

// hasCompressedFlag is always false off Darwin: UF_COMPRESSED is a BSD
// stat flag with no Linux equivalent, so no file counts as already
// compressed there.
func hasCompressedFlag(info fs.FileInfo) bool {
	return false
}
