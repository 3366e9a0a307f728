//go:build darwin

package volume

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// zfsSubtype is f_fssubtype's value on a ZFS volume: the big-endian
// encoding of "ZFS\0", matching lib.rs's ZFS_SUBTYPE constant.
var zfsSubtype = binary.BigEndian.Uint32([]byte("ZFS\x00"))

// supportsCompression reports whether the volume containing path is
// APFS, the only filesystem whose kernel compression provider decmpfs
// targets. Grounded on volumes.rs's vol_with_file_supports_compression
// (statfs + f_fstypename check, ZFS specifically excluded there since
// ZFS reports itself under a compatible subtype on some setups).
func supportsCompression(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, err
	}
	return fstypeName(st.Fstypename[:]) == "apfs", nil
}

// IsZFS reports whether the volume containing path is backed by ZFS,
// which may report decmpfs-compatible capabilities but silently
// decompresses before committing data. Grounded on lib.rs's
// check_compressible, which rejects ZFS before ever consulting
// vol_supports_compression_cap.
func IsZFS(path string) (bool, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return false, err
	}
	return st.Fssubtype == zfsSubtype, nil
}

func fstypeName(raw []byte) string {
	n := 0
	for n < len(raw) && raw[n] != 0 {
		n++
	}
	return string(raw[:n])
}
