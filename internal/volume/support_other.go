//go:build !darwin

package volume

// supportsCompression is always false on non-Darwin platforms: decmpfs
// is an APFS/HFS+ kernel feature with no counterpart elsewhere. The
// pipeline still runs on other platforms (pipeline and container tests
// use internal/rforktest), it just never finds a real compressible
// volume outside Darwin.
func supportsCompression(path string) (bool, error) {
	return false, nil
}

// IsZFS always reports false on non-Darwin platforms: there's no
// statfs f_fssubtype to consult, and supportsCompression already
// rejects every volume here regardless.
func IsZFS(path string) (bool, error) {
	return false, nil
}
