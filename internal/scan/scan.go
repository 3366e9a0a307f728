// Package scan implements the pre-flight predicate a file must pass
// before it enters the compress or decompress pipeline, and the
// recursive directory walk that feeds candidate (path, info) pairs to
// it.
//
// Grounded on original_source/crates/applesauce/src/{lib.rs,scan.rs}
// (check_compressible/check_decompressible and for_each_recursive) and
// progress.rs's SkipReason enum. The walk itself is grounded on
// rclone's filter/walk package, the pack's own parallel-directory-walk
// reference (rclone-rclone/fs/walk), generalized down to what
// SPEC_FULL.md §4.7 actually needs: a predicate-gated, sequential
// directory walk with volume-tempdir roots excluded.
package scan

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/afscomp/afscomp/internal/volume"
)

// SkipReason is why a candidate file did not enter the pipeline.
type SkipReason int

const (
	NotFile SkipReason = iota
	AlreadyCompressed
	EmptyFile
	TooLarge
	ZfsFilesystem
	HasRequiredXattr
	FsNotSupported
	NotCompressed
	ReadError
)

func (r SkipReason) String() string {
	switch r {
	case NotFile:
		return "not a file"
	case AlreadyCompressed:
		return "already compressed"
	case EmptyFile:
		return "empty file"
	case TooLarge:
		return "file too large"
	case ZfsFilesystem:
		return "ZFS filesystem (not supported)"
	case HasRequiredXattr:
		return "compression xattrs already present"
	case FsNotSupported:
		return "filesystem does not support compression"
	case NotCompressed:
		return "not compressed"
	case ReadError:
		return "read error"
	default:
		return "unknown"
	}
}

// SkipError reports a candidate's rejection reason, optionally wrapping
// the underlying OS error that produced it.
type SkipError struct {
	Reason SkipReason
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason.String()
}

func (e *SkipError) Unwrap() error { return e.Err }

// maxSize mirrors u32::MAX in the original: files this large or larger
// never fit a decmpfs container's 32-bit block offsets.
const maxSize = 1<<32 - 1

// CheckCompressible applies the compress-direction predicate
// (SPEC_FULL.md §4.7): regular file, not already compressed, nonempty,
// not oversize, not ZFS, no pre-existing decmpfs/resource-fork xattr,
// and its volume must support compression.
func CheckCompressible(path string, info fs.FileInfo, vols *volume.Cache, hasXattr func(path, name string) (bool, error), dev uint64) error {
	if !info.Mode().IsRegular() {
		return &SkipError{Reason: NotFile}
	}
	if alreadyCompressedFlag(info) {
		return &SkipError{Reason: AlreadyCompressed}
	}
	if info.Size() == 0 {
		return &SkipError{Reason: EmptyFile}
	}
	if info.Size() >= maxSize {
		return &SkipError{Reason: TooLarge}
	}

	isZFS, err := vols.IsZFS(path, dev)
	if err != nil {
		return &SkipError{Reason: ReadError, Err: err}
	}
	if isZFS {
		return &SkipError{Reason: ZfsFilesystem}
	}

	present, err := hasXattr(path, "com.apple.ResourceFork")
	if err != nil {
		return &SkipError{Reason: ReadError, Err: err}
	}
	if present {
		return &SkipError{Reason: HasRequiredXattr}
	}
	present, err = hasXattr(path, "com.apple.decmpfs")
	if err != nil {
		return &SkipError{Reason: ReadError, Err: err}
	}
	if present {
		return &SkipError{Reason: HasRequiredXattr}
	}

	supports, err := vols.SupportsCompression(path, dev)
	if err != nil {
		return &SkipError{Reason: ReadError, Err: err}
	}
	if !supports {
		return &SkipError{Reason: FsNotSupported}
	}
	return nil
}

// CheckDecompressible applies the decompress-direction predicate: the
// inverse of the compressed-flag check, every other check skipped.
func CheckDecompressible(info fs.FileInfo) error {
	if !info.Mode().IsRegular() {
		return &SkipError{Reason: NotFile}
	}
	if !alreadyCompressedFlag(info) {
		return &SkipError{Reason: NotCompressed}
	}
	return nil
}

// Candidate is a file that passed the pre-flight predicate.
type Candidate struct {
	Path string
	Info fs.FileInfo
}

// Walk recursively visits every regular file under each of roots,
// skipping any directory known to be one of vols' own scratch tempdirs
// (SPEC_FULL.md §4.6 "temp-dir paths are treated as skip-roots"), runs
// the given predicate on each file found, and invokes visit with the
// file and the predicate's result. A non-directory entry that cannot
// be read is passed to visit with a ReadError SkipError instead.
//
// Unlike the original's rayon-parallel ignore::WalkBuilder, this walk
// runs sequentially per root: directory traversal is rarely the
// bottleneck once the compressor/reader/writer pools are saturated
// (SPEC_FULL.md §5), so the added concurrency isn't worth the
// complexity here. Each visit call is free to hand its candidate to
// the pipeline's own worker pools.
func Walk(roots []string, predicate func(path string, info fs.FileInfo) error, vols *volume.Cache, visit func(Candidate, error)) error {
	for _, root := range roots {
		err := filepath.Walk(root, func(path string, info fs.FileInfo, err error) error {
			if err != nil {
				if info == nil || !info.IsDir() {
					visit(Candidate{Path: path, Info: info}, &SkipError{Reason: ReadError, Err: err})
				}
				return nil //nolint: errors surfaced per-file via visit, not aborting the walk
			}
			if info.IsDir() {
				if path != root && vols.IsTempDir(path) {
					return filepath.SkipDir
				}
				return nil
			}
			perr := predicate(path, info)
			visit(Candidate{Path: path, Info: info}, perr)
			return nil
		})
		if err != nil && !errors.Is(err, filepath.SkipDir) {
			return err
		}
	}
	return nil
}

// alreadyCompressedFlag reports BSD UF_COMPRESSED on platforms that
// have it; see flags_*.go.
func alreadyCompressedFlag(info fs.FileInfo) bool {
	return hasCompressedFlag(info)
}
