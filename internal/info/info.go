// Package info implements the `afscomp info` subcommand's
// per-file and per-tree compression-usage report: on-disk size versus
// logical size, extended-attribute overhead, and (recursively) a
// folder's aggregate compression ratio.
//
// Grounded on original_source/crates/applesauce/src/info.rs.
package info

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	afscomp "github.com/afscomp/afscomp"
	"github.com/afscomp/afscomp/internal/decmpfs"
	"github.com/afscomp/afscomp/internal/xattr"
)

// CompressionType is re-exported so callers reporting a file's codec
// and storage don't need to import internal/decmpfs themselves.
type CompressionType = decmpfs.CompressionType

// DecmpfsInfo is the decoded contents of a file's decmpfs xattr.
type DecmpfsInfo struct {
	CompressionType  CompressionType
	AttributeSize    uint64
	OrigFileSize     uint64
}

// ErrTooSmall and ErrBadMagic report a present-but-malformed decmpfs
// xattr: the file has the extended attribute but its content didn't
// decode, which is worth surfacing distinctly from "has no decmpfs
// info at all".
var (
	ErrTooSmall = errors.New("info: decmpfs xattr too small to hold compression header")
	ErrBadMagic = errors.New("info: decmpfs xattr magic field has incorrect value")
)

// FileInfo is one file's compression-usage report.
type FileInfo struct {
	IsCompressed bool
	OnDiskSize   uint64
	StatSize     uint64

	XattrCount     uint32
	TotalXattrSize uint64

	// ResourceForkSize is nil when the file has no resource fork.
	ResourceForkSize *uint64

	// Decmpfs is nil when the file has no decmpfs xattr at all.
	// DecmpfsErr is set instead of Decmpfs when the xattr is present
	// but malformed (ErrTooSmall or ErrBadMagic).
	Decmpfs    *DecmpfsInfo
	DecmpfsErr error
}

// CompressedFraction is the fraction of StatSize actually occupied on
// disk; less than 1 means the file is saving space.
func (fi FileInfo) CompressedFraction() float64 {
	if fi.StatSize == 0 {
		return 0
	}
	return float64(fi.OnDiskSize) / float64(fi.StatSize)
}

// FolderInfo is a recursive tree's aggregate compression-usage report.
type FolderInfo struct {
	NumFiles            uint32
	NumFolders          uint32
	NumCompressedFiles  uint32
	TotalUncompressedSize uint64
	TotalCompressedSize   uint64
}

// CompressedFraction is the fraction of TotalUncompressedSize actually
// occupied on disk across every file under the tree.
func (fi FolderInfo) CompressedFraction() float64 {
	if fi.TotalUncompressedSize == 0 {
		return 0
	}
	return float64(fi.TotalCompressedSize) / float64(fi.TotalUncompressedSize)
}

// CompressionSavingsFraction is the complement of CompressedFraction:
// how much smaller the tree is on disk than its logical size.
func (fi FolderInfo) CompressionSavingsFraction() float64 {
	return 1 - fi.CompressedFraction()
}

// Get reports path's compression-usage info.
func Get(path string) (FileInfo, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return FileInfo{}, fmt.Errorf("info: %s: not a unix stat result", path)
	}

	f, err := os.Open(path)
	if err != nil {
		return FileInfo{}, err
	}
	defer f.Close()

	names, err := xattr.List(f)
	if err != nil {
		return FileInfo{}, err
	}

	result := FileInfo{
		IsCompressed: hasCompressedFlag(st),
		OnDiskSize:   afscomp.RoundToBlockSize(uint64(st.Blocks)*512, blockSizeOf(st)),
		StatSize:     uint64(fi.Size()),
	}

	for _, name := range names {
		switch name {
		case decmpfs.XattrName:
			val, err := xattr.Get(f, name)
			if err != nil {
				return FileInfo{}, err
			}
			decoded, derr := decodeDecmpfsInfo(val)
			if derr != nil {
				result.DecmpfsErr = derr
			} else {
				result.Decmpfs = &decoded
			}
		case decmpfs.ResourceForkXattrName:
			val, err := xattr.Get(f, name)
			if err != nil {
				return FileInfo{}, err
			}
			size := uint64(len(val))
			result.ResourceForkSize = &size
		default:
			val, err := xattr.Get(f, name)
			if err != nil {
				return FileInfo{}, err
			}
			result.XattrCount++
			result.TotalXattrSize += uint64(len(val))
		}
	}

	return result, nil
}

func decodeDecmpfsInfo(data []byte) (DecmpfsInfo, error) {
	value, err := decmpfs.FromData(data)
	if err != nil {
		switch {
		case errors.Is(err, decmpfs.ErrTooSmall):
			return DecmpfsInfo{}, ErrTooSmall
		case errors.Is(err, decmpfs.ErrBadMagic):
			return DecmpfsInfo{}, ErrBadMagic
		default:
			return DecmpfsInfo{}, err
		}
	}
	return DecmpfsInfo{
		CompressionType: value.CompressionType,
		AttributeSize:   uint64(value.Len()),
		OrigFileSize:    value.UncompressedSize,
	}, nil
}

// GetRecursive walks path, aggregating every regular file's info into
// a single FolderInfo.
func GetRecursive(path string) (FolderInfo, error) {
	var result FolderInfo
	err := filepath.Walk(path, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		switch {
		case fi.IsDir():
			result.NumFolders++
		case fi.Mode().IsRegular():
			info, err := Get(p)
			if err != nil {
				return err
			}
			result.NumFiles++
			if info.IsCompressed {
				result.NumCompressedFiles++
				result.TotalCompressedSize += info.OnDiskSize
			} else {
				result.TotalCompressedSize += info.StatSize
			}
			result.TotalUncompressedSize += info.StatSize
		}
		return nil
	})
	return result, err
}
