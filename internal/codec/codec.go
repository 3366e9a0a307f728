// Package codec provides the codec abstraction shared by the
// compression pipeline: a small, pure (no file I/O beyond the
// container reader/writer it is handed) interface implemented by the
// Zlib, LZVN, and LZFSE codecs, plus the Kind tag used to select one.
//
// Grounded on
// original_source/crates/applesauce-core/src/compressor/mod.rs.
package codec

import (
	"fmt"
	"io"

	"github.com/afscomp/afscomp/internal/codec/lzfsecodec"
	"github.com/afscomp/afscomp/internal/codec/lzvncodec"
	"github.com/afscomp/afscomp/internal/codec/zlibcodec"
	"github.com/afscomp/afscomp/internal/decmpfs"
)

// Kind identifies one of the three supported codecs.
type Kind = decmpfs.Kind

const (
	Zlib  = decmpfs.Zlib
	Lzvn  = decmpfs.Lzvn
	Lzfse = decmpfs.Lzfse
)

// Codec is the five-operation contract every compressor implements.
// Compress and Decompress operate on exactly one block at a time and
// must not retain src or dst past the call. A Codec instance is not
// safe for concurrent use; callers keep one instance per codec kind
// per worker (see internal/pipeline).
type Codec interface {
	// HeaderSize returns the number of bytes reserved before the first
	// compressed block, for a container holding blockCount blocks.
	HeaderSize(blockCount uint64) uint64
	// TrailerSize returns the number of bytes written after the last
	// compressed block (zero for every codec except Zlib).
	TrailerSize() uint64
	// Compress compresses src into dst, returning the number of bytes
	// written. len(dst) must be > len(src).
	Compress(dst, src []byte, level int) (int, error)
	// Decompress is the inverse of Compress.
	Decompress(dst, src []byte) (int, error)
	// ReadBlockInfo parses a container's offset-table/header/trailer,
	// validating every structural invariant, and returns the resulting
	// per-block offsets.
	ReadBlockInfo(r io.ReadSeeker, origFileSize uint64) ([]decmpfs.BlockInfo, error)
	// Finish rewinds w to the start and writes the header describing
	// blockSizes (zlib first writes its trailer at w's current position,
	// the data end, before rewinding), leaving the cursor at
	// HeaderSize(len(blockSizes)).
	Finish(w io.WriteSeeker, blockSizes []uint32) error
}

// New constructs a fresh Codec instance for kind.
func New(kind Kind) (Codec, error) {
	switch kind {
	case Zlib:
		return zlibcodec.New(), nil
	case Lzvn:
		return lzvncodec.New(), nil
	case Lzfse:
		return lzfsecodec.New(), nil
	default:
		return nil, fmt.Errorf("codec: unsupported kind %v", kind)
	}
}

// HeaderSize returns the header size a fresh codec of kind kind would
// report for blockCount blocks, without needing to construct one
// first (zlib's depends only on the constant table layout; LZVN/LZFSE
// share the (block_count+1)*4 formula).
func HeaderSize(kind Kind, blockCount uint64) uint64 {
	switch kind {
	case Zlib:
		return zlibcodec.HeaderSize(blockCount)
	case Lzvn, Lzfse:
		return (blockCount + 1) * 4
	default:
		panic(fmt.Sprintf("codec: unsupported kind %v", kind))
	}
}

// Supported reports whether this build includes an implementation of
// kind. All three are always supported in this port (the LZ-family
// codecs are backed by substitute primitives, see DESIGN.md).
func Supported(kind Kind) bool {
	switch kind {
	case Zlib, Lzvn, Lzfse:
		return true
	default:
		return false
	}
}

// Default is the codec used when none is specified on the command
// line, matching the original CLI's LZFSE-first preference.
const Default = Lzfse
