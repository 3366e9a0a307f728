// Package lz implements the container/offset-table machinery shared
// by the LZ-family codecs (LZVN, LZFSE): a resource fork that begins
// with (block_count+1) little-endian u32 offsets and has no trailer.
// It is parameterized over a Primitive, the actual block encode/decode
// algorithm, the same way the original's compressor::lz::Lz<I: Impl>
// is generic over an Impl.
//
// Grounded on
// original_source/crates/applesauce-core/src/compressor/lz.rs.
package lz

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/afscomp/afscomp/internal/decmpfs"
)

// Primitive is the inner encode/decode algorithm an LZ-family codec is
// built from. See SPEC_FULL.md §11.1 for which real third-party
// library backs each of LZVN and LZFSE in this port.
type Primitive interface {
	// UncompressedPrefix is the literal-store marker byte, or -1 if
	// this primitive has no literal-store fallback (LZFSE).
	UncompressedPrefix() int
	// Encode compresses src into dst, returning the number of bytes
	// written, or 0 if the primitive declined (output would not fit).
	Encode(dst, src []byte) (int, error)
	// Decode is the inverse of Encode (never sees a literal-store
	// prefix byte; Codec strips that before calling Decode).
	Decode(dst, src []byte) (int, error)
}

// Codec adapts a Primitive into the full codec.Codec contract.
type Codec struct {
	P Primitive
}

// HeaderSize returns (blockCount+1)*4: one u32 offset per block, plus
// one for the end of the data region.
func HeaderSize(blockCount uint64) uint64 {
	return (blockCount + 1) * 4
}

func (c *Codec) HeaderSize(blockCount uint64) uint64 { return HeaderSize(blockCount) }

// TrailerSize is always zero for the LZ family.
func (c *Codec) TrailerSize() uint64 { return 0 }

// Compress runs the primitive, falling back to a literal store if it
// declines (returns 0) and a prefix byte is available.
func (c *Codec) Compress(dst, src []byte, level int) (int, error) {
	if len(dst) <= len(src) {
		return 0, errors.New("lz: dst must be larger than src")
	}

	maxCompressSize := len(dst)
	if c.P.UncompressedPrefix() >= 0 {
		maxCompressSize = len(src)
	}

	n, err := c.P.Encode(dst[:maxCompressSize], src)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		prefix := c.P.UncompressedPrefix()
		if prefix < 0 {
			return 0, errors.New("lz: codec declined to compress and has no literal-store fallback")
		}
		dst[0] = byte(prefix)
		copy(dst[1:], src)
		return len(src) + 1, nil
	}
	return n, nil
}

// Decompress is the inverse of Compress.
func (c *Codec) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if prefix := c.P.UncompressedPrefix(); prefix >= 0 && src[0] == byte(prefix) {
		src = src[1:]
		if len(dst) < len(src) {
			return 0, io.ErrShortBuffer
		}
		n := copy(dst, src)
		return n, nil
	}
	n, err := c.P.Decode(dst, src)
	if err != nil {
		return 0, err
	}
	if n == 0 || n == len(dst) {
		return 0, io.ErrShortBuffer
	}
	return n, nil
}

// ReadBlockInfo parses the (block_count+1)-offset table at the start
// of the resource fork and validates that it covers the data region
// exactly.
func (c *Codec) ReadBlockInfo(r io.ReadSeeker, origFileSize uint64) ([]decmpfs.BlockInfo, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	blockCount := numBlocks(origFileSize)
	blocksStart := uint32(HeaderSize(blockCount))

	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, err
	}
	lastOffset := binary.LittleEndian.Uint32(buf[:])
	if lastOffset != blocksStart {
		return nil, errors.New("lz: unexpected first block offset")
	}

	result := make([]decmpfs.BlockInfo, 0, blockCount)
	for i := uint64(0); i < blockCount; i++ {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return nil, err
		}
		nextOffset := binary.LittleEndian.Uint32(buf[:])
		if nextOffset < lastOffset {
			return nil, errors.New("lz: compressed block overlap")
		}
		result = append(result, decmpfs.BlockInfo{
			Offset:         lastOffset,
			CompressedSize: nextOffset - lastOffset,
		})
		lastOffset = nextOffset
	}

	endPos, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if uint64(endPos) != uint64(lastOffset) {
		return nil, errors.New("lz: last block does not end resource fork")
	}

	return result, nil
}

// Finish writes the (block_count+1)-offset table at the start of w.
func (c *Codec) Finish(w io.WriteSeeker, blockSizes []uint32) error {
	blockCount := uint64(len(blockSizes))
	offset := uint32(HeaderSize(blockCount))

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}

	var buf [4]byte
	for _, size := range blockSizes {
		binary.LittleEndian.PutUint32(buf[:], offset)
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
		next := offset + size
		if next < offset {
			return errors.New("lz: unable to represent offset in 32 bits")
		}
		offset = next
	}
	binary.LittleEndian.PutUint32(buf[:], offset)
	if _, err := w.Write(buf[:]); err != nil {
		return err
	}

	return nil
}

func numBlocks(size uint64) uint64 {
	return (size + (1<<16 - 1)) / (1 << 16)
}
