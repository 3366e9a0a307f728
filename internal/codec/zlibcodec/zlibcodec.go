// Package zlibcodec implements the decmpfs zlib codec: block
// compression backed by github.com/klauspost/compress/zlib, and the
// bit-exact container layout described in SPEC_FULL.md §3/§4.1 (a
// 16-byte big-endian header, zero padding to 0x100, a block-offset
// table starting at 0x104, and a fixed 50-byte trailer).
//
// Grounded on
// original_source/crates/applesauce-core/src/compressor/zlib.rs.
package zlibcodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"

	kzlib "github.com/klauspost/compress/zlib"

	"github.com/afscomp/afscomp/internal/decmpfs"
)

// uncompressedPrefix marks a literal-stored block: the codec declined
// to compress (output would not have been smaller).
const uncompressedPrefix = 0xFF

// headerLen is the length of the 4-u32 big-endian container header.
const headerLen = 16

// Codec implements codec.Codec for the zlib compression family.
type Codec struct{}

// New constructs a fresh zlib Codec. Unlike the LZ-family codecs, Zlib
// carries no per-instance scratch state: klauspost/compress/zlib
// allocates its own internal buffers per call.
func New() *Codec { return &Codec{} }

// HeaderSize returns the byte offset of the first compressed block:
// the fixed table prefix plus one BlockInfo entry per block.
func HeaderSize(blockCount uint64) uint64 {
	return decmpfs.ZlibBlockTableStart + 4 + blockCount*decmpfs.BlockInfoSize
}

func (c *Codec) HeaderSize(blockCount uint64) uint64 { return HeaderSize(blockCount) }

// TrailerSize returns the length of the fixed zlib trailer.
func (c *Codec) TrailerSize() uint64 { return uint64(len(decmpfs.ZlibTrailer)) }

// Compress zlib-compresses src into dst. If the compressed output
// would not be smaller than src, it falls back to a literal store: a
// 0xFF prefix byte followed by the verbatim source.
func (c *Codec) Compress(dst, src []byte, level int) (int, error) {
	if len(dst) <= len(src) {
		return 0, errors.New("zlibcodec: dst must be larger than src")
	}

	var buf bytes.Buffer
	w, err := kzlib.NewWriterLevel(&buf, level)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(src); err != nil {
		return 0, err
	}
	if err := w.Close(); err != nil {
		return 0, err
	}

	if buf.Len() >= len(src) {
		dst[0] = uncompressedPrefix
		copy(dst[1:], src)
		return len(src) + 1, nil
	}
	n := copy(dst, buf.Bytes())
	return n, nil
}

// Decompress is the inverse of Compress.
func (c *Codec) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, io.ErrUnexpectedEOF
	}
	if src[0] == uncompressedPrefix {
		src = src[1:]
		if len(dst) < len(src) {
			return 0, io.ErrShortBuffer
		}
		n := copy(dst, src)
		return n, nil
	}

	r, err := kzlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, err
	}
	defer r.Close()
	n, err := io.ReadFull(r, dst)
	switch {
	case err == io.ErrUnexpectedEOF || err == io.EOF:
		return n, nil
	case err != nil:
		return 0, err
	default:
		// dst was filled exactly; a real block never expands to fill the
		// scratch buffer precisely, so this indicates truncation.
		return 0, errors.New("zlibcodec: decompressed output did not terminate within dst")
	}
}

func header(dataEnd uint32) [headerLen]byte {
	var result [headerLen]byte
	binary.BigEndian.PutUint32(result[0:4], 0x100)
	binary.BigEndian.PutUint32(result[4:8], dataEnd)
	binary.BigEndian.PutUint32(result[8:12], dataEnd-0x100)
	binary.BigEndian.PutUint32(result[12:16], 0x32)
	return result
}

// ReadBlockInfo validates and parses the zlib container layout,
// returning the per-block offset/size table.
func (c *Codec) ReadBlockInfo(r io.ReadSeeker, origFileSize uint64) ([]decmpfs.BlockInfo, error) {
	blockCount := uint32(numBlocks(origFileSize))

	totalSize64, err := r.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, err
	}
	if totalSize64 > 0xFFFFFFFF {
		return nil, errors.New("zlibcodec: resource fork exceeds u32 range")
	}
	totalSize := uint32(totalSize64)
	dataEnd := totalSize - uint32(len(decmpfs.ZlibTrailer))

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	var headerBuf [headerLen]byte
	if _, err := io.ReadFull(r, headerBuf[:]); err != nil {
		return nil, err
	}
	if headerBuf != header(dataEnd) {
		return nil, errors.New("zlibcodec: zlib header does not match expectation")
	}

	padBuf := make([]byte, 0x100-headerLen)
	if _, err := io.ReadFull(r, padBuf); err != nil {
		return nil, err
	}
	for _, b := range padBuf {
		if b != 0 {
			return nil, errors.New("zlibcodec: expected zeros between header and 0x100")
		}
	}

	var u32Buf [4]byte
	if _, err := io.ReadFull(r, u32Buf[:]); err != nil {
		return nil, err
	}
	if binary.BigEndian.Uint32(u32Buf[:]) != dataEnd-0x104 {
		return nil, errors.New("zlibcodec: unexpected data at 0x100")
	}

	if _, err := io.ReadFull(r, u32Buf[:]); err != nil {
		return nil, err
	}
	if binary.LittleEndian.Uint32(u32Buf[:]) != blockCount {
		return nil, errors.New("zlibcodec: block count does not match computed value")
	}

	result := make([]decmpfs.BlockInfo, 0, blockCount)
	blockBuf := make([]byte, decmpfs.BlockInfoSize)
	for i := uint32(0); i < blockCount; i++ {
		if _, err := io.ReadFull(r, blockBuf); err != nil {
			return nil, err
		}
		bi := decmpfs.BlockInfoFromBytes(blockBuf)
		bi.Offset += decmpfs.ZlibBlockTableStart
		result = append(result, bi)
	}

	if _, err := r.Seek(int64(dataEnd), io.SeekStart); err != nil {
		return nil, err
	}
	var trailerBuf [50]byte
	if _, err := io.ReadFull(r, trailerBuf[:]); err != nil {
		return nil, err
	}
	if trailerBuf != decmpfs.ZlibTrailer {
		return nil, errors.New("zlibcodec: trailer does not match")
	}

	return result, nil
}

// Finish writes ZlibTrailer at the writer's current position (the end
// of the data region), then rewinds and writes the zlib container
// header, data-region size, block count, and BlockInfo table, matching
// the original's "trailer then rewind" sequencing.
func (c *Codec) Finish(w io.WriteSeeker, blockSizes []uint32) error {
	blockCount := uint32(len(blockSizes))
	dataEndPos, err := w.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	if dataEndPos > 0xFFFFFFFF {
		return errors.New("zlibcodec: data end exceeds u32 range")
	}
	dataEnd := uint32(dataEndPos)

	if _, err := w.Write(decmpfs.ZlibTrailer[:]); err != nil {
		return err
	}

	if _, err := w.Seek(0, io.SeekStart); err != nil {
		return err
	}
	h := header(dataEnd)
	if _, err := w.Write(h[:]); err != nil {
		return err
	}

	if _, err := w.Seek(0x100, io.SeekStart); err != nil {
		return err
	}
	var u32Buf [4]byte
	binary.BigEndian.PutUint32(u32Buf[:], dataEnd-0x104)
	if _, err := w.Write(u32Buf[:]); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(u32Buf[:], blockCount)
	if _, err := w.Write(u32Buf[:]); err != nil {
		return err
	}

	currentOffset := uint32(HeaderSize(uint64(blockCount)) - decmpfs.ZlibBlockTableStart)
	for _, size := range blockSizes {
		bi := decmpfs.BlockInfo{Offset: currentOffset, CompressedSize: size}
		b := bi.Bytes()
		if _, err := w.Write(b[:]); err != nil {
			return err
		}
		next := currentOffset + size
		if next < currentOffset {
			return errors.New("zlibcodec: offset too large for 32 bits")
		}
		currentOffset = next
	}

	return nil
}

func numBlocks(size uint64) uint64 {
	return (size + (1<<16 - 1)) / (1 << 16)
}
