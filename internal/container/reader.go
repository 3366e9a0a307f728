package container

import (
	"bufio"
	"errors"
	"io"

	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/decmpfs"
)

type readerState int

const (
	readerStateXattr readerState = iota
	readerStateResourceFork
)

// Reader yields a compressed file's blocks in order, reading either
// directly out of the decmpfs xattr payload (Xattr storage) or out of
// the resource fork using a pre-parsed BlockInfo index (ResourceFork
// storage).
//
// Grounded on original_source/crates/applesauce-core/src/reader.rs.
type Reader struct {
	kind  codec.Kind
	state readerState

	// Xattr state.
	xattrRemaining []byte

	// ResourceFork state: blockInfos is stored in forward order and
	// consumed from the front (the original stores it reversed and
	// pop()s; a slice index is simpler in Go and has the same cost).
	blockInfos []decmpfs.BlockInfo
	nextBlock  int
	lastOffset uint32
	rf         *bufio.Reader
	rfSeeker   io.Seeker
}

// NewReader constructs a Reader from a decmpfs xattr value and a
// resource-fork opener (consulted only when storage is
// ResourceFork).
func NewReader(decmpfsData []byte, open ResourceForkOpener) (*Reader, error) {
	value, err := decmpfs.FromData(decmpfsData)
	if err != nil {
		return nil, err
	}
	kind, storage, ok := value.CompressionType.CompressionStorage()
	if !ok || !codec.Supported(kind) {
		return nil, errors.New("container: unsupported compression kind or storage")
	}

	r := &Reader{kind: kind}
	switch storage {
	case decmpfs.StorageXattr:
		r.state = readerStateXattr
		r.xattrRemaining = decmpfsData[decmpfs.HeaderLen:]
	case decmpfs.StorageResourceFork:
		rwsOpen, err := open.OpenResourceFork()
		if err != nil {
			return nil, err
		}
		c, err := codec.New(kind)
		if err != nil {
			return nil, err
		}
		blockInfos, err := c.ReadBlockInfo(rwsOpen, value.UncompressedSize)
		if err != nil {
			return nil, err
		}
		if _, err := rwsOpen.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		r.state = readerStateResourceFork
		r.blockInfos = blockInfos
		r.rf = bufio.NewReader(rwsOpen)
		r.rfSeeker = rwsOpen
	}
	return r, nil
}

// ReadBlockInto appends the next compressed block's raw bytes to dst,
// returning false once there are no more blocks.
func (r *Reader) ReadBlockInto(dst *[]byte) (bool, error) {
	switch r.state {
	case readerStateXattr:
		if len(r.xattrRemaining) == 0 {
			return false, nil
		}
		*dst = append(*dst, r.xattrRemaining...)
		r.xattrRemaining = nil
		return true, nil
	case readerStateResourceFork:
		if r.nextBlock >= len(r.blockInfos) {
			return false, nil
		}
		block := r.blockInfos[r.nextBlock]
		r.nextBlock++

		diff := int64(block.Offset) - int64(r.lastOffset)
		if err := discardOrSeek(r, diff); err != nil {
			return false, err
		}

		start := len(*dst)
		*dst = append(*dst, make([]byte, block.CompressedSize)...)
		if _, err := io.ReadFull(r.rf, (*dst)[start:]); err != nil {
			if err == io.ErrUnexpectedEOF || err == io.EOF {
				return false, io.ErrUnexpectedEOF
			}
			return false, err
		}

		next := block.Offset + block.CompressedSize
		if next < block.Offset {
			return false, errors.New("container: block offset overflow")
		}
		r.lastOffset = next
		return true, nil
	default:
		panic("container: unreachable reader state")
	}
}

// discardOrSeek advances the buffered resource-fork reader by diff
// bytes, forwards only (diff is always >= 0 for a well-formed
// container since blocks are consumed in ascending offset order).
func discardOrSeek(r *Reader, diff int64) error {
	if diff < 0 {
		return errors.New("container: non-monotonic block offsets")
	}
	if diff == 0 {
		return nil
	}
	_, err := r.rf.Discard(int(diff))
	return err
}

// CompressionKind reports the codec this file was compressed with.
func (r *Reader) CompressionKind() codec.Kind { return r.kind }

// RemainingBlocks reports how many blocks are left to read.
func (r *Reader) RemainingBlocks() int {
	switch r.state {
	case readerStateXattr:
		if len(r.xattrRemaining) > 0 {
			return 1
		}
		return 0
	case readerStateResourceFork:
		return len(r.blockInfos) - r.nextBlock
	default:
		return 0
	}
}
