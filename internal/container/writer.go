// Package container implements the per-file decmpfs container reader
// and writer: the component that decides, block by block, whether a
// file's compressed payload fits inline in the decmpfs xattr or must
// be promoted to the resource fork, and that (on the read side) turns
// a stored xattr value plus an optional resource fork back into a
// sequence of compressed blocks.
//
// Grounded on
// original_source/crates/applesauce-core/src/{reader,writer}.rs.
package container

import (
	"errors"
	"io"

	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/decmpfs"
)

// ResourceForkOpener lazily opens the resource fork a Writer or Reader
// should use, only once it is actually needed (a single-block file
// whose payload fits inline never opens one). Grounded on the
// original's generic `Open` trait / `FnOnce() -> R` blanket impl.
type ResourceForkOpener interface {
	OpenResourceFork() (io.ReadWriteSeeker, error)
}

// OpenerFunc adapts a plain function to ResourceForkOpener.
type OpenerFunc func() (io.ReadWriteSeeker, error)

func (f OpenerFunc) OpenResourceFork() (io.ReadWriteSeeker, error) { return f() }

type writerState int

const (
	stateSingleBlock writerState = iota
	stateMultipleBlocks
)

// Writer accumulates a file's compressed blocks and decides, per
// spec.md §4.5's "single-block-oversize transition", whether the
// result is stored inline in the decmpfs xattr or promoted to the
// resource fork.
type Writer struct {
	kind             codec.Kind
	uncompressedSize uint64
	open             ResourceForkOpener

	state        writerState
	singleBlock  []byte
	hasSingle    bool
	resourceFork io.ReadWriteSeeker
	blockSizes   []uint32
}

// NewWriter constructs a Writer for a file of uncompressedSize bytes
// compressed with kind. If the file needs more than one block, the
// resource fork is opened immediately (via open) and seeked past the
// container header; single-block files defer opening it until (if)
// the block turns out too large for the xattr.
func NewWriter(kind codec.Kind, uncompressedSize uint64, open ResourceForkOpener) (*Writer, error) {
	w := &Writer{kind: kind, uncompressedSize: uncompressedSize, open: open}

	blockCount := (uncompressedSize + (1<<16 - 1)) / (1 << 16)
	if blockCount > 1 {
		rf, err := open.OpenResourceFork()
		if err != nil {
			return nil, err
		}
		if _, err := rf.Seek(int64(codec.HeaderSize(kind, blockCount)), io.SeekStart); err != nil {
			return nil, err
		}
		w.state = stateMultipleBlocks
		w.resourceFork = rf
		w.blockSizes = make([]uint32, 0, blockCount)
	} else {
		w.state = stateSingleBlock
	}
	return w, nil
}

// AddBlock appends one compressed block, in ascending block-index
// order (callers — internal/pipeline's writer stage — are responsible
// for draining the SCQ in order before calling this).
func (w *Writer) AddBlock(block []byte) error {
	switch w.state {
	case stateSingleBlock:
		if w.hasSingle {
			return errors.New("container: single-block writer already has its block")
		}
		w.singleBlock = block
		w.hasSingle = true
		if len(block) > decmpfs.MaxXattrDataSize {
			return w.forceMoveToResourceFork()
		}
		return nil
	case stateMultipleBlocks:
		w.blockSizes = append(w.blockSizes, uint32(len(block)))
		_, err := w.resourceFork.Write(block)
		return err
	default:
		panic("container: unreachable writer state")
	}
}

// forceMoveToResourceFork is the only internal state transition inside
// the writer: a single block that turns out to exceed the inline
// budget is written out to a freshly-opened resource fork instead.
func (w *Writer) forceMoveToResourceFork() error {
	block := w.singleBlock
	rf, err := w.open.OpenResourceFork()
	if err != nil {
		return err
	}
	blockCount := (w.uncompressedSize + (1<<16 - 1)) / (1 << 16)
	if _, err := rf.Seek(int64(codec.HeaderSize(w.kind, blockCount)), io.SeekStart); err != nil {
		return err
	}
	if _, err := rf.Write(block); err != nil {
		return err
	}
	w.state = stateMultipleBlocks
	w.resourceFork = rf
	w.blockSizes = []uint32{uint32(len(block))}
	w.singleBlock = nil
	return nil
}

// FinishDecmpfsData finalizes the container, returning the encoded
// decmpfs xattr value (header plus, for Xattr storage, the inline
// payload). For ResourceFork storage, it also writes the resource
// fork's header/offset-table via the codec's Finish.
func (w *Writer) FinishDecmpfsData(c codec.Codec) (decmpfs.Value, error) {
	var storage decmpfs.Storage
	var extra []byte

	switch w.state {
	case stateSingleBlock:
		storage = decmpfs.StorageXattr
		extra = w.singleBlock
	case stateMultipleBlocks:
		expected := (w.uncompressedSize + (1<<16 - 1)) / (1 << 16)
		if uint64(len(w.blockSizes)) != expected {
			return decmpfs.Value{}, errors.New("container: wrong number of blocks")
		}
		if err := c.Finish(w.resourceFork, w.blockSizes); err != nil {
			return decmpfs.Value{}, err
		}
		storage = decmpfs.StorageResourceFork
	default:
		panic("container: unreachable writer state")
	}

	return decmpfs.Value{
		CompressionType:  decmpfs.NewCompressionType(w.kind, storage),
		UncompressedSize: w.uncompressedSize,
		ExtraData:        extra,
	}, nil
}
