package container

import (
	"bytes"
	"io"
	"math/rand"
	"testing"

	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/decmpfs"
	"github.com/afscomp/afscomp/internal/rforktest"

	afscomp "github.com/afscomp/afscomp"
)

// lazyFork defers allocating its backing fork until first opened, the
// way internal/pipeline's writer stage only asks for a resource fork
// once it's actually needed.
func lazyFork() (ResourceForkOpener, func() *rforktest.Fork) {
	var fork *rforktest.Fork
	open := OpenerFunc(func() (io.ReadWriteSeeker, error) {
		if fork == nil {
			fork = rforktest.New()
		}
		return fork, nil
	})
	return open, func() *rforktest.Fork { return fork }
}

func compressAll(t *testing.T, c codec.Codec, data []byte) [][]byte {
	t.Helper()
	var blocks [][]byte
	scratch := make([]byte, afscomp.BlockSize+1024)
	for len(data) > 0 {
		n := afscomp.BlockSize
		if n > len(data) {
			n = len(data)
		}
		chunk := data[:n]
		data = data[n:]
		m, err := c.Compress(scratch, chunk, 6)
		if err != nil {
			t.Fatalf("Compress: %v", err)
		}
		block := make([]byte, m)
		copy(block, scratch[:m])
		blocks = append(blocks, block)
	}
	return blocks
}

func roundTrip(t *testing.T, kind codec.Kind, size int) {
	t.Helper()
	c, err := codec.New(kind)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}

	pattern := []byte("afscomp container round trip payload ")
	orig := bytes.Repeat(pattern, (size/len(pattern))+1)[:size]
	blocks := compressAll(t, c, orig)

	open, _ := lazyFork()
	w, err := NewWriter(kind, uint64(size), open)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	for _, b := range blocks {
		if err := w.AddBlock(b); err != nil {
			t.Fatalf("AddBlock: %v", err)
		}
	}
	value, err := w.FinishDecmpfsData(c)
	if err != nil {
		t.Fatalf("FinishDecmpfsData: %v", err)
	}

	r, err := NewReader(value.Bytes(), open)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if r.CompressionKind() != kind {
		t.Fatalf("CompressionKind() = %v; want %v", r.CompressionKind(), kind)
	}

	dc, err := codec.New(kind)
	if err != nil {
		t.Fatalf("codec.New (decompress side): %v", err)
	}
	var got []byte
	scratch := make([]byte, afscomp.BlockSize+1024)
	for {
		var raw []byte
		ok, err := r.ReadBlockInto(&raw)
		if err != nil {
			t.Fatalf("ReadBlockInto: %v", err)
		}
		if !ok {
			break
		}
		n, err := dc.Decompress(scratch, raw)
		if err != nil {
			t.Fatalf("Decompress: %v", err)
		}
		got = append(got, scratch[:n]...)
	}

	if !bytes.Equal(got, orig) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(orig))
	}
}

func TestRoundTripSingleBlockXattr(t *testing.T) {
	for _, kind := range []codec.Kind{codec.Zlib, codec.Lzvn, codec.Lzfse} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			roundTrip(t, kind, 4096)
		})
	}
}

func TestRoundTripMultiBlockResourceFork(t *testing.T) {
	for _, kind := range []codec.Kind{codec.Zlib, codec.Lzvn, codec.Lzfse} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			roundTrip(t, kind, 3*afscomp.BlockSize+512)
		})
	}
}

func TestSingleBlockPromotedToResourceFork(t *testing.T) {
	// An incompressible single block larger than decmpfs.MaxXattrDataSize
	// forces the writer's inline-to-resource-fork transition even
	// though the file is only one block.
	orig := make([]byte, afscomp.BlockSize)
	rand.New(rand.NewSource(1)).Read(orig)

	c, err := codec.New(codec.Zlib)
	if err != nil {
		t.Fatalf("codec.New: %v", err)
	}
	scratch := make([]byte, afscomp.BlockSize+1024)
	n, err := c.Compress(scratch, orig, 6)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	block := make([]byte, n)
	copy(block, scratch[:n])
	if len(block) <= decmpfs.MaxXattrDataSize {
		t.Skipf("compressed block (%d bytes) fits inline; test needs an incompressible block", len(block))
	}

	open, getFork := lazyFork()
	w, err := NewWriter(codec.Zlib, uint64(len(orig)), open)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddBlock(block); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	if getFork() == nil {
		t.Fatal("writer did not open a resource fork after an oversize single block")
	}
	value, err := w.FinishDecmpfsData(c)
	if err != nil {
		t.Fatalf("FinishDecmpfsData: %v", err)
	}
	_, storage, ok := value.CompressionType.CompressionStorage()
	if !ok || storage != decmpfs.StorageResourceFork {
		t.Fatalf("CompressionStorage() storage = %v, ok=%v; want StorageResourceFork", storage, ok)
	}
}
