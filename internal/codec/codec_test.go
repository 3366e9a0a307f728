package codec

import (
	"bytes"
	"testing"

	afscomp "github.com/afscomp/afscomp"
)

func TestCompressDecompressRoundTrip(t *testing.T) {
	for _, kind := range []Kind{Zlib, Lzvn, Lzfse} {
		kind := kind
		t.Run(kind.String(), func(t *testing.T) {
			c, err := New(kind)
			if err != nil {
				t.Fatalf("New(%v): %v", kind, err)
			}
			src := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog "), 200)

			dst := make([]byte, len(src)+1024)
			n, err := c.Compress(dst, src, 6)
			if err != nil {
				t.Fatalf("Compress: %v", err)
			}

			out := make([]byte, len(src)+afscomp.BlockSize)
			m, err := c.Decompress(out, dst[:n])
			if err != nil {
				t.Fatalf("Decompress: %v", err)
			}
			if !bytes.Equal(out[:m], src) {
				t.Fatalf("round trip mismatch: got %d bytes, want %d", m, len(src))
			}
		})
	}
}

func TestHeaderSizeMatchesCodecInstance(t *testing.T) {
	for _, kind := range []Kind{Zlib, Lzvn, Lzfse} {
		c, err := New(kind)
		if err != nil {
			t.Fatalf("New(%v): %v", kind, err)
		}
		for _, blocks := range []uint64{0, 1, 5, 1000} {
			if got, want := c.HeaderSize(blocks), HeaderSize(kind, blocks); got != want {
				t.Errorf("%v: instance HeaderSize(%d) = %d, package HeaderSize = %d", kind, blocks, got, want)
			}
		}
	}
}

func TestNewUnsupportedKind(t *testing.T) {
	if _, err := New(Kind(99)); err == nil {
		t.Fatal("New(99) succeeded; want error")
	}
}
