// Package lzvncodec implements the decmpfs LZVN codec. Apple's LZVN
// algorithm has no open-source Go (or even open-source Rust — the
// original links Apple's native libcompression) implementation
// anywhere in the retrieved example pack, so this port backs the LZVN
// codec's block encode/decode primitive with
// github.com/pierrec/lz4/v4's block API instead: both are
// byte-oriented LZ77 variants tuned for speed over ratio, and the
// container format around the block (the (block_count+1)-offset
// table) never inspects the compressed bytes. See SPEC_FULL.md §11.1.
//
// Grounded on
// original_source/crates/applesauce-core/src/compressor/lzvn.rs for
// the container/prefix contract.
package lzvncodec

import (
	"github.com/pierrec/lz4/v4"

	"github.com/afscomp/afscomp/internal/codec/internal/lz"
)

// uncompressedPrefix is the LZVN literal-store marker byte.
const uncompressedPrefix = 0x06

// primitive adapts pierrec/lz4's block API to lz.Primitive. The
// embedded Compressor holds lz4's internal hash table, reused across
// calls the same way the original's scratch buffer is reused across
// blocks by one compressor instance.
type primitive struct {
	c lz4.Compressor
}

func (p *primitive) UncompressedPrefix() int { return uncompressedPrefix }

func (p *primitive) Encode(dst, src []byte) (int, error) {
	n, err := p.c.CompressBlock(src, dst)
	if err != nil {
		return 0, err
	}
	// lz4 reports 0 when the block did not compress; the shared lz
	// container then falls back to the literal store, matching the
	// original's "len == 0" branch.
	return n, nil
}

func (p *primitive) Decode(dst, src []byte) (int, error) {
	return lz4.UncompressBlock(src, dst)
}

// New constructs a fresh LZVN codec instance.
func New() *lz.Codec {
	return &lz.Codec{P: &primitive{}}
}
