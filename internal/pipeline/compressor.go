package pipeline

import (
	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/trace"

	afscomp "github.com/afscomp/afscomp"
)

// runCompressor is one compressor-pool worker: one codec instance per
// kind (lazily constructed) plus one scratch buffer, both reused
// across every block this worker ever processes.
//
// Grounded on threads/compressing.rs's Handler, which keeps a
// `Vec<Option<Compressor>>` indexed by kind and a single scratch `buf:
// Vec<u8>` sized BLOCK_SIZE + 1024 (headroom for an incompressible
// block's worst-case expansion plus its literal-store prefix byte).
func (p *Pipeline) runCompressor(id int) {
	codecs := make(map[codec.Kind]codec.Codec)
	scratch := make([]byte, afscomp.BlockSize+1024)

	for item := range p.compressorCh {
		c, ok := codecs[item.kind]
		if !ok {
			var err error
			c, err = codec.New(item.kind)
			if err != nil {
				item.slot.Error(err)
				continue
			}
			codecs[item.kind] = c
		}

		name := "decompress"
		if item.compress {
			name = "compress"
		}
		ev := trace.Event(name, id)

		var n int
		var err error
		if item.compress {
			n, err = c.Compress(scratch, item.data, item.ctx.level)
		} else {
			n, err = c.Decompress(scratch, item.data)
		}
		ev.Done()
		if err != nil {
			item.slot.Error(err)
			continue
		}

		out := make([]byte, n)
		copy(out, scratch[:n])
		item.slot.Finish(chunk{block: out, origSize: uint64(len(item.data))})
	}
}
