package pipeline

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/container"
	"github.com/afscomp/afscomp/internal/decmpfs"
	"github.com/afscomp/afscomp/internal/scq"
	"github.com/afscomp/afscomp/internal/times"
	"github.com/afscomp/afscomp/internal/trace"
	"github.com/afscomp/afscomp/internal/xattr"

	afscomp "github.com/afscomp/afscomp"
)

// readItem is what Submit hands to the reader pool.
type readItem struct {
	item WorkItem
}

// chunk is what flows out of the SCQ to the writer stage: one
// resolved block, either already-compressed bytes (Compress/
// DecompressManually) or plain bytes read straight off the OS's
// transparent decompression (DecompressByReading).
type chunk struct {
	block    []byte
	origSize uint64
}

// compressItem is what the reader stage hands to the compressor pool.
type compressItem struct {
	ctx     *fileContext
	data    []byte
	slot    *scq.Slot[chunk]
	kind    codec.Kind
	compress bool
}

// writeItem is what the reader stage hands to the writer pool,
// immediately, before it has read a single block — the writer starts
// draining the SCQ receiver as soon as blocks start arriving.
type writeItem struct {
	ctx    *fileContext
	file   *os.File
	blocks *scq.Receiver[chunk]
}

func (p *Pipeline) runReader(id int) {
	buf := make([]byte, afscomp.BlockSize)
	for ri := range p.readerCh {
		if p.Cancelled() {
			p.releaseResetter(ri.item)
			continue
		}
		p.readOne(ri.item, buf, id)
	}
}

func (p *Pipeline) releaseResetter(item WorkItem) {
	if item.Resetter != nil {
		item.Resetter.Release()
	}
}

func (p *Pipeline) readOne(item WorkItem, buf []byte, id int) {
	savedTimes, err := times.Save(item.Path)
	if err != nil {
		p.opts.Progress.Error(item.Path, err)
		p.markFailed()
		p.releaseResetter(item)
		return
	}

	f, err := os.Open(item.Path)
	if err != nil {
		p.opts.Progress.Error(item.Path, err)
		p.markFailed()
		p.releaseResetter(item)
		return
	}

	ctx := &fileContext{
		path:       item.Path,
		origSize:   item.Size,
		mode:       item.Mode,
		kind:       p.opts.Kind,
		level:      p.opts.Level,
		task:       p.opts.Progress.FileTask(item.Path, item.Size),
		savedTimes: savedTimes,
		resetter:   item.Resetter,
		minRatio:   uint64(float64(item.Size) * p.opts.MinCompressionRatio),
		verify:     p.opts.Verify,
	}

	capacity := p.opts.CompressorWorkers
	if capacity < 1 {
		capacity = 1
	}
	sender, receiver := scq.NewBounded[chunk](capacity)

	// Hand the receiver to the writer immediately: the writer starts
	// draining blocks as soon as they're available, in parallel with
	// the reader still producing later ones.
	select {
	case p.writerCh <- writeItem{ctx: ctx, file: f, blocks: receiver}:
	case <-p.ctx.Done():
		f.Close()
		sender.Close(errors.New("pipeline: cancelled before writer accepted file"))
		p.releaseResetter(item)
		return
	}

	var readErr error
	switch ctx.mode {
	case ModeCompress, ModeDecompressByReading:
		readErr = p.readPlainBlocks(ctx, f, sender, buf, id)
	case ModeDecompressManually:
		readErr = p.readContainerBlocks(ctx, f, sender, id)
	default:
		panic("pipeline: unreachable reader mode")
	}
	if readErr != nil {
		ctx.task.Error(readErr.Error())
		p.markFailed()
	}
	// ctx.resetter is released by the writer stage once it finishes
	// with this file, not here: the reader's job ends once every
	// block has been handed off, but the file isn't "done" until the
	// writer persists or discards it.
}

// readPlainBlocks reads ctx's source file in BlockSize chunks of plain
// bytes: the original file's content for ModeCompress, or the
// already-transparently-decompressed content a real decmpfs-aware
// kernel hands back on a normal read for ModeDecompressByReading. A
// slot is reserved only once a block is actually in hand — unlike the
// original, which reserves a slot before the read that discovers EOF
// and so always abandons one trailing slot per file (relying on the
// Rust Drop-based "unknown error" to be silently superseded by
// whatever later call sets the real final status). This port's
// Sender.Close is explicit rather than Drop-based, so reserving ahead
// of a read whose result is still unknown would leave a genuine
// trailing abandoned slot with nothing to supersede it. Reading first
// avoids the discrepancy while preserving every other ordering
// guarantee.
func (p *Pipeline) readPlainBlocks(ctx *fileContext, f *os.File, sender *scq.Sender[chunk], buf []byte, id int) error {
	var totalRead uint64
	for {
		ev := trace.Event("read", id)
		n, err := afscomp.TryReadAll(f, buf)
		ev.Done()
		if err != nil {
			sender.Close(err)
			return err
		}
		if n == 0 {
			break
		}
		totalRead += uint64(n)
		if totalRead > ctx.origSize {
			err := fmt.Errorf("pipeline: %s: file grew while reading", ctx.path)
			sender.Close(err)
			return err
		}

		slot := sender.Reserve()
		switch ctx.mode {
		case ModeCompress:
			data := make([]byte, n)
			copy(data, buf[:n])
			item := compressItem{
				ctx:      ctx,
				data:     data,
				slot:     slot,
				kind:     ctx.kind,
				compress: true,
			}
			select {
			case p.compressorCh <- item:
			case <-p.ctx.Done():
				slot.Abandon()
				err := errors.New("pipeline: cancelled")
				sender.Close(err)
				return err
			}
		case ModeDecompressByReading:
			data := make([]byte, n)
			copy(data, buf[:n])
			slot.Finish(chunk{block: data, origSize: uint64(n)})
		default:
			panic("pipeline: unreachable reader mode")
		}
	}

	if totalRead != ctx.origSize {
		err := fmt.Errorf("pipeline: %s: expected %d bytes, read %d", ctx.path, ctx.origSize, totalRead)
		sender.Close(err)
		return err
	}
	sender.Close(nil)
	return nil
}

// readContainerBlocks reads ctx's source file's decmpfs xattr (and,
// for a ResourceFork-stored file, its resource fork's offset table),
// handing each still-compressed block to the compressor pool to run
// back through the codec. Used only by ModeDecompressManually, where
// the caller wants the file actually decompressed rather than relying
// on the OS to do it transparently on read.
//
// Grounded on original_source/crates/applesauce/src/threads/reader.rs,
// which builds the same applesauce_core::reader::Reader from the
// file's decmpfs xattr before looping over its blocks.
func (p *Pipeline) readContainerBlocks(ctx *fileContext, f *os.File, sender *scq.Sender[chunk], id int) error {
	data, err := xattr.Get(f, decmpfs.XattrName)
	if err != nil {
		sender.Close(err)
		return err
	}

	opener := container.OpenerFunc(func() (io.ReadWriteSeeker, error) {
		return p.openResourceFork(f)
	})
	r, err := container.NewReader(data, opener)
	if err != nil {
		sender.Close(err)
		return err
	}
	kind := r.CompressionKind()

	for {
		var blockBuf []byte
		ev := trace.Event("read", id)
		ok, err := r.ReadBlockInto(&blockBuf)
		ev.Done()
		if err != nil {
			sender.Close(err)
			return err
		}
		if !ok {
			break
		}

		slot := sender.Reserve()
		item := compressItem{
			ctx:      ctx,
			data:     blockBuf,
			slot:     slot,
			kind:     kind,
			compress: false,
		}
		select {
		case p.compressorCh <- item:
		case <-p.ctx.Done():
			slot.Abandon()
			err := errors.New("pipeline: cancelled")
			sender.Close(err)
			return err
		}
	}

	sender.Close(nil)
	return nil
}
