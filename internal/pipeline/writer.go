package pipeline

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/renameio"

	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/container"
	"github.com/afscomp/afscomp/internal/decmpfs"
	"github.com/afscomp/afscomp/internal/scq"
	"github.com/afscomp/afscomp/internal/times"
	"github.com/afscomp/afscomp/internal/trace"
	"github.com/afscomp/afscomp/internal/volume"
	"github.com/afscomp/afscomp/internal/xattr"
)

// controlXattrs are the names the writer stage never copies verbatim
// from the source file: they describe the *old* compression state
// (or none at all) and are replaced wholesale by FinishDecmpfsData's
// own value, or dropped entirely on the decompress side.
var controlXattrs = map[string]bool{
	decmpfs.XattrName:             true,
	decmpfs.ResourceForkXattrName: true,
}

// runWriter is one writer-pool worker: it drains p.writerCh, and for
// each file drains that file's SCQ receiver in strict reservation
// order, building either a decmpfs container (ModeCompress) or a plain
// copy (the two decompress modes) on a tempfile staged on the same
// device as the original, then renames it atomically over the
// original.
//
// Grounded on threads/writer.rs's Handler::handle, which is the single
// point deciding a file's final outcome: every other stage only
// produces data or reports an error upstream of this one.
func (p *Pipeline) runWriter(id int) {
	for wi := range p.writerCh {
		p.writeOne(wi, id)
	}
}

func (p *Pipeline) writeOne(wi writeItem, id int) {
	ctx := wi.ctx
	defer func() {
		if ctx.resetter != nil {
			ctx.resetter.Release()
		}
	}()
	defer wi.file.Close()

	if err := p.writeFile(wi, id); err != nil {
		if errors.Is(err, errNotCompressibleEnough) {
			// Already reported via ctx.task.NotCompressibleEnough in
			// writeCompressed: a clean per-file abort, not a failure.
			return
		}
		ctx.task.Error(err.Error())
		p.markFailed()
	}
}

func (p *Pipeline) writeFile(wi writeItem, id int) error {
	ctx := wi.ctx

	fi, err := wi.file.Stat()
	if err != nil {
		drainOnError(wi.blocks)
		return err
	}
	dev, err := volume.DeviceOf(fi)
	if err != nil {
		drainOnError(wi.blocks)
		return err
	}
	tempDir, err := p.opts.Volumes.TempDir(ctx.path, dev)
	if err != nil {
		drainOnError(wi.blocks)
		return err
	}

	pending, err := renameio.TempFile(tempDir, ctx.path)
	if err != nil {
		drainOnError(wi.blocks)
		return err
	}
	defer pending.Cleanup()

	if err := pending.Chmod(ctx.savedTimes.Mode); err != nil {
		drainOnError(wi.blocks)
		return err
	}

	if err := xattr.CopyAll(pending.File, wi.file, controlXattrs); err != nil {
		drainOnError(wi.blocks)
		return err
	}

	if ctx.mode.compressing() {
		err = p.writeCompressed(ctx, pending, wi.blocks, id)
	} else {
		err = p.writeUncompressed(ctx, pending, wi.blocks, id)
	}
	if err != nil {
		return err
	}

	if err := times.RestoreModeOwner(pending.Name(), ctx.savedTimes); err != nil {
		return err
	}

	flags := ctx.savedTimes.Flags
	if ctx.mode.compressing() {
		flags |= times.CompressedFlag
	} else {
		flags &^= times.CompressedFlag
	}
	if err := times.SetFlags(pending.Name(), flags); err != nil {
		return err
	}

	if ctx.verify {
		if err := verifyIdentical(ctx, wi.file, pending.Name()); err != nil {
			return err
		}
	}

	if err := pending.CloseAtomicallyReplace(); err != nil {
		return err
	}

	return times.RestoreTimes(ctx.path, ctx.savedTimes)
}

// writeCompressed drains blocks into a container.Writer, aborting with
// a NotCompressibleEnough report (not a hard error) if the running
// compressed total ever exceeds ctx.minRatio.
//
// Grounded on threads/writer.rs's write_compressed_file, which tracks
// the same running total against min_compression_ratio and, on
// exceeding it, still finishes the write (some containers are cheaper
// to leave half-written and delete than to re-open uncompressed) but
// reports the outcome instead of persisting it. This port simply
// discards the tempfile (via pending.Cleanup, deferred in writeFile)
// rather than persisting a container it already knows it will reject.
func (p *Pipeline) writeCompressed(ctx *fileContext, pending *renameio.PendingFile, blocks *scq.Receiver[chunk], id int) error {
	c, err := codec.New(ctx.kind)
	if err != nil {
		drainOnError(blocks)
		return err
	}

	opener := container.OpenerFunc(func() (io.ReadWriteSeeker, error) {
		return p.openResourceFork(pending.File)
	})
	w, err := container.NewWriter(ctx.kind, ctx.origSize, opener)
	if err != nil {
		drainOnError(blocks)
		return err
	}

	var compressedTotal uint64
	tooBig := false
	var addErr error
	for {
		blk, err := blocks.Recv()
		if errors.Is(err, scq.ErrFinished) {
			break
		}
		if err != nil {
			return fmt.Errorf("pipeline: %s: %w", ctx.path, err)
		}
		if addErr != nil {
			continue // already failed; keep draining in order so Recv never blocks the compressor pool
		}
		ev := trace.Event("write", id)
		err = w.AddBlock(blk.block)
		ev.Done()
		if err != nil {
			addErr = err
			continue
		}
		compressedTotal += uint64(len(blk.block))
		ctx.task.Increment(blk.origSize)
		if compressedTotal > ctx.minRatio {
			tooBig = true
		}
	}
	if err := blocks.Finish(); err != nil {
		return fmt.Errorf("pipeline: %s: %w", ctx.path, err)
	}
	if addErr != nil {
		return addErr
	}

	if tooBig {
		ctx.task.NotCompressibleEnough(ctx.path)
		return errNotCompressibleEnough
	}

	value, err := w.FinishDecmpfsData(c)
	if err != nil {
		return err
	}
	return xattr.Set(pending.File, decmpfs.XattrName, value.Bytes())
}

// writeUncompressed copies blocks verbatim to the tempfile body, used
// by both decompress modes (the blocks already arrived as plain bytes,
// whether produced by the compressor pool running the codec backward
// or read straight off the OS's own transparent decompression).
func (p *Pipeline) writeUncompressed(ctx *fileContext, pending *renameio.PendingFile, blocks *scq.Receiver[chunk], id int) error {
	var writeErr error
	for {
		blk, err := blocks.Recv()
		if errors.Is(err, scq.ErrFinished) {
			break
		}
		if err != nil {
			return fmt.Errorf("pipeline: %s: %w", ctx.path, err)
		}
		if writeErr != nil {
			continue
		}
		ev := trace.Event("write", id)
		_, err = pending.Write(blk.block)
		ev.Done()
		if err != nil {
			writeErr = err
			continue
		}
		// Progress is measured in bytes of output written, not the
		// block's "original" (compressed) size.
		ctx.task.Increment(uint64(len(blk.block)))
	}
	if err := blocks.Finish(); err != nil {
		return fmt.Errorf("pipeline: %s: %w", ctx.path, err)
	}
	if writeErr != nil {
		return writeErr
	}
	return xattr.Remove(pending.File, decmpfs.ResourceForkXattrName)
}

// verifyIdentical re-reads ctx's original file and the freshly written
// replacement from the start and compares them byte for byte. On a
// real decmpfs-aware kernel, reading newPath here already goes through
// the same transparent-decompression path a normal reader would hit
// later, so this also exercises the container this run just wrote.
//
// Grounded on threads/writer.rs's ensure_identical_files.
func verifyIdentical(ctx *fileContext, orig *os.File, newPath string) error {
	if _, err := orig.Seek(0, io.SeekStart); err != nil {
		return err
	}
	nf, err := os.Open(newPath)
	if err != nil {
		return err
	}
	defer nf.Close()

	lhs := bufio.NewReaderSize(orig, 64*1024)
	rhs := bufio.NewReaderSize(nf, 64*1024)
	lbuf := make([]byte, 64*1024)
	rbuf := make([]byte, 64*1024)
	for {
		ln, lerr := io.ReadFull(lhs, lbuf)
		if lerr != nil && !errors.Is(lerr, io.EOF) && !errors.Is(lerr, io.ErrUnexpectedEOF) {
			return lerr
		}
		rn, rerr := io.ReadFull(rhs, rbuf)
		if rerr != nil && !errors.Is(rerr, io.EOF) && !errors.Is(rerr, io.ErrUnexpectedEOF) {
			return rerr
		}
		if ln != rn {
			return fmt.Errorf("pipeline: %s: verification failed: files are not the same size", ctx.path)
		}
		if !bytes.Equal(lbuf[:ln], rbuf[:rn]) {
			return fmt.Errorf("pipeline: %s: verification failed: content mismatch", ctx.path)
		}
		if lerr != nil || rerr != nil {
			return nil
		}
	}
}

// errNotCompressibleEnough is a soft outcome, not reported through
// Progress.Error/markFailed: the file is left untouched, matching
// spec.md §6.1's --min-ratio semantics.
var errNotCompressibleEnough = errors.New("pipeline: file did not compress enough to be worth it")

func (p *Pipeline) openResourceFork(f *os.File) (io.ReadWriteSeeker, error) {
	if p.opts.OpenResourceFork == nil {
		return nil, errors.New("pipeline: this platform has no resource-fork support")
	}
	return p.opts.OpenResourceFork(f)
}

// drainOnError empties blocks so the compressor/reader goroutines that
// still hold a Slot for this file are never permanently blocked trying
// to hand it off; it discards every item (the write already failed).
func drainOnError(blocks *scq.Receiver[chunk]) {
	for {
		_, err := blocks.Recv()
		if errors.Is(err, scq.ErrFinished) {
			blocks.Finish()
			return
		}
		if err != nil {
			return
		}
	}
}

