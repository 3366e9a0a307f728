package pipeline

import (
	"context"
	"io"
	"os"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/times"
	"github.com/afscomp/afscomp/internal/volume"
)

// Mode selects the direction a file flows through the pipeline.
// Grounded on threads/mod.rs's Mode enum.
type Mode int

const (
	// ModeCompress reads a plain file and writes a decmpfs container.
	ModeCompress Mode = iota
	// ModeDecompressManually reads a decmpfs container's raw compressed
	// blocks and runs them back through the codec, without relying on
	// the OS to transparently decompress on read.
	ModeDecompressManually
	// ModeDecompressByReading reads the already-mounted compressed file
	// through the OS (which transparently decompresses), bypassing the
	// compressor stage entirely.
	ModeDecompressByReading
)

func (m Mode) compressing() bool { return m == ModeCompress }

// Options configures a Pipeline. The zero value is not usable; use
// NewOptions to fill in defaults the way
// threads::BackgroundThreads::new does (available_parallelism() for
// the compressor pool, fixed 2/4 for reader/writer).
type Options struct {
	// Kind is the codec used in ModeCompress.
	Kind codec.Kind
	// Level is the codec compression level, passed through to
	// Codec.Compress.
	Level int
	// MinCompressionRatio is the SPEC_FULL.md §6.1 --min-ratio
	// threshold: a file whose compressed size exceeds
	// orig_size*MinCompressionRatio aborts as "not compressible
	// enough".
	MinCompressionRatio float64
	// Verify opts into the post-write byte-for-byte comparison
	// (spec.md §4.5 step 8).
	Verify bool
	// KeepGoing continues the run after a per-file hard failure
	// instead of cancelling outstanding work.
	KeepGoing bool

	ReaderWorkers     int
	CompressorWorkers int
	WriterWorkers     int

	// Volumes resolves, per device, whether compression is supported
	// and where to stage tempfiles.
	Volumes *volume.Cache
	// OpenResourceFork opens f's resource-fork side-stream. nil means
	// no resource-fork support: any file that actually needs one fails
	// with a clear error rather than a nil-pointer panic.
	OpenResourceFork func(f *os.File) (io.ReadWriteSeeker, error)

	Progress Progress
}

// NewOptions returns Options with every unset field defaulted, the way
// threads::BackgroundThreads::new defaults its pool sizes and
// threads::Context::operation defaults its ratio/verify knobs.
func NewOptions() Options {
	return Options{
		Kind:                 codec.Default,
		Level:                6,
		MinCompressionRatio:  0.95,
		KeepGoing:            true,
		ReaderWorkers:        2,
		CompressorWorkers:    availableParallelism(),
		WriterWorkers:        4,
		Volumes:              volume.New(),
		Progress:             NopProgress{},
	}
}

func availableParallelism() int {
	n := runtime.GOMAXPROCS(0)
	if n < 1 {
		return 1
	}
	return n
}

func (o Options) normalized() Options {
	if o.ReaderWorkers <= 0 {
		o.ReaderWorkers = 2
	}
	if o.CompressorWorkers <= 0 {
		o.CompressorWorkers = availableParallelism()
	}
	if o.WriterWorkers <= 0 {
		o.WriterWorkers = 4
	}
	if o.MinCompressionRatio <= 0 {
		o.MinCompressionRatio = 0.95
	}
	if o.Volumes == nil {
		o.Volumes = volume.New()
	}
	if o.Progress == nil {
		o.Progress = NopProgress{}
	}
	return o
}

// fileContext carries a single file's identity and saved state across
// the reader/compressor/writer stages. Grounded on threads::Context;
// unlike the Rust Arc<Context>, Go's garbage collector makes a plain
// pointer shared by reference sufficient — "the last holder drops it"
// from spec.md §3 falls out of the GC rather than needing an explicit
// refcount.
type fileContext struct {
	path       string
	origSize   uint64
	mode       Mode
	kind       codec.Kind
	level      int
	task       Task
	savedTimes times.Saved
	resetter   *times.Resetter // nil if this file's directory has none

	minRatio uint64 // orig_size * MinCompressionRatio, precomputed
	verify   bool
}

// WorkItem is one candidate file the caller (normally scan.Walk via an
// Options.Progress-reporting visitor) hands to the pipeline.
type WorkItem struct {
	Path     string
	Size     uint64
	Mode     Mode
	Resetter *times.Resetter // directory resetter to Release when this file finishes, or nil
}

// Pipeline is three bounded worker pools (reader, compressor, writer)
// connected by channels, one instance serving every file submitted to
// it concurrently. Grounded on threads::BackgroundThreads; the three
// pools are supervised with golang.org/x/sync/errgroup, the same
// fixed-size-worker-pool idiom internal/batch/batch.go's builder loop
// uses (errgroup.Group.Go per worker, Wait to join). Every worker
// function already handles its own per-file errors inline (reported
// through Options.Progress, never returned), so each Go call always
// returns nil; the errgroup only supervises goroutine lifecycle here,
// the same role sync.WaitGroup would play, but in the teacher's idiom.
type Pipeline struct {
	opts Options

	readerCh     chan readItem
	compressorCh chan compressItem
	writerCh     chan writeItem

	readerGroup     *errgroup.Group
	compressorGroup *errgroup.Group
	writerGroup     *errgroup.Group

	ctx    context.Context
	cancel context.CancelFunc

	failed int32
}

// New starts a Pipeline's worker pools. Call Close once every file has
// been Submitted, to drain and join the pools in dependency order
// (reader, then compressor, then writer).
func New(ctx context.Context, opts Options) *Pipeline {
	opts = opts.normalized()
	pctx, cancel := context.WithCancel(ctx)
	p := &Pipeline{
		opts:            opts,
		readerCh:        make(chan readItem, 100*1024),
		compressorCh:    make(chan compressItem, 8),
		writerCh:        make(chan writeItem, 4),
		readerGroup:     &errgroup.Group{},
		compressorGroup: &errgroup.Group{},
		writerGroup:     &errgroup.Group{},
		ctx:             pctx,
		cancel:          cancel,
	}

	for i := 0; i < opts.WriterWorkers; i++ {
		id := i
		p.writerGroup.Go(func() error {
			p.runWriter(id)
			return nil
		})
	}
	for i := 0; i < opts.CompressorWorkers; i++ {
		id := i
		p.compressorGroup.Go(func() error {
			p.runCompressor(id)
			return nil
		})
	}
	for i := 0; i < opts.ReaderWorkers; i++ {
		id := i
		p.readerGroup.Go(func() error {
			p.runReader(id)
			return nil
		})
	}
	return p
}

// Cancelled reports whether a hard failure has already stopped new
// work from starting (only possible when Options.KeepGoing is false).
func (p *Pipeline) Cancelled() bool {
	select {
	case <-p.ctx.Done():
		return true
	default:
		return false
	}
}

// Submit admits item to the reader pool. It blocks if the reader
// queue is full. Submit must not be called after Close.
func (p *Pipeline) Submit(item WorkItem) {
	p.readerCh <- readItem{item: item}
}

// Close signals that no more files will be Submitted, then waits for
// every in-flight file to finish flowing through all three pools, in
// dependency order: the reader channel closes first (only Submit
// sends on it), then once every reader goroutine has exited
// the compressor channel closes, then the writer channel.
func (p *Pipeline) Close() {
	close(p.readerCh)
	p.readerGroup.Wait() //nolint:errcheck // worker goroutines never return a non-nil error, see Pipeline's doc comment
	close(p.compressorCh)
	p.compressorGroup.Wait() //nolint:errcheck
	close(p.writerCh)
	p.writerGroup.Wait() //nolint:errcheck
	p.cancel()
}

// Failed reports whether any file hard-failed during this run.
func (p *Pipeline) Failed() bool {
	return atomic.LoadInt32(&p.failed) != 0
}

func (p *Pipeline) markFailed() {
	atomic.StoreInt32(&p.failed, 1)
	if !p.opts.KeepGoing {
		p.cancel()
	}
}
