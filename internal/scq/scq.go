// Package scq implements the sequential completion queue: a bounded
// FIFO of one-shot reservation slots that lets compressor workers fill
// blocks out of order while the writer stage drains them in strict
// reservation order.
//
// The Rust original (seq_queue.rs) is a channel of one-shot channels
// (crossbeam_channel::Sender<oneshot::Receiver<T>>) plus a shared
// "final status" cell that Drop-based RAII guards resolve to an
// unknown-error if a slot is discarded unfilled. Go has no
// destructors, so the drop-guard becomes an explicit Abandon method:
// every reserved slot must end in Finish, Error, or Abandon, and
// Abandon is a no-op once Finish or Error has run. This is the one place this
// port's concurrency idiom deliberately departs from the original's
// shape (RAII drop) while preserving its guarantee (an unfilled slot
// is never silently treated as success).
//
// Supplementary grounding for the "many fillers, ordered drain" shape
// in idiomatic Go:
// other_examples/7ca430f1_cosnicolaou-pbzip2__parallel.go.go's
// heap-based block reassembly buffer. A container/heap reorder buffer
// was considered and rejected here in favor of the channel-of-channels
// shape, since it reproduces the original's reservation-order
// guarantee directly without needing a comparator or heap maintenance.
package scq

import (
	"errors"
	"sync"
)

// ErrFinished is returned by Recv once every reserved slot has been
// drained and the sender has closed the queue.
var ErrFinished = errors.New("scq: receiving on an empty and closed queue")

// ErrItemRecvError is returned by Recv when the next slot in
// reservation order was abandoned or explicitly errored rather than
// filled.
var ErrItemRecvError = errors.New("scq: item in sequential queue was dropped without completion")

// errUnknown is the queue's final status when no slot ever recorded an
// explicit error but at least one was abandoned, or when the sender
// never closed explicitly. It is strictly worse than a successful
// close but weaker than an explicit error, matching the original's
// UnknownError.
var errUnknown = errors.New("scq: unspecified error in sender for sequential queue")

type finalStatus struct {
	mu  sync.Mutex
	set bool
	err error
}

func (f *finalStatus) makeSuccess() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		f.set = true
		f.err = nil
	}
}

func (f *finalStatus) makeUnknown() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set && f.err != nil && f.err != errUnknown {
		return // an explicit error already won
	}
	f.set = true
	f.err = errUnknown
}

func (f *finalStatus) makeError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.set && f.err != nil && f.err != errUnknown {
		return // the first explicit error wins
	}
	f.set = true
	f.err = err
}

func (f *finalStatus) result() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.set {
		return errUnknown
	}
	return f.err
}

// Sender is the producer endpoint of a sequential completion queue.
type Sender[T any] struct {
	ch    chan chan T
	final *finalStatus
}

// Receiver is the consumer endpoint of a sequential completion queue.
type Receiver[T any] struct {
	ch    chan chan T
	final *finalStatus
}

// Slot is a one-shot reservation returned by Sender.Reserve. Exactly
// one of Finish, Error, or Abandon must run for each Slot.
type Slot[T any] struct {
	ch       chan T
	final    *finalStatus
	disarmed bool
}

// NewBounded constructs a sequential completion queue with the given
// reservation capacity.
func NewBounded[T any](capacity int) (*Sender[T], *Receiver[T]) {
	final := &finalStatus{}
	ch := make(chan chan T, capacity)
	return &Sender[T]{ch: ch, final: final}, &Receiver[T]{ch: ch, final: final}
}

// Reserve blocks until capacity is available, then returns a new Slot
// positioned after every previously reserved, not-yet-drained slot.
func (s *Sender[T]) Reserve() *Slot[T] {
	itemCh := make(chan T, 1)
	s.ch <- itemCh
	return &Slot[T]{ch: itemCh, final: s.final}
}

// Close declares the producer's final status: nil for success, or the
// error that aborted production. Close must run exactly once, after
// the last Reserve; slots reserved before Close may still be resolved
// afterwards, and Recv waits for each of them in reservation order.
func (s *Sender[T]) Close(err error) {
	if err == nil {
		s.final.makeSuccess()
	} else {
		s.final.makeError(err)
	}
	close(s.ch)
}

// Finish fills the slot successfully.
func (sl *Slot[T]) Finish(item T) {
	if sl.disarmed {
		panic("scq: slot finished twice")
	}
	sl.disarmed = true
	sl.ch <- item
	close(sl.ch)
}

// Error fills the slot with an explicit failure: the item is treated
// as dropped (Recv on it returns ErrItemRecvError) but the queue's
// final status records err, taking priority over any later abandon.
func (sl *Slot[T]) Error(err error) {
	if sl.disarmed {
		return
	}
	sl.disarmed = true
	sl.final.makeError(err)
	close(sl.ch)
}

// Abandon resolves the slot as an unknown error if it was not already
// Finished or Error'd. A caller that keeps the slot in its own
// goroutine can `defer slot.Abandon()` right after Reserve so a panic
// or early return still resolves it; a caller that hands the slot to
// another goroutine calls Abandon on the paths where the hand-off does
// not happen. This is the explicit stand-in for the original's Drop
// guard.
func (sl *Slot[T]) Abandon() {
	if sl.disarmed {
		return
	}
	sl.disarmed = true
	sl.final.makeUnknown()
	close(sl.ch)
}

// Recv returns the next item in reservation order, regardless of the
// order slots were filled in.
func (r *Receiver[T]) Recv() (T, error) {
	var zero T
	itemCh, ok := <-r.ch
	if !ok {
		return zero, ErrFinished
	}
	item, ok := <-itemCh
	if !ok {
		return zero, ErrItemRecvError
	}
	return item, nil
}

// Finish must be called after Recv has returned ErrFinished; it
// returns the sender's closing status (nil for success).
func (r *Receiver[T]) Finish() error {
	return r.final.result()
}
