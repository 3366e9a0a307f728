// Package pipeline wires the reader, compressor, and writer worker
// pools from spec.md §4.3/§4.4/§4.5 together through the sequential
// completion queue (internal/scq), one pipeline instance per file,
// many files in flight across a shared set of pools.
//
// Grounded on
// original_source/crates/applesauce/src/threads/{mod,reader,compressing,writer}.rs
// and distr1-distri/cmd/distri/batch.go's errgroup/channel worker-pool
// idiom (a fixed number of goroutines ranging over a shared channel).
package pipeline

import "github.com/afscomp/afscomp/internal/scan"

// Progress receives pipeline-wide notifications: a fatal error for a
// path that never got far enough to have a Task, a pre-flight skip, or
// the start of a new per-file Task.
//
// Grounded on original_source/crates/applesauce/src/progress.rs's
// Progress/Task trait pair.
type Progress interface {
	Error(path string, err error)
	FileSkipped(path string, reason scan.SkipReason)
	FileTask(path string, size uint64) Task
}

// Task reports progress for a single file already admitted to the
// pipeline.
type Task interface {
	Increment(amt uint64)
	Error(message string)
	NotCompressibleEnough(path string)
}

// NopProgress discards every notification. Useful as a default and in
// tests that don't care about progress reporting.
type NopProgress struct{}

func (NopProgress) Error(path string, err error)                  {}
func (NopProgress) FileSkipped(path string, reason scan.SkipReason) {}
func (NopProgress) FileTask(path string, size uint64) Task         { return nopTask{} }

type nopTask struct{}

func (nopTask) Increment(amt uint64)            {}
func (nopTask) Error(message string)            {}
func (nopTask) NotCompressibleEnough(path string) {}
