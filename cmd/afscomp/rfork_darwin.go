//go:build darwin

package main

import (
	"io"
	"os"

	"github.com/afscomp/afscomp/internal/rfork"
)

// openResourceFork adapts internal/rfork's Darwin resource-fork stream
// to the pipeline.Options.OpenResourceFork signature.
func openResourceFork(f *os.File) (io.ReadWriteSeeker, error) {
	return rfork.Open(f), nil
}
