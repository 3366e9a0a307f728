//go:build !darwin

package main

import (
	"errors"
	"io"
	"os"
)

// openResourceFork has nothing to back it off Darwin: fgetxattr/
// fsetxattr's position argument, which a resource fork needs, is a
// Darwin extension (see internal/rfork's doc comment). Any file that
// actually needs out-of-line storage fails with this error instead of
// the pipeline panicking on a nil func.
func openResourceFork(f *os.File) (io.ReadWriteSeeker, error) {
	return nil, errors.New("afscomp: resource-fork storage is not supported on this platform")
}
