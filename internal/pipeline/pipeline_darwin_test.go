//go:build darwin

package pipeline

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/afscomp/afscomp/internal/codec"
	"github.com/afscomp/afscomp/internal/decmpfs"
	"github.com/afscomp/afscomp/internal/rfork"
	"github.com/afscomp/afscomp/internal/scan"
	"github.com/afscomp/afscomp/internal/volume"
	"github.com/afscomp/afscomp/internal/xattr"

	afscomp "github.com/afscomp/afscomp"
)

// Exercises the full reader/compressor/writer pipeline against real
// files and real xattrs, the way spec.md §8's scenarios 1-4 describe.
// Darwin-only: the decmpfs xattr name has no meaning off Darwin, and
// forcing a volume's supports-compression bit via
// volume.NewWithDetector lets the test run in a CI checkout whose
// /tmp happens to live on a filesystem other than APFS.

func newTestOptions(t *testing.T) Options {
	t.Helper()
	opts := NewOptions()
	opts.Volumes = volume.NewWithDetector(func(string) (bool, error) { return true, nil })
	opts.OpenResourceFork = func(f *os.File) (io.ReadWriteSeeker, error) {
		return rfork.Open(f), nil
	}
	opts.Progress = NopProgress{}
	return opts
}

func writeTempFile(t *testing.T, dir string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, "payload")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func runSingle(t *testing.T, opts Options, path string, mode Mode) {
	t.Helper()
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	pl := New(context.Background(), opts)
	pl.Submit(WorkItem{Path: path, Size: uint64(fi.Size()), Mode: mode})
	pl.Close()
	if pl.Failed() {
		t.Fatalf("pipeline reported failure for %s", path)
	}
}

func TestPipelineCompressSmallFileInline(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 10)
	path := writeTempFile(t, dir, data)

	opts := newTestOptions(t)
	opts.Kind = codec.Zlib
	runSingle(t, opts, path, ModeCompress)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	val, err := xattr.Get(f, decmpfs.XattrName)
	if err != nil {
		t.Fatalf("Get(decmpfs): %v", err)
	}
	decoded, err := decmpfs.FromData(val)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	if decoded.UncompressedSize != uint64(len(data)) {
		t.Errorf("UncompressedSize = %d, want %d", decoded.UncompressedSize, len(data))
	}
	kind, storage, ok := decoded.CompressionType.CompressionStorage()
	if !ok || kind != codec.Zlib || storage != decmpfs.StorageXattr {
		t.Errorf("CompressionStorage() = %v/%v, ok=%v; want Zlib/Xattr", kind, storage, ok)
	}
	if _, err := xattr.Get(f, decmpfs.ResourceForkXattrName); !errorsIsNotPresent(err) {
		t.Errorf("expected no resource fork xattr, got err=%v", err)
	}

	fi, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if fi.Size() != int64(len(data)) {
		t.Errorf("apparent size = %d, want %d", fi.Size(), len(data))
	}
}

func TestPipelineCompressThenDecompressRoundTrip(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 16*afscomp.BlockSize)
	rand.New(rand.NewSource(42)).Read(data)
	// Make it compressible: overwrite the random bytes with a slowly
	// changing pattern.
	for i := range data {
		data[i] = byte(i / 97)
	}
	path := writeTempFile(t, dir, data)

	opts := newTestOptions(t)
	opts.Kind = codec.Lzvn
	runSingle(t, opts, path, ModeCompress)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	val, err := xattr.Get(f, decmpfs.XattrName)
	f.Close()
	if err != nil {
		t.Fatalf("Get(decmpfs) after compress: %v", err)
	}
	decoded, err := decmpfs.FromData(val)
	if err != nil {
		t.Fatalf("FromData: %v", err)
	}
	if _, storage, _ := decoded.CompressionType.CompressionStorage(); storage != decmpfs.StorageResourceFork {
		t.Fatalf("expected ResourceFork storage for a 16-block file")
	}

	opts2 := newTestOptions(t)
	runSingle(t, opts2, path, ModeDecompressManually)

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile after decompress: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("decompressed length = %d, want %d", len(got), len(data))
	}
	for i := range data {
		if got[i] != data[i] {
			t.Fatalf("byte %d mismatch: got %d want %d", i, got[i], data[i])
		}
	}

	f, err = os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if _, err := xattr.Get(f, decmpfs.XattrName); !errorsIsNotPresent(err) {
		t.Errorf("decmpfs xattr should be gone after decompress, err=%v", err)
	}
	if _, err := xattr.Get(f, decmpfs.ResourceForkXattrName); !errorsIsNotPresent(err) {
		t.Errorf("resource fork xattr should be gone after decompress, err=%v", err)
	}
}

func TestPipelineNotCompressibleEnoughLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	data := make([]byte, 2*afscomp.BlockSize)
	rand.New(rand.NewSource(7)).Read(data)
	path := writeTempFile(t, dir, data)

	opts := newTestOptions(t)
	opts.Kind = codec.Lzfse
	opts.MinCompressionRatio = 0.95
	runSingle(t, opts, path, ModeCompress)

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if _, err := xattr.Get(f, decmpfs.XattrName); !errorsIsNotPresent(err) {
		t.Errorf("expected no decmpfs xattr on an incompressible file, err=%v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(got) != len(data) {
		t.Fatalf("file contents changed: got %d bytes, want %d", len(got), len(data))
	}
}

func errorsIsNotPresent(err error) bool {
	return err == xattr.ErrNotPresent
}

// Sanity-check that the pre-flight predicate agrees with the pipeline:
// an already-compressed file is rejected before it would be submitted
// a second time (spec.md §8 "compressing an already-compressed file is
// a no-op").
func TestScanRejectsAlreadyCompressed(t *testing.T) {
	dir := t.TempDir()
	path := writeTempFile(t, dir, []byte("hello world"))

	opts := newTestOptions(t)
	runSingle(t, opts, path, ModeCompress)

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	err = scan.CheckCompressible(path, fi, opts.Volumes, func(p, name string) (bool, error) {
		f, err := os.Open(p)
		if err != nil {
			return false, err
		}
		defer f.Close()
		_, err = xattr.Get(f, name)
		if err == xattr.ErrNotPresent {
			return false, nil
		}
		return err == nil, err
	}, 0)
	if err == nil {
		t.Fatal("CheckCompressible succeeded on an already-compressed file; want a skip error")
	}
	skipErr, ok := err.(*scan.SkipError)
	if !ok || skipErr.Reason != scan.AlreadyCompressed {
		t.Fatalf("CheckCompressible error = %v; want AlreadyCompressed skip", err)
	}
}
