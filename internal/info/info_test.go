package info

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/afscomp/afscomp/internal/decmpfs"
	"github.com/afscomp/afscomp/internal/xattr"
)

func writeDecmpfsXattr(t *testing.T, path string, value decmpfs.Value) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer f.Close()
	if err := xattr.Set(f, decmpfs.XattrName, value.Bytes()); err != nil {
		t.Skipf("extended attributes unavailable on this filesystem: %v", err)
	}
}

func TestGetDecodesDecmpfsXattr(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "compressed.bin")
	if err := os.WriteFile(path, []byte("hello, decmpfs"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	want := decmpfs.Value{
		CompressionType:  decmpfs.NewCompressionType(decmpfs.Lzfse, decmpfs.StorageXattr),
		UncompressedSize: 14,
		ExtraData:        []byte("compressed payload goes here"),
	}
	writeDecmpfsXattr(t, path, want)

	got, err := Get(path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Decmpfs == nil {
		t.Fatal("Decmpfs = nil; want decoded info")
	}
	if got.DecmpfsErr != nil {
		t.Fatalf("DecmpfsErr = %v; want nil", got.DecmpfsErr)
	}
	if got.Decmpfs.CompressionType != want.CompressionType {
		t.Errorf("CompressionType = %v; want %v", got.Decmpfs.CompressionType, want.CompressionType)
	}
	if got.Decmpfs.OrigFileSize != want.UncompressedSize {
		t.Errorf("OrigFileSize = %d; want %d", got.Decmpfs.OrigFileSize, want.UncompressedSize)
	}
	if got.StatSize != 14 {
		t.Errorf("StatSize = %d; want 14", got.StatSize)
	}
}

func TestGetPlainFileHasNoDecmpfs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plain.bin")
	if err := os.WriteFile(path, []byte("just bytes"), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := Get(path)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Decmpfs != nil {
		t.Fatalf("Decmpfs = %+v; want nil", got.Decmpfs)
	}
	if got.IsCompressed {
		t.Fatal("IsCompressed = true; want false")
	}
}

func TestGetRecursiveAggregates(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.bin", "b.bin"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("some file content"), 0644); err != nil {
			t.Fatalf("WriteFile: %v", err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatalf("Mkdir: %v", err)
	}

	folder, err := GetRecursive(dir)
	if err != nil {
		t.Fatalf("GetRecursive: %v", err)
	}
	if folder.NumFiles != 2 {
		t.Errorf("NumFiles = %d; want 2", folder.NumFiles)
	}
	if folder.NumFolders != 2 { // dir itself plus "sub"
		t.Errorf("NumFolders = %d; want 2", folder.NumFolders)
	}
}

func TestFileInfoCompressedFraction(t *testing.T) {
	fi := FileInfo{OnDiskSize: 50, StatSize: 100}
	if got, want := fi.CompressedFraction(), 0.5; got != want {
		t.Errorf("CompressedFraction() = %v; want %v", got, want)
	}
	if (FileInfo{}).CompressedFraction() != 0 {
		t.Error("CompressedFraction() of zero value should be 0, not divide by zero")
	}
}
