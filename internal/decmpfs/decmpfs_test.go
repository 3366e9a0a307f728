package decmpfs

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestValueRoundTrip(t *testing.T) {
	cases := []Value{
		{CompressionType: NewCompressionType(Zlib, StorageXattr), UncompressedSize: 0},
		{CompressionType: NewCompressionType(Lzvn, StorageResourceFork), UncompressedSize: 1 << 20},
		{
			CompressionType:  NewCompressionType(Lzfse, StorageXattr),
			UncompressedSize: 42,
			ExtraData:        []byte("inline payload bytes"),
		},
	}
	for _, want := range cases {
		data := want.Bytes()
		got, err := FromData(data)
		if err != nil {
			t.Fatalf("FromData: %v", err)
		}
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestFromDataTooSmall(t *testing.T) {
	if _, err := FromData(make([]byte, HeaderLen-1)); err != ErrTooSmall {
		t.Fatalf("FromData() err = %v; want ErrTooSmall", err)
	}
}

func TestFromDataBadMagic(t *testing.T) {
	data := Value{CompressionType: NewCompressionType(Zlib, StorageXattr)}.Bytes()
	data[0] = 'x'
	if _, err := FromData(data); err != ErrBadMagic {
		t.Fatalf("FromData() err = %v; want ErrBadMagic", err)
	}
}

func TestCompressionStorageRoundTrip(t *testing.T) {
	kinds := []Kind{Zlib, Lzvn, Lzfse}
	storages := []Storage{StorageXattr, StorageResourceFork}
	for _, k := range kinds {
		for _, s := range storages {
			tag := NewCompressionType(k, s)
			gotKind, gotStorage, ok := tag.CompressionStorage()
			if !ok {
				t.Fatalf("CompressionStorage(%v) not ok", tag)
			}
			if gotKind != k || gotStorage != s {
				t.Errorf("CompressionStorage(%v) = %v, %v; want %v, %v", tag, gotKind, gotStorage, k, s)
			}
		}
	}
}

func TestBlockInfoRoundTrip(t *testing.T) {
	want := BlockInfo{Offset: 0x1000, CompressedSize: 0xABCD}
	b := want.Bytes()
	got := BlockInfoFromBytes(b[:])
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BlockInfo round trip mismatch (-want +got):\n%s", diff)
	}
}
