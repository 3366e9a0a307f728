// Package decmpfs encodes and decodes the com.apple.decmpfs extended
// attribute: the 16-byte header (plus optional inline payload) that
// marks a file as decmpfs-compressed, and the BlockInfo offset-table
// entries used by the resource-fork container formats.
//
// Grounded on original_source/crates/applesauce-core/src/decmpfs.rs.
package decmpfs

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// HeaderLen is the length of the decmpfs xattr header.
const HeaderLen = 16

// MaxXattrSize is the maximum size of a decmpfs xattr.
const MaxXattrSize = 3802

// MaxXattrDataSize is the maximum size of the data in a decmpfs xattr,
// following the header.
const MaxXattrDataSize = MaxXattrSize - HeaderLen

// Magic is the 4-byte value that identifies a decmpfs xattr.
var Magic = [4]byte{'f', 'p', 'm', 'c'}

// ZlibBlockTableStart is the byte offset, within the zlib resource
// fork container, where the BlockInfo table begins.
const ZlibBlockTableStart = 0x104

// XattrName is the name of the decmpfs extended attribute.
const XattrName = "com.apple.decmpfs"

// ResourceForkXattrName is the name of the resource-fork extended
// attribute used for out-of-line compressed payloads.
const ResourceForkXattrName = "com.apple.ResourceFork"

// Kind identifies a compression codec.
type Kind int

const (
	Zlib Kind = iota
	Lzvn
	Lzfse
)

func (k Kind) String() string {
	switch k {
	case Zlib:
		return "ZLIB"
	case Lzvn:
		return "LZVN"
	case Lzfse:
		return "LZFSE"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Storage identifies where a file's compressed payload is stored.
type Storage int

const (
	StorageXattr Storage = iota
	StorageResourceFork
)

func (s Storage) String() string {
	switch s {
	case StorageXattr:
		return "decmpfs xattr"
	case StorageResourceFork:
		return "resource fork"
	default:
		return "unknown storage"
	}
}

// CompressionType is the combination of codec kind and storage location
// recorded in the decmpfs header's compression-type field.
type CompressionType uint32

// NewCompressionType builds the tag for the given kind/storage pair.
func NewCompressionType(kind Kind, storage Storage) CompressionType {
	switch {
	case kind == Zlib && storage == StorageXattr:
		return 3
	case kind == Zlib && storage == StorageResourceFork:
		return 4
	case kind == Lzvn && storage == StorageXattr:
		return 7
	case kind == Lzvn && storage == StorageResourceFork:
		return 8
	case kind == Lzfse && storage == StorageXattr:
		return 11
	case kind == Lzfse && storage == StorageResourceFork:
		return 12
	default:
		panic(fmt.Sprintf("decmpfs: invalid kind/storage combination %v/%v", kind, storage))
	}
}

// CompressionStorage decodes the tag back into a kind/storage pair. ok
// is false for unrecognized tag values.
func (c CompressionType) CompressionStorage() (kind Kind, storage Storage, ok bool) {
	switch c {
	case 3:
		return Zlib, StorageXattr, true
	case 4:
		return Zlib, StorageResourceFork, true
	case 7:
		return Lzvn, StorageXattr, true
	case 8:
		return Lzvn, StorageResourceFork, true
	case 11:
		return Lzfse, StorageXattr, true
	case 12:
		return Lzfse, StorageResourceFork, true
	default:
		return 0, 0, false
	}
}

func (c CompressionType) String() string {
	kind, storage, ok := c.CompressionStorage()
	if !ok {
		return fmt.Sprintf("unknown compression type: %d", uint32(c))
	}
	return fmt.Sprintf("%s in %s", kind, storage)
}

// ErrTooSmall is returned when a decmpfs xattr value is shorter than
// HeaderLen.
var ErrTooSmall = errors.New("decmpfs xattr too small to hold compression header")

// ErrBadMagic is returned when a decmpfs xattr's magic field does not
// equal Magic.
var ErrBadMagic = errors.New("decmpfs xattr magic field has incorrect value")

// Value is a decoded decmpfs xattr: the compression type, the original
// file's uncompressed size, and (for Xattr storage only) the inline
// compressed payload.
type Value struct {
	CompressionType  CompressionType
	UncompressedSize uint64
	ExtraData        []byte
}

// FromData decodes a decmpfs xattr value. ExtraData aliases data (and
// is nil when there is no inline payload); the caller must not mutate
// data while the Value is in use.
func FromData(data []byte) (Value, error) {
	if len(data) < HeaderLen {
		return Value{}, ErrTooSmall
	}
	header, extra := data[:HeaderLen], data[HeaderLen:]
	if len(extra) == 0 {
		extra = nil
	}
	if header[0] != Magic[0] || header[1] != Magic[1] || header[2] != Magic[2] || header[3] != Magic[3] {
		return Value{}, ErrBadMagic
	}
	compressionType := binary.LittleEndian.Uint32(header[4:8])
	uncompressedSize := binary.LittleEndian.Uint64(header[8:16])
	return Value{
		CompressionType:  CompressionType(compressionType),
		UncompressedSize: uncompressedSize,
		ExtraData:        extra,
	}, nil
}

// Len returns the total encoded length of v (header plus ExtraData).
func (v Value) Len() int {
	return HeaderLen + len(v.ExtraData)
}

// HeaderBytes encodes v's header (without ExtraData).
func (v Value) HeaderBytes() [HeaderLen]byte {
	var result [HeaderLen]byte
	copy(result[0:4], Magic[:])
	binary.LittleEndian.PutUint32(result[4:8], uint32(v.CompressionType))
	binary.LittleEndian.PutUint64(result[8:16], v.UncompressedSize)
	return result
}

// Bytes encodes the full xattr value: header followed by ExtraData.
func (v Value) Bytes() []byte {
	header := v.HeaderBytes()
	out := make([]byte, 0, v.Len())
	out = append(out, header[:]...)
	out = append(out, v.ExtraData...)
	return out
}

// ZlibTrailer is the fixed 50-byte trailer appended after the last
// compressed block in a zlib-codec resource fork.
var ZlibTrailer = [50]byte{
	0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
	// magic 1 + 2
	0x00, 0x1C, 0x00, 0x32,
	// spacer1
	0x00, 0x00,
	// compression_magic
	'c', 'm', 'p', 'f',
	// magic3
	0x00, 0x00, 0x00, 0x0A,
	// magic4
	0x00, 0x01, 0xFF, 0xFF, 0x00, 0x00, 0x00, 0x00,
	// spacer2
	0x00, 0x00, 0x00, 0x00,
}

// BlockInfo is one entry in a resource fork's block-offset index.
type BlockInfo struct {
	Offset         uint32
	CompressedSize uint32
}

// BlockInfoSize is the encoded size of a BlockInfo.
const BlockInfoSize = 8

// BlockInfoFromBytes decodes a BlockInfo from an 8-byte slice.
func BlockInfoFromBytes(data []byte) BlockInfo {
	return BlockInfo{
		Offset:         binary.LittleEndian.Uint32(data[0:4]),
		CompressedSize: binary.LittleEndian.Uint32(data[4:8]),
	}
}

// Bytes encodes b as an 8-byte slice.
func (b BlockInfo) Bytes() [BlockInfoSize]byte {
	var result [BlockInfoSize]byte
	binary.LittleEndian.PutUint32(result[0:4], b.Offset)
	binary.LittleEndian.PutUint32(result[4:8], b.CompressedSize)
	return result
}
