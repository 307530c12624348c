// Package node implements the on-page layout adapters for a B+tree: views
// that interpret a frame's raw bytes as either an internal or a leaf node,
// with fixed-width keys/values so the same layout serves any comparable key
// type via a Codec.
package node

import (
	"encoding/binary"
	"fmt"
)

// Type is the node-type discriminant stored in a page's first byte.
// LoadInternalView and LoadLeafView check it before wrapping a buffer; the
// per-field accessors on a view do not check it again.
type Type uint8

const (
	Internal Type = 0
	Leaf     Type = 1
)

// HeaderSize is the fixed common header shared by internal and leaf nodes:
// type(1) + size(2) + maxSize(2) + parentPageID(8) + selfPageID(8) +
// nextPageID(8, leaf-only; reserved/unused for internal) + 3 reserved bytes.
const HeaderSize = 32

const (
	offType     = 0
	offSize     = 1
	offMaxSize  = 3
	offParent   = 5
	offSelf     = 13
	offNext     = 21
	offReserved = 29
)

// Comparator is a total strict weak ordering over K, returning -1/0/+1.
type Comparator[K any] func(a, b K) int

// Codec gives the node layout a fixed encoded width for a key or value type,
// so the same layout code serves int64-keyed and string-keyed indexes alike.
type Codec[T any] struct {
	Size   int
	Encode func(T) []byte
	Decode func([]byte) T
}

// PageType reads the node-type discriminant from a raw page buffer.
func PageType(data []byte) Type {
	return Type(data[offType])
}

// TypeError reports that a page's node-type discriminant did not match what
// a view constructor expected to find there — a page was deallocated and
// reused under a type the caller no longer holds the right view for.
type TypeError struct {
	PageID int64
	Want   Type
	Got    Type
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("node: page %d: expected type %d, found %d", e.PageID, e.Want, e.Got)
}

// checkType returns a *TypeError if data's discriminant byte is not want.
func checkType(data []byte, want Type) error {
	if got := PageType(data); got != want {
		return &TypeError{PageID: readSelfPageID(data), Want: want, Got: got}
	}
	return nil
}

func setPageType(data []byte, t Type) {
	data[offType] = byte(t)
}

func readSize(data []byte) int {
	return int(binary.LittleEndian.Uint16(data[offSize:]))
}

func writeSize(data []byte, n int) {
	binary.LittleEndian.PutUint16(data[offSize:], uint16(n))
}

func readMaxSize(data []byte) int {
	return int(binary.LittleEndian.Uint16(data[offMaxSize:]))
}

func writeMaxSize(data []byte, n int) {
	binary.LittleEndian.PutUint16(data[offMaxSize:], uint16(n))
}

// ParentPageID reads the parent pointer shared by both node layouts. It is
// exported because split/merge code needs to reparent a child without
// knowing whether that child is an internal or a leaf node.
func ParentPageID(data []byte) int64 {
	return int64(binary.LittleEndian.Uint64(data[offParent:]))
}

// SetParentPageID writes the parent pointer shared by both node layouts.
func SetParentPageID(data []byte, pageID int64) {
	binary.LittleEndian.PutUint64(data[offParent:], uint64(pageID))
}

func readSelfPageID(data []byte) int64 {
	return int64(binary.LittleEndian.Uint64(data[offSelf:]))
}

func writeSelfPageID(data []byte, pageID int64) {
	binary.LittleEndian.PutUint64(data[offSelf:], uint64(pageID))
}

func readNextPageID(data []byte) int64 {
	return int64(binary.LittleEndian.Uint64(data[offNext:]))
}

func writeNextPageID(data []byte, pageID int64) {
	binary.LittleEndian.PutUint64(data[offNext:], uint64(pageID))
}

// MinSize applies the same occupancy floor to every node, regardless of
// type: ceil(maxSize/2).
func MinSize(maxSize int) int {
	return (maxSize + 1) / 2
}

// shiftRight moves the half-open entry range [from, count) one entry slot
// to the right, within buf, given each entry's byte width and the byte
// offset of entry 0.
func shiftRight(buf []byte, base, entrySize, from, count int) {
	if from >= count {
		return
	}
	src := buf[base+from*entrySize : base+count*entrySize]
	dst := buf[base+(from+1)*entrySize : base+(count+1)*entrySize]
	copy(dst, src)
}

// shiftLeft moves the half-open entry range [from, count) one entry slot to
// the left.
func shiftLeft(buf []byte, base, entrySize, from, count int) {
	if from >= count {
		return
	}
	src := buf[base+from*entrySize : base+count*entrySize]
	dst := buf[base+(from-1)*entrySize : base+(count-1)*entrySize]
	copy(dst, src)
}
