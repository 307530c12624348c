package node

import "encoding/binary"

// Int64Codec encodes int64 keys/values in 8 bytes, little-endian.
var Int64Codec = Codec[int64]{
	Size: 8,
	Encode: func(v int64) []byte {
		buf := make([]byte, 8)
		binary.LittleEndian.PutUint64(buf, uint64(v))
		return buf
	},
	Decode: func(b []byte) int64 {
		return int64(binary.LittleEndian.Uint64(b))
	},
}

// FixedStringCodec encodes strings into a zero-padded width-byte field.
// Strings longer than width are truncated; callers choosing width must size
// it for their key domain.
func FixedStringCodec(width int) Codec[string] {
	return Codec[string]{
		Size: width,
		Encode: func(s string) []byte {
			buf := make([]byte, width)
			n := copy(buf, s)
			_ = n
			return buf
		},
		Decode: func(b []byte) string {
			end := 0
			for end < len(b) && b[end] != 0 {
				end++
			}
			return string(b[:end])
		},
	}
}

// IntCompare is the Comparator for ordered numeric types.
func IntCompare[K int | int32 | int64](a, b K) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// StringCompare is the Comparator for lexicographic string ordering.
func StringCompare(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
