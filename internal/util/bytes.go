package util

import "encoding/binary"

func CopyBytes(src []byte) []byte {
	dst := make([]byte, len(src))
	copy(dst, src)
	return dst
}

// WipeBytes best-effort zeroes the provided byte slice in place.
func WipeBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// LengthPrefixed concatenates parts, each preceded by its big-endian uint32
// length, so that no two distinct part lists encode to the same bytes.
func LengthPrefixed(parts ...string) []byte {
	var res []byte
	for _, p := range parts {
		res = binary.BigEndian.AppendUint32(res, uint32(len(p)))
		res = append(res, p...)
	}
	return res
}
