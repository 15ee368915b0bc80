package util

import (
	"encoding/base64"
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

func Normalize(s string) string {
	return norm.NFC.String(s)
}

func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

func HexDecode(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func Base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// Base64Decode decodes standard padded base64. Non-zero trailing bits are
// rejected, so every accepted string has exactly one encoding.
func Base64Decode(s string) ([]byte, error) {
	return base64.StdEncoding.Strict().DecodeString(s)
}
