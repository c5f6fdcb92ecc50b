package rvth

import (
	"bytes"
	"encoding/binary"
	"time"
)

// LBASize is the fixed logical block size used throughout RVT-H images.
const LBASize = 512

func bytesToLBA(n int64) uint32 { return uint32(n / LBASize) }
func lbaToBytes(n uint32) int64 { return int64(n) * LBASize }

// beUint32 and beUint16 read big-endian integers out of a fixed struct
// buffer. Every on-disk integer in this format is big-endian; no packed
// struct is ever reinterpreted in place.
func beUint32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func beUint16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func beUint64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func putBEUint32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putBEUint16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putBEUint64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// trimString strips trailing NUL bytes from a fixed-width ASCII field.
func trimString(b []byte) string {
	return string(bytes.TrimRight(b, "\x00"))
}

// padString copies s into a fixed-width field, zero-padding the remainder.
func padString(dst []byte, s string) {
	for i := range dst {
		dst[i] = 0
	}
	copy(dst, s)
}

const timestampLayout = "20060102150405"

// decodeTimestamp parses the 14-byte ASCII YYYYMMDDhhmmss field used by
// the bank table. An all-zero or unparsable field yields -1, the "unset"
// sentinel used throughout the bank entry model.
func decodeTimestamp(b []byte) int64 {
	s := trimString(b)
	if s == "" {
		return -1
	}
	t, err := time.ParseInLocation(timestampLayout, s, time.UTC)
	if err != nil {
		return -1
	}
	return t.Unix()
}

// encodeTimestamp writes unix (-1 meaning unset) into a 14-byte ASCII field,
// zeroing it when unset.
func encodeTimestamp(dst []byte, unix int64) {
	for i := range dst {
		dst[i] = 0
	}
	if unix < 0 {
		return
	}
	copy(dst, time.Unix(unix, 0).UTC().Format(timestampLayout))
}

// isBlockEmpty reports whether every byte in b is zero. Used by the sparse
// copy engine to decide whether a chunk needs to be written at all.
func isBlockEmpty(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
