// Package transform implements the payload transforms a frame may carry:
// CRC32C integrity, zstd compression, and ChaCha20-Poly1305 encryption
// (spec §3 invariants, §4.4).
package transform

import "hash/crc32"

// crcTable is the Castagnoli CRC-32 table, as required by spec §3 ("CRC32C
// (4 B, Castagnoli, covers post-transform payload"), not the IEEE table.
var crcTable = crc32.MakeTable(crc32.Castagnoli)

// ComputeCRC32C computes the Castagnoli CRC-32 of data.
func ComputeCRC32C(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// VerifyCRC32C reports whether data's CRC32C matches expected.
func VerifyCRC32C(data []byte, expected uint32) bool {
	return ComputeCRC32C(data) == expected
}
