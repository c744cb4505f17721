// Package statehash computes the stable per-file fingerprint used by the
// scan journal and metadata cache (spec §3): H(filepath ‖ mtime_ns ‖ size)
// with a stable hash, here SHA-256 of the three components separated by a
// null byte, hex-encoded.
package statehash

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Compute returns the state hash for a file's identity tuple.
func Compute(filepath string, mtimeNS int64, size int64) string {
	h := sha256.New()
	h.Write([]byte(filepath))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(mtimeNS, 10)))
	h.Write([]byte{0})
	h.Write([]byte(strconv.FormatInt(size, 10)))
	return hex.EncodeToString(h.Sum(nil))
}
