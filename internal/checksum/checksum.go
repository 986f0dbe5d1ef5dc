// Package checksum computes content digests for exports and note ETags.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
)

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// NoteETag derives a weak validator from a note's id and modification stamp.
func NoteETag(id, modifiedAt int64) string {
	return Sum([]byte(strconv.FormatInt(id, 10) + ":" + strconv.FormatInt(modifiedAt, 10)))[:16]
}
