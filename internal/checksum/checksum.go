// Package checksum computes content hashes compatible with the ones GitHub
// reports for repository files.
package checksum

import (
	"crypto/sha1" //nolint:gosec // git object ids are SHA-1
	"encoding/hex"
	"strconv"
)

// BlobSHA returns the git blob object id of data ("blob <len>\x00<data>").
func BlobSHA(data []byte) string {
	h := sha1.New() //nolint:gosec
	h.Write([]byte("blob " + strconv.Itoa(len(data)) + "\x00"))
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}
