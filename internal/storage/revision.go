package storage

import (
	"crypto/sha256"
	"encoding/hex"
)

// contentRevision derives a revision from the document bytes, for backends
// without native versioning.
func contentRevision(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// revisionMatches applies the conditional-write rules shared by the
// content-addressed backends.
func revisionMatches(want string, exists bool, current []byte) bool {
	switch want {
	case AnyRevision:
		return true
	case NoRevision:
		return !exists
	default:
		return exists && contentRevision(current) == want
	}
}
