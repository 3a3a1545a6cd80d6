package store

import (
	"crypto/sha256"
	"fmt"
)

// ContentHash returns the hex SHA-256 of a file's bytes. A file whose hash
// is unchanged is not re-parsed.
func ContentHash(src []byte) string {
	return fmt.Sprintf("%x", sha256.Sum256(src))
}
