// Package projecthash derives the stable per-project identifier that scopes
// every row in the Store.
package projecthash

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// Length is the number of hex characters kept from the SHA-256 digest.
const Length = 16

// Compute returns the first Length hex characters of the SHA-256 digest of
// the canonicalized absolute project path. The same project path always
// yields the same hash regardless of trailing slashes or relative
// components.
func Compute(projectPath string) string {
	clean := filepath.Clean(projectPath)
	abs, err := filepath.Abs(clean)
	if err != nil {
		abs = clean
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:])[:Length]
}
