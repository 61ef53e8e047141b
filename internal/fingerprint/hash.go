// Package fingerprint implements Harbour's multi-level content-hash
// incrementality: toolchain, compile, and link fingerprints, the
// dependency-file parser feeding the transitive header hash, and the
// persisted fingerprint store.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// CanonicalHash returns the SHA-256 hex digest of v's canonical JSON
// encoding. Struct field order is declaration order under encoding/json,
// which keeps the digest stable across runs and machines. Shared with
// internal/abi for the ABI fingerprint.
func CanonicalHash(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: canonicalize: %w", err)
	}
	return HashBytes(data), nil
}

// HashBytes returns the SHA-256 hex digest of data.
func HashBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// HashFile returns the SHA-256 hex digest of a file's contents.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("fingerprint: open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("fingerprint: read %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
