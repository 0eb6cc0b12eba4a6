// Package artifact holds uploaded files while they are processed, and keeps
// the ones a persisted transaction points at.
package artifact

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"io"
	"path/filepath"
	"strings"
)

// Store is where uploads live between receipt of the request and the end of
// ingestion. Paths are opaque to callers and only meaningful to the store
// that issued them.
type Store interface {
	// Save writes r under a fresh unique name keeping filename's extension.
	Save(ctx context.Context, filename string, r io.Reader) (string, error)
	ReadBytes(ctx context.Context, path string) ([]byte, error)
	// Delete is idempotent: removing a missing artifact is not an error.
	Delete(ctx context.Context, path string) error
	// URL is the reference stored on transactions that keep the artifact.
	URL(path string) string
}

// generateID creates a random 16-character hex string
func generateID() (string, error) {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// uniqueName returns a random name with filename's lower-cased extension.
func uniqueName(filename string) (string, error) {
	id, err := generateID()
	if err != nil {
		return "", err
	}
	return id + strings.ToLower(filepath.Ext(filename)), nil
}
