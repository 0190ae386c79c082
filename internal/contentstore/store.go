// Package contentstore defines the remote file store the gateway talks to and
// provides the GitHub Contents API adapter.
package contentstore

import (
	"context"

	"github.com/starford/lifepress/internal/models"
)

// Store is a file-based content backend addressed by path, with
// optimistic-concurrency content hashes.
//
// Implementations report a missing file or directory with apperr.ErrNotFound,
// a create over an existing file with apperr.ErrAlreadyExists, a stale
// expectedHash with apperr.ErrConflict and transport trouble with
// apperr.ErrTransient.
type Store interface {
	// Read returns the file at path with its decoded content and hash.
	Read(ctx context.Context, path string) (*models.StoredFile, error)
	// List returns the entries of the directory at path.
	List(ctx context.Context, path string) ([]models.Entry, error)
	// Write creates path when expectedHash is empty, otherwise replaces the
	// version identified by expectedHash.
	Write(ctx context.Context, path string, content []byte, message, expectedHash string) error
	// Locate returns the request target used to fetch path. The gateway keys
	// its cache on it.
	Locate(path string) string
	// HasCredential reports whether writes can be attempted at all.
	HasCredential() bool
}
