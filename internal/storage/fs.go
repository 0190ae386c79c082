// Package storage provides a local-directory content store for offline use.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/checksum"
	"github.com/starford/lifepress/internal/models"
)

// FS implements contentstore.Store backed by a directory on disk. Content
// hashes are git blob SHA-1s, so a local checkout of the content repository
// reports the same hashes as the remote.
type FS struct {
	root string // absolute path to content directory

	// mu serializes the hash check and the rename in Write.
	mu sync.Mutex
}

// NewFS creates a new FS store rooted at the given directory.
// The directory must already exist.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("storage: root is not a directory: %s", abs)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute content directory.
func (f *FS) Root() string { return f.root }

// safePath resolves a relative path against the root and rejects
// any result that escapes it.
func (f *FS) safePath(rel string) (string, error) {
	if rel == "" {
		return f.root, nil
	}
	cleaned := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(cleaned) {
		return "", fmt.Errorf("storage: %w: absolute paths not allowed: %s", apperr.ErrInvalid, rel)
	}
	abs := filepath.Join(f.root, cleaned)
	if !strings.HasPrefix(abs, f.root+string(os.PathSeparator)) && abs != f.root {
		return "", fmt.Errorf("storage: %w: path escapes content root: %s", apperr.ErrInvalid, rel)
	}
	return abs, nil
}

func (f *FS) rel(abs string) string {
	r, _ := filepath.Rel(f.root, abs)
	return filepath.ToSlash(r)
}

// HasCredential is always true; the local backend needs none.
func (f *FS) HasCredential() bool { return true }

// Locate returns a file URL for p. The gateway keys its cache on it.
func (f *FS) Locate(p string) string {
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(filepath.Join(f.root, filepath.FromSlash(p)))}
	return u.String()
}

// Read returns the file at p with its blob hash.
func (f *FS) Read(_ context.Context, p string) (*models.StoredFile, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, mapErr(err))
	}
	if info.IsDir() {
		return nil, fmt.Errorf("storage: read %s: %w: path is a directory", p, apperr.ErrInvalid)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", p, mapErr(err))
	}
	return &models.StoredFile{
		Path:        f.rel(abs),
		Name:        filepath.Base(abs),
		SHA:         checksum.BlobSHA(data),
		Content:     string(data),
		Size:        info.Size(),
		DownloadURL: f.Locate(p),
	}, nil
}

// List returns the immediate children of the directory at p, hidden entries
// excluded. Directories carry no hash.
func (f *FS) List(_ context.Context, p string) ([]models.Entry, error) {
	abs, err := f.safePath(p)
	if err != nil {
		return nil, err
	}
	dirents, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("storage: list %s: %w", p, mapErr(err))
	}
	out := make([]models.Entry, 0, len(dirents))
	for _, d := range dirents {
		if strings.HasPrefix(d.Name(), ".") {
			continue
		}
		child := filepath.Join(abs, d.Name())
		e := models.Entry{Name: d.Name(), Path: f.rel(child), IsDir: d.IsDir()}
		if !d.IsDir() {
			data, err := os.ReadFile(child)
			if err != nil {
				return nil, fmt.Errorf("storage: list %s: %w", p, mapErr(err))
			}
			e.SHA = checksum.BlobSHA(data)
			e.DownloadURL = f.Locate(e.Path)
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Walk returns the relative path of every .md file under dir.
func (f *FS) Walk(dir string) ([]string, error) {
	base, err := f.safePath(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	err = filepath.WalkDir(base, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if p != base && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(d.Name(), ".md") {
			out = append(out, f.rel(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: walk: %w", mapErr(err))
	}
	return out, nil
}

// Write creates p when expectedHash is empty and replaces the version
// identified by expectedHash otherwise. The message is ignored; the local
// backend keeps no history.
func (f *FS) Write(_ context.Context, p string, content []byte, _ string, expectedHash string) error {
	abs, err := f.safePath(p)
	if err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := os.ReadFile(abs)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if expectedHash != "" {
			return fmt.Errorf("storage: write %s: %w: file no longer exists", p, apperr.ErrConflict)
		}
	case err != nil:
		return fmt.Errorf("storage: write %s: %w", p, err)
	case expectedHash == "":
		return fmt.Errorf("storage: write %s: %w", p, apperr.ErrAlreadyExists)
	case checksum.BlobSHA(current) != expectedHash:
		return fmt.Errorf("storage: write %s: %w: hash %s is stale", p, apperr.ErrConflict, expectedHash)
	}
	return f.atomicWrite(abs, content)
}

// atomicWrite writes content via tmp file, fsync and rename.
func (f *FS) atomicWrite(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("storage: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".lifepress-tmp-*")
	if err != nil {
		return fmt.Errorf("storage: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("storage: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("storage: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("storage: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("storage: rename: %w", err)
	}
	success = true
	return nil
}

func mapErr(err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %v", apperr.ErrNotFound, err)
	}
	return err
}
