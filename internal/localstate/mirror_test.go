package localstate

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/gateway"
	"github.com/starford/lifepress/internal/models"
)

var _ gateway.Mirror = (*Session)(nil)

type countingStore struct{ reads int }

func (s *countingStore) Read(_ context.Context, p string) (*models.StoredFile, error) {
	s.reads++
	if p != "notes/a.md" {
		return nil, apperr.ErrNotFound
	}
	return &models.StoredFile{Path: p, Name: "a.md", SHA: "h1", Content: "hello"}, nil
}
func (s *countingStore) List(context.Context, string) ([]models.Entry, error) { return nil, nil }
func (s *countingStore) Write(context.Context, string, []byte, string, string) error {
	return nil
}
func (s *countingStore) Locate(p string) string { return "test://" + p }
func (s *countingStore) HasCredential() bool    { return false }

func gatewayFor(t *testing.T, store *countingStore, s *Session) *gateway.Gateway {
	t.Helper()
	g, err := gateway.New(gateway.Options{
		Store:  store,
		Mirror: s,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatal(err)
	}
	return g
}

func TestMirror_ReloadSameSessionHitsCache(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.db")
	store := &countingStore{}

	db := testDB(t, file)
	s, _ := db.Session(ctx, "sess-1")
	if _, err := gatewayFor(t, store, s).GetFile(ctx, "notes/a.md"); err != nil {
		t.Fatal(err)
	}

	// Simulated reload: new process state, same database and session.
	reopened := testDB(t, file)
	s2, _ := reopened.Session(ctx, "sess-1")
	f, err := gatewayFor(t, store, s2).GetFile(ctx, "notes/a.md")
	if err != nil {
		t.Fatal(err)
	}
	if f.SHA != "h1" {
		t.Errorf("sha = %s", f.SHA)
	}
	if store.reads != 1 {
		t.Errorf("store reads = %d, want 1", store.reads)
	}
}

func TestMirror_NewSessionMissesCache(t *testing.T) {
	db := testDB(t, filepath.Join(t.TempDir(), "state.db"))
	store := &countingStore{}

	s, _ := db.Session(ctx, "")
	_, _ = gatewayFor(t, store, s).GetFile(ctx, "notes/a.md")

	next, _ := db.Session(ctx, "")
	_, _ = gatewayFor(t, store, next).GetFile(ctx, "notes/a.md")
	if store.reads != 2 {
		t.Errorf("store reads = %d, want 2", store.reads)
	}
}
