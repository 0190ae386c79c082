package draft

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/lifepress/internal/localstate"
)

var ctx = context.Background()

// countingStore records every Set.
type countingStore struct {
	mu   sync.Mutex
	kv   map[string]string
	sets []string
}

func newCountingStore() *countingStore { return &countingStore{kv: map[string]string{}} }

func (s *countingStore) Get(_ context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.kv[key]
	return v, ok, nil
}

func (s *countingStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[key] = value
	s.sets = append(s.sets, value)
	return nil
}

func (s *countingStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)
	return nil
}

func (s *countingStore) writes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sets...)
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestBurstOfEditsWritesOnce(t *testing.T) {
	store := newCountingStore()
	k := New(store, 40*time.Millisecond, quietLogger())

	for _, s := range []string{"#", "# ", "# H", "# He", "# Hel", "# Hello"} {
		k.Update(s)
	}
	time.Sleep(200 * time.Millisecond)

	w := store.writes()
	if len(w) != 1 {
		t.Fatalf("writes = %v, want exactly one", w)
	}
	if w[0] != "# Hello" {
		t.Errorf("persisted %q, want last edit", w[0])
	}
}

func TestLoadSeesPendingEdit(t *testing.T) {
	store := newCountingStore()
	k := New(store, time.Hour, quietLogger())
	k.Update("unsaved")

	got, ok, err := k.Load(ctx)
	if err != nil || !ok || got != "unsaved" {
		t.Errorf("Load = %q, %v, %v", got, ok, err)
	}
	if len(store.writes()) != 0 {
		t.Error("Load persisted the draft")
	}
}

func TestFlush(t *testing.T) {
	store := newCountingStore()
	k := New(store, time.Hour, quietLogger())
	k.Update("a")
	k.Update("b")
	if err := k.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if w := store.writes(); len(w) != 1 || w[0] != "b" {
		t.Errorf("writes = %v", w)
	}
	if err := k.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	if w := store.writes(); len(w) != 1 {
		t.Errorf("empty flush wrote: %v", w)
	}
}

func TestClearDropsPendingAndStored(t *testing.T) {
	store := newCountingStore()
	k := New(store, 20*time.Millisecond, quietLogger())
	k.Update("stored")
	_ = k.Flush(ctx)
	k.Update("pending")

	if err := k.Clear(ctx); err != nil {
		t.Fatal(err)
	}
	time.Sleep(80 * time.Millisecond)
	if _, ok, _ := k.Load(ctx); ok {
		t.Error("draft survived Clear")
	}
	if w := store.writes(); len(w) != 1 {
		t.Errorf("pending edit written after Clear: %v", w)
	}
}

func TestSurvivesRestartWithLocalState(t *testing.T) {
	file := filepath.Join(t.TempDir(), "state.db")
	db, err := localstate.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	k := New(db, time.Hour, quietLogger())
	k.Update("# Draft")
	if err := k.Flush(ctx); err != nil {
		t.Fatal(err)
	}
	db.Close()

	db2, err := localstate.Open(file)
	if err != nil {
		t.Fatal(err)
	}
	defer db2.Close()
	got, ok, err := New(db2, 0, quietLogger()).Load(ctx)
	if err != nil || !ok || got != "# Draft" {
		t.Errorf("Load = %q, %v, %v", got, ok, err)
	}
}
