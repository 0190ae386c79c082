package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/lifepress/internal/storage"
)

// watcherTestEnv sets up a content dir, local store, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (string, *storage.FS, *DB) {
	t.Helper()
	root := t.TempDir()
	for _, d := range []string{"notes", "til"} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	store, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	return root, store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func indexed(db *DB, p string) func() bool {
	return func() bool {
		cs, _ := db.GetChecksum(p)
		return cs != ""
	}
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, quietLogger(), func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	_ = os.WriteFile(filepath.Join(root, "notes", "new.md"), []byte("# New"), 0o644)
	_ = os.WriteFile(filepath.Join(root, "notes", "README.md"), []byte("# Readme"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, indexed(db, "notes/new.md"), "new file not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		for _, e := range events {
			if e == "created:notes/new.md" {
				return true
			}
		}
		return false
	}, "expected created:notes/new.md callback")

	if cs, _ := db.GetChecksum("notes/README.md"); cs != "" {
		t.Error("README.md was indexed")
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	sub := filepath.Join(root, "til", "rust")
	_ = os.MkdirAll(sub, 0o755)
	time.Sleep(100 * time.Millisecond)
	_ = os.WriteFile(filepath.Join(sub, "borrow.md"), []byte("# Borrowing"), 0o644)

	eventually(t, 5*time.Second, 50*time.Millisecond, indexed(db, "til/rust/borrow.md"), "file in new subdir not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "notes", "del.md"), []byte("# Delete Me"), 0o644)
	f, err := store.Read(context.Background(), "notes/del.md")
	if err != nil {
		t.Fatal(err)
	}
	if err := IndexFile(db, *f, time.Now()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(filepath.Join(root, "notes", "del.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(db, "notes/del.md")()
	}, "deleted file still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	_ = os.WriteFile(filepath.Join(root, "notes", "old.md"), []byte("# Rename"), 0o644)
	f, _ := store.Read(context.Background(), "notes/old.md")
	_ = IndexFile(db, *f, time.Now())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Rename(filepath.Join(root, "notes", "old.md"), filepath.Join(root, "notes", "renamed.md"))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		return !indexed(db, "notes/old.md")() && indexed(db, "notes/renamed.md")()
	}, "rename reconciliation failed: old path should be removed and new path indexed")
}

func TestWatcher_BurstIndexedOnce(t *testing.T) {
	root, store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string
	go Watch(ctx, db, store, quietLogger(), func(kind, path string) {
		mu.Lock()
		events = append(events, kind+":"+path)
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	target := filepath.Join(root, "notes", "burst.md")
	for _, body := range []string{"# One", "# Two", "# Three"} {
		_ = os.WriteFile(target, []byte(body), 0o644)
	}

	eventually(t, 5*time.Second, 50*time.Millisecond, indexed(db, "notes/burst.md"), "burst file not indexed")
	time.Sleep(2 * settleDelay)

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0] != "created:notes/burst.md" {
		t.Errorf("events = %v, want one created", events)
	}
	f, _ := store.Read(context.Background(), "notes/burst.md")
	if cs, _ := db.GetChecksum("notes/burst.md"); cs != f.SHA {
		t.Errorf("indexed checksum %q, want final content %q", cs, f.SHA)
	}
}
