package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/models"
	"github.com/starford/lifepress/internal/post"
)

// settleDelay is how long the watcher waits for a burst of file events to
// stop before touching the index.
const settleDelay = 150 * time.Millisecond

// FileSource is the local content directory the watcher follows.
type FileSource interface {
	Root() string
	Read(ctx context.Context, path string) (*models.StoredFile, error)
	Walk(dir string) ([]string, error)
}

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, path string)

// IsPostPath reports whether rel (slash-separated, relative to the content
// root) names a post: a .md file other than README.md under one of the
// content directories.
func IsPostPath(rel string) bool {
	if !strings.HasSuffix(rel, post.Ext) || path.Base(rel) == "README.md" {
		return false
	}
	top, _, nested := strings.Cut(rel, "/")
	return nested && slices.Contains(post.Dirs(), top)
}

// batch is the set of changes collected while file events keep arriving.
type batch struct {
	paths map[string]struct{}
	// rescan asks for a full reconcile: a directory appeared or a file was
	// renamed, so some paths never produced an event of their own.
	rescan bool
}

func (b *batch) empty() bool { return len(b.paths) == 0 && !b.rescan }

// Watch follows the content root with fsnotify until ctx is cancelled.
//
// Events are collected per path and applied once they settle: each changed
// post is re-read and indexed when its hash moved, or removed from the index
// when the file is gone. cb (if non-nil) hears about every index change.
// Directories created at runtime are watched too.
func Watch(ctx context.Context, db PostIndex, src FileSource, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := src.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	logger.Info("watcher: started", slog.String("root", root))

	if cb == nil {
		cb = func(string, string) {}
	}

	settle := time.NewTimer(settleDelay)
	settle.Stop()
	defer settle.Stop()

	pending := batch{paths: make(map[string]struct{})}
	for {
		select {
		case <-ctx.Done():
			logger.Info("watcher: stopped")
			return nil

		case <-settle.C:
			apply(ctx, db, src, pending, logger, cb)
			pending = batch{paths: make(map[string]struct{})}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if collect(w, root, ev, &pending, logger) {
				settle.Reset(settleDelay)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

// collect records ev in b and reports whether it is relevant.
func collect(w *fsnotify.Watcher, root string, ev fsnotify.Event, b *batch, logger *slog.Logger) bool {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			if strings.HasPrefix(info.Name(), ".") {
				return false
			}
			if err := addDirsRecursive(w, ev.Name); err != nil {
				logger.Warn("watcher: add new dir failed", slog.String("path", ev.Name), slog.String("error", err.Error()))
			}
			// Files may land before the directory is watched.
			b.rescan = true
			return true
		}
	}

	rel, err := filepath.Rel(root, ev.Name)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	if ev.Has(fsnotify.Rename) && (IsPostPath(rel) || path.Ext(rel) == "") {
		// Only the old name of a post or directory is reported; the new one
		// may be anywhere.
		b.rescan = true
	}
	if !IsPostPath(rel) {
		return ev.Has(fsnotify.Rename) && b.rescan
	}
	b.paths[rel] = struct{}{}
	return true
}

func apply(ctx context.Context, db PostIndex, src FileSource, b batch, logger *slog.Logger, cb EventCallback) {
	if b.empty() {
		return
	}
	for p := range b.paths {
		refresh(ctx, db, src, p, logger, cb)
	}
	if b.rescan {
		reconcile(ctx, db, src, logger, cb)
	}
}

// refresh makes the index entry for p match the file on disk.
func refresh(ctx context.Context, db PostIndex, src FileSource, p string, logger *slog.Logger, cb EventCallback) {
	known, err := db.GetChecksum(p)
	if err != nil {
		logger.Warn("watcher: checksum lookup failed", slog.String("path", p), slog.String("error", err.Error()))
		return
	}

	f, err := src.Read(ctx, p)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		if known == "" {
			return
		}
		if err := db.DeletePost(p); err != nil {
			logger.Warn("watcher: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			return
		}
		logger.Debug("watcher: removed", slog.String("path", p))
		cb("deleted", p)
	case err != nil:
		logger.Warn("watcher: read failed", slog.String("path", p), slog.String("error", err.Error()))
	case f.SHA == known:
	default:
		if err := IndexFile(db, *f, time.Now()); err != nil {
			logger.Warn("watcher: index failed", slog.String("path", p), slog.String("error", err.Error()))
			return
		}
		kind := "updated"
		if known == "" {
			kind = "created"
		}
		logger.Debug("watcher: indexed", slog.String("path", p), slog.String("op", kind))
		cb(kind, p)
	}
}

// reconcile walks the whole content root: posts the index has not seen at
// their current hash are indexed, entries without a file are removed.
func reconcile(ctx context.Context, db PostIndex, src FileSource, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	paths, err := src.Walk("")
	if err != nil {
		logger.Warn("reconcile: walk failed", slog.String("error", err.Error()))
		return
	}

	for _, p := range paths {
		if !IsPostPath(p) {
			continue
		}
		refresh(ctx, db, src, p, logger, cb)
		delete(checksums, p)
	}
	for p := range checksums {
		refresh(ctx, db, src, p, logger, cb)
	}
}

// addDirsRecursive adds root and all its non-hidden subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if p != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(p)
	})
}
