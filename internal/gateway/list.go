package gateway

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/models"
	"github.com/starford/lifepress/internal/post"
)

const readmeName = "README.md"

// ListAllPosts aggregates every post under the content directories, newest
// first by the date encoded in each path. Directories are listed level by
// level, each level concurrently; file contents are then fetched with
// bounded parallelism. Content directories that do not exist are skipped.
func (g *Gateway) ListAllPosts(ctx context.Context) ([]models.StoredFile, error) {
	var (
		files []models.Entry
		dirs  = post.Dirs()
	)
	for level := 0; level <= g.depth && len(dirs) > 0; level++ {
		listed, err := g.listLevel(ctx, dirs)
		if err != nil {
			return nil, err
		}
		dirs = dirs[:0:0]
		for _, entries := range listed {
			for _, e := range entries {
				switch {
				case e.IsDir:
					dirs = append(dirs, e.Path)
				case g.isPost(e):
					files = append(files, e)
				}
			}
		}
	}

	out, err := g.fetchAll(ctx, files)
	if err != nil {
		return nil, err
	}

	now := g.now()
	dates := make(map[string]int64, len(out))
	for _, f := range out {
		dates[f.Path] = post.ExtractDate(f.Path, now).UnixNano()
	}
	sort.Slice(out, func(i, j int) bool {
		di, dj := dates[out[i].Path], dates[out[j].Path]
		if di != dj {
			return di > dj
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// listLevel lists dirs concurrently. The result is index-aligned with dirs;
// a missing directory yields a nil slot.
func (g *Gateway) listLevel(ctx context.Context, dirs []string) ([][]models.Entry, error) {
	out := make([][]models.Entry, len(dirs))
	eg, ctx := errgroup.WithContext(ctx)
	for i, dir := range dirs {
		eg.Go(func() error {
			entries, err := g.ListDirectory(ctx, dir)
			if errors.Is(err, apperr.ErrNotFound) {
				g.log.Debug("content directory missing", slog.String("path", dir))
				return nil
			}
			if err != nil {
				return err
			}
			out[i] = entries
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// fetchAll reads every file in entries, preserving order. Files removed
// between listing and reading are dropped.
func (g *Gateway) fetchAll(ctx context.Context, entries []models.Entry) ([]models.StoredFile, error) {
	slots := make([]*models.StoredFile, len(entries))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)
	for i, e := range entries {
		eg.Go(func() error {
			f, err := g.GetFile(ctx, e.Path)
			if errors.Is(err, apperr.ErrNotFound) {
				return nil
			}
			if err != nil {
				return err
			}
			slots[i] = f
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	out := make([]models.StoredFile, 0, len(slots))
	for _, f := range slots {
		if f != nil {
			out = append(out, *f)
		}
	}
	return out, nil
}

func (g *Gateway) isPost(e models.Entry) bool {
	if !strings.HasSuffix(e.Name, post.Ext) || e.Name == readmeName {
		return false
	}
	for _, pattern := range g.exclude {
		if ok, _ := doublestar.Match(pattern, e.Path); ok {
			return false
		}
	}
	return true
}
