package index

import (
	"log/slog"
	"time"

	"github.com/starford/lifepress/internal/models"
	"github.com/starford/lifepress/internal/viewer"
)

// Sync brings the index in line with files, the full set of stored posts:
//   - new/changed files are parsed and upserted
//   - indexed posts missing from files are deleted
func Sync(db PostIndex, files []models.StoredFile, now time.Time, logger *slog.Logger) error {
	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	present := make(map[string]struct{}, len(files))
	for _, f := range files {
		present[f.Path] = struct{}{}

		if checksums[f.Path] == f.SHA {
			continue
		}
		if err := IndexFile(db, f, now); err != nil {
			logger.Warn("sync: index failed", slog.String("path", f.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", f.Path))
		}
	}

	for p := range checksums {
		if _, ok := present[p]; !ok {
			if err := db.DeletePost(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// IndexFile projects f into a post and upserts it.
func IndexFile(db PostIndex, f models.StoredFile, now time.Time) error {
	p := viewer.FromFile(f, now)
	row := PostRow{
		Path:     p.Path,
		Title:    p.Title,
		Type:     string(p.Type),
		Category: p.Category,
		Checksum: f.SHA,
		Tags:     p.Tags,
		Date:     p.Date,
	}
	return db.UpsertPost(row, p.Content)
}
