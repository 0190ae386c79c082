//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
)

// Without FTS5 the posts table itself is searched with LIKE.
func initFTS(*sql.DB) error                                     { return nil }
func dropFTS(*sql.DB) error                                     { return nil }
func ftsUpsert(*sql.Tx, string, string, string, []string) error { return nil }
func ftsDelete(*sql.Tx, string)                                 {}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Search matches every term against title, body, tags and category.
// Newest posts come first.
func (db *DB) Search(q SearchQuery) ([]SearchResult, error) {
	words := terms(q.Text)
	if len(words) == 0 {
		return nil, nil
	}

	var where []string
	var args []any
	for _, w := range words {
		like := "%" + likeEscaper.Replace(w) + "%"
		where = append(where, `(lower(title) LIKE ? ESCAPE '\' OR lower(body) LIKE ? ESCAPE '\' OR lower(tags) LIKE ? ESCAPE '\' OR lower(category) LIKE ? ESCAPE '\')`)
		args = append(args, like, like, like, like)
	}
	if q.Type != "" {
		where = append(where, `type = ?`)
		args = append(args, q.Type)
	}
	args = append(args, q.limit())

	rows, err := db.conn.Query(`
		SELECT path, title, type, body
		FROM posts
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY date DESC, path ASC
		LIMIT ?
	`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows, func(body string) string { return excerpt(body, words) })
}
