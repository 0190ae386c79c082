//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
	"strings"
	"unicode"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS posts_fts USING fts5(
			path UNINDEXED,
			title,
			body,
			tags,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func dropFTS(conn *sql.DB) error {
	_, err := conn.Exec(`DROP TABLE IF EXISTS posts_fts`)
	return err
}

func ftsUpsert(tx *sql.Tx, path, title, body string, tags []string) error {
	ftsDelete(tx, path)
	if _, err := tx.Exec(`INSERT INTO posts_fts (path, title, body, tags) VALUES (?, ?, ?, ?)`,
		path, title, body, strings.Join(tags, " ")); err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM posts_fts WHERE path = ?`, path)
}

// matchExpr turns words into an FTS5 expression of quoted prefix terms, so
// punctuation in user input is never read as query syntax. Words without a
// letter or digit are dropped.
func matchExpr(words []string) string {
	var parts []string
	for _, w := range words {
		if strings.IndexFunc(w, func(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }) < 0 {
			continue
		}
		parts = append(parts, `"`+strings.ReplaceAll(w, `"`, `""`)+`"*`)
	}
	return strings.Join(parts, " ")
}

// Search runs an FTS5 query ranked by bm25 with highlighted snippets.
func (db *DB) Search(q SearchQuery) ([]SearchResult, error) {
	expr := matchExpr(terms(q.Text))
	if expr == "" {
		return nil, nil
	}
	rows, err := db.conn.Query(`
		SELECT f.path,
		       f.title,
		       p.type,
		       snippet(posts_fts, 2, '<b>', '</b>', '...', 32)
		FROM posts_fts f
		JOIN posts p ON p.path = f.path
		WHERE posts_fts MATCH ? AND (? = '' OR p.type = ?)
		ORDER BY rank
		LIMIT ?
	`, expr, q.Type, q.Type, q.limit())
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	return scanResults(rows, func(s string) string { return s })
}
