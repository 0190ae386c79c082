package index

import (
	"database/sql"
	"strings"
	"unicode/utf8"
)

// DefaultSearchLimit caps results when a query gives no limit.
const DefaultSearchLimit = 20

const (
	maxTerms     = 8
	snippetRunes = 160
)

// SearchQuery is a search over indexed posts. Every term of Text must match;
// a non-empty Type restricts hits to that content type.
type SearchQuery struct {
	Text  string
	Type  string
	Limit int
}

func (q SearchQuery) limit() int {
	if q.Limit <= 0 {
		return DefaultSearchLimit
	}
	return q.Limit
}

// terms splits text into lower-cased words, dropping duplicates.
func terms(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(text)) {
		if seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxTerms {
			break
		}
	}
	return out
}

func scanResults(rows *sql.Rows, excerpt func(body string) string) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		var body string
		if err := rows.Scan(&r.Path, &r.Title, &r.Type, &body); err != nil {
			return nil, err
		}
		r.Snippet = excerpt(body)
		out = append(out, r)
	}
	return out, rows.Err()
}

// excerpt returns about snippetRunes of body around the first term found,
// falling back to the start of body.
func excerpt(body string, words []string) string {
	lower := strings.ToLower(body)
	at := -1
	for _, w := range words {
		if i := strings.Index(lower, w); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	start := 0
	if at > snippetRunes/2 {
		start = at - snippetRunes/2
		for start < len(body) && !utf8.RuneStart(body[start]) {
			start++
		}
	}
	rest := body[start:]
	end := len(rest)
	n := 0
	for i := range rest {
		if n == snippetRunes {
			end = i
			break
		}
		n++
	}
	s := strings.Join(strings.Fields(rest[:end]), " ")
	if start > 0 {
		s = "..." + s
	}
	if end < len(rest) {
		s += "..."
	}
	return s
}
