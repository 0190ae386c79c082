// Package viewer projects stored files into posts and answers the listing
// queries of the reading view.
package viewer

import (
	"cmp"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/starford/lifepress/internal/models"
	"github.com/starford/lifepress/internal/parser"
	"github.com/starford/lifepress/internal/post"
)

// DefaultPerPage is the listing page size.
const DefaultPerPage = 9

// Bounds callers accept for page numbers and sizes.
const (
	MaxPerPage = 100
	MaxPage    = 10000
)

// Post is a stored file as shown to readers.
type Post struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Content  string    `json:"content"`
	Type     post.Type `json:"type"`
	Category string    `json:"category"`
	Tags     []string  `json:"tags"`
	Date     time.Time `json:"date"`
	Filename string    `json:"filename"`
	Path     string    `json:"path"`
}

// FromFile builds a Post from f. now is the date for paths that carry none.
func FromFile(f models.StoredFile, now time.Time) Post {
	name := f.Name
	if name == "" {
		name = path.Base(f.Path)
	}
	title, tags := "", []string{}
	if res, err := parser.Parse([]byte(f.Content)); err == nil {
		title = res.Title
		if res.Tags != nil {
			tags = res.Tags
		}
	}
	if title == "" {
		title = strings.ReplaceAll(strings.TrimSuffix(name, post.Ext), "-", " ")
	}
	return Post{
		ID:       f.SHA,
		Title:    title,
		Content:  f.Content,
		Type:     post.Classify(f.Path),
		Category: post.Category(f.Path),
		Tags:     tags,
		Date:     post.ExtractDate(f.Path, now),
		Filename: name,
		Path:     f.Path,
	}
}

// FromFiles projects every file.
func FromFiles(files []models.StoredFile, now time.Time) []Post {
	out := make([]Post, len(files))
	for i, f := range files {
		out[i] = FromFile(f, now)
	}
	return out
}

// Sort orders a listing.
type Sort string

const (
	SortNewest Sort = "newest"
	SortOldest Sort = "oldest"
	SortTitle  Sort = "title"
)

// ParseSort maps s to a Sort, defaulting to newest.
func ParseSort(s string) Sort {
	switch Sort(s) {
	case SortOldest, SortTitle:
		return Sort(s)
	default:
		return SortNewest
	}
}

// Query selects one page of posts.
type Query struct {
	// Type filters by content type; empty means all.
	Type post.Type
	// Search matches case-insensitively against title, content, category and tags.
	Search  string
	Sort    Sort
	Page    int
	PerPage int
}

// Page is one page of a listing.
type Page struct {
	Posts      []Post `json:"posts"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PerPage    int    `json:"per_page"`
	TotalPages int    `json:"total_pages"`
}

// Filter returns the posts matching q's type and search, in q's order.
func Filter(posts []Post, q Query) []Post {
	search := strings.ToLower(strings.TrimSpace(q.Search))
	out := make([]Post, 0, len(posts))
	for _, p := range posts {
		if q.Type != "" && p.Type != q.Type {
			continue
		}
		if search != "" && !matches(p, search) {
			continue
		}
		out = append(out, p)
	}

	switch ParseSort(string(q.Sort)) {
	case SortOldest:
		slices.SortStableFunc(out, func(a, b Post) int { return a.Date.Compare(b.Date) })
	case SortTitle:
		slices.SortStableFunc(out, func(a, b Post) int {
			return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title))
		})
	default:
		slices.SortStableFunc(out, func(a, b Post) int { return b.Date.Compare(a.Date) })
	}
	return out
}

func matches(p Post, search string) bool {
	if strings.Contains(strings.ToLower(p.Title), search) ||
		strings.Contains(strings.ToLower(p.Content), search) ||
		strings.Contains(strings.ToLower(p.Category), search) {
		return true
	}
	for _, t := range p.Tags {
		if strings.Contains(strings.ToLower(t), search) {
			return true
		}
	}
	return false
}

// Paginate filters posts by q and cuts out the requested page. Pages are
// 1-based; a page past the end is empty.
func Paginate(posts []Post, q Query) Page {
	filtered := Filter(posts, q)
	per := q.PerPage
	if per <= 0 {
		per = DefaultPerPage
	}
	page := max(q.Page, 1)
	total := len(filtered)
	pages := 0
	if total > 0 {
		pages = (total-1)/per + 1
	}

	out := Page{Posts: []Post{}, Total: total, Page: page, PerPage: per, TotalPages: pages}
	if page > pages {
		return out
	}
	// page <= pages keeps (page-1)*per below total.
	start := (page - 1) * per
	out.Posts = filtered[start : start+min(per, total-start)]
	return out
}

// Stats summarises a collection of posts.
type Stats struct {
	Total      int `json:"total"`
	ThisWeek   int `json:"this_week"`
	ThisMonth  int `json:"this_month"`
	Categories int `json:"categories"`
}

// ComputeStats counts posts dated within the last 7 and 30 days of now and
// the number of distinct categories.
func ComputeStats(posts []Post, now time.Time) Stats {
	weekAgo := now.Add(-7 * 24 * time.Hour)
	monthAgo := now.Add(-30 * 24 * time.Hour)
	cats := make(map[string]struct{})
	s := Stats{Total: len(posts)}
	for _, p := range posts {
		if !p.Date.Before(weekAgo) {
			s.ThisWeek++
		}
		if !p.Date.Before(monthAgo) {
			s.ThisMonth++
		}
		cats[p.Category] = struct{}{}
	}
	s.Categories = len(cats)
	return s
}
