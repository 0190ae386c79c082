package viewer

import (
	"math"
	"strings"
	"testing"
	"time"

	"github.com/starford/lifepress/internal/models"
	"github.com/starford/lifepress/internal/post"
)

var now = time.Date(2025, time.March, 5, 12, 0, 0, 0, time.UTC)

func file(p, content string) models.StoredFile {
	return models.StoredFile{Path: p, Name: p[strings.LastIndex(p, "/")+1:], SHA: "sha-" + p, Content: content}
}

func titles(posts []Post) string {
	out := make([]string, len(posts))
	for i, p := range posts {
		out[i] = p.Title
	}
	return strings.Join(out, ",")
}

func TestFromFile(t *testing.T) {
	p := FromFile(file("til/go/closures.md", "# Closures\n\n*Tags: #golang #functions*\nbody"), now)
	if p.Title != "Closures" || p.Type != post.TypeTIL || p.Category != "go" {
		t.Errorf("post = %+v", p)
	}
	if strings.Join(p.Tags, ",") != "golang,functions" {
		t.Errorf("tags = %v", p.Tags)
	}
	if p.ID != "sha-til/go/closures.md" || p.Filename != "closures.md" {
		t.Errorf("id/filename = %q/%q", p.ID, p.Filename)
	}
	if !p.Date.Equal(now) {
		t.Errorf("undated path date = %v, want now", p.Date)
	}
}

func TestFromFile_TitleFallsBackToFilename(t *testing.T) {
	p := FromFile(file("dev-blog/2025-01-10-shipping-v1.md", "no heading here"), now)
	if p.Title != "2025 01 10 shipping v1" {
		t.Errorf("title = %q", p.Title)
	}
	if p.Date != time.Date(2025, time.January, 10, 0, 0, 0, 0, time.UTC) {
		t.Errorf("date = %v", p.Date)
	}
	if p.Category != post.DefaultCategory {
		t.Errorf("category = %q", p.Category)
	}
	if p.Tags == nil {
		t.Error("tags should be an empty slice, not nil")
	}
}

func samplePosts() []Post {
	return FromFiles([]models.StoredFile{
		file("dev-blog/2025-01-10-first.md", "# Bravo\nabout channels"),
		file("dev-blog/2025-03-01-second.md", "# alpha\n*Tags: #generics*"),
		file("til/rust/borrow.md", "# Charlie\nownership"),
		file("daily-journal/2025/02/20-entry.md", "# Delta\nquiet day"),
	}, now)
}

func TestFilter_Sorts(t *testing.T) {
	posts := samplePosts()
	cases := map[Sort]string{
		SortNewest: "Charlie,alpha,Delta,Bravo",
		SortOldest: "Bravo,Delta,alpha,Charlie",
		SortTitle:  "alpha,Bravo,Charlie,Delta",
		"bogus":    "Charlie,alpha,Delta,Bravo",
	}
	for s, want := range cases {
		if got := titles(Filter(posts, Query{Sort: s})); got != want {
			t.Errorf("sort %s = %s, want %s", s, got, want)
		}
	}
}

func TestFilter_TypeAndSearch(t *testing.T) {
	posts := samplePosts()
	if got := titles(Filter(posts, Query{Type: post.TypeBlog})); got != "alpha,Bravo" {
		t.Errorf("type filter = %s", got)
	}
	cases := map[string]string{
		"CHANNELS": "Bravo",   // content
		"generics": "alpha",   // tag
		"rust":     "Charlie", // category
		"delta":    "Delta",   // title
		"nothing":  "",
	}
	for q, want := range cases {
		if got := titles(Filter(posts, Query{Search: q})); got != want {
			t.Errorf("search %q = %s, want %s", q, got, want)
		}
	}
}

func TestPaginate(t *testing.T) {
	var files []models.StoredFile
	for i := 1; i <= 20; i++ {
		files = append(files, file("notes/n.md", "# n"))
	}
	posts := FromFiles(files, now)

	p := Paginate(posts, Query{})
	if len(p.Posts) != DefaultPerPage || p.Total != 20 || p.TotalPages != 3 || p.Page != 1 {
		t.Errorf("page 1 = %d posts, total %d, pages %d", len(p.Posts), p.Total, p.TotalPages)
	}
	last := Paginate(posts, Query{Page: 3})
	if len(last.Posts) != 2 {
		t.Errorf("page 3 has %d posts, want 2", len(last.Posts))
	}
	past := Paginate(posts, Query{Page: 9})
	if len(past.Posts) != 0 {
		t.Errorf("page past the end has %d posts", len(past.Posts))
	}
	custom := Paginate(posts, Query{PerPage: 5, Page: -1})
	if custom.Page != 1 || custom.TotalPages != 4 || len(custom.Posts) != 5 {
		t.Errorf("custom = %+v", custom)
	}
}

func TestPaginate_HugeInputs(t *testing.T) {
	var files []models.StoredFile
	for i := 1; i <= 3; i++ {
		files = append(files, file("notes/n.md", "# n"))
	}
	posts := FromFiles(files, now)

	cases := []struct {
		name      string
		q         Query
		wantPosts int
		wantPages int
	}{
		{"second page of a huge page size", Query{Page: 2, PerPage: math.MaxInt}, 0, 1},
		{"first page of a huge page size", Query{Page: 1, PerPage: math.MaxInt}, 3, 1},
		{"huge page number", Query{Page: 1024819115206086202}, 0, 1},
		{"huge page and size", Query{Page: math.MaxInt, PerPage: math.MaxInt}, 0, 1},
		{"huge page size of one", Query{Page: math.MaxInt, PerPage: 1}, 0, 3},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			p := Paginate(posts, c.q)
			if len(p.Posts) != c.wantPosts || p.TotalPages != c.wantPages || p.Total != 3 {
				t.Errorf("page = %d posts, %d pages, total %d", len(p.Posts), p.TotalPages, p.Total)
			}
			if p.Posts == nil {
				t.Error("posts is nil, want an empty list")
			}
		})
	}
}

func TestPaginate_Empty(t *testing.T) {
	p := Paginate(nil, Query{Page: 1})
	if p.Posts == nil || len(p.Posts) != 0 || p.TotalPages != 0 {
		t.Errorf("empty = %+v", p)
	}
}

func TestComputeStats(t *testing.T) {
	s := ComputeStats(samplePosts(), now)
	// Charlie is undated (now), alpha is 4 days old, Delta 13 days, Bravo 54 days.
	want := Stats{Total: 4, ThisWeek: 2, ThisMonth: 3, Categories: 3}
	if s != want {
		t.Errorf("stats = %+v, want %+v", s, want)
	}
}
