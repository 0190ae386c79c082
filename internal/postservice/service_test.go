package postservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/contentstore"
	"github.com/starford/lifepress/internal/draft"
	"github.com/starford/lifepress/internal/gateway"
	"github.com/starford/lifepress/internal/index"
	"github.com/starford/lifepress/internal/post"
	"github.com/starford/lifepress/internal/testutil"
	"github.com/starford/lifepress/internal/viewer"
)

var (
	ctx      = context.Background()
	fixedNow = time.Date(2025, time.March, 5, 14, 30, 0, 0, time.UTC)
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishPostEvent(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+" "+path)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type fixture struct {
	root   string
	svc    *Service
	events *recorder
}

func newFixture(t *testing.T, files map[string]string, store contentstore.Store, opts ...func(*Options)) *fixture {
	t.Helper()
	root, fs := testutil.TestContent(t, files)
	if store == nil {
		store = fs
	}
	gw, err := gateway.New(gateway.Options{
		Store:  store,
		Now:    func() time.Time { return fixedNow },
		Logger: testutil.Logger(),
		Depth:  2,
	})
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	o := Options{
		Gateway:      gw,
		Index:        testutil.TestDB(t),
		Events:       rec,
		Now:          func() time.Time { return fixedNow },
		Logger:       testutil.Logger(),
		ReindexDelay: time.Hour,
	}
	for _, fn := range opts {
		fn(&o)
	}
	svc, err := New(o)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(svc.Close)
	return &fixture{root: root, svc: svc, events: rec}
}

func TestDerive(t *testing.T) {
	f := newFixture(t, map[string]string{"til/go/closures.md": "# Closures\n"}, nil)

	got, err := f.svc.Derive(ctx, post.Input{Type: post.TypeTIL, Title: "Closures", Category: "go"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "til/go/closures.md" || !got.Exists || got.SHA == "" {
		t.Errorf("derive = %+v", got)
	}
	if got.Message != "Update closures.md" {
		t.Errorf("message = %q", got.Message)
	}

	got, err = f.svc.Derive(ctx, post.Input{Type: post.TypeBlog, Title: "Shipping"})
	if err != nil {
		t.Fatal(err)
	}
	if got.Path != "dev-blog/2025-03-05-shipping.md" || got.Exists || got.Message != "Add 2025-03-05-shipping.md" {
		t.Errorf("derive = %+v", got)
	}
}

func TestDerive_UnknownType(t *testing.T) {
	f := newFixture(t, nil, nil)
	_, err := f.svc.Derive(ctx, post.Input{Type: "poem"})
	if !errors.Is(err, apperr.ErrInvalid) || !errors.Is(err, post.ErrUnknownType) {
		t.Errorf("err = %v", err)
	}
}

func TestSave_PublishesEvents(t *testing.T) {
	f := newFixture(t, nil, nil)

	res, err := f.svc.Save(ctx, gateway.SaveRequest{
		Mode:    gateway.ModeNew,
		Post:    post.Input{Type: post.TypePlain, Title: "Groceries"},
		Content: "# Groceries\n",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Created || res.Path != "notes/groceries.md" {
		t.Fatalf("result = %+v", res)
	}

	file, err := f.svc.File(ctx, res.Path)
	if err != nil {
		t.Fatal(err)
	}
	_, err = f.svc.Save(ctx, gateway.SaveRequest{
		Mode:     gateway.ModeEdit,
		EditPath: res.Path,
		BaseSHA:  file.SHA,
		Content:  "# Groceries\n- milk\n",
	})
	if err != nil {
		t.Fatal(err)
	}

	want := []string{"created notes/groceries.md", "updated notes/groceries.md"}
	got := f.events.all()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestSave_ConflictPublishesNothing(t *testing.T) {
	f := newFixture(t, map[string]string{"notes/groceries.md": "old"}, nil)

	_, err := f.svc.Save(ctx, gateway.SaveRequest{
		Post:    post.Input{Type: post.TypePlain, Title: "Groceries"},
		Content: "new",
	})
	var ce *gateway.ConflictError
	if !errors.As(err, &ce) || ce.Reason != gateway.ReasonExists {
		t.Fatalf("err = %v, want exists conflict", err)
	}
	if len(f.events.all()) != 0 {
		t.Errorf("events = %v", f.events.all())
	}
}

// gateStore blocks writes to one path until released.
type gateStore struct {
	contentstore.Store
	gated   string
	started chan struct{}
	release chan struct{}
}

func (g *gateStore) Write(ctx context.Context, p string, content []byte, message, hash string) error {
	if p == g.gated {
		g.started <- struct{}{}
		<-g.release
	}
	return g.Store.Write(ctx, p, content, message, hash)
}

func TestSave_BusyWhileOutstanding(t *testing.T) {
	_, fs := testutil.TestContent(t, nil)
	gs := &gateStore{
		Store:   fs,
		gated:   "til/general/defer.md",
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	f := newFixture(t, nil, gs)

	req := gateway.SaveRequest{Post: post.Input{Type: post.TypeTIL, Title: "Defer"}, Content: "# Defer\n"}
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.Save(ctx, req)
		done <- err
	}()
	<-gs.started

	if _, err := f.svc.Save(ctx, req); !errors.Is(err, apperr.ErrBusy) {
		t.Errorf("second save err = %v, want ErrBusy", err)
	}
	// A different path is not blocked.
	other := gateway.SaveRequest{Post: post.Input{Type: post.TypeTIL, Title: "Panic"}, Content: "x"}
	if _, err := f.svc.Save(ctx, other); err != nil {
		t.Errorf("other path: %v", err)
	}

	gs.release <- struct{}{}
	if err := <-done; err != nil {
		t.Fatalf("first save: %v", err)
	}
	// The flag is released after completion.
	gs.gated = ""
	_, err := f.svc.Save(ctx, req)
	var ce *gateway.ConflictError
	if !errors.As(err, &ce) {
		t.Errorf("third save err = %v, want conflict", err)
	}
}

func TestQueryAndStats(t *testing.T) {
	f := newFixture(t, map[string]string{
		"dev-blog/2025-03-01-launch.md":     "# Launch\n",
		"daily-journal/2025/02/20-entry.md": "# Thursday\n",
		"til/go/closures.md":                "# Closures\n",
		"til/README.md":                     "index",
	}, nil)

	page, err := f.svc.Query(ctx, viewer.Query{Type: post.TypeBlog})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 || page.Posts[0].Title != "Launch" {
		t.Errorf("page = %+v", page)
	}

	stats, err := f.svc.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	// closures.md has no date and counts as today.
	if stats.Total != 3 || stats.ThisWeek != 2 || stats.ThisMonth != 3 || stats.Categories != 3 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestSearch(t *testing.T) {
	f := newFixture(t, map[string]string{
		"til/go/closures.md":   "# Closures\nFunctions capturing variables.\n",
		"notes/groceries.md":   "# Groceries\nmilk\n",
		"learning-log/rust.md": "# Rust\nownership and borrowing\n",
	}, nil)

	res, err := f.svc.Search(ctx, index.SearchQuery{Text: "ownership", Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 1 || res[0].Path != "learning-log/rust.md" {
		t.Errorf("results = %+v", res)
	}
}

func TestSearch_Disabled(t *testing.T) {
	f := newFixture(t, nil, nil, func(o *Options) { o.Index = nil })
	if _, err := f.svc.Search(ctx, index.SearchQuery{Text: "x", Limit: 5}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v", err)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil, nil)
	html, err := f.svc.Preview("# Title\n\n```mermaid\ngraph TD\n```\n")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(html, "<h1") || !strings.Contains(html, `<pre class="mermaid">`) {
		t.Errorf("html = %s", html)
	}
}

func TestDrafts(t *testing.T) {
	state := testutil.TestState(t)
	keeper := draft.New(state, time.Hour, testutil.Logger())
	f := newFixture(t, nil, nil, func(o *Options) { o.Drafts = keeper })

	if err := f.svc.UpdateDraft("half a thought"); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.FlushDraft(ctx); err != nil {
		t.Fatal(err)
	}
	got, ok, err := f.svc.Draft(ctx)
	if err != nil || !ok || got != "half a thought" {
		t.Errorf("draft = %q, %v, %v", got, ok, err)
	}

	// Saving does not clear the draft.
	if _, err := f.svc.Save(ctx, gateway.SaveRequest{Post: post.Input{Type: post.TypePlain, Title: "x"}, Content: got}); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := f.svc.Draft(ctx); !ok {
		t.Error("draft cleared by save")
	}

	if err := f.svc.ClearDraft(ctx); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := f.svc.Draft(ctx); ok {
		t.Error("draft still present after clear")
	}
}

func TestDrafts_Disabled(t *testing.T) {
	f := newFixture(t, nil, nil)
	if err := f.svc.UpdateDraft("x"); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("err = %v", err)
	}
	if _, ok, err := f.svc.Draft(ctx); ok || err != nil {
		t.Errorf("draft = %v, %v", ok, err)
	}
}

func TestOnFileEvent_DropsCachedCopy(t *testing.T) {
	f := newFixture(t, map[string]string{"notes/a.md": "v1"}, nil)

	if file, _ := f.svc.File(ctx, "notes/a.md"); file.Content != "v1" {
		t.Fatalf("content = %q", file.Content)
	}
	testutil.WriteFile(t, f.root, "notes/a.md", "v2")
	if file, _ := f.svc.File(ctx, "notes/a.md"); file.Content != "v1" {
		t.Fatalf("expected cached copy, got %q", file.Content)
	}

	f.svc.OnFileEvent("updated", "notes/a.md")
	file, err := f.svc.File(ctx, "notes/a.md")
	if err != nil || file.Content != "v2" {
		t.Errorf("content = %q, err = %v", file.Content, err)
	}
	if got := f.events.all(); len(got) != 1 || got[0] != "updated notes/a.md" {
		t.Errorf("events = %v", got)
	}
}

func TestTypes(t *testing.T) {
	f := newFixture(t, nil, nil)
	types := f.svc.Types()
	if len(types) != 6 || types[0].Type != post.TypePlain || types[0].Dir != "notes" {
		t.Errorf("types = %+v", types)
	}
}
