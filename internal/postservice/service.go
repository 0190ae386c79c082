// Package postservice coordinates the gateway, the search index, drafts and
// change events behind the editor and viewer operations.
package postservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/debounce"
	"github.com/starford/lifepress/internal/draft"
	"github.com/starford/lifepress/internal/gateway"
	"github.com/starford/lifepress/internal/index"
	"github.com/starford/lifepress/internal/models"
	"github.com/starford/lifepress/internal/post"
	"github.com/starford/lifepress/internal/render"
	"github.com/starford/lifepress/internal/viewer"
)

// DefaultReindexDelay is the quiet period before a background index refresh.
const DefaultReindexDelay = 2 * time.Second

// Publisher receives post change notifications.
type Publisher interface {
	PublishPostEvent(kind, path string)
}

// Options wires a Service. Gateway is required; Index, Drafts and Events
// may be nil, which disables search, drafts and change events respectively.
type Options struct {
	Gateway      *gateway.Gateway
	Index        index.PostIndex
	Drafts       *draft.Keeper
	Events       Publisher
	Renderer     *render.Renderer
	Now          func() time.Time
	Logger       *slog.Logger
	ReindexDelay time.Duration
}

// Service implements the post operations shared by the API, MCP and CLI.
type Service struct {
	gw       *gateway.Gateway
	idx      index.PostIndex
	drafts   *draft.Keeper
	events   Publisher
	renderer *render.Renderer
	now      func() time.Time
	log      *slog.Logger
	reindex  *debounce.Debouncer

	mu     sync.Mutex
	saving map[string]struct{}
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Gateway == nil {
		return nil, errors.New("postservice: gateway is required")
	}
	s := &Service{
		gw:       opts.Gateway,
		idx:      opts.Index,
		drafts:   opts.Drafts,
		events:   opts.Events,
		renderer: opts.Renderer,
		now:      opts.Now,
		log:      opts.Logger,
		saving:   make(map[string]struct{}),
	}
	if s.renderer == nil {
		s.renderer = render.New()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	delay := opts.ReindexDelay
	if delay <= 0 {
		delay = DefaultReindexDelay
	}
	s.reindex = debounce.New(delay)
	return s, nil
}

// Close stops background work.
func (s *Service) Close() {
	s.reindex.Stop()
}

// TypeInfo describes one content type.
type TypeInfo struct {
	Type  post.Type `json:"type"`
	Dir   string    `json:"dir"`
	Label string    `json:"label"`
}

// Types lists the content types in display order.
func (s *Service) Types() []TypeInfo {
	types := post.Types()
	out := make([]TypeInfo, len(types))
	for i, t := range types {
		out[i] = TypeInfo{Type: t, Dir: t.Dir(), Label: t.Label()}
	}
	return out
}

// CanWrite reports whether a credential is configured.
func (s *Service) CanWrite() bool { return s.gw.HasCredential() }

// DeriveResult is the path a new post would be saved at.
type DeriveResult struct {
	Path    string    `json:"path"`
	Type    post.Type `json:"type"`
	Message string    `json:"message"`
	Exists  bool      `json:"exists"`
	SHA     string    `json:"sha,omitempty"`
}

// Derive computes the target path for in and checks whether a file is
// already stored there.
func (s *Service) Derive(ctx context.Context, in post.Input) (*DeriveResult, error) {
	p, err := post.Derive(in, s.now())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalid, err)
	}
	res := &DeriveResult{Path: p, Type: in.Type}
	f, err := s.gw.GetFile(ctx, p)
	switch {
	case err == nil:
		res.Exists = true
		res.SHA = f.SHA
	case !errors.Is(err, apperr.ErrNotFound):
		return nil, err
	}
	res.Message = post.CommitMessage(p, res.Exists)
	return res, nil
}

// Save runs the safe-write protocol for req. A second save for the same
// path while one is outstanding fails with apperr.ErrBusy.
func (s *Service) Save(ctx context.Context, req gateway.SaveRequest) (*gateway.SaveResult, error) {
	key := s.saveKey(req)
	if !s.begin(key) {
		return nil, fmt.Errorf("postservice: %s: %w", key, apperr.ErrBusy)
	}
	defer s.end(key)

	res, err := s.gw.Save(ctx, req)
	if err != nil {
		return nil, err
	}

	kind := "updated"
	if res.Created {
		kind = "created"
	}
	// The index follows the gateway listing, so a saved post becomes
	// searchable once the listing shows it.
	if s.idx != nil {
		s.scheduleReindex()
	}
	if s.events != nil {
		s.events.PublishPostEvent(kind, res.Path)
	}
	return res, nil
}

func (s *Service) saveKey(req gateway.SaveRequest) string {
	if req.Mode == gateway.ModeEdit {
		return req.EditPath
	}
	if p, err := post.Derive(req.Post, s.now()); err == nil {
		return p
	}
	return ""
}

func (s *Service) begin(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, busy := s.saving[key]; busy {
		return false
	}
	s.saving[key] = struct{}{}
	return true
}

func (s *Service) end(key string) {
	s.mu.Lock()
	delete(s.saving, key)
	s.mu.Unlock()
}

// File returns the stored file at p.
func (s *Service) File(ctx context.Context, p string) (*models.StoredFile, error) {
	return s.gw.GetFile(ctx, p)
}

// Post returns the file at p as a reader-facing post.
func (s *Service) Post(ctx context.Context, p string) (*viewer.Post, error) {
	f, err := s.gw.GetFile(ctx, p)
	if err != nil {
		return nil, err
	}
	vp := viewer.FromFile(*f, s.now())
	return &vp, nil
}

// Posts returns every post, newest first.
func (s *Service) Posts(ctx context.Context) ([]viewer.Post, error) {
	files, err := s.gw.ListAllPosts(ctx)
	if err != nil {
		return nil, err
	}
	return viewer.FromFiles(files, s.now()), nil
}

// Query returns one page of the listing.
func (s *Service) Query(ctx context.Context, q viewer.Query) (viewer.Page, error) {
	posts, err := s.Posts(ctx)
	if err != nil {
		return viewer.Page{}, err
	}
	return viewer.Paginate(posts, q), nil
}

// Stats summarises all posts.
func (s *Service) Stats(ctx context.Context) (viewer.Stats, error) {
	posts, err := s.Posts(ctx)
	if err != nil {
		return viewer.Stats{}, err
	}
	return viewer.ComputeStats(posts, s.now()), nil
}

// Search brings the index up to date and runs q against it.
func (s *Service) Search(ctx context.Context, q index.SearchQuery) ([]index.SearchResult, error) {
	if s.idx == nil {
		return nil, fmt.Errorf("postservice: %w: search index disabled", apperr.ErrInvalid)
	}
	if err := s.Reindex(ctx); err != nil {
		return nil, err
	}
	return s.idx.Search(q)
}

// Reindex syncs the index with the full post listing.
func (s *Service) Reindex(ctx context.Context) error {
	if s.idx == nil {
		return nil
	}
	files, err := s.gw.ListAllPosts(ctx)
	if err != nil {
		return err
	}
	return index.Sync(s.idx, files, s.now(), s.log)
}

func (s *Service) scheduleReindex() {
	s.reindex.Trigger(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if err := s.Reindex(ctx); err != nil {
			s.log.Warn("background reindex failed", slog.String("error", err.Error()))
		}
	})
}

// Preview renders Markdown to HTML.
func (s *Service) Preview(src string) (string, error) {
	out, err := s.renderer.HTML([]byte(src))
	if err != nil {
		return "", fmt.Errorf("postservice: render: %w", err)
	}
	return string(out), nil
}

// Draft returns the saved draft.
func (s *Service) Draft(ctx context.Context) (string, bool, error) {
	if s.drafts == nil {
		return "", false, nil
	}
	return s.drafts.Load(ctx)
}

// UpdateDraft records content as the draft. The write is debounced.
func (s *Service) UpdateDraft(content string) error {
	if s.drafts == nil {
		return fmt.Errorf("postservice: %w: drafts disabled", apperr.ErrInvalid)
	}
	s.drafts.Update(content)
	return nil
}

// ClearDraft discards the draft.
func (s *Service) ClearDraft(ctx context.Context) error {
	if s.drafts == nil {
		return nil
	}
	return s.drafts.Clear(ctx)
}

// FlushDraft persists a pending draft update.
func (s *Service) FlushDraft(ctx context.Context) error {
	if s.drafts == nil {
		return nil
	}
	return s.drafts.Flush(ctx)
}

// OnFileEvent handles a change made outside the service, such as an edit in
// the local content directory. It drops the cached copies of the file and
// its directory and republishes the change.
func (s *Service) OnFileEvent(kind, p string) {
	ctx := context.Background()
	s.gw.Invalidate(ctx, p)
	s.gw.Invalidate(ctx, path.Dir(p))
	s.log.Debug("external change", slog.String("path", p), slog.String("op", kind))
	if s.events != nil {
		s.events.PublishPostEvent(kind, p)
	}
}
