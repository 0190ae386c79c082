// Package gateway mediates every read and write of post files against a
// content store. It adds a short-lived read cache mirrored into a
// session-scoped persistent store, listing aggregation across the content
// directories, and the safe-write protocol that never replaces an existing
// file unless the caller is editing that exact file.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/contentstore"
	"github.com/starford/lifepress/internal/models"
)

// DefaultTTL is how long a cached response is served without a store call.
const DefaultTTL = 5 * time.Minute

// DefaultConcurrency bounds parallel content fetches in ListAllPosts.
const DefaultConcurrency = 8

// Mirror persists cache entries for the lifetime of a session. Errors are
// logged by the gateway and otherwise ignored.
type Mirror interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, payload []byte) error
	Delete(ctx context.Context, key string) error
}

// Options configures a Gateway. Only Store is required.
type Options struct {
	Store contentstore.Store
	// TTL defaults to DefaultTTL.
	TTL time.Duration
	// Mirror is optional.
	Mirror Mirror
	// Now defaults to time.Now.
	Now    func() time.Time
	Logger *slog.Logger
	// InvalidateOnWrite drops cached reads of a path after a successful write
	// to it. Off by default: readers may see the previous hash until the TTL
	// runs out.
	InvalidateOnWrite bool
	// Exclude holds doublestar patterns matched against post paths in ListAllPosts.
	Exclude []string
	// Depth is how many directory levels below each content directory
	// ListAllPosts descends. Defaults to 1.
	Depth int
	// Concurrency defaults to DefaultConcurrency.
	Concurrency int
}

// Gateway is the façade over a content store.
type Gateway struct {
	store       contentstore.Store
	mirror      Mirror
	now         func() time.Time
	log         *slog.Logger
	invalidate  bool
	exclude     []string
	depth       int
	concurrency int
	cache       *cache
}

// New validates opts and builds a Gateway.
func New(opts Options) (*Gateway, error) {
	if opts.Store == nil {
		return nil, errors.New("gateway: store is required")
	}
	for _, p := range opts.Exclude {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("gateway: invalid exclude pattern %q", p)
		}
	}
	g := &Gateway{
		store:       opts.Store,
		mirror:      opts.Mirror,
		now:         opts.Now,
		log:         opts.Logger,
		invalidate:  opts.InvalidateOnWrite,
		exclude:     slices.Clone(opts.Exclude),
		depth:       opts.Depth,
		concurrency: opts.Concurrency,
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	g.cache = newCache(ttl)
	if g.now == nil {
		g.now = time.Now
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.depth <= 0 {
		g.depth = 1
	}
	if g.concurrency <= 0 {
		g.concurrency = DefaultConcurrency
	}
	return g, nil
}

// HasCredential reports whether the underlying store accepts writes.
func (g *Gateway) HasCredential() bool { return g.store.HasCredential() }

// GetFile returns the file at p. A missing file yields an error matching
// apperr.ErrNotFound, which callers treat as "create" rather than failure.
func (g *Gateway) GetFile(ctx context.Context, p string) (*models.StoredFile, error) {
	key := g.store.Locate(p)
	if e, ok := g.lookup(ctx, key); ok && e.File != nil {
		f := *e.File
		return &f, nil
	}

	seq := g.cache.issue()
	f, err := g.store.Read(ctx, p)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			g.log.Warn("store read failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil, err
	}
	g.remember(ctx, key, cacheEntry{File: f, StoredAt: g.now(), seq: seq})
	out := *f
	return &out, nil
}

// ListDirectory returns the entries of the directory at p.
func (g *Gateway) ListDirectory(ctx context.Context, p string) ([]models.Entry, error) {
	key := g.store.Locate(p)
	if e, ok := g.lookup(ctx, key); ok && e.Entries != nil {
		return slices.Clone(e.Entries), nil
	}

	seq := g.cache.issue()
	entries, err := g.store.List(ctx, p)
	if err != nil {
		if !errors.Is(err, apperr.ErrNotFound) {
			g.log.Warn("store list failed", slog.String("path", p), slog.String("error", err.Error()))
		}
		return nil, err
	}
	if entries == nil {
		entries = []models.Entry{}
	}
	g.remember(ctx, key, cacheEntry{Entries: entries, StoredAt: g.now(), seq: seq})
	return slices.Clone(entries), nil
}

// Invalidate drops any cached response for p.
func (g *Gateway) Invalidate(ctx context.Context, p string) {
	key := g.store.Locate(p)
	g.cache.invalidate(key)
	if g.mirror != nil {
		if err := g.mirror.Delete(ctx, key); err != nil {
			g.log.Warn("cache mirror delete failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
}

// lookup consults memory, then the mirror. A fresh mirror hit is promoted
// into memory with its original timestamp so it expires on schedule.
func (g *Gateway) lookup(ctx context.Context, key string) (cacheEntry, bool) {
	now := g.now()
	if e, ok := g.cache.get(key, now); ok {
		return e, true
	}
	if g.mirror == nil {
		return cacheEntry{}, false
	}

	seq := g.cache.issue()
	payload, ok, err := g.mirror.Get(ctx, key)
	if err != nil {
		g.log.Warn("cache mirror read failed", slog.String("key", key), slog.String("error", err.Error()))
		return cacheEntry{}, false
	}
	if !ok {
		return cacheEntry{}, false
	}
	var e cacheEntry
	if err := json.Unmarshal(payload, &e); err != nil || !g.cache.fresh(e, now) {
		_ = g.mirror.Delete(ctx, key)
		return cacheEntry{}, false
	}
	e.seq = seq
	if !g.cache.put(key, e) {
		return g.cache.get(key, now)
	}
	return e, true
}

func (g *Gateway) remember(ctx context.Context, key string, e cacheEntry) {
	if !g.cache.put(key, e) {
		g.log.Debug("discarded out-of-order response", slog.String("key", key))
		return
	}
	if g.mirror == nil {
		return
	}
	payload, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := g.mirror.Put(ctx, key, payload); err != nil {
		g.log.Warn("cache mirror write failed", slog.String("key", key), slog.String("error", err.Error()))
	}
}
