// Package draft keeps the editor's unsaved content in local state. Updates
// are debounced so a burst of keystrokes costs one write.
package draft

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/lifepress/internal/debounce"
	"github.com/starford/lifepress/internal/localstate"
)

// DefaultQuiet is the quiet period before a draft update is persisted.
const DefaultQuiet = 300 * time.Millisecond

// Store is the key/value state the draft lives in.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// Keeper persists the current draft.
type Keeper struct {
	store Store
	log   *slog.Logger
	deb   *debounce.Debouncer

	mu      sync.Mutex
	pending *string
}

// New creates a Keeper. A non-positive quiet period uses DefaultQuiet.
func New(store Store, quiet time.Duration, logger *slog.Logger) *Keeper {
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Keeper{store: store, log: logger, deb: debounce.New(quiet)}
}

// Update records content as the current draft. It is written once updates
// stop arriving for the quiet period.
func (k *Keeper) Update(content string) {
	k.mu.Lock()
	k.pending = &content
	k.mu.Unlock()
	k.deb.Trigger(func() {
		if err := k.persist(context.Background()); err != nil {
			k.log.Warn("draft: persist failed", slog.String("error", err.Error()))
		}
	})
}

// Flush writes any pending update immediately.
func (k *Keeper) Flush(ctx context.Context) error {
	k.deb.Stop()
	return k.persist(ctx)
}

func (k *Keeper) persist(ctx context.Context) error {
	k.mu.Lock()
	content := k.pending
	k.pending = nil
	k.mu.Unlock()
	if content == nil {
		return nil
	}
	return k.store.Set(ctx, localstate.KeyDraft, *content)
}

// Load returns the current draft, including an update not yet persisted.
func (k *Keeper) Load(ctx context.Context) (string, bool, error) {
	k.mu.Lock()
	if k.pending != nil {
		content := *k.pending
		k.mu.Unlock()
		return content, true, nil
	}
	k.mu.Unlock()
	return k.store.Get(ctx, localstate.KeyDraft)
}

// Clear discards the draft. Saving a post never clears it; only an explicit
// author confirmation does.
func (k *Keeper) Clear(ctx context.Context) error {
	k.deb.Stop()
	k.mu.Lock()
	k.pending = nil
	k.mu.Unlock()
	return k.store.Delete(ctx, localstate.KeyDraft)
}
