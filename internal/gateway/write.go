package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/post"
)

// WriteRequest is a single store write.
type WriteRequest struct {
	Path    string
	Content []byte
	Message string
	// ExpectedHash is empty for a create.
	ExpectedHash string
}

// Write forwards req to the store. Without a credential it fails with
// apperr.ErrUnauthenticated before any store call.
func (g *Gateway) Write(ctx context.Context, req WriteRequest) error {
	if !g.store.HasCredential() {
		return fmt.Errorf("gateway: write %s: %w", req.Path, apperr.ErrUnauthenticated)
	}
	if err := g.store.Write(ctx, req.Path, req.Content, req.Message, req.ExpectedHash); err != nil {
		g.log.Warn("store write failed",
			slog.String("path", req.Path),
			slog.Bool("update", req.ExpectedHash != ""),
			slog.String("error", err.Error()),
		)
		return err
	}
	g.log.Info("post written", slog.String("path", req.Path), slog.String("message", req.Message))
	if g.invalidate {
		g.Invalidate(ctx, req.Path)
		g.Invalidate(ctx, path.Dir(req.Path))
	}
	return nil
}

// Mode says how the author reached the save action.
type Mode string

const (
	// ModeNew is a fresh post. An existing file at the derived path is a conflict.
	ModeNew Mode = "new"
	// ModeEdit is an explicitly opened file that may be replaced.
	ModeEdit Mode = "edit"
)

// Resolution is one of the ways an author may settle a save conflict.
type Resolution string

const (
	ResolveEditExisting Resolution = "edit-existing"
	ResolveRetitle      Resolution = "retitle"
	ResolveAbandon      Resolution = "abandon"
)

// ConflictReason distinguishes the two conflict cases.
type ConflictReason string

const (
	// ReasonExists means a new post would land on an existing file.
	ReasonExists ConflictReason = "exists"
	// ReasonStale means the file changed since the author opened it.
	ReasonStale ConflictReason = "stale"
)

// ConflictError reports a save that was refused. It matches apperr.ErrConflict.
type ConflictError struct {
	Path        string
	Reason      ConflictReason
	ExistingSHA string
	Resolutions []Resolution
}

func (e *ConflictError) Error() string {
	if e.Reason == ReasonStale {
		return fmt.Sprintf("conflict: %s changed since it was opened", e.Path)
	}
	return fmt.Sprintf("conflict: %s already exists", e.Path)
}

func (e *ConflictError) Unwrap() error { return apperr.ErrConflict }

func existsConflict(p, sha string) *ConflictError {
	return &ConflictError{
		Path:        p,
		Reason:      ReasonExists,
		ExistingSHA: sha,
		Resolutions: []Resolution{ResolveEditExisting, ResolveRetitle, ResolveAbandon},
	}
}

func staleConflict(p, sha string) *ConflictError {
	return &ConflictError{
		Path:        p,
		Reason:      ReasonStale,
		ExistingSHA: sha,
		Resolutions: []Resolution{ResolveEditExisting, ResolveAbandon},
	}
}

// SaveRequest is one author save action.
type SaveRequest struct {
	Mode    Mode
	Post    post.Input
	Content string
	// EditPath is the file opened for editing. Required in ModeEdit.
	EditPath string
	// BaseSHA is the hash the author's copy was read at, if known.
	BaseSHA string
}

// SaveResult describes a completed save.
type SaveResult struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Created bool   `json:"created"`
}

// Save runs the safe-write protocol: resolve the target path, check whether
// a file exists there, then create it, update it with its current hash, or
// refuse with a *ConflictError. Empty content is never committed.
func (g *Gateway) Save(ctx context.Context, req SaveRequest) (*SaveResult, error) {
	target, err := g.target(req)
	if err != nil {
		return nil, err
	}
	if req.Content == "" {
		return nil, fmt.Errorf("gateway: %w: no content to save for %s", apperr.ErrInvalid, target)
	}

	existing, err := g.GetFile(ctx, target)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		existing = nil
	case err != nil:
		return nil, err
	}

	if existing == nil {
		msg := post.CommitMessage(target, false)
		err := g.Write(ctx, WriteRequest{Path: target, Content: []byte(req.Content), Message: msg})
		if errors.Is(err, apperr.ErrAlreadyExists) {
			// The cached view missed a file created since it was read.
			return nil, existsConflict(target, "")
		}
		if err != nil {
			return nil, err
		}
		return &SaveResult{Path: target, Message: msg, Created: true}, nil
	}

	if req.Mode != ModeEdit {
		g.log.Info("save refused, file exists", slog.String("path", target))
		return nil, existsConflict(target, existing.SHA)
	}
	if req.BaseSHA != "" && req.BaseSHA != existing.SHA {
		return nil, staleConflict(target, existing.SHA)
	}

	msg := post.CommitMessage(target, true)
	err = g.Write(ctx, WriteRequest{
		Path:         target,
		Content:      []byte(req.Content),
		Message:      msg,
		ExpectedHash: existing.SHA,
	})
	if errors.Is(err, apperr.ErrConflict) {
		return nil, staleConflict(target, existing.SHA)
	}
	if err != nil {
		return nil, err
	}
	return &SaveResult{Path: target, Message: msg}, nil
}

func (g *Gateway) target(req SaveRequest) (string, error) {
	switch req.Mode {
	case ModeEdit:
		if req.EditPath == "" {
			return "", fmt.Errorf("gateway: %w: edit mode needs the opened path", apperr.ErrInvalid)
		}
		return req.EditPath, nil
	case ModeNew, "":
		p, err := post.Derive(req.Post, g.now())
		if err != nil {
			return "", fmt.Errorf("gateway: %w: %w", apperr.ErrInvalid, err)
		}
		return p, nil
	default:
		return "", fmt.Errorf("gateway: %w: unknown mode %q", apperr.ErrInvalid, req.Mode)
	}
}
