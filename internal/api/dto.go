package api

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/gateway"
	"github.com/starford/lifepress/internal/index"
	"github.com/starford/lifepress/internal/post"
	"github.com/starford/lifepress/internal/postservice"
	"github.com/starford/lifepress/internal/viewer"
)

func typeNames() []any {
	types := post.Types()
	out := make([]any, len(types))
	for i, t := range types {
		out[i] = string(t)
	}
	return out
}

// PostInput identifies a new post by its path inputs.
type PostInput struct {
	Type     string `json:"type" example:"til" validate:"required"`
	Title    string `json:"title" example:"Closures"`
	Category string `json:"category,omitempty" example:"go"`
	Day      int    `json:"day,omitempty" example:"5"`
}

// Validate validates the post input.
func (p PostInput) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Type, validation.Required, validation.In(typeNames()...)),
		validation.Field(&p.Day, validation.Min(0)),
		validation.Field(&p.Category, validation.By(func(v any) error {
			c, _ := v.(string)
			return post.CheckCategory(c)
		})),
	)
}

func (p PostInput) input() post.Input {
	return post.Input{Type: post.Type(p.Type), Title: p.Title, Category: p.Category, Day: p.Day}
}

// SaveRequest is the request body for saving a post.
type SaveRequest struct {
	PostInput
	Mode    string `json:"mode" example:"new" enums:"new,edit"`
	Content string `json:"content" example:"# Closures\n" validate:"required"`
	// Path is the opened file in edit mode.
	Path    string `json:"path,omitempty" example:"til/go/closures.md"`
	BaseSHA string `json:"base_sha,omitempty"`
}

// Validate validates the save request.
func (s SaveRequest) Validate() error {
	edit := s.Mode == string(gateway.ModeEdit)
	if err := validation.ValidateStruct(&s,
		validation.Field(&s.Mode, validation.In(string(gateway.ModeNew), string(gateway.ModeEdit))),
		validation.Field(&s.Content, validation.Required),
		validation.Field(&s.Path, validation.When(edit, validation.Required)),
	); err != nil {
		return err
	}
	if edit {
		return nil
	}
	return s.PostInput.Validate()
}

// ListQuery carries the paging parameters of GET /posts. Zero means the default.
type ListQuery struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
}

// Validate bounds the paging parameters.
func (q ListQuery) Validate() error {
	return validation.ValidateStruct(&q,
		validation.Field(&q.Page, validation.Min(0), validation.Max(viewer.MaxPage)),
		validation.Field(&q.PerPage, validation.Min(0), validation.Max(viewer.MaxPerPage)),
	)
}

func (s SaveRequest) gatewayRequest() gateway.SaveRequest {
	return gateway.SaveRequest{
		Mode:     gateway.Mode(s.Mode),
		Post:     s.input(),
		Content:  s.Content,
		EditPath: s.Path,
		BaseSHA:  s.BaseSHA,
	}
}

// invalid wraps a validation failure so it maps to 400.
func invalid(err error) error {
	return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
}

// ConflictResponse is returned with 409 when a save is refused.
type ConflictResponse struct {
	Error       string                 `json:"error" example:"conflict: til/go/closures.md already exists"`
	Path        string                 `json:"path" example:"til/go/closures.md"`
	Reason      gateway.ConflictReason `json:"reason" example:"exists" enums:"exists,stale"`
	ExistingSHA string                 `json:"existing_sha,omitempty"`
	Resolutions []gateway.Resolution   `json:"resolutions" example:"edit-existing,retitle,abandon"`
}

func newConflictResponse(ce *gateway.ConflictError) ConflictResponse {
	return ConflictResponse{
		Error:       ce.Error(),
		Path:        ce.Path,
		Reason:      ce.Reason,
		ExistingSHA: ce.ExistingSHA,
		Resolutions: ce.Resolutions,
	}
}

// TypesResponse lists the content types.
type TypesResponse struct {
	Types    []postservice.TypeInfo `json:"types" validate:"required"`
	CanWrite bool                   `json:"can_write"`
}

// ContentRequest carries Markdown for preview or draft storage.
type ContentRequest struct {
	Content string `json:"content" example:"# Hello"`
}

// PreviewResponse is rendered Markdown.
type PreviewResponse struct {
	HTML string `json:"html" example:"<h1 id=\"hello\">Hello</h1>"`
}

// DraftResponse is the saved draft, if any.
type DraftResponse struct {
	Content string `json:"content"`
	Exists  bool   `json:"exists"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}
