package api

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/lifepress/internal/index"
	"github.com/starford/lifepress/internal/post"
	"github.com/starford/lifepress/internal/postservice"
	"github.com/starford/lifepress/internal/viewer"
)

// Handler holds API route handlers.
type Handler struct {
	svc *postservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *postservice.Service) *Handler {
	return &Handler{svc: svc}
}

// wildcardPath extracts the file path after the route prefix.
// Supports encoded slashes from OpenAPI clients (e.g. til%2Fgo%2Fclosures.md).
func wildcardPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// Types handles GET /api/types.
//
//	@Summary		List content types
//	@Tags			posts
//	@Produce		json
//	@Success		200	{object}	TypesResponse
//	@Security		BearerAuth
//	@Router			/types [get]
func (h *Handler) Types(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, TypesResponse{Types: h.svc.Types(), CanWrite: h.svc.CanWrite()})
}

// Derive handles POST /api/posts/derive.
//
//	@Summary		Derive the path and commit message for a new post
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		PostInput	true	"Post inputs"
//	@Success		200		{object}	postservice.DeriveResult
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/derive [post]
func (h *Handler) Derive(w http.ResponseWriter, r *http.Request) {
	var req PostInput
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, invalid(err))
		return
	}
	res, err := h.svc.Derive(r.Context(), req.input())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Save handles POST /api/posts.
//
//	@Summary		Save a post with the safe-write protocol
//	@Description	Mode "new" never replaces an existing file. Mode "edit" replaces the opened file at its current hash.
//	@Tags			posts
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SaveRequest	true	"Post to save"
//	@Success		201		{object}	gateway.SaveResult
//	@Success		200		{object}	gateway.SaveResult
//	@Failure		400		{object}	errResponse
//	@Failure		401		{object}	errResponse
//	@Failure		409		{object}	ConflictResponse
//	@Failure		429		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts [post]
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, r, invalid(err))
		return
	}
	res, err := h.svc.Save(r.Context(), req.gatewayRequest())
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// ListPosts handles GET /api/posts.
//
//	@Summary		List posts, newest first by default
//	@Tags			posts
//	@Produce		json
//	@Param			type		query		string	false	"Content type"
//	@Param			q			query		string	false	"Search text"
//	@Param			sort		query		string	false	"Sort order"	Enums(newest, oldest, title)
//	@Param			page		query		int		false	"Page number, 1-based"	minimum(1)	maximum(10000)
//	@Param			per_page	query		int		false	"Page size"				minimum(1)	maximum(100)
//	@Success		200			{object}	viewer.Page
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts [get]
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := viewer.Query{
		Search: q.Get("q"),
		Sort:   viewer.ParseSort(q.Get("sort")),
	}
	var paging ListQuery
	for name, dst := range map[string]*int{"page": &paging.Page, "per_page": &paging.PerPage} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, r, invalid(fmt.Errorf("%s: must be an integer", name)))
			return
		}
		*dst = n
	}
	if err := paging.Validate(); err != nil {
		writeError(w, r, invalid(err))
		return
	}
	query.Page, query.PerPage = paging.Page, paging.PerPage
	if t := q.Get("type"); t != "" && t != "all" {
		typ, err := post.ParseType(t)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		query.Type = typ
	}

	page, err := h.svc.Query(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Stats handles GET /api/posts/stats.
//
//	@Summary		Post counts
//	@Tags			posts
//	@Produce		json
//	@Success		200	{object}	viewer.Stats
//	@Security		BearerAuth
//	@Router			/posts/stats [get]
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Stats(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GetPost handles GET /api/posts/*.
//
//	@Summary		Get a single post by path
//	@Tags			posts
//	@Produce		json
//	@Param			path	path		string	true	"Post path"
//	@Success		200		{object}	viewer.Post
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/posts/{path} [get]
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	vp, err := h.svc.Post(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vp)
}

// GetFile handles GET /api/files/*.
//
//	@Summary		Get a stored file with its content hash
//	@Tags			files
//	@Produce		json
//	@Param			path	path		string	true	"File path"
//	@Success		200		{object}	models.StoredFile
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/files/{path} [get]
func (h *Handler) GetFile(w http.ResponseWriter, r *http.Request) {
	p := wildcardPath(r)
	if p == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	f, err := h.svc.File(r.Context(), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("ETag", `"`+f.SHA+`"`)
	writeJSON(w, http.StatusOK, f)
}

// Preview handles POST /api/preview.
//
//	@Summary		Render Markdown to HTML
//	@Tags			editor
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ContentRequest	true	"Markdown"
//	@Success		200		{object}	PreviewResponse
//	@Security		BearerAuth
//	@Router			/preview [post]
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	html, err := h.svc.Preview(req.Content)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PreviewResponse{HTML: html})
}

// GetDraft handles GET /api/draft.
//
//	@Summary		Get the unsaved draft
//	@Tags			editor
//	@Produce		json
//	@Success		200	{object}	DraftResponse
//	@Security		BearerAuth
//	@Router			/draft [get]
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	content, ok, err := h.svc.Draft(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DraftResponse{Content: content, Exists: ok})
}

// PutDraft handles PUT /api/draft. The write is debounced.
//
//	@Summary		Update the unsaved draft
//	@Tags			editor
//	@Accept			json
//	@Param			body	body	ContentRequest	true	"Draft content"
//	@Success		202		"Draft accepted"
//	@Security		BearerAuth
//	@Router			/draft [put]
func (h *Handler) PutDraft(w http.ResponseWriter, r *http.Request) {
	var req ContentRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.UpdateDraft(req.Content); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DeleteDraft handles DELETE /api/draft.
//
//	@Summary		Discard the unsaved draft
//	@Tags			editor
//	@Success		204	"Draft discarded"
//	@Security		BearerAuth
//	@Router			/draft [delete]
func (h *Handler) DeleteDraft(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.ClearDraft(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across posts
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query, every word must match"
//	@Param			type	query		string	false	"Content type filter"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	query := index.SearchQuery{Text: q}
	query.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	if t := r.URL.Query().Get("type"); t != "" && t != "all" {
		typ, err := post.ParseType(t)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		query.Type = string(typ)
	}
	results, err := h.svc.Search(r.Context(), query)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}
