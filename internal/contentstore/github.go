package contentstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/go-github/v68/github"

	"github.com/starford/lifepress/internal/apperr"
	"github.com/starford/lifepress/internal/models"
)

// DefaultAPIURL is the public GitHub REST endpoint.
const DefaultAPIURL = "https://api.github.com"

// maxDownload caps the body read for files GitHub does not inline.
const maxDownload = 32 << 20

// GitHubConfig configures a GitHub adapter.
type GitHubConfig struct {
	APIURL string
	Owner  string
	Repo   string
	Branch string
	Token  string
	Client *http.Client
}

// session is a client bound to one credential.
type session struct {
	gh    *github.Client
	token string
}

// GitHub implements Store over the repository Contents API.
type GitHub struct {
	api    *url.URL
	owner  string
	repo   string
	branch string
	hc     *http.Client
	cur    atomic.Pointer[session]
}

// NewGitHub creates an adapter for owner/repo. An empty token is a valid
// read-only configuration.
func NewGitHub(cfg GitHubConfig) (*GitHub, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("contentstore: owner and repo are required")
	}
	raw := strings.TrimRight(cfg.APIURL, "/")
	if raw == "" {
		raw = DefaultAPIURL
	}
	api, err := url.Parse(raw + "/")
	if err != nil {
		return nil, fmt.Errorf("contentstore: api url: %w", err)
	}
	branch := cfg.Branch
	if branch == "" {
		branch = "main"
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	g := &GitHub{
		api:    api,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		branch: branch,
		hc:     client,
	}
	g.SetCredential(cfg.Token)
	return g, nil
}

// SetCredential replaces the credential attached to requests.
func (g *GitHub) SetCredential(token string) {
	token = strings.TrimSpace(token)
	gh := github.NewClient(g.hc)
	if token != "" {
		gh = gh.WithAuthToken(token)
	}
	base := *g.api
	gh.BaseURL = &base
	g.cur.Store(&session{gh: gh, token: token})
}

// HasCredential reports whether a credential is configured.
func (g *GitHub) HasCredential() bool {
	return g.cur.Load().token != ""
}

func (g *GitHub) client() *github.Client { return g.cur.Load().gh }

// Locate returns the Contents API URL for path on the configured branch.
func (g *GitHub) Locate(p string) string {
	segs := strings.Split(strings.Trim(p, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return strings.TrimRight(g.api.String(), "/") +
		"/repos/" + url.PathEscape(g.owner) + "/" + url.PathEscape(g.repo) +
		"/contents/" + strings.Join(segs, "/") + "?ref=" + url.QueryEscape(g.branch)
}

func (g *GitHub) get(ctx context.Context, gh *github.Client, p string) (*github.RepositoryContent, []*github.RepositoryContent, error) {
	file, dir, _, err := gh.Repositories.GetContents(ctx, g.owner, g.repo, strings.Trim(p, "/"),
		&github.RepositoryContentGetOptions{Ref: g.branch})
	if err != nil {
		return nil, nil, classify(err)
	}
	return file, dir, nil
}

func entryOf(c *github.RepositoryContent) models.Entry {
	return models.Entry{
		Name:        c.GetName(),
		Path:        c.GetPath(),
		IsDir:       c.GetType() == "dir",
		SHA:         c.GetSHA(),
		DownloadURL: c.GetDownloadURL(),
	}
}

// Read fetches and decodes a single file.
func (g *GitHub) Read(ctx context.Context, p string) (*models.StoredFile, error) {
	gh := g.client()
	file, _, err := g.get(ctx, gh, p)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	if file == nil {
		return nil, fmt.Errorf("read %s: %w: path is a directory", p, apperr.ErrInvalid)
	}
	content, err := g.content(ctx, gh, file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", p, err)
	}
	return &models.StoredFile{
		Path:        file.GetPath(),
		Name:        file.GetName(),
		SHA:         file.GetSHA(),
		Content:     content,
		Size:        int64(file.GetSize()),
		DownloadURL: file.GetDownloadURL(),
	}, nil
}

// content decodes the inline body of f. Files over 1 MB are not inlined
// (encoding "none") and are fetched from their download URL instead.
func (g *GitHub) content(ctx context.Context, gh *github.Client, f *github.RepositoryContent) (string, error) {
	if f.GetEncoding() != "none" {
		s, err := f.GetContent()
		if err != nil {
			return "", fmt.Errorf("%w: decode content: %v", apperr.ErrTransient, err)
		}
		return s, nil
	}
	if f.GetDownloadURL() == "" {
		return "", fmt.Errorf("%w: content not inlined and no download url", apperr.ErrTransient)
	}
	req, err := gh.NewRequest(http.MethodGet, f.GetDownloadURL(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", apperr.ErrTransient, err)
	}
	resp, err := gh.BareDo(ctx, req)
	if err != nil {
		return "", classify(err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload))
	if err != nil {
		return "", fmt.Errorf("%w: download: %v", apperr.ErrTransient, err)
	}
	return string(raw), nil
}

// List returns the entries of a directory. A file path yields a single entry.
func (g *GitHub) List(ctx context.Context, p string) ([]models.Entry, error) {
	file, dir, err := g.get(ctx, g.client(), p)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", p, err)
	}
	if file != nil {
		return []models.Entry{entryOf(file)}, nil
	}
	out := make([]models.Entry, len(dir))
	for i, c := range dir {
		out[i] = entryOf(c)
	}
	return out, nil
}

// Write creates or updates path with a commit on the configured branch.
func (g *GitHub) Write(ctx context.Context, p string, content []byte, message, expectedHash string) error {
	if !g.HasCredential() {
		return fmt.Errorf("write %s: %w", p, apperr.ErrUnauthenticated)
	}
	gh := g.client()
	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: content,
		Branch:  github.Ptr(g.branch),
	}
	var err error
	if expectedHash == "" {
		_, _, err = gh.Repositories.CreateFile(ctx, g.owner, g.repo, p, opts)
	} else {
		opts.SHA = github.Ptr(expectedHash)
		_, _, err = gh.Repositories.UpdateFile(ctx, g.owner, g.repo, p, opts)
	}
	if err == nil {
		return nil
	}
	err = classify(err)
	// GitHub answers 422 both for "sha wasn't supplied" on an existing file
	// and for a malformed sha.
	var se *statusError
	if errors.As(err, &se) && se.code == http.StatusUnprocessableEntity {
		if expectedHash == "" {
			return fmt.Errorf("write %s: %w: %s", p, apperr.ErrAlreadyExists, se.message)
		}
		return fmt.Errorf("write %s: %w: %s", p, apperr.ErrConflict, se.message)
	}
	return fmt.Errorf("write %s: %w", p, err)
}

// TestConnection checks the credential against the repository and returns the owner login.
func (g *GitHub) TestConnection(ctx context.Context) (string, error) {
	if !g.HasCredential() {
		return "", apperr.ErrUnauthenticated
	}
	repo, _, err := g.client().Repositories.Get(ctx, g.owner, g.repo)
	if err != nil {
		return "", classify(err)
	}
	return repo.GetOwner().GetLogin(), nil
}

type statusError struct {
	code    int
	message string
	kind    error
}

func (e *statusError) Error() string {
	if e.message == "" {
		return fmt.Sprintf("%v (status %d)", e.kind, e.code)
	}
	return fmt.Sprintf("%v (status %d): %s", e.kind, e.code, e.message)
}

func (e *statusError) Unwrap() error { return e.kind }

// classify maps a go-github error onto the apperr kinds.
func classify(err error) error {
	var (
		rate  *github.RateLimitError
		abuse *github.AbuseRateLimitError
		resp  *github.ErrorResponse
	)
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, github.ErrPathForbidden):
		return fmt.Errorf("%w: %v", apperr.ErrInvalid, err)
	case errors.As(err, &rate), errors.As(err, &abuse):
		return fmt.Errorf("%w: %v", apperr.ErrTransient, err)
	case errors.As(err, &resp) && resp.Response != nil:
		code := resp.Response.StatusCode
		return &statusError{code: code, message: resp.Message, kind: classifyStatus(code)}
	default:
		return fmt.Errorf("%w: %v", apperr.ErrTransient, err)
	}
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusNotFound:
		return apperr.ErrNotFound
	case code == http.StatusConflict || code == http.StatusPreconditionFailed:
		return apperr.ErrConflict
	case code == http.StatusUnauthorized:
		return apperr.ErrUnauthenticated
	case code == http.StatusUnprocessableEntity:
		return apperr.ErrInvalid
	case code == http.StatusForbidden || code == http.StatusTooManyRequests || code >= 500:
		return apperr.ErrTransient
	default:
		return fmt.Errorf("unexpected status %d", code)
	}
}
