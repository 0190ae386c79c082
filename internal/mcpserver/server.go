// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes lifepress tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/lifepress/internal/gateway"
	"github.com/starford/lifepress/internal/index"
	"github.com/starford/lifepress/internal/post"
	"github.com/starford/lifepress/internal/postservice"
	"github.com/starford/lifepress/internal/viewer"
)

// ConventionsURI is the resource holding PostConventions.
const ConventionsURI = "lifepress://path-conventions"

// Server wraps the MCP server with lifepress tools.
type Server struct {
	mcp *server.MCPServer
	svc *postservice.Service
}

// New creates a new MCP server with all lifepress tools registered.
func New(svc *postservice.Service) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"lifepress",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithRecovery(),
	)

	typeEnum := make([]string, 0, len(post.Types()))
	for _, t := range post.Types() {
		typeEnum = append(typeEnum, string(t))
	}

	s.mcp.AddTool(mcp.NewTool("derive_path",
		mcp.WithDescription("Derive the storage path and commit message for a new post, and report whether a file already exists there."),
		mcp.WithString("type", mcp.Required(), mcp.Enum(typeEnum...), mcp.Description("Content type")),
		mcp.WithString("title", mcp.Description("Post title")),
		mcp.WithString("category", mcp.Description("TIL category (default general)")),
		mcp.WithNumber("day", mcp.Description("Day number for 100days posts")),
	), s.derivePath)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read a stored post. Returns its content and the sha to pass as base_sha when editing."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path of the post (e.g. til/go/closures.md)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("save_post",
		mcp.WithDescription("Save a post. Mode new derives the path and never overwrites an existing file. "+
			"Mode edit replaces the file at path and needs the base_sha from read_post. "+
			"Read the conventions first via get_post_conventions or the "+ConventionsURI+" resource."),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content")),
		mcp.WithString("mode", mcp.Enum(string(gateway.ModeNew), string(gateway.ModeEdit)), mcp.Description("new (default) or edit")),
		mcp.WithString("type", mcp.Enum(typeEnum...), mcp.Description("Content type, required in new mode")),
		mcp.WithString("title", mcp.Description("Post title")),
		mcp.WithString("category", mcp.Description("TIL category")),
		mcp.WithNumber("day", mcp.Description("Day number for 100days posts")),
		mcp.WithString("path", mcp.Description("Path of the post being edited, required in edit mode")),
		mcp.WithString("base_sha", mcp.Description("sha returned by read_post")),
	), s.savePost)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List posts, newest first, optionally filtered by type or text."),
		mcp.WithString("type", mcp.Enum(typeEnum...), mcp.Description("Content type filter")),
		mcp.WithString("query", mcp.Description("Case-insensitive text filter")),
		mcp.WithString("sort", mcp.Enum(string(viewer.SortNewest), string(viewer.SortOldest), string(viewer.SortTitle))),
		mcp.WithNumber("page", mcp.Min(1), mcp.Max(viewer.MaxPage), mcp.Description("Page number, 1-based")),
		mcp.WithNumber("per_page", mcp.Min(1), mcp.Max(viewer.MaxPerPage), mcp.Description("Page size (default 9)")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("search_posts",
		mcp.WithDescription("Full-text search through post content and titles."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search words; every word must match")),
		mcp.WithString("type", mcp.Enum(typeEnum...), mcp.Description("Content type filter")),
		mcp.WithNumber("limit", mcp.Description("Max results (default 20)")),
	), s.searchPosts)

	s.mcp.AddTool(mcp.NewTool("get_post_conventions",
		mcp.WithDescription("Returns the path and content conventions for posts. "+
			"Call this before creating or updating posts."),
	), s.getPostConventions)

	s.mcp.AddResource(
		mcp.NewResource(ConventionsURI, "Post Conventions",
			mcp.WithResourceDescription("Where each type of post is stored and how it is written."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventionsResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

// intArg reads a whole-number argument within [lo, hi], def when absent.
func intArg(req mcp.CallToolRequest, name string, def, lo, hi int) (int, error) {
	v := req.GetFloat(name, float64(def))
	if v != math.Trunc(v) || v < float64(lo) || v > float64(hi) {
		return 0, fmt.Errorf("%s must be a whole number from %d to %d", name, lo, hi)
	}
	return int(v), nil
}

func postInput(req mcp.CallToolRequest) post.Input {
	return post.Input{
		Type:     post.Type(req.GetString("type", "")),
		Title:    req.GetString("title", ""),
		Category: req.GetString("category", ""),
		Day:      req.GetInt("day", 0),
	}
}

func (s *Server) derivePath(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if _, err := req.RequireString("type"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Derive(ctx, postInput(req))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.File(ctx, path)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("read %s: %v", path, err)), nil
	}
	return jsonResult(map[string]string{"path": f.Path, "sha": f.SHA, "content": f.Content})
}

func (s *Server) savePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.svc.Save(ctx, gateway.SaveRequest{
		Mode:     gateway.Mode(req.GetString("mode", string(gateway.ModeNew))),
		Post:     postInput(req),
		Content:  content,
		EditPath: req.GetString("path", ""),
		BaseSHA:  req.GetString("base_sha", ""),
	})
	var ce *gateway.ConflictError
	if errors.As(err, &ce) {
		opts := make([]string, len(ce.Resolutions))
		for i, r := range ce.Resolutions {
			opts[i] = string(r)
		}
		return mcp.NewToolResultError(fmt.Sprintf("%v (resolutions: %s)", ce, strings.Join(opts, ", "))), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(res)
}

// postSummary is a list_posts item without the body.
type postSummary struct {
	Path  string    `json:"path"`
	Title string    `json:"title"`
	Type  post.Type `json:"type"`
	Date  string    `json:"date"`
	Tags  []string  `json:"tags,omitempty"`
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	page, err := intArg(req, "page", 1, 1, viewer.MaxPage)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	per, err := intArg(req, "per_page", viewer.DefaultPerPage, 1, viewer.MaxPerPage)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := viewer.Query{
		Search:  req.GetString("query", ""),
		Sort:    viewer.ParseSort(req.GetString("sort", "")),
		Page:    page,
		PerPage: per,
	}
	if t := req.GetString("type", ""); t != "" {
		typ, err := post.ParseType(t)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Type = typ
	}
	res, err := s.svc.Query(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	items := make([]postSummary, len(res.Posts))
	for i, p := range res.Posts {
		items[i] = postSummary{Path: p.Path, Title: p.Title, Type: p.Type, Date: p.Date.Format(time.DateOnly), Tags: p.Tags}
	}
	return jsonResult(map[string]any{
		"posts":       items,
		"total":       res.Total,
		"page":        res.Page,
		"total_pages": res.TotalPages,
	})
}

func (s *Server) searchPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	q := index.SearchQuery{Text: query, Limit: req.GetInt("limit", index.DefaultSearchLimit)}
	if t := req.GetString("type", ""); t != "" {
		typ, err := post.ParseType(t)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		q.Type = string(typ)
	}
	results, err := s.svc.Search(ctx, q)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(results)
}

func (s *Server) getPostConventions(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostConventions), nil
}

func (s *Server) readConventionsResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ConventionsURI,
			MIMEType: "text/markdown",
			Text:     PostConventions,
		},
	}, nil
}
