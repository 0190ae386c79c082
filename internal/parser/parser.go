// Package parser extracts frontmatter, the title and tags from post bodies.
package parser

import (
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxTags caps the tags reported for one post.
const MaxTags = 3

const fence = "---"

var (
	tagRe = regexp.MustCompile(`#([a-zA-Z][a-zA-Z0-9-]{2,})`)
	hexRe = regexp.MustCompile(`(?i)^[0-9a-f]{3,6}$`)
)

// Result holds the output of parsing a Markdown file.
type Result struct {
	Frontmatter map[string]any
	Body        string
	Tags        []string
	Title       string
}

// Parse extracts frontmatter, body, title and tags from raw Markdown bytes.
func Parse(data []byte) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Tags:        extractTags(body, fm),
		Title:       deriveTitle(fm, body),
	}, nil
}

// splitFrontmatter separates a leading YAML block fenced by "---" lines from
// the body. Content without a closed fence, or whose block is not a YAML
// mapping, is all body.
func splitFrontmatter(data []byte) (map[string]any, string, error) {
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	lines := strings.SplitAfter(strings.TrimLeft(text, "\n"), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != fence {
		return nil, text, nil
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != fence {
			continue
		}
		var fm map[string]any
		if err := yaml.Unmarshal([]byte(strings.Join(lines[1:i], "")), &fm); err != nil {
			// A horizontal rule at the top of a post is not frontmatter.
			return nil, text, nil
		}
		return fm, strings.TrimLeft(strings.Join(lines[i+1:], ""), "\n"), nil
	}
	return nil, text, nil
}

// isTagLine reports whether line is one of the places posts list their tags:
// an emphasised "Tags:" label, or a heading that mentions tags.
func isTagLine(line string) bool {
	return strings.Contains(line, "*Tags:") ||
		(strings.HasPrefix(line, "#") && strings.Contains(line, "tag"))
}

// extractTags collects tags from the frontmatter "tags" field, then from
// #hashtags on tag lines. Hex colour codes are skipped. At most MaxTags are
// returned.
func extractTags(body string, fm map[string]any) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(t string) {
		t = strings.TrimSpace(t)
		if t == "" || len(out) >= MaxTags {
			return
		}
		if _, dup := seen[t]; dup {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}

	switch v := fm["tags"].(type) {
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				add(s)
			}
		}
	case string:
		for _, s := range strings.Split(v, ",") {
			add(strings.TrimPrefix(strings.TrimSpace(s), "#"))
		}
	}

	for _, line := range strings.Split(body, "\n") {
		if !isTagLine(line) {
			continue
		}
		for _, m := range tagRe.FindAllStringSubmatch(line, -1) {
			if hexRe.MatchString(m[1]) {
				continue
			}
			add(m[1])
		}
	}
	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the text
// of the first line starting with "# ", otherwise empty string.
func deriveTitle(fm map[string]any, body string) string {
	if s, ok := fm["title"].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}
