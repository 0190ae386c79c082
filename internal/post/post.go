// Package post maps post metadata to canonical repository paths and commit
// messages, and classifies stored paths back into content types.
//
// Everything here is a pure function of its inputs; the current date is
// always passed in by the caller.
package post

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// Type is one of the fixed content kinds.
type Type string

const (
	TypePlain    Type = "plain"
	TypeTIL      Type = "til"
	TypeJournal  Type = "journal"
	TypeBlog     Type = "blog"
	Type100Days  Type = "100days"
	TypeLearning Type = "learning"
)

// Ext is the extension every post file carries.
const Ext = ".md"

// DefaultCategory is used for til entries without a category.
const DefaultCategory = "general"

// ErrUnknownType is returned when a type outside the closed set reaches the deriver.
var ErrUnknownType = errors.New("post: unknown type")

// ErrBadCategory is returned for a til category that is not a single path segment.
var ErrBadCategory = errors.New("post: bad category")

type typeInfo struct {
	dir      string
	label    string
	fallback string
}

var registry = map[Type]typeInfo{
	TypePlain:    {dir: "notes", label: "Note", fallback: "untitled"},
	TypeTIL:      {dir: "til", label: "TIL", fallback: "new-entry"},
	TypeJournal:  {dir: "daily-journal", label: "Journal", fallback: "entry"},
	TypeBlog:     {dir: "dev-blog", label: "Blog", fallback: "post"},
	Type100Days:  {dir: "100-days-of-code", label: "100 Days"},
	TypeLearning: {dir: "learning-log", label: "Learning", fallback: "topic"},
}

var ordered = []Type{TypePlain, TypeTIL, TypeJournal, TypeBlog, Type100Days, TypeLearning}

// Types returns every content type in display order.
func Types() []Type {
	out := make([]Type, len(ordered))
	copy(out, ordered)
	return out
}

// Dirs returns the top-level directory of every content type.
func Dirs() []string {
	out := make([]string, 0, len(ordered))
	for _, t := range ordered {
		out = append(out, registry[t].dir)
	}
	return out
}

// ParseType validates s against the closed set.
func ParseType(s string) (Type, error) {
	t := Type(strings.TrimSpace(s))
	if _, ok := registry[t]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
	return t, nil
}

// Valid reports whether t belongs to the closed set.
func (t Type) Valid() bool {
	_, ok := registry[t]
	return ok
}

// Dir returns the top-level storage directory for t.
func (t Type) Dir() string { return registry[t].dir }

// Label returns the human-readable name for t.
func (t Type) Label() string { return registry[t].label }

var (
	// \s alone is ASCII only; titles may carry \v, NBSP and other Unicode spaces.
	whitespaceRe = regexp.MustCompile(`[\s\v\p{Z}]+`)
	nonWordRe    = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

// Slugify lower-cases title, collapses whitespace runs into a single hyphen
// and strips everything outside [A-Za-z0-9_-].
func Slugify(title string) string {
	s := strings.ToLower(title)
	s = whitespaceRe.ReplaceAllString(s, "-")
	return nonWordRe.ReplaceAllString(s, "")
}

// CheckCategory reports whether c can name the directory of a til entry.
// An empty category is allowed and stands for DefaultCategory.
func CheckCategory(c string) error {
	if strings.ContainsAny(c, `/\`) || c == "." || c == ".." {
		return fmt.Errorf("%w: %q", ErrBadCategory, c)
	}
	return nil
}

// Input is the metadata a path is derived from.
type Input struct {
	Type     Type
	Title    string
	Category string
	// Day is the author-supplied day number for 100days entries.
	Day int
}

// Derive computes the canonical repository path for in on the calendar day of now (UTC).
func Derive(in Input, now time.Time) (string, error) {
	info, ok := registry[in.Type]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownType, in.Type)
	}

	slug := Slugify(in.Title)
	if slug == "" {
		slug = info.fallback
	}
	date := now.UTC()

	switch in.Type {
	case TypeTIL:
		category := in.Category
		if err := CheckCategory(category); err != nil {
			return "", err
		}
		if category == "" {
			category = DefaultCategory
		}
		return info.dir + "/" + category + "/" + slug + Ext, nil
	case TypeJournal:
		return fmt.Sprintf("%s/%04d/%02d/%02d-%s%s", info.dir, date.Year(), date.Month(), date.Day(), slug, Ext), nil
	case TypeBlog:
		return info.dir + "/" + date.Format(time.DateOnly) + "-" + slug + Ext, nil
	case Type100Days:
		day := in.Day
		if day <= 0 {
			day = 1
		}
		return fmt.Sprintf("%s/day-%03d%s", info.dir, day, Ext), nil
	default:
		return info.dir + "/" + slug + Ext, nil
	}
}

// CommitMessage returns "Update <basename>" when a file already existed at p,
// otherwise "Add <basename>".
func CommitMessage(p string, exists bool) string {
	verb := "Add"
	if exists {
		verb = "Update"
	}
	return verb + " " + path.Base(p)
}

// Classify recovers the content type of a stored path from its top-level
// directory. Paths outside the known directories are plain notes.
func Classify(p string) Type {
	top, _, _ := strings.Cut(strings.TrimPrefix(p, "/"), "/")
	for _, t := range ordered {
		if registry[t].dir == top {
			return t
		}
	}
	return TypePlain
}

// Category returns the second path segment of nested paths, else DefaultCategory.
func Category(p string) string {
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	if len(parts) > 2 {
		return parts[1]
	}
	return DefaultCategory
}
