package topic

import (
	"fmt"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/core-nexus/utopian/internal/storage"
)

// Meta is the YAML front matter of a topic document.
type Meta struct {
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Status      string   `yaml:"status,omitempty"`
	Priority    string   `yaml:"priority,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
	Created     string   `yaml:"created,omitempty"`
}

// Document is a topic file split into front matter and body.
type Document struct {
	Path string
	Meta Meta
	Body string
}

// candidates are tried in order when reading a topic.
var candidates = []string{"topic.md", filepath.Join(DocsDir, "overview.md")}

// Read loads the topic's main document: topic.md, or docs/overview.md when
// there is no topic.md.
func Read(store *storage.Store, slug string) (Document, error) {
	if !ValidSlug(slug) {
		return Document{}, fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
	}
	for _, name := range candidates {
		rel := filepath.Join(Dir(slug), name)
		content, ok, err := store.ReadText(rel)
		if err != nil {
			return Document{}, fmt.Errorf("read topic %s: %w", slug, err)
		}
		if !ok {
			continue
		}
		raw, body := SplitFrontMatter(content)
		doc := Document{Path: rel, Body: body}
		if raw != "" {
			if err := yaml.Unmarshal([]byte(raw), &doc.Meta); err != nil {
				return Document{}, fmt.Errorf("parse front matter of %s: %w", rel, err)
			}
		}
		return doc, nil
	}
	return Document{}, fmt.Errorf("%w: %s", ErrTopicNotFound, slug)
}

// ReadBody returns the topic document with its front matter removed.
func ReadBody(store *storage.Store, slug string) (string, error) {
	doc, err := Read(store, slug)
	if err != nil {
		return "", err
	}
	return doc.Body, nil
}

// Title returns the topic's title from its front matter, or the slug when the
// topic has no readable title.
func Title(store *storage.Store, slug string) string {
	doc, err := Read(store, slug)
	if err != nil || doc.Meta.Title == "" {
		return strings.ReplaceAll(slug, "-", " ")
	}
	return doc.Meta.Title
}

// SplitFrontMatter separates a leading "---" delimited block from the rest of
// content. Both parts are trimmed. Without a closed front matter block the
// whole content is returned as the body.
func SplitFrontMatter(content string) (frontMatter, body string) {
	lines := strings.Split(content, "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) != "---" {
		return "", strings.TrimSpace(content)
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimSpace(strings.Join(lines[1:i], "\n")),
				strings.TrimSpace(strings.Join(lines[i+1:], "\n"))
		}
	}
	return "", strings.TrimSpace(content)
}
