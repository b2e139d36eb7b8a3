// Package topic creates and reads topic directories under topics/. A topic is
// identified by its kebab-case slug and owns docs/, slides/, video/ and
// reports/ subdirectories. Topics are created once and never removed.
package topic

import (
	"fmt"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-nexus/utopian/internal/prompts"
	"github.com/core-nexus/utopian/internal/storage"
)

// SlugRe matches kebab-case topic slugs (e.g. "climate-action").
var SlugRe = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidSlug reports whether slug is a usable topic slug.
func ValidSlug(slug string) bool {
	return SlugRe.MatchString(slug)
}

// Topic is the metadata a topic is created from.
type Topic struct {
	Slug        string
	Title       string
	Description string
	Tags        []string
}

// DefaultTags are applied to topics created without tags.
var DefaultTags = []string{"global-challenges", "sustainability", "action-needed"}

// Subdirectories every topic owns.
const (
	DocsDir    = "docs"
	SlidesDir  = "slides"
	VideoDir   = "video"
	ReportsDir = "reports"
)

// Critical returns the topics every node starts with.
func Critical() []Topic {
	return []Topic{
		{
			Slug:        "climate-action",
			Title:       "Climate Action & Sustainability",
			Description: "Addressing climate change through renewable energy, sustainable practices, and policy advocacy",
		},
		{
			Slug:        "digital-rights",
			Title:       "Digital Rights & AI Ethics",
			Description: "Ensuring ethical AI development and protecting digital rights for all",
		},
		{
			Slug:        "global-health-equity",
			Title:       "Global Health Equity",
			Description: "Ensuring healthcare access and addressing global health disparities",
		},
	}
}

// Dir returns the topic directory relative to the node root.
func Dir(slug string) string {
	return filepath.Join(storage.TopicsDir, slug)
}

// files maps each generated file to its template. Files with meta set are
// prefixed with the topic's front matter.
var files = []struct {
	rel  string
	tmpl string
	meta bool
}{
	{filepath.Join(DocsDir, "overview.md"), prompts.TopicOverview, true},
	{filepath.Join(SlidesDir, "presentation.md"), prompts.TopicPresentation, false},
	{filepath.Join(VideoDir, "script.md"), prompts.TopicScript, false},
	{filepath.Join(ReportsDir, "report.md"), prompts.TopicReport, false},
}

// Create writes the template files for every topic whose directory does not
// exist yet. Existing topic directories are skipped untouched.
func Create(store *storage.Store, topics []Topic, now time.Time) (created, skipped []string, err error) {
	if err := store.EnsureDir(storage.TopicsDir); err != nil {
		return nil, nil, fmt.Errorf("create topics dir: %w", err)
	}
	for _, t := range topics {
		if !ValidSlug(t.Slug) {
			return created, skipped, fmt.Errorf("%w: %q", ErrInvalidSlug, t.Slug)
		}
		if store.Exists(Dir(t.Slug)) {
			skipped = append(skipped, t.Slug)
			continue
		}
		if err := write(store, t, now); err != nil {
			return created, skipped, err
		}
		created = append(created, t.Slug)
	}
	return created, skipped, nil
}

func write(store *storage.Store, t Topic, now time.Time) error {
	tags := t.Tags
	if len(tags) == 0 {
		tags = DefaultTags
	}
	data := prompts.TopicData{
		Title:       t.Title,
		Description: t.Description,
		Date:        now.Format("2006-01-02"),
	}
	front, err := FrontMatter(Meta{
		Title:       t.Title,
		Description: t.Description,
		Status:      "active",
		Priority:    "critical",
		Tags:        tags,
		Created:     data.Date,
	})
	if err != nil {
		return fmt.Errorf("write topic %s: %w", t.Slug, err)
	}
	for _, f := range files {
		body, err := prompts.Render(f.tmpl, data)
		if err != nil {
			return err
		}
		if f.meta {
			body = front + "\n" + body
		}
		if _, err := store.WriteText(filepath.Join(Dir(t.Slug), f.rel), body); err != nil {
			return fmt.Errorf("write topic %s: %w", t.Slug, err)
		}
	}
	return nil
}

// FrontMatter marshals meta into a "---" delimited YAML block.
func FrontMatter(meta Meta) (string, error) {
	out, err := yaml.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("marshal front matter: %w", err)
	}
	return "---\n" + string(out) + "---\n", nil
}

// List returns the slugs of all topic directories, sorted.
func List(store *storage.Store) ([]string, error) {
	slugs, err := store.ListSubdirs(storage.TopicsDir)
	if err != nil {
		return nil, fmt.Errorf("list topics: %w", err)
	}
	return slugs, nil
}
