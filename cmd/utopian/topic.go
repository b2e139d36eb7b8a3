package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/core-nexus/utopian/internal/storage"
	"github.com/core-nexus/utopian/internal/topic"
)

var (
	topicRaw         bool
	topicSlug        string
	topicDescription string
	topicTags        []string
)

var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "List and read topics",
}

var topicListCmd = &cobra.Command{
	Use:   "list",
	Short: "List topic slugs with their titles",
	Args:  cobra.NoArgs,
	RunE:  runTopicList,
}

var topicReadCmd = &cobra.Command{
	Use:   "read <slug>",
	Short: "Print a topic document without its front matter",
	Long: `Print topics/<slug>/topic.md, or docs/overview.md when the topic has no
topic.md, with the YAML front matter removed.`,
	Args: cobra.ExactArgs(1),
	RunE: runTopicRead,
}

var topicNewCmd = &cobra.Command{
	Use:   "new <title>",
	Short: "Create a topic with its standard layout",
	Long: `Create topics/<slug>/ with an overview, a slide deck, a video script and a
report, each starting from its template. The slug is derived from the title
unless --slug is given. An existing topic is left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: runTopicNew,
}

func init() {
	rootCmd.AddCommand(topicCmd)
	topicCmd.AddCommand(topicListCmd, topicReadCmd, topicNewCmd)
	topicReadCmd.Flags().BoolVar(&topicRaw, "raw", false, "Print plain Markdown even on a terminal")
	topicNewCmd.Flags().StringVar(&topicSlug, "slug", "", "Topic slug (default: derived from the title)")
	topicNewCmd.Flags().StringVar(&topicDescription, "description", "", "One-line topic description")
	topicNewCmd.Flags().StringSliceVar(&topicTags, "tags", nil, "Comma-separated tags")
}

func runTopicList(cmd *cobra.Command, _ []string) error {
	p := progress(cmd.OutOrStdout())
	store := nodeStore()
	slugs, err := topic.List(store)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}
	if len(slugs) == 0 {
		p("No topics yet. Run 'utopian init --topics' to create the critical topics.\n")
		return nil
	}
	for _, slug := range slugs {
		p("%-28s %s\n", slug, topic.Title(store, slug))
	}
	return nil
}

func runTopicRead(cmd *cobra.Command, args []string) error {
	slug := strings.TrimSpace(args[0])
	if !topic.ValidSlug(slug) {
		return fmt.Errorf("%w: %q", topic.ErrInvalidSlug, slug)
	}
	body, err := topic.ReadBody(nodeStore(), slug)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !topicRaw && isTerminal(out) {
		if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
			if rendered, err := r.Render(body); err == nil {
				body = rendered
			}
		}
	}
	fmt.Fprintln(out, body) //nolint:errcheck // command output
	return nil
}

func runTopicNew(cmd *cobra.Command, args []string) error {
	title := strings.TrimSpace(args[0])
	if title == "" {
		return fmt.Errorf("topic title is required")
	}
	slug := strings.TrimSpace(topicSlug)
	if slug == "" {
		slug = storage.Slugify(title, "topic")
	}
	if !topic.ValidSlug(slug) {
		return fmt.Errorf("%w: %q", topic.ErrInvalidSlug, slug)
	}

	created, _, err := topic.Create(nodeStore(), []topic.Topic{{
		Slug:        slug,
		Title:       title,
		Description: strings.TrimSpace(topicDescription),
		Tags:        topicTags,
	}}, time.Now())
	if err != nil {
		return fmt.Errorf("create topic: %w", err)
	}

	p := progress(cmd.OutOrStdout())
	if len(created) == 0 {
		p("- kept %s (already exists)\n", topic.Dir(slug))
		return nil
	}
	p("✓ topic %s\n", slug)
	return nil
}
