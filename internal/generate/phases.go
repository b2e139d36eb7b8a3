package generate

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/core-nexus/utopian/internal/llm"
	"github.com/core-nexus/utopian/internal/prompts"
	"github.com/core-nexus/utopian/internal/storage"
	"github.com/core-nexus/utopian/internal/topic"
	"github.com/core-nexus/utopian/internal/trust"
)

// Phase names a step of a generation cycle.
type Phase string

const (
	PhaseResearch  Phase = "research"
	PhaseTrust     Phase = "trust"
	PhaseDiscovery Phase = "discovery"
	PhaseSynthesis Phase = "synthesis"
	PhaseMedia     Phase = "media"
	PhaseImages    Phase = "images"
)

// phases returns the cycle's phases in execution order.
func (l *Loop) phases() []Phase {
	ps := []Phase{PhaseResearch, PhaseTrust, PhaseDiscovery, PhaseSynthesis, PhaseMedia}
	if l.Images != nil {
		ps = append(ps, PhaseImages)
	}
	return ps
}

// cycleRun carries the state of one cycle across its phases.
type cycleRun struct {
	loop  *Loop
	opts  Options
	cycle int
	sum   *Summary
}

// phase runs p, recording its outputs or its failure. Empty completions are
// counted and skipped, not treated as failures.
func (r *cycleRun) phase(ctx context.Context, p Phase) error {
	logger := r.loop.logger().With(zap.Int("cycle", r.cycle), zap.String("phase", string(p)))
	out := r.loop.out()

	var err error
	switch p {
	case PhaseResearch:
		err = r.research(ctx)
	case PhaseTrust:
		err = r.trustNetwork(ctx)
	case PhaseDiscovery:
		err = r.discovery(ctx)
	case PhaseSynthesis:
		err = r.synthesis(ctx)
	case PhaseMedia:
		err = r.media(ctx)
	case PhaseImages:
		err = r.images(ctx)
	default:
		err = fmt.Errorf("%w: %s", ErrUnknownPhase, p)
	}

	if err == nil {
		logger.Debug("phase complete")
		return nil
	}
	if errors.Is(err, ErrEmptyCompletion) {
		logger.Warn("no usable completion", zap.Error(err))
		fmt.Fprintf(out, "- %s: no usable completion, skipped\n", p) //nolint:errcheck // progress output
		return nil
	}
	if ctx.Err() != nil {
		return err
	}
	r.sum.Failures = append(r.sum.Failures, PhaseFailure{Cycle: r.cycle, Phase: p, Err: err})
	logger.Error("phase failed", zap.Error(err))
	fmt.Fprintf(out, "✗ %s failed: %v\n", p, err) //nolint:errcheck // progress output
	return err
}

// ask sends one user prompt with the system prompt and returns the
// completion. An empty completion yields ErrEmptyCompletion.
func (r *cycleRun) ask(ctx context.Context, name string, data prompts.PhaseData) (string, error) {
	prompt, err := prompts.Render(name, data)
	if err != nil {
		return "", err
	}
	reply, err := r.loop.Chat.Chat(ctx, []llm.Message{
		llm.System(prompts.SystemPrompt()),
		llm.User(prompt),
	}, r.opts.Model)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(reply) == "" {
		r.sum.Empty++
		return "", ErrEmptyCompletion
	}
	return reply, nil
}

func (r *cycleRun) write(rel, content string) error {
	if !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if _, err := r.loop.Store.WriteText(rel, content); err != nil {
		return err
	}
	r.sum.Written = append(r.sum.Written, rel)
	fmt.Fprintf(r.loop.out(), "✓ %s\n", rel) //nolint:errcheck // progress output
	return nil
}

func (r *cycleRun) epoch() int64 {
	return r.opts.Clock().UnixMilli()
}

func (r *cycleRun) topics() ([]string, error) {
	return topic.List(r.loop.Store)
}

// research writes a deep research report for each of the first
// ResearchTopics topic directories. Each topic is attempted even if an
// earlier one failed.
func (r *cycleRun) research(ctx context.Context) error {
	slugs, err := r.topics()
	if err != nil {
		return err
	}
	if len(slugs) > r.opts.ResearchTopics {
		slugs = slugs[:r.opts.ResearchTopics]
	}

	var errs []error
	empty := 0
	for _, slug := range slugs {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		body, err := topic.ReadBody(r.loop.Store, slug)
		if err != nil && !errors.Is(err, topic.ErrTopicNotFound) {
			r.loop.logger().Warn("topic document unreadable; researching from slug",
				zap.String("slug", slug), zap.Error(err))
		}
		reply, err := r.ask(ctx, prompts.Research, prompts.PhaseData{Iteration: r.cycle, Slug: slug, Body: body})
		if errors.Is(err, ErrEmptyCompletion) {
			empty++
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("research %s: %w", slug, err))
			continue
		}
		rel := filepath.Join(topic.Dir(slug), topic.ReportsDir, fmt.Sprintf("deep-research-%d.md", r.cycle))
		if err := r.write(rel, reply); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	if empty > 0 && empty == len(slugs) {
		return ErrEmptyCompletion
	}
	return nil
}

// trustNetwork asks for candidate trust entries and stores the raw answer as
// a new file. known_nodes.yaml is never modified here.
func (r *cycleRun) trustNetwork(ctx context.Context) error {
	kn, _, err := trust.Load(r.loop.Store)
	if err != nil {
		return err
	}
	slugs, err := r.topics()
	if err != nil {
		return err
	}
	reply, err := r.ask(ctx, prompts.Trust, prompts.PhaseData{Iteration: r.cycle, Topics: slugs, Known: kn.Nodes})
	if err != nil {
		return err
	}
	rel := filepath.Join(storage.TrustDir, fmt.Sprintf("expanded-network-%d.yaml", r.epoch()))
	return r.write(rel, StripCodeFence(reply))
}

func (r *cycleRun) discovery(ctx context.Context) error {
	slugs, err := r.topics()
	if err != nil {
		return err
	}
	reply, err := r.ask(ctx, prompts.Discovery, prompts.PhaseData{Iteration: r.cycle, Topics: slugs})
	if err != nil {
		return err
	}
	rel := filepath.Join(storage.TopicsDir, fmt.Sprintf("emerging-%d", r.cycle), "discovery.md")
	return r.write(rel, reply)
}

func (r *cycleRun) synthesis(ctx context.Context) error {
	slugs, err := r.topics()
	if err != nil {
		return err
	}
	reply, err := r.ask(ctx, prompts.Synthesis, prompts.PhaseData{Iteration: r.cycle, Topics: slugs})
	if err != nil {
		return err
	}
	rel := filepath.Join(storage.ReportsDir, fmt.Sprintf("synthesis-%d.md", r.epoch()))
	return r.write(rel, reply)
}

func (r *cycleRun) media(ctx context.Context) error {
	slugs, err := r.topics()
	if err != nil {
		return err
	}
	reply, err := r.ask(ctx, prompts.Media, prompts.PhaseData{Iteration: r.cycle, Topics: slugs})
	if err != nil {
		return err
	}
	rel := filepath.Join(storage.MediaDir, fmt.Sprintf("content-%d-%d.md", r.cycle, r.epoch()))
	return r.write(rel, reply)
}

// ImagesDir holds generated images, relative to the node root.
var ImagesDir = filepath.Join(storage.MediaDir, "images")

// images renders ImagesPerCycle images, cycling through the topics.
func (r *cycleRun) images(ctx context.Context) error {
	slugs, err := r.topics()
	if err != nil {
		return err
	}
	if err := r.loop.Store.EnsureDir(ImagesDir); err != nil {
		return err
	}

	var errs []error
	for i := 1; i <= r.opts.ImagesPerCycle; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		slug, title := "utopia", "a thriving, sustainable future"
		if len(slugs) > 0 {
			slug = slugs[(i-1)%len(slugs)]
			title = topic.Title(r.loop.Store, slug)
		}
		prompt, err := prompts.Render(prompts.Image, prompts.ImageData{Title: title, Index: i})
		if err != nil {
			return err
		}
		rel := filepath.Join(ImagesDir, fmt.Sprintf("%s-%d-%d.png", slug, r.cycle, i))
		if err := r.loop.Images.Generate(ctx, strings.TrimSpace(prompt), r.loop.Store.Path(rel)); err != nil {
			errs = append(errs, err)
			continue
		}
		r.sum.Written = append(r.sum.Written, rel)
		fmt.Fprintf(r.loop.out(), "✓ %s\n", rel) //nolint:errcheck // progress output
	}
	return errors.Join(errs...)
}

// StripCodeFence removes a Markdown code fence wrapped around the whole of
// s, as models often do for YAML answers. Other text is returned trimmed.
func StripCodeFence(s string) string {
	t := strings.TrimSpace(s)
	if !strings.HasPrefix(t, "```") || !strings.HasSuffix(t, "```") || len(t) < 6 {
		return t
	}
	nl := strings.IndexByte(t, '\n')
	if nl < 0 {
		return t
	}
	return strings.TrimSpace(t[nl+1 : len(t)-3])
}
