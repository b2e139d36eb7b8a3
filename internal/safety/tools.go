package safety

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ImageGeneratorCommand is the local diffusion CLI used for media images.
const ImageGeneratorCommand = "mflux-generate"

// ImageOptions are the mflux-generate sampling settings.
type ImageOptions struct {
	Width    int
	Height   int
	Steps    int
	Quantize int
	Seed     *int
}

// DefaultImageOptions returns the settings used when none are configured.
func DefaultImageOptions() ImageOptions {
	return ImageOptions{
		Width:    1024,
		Height:   1024,
		Steps:    28,
		Quantize: 8,
	}
}

// ImageArgs builds the mflux-generate argument vector.
func ImageArgs(prompt, outPath string, o ImageOptions) []string {
	args := []string{
		"--low-ram",
		"--model", "dev",
		"--steps", strconv.Itoa(o.Steps),
		"--quantize", strconv.Itoa(o.Quantize),
		"--prompt", prompt,
		"--width", strconv.Itoa(o.Width),
		"--height", strconv.Itoa(o.Height),
		"--out", outPath,
	}
	if o.Seed != nil {
		args = append(args, "--seed", strconv.Itoa(*o.Seed))
	}
	return args
}

// ImageGenerator produces PNG files through mflux-generate.
type ImageGenerator struct {
	Runner  *Runner
	Dir     string
	Options ImageOptions
}

// DetectImageGenerator returns a generator when mflux-generate is on PATH
// and allowed, or nil otherwise. lookPath defaults to exec.LookPath.
func DetectImageGenerator(r *Runner, dir string, lookPath func(string) (string, error)) *ImageGenerator {
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	if !r.Allowed(ImageGeneratorCommand) {
		return nil
	}
	if _, err := lookPath(ImageGeneratorCommand); err != nil {
		return nil
	}
	return &ImageGenerator{Runner: r, Dir: dir, Options: DefaultImageOptions()}
}

// Generate renders prompt into outPath.
func (g *ImageGenerator) Generate(ctx context.Context, prompt, outPath string) error {
	if g == nil || g.Runner == nil {
		return ErrImageGeneratorUnavailable
	}
	_, err := g.Runner.Run(ctx, ImageGeneratorCommand, ImageArgs(prompt, outPath, g.Options), RunOptions{Dir: g.Dir})
	if err != nil {
		return fmt.Errorf("generate image %s: %w", filepath.Base(outPath), err)
	}
	return nil
}

// CompileSlides renders Marp decks matching pattern into dir/dist. A pattern
// starting with "-" is rejected so it can never be read as a marp option.
func CompileSlides(ctx context.Context, r *Runner, dir, pattern string) (string, error) {
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		pattern = "slides/*.md"
	}
	if strings.HasPrefix(pattern, "-") {
		return "", fmt.Errorf("%w: %s", ErrInvalidPattern, pattern)
	}
	return r.Run(ctx, "marp", []string{"-o", "dist", "--allow-local-files", "--", pattern}, RunOptions{Dir: dir})
}

// GitCommit stages everything under dir and commits it. A commit with
// nothing to record is not an error; any other failure, including a
// rejecting hook, is.
func GitCommit(ctx context.Context, r *Runner, dir, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		message = "utopian update"
	}
	if _, err := r.Run(ctx, "git", []string{"add", "."}, RunOptions{Dir: dir}); err != nil {
		return "", fmt.Errorf("git add: %w", err)
	}
	out, err := r.Run(ctx, "git", []string{"commit", "-m", message}, RunOptions{Dir: dir})
	if err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) && exitErr.Code == 1 && nothingToCommit(exitErr) {
			return "nothing to commit", nil
		}
		return "", fmt.Errorf("git commit: %w", err)
	}
	return out, nil
}

func nothingToCommit(e *ExitError) bool {
	for _, out := range []string{e.Stdout, e.Stderr} {
		if strings.Contains(out, "nothing to commit") || strings.Contains(out, "nothing added to commit") {
			return true
		}
	}
	return false
}

// StartLMStudio asks the LM Studio CLI to start its local server.
func StartLMStudio(ctx context.Context, r *Runner) error {
	if _, err := r.Run(ctx, "lms", []string{"server", "start"}, RunOptions{}); err != nil {
		return fmt.Errorf("start lm studio: %w", err)
	}
	return nil
}
