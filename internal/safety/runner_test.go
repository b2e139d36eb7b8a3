package safety

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRunner_DisallowedCommandNeverSpawns(t *testing.T) {
	r := NewRunner()
	spawned := false
	r.execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		spawned = true
		return exec.CommandContext(ctx, "true")
	}

	marker := filepath.Join(t.TempDir(), "marker")
	_, err := r.Run(context.Background(), "touch", []string{marker}, RunOptions{})

	if !errors.Is(err, ErrCommandNotAllowed) {
		t.Fatalf("Run() error = %v, want ErrCommandNotAllowed", err)
	}
	if !strings.Contains(err.Error(), "touch") {
		t.Errorf("error %q should name the command", err)
	}
	if spawned {
		t.Error("exec must not be reached for a disallowed command")
	}
	if _, statErr := os.Stat(marker); !os.IsNotExist(statErr) {
		t.Errorf("disallowed command must have no side effect, stat err = %v", statErr)
	}
}

func TestRunner_Allowed(t *testing.T) {
	r := NewRunner()
	for _, name := range []string{"marp", "ffmpeg", "git", "mflux-generate", "lms"} {
		if !r.Allowed(name) {
			t.Errorf("Allowed(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"", "rm", "sh", "/usr/bin/git", "./git", `bin\git`} {
		if r.Allowed(name) {
			t.Errorf("Allowed(%q) = true, want false", name)
		}
	}
}

func TestRunner_SuccessTrimsStdout(t *testing.T) {
	r := NewRunner(WithAllowList("sh"))

	out, err := r.Run(context.Background(), "sh", []string{"-c", "echo '  hello  '; echo noise >&2"}, RunOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if out != "hello" {
		t.Errorf("Run() = %q, want %q", out, "hello")
	}
}

func TestRunner_NonZeroExitCarriesStderr(t *testing.T) {
	r := NewRunner(WithAllowList("sh"))

	_, err := r.Run(context.Background(), "sh", []string{"-c", "echo partial; echo 'boom happened' >&2; exit 3"}, RunOptions{})
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		t.Fatalf("Run() error = %v, want *ExitError", err)
	}
	if exitErr.Code != 3 || exitErr.Stderr != "boom happened" || exitErr.Stdout != "partial" {
		t.Errorf("ExitError = %+v", exitErr)
	}
	if err.Error() != "boom happened" {
		t.Errorf("Error() = %q, want stderr", err.Error())
	}
}

func TestRunner_NonZeroExitWithoutStderr(t *testing.T) {
	r := NewRunner(WithAllowList("sh"))

	_, err := r.Run(context.Background(), "sh", []string{"-c", "exit 4"}, RunOptions{})
	if err == nil || err.Error() != "exit 4" {
		t.Errorf("Run() error = %v, want \"exit 4\"", err)
	}
}

func TestRunner_UsesWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	r := NewRunner(WithAllowList("sh"))

	out, err := r.Run(context.Background(), "sh", []string{"-c", "pwd -P"}, RunOptions{Dir: dir})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	want, err := filepath.EvalSymlinks(dir)
	if err != nil {
		t.Fatal(err)
	}
	if out != want {
		t.Errorf("working directory = %q, want %q", out, want)
	}
}

func TestImageArgs(t *testing.T) {
	args := ImageArgs("a green city", "media/images/x.png", DefaultImageOptions())
	want := []string{
		"--low-ram", "--model", "dev",
		"--steps", "28", "--quantize", "8",
		"--prompt", "a green city",
		"--width", "1024", "--height", "1024",
		"--out", "media/images/x.png",
	}
	if diff := cmp.Diff(want, args); diff != "" {
		t.Errorf("ImageArgs() mismatch (-want +got):\n%s", diff)
	}

	seed := 42
	opts := DefaultImageOptions()
	opts.Seed = &seed
	args = ImageArgs("p", "o.png", opts)
	if diff := cmp.Diff([]string{"--seed", "42"}, args[len(args)-2:]); diff != "" {
		t.Errorf("seed args mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectImageGenerator(t *testing.T) {
	r := NewRunner()

	missing := func(string) (string, error) { return "", exec.ErrNotFound }
	if g := DetectImageGenerator(r, "", missing); g != nil {
		t.Errorf("DetectImageGenerator() without binary = %+v, want nil", g)
	}

	found := func(string) (string, error) { return "/opt/bin/mflux-generate", nil }
	g := DetectImageGenerator(r, "/node", found)
	if g == nil {
		t.Fatal("DetectImageGenerator() = nil, want a generator")
	}
	if g.Dir != "/node" {
		t.Errorf("Dir = %q, want /node", g.Dir)
	}

	restricted := NewRunner(WithAllowList("git"))
	if g := DetectImageGenerator(restricted, "", found); g != nil {
		t.Errorf("DetectImageGenerator() outside allow-list = %+v, want nil", g)
	}
}

func TestImageGenerator_NilIsUnavailable(t *testing.T) {
	var g *ImageGenerator
	if err := g.Generate(context.Background(), "p", "o.png"); !errors.Is(err, ErrImageGeneratorUnavailable) {
		t.Errorf("Generate() error = %v, want ErrImageGeneratorUnavailable", err)
	}
}

// scriptedRunner routes every allowed command to a shell snippet chosen by
// the first argument, recording the invocations.
func scriptedRunner(t *testing.T, scripts map[string]string) (*Runner, *[]string) {
	t.Helper()
	var calls []string
	r := NewRunner()
	r.execCommand = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, name+" "+strings.Join(args, " "))
		script, ok := scripts[args[0]]
		if !ok {
			script = "exit 0"
		}
		return exec.CommandContext(ctx, "sh", "-c", script)
	}
	return r, &calls
}

func TestGitCommit(t *testing.T) {
	r, calls := scriptedRunner(t, map[string]string{"commit": "echo '[main abc123] utopian update'"})

	out, err := GitCommit(context.Background(), r, t.TempDir(), "")
	if err != nil {
		t.Fatalf("GitCommit() error = %v", err)
	}
	if out != "[main abc123] utopian update" {
		t.Errorf("GitCommit() = %q", out)
	}
	if diff := cmp.Diff([]string{"git add .", "git commit -m utopian update"}, *calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestGitCommit_NothingToCommit(t *testing.T) {
	r, _ := scriptedRunner(t, map[string]string{"commit": "echo 'nothing to commit, working tree clean'; exit 1"})

	out, err := GitCommit(context.Background(), r, t.TempDir(), "msg")
	if err != nil {
		t.Fatalf("GitCommit() error = %v", err)
	}
	if out != "nothing to commit" {
		t.Errorf("GitCommit() = %q, want %q", out, "nothing to commit")
	}
}

func TestGitCommit_RejectingHookIsAnError(t *testing.T) {
	r, _ := scriptedRunner(t, map[string]string{"commit": "echo 'pre-commit: trailing whitespace' >&2; exit 1"})

	_, err := GitCommit(context.Background(), r, t.TempDir(), "msg")
	if err == nil || !strings.Contains(err.Error(), "trailing whitespace") {
		t.Errorf("GitCommit() error = %v, want the hook's failure", err)
	}
}

func TestGitCommit_AddFails(t *testing.T) {
	r, calls := scriptedRunner(t, map[string]string{"add": "echo 'not a git repository' >&2; exit 128"})

	_, err := GitCommit(context.Background(), r, t.TempDir(), "msg")
	if err == nil || !strings.Contains(err.Error(), "not a git repository") {
		t.Errorf("GitCommit() error = %v, want the add failure", err)
	}
	if len(*calls) != 1 {
		t.Errorf("calls = %v, want only git add", *calls)
	}
}

func TestCompileSlides_DefaultPattern(t *testing.T) {
	r, calls := scriptedRunner(t, nil)

	if _, err := CompileSlides(context.Background(), r, t.TempDir(), ""); err != nil {
		t.Fatalf("CompileSlides() error = %v", err)
	}
	if diff := cmp.Diff([]string{"marp -o dist --allow-local-files -- slides/*.md"}, *calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestCompileSlides_PatternNeverBecomesAnOption(t *testing.T) {
	r, calls := scriptedRunner(t, nil)

	for _, pattern := range []string{"--engine=/tmp/evil.js", "-c", " --config-file=x.js"} {
		if _, err := CompileSlides(context.Background(), r, t.TempDir(), pattern); !errors.Is(err, ErrInvalidPattern) {
			t.Errorf("CompileSlides(%q) error = %v, want ErrInvalidPattern", pattern, err)
		}
	}
	if len(*calls) != 0 {
		t.Fatalf("marp ran for a rejected pattern: %v", *calls)
	}

	if _, err := CompileSlides(context.Background(), r, t.TempDir(), "topics/*/slides/*.md"); err != nil {
		t.Fatalf("CompileSlides() error = %v", err)
	}
	if diff := cmp.Diff([]string{"marp -o dist --allow-local-files -- topics/*/slides/*.md"}, *calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}
