package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/core-nexus/utopian/internal/config"
	"github.com/core-nexus/utopian/internal/hitl"
	"github.com/core-nexus/utopian/internal/llm"
	"github.com/core-nexus/utopian/internal/safety"
	"github.com/core-nexus/utopian/internal/topic"
)

type stubChat struct{ calls int }

func (s *stubChat) Chat(_ context.Context, _ []llm.Message, _ string) (string, error) {
	s.calls++
	return "1. scaffold the node", nil
}

// setupNode points the CLI at a fresh node with a clean environment and
// resets every flag the run command reads.
func setupNode(t *testing.T) string {
	t.Helper()
	node := t.TempDir()
	t.Setenv("HOME", t.TempDir())
	for _, key := range []string{
		config.EnvConfig, config.EnvVerbose, config.EnvMaxIterations, config.EnvProvider,
		config.EnvBaseURL, config.EnvModel, config.EnvAuto, config.EnvOpenAIKey,
		config.EnvGeminiKey, config.EnvLMStudioBase, config.EnvLMStudioModel, config.EnvLMStudioKey,
	} {
		t.Setenv(key, "")
	}

	nodeDir = node
	verbose = false
	cfgFile = ""
	runBase, runModel, runProvider = "", "", ""
	runAuto, runImages, runCommit, runNoLMS = false, false, false, true
	runDelay, runErrorDelay = 0, 0
	runIterations = 0
	initTopics = false
	configJSON = false
	for _, name := range []string{"iterations", "delay", "error-delay"} {
		if f := rootCmd.Flags().Lookup(name); f != nil {
			f.Changed = false
		}
	}
	t.Cleanup(func() { nodeDir = "." })
	return node
}

func stubChatClient(t *testing.T) *stubChat {
	t.Helper()
	chat := &stubChat{}
	orig := newChatClient
	newChatClient = func(llm.Config) (llm.Client, error) { return chat, nil }
	t.Cleanup(func() { newChatClient = orig })
	return chat
}

// newTestCmd returns a command carrying the run flags. Registering the flags
// resets their variables, so tests set run options after calling it. LM
// Studio start-up is off unless a test turns it on.
func newTestCmd(in string) (*cobra.Command, *bytes.Buffer) {
	var out bytes.Buffer
	cmd := &cobra.Command{}
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader(in))
	cmd.SetContext(context.Background())
	registerRunFlags(cmd)
	runNoLMS = true
	return cmd, &out
}

func TestReportError(t *testing.T) {
	var buf bytes.Buffer
	reportError(&buf, fmt.Errorf("planning: %w", hitl.ErrDeclined))
	assert.Equal(t, "cancelled\n", buf.String())

	buf.Reset()
	reportError(&buf, errors.New("boom"))
	assert.Equal(t, "✗ boom\n", buf.String())
}

func TestRunAgent_AutoScaffoldOnly(t *testing.T) {
	node := setupNode(t)
	chat := stubChatClient(t)

	cmd, out := newTestCmd("")
	runAuto = true
	require.NoError(t, cmd.Flags().Set("iterations", "0"))

	require.NoError(t, runAgent(cmd, nil))

	assert.Equal(t, 1, chat.calls)
	for _, rel := range []string{
		"goals/README.md",
		"foundations/index.yaml",
		"trust/known_nodes.yaml",
		"reports/utopia-report.md",
		"topics/digital-rights/docs/overview.md",
		".utopia/hitl/01-planning.md",
		".utopia/hitl/99-finalize.md",
	} {
		assert.FileExists(t, filepath.Join(node, rel))
	}
	assert.Contains(t, out.String(), "=== Run Summary ===")
	assert.Contains(t, out.String(), "Topics:  3 created")
}

func TestRunAgent_DeclinedPlanning(t *testing.T) {
	node := setupNode(t)
	chat := stubChatClient(t)

	cmd, _ := newTestCmd("n\n")
	err := runAgent(cmd, nil)

	require.ErrorIs(t, err, hitl.ErrDeclined)
	assert.Equal(t, 0, chat.calls)
	assert.FileExists(t, filepath.Join(node, ".utopia", "hitl", "01-planning.md"))
	assert.NoFileExists(t, filepath.Join(node, "goals", "README.md"))
}

func TestRunAgent_AutoFromEnv(t *testing.T) {
	setupNode(t)
	stubChatClient(t)
	t.Setenv(config.EnvAuto, "1")
	t.Setenv(config.EnvMaxIterations, "0")

	cmd, out := newTestCmd("")
	require.NoError(t, runAgent(cmd, nil))
	assert.Contains(t, out.String(), "auto-continue")
}

func TestRunAgent_InvalidProvider(t *testing.T) {
	setupNode(t)
	stubChatClient(t)

	cmd, _ := newTestCmd("")
	runProvider = "claude"
	err := runAgent(cmd, nil)
	require.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestRunAgent_StartsLMStudioOnlyForLocal(t *testing.T) {
	setupNode(t)
	stubChatClient(t)

	started := 0
	orig := startLMStudio
	startLMStudio = func(context.Context, *safety.Runner) error {
		started++
		return errors.New("lms not installed")
	}
	t.Cleanup(func() { startLMStudio = orig })

	cmd, _ := newTestCmd("")
	runAuto, runNoLMS = true, false
	require.NoError(t, cmd.Flags().Set("iterations", "0"))
	require.NoError(t, runAgent(cmd, nil), "a failed lms start is not fatal")
	assert.Equal(t, 1, started)

	t.Setenv(config.EnvOpenAIKey, "sk-test")
	cmd, _ = newTestCmd("")
	runAuto, runNoLMS = true, false
	require.NoError(t, cmd.Flags().Set("iterations", "0"))
	require.NoError(t, runAgent(cmd, nil))
	assert.Equal(t, 1, started, "no LM Studio for a cloud endpoint")
}

func TestRunAgent_ImagesDisabledWithoutGenerator(t *testing.T) {
	setupNode(t)
	stubChatClient(t)

	orig := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	t.Cleanup(func() { lookPath = orig })

	cmd, out := newTestCmd("")
	runAuto, runImages = true, true
	require.NoError(t, cmd.Flags().Set("iterations", "0"))
	require.NoError(t, runAgent(cmd, nil))
	assert.Contains(t, out.String(), "mflux-generate not found")
}

func TestFlagOverrides(t *testing.T) {
	setupNode(t)
	cmd, _ := newTestCmd("")

	o := flagOverrides(cmd)
	assert.Nil(t, o.Loop.Iterations, "unset --iterations keeps lower layers")

	require.NoError(t, cmd.Flags().Set("iterations", "0"))
	require.NoError(t, cmd.Flags().Set("model", "m"))
	require.NoError(t, cmd.Flags().Set("delay", "5s"))
	o = flagOverrides(cmd)
	require.NotNil(t, o.Loop.Iterations)
	assert.Equal(t, 0, *o.Loop.Iterations)
	assert.Equal(t, "m", o.Model)
	require.NotNil(t, o.Loop.Delay)
	assert.Equal(t, 5*time.Second, *o.Loop.Delay)
	assert.Nil(t, o.Loop.ErrorDelay, "unset --error-delay keeps lower layers")

	require.NoError(t, cmd.Flags().Set("error-delay", "0s"))
	o = flagOverrides(cmd)
	require.NotNil(t, o.Loop.ErrorDelay)
	assert.Equal(t, time.Duration(0), *o.Loop.ErrorDelay)
}

func TestRunInit(t *testing.T) {
	node := setupNode(t)
	initTopics = true

	var out bytes.Buffer
	initCmd.SetOut(&out)
	t.Cleanup(func() { initCmd.SetOut(nil) })

	require.NoError(t, runInit(initCmd, nil))
	assert.FileExists(t, filepath.Join(node, "goals", "README.md"))
	assert.FileExists(t, filepath.Join(node, "topics", "climate-action", "slides", "presentation.md"))
	assert.Contains(t, out.String(), "✓ topic climate-action")

	out.Reset()
	require.NoError(t, runInit(initCmd, nil))
	assert.Contains(t, out.String(), "- kept goals/README.md")
	assert.NotContains(t, out.String(), "✓ topic")
}

func TestRunTopicListAndRead(t *testing.T) {
	node := setupNode(t)

	var out bytes.Buffer
	topicListCmd.SetOut(&out)
	topicReadCmd.SetOut(&out)
	t.Cleanup(func() {
		topicListCmd.SetOut(nil)
		topicReadCmd.SetOut(nil)
	})

	require.NoError(t, runTopicList(topicListCmd, nil))
	assert.Contains(t, out.String(), "No topics yet")

	dir := filepath.Join(node, "topics", "ocean-health")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "topic.md"),
		[]byte("---\ntitle: Ocean Health\n---\n# Oceans\n\nProtect reefs.\n"), 0o644))

	out.Reset()
	require.NoError(t, runTopicList(topicListCmd, nil))
	assert.Contains(t, out.String(), "ocean-health")
	assert.Contains(t, out.String(), "Ocean Health")

	out.Reset()
	require.NoError(t, runTopicRead(topicReadCmd, []string{"ocean-health"}))
	assert.NotContains(t, out.String(), "title: Ocean Health")
	assert.Contains(t, out.String(), "Protect reefs.")

	require.Error(t, runTopicRead(topicReadCmd, []string{"../etc"}))
	require.Error(t, runTopicRead(topicReadCmd, []string{"missing-topic"}))
}

func TestRunTopicNew(t *testing.T) {
	node := setupNode(t)
	topicSlug, topicDescription, topicTags = "", "Clean water for everyone", nil
	t.Cleanup(func() { topicDescription = "" })

	var out bytes.Buffer
	topicNewCmd.SetOut(&out)
	t.Cleanup(func() { topicNewCmd.SetOut(nil) })

	require.NoError(t, runTopicNew(topicNewCmd, []string{"Water Access for All"}))
	assert.Contains(t, out.String(), "✓ topic water-access-for-all")
	assert.FileExists(t, filepath.Join(node, "topics", "water-access-for-all", "docs", "overview.md"))

	out.Reset()
	require.NoError(t, runTopicList(topicNewCmd, nil))
	assert.Contains(t, out.String(), "Water Access for All")

	out.Reset()
	require.NoError(t, runTopicNew(topicNewCmd, []string{"Water Access for All"}))
	assert.Contains(t, out.String(), "already exists")

	topicSlug = "Bad Slug"
	t.Cleanup(func() { topicSlug = "" })
	require.ErrorIs(t, runTopicNew(topicNewCmd, []string{"Anything"}), topic.ErrInvalidSlug)
}

func TestRunConfigJSON(t *testing.T) {
	setupNode(t)
	configJSON = true
	t.Setenv(config.EnvAuto, "1")

	var out bytes.Buffer
	configCmd.SetOut(&out)
	t.Cleanup(func() { configCmd.SetOut(nil) })

	require.NoError(t, runConfig(configCmd, nil))

	var got map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	auto := got["auto"].(map[string]any)
	assert.Equal(t, true, auto["value"])
	assert.Equal(t, "environment", auto["source"])
	base := got["base_url"].(map[string]any)
	assert.Equal(t, llm.LMStudioBaseURL, base["value"])
}

func TestRunSlides_RejectsEscapingPattern(t *testing.T) {
	setupNode(t)
	slidesPattern = "../*.md"
	t.Cleanup(func() { slidesPattern = DefaultSlidesPattern })

	err := runSlides(slidesCmd, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "escapes")
}

func TestRunSlides_RejectsOptionPattern(t *testing.T) {
	setupNode(t)
	slidesPattern = "--engine=evil.js"
	t.Cleanup(func() { slidesPattern = DefaultSlidesPattern })

	err := runSlides(slidesCmd, nil)
	require.ErrorIs(t, err, safety.ErrInvalidPattern)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })

	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "utopian version "+version)
}
