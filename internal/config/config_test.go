package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/core-nexus/utopian/internal/generate"
	"github.com/core-nexus/utopian/internal/llm"
)

// isolate points every config source at empty temp locations and clears the
// environment variables the package reads.
func isolate(t *testing.T) (home, node string) {
	t.Helper()
	home = t.TempDir()
	node = t.TempDir()
	t.Setenv("HOME", home)
	for _, key := range []string{
		EnvConfig, EnvVerbose, EnvMaxIterations, EnvProvider, EnvBaseURL, EnvModel,
		EnvAuto, EnvOpenAIKey, EnvGeminiKey, EnvLMStudioBase, EnvLMStudioModel, EnvLMStudioKey,
	} {
		t.Setenv(key, "")
	}
	return home, node
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func intPtr(n int) *int { return &n }

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Provider != llm.ProviderOpenAI {
		t.Errorf("Default Provider = %q, want %q", cfg.Provider, llm.ProviderOpenAI)
	}
	if cfg.Iterations() != generate.DefaultMaxIterations {
		t.Errorf("Default Iterations = %d, want %d", cfg.Iterations(), generate.DefaultMaxIterations)
	}
	if cfg.Delay() != 2*time.Second || cfg.ErrorDelay() != 10*time.Second {
		t.Errorf("Default delays = %s/%s, want 2s/10s", cfg.Delay(), cfg.ErrorDelay())
	}
	if cfg.Auto || cfg.Verbose || cfg.Commit {
		t.Error("Default booleans should all be false")
	}
}

func TestLoad_LocalDefaults(t *testing.T) {
	_, node := isolate(t)

	cfg, err := Load(node, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != llm.LMStudioBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, llm.LMStudioBaseURL)
	}
	if cfg.Model != DefaultLMStudioModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultLMStudioModel)
	}
	if !cfg.IsLocal() {
		t.Error("IsLocal = false for the LM Studio default")
	}
}

func TestLoad_LMStudioEnv(t *testing.T) {
	_, node := isolate(t)
	t.Setenv(EnvLMStudioBase, "http://127.0.0.1:1234/v1")
	t.Setenv(EnvLMStudioModel, "qwen/qwen3-8b")
	t.Setenv(EnvLMStudioKey, "local-key")

	cfg, err := Load(node, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != "http://127.0.0.1:1234/v1" || cfg.Model != "qwen/qwen3-8b" || cfg.APIKey != "local-key" {
		t.Errorf("got base=%q model=%q key=%q", cfg.BaseURL, cfg.Model, cfg.APIKey)
	}
}

func TestLoad_OpenAIKeySelectsCloud(t *testing.T) {
	_, node := isolate(t)
	t.Setenv(EnvOpenAIKey, "sk-test")
	t.Setenv(EnvLMStudioBase, "http://localhost:9999/v1")

	cfg, err := Load(node, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != llm.OpenAIBaseURL {
		t.Errorf("BaseURL = %q, want %q", cfg.BaseURL, llm.OpenAIBaseURL)
	}
	if cfg.Model != DefaultOpenAIModel {
		t.Errorf("Model = %q, want %q", cfg.Model, DefaultOpenAIModel)
	}
	if cfg.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.APIKey)
	}
	if cfg.IsLocal() {
		t.Error("IsLocal = true for OpenAI")
	}
}

func TestLoad_Gemini(t *testing.T) {
	_, node := isolate(t)
	t.Setenv(EnvGeminiKey, "g-key")

	cfg, err := Load(node, &Config{Provider: "Gemini"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != llm.ProviderGemini || cfg.Model != llm.DefaultGemini || cfg.APIKey != "g-key" {
		t.Errorf("got provider=%q model=%q key=%q", cfg.Provider, cfg.Model, cfg.APIKey)
	}
	got := cfg.LLM()
	if got.Provider != llm.ProviderGemini || got.APIKey != "g-key" {
		t.Errorf("LLM() = %+v", got)
	}
}

func TestLoad_Precedence(t *testing.T) {
	home, node := isolate(t)
	writeFile(t, filepath.Join(home, ".utopian", "config.yaml"), `
model: home-model
base_url: http://home/v1
loop:
  delay: 30s
`)
	writeFile(t, filepath.Join(node, ".utopia", "config.yaml"), `
model: node-model
commit: true
loop:
  iterations: 3
  error_delay: 1m
`)
	t.Setenv(EnvModel, "env-model")

	cfg, err := Load(node, &Config{BaseURL: "http://flag/v1"})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "env-model" {
		t.Errorf("Model = %q, want env-model", cfg.Model)
	}
	if cfg.BaseURL != "http://flag/v1" {
		t.Errorf("BaseURL = %q, want http://flag/v1", cfg.BaseURL)
	}
	if !cfg.Commit {
		t.Error("Commit from node config not applied")
	}
	if cfg.Iterations() != 3 {
		t.Errorf("Iterations = %d, want 3", cfg.Iterations())
	}
	if cfg.Delay() != 30*time.Second || cfg.ErrorDelay() != time.Minute {
		t.Errorf("delays = %s/%s, want 30s/1m", cfg.Delay(), cfg.ErrorDelay())
	}
}

func TestLoad_ExplicitZeroIterations(t *testing.T) {
	_, node := isolate(t)

	cfg, err := Load(node, &Config{Loop: LoopConfig{Iterations: intPtr(0)}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Iterations() != 0 {
		t.Errorf("Iterations = %d, want 0", cfg.Iterations())
	}
}

func TestLoad_ExplicitZeroDelays(t *testing.T) {
	home, node := isolate(t)
	writeFile(t, filepath.Join(home, ".utopian", "config.yaml"), `
loop:
  delay: 30s
  error_delay: 1m
`)
	zero := time.Duration(0)

	cfg, err := Load(node, &Config{Loop: LoopConfig{Delay: &zero, ErrorDelay: &zero}})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Delay() != 0 || cfg.ErrorDelay() != 0 {
		t.Errorf("delays = %s/%s, want 0s/0s", cfg.Delay(), cfg.ErrorDelay())
	}
	if opts := cfg.LoopOptions(); opts.Delay != 0 || opts.ErrorDelay != 0 {
		t.Errorf("LoopOptions delays = %s/%s, want 0s/0s", opts.Delay, opts.ErrorDelay)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	_, node := isolate(t)
	t.Setenv(EnvAuto, "1")
	t.Setenv(EnvVerbose, "true")
	t.Setenv(EnvMaxIterations, "7")

	cfg, err := Load(node, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Auto || !cfg.Verbose {
		t.Errorf("Auto=%v Verbose=%v, want both true", cfg.Auto, cfg.Verbose)
	}
	if cfg.Iterations() != 7 {
		t.Errorf("Iterations = %d, want 7", cfg.Iterations())
	}
	if opts := cfg.LoopOptions(); opts.MaxIterations != 7 || opts.Model != cfg.Model {
		t.Errorf("LoopOptions = %+v", opts)
	}
}

func TestLoad_ConfigOverridePath(t *testing.T) {
	_, node := isolate(t)
	custom := filepath.Join(t.TempDir(), "custom.yaml")
	writeFile(t, custom, "model: custom-model\n")
	t.Setenv(EnvConfig, custom)

	cfg, err := Load(node, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Model != "custom-model" {
		t.Errorf("Model = %q, want custom-model", cfg.Model)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(t *testing.T, node string)
		flags   *Config
		invalid bool
	}{
		{
			name:    "unknown provider",
			flags:   &Config{Provider: "anthropic"},
			invalid: true,
		},
		{
			name:    "iterations above ceiling",
			flags:   &Config{Loop: LoopConfig{Iterations: intPtr(generate.MaxIterationsCeiling + 1)}},
			invalid: true,
		},
		{
			name:    "negative iterations",
			flags:   &Config{Loop: LoopConfig{Iterations: intPtr(-1)}},
			invalid: true,
		},
		{
			name:    "bad iteration env",
			setup:   func(t *testing.T, _ string) { t.Setenv(EnvMaxIterations, "many") },
			invalid: true,
		},
		{
			name: "malformed node config",
			setup: func(t *testing.T, node string) {
				writeFile(t, filepath.Join(node, ".utopia", "config.yaml"), "model: [unterminated\n")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, node := isolate(t)
			if tt.setup != nil {
				tt.setup(t, node)
			}
			_, err := Load(node, tt.flags)
			if err == nil {
				t.Fatal("Load succeeded, want error")
			}
			if tt.invalid && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	dst := Default()
	src := &Config{Model: "m", Auto: true, Loop: LoopConfig{Images: true}}

	result := merge(dst, src)

	if result.Model != "m" || !result.Auto || !result.Loop.Images {
		t.Errorf("merge did not apply overrides: %+v", result)
	}
	// Defaults should be preserved when not overridden
	if result.Iterations() != generate.DefaultMaxIterations {
		t.Errorf("merge preserved Iterations = %d, want %d", result.Iterations(), generate.DefaultMaxIterations)
	}
	if result.MaxTokens != llm.DefaultMaxTokens {
		t.Errorf("merge preserved MaxTokens = %d, want %d", result.MaxTokens, llm.DefaultMaxTokens)
	}
}

func TestResolveStringField(t *testing.T) {
	tests := []struct {
		name                          string
		home, project, env, flag, def string
		wantValue                     string
		wantSource                    Source
	}{
		{"default only", "", "", "", "", "d", "d", SourceDefault},
		{"home", "h", "", "", "", "d", "h", SourceHome},
		{"project beats home", "h", "p", "", "", "d", "p", SourceProject},
		{"env beats project", "h", "p", "e", "", "d", "e", SourceEnv},
		{"flag beats all", "h", "p", "e", "f", "d", "f", SourceFlag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveStringField(tt.home, tt.project, tt.env, tt.flag, tt.def)
			if got.Value != tt.wantValue || got.Source != tt.wantSource {
				t.Errorf("got %v from %s, want %v from %s", got.Value, got.Source, tt.wantValue, tt.wantSource)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	_, node := isolate(t)
	writeFile(t, filepath.Join(node, ".utopia", "config.yaml"), "loop:\n  iterations: 4\n")
	t.Setenv(EnvAuto, "1")

	rc := Resolve(node, &Config{Model: "flag-model"})

	if rc.Model.Value != "flag-model" || rc.Model.Source != SourceFlag {
		t.Errorf("Model = %v from %s", rc.Model.Value, rc.Model.Source)
	}
	if rc.BaseURL.Value != llm.LMStudioBaseURL || rc.BaseURL.Source != SourceDefault {
		t.Errorf("BaseURL = %v from %s", rc.BaseURL.Value, rc.BaseURL.Source)
	}
	if rc.Iterations.Value != 4 || rc.Iterations.Source != SourceProject {
		t.Errorf("Iterations = %v from %s", rc.Iterations.Value, rc.Iterations.Source)
	}
	if rc.Auto.Value != true || rc.Auto.Source != SourceEnv {
		t.Errorf("Auto = %v from %s", rc.Auto.Value, rc.Auto.Source)
	}
	if rc.Verbose.Value != false || rc.Verbose.Source != SourceDefault {
		t.Errorf("Verbose = %v from %s", rc.Verbose.Value, rc.Verbose.Source)
	}
	if rc.ConfigFile != filepath.Join(node, ".utopia", "config.yaml") {
		t.Errorf("ConfigFile = %q", rc.ConfigFile)
	}
}
