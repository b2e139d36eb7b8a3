// Package config provides configuration management for utopian.
// Configuration is loaded from (highest to lowest priority):
// 1. Command-line flags
// 2. Environment variables (UTOPIAN_*, AUTO, provider API keys)
// 3. Node config (.utopia/config.yaml in the node, or UTOPIAN_CONFIG)
// 4. Home config (~/.utopian/config.yaml)
// 5. Defaults
//
// The chat endpoint and model defaults depend on which API keys are present:
// with OPENAI_API_KEY the agent talks to OpenAI, otherwise to a local LM
// Studio server (LMSTUDIO_BASE_URL, LMSTUDIO_MODEL).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/core-nexus/utopian/internal/generate"
	"github.com/core-nexus/utopian/internal/llm"
	"github.com/core-nexus/utopian/internal/storage"
)

// Config holds all utopian configuration.
type Config struct {
	// Provider selects the chat backend (openai, gemini).
	Provider string `yaml:"provider" json:"provider"`

	// BaseURL is the OpenAI-compatible endpoint. Ignored for gemini.
	BaseURL string `yaml:"base_url" json:"base_url"`

	// Model is the model identifier sent with every request.
	Model string `yaml:"model" json:"model"`

	// APIKey is only ever read from the environment.
	APIKey string `yaml:"-" json:"-"`

	// MaxTokens bounds each completion.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`

	// Timeout bounds each chat request.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Auto skips every human-in-the-loop checkpoint.
	Auto bool `yaml:"auto" json:"auto"`

	// Verbose enables verbose output and debug logging.
	Verbose bool `yaml:"verbose" json:"verbose"`

	// Commit records the node with git after the finalize checkpoint.
	Commit bool `yaml:"commit" json:"commit"`

	// NoLMS disables starting the LM Studio server for local endpoints.
	NoLMS bool `yaml:"no_lms" json:"no_lms"`

	// Loop settings
	Loop LoopConfig `yaml:"loop" json:"loop"`
}

// LoopConfig holds generation loop settings.
type LoopConfig struct {
	// Iterations is the number of generation cycles. Zero skips generation.
	// Nil means "not set" so an explicit 0 survives merging.
	Iterations *int `yaml:"iterations,omitempty" json:"iterations,omitempty"`

	// Delay separates successful cycles. Nil means "not set", like
	// Iterations, so an explicit 0 disables the pause.
	Delay *time.Duration `yaml:"delay,omitempty" json:"delay,omitempty"`

	// ErrorDelay separates a failed cycle from the next.
	ErrorDelay *time.Duration `yaml:"error_delay,omitempty" json:"error_delay,omitempty"`

	// Images enables the image phase when mflux-generate is installed.
	Images bool `yaml:"images" json:"images"`
}

// Default model identifiers.
const (
	DefaultOpenAIModel   = "gpt-5"
	DefaultLMStudioModel = "openai/gpt-oss-20b"
)

// Environment variables read by the config layer.
const (
	EnvConfig        = "UTOPIAN_CONFIG"
	EnvVerbose       = "UTOPIAN_VERBOSE"
	EnvMaxIterations = "UTOPIAN_MAX_ITERATIONS"
	EnvProvider      = "UTOPIAN_PROVIDER"
	EnvBaseURL       = "UTOPIAN_BASE_URL"
	EnvModel         = "UTOPIAN_MODEL"
	EnvAuto          = "AUTO"
	EnvOpenAIKey     = "OPENAI_API_KEY"
	EnvGeminiKey     = "GEMINI_API_KEY"
	EnvLMStudioBase  = "LMSTUDIO_BASE_URL"
	EnvLMStudioModel = "LMSTUDIO_MODEL"
	EnvLMStudioKey   = "LMSTUDIO_API_KEY"
)

// ProjectConfigFile is the node-local config path, relative to the node root.
var ProjectConfigFile = filepath.Join(storage.StateDir, "config.yaml")

// ErrInvalidConfig is returned when a resolved value is out of range.
var ErrInvalidConfig = errors.New("invalid configuration")

// Default returns the default configuration. Endpoint, model and key are
// left empty; they are derived from the environment by finalize.
func Default() *Config {
	iterations := generate.DefaultMaxIterations
	delay, errorDelay := generate.DefaultDelay, generate.DefaultErrorDelay
	return &Config{
		Provider:  llm.ProviderOpenAI,
		MaxTokens: llm.DefaultMaxTokens,
		Timeout:   llm.DefaultTimeout,
		Loop: LoopConfig{
			Iterations: &iterations,
			Delay:      &delay,
			ErrorDelay: &errorDelay,
		},
	}
}

// Load loads configuration for the node at dir with proper precedence.
// Priority: flags > env > node > home > defaults.
// Missing config files are ignored; malformed ones are errors.
func Load(dir string, flagOverrides *Config) (*Config, error) {
	cfg := Default()

	homeConfig, err := loadFromPath(homeConfigPath())
	if err != nil {
		return nil, err
	}
	if homeConfig != nil {
		cfg = merge(cfg, homeConfig)
	}

	projectConfig, err := loadFromPath(projectConfigPath(dir))
	if err != nil {
		return nil, err
	}
	if projectConfig != nil {
		cfg = merge(cfg, projectConfig)
	}

	envConfig, err := fromEnv()
	if err != nil {
		return nil, err
	}
	cfg = merge(cfg, envConfig)

	if flagOverrides != nil {
		cfg = merge(cfg, flagOverrides)
	}

	finalize(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// homeConfigPath returns the home config path.
func homeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".utopian", "config.yaml")
}

// projectConfigPath returns the node config path.
func projectConfigPath(dir string) string {
	if override := strings.TrimSpace(os.Getenv(EnvConfig)); override != "" {
		return override
	}
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return ""
		}
		dir = cwd
	}
	return filepath.Join(dir, ProjectConfigFile)
}

// loadFromPath loads config from a YAML file. A missing file yields nil.
func loadFromPath(path string) (*Config, error) {
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

// fromEnv collects the explicit overrides set in the environment.
func fromEnv() (*Config, error) {
	cfg := &Config{}
	cfg.Provider, _ = getEnvString(EnvProvider)
	cfg.BaseURL, _ = getEnvString(EnvBaseURL)
	cfg.Model, _ = getEnvString(EnvModel)
	cfg.Verbose, _ = getEnvBool(EnvVerbose)
	cfg.Auto, _ = getEnvBool(EnvAuto)

	if v, ok := getEnvString(EnvMaxIterations); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvMaxIterations, v)
		}
		cfg.Loop.Iterations = &n
	}
	return cfg, nil
}

// finalize fills the endpoint, model and key from the provider and the
// API-key environment variables when nothing more specific was configured.
func finalize(cfg *Config) {
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))

	if cfg.Provider == llm.ProviderGemini {
		if cfg.Model == "" {
			cfg.Model = llm.DefaultGemini
		}
		cfg.APIKey, _ = getEnvString(EnvGeminiKey)
		return
	}

	if key, ok := getEnvString(EnvOpenAIKey); ok {
		cfg.APIKey = key
		if cfg.BaseURL == "" {
			cfg.BaseURL = llm.OpenAIBaseURL
		}
		if cfg.Model == "" {
			cfg.Model = DefaultOpenAIModel
		}
		return
	}

	cfg.APIKey, _ = getEnvString(EnvLMStudioKey)
	if cfg.BaseURL == "" {
		cfg.BaseURL = firstNonEmpty(os.Getenv(EnvLMStudioBase), llm.LMStudioBaseURL)
	}
	if cfg.Model == "" {
		cfg.Model = firstNonEmpty(os.Getenv(EnvLMStudioModel), DefaultLMStudioModel)
	}
}

// Validate checks resolved values.
func (c *Config) Validate() error {
	switch c.Provider {
	case llm.ProviderOpenAI, llm.ProviderGemini:
	default:
		return fmt.Errorf("%w: provider %q (want %s or %s)", ErrInvalidConfig, c.Provider, llm.ProviderOpenAI, llm.ProviderGemini)
	}
	if n := c.Iterations(); n < 0 || n > generate.MaxIterationsCeiling {
		return fmt.Errorf("%w: iterations %d (want 0..%d)", ErrInvalidConfig, n, generate.MaxIterationsCeiling)
	}
	if c.Delay() < 0 || c.ErrorDelay() < 0 {
		return fmt.Errorf("%w: delays must not be negative", ErrInvalidConfig)
	}
	if c.MaxTokens < 0 {
		return fmt.Errorf("%w: max_tokens %d", ErrInvalidConfig, c.MaxTokens)
	}
	return nil
}

// Iterations returns the configured cycle count.
func (c *Config) Iterations() int {
	if c.Loop.Iterations == nil {
		return generate.DefaultMaxIterations
	}
	return *c.Loop.Iterations
}

// Delay returns the pause between successful cycles.
func (c *Config) Delay() time.Duration {
	if c.Loop.Delay == nil {
		return generate.DefaultDelay
	}
	return *c.Loop.Delay
}

// ErrorDelay returns the pause after a cycle with failures.
func (c *Config) ErrorDelay() time.Duration {
	if c.Loop.ErrorDelay == nil {
		return generate.DefaultErrorDelay
	}
	return *c.Loop.ErrorDelay
}

// IsLocal reports whether the chat endpoint is an LM Studio server on this
// machine.
func (c *Config) IsLocal() bool {
	if c.Provider != llm.ProviderOpenAI {
		return false
	}
	return strings.Contains(c.BaseURL, "localhost:1234") || strings.Contains(c.BaseURL, "127.0.0.1:1234")
}

// LLM returns the chat client configuration.
func (c *Config) LLM() llm.Config {
	return llm.Config{
		Provider:  c.Provider,
		BaseURL:   c.BaseURL,
		APIKey:    c.APIKey,
		Model:     c.Model,
		MaxTokens: c.MaxTokens,
		Timeout:   c.Timeout,
	}
}

// LoopOptions returns the generation loop settings.
func (c *Config) LoopOptions() generate.Options {
	return generate.Options{
		MaxIterations: c.Iterations(),
		Model:         c.Model,
		Delay:         c.Delay(),
		ErrorDelay:    c.ErrorDelay(),
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// mergeStr overwrites dst with src when src is non-empty.
func mergeStr(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

// mergeInt overwrites dst with src when src is non-zero.
func mergeInt(dst *int, src int) {
	if src != 0 {
		*dst = src
	}
}

// mergeDuration overwrites dst with src when src is non-zero.
func mergeDuration(dst *time.Duration, src time.Duration) {
	if src != 0 {
		*dst = src
	}
}

// mergeDurationPtr overwrites dst with a copy of src when src is set, zero
// included.
func mergeDurationPtr(dst **time.Duration, src *time.Duration) {
	if src != nil {
		d := *src
		*dst = &d
	}
}

// mergeBool turns dst on when src is on. Booleans are opt-in at every level.
func mergeBool(dst *bool, src bool) {
	if src {
		*dst = true
	}
}

// merge merges src into dst, with src values taking precedence.
func merge(dst, src *Config) *Config {
	mergeStr(&dst.Provider, src.Provider)
	mergeStr(&dst.BaseURL, src.BaseURL)
	mergeStr(&dst.Model, src.Model)
	mergeStr(&dst.APIKey, src.APIKey)
	mergeInt(&dst.MaxTokens, src.MaxTokens)
	mergeDuration(&dst.Timeout, src.Timeout)
	mergeBool(&dst.Auto, src.Auto)
	mergeBool(&dst.Verbose, src.Verbose)
	mergeBool(&dst.Commit, src.Commit)
	mergeBool(&dst.NoLMS, src.NoLMS)

	mergeLoop(&dst.Loop, &src.Loop)

	return dst
}

// mergeLoop merges loop-specific config fields.
func mergeLoop(dst, src *LoopConfig) {
	if src.Iterations != nil {
		n := *src.Iterations
		dst.Iterations = &n
	}
	mergeDurationPtr(&dst.Delay, src.Delay)
	mergeDurationPtr(&dst.ErrorDelay, src.ErrorDelay)
	mergeBool(&dst.Images, src.Images)
}

// Source represents where a config value came from.
type Source string

const (
	SourceDefault Source = "default"
	SourceHome    Source = "~/.utopian/config.yaml"
	SourceProject Source = ".utopia/config.yaml"
	SourceEnv     Source = "environment"
	SourceFlag    Source = "flag"
)

// getEnvString returns the trimmed value and whether the env var was set.
func getEnvString(key string) (string, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	return v, v != ""
}

// getEnvBool returns the boolean value and whether it was truthy.
func getEnvBool(key string) (bool, bool) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "true" || v == "1" {
		return true, true
	}
	return false, false
}

// resolveStringField resolves a string through the precedence chain.
// Returns the resolved value and its source.
func resolveStringField(home, project, env, flag, def string) resolved {
	result := resolved{Value: def, Source: SourceDefault}
	if home != "" {
		result = resolved{Value: home, Source: SourceHome}
	}
	if project != "" {
		result = resolved{Value: project, Source: SourceProject}
	}
	if env != "" {
		result = resolved{Value: env, Source: SourceEnv}
	}
	if flag != "" {
		result = resolved{Value: flag, Source: SourceFlag}
	}
	return result
}

// resolveBoolField resolves a boolean with OR semantics through the chain.
func resolveBoolField(home, project, env, flag bool) resolved {
	result := resolved{Value: false, Source: SourceDefault}
	if home {
		result = resolved{Value: true, Source: SourceHome}
	}
	if project {
		result = resolved{Value: true, Source: SourceProject}
	}
	if env {
		result = resolved{Value: true, Source: SourceEnv}
	}
	if flag {
		result = resolved{Value: true, Source: SourceFlag}
	}
	return result
}

// ResolvedConfig shows config values with their sources.
type ResolvedConfig struct {
	Provider   resolved `json:"provider"`
	BaseURL    resolved `json:"base_url"`
	Model      resolved `json:"model"`
	Iterations resolved `json:"iterations"`
	Auto       resolved `json:"auto"`
	Verbose    resolved `json:"verbose"`
	Commit     resolved `json:"commit"`
	Images     resolved `json:"images"`
	ConfigFile string   `json:"config_file"`
}

type resolved struct {
	Value  interface{} `json:"value"`
	Source Source      `json:"source"`
}

// Resolve returns configuration with source tracking for the node at dir.
// Uses precedence chain: flags > env > node > home > defaults. Unreadable
// config files are treated as absent here; Load reports them.
func Resolve(dir string, flags *Config) *ResolvedConfig {
	home := orEmpty(loadFromPath(homeConfigPath()))
	project := orEmpty(loadFromPath(projectConfigPath(dir)))
	env, err := fromEnv()
	if err != nil {
		env = &Config{}
	}
	if flags == nil {
		flags = &Config{}
	}

	// Derived defaults come from the same logic Load uses.
	derived := Default()
	derived.Provider = resolveStringField(home.Provider, project.Provider, env.Provider, flags.Provider, llm.ProviderOpenAI).Value.(string)
	finalize(derived)

	rc := &ResolvedConfig{
		Provider:   resolveStringField(home.Provider, project.Provider, env.Provider, flags.Provider, llm.ProviderOpenAI),
		BaseURL:    resolveStringField(home.BaseURL, project.BaseURL, env.BaseURL, flags.BaseURL, derived.BaseURL),
		Model:      resolveStringField(home.Model, project.Model, env.Model, flags.Model, derived.Model),
		Iterations: resolved{Value: generate.DefaultMaxIterations, Source: SourceDefault},
		Auto:       resolveBoolField(home.Auto, project.Auto, env.Auto, flags.Auto),
		Verbose:    resolveBoolField(home.Verbose, project.Verbose, env.Verbose, flags.Verbose),
		Commit:     resolveBoolField(home.Commit, project.Commit, env.Commit, flags.Commit),
		Images:     resolveBoolField(home.Loop.Images, project.Loop.Images, env.Loop.Images, flags.Loop.Images),
		ConfigFile: projectConfigPath(dir),
	}

	for _, layer := range []struct {
		cfg    *Config
		source Source
	}{
		{home, SourceHome},
		{project, SourceProject},
		{env, SourceEnv},
		{flags, SourceFlag},
	} {
		if layer.cfg.Loop.Iterations != nil {
			rc.Iterations = resolved{Value: *layer.cfg.Loop.Iterations, Source: layer.source}
		}
	}

	return rc
}

func orEmpty(cfg *Config, err error) *Config {
	if err != nil || cfg == nil {
		return &Config{}
	}
	return cfg
}
