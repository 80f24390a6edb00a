/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/PivotLLM/DeepResearch/global"
)

//go:embed default-config.json
var defaultConfig []byte

// setupDefaultConfig creates a default config file from the embedded default-config.json
func (c *Config) setupDefaultConfig(configPath string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	// Write config file
	if err := os.WriteFile(configPath, defaultConfig, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", configPath, err)
	}

	return nil
}

// Config provides access to application configuration
type Config struct {
	configPath  string      // resolved path to config file
	data        *configData // parsed configuration
	firstRun    bool        // true if config was just created
	corpusDir   string      // resolved corpus directory
	runsDir     string      // resolved checkpoint directory
	reportsDir  string      // resolved report archive directory
	promptsFile string      // resolved prompt override file (optional)
}

// configData holds the parsed configuration (internal)
type configData struct {
	Version     int        `json:"version" toml:"version"`
	BaseDir     string     `json:"base_dir" toml:"base_dir"`
	LLM         LLM        `json:"llm" toml:"llm"`
	Research    Research   `json:"research,omitempty" toml:"research"`
	Retrieval   Retrieval  `json:"retrieval,omitempty" toml:"retrieval"`
	Checkpoint  Checkpoint `json:"checkpoint,omitempty" toml:"checkpoint"`
	ReportsDir  string     `json:"reports_dir,omitempty" toml:"reports_dir"`
	PromptsFile string     `json:"prompts_file,omitempty" toml:"prompts_file"`
	RateLimit   RateLimit  `json:"rate_limit,omitempty" toml:"rate_limit"`
	Logging     Logging    `json:"logging" toml:"logging"`
}

// LLM represents the text-completion provider configuration
type LLM struct {
	// Type specifies the provider type: "openai" (any OpenAI-compatible endpoint) or "command"
	Type string `json:"type,omitempty" toml:"type"`

	BaseURL     string  `json:"base_url,omitempty" toml:"base_url"`
	APIKey      string  `json:"api_key,omitempty" toml:"api_key"` // literal key or env:NAME
	Model       string  `json:"model,omitempty" toml:"model"`
	Temperature float64 `json:"temperature,omitempty" toml:"temperature"`
	Timeout     int     `json:"timeout_seconds,omitempty" toml:"timeout_seconds"`

	// Command is the path to the executable
	Command string `json:"command,omitempty" toml:"command"`
	// Args is the list of arguments; use {{PROMPT}} as placeholder for the prompt (unless Stdin is true)
	Args []string `json:"args,omitempty" toml:"args"`
	// Stdin: if true, prompt is piped to command's stdin instead of using {{PROMPT}} placeholder
	Stdin bool `json:"stdin,omitempty" toml:"stdin"`
}

// Research holds the orchestration tunables
type Research struct {
	MaxLoops        int `json:"max_loops,omitempty" toml:"max_loops"`
	MinPlanTasks    int `json:"min_plan_tasks,omitempty" toml:"min_plan_tasks"`
	MaxPlanTasks    int `json:"max_plan_tasks,omitempty" toml:"max_plan_tasks"`
	MaxConcurrent   int `json:"max_concurrent,omitempty" toml:"max_concurrent"`
	SummaryMaxChars int `json:"summary_max_chars,omitempty" toml:"summary_max_chars"`
}

// Retrieval configures the local document corpus
type Retrieval struct {
	CorpusDir string `json:"corpus_dir,omitempty" toml:"corpus_dir"`
	TopK      int    `json:"top_k,omitempty" toml:"top_k"`
	ChunkSize int    `json:"chunk_size,omitempty" toml:"chunk_size"`
	Convert   *bool  `json:"convert,omitempty" toml:"convert"`
}

// Checkpoint selects where run state is persisted
type Checkpoint struct {
	Backend string `json:"backend,omitempty" toml:"backend"`
	Dir     string `json:"dir,omitempty" toml:"dir"`
}

// Logging represents logging configuration
type Logging struct {
	File  string `json:"file" toml:"file"`
	Level string `json:"level" toml:"level"`
}

// RateLimit represents rate limiting configuration for completion requests
type RateLimit struct {
	MaxRequests   int `json:"max_requests,omitempty" toml:"max_requests"`
	PeriodSeconds int `json:"period_seconds,omitempty" toml:"period_seconds"`
}

// Option is a functional option for configuring Config
type Option func(*Config)

// New creates a new Config instance with optional configuration
func New(opts ...Option) *Config {
	c := &Config{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithConfigPath sets an explicit config file path
func WithConfigPath(path string) Option {
	return func(c *Config) {
		c.configPath = path
	}
}

// Load loads and validates configuration from file
// If the base directory or config file doesn't exist, it creates them from embedded defaults
func (c *Config) Load() error {
	// Resolve config file path
	configPath, err := c.resolveConfigPath()
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}
	c.configPath = configPath

	// Create default config if it doesn't exist
	if !fileExists(configPath) {
		c.firstRun = true
		if err := c.setupDefaultConfig(configPath); err != nil {
			return fmt.Errorf("failed to create default config at %s: %w", configPath, err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg, err := parse(configPath, data)
	if err != nil {
		return err
	}
	c.data = cfg

	// Resolve and validate base_dir
	if err := c.resolveBaseDir(); err != nil {
		return err
	}

	if err := c.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Normalize all paths (resolve relative to base_dir) and create directories
	if err := c.normalizePaths(); err != nil {
		return fmt.Errorf("failed to normalize paths: %w", err)
	}

	return nil
}

// parse decodes JSON or TOML depending on the file extension.
// Unknown fields produce a warning and the file is re-read leniently.
func parse(path string, data []byte) (*configData, error) {
	var cfg configData

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		decoder := toml.NewDecoder(bytes.NewReader(data))
		decoder.DisallowUnknownFields()
		err := decoder.Decode(&cfg)
		if err == nil {
			return &cfg, nil
		}
		var strictErr *toml.StrictMissingError
		if !errors.As(err, &strictErr) {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Warning: config file %s: %s\n", path, strictErr.String())
		cfg = configData{}
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		return &cfg, nil
	}

	// First pass: detect unknown fields using strict parsing
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&cfg); err != nil {
		if !strings.Contains(err.Error(), "unknown field") {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
		_, _ = fmt.Fprintf(os.Stderr, "Warning: config file %s: %v\n", path, err)
		// Re-parse without strict mode to still load the config
		cfg = configData{}
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}
	return &cfg, nil
}

// resolveConfigPath determines the config file path using precedence rules
func (c *Config) resolveConfigPath() (string, error) {
	// 1. Explicit path (from WithConfigPath option)
	if c.configPath != "" {
		return resolveToAbsolute(c.configPath)
	}

	// 2. Environment variable
	if envPath := os.Getenv(global.ConfigEnvVar); envPath != "" {
		return resolveToAbsolute(envPath)
	}

	// 3. Default: base_dir/config.json
	return filepath.Join(expandHomePath(global.DefaultBaseDir), global.DefaultConfigFileName), nil
}

// resolveBaseDir resolves and validates the base_dir from config
func (c *Config) resolveBaseDir() error {
	if c.data.BaseDir == "" {
		c.data.BaseDir = expandHomePath(global.DefaultBaseDir)
		return nil
	}

	resolved := expandHomePath(c.data.BaseDir)
	if !filepath.IsAbs(resolved) {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: base_dir '%s' is not absolute, using default '%s'\n",
			c.data.BaseDir, global.DefaultBaseDir)
		resolved = expandHomePath(global.DefaultBaseDir)
	}

	c.data.BaseDir = resolved
	return nil
}

// resolveToAbsolute converts a path to absolute, expanding ~/ if needed
func resolveToAbsolute(path string) (string, error) {
	expanded := expandHomePath(path)
	if filepath.IsAbs(expanded) {
		return expanded, nil
	}
	return filepath.Abs(expanded)
}

// resolvePath resolves a path relative to base_dir
// - If absolute, returns as-is
// - If starts with ~/, expands home directory
// - Otherwise, joins with base_dir
func (c *Config) resolvePath(path string) string {
	if path == "" {
		return ""
	}

	expanded := expandHomePath(path)
	if filepath.IsAbs(expanded) {
		return expanded
	}

	return filepath.Join(c.data.BaseDir, expanded)
}

// expandHomePath expands ~/ to the user's home directory
func expandHomePath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.data.Version != 1 {
		if c.data.Version < 1 {
			return fmt.Errorf("config version %d is too old (expected 1)", c.data.Version)
		}
		return fmt.Errorf("config version %d is newer than supported (expected 1)", c.data.Version)
	}

	if err := c.validateLLM(); err != nil {
		return err
	}

	r := c.data.Research
	if _, err := global.ValidateMaxLoops(r.MaxLoops); err != nil {
		return err
	}
	if _, _, err := global.ValidatePlanSize(r.MinPlanTasks, r.MaxPlanTasks); err != nil {
		return err
	}
	if r.MaxConcurrent < 0 {
		return fmt.Errorf("max_concurrent cannot be negative")
	}
	if r.SummaryMaxChars < 0 {
		return fmt.Errorf("summary_max_chars cannot be negative")
	}

	if c.data.Retrieval.TopK < 0 {
		return fmt.Errorf("top_k cannot be negative")
	}
	if c.data.Retrieval.ChunkSize < 0 {
		return fmt.Errorf("chunk_size cannot be negative")
	}

	switch c.data.Checkpoint.Backend {
	case "", global.CheckpointMemory, global.CheckpointFile, global.CheckpointSQLite:
	default:
		return fmt.Errorf("invalid checkpoint backend '%s' (expected memory, file or sqlite)", c.data.Checkpoint.Backend)
	}

	if c.data.RateLimit.MaxRequests < 0 || c.data.RateLimit.PeriodSeconds < 0 {
		return fmt.Errorf("rate_limit values cannot be negative")
	}

	return nil
}

// validateLLM checks the completion provider settings
func (c *Config) validateLLM() error {
	llm := &c.data.LLM

	if _, err := global.ValidateTimeout(llm.Timeout); err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	switch llm.GetType() {
	case global.LLMTypeOpenAI:
		// The key may legitimately be empty for local OpenAI-compatible servers
		return nil
	case global.LLMTypeCommand:
	default:
		return fmt.Errorf("invalid LLM type '%s' (expected 'openai' or 'command')", llm.Type)
	}

	if llm.Command == "" {
		return fmt.Errorf("llm command cannot be empty for command type")
	}

	// Verify {{PROMPT}} placeholder exists in args (unless Stdin is true)
	if !llm.Stdin {
		hasPromptPlaceholder := false
		for _, arg := range llm.Args {
			if strings.Contains(arg, "{{PROMPT}}") {
				hasPromptPlaceholder = true
				break
			}
		}
		if !hasPromptPlaceholder {
			return fmt.Errorf("llm args must contain {{PROMPT}} placeholder (or set stdin: true)")
		}
	}

	expandedCmd := expandHomePath(llm.Command)
	if _, err := exec.LookPath(expandedCmd); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Warning: llm executable not found: %s\n", llm.Command)
	}
	llm.Command = expandedCmd

	return nil
}

// normalizePaths resolves all paths to absolute paths and creates working directories
func (c *Config) normalizePaths() error {
	corpusDir := c.data.Retrieval.CorpusDir
	if corpusDir == "" {
		corpusDir = global.DefaultCorpusDir
	}
	c.corpusDir = c.resolvePath(corpusDir)

	runsDir := c.data.Checkpoint.Dir
	if runsDir == "" {
		runsDir = global.DefaultRunsDir
	}
	c.runsDir = c.resolvePath(runsDir)

	reportsDir := c.data.ReportsDir
	if reportsDir == "" {
		reportsDir = global.DefaultReportsDir
	}
	c.reportsDir = c.resolvePath(reportsDir)

	for _, dir := range []string{c.corpusDir, c.runsDir, c.reportsDir} {
		if err := global.EnsureDir(dir); err != nil {
			return err
		}
	}

	if c.data.PromptsFile != "" {
		c.promptsFile = c.resolvePath(c.data.PromptsFile)
	}

	if c.data.Logging.File != "" {
		c.data.Logging.File = c.resolvePath(c.data.Logging.File)
	}

	return nil
}

// Getter methods

// Version returns the config version
func (c *Config) Version() int {
	return c.data.Version
}

// BaseDir returns the resolved base directory (always absolute)
func (c *Config) BaseDir() string {
	return c.data.BaseDir
}

// ConfigPath returns the path to the loaded config file
func (c *Config) ConfigPath() string {
	return c.configPath
}

// IsFirstRun returns true if this is the first run (config was just created)
func (c *Config) IsFirstRun() bool {
	return c.firstRun
}

// LLM returns the completion provider configuration with defaults applied
func (c *Config) LLM() LLM {
	l := c.data.LLM
	if l.Type == "" {
		l.Type = global.LLMTypeOpenAI
	}
	if l.BaseURL == "" {
		l.BaseURL = global.DefaultBaseURL
	}
	if l.Model == "" {
		l.Model = global.DefaultModel
	}
	l.Timeout, _ = global.ValidateTimeout(l.Timeout)
	return l
}

// Research returns the orchestration settings with defaults applied
func (c *Config) Research() Research {
	r := c.data.Research
	r.MaxLoops, _ = global.ValidateMaxLoops(r.MaxLoops)
	if r.MinPlanTasks <= 0 {
		r.MinPlanTasks = global.DefaultMinPlanTasks
	}
	if r.MaxPlanTasks <= 0 {
		r.MaxPlanTasks = global.DefaultMaxPlanTasks
	}
	if r.MaxConcurrent <= 0 {
		r.MaxConcurrent = global.DefaultMaxConcurrent
	}
	if r.SummaryMaxChars <= 0 {
		r.SummaryMaxChars = global.DefaultSummaryMaxChars
	}
	return r
}

// RunSettings returns the per-run defaults derived from the research section
func (c *Config) RunSettings() global.RunSettings {
	r := c.Research()
	return global.RunSettings{
		MaxLoops:     r.MaxLoops,
		MinPlanTasks: r.MinPlanTasks,
		MaxPlanTasks: r.MaxPlanTasks,
	}
}

// Retrieval returns the corpus configuration with defaults applied
func (c *Config) Retrieval() Retrieval {
	r := c.data.Retrieval
	r.CorpusDir = c.corpusDir
	if r.TopK <= 0 {
		r.TopK = global.DefaultTopK
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = global.DefaultChunkSize
	}
	return r
}

// ShouldConvert reports whether non-Markdown documents are converted before indexing
func (r Retrieval) ShouldConvert() bool {
	return r.Convert == nil || *r.Convert
}

// CheckpointBackend returns the configured checkpoint backend
func (c *Config) CheckpointBackend() string {
	if c.data.Checkpoint.Backend == "" {
		return global.CheckpointFile
	}
	return c.data.Checkpoint.Backend
}

// RunsDir returns the resolved checkpoint directory (always absolute)
func (c *Config) RunsDir() string {
	return c.runsDir
}

// ReportsDir returns the resolved report archive directory (always absolute)
func (c *Config) ReportsDir() string {
	return c.reportsDir
}

// PromptsFile returns the resolved prompt override file, or empty if not configured
func (c *Config) PromptsFile() string {
	return c.promptsFile
}

// RateLimit returns the rate limit configuration with defaults applied
func (c *Config) RateLimit() RateLimit {
	r := c.data.RateLimit
	if r.MaxRequests <= 0 {
		r.MaxRequests = global.DefaultRateLimitRequests
	}
	if r.PeriodSeconds <= 0 {
		r.PeriodSeconds = global.DefaultRateLimitPeriod
	}
	return r
}

// LogFile returns the resolved log file path (always absolute, empty for stderr)
func (c *Config) LogFile() string {
	return c.data.Logging.File
}

// LogLevel returns the configured log level
func (c *Config) LogLevel() string {
	return c.data.Logging.Level
}

// LLM methods

// GetType returns the effective LLM type (defaults to "openai" if not specified)
func (llm *LLM) GetType() string {
	if llm.Type == "" {
		return global.LLMTypeOpenAI
	}
	return llm.Type
}

// IsCommandType returns true if this is a command-line LLM
func (llm *LLM) IsCommandType() bool {
	return llm.GetType() == global.LLMTypeCommand
}

// ResolveAPIKey returns the API key, reading it from the environment when
// the configured value uses the env: prefix
func (llm *LLM) ResolveAPIKey() string {
	if strings.HasPrefix(llm.APIKey, global.EnvKeyPrefix) {
		return os.Getenv(strings.TrimPrefix(llm.APIKey, global.EnvKeyPrefix))
	}
	return llm.APIKey
}

// Helper functions

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}
