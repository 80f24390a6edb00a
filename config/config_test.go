/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/PivotLLM/DeepResearch/global"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name      string
		config    *configData
		wantError bool
	}{
		{
			name: "valid openai config",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/deepresearch",
				LLM:     LLM{Type: "openai", Model: "gpt-4o-mini"},
			},
			wantError: false,
		},
		{
			name:      "empty llm type defaults to openai",
			config:    &configData{Version: 1, BaseDir: "/tmp/deepresearch"},
			wantError: false,
		},
		{
			name:      "invalid version",
			config:    &configData{Version: 2},
			wantError: true,
		},
		{
			name: "valid command LLM",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/deepresearch",
				LLM: LLM{
					Type:    "command",
					Command: "/bin/echo",
					Args:    []string{"{{PROMPT}}"},
				},
			},
			wantError: false,
		},
		{
			name: "command LLM with stdin needs no placeholder",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/deepresearch",
				LLM:     LLM{Type: "command", Command: "/bin/cat", Stdin: true},
			},
			wantError: false,
		},
		{
			name: "command LLM missing PROMPT placeholder",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/deepresearch",
				LLM:     LLM{Type: "command", Command: "/bin/echo", Args: []string{"hello"}},
			},
			wantError: true,
		},
		{
			name: "command LLM missing command",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/deepresearch",
				LLM:     LLM{Type: "command", Args: []string{"{{PROMPT}}"}},
			},
			wantError: true,
		},
		{
			name: "unknown LLM type",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/deepresearch",
				LLM:     LLM{Type: "carrier-pigeon"},
			},
			wantError: true,
		},
		{
			name: "timeout too short",
			config: &configData{
				Version: 1,
				BaseDir: "/tmp/deepresearch",
				LLM:     LLM{Timeout: 1},
			},
			wantError: true,
		},
		{
			name: "plan bounds inverted",
			config: &configData{
				Version:  1,
				BaseDir:  "/tmp/deepresearch",
				Research: Research{MinPlanTasks: 6, MaxPlanTasks: 3},
			},
			wantError: true,
		},
		{
			name: "max loops out of range",
			config: &configData{
				Version:  1,
				BaseDir:  "/tmp/deepresearch",
				Research: Research{MaxLoops: global.MaxLoopsLimit + 1},
			},
			wantError: true,
		},
		{
			name: "unknown checkpoint backend",
			config: &configData{
				Version:    1,
				BaseDir:    "/tmp/deepresearch",
				Checkpoint: Checkpoint{Backend: "postgres"},
			},
			wantError: true,
		},
		{
			name: "sqlite checkpoint backend",
			config: &configData{
				Version:    1,
				BaseDir:    "/tmp/deepresearch",
				Checkpoint: Checkpoint{Backend: "sqlite"},
			},
			wantError: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{data: tt.config}
			err := cfg.validate()
			if (err != nil) != tt.wantError {
				t.Errorf("validate() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}

func TestExpandHomePath(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantHome bool // if true, expects home dir prefix
	}{
		{
			name:     "absolute path",
			path:     "/usr/local/bin",
			wantHome: false,
		},
		{
			name:     "home path",
			path:     "~/documents",
			wantHome: true,
		},
		{
			name:     "relative path",
			path:     "relative/path",
			wantHome: false,
		},
	}

	home, _ := os.UserHomeDir()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandHomePath(tt.path)
			if tt.wantHome {
				expected := filepath.Join(home, "documents")
				if result != expected {
					t.Errorf("expandHomePath(%s) = %s, want %s", tt.path, result, expected)
				}
			} else {
				if result != tt.path {
					t.Errorf("expandHomePath(%s) = %s, want %s", tt.path, result, tt.path)
				}
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	cfg := &Config{
		data: &configData{
			BaseDir: "/base/dir",
		},
	}

	tests := []struct {
		name     string
		path     string
		expected string
	}{
		{
			name:     "absolute path",
			path:     "/absolute/path",
			expected: "/absolute/path",
		},
		{
			name:     "relative path",
			path:     "relative/path",
			expected: "/base/dir/relative/path",
		},
		{
			name:     "empty path",
			path:     "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := cfg.resolvePath(tt.path)
			if result != tt.expected {
				t.Errorf("resolvePath(%s) = %s, want %s", tt.path, result, tt.expected)
			}
		})
	}
}

func TestLoadJSON(t *testing.T) {
	baseDir := t.TempDir()
	configPath := filepath.Join(baseDir, "config.json")
	content := `{
  "version": 1,
  "base_dir": "` + baseDir + `",
  "llm": {"type": "openai", "model": "local-model", "api_key": "env:DR_TEST_KEY"},
  "research": {"max_loops": 2, "max_concurrent": 3},
  "checkpoint": {"backend": "sqlite"},
  "logging": {"file": "logs/test.log", "level": "DEBUG"}
}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("DR_TEST_KEY", "secret")

	cfg := New(WithConfigPath(configPath))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.IsFirstRun() {
		t.Error("IsFirstRun() = true, want false")
	}
	llm := cfg.LLM()
	if llm.Model != "local-model" {
		t.Errorf("LLM().Model = %q, want local-model", llm.Model)
	}
	if llm.BaseURL != global.DefaultBaseURL {
		t.Errorf("LLM().BaseURL = %q, want default", llm.BaseURL)
	}
	if got := llm.ResolveAPIKey(); got != "secret" {
		t.Errorf("ResolveAPIKey() = %q, want secret", got)
	}
	if llm.Timeout != global.DefaultTimeout {
		t.Errorf("LLM().Timeout = %d, want %d", llm.Timeout, global.DefaultTimeout)
	}

	r := cfg.Research()
	if r.MaxLoops != 2 || r.MaxConcurrent != 3 {
		t.Errorf("Research() = %+v, want max_loops 2 and max_concurrent 3", r)
	}
	if r.MinPlanTasks != 3 || r.MaxPlanTasks != 5 || r.SummaryMaxChars != 100 {
		t.Errorf("Research() defaults not applied: %+v", r)
	}
	if cfg.CheckpointBackend() != global.CheckpointSQLite {
		t.Errorf("CheckpointBackend() = %q, want sqlite", cfg.CheckpointBackend())
	}
	if want := filepath.Join(baseDir, "logs", "test.log"); cfg.LogFile() != want {
		t.Errorf("LogFile() = %q, want %q", cfg.LogFile(), want)
	}
	for _, dir := range []string{cfg.RunsDir(), cfg.ReportsDir(), cfg.Retrieval().CorpusDir} {
		if !global.DirExists(dir) {
			t.Errorf("directory %s was not created", dir)
		}
	}
	if !cfg.Retrieval().ShouldConvert() {
		t.Error("ShouldConvert() = false, want true by default")
	}
}

func TestLoadTOML(t *testing.T) {
	baseDir := t.TempDir()
	configPath := filepath.Join(baseDir, "config.toml")
	content := `version = 1
base_dir = "` + baseDir + `"
reports_dir = "out"

[llm]
type = "command"
command = "/bin/cat"
stdin = true

[retrieval]
top_k = 4
convert = false

[checkpoint]
backend = "memory"
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := New(WithConfigPath(configPath))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	llm := cfg.LLM()
	if !llm.IsCommandType() || !llm.Stdin {
		t.Errorf("LLM() = %+v, want command type with stdin", llm)
	}
	if cfg.Retrieval().TopK != 4 {
		t.Errorf("Retrieval().TopK = %d, want 4", cfg.Retrieval().TopK)
	}
	if cfg.Retrieval().ShouldConvert() {
		t.Error("ShouldConvert() = true, want false")
	}
	if cfg.ReportsDir() != filepath.Join(baseDir, "out") {
		t.Errorf("ReportsDir() = %q", cfg.ReportsDir())
	}
	if cfg.CheckpointBackend() != global.CheckpointMemory {
		t.Errorf("CheckpointBackend() = %q, want memory", cfg.CheckpointBackend())
	}
}

func TestLoadUnknownFieldStillLoads(t *testing.T) {
	baseDir := t.TempDir()
	configPath := filepath.Join(baseDir, "config.json")
	content := `{"version": 1, "base_dir": "` + baseDir + `", "mystery": true}`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	cfg := New(WithConfigPath(configPath))
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Version() != 1 {
		t.Errorf("Version() = %d, want 1", cfg.Version())
	}
}

func TestLoadFirstRun(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv(global.ConfigEnvVar, "")

	cfg := New()
	if err := cfg.Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !cfg.IsFirstRun() {
		t.Error("IsFirstRun() = false, want true")
	}
	want := filepath.Join(home, ".deepresearch", global.DefaultConfigFileName)
	if cfg.ConfigPath() != want {
		t.Errorf("ConfigPath() = %q, want %q", cfg.ConfigPath(), want)
	}
	if !global.FileExists(want) {
		t.Error("default config was not written")
	}
	if cfg.RunSettings() != (global.RunSettings{MaxLoops: 3, MinPlanTasks: 3, MaxPlanTasks: 5}) {
		t.Errorf("RunSettings() = %+v", cfg.RunSettings())
	}
}

func TestRateLimitDefaults(t *testing.T) {
	cfg := &Config{data: &configData{}}
	rl := cfg.RateLimit()
	if rl.MaxRequests != global.DefaultRateLimitRequests || rl.PeriodSeconds != global.DefaultRateLimitPeriod {
		t.Errorf("RateLimit() = %+v, want defaults", rl)
	}
}
