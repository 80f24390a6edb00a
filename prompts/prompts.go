/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package prompts holds the prompt templates sent to the language model.
// Defaults are embedded; a YAML file can override any of them.
package prompts

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/PivotLLM/DeepResearch/templates"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Prompt names
const (
	PlannerSystem      = "planner_system"
	PlannerInitial     = "planner_initial"
	PlannerRewrite     = "planner_rewrite"
	PlannerIncremental = "planner_incremental"
	PlannerUser        = "planner_user"
	WorkerSystem       = "worker_system"
	WorkerUser         = "worker_user"
	ReflectorSystem    = "reflector_system"
	ReflectorUser      = "reflector_user"
	WriterSystem       = "writer_system"
	WriterUser         = "writer_user"
)

// PlanData is the data available to planner prompts
type PlanData struct {
	Goal               string
	PlanJSON           string
	UserFeedback       string
	ReflectionFeedback string
	Instruction        string
	MinTasks           int
	MaxTasks           int
}

// WorkerData is the data available to worker prompts
type WorkerData struct {
	Title           string
	Intent          string
	Context         string
	SummaryMaxChars int
}

// ReviewData is the data available to reflector and writer prompts
type ReviewData struct {
	Goal    string
	Context string
}

// Catalog is a complete, validated set of prompt templates
type Catalog struct {
	texts map[string]string
}

// Default returns the built-in prompts
func Default() *Catalog {
	texts, err := decode(defaultsYAML)
	if err != nil {
		// The embedded file is part of the binary; failing here is a build defect
		panic(fmt.Sprintf("prompts: invalid embedded defaults: %v", err))
	}
	return &Catalog{texts: texts}
}

// Load returns the default prompts with any overrides from the YAML file at
// path applied. An empty path returns the defaults.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read prompts file: %w", err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse applies YAML overrides to the default prompts
func Parse(data []byte) (*Catalog, error) {
	c := Default()
	if len(strings.TrimSpace(string(data))) == 0 {
		return c, nil
	}
	overrides, err := decode(data)
	if err != nil {
		return nil, err
	}
	for name, text := range overrides {
		if _, ok := c.texts[name]; !ok {
			return nil, fmt.Errorf("unknown prompt %q (known prompts: %s)", name, strings.Join(c.Names(), ", "))
		}
		c.texts[name] = text
	}
	return c, nil
}

// decode reads a name → template map and checks every template parses
func decode(data []byte) (map[string]string, error) {
	var texts map[string]string
	if err := yaml.Unmarshal(data, &texts); err != nil {
		return nil, fmt.Errorf("invalid prompts YAML: %w", err)
	}
	for name, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("prompt %q is empty", name)
		}
		if _, err := template.New(name).Funcs(templates.Funcs()).Parse(text); err != nil {
			return nil, fmt.Errorf("prompt %q: %w", name, err)
		}
	}
	return texts, nil
}

// Names returns the prompt names in the catalog, sorted
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.texts))
	for name := range c.texts {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Text returns the raw template for name
func (c *Catalog) Text(name string) string {
	return c.texts[name]
}

// Render executes the named prompt with data
func (c *Catalog) Render(name string, data any) (string, error) {
	text, ok := c.texts[name]
	if !ok {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	out, err := templates.Render(name, text, data)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}
