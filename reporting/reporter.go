/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package reporting writes the final research report: it streams the report
// from the language model and archives finished reports to disk.
package reporting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"text/template"
	"time"

	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
	"github.com/PivotLLM/DeepResearch/templates"
)

// Report formats
const (
	FormatMarkdown = "markdown"
	FormatJSON     = "json"
)

// TaskReport is one task's entry in an archived report
type TaskReport struct {
	ID         int      `json:"id"`
	Title      string   `json:"title"`
	Summary    string   `json:"summary,omitempty"`
	References []string `json:"references,omitempty"`
	Completed  bool     `json:"completed"`
}

// RunReport is the archived form of a finished run
type RunReport struct {
	RunID       string       `json:"run_id"`
	Goal        string       `json:"goal"`
	GeneratedAt time.Time    `json:"generated_at"`
	LoopCount   int          `json:"loop_count"`
	Tasks       []TaskReport `json:"tasks"`
	References  []string     `json:"references"`
	Report      string       `json:"report"`
}

const markdownTemplate = `# Research Report: {{.Goal}}

**Run**: {{.RunID}}
**Generated**: {{.GeneratedAt.Format "2006-01-02 15:04:05"}}
**Reflection loops**: {{.LoopCount}}

---

{{.Report}}
{{if .Tasks}}
---

## Research Tasks

| # | Task | Summary |
|---|------|---------|
{{range .Tasks}}| {{.ID}} | {{.Title}} | {{if .Completed}}{{truncate .Summary 100}}{{else}}_not researched_{{end}} |
{{end}}{{end}}{{if .References}}
## Sources

{{range .References}}- {{.}}
{{end}}{{end}}`

// Reporter archives finished reports
type Reporter struct {
	logger *logging.Logger
	dir    string
	tmpl   *template.Template
}

// New creates a new Reporter writing into dir
func New(logger *logging.Logger, dir string) *Reporter {
	return &Reporter{
		logger: logger,
		dir:    dir,
		tmpl:   template.Must(template.New("report").Funcs(templates.Funcs()).Parse(markdownTemplate)),
	}
}

// Dir returns the archive directory
func (r *Reporter) Dir() string {
	return r.dir
}

// BuildReport assembles the archive view of a run
func (r *Reporter) BuildReport(runID string, state global.RunState) *RunReport {
	report := &RunReport{
		RunID:       runID,
		Goal:        state.Goal,
		GeneratedAt: time.Now(),
		LoopCount:   state.LoopCount,
		Tasks:       []TaskReport{},
		References:  []string{},
	}
	if state.FinalReport != nil {
		report.Report = *state.FinalReport
	}

	byTask := make(map[int]global.TaskResult, len(state.Results))
	seen := make(map[string]bool)
	for _, res := range state.Results {
		byTask[res.TaskID] = res
		for _, ref := range res.References {
			if !seen[ref] {
				seen[ref] = true
				report.References = append(report.References, ref)
			}
		}
	}
	sort.Strings(report.References)

	for _, task := range state.Plan {
		tr := TaskReport{ID: task.ID, Title: task.Title}
		if res, ok := byTask[task.ID]; ok {
			tr.Completed = true
			tr.Summary = res.Summary
			tr.References = res.References
		}
		report.Tasks = append(report.Tasks, tr)
	}

	return report
}

// GenerateMarkdown renders a report as Markdown
func (r *Reporter) GenerateMarkdown(report *RunReport) (string, error) {
	var buf bytes.Buffer
	if err := r.tmpl.Execute(&buf, report); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.String(), nil
}

// GenerateJSON renders a report as JSON
func (r *Reporter) GenerateJSON(report *RunReport) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	return string(data), nil
}

// SaveReport saves a report to a file
func (r *Reporter) SaveReport(report *RunReport, outputPath, format string) error {
	var content string
	var err error

	switch format {
	case FormatJSON:
		content, err = r.GenerateJSON(report)
	default:
		content, err = r.GenerateMarkdown(report)
	}

	if err != nil {
		return fmt.Errorf("failed to generate report: %w", err)
	}

	if err := global.AtomicWrite(outputPath, []byte(content)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}

	r.logger.Infof("Report saved to %s (%d bytes)", outputPath, len(content))
	return nil
}

// Archive writes the run's report to <dir>/<runID>.md and returns the path
func (r *Reporter) Archive(runID string, state global.RunState) (string, error) {
	if r.dir == "" {
		return "", fmt.Errorf("report archive directory not configured")
	}
	outputPath, err := global.ValidatePathWithinDir(r.dir, runID+".md")
	if err != nil {
		return "", err
	}
	if err := r.SaveReport(r.BuildReport(runID, state), outputPath, FormatMarkdown); err != nil {
		return "", err
	}
	return outputPath, nil
}
