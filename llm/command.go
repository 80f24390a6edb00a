/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package llm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
)

// PromptPlaceholder is replaced by the prompt text in command arguments
const PromptPlaceholder = "{{PROMPT}}"

// CommandConfig configures a command-line LLM
type CommandConfig struct {
	Command string
	Args    []string
	Stdin   bool
	Timeout time.Duration
}

// CommandClient runs a local executable (claude, codex, llm, ollama run, ...) per request
type CommandClient struct {
	cfg    CommandConfig
	logger *logging.Logger
}

// NewCommandClient creates a CommandClient
func NewCommandClient(cfg CommandConfig, logger *logging.Logger) *CommandClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = global.DefaultTimeout * time.Second
	}
	return &CommandClient{cfg: cfg, logger: logger}
}

// Complete runs the command and returns its trimmed stdout
func (c *CommandClient) Complete(ctx context.Context, messages []Message) (string, error) {
	var stdout bytes.Buffer
	if err := c.run(ctx, messages, &stdout); err != nil {
		return "", err
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Stream runs the command and forwards stdout as it is produced
func (c *CommandClient) Stream(ctx context.Context, messages []Message, onToken TokenFunc) (string, error) {
	var full strings.Builder
	w := &tokenWriter{full: &full, onToken: onToken}
	if err := c.run(ctx, messages, w); err != nil {
		return full.String(), err
	}
	if w.err != nil {
		return full.String(), w.err
	}
	return full.String(), nil
}

// run executes the configured command with the flattened prompt
func (c *CommandClient) run(ctx context.Context, messages []Message, stdout io.Writer) error {
	promptText := Flatten(messages)

	// Build args - substitute {{PROMPT}} unless using stdin
	var args []string
	if c.cfg.Stdin {
		args = c.cfg.Args
	} else {
		args = make([]string, len(c.cfg.Args))
		for i, arg := range c.cfg.Args {
			args[i] = strings.ReplaceAll(arg, PromptPlaceholder, promptText)
		}
	}

	c.logger.Debugf("LLM: executing command %s (%d args, stdin: %v)", c.cfg.Command, len(args), c.cfg.Stdin)

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	// Grandchildren holding stdout open must not stall Wait after a kill
	cmd.WaitDelay = time.Second

	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr
	if c.cfg.Stdin {
		cmd.Stdin = strings.NewReader(promptText)
	}

	err := cmd.Run()
	if err == nil {
		return nil
	}

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		c.logger.Errorf("LLM: command timed out after %s", c.cfg.Timeout)
		return fmt.Errorf("command timed out after %s", c.cfg.Timeout)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Not an ExitError - the command could not start at all
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		c.logger.Errorf("LLM: command infrastructure failure: %v", err)
		return fmt.Errorf("infrastructure failure: %w", err)
	}

	msg := strings.TrimSpace(stderr.String())
	if msg == "" {
		msg = "no error output"
	}
	c.logger.Warnf("LLM: command exited with code %d: %s", exitErr.ExitCode(), msg)
	return fmt.Errorf("command exited with code %d: %s", exitErr.ExitCode(), msg)
}

// tokenWriter forwards each write from the child process as one token
type tokenWriter struct {
	full    *strings.Builder
	onToken TokenFunc
	err     error
}

func (w *tokenWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	chunk := string(p)
	w.full.WriteString(chunk)
	if w.onToken != nil {
		if err := w.onToken(chunk); err != nil {
			w.err = err
			return 0, err
		}
	}
	return len(p), nil
}
