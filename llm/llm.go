/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package llm provides the text-completion capability used by every research
// stage: whole-text completions for structured output and token streaming for
// the final report.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PivotLLM/DeepResearch/config"
	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
)

// Message roles
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System returns a system message
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User returns a user message
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// TokenFunc receives streamed fragments in order. Returning an error aborts the stream.
type TokenFunc func(token string) error

// Completer is the text-completion capability
type Completer interface {
	// Complete returns the whole completion for messages
	Complete(ctx context.Context, messages []Message) (string, error)
	// Stream delivers the completion incrementally to onToken and returns the full text
	Stream(ctx context.Context, messages []Message, onToken TokenFunc) (string, error)
}

// New builds the configured completer, wrapped with the request rate limit
func New(cfg config.LLM, rl config.RateLimit, logger *logging.Logger) (Completer, error) {
	var base Completer
	timeout := time.Duration(cfg.Timeout) * time.Second

	switch {
	case cfg.IsCommandType():
		base = NewCommandClient(CommandConfig{
			Command: cfg.Command,
			Args:    cfg.Args,
			Stdin:   cfg.Stdin,
			Timeout: timeout,
		}, logger)
	case cfg.GetType() == global.LLMTypeOpenAI:
		base = NewOpenAIClient(OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.ResolveAPIKey(),
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     timeout,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported llm type: %s", cfg.Type)
	}

	return NewThrottled(base, rl.MaxRequests, rl.PeriodSeconds, logger), nil
}

// Flatten renders messages as a single prompt for providers without chat roles
func Flatten(messages []Message) string {
	var b strings.Builder
	for i, m := range messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		switch m.Role {
		case RoleSystem:
			b.WriteString("=== INSTRUCTIONS ===\n")
		case RoleAssistant:
			b.WriteString("=== ASSISTANT ===\n")
		default:
			b.WriteString("=== TASK ===\n")
		}
		b.WriteString(m.Content)
	}
	return b.String()
}
