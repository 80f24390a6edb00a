/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package llmtest provides a scripted completer for tests
package llmtest

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/PivotLLM/DeepResearch/llm"
)

// ErrExhausted is returned when a Scripted completer has no reply left
var ErrExhausted = errors.New("llmtest: no scripted reply left")

// Reply is one scripted completion
type Reply struct {
	Text string
	Err  error
}

// Handler computes a reply from the request
type Handler func(ctx context.Context, messages []llm.Message) (string, error)

// Scripted replays replies in order, or delegates to Handler when set.
// It is safe for concurrent use and records every request.
type Scripted struct {
	mu      sync.Mutex
	replies []Reply
	calls   [][]llm.Message

	// Handler overrides the reply queue when non-nil
	Handler Handler
	// ChunkSize splits streamed replies into fragments of this many bytes (default 4)
	ChunkSize int
}

// New returns a completer that answers with the given texts in order
func New(texts ...string) *Scripted {
	s := &Scripted{}
	for _, t := range texts {
		s.replies = append(s.replies, Reply{Text: t})
	}
	return s
}

// Push appends a reply
func (s *Scripted) Push(r Reply) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replies = append(s.replies, r)
	return s
}

// Calls returns the recorded requests
func (s *Scripted) Calls() [][]llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]llm.Message(nil), s.calls...)
}

// CallCount returns the number of requests made
func (s *Scripted) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// Complete returns the next scripted reply
func (s *Scripted) Complete(ctx context.Context, messages []llm.Message) (string, error) {
	return s.next(ctx, messages)
}

// Stream returns the next scripted reply, delivered in fragments
func (s *Scripted) Stream(ctx context.Context, messages []llm.Message, onToken llm.TokenFunc) (string, error) {
	text, err := s.next(ctx, messages)
	if err != nil {
		return "", err
	}
	size := s.ChunkSize
	if size <= 0 {
		size = 4
	}
	var full strings.Builder
	for i := 0; i < len(text); i += size {
		end := i + size
		if end > len(text) {
			end = len(text)
		}
		if err := ctx.Err(); err != nil {
			return full.String(), err
		}
		full.WriteString(text[i:end])
		if onToken != nil {
			if err := onToken(text[i:end]); err != nil {
				return full.String(), err
			}
		}
	}
	return full.String(), nil
}

func (s *Scripted) next(ctx context.Context, messages []llm.Message) (string, error) {
	s.mu.Lock()
	s.calls = append(s.calls, append([]llm.Message(nil), messages...))
	handler := s.Handler
	var reply Reply
	var ok bool
	if handler == nil && len(s.replies) > 0 {
		reply, ok = s.replies[0], true
		s.replies = s.replies[1:]
	}
	s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if handler != nil {
		return handler(ctx, messages)
	}
	if !ok {
		return "", ErrExhausted
	}
	return reply.Text, reply.Err
}

// Prompt returns the concatenated content of a recorded request
func Prompt(messages []llm.Message) string {
	parts := make([]string, len(messages))
	for i, m := range messages {
		parts[i] = m.Content
	}
	return strings.Join(parts, "\n")
}
