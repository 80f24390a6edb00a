/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package events defines the progress stream published while a research run
// executes, and a few sinks that consume it.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/PivotLLM/DeepResearch/global"
)

// Type identifies the kind of event
type Type string

//goland:noinspection GoUnusedConst
const (
	TypeLog         Type = "log"
	TypeProgress    Type = "progress"
	TypeReportToken Type = "report_token"
	TypeInterrupt   Type = "interrupt"
	TypeDone        Type = "done"
	TypeError       Type = "error"
)

// Event is a single item in a run's event stream
type Event struct {
	Type    Type      `json:"type"`
	RunID   string    `json:"run_id,omitempty"`
	Time    time.Time `json:"time"`
	Payload any       `json:"payload"`
}

// Log is the payload of a log event
type Log struct {
	Message string `json:"message"`
}

// Progress is the payload of a worker progress event
type Progress struct {
	TaskID  int    `json:"task_id"`
	Title   string `json:"title"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Summary string `json:"summary,omitempty"`
}

// ReportToken is the payload of a streamed report fragment
type ReportToken struct {
	Token string `json:"token"`
}

// Interrupt is the payload emitted when a run suspends for human review
type Interrupt struct {
	Plan    []global.ResearchTask `json:"plan"`
	Message string                `json:"message"`
}

// Done is the payload emitted when a run produces its final report
type Done struct {
	Report string `json:"report"`
}

// Error is the payload emitted when a call ends in failure
type Error struct {
	Error string `json:"error"`
}

// IsTerminal reports whether the event ends a start, resume or continue call
func (e Event) IsTerminal() bool {
	return e.Type == TypeDone || e.Type == TypeInterrupt || e.Type == TypeError
}

// JSON returns the payload encoded as JSON, or "{}" if it cannot be encoded
func (e Event) JSON() string {
	data, err := json.Marshal(e.Payload)
	if err != nil {
		return "{}"
	}
	return string(data)
}

// Sink receives events. Publish may block and must honor ctx.
type Sink interface {
	Publish(ctx context.Context, ev Event) error
}

// FuncSink adapts a function to the Sink interface
type FuncSink func(ctx context.Context, ev Event) error

// Publish calls f(ctx, ev)
func (f FuncSink) Publish(ctx context.Context, ev Event) error {
	return f(ctx, ev)
}

// ChanSink delivers events to a channel, blocking until the consumer reads
// or the context is cancelled
type ChanSink struct {
	C chan Event
}

// NewChanSink creates a ChanSink with the given buffer size
func NewChanSink(buffer int) *ChanSink {
	return &ChanSink{C: make(chan Event, buffer)}
}

// Publish sends ev on the channel
func (s *ChanSink) Publish(ctx context.Context, ev Event) error {
	select {
	case s.C <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Recorder keeps every event in memory. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Publish appends ev
func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the recorded events
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of the given type, in publish order
func (r *Recorder) OfType(t Type) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Last returns the most recent event, or false if none were recorded
func (r *Recorder) Last() (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.events) == 0 {
		return Event{}, false
	}
	return r.events[len(r.events)-1], true
}

// Reset discards all recorded events
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

// Emitter stamps events with a run id and time before handing them to a sink.
// A nil sink discards events.
type Emitter struct {
	RunID string
	Sink  Sink
}

// Emit publishes an event of type t with payload
func (e Emitter) Emit(ctx context.Context, t Type, payload any) error {
	if e.Sink == nil {
		return nil
	}
	return e.Sink.Publish(ctx, Event{Type: t, RunID: e.RunID, Time: time.Now(), Payload: payload})
}

// Log publishes a log event
func (e Emitter) Log(ctx context.Context, message string) error {
	return e.Emit(ctx, TypeLog, Log{Message: message})
}

// Progress publishes a progress event
func (e Emitter) Progress(ctx context.Context, p Progress) error {
	return e.Emit(ctx, TypeProgress, p)
}

// Token publishes a report_token event
func (e Emitter) Token(ctx context.Context, token string) error {
	return e.Emit(ctx, TypeReportToken, ReportToken{Token: token})
}

// Interrupt publishes an interrupt event
func (e Emitter) Interrupt(ctx context.Context, plan []global.ResearchTask, message string) error {
	return e.Emit(ctx, TypeInterrupt, Interrupt{Plan: plan, Message: message})
}

// Done publishes a done event
func (e Emitter) Done(ctx context.Context, report string) error {
	return e.Emit(ctx, TypeDone, Done{Report: report})
}

// Error publishes an error event
func (e Emitter) Error(ctx context.Context, err error) error {
	return e.Emit(ctx, TypeError, Error{Error: err.Error()})
}
