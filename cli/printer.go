/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package cli

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/PivotLLM/DeepResearch/events"
)

// printer writes events one per line as "[type] {json}". Report tokens are
// written raw as they arrive so the report appears as it is generated.
type printer struct {
	mu        sync.Mutex
	out       io.Writer
	streaming bool
}

func newPrinter(out io.Writer) *printer {
	return &printer{out: out}
}

// Publish implements events.Sink
func (p *printer) Publish(_ context.Context, ev events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if ev.Type == events.TypeReportToken {
		if tok, ok := ev.Payload.(events.ReportToken); ok {
			_, err := io.WriteString(p.out, tok.Token)
			p.streaming = true
			return err
		}
	}
	if p.streaming {
		_, _ = fmt.Fprintln(p.out)
		p.streaming = false
	}
	_, err := fmt.Fprintf(p.out, "[%s] %s\n", ev.Type, ev.JSON())
	return err
}
