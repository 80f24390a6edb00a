/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/PivotLLM/DeepResearch/logging"
)

// Throttled limits how often the wrapped completer is called.
// It allows maxRequests per period with bursts up to maxRequests.
type Throttled struct {
	next    Completer
	limiter *rate.Limiter
	logger  *logging.Logger
}

// NewThrottled wraps next with a token bucket. Non-positive values disable limiting.
func NewThrottled(next Completer, maxRequests, periodSeconds int, logger *logging.Logger) *Throttled {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if maxRequests > 0 && periodSeconds > 0 {
		every := time.Duration(periodSeconds) * time.Second / time.Duration(maxRequests)
		limiter = rate.NewLimiter(rate.Every(every), maxRequests)
	}
	return &Throttled{next: next, limiter: limiter, logger: logger}
}

// Complete waits for a token, then calls the wrapped completer
func (t *Throttled) Complete(ctx context.Context, messages []Message) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.Complete(ctx, messages)
}

// Stream waits for a token, then calls the wrapped completer
func (t *Throttled) Stream(ctx context.Context, messages []Message, onToken TokenFunc) (string, error) {
	if err := t.wait(ctx); err != nil {
		return "", err
	}
	return t.next.Stream(ctx, messages, onToken)
}

func (t *Throttled) wait(ctx context.Context) error {
	start := time.Now()
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > 100*time.Millisecond {
		t.logger.Debugf("LLM: rate limited, waited %s", waited.Round(time.Millisecond))
	}
	return nil
}
