/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package runner

import (
	"context"

	"github.com/PivotLLM/DeepResearch/events"
)

// streamBuffer is the number of events held while the consumer catches up
const streamBuffer = 64

// Stream calls fn in a goroutine with a sink that feeds the returned channel.
// The channel is closed when fn returns. A consumer that stops reading
// should cancel ctx so fn can unwind.
func Stream(ctx context.Context, fn func(ctx context.Context, sink events.Sink) error) <-chan events.Event {
	sink := events.NewChanSink(streamBuffer)
	go func() {
		defer close(sink.C)
		_ = fn(ctx, sink)
	}()
	return sink.C
}
