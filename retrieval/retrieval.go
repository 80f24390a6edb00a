/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

// Package retrieval supplies reference material to research workers.
package retrieval

import (
	"context"

	"github.com/PivotLLM/DeepResearch/global"
)

// Retriever returns context items relevant to a query, best first.
// An empty result is not an error.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]global.RetrievedItem, error)
}

// Func adapts a function to the Retriever interface
type Func func(ctx context.Context, query string) ([]global.RetrievedItem, error)

// Retrieve calls f(ctx, query)
func (f Func) Retrieve(ctx context.Context, query string) ([]global.RetrievedItem, error) {
	return f(ctx, query)
}

// Static returns a Retriever that always yields items, regardless of the query
func Static(items ...global.RetrievedItem) Retriever {
	return Func(func(ctx context.Context, _ string) ([]global.RetrievedItem, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := make([]global.RetrievedItem, len(items))
		copy(out, items)
		return out, nil
	})
}
