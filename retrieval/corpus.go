/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/tenebris-tech/x2md/convert"
	"golang.org/x/sync/singleflight"

	"github.com/PivotLLM/DeepResearch/global"
	"github.com/PivotLLM/DeepResearch/logging"
)

// indexedExtensions are the text formats read directly into the index
var indexedExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
}

// IndexResult reports what an indexing pass did
type IndexResult struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Converted int `json:"converted"`
	Skipped   int `json:"skipped"`
	Failed    int `json:"failed"`
}

// Corpus is a local directory of reference documents searched with BM25.
// Office and PDF documents are converted to Markdown before indexing.
type Corpus struct {
	dir       string
	topK      int
	chunkSize int
	convert   bool
	logger    *logging.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	chunks []chunk
	index  *bm25Index
	loaded bool
}

// Option configures a Corpus
type Option func(*Corpus)

// WithTopK sets the maximum number of items returned per query
func WithTopK(k int) Option {
	return func(c *Corpus) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithChunkSize sets the maximum passage length in characters
func WithChunkSize(size int) Option {
	return func(c *Corpus) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithConversion enables or disables document conversion during Index
func WithConversion(enabled bool) Option {
	return func(c *Corpus) {
		c.convert = enabled
	}
}

// WithLogger sets the logger
func WithLogger(logger *logging.Logger) Option {
	return func(c *Corpus) {
		c.logger = logger
	}
}

// NewCorpus creates a corpus rooted at dir. Nothing is read until Index or
// the first Retrieve.
func NewCorpus(dir string, opts ...Option) *Corpus {
	c := &Corpus{
		dir:       dir,
		topK:      global.DefaultTopK,
		chunkSize: global.DefaultChunkSize,
		convert:   true,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Dir returns the corpus directory
func (c *Corpus) Dir() string {
	return c.dir
}

// Index (re)builds the search index from the corpus directory
func (c *Corpus) Index(ctx context.Context) (*IndexResult, error) {
	v, err, _ := c.group.Do("index", func() (interface{}, error) {
		return c.build(ctx)
	})
	if err != nil {
		return nil, err
	}
	result := *v.(*IndexResult)
	return &result, nil
}

func (c *Corpus) build(ctx context.Context) (*IndexResult, error) {
	if !global.DirExists(c.dir) {
		return nil, fmt.Errorf("corpus directory not found: %s", c.dir)
	}

	result := &IndexResult{}

	if c.convert {
		converter := convert.New(
			convert.WithRecursion(true),
			convert.WithSkipExisting(true),
		)
		convertResult, err := converter.Convert(c.dir)
		if err != nil {
			// Not fatal: Markdown and text documents can still be indexed
			c.logger.Warnf("Corpus conversion failed: %v", err)
		} else {
			result.Converted = convertResult.Converted
			result.Skipped = convertResult.Skipped
			result.Failed = convertResult.Failed
		}
	}

	var chunks []chunk
	err := filepath.WalkDir(c.dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			if path != c.dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !indexedExtensions[ext] {
			return nil
		}
		if ext == ".txt" && hasMarkdownTwin(path) {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			c.logger.Warnf("Skipping unreadable corpus file %s: %v", path, err)
			return nil
		}
		rel, err := filepath.Rel(c.dir, path)
		if err != nil {
			rel = d.Name()
		}

		docChunks := splitMarkdown(filepath.ToSlash(rel), string(data), c.chunkSize)
		if len(docChunks) > 0 {
			result.Documents++
			chunks = append(chunks, docChunks...)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan corpus: %w", err)
	}

	index := newBM25Index(chunks)

	c.mu.Lock()
	c.chunks = chunks
	c.index = index
	c.loaded = true
	c.mu.Unlock()

	result.Chunks = len(chunks)
	c.logger.Infof("Indexed corpus %s: %d documents, %d chunks (%d converted, %d skipped, %d failed)",
		c.dir, result.Documents, result.Chunks, result.Converted, result.Skipped, result.Failed)
	return result, nil
}

// Retrieve returns up to topK passages matching query, best first.
// The index is built on first use.
func (c *Corpus) Retrieve(ctx context.Context, query string) ([]global.RetrievedItem, error) {
	c.mu.RLock()
	loaded := c.loaded
	c.mu.RUnlock()

	if !loaded {
		if _, err := c.Index(ctx); err != nil {
			return nil, err
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.RLock()
	chunks, index := c.chunks, c.index
	c.mu.RUnlock()

	// Best score per chunk across all query variants
	best := make(map[int]float64)
	for _, terms := range queryVariants(query) {
		for i, s := range index.score(terms) {
			if s > best[i] {
				best[i] = s
			}
		}
	}

	hits := make([]int, 0, len(best))
	for i := range best {
		hits = append(hits, i)
	}
	sort.Slice(hits, func(a, b int) bool {
		if best[hits[a]] != best[hits[b]] {
			return best[hits[a]] > best[hits[b]]
		}
		return hits[a] < hits[b]
	})
	if len(hits) > c.topK {
		hits = hits[:c.topK]
	}

	items := make([]global.RetrievedItem, 0, len(hits))
	for _, i := range hits {
		items = append(items, global.RetrievedItem{
			Content: chunks[i].Text,
			Source:  chunks[i].Source,
			Score:   best[i],
		})
	}

	c.logger.Debugf("Retrieved %d of %d chunks for query %q", len(items), len(chunks), query)
	return items, nil
}

// hasMarkdownTwin reports whether a text file was already converted to Markdown
func hasMarkdownTwin(path string) bool {
	base := strings.TrimSuffix(path, filepath.Ext(path))
	return global.FileExists(base+".md") || global.FileExists(path+".md")
}
