/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package retrieval

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PivotLLM/DeepResearch/global"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newTestCorpus(t *testing.T, opts ...Option) *Corpus {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "solar.md", "# Solar\n\nSolar panel prices fell sharply over the decade.\n\n## Adoption\n\nResidential adoption of solar grew in sunny regions.")
	writeFile(t, dir, "wind.txt", "Offshore wind farms produce steady power in coastal areas.")
	writeFile(t, dir, "notes/storage.md", "# Storage\n\nBattery storage smooths the output of solar and wind.")
	writeFile(t, dir, "image.png", "not text")
	writeFile(t, dir, ".hidden/secret.md", "# Solar secret\n\nsolar solar solar")

	opts = append([]Option{WithConversion(false)}, opts...)
	return NewCorpus(dir, opts...)
}

func TestSplitMarkdownHeadings(t *testing.T) {
	text := "Intro line\n\n# First\n\nAlpha text\n\n```\n# not a heading\n```\n\n## Second\n\nBeta text\n"
	chunks := splitMarkdown("doc.md", text, 1000)

	require.Len(t, chunks, 3)
	assert.Equal(t, "", chunks[0].Heading)
	assert.Equal(t, "Intro line", chunks[0].Text)
	assert.Equal(t, "First", chunks[1].Heading)
	assert.Contains(t, chunks[1].Text, "# not a heading")
	assert.Equal(t, "Second", chunks[2].Heading)

	for i, c := range chunks {
		assert.Equal(t, "doc.md", c.Source)
		assert.Equal(t, "doc.md#"+string(rune('1'+i)), c.ID)
	}
}

func TestSplitMarkdownRespectsSize(t *testing.T) {
	para := strings.Repeat("word ", 30)
	text := "# Long\n\n" + para + "\n\n" + para + "\n\n" + strings.Repeat("x", 250)
	chunks := splitMarkdown("long.md", text, 100)

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), 100, "chunk %s too long", c.ID)
		assert.Equal(t, "Long", c.Heading)
	}
}

func TestSplitMarkdownEmpty(t *testing.T) {
	assert.Empty(t, splitMarkdown("empty.md", "  \n\n ", 100))
}

func TestHardSplit(t *testing.T) {
	pieces := hardSplit("aaaa bbbb cccc dddd", 10)
	require.NotEmpty(t, pieces)
	assert.Equal(t, "aaaa bbbb", pieces[0])
	assert.Equal(t, "aaaa bbbb cccc dddd", strings.Join(pieces, " "))

	pieces = hardSplit(strings.Repeat("é", 25), 10)
	assert.Equal(t, []int{10, 10, 5}, []int{
		utf8.RuneCountInString(pieces[0]),
		utf8.RuneCountInString(pieces[1]),
		utf8.RuneCountInString(pieces[2]),
	})
}

func TestTokenize(t *testing.T) {
	assert.Equal(t, []string{"solar", "pv", "2024", "costs"}, tokenize("Solar-PV (2024) costs!"))
	assert.Empty(t, tokenize("  --  "))
}

func TestQueryVariants(t *testing.T) {
	variants := queryVariants("What are the prices of batteries")
	require.Len(t, variants, 2)
	assert.Equal(t, []string{"what", "are", "the", "prices", "of", "batteries"}, variants[0])
	assert.Equal(t, []string{"price", "battery"}, variants[1])

	// Nothing to reduce: one variant only
	assert.Len(t, queryVariants("wind"), 1)
	assert.Nil(t, queryVariants("?!"))
}

func TestBM25Ranking(t *testing.T) {
	chunks := []chunk{
		{ID: "a#1", Text: "solar solar power"},
		{ID: "b#1", Text: "wind power"},
		{ID: "c#1", Text: "hydro"},
	}
	idx := newBM25Index(chunks)
	scores := idx.score([]string{"solar", "power"})

	assert.Greater(t, scores[0], scores[1])
	assert.Greater(t, scores[1], 0.0)
	assert.Equal(t, 0.0, scores[2])
}

func TestCorpusRetrieve(t *testing.T) {
	c := newTestCorpus(t)

	items, err := c.Retrieve(context.Background(), "solar panel prices")
	require.NoError(t, err)
	require.NotEmpty(t, items)

	assert.Equal(t, "solar.md", items[0].Source)
	assert.Contains(t, items[0].Content, "prices")
	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Score, items[i].Score)
	}
	for _, item := range items {
		assert.NotContains(t, item.Source, ".hidden")
		assert.NotEqual(t, "image.png", item.Source)
	}
}

func TestCorpusRetrieveStemmedVariant(t *testing.T) {
	c := newTestCorpus(t)

	// "panels" only matches through its reduced form "panel"
	items, err := c.Retrieve(context.Background(), "panels")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "solar.md", items[0].Source)

	items, err = c.Retrieve(context.Background(), "wind farms")
	require.NoError(t, err)
	require.NotEmpty(t, items)
	assert.Equal(t, "wind.txt", items[0].Source)
}

func TestCorpusTopK(t *testing.T) {
	c := newTestCorpus(t, WithTopK(1))

	items, err := c.Retrieve(context.Background(), "solar")
	require.NoError(t, err)
	assert.Len(t, items, 1)
}

func TestCorpusNoMatch(t *testing.T) {
	c := newTestCorpus(t)

	items, err := c.Retrieve(context.Background(), "quantum chromodynamics")
	require.NoError(t, err)
	assert.Empty(t, items)

	items, err = c.Retrieve(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestCorpusIndex(t *testing.T) {
	c := newTestCorpus(t)

	result, err := c.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Documents)
	assert.Equal(t, 4, result.Chunks)
	assert.Zero(t, result.Converted)

	// New documents show up after re-indexing
	writeFile(t, c.Dir(), "geo.md", "Geothermal plants tap underground heat.")
	result, err = c.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, result.Documents)

	items, err := c.Retrieve(context.Background(), "geothermal")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "geo.md", items[0].Source)
}

func TestCorpusSkipsConvertedTextTwin(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "report.txt", "tidal energy")
	writeFile(t, dir, "report.md", "tidal energy")

	c := NewCorpus(dir, WithConversion(false))
	result, err := c.Index(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Documents)
}

func TestCorpusMissingDir(t *testing.T) {
	c := NewCorpus(filepath.Join(t.TempDir(), "missing"), WithConversion(false))

	_, err := c.Index(context.Background())
	assert.Error(t, err)

	_, err = c.Retrieve(context.Background(), "anything")
	assert.Error(t, err)
}

func TestCorpusConcurrentFirstUse(t *testing.T) {
	c := newTestCorpus(t)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Retrieve(context.Background(), "storage")
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestCorpusCancelled(t *testing.T) {
	c := newTestCorpus(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Retrieve(ctx, "solar")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStaticAndFunc(t *testing.T) {
	r := Static(global.RetrievedItem{Content: "c", Source: "s"})
	items, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	require.Len(t, items, 1)
	items[0].Content = "changed"

	again, err := r.Retrieve(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "c", again[0].Content)

	var got string
	f := Func(func(_ context.Context, query string) ([]global.RetrievedItem, error) {
		got = query
		return nil, nil
	})
	_, err = f.Retrieve(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}
