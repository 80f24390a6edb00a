/******************************************************************************
 * Copyright (c) 2025-2026 Tenebris Technologies Inc.                         *
 * Please see the LICENSE file for details                                    *
 ******************************************************************************/

package retrieval

import (
	"math"
	"strings"
	"unicode"
)

// BM25 parameters
const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

var stopwords = map[string]bool{
	"a": true, "about": true, "an": true, "and": true, "are": true, "as": true,
	"at": true, "be": true, "by": true, "can": true, "do": true, "does": true,
	"for": true, "from": true, "how": true, "in": true, "is": true, "it": true,
	"its": true, "of": true, "on": true, "or": true, "that": true, "the": true,
	"this": true, "to": true, "was": true, "were": true, "what": true, "when": true,
	"where": true, "which": true, "who": true, "why": true, "will": true, "with": true,
}

// bm25Index is an immutable term index over a set of chunks
type bm25Index struct {
	docs   []map[string]int
	lens   []int
	df     map[string]int
	avgLen float64
}

func newBM25Index(chunks []chunk) *bm25Index {
	idx := &bm25Index{
		docs: make([]map[string]int, len(chunks)),
		lens: make([]int, len(chunks)),
		df:   make(map[string]int),
	}

	total := 0
	for i, c := range chunks {
		tf := make(map[string]int)
		terms := tokenize(c.Heading + "\n" + c.Text)
		for _, term := range terms {
			tf[term]++
		}
		for term := range tf {
			idx.df[term]++
		}
		idx.docs[i] = tf
		idx.lens[i] = len(terms)
		total += len(terms)
	}
	if len(chunks) > 0 {
		idx.avgLen = float64(total) / float64(len(chunks))
	}
	return idx
}

// score returns the BM25 score of every document for the given query terms
func (idx *bm25Index) score(terms []string) []float64 {
	scores := make([]float64, len(idx.docs))
	n := float64(len(idx.docs))
	if n == 0 || idx.avgLen == 0 {
		return scores
	}

	seen := make(map[string]bool, len(terms))
	for _, term := range terms {
		if seen[term] {
			continue
		}
		seen[term] = true

		df := float64(idx.df[term])
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (n-df+0.5)/(df+0.5))
		for i, doc := range idx.docs {
			tf := float64(doc[term])
			if tf == 0 {
				continue
			}
			norm := tf + bm25K1*(1-bm25B+bm25B*float64(idx.lens[i])/idx.avgLen)
			scores[i] += idf * tf * (bm25K1 + 1) / norm
		}
	}
	return scores
}

// tokenize lowercases text and splits it on anything that is not a letter or digit
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// queryVariants returns the term lists searched for a query: the query as
// written, and its content words reduced to a light stem
func queryVariants(query string) [][]string {
	raw := tokenize(query)
	if len(raw) == 0 {
		return nil
	}

	var reduced []string
	for _, term := range raw {
		if stopwords[term] {
			continue
		}
		reduced = append(reduced, stem(term))
	}

	variants := [][]string{raw}
	if len(reduced) > 0 && !equalTerms(raw, reduced) {
		variants = append(variants, reduced)
	}
	return variants
}

// stem strips a few common English suffixes
func stem(term string) string {
	switch {
	case len(term) > 4 && strings.HasSuffix(term, "ies"):
		return term[:len(term)-3] + "y"
	case len(term) > 5 && strings.HasSuffix(term, "ing"):
		return term[:len(term)-3]
	case len(term) > 4 && strings.HasSuffix(term, "ed"):
		return term[:len(term)-2]
	case len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss"):
		return term[:len(term)-1]
	}
	return term
}

func equalTerms(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
