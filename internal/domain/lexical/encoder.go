// Package lexical implements a BM25-style term weighting model fit per user.
//
// An Encoder is a value produced by Fit and threaded explicitly through
// Encode calls. It is never shared as a mutable singleton: each indexing
// pass fits its own encoder from a snapshot of the user's corpus and
// discards it afterwards.
package lexical

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/inboxlab/styledex/internal/domain"
)

// BM25 parameters (standard defaults).
const (
	k1 = 1.2
	b  = 0.75
)

// Encoder holds the term statistics fit from one user's corpus.
// The zero value is a usable empty encoder: Encode returns empty vectors.
type Encoder struct {
	vocab     map[string]uint32
	idf       []float64 // indexed by vocab term index
	avgDocLen float64
	docCount  int
}

// Fit builds an encoder from a corpus of cleaned texts. Fitting is
// all-or-nothing over the given snapshot; an empty corpus yields a valid
// empty encoder, not an error. Vocabulary indices are assigned over sorted
// terms so identical corpora always produce identical encoders regardless
// of document ordering.
func Fit(corpus []string) Encoder {
	docFreq := make(map[string]int)
	var totalTokens int
	var docCount int

	for _, text := range corpus {
		tokens := Tokenize(text)
		if len(tokens) == 0 {
			continue
		}
		docCount++
		totalTokens += len(tokens)

		seen := make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			seen[t] = struct{}{}
		}
		for t := range seen {
			docFreq[t]++
		}
	}

	if docCount == 0 {
		return Encoder{}
	}

	terms := make([]string, 0, len(docFreq))
	for t := range docFreq {
		terms = append(terms, t)
	}
	sort.Strings(terms)

	vocab := make(map[string]uint32, len(terms))
	idf := make([]float64, len(terms))
	n := float64(docCount)
	for i, t := range terms {
		vocab[t] = uint32(i)
		df := float64(docFreq[t])
		idf[i] = math.Log(1.0 + (n-df+0.5)/(df+0.5))
	}

	return Encoder{
		vocab:     vocab,
		idf:       idf,
		avgDocLen: float64(totalTokens) / n,
		docCount:  docCount,
	}
}

// Encode computes a sparse weighted-term vector for text. Term weights use
// saturating term frequency with document-length normalization against the
// corpus average, multiplied by the fitted IDF. Terms outside the fitted
// vocabulary are dropped. On an empty encoder the result is always empty.
func (e Encoder) Encode(text string) domain.SparseVector {
	vec := domain.SparseVector{}
	if e.docCount == 0 {
		return vec
	}

	tokens := Tokenize(text)
	if len(tokens) == 0 {
		return vec
	}

	counts := make(map[string]int, len(tokens))
	for _, t := range tokens {
		counts[t]++
	}

	docLen := float64(len(tokens))
	norm := k1 * (1.0 - b + b*docLen/e.avgDocLen)

	for term, count := range counts {
		idx, ok := e.vocab[term]
		if !ok {
			continue
		}
		tf := float64(count)
		vec[idx] = e.idf[idx] * tf * (k1 + 1.0) / (tf + norm)
	}

	return vec
}

// VocabSize returns the number of fitted terms.
func (e Encoder) VocabSize() int { return len(e.vocab) }

// DocCount returns the number of documents the encoder was fit on.
func (e Encoder) DocCount() int { return e.docCount }

// IsEmpty reports whether the encoder was fit on an empty corpus.
func (e Encoder) IsEmpty() bool { return e.docCount == 0 }

// Tokenize splits text into case-normalized terms. Runs of letters and
// digits form terms; everything else separates them. No stemming.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
