package query

import (
	"sort"

	"github.com/inboxlab/styledex/internal/domain"
)

// candidate is one fused hit with its per-signal normalized scores.
type candidate struct {
	id       string
	semantic float64
	lexical  float64
	combined float64
}

// fuseParams are the fixed fusion settings for one search call.
type fuseParams struct {
	semanticWeight float64
	lexicalWeight  float64
	// floor is the normalized score imputed when a candidate was never
	// retrieved by one of the signals. Imputing a fixed floor keeps such
	// candidates rankable instead of silently dropping them.
	floor float64
	// lexicalActive is false when no lexical encoder has ever been fit for
	// the user; combined then equals the semantic score.
	lexicalActive bool
}

// fuse unions the dense and sparse candidate sets and combines their scores.
//
// Semantic scores arrive as cosine similarity already clamped to [0,1].
// Lexical scores are raw dot products on an unbounded scale, so they are
// normalized by the maximum within the retrieved set before weighting.
// The result is ordered by combined score descending, ties broken by id
// for determinism.
func fuse(dense, sparse []domain.Neighbor, p fuseParams) []candidate {
	maxLex := 0.0
	for _, n := range sparse {
		if n.Score > maxLex {
			maxLex = n.Score
		}
	}

	merged := make(map[string]*candidate, len(dense)+len(sparse))
	for _, n := range dense {
		merged[n.ID] = &candidate{id: n.ID, semantic: n.Score, lexical: p.floor}
	}
	for _, n := range sparse {
		norm := 0.0
		if maxLex > 0 {
			norm = n.Score / maxLex
		}
		if c, ok := merged[n.ID]; ok {
			c.lexical = norm
		} else {
			merged[n.ID] = &candidate{id: n.ID, semantic: p.floor, lexical: norm}
		}
	}

	out := make([]candidate, 0, len(merged))
	for _, c := range merged {
		if p.lexicalActive {
			c.combined = p.semanticWeight*c.semantic + p.lexicalWeight*c.lexical
		} else {
			c.combined = c.semantic
		}
		out = append(out, *c)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].combined != out[j].combined {
			return out[i].combined > out[j].combined
		}
		return out[i].id < out[j].id
	})

	return out
}
