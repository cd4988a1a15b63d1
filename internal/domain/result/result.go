// Package result defines the hybrid query result consumed by the draft
// generation layer.
package result

import "github.com/inboxlab/styledex/internal/domain"

// Scores is the per-signal score breakdown for one document.
type Scores struct {
	Semantic float64 `json:"semantic"`
	Lexical  float64 `json:"lexical"`
	Combined float64 `json:"combined"`
}

// Document is one ranked style exemplar.
type Document struct {
	ID      string         `json:"id"`
	Scores  Scores         `json:"scores"`
	Payload domain.Payload `json:"payload"`
}

// Stats are aggregate retrieval statistics for one search call.
type Stats struct {
	TotalCandidates  int     `json:"total_candidates"`
	FilteredCount    int     `json:"filtered_count"`
	AvgSemanticScore float64 `json:"avg_semantic_score"`
	SearchTimeMs     int64   `json:"search_time_ms"`
}

// QueryResult is the outcome of a hybrid search. An empty or missing corpus
// is a normal condition for new users: it produces Success=false with an
// explanatory Error, never a fault.
type QueryResult struct {
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	Documents []Document `json:"documents"`
	Stats     Stats      `json:"stats"`
}

// Failure builds an unsuccessful-but-valid result with a reason.
func Failure(reason string) QueryResult {
	return QueryResult{Success: false, Error: reason}
}
