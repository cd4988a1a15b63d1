package query

import (
	"context"

	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/domain/lexical"
)

// CorpusReader is the storage contract for hybrid retrieval.
type CorpusReader interface {
	Exists(ctx context.Context, userID string, dir domain.Direction) (bool, error)
	Count(ctx context.Context, userID string, dir domain.Direction) (int, error)
	NearestByDense(ctx context.Context, userID string, dir domain.Direction, vector []float32, k int) ([]domain.Neighbor, error)
	NearestBySparse(ctx context.Context, userID string, dir domain.Direction, query domain.SparseVector, k int) ([]domain.Neighbor, error)
	GetPoints(ctx context.Context, userID string, dir domain.Direction, ids []string) ([]domain.Point, error)
}

// EncoderLoader loads the last persisted lexical encoder snapshot for a user.
type EncoderLoader interface {
	Load(ctx context.Context, userID string) (enc lexical.Encoder, found bool, err error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}
