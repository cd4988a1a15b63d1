package ingest

import (
	"context"

	"github.com/inboxlab/styledex/internal/domain"
)

// CorpusWriter is the storage contract for ingestion.
type CorpusWriter interface {
	EnsureCollection(ctx context.Context, userID string, dir domain.Direction, dim int) error
	Upsert(ctx context.Context, userID string, dir domain.Direction, points []domain.Point) error
}

// UserRegistrar records users in the active directory.
type UserRegistrar interface {
	Register(ctx context.Context, userID string) error
}

// BatchEmbedder vectorizes multiple texts in a single API call.
type BatchEmbedder interface {
	BatchEmbed(ctx context.Context, texts []string) (domain.BatchEmbeddingResult, error)
}
