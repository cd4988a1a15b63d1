// Package ingest writes cleaned emails from the upstream processing
// pipeline into the corpus store. Texts arrive already stripped of quoted
// content and signatures; this layer embeds them and stores dense points.
// Sparse vectors are filled in later by the migration pipeline.
package ingest

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/logger"
)

// Email is one cleaned email handed over by the upstream pipeline.
type Email struct {
	ID          string
	Text        string
	Subject     string
	Counterpart string
	SentDate    time.Time
}

// Service ingests emails into per-user, per-direction collections.
type Service struct {
	corpus CorpusWriter
	users  UserRegistrar
	embed  BatchEmbedder
	dim    int
}

// New creates an ingest service. dim is the deployment's dense vector
// dimensionality, used when creating collections.
func New(corpus CorpusWriter, users UserRegistrar, embed BatchEmbedder, dim int) *Service {
	return &Service{corpus: corpus, users: users, embed: embed, dim: dim}
}

// Ingest embeds and stores a batch of emails for one user and direction.
// Returns the number of points written. Upserts are idempotent by email id,
// so re-delivery from the upstream pipeline is harmless.
func (s *Service) Ingest(
	ctx context.Context, userID string, dir domain.Direction, emails []Email,
) (int, error) {
	if len(emails) == 0 {
		return 0, nil
	}
	for _, e := range emails {
		if e.ID == "" {
			return 0, fmt.Errorf("email without id for user %s", userID)
		}
		if e.Text == "" {
			return 0, fmt.Errorf("email %s has no text", e.ID)
		}
	}

	texts := make([]string, len(emails))
	for i, e := range emails {
		texts[i] = e.Text
	}

	// One provider call for the whole batch.
	batch, err := s.embed.BatchEmbed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %d emails: %w", len(emails), err)
	}
	for i, v := range batch.Embeddings {
		if len(v) != s.dim {
			return 0, fmt.Errorf(
				"email %s: got %d dims, want %d: %w",
				emails[i].ID, len(v), s.dim, domain.ErrVectorDimMismatch,
			)
		}
	}

	if err := s.corpus.EnsureCollection(ctx, userID, dir, s.dim); err != nil {
		return 0, fmt.Errorf("ensure collection: %w", err)
	}

	points := make([]domain.Point, len(emails))
	for i, e := range emails {
		points[i] = domain.Point{
			ID:    e.ID,
			Dense: batch.Embeddings[i],
			Payload: domain.Payload{
				UserID:      userID,
				Subject:     e.Subject,
				Counterpart: e.Counterpart,
				SentDate:    e.SentDate,
				Text:        e.Text,
			},
		}
	}

	if err := s.corpus.Upsert(ctx, userID, dir, points); err != nil {
		return 0, fmt.Errorf("upsert points: %w", err)
	}

	if err := s.users.Register(ctx, userID); err != nil {
		return 0, fmt.Errorf("register user: %w", err)
	}

	logger.FromContext(ctx).Info("ingested emails",
		zap.String("user_id", userID),
		zap.String("direction", string(dir)),
		zap.Int("count", len(points)),
		zap.Int("embedding_tokens", batch.TotalTokens),
	)

	return len(points), nil
}
