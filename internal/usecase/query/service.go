// Package query implements the hybrid semantic+lexical search over one
// user's corpus.
package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/domain/result"
	"github.com/inboxlab/styledex/internal/logger"
	"github.com/inboxlab/styledex/internal/metrics"
)

// DefaultLimit is the result count used when the caller passes none.
const DefaultLimit = 10

// Params are the fixed retrieval settings, from configuration.
type Params struct {
	OverfetchMultiplier int
	SemanticWeight      float64
	LexicalWeight       float64
	MissingSignalFloor  float64
	Timeout             time.Duration
}

// Service executes hybrid searches. Queries read only persisted state (the
// stored sparse vectors and the last saved encoder snapshot), so they stay
// consistent with whatever the store holds even while a migration is
// rewriting sparse vectors.
type Service struct {
	corpus   CorpusReader
	encoders EncoderLoader
	embed    Embedder
	params   Params
}

// New creates a query service.
func New(corpus CorpusReader, encoders EncoderLoader, embed Embedder, params Params) *Service {
	if params.OverfetchMultiplier <= 0 {
		params.OverfetchMultiplier = 5
	}
	return &Service{corpus: corpus, encoders: encoders, embed: embed, params: params}
}

// Search runs one hybrid query over the (userID, direction) collection.
//
// A missing or empty collection yields an unsuccessful QueryResult and a
// nil error: that is the normal state for users with no history yet. A
// semantic encoder failure fails the whole call — no combined score is
// meaningful without the dense signal.
func (s *Service) Search(
	ctx context.Context, userID string, dir domain.Direction,
	queryText string, limit int, scoreThreshold float64,
) (result.QueryResult, error) {
	start := time.Now()
	log := logger.FromContext(ctx)

	if limit <= 0 {
		limit = DefaultLimit
	}

	if s.params.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.params.Timeout)
		defer cancel()
	}

	exists, err := s.corpus.Exists(ctx, userID, dir)
	if err != nil {
		return s.fail(dir, start, fmt.Errorf("check collection: %w", err))
	}
	if !exists {
		return s.emptyResult(dir, start, fmt.Sprintf("no %s corpus for user %s", dir, userID)), nil
	}
	count, err := s.corpus.Count(ctx, userID, dir)
	if err != nil && !errors.Is(err, domain.ErrCollectionNotFound) {
		return s.fail(dir, start, fmt.Errorf("count collection: %w", err))
	}
	if count == 0 {
		return s.emptyResult(dir, start, fmt.Sprintf("empty %s corpus for user %s", dir, userID)), nil
	}

	embRes, err := s.embed.Embed(ctx, queryText)
	if err != nil {
		return s.fail(dir, start, fmt.Errorf("vectorize query: %w", err))
	}

	enc, encoderFound, err := s.encoders.Load(ctx, userID)
	if err != nil {
		return s.fail(dir, start, fmt.Errorf("load lexical encoder: %w", err))
	}
	lexicalActive := encoderFound && !enc.IsEmpty()

	var querySparse domain.SparseVector
	if lexicalActive {
		querySparse = enc.Encode(queryText)
	}

	topN := limit * s.params.OverfetchMultiplier

	// The two retrievals are independent: fan out, join before fusion.
	var dense, sparse []domain.Neighbor
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		dense, err = s.corpus.NearestByDense(gctx, userID, dir, embRes.Embedding, topN)
		return err
	})
	if lexicalActive && !querySparse.IsEmpty() {
		g.Go(func() error {
			var err error
			sparse, err = s.corpus.NearestBySparse(gctx, userID, dir, querySparse, topN)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, domain.ErrCollectionNotFound) {
			return s.emptyResult(dir, start, fmt.Sprintf("no %s corpus for user %s", dir, userID)), nil
		}
		return s.fail(dir, start, fmt.Errorf("retrieve candidates: %w", err))
	}

	candidates := fuse(dense, sparse, fuseParams{
		semanticWeight: s.params.SemanticWeight,
		lexicalWeight:  s.params.LexicalWeight,
		floor:          s.params.MissingSignalFloor,
		lexicalActive:  lexicalActive,
	})

	kept := candidates[:0:len(candidates)]
	for _, c := range candidates {
		if c.combined >= scoreThreshold {
			kept = append(kept, c)
		}
	}
	if len(kept) > limit {
		kept = kept[:limit]
	}

	docs, err := s.loadDocuments(ctx, userID, dir, kept)
	if err != nil {
		return s.fail(dir, start, err)
	}

	res := result.QueryResult{
		Success:   true,
		Documents: docs,
		Stats: result.Stats{
			TotalCandidates:  len(candidates),
			FilteredCount:    len(docs),
			AvgSemanticScore: avgScore(dense),
			SearchTimeMs:     time.Since(start).Milliseconds(),
		},
	}

	metrics.SearchDuration.WithLabelValues(string(dir), "success").Observe(time.Since(start).Seconds())
	metrics.SearchCandidates.WithLabelValues(string(dir)).Observe(float64(len(candidates)))
	log.Debug("hybrid search done",
		zap.String("user_id", userID),
		zap.String("direction", string(dir)),
		zap.Int("candidates", len(candidates)),
		zap.Int("returned", len(docs)),
		zap.Bool("lexical", lexicalActive),
	)

	return res, nil
}

// loadDocuments resolves fused candidates into payload-bearing documents,
// preserving rank order.
func (s *Service) loadDocuments(
	ctx context.Context, userID string, dir domain.Direction, kept []candidate,
) ([]result.Document, error) {
	ids := make([]string, len(kept))
	for i, c := range kept {
		ids[i] = c.id
	}

	points, err := s.corpus.GetPoints(ctx, userID, dir, ids)
	if err != nil {
		return nil, fmt.Errorf("load result payloads: %w", err)
	}
	byID := make(map[string]domain.Point, len(points))
	for _, p := range points {
		byID[p.ID] = p
	}

	docs := make([]result.Document, 0, len(kept))
	for _, c := range kept {
		p, ok := byID[c.id]
		if !ok {
			// Deleted between retrieval and load; skip.
			continue
		}
		docs = append(docs, result.Document{
			ID: c.id,
			Scores: result.Scores{
				Semantic: c.semantic,
				Lexical:  c.lexical,
				Combined: c.combined,
			},
			Payload: p.Payload,
		})
	}
	return docs, nil
}

func (s *Service) emptyResult(dir domain.Direction, start time.Time, reason string) result.QueryResult {
	metrics.SearchDuration.WithLabelValues(string(dir), "empty").Observe(time.Since(start).Seconds())
	res := result.Failure(reason)
	res.Stats.SearchTimeMs = time.Since(start).Milliseconds()
	return res
}

func (s *Service) fail(dir domain.Direction, start time.Time, err error) (result.QueryResult, error) {
	metrics.SearchDuration.WithLabelValues(string(dir), "error").Observe(time.Since(start).Seconds())
	return result.QueryResult{}, err
}

func avgScore(neighbors []domain.Neighbor) float64 {
	if len(neighbors) == 0 {
		return 0
	}
	var sum float64
	for _, n := range neighbors {
		sum += n.Score
	}
	return sum / float64(len(neighbors))
}
