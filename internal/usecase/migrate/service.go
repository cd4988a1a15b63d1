// Package migrate back-fills sparse vectors onto an already-populated
// corpus without taking it offline. Dense vectors and payloads are never
// touched: every write is a tagged sparse-only partial update, so
// concurrent queries at worst see a point that is temporarily missing its
// lexical score.
package migrate

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/domain/lexical"
	"github.com/inboxlab/styledex/internal/logger"
	"github.com/inboxlab/styledex/internal/metrics"
)

// Service runs sparse re-indexing over all active users.
type Service struct {
	corpus    CorpusStore
	encoders  EncoderSaver
	users     UserDirectory
	pinger    Pinger
	batchSize int
	pageSize  int
}

// New creates a migration service.
func New(
	corpus CorpusStore, encoders EncoderSaver, users UserDirectory, pinger Pinger,
	batchSize, pageSize int,
) *Service {
	if batchSize <= 0 {
		batchSize = 100
	}
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Service{
		corpus: corpus, encoders: encoders, users: users, pinger: pinger,
		batchSize: batchSize, pageSize: pageSize,
	}
}

// Run executes one full migration pass. Only top-level failures (store
// unreachable, users not enumerable) are terminal; per-user and per-batch
// failures are recorded in the report and skipped. Re-running after an
// interruption is safe because every write is an idempotent upsert keyed
// by point id.
func (s *Service) Run(ctx context.Context) (Report, error) {
	log := logger.FromContext(ctx)
	var report Report

	state := StateNotStarted

	if err := s.pinger.Ping(ctx); err != nil {
		return report, fmt.Errorf("store not reachable in state %s: %w", state, err)
	}
	state = StateSchemaChecked

	userIDs, err := s.users.ActiveUsers(ctx)
	if err != nil {
		return report, fmt.Errorf("enumerate users in state %s: %w", state, err)
	}
	state = StateUsersEnumerated
	log.Info("migration starting", zap.Int("users", len(userIDs)))

	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("migration interrupted: %w", err)
		}

		updated, err := s.migrateUser(ctx, userID, &report)
		report.UsersProcessed++
		report.PointsUpdated += updated
		if err != nil {
			report.AddError("user %s: %v", userID, err)
			metrics.MigrationErrorsTotal.Inc()
			continue
		}
		log.Info("user migrated", zap.String("user_id", userID), zap.Int("points", updated))
	}

	state = StateSummarized
	metrics.MigrationPointsUpdated.Add(float64(report.PointsUpdated))
	log.Info("migration finished",
		zap.String("state", string(state)),
		zap.Int("users", report.UsersProcessed),
		zap.Int("points", report.PointsUpdated),
		zap.Int("errors", len(report.Errors)),
	)

	return report, nil
}

// migrateUser fits the user's encoder on their sent corpus and re-encodes
// both directions. A user with no sent mail is not an error: fitting an
// empty corpus yields an empty encoder and zero updates.
func (s *Service) migrateUser(ctx context.Context, userID string, report *Report) (int, error) {
	// Fitting: the sent corpus is the canonical style corpus.
	sent, err := s.loadCorpus(ctx, userID, domain.DirectionSent)
	if err != nil {
		return 0, fmt.Errorf("state %s: %w", StateFitting, err)
	}

	texts := make([]string, len(sent))
	for i := range sent {
		texts[i] = sent[i].Payload.Text
	}
	enc := lexical.Fit(texts)

	if err := s.encoders.Save(ctx, userID, enc); err != nil {
		return 0, fmt.Errorf("state %s: %w", StateFitting, err)
	}
	if enc.IsEmpty() {
		return 0, nil
	}

	var updated int
	for _, dir := range []domain.Direction{domain.DirectionSent, domain.DirectionReceived} {
		var points []domain.Point
		if dir == domain.DirectionSent {
			points = sent
		} else {
			points, err = s.loadCorpus(ctx, userID, dir)
			if err != nil {
				report.AddError("user %s/%s state %s: %v", userID, dir, StateEncoding, err)
				metrics.MigrationErrorsTotal.Inc()
				continue
			}
		}

		n, err := s.encodeAndUpsert(ctx, userID, dir, enc, points, report)
		updated += n
		if err != nil {
			return updated, err
		}
	}

	return updated, nil
}

// encodeAndUpsert writes sparse vectors for points in fixed-size batches.
// A failed batch is recorded and skipped; the rest of the corpus still
// gets indexed.
func (s *Service) encodeAndUpsert(
	ctx context.Context, userID string, dir domain.Direction,
	enc lexical.Encoder, points []domain.Point, report *Report,
) (int, error) {
	updates := make([]domain.PointUpdate, 0, len(points))
	for i := range points {
		vec := enc.Encode(points[i].Payload.Text)
		if vec.IsEmpty() {
			continue
		}
		updates = append(updates, domain.NewPointUpdate(points[i].ID).WithSparse(vec))
	}

	var updated int
	for start := 0; start < len(updates); start += s.batchSize {
		end := min(start+s.batchSize, len(updates))
		batch := updates[start:end]

		if err := s.corpus.ApplyUpdates(ctx, userID, dir, batch); err != nil {
			report.AddError("user %s/%s state %s batch %d-%d: %v", userID, dir, StateUpserting, start, end, err)
			metrics.MigrationErrorsTotal.Inc()
			continue
		}
		updated += len(batch)
	}

	return updated, nil
}

// loadCorpus pages through a whole collection. A collection that was never
// created reads as empty.
func (s *Service) loadCorpus(ctx context.Context, userID string, dir domain.Direction) ([]domain.Point, error) {
	exists, err := s.corpus.Exists(ctx, userID, dir)
	if err != nil {
		return nil, fmt.Errorf("check %s corpus: %w", dir, err)
	}
	if !exists {
		return nil, nil
	}

	var all []domain.Point
	var cursor uint64
	for {
		points, next, err := s.corpus.ScanPage(ctx, userID, dir, cursor, s.pageSize)
		if err != nil {
			return nil, fmt.Errorf("scan %s corpus: %w", dir, err)
		}
		all = append(all, points...)
		cursor = next
		if cursor == 0 {
			return all, nil
		}
	}
}
