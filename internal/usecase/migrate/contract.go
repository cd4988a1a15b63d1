package migrate

import (
	"context"

	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/domain/lexical"
)

// CorpusStore is the storage contract for sparse re-indexing.
type CorpusStore interface {
	Exists(ctx context.Context, userID string, dir domain.Direction) (bool, error)
	ScanPage(ctx context.Context, userID string, dir domain.Direction, cursor uint64, count int) ([]domain.Point, uint64, error)
	ApplyUpdates(ctx context.Context, userID string, dir domain.Direction, updates []domain.PointUpdate) error
}

// EncoderSaver persists fitted encoder snapshots per user.
type EncoderSaver interface {
	Save(ctx context.Context, userID string, enc lexical.Encoder) error
}

// UserDirectory enumerates active users.
type UserDirectory interface {
	ActiveUsers(ctx context.Context) ([]string, error)
}

// Pinger checks that the store is reachable before a run starts.
type Pinger interface {
	Ping(ctx context.Context) error
}
