// Package encoders persists fitted lexical encoder snapshots per user.
//
// The snapshot is derived data: every migration pass re-fits from the
// corpus and overwrites it. Queries load it only to map query terms onto
// the same vocabulary indices the stored sparse vectors use.
package encoders

import (
	"context"
	"errors"
	"fmt"

	"github.com/inboxlab/styledex/internal/db"
	"github.com/inboxlab/styledex/internal/domain"
	"github.com/inboxlab/styledex/internal/domain/lexical"
)

var encKeyPrefix = domain.KeyPrefix + "encoder:"

// store is the consumer interface for encoder snapshots.
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Repo stores encoder snapshots in the KV store.
type Repo struct {
	store store
}

// New creates an encoder snapshot repository.
func New(s store) *Repo {
	return &Repo{store: s}
}

// Save persists a fitted encoder for a user, replacing any previous snapshot.
func (r *Repo) Save(ctx context.Context, userID string, enc lexical.Encoder) error {
	data, err := enc.Marshal()
	if err != nil {
		return fmt.Errorf("save encoder for %s: %w", userID, err)
	}
	if err := r.store.Set(ctx, encKeyPrefix+userID, data); err != nil {
		return fmt.Errorf("save encoder for %s: %w", userID, err)
	}
	return nil
}

// Load returns the persisted encoder for a user. The second return value is
// false when no encoder has ever been fit for the user — an expected state
// for corpora that predate lexical indexing.
func (r *Repo) Load(ctx context.Context, userID string) (lexical.Encoder, bool, error) {
	data, err := r.store.Get(ctx, encKeyPrefix+userID)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return lexical.Encoder{}, false, nil
		}
		return lexical.Encoder{}, false, fmt.Errorf("load encoder for %s: %w", userID, err)
	}

	enc, err := lexical.Unmarshal(data)
	if err != nil {
		return lexical.Encoder{}, false, fmt.Errorf("load encoder for %s: %w", userID, err)
	}
	return enc, true, nil
}
