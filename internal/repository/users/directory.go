// Package users tracks the set of active users known to styledex. The
// account-membership system is the authority; this directory is fed by
// ingestion and consumed by migration runs.
package users

import (
	"context"
	"fmt"
	"sort"

	"github.com/inboxlab/styledex/internal/domain"
)

var directoryKey = domain.KeyPrefix + "users"

// store is the consumer interface for the user directory.
type store interface {
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Directory is the Redis-set-backed active user registry.
type Directory struct {
	store store
}

// New creates a user directory.
func New(s store) *Directory {
	return &Directory{store: s}
}

// Register records a user as active. Idempotent.
func (d *Directory) Register(ctx context.Context, userID string) error {
	if err := d.store.SAdd(ctx, directoryKey, userID); err != nil {
		return fmt.Errorf("register user %s: %w", userID, err)
	}
	return nil
}

// ActiveUsers returns all registered users in a stable order.
func (d *Directory) ActiveUsers(ctx context.Context) ([]string, error) {
	members, err := d.store.SMembers(ctx, directoryKey)
	if err != nil {
		return nil, fmt.Errorf("list active users: %w", err)
	}
	sort.Strings(members)
	return members, nil
}
