// Package corpus implements the per-user, per-direction point store on
// Redis hashes with an FT vector index per collection.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/inboxlab/styledex/internal/db"
	"github.com/inboxlab/styledex/internal/domain"
)

// store is the consumer interface for corpus operations.
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HSetMulti(ctx context.Context, items []db.HashSetItem) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	HGetFieldMulti(ctx context.Context, keys []string, field string) ([]string, error)
	ScanPage(ctx context.Context, pattern string, cursor uint64, count int) ([]string, uint64, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// Repo is the Redis-backed corpus store.
type Repo struct {
	store           store
	hnswM           int
	hnswEFConstruct int
}

// New creates a corpus repository.
func New(s store, hnswM, hnswEFConstruct int) *Repo {
	return &Repo{store: s, hnswM: hnswM, hnswEFConstruct: hnswEFConstruct}
}

// EnsureCollection creates the FT vector index for a (user, direction)
// collection if it does not exist yet. Idempotent.
func (r *Repo) EnsureCollection(ctx context.Context, userID string, dir domain.Direction, dim int) error {
	if err := validateScope(userID, dir); err != nil {
		return err
	}

	def := &db.IndexDefinition{
		Name:     indexName(userID, dir),
		Prefixes: []string{keyPrefix(userID, dir)},
		Fields: []db.IndexField{{
			Name:              fieldVector,
			Type:              db.IndexFieldVector,
			VectorAlgo:        db.VectorHNSW,
			VectorDim:         dim,
			VectorDistance:    db.DistanceCosine,
			VectorM:           r.hnswM,
			VectorEFConstruct: r.hnswEFConstruct,
		}},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create index %s: %w", def.Name, err)
	}
	return nil
}

// Exists reports whether a collection has been created for the scope.
func (r *Repo) Exists(ctx context.Context, userID string, dir domain.Direction) (bool, error) {
	if err := validateScope(userID, dir); err != nil {
		return false, err
	}
	ok, err := r.store.IndexExists(ctx, indexName(userID, dir))
	if err != nil {
		return false, fmt.Errorf("index exists %s: %w", indexName(userID, dir), err)
	}
	return ok, nil
}

// Count returns the number of points in a collection.
func (r *Repo) Count(ctx context.Context, userID string, dir domain.Direction) (int, error) {
	n, err := r.store.SearchCount(ctx, indexName(userID, dir), "*")
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return 0, domain.ErrCollectionNotFound
		}
		return 0, fmt.Errorf("count %s/%s: %w", userID, dir, err)
	}
	return n, nil
}

// Upsert writes full points, pipelined. Idempotent by point id: re-writing
// the same id replaces the written fields.
func (r *Repo) Upsert(ctx context.Context, userID string, dir domain.Direction, points []domain.Point) error {
	if err := validateScope(userID, dir); err != nil {
		return err
	}
	if len(points) == 0 {
		return nil
	}

	items := make([]db.HashSetItem, 0, len(points))
	for i := range points {
		fields, err := pointToFields(&points[i])
		if err != nil {
			return fmt.Errorf("encode point %s: %w", points[i].ID, err)
		}
		items = append(items, db.HashSetItem{
			Key:    pointKey(userID, dir, points[i].ID),
			Fields: fields,
		})
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("upsert %d points %s/%s: %w", len(points), userID, dir, err)
	}
	return nil
}

// ApplyUpdates writes tagged partial updates, pipelined. Fields absent from
// an update are preserved, so a sparse-only write never touches the dense
// vector or payload.
func (r *Repo) ApplyUpdates(ctx context.Context, userID string, dir domain.Direction, updates []domain.PointUpdate) error {
	if err := validateScope(userID, dir); err != nil {
		return err
	}

	items := make([]db.HashSetItem, 0, len(updates))
	for _, u := range updates {
		fields, err := updateToFields(u)
		if err != nil {
			return fmt.Errorf("encode update %s: %w", u.ID(), err)
		}
		if len(fields) == 0 {
			continue
		}
		items = append(items, db.HashSetItem{
			Key:    pointKey(userID, dir, u.ID()),
			Fields: fields,
		})
	}
	if len(items) == 0 {
		return nil
	}

	if err := r.store.HSetMulti(ctx, items); err != nil {
		return fmt.Errorf("apply %d updates %s/%s: %w", len(items), userID, dir, err)
	}
	return nil
}

// GetPoints fetches points by id in one round-trip. Missing ids are skipped.
func (r *Repo) GetPoints(ctx context.Context, userID string, dir domain.Direction, ids []string) ([]domain.Point, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = pointKey(userID, dir, id)
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get %d points %s/%s: %w", len(ids), userID, dir, err)
	}

	points := make([]domain.Point, 0, len(ids))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		p, err := parsePoint(ids[i], m)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}
	return points, nil
}

// ScanPage enumerates one page of a collection's points. A zero returned
// cursor means the scan is complete. Only one page is ever materialized.
func (r *Repo) ScanPage(
	ctx context.Context, userID string, dir domain.Direction, cursor uint64, count int,
) ([]domain.Point, uint64, error) {
	if err := validateScope(userID, dir); err != nil {
		return nil, 0, err
	}

	prefix := keyPrefix(userID, dir)
	keys, next, err := r.store.ScanPage(ctx, prefix+"*", cursor, count)
	if err != nil {
		return nil, 0, fmt.Errorf("scan %s/%s: %w", userID, dir, err)
	}
	if len(keys) == 0 {
		return nil, next, nil
	}

	maps, err := r.store.HGetAllMulti(ctx, keys)
	if err != nil {
		return nil, 0, fmt.Errorf("scan fetch %s/%s: %w", userID, dir, err)
	}

	points := make([]domain.Point, 0, len(keys))
	for i, m := range maps {
		if len(m) == 0 {
			continue
		}
		p, err := parsePoint(strings.TrimPrefix(keys[i], prefix), m)
		if err != nil {
			return nil, 0, err
		}
		points = append(points, p)
	}
	return points, next, nil
}

// NearestByDense retrieves the k cosine-nearest points via FT.SEARCH KNN.
// Scores come back normalized to [0,1] similarity.
func (r *Repo) NearestByDense(
	ctx context.Context, userID string, dir domain.Direction, vector []float32, k int,
) ([]domain.Neighbor, error) {
	if err := validateScope(userID, dir); err != nil {
		return nil, err
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName: indexName(userID, dir),
		Vector:    vector,
		K:         k,
	})
	if err != nil {
		if errors.Is(err, db.ErrIndexNotFound) {
			return nil, domain.ErrCollectionNotFound
		}
		return nil, fmt.Errorf("knn %s/%s: %w", userID, dir, err)
	}

	prefix := keyPrefix(userID, dir)
	neighbors := make([]domain.Neighbor, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		neighbors = append(neighbors, domain.Neighbor{
			ID:    strings.TrimPrefix(entry.Key, prefix),
			Score: entry.Score,
		})
	}
	return neighbors, nil
}

// NearestBySparse retrieves the k points with the highest weighted dot
// product against the query sparse vector. Stored sparse vectors are scored
// in-process, one scan page at a time; points whose sparse vector is absent
// (mid-migration) or disjoint from the query simply never rank, they are
// not errors.
func (r *Repo) NearestBySparse(
	ctx context.Context, userID string, dir domain.Direction, query domain.SparseVector, k int,
) ([]domain.Neighbor, error) {
	if err := validateScope(userID, dir); err != nil {
		return nil, err
	}
	if query.IsEmpty() || k <= 0 {
		return nil, nil
	}

	prefix := keyPrefix(userID, dir)
	var neighbors []domain.Neighbor
	var cursor uint64

	for {
		keys, next, err := r.store.ScanPage(ctx, prefix+"*", cursor, sparseScanPageSize)
		if err != nil {
			return nil, fmt.Errorf("sparse scan %s/%s: %w", userID, dir, err)
		}

		if len(keys) > 0 {
			raws, err := r.store.HGetFieldMulti(ctx, keys, fieldSparse)
			if err != nil {
				return nil, fmt.Errorf("sparse fetch %s/%s: %w", userID, dir, err)
			}
			for i, raw := range raws {
				if raw == "" {
					continue
				}
				stored, err := sparseFromJSON(raw)
				if err != nil {
					return nil, fmt.Errorf("point %s: %w", keys[i], err)
				}
				if score := query.Dot(stored); score > 0 {
					neighbors = append(neighbors, domain.Neighbor{
						ID:    strings.TrimPrefix(keys[i], prefix),
						Score: score,
					})
				}
			}
		}

		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Slice(neighbors, func(i, j int) bool {
		if neighbors[i].Score != neighbors[j].Score {
			return neighbors[i].Score > neighbors[j].Score
		}
		return neighbors[i].ID < neighbors[j].ID
	})
	if len(neighbors) > k {
		neighbors = neighbors[:k]
	}
	return neighbors, nil
}

// sparseScanPageSize bounds how many keys a sparse scoring pass holds at once.
const sparseScanPageSize = 200

func keyPrefix(userID string, dir domain.Direction) string {
	return fmt.Sprintf("%scorpus:%s:%s:", domain.KeyPrefix, userID, dir)
}

func pointKey(userID string, dir domain.Direction, id string) string {
	return keyPrefix(userID, dir) + id
}

func indexName(userID string, dir domain.Direction) string {
	return fmt.Sprintf("%scorpus:%s:%s:idx", domain.KeyPrefix, userID, dir)
}

func validateScope(userID string, dir domain.Direction) error {
	if userID == "" || !db.IsValidIdentifier(userID) || strings.ContainsRune(userID, ':') {
		return fmt.Errorf("%w: %q", domain.ErrInvalidUserID, userID)
	}
	if !dir.Valid() {
		return fmt.Errorf("%w: %q", domain.ErrInvalidDirection, dir)
	}
	return nil
}
