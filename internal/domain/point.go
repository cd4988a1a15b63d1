package domain

import "time"

// SparseVector maps a vocabulary term index to its lexical relevance weight.
type SparseVector map[uint32]float64

// Dot returns the weighted dot product of two sparse vectors.
func (v SparseVector) Dot(other SparseVector) float64 {
	// Iterate the smaller map.
	if len(other) < len(v) {
		v, other = other, v
	}
	var sum float64
	for idx, w := range v {
		if ow, ok := other[idx]; ok {
			sum += w * ow
		}
	}
	return sum
}

// IsEmpty reports whether the vector carries no terms.
func (v SparseVector) IsEmpty() bool { return len(v) == 0 }

// Payload is the immutable-once-written metadata stored with a point.
type Payload struct {
	UserID      string
	Subject     string
	Counterpart string // recipient for sent mail, sender for received
	SentDate    time.Time
	Text        string // cleaned exemplar text used for both encodings
}

// Point is one indexed email: a dense vector, an optional sparse vector,
// and payload metadata. The dense vector is never null once written; the
// sparse vector is eventually consistent and may lag behind.
type Point struct {
	ID      string
	Dense   []float32
	Sparse  SparseVector // nil until lexical indexing has run
	Payload Payload
}

// Neighbor is one ranked hit from a nearest-neighbor retrieval.
type Neighbor struct {
	ID    string
	Score float64
}

// PointUpdate is a tagged partial-update request. Only fields explicitly set
// through the With* constructors are written; everything else is preserved.
// This keeps "write sparse only" from ever clobbering a dense vector.
type PointUpdate struct {
	id        string
	dense     []float32
	hasDense  bool
	sparse    SparseVector
	hasSparse bool
	payload   *Payload
}

// NewPointUpdate creates an empty update for the given point id.
func NewPointUpdate(id string) PointUpdate {
	return PointUpdate{id: id}
}

// WithDense marks the dense vector for replacement.
func (u PointUpdate) WithDense(v []float32) PointUpdate {
	u.dense = v
	u.hasDense = true
	return u
}

// WithSparse marks the sparse vector for replacement.
func (u PointUpdate) WithSparse(v SparseVector) PointUpdate {
	u.sparse = v
	u.hasSparse = true
	return u
}

// WithPayload marks the payload for replacement.
func (u PointUpdate) WithPayload(p Payload) PointUpdate {
	u.payload = &p
	return u
}

// ID returns the point identifier.
func (u PointUpdate) ID() string { return u.id }

// HasDense reports whether the update carries a dense vector.
func (u PointUpdate) HasDense() bool { return u.hasDense }

// Dense returns the dense vector to write.
func (u PointUpdate) Dense() []float32 { return u.dense }

// HasSparse reports whether the update carries a sparse vector.
func (u PointUpdate) HasSparse() bool { return u.hasSparse }

// Sparse returns the sparse vector to write.
func (u PointUpdate) Sparse() SparseVector { return u.sparse }

// HasPayload reports whether the update carries a payload.
func (u PointUpdate) HasPayload() bool { return u.payload != nil }

// Payload returns the payload to write.
func (u PointUpdate) Payload() Payload { return *u.payload }
