package domain

import "errors"

var (
	// ErrCollectionNotFound signals that no corpus exists for a user/direction pair.
	ErrCollectionNotFound = errors.New("collection not found")
	// ErrPointNotFound signals a missing point.
	ErrPointNotFound = errors.New("point not found")
	// ErrInvalidDirection signals an unknown email direction.
	ErrInvalidDirection = errors.New("invalid direction")
	// ErrInvalidUserID signals a user id unusable as a storage key segment.
	ErrInvalidUserID = errors.New("invalid user id")
	// ErrVectorDimMismatch signals a dense vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrRateLimited signals a rate limit hit.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
)
