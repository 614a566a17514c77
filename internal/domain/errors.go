package domain

import "errors"

var (
	// ErrInvalidInput signals an empty or whitespace-only question.
	ErrInvalidInput = errors.New("invalid input")
	// ErrEmbeddingUnavailable signals an embedding provider failure.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrGenerativeUnavailable signals a generative provider failure.
	ErrGenerativeUnavailable = errors.New("generative provider unavailable")
	// ErrStoreUnavailable signals a corpus store failure.
	ErrStoreUnavailable = errors.New("corpus store unavailable")
	// ErrDimensionMismatch signals a vector of the wrong dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	// ErrCollectionNotFound signals an unknown collection.
	ErrCollectionNotFound = errors.New("collection not found")
)
