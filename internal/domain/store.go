package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by store lookups when no document matches the
// filter. Callers must be able to distinguish "not found" from "failed".
var ErrNotFound = errors.New("document not found")

// Filter selects documents by field equality/containment.
type Filter map[string]any

// Update holds the fields a write replaces on the matched document.
type Update map[string]any

// Store is the contract the cache/retry layer requires from a persistent
// store. Raw errors returned from this boundary are the sole input to the
// error classifier; implementations must not pre-classify them.
type Store interface {
	// Insert persists a new document and decodes the stored form into out.
	Insert(ctx context.Context, collection string, doc any, out any) error

	// FindOne decodes the first matching document into out, or returns
	// ErrNotFound.
	FindOne(ctx context.Context, collection string, filter Filter, out any) error

	// Find decodes up to limit matching documents into out (a pointer to a
	// slice). limit <= 0 means no limit.
	Find(ctx context.Context, collection string, filter Filter, limit int, out any) error

	// UpdateOne applies patch to the first matching document and decodes the
	// result into out. With upsert, a missing document is created from the
	// filter plus patch; without it, a missing document returns ErrNotFound.
	UpdateOne(ctx context.Context, collection string, filter Filter, patch Update, upsert bool, out any) error

	// DeleteOne removes the first matching document, returning the number of
	// documents deleted (0 or 1).
	DeleteOne(ctx context.Context, collection string, filter Filter) (int64, error)

	// Count returns the number of matching documents.
	Count(ctx context.Context, collection string, filter Filter) (int64, error)
}
