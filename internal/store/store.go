// Package store defines the authoritative record store for reviews and users.
package store

import (
	"context"
	"errors"

	"github.com/hyperjump/kotae/internal/models"
)

// ErrNoKeys is returned when a fetch is issued with an empty key set.
var ErrNoKeys = errors.New("store: empty key set")

// RecordStore is the authoritative relational storage for review records.
// It owns the Record projection; retrieval only reads it.
type RecordStore interface {
	// FetchByKeys returns the records for the given keys that match the
	// filter. Filtering happens inside the query; rows that do not match are
	// never returned. The output order is unspecified.
	FetchByKeys(ctx context.Context, keys []int64, filter models.Filter) ([]models.Record, error)

	// FetchAllTexts returns every eligible (key, text) pair for index
	// building. Eligible means non-null, non-empty review text.
	FetchAllTexts(ctx context.Context) ([]models.RecordText, error)

	// InsertUsers and InsertReviews bulk-load rows, used by ingestion.
	InsertUsers(ctx context.Context, users []models.User) error
	InsertReviews(ctx context.Context, reviews []models.Review) error

	// Stats
	CountUsers(ctx context.Context) (int64, error)
	CountReviews(ctx context.Context) (int64, error)

	Close() error
}
