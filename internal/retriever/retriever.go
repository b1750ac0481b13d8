// Package retriever turns a query string into relevance-ordered records.
package retriever

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
)

// Status classifies a retrieval outcome so callers branch on kind instead of
// sniffing errors.
type Status int

const (
	// StatusOK means at least one record was retrieved.
	StatusOK Status = iota
	// StatusEmpty means the pipeline ran but nothing survived search,
	// resolution, or filtering. A valid outcome, not an error.
	StatusEmpty
	// StatusIndexUnavailable means no index snapshot has been published yet.
	StatusIndexUnavailable
)

// Result is a retrieval outcome: the status kind and the records in
// relevance order (nearest first).
type Result struct {
	Status  Status
	Records []models.Record
}

// Retriever embeds a query, searches the serving snapshot, resolves matches
// to record keys, and fetches the records with filters pushed into the store.
type Retriever struct {
	embedder embedding.Embedder
	registry *vector.Registry
	store    store.RecordStore
	logger   *zap.Logger
}

// New creates a Retriever reading the serving snapshot from registry.
func New(emb embedding.Embedder, registry *vector.Registry, st store.RecordStore, logger *zap.Logger) *Retriever {
	return &Retriever{
		embedder: emb,
		registry: registry,
		store:    st,
		logger:   logger,
	}
}

// Retrieve returns up to topK records in relevance order. Positions that no
// longer resolve are dropped; duplicate keys keep only their nearest
// occurrence; attribute filtering happens in the record store, so the result
// can be fewer than topK. Embedding and store failures are returned as
// errors; a missing index is a StatusIndexUnavailable result instead.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, filter models.Filter) (Result, error) {
	snap := r.registry.Current()
	if snap == nil {
		r.logger.Warn("retrieval with no published index snapshot")
		return Result{Status: StatusIndexUnavailable}, nil
	}

	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return Result{}, fmt.Errorf("embedding query: %w", err)
	}

	hits, err := snap.Index.Search(queryVec, topK)
	if err != nil {
		return Result{}, fmt.Errorf("searching index: %w", err)
	}
	if len(hits) == 0 {
		return Result{Status: StatusEmpty}, nil
	}

	// Resolve positions to keys, dropping unresolved positions and duplicate
	// keys. Order stays nearest-first.
	keys := make([]int64, 0, len(hits))
	seen := make(map[int64]bool, len(hits))
	for _, hit := range hits {
		key, ok := snap.IDMap.Resolve(hit.Position)
		if !ok {
			r.logger.Warn("dropping unresolved index position",
				zap.Int("position", hit.Position),
				zap.String("build_id", snap.Manifest.BuildID),
			)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return Result{Status: StatusEmpty}, nil
	}

	if !filter.IsZero() {
		r.logger.Debug("applying attribute filter",
			zap.String("product_name", filter.ProductName),
			zap.String("product_type", filter.ProductType),
			zap.String("country", filter.Country),
		)
	}
	records, err := r.store.FetchByKeys(ctx, keys, filter)
	if err != nil {
		return Result{}, fmt.Errorf("fetching records: %w", err)
	}

	// Reorder store rows into the surviving hit order.
	byKey := make(map[int64]models.Record, len(records))
	for _, rec := range records {
		byKey[rec.ReviewID] = rec
	}
	ordered := make([]models.Record, 0, len(records))
	for _, key := range keys {
		if rec, ok := byKey[key]; ok {
			ordered = append(ordered, rec)
		}
	}
	if len(ordered) == 0 {
		return Result{Status: StatusEmpty}, nil
	}
	return Result{Status: StatusOK, Records: ordered}, nil
}
