// Package builder materializes similarity index snapshots from the record store.
package builder

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
)

// ErrBuildInProgress is returned when a rebuild is requested while another
// one is still running.
var ErrBuildInProgress = errors.New("index build already in progress")

const (
	defaultBatchSize   = 64
	defaultParallelism = 4
	keptBuilds         = 2
)

// Builder reads all eligible records, embeds them, and publishes a new
// index/identifier-map pair. Failures leave the previously published pair
// serving, untouched.
type Builder struct {
	store       store.RecordStore
	embedder    embedding.Embedder
	indexRoot   string
	batchSize   int
	parallelism int
	logger      *zap.Logger

	building atomic.Bool
}

// New creates a Builder writing snapshots under indexRoot. batchSize and
// parallelism fall back to defaults when non-positive.
func New(st store.RecordStore, emb embedding.Embedder, indexRoot string, batchSize, parallelism int, logger *zap.Logger) *Builder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	return &Builder{
		store:       st,
		embedder:    emb,
		indexRoot:   indexRoot,
		batchSize:   batchSize,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Build runs one full rebuild and returns the published snapshot. Only one
// build runs at a time; concurrent calls get ErrBuildInProgress. Cancelling
// ctx aborts the build and discards the staging artifacts.
func (b *Builder) Build(ctx context.Context) (*vector.Snapshot, error) {
	if !b.building.CompareAndSwap(false, true) {
		return nil, ErrBuildInProgress
	}
	defer b.building.Store(false)

	texts, err := b.store.FetchAllTexts(ctx)
	if err != nil {
		return nil, fmt.Errorf("build aborted: scanning record store: %w", err)
	}
	b.logger.Info("index build started",
		zap.Int("records", len(texts)),
		zap.Int("batch_size", b.batchSize),
	)

	vectors, err := b.embedAll(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("build aborted: %w", err)
	}

	ix, err := vector.NewFlatIndex(b.embedder.Dimensions())
	if err != nil {
		return nil, err
	}
	idMap := vector.NewIdentifierMap()
	if len(vectors) > 0 {
		if _, err := ix.Add(vectors); err != nil {
			return nil, fmt.Errorf("build aborted: %w", err)
		}
	}
	for _, rt := range texts {
		idMap.Append(rt.ReviewID)
	}

	buildID := uuid.New().String()
	if err := vector.WriteSnapshot(b.indexRoot, buildID, ix, idMap); err != nil {
		_ = vector.DiscardBuild(b.indexRoot, buildID)
		return nil, fmt.Errorf("build aborted: staging snapshot: %w", err)
	}
	if err := ctx.Err(); err != nil {
		_ = vector.DiscardBuild(b.indexRoot, buildID)
		return nil, fmt.Errorf("build aborted: %w", err)
	}
	if err := vector.Publish(b.indexRoot, buildID); err != nil {
		_ = vector.DiscardBuild(b.indexRoot, buildID)
		return nil, err
	}
	if err := vector.PruneBuilds(b.indexRoot, keptBuilds); err != nil {
		b.logger.Warn("pruning old builds failed", zap.Error(err))
	}

	snap, err := vector.LoadCurrent(b.indexRoot)
	if err != nil {
		return nil, fmt.Errorf("reloading published snapshot: %w", err)
	}
	b.logger.Info("index build published",
		zap.String("build_id", snap.Manifest.BuildID),
		zap.Int("size", snap.Index.Size()),
	)
	return snap, nil
}

// embedAll embeds texts in batches, running up to parallelism batches
// concurrently. Results are written into position-indexed slots so the output
// order always matches the scan order regardless of batch completion order.
func (b *Builder) embedAll(ctx context.Context, texts []models.RecordText) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.parallelism)

	for start := 0; start < len(texts); start += b.batchSize {
		end := start + b.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		start, end := start, end
		g.Go(func() error {
			batch := make([]string, end-start)
			for i := start; i < end; i++ {
				batch[i-start] = texts[i].Text
			}
			embs, err := b.embedder.EmbedBatch(gctx, batch)
			if err != nil {
				return fmt.Errorf("embedding batch [%d, %d): %w", start, end, err)
			}
			copy(vectors[start:end], embs)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
