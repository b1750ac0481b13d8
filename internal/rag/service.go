// Package rag composes retrieval, generation, and the response cache into
// the query pipeline.
package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
)

// ErrInvalidRequest marks a request the caller should fix rather than retry.
var ErrInvalidRequest = errors.New("invalid query request")

// Service answers RAG queries. Retrieval infrastructure failures surface as
// errors; generation failures and a missing index degrade to a structured
// response instead.
type Service struct {
	retriever *retriever.Retriever
	generator *generator.Generator
	cache     cache.ResponseCache
	cacheTTL  time.Duration
	logger    *zap.Logger
}

// New assembles the query pipeline. ttl bounds the lifetime of cached
// responses.
func New(r *retriever.Retriever, g *generator.Generator, c cache.ResponseCache, ttl time.Duration, logger *zap.Logger) *Service {
	return &Service{
		retriever: r,
		generator: g,
		cache:     c,
		cacheTTL:  ttl,
		logger:    logger,
	}
}

// Answer validates the request, consults the cache, and runs
// retrieve-then-generate on a miss. Returned errors mean the pipeline itself
// failed (embedding backend, record store); a degraded answer or captured
// generation failure is a nil-error response.
func (s *Service) Answer(ctx context.Context, req models.QueryRequest) (models.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return models.QueryResponse{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}

	key := cache.Key(req)
	if resp, ok := s.cache.Get(ctx, key); ok {
		s.logger.Debug("query served from cache", zap.String("query", req.Query))
		return resp, nil
	}

	result, err := s.retriever.Retrieve(ctx, req.Query, req.TopK, req.Filter())
	if err != nil {
		return models.QueryResponse{}, fmt.Errorf("retrieval: %w", err)
	}
	if result.Status == retriever.StatusIndexUnavailable {
		s.logger.Warn("no index snapshot published, serving degraded answer")
		return models.QueryResponse{Response: generator.NoMatchResponse, Records: []models.Record{}}, nil
	}

	out := s.generator.Generate(ctx, req.Query, result.Records, req.MaxLength, req.MinLength)
	if out.Err != "" {
		return models.QueryResponse{Error: out.Err, Records: []models.Record{}}, nil
	}
	resp := models.QueryResponse{Response: out.Response, Records: result.Records}
	if resp.Records == nil {
		resp.Records = []models.Record{}
	}
	s.cache.Put(ctx, key, resp, s.cacheTTL)
	return resp, nil
}
