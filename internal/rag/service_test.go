package rag

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/builder"
	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
)

type countingModel struct {
	answer string
	err    error
	calls  int
}

func (m *countingModel) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	m.calls++
	return m.answer, m.err
}

func newTestService(t *testing.T, model generator.Model, buildIndex bool) *Service {
	t.Helper()
	s, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.InsertUsers(ctx, []models.User{
		{UserID: 1, Name: "Aki", Country: "JP"},
		{UserID: 2, Name: "Ben", Country: "US"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := s.InsertReviews(ctx, []models.Review{
		{ReviewID: 1, UserID: 1, ProductType: "phone", ReviewText: "great battery life"},
		{ReviewID: 2, UserID: 2, ProductType: "phone", ReviewText: "poor battery life"},
		{ReviewID: 3, UserID: 2, ProductType: "tablet", ReviewText: "excellent screen"},
	}); err != nil {
		t.Fatal(err)
	}

	emb := embedding.NewMockEmbedder(64)
	registry := vector.NewRegistry()
	if buildIndex {
		snap, err := builder.New(s, emb, t.TempDir(), 0, 0, zap.NewNop()).Build(ctx)
		if err != nil {
			t.Fatal(err)
		}
		registry.Swap(snap)
	}

	r := retriever.New(emb, registry, s, zap.NewNop())
	g := generator.New(model, 0, 0, zap.NewNop())
	return New(r, g, cache.NewMemoryCache(), time.Minute, zap.NewNop())
}

func TestService_Answer(t *testing.T) {
	model := &countingModel{answer: "battery opinions are mixed"}
	svc := newTestService(t, model, true)
	ctx := context.Background()

	resp, err := svc.Answer(ctx, models.QueryRequest{Query: "battery", TopK: 2})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "battery opinions are mixed" || resp.Error != "" {
		t.Errorf("response = %+v", resp)
	}
	keys := make(map[int64]bool)
	for _, rec := range resp.Records {
		keys[rec.ReviewID] = true
	}
	if !keys[1] || !keys[2] || keys[3] {
		t.Errorf("record keys = %v, want {1, 2}", keys)
	}
}

func TestService_CacheHitSkipsPipeline(t *testing.T) {
	model := &countingModel{answer: "cached answer"}
	svc := newTestService(t, model, true)
	ctx := context.Background()
	req := models.QueryRequest{Query: "battery", TopK: 2}

	if _, err := svc.Answer(ctx, req); err != nil {
		t.Fatal(err)
	}
	resp, err := svc.Answer(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "cached answer" {
		t.Errorf("response = %q", resp.Response)
	}
	if model.calls != 1 {
		t.Errorf("model invoked %d times, want 1", model.calls)
	}
}

func TestService_InvalidRequest(t *testing.T) {
	svc := newTestService(t, &countingModel{}, true)
	_, err := svc.Answer(context.Background(), models.QueryRequest{})
	if !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("err = %v, want ErrInvalidRequest", err)
	}
}

func TestService_NoIndexDegrades(t *testing.T) {
	model := &countingModel{answer: "should not run"}
	svc := newTestService(t, model, false)

	resp, err := svc.Answer(context.Background(), models.QueryRequest{Query: "battery"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != generator.NoMatchResponse {
		t.Errorf("response = %q, want no-match answer", resp.Response)
	}
	if model.calls != 0 {
		t.Errorf("model invoked %d times with no index", model.calls)
	}
}

func TestService_GenerationFailurePayload(t *testing.T) {
	model := &countingModel{err: errors.New("model down")}
	svc := newTestService(t, model, true)
	ctx := context.Background()
	req := models.QueryRequest{Query: "battery"}

	resp, err := svc.Answer(ctx, req)
	if err != nil {
		t.Fatalf("generation failure must not be a service error: %v", err)
	}
	if resp.Response != "" || resp.Error == "" || len(resp.Records) != 0 {
		t.Errorf("payload = %+v, want empty response with error", resp)
	}

	// A failed generation must not poison the cache.
	model.err = nil
	model.answer = "recovered"
	resp, err = svc.Answer(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != "recovered" {
		t.Errorf("response = %q, failed generation was cached", resp.Response)
	}
}

func TestService_FilteredToEmptyShortCircuits(t *testing.T) {
	model := &countingModel{answer: "should not run"}
	svc := newTestService(t, model, true)

	resp, err := svc.Answer(context.Background(), models.QueryRequest{Query: "battery", Country: "FR"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Response != generator.NoMatchResponse {
		t.Errorf("response = %q, want no-match answer", resp.Response)
	}
	if model.calls != 0 {
		t.Errorf("model invoked %d times for an empty record set", model.calls)
	}
}
