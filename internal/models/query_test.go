package models

import "testing"

func TestQueryRequest_Validate(t *testing.T) {
	t.Run("empty query rejected", func(t *testing.T) {
		q := &QueryRequest{}
		if err := q.Validate(); err == nil {
			t.Error("expected error for empty query")
		}
	})

	t.Run("defaults applied", func(t *testing.T) {
		q := &QueryRequest{Query: "battery life"}
		if err := q.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if q.TopK != DefaultTopK {
			t.Errorf("TopK = %d, want %d", q.TopK, DefaultTopK)
		}
		if q.MaxLength != DefaultMaxLength || q.MinLength != DefaultMinLength {
			t.Errorf("bounds = [%d, %d], want [%d, %d]", q.MinLength, q.MaxLength, DefaultMinLength, DefaultMaxLength)
		}
	})

	t.Run("top_k clamped", func(t *testing.T) {
		q := &QueryRequest{Query: "x", TopK: 100000}
		if err := q.Validate(); err != nil {
			t.Fatalf("Validate: %v", err)
		}
		if q.TopK != MaxTopK {
			t.Errorf("TopK = %d, want %d", q.TopK, MaxTopK)
		}
	})

	t.Run("inverted bounds rejected", func(t *testing.T) {
		q := &QueryRequest{Query: "x", MinLength: 80, MaxLength: 40}
		if err := q.Validate(); err == nil {
			t.Error("expected error for min_length > max_length")
		}
	})
}

func TestFilter_IsZero(t *testing.T) {
	if !(Filter{}).IsZero() {
		t.Error("empty filter should be zero")
	}
	if (Filter{Country: "JP"}).IsZero() {
		t.Error("filter with country should not be zero")
	}
	q := &QueryRequest{Query: "x", ProductType: "phone"}
	if q.Filter().ProductType != "phone" {
		t.Error("Filter() should carry product_type")
	}
}
