// Package cache stores full query responses keyed on the request parameters.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hyperjump/kotae/internal/models"
)

// ResponseCache is the response cache contract. Backend failures are not
// surfaced: a failed read is a miss and a failed write is dropped, so the
// cache can never take the query path down with it.
type ResponseCache interface {
	Get(ctx context.Context, key string) (models.QueryResponse, bool)
	Put(ctx context.Context, key string, value models.QueryResponse, ttl time.Duration)
}

// Key derives the canonical cache key for a validated request. Every
// parameter that affects the output is serialised in a fixed order before
// hashing, so logically identical requests always collide.
func Key(req models.QueryRequest) string {
	h := sha256.New()
	fmt.Fprintf(h, "q=%s\x00k=%d\x00max=%d\x00min=%d\x00", req.Query, req.TopK, req.MaxLength, req.MinLength)
	fmt.Fprintf(h, "country=%s\x00product_name=%s\x00product_type=%s\x00",
		req.Country, req.ProductName, req.ProductType)
	return hex.EncodeToString(h.Sum(nil))
}
