package models

import "fmt"

// Default generation bounds, matching the query endpoint defaults.
const (
	DefaultTopK      = 5
	DefaultMaxLength = 100
	DefaultMinLength = 25
	MaxTopK          = 100
)

// QueryRequest is a single RAG query with retrieval and generation bounds.
type QueryRequest struct {
	Query       string `json:"query"`
	TopK        int    `json:"top_k,omitempty"`
	MaxLength   int    `json:"max_length,omitempty"`
	MinLength   int    `json:"min_length,omitempty"`
	ProductName string `json:"product_name,omitempty"`
	ProductType string `json:"product_type,omitempty"`
	Country     string `json:"country,omitempty"`
}

// Validate ensures the request has valid fields and sets defaults.
// Returns an error if the query is empty; otherwise normalizes top_k and the
// generation bounds.
func (q *QueryRequest) Validate() error {
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if q.TopK <= 0 {
		q.TopK = DefaultTopK
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	if q.MaxLength <= 0 {
		q.MaxLength = DefaultMaxLength
	}
	if q.MinLength <= 0 {
		q.MinLength = DefaultMinLength
	}
	if q.MinLength > q.MaxLength {
		return fmt.Errorf("min_length %d exceeds max_length %d", q.MinLength, q.MaxLength)
	}
	return nil
}

// Filter returns the attribute filter carried by the request.
func (q *QueryRequest) Filter() Filter {
	return Filter{
		ProductName: q.ProductName,
		ProductType: q.ProductType,
		Country:     q.Country,
	}
}

// QueryResponse is the answer payload for a RAG query. On a recovered
// pipeline failure Response is empty, Error describes the cause, and Records
// is empty.
type QueryResponse struct {
	Response string   `json:"response"`
	Error    string   `json:"error,omitempty"`
	Records  []Record `json:"records"`
}
