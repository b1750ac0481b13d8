// Package models defines core data structures for records, queries, and answers.
package models

import "time"

// Record is the single declared projection of a review row joined with its
// author. Both the index builder's text-extraction query and the retriever's
// fetch-by-key query read this projection, so the two can never drift.
type Record struct {
	ReviewID    int64     `json:"review_id" db:"review_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	Country     string    `json:"country" db:"country"`
	ProductName string    `json:"product_name" db:"product_name"`
	ProductType string    `json:"product_type" db:"product_type"`
	ReviewText  string    `json:"review_text" db:"review_text"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// RecordText pairs a record key with its review text, as scanned by the
// index builder.
type RecordText struct {
	ReviewID int64
	Text     string
}

// Filter narrows a record fetch by display attributes. Empty fields are
// ignored. Filtering happens in the record store query, after the top-k
// similarity cut, so effective results can be fewer than top_k.
type Filter struct {
	ProductName string `json:"product_name,omitempty"`
	ProductType string `json:"product_type,omitempty"`
	Country     string `json:"country,omitempty"`
}

// IsZero reports whether no filter attribute is set.
func (f Filter) IsZero() bool {
	return f.ProductName == "" && f.ProductType == "" && f.Country == ""
}
