package models

import "time"

// User is a row in the users table.
type User struct {
	UserID  int64  `json:"user_id" db:"user_id"`
	Name    string `json:"name" db:"name"`
	Age     int    `json:"age" db:"age"`
	Country string `json:"country" db:"country"`
}

// Review is a row in the reviews table as loaded by ingestion. Retrieval
// reads reviews through the Record projection instead.
type Review struct {
	ReviewID    int64     `json:"review_id" db:"review_id"`
	UserID      int64     `json:"user_id" db:"user_id"`
	ProductName string    `json:"product_name" db:"product_name"`
	ProductType string    `json:"product_type" db:"product_type"`
	ReviewText  string    `json:"review_text" db:"review_text"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}
