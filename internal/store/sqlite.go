// Package store provides the SQLite implementation of the RecordStore interface.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/kotae/internal/models"
)

// recordSelect is the one declared Record projection. The retriever's
// fetch-by-key query and the builder's text-extraction query both read it, so
// the serving and indexing column sets can never drift apart.
const recordSelect = `
	SELECT r.review_id, r.user_id, COALESCE(u.country, ''),
	       r.product_name, r.product_type, r.review_text, r.created_at
	FROM reviews r
	LEFT JOIN users u ON u.user_id = r.user_id`

// SQLiteStore implements RecordStore using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		user_id INTEGER PRIMARY KEY,
		name TEXT,
		age INTEGER,
		country TEXT
	);

	CREATE TABLE IF NOT EXISTS reviews (
		review_id INTEGER PRIMARY KEY,
		user_id INTEGER NOT NULL,
		product_name TEXT,
		product_type TEXT,
		review_text TEXT,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (user_id) REFERENCES users(user_id)
	);

	CREATE INDEX IF NOT EXISTS idx_reviews_user_id ON reviews(user_id);
	CREATE INDEX IF NOT EXISTS idx_reviews_product_type ON reviews(product_type);
	`
	_, err := db.Exec(schema)
	return err
}

// FetchByKeys returns the records for keys that match the filter. The filter
// is applied in SQL so non-matching rows are excluded by the store itself.
func (s *SQLiteStore) FetchByKeys(ctx context.Context, keys []int64, filter models.Filter) ([]models.Record, error) {
	if len(keys) == 0 {
		return nil, ErrNoKeys
	}

	placeholders := make([]string, len(keys))
	args := make([]interface{}, 0, len(keys)+3)
	for i, k := range keys {
		placeholders[i] = "?"
		args = append(args, k)
	}
	query := recordSelect + " WHERE r.review_id IN (" + strings.Join(placeholders, ", ") + ")"

	if filter.ProductName != "" {
		query += " AND r.product_name = ?"
		args = append(args, filter.ProductName)
	}
	if filter.ProductType != "" {
		query += " AND r.product_type = ?"
		args = append(args, filter.ProductType)
	}
	if filter.Country != "" {
		query += " AND u.country = ?"
		args = append(args, filter.Country)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch by keys: %w", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.ReviewID, &rec.UserID, &rec.Country,
			&rec.ProductName, &rec.ProductType, &rec.ReviewText, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// FetchAllTexts returns every eligible (key, text) pair in insertion order.
func (s *SQLiteStore) FetchAllTexts(ctx context.Context) ([]models.RecordText, error) {
	query := recordSelect + `
	WHERE r.review_text IS NOT NULL AND r.review_text != ''
	ORDER BY r.review_id`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("fetch all texts: %w", err)
	}
	defer rows.Close()

	var texts []models.RecordText
	for rows.Next() {
		var rec models.Record
		if err := rows.Scan(&rec.ReviewID, &rec.UserID, &rec.Country,
			&rec.ProductName, &rec.ProductType, &rec.ReviewText, &rec.CreatedAt); err != nil {
			return nil, err
		}
		texts = append(texts, models.RecordText{ReviewID: rec.ReviewID, Text: rec.ReviewText})
	}
	return texts, rows.Err()
}

// InsertUsers bulk-inserts users in a transaction. Existing user IDs are
// replaced.
func (s *SQLiteStore) InsertUsers(ctx context.Context, users []models.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO users (user_id, name, age, country) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, u := range users {
		if _, err := stmt.ExecContext(ctx, u.UserID, u.Name, u.Age, u.Country); err != nil {
			return fmt.Errorf("insert user %d: %w", u.UserID, err)
		}
	}
	return tx.Commit()
}

// InsertReviews bulk-inserts reviews in a transaction. Existing review IDs
// are replaced.
func (s *SQLiteStore) InsertReviews(ctx context.Context, reviews []models.Review) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO reviews (review_id, user_id, product_name, product_type, review_text, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range reviews {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.ReviewID, r.UserID, r.ProductName, r.ProductType, r.ReviewText, createdAt); err != nil {
			return fmt.Errorf("insert review %d: %w", r.ReviewID, err)
		}
	}
	return tx.Commit()
}

// CountUsers returns the total number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CountReviews returns the total number of reviews.
func (s *SQLiteStore) CountReviews(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reviews`).Scan(&count)
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
