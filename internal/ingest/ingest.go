// Package ingest bulk-loads users and reviews from CSV or XLSX files into
// the record store.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/store"
)

// unknownCountry is the placeholder for rows without a country value.
const unknownCountry = "Unknown"

// Loader reads tabular files and writes their rows into the record store.
type Loader struct {
	store  store.RecordStore
	logger *zap.Logger
}

// New creates a Loader writing into st.
func New(st store.RecordStore, logger *zap.Logger) *Loader {
	return &Loader{store: st, logger: logger}
}

// LoadUsers ingests a users file and returns the number of rows stored.
// Expected columns: user_id, name, age, country.
func (l *Loader) LoadUsers(ctx context.Context, path string) (int, error) {
	rows, err := readRows(path)
	if err != nil {
		return 0, err
	}
	if len(rows) < 2 {
		return 0, nil
	}

	cols := headerIndex(rows[0])
	users := make([]models.User, 0, len(rows)-1)
	for i, row := range rows[1:] {
		userID, err := strconv.ParseInt(field(row, cols, "user_id"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("row %d: invalid user_id: %w", i+2, err)
		}
		age, _ := strconv.Atoi(field(row, cols, "age"))
		country := field(row, cols, "country")
		if country == "" {
			country = unknownCountry
		}
		users = append(users, models.User{
			UserID:  userID,
			Name:    field(row, cols, "name"),
			Age:     age,
			Country: country,
		})
	}

	if err := l.store.InsertUsers(ctx, users); err != nil {
		return 0, fmt.Errorf("storing users: %w", err)
	}
	l.logger.Info("users ingested", zap.String("path", path), zap.Int("rows", len(users)))
	return len(users), nil
}

// LoadReviews ingests a reviews file and returns the number of rows stored.
// Expected columns: review_id, user_id, product_name, product_type,
// review_text (user_review is accepted as an alias), created_at. Review text
// is cleaned before storage.
func (l *Loader) LoadReviews(ctx context.Context, path string) (int, error) {
	rows, err := readRows(path)
	if err != nil {
		return 0, err
	}
	if len(rows) < 2 {
		return 0, nil
	}

	cols := headerIndex(rows[0])
	reviews := make([]models.Review, 0, len(rows)-1)
	for i, row := range rows[1:] {
		reviewID, err := strconv.ParseInt(field(row, cols, "review_id"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("row %d: invalid review_id: %w", i+2, err)
		}
		userID, err := strconv.ParseInt(field(row, cols, "user_id"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("row %d: invalid user_id: %w", i+2, err)
		}
		text := field(row, cols, "review_text")
		if text == "" {
			text = field(row, cols, "user_review")
		}
		reviews = append(reviews, models.Review{
			ReviewID:    reviewID,
			UserID:      userID,
			ProductName: field(row, cols, "product_name"),
			ProductType: field(row, cols, "product_type"),
			ReviewText:  CleanText(text),
			CreatedAt:   parseDate(field(row, cols, "created_at")),
		})
	}

	if err := l.store.InsertReviews(ctx, reviews); err != nil {
		return 0, fmt.Errorf("storing reviews: %w", err)
	}
	l.logger.Info("reviews ingested", zap.String("path", path), zap.Int("rows", len(reviews)))
	return len(reviews), nil
}

// CleanText lowercases, strips punctuation, and collapses whitespace.
func CleanText(text string) string {
	text = strings.ToLower(text)
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// readRows loads the file into header + data rows, dispatching on extension.
func readRows(path string) ([][]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return readCSV(path)
	case ".xlsx":
		return readXLSX(path)
	default:
		return nil, fmt.Errorf("unsupported file type: %s", path)
	}
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets in %s", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return rows, nil
}

func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	return cols
}

func field(row []string, cols map[string]int, name string) string {
	i, ok := cols[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"}

func parseDate(value string) time.Time {
	for _, layout := range dateLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts
		}
	}
	return time.Time{}
}
