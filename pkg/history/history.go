// Package history persists per-user search history and favorites in
// SQLite via the pure-Go driver. The recommendation pipeline treats it
// as best-effort: a failed write never fails a search.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultUserID is used when a caller does not identify the user.
const DefaultUserID = "default"

const schema = `
CREATE TABLE IF NOT EXISTS search_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id TEXT NOT NULL,
	query TEXT NOT NULL,
	category TEXT,
	tone TEXT,
	result_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_history_user_time ON search_history(user_id, created_at);

CREATE TABLE IF NOT EXISTS favorites (
	user_id TEXT NOT NULL,
	isbn13 INTEGER NOT NULL,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (user_id, isbn13)
);
`

// SearchRecord is one stored search.
type SearchRecord struct {
	ID          int64
	UserID      string
	Query       string
	Category    string
	Tone        string
	ResultCount int
	CreatedAt   time.Time
}

// Favorite is one saved book.
type Favorite struct {
	UserID    string
	ISBN13    int64
	CreatedAt time.Time
}

// Store persists search history and favorites. Safe for concurrent use;
// database/sql pools connections internally.
type Store struct {
	db *sql.DB
}

// Open creates the store at dbPath and runs auto-migration.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordSearch stores one completed search. "All" filters are stored as
// NULL, meaning no filter was applied.
func (s *Store) RecordSearch(ctx context.Context, userID, query, category, tone string, resultCount int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO search_history (user_id, query, category, tone, result_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		orDefault(userID), query, nullIfAll(category), nullIfAll(tone), resultCount, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("record search: %w", err)
	}
	return nil
}

// RecentSearches returns the newest searches for a user, newest first.
func (s *Store) RecentSearches(ctx context.Context, userID string, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, query, category, tone, result_count, created_at
		 FROM search_history WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		orDefault(userID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent searches: %w", err)
	}
	defer rows.Close()

	var records []SearchRecord
	for rows.Next() {
		var r SearchRecord
		var category, tone sql.NullString
		if err := rows.Scan(&r.ID, &r.UserID, &r.Query, &category, &tone, &r.ResultCount, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		r.Category = orAll(category)
		r.Tone = orAll(tone)
		records = append(records, r)
	}
	return records, rows.Err()
}

// CountSearches returns the number of stored searches for a user. An
// empty userID counts searches across all users.
func (s *Store) CountSearches(ctx context.Context, userID string) (int64, error) {
	query := `SELECT COUNT(*) FROM search_history`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	var count int64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count searches: %w", err)
	}
	return count, nil
}

// AddFavorite saves a book for a user. Saving an existing favorite
// refreshes its timestamp.
func (s *Store) AddFavorite(ctx context.Context, userID string, isbn13 int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO favorites (user_id, isbn13, created_at) VALUES (?, ?, ?)`,
		orDefault(userID), isbn13, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("add favorite: %w", err)
	}
	return nil
}

// RemoveFavorite deletes a favorite, reporting whether it existed.
func (s *Store) RemoveFavorite(ctx context.Context, userID string, isbn13 int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM favorites WHERE user_id = ? AND isbn13 = ?`,
		orDefault(userID), isbn13,
	)
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("remove favorite: %w", err)
	}
	return n > 0, nil
}

// ListFavorites returns a user's saved books, newest first.
func (s *Store) ListFavorites(ctx context.Context, userID string) ([]Favorite, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, isbn13, created_at FROM favorites
		 WHERE user_id = ? ORDER BY created_at DESC, isbn13 DESC`,
		orDefault(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	defer rows.Close()

	var favorites []Favorite
	for rows.Next() {
		var f Favorite
		if err := rows.Scan(&f.UserID, &f.ISBN13, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan favorite: %w", err)
		}
		favorites = append(favorites, f)
	}
	return favorites, rows.Err()
}

// Close releases the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func orDefault(userID string) string {
	if userID == "" {
		return DefaultUserID
	}
	return userID
}

func nullIfAll(v string) any {
	if v == "" || v == "All" {
		return nil
	}
	return v
}

func orAll(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return "All"
}
