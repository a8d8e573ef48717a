package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver

	"github.com/okian/tally/internal/domain/model"
	"github.com/okian/tally/pkg/metrics"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS entries (
	date TEXT PRIMARY KEY
);
CREATE TABLE IF NOT EXISTS entry_scores (
	date   TEXT    NOT NULL REFERENCES entries(date) ON DELETE CASCADE,
	player TEXT    NOT NULL,
	score  INTEGER NOT NULL,
	PRIMARY KEY (date, player)
);`

// entryColumns selects an entry and its scores; entries without scores
// produce a single row with NULL player and score.
const entryColumns = `
SELECT e.date, s.player, s.score
FROM entries e
LEFT JOIN entry_scores s ON s.date = e.date`

// SQLiteStore keeps the ledger in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// One connection serialises writers and keeps pragmas consistent.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate sqlite %s: %w", path, err)
	}

	s := &SQLiteStore{db: db}
	metrics.UpdateLedgerEntries(s.Count(ctx))
	return s, nil
}

func (s *SQLiteStore) observe(op string, start time.Time) {
	metrics.RecordStoreLatency("sqlite", op, float64(time.Since(start).Microseconds())/1000)
}

// Get implements Store.Get.
func (s *SQLiteStore) Get(ctx context.Context, date model.Date) (model.ScoreEntry, error) {
	defer s.observe("get", time.Now())
	return s.one(ctx, entryColumns+` WHERE e.date = ?`, date.String())
}

// Latest implements Store.Latest.
func (s *SQLiteStore) Latest(ctx context.Context) (model.ScoreEntry, error) {
	defer s.observe("latest", time.Now())
	return s.one(ctx, entryColumns+` WHERE e.date = (SELECT MAX(date) FROM entries)`)
}

// Previous implements Store.Previous.
func (s *SQLiteStore) Previous(ctx context.Context, date model.Date) (model.ScoreEntry, error) {
	defer s.observe("previous", time.Now())
	return s.one(ctx, entryColumns+` WHERE e.date = (SELECT MAX(date) FROM entries WHERE date < ?)`, date.String())
}

// All implements Store.All.
func (s *SQLiteStore) All(ctx context.Context) ([]model.ScoreEntry, error) {
	defer s.observe("all", time.Now())
	return s.query(ctx, entryColumns+` ORDER BY e.date, s.player`)
}

func (s *SQLiteStore) one(ctx context.Context, q string, args ...any) (model.ScoreEntry, error) {
	entries, err := s.query(ctx, q, args...)
	if err != nil {
		return model.ScoreEntry{}, err
	}
	if len(entries) == 0 {
		return model.ScoreEntry{}, ErrNotFound
	}
	return entries[0], nil
}

func (s *SQLiteStore) query(ctx context.Context, q string, args ...any) ([]model.ScoreEntry, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		metrics.RecordErrorByComponent("repository", "query_failed")
		return nil, fmt.Errorf("query ledger: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ScoreEntry
	for rows.Next() {
		var (
			raw    string
			player sql.NullString
			score  sql.NullInt64
		)
		if err := rows.Scan(&raw, &player, &score); err != nil {
			return nil, fmt.Errorf("scan ledger: %w", err)
		}
		date, err := model.ParseDate(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
		}
		if n := len(out); n == 0 || out[n-1].Date != date {
			out = append(out, model.ScoreEntry{Date: date, Scores: map[string]int{}})
		}
		if player.Valid {
			out[len(out)-1].Scores[player.String] = int(score.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	return out, nil
}

// Put implements Store.Put in a single transaction.
func (s *SQLiteStore) Put(ctx context.Context, entry model.ScoreEntry, overwrite bool) (created bool, err error) {
	defer s.observe("put", time.Now())

	if err := validate(entry); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin put: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	date := entry.Date.String()
	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM entries WHERE date = ?`, date).Scan(&exists)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		exists, err = false, nil
	case err != nil:
		return false, fmt.Errorf("put %s: %w", date, err)
	}

	if exists {
		if !overwrite {
			err = &ConflictError{Date: entry.Date}
			return false, err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM entry_scores WHERE date = ?`, date); err != nil {
			return false, fmt.Errorf("put %s: %w", date, err)
		}
	} else {
		if _, err = tx.ExecContext(ctx, `INSERT INTO entries (date) VALUES (?)`, date); err != nil {
			return false, fmt.Errorf("put %s: %w", date, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO entry_scores (date, player, score) VALUES (?, ?, ?)`)
	if err != nil {
		return false, fmt.Errorf("put %s: %w", date, err)
	}
	defer func() { _ = stmt.Close() }()
	for _, player := range entry.Players() {
		if _, err = stmt.ExecContext(ctx, date, player, entry.Scores[player]); err != nil {
			return false, fmt.Errorf("put %s: %w", date, err)
		}
	}

	if err = tx.Commit(); err != nil {
		metrics.RecordErrorByComponent("repository", "commit_failed")
		return false, fmt.Errorf("commit %s: %w", date, err)
	}

	if !exists {
		metrics.UpdateLedgerEntries(s.Count(ctx))
	}
	return !exists, nil
}

// Count implements Store.Count. Query failures count as an empty ledger.
func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM entries`).Scan(&n); err != nil {
		metrics.RecordErrorByComponent("repository", "count_failed")
		return 0
	}
	return n
}

// Close implements Store.Close.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
