package storage

import (
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Registers the sqlite driver
)

// SQLiteDialect uses the pure-Go modernc driver.
type SQLiteDialect struct{}

func (SQLiteDialect) DriverName() string { return "sqlite" }

func (SQLiteDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS cards (
    id TEXT PRIMARY KEY,
    learner_id TEXT NOT NULL,
    collection_id TEXT NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    fingerprint TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL DEFAULT 'new' CHECK (status IN ('new', 'learning', 'review')),
    interval_days INTEGER NOT NULL DEFAULT 0,
    ease REAL NOT NULL DEFAULT 2.5,
    due_date TEXT,
    is_deleted INTEGER NOT NULL DEFAULT 0,
    version INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL,
    learner_id TEXT NOT NULL,
    rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 4),
    old_interval INTEGER NOT NULL,
    new_interval INTEGER NOT NULL,
    old_ease REAL NOT NULL,
    new_ease REAL NOT NULL,
    reviewed_at INTEGER NOT NULL,
    FOREIGN KEY (card_id) REFERENCES cards(id)
)`,
		`CREATE TABLE IF NOT EXISTS quota_configs (
    learner_id TEXT PRIMARY KEY,
    daily_new_limit INTEGER NOT NULL,
    daily_review_limit INTEGER NOT NULL,
    time_zone TEXT NOT NULL DEFAULT 'UTC'
)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_learner ON cards(learner_id, is_deleted)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_collection ON cards(learner_id, collection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_reviews_learner_day ON reviews(learner_id, reviewed_at)`,
	}
}

func (SQLiteDialect) ConfigureConnection(db *sqlx.DB) error {
	// SQLite allows a single writer; one connection also keeps PRAGMAs applied.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
		return err
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON;"); err != nil {
		return err
	}
	return nil
}

func (SQLiteDialect) UpsertQuotaConfigQuery() string {
	return `INSERT INTO quota_configs (learner_id, daily_new_limit, daily_review_limit, time_zone)
VALUES (?, ?, ?, ?)
ON CONFLICT (learner_id) DO UPDATE SET
    daily_new_limit = excluded.daily_new_limit,
    daily_review_limit = excluded.daily_review_limit,
    time_zone = excluded.time_zone`
}
