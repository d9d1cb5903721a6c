package storage

import (
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresDialect targets PostgreSQL through lib/pq. Placeholders are
// rewritten by sqlx.Rebind.
type PostgresDialect struct{}

func (PostgresDialect) DriverName() string { return "postgres" }

func (PostgresDialect) Schema() []string {
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
    ease DOUBLE PRECISION NOT NULL DEFAULT 2.5,
    due_date TEXT,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    version BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
		`CREATE TABLE IF NOT EXISTS reviews (
    id TEXT PRIMARY KEY,
    card_id TEXT NOT NULL REFERENCES cards(id),
    learner_id TEXT NOT NULL,
    rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 4),
    old_interval INTEGER NOT NULL,
    new_interval INTEGER NOT NULL,
    old_ease DOUBLE PRECISION NOT NULL,
    new_ease DOUBLE PRECISION NOT NULL,
    reviewed_at BIGINT NOT NULL
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

func (PostgresDialect) ConfigureConnection(db *sqlx.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (PostgresDialect) UpsertQuotaConfigQuery() string {
	return `INSERT INTO quota_configs (learner_id, daily_new_limit, daily_review_limit, time_zone)
VALUES (?, ?, ?, ?)
ON CONFLICT (learner_id) DO UPDATE SET
    daily_new_limit = EXCLUDED.daily_new_limit,
    daily_review_limit = EXCLUDED.daily_review_limit,
    time_zone = EXCLUDED.time_zone`
}
