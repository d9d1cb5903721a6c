package storage

import (
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

// MySQLDialect targets MySQL 8 through go-sql-driver/mysql.
type MySQLDialect struct{}

func (MySQLDialect) DriverName() string { return "mysql" }

func (MySQLDialect) Schema() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS cards (
    id VARCHAR(64) PRIMARY KEY,
    learner_id VARCHAR(64) NOT NULL,
    collection_id VARCHAR(255) NOT NULL,
    front TEXT NOT NULL,
    back TEXT NOT NULL,
    fingerprint VARCHAR(64) NOT NULL DEFAULT '',
    status VARCHAR(16) NOT NULL DEFAULT 'new',
    interval_days INT NOT NULL DEFAULT 0,
    ease DOUBLE NOT NULL DEFAULT 2.5,
    due_date VARCHAR(10) NULL,
    is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
    version BIGINT NOT NULL DEFAULT 0,
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    INDEX idx_cards_learner (learner_id, is_deleted),
    INDEX idx_cards_collection (learner_id, collection_id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS reviews (
    id VARCHAR(64) PRIMARY KEY,
    card_id VARCHAR(64) NOT NULL,
    learner_id VARCHAR(64) NOT NULL,
    rating INT NOT NULL,
    old_interval INT NOT NULL,
    new_interval INT NOT NULL,
    old_ease DOUBLE NOT NULL,
    new_ease DOUBLE NOT NULL,
    reviewed_at BIGINT NOT NULL,
    INDEX idx_reviews_learner_day (learner_id, reviewed_at),
    FOREIGN KEY (card_id) REFERENCES cards(id)
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		`CREATE TABLE IF NOT EXISTS quota_configs (
    learner_id VARCHAR(64) PRIMARY KEY,
    daily_new_limit INT NOT NULL,
    daily_review_limit INT NOT NULL,
    time_zone VARCHAR(64) NOT NULL DEFAULT 'UTC'
) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
	}
}

func (MySQLDialect) ConfigureConnection(db *sqlx.DB) error {
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
	return nil
}

func (MySQLDialect) UpsertQuotaConfigQuery() string {
	return `INSERT INTO quota_configs (learner_id, daily_new_limit, daily_review_limit, time_zone)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE
    daily_new_limit = VALUES(daily_new_limit),
    daily_review_limit = VALUES(daily_review_limit),
    time_zone = VALUES(time_zone)`
}
