package storage

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// Dialect captures what differs between the supported databases.
type Dialect interface {
	// DriverName returns the database/sql driver name.
	DriverName() string

	// Schema returns the DDL statements, executed one at a time.
	Schema() []string

	// ConfigureConnection applies pool and session settings.
	ConfigureConnection(db *sqlx.DB) error

	// UpsertQuotaConfigQuery returns an insert-or-update statement taking
	// learner_id, daily_new_limit, daily_review_limit, time_zone.
	UpsertQuotaConfigQuery() string
}

// DialectFor returns the dialect registered under driver.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3", "":
		return SQLiteDialect{}, nil
	case "postgres", "postgresql":
		return PostgresDialect{}, nil
	case "mysql":
		return MySQLDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", driver)
	}
}
