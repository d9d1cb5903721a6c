package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/jmoiron/sqlx"
)

var (
	_ domain.CardReader        = (*DB)(nil)
	_ domain.HistoryReader     = (*DB)(nil)
	_ domain.QuotaConfigReader = (*DB)(nil)
	_ domain.ReviewWriter      = (*DB)(nil)
	_ domain.Transactor        = (*DB)(nil)
	_ domain.ReviewWriter      = (*Tx)(nil)
)

// DB represents a wrapper around the SQL database connection.
type DB struct {
	conn    *sqlx.DB
	dialect Dialect
}

// Open creates a new database connection and ensures the schema is up to date.
func Open(driver, dsn string) (*DB, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, err
	}

	conn, err := sqlx.Open(dialect.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := dialect.ConfigureConnection(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure connection: %w", err)
	}

	for _, stmt := range dialect.Schema() {
		if _, err := conn.Exec(stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to apply schema: %w", err)
		}
	}

	return &DB{conn: conn, dialect: dialect}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// cardRow is the stored form of a card. Dates are YYYY-MM-DD strings and
// instants are unix milliseconds so every dialect stores them the same way.
type cardRow struct {
	ID           string         `db:"id"`
	LearnerID    string         `db:"learner_id"`
	CollectionID string         `db:"collection_id"`
	Front        string         `db:"front"`
	Back         string         `db:"back"`
	Fingerprint  string         `db:"fingerprint"`
	Status       string         `db:"status"`
	Interval     int            `db:"interval_days"`
	Ease         float64        `db:"ease"`
	DueDate      sql.NullString `db:"due_date"`
	Deleted      bool           `db:"is_deleted"`
	Version      int64          `db:"version"`
	CreatedAt    int64          `db:"created_at"`
	UpdatedAt    int64          `db:"updated_at"`
}

const cardColumns = `id, learner_id, collection_id, front, back, fingerprint, status,
    interval_days, ease, due_date, is_deleted, version, created_at, updated_at`

func (r cardRow) toDomain() (domain.Card, error) {
	c := domain.Card{
		ID:           r.ID,
		LearnerID:    r.LearnerID,
		CollectionID: r.CollectionID,
		Front:        r.Front,
		Back:         r.Back,
		Fingerprint:  r.Fingerprint,
		CardState: domain.CardState{
			Status:   domain.Status(r.Status),
			Interval: r.Interval,
			Ease:     r.Ease,
		},
		Deleted:   r.Deleted,
		Version:   r.Version,
		CreatedAt: time.UnixMilli(r.CreatedAt).UTC(),
		UpdatedAt: time.UnixMilli(r.UpdatedAt).UTC(),
	}
	if r.DueDate.Valid {
		due, err := domain.ParseDate(r.DueDate.String)
		if err != nil {
			return domain.Card{}, fmt.Errorf("failed to parse due date of card %s: %w", r.ID, err)
		}
		c.DueDate = &due
	}
	return c, nil
}

func dueDateValue(d *time.Time) sql.NullString {
	if d == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: domain.FormatDate(*d), Valid: true}
}

func toCards(rows []cardRow) ([]domain.Card, error) {
	cards := make([]domain.Card, 0, len(rows))
	for _, r := range rows {
		c, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		cards = append(cards, c)
	}
	return cards, nil
}

// LoadCards returns the learner's cards that are not soft-deleted.
func (db *DB) LoadCards(ctx context.Context, learnerID string) ([]domain.Card, error) {
	var rows []cardRow
	query := db.conn.Rebind(`SELECT ` + cardColumns + ` FROM cards
        WHERE learner_id = ? AND is_deleted = ?
        ORDER BY created_at, id`)
	if err := db.conn.SelectContext(ctx, &rows, query, learnerID, false); err != nil {
		return nil, fmt.Errorf("failed to load cards for learner %s: %w", learnerID, err)
	}
	return toCards(rows)
}

// LoadCard returns one of the learner's live cards or domain.ErrCardNotFound.
func (db *DB) LoadCard(ctx context.Context, learnerID, cardID string) (domain.Card, error) {
	var row cardRow
	query := db.conn.Rebind(`SELECT ` + cardColumns + ` FROM cards
        WHERE id = ? AND learner_id = ? AND is_deleted = ?`)
	err := db.conn.GetContext(ctx, &row, query, cardID, learnerID, false)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Card{}, fmt.Errorf("%w: %s", domain.ErrCardNotFound, cardID)
	}
	if err != nil {
		return domain.Card{}, fmt.Errorf("failed to load card %s: %w", cardID, err)
	}
	return row.toDomain()
}

// CardsByCollection returns every card of a collection, soft-deleted ones included.
func (db *DB) CardsByCollection(ctx context.Context, learnerID, collectionID string) ([]domain.Card, error) {
	var rows []cardRow
	query := db.conn.Rebind(`SELECT ` + cardColumns + ` FROM cards
        WHERE learner_id = ? AND collection_id = ?
        ORDER BY created_at, id`)
	if err := db.conn.SelectContext(ctx, &rows, query, learnerID, collectionID); err != nil {
		return nil, fmt.Errorf("failed to load collection %s: %w", collectionID, err)
	}
	return toCards(rows)
}

// InsertCard stores a new card.
func (db *DB) InsertCard(ctx context.Context, card domain.Card) error {
	query := db.conn.Rebind(`INSERT INTO cards (` + cardColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := db.conn.ExecContext(ctx, query,
		card.ID,
		card.LearnerID,
		card.CollectionID,
		card.Front,
		card.Back,
		card.Fingerprint,
		string(card.Status),
		card.Interval,
		card.Ease,
		dueDateValue(card.DueDate),
		card.Deleted,
		card.Version,
		card.CreatedAt.UnixMilli(),
		card.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert card %s: %w", card.ID, err)
	}
	return nil
}

// SetCardDeleted sets or clears a card's soft-delete flag.
func (db *DB) SetCardDeleted(ctx context.Context, learnerID, cardID string, deleted bool) error {
	query := db.conn.Rebind(`UPDATE cards SET is_deleted = ?, updated_at = ?
        WHERE id = ? AND learner_id = ?`)
	res, err := db.conn.ExecContext(ctx, query, deleted, time.Now().UnixMilli(), cardID, learnerID)
	if err != nil {
		return fmt.Errorf("failed to update deleted flag of card %s: %w", cardID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrCardNotFound, cardID)
	}
	return nil
}

// ListLearners returns the ids of learners owning at least one live card.
func (db *DB) ListLearners(ctx context.Context) ([]string, error) {
	var ids []string
	query := db.conn.Rebind(`SELECT DISTINCT learner_id FROM cards WHERE is_deleted = ? ORDER BY learner_id`)
	if err := db.conn.SelectContext(ctx, &ids, query, false); err != nil {
		return nil, fmt.Errorf("failed to list learners: %w", err)
	}
	return ids, nil
}

// SaveCard writes the card's scheduling state if its version still matches.
// Content fields are not touched.
func (db *DB) SaveCard(ctx context.Context, card domain.Card) error {
	return saveCard(ctx, db.conn, card)
}

// AppendHistory stores a review record.
func (db *DB) AppendHistory(ctx context.Context, h domain.ReviewHistory) error {
	return appendHistory(ctx, db.conn, h)
}

// QueryHistory returns the learner's review records with from <= reviewed_at < to.
func (db *DB) QueryHistory(ctx context.Context, learnerID string, from, to time.Time) ([]domain.ReviewHistory, error) {
	var rows []historyRow
	query := db.conn.Rebind(`SELECT id, card_id, learner_id, rating, old_interval, new_interval,
        old_ease, new_ease, reviewed_at
        FROM reviews
        WHERE learner_id = ? AND reviewed_at >= ? AND reviewed_at < ?
        ORDER BY reviewed_at, id`)
	if err := db.conn.SelectContext(ctx, &rows, query, learnerID, from.UnixMilli(), to.UnixMilli()); err != nil {
		return nil, fmt.Errorf("failed to query history for learner %s: %w", learnerID, err)
	}
	out := make([]domain.ReviewHistory, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toDomain())
	}
	return out, nil
}

// LoadQuotaConfig returns the learner's limits or domain.ErrQuotaConfigMissing.
func (db *DB) LoadQuotaConfig(ctx context.Context, learnerID string) (domain.QuotaConfig, error) {
	var row struct {
		DailyNewLimit    int    `db:"daily_new_limit"`
		DailyReviewLimit int    `db:"daily_review_limit"`
		TimeZone         string `db:"time_zone"`
	}
	query := db.conn.Rebind(`SELECT daily_new_limit, daily_review_limit, time_zone
        FROM quota_configs WHERE learner_id = ?`)
	err := db.conn.GetContext(ctx, &row, query, learnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuotaConfig{}, fmt.Errorf("%w: %s", domain.ErrQuotaConfigMissing, learnerID)
	}
	if err != nil {
		return domain.QuotaConfig{}, fmt.Errorf("failed to load quota config for learner %s: %w", learnerID, err)
	}
	return domain.QuotaConfig{
		DailyNewLimit:    row.DailyNewLimit,
		DailyReviewLimit: row.DailyReviewLimit,
		TimeZone:         row.TimeZone,
	}, nil
}

// SaveQuotaConfig creates or replaces the learner's limits.
func (db *DB) SaveQuotaConfig(ctx context.Context, learnerID string, cfg domain.QuotaConfig) error {
	tz := cfg.TimeZone
	if tz == "" {
		tz = "UTC"
	}
	query := db.conn.Rebind(db.dialect.UpsertQuotaConfigQuery())
	if _, err := db.conn.ExecContext(ctx, query, learnerID, cfg.DailyNewLimit, cfg.DailyReviewLimit, tz); err != nil {
		return fmt.Errorf("failed to save quota config for learner %s: %w", learnerID, err)
	}
	return nil
}

// WithinTx runs fn in a transaction, committing only if fn succeeds.
func (db *DB) WithinTx(ctx context.Context, fn func(domain.ReviewWriter) error) error {
	tx, err := db.conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
