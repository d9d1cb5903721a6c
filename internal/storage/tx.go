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

// Tx is the write side of a review inside a transaction.
type Tx struct {
	tx *sqlx.Tx
}

// SaveCard writes the card's scheduling state if its version still matches.
func (t *Tx) SaveCard(ctx context.Context, card domain.Card) error {
	return saveCard(ctx, t.tx, card)
}

// AppendHistory stores a review record.
func (t *Tx) AppendHistory(ctx context.Context, h domain.ReviewHistory) error {
	return appendHistory(ctx, t.tx, h)
}

func saveCard(ctx context.Context, q sqlx.ExtContext, card domain.Card) error {
	res, err := q.ExecContext(ctx, q.Rebind(`
		UPDATE cards
		SET status = ?, interval_days = ?, ease = ?, due_date = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND learner_id = ? AND version = ?
	`),
		string(card.Status),
		card.Interval,
		card.Ease,
		dueDateValue(card.DueDate),
		card.UpdatedAt.UnixMilli(),
		card.ID,
		card.LearnerID,
		card.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update card state for %s: %w", card.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n > 0 {
		return nil
	}

	var version int64
	err = sqlx.GetContext(ctx, q, &version, q.Rebind(`SELECT version FROM cards WHERE id = ? AND learner_id = ?`), card.ID, card.LearnerID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrCardNotFound, card.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to read version of card %s: %w", card.ID, err)
	}
	return fmt.Errorf("%w: card %s is at version %d, expected %d", domain.ErrVersionConflict, card.ID, version, card.Version)
}

func appendHistory(ctx context.Context, q sqlx.ExtContext, h domain.ReviewHistory) error {
	_, err := q.ExecContext(ctx, q.Rebind(`
		INSERT INTO reviews (id, card_id, learner_id, rating, old_interval, new_interval, old_ease, new_ease, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		h.ID,
		h.CardID,
		h.LearnerID,
		int(h.Rating),
		h.OldInterval,
		h.NewInterval,
		h.OldEase,
		h.NewEase,
		h.ReviewedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to append review %s: %w", h.ID, err)
	}
	return nil
}

type historyRow struct {
	ID          string  `db:"id"`
	CardID      string  `db:"card_id"`
	LearnerID   string  `db:"learner_id"`
	Rating      int     `db:"rating"`
	OldInterval int     `db:"old_interval"`
	NewInterval int     `db:"new_interval"`
	OldEase     float64 `db:"old_ease"`
	NewEase     float64 `db:"new_ease"`
	ReviewedAt  int64   `db:"reviewed_at"`
}

func (r historyRow) toDomain() domain.ReviewHistory {
	return domain.ReviewHistory{
		ID:          r.ID,
		CardID:      r.CardID,
		LearnerID:   r.LearnerID,
		Rating:      domain.Rating(r.Rating),
		OldInterval: r.OldInterval,
		NewInterval: r.NewInterval,
		OldEase:     r.OldEase,
		NewEase:     r.NewEase,
		ReviewedAt:  time.UnixMilli(r.ReviewedAt).UTC(),
	}
}
