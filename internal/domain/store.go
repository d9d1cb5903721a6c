package domain

import (
	"context"
	"time"
)

// CardReader loads a learner's cards.
type CardReader interface {
	LoadCards(ctx context.Context, learnerID string) ([]Card, error)
	LoadCard(ctx context.Context, learnerID, cardID string) (Card, error)
}

// HistoryReader returns the review records of a learner created in [from, to).
type HistoryReader interface {
	QueryHistory(ctx context.Context, learnerID string, from, to time.Time) ([]ReviewHistory, error)
}

// QuotaConfigReader loads a learner's daily limits.
type QuotaConfigReader interface {
	LoadQuotaConfig(ctx context.Context, learnerID string) (QuotaConfig, error)
}

// ReviewWriter persists the outcome of one review.
// SaveCard must fail with ErrVersionConflict when the stored version differs
// from card.Version.
type ReviewWriter interface {
	SaveCard(ctx context.Context, card Card) error
	AppendHistory(ctx context.Context, h ReviewHistory) error
}

// Transactor runs fn so that all of its writes commit together or not at all.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ReviewWriter) error) error
}
