// Package review builds the immutable history records of scheduling
// transitions. It is the only place a domain.ReviewHistory is constructed.
package review

import (
	"time"

	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/google/uuid"
)

// Recorder constructs history records. NewID defaults to random UUIDs.
type Recorder struct {
	NewID func() string
}

// NewRecorder returns a Recorder that assigns UUIDv4 ids.
func NewRecorder() *Recorder {
	return &Recorder{NewID: uuid.NewString}
}

// Record captures the before/after state of rating card at reviewedAt.
func (r *Recorder) Record(card domain.Card, rating domain.Rating, before, after domain.CardState, reviewedAt time.Time) domain.ReviewHistory {
	newID := r.NewID
	if newID == nil {
		newID = uuid.NewString
	}
	return domain.ReviewHistory{
		ID:          newID(),
		CardID:      card.ID,
		LearnerID:   card.LearnerID,
		Rating:      rating,
		OldInterval: before.Interval,
		NewInterval: after.Interval,
		OldEase:     before.Ease,
		NewEase:     after.Ease,
		ReviewedAt:  reviewedAt.UTC(),
	}
}
