package domain

import (
	"fmt"
	"time"
)

// Status is the learning stage of a card.
type Status string

const (
	StatusNew      Status = "new"
	StatusLearning Status = "learning"
	StatusReview   Status = "review"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusNew, StatusLearning, StatusReview:
		return true
	}
	return false
}

// Rating is the learner's self-graded recall quality for a review.
// 1: Again (forgotten)
// 2: Hard
// 3: Good
// 4: Easy
type Rating int

const (
	Again Rating = 1
	Hard  Rating = 2
	Good  Rating = 3
	Easy  Rating = 4
)

var ratingNames = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}

// Ratings lists every valid rating, Again first.
func Ratings() []Rating {
	return []Rating{Again, Hard, Good, Easy}
}

// IsValid reports whether r is Again through Easy.
func (r Rating) IsValid() bool {
	return r >= Again && r <= Easy
}

func (r Rating) String() string {
	if r.IsValid() {
		return ratingNames[r]
	}
	return fmt.Sprintf("Rating(%d)", int(r))
}

// CardState is the scheduling state owned by a card.
// DueDate is a calendar date (see DateOf) and is nil until the first review.
type CardState struct {
	Status   Status
	Interval int
	Ease     float64
	DueDate  *time.Time
}

// IsNew reports whether the card has never been scheduled.
func (s CardState) IsNew() bool {
	return s.Status == StatusNew
}

// Clone returns a copy that shares no pointers with s.
func (s CardState) Clone() CardState {
	out := s
	if s.DueDate != nil {
		d := *s.DueDate
		out.DueDate = &d
	}
	return out
}

// Card is a single memorized fact in a learner's collection.
// Version is bumped by storage on every successful save and is used for
// optimistic concurrency.
type Card struct {
	ID           string
	LearnerID    string
	CollectionID string
	Front        string
	Back         string
	Fingerprint  string
	CardState
	Deleted   bool
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewCard returns a never-reviewed card with the given ease.
func NewCard(id, learnerID, collectionID, front, back string, ease float64, now time.Time) Card {
	return Card{
		ID:           id,
		LearnerID:    learnerID,
		CollectionID: collectionID,
		Front:        front,
		Back:         back,
		CardState: CardState{
			Status: StatusNew,
			Ease:   ease,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// ReviewHistory records a single scheduling transition. Records are never
// changed once written.
type ReviewHistory struct {
	ID          string
	CardID      string
	LearnerID   string
	Rating      Rating
	OldInterval int
	NewInterval int
	OldEase     float64
	NewEase     float64
	ReviewedAt  time.Time
}

// CountsAsNew reports whether the review consumed the learner's new-card quota.
func (h ReviewHistory) CountsAsNew() bool {
	return h.OldInterval == 0
}

// QuotaConfig holds a learner's daily limits and the time zone that decides
// where one study day ends and the next begins.
type QuotaConfig struct {
	DailyNewLimit    int
	DailyReviewLimit int
	TimeZone         string
}

// Location resolves TimeZone, treating an empty zone as UTC.
func (q QuotaConfig) Location() (*time.Location, error) {
	if q.TimeZone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(q.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("failed to load time zone %q: %w", q.TimeZone, err)
	}
	return loc, nil
}
