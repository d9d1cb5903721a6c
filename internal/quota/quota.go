// Package quota derives how much of a learner's daily allowance has been used
// from the review history itself, so there is no separate counter to drift.
package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/conorfennell/duedeck/internal/domain"
)

// Counts is the number of review events on one day, split by whether the
// card was unscheduled (interval 0) when it was reviewed.
type Counts struct {
	New    int
	Review int
}

// Count tallies the records of learnerID that fall on the calendar date day
// in loc. Every event counts, so repeated reviews of the same card each use
// up allowance.
func Count(records []domain.ReviewHistory, learnerID string, day time.Time, loc *time.Location) Counts {
	start, end := domain.DayBounds(day, loc)
	var c Counts
	for _, h := range records {
		if h.LearnerID != learnerID {
			continue
		}
		if h.ReviewedAt.Before(start) || !h.ReviewedAt.Before(end) {
			continue
		}
		if h.CountsAsNew() {
			c.New++
		} else {
			c.Review++
		}
	}
	return c
}

// Tracker answers CountsForDay from a history store.
type Tracker struct {
	History domain.HistoryReader
}

// CountsForDay loads the learner's history for day and counts it.
func (t *Tracker) CountsForDay(ctx context.Context, learnerID string, day time.Time, loc *time.Location) (Counts, error) {
	start, end := domain.DayBounds(day, loc)
	records, err := t.History.QueryHistory(ctx, learnerID, start, end)
	if err != nil {
		return Counts{}, fmt.Errorf("failed to query history for learner %s: %w", learnerID, err)
	}
	return Count(records, learnerID, day, loc), nil
}

// Remaining returns how many new and review cards may still be shown.
// Neither value is negative.
func Remaining(cfg domain.QuotaConfig, c Counts) (newLeft, reviewLeft int) {
	return max(0, cfg.DailyNewLimit-c.New), max(0, cfg.DailyReviewLimit-c.Review)
}

// Allowance is the usage of one category against its limit.
type Allowance struct {
	Studied   int  `json:"studied"`
	Limit     int  `json:"limit"`
	Remaining int  `json:"remaining"`
	Reached   bool `json:"reached"`
}

// Status reports the usage of both categories for a day.
type Status struct {
	New        Allowance `json:"new"`
	Review     Allowance `json:"review"`
	AllReached bool      `json:"all_reached"`
}

// StatusOf summarizes counts against cfg.
func StatusOf(cfg domain.QuotaConfig, c Counts) Status {
	newLeft, reviewLeft := Remaining(cfg, c)
	s := Status{
		New: Allowance{
			Studied:   c.New,
			Limit:     cfg.DailyNewLimit,
			Remaining: newLeft,
			Reached:   c.New >= cfg.DailyNewLimit,
		},
		Review: Allowance{
			Studied:   c.Review,
			Limit:     cfg.DailyReviewLimit,
			Remaining: reviewLeft,
			Reached:   c.Review >= cfg.DailyReviewLimit,
		},
	}
	s.AllReached = s.New.Reached && s.Review.Reached
	return s
}
