// Package queue selects and orders the cards a learner should see next.
package queue

import (
	"cmp"
	"slices"
	"time"

	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/quota"
)

// Build returns today's queue for learnerID: due scheduled cards first,
// earliest due date first, then never-reviewed cards in creation order.
// Each category is capped by what remains of its daily limit. The result is a
// snapshot; it does not change as reviews are recorded.
func Build(learnerID string, today time.Time, cards []domain.Card, cfg domain.QuotaConfig, used quota.Counts) []domain.Card {
	newLeft, reviewLeft := quota.Remaining(cfg, used)
	if newLeft == 0 && reviewLeft == 0 {
		return nil
	}
	today = domain.DateOf(today, today.Location())

	var due, fresh []domain.Card
	for _, c := range cards {
		if c.Deleted || c.LearnerID != learnerID {
			continue
		}
		switch {
		case c.IsNew():
			fresh = append(fresh, c)
		case c.DueDate != nil && !c.DueDate.After(today):
			due = append(due, c)
		}
	}

	slices.SortFunc(due, func(a, b domain.Card) int {
		if n := a.DueDate.Compare(*b.DueDate); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	slices.SortFunc(fresh, func(a, b domain.Card) int {
		if n := a.CreatedAt.Compare(b.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})

	due = due[:min(len(due), reviewLeft)]
	fresh = fresh[:min(len(fresh), newLeft)]
	if len(due)+len(fresh) == 0 {
		return nil
	}

	out := make([]domain.Card, 0, len(due)+len(fresh))
	out = append(out, due...)
	return append(out, fresh...)
}
