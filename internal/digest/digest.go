// Package digest sends each learner a daily summary of what is waiting in
// their queue.
package digest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/conorfennell/duedeck/internal/domain"
)

// Queue builds a learner's queue for the current day.
type Queue interface {
	GetDueQueue(ctx context.Context, learnerID string, now time.Time) ([]domain.Card, error)
}

// LearnerLister lists learners that own cards.
type LearnerLister interface {
	ListLearners(ctx context.Context) ([]string, error)
}

// Summary is what a learner is told about their queue.
type Summary struct {
	LearnerID string
	New       int
	Review    int
}

// Total is the queue length.
func (s Summary) Total() int { return s.New + s.Review }

// Text renders the summary as a short message.
func (s Summary) Text() string {
	if s.Total() == 0 {
		return "Nothing to study today."
	}
	return fmt.Sprintf("Today's queue: %d new, %d review.", s.New, s.Review)
}

// Summarize splits a built queue into new and review cards.
func Summarize(learnerID string, cards []domain.Card) Summary {
	s := Summary{LearnerID: learnerID}
	for _, c := range cards {
		if c.IsNew() {
			s.New++
		} else {
			s.Review++
		}
	}
	return s
}

// Notifier delivers a summary.
type Notifier interface {
	Notify(ctx context.Context, s Summary) error
}

// Runner builds every learner's queue and hands the summary to each notifier.
type Runner struct {
	learners  LearnerLister
	queue     Queue
	notifiers []Notifier
	now       func() time.Time
	logger    *slog.Logger

	scheduler *gocron.Scheduler
}

// NewRunner returns a Runner. Learners with an empty queue are skipped.
func NewRunner(learners LearnerLister, queue Queue, logger *slog.Logger, notifiers ...Notifier) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		learners:  learners,
		queue:     queue,
		notifiers: notifiers,
		now:       time.Now,
		logger:    logger,
	}
}

// RunOnce sends one round of summaries and returns how many learners were
// notified. A failure for one learner does not stop the others; the joined
// errors are returned.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	ids, err := r.learners.ListLearners(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list learners: %w", err)
	}

	now := r.now()
	var (
		sent int
		errs []error
	)
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		cards, err := r.queue.GetDueQueue(ctx, id, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("learner %s: %w", id, err))
			continue
		}
		s := Summarize(id, cards)
		if s.Total() == 0 {
			continue
		}
		delivered := false
		for _, n := range r.notifiers {
			if err := n.Notify(ctx, s); err != nil {
				errs = append(errs, fmt.Errorf("learner %s: %w", id, err))
				continue
			}
			delivered = true
		}
		if delivered {
			sent++
		}
	}
	return sent, errors.Join(errs...)
}

// Start schedules RunOnce every day at the given HH:MM in loc.
func (r *Runner) Start(at string, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	r.scheduler = gocron.NewScheduler(loc)
	_, err := r.scheduler.Every(1).Day().At(at).Do(func() {
		sent, err := r.RunOnce(context.Background())
		if err != nil {
			r.logger.Error("Digest run finished with errors", "sent", sent, "error", err)
			return
		}
		r.logger.Info("Digest run complete", "sent", sent)
	})
	if err != nil {
		return fmt.Errorf("failed to schedule digest at %s: %w", at, err)
	}
	r.scheduler.StartAsync()
	r.logger.Info("Digest scheduled", "at", at, "timezone", loc.String())
	return nil
}

// Stop terminates the scheduled job, if any.
func (r *Runner) Stop() {
	if r.scheduler != nil {
		r.scheduler.Stop()
	}
}
