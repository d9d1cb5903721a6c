// Package study wires the scheduling engine, the review recorder, the quota
// tracker and the queue builder to a store. It is the surface used by the
// HTTP and CLI front ends.
package study

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/queue"
	"github.com/conorfennell/duedeck/internal/quota"
	"github.com/conorfennell/duedeck/internal/review"
	"github.com/conorfennell/duedeck/internal/sm2"
)

// Store is everything the service needs from persistence.
type Store interface {
	domain.CardReader
	domain.HistoryReader
	domain.QuotaConfigReader
	domain.Transactor
}

// Options configures a Service. Zero values select defaults.
type Options struct {
	Params     *sm2.Params
	Recorder   *review.Recorder
	Defaults   domain.QuotaConfig // used for learners without saved limits
	MaxRetries int                // extra attempts after a version conflict
	Logger     *slog.Logger
}

// DefaultQuota is used when neither the learner nor the caller supplies limits.
var DefaultQuota = domain.QuotaConfig{DailyNewLimit: 25, DailyReviewLimit: 50, TimeZone: "UTC"}

// Service exposes the due queue and review submission.
type Service struct {
	store      Store
	params     *sm2.Params
	recorder   *review.Recorder
	tracker    *quota.Tracker
	defaults   domain.QuotaConfig
	maxRetries int
	logger     *slog.Logger
}

// NewService creates a Service over store.
func NewService(store Store, opts Options) *Service {
	s := &Service{
		store:      store,
		params:     opts.Params,
		recorder:   opts.Recorder,
		tracker:    &quota.Tracker{History: store},
		defaults:   opts.Defaults,
		maxRetries: opts.MaxRetries,
		logger:     opts.Logger,
	}
	if s.params == nil {
		s.params = sm2.DefaultParams()
	}
	if s.recorder == nil {
		s.recorder = review.NewRecorder()
	}
	if s.defaults == (domain.QuotaConfig{}) {
		s.defaults = DefaultQuota
	}
	if s.maxRetries < 0 {
		s.maxRetries = 0
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Params returns the scheduling policy in use.
func (s *Service) Params() *sm2.Params {
	return s.params
}

// QuotaConfig returns the learner's limits, falling back to the defaults
// when none are saved, together with the resolved time zone.
func (s *Service) QuotaConfig(ctx context.Context, learnerID string) (domain.QuotaConfig, *time.Location, error) {
	cfg, err := s.store.LoadQuotaConfig(ctx, learnerID)
	if errors.Is(err, domain.ErrQuotaConfigMissing) {
		cfg = s.defaults
	} else if err != nil {
		return domain.QuotaConfig{}, nil, err
	}

	loc, err := cfg.Location()
	if err != nil {
		s.logger.Warn("Invalid learner time zone, using UTC", "learner", learnerID, "time_zone", cfg.TimeZone, "error", err)
		loc = time.UTC
	}
	return cfg, loc, nil
}

// GetDueQueue returns the cards the learner should see next at now, across
// all of their collections.
func (s *Service) GetDueQueue(ctx context.Context, learnerID string, now time.Time) ([]domain.Card, error) {
	return s.GetCollectionQueue(ctx, learnerID, "", now)
}

// GetCollectionQueue is GetDueQueue restricted to one collection. Daily
// limits stay learner-wide, so reviews in other collections still count.
// An empty collectionID selects every collection.
func (s *Service) GetCollectionQueue(ctx context.Context, learnerID, collectionID string, now time.Time) ([]domain.Card, error) {
	cfg, loc, err := s.QuotaConfig(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	today := domain.DateOf(now, loc)

	used, err := s.tracker.CountsForDay(ctx, learnerID, today, loc)
	if err != nil {
		return nil, err
	}

	cards, err := s.store.LoadCards(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if collectionID != "" {
		cards = slices.DeleteFunc(cards, func(c domain.Card) bool {
			return c.CollectionID != collectionID
		})
	}
	return queue.Build(learnerID, today, cards, cfg, used), nil
}

// Preview returns the state each rating would move the card to if it were
// rated at now. Nothing is written.
func (s *Service) Preview(ctx context.Context, learnerID, cardID string, now time.Time) (domain.Card, map[domain.Rating]domain.CardState, error) {
	_, loc, err := s.QuotaConfig(ctx, learnerID)
	if err != nil {
		return domain.Card{}, nil, err
	}
	card, err := s.store.LoadCard(ctx, learnerID, cardID)
	if err != nil {
		return domain.Card{}, nil, err
	}

	today := domain.DateOf(now, loc)
	out := make(map[domain.Rating]domain.CardState, 4)
	for _, r := range domain.Ratings() {
		next, _, err := s.params.Transition(card.CardState, r, today)
		if err != nil {
			return domain.Card{}, nil, fmt.Errorf("failed to preview card %s: %w", cardID, err)
		}
		out[r] = next
	}
	return card, out, nil
}

// Limits reports how much of today's allowance the learner has used.
func (s *Service) Limits(ctx context.Context, learnerID string, now time.Time) (quota.Status, error) {
	cfg, loc, err := s.QuotaConfig(ctx, learnerID)
	if err != nil {
		return quota.Status{}, err
	}
	used, err := s.tracker.CountsForDay(ctx, learnerID, domain.DateOf(now, loc), loc)
	if err != nil {
		return quota.Status{}, err
	}
	return quota.StatusOf(cfg, used), nil
}

// SubmitReview applies rating to the card and commits the new state and its
// history record together. On a version conflict the card is reloaded and the
// transition recomputed, up to MaxRetries times.
func (s *Service) SubmitReview(ctx context.Context, cardID, learnerID string, rating domain.Rating, now time.Time) (domain.Card, domain.ReviewHistory, error) {
	if !rating.IsValid() {
		return domain.Card{}, domain.ReviewHistory{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}

	_, loc, err := s.QuotaConfig(ctx, learnerID)
	if err != nil {
		return domain.Card{}, domain.ReviewHistory{}, err
	}
	today := domain.DateOf(now, loc)

	for attempt := 0; ; attempt++ {
		card, err := s.store.LoadCard(ctx, learnerID, cardID)
		if err != nil {
			return domain.Card{}, domain.ReviewHistory{}, err
		}

		next, delta, err := s.params.Transition(card.CardState, rating, today)
		if err != nil {
			return domain.Card{}, domain.ReviewHistory{}, fmt.Errorf("failed to schedule card %s: %w", cardID, err)
		}
		// Record the ease the engine actually used, which differs from the
		// stored one when the card had none yet.
		before := card.CardState
		before.Ease = delta.OldEase
		h := s.recorder.Record(card, rating, before, next, now)

		updated := card
		updated.CardState = next
		updated.UpdatedAt = now.UTC()

		err = s.store.WithinTx(ctx, func(w domain.ReviewWriter) error {
			if err := w.SaveCard(ctx, updated); err != nil {
				return err
			}
			return w.AppendHistory(ctx, h)
		})
		if err == nil {
			updated.Version++
			s.logger.Debug("Review committed",
				"card", cardID,
				"learner", learnerID,
				"rating", rating.String(),
				"old_interval", h.OldInterval,
				"new_interval", h.NewInterval,
				"status", string(next.Status),
			)
			return updated, h, nil
		}
		if !errors.Is(err, domain.ErrVersionConflict) || attempt >= s.maxRetries {
			return domain.Card{}, domain.ReviewHistory{}, fmt.Errorf("failed to commit review of card %s: %w", cardID, err)
		}
		s.logger.Warn("Card changed during review, retrying", "card", cardID, "learner", learnerID, "attempt", attempt+1)
	}
}
