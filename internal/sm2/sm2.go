// Package sm2 implements the two-component spaced-repetition update used to
// schedule cards: interval growth and ease adjustment are decoupled so that a
// single lapse does not erase all earlier ease gains.
package sm2

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/conorfennell/duedeck/internal/domain"
)

// Params holds the scheduling policy. Every constant of the update is a
// field so installations can tune it.
type Params struct {
	EaseFloor   float64 // ease never drops below this
	DefaultEase float64 // ease given to new cards

	AgainEasePenalty float64
	HardEasePenalty  float64
	EasyEaseBonus    float64

	HardMultiplier float64 // applied to the old interval on Hard
	EasyMultiplier float64 // applied on top of ease on Easy

	// GraduationInterval is the interval, in days, at which a card moves
	// from learning to review.
	GraduationInterval int

	// Intervals used when the card has no interval yet.
	FirstHardInterval int
	FirstGoodInterval int
	FirstEasyInterval int

	// MaxInterval caps every computed interval, in days.
	MaxInterval int
}

// DefaultParams returns the reference policy.
func DefaultParams() *Params {
	return &Params{
		EaseFloor:          1.3,
		DefaultEase:        2.5,
		AgainEasePenalty:   0.20,
		HardEasePenalty:    0.15,
		EasyEaseBonus:      0.15,
		HardMultiplier:     1.2,
		EasyMultiplier:     1.3,
		GraduationInterval: 21,
		FirstHardInterval:  1,
		FirstGoodInterval:  1,
		FirstEasyInterval:  4,
		MaxInterval:        36500,
	}
}

// Validate reports whether the policy can only produce valid states.
func (p *Params) Validate() error {
	switch {
	case p.EaseFloor <= 0:
		return fmt.Errorf("ease floor %.2f must be positive", p.EaseFloor)
	case p.DefaultEase < p.EaseFloor:
		return fmt.Errorf("default ease %.2f is below the ease floor %.2f", p.DefaultEase, p.EaseFloor)
	case p.AgainEasePenalty < 0 || p.HardEasePenalty < 0 || p.EasyEaseBonus < 0:
		return fmt.Errorf("ease adjustments must not be negative")
	case p.HardMultiplier <= 0 || p.EasyMultiplier <= 0:
		return fmt.Errorf("interval multipliers must be positive")
	case p.GraduationInterval < 1:
		return fmt.Errorf("graduation interval %d must be at least 1", p.GraduationInterval)
	case p.FirstHardInterval < 0 || p.FirstGoodInterval < 0 || p.FirstEasyInterval < 0:
		return fmt.Errorf("first intervals must not be negative")
	case p.MaxInterval < p.GraduationInterval:
		return fmt.Errorf("max interval %d is below the graduation interval %d", p.MaxInterval, p.GraduationInterval)
	}
	return nil
}

// Delta is the before/after summary of one transition.
type Delta struct {
	Rating      domain.Rating
	OldInterval int
	NewInterval int
	OldEase     float64
	NewEase     float64
}

// Transition computes the state that follows rating the card today.
// today is a calendar date; its time of day is ignored. A zero ease is
// treated as DefaultEase. The function reads nothing but its arguments.
func (p *Params) Transition(state domain.CardState, rating domain.Rating, today time.Time) (domain.CardState, Delta, error) {
	if !rating.IsValid() {
		return domain.CardState{}, Delta{}, fmt.Errorf("%w: %d", domain.ErrInvalidRating, int(rating))
	}

	ease := state.Ease
	if ease == 0 {
		ease = p.DefaultEase
	}
	if state.Interval < 0 {
		return domain.CardState{}, Delta{}, fmt.Errorf("%w: interval %d is negative", domain.ErrInvalidCardState, state.Interval)
	}
	if roundEase(ease) < p.EaseFloor {
		return domain.CardState{}, Delta{}, fmt.Errorf("%w: ease %.4f is below floor %.2f", domain.ErrInvalidCardState, ease, p.EaseFloor)
	}

	old := state.Interval
	var interval int
	newEase := ease

	switch rating {
	case domain.Again:
		interval = 0
		newEase = ease - p.AgainEasePenalty
	case domain.Hard:
		interval = p.grow(old, p.FirstHardInterval, p.HardMultiplier)
		newEase = ease - p.HardEasePenalty
	case domain.Good:
		interval = p.grow(old, p.FirstGoodInterval, ease)
	case domain.Easy:
		interval = p.grow(old, p.FirstEasyInterval, ease*p.EasyMultiplier)
		newEase = ease + p.EasyEaseBonus
	}
	newEase = math.Max(p.EaseFloor, roundEase(newEase))

	status := domain.StatusLearning
	if rating != domain.Again && interval >= p.GraduationInterval {
		status = domain.StatusReview
	}

	due := domain.AddDays(domain.DateOf(today, today.Location()), interval)
	next := domain.CardState{
		Status:   status,
		Interval: interval,
		Ease:     newEase,
		DueDate:  &due,
	}
	return next, Delta{
		Rating:      rating,
		OldInterval: old,
		NewInterval: interval,
		OldEase:     ease,
		NewEase:     newEase,
	}, nil
}

// grow returns first for an unscheduled card, otherwise the old interval
// scaled by factor and rounded up to whole days. The result never exceeds
// MaxInterval.
func (p *Params) grow(old, first int, factor float64) int {
	if old == 0 {
		return min(first, p.MaxInterval)
	}
	return ceilDays(float64(old)*factor, p.MaxInterval)
}

// ceilDays rounds up, ignoring floating error below a nanoday, and clamps to
// limit before converting so huge products cannot overflow int.
func ceilDays(days float64, limit int) int {
	days = math.Ceil(days - 1e-9)
	if days >= float64(limit) {
		return limit
	}
	return int(days)
}

func roundEase(e float64) float64 {
	return math.Round(e*10000) / 10000
}

// FormatInterval renders an interval the way rating buttons show it:
// "today", "1 day", "12 days", "2.5 months" or "1.2 years".
func FormatInterval(days int) string {
	switch {
	case days <= 0:
		return "today"
	case days == 1:
		return "1 day"
	case days < 30:
		return fmt.Sprintf("%d days", days)
	case days < 365:
		return trimUnit(float64(days)/30, "month")
	default:
		return trimUnit(float64(days)/365, "year")
	}
}

func trimUnit(n float64, unit string) string {
	s := strings.TrimSuffix(strconv.FormatFloat(n, 'f', 1, 64), ".0")
	if s == "1" {
		return s + " " + unit
	}
	return s + " " + unit + "s"
}
