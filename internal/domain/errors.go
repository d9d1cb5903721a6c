package domain

import "errors"

var (
	// ErrInvalidRating is returned when a rating is outside Again..Easy.
	ErrInvalidRating = errors.New("invalid rating")
	// ErrInvalidCardState is returned when a card's interval is negative or
	// its ease is below the configured floor.
	ErrInvalidCardState = errors.New("invalid card state")
	// ErrCardNotFound is returned when a card is absent from the learner's set.
	ErrCardNotFound = errors.New("card not found")
	// ErrVersionConflict is returned by storage when the card changed since it was read.
	ErrVersionConflict = errors.New("card version conflict")
	// ErrQuotaConfigMissing is returned by storage when a learner has no saved limits.
	ErrQuotaConfigMissing = errors.New("quota config missing")
)
