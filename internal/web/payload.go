package web

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/duedeck/internal/deckimport"
	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/sm2"
)

type reviewRequest struct {
	CardID string `json:"card_id" validate:"required"`
	// Range is checked by the service so the error maps like any other
	// invalid rating.
	Rating int `json:"rating" validate:"required"`
}

type settingsRequest struct {
	DailyNewLimit    *int   `json:"daily_new_limit" validate:"required,gt=0"`
	DailyReviewLimit *int   `json:"daily_review_limit" validate:"required,gt=0"`
	TimeZone         string `json:"time_zone" validate:"omitempty,timezone"`
}

type importRequest struct {
	CollectionID string `json:"collection_id" validate:"required"`
	Location     string `json:"location" validate:"required"`
}

type cardJSON struct {
	ID           string  `json:"id"`
	CollectionID string  `json:"collection_id"`
	Front        string  `json:"front"`
	Back         string  `json:"back"`
	Status       string  `json:"status"`
	Interval     int     `json:"interval"`
	Ease         float64 `json:"ease"`
	DueDate      *string `json:"due_date"`
	Version      int64   `json:"version"`
}

type queueJSON struct {
	LearnerID    string     `json:"learner_id"`
	CollectionID string     `json:"collection_id,omitempty"`
	Count        int        `json:"count"`
	Cards        []cardJSON `json:"cards"`
}

type previewOptionJSON struct {
	Rating   string  `json:"rating"`
	Value    int     `json:"value"`
	Label    string  `json:"label"`
	Interval int     `json:"interval"`
	Ease     float64 `json:"ease"`
	Status   string  `json:"status"`
	DueDate  string  `json:"due_date"`
}

type previewJSON struct {
	CardID  string              `json:"card_id"`
	Options []previewOptionJSON `json:"options"`
}

type reviewJSON struct {
	ID          string    `json:"id"`
	CardID      string    `json:"card_id"`
	Rating      string    `json:"rating"`
	OldInterval int       `json:"old_interval"`
	NewInterval int       `json:"new_interval"`
	OldEase     float64   `json:"old_ease"`
	NewEase     float64   `json:"new_ease"`
	ReviewedAt  time.Time `json:"reviewed_at"`
}

type reviewResponse struct {
	Card   cardJSON   `json:"card"`
	Review reviewJSON `json:"review"`
}

type settingsJSON struct {
	DailyNewLimit    int    `json:"daily_new_limit"`
	DailyReviewLimit int    `json:"daily_review_limit"`
	TimeZone         string `json:"time_zone"`
}

type importJSON struct {
	Parsed    int      `json:"parsed"`
	Inserted  int      `json:"inserted"`
	Unchanged int      `json:"unchanged"`
	Restored  int      `json:"restored"`
	Deleted   int      `json:"deleted"`
	Errors    []string `json:"errors,omitempty"`
}

type errorJSON struct {
	Error string `json:"error"`
}

func toCardJSON(c domain.Card) cardJSON {
	out := cardJSON{
		ID:           c.ID,
		CollectionID: c.CollectionID,
		Front:        c.Front,
		Back:         c.Back,
		Status:       string(c.Status),
		Interval:     c.Interval,
		Ease:         c.Ease,
		Version:      c.Version,
	}
	if c.DueDate != nil {
		d := domain.FormatDate(*c.DueDate)
		out.DueDate = &d
	}
	return out
}

// toPreviewJSON lists options in rating order, Again first.
func toPreviewJSON(card domain.Card, options map[domain.Rating]domain.CardState) previewJSON {
	out := previewJSON{CardID: card.ID, Options: make([]previewOptionJSON, 0, len(options))}
	for _, r := range domain.Ratings() {
		next, ok := options[r]
		if !ok {
			continue
		}
		opt := previewOptionJSON{
			Rating:   r.String(),
			Value:    int(r),
			Label:    sm2.FormatInterval(next.Interval),
			Interval: next.Interval,
			Ease:     next.Ease,
			Status:   string(next.Status),
		}
		if next.DueDate != nil {
			opt.DueDate = domain.FormatDate(*next.DueDate)
		}
		out.Options = append(out.Options, opt)
	}
	return out
}

func toReviewJSON(h domain.ReviewHistory) reviewJSON {
	return reviewJSON{
		ID:          h.ID,
		CardID:      h.CardID,
		Rating:      h.Rating.String(),
		OldInterval: h.OldInterval,
		NewInterval: h.NewInterval,
		OldEase:     h.OldEase,
		NewEase:     h.NewEase,
		ReviewedAt:  h.ReviewedAt,
	}
}

func toSettingsJSON(cfg domain.QuotaConfig) settingsJSON {
	return settingsJSON{
		DailyNewLimit:    cfg.DailyNewLimit,
		DailyReviewLimit: cfg.DailyReviewLimit,
		TimeZone:         cfg.TimeZone,
	}
}

func toImportJSON(r deckimport.Result) importJSON {
	return importJSON{
		Parsed:    r.Parsed,
		Inserted:  r.Inserted,
		Unchanged: r.Unchanged,
		Restored:  r.Restored,
		Deleted:   r.Deleted,
		Errors:    r.Errors,
	}
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "invalid request: " + strings.Join(msgs, ", ")
}
