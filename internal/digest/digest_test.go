package digest

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/conorfennell/duedeck/internal/domain"
)

type fakeLearners []string

func (f fakeLearners) ListLearners(context.Context) ([]string, error) { return f, nil }

type fakeQueue map[string][]domain.Card

func (f fakeQueue) GetDueQueue(_ context.Context, learnerID string, _ time.Time) ([]domain.Card, error) {
	cards, ok := f[learnerID]
	if !ok {
		return nil, errors.New("boom")
	}
	return cards, nil
}

type recordingNotifier struct {
	got []Summary
	err error
}

func (r *recordingNotifier) Notify(_ context.Context, s Summary) error {
	if r.err != nil {
		return r.err
	}
	r.got = append(r.got, s)
	return nil
}

func cards(newCount, reviewCount int) []domain.Card {
	var out []domain.Card
	for i := 0; i < newCount; i++ {
		out = append(out, domain.Card{CardState: domain.CardState{Status: domain.StatusNew}})
	}
	for i := 0; i < reviewCount; i++ {
		out = append(out, domain.Card{CardState: domain.CardState{Status: domain.StatusReview, Interval: 3}})
	}
	return out
}

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestSummarize(t *testing.T) {
	s := Summarize("l1", cards(2, 3))
	if s.New != 2 || s.Review != 3 || s.Total() != 5 {
		t.Errorf("Expected 2 new and 3 review, but got %+v", s)
	}
	if s.Text() != "Today's queue: 2 new, 3 review." {
		t.Errorf("Unexpected text %q", s.Text())
	}
	if Summarize("l1", nil).Text() != "Nothing to study today." {
		t.Error("Expected empty summary text")
	}
}

func TestRunOnce(t *testing.T) {
	rec := &recordingNotifier{}
	r := NewRunner(
		fakeLearners{"alice", "bob", "carol"},
		fakeQueue{"alice": cards(1, 1), "bob": nil},
		quiet,
		rec, LogNotifier{Logger: quiet},
	)

	sent, err := r.RunOnce(context.Background())
	if err == nil {
		t.Error("Expected an error for the learner whose queue failed")
	}
	if sent != 1 {
		t.Errorf("Expected 1 learner notified, but got %d", sent)
	}
	if len(rec.got) != 1 || rec.got[0].LearnerID != "alice" {
		t.Errorf("Expected only alice to be notified, but got %+v", rec.got)
	}
}

func TestRunOnceNotifierFailure(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("down")}
	r := NewRunner(fakeLearners{"alice"}, fakeQueue{"alice": cards(1, 0)}, quiet, failing)

	sent, err := r.RunOnce(context.Background())
	if err == nil || sent != 0 {
		t.Errorf("Expected failure with nothing sent, but got sent=%d err=%v", sent, err)
	}
}

type fakeSender struct {
	sent []tgbotapi.MessageConfig
}

func (f *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		f.sent = append(f.sent, msg)
	}
	return tgbotapi.Message{}, nil
}

func TestTelegramNotifier(t *testing.T) {
	sender := &fakeSender{}
	n := &TelegramNotifier{bot: sender, chats: map[string]int64{"alice": 42}}

	if err := n.Notify(context.Background(), Summary{LearnerID: "alice", New: 1, Review: 2}); err != nil {
		t.Fatalf("Notify() returned an unexpected error: %v", err)
	}
	if err := n.Notify(context.Background(), Summary{LearnerID: "bob", New: 1}); err != nil {
		t.Fatalf("Notify() for an unmapped learner returned an error: %v", err)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("Expected 1 message, but got %d", len(sender.sent))
	}
	if sender.sent[0].ChatID != 42 || sender.sent[0].Text != "Today's queue: 1 new, 2 review." {
		t.Errorf("Unexpected message %+v", sender.sent[0])
	}
}

func TestStartAndStop(t *testing.T) {
	r := NewRunner(fakeLearners{}, fakeQueue{}, quiet)
	if err := r.Start("not a time", time.UTC); err == nil {
		t.Error("Expected an error for an invalid time")
	}
	r.Stop()

	r = NewRunner(fakeLearners{}, fakeQueue{}, quiet)
	if err := r.Start("07:00", nil); err != nil {
		t.Fatalf("Start() returned an unexpected error: %v", err)
	}
	r.Stop()
}
