package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conorfennell/duedeck/internal/deckimport"
	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/gitsource"
	"github.com/conorfennell/duedeck/internal/quota"
	"github.com/conorfennell/duedeck/internal/storage"
	"github.com/conorfennell/duedeck/internal/study"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type testEnv struct {
	db         *storage.DB
	server     *Server
	importRoot string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := storage.Open("sqlite", filepath.Join(t.TempDir(), "web.db"))
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := study.NewService(db, study.Options{Logger: logger})
	imp := deckimport.New(db, deckimport.Options{Logger: logger})
	root := t.TempDir()
	s := NewServer(svc, db, imp, Options{ImportRoot: root, Logger: logger})
	s.now = func() time.Time { return testNow }
	return &testEnv{db: db, server: s, importRoot: root}
}

func (e *testEnv) addCard(t *testing.T, id, learner string) {
	t.Helper()
	e.addCardTo(t, id, learner, "deck")
}

func (e *testEnv) addCardTo(t *testing.T, id, learner, collection string) {
	t.Helper()
	c := domain.NewCard(id, learner, collection, "front "+id, "back "+id, 2.5, testNow.Add(-time.Hour))
	if err := e.db.InsertCard(context.Background(), c); err != nil {
		t.Fatalf("Failed to insert card: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	e.server.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response %q: %v", rec.Body.String(), err)
	}
	return v
}

func TestQueueAndReview(t *testing.T) {
	env := newTestEnv(t)
	env.addCard(t, "c1", "alice")
	env.addCard(t, "c2", "alice")

	rec := env.do(t, http.MethodGet, "/learners/alice/queue", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	q := decodeBody[queueJSON](t, rec)
	if q.Count != 2 || q.Cards[0].ID != "c1" || q.Cards[0].DueDate != nil {
		t.Fatalf("Unexpected queue %+v", q)
	}

	rec = env.do(t, http.MethodPost, "/learners/alice/reviews", `{"card_id":"c1","rating":4}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[reviewResponse](t, rec)
	if resp.Card.Interval != 4 || resp.Card.Status != "learning" {
		t.Errorf("Expected Easy on a new card to give interval 4 in learning, but got %+v", resp.Card)
	}
	if resp.Card.DueDate == nil || *resp.Card.DueDate != "2024-05-05" {
		t.Errorf("Expected due date 2024-05-05, but got %v", resp.Card.DueDate)
	}
	if resp.Review.Rating != "Easy" || resp.Review.OldInterval != 0 || resp.Review.NewInterval != 4 {
		t.Errorf("Unexpected review record %+v", resp.Review)
	}

	rec = env.do(t, http.MethodGet, "/learners/alice/limits", "")
	status := decodeBody[quota.Status](t, rec)
	if status.New.Studied != 1 || status.New.Remaining != 24 {
		t.Errorf("Expected one new card studied, but got %+v", status.New)
	}

	q = decodeBody[queueJSON](t, env.do(t, http.MethodGet, "/learners/alice/queue", ""))
	if q.Count != 1 || q.Cards[0].ID != "c2" {
		t.Errorf("Expected only c2 left in the queue, but got %+v", q)
	}
}

func TestReviewErrors(t *testing.T) {
	env := newTestEnv(t)
	env.addCard(t, "c1", "alice")

	testCases := []struct {
		name string
		path string
		body string
		want int
	}{
		{name: "rating out of range", path: "/learners/alice/reviews", body: `{"card_id":"c1","rating":7}`, want: http.StatusBadRequest},
		{name: "missing rating", path: "/learners/alice/reviews", body: `{"card_id":"c1"}`, want: http.StatusBadRequest},
		{name: "missing card", path: "/learners/alice/reviews", body: `{"rating":3}`, want: http.StatusBadRequest},
		{name: "malformed body", path: "/learners/alice/reviews", body: `{`, want: http.StatusBadRequest},
		{name: "unknown field", path: "/learners/alice/reviews", body: `{"card_id":"c1","rating":3,"x":1}`, want: http.StatusBadRequest},
		{name: "unknown card", path: "/learners/alice/reviews", body: `{"card_id":"nope","rating":3}`, want: http.StatusNotFound},
		{name: "other learner's card", path: "/learners/bob/reviews", body: `{"card_id":"c1","rating":3}`, want: http.StatusNotFound},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, tc.path, tc.body)
			if rec.Code != tc.want {
				t.Errorf("Expected status %d, but got %d: %s", tc.want, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestSettings(t *testing.T) {
	env := newTestEnv(t)

	settings := decodeBody[settingsJSON](t, env.do(t, http.MethodGet, "/learners/alice/settings", ""))
	if settings.DailyNewLimit != 25 || settings.DailyReviewLimit != 50 {
		t.Errorf("Expected default settings, but got %+v", settings)
	}

	rec := env.do(t, http.MethodPut, "/learners/alice/settings", `{"daily_new_limit":1,"daily_review_limit":10}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	settings = decodeBody[settingsJSON](t, rec)
	if settings.DailyNewLimit != 1 || settings.TimeZone != "UTC" {
		t.Errorf("Expected saved settings with UTC, but got %+v", settings)
	}

	env.addCard(t, "c1", "alice")
	env.addCard(t, "c2", "alice")
	q := decodeBody[queueJSON](t, env.do(t, http.MethodGet, "/learners/alice/queue", ""))
	if q.Count != 1 {
		t.Errorf("Expected a new limit of 1 to show one new card, but got %+v", q)
	}

	for _, body := range []string{
		`{"daily_new_limit":-1,"daily_review_limit":10}`,
		`{"daily_new_limit":0,"daily_review_limit":10}`,
		`{"daily_new_limit":5,"daily_review_limit":0}`,
		`{"daily_review_limit":10}`,
		`{"daily_new_limit":1,"daily_review_limit":1,"time_zone":"Mars/Olympus"}`,
	} {
		if rec := env.do(t, http.MethodPut, "/learners/alice/settings", body); rec.Code != http.StatusBadRequest {
			t.Errorf("Expected 400 for %s, but got %d", body, rec.Code)
		}
	}
}

func TestImport(t *testing.T) {
	env := newTestEnv(t)
	dir := filepath.Join(env.importRoot, "basics")
	if err := os.MkdirAll(filepath.Join(env.importRoot, "empty"), 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "deck.md"), []byte("Q: one\nA: 1\n---\nQ: two\nA: 2"), 0o644); err != nil {
		t.Fatalf("Failed to write deck: %v", err)
	}

	body := `{"collection_id":"basics","location":"basics"}`
	rec := env.do(t, http.MethodPost, "/learners/alice/imports", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[importJSON](t, rec)
	if res.Inserted != 2 {
		t.Errorf("Expected 2 inserted cards, but got %+v", res)
	}

	q := decodeBody[queueJSON](t, env.do(t, http.MethodGet, "/learners/alice/queue", ""))
	if q.Count != 2 {
		t.Errorf("Expected the imported cards in the queue, but got %+v", q)
	}

	empty := `{"collection_id":"basics","location":"empty"}`
	if rec := env.do(t, http.MethodPost, "/learners/alice/imports", empty); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for an empty source, but got %d", rec.Code)
	}
}

func TestImportRejectsLocationsOutsideRoot(t *testing.T) {
	env := newTestEnv(t)
	outside := t.TempDir()
	if err := os.WriteFile(filepath.Join(outside, "secret.md"), []byte("Q: secret\nA: value"), 0o644); err != nil {
		t.Fatalf("Failed to write deck: %v", err)
	}
	rel, err := filepath.Rel(env.importRoot, outside)
	if err != nil {
		t.Fatalf("Failed to relate dirs: %v", err)
	}

	for name, location := range map[string]string{
		"absolute path":        outside,
		"relative escape":      rel,
		"dot-dot":              "../",
		"https dot-dot remote": "https://evil.com/../../../tmp/pwn.git",
		"scp dot-dot remote":   "git@evil.com:../../../tmp/pwn.git",
	} {
		t.Run(name, func(t *testing.T) {
			body := fmt.Sprintf(`{"collection_id":"stolen","location":%q}`, location)
			if rec := env.do(t, http.MethodPost, "/learners/alice/imports", body); rec.Code != http.StatusBadRequest {
				t.Errorf("Expected 400, but got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	cards, err := env.db.CardsByCollection(context.Background(), "alice", "stolen")
	if err != nil {
		t.Fatalf("Failed to load collection: %v", err)
	}
	if len(cards) != 0 {
		t.Errorf("Expected nothing imported, but got %d cards", len(cards))
	}

	env.server.importRoot = ""
	if rec := env.do(t, http.MethodPost, "/learners/alice/imports", `{"collection_id":"a","location":"basics"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("Expected local imports to be refused without a root, but got %d", rec.Code)
	}
}

func TestQueueCollectionFilter(t *testing.T) {
	env := newTestEnv(t)
	env.addCardTo(t, "c1", "alice", "deck")
	env.addCardTo(t, "s1", "alice", "spanish")
	env.addCardTo(t, "s2", "alice", "spanish")

	q := decodeBody[queueJSON](t, env.do(t, http.MethodGet, "/learners/alice/queue?collection=spanish", ""))
	if q.Count != 2 || q.CollectionID != "spanish" || q.Cards[0].ID != "s1" || q.Cards[1].ID != "s2" {
		t.Errorf("Expected the two spanish cards, but got %+v", q)
	}

	q = decodeBody[queueJSON](t, env.do(t, http.MethodGet, "/learners/alice/queue", ""))
	if q.Count != 3 {
		t.Errorf("Expected every collection without a filter, but got %+v", q)
	}
}

func TestPreview(t *testing.T) {
	env := newTestEnv(t)
	env.addCard(t, "c1", "alice")

	rec := env.do(t, http.MethodGet, "/learners/alice/cards/c1/preview", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, but got %d: %s", rec.Code, rec.Body.String())
	}
	p := decodeBody[previewJSON](t, rec)
	if p.CardID != "c1" || len(p.Options) != 4 {
		t.Fatalf("Expected four options for c1, but got %+v", p)
	}
	want := []struct {
		rating string
		label  string
		due    string
	}{
		{"Again", "today", "2024-05-01"},
		{"Hard", "1 day", "2024-05-02"},
		{"Good", "1 day", "2024-05-02"},
		{"Easy", "4 days", "2024-05-05"},
	}
	for i, w := range want {
		got := p.Options[i]
		if got.Rating != w.rating || got.Value != i+1 || got.Label != w.label || got.DueDate != w.due {
			t.Errorf("Option %d: expected %s/%s/%s, but got %+v", i, w.rating, w.label, w.due, got)
		}
	}

	if rec := env.do(t, http.MethodGet, "/learners/bob/cards/c1/preview", ""); rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for another learner's card, but got %d", rec.Code)
	}
}

func TestStatusFor(t *testing.T) {
	testCases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("wrap: %w", domain.ErrInvalidRating), http.StatusBadRequest},
		{domain.ErrInvalidCardState, http.StatusBadRequest},
		{domain.ErrCardNotFound, http.StatusNotFound},
		{fmt.Errorf("commit: %w", domain.ErrVersionConflict), http.StatusConflict},
		{fmt.Errorf("read: %w", gitsource.ErrInvalidURL), http.StatusBadRequest},
		{deckimport.ErrEmptySource, http.StatusBadRequest},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tc := range testCases {
		if got := statusFor(tc.err); got != tc.want {
			t.Errorf("statusFor(%v): expected %d, but got %d", tc.err, tc.want, got)
		}
	}
}

func TestImportDisabled(t *testing.T) {
	env := newTestEnv(t)
	env.server.importer = nil
	rec := env.do(t, http.MethodPost, "/learners/alice/imports", `{"collection_id":"a","location":"b"}`)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("Expected 501, but got %d", rec.Code)
	}
}
