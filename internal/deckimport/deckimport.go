// Package deckimport reconciles a deck source with a learner's collection.
//
// A source is a directory of markdown files, a git remote holding such a
// directory, or a spreadsheet (.xlsx or .csv) with the front in column A and
// the back in column B. Cards are matched by content fingerprint: unseen
// content becomes a new card, known content keeps its schedule, and cards
// whose content left the source are soft-deleted.
package deckimport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/gitsource"
	"github.com/conorfennell/duedeck/internal/knol"
)

// Store is the card storage the importer writes to.
type Store interface {
	CardsByCollection(ctx context.Context, learnerID, collectionID string) ([]domain.Card, error)
	InsertCard(ctx context.Context, card domain.Card) error
	SetCardDeleted(ctx context.Context, learnerID, cardID string, deleted bool) error
}

// Source names what to import and where it goes.
type Source struct {
	LearnerID    string
	CollectionID string
	Location     string
}

// Result summarizes one import run.
type Result struct {
	Parsed    int
	Inserted  int
	Unchanged int
	Restored  int
	Deleted   int
	Errors    []string
}

// Entry is a front/back pair read from a source.
type Entry struct {
	Front string
	Back  string
}

// Options configures an Importer. Zero values fall back to defaults.
type Options struct {
	ReposDir    string
	DefaultEase float64
	NewID       func() string
	Now         func() time.Time
	Progress    io.Writer
	Logger      *slog.Logger
}

// Importer loads sources into a Store.
type Importer struct {
	store       Store
	reposDir    string
	defaultEase float64
	newID       func() string
	now         func() time.Time
	progress    io.Writer
	logger      *slog.Logger
}

// ErrEmptySource is returned when a source yields no cards.
var ErrEmptySource = errors.New("source contains no cards")

// New returns an Importer writing to store.
func New(store Store, opts Options) *Importer {
	im := &Importer{
		store:       store,
		reposDir:    opts.ReposDir,
		defaultEase: opts.DefaultEase,
		newID:       opts.NewID,
		now:         opts.Now,
		progress:    opts.Progress,
		logger:      opts.Logger,
	}
	if im.reposDir == "" {
		im.reposDir = "repos"
	}
	if im.defaultEase == 0 {
		im.defaultEase = 2.5
	}
	if im.newID == nil {
		im.newID = uuid.NewString
	}
	if im.now == nil {
		im.now = time.Now
	}
	if im.progress == nil {
		im.progress = io.Discard
	}
	if im.logger == nil {
		im.logger = slog.Default()
	}
	return im
}

// Import reads the source and reconciles its entries with the collection.
// Per-entry storage failures are collected in Result.Errors; failing to read
// the source or the collection aborts the run.
func (im *Importer) Import(ctx context.Context, src Source) (Result, error) {
	if src.LearnerID == "" || src.CollectionID == "" {
		return Result{}, fmt.Errorf("learner and collection are required")
	}

	entries, err := im.read(src.Location)
	if err != nil {
		return Result{}, err
	}
	if len(entries) == 0 {
		return Result{}, fmt.Errorf("%w: %s", ErrEmptySource, src.Location)
	}

	existing, err := im.store.CardsByCollection(ctx, src.LearnerID, src.CollectionID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load collection: %w", err)
	}
	// Several cards can share a fingerprint, e.g. after an edit made two
	// cards identical. Each is kept in collection order.
	byFingerprint := make(map[string][]domain.Card, len(existing))
	for _, c := range existing {
		fp := c.Fingerprint
		if fp == "" {
			fp = knol.Fingerprint(c)
		}
		byFingerprint[fp] = append(byFingerprint[fp], c)
	}

	res := Result{Parsed: len(entries)}
	seen := make(map[string]bool, len(entries))
	now := im.now()

	for _, e := range entries {
		fp := knol.Hash(e.Front, e.Back)
		if seen[fp] {
			continue
		}
		seen[fp] = true

		if matches := byFingerprint[fp]; len(matches) > 0 {
			live := 0
			for _, c := range matches {
				if !c.Deleted {
					live++
				}
			}
			if live > 0 {
				res.Unchanged += live
				continue
			}
			c := matches[0]
			if err := im.store.SetCardDeleted(ctx, src.LearnerID, c.ID, false); err != nil {
				res.Errors = append(res.Errors, fmt.Sprintf("restore %s: %v", c.ID, err))
				continue
			}
			res.Restored++
			continue
		}

		card := domain.NewCard(im.newID(), src.LearnerID, src.CollectionID, e.Front, e.Back, im.defaultEase, now)
		card.Fingerprint = fp
		if err := im.store.InsertCard(ctx, card); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("insert %q: %v", e.Front, err))
			continue
		}
		im.logger.Debug("Inserted card", "id", card.ID, "fingerprint", fp)
		res.Inserted++
	}

	for _, c := range existing {
		fp := c.Fingerprint
		if fp == "" {
			fp = knol.Fingerprint(c)
		}
		if seen[fp] || c.Deleted {
			continue
		}
		if err := im.store.SetCardDeleted(ctx, src.LearnerID, c.ID, true); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("delete %s: %v", c.ID, err))
			continue
		}
		im.logger.Debug("Soft-deleted orphaned card", "id", c.ID, "fingerprint", fp)
		res.Deleted++
	}

	im.logger.Info("Import complete",
		"learner", src.LearnerID,
		"collection", src.CollectionID,
		"location", src.Location,
		"parsed", res.Parsed,
		"inserted", res.Inserted,
		"unchanged", res.Unchanged,
		"restored", res.Restored,
		"deleted", res.Deleted,
		"errors", len(res.Errors),
	)
	return res, nil
}

func (im *Importer) read(location string) ([]Entry, error) {
	if gitsource.IsURL(location) {
		local, err := gitsource.LocalPath(im.reposDir, location)
		if err != nil {
			return nil, err
		}
		if err := os.MkdirAll(filepath.Dir(local), os.ModePerm); err != nil {
			return nil, fmt.Errorf("failed to create repos directory: %w", err)
		}
		if err := gitsource.Sync(location, local, im.progress); err != nil {
			return nil, err
		}
		return im.readDir(local)
	}

	switch strings.ToLower(filepath.Ext(location)) {
	case ".xlsx":
		return readXLSX(location)
	case ".csv":
		return readCSV(location)
	case ".md":
		return readMarkdown(location)
	}
	return im.readDir(location)
}
