package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"

	"github.com/conorfennell/duedeck/internal/config"
	"github.com/conorfennell/duedeck/internal/deckimport"
	"github.com/conorfennell/duedeck/internal/digest"
	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/sm2"
	"github.com/conorfennell/duedeck/internal/storage"
	"github.com/conorfennell/duedeck/internal/study"
	"github.com/conorfennell/duedeck/internal/web"
)

const usage = `Usage: duedeck <command> [flags]

Commands:
  serve     run the HTTP API (and the daily digest with --with-digest)
  queue     print a learner's queue for today [--collection C]
  preview   show where each rating would send a card: --learner L --card C
  review    rate one card: --learner L --card C --rating 1..4
  limits    print a learner's daily allowance
  settings  save a learner's limits: --learner L --new N --reviews N [--tz Zone]
  import    load a deck: --learner L --collection C --source PATH|URL|FILE.xlsx
  digest    send the daily digest once
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("duedeck failed", "error", err)
		os.Exit(1)
	}
}

type cliFlags struct {
	learner    *string
	card       *string
	rating     *int
	collection *string
	source     *string
	digest     *bool
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" {
		fmt.Print(usage)
		return nil
	}
	cmd := args[0]

	fset := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	config.RegisterFlags(fset)
	fset.Int("new", 0, "Daily new card limit")
	fset.Int("reviews", 0, "Daily review limit")
	fset.String("tz", "UTC", "Learner time zone")
	f := cliFlags{
		learner:    fset.String("learner", "", "Learner id"),
		card:       fset.String("card", "", "Card id"),
		rating:     fset.Int("rating", 0, "Rating: 1 Again, 2 Hard, 3 Good, 4 Easy"),
		collection: fset.String("collection", "", "Collection id (import target, queue filter)"),
		source:     fset.String("source", "", "Deck directory, git URL, .xlsx or .csv file"),
		digest:     fset.Bool("with-digest", false, "Schedule the daily digest while serving"),
	}
	if err := fset.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	cfg, err := config.Load(fset)
	if err != nil {
		return err
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	db, err := storage.Open(cfg.DB.Driver, cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	logger.Debug("Database opened", "driver", cfg.DB.Driver)

	svc := study.NewService(db, study.Options{
		Params:     cfg.Params(),
		Defaults:   cfg.DefaultQuota(),
		MaxRetries: cfg.Review.MaxRetries,
		Logger:     logger,
	})
	importer := deckimport.New(db, deckimport.Options{
		ReposDir:    cfg.Import.ReposDir,
		DefaultEase: cfg.Scheduler.DefaultEase,
		Progress:    os.Stderr,
		Logger:      logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "serve":
		return serve(ctx, cfg, svc, db, importer, *f.digest, logger)
	case "queue":
		if err := requireLearner(f); err != nil {
			return err
		}
		cards, err := svc.GetCollectionQueue(ctx, *f.learner, *f.collection, time.Now())
		if err != nil {
			return err
		}
		for i, c := range cards {
			due := "-"
			if c.DueDate != nil {
				due = domain.FormatDate(*c.DueDate)
			}
			fmt.Printf("%3d  %-36s  %-8s  due %-10s  %s\n", i+1, c.ID, c.Status, due, firstLine(c.Front))
		}
		fmt.Printf("%d cards in queue.\n", len(cards))
		return nil
	case "preview":
		if err := requireLearner(f); err != nil {
			return err
		}
		if *f.card == "" {
			return errors.New("--card is required")
		}
		_, options, err := svc.Preview(ctx, *f.learner, *f.card, time.Now())
		if err != nil {
			return err
		}
		for _, r := range domain.Ratings() {
			next := options[r]
			fmt.Printf("%d %-5s  %-10s  %s\n", int(r), r, sm2.FormatInterval(next.Interval), next.Status)
		}
		return nil
	case "review":
		if err := requireLearner(f); err != nil {
			return err
		}
		if *f.card == "" {
			return errors.New("--card is required")
		}
		card, h, err := svc.SubmitReview(ctx, *f.card, *f.learner, domain.Rating(*f.rating), time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("%s: interval %d -> %d days, ease %.2f -> %.2f, due %s (%s)\n",
			h.Rating, h.OldInterval, h.NewInterval, h.OldEase, h.NewEase,
			domain.FormatDate(*card.DueDate), card.Status)
		return nil
	case "limits":
		if err := requireLearner(f); err != nil {
			return err
		}
		status, err := svc.Limits(ctx, *f.learner, time.Now())
		if err != nil {
			return err
		}
		return printJSON(status)
	case "settings":
		if err := requireLearner(f); err != nil {
			return err
		}
		qc, err := quotaFromFlags(fset)
		if err != nil {
			return err
		}
		return db.SaveQuotaConfig(ctx, *f.learner, qc)
	case "import":
		if err := requireLearner(f); err != nil {
			return err
		}
		res, err := importer.Import(ctx, deckimport.Source{
			LearnerID:    *f.learner,
			CollectionID: *f.collection,
			Location:     *f.source,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Parsed %d cards: %d inserted, %d unchanged, %d restored, %d deleted, %d errors.\n",
			res.Parsed, res.Inserted, res.Unchanged, res.Restored, res.Deleted, len(res.Errors))
		for _, e := range res.Errors {
			fmt.Printf("- %s\n", e)
		}
		return nil
	case "digest":
		runner, err := newDigestRunner(cfg, db, svc, logger)
		if err != nil {
			return err
		}
		sent, err := runner.RunOnce(ctx)
		logger.Info("Digest sent", "learners", sent)
		return err
	default:
		fmt.Print(usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func serve(ctx context.Context, cfg config.Config, svc *study.Service, db *storage.DB, importer *deckimport.Importer, withDigest bool, logger *slog.Logger) error {
	if withDigest {
		runner, err := newDigestRunner(cfg, db, svc, logger)
		if err != nil {
			return err
		}
		loc, err := time.LoadLocation(cfg.Digest.TimeZone)
		if err != nil {
			return fmt.Errorf("invalid digest time zone: %w", err)
		}
		if err := runner.Start(cfg.Digest.At, loc); err != nil {
			return err
		}
		defer runner.Stop()
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           web.NewServer(svc, db, importer, web.Options{ImportRoot: cfg.Import.LocalRoot, Logger: logger}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting server", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newDigestRunner(cfg config.Config, db *storage.DB, svc *study.Service, logger *slog.Logger) (*digest.Runner, error) {
	notifiers := []digest.Notifier{digest.LogNotifier{Logger: logger}}
	if cfg.Digest.TelegramToken != "" {
		tg, err := digest.NewTelegramNotifier(cfg.Digest.TelegramToken, cfg.Digest.TelegramChats)
		if err != nil {
			return nil, err
		}
		notifiers = append(notifiers, tg)
	}
	return digest.NewRunner(db, svc, logger, notifiers...), nil
}

func newLogger(c config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// quotaFromFlags reads the limits for the settings command. Both limits must
// be given explicitly and be positive.
func quotaFromFlags(fset *pflag.FlagSet) (domain.QuotaConfig, error) {
	if !fset.Changed("new") || !fset.Changed("reviews") {
		return domain.QuotaConfig{}, errors.New("--new and --reviews are required")
	}
	newLimit, _ := fset.GetInt("new")
	reviews, _ := fset.GetInt("reviews")
	tz, _ := fset.GetString("tz")
	if newLimit <= 0 || reviews <= 0 {
		return domain.QuotaConfig{}, errors.New("limits must be positive")
	}
	qc := domain.QuotaConfig{DailyNewLimit: newLimit, DailyReviewLimit: reviews, TimeZone: tz}
	if _, err := qc.Location(); err != nil {
		return domain.QuotaConfig{}, fmt.Errorf("invalid time zone %q: %w", tz, err)
	}
	return qc, nil
}

func requireLearner(f cliFlags) error {
	if *f.learner == "" {
		return errors.New("--learner is required")
	}
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}
