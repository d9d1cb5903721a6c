// Package config loads application settings from defaults, an optional YAML
// file, DUEDECK_ environment variables and command-line flags, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conorfennell/duedeck/internal/domain"
	"github.com/conorfennell/duedeck/internal/sm2"
	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix is the prefix of environment overrides. Nested keys are
// separated by a double underscore, e.g. DUEDECK_DB__DSN.
const EnvPrefix = "DUEDECK_"

type Config struct {
	DB        DB        `koanf:"db"`
	HTTP      HTTP      `koanf:"http"`
	Log       Log       `koanf:"log"`
	Scheduler Scheduler `koanf:"scheduler"`
	Quota     Quota     `koanf:"quota"`
	Review    Review    `koanf:"review"`
	Digest    Digest    `koanf:"digest"`
	Import    Import    `koanf:"import"`
}

type DB struct {
	Driver string `koanf:"driver" validate:"required,oneof=sqlite postgres mysql"`
	DSN    string `koanf:"dsn" validate:"required"`
}

type HTTP struct {
	Addr string `koanf:"addr" validate:"required"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// Scheduler mirrors sm2.Params.
type Scheduler struct {
	EaseFloor          float64 `koanf:"ease_floor" validate:"gt=0"`
	DefaultEase        float64 `koanf:"default_ease" validate:"gtefield=EaseFloor"`
	AgainEasePenalty   float64 `koanf:"again_ease_penalty" validate:"gte=0"`
	HardEasePenalty    float64 `koanf:"hard_ease_penalty" validate:"gte=0"`
	EasyEaseBonus      float64 `koanf:"easy_ease_bonus" validate:"gte=0"`
	HardMultiplier     float64 `koanf:"hard_multiplier" validate:"gt=0"`
	EasyMultiplier     float64 `koanf:"easy_multiplier" validate:"gt=0"`
	GraduationInterval int     `koanf:"graduation_interval" validate:"gte=1"`
	FirstHardInterval  int     `koanf:"first_hard_interval" validate:"gte=0"`
	FirstGoodInterval  int     `koanf:"first_good_interval" validate:"gte=0"`
	FirstEasyInterval  int     `koanf:"first_easy_interval" validate:"gte=0"`
	MaxInterval        int     `koanf:"max_interval" validate:"gtefield=GraduationInterval"`
}

// Quota holds the limits used for learners without saved settings.
type Quota struct {
	DailyNewLimit    int    `koanf:"daily_new_limit" validate:"gt=0"`
	DailyReviewLimit int    `koanf:"daily_review_limit" validate:"gt=0"`
	TimeZone         string `koanf:"timezone" validate:"required,timezone"`
}

type Review struct {
	MaxRetries int `koanf:"max_retries" validate:"gte=0,lte=10"`
}

type Digest struct {
	At            string           `koanf:"at" validate:"required,datetime=15:04"`
	TimeZone      string           `koanf:"timezone" validate:"required,timezone"`
	TelegramToken string           `koanf:"telegram_token"`
	TelegramChats map[string]int64 `koanf:"telegram_chats"`
}

// Import configures deck import. LocalRoot is the directory HTTP callers
// may import local decks from; empty allows git remotes only.
type Import struct {
	ReposDir  string `koanf:"repos_dir" validate:"required"`
	LocalRoot string `koanf:"local_root"`
}

// Default returns the built-in configuration.
func Default() Config {
	p := sm2.DefaultParams()
	return Config{
		DB:   DB{Driver: "sqlite", DSN: "duedeck.db"},
		HTTP: HTTP{Addr: ":8080"},
		Log:  Log{Level: "info", Format: "text"},
		Scheduler: Scheduler{
			EaseFloor:          p.EaseFloor,
			DefaultEase:        p.DefaultEase,
			AgainEasePenalty:   p.AgainEasePenalty,
			HardEasePenalty:    p.HardEasePenalty,
			EasyEaseBonus:      p.EasyEaseBonus,
			HardMultiplier:     p.HardMultiplier,
			EasyMultiplier:     p.EasyMultiplier,
			GraduationInterval: p.GraduationInterval,
			FirstHardInterval:  p.FirstHardInterval,
			FirstGoodInterval:  p.FirstGoodInterval,
			FirstEasyInterval:  p.FirstEasyInterval,
			MaxInterval:        p.MaxInterval,
		},
		Quota:  Quota{DailyNewLimit: 25, DailyReviewLimit: 50, TimeZone: "UTC"},
		Review: Review{MaxRetries: 3},
		Digest: Digest{At: "07:00", TimeZone: "UTC"},
		Import: Import{ReposDir: "repos"},
	}
}

// RegisterFlags adds the commonly overridden settings to fs. Flag names are
// koanf keys so posflag can map them directly.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String("config", "", "Path to a YAML config file")
	fs.String("db.driver", d.DB.Driver, "Database driver: sqlite, postgres or mysql")
	fs.String("db.dsn", d.DB.DSN, "Database DSN or SQLite file path")
	fs.String("http.addr", d.HTTP.Addr, "HTTP listen address")
	fs.String("log.level", d.Log.Level, "Log level: debug, info, warn or error")
	fs.String("log.format", d.Log.Format, "Log format: text or json")
	fs.String("digest.at", d.Digest.At, "Daily digest time (HH:MM)")
}

// Load builds the configuration. fs may be nil; when set it must have been
// parsed and registered with RegisterFlags.
func Load(fs *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	var path string
	if fs != nil {
		path, _ = fs.GetString("config")
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if fs != nil {
		if err := k.Load(posflag.Provider(fs, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envKey maps DUEDECK_DB__DSN to db.dsn.
func envKey(s string) string {
	s = strings.TrimPrefix(s, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(s), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and that the scheduler policy is usable.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := c.Params().Validate(); err != nil {
		return fmt.Errorf("invalid scheduler config: %w", err)
	}
	return nil
}

// Params returns the scheduling policy.
func (c Config) Params() *sm2.Params {
	s := c.Scheduler
	return &sm2.Params{
		EaseFloor:          s.EaseFloor,
		DefaultEase:        s.DefaultEase,
		AgainEasePenalty:   s.AgainEasePenalty,
		HardEasePenalty:    s.HardEasePenalty,
		EasyEaseBonus:      s.EasyEaseBonus,
		HardMultiplier:     s.HardMultiplier,
		EasyMultiplier:     s.EasyMultiplier,
		GraduationInterval: s.GraduationInterval,
		FirstHardInterval:  s.FirstHardInterval,
		FirstGoodInterval:  s.FirstGoodInterval,
		FirstEasyInterval:  s.FirstEasyInterval,
		MaxInterval:        s.MaxInterval,
	}
}

// DefaultQuota returns the limits used for learners without saved settings.
func (c Config) DefaultQuota() domain.QuotaConfig {
	return domain.QuotaConfig{
		DailyNewLimit:    c.Quota.DailyNewLimit,
		DailyReviewLimit: c.Quota.DailyReviewLimit,
		TimeZone:         c.Quota.TimeZone,
	}
}
