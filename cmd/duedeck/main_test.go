package main

import (
	"testing"

	"github.com/spf13/pflag"

	"github.com/conorfennell/duedeck/internal/config"
)

func settingsFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	fset := pflag.NewFlagSet("settings", pflag.ContinueOnError)
	config.RegisterFlags(fset)
	fset.Int("new", 0, "")
	fset.Int("reviews", 0, "")
	fset.String("tz", "UTC", "")
	if err := fset.Parse(args); err != nil {
		t.Fatalf("Failed to parse flags: %v", err)
	}
	return fset
}

func TestQuotaFromFlags(t *testing.T) {
	qc, err := quotaFromFlags(settingsFlags(t, "--new", "10", "--reviews", "40", "--tz", "Europe/Dublin"))
	if err != nil {
		t.Fatalf("Expected no error, but got %v", err)
	}
	if qc.DailyNewLimit != 10 || qc.DailyReviewLimit != 40 || qc.TimeZone != "Europe/Dublin" {
		t.Errorf("Unexpected settings %+v", qc)
	}

	for name, args := range map[string][]string{
		"missing reviews": {"--new", "10"},
		"missing new":     {"--reviews", "10"},
		"no limits":       {},
		"zero limit":      {"--new", "0", "--reviews", "10"},
		"negative limit":  {"--new", "5", "--reviews", "-1"},
		"bad time zone":   {"--new", "5", "--reviews", "5", "--tz", "Mars/Olympus"},
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := quotaFromFlags(settingsFlags(t, args...)); err == nil {
				t.Error("Expected an error")
			}
		})
	}
}
