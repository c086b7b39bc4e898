package db

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"horse.fit/themedup/internal/theme"
)

func TestThemeFromRow(t *testing.T) {
	t.Parallel()

	lang := "fr"
	got, err := themeFromRow(ThemeRow{
		ExternalID:   "th-104",
		Statement:    "La synchronisation des commandes échoue",
		Subject:      "Integrations",
		Origin:       string(theme.OriginInterview),
		InterviewIDs: json.RawMessage(`["int-9"]`),
		Language:     &lang,
	})
	if err != nil {
		t.Fatalf("themeFromRow failed: %v", err)
	}
	if got.ID != "th-104" || got.Origin != theme.OriginInterview || got.Language != "fr" || len(got.InterviewIDs) != 1 || got.InterviewIDs[0] != "int-9" {
		t.Fatalf("unexpected theme: %+v", got)
	}

	if _, err := themeFromRow(ThemeRow{ExternalID: "bad", InterviewIDs: json.RawMessage(`{"x":1}`)}); err == nil {
		t.Fatalf("expected error for malformed interview ids")
	}
}

func TestThemesFromRowsQuarantinesBadRows(t *testing.T) {
	t.Parallel()

	rows := []ThemeRow{
		{ExternalID: "a", Statement: "Customers want clearer pricing tiers", Subject: "Pricing", Origin: string(theme.OriginResearch), InterviewIDs: json.RawMessage(`[]`)},
		{ExternalID: "bad", Statement: "Order sync drops bundles", Subject: "Integrations", Origin: string(theme.OriginInterview), InterviewIDs: json.RawMessage(`{"i2":true}`)},
		{ExternalID: "blank", Statement: "  ", Subject: "Pricing", Origin: string(theme.OriginResearch)},
		{ExternalID: "c", Statement: "Pricing tiers confuse buyers", Subject: "Pricing", Origin: string(theme.OriginDiscovered), InterviewIDs: json.RawMessage(`["i1"]`)},
	}

	themes, quarantined := themesFromRows(rows)
	if len(themes) != 2 || themes[0].ID != "a" || themes[1].ID != "c" {
		t.Fatalf("unexpected themes: %+v", themes)
	}
	if len(quarantined) != 2 {
		t.Fatalf("unexpected quarantine count: got %d want 2 (%+v)", len(quarantined), quarantined)
	}
	if q := quarantined[0]; q.Index != 1 || q.ID != "bad" || !strings.Contains(q.Reason, "interview ids") {
		t.Fatalf("unexpected quarantine entry: %+v", q)
	}
	if q := quarantined[1]; q.Index != 2 || q.ID != "blank" || !strings.Contains(q.Reason, "empty statement") {
		t.Fatalf("unexpected quarantine entry: %+v", q)
	}
}

func TestIsNoRows(t *testing.T) {
	t.Parallel()

	for _, err := range []error{ErrNoRows, gorm.ErrRecordNotFound, fmt.Errorf("load run: %w", ErrNoRows)} {
		if !IsNoRows(err) {
			t.Fatalf("expected IsNoRows(%v)", err)
		}
	}
	if IsNoRows(errPoolNotInitialized) {
		t.Fatalf("unexpected IsNoRows for %v", errPoolNotInitialized)
	}
}

func TestGormLogLevel(t *testing.T) {
	t.Parallel()

	cases := map[string]logger.LogLevel{
		"debug":    logger.Info,
		" ERROR ":  logger.Error,
		"disabled": logger.Silent,
		"info":     logger.Warn,
		"":         logger.Warn,
	}
	for in, want := range cases {
		if got := gormLogLevel(in); got != want {
			t.Fatalf("unexpected gorm level for %q: got %v want %v", in, got, want)
		}
	}
}

func TestMigrationStepOrder(t *testing.T) {
	t.Parallel()

	steps := migrationSteps()
	var names []string
	for _, step := range steps {
		names = append(names, step.name)
	}
	if fmt.Sprint(names) != "[types tables indexes]" {
		t.Fatalf("unexpected migration order: %v", names)
	}
	if err := execScript("  \n")(nil); err != nil {
		t.Fatalf("blank script must be a no-op: %v", err)
	}
}
