package db

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"horse.fit/themedup/internal/theme"
)

// LoadThemes returns the active themes, optionally limited to one subject,
// ordered by external id. Rows that do not form a valid theme are
// quarantined with a reason instead of failing the snapshot; the error
// return is reserved for query failures.
func (p *Pool) LoadThemes(ctx context.Context, subject string) ([]theme.Theme, []theme.Quarantined, error) {
	query := p.gdb.WithContext(ctx).
		Where("archived_at IS NULL").
		Order("external_id")
	if trimmed := strings.TrimSpace(subject); trimmed != "" {
		query = query.Where("subject = ?", trimmed)
	}

	var rows []ThemeRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, nil, fmt.Errorf("query themes: %w", err)
	}
	themes, quarantined := themesFromRows(rows)
	return themes, quarantined, nil
}

// themesFromRows converts rows in order. Index in a Quarantined entry is the
// row's position in the snapshot.
func themesFromRows(rows []ThemeRow) ([]theme.Theme, []theme.Quarantined) {
	themes := make([]theme.Theme, 0, len(rows))
	var quarantined []theme.Quarantined
	for i, row := range rows {
		t, err := themeFromRow(row)
		if err == nil {
			err = t.Validate()
		}
		if err != nil {
			quarantined = append(quarantined, theme.Quarantined{Index: i, ID: row.ExternalID, Reason: err.Error()})
			continue
		}
		themes = append(themes, t)
	}
	return themes, quarantined
}

func themeFromRow(row ThemeRow) (theme.Theme, error) {
	t := theme.Theme{
		ID:        row.ExternalID,
		Statement: row.Statement,
		Subject:   row.Subject,
		Origin:    theme.Origin(row.Origin),
		Language:  derefString(row.Language),
	}
	if err := decodeOptionalJSON(row.InterviewIDs, &t.InterviewIDs); err != nil {
		return theme.Theme{}, fmt.Errorf("decode interview ids for theme %s: %w", row.ExternalID, err)
	}
	return t, nil
}

const upsertThemeSQL = `
INSERT INTO research.themes (
	external_id,
	statement,
	subject,
	origin,
	interview_ids,
	language,
	created_at,
	updated_at
)
VALUES (?, ?, ?, CAST(? AS research.theme_origin), CAST(? AS jsonb), NULLIF(?, ''), ?, ?)
ON CONFLICT (external_id)
DO UPDATE SET
	statement = EXCLUDED.statement,
	subject = EXCLUDED.subject,
	origin = EXCLUDED.origin,
	interview_ids = EXCLUDED.interview_ids,
	language = EXCLUDED.language,
	archived_at = NULL,
	updated_at = EXCLUDED.updated_at
`

// UpsertThemes inserts or refreshes themes keyed by external id and clears
// any archive mark in one transaction. It returns the number of rows written.
func (p *Pool) UpsertThemes(ctx context.Context, themes []theme.Theme, now time.Time) (int64, error) {
	if len(themes) == 0 {
		return 0, nil
	}
	stamp := now.UTC()

	var written int64
	err := p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, t := range themes {
			interviewIDs, err := json.Marshal(nonNilStrings(t.InterviewIDs))
			if err != nil {
				return fmt.Errorf("encode interview ids for theme %s: %w", t.ID, err)
			}
			res := tx.Exec(upsertThemeSQL, t.ID, t.Statement, t.Subject, string(t.Origin), string(interviewIDs), t.Language, stamp, stamp)
			if res.Error != nil {
				return fmt.Errorf("upsert theme %s: %w", t.ID, res.Error)
			}
			written += res.RowsAffected
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return written, nil
}

func nonNilStrings(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
