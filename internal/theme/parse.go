package theme

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	payloadschema "horse.fit/themedup/schema"
)

// Quarantined is a record rejected at the boundary.
type Quarantined struct {
	Index  int    `json:"index"`
	ID     string `json:"id,omitempty"`
	Reason string `json:"reason"`
}

// ParseRecords reads theme records from a JSON array, a {"themes": [...]}
// envelope or a stream of newline-delimited objects. Invalid records are
// quarantined with a reason; only an unreadable container is an error.
func ParseRecords(data []byte) ([]Theme, []Quarantined, error) {
	raws, err := splitRecords(data)
	if err != nil {
		return nil, nil, err
	}

	themes := make([]Theme, 0, len(raws))
	quarantined := make([]Quarantined, 0)
	seen := make(map[string]struct{}, len(raws))
	for i, raw := range raws {
		record, err := payloadschema.ValidateThemeRecord(raw)
		if err != nil {
			quarantined = append(quarantined, Quarantined{Index: i, ID: peekID(raw), Reason: err.Error()})
			continue
		}

		parsed, err := FromRecord(record)
		if err != nil {
			quarantined = append(quarantined, Quarantined{Index: i, ID: record.ID, Reason: err.Error()})
			continue
		}
		if _, dup := seen[parsed.ID]; dup {
			quarantined = append(quarantined, Quarantined{Index: i, ID: parsed.ID, Reason: "duplicate id"})
			continue
		}
		seen[parsed.ID] = struct{}{}
		themes = append(themes, parsed)
	}

	return themes, quarantined, nil
}

// FromRecord converts a schema-validated record into a Theme, filling defaults.
func FromRecord(record *payloadschema.ThemeRecord) (Theme, error) {
	if record == nil {
		return Theme{}, fmt.Errorf("%w: record is nil", ErrMalformedTheme)
	}

	origin, err := ParseOrigin(record.Origin)
	if err != nil {
		return Theme{}, err
	}

	subject := strings.TrimSpace(record.Subject)
	if subject == "" {
		subject = DefaultSubject
	}

	language := ""
	if record.Language != nil {
		language = NormalizeLanguage(*record.Language)
	}

	interviewIDs := make([]string, 0, len(record.InterviewIDs))
	for _, interviewID := range record.InterviewIDs {
		if trimmed := strings.TrimSpace(interviewID); trimmed != "" {
			interviewIDs = append(interviewIDs, trimmed)
		}
	}

	out := Theme{
		ID:           strings.TrimSpace(record.ID),
		Statement:    record.Statement,
		Subject:      subject,
		Origin:       origin,
		InterviewIDs: interviewIDs,
		Language:     language,
	}
	if err := out.Validate(); err != nil {
		return Theme{}, err
	}
	return out, nil
}

func splitRecords(data []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var records []json.RawMessage
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("decode theme array: %w", err)
		}
		return records, nil
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	records := make([]json.RawMessage, 0)
	for {
		var raw json.RawMessage
		err := decoder.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("decode theme record %d: %w", len(records), err)
		}
		records = append(records, raw)
	}

	if len(records) == 1 {
		var envelope struct {
			Themes *[]json.RawMessage `json:"themes"`
		}
		if err := json.Unmarshal(records[0], &envelope); err == nil && envelope.Themes != nil {
			return *envelope.Themes, nil
		}
	}
	return records, nil
}

func peekID(raw json.RawMessage) string {
	var probe struct {
		ID any `json:"id"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return ""
	}
	if id, ok := probe.ID.(string); ok {
		return strings.TrimSpace(id)
	}
	return ""
}
