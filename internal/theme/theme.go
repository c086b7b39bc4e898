package theme

import (
	"errors"
	"fmt"
	"strings"
)

// Origin says where a theme came from.
type Origin string

const (
	OriginResearch   Origin = "research"
	OriginDiscovered Origin = "discovered"
	OriginInterview  Origin = "interview"
)

// DefaultSubject is assigned to records that arrive without a subject.
const DefaultSubject = "General"

// ErrMalformedTheme marks a theme that cannot take part in a run.
var ErrMalformedTheme = errors.New("malformed theme")

// Valid reports whether o is a known origin.
func (o Origin) Valid() bool {
	switch o {
	case OriginResearch, OriginDiscovered, OriginInterview:
		return true
	default:
		return false
	}
}

// Mergeable reports whether themes of this origin may be merged. Interview
// themes are evidence only.
func (o Origin) Mergeable() bool {
	return o == OriginResearch || o == OriginDiscovered
}

// ParseOrigin maps a raw origin to an Origin. Blank input means research.
func ParseOrigin(raw string) (Origin, error) {
	trimmed := Origin(strings.ToLower(strings.TrimSpace(raw)))
	if trimmed == "" {
		return OriginResearch, nil
	}
	if !trimmed.Valid() {
		return "", fmt.Errorf("%w: unknown origin %q", ErrMalformedTheme, raw)
	}
	return trimmed, nil
}

// Theme is one research insight. The engine never mutates it.
type Theme struct {
	ID           string   `json:"id"`
	Statement    string   `json:"statement"`
	Subject      string   `json:"subject"`
	Origin       Origin   `json:"origin"`
	InterviewIDs []string `json:"interview_ids,omitempty"`
	Language     string   `json:"language,omitempty"`
}

// Mergeable reports whether the theme may become a cluster member.
func (t Theme) Mergeable() bool {
	return t.Origin.Mergeable()
}

// Validate checks the fields every run depends on.
func (t Theme) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: id is empty", ErrMalformedTheme)
	}
	if strings.TrimSpace(t.Statement) == "" {
		return fmt.Errorf("%w: theme %s has an empty statement", ErrMalformedTheme, t.ID)
	}
	if !t.Origin.Valid() {
		return fmt.Errorf("%w: theme %s has unknown origin %q", ErrMalformedTheme, t.ID, t.Origin)
	}
	if strings.TrimSpace(t.Subject) == "" {
		return fmt.Errorf("%w: theme %s has an empty subject", ErrMalformedTheme, t.ID)
	}
	return nil
}
