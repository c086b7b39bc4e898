package dedup

import (
	"fmt"
	"strings"
)

// Composite weights. They sum to 1 so the composite stays in [0,1].
const (
	weightCosine    = 0.50
	weightJaccard   = 0.25
	weightSentiment = 0.15
	weightDomain    = 0.10
)

// Preset names a bundle of gate thresholds. Within-subject Jaccard and the
// cross-subject floors differ between entry points, so both are kept.
type Preset string

const (
	PresetBroad  Preset = "broad"
	PresetStrict Preset = "strict"
)

// Settings is the immutable configuration of one run.
type Settings struct {
	Preset Preset `json:"preset"`

	WithinSubjectMinCosine       float64 `json:"within_subject_min_cosine"`
	WithinSubjectMinJaccard      float64 `json:"within_subject_min_jaccard"`
	CrossSubjectMinCosine        float64 `json:"cross_subject_min_cosine"`
	CrossSubjectMinEntityOverlap float64 `json:"cross_subject_min_entity_overlap"`

	MNNK                     int `json:"mnn_k"`
	MaxSuggestionsPerSubject int `json:"max_suggestions_per_subject"`
	MaxClusterSize           int `json:"max_cluster_size"`
	MinInterviewsPerCluster  int `json:"min_interviews_per_cluster"`

	HighMinComposite   float64 `json:"high_min_composite"`
	HighMinCosine      float64 `json:"high_min_cosine"`
	MediumMinComposite float64 `json:"medium_min_composite"`
	MediumMinCosine    float64 `json:"medium_min_cosine"`
	// SurfaceLowConfidence lets low-band pairs through to MNN.
	SurfaceLowConfidence bool `json:"surface_low_confidence"`

	// SentimentMargin is the keyword-count difference that makes a statement
	// unambiguously positive or negative.
	SentimentMargin int `json:"sentiment_margin"`
	// EvidenceMinCosine is the centroid similarity an interview theme needs to
	// be linked to a cluster.
	EvidenceMinCosine float64 `json:"evidence_min_cosine"`
	LanguageGate      bool    `json:"language_gate"`
}

// DefaultSettings returns the broad preset.
func DefaultSettings() Settings {
	settings, _ := PresetSettings(PresetBroad)
	return settings
}

// PresetSettings returns the settings for a named preset.
func PresetSettings(preset Preset) (Settings, error) {
	base := Settings{
		Preset:                   preset,
		WithinSubjectMinCosine:   0.74,
		MNNK:                     2,
		MaxSuggestionsPerSubject: 12,
		MaxClusterSize:           7,
		MinInterviewsPerCluster:  2,
		HighMinComposite:         0.75,
		HighMinCosine:            0.72,
		MediumMinComposite:       0.65,
		MediumMinCosine:          0.68,
		SentimentMargin:          1,
		EvidenceMinCosine:        0.74,
		LanguageGate:             true,
	}

	switch Preset(strings.ToLower(strings.TrimSpace(string(preset)))) {
	case PresetBroad, "":
		base.Preset = PresetBroad
		base.WithinSubjectMinJaccard = 0.15
		base.CrossSubjectMinCosine = 0.72
		base.CrossSubjectMinEntityOverlap = 0.20
	case PresetStrict:
		base.Preset = PresetStrict
		base.WithinSubjectMinJaccard = 0.35
		base.CrossSubjectMinCosine = 0.78
		base.CrossSubjectMinEntityOverlap = 0.50
	default:
		return Settings{}, &ConfigurationError{Problems: []string{
			fmt.Sprintf("preset must be %q or %q (got %q)", PresetBroad, PresetStrict, preset),
		}}
	}
	return base, nil
}

// ConfigurationError lists every invalid setting. It aborts a run before any
// scoring starts.
type ConfigurationError struct {
	Problems []string
}

func (e *ConfigurationError) Error() string {
	return "invalid dedup configuration: " + strings.Join(e.Problems, "; ")
}

// Validate returns a *ConfigurationError when any setting is out of range.
func (s Settings) Validate() error {
	var problems []string
	unit := func(name string, value float64) {
		if value < 0.0 || value > 1.0 {
			problems = append(problems, fmt.Sprintf("%s must be between 0.0 and 1.0 (got %.2f)", name, value))
		}
	}
	positive := func(name string, value int) {
		if value <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive (got %d)", name, value))
		}
	}

	unit("within_subject_min_cosine", s.WithinSubjectMinCosine)
	unit("within_subject_min_jaccard", s.WithinSubjectMinJaccard)
	unit("cross_subject_min_cosine", s.CrossSubjectMinCosine)
	unit("cross_subject_min_entity_overlap", s.CrossSubjectMinEntityOverlap)
	unit("high_min_composite", s.HighMinComposite)
	unit("high_min_cosine", s.HighMinCosine)
	unit("medium_min_composite", s.MediumMinComposite)
	unit("medium_min_cosine", s.MediumMinCosine)
	unit("evidence_min_cosine", s.EvidenceMinCosine)

	positive("mnn_k", s.MNNK)
	positive("max_suggestions_per_subject", s.MaxSuggestionsPerSubject)
	positive("sentiment_margin", s.SentimentMargin)
	if s.MaxClusterSize < 2 {
		problems = append(problems, fmt.Sprintf("max_cluster_size must be at least 2 (got %d)", s.MaxClusterSize))
	}
	if s.MinInterviewsPerCluster < 0 {
		problems = append(problems, fmt.Sprintf("min_interviews_per_cluster cannot be negative (got %d)", s.MinInterviewsPerCluster))
	}
	if s.MediumMinComposite > s.HighMinComposite {
		problems = append(problems, fmt.Sprintf("medium_min_composite (%.2f) cannot exceed high_min_composite (%.2f)", s.MediumMinComposite, s.HighMinComposite))
	}

	if len(problems) > 0 {
		return &ConfigurationError{Problems: problems}
	}
	return nil
}

func (s Settings) String() string {
	return fmt.Sprintf(
		"Settings{Preset: %s, Within: cos>=%.2f jac>=%.2f, Cross: cos>=%.2f ent>=%.2f, "+
			"K: %d, PerSubject: %d, MaxCluster: %d, MinInterviews: %d}",
		s.Preset, s.WithinSubjectMinCosine, s.WithinSubjectMinJaccard,
		s.CrossSubjectMinCosine, s.CrossSubjectMinEntityOverlap,
		s.MNNK, s.MaxSuggestionsPerSubject, s.MaxClusterSize, s.MinInterviewsPerCluster,
	)
}
