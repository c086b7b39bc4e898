package dedup

import (
	"fmt"
	"time"

	"horse.fit/themedup/internal/theme"
)

type PairScope string

const (
	ScopeWithinSubject PairScope = "within_subject"
	ScopeCrossSubject  PairScope = "cross_subject"
)

type Band string

const (
	BandHigh   Band = "high"
	BandMedium Band = "medium"
	BandLow    Band = "low"
)

type Decision string

const (
	DecisionMerge Decision = "merge"
	DecisionDeny  Decision = "deny"
)

// Stage is the last state a pair reached. Only StageAccepted pairs merge.
type Stage string

const (
	StageGated           Stage = "gated"
	StageBanded          Stage = "banded"
	StageMNNDropped      Stage = "mnn_dropped"
	StageCapped          Stage = "capped"
	StageClusterSplit    Stage = "cluster_split"
	StageClusterOverflow Stage = "cluster_overflow"
	StageLowCoverage     Stage = "low_coverage"
	StageScoringFailed   Stage = "scoring_failed"
	StageAccepted        Stage = "accepted"
)

// PairRecord is the audit trail of one candidate pair. ThemeA sorts before
// ThemeB. Composite is nil when a threshold gate rejected the pair.
type PairRecord struct {
	ThemeA             string    `json:"theme_a"`
	ThemeB             string    `json:"theme_b"`
	SubjectA           string    `json:"subject_a"`
	SubjectB           string    `json:"subject_b"`
	Facet              string    `json:"facet"`
	Scope              PairScope `json:"scope"`
	Cosine             float64   `json:"cosine"`
	Jaccard            float64   `json:"jaccard"`
	EntityOverlap      float64   `json:"entity_overlap"`
	SentimentAlignment float64   `json:"sentiment_alignment"`
	Composite          *float64  `json:"composite_score,omitempty"`
	Band               Band      `json:"confidence_band,omitempty"`
	Decision           Decision  `json:"decision"`
	Stage              Stage     `json:"stage"`
	Conflicts          []string  `json:"conflicts,omitempty"`
	Rationale          string    `json:"rationale"`
}

// Key returns "a|b" for the pair.
func (p PairRecord) Key() string {
	return p.ThemeA + "|" + p.ThemeB
}

func (p PairRecord) composite() float64 {
	if p.Composite == nil {
		return 0
	}
	return *p.Composite
}

// EvidenceLink ties an interview theme to a cluster without making it a member.
type EvidenceLink struct {
	ThemeID      string   `json:"theme_id"`
	Cosine       float64  `json:"cosine"`
	InterviewIDs []string `json:"interview_ids,omitempty"`
}

type Cluster struct {
	ID                 string         `json:"id"`
	Facet              string         `json:"facet"`
	Subjects           []string       `json:"subjects"`
	Members            []string       `json:"members"`
	CanonicalID        string         `json:"canonical_id"`
	CanonicalStatement string         `json:"canonical_statement"`
	InterviewsCovered  int            `json:"interviews_covered"`
	CoverageShare      float64        `json:"coverage_share"`
	Evidence           []EvidenceLink `json:"evidence,omitempty"`
}

// UnclusteredTheme is a theme that took part in accepted merges but was
// demoted instead of being forced into a cluster.
type UnclusteredTheme struct {
	ThemeID string   `json:"theme_id"`
	Reason  Stage    `json:"reason"`
	Related []string `json:"related,omitempty"`
}

type AuditKind string

const (
	AuditMalformedTheme       AuditKind = "malformed_theme"
	AuditEmbeddingUnavailable AuditKind = "embedding_unavailable"
	AuditPairScoringFailed    AuditKind = "pair_scoring_failed"
)

type AuditEntry struct {
	Kind    AuditKind `json:"kind"`
	ThemeID string    `json:"theme_id,omitempty"`
	PairKey string    `json:"pair,omitempty"`
	Detail  string    `json:"detail"`
}

type Stats struct {
	Themes              int   `json:"themes"`
	Skipped             int   `json:"skipped"`
	CandidatePairs      int   `json:"candidate_pairs"`
	Gated               int   `json:"gated"`
	Accepted            int   `json:"accepted"`
	Clusters            int   `json:"clusters"`
	Unclustered         int   `json:"unclustered"`
	Singletons          int   `json:"singletons"`
	EvidenceLinks       int   `json:"evidence_links"`
	EmbeddingFailures   int   `json:"embedding_failures"`
	ElapsedMilliseconds int64 `json:"elapsed_ms"`
}

// Result is everything one run produced. Cluster members, Unclustered and
// Singletons partition the valid input themes. Evidence links do not place
// a theme, so a linked interview theme is still listed in Singletons.
type Result struct {
	RunID       string             `json:"run_id"`
	Settings    Settings           `json:"settings"`
	StartedAt   time.Time          `json:"started_at"`
	FinishedAt  time.Time          `json:"finished_at"`
	Pairs       []PairRecord       `json:"pairs"`
	Clusters    []Cluster          `json:"clusters"`
	Unclustered []UnclusteredTheme `json:"unclustered"`
	Singletons  []string           `json:"singletons"`
	Audit       []AuditEntry       `json:"audit"`
	Stats       Stats              `json:"stats"`
}

// RecordQuarantined adds records rejected at the parse boundary to the audit
// log so a stored run explains every input it did not score.
func (r *Result) RecordQuarantined(items []theme.Quarantined) {
	for _, item := range items {
		r.Audit = append(r.Audit, AuditEntry{
			Kind:    AuditMalformedTheme,
			ThemeID: item.ID,
			Detail:  fmt.Sprintf("record %d quarantined: %s", item.Index, item.Reason),
		})
		r.Stats.Skipped++
	}
}
