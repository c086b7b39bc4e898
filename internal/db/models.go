package db

import (
	"encoding/json"
	"time"
)

// ThemeRow maps research.themes. The dedup engine only reads it.
type ThemeRow struct {
	ThemeRowID   int64           `gorm:"column:theme_row_id;primaryKey;autoIncrement"`
	ThemeUUID    string          `gorm:"column:theme_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	ExternalID   string          `gorm:"column:external_id;type:text;not null;unique"`
	Statement    string          `gorm:"column:statement;type:text;not null"`
	Subject      string          `gorm:"column:subject;type:text;not null;default:General"`
	Origin       string          `gorm:"column:origin;type:research.theme_origin;not null;default:research"`
	InterviewIDs json.RawMessage `gorm:"column:interview_ids;type:jsonb;not null;default:'[]'"`
	Language     *string         `gorm:"column:language;type:text"`
	ArchivedAt   *time.Time      `gorm:"column:archived_at;type:timestamptz"`
	CreatedAt    time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (ThemeRow) TableName() string { return "research.themes" }

// DedupRun maps research.dedup_runs.
type DedupRun struct {
	DedupRunID        int64           `gorm:"column:dedup_run_id;primaryKey;autoIncrement"`
	DedupRunUUID      string          `gorm:"column:dedup_run_uuid;type:uuid;not null;unique"`
	Source            string          `gorm:"column:source;type:text;not null"`
	Preset            string          `gorm:"column:preset;type:text;not null"`
	Settings          json.RawMessage `gorm:"column:settings;type:jsonb;not null"`
	StartedAt         time.Time       `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt        time.Time       `gorm:"column:finished_at;type:timestamptz;not null"`
	ThemeCount        int             `gorm:"column:theme_count;type:integer;not null;default:0"`
	SkippedCount      int             `gorm:"column:skipped_count;type:integer;not null;default:0"`
	CandidatePairs    int             `gorm:"column:candidate_pairs;type:integer;not null;default:0"`
	GatedCount        int             `gorm:"column:gated_count;type:integer;not null;default:0"`
	AcceptedCount     int             `gorm:"column:accepted_count;type:integer;not null;default:0"`
	ClusterCount      int             `gorm:"column:cluster_count;type:integer;not null;default:0"`
	UnclusteredCount  int             `gorm:"column:unclustered_count;type:integer;not null;default:0"`
	SingletonCount    int             `gorm:"column:singleton_count;type:integer;not null;default:0"`
	EvidenceLinks     int             `gorm:"column:evidence_links;type:integer;not null;default:0"`
	EmbeddingFailures int             `gorm:"column:embedding_failures;type:integer;not null;default:0"`
	ElapsedMS         int64           `gorm:"column:elapsed_ms;type:bigint;not null;default:0"`
	Singletons        json.RawMessage `gorm:"column:singletons;type:jsonb;not null;default:'[]'"`
	CreatedAt         time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupRun) TableName() string { return "research.dedup_runs" }

// DedupPair maps research.dedup_pairs.
type DedupPair struct {
	DedupPairID        int64           `gorm:"column:dedup_pair_id;primaryKey;autoIncrement"`
	DedupPairUUID      string          `gorm:"column:dedup_pair_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	DedupRunID         int64           `gorm:"column:dedup_run_id;type:bigint;not null"`
	ThemeA             string          `gorm:"column:theme_a;type:text;not null"`
	ThemeB             string          `gorm:"column:theme_b;type:text;not null"`
	SubjectA           string          `gorm:"column:subject_a;type:text;not null"`
	SubjectB           string          `gorm:"column:subject_b;type:text;not null"`
	Facet              string          `gorm:"column:facet;type:text;not null"`
	Scope              string          `gorm:"column:scope;type:text;not null"`
	Cosine             float64         `gorm:"column:cosine;type:double precision;not null"`
	Jaccard            float64         `gorm:"column:jaccard;type:double precision;not null"`
	EntityOverlap      float64         `gorm:"column:entity_overlap;type:double precision;not null"`
	SentimentAlignment float64         `gorm:"column:sentiment_alignment;type:double precision;not null"`
	CompositeScore     *float64        `gorm:"column:composite_score;type:double precision"`
	ConfidenceBand     *string         `gorm:"column:confidence_band;type:text"`
	Decision           string          `gorm:"column:decision;type:research.dedup_decision;not null"`
	Stage              string          `gorm:"column:stage;type:research.dedup_stage;not null"`
	Conflicts          json.RawMessage `gorm:"column:conflicts;type:jsonb;not null;default:'[]'"`
	Rationale          string          `gorm:"column:rationale;type:text;not null"`
}

func (DedupPair) TableName() string { return "research.dedup_pairs" }

// DedupCluster maps research.dedup_clusters.
type DedupCluster struct {
	DedupClusterID     int64           `gorm:"column:dedup_cluster_id;primaryKey;autoIncrement"`
	DedupClusterUUID   string          `gorm:"column:dedup_cluster_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	DedupRunID         int64           `gorm:"column:dedup_run_id;type:bigint;not null"`
	ClusterKey         string          `gorm:"column:cluster_key;type:text;not null"`
	Facet              string          `gorm:"column:facet;type:text;not null"`
	Subjects           json.RawMessage `gorm:"column:subjects;type:jsonb;not null"`
	CanonicalThemeID   string          `gorm:"column:canonical_theme_id;type:text;not null"`
	CanonicalStatement string          `gorm:"column:canonical_statement;type:text;not null"`
	MemberCount        int             `gorm:"column:member_count;type:integer;not null"`
	InterviewsCovered  int             `gorm:"column:interviews_covered;type:integer;not null"`
	CoverageShare      float64         `gorm:"column:coverage_share;type:double precision;not null"`
}

func (DedupCluster) TableName() string { return "research.dedup_clusters" }

// DedupClusterMember maps research.dedup_cluster_members.
type DedupClusterMember struct {
	DedupClusterID int64  `gorm:"column:dedup_cluster_id;type:bigint;primaryKey"`
	ThemeID        string `gorm:"column:theme_id;type:text;primaryKey"`
	IsCanonical    bool   `gorm:"column:is_canonical;type:boolean;not null;default:false"`
}

func (DedupClusterMember) TableName() string { return "research.dedup_cluster_members" }

// DedupEvidenceLink maps research.dedup_evidence_links.
type DedupEvidenceLink struct {
	DedupEvidenceLinkID int64           `gorm:"column:dedup_evidence_link_id;primaryKey;autoIncrement"`
	DedupClusterID      int64           `gorm:"column:dedup_cluster_id;type:bigint;not null"`
	ThemeID             string          `gorm:"column:theme_id;type:text;not null"`
	Cosine              float64         `gorm:"column:cosine;type:double precision;not null"`
	InterviewIDs        json.RawMessage `gorm:"column:interview_ids;type:jsonb;not null;default:'[]'"`
}

func (DedupEvidenceLink) TableName() string { return "research.dedup_evidence_links" }

// DedupUnclusteredTheme maps research.dedup_unclustered_themes.
type DedupUnclusteredTheme struct {
	DedupUnclusteredID int64           `gorm:"column:dedup_unclustered_id;primaryKey;autoIncrement"`
	DedupRunID         int64           `gorm:"column:dedup_run_id;type:bigint;not null"`
	ThemeID            string          `gorm:"column:theme_id;type:text;not null"`
	Reason             string          `gorm:"column:reason;type:research.dedup_stage;not null"`
	Related            json.RawMessage `gorm:"column:related;type:jsonb;not null;default:'[]'"`
}

func (DedupUnclusteredTheme) TableName() string { return "research.dedup_unclustered_themes" }

// DedupAuditEntry maps research.dedup_audit_entries.
type DedupAuditEntry struct {
	DedupAuditEntryID int64     `gorm:"column:dedup_audit_entry_id;primaryKey;autoIncrement"`
	DedupRunID        int64     `gorm:"column:dedup_run_id;type:bigint;not null"`
	Kind              string    `gorm:"column:kind;type:text;not null"`
	ThemeID           *string   `gorm:"column:theme_id;type:text"`
	PairKey           *string   `gorm:"column:pair_key;type:text"`
	Detail            string    `gorm:"column:detail;type:text;not null"`
	CreatedAt         time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (DedupAuditEntry) TableName() string { return "research.dedup_audit_entries" }

func autoMigrateModels() []any {
	return []any{
		&ThemeRow{},
		&DedupRun{},
		&DedupPair{},
		&DedupCluster{},
		&DedupClusterMember{},
		&DedupEvidenceLink{},
		&DedupUnclusteredTheme{},
		&DedupAuditEntry{},
	}
}
