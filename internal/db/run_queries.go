package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"horse.fit/themedup/internal/dedup"
)

// RunSource names where a persisted run's themes came from.
const (
	RunSourceFile     = "file"
	RunSourceDatabase = "database"
	RunSourceAPI      = "api"
)

// RunSummary is the read model returned by run listings.
type RunSummary struct {
	RunUUID           string    `json:"run_uuid"`
	Source            string    `json:"source"`
	Preset            string    `json:"preset"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
	ThemeCount        int       `json:"themes"`
	SkippedCount      int       `json:"skipped"`
	CandidatePairs    int       `json:"candidate_pairs"`
	AcceptedCount     int       `json:"accepted"`
	ClusterCount      int       `json:"clusters"`
	UnclusteredCount  int       `json:"unclustered"`
	SingletonCount    int       `json:"singletons"`
	EvidenceLinks     int       `json:"evidence_links"`
	EmbeddingFailures int       `json:"embedding_failures"`
	ElapsedMS         int64     `json:"elapsed_ms"`
}

// RunDetail contains one persisted run with its clusters, demotions, audit
// entries and, optionally, every scored pair.
type RunDetail struct {
	Run         RunSummary               `json:"run"`
	Settings    json.RawMessage          `json:"settings"`
	Clusters    []dedup.Cluster          `json:"clusters"`
	Unclustered []dedup.UnclusteredTheme `json:"unclustered"`
	Singletons  []string                 `json:"singletons"`
	Audit       []dedup.AuditEntry       `json:"audit"`
	Pairs       []dedup.PairRecord       `json:"pairs,omitempty"`
}

// runRecords is a dedup.Result flattened into rows. Cluster-scoped rows are
// grouped per cluster so their foreign keys can be filled once the cluster
// row has an id.
type runRecords struct {
	run         DedupRun
	pairs       []DedupPair
	clusters    []clusterRecords
	unclustered []DedupUnclusteredTheme
	audit       []DedupAuditEntry
}

type clusterRecords struct {
	cluster  DedupCluster
	members  []DedupClusterMember
	evidence []DedupEvidenceLink
}

func buildRunRecords(result *dedup.Result, source string) (runRecords, error) {
	settings, err := json.Marshal(result.Settings)
	if err != nil {
		return runRecords{}, fmt.Errorf("encode settings: %w", err)
	}

	stats := result.Stats
	rec := runRecords{
		run: DedupRun{
			DedupRunUUID:      result.RunID,
			Source:            source,
			Preset:            string(result.Settings.Preset),
			Settings:          settings,
			StartedAt:         result.StartedAt.UTC(),
			FinishedAt:        result.FinishedAt.UTC(),
			ThemeCount:        stats.Themes,
			SkippedCount:      stats.Skipped,
			CandidatePairs:    stats.CandidatePairs,
			GatedCount:        stats.Gated,
			AcceptedCount:     stats.Accepted,
			ClusterCount:      stats.Clusters,
			UnclusteredCount:  stats.Unclustered,
			SingletonCount:    stats.Singletons,
			EvidenceLinks:     stats.EvidenceLinks,
			EmbeddingFailures: stats.EmbeddingFailures,
			ElapsedMS:         stats.ElapsedMilliseconds,
			Singletons:        mustJSON(nonNilStrings(result.Singletons)),
		},
		pairs:       make([]DedupPair, 0, len(result.Pairs)),
		clusters:    make([]clusterRecords, 0, len(result.Clusters)),
		unclustered: make([]DedupUnclusteredTheme, 0, len(result.Unclustered)),
		audit:       make([]DedupAuditEntry, 0, len(result.Audit)),
	}

	for _, pair := range result.Pairs {
		row := DedupPair{
			ThemeA:             pair.ThemeA,
			ThemeB:             pair.ThemeB,
			SubjectA:           pair.SubjectA,
			SubjectB:           pair.SubjectB,
			Facet:              pair.Facet,
			Scope:              string(pair.Scope),
			Cosine:             pair.Cosine,
			Jaccard:            pair.Jaccard,
			EntityOverlap:      pair.EntityOverlap,
			SentimentAlignment: pair.SentimentAlignment,
			CompositeScore:     pair.Composite,
			Decision:           string(pair.Decision),
			Stage:              string(pair.Stage),
			Conflicts:          mustJSON(nonNilStrings(pair.Conflicts)),
			Rationale:          pair.Rationale,
		}
		if pair.Band != "" {
			band := string(pair.Band)
			row.ConfidenceBand = &band
		}
		rec.pairs = append(rec.pairs, row)
	}

	for _, cluster := range result.Clusters {
		cr := clusterRecords{
			cluster: DedupCluster{
				ClusterKey:         cluster.ID,
				Facet:              cluster.Facet,
				Subjects:           mustJSON(nonNilStrings(cluster.Subjects)),
				CanonicalThemeID:   cluster.CanonicalID,
				CanonicalStatement: cluster.CanonicalStatement,
				MemberCount:        len(cluster.Members),
				InterviewsCovered:  cluster.InterviewsCovered,
				CoverageShare:      cluster.CoverageShare,
			},
		}
		for _, member := range cluster.Members {
			cr.members = append(cr.members, DedupClusterMember{ThemeID: member, IsCanonical: member == cluster.CanonicalID})
		}
		for _, link := range cluster.Evidence {
			cr.evidence = append(cr.evidence, DedupEvidenceLink{
				ThemeID:      link.ThemeID,
				Cosine:       link.Cosine,
				InterviewIDs: mustJSON(nonNilStrings(link.InterviewIDs)),
			})
		}
		rec.clusters = append(rec.clusters, cr)
	}

	for _, u := range result.Unclustered {
		rec.unclustered = append(rec.unclustered, DedupUnclusteredTheme{
			ThemeID: u.ThemeID,
			Reason:  string(u.Reason),
			Related: mustJSON(nonNilStrings(u.Related)),
		})
	}

	for _, entry := range result.Audit {
		rec.audit = append(rec.audit, DedupAuditEntry{
			Kind:    string(entry.Kind),
			ThemeID: optionalString(entry.ThemeID),
			PairKey: optionalString(entry.PairKey),
			Detail:  entry.Detail,
		})
	}
	return rec, nil
}

// SaveRun persists a finished run in one transaction and returns its UUID.
func (p *Pool) SaveRun(ctx context.Context, result *dedup.Result, source string) (string, error) {
	if p == nil || p.gdb == nil {
		return "", fmt.Errorf("database pool is not initialized")
	}
	if result == nil {
		return "", fmt.Errorf("result is nil")
	}

	rec, err := buildRunRecords(result, source)
	if err != nil {
		return "", err
	}

	err = p.gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&rec.run).Error; err != nil {
			return fmt.Errorf("insert dedup run: %w", err)
		}
		runID := rec.run.DedupRunID

		for i := range rec.pairs {
			rec.pairs[i].DedupRunID = runID
		}
		if len(rec.pairs) > 0 {
			if err := tx.CreateInBatches(rec.pairs, 500).Error; err != nil {
				return fmt.Errorf("insert dedup pairs: %w", err)
			}
		}

		for i := range rec.clusters {
			cr := &rec.clusters[i]
			cr.cluster.DedupRunID = runID
			if err := tx.Create(&cr.cluster).Error; err != nil {
				return fmt.Errorf("insert cluster %s: %w", cr.cluster.ClusterKey, err)
			}
			for j := range cr.members {
				cr.members[j].DedupClusterID = cr.cluster.DedupClusterID
			}
			if err := tx.Create(&cr.members).Error; err != nil {
				return fmt.Errorf("insert members of cluster %s: %w", cr.cluster.ClusterKey, err)
			}
			if len(cr.evidence) == 0 {
				continue
			}
			for j := range cr.evidence {
				cr.evidence[j].DedupClusterID = cr.cluster.DedupClusterID
			}
			if err := tx.Create(&cr.evidence).Error; err != nil {
				return fmt.Errorf("insert evidence of cluster %s: %w", cr.cluster.ClusterKey, err)
			}
		}

		for i := range rec.unclustered {
			rec.unclustered[i].DedupRunID = runID
		}
		if len(rec.unclustered) > 0 {
			if err := tx.Create(&rec.unclustered).Error; err != nil {
				return fmt.Errorf("insert unclustered themes: %w", err)
			}
		}

		for i := range rec.audit {
			rec.audit[i].DedupRunID = runID
		}
		if len(rec.audit) > 0 {
			if err := tx.Create(&rec.audit).Error; err != nil {
				return fmt.Errorf("insert audit entries: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return rec.run.DedupRunUUID, nil
}

// ListRuns returns the most recent runs first. Settings and singleton lists
// stay in the database; show-run loads them.
func (p *Pool) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be > 0")
	}

	var runs []DedupRun
	err := p.gdb.WithContext(ctx).
		Omit("settings", "singletons").
		Order("started_at DESC").
		Order("dedup_run_id DESC").
		Limit(limit).
		Find(&runs).Error
	if err != nil {
		return nil, fmt.Errorf("query dedup runs: %w", err)
	}

	items := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, summaryOf(run))
	}
	return items, nil
}

// GetRun loads one run by UUID. Pairs are included only when withPairs is set
// because a large run carries many more pairs than clusters.
func (p *Pool) GetRun(ctx context.Context, runUUID string, withPairs bool) (*RunDetail, error) {
	trimmedUUID := strings.TrimSpace(runUUID)
	if trimmedUUID == "" {
		return nil, fmt.Errorf("run UUID is required")
	}
	if p == nil || p.gdb == nil {
		return nil, fmt.Errorf("database pool is not initialized")
	}
	gdb := p.gdb.WithContext(ctx)

	var run DedupRun
	if err := gdb.Where("dedup_run_uuid = ?::uuid", trimmedUUID).Take(&run).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoRows
		}
		return nil, fmt.Errorf("query dedup run: %w", err)
	}

	detail := &RunDetail{
		Run:         summaryOf(run),
		Settings:    run.Settings,
		Clusters:    []dedup.Cluster{},
		Unclustered: []dedup.UnclusteredTheme{},
		Singletons:  []string{},
		Audit:       []dedup.AuditEntry{},
	}
	if len(run.Singletons) > 0 {
		if err := json.Unmarshal(run.Singletons, &detail.Singletons); err != nil {
			return nil, fmt.Errorf("decode singletons: %w", err)
		}
	}

	var clusters []DedupCluster
	if err := gdb.Where("dedup_run_id = ?", run.DedupRunID).Order("cluster_key").Find(&clusters).Error; err != nil {
		return nil, fmt.Errorf("query clusters: %w", err)
	}
	for _, row := range clusters {
		cluster, err := loadCluster(gdb, row)
		if err != nil {
			return nil, err
		}
		detail.Clusters = append(detail.Clusters, cluster)
	}

	var unclustered []DedupUnclusteredTheme
	if err := gdb.Where("dedup_run_id = ?", run.DedupRunID).Order("theme_id").Find(&unclustered).Error; err != nil {
		return nil, fmt.Errorf("query unclustered themes: %w", err)
	}
	for _, row := range unclustered {
		u := dedup.UnclusteredTheme{ThemeID: row.ThemeID, Reason: dedup.Stage(row.Reason)}
		if err := decodeOptionalJSON(row.Related, &u.Related); err != nil {
			return nil, fmt.Errorf("decode related themes of %s: %w", row.ThemeID, err)
		}
		detail.Unclustered = append(detail.Unclustered, u)
	}

	var audit []DedupAuditEntry
	if err := gdb.Where("dedup_run_id = ?", run.DedupRunID).Order("dedup_audit_entry_id").Find(&audit).Error; err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	for _, row := range audit {
		detail.Audit = append(detail.Audit, dedup.AuditEntry{
			Kind:    dedup.AuditKind(row.Kind),
			ThemeID: derefString(row.ThemeID),
			PairKey: derefString(row.PairKey),
			Detail:  row.Detail,
		})
	}

	if withPairs {
		var pairs []DedupPair
		if err := gdb.Where("dedup_run_id = ?", run.DedupRunID).Order("theme_a, theme_b").Find(&pairs).Error; err != nil {
			return nil, fmt.Errorf("query pairs: %w", err)
		}
		detail.Pairs = make([]dedup.PairRecord, 0, len(pairs))
		for _, row := range pairs {
			pair, err := pairRecordOf(row)
			if err != nil {
				return nil, err
			}
			detail.Pairs = append(detail.Pairs, pair)
		}
	}
	return detail, nil
}

func loadCluster(gdb *gorm.DB, row DedupCluster) (dedup.Cluster, error) {
	cluster := dedup.Cluster{
		ID:                 row.ClusterKey,
		Facet:              row.Facet,
		CanonicalID:        row.CanonicalThemeID,
		CanonicalStatement: row.CanonicalStatement,
		InterviewsCovered:  row.InterviewsCovered,
		CoverageShare:      row.CoverageShare,
	}
	if err := decodeOptionalJSON(row.Subjects, &cluster.Subjects); err != nil {
		return dedup.Cluster{}, fmt.Errorf("decode subjects of %s: %w", row.ClusterKey, err)
	}

	var members []DedupClusterMember
	if err := gdb.Where("dedup_cluster_id = ?", row.DedupClusterID).Order("theme_id").Find(&members).Error; err != nil {
		return dedup.Cluster{}, fmt.Errorf("query members of %s: %w", row.ClusterKey, err)
	}
	for _, m := range members {
		cluster.Members = append(cluster.Members, m.ThemeID)
	}

	var evidence []DedupEvidenceLink
	if err := gdb.Where("dedup_cluster_id = ?", row.DedupClusterID).Order("theme_id").Find(&evidence).Error; err != nil {
		return dedup.Cluster{}, fmt.Errorf("query evidence of %s: %w", row.ClusterKey, err)
	}
	for _, e := range evidence {
		link := dedup.EvidenceLink{ThemeID: e.ThemeID, Cosine: e.Cosine}
		if err := decodeOptionalJSON(e.InterviewIDs, &link.InterviewIDs); err != nil {
			return dedup.Cluster{}, fmt.Errorf("decode evidence interviews of %s: %w", e.ThemeID, err)
		}
		cluster.Evidence = append(cluster.Evidence, link)
	}
	return cluster, nil
}

func pairRecordOf(row DedupPair) (dedup.PairRecord, error) {
	pair := dedup.PairRecord{
		ThemeA:             row.ThemeA,
		ThemeB:             row.ThemeB,
		SubjectA:           row.SubjectA,
		SubjectB:           row.SubjectB,
		Facet:              row.Facet,
		Scope:              dedup.PairScope(row.Scope),
		Cosine:             row.Cosine,
		Jaccard:            row.Jaccard,
		EntityOverlap:      row.EntityOverlap,
		SentimentAlignment: row.SentimentAlignment,
		Composite:          row.CompositeScore,
		Band:               dedup.Band(derefString(row.ConfidenceBand)),
		Decision:           dedup.Decision(row.Decision),
		Stage:              dedup.Stage(row.Stage),
		Rationale:          row.Rationale,
	}
	if err := decodeOptionalJSON(row.Conflicts, &pair.Conflicts); err != nil {
		return dedup.PairRecord{}, fmt.Errorf("decode conflicts of %s: %w", pair.Key(), err)
	}
	if len(pair.Conflicts) == 0 {
		pair.Conflicts = nil
	}
	return pair, nil
}

func summaryOf(run DedupRun) RunSummary {
	return RunSummary{
		RunUUID:           run.DedupRunUUID,
		Source:            run.Source,
		Preset:            run.Preset,
		StartedAt:         run.StartedAt,
		FinishedAt:        run.FinishedAt,
		ThemeCount:        run.ThemeCount,
		SkippedCount:      run.SkippedCount,
		CandidatePairs:    run.CandidatePairs,
		AcceptedCount:     run.AcceptedCount,
		ClusterCount:      run.ClusterCount,
		UnclusteredCount:  run.UnclusteredCount,
		SingletonCount:    run.SingletonCount,
		EvidenceLinks:     run.EvidenceLinks,
		EmbeddingFailures: run.EmbeddingFailures,
		ElapsedMS:         run.ElapsedMS,
	}
}

func decodeOptionalJSON(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, dst)
}

func mustJSON(v []string) json.RawMessage {
	// A []string always marshals.
	raw, _ := json.Marshal(v)
	return raw
}

func optionalString(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func derefString(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
