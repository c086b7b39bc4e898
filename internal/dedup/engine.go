package dedup

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"horse.fit/themedup/internal/embedding"
	"horse.fit/themedup/internal/globaltime"
	"horse.fit/themedup/internal/logging"
	"horse.fit/themedup/internal/theme"
)

// Engine runs deduplication passes over snapshots of themes. It holds no
// state between runs.
type Engine struct {
	settings Settings
	batcher  *embedding.Batcher
	logger   zerolog.Logger
	detect   LanguageDetector
	workers  int
	newRunID func() string
}

type Option func(*Engine)

// ErrEmbeddingUnavailable is returned by ComparePair when either theme could
// not be embedded. Run records the same condition as an audit entry instead.
var ErrEmbeddingUnavailable = errors.New("embedding unavailable")

// WithLanguageDetector sets the detector used for themes without a language.
func WithLanguageDetector(detect LanguageDetector) Option {
	return func(e *Engine) { e.detect = detect }
}

// WithScoringWorkers bounds how many facet buckets are scored at once.
func WithScoringWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithRunIDGenerator(fn func() string) Option {
	return func(e *Engine) {
		if fn != nil {
			e.newRunID = fn
		}
	}
}

// NewEngine validates settings up front; a *ConfigurationError means nothing
// can run.
func NewEngine(settings Settings, batcher *embedding.Batcher, logger zerolog.Logger, opts ...Option) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	if batcher == nil {
		return nil, &ConfigurationError{Problems: []string{"embedding batcher is required"}}
	}

	e := &Engine{
		settings: settings,
		batcher:  batcher,
		logger:   logger,
		workers:  runtime.GOMAXPROCS(0),
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

func (e *Engine) Settings() Settings {
	return e.settings
}

// Run deduplicates one snapshot. Per-item failures are recorded in the audit
// log and never abort the run; only cancellation returns an error.
func (e *Engine) Run(ctx context.Context, themes []theme.Theme) (*Result, error) {
	if err := e.settings.Validate(); err != nil {
		return nil, err
	}

	started := globaltime.UTC()
	result := &Result{
		RunID:     e.newRunID(),
		Settings:  e.settings,
		StartedAt: started,
		Audit:     []AuditEntry{},
	}
	logger := logging.ForRun(e.logger, result.RunID, string(e.settings.Preset))

	profiles, audit := e.admit(themes)
	result.Audit = append(result.Audit, audit...)
	result.Stats.Themes = len(profiles)
	result.Stats.Skipped = len(audit)
	for _, entry := range audit {
		logger.Warn().Str("theme_id", entry.ThemeID).Str("detail", entry.Detail).Msg("skipping malformed theme")
	}

	buckets := buildCandidates(profiles)
	for _, b := range buckets {
		result.Stats.CandidatePairs += len(b.candidates)
	}

	failures, err := e.embedProfiles(ctx, profiles, embeddingTargets(profiles, buckets))
	if err != nil {
		return nil, err
	}
	for _, entry := range failures {
		logger.Warn().Str("theme_id", entry.ThemeID).Str("detail", entry.Detail).Msg("embedding unavailable")
	}
	result.Audit = append(result.Audit, failures...)
	result.Stats.EmbeddingFailures = len(failures)

	pairs, scoringFailures, err := e.scoreBuckets(ctx, profiles, buckets)
	if err != nil {
		return nil, err
	}
	for _, entry := range scoringFailures {
		logger.Error().Str("pair", entry.PairKey).Str("detail", entry.Detail).Msg("pair scoring failed")
	}
	result.Audit = append(result.Audit, scoringFailures...)

	for _, pair := range pairs {
		if pair.Stage == StageGated {
			result.Stats.Gated++
		}
	}

	applyMutualNearestNeighbors(pairs, e.settings.MNNK)
	applySubjectCap(pairs, e.settings.MaxSuggestionsPerSubject)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.assemble(result, profiles, pairs)

	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key() < pairs[j].Key() })
	result.Pairs = pairs
	for _, pair := range pairs {
		if pair.Stage == StageAccepted {
			result.Stats.Accepted++
		}
	}

	result.FinishedAt = globaltime.UTC()
	result.Stats.ElapsedMilliseconds = result.FinishedAt.Sub(started).Milliseconds()

	logger.Info().
		Int("themes", result.Stats.Themes).
		Int("skipped", result.Stats.Skipped).
		Int("candidate_pairs", result.Stats.CandidatePairs).
		Int("gated", result.Stats.Gated).
		Int("accepted", result.Stats.Accepted).
		Int("clusters", result.Stats.Clusters).
		Int("unclustered", result.Stats.Unclustered).
		Int("singletons", result.Stats.Singletons).
		Int("evidence_links", result.Stats.EvidenceLinks).
		Int("embedding_failures", result.Stats.EmbeddingFailures).
		Int64("elapsed_ms", result.Stats.ElapsedMilliseconds).
		Msg("dedup run completed")

	return result, nil
}

// ComparePair scores two themes directly, outside the candidate graph. All
// gates apply, including the origin rule.
func (e *Engine) ComparePair(ctx context.Context, a, b theme.Theme) (PairRecord, error) {
	for _, t := range []theme.Theme{a, b} {
		if err := t.Validate(); err != nil {
			return PairRecord{}, err
		}
	}
	if a.ID == b.ID {
		return PairRecord{}, fmt.Errorf("%w: cannot compare theme %s with itself", theme.ErrMalformedTheme, a.ID)
	}
	if b.ID < a.ID {
		a, b = b, a
	}

	profiles := []*profile{buildProfile(0, a, e.detect), buildProfile(1, b, e.detect)}
	failures, err := e.embedProfiles(ctx, profiles, []int{0, 1})
	if err != nil {
		return PairRecord{}, err
	}
	if len(failures) > 0 {
		return PairRecord{}, fmt.Errorf("%w: theme %s: %s", ErrEmbeddingUnavailable, failures[0].ThemeID, failures[0].Detail)
	}

	pa, pb := profiles[0], profiles[1]
	scope := ScopeCrossSubject
	if a.Subject == b.Subject {
		scope = ScopeWithinSubject
	}

	record, failure := scorePairSafe(pa, pb, pa.features.Facet, scope, e.settings)
	if failure != nil {
		return record, failure
	}
	if pa.features.Facet != pb.features.Facet && record.Decision == DecisionMerge {
		demote(&record, StageGated, fmt.Sprintf("deny: different facets (%s vs %s)", pa.features.Facet, pb.features.Facet))
	}
	return record, nil
}

// admit validates themes, drops duplicates and builds profiles sorted by id.
func (e *Engine) admit(themes []theme.Theme) ([]*profile, []AuditEntry) {
	var audit []AuditEntry
	valid := make([]theme.Theme, 0, len(themes))
	seen := make(map[string]struct{}, len(themes))
	for _, t := range themes {
		if err := t.Validate(); err != nil {
			audit = append(audit, AuditEntry{Kind: AuditMalformedTheme, ThemeID: t.ID, Detail: err.Error()})
			continue
		}
		if _, dup := seen[t.ID]; dup {
			audit = append(audit, AuditEntry{Kind: AuditMalformedTheme, ThemeID: t.ID, Detail: "duplicate theme id"})
			continue
		}
		seen[t.ID] = struct{}{}
		valid = append(valid, t)
	}
	sort.Slice(valid, func(i, j int) bool { return valid[i].ID < valid[j].ID })

	profiles := make([]*profile, 0, len(valid))
	for _, t := range valid {
		p := buildProfile(len(profiles), t, e.detect)
		if p.normalized == "" {
			audit = append(audit, AuditEntry{Kind: AuditMalformedTheme, ThemeID: t.ID, Detail: "statement has no comparable content"})
			continue
		}
		profiles = append(profiles, p)
	}
	sort.SliceStable(audit, func(i, j int) bool { return audit[i].ThemeID < audit[j].ThemeID })
	return profiles, audit
}

// embeddingTargets lists every pair member plus each interview theme whose
// facet could host a cluster.
func embeddingTargets(profiles []*profile, buckets []bucket) []int {
	need := make(map[int]bool)
	facets := make(map[string]bool, len(buckets))
	for _, b := range buckets {
		facets[b.facet] = true
		for _, c := range b.candidates {
			need[c.a] = true
			need[c.b] = true
		}
	}
	for _, p := range profiles {
		if !p.theme.Mergeable() && facets[p.features.Facet] {
			need[p.index] = true
		}
	}

	out := make([]int, 0, len(need))
	for idx := range need {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func (e *Engine) embedProfiles(ctx context.Context, profiles []*profile, targets []int) ([]AuditEntry, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	texts := make([]string, len(targets))
	for i, idx := range targets {
		texts[i] = profiles[idx].normalized
	}

	vectors, failures, err := e.batcher.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	for i, idx := range targets {
		profiles[idx].vector = vectors[i]
	}

	audit := make([]AuditEntry, 0, len(failures))
	for _, failure := range failures {
		audit = append(audit, AuditEntry{
			Kind:    AuditEmbeddingUnavailable,
			ThemeID: profiles[targets[failure.Index]].id(),
			Detail:  failure.Reason,
		})
	}
	return audit, nil
}

// scoreBuckets scores facet buckets concurrently. Each goroutine writes only
// its own bucket's slot; results are merged in bucket order afterwards.
func (e *Engine) scoreBuckets(ctx context.Context, profiles []*profile, buckets []bucket) ([]PairRecord, []AuditEntry, error) {
	scored := make([][]PairRecord, len(buckets))
	failed := make([][]AuditEntry, len(buckets))

	var group errgroup.Group
	group.SetLimit(e.workers)
	for i, b := range buckets {
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			records := make([]PairRecord, 0, len(b.candidates))
			for _, c := range b.candidates {
				record, failure := scorePairSafe(profiles[c.a], profiles[c.b], b.facet, c.scope, e.settings)
				if failure != nil {
					failed[i] = append(failed[i], AuditEntry{
						Kind:    AuditPairScoringFailed,
						PairKey: record.Key(),
						Detail:  failure.Error(),
					})
				}
				records = append(records, record)
			}
			scored[i] = records
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, nil, fmt.Errorf("score candidate pairs: %w", err)
	}

	pairs := make([]PairRecord, 0)
	var audit []AuditEntry
	for i := range buckets {
		pairs = append(pairs, scored[i]...)
		audit = append(audit, failed[i]...)
	}
	return pairs, audit, nil
}

// assemble turns accepted pairs into clusters, enforces the size cap, links
// evidence, demotes weakly covered clusters and fills the three output
// buckets. It is the only writer of cluster assignment.
func (e *Engine) assemble(result *Result, profiles []*profile, pairs []PairRecord) {
	indexOf := make(map[string]int, len(profiles))
	for _, p := range profiles {
		indexOf[p.id()] = p.index
	}

	var edges []edge
	linked := make(map[int]bool)
	for _, pair := range pairs {
		if pair.Stage != StageAccepted {
			continue
		}
		a, b := indexOf[pair.ThemeA], indexOf[pair.ThemeB]
		edges = append(edges, edge{a: a, b: b, weight: pair.composite()})
		linked[a] = true
		linked[b] = true
	}
	nodes := make([]int, 0, len(linked))
	for idx := range linked {
		nodes = append(nodes, idx)
	}
	sort.Ints(nodes)

	var groups []group
	var demoted []demotion
	for _, component := range connectedGroups(nodes, edges, len(profiles)) {
		bounded, dropped := boundGroup(component, profiles, e.settings.MaxClusterSize)
		groups = append(groups, bounded...)
		demoted = append(demoted, dropped...)
	}

	groupOf := make(map[int]int, len(nodes))
	for gi, g := range groups {
		for _, m := range g.members {
			groupOf[m] = gi
		}
	}
	reasonOf := make(map[int]Stage, len(demoted))
	for _, d := range demoted {
		reasonOf[d.index] = d.reason
	}

	assemblies := make([]*assembly, 0, len(groups))
	for _, g := range groups {
		canonical, centroid := electCanonical(g.members, profiles)
		assemblies = append(assemblies, &assembly{
			members:   g.members,
			canonical: canonical,
			centroid:  centroid,
			facet:     profiles[canonical].features.Facet,
		})
	}
	linkEvidence(assemblies, profiles, e.settings)

	totalInterviews := distinctInterviews(profiles)
	lowCoverage := make(map[int]bool)
	clusters := make([]Cluster, 0, len(assemblies))
	for gi, a := range assemblies {
		covered := interviewsCovered(a, profiles)
		if covered < e.settings.MinInterviewsPerCluster {
			lowCoverage[gi] = true
			for _, m := range a.members {
				reasonOf[m] = StageLowCoverage
				demoted = append(demoted, demotion{index: m, reason: StageLowCoverage, related: otherMembers(a.members, m)})
			}
			continue
		}

		share := 0.0
		if totalInterviews > 0 {
			share = round4(float64(covered) / float64(totalInterviews))
		}
		clusters = append(clusters, Cluster{
			Facet:              a.facet,
			Subjects:           subjectsOf(a.members, profiles),
			Members:            idsOf(a.members, profiles),
			CanonicalID:        profiles[a.canonical].id(),
			CanonicalStatement: profiles[a.canonical].theme.Statement,
			InterviewsCovered:  covered,
			CoverageShare:      share,
			Evidence:           evidenceLinks(a, profiles),
		})
	}

	// Every merge decision must end inside a single output cluster.
	for i := range pairs {
		pair := &pairs[i]
		if pair.Stage != StageAccepted {
			continue
		}
		a, b := indexOf[pair.ThemeA], indexOf[pair.ThemeB]
		ga, okA := groupOf[a]
		gb, okB := groupOf[b]
		switch {
		case !okA || !okB || ga != gb:
			stage := StageClusterSplit
			if reasonOf[a] == StageClusterOverflow || reasonOf[b] == StageClusterOverflow {
				stage = StageClusterOverflow
			}
			demote(pair, stage, fmt.Sprintf("deny: separated by the cluster size cap of %d", e.settings.MaxClusterSize))
		case lowCoverage[ga]:
			demote(pair, StageLowCoverage, fmt.Sprintf("deny: cluster covers fewer than %d interviews", e.settings.MinInterviewsPerCluster))
		}
	}

	sort.Slice(clusters, func(i, j int) bool {
		if len(clusters[i].Members) != len(clusters[j].Members) {
			return len(clusters[i].Members) > len(clusters[j].Members)
		}
		return clusters[i].Members[0] < clusters[j].Members[0]
	})
	for i := range clusters {
		clusters[i].ID = fmt.Sprintf("cluster-%03d", i+1)
		result.Stats.EvidenceLinks += len(clusters[i].Evidence)
	}

	placed := make(map[int]bool)
	for _, a := range assemblies {
		for _, m := range a.members {
			placed[m] = true
		}
	}
	unclustered := make([]UnclusteredTheme, 0, len(demoted))
	for _, d := range demoted {
		placed[d.index] = true
		unclustered = append(unclustered, UnclusteredTheme{
			ThemeID: profiles[d.index].id(),
			Reason:  d.reason,
			Related: idsOf(d.related, profiles),
		})
	}
	sort.Slice(unclustered, func(i, j int) bool { return unclustered[i].ThemeID < unclustered[j].ThemeID })

	singletons := make([]string, 0, len(profiles))
	for _, p := range profiles {
		if !placed[p.index] {
			singletons = append(singletons, p.id())
		}
	}

	result.Clusters = clusters
	result.Unclustered = unclustered
	result.Singletons = singletons
	result.Stats.Clusters = len(clusters)
	result.Stats.Unclustered = len(unclustered)
	result.Stats.Singletons = len(singletons)
}

func idsOf(indexes []int, profiles []*profile) []string {
	if len(indexes) == 0 {
		return nil
	}
	sorted := append([]int(nil), indexes...)
	sort.Ints(sorted)
	out := make([]string, 0, len(sorted))
	for _, idx := range sorted {
		out = append(out, profiles[idx].id())
	}
	return out
}

func subjectsOf(indexes []int, profiles []*profile) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)
	for _, idx := range indexes {
		subject := profiles[idx].theme.Subject
		if _, ok := seen[subject]; ok {
			continue
		}
		seen[subject] = struct{}{}
		out = append(out, subject)
	}
	sort.Strings(out)
	return out
}

// IsConfigurationError reports whether err is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}
