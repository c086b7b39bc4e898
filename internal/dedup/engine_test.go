package dedup

import (
	"context"
	"errors"
	"fmt"
	"math"
	"reflect"
	"slices"
	"testing"

	"github.com/rs/zerolog"

	"horse.fit/themedup/internal/embedding"
	"horse.fit/themedup/internal/textnorm"
	"horse.fit/themedup/internal/theme"
)

const (
	pricingA    = "Clients want transparent API pricing tiers"
	pricingB    = "Customers request clear pricing tiers via the API"
	pricingEvid = "Customers ask for clear API pricing"
)

// mappedProvider embeds a statement to its configured vector and leaves
// unknown statements without one.
func mappedProvider(vectors map[string][]float64) embedding.ProviderFunc {
	byText := make(map[string][]float64, len(vectors))
	for statement, vector := range vectors {
		byText[textnorm.Normalize(statement)] = vector
	}
	return func(_ context.Context, texts []string) ([][]float64, error) {
		out := make([][]float64, len(texts))
		for i, text := range texts {
			out[i] = byText[text]
		}
		return out, nil
	}
}

func constantProvider() embedding.ProviderFunc {
	return func(_ context.Context, texts []string) ([][]float64, error) {
		out := make([][]float64, len(texts))
		for i := range texts {
			out[i] = []float64{1, 0}
		}
		return out, nil
	}
}

func newTestEngine(t *testing.T, settings Settings, provider embedding.Provider) *Engine {
	t.Helper()

	batcher := embedding.NewBatcher(provider, embedding.BatchOptions{BatchSize: 4}, zerolog.Nop())
	engine, err := NewEngine(settings, batcher, zerolog.Nop(), WithRunIDGenerator(func() string { return "run-test" }))
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func pricingVectors() map[string][]float64 {
	theta := math.Acos(0.88)
	return map[string][]float64{
		pricingA:    unit(0),
		pricingB:    unit(theta),
		pricingEvid: unit(theta / 2),
	}
}

func findPair(t *testing.T, result *Result, key string) PairRecord {
	t.Helper()
	for _, pair := range result.Pairs {
		if pair.Key() == key {
			return pair
		}
	}
	t.Fatalf("pair %s not found", key)
	return PairRecord{}
}

func assertMergesClustered(t *testing.T, result *Result) {
	t.Helper()
	clusterOf := make(map[string]string)
	for _, c := range result.Clusters {
		for _, member := range c.Members {
			clusterOf[member] = c.ID
		}
	}
	for _, pair := range result.Pairs {
		if pair.Decision != DecisionMerge {
			continue
		}
		ca, okA := clusterOf[pair.ThemeA]
		cb, okB := clusterOf[pair.ThemeB]
		if !okA || !okB || ca != cb {
			t.Fatalf("merge %s is not inside a single cluster", pair.Key())
		}
	}
}

func assertPartition(t *testing.T, result *Result, want []string) {
	t.Helper()
	seen := make(map[string]int)
	for _, c := range result.Clusters {
		for _, member := range c.Members {
			seen[member]++
		}
	}
	for _, u := range result.Unclustered {
		seen[u.ThemeID]++
	}
	for _, id := range result.Singletons {
		seen[id]++
	}
	if len(seen) != len(want) {
		t.Fatalf("unexpected partition size: got %v want %v", seen, want)
	}
	for _, id := range want {
		if seen[id] != 1 {
			t.Fatalf("theme %s appears %d times across clusters, unclustered and singletons", id, seen[id])
		}
	}
}

func TestRunMergesParaphrasedPricingThemes(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), mappedProvider(pricingVectors()))
	result, err := engine.Run(context.Background(), []theme.Theme{
		{ID: "theme-a", Statement: pricingA, Subject: "Pricing", Origin: theme.OriginResearch, InterviewIDs: []string{"i1"}},
		{ID: "theme-b", Statement: pricingB, Subject: "Pricing", Origin: theme.OriginDiscovered, InterviewIDs: []string{"i2"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.RunID != "run-test" {
		t.Fatalf("unexpected run id: %q", result.RunID)
	}
	pair := findPair(t, result, "theme-a|theme-b")
	if pair.Decision != DecisionMerge || pair.Band != BandHigh || pair.Stage != StageAccepted {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	if pair.Composite == nil || *pair.Composite < 0.78 || *pair.Composite > 0.81 {
		t.Fatalf("unexpected composite: %v", pair.Composite)
	}

	if len(result.Clusters) != 1 {
		t.Fatalf("unexpected cluster count: got %d want 1", len(result.Clusters))
	}
	cluster := result.Clusters[0]
	if cluster.ID != "cluster-001" || !reflect.DeepEqual(cluster.Members, []string{"theme-a", "theme-b"}) {
		t.Fatalf("unexpected cluster: %+v", cluster)
	}
	if cluster.CanonicalID != "theme-b" || cluster.CanonicalStatement != pricingB {
		t.Fatalf("unexpected canonical: got %q want theme-b", cluster.CanonicalID)
	}
	if cluster.InterviewsCovered != 2 || cluster.CoverageShare != 1 {
		t.Fatalf("unexpected coverage: %d %.2f", cluster.InterviewsCovered, cluster.CoverageShare)
	}
	if result.Stats.Accepted != 1 || result.Stats.Clusters != 1 || result.Stats.CandidatePairs != 1 {
		t.Fatalf("unexpected stats: %+v", result.Stats)
	}
	assertMergesClustered(t, result)
	assertPartition(t, result, []string{"theme-a", "theme-b"})
}

func TestRunDeniesOppositeSentiment(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), constantProvider())
	result, err := engine.Run(context.Background(), []theme.Theme{
		{ID: "a", Statement: "Support is fast and helpful", Origin: theme.OriginResearch, Subject: "Support", InterviewIDs: []string{"i1"}},
		{ID: "b", Statement: "Support is slow and unhelpful", Origin: theme.OriginResearch, Subject: "Support", InterviewIDs: []string{"i2"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	pair := findPair(t, result, "a|b")
	if pair.Decision != DecisionDeny || !slices.Contains(pair.Conflicts, ConflictSentiment) {
		t.Fatalf("expected sentiment deny, got %+v", pair)
	}
	if len(result.Clusters) != 0 || !reflect.DeepEqual(result.Singletons, []string{"a", "b"}) {
		t.Fatalf("unexpected grouping: clusters=%+v singletons=%v", result.Clusters, result.Singletons)
	}
}

func TestRunLinksInterviewEvidence(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), mappedProvider(pricingVectors()))
	result, err := engine.Run(context.Background(), []theme.Theme{
		{ID: "a", Statement: pricingA, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i1"}},
		{ID: "b", Statement: pricingB, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i1"}},
		{ID: "c", Statement: pricingEvid, Subject: "Pricing", Origin: theme.OriginInterview, InterviewIDs: []string{"i2"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Pairs) != 1 {
		t.Fatalf("interview themes must not be merge candidates, got %d pairs", len(result.Pairs))
	}
	if len(result.Clusters) != 1 {
		t.Fatalf("unexpected cluster count: got %d want 1", len(result.Clusters))
	}
	cluster := result.Clusters[0]
	if !reflect.DeepEqual(cluster.Members, []string{"a", "b"}) {
		t.Fatalf("evidence must not become a member: %v", cluster.Members)
	}
	if len(cluster.Evidence) != 1 || cluster.Evidence[0].ThemeID != "c" {
		t.Fatalf("unexpected evidence: %+v", cluster.Evidence)
	}
	if cluster.Evidence[0].Cosine < 0.99 {
		t.Fatalf("unexpected evidence cosine: %.4f", cluster.Evidence[0].Cosine)
	}
	if cluster.InterviewsCovered != 2 {
		t.Fatalf("unexpected coverage: got %d want 2", cluster.InterviewsCovered)
	}
	// Linked evidence stays a singleton; only membership places a theme.
	if !reflect.DeepEqual(result.Singletons, []string{"c"}) {
		t.Fatalf("linked evidence must remain a singleton: %v", result.Singletons)
	}
	if result.Stats.EvidenceLinks != 1 {
		t.Fatalf("unexpected evidence link count: %d", result.Stats.EvidenceLinks)
	}
	assertPartition(t, result, []string{"a", "b", "c"})

	record, err := engine.ComparePair(context.Background(),
		theme.Theme{ID: "a", Statement: pricingA, Subject: "Pricing", Origin: theme.OriginResearch},
		theme.Theme{ID: "c", Statement: pricingEvid, Subject: "Pricing", Origin: theme.OriginInterview},
	)
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if record.Cosine < 0.95 {
		t.Fatalf("unexpected cosine: %.4f", record.Cosine)
	}
	if record.Decision != DecisionDeny || !slices.Contains(record.Conflicts, ConflictOrigin) {
		t.Fatalf("expected origin deny, got %+v", record)
	}
}

func TestRunDemotesLowCoverageClusters(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), mappedProvider(pricingVectors()))
	result, err := engine.Run(context.Background(), []theme.Theme{
		{ID: "a", Statement: pricingA, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i1"}},
		{ID: "b", Statement: pricingB, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i1"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Clusters) != 0 {
		t.Fatalf("expected no clusters, got %+v", result.Clusters)
	}
	if len(result.Unclustered) != 2 {
		t.Fatalf("unexpected unclustered: %+v", result.Unclustered)
	}
	for _, u := range result.Unclustered {
		if u.Reason != StageLowCoverage {
			t.Fatalf("unexpected reason for %s: %q", u.ThemeID, u.Reason)
		}
	}
	pair := findPair(t, result, "a|b")
	if pair.Decision != DecisionDeny || pair.Stage != StageLowCoverage {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	assertMergesClustered(t, result)
	assertPartition(t, result, []string{"a", "b"})
}

var regions = []string{"alpha", "beta", "gamma", "delta", "epsilon", "zeta", "eta", "theta", "iota"}

func orderSyncThemes(shopify int) []theme.Theme {
	out := make([]theme.Theme, 0, len(regions))
	for i, region := range regions {
		statement := "Order sync drops bundle orders for region " + region
		if i < shopify {
			statement = "Shopify order sync drops bundle orders for region " + region
		}
		out = append(out, theme.Theme{
			ID:           fmt.Sprintf("t%d", i+1),
			Statement:    statement,
			Subject:      "Integrations",
			Origin:       theme.OriginResearch,
			InterviewIDs: []string{fmt.Sprintf("i%d", i+1)},
		})
	}
	return out
}

func wideSettings() Settings {
	s := DefaultSettings()
	s.MNNK = 8
	s.MaxSuggestionsPerSubject = 100
	s.MaxClusterSize = 7
	return s
}

func TestRunSplitsOversizedGroupOnEntity(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, wideSettings(), constantProvider())
	result, err := engine.Run(context.Background(), orderSyncThemes(5))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Clusters) != 2 {
		t.Fatalf("unexpected cluster count: got %d want 2", len(result.Clusters))
	}
	first, second := result.Clusters[0], result.Clusters[1]
	if !reflect.DeepEqual(first.Members, []string{"t1", "t2", "t3", "t4", "t5"}) || first.ID != "cluster-001" {
		t.Fatalf("unexpected first cluster: %+v", first)
	}
	if !reflect.DeepEqual(second.Members, []string{"t6", "t7", "t8", "t9"}) || second.ID != "cluster-002" {
		t.Fatalf("unexpected second cluster: %+v", second)
	}
	if first.CanonicalID != "t5" || second.CanonicalID != "t8" {
		t.Fatalf("unexpected canonicals: %q %q", first.CanonicalID, second.CanonicalID)
	}
	if len(result.Unclustered) != 0 || len(result.Singletons) != 0 {
		t.Fatalf("unexpected leftovers: %+v %v", result.Unclustered, result.Singletons)
	}

	split := findPair(t, result, "t1|t6")
	if split.Decision != DecisionDeny || split.Stage != StageClusterSplit {
		t.Fatalf("cross-partition pair must be split: %+v", split)
	}
	assertMergesClustered(t, result)
}

func TestRunOverflowKeepsStrongestMembers(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, wideSettings(), constantProvider())
	result, err := engine.Run(context.Background(), orderSyncThemes(0))
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(result.Clusters) != 1 || len(result.Clusters[0].Members) != 7 {
		t.Fatalf("unexpected clusters: %+v", result.Clusters)
	}
	if len(result.Unclustered) != 2 {
		t.Fatalf("unexpected unclustered: %+v", result.Unclustered)
	}
	for _, u := range result.Unclustered {
		if u.Reason != StageClusterOverflow {
			t.Fatalf("unexpected reason for %s: %q", u.ThemeID, u.Reason)
		}
	}
	for _, pair := range result.Pairs {
		if pair.ThemeB == "t8" || pair.ThemeB == "t9" {
			if pair.Stage != StageClusterOverflow {
				t.Fatalf("unexpected stage for %s: %q", pair.Key(), pair.Stage)
			}
		}
	}
	assertMergesClustered(t, result)
	assertPartition(t, result, []string{"t1", "t2", "t3", "t4", "t5", "t6", "t7", "t8", "t9"})
}

func TestRunIsDeterministicUnderInputOrder(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, wideSettings(), constantProvider())
	forward := orderSyncThemes(5)
	reversed := slices.Clone(forward)
	slices.Reverse(reversed)

	a, err := engine.Run(context.Background(), forward)
	if err != nil {
		t.Fatalf("run forward: %v", err)
	}
	b, err := engine.Run(context.Background(), reversed)
	if err != nil {
		t.Fatalf("run reversed: %v", err)
	}

	if !reflect.DeepEqual(a.Pairs, b.Pairs) {
		t.Fatalf("pairs differ between input orders")
	}
	if !reflect.DeepEqual(a.Clusters, b.Clusters) {
		t.Fatalf("clusters differ between input orders")
	}
	if !reflect.DeepEqual(a.Unclustered, b.Unclustered) || !reflect.DeepEqual(a.Singletons, b.Singletons) {
		t.Fatalf("leftovers differ between input orders")
	}
}

func TestRunRecordsUnavailableEmbeddings(t *testing.T) {
	t.Parallel()

	vectors := pricingVectors()
	delete(vectors, pricingB)
	engine := newTestEngine(t, DefaultSettings(), mappedProvider(vectors))
	result, err := engine.Run(context.Background(), []theme.Theme{
		{ID: "a", Statement: pricingA, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i1"}},
		{ID: "b", Statement: pricingB, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i2"}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	pair := findPair(t, result, "a|b")
	if pair.Decision != DecisionDeny || pair.Stage != StageGated || pair.Cosine != 0 || pair.Composite != nil {
		t.Fatalf("unexpected pair: %+v", pair)
	}
	found := false
	for _, entry := range result.Audit {
		if entry.Kind == AuditEmbeddingUnavailable && entry.ThemeID == "b" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected embedding_unavailable audit entry, got %+v", result.Audit)
	}
	if result.Stats.EmbeddingFailures != 1 {
		t.Fatalf("unexpected embedding failure count: %d", result.Stats.EmbeddingFailures)
	}
}

func TestRunQuarantinesMalformedThemes(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), mappedProvider(pricingVectors()))
	result, err := engine.Run(context.Background(), []theme.Theme{
		{ID: "b", Statement: pricingB, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i2"}},
		{ID: "a", Statement: pricingA, Origin: theme.OriginResearch, Subject: "Pricing", InterviewIDs: []string{"i1"}},
		{ID: "a", Statement: "Duplicate of an earlier theme", Origin: theme.OriginResearch, Subject: "Pricing"},
		{ID: "blank", Statement: "   ", Origin: theme.OriginResearch, Subject: "Pricing"},
		{ID: "noise", Statement: "?!", Origin: theme.OriginResearch, Subject: "Pricing"},
		{ID: "d", Statement: "Dark mode would be nice", Origin: theme.OriginResearch, Subject: "Design"},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.Stats.Skipped != 3 || len(result.Audit) != 3 {
		t.Fatalf("unexpected audit: %+v", result.Audit)
	}
	for _, entry := range result.Audit {
		if entry.Kind != AuditMalformedTheme {
			t.Fatalf("unexpected audit kind: %+v", entry)
		}
	}
	assertPartition(t, result, []string{"a", "b", "d"})
	if len(result.Clusters) != 1 || result.Clusters[0].CanonicalID != "b" {
		t.Fatalf("first occurrence of a duplicated id must win: %+v", result.Clusters)
	}
}

func TestRunCancelled(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), mappedProvider(pricingVectors()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Run(ctx, []theme.Theme{
		{ID: "a", Statement: pricingA, Origin: theme.OriginResearch, Subject: "Pricing"},
		{ID: "b", Statement: pricingB, Origin: theme.OriginResearch, Subject: "Pricing"},
	}); err == nil {
		t.Fatalf("expected cancelled run to fail")
	}
}

func TestComparePairRejectsSameTheme(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), constantProvider())
	a := theme.Theme{ID: "a", Statement: pricingA, Subject: "Pricing", Origin: theme.OriginResearch}
	if _, err := engine.ComparePair(context.Background(), a, a); err == nil {
		t.Fatalf("expected comparing a theme with itself to fail")
	}
}

func TestComparePairReportsUnavailableEmbedding(t *testing.T) {
	t.Parallel()

	engine := newTestEngine(t, DefaultSettings(), mappedProvider(pricingVectors()))
	_, err := engine.ComparePair(context.Background(),
		theme.Theme{ID: "a", Statement: pricingA, Subject: "Pricing", Origin: theme.OriginResearch},
		theme.Theme{ID: "z", Statement: "Pricing is never explained to buyers", Subject: "Pricing", Origin: theme.OriginResearch},
	)
	if !errors.Is(err, ErrEmbeddingUnavailable) {
		t.Fatalf("unexpected error: got %v want %v", err, ErrEmbeddingUnavailable)
	}
}
