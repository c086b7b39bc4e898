package dedup

import (
	"sort"

	"horse.fit/themedup/internal/embedding"
)

// assembly is a cluster under construction, addressed by profile index.
type assembly struct {
	members   []int
	canonical int
	centroid  []float64
	facet     string
	evidence  []int
	cosines   []float64
}

// linkEvidence attaches each interview theme to at most one cluster: the
// closest centroid with the same facet, at or above the evidence threshold,
// with no conflict against the canonical member. Linking never adds members.
func linkEvidence(assemblies []*assembly, profiles []*profile, s Settings) int {
	links := 0
	for _, p := range profiles {
		if p.theme.Mergeable() || p.vector == nil {
			continue
		}

		best, bestCos := -1, 0.0
		for i, a := range assemblies {
			if a.facet != p.features.Facet {
				continue
			}
			cos := clamp01(embedding.Cosine(p.vector, a.centroid))
			if cos < s.EvidenceMinCosine {
				continue
			}
			if len(evidenceConflicts(profiles[a.canonical], p, s)) > 0 {
				continue
			}
			if best < 0 || cos > bestCos {
				best, bestCos = i, cos
			}
		}
		if best < 0 {
			continue
		}
		assemblies[best].evidence = append(assemblies[best].evidence, p.index)
		assemblies[best].cosines = append(assemblies[best].cosines, round4(bestCos))
		links++
	}
	return links
}

// evidenceConflicts runs every conflict rule except the origin rule, which
// an interview theme always trips and which only governs merging.
func evidenceConflicts(canonical, evidence *profile, s Settings) []conflict {
	var out []conflict
	for _, rule := range conflictRules {
		if rule.name == ConflictOrigin {
			continue
		}
		if detail, fired := rule.check(canonical, evidence, s); fired {
			out = append(out, conflict{rule: rule.name, detail: detail})
		}
	}
	return out
}

// interviewsCovered counts distinct interview ids over members and evidence.
func interviewsCovered(a *assembly, profiles []*profile) int {
	seen := make(map[string]struct{})
	for _, idx := range append(append([]int(nil), a.members...), a.evidence...) {
		for _, interviewID := range profiles[idx].theme.InterviewIDs {
			seen[interviewID] = struct{}{}
		}
	}
	return len(seen)
}

func distinctInterviews(profiles []*profile) int {
	seen := make(map[string]struct{})
	for _, p := range profiles {
		for _, interviewID := range p.theme.InterviewIDs {
			seen[interviewID] = struct{}{}
		}
	}
	return len(seen)
}

func evidenceLinks(a *assembly, profiles []*profile) []EvidenceLink {
	out := make([]EvidenceLink, 0, len(a.evidence))
	for i, idx := range a.evidence {
		out = append(out, EvidenceLink{
			ThemeID:      profiles[idx].id(),
			Cosine:       a.cosines[i],
			InterviewIDs: append([]string(nil), profiles[idx].theme.InterviewIDs...),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ThemeID < out[j].ThemeID })
	return out
}
