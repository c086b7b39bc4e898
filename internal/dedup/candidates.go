package dedup

import (
	"sort"

	"horse.fit/themedup/internal/lexical"
	"horse.fit/themedup/internal/textnorm"
	"horse.fit/themedup/internal/theme"
)

// profile holds everything derived from one theme for a run. It is written
// once while profiles are built (vector after embedding) and only read after.
type profile struct {
	index      int
	theme      theme.Theme
	normalized string
	features   lexical.Features
	named      lexical.TokenSet
	language   string
	vector     []float64
}

// LanguageDetector returns an ISO 639-1 code for text, or "" when unsure.
type LanguageDetector func(text string) string

func buildProfile(index int, t theme.Theme, detect LanguageDetector) *profile {
	normalized := textnorm.Normalize(t.Statement)
	features := lexical.Extract(normalized)

	language := theme.NormalizeLanguage(t.Language)
	if language == "" && detect != nil {
		language = detect(t.Statement)
	}

	return &profile{
		index:      index,
		theme:      t,
		normalized: normalized,
		features:   features,
		named:      lexical.NamedEntities(features.Entities),
		language:   language,
	}
}

func (p *profile) id() string {
	return p.theme.ID
}

// candidate is an unordered pair of profile indexes with a < b.
type candidate struct {
	a, b  int
	scope PairScope
}

// bucket holds the candidates that share a facet. Buckets share no mutable
// state and are scored independently.
type bucket struct {
	facet      string
	candidates []candidate
}

// buildCandidates restricts the cross product to pairs of mergeable themes
// that share a facet. Same subject makes a within-subject pair, otherwise a
// cross-subject pair. Profiles must be sorted by theme id.
func buildCandidates(profiles []*profile) []bucket {
	byFacet := make(map[string][]int)
	for _, p := range profiles {
		if !p.theme.Mergeable() || p.normalized == "" {
			continue
		}
		byFacet[p.features.Facet] = append(byFacet[p.features.Facet], p.index)
	}

	facets := make([]string, 0, len(byFacet))
	for facet := range byFacet {
		facets = append(facets, facet)
	}
	sort.Strings(facets)

	buckets := make([]bucket, 0, len(facets))
	for _, facet := range facets {
		members := byFacet[facet]
		if len(members) < 2 {
			continue
		}
		pairs := make([]candidate, 0, len(members)*(len(members)-1)/2)
		for i := 0; i < len(members); i++ {
			for j := i + 1; j < len(members); j++ {
				a, b := profiles[members[i]], profiles[members[j]]
				scope := ScopeCrossSubject
				if a.theme.Subject == b.theme.Subject {
					scope = ScopeWithinSubject
				}
				pairs = append(pairs, candidate{a: a.index, b: b.index, scope: scope})
			}
		}
		buckets = append(buckets, bucket{facet: facet, candidates: pairs})
	}
	return buckets
}
