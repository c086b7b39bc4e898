package dedup

import (
	"fmt"
	"math"
	"strings"

	"horse.fit/themedup/internal/embedding"
	"horse.fit/themedup/internal/lexical"
)

type signals struct {
	cosine             float64
	jaccard            float64
	entityOverlap      float64
	sentimentAlignment float64
	domain             float64
}

// computeSignals is symmetric in a and b.
func computeSignals(a, b *profile, scope PairScope) signals {
	entities := lexical.Jaccard(a.features.Entities, b.features.Entities)
	sig := signals{
		cosine:             clamp01(embedding.Cosine(a.vector, b.vector)),
		jaccard:            lexical.Jaccard(a.features.Tokens, b.features.Tokens),
		entityOverlap:      entities,
		sentimentAlignment: sentimentAlignment(a.features.Sentiment, b.features.Sentiment),
	}

	switch scope {
	case ScopeCrossSubject:
		sig.domain = entities
	default:
		// Same subject and facet already overlap in domain; entity agreement
		// adds the rest. Two statements naming no entity agree fully.
		agreement := entities
		if len(a.features.Entities) == 0 && len(b.features.Entities) == 0 {
			agreement = 1
		}
		sig.domain = 0.5 + 0.5*agreement
	}
	return sig
}

func sentimentAlignment(a, b lexical.Sentiment) float64 {
	da, db := a.Direction(), b.Direction()
	switch {
	case da == 0 || db == 0:
		return 0.5
	case da == db:
		return 1
	default:
		return 0
	}
}

func compositeScore(sig signals) float64 {
	score := weightCosine*sig.cosine +
		weightJaccard*sig.jaccard +
		weightSentiment*sig.sentimentAlignment +
		weightDomain*sig.domain
	return clamp01(score)
}

func bandFor(composite, cosine float64, s Settings) Band {
	switch {
	case composite >= s.HighMinComposite && cosine >= s.HighMinCosine:
		return BandHigh
	case composite >= s.MediumMinComposite && cosine >= s.MediumMinCosine:
		return BandMedium
	default:
		return BandLow
	}
}

// scorePair takes a pair from Proposed through Gated, Scored and Banded. A
// pair that leaves with StageAccepted is admitted to MNN filtering.
func scorePair(a, b *profile, facet string, scope PairScope, s Settings) PairRecord {
	if b.id() < a.id() {
		a, b = b, a
	}

	sig := computeSignals(a, b, scope)
	record := PairRecord{
		ThemeA:             a.id(),
		ThemeB:             b.id(),
		SubjectA:           a.theme.Subject,
		SubjectB:           b.theme.Subject,
		Facet:              facet,
		Scope:              scope,
		Cosine:             round4(sig.cosine),
		Jaccard:            round4(sig.jaccard),
		EntityOverlap:      round4(sig.entityOverlap),
		SentimentAlignment: sig.sentimentAlignment,
		Decision:           DecisionDeny,
		Stage:              StageGated,
	}

	conflicts := detectConflicts(a, b, s)
	failures := thresholdFailures(sig, scope, s)
	if len(failures) == 0 {
		composite := round4(compositeScore(sig))
		record.Composite = &composite
		record.Band = bandFor(composite, sig.cosine, s)
	}

	if len(conflicts) > 0 {
		reasons := make([]string, 0, len(conflicts))
		for _, c := range conflicts {
			record.Conflicts = append(record.Conflicts, c.rule)
			reasons = append(reasons, c.rule+" conflict ("+c.detail+")")
		}
		record.Rationale = "deny: " + strings.Join(reasons, "; ")
		return record
	}
	if len(failures) > 0 {
		record.Rationale = "deny: below threshold (" + strings.Join(failures, ", ") + ")"
		return record
	}

	if record.Band == BandLow && !s.SurfaceLowConfidence {
		record.Stage = StageBanded
		record.Rationale = fmt.Sprintf("deny: low confidence (composite %.2f, cosine %.2f)", *record.Composite, record.Cosine)
		return record
	}

	record.Decision = DecisionMerge
	record.Stage = StageAccepted
	record.Rationale = fmt.Sprintf(
		"merge: %s confidence (composite %.2f, cosine %.2f, jaccard %.2f)",
		record.Band, *record.Composite, record.Cosine, record.Jaccard,
	)
	return record
}

// scorePairSafe contains a failure to the pair being scored.
func scorePairSafe(a, b *profile, facet string, scope PairScope, s Settings) (record PairRecord, failure error) {
	defer func() {
		if r := recover(); r != nil {
			failure = fmt.Errorf("scoring panicked: %v", r)
			record = PairRecord{
				Facet:     facet,
				Scope:     scope,
				Decision:  DecisionDeny,
				Stage:     StageScoringFailed,
				Rationale: "deny: scoring failed",
			}
			if a != nil && b != nil {
				record.ThemeA, record.ThemeB = orderedIDs(a.id(), b.id())
				record.SubjectA, record.SubjectB = a.theme.Subject, b.theme.Subject
			}
		}
	}()
	return scorePair(a, b, facet, scope, s), nil
}

func orderedIDs(x, y string) (string, string) {
	if y < x {
		return y, x
	}
	return x, y
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
