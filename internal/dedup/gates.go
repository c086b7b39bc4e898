package dedup

import (
	"fmt"
	"strings"

	"horse.fit/themedup/internal/lexical"
)

// Conflict rule names, in evaluation order.
const (
	ConflictOrigin       = "origin"
	ConflictLanguage     = "language"
	ConflictDeliveryMode = "delivery_mode"
	ConflictSystem       = "system"
	ConflictSentiment    = "sentiment"
	ConflictStakeholder  = "stakeholder"
	ConflictModality     = "modality"
	ConflictTemporal     = "temporal"
)

type conflict struct {
	rule   string
	detail string
}

type conflictRule struct {
	name  string
	check func(a, b *profile, s Settings) (string, bool)
}

// conflictRules deny a pair whatever its scores. Every check is symmetric.
var conflictRules = []conflictRule{
	{ConflictOrigin, originConflict},
	{ConflictLanguage, languageConflict},
	{ConflictDeliveryMode, deliveryModeConflict},
	{ConflictSystem, systemConflict},
	{ConflictSentiment, sentimentConflict},
	{ConflictStakeholder, stakeholderConflict},
	{ConflictModality, modalityConflict},
	{ConflictTemporal, temporalConflict},
}

func detectConflicts(a, b *profile, s Settings) []conflict {
	var out []conflict
	for _, rule := range conflictRules {
		if detail, fired := rule.check(a, b, s); fired {
			out = append(out, conflict{rule: rule.name, detail: detail})
		}
	}
	return out
}

func originConflict(a, b *profile, _ Settings) (string, bool) {
	if a.theme.Mergeable() && b.theme.Mergeable() {
		return "", false
	}
	return fmt.Sprintf("%s vs %s origin; interview themes are evidence only", a.theme.Origin, b.theme.Origin), true
}

func languageConflict(a, b *profile, s Settings) (string, bool) {
	if !s.LanguageGate || a.language == "" || b.language == "" || a.language == b.language {
		return "", false
	}
	return fmt.Sprintf("%s vs %s", a.language, b.language), true
}

func deliveryModeConflict(a, b *profile, _ Settings) (string, bool) {
	va, vb := a.features.Vocab, b.features.Vocab
	opposed := (va.Only(lexical.VocabAutomated, lexical.VocabManual) && vb.Only(lexical.VocabManual, lexical.VocabAutomated)) ||
		(va.Only(lexical.VocabManual, lexical.VocabAutomated) && vb.Only(lexical.VocabAutomated, lexical.VocabManual))
	if !opposed || va.DeliveryContext.Intersects(vb.DeliveryContext) {
		return "", false
	}
	return "automated vs manual delivery", true
}

func systemConflict(a, b *profile, _ Settings) (string, bool) {
	if len(a.named) == 0 || len(b.named) == 0 || a.named.Intersects(b.named) {
		return "", false
	}
	return fmt.Sprintf("%s vs %s", strings.Join(a.named.Sorted(), ","), strings.Join(b.named.Sorted(), ",")), true
}

func sentimentConflict(a, b *profile, s Settings) (string, bool) {
	pa := a.features.Sentiment.Polarity(s.SentimentMargin)
	pb := b.features.Sentiment.Polarity(s.SentimentMargin)
	if pa*pb != -1 {
		return "", false
	}
	return fmt.Sprintf("%s vs %s", polarityLabel(pa), polarityLabel(pb)), true
}

func stakeholderConflict(a, b *profile, _ Settings) (string, bool) {
	va, vb := a.features.Vocab, b.features.Vocab
	opposed := (va.Only(lexical.VocabOperations, lexical.VocabFinance) && vb.Only(lexical.VocabFinance, lexical.VocabOperations)) ||
		(va.Only(lexical.VocabFinance, lexical.VocabOperations) && vb.Only(lexical.VocabOperations, lexical.VocabFinance))
	if !opposed || va.StakeholderBridge.Intersects(vb.StakeholderBridge) {
		return "", false
	}
	return "operations vs finance stakeholders", true
}

// Either side's bridging term clears the modality conflict. Unlike the
// stakeholder rule, the bridge need not be shared.
func modalityConflict(a, b *profile, _ Settings) (string, bool) {
	va, vb := a.features.Vocab, b.features.Vocab
	opposed := (va.Only(lexical.VocabPricing, lexical.VocabSupport) && vb.Only(lexical.VocabSupport, lexical.VocabPricing)) ||
		(va.Only(lexical.VocabSupport, lexical.VocabPricing) && vb.Only(lexical.VocabPricing, lexical.VocabSupport))
	if !opposed || len(va.ModalityBridge) > 0 || len(vb.ModalityBridge) > 0 {
		return "", false
	}
	return "pricing vs support", true
}

func temporalConflict(a, b *profile, _ Settings) (string, bool) {
	va, vb := a.features.Vocab, b.features.Vocab
	opposed := (va.Only(lexical.VocabPilot, lexical.VocabProduction) && vb.Only(lexical.VocabProduction, lexical.VocabPilot)) ||
		(va.Only(lexical.VocabProduction, lexical.VocabPilot) && vb.Only(lexical.VocabPilot, lexical.VocabProduction))
	if !opposed {
		return "", false
	}
	return "pilot vs production", true
}

func polarityLabel(p int) string {
	switch p {
	case 1:
		return "positive"
	case -1:
		return "negative"
	default:
		return "neutral"
	}
}

// thresholdFailures applies the hard signal gates for the pair's scope.
func thresholdFailures(sig signals, scope PairScope, s Settings) []string {
	var failed []string
	switch scope {
	case ScopeWithinSubject:
		if sig.cosine < s.WithinSubjectMinCosine {
			failed = append(failed, fmt.Sprintf("cosine %.2f < %.2f", sig.cosine, s.WithinSubjectMinCosine))
		}
		if sig.jaccard < s.WithinSubjectMinJaccard {
			failed = append(failed, fmt.Sprintf("jaccard %.2f < %.2f", sig.jaccard, s.WithinSubjectMinJaccard))
		}
	case ScopeCrossSubject:
		if sig.cosine < s.CrossSubjectMinCosine {
			failed = append(failed, fmt.Sprintf("cosine %.2f < %.2f", sig.cosine, s.CrossSubjectMinCosine))
		}
		if sig.entityOverlap < s.CrossSubjectMinEntityOverlap {
			failed = append(failed, fmt.Sprintf("entity_overlap %.2f < %.2f", sig.entityOverlap, s.CrossSubjectMinEntityOverlap))
		}
	}
	return failed
}
