package lexical

import (
	"sort"
	"strings"

	"horse.fit/themedup/internal/textnorm"
)

const maxNGram = 3

// TokenSet is an unordered set of content tokens (unigrams and n-grams).
type TokenSet map[string]struct{}

// Features are the lexical signals derived from one normalized statement.
type Features struct {
	Tokens    TokenSet
	Facet     string
	Entities  TokenSet
	Sentiment Sentiment
	Vocab     Vocab
}

// Extract derives content tokens, facet, entity mentions, sentiment counts and
// conflict vocabulary from normalized text. The same input always yields the
// same output.
func Extract(normalized string) Features {
	words := textnorm.Tokens(normalized)
	content := contentWords(words)
	tokens := ngrams(content, maxNGram)

	return Features{
		Tokens:    tokens,
		Facet:     PrimaryFacet(tokens),
		Entities:  entityMentions(tokens),
		Sentiment: scoreSentiment(words),
		Vocab:     classifyVocab(tokens),
	}
}

// ContentTokens returns the stop-word filtered unigram/bigram/trigram set.
func ContentTokens(normalized string) TokenSet {
	return ngrams(contentWords(textnorm.Tokens(normalized)), maxNGram)
}

// Jaccard returns |a∩b| / |a∪b|, or 0 when either set is empty.
func Jaccard(a, b TokenSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	small, large := a, b
	if len(small) > len(large) {
		small, large = large, small
	}

	intersection := 0
	for token := range small {
		if _, ok := large[token]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}

// Has reports whether token is in the set.
func (s TokenSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// HasAny reports whether any of the given tokens is in the set.
func (s TokenSet) HasAny(tokens ...string) bool {
	for _, token := range tokens {
		if s.Has(token) {
			return true
		}
	}
	return false
}

// Intersects reports whether the two sets share at least one token.
func (s TokenSet) Intersects(other TokenSet) bool {
	small, large := s, other
	if len(small) > len(large) {
		small, large = large, small
	}
	for token := range small {
		if large.Has(token) {
			return true
		}
	}
	return false
}

// Sorted returns the set members in lexical order.
func (s TokenSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for token := range s {
		out = append(out, token)
	}
	sort.Strings(out)
	return out
}

func contentWords(words []string) []string {
	out := make([]string, 0, len(words))
	for _, word := range words {
		if _, stop := stopWords[word]; stop {
			continue
		}
		out = append(out, word)
	}
	return out
}

func ngrams(words []string, maxN int) TokenSet {
	if len(words) == 0 {
		return TokenSet{}
	}
	set := make(TokenSet, len(words)*maxN)
	for n := 1; n <= maxN; n++ {
		for i := 0; i+n <= len(words); i++ {
			set[strings.Join(words[i:i+n], " ")] = struct{}{}
		}
	}
	return set
}

func setOf(words ...string) TokenSet {
	set := make(TokenSet, len(words))
	for _, word := range words {
		set[word] = struct{}{}
	}
	return set
}

var stopWords = setOf(
	"a", "about", "above", "after", "again", "all", "also", "am", "an", "and", "any", "are",
	"as", "at", "be", "because", "been", "before", "being", "between", "both", "but", "by",
	"can", "could", "did", "do", "does", "doing", "during", "each", "even", "every", "for",
	"from", "further", "had", "has", "have", "having", "he", "her", "here", "hers", "him",
	"his", "how", "i", "if", "in", "into", "is", "it", "its", "itself", "just", "let", "me",
	"more", "most", "much", "my", "no", "nor", "not", "of", "off", "on", "once", "only", "or",
	"other", "our", "ours", "out", "over", "own", "s", "same", "she", "should", "so", "some",
	"such", "t", "than", "that", "the", "their", "theirs", "them", "then", "there", "these",
	"they", "this", "those", "through", "to", "too", "under", "until", "up", "us", "very",
	"via", "was", "we", "were", "what", "when", "where", "which", "while", "who", "whom",
	"why", "will", "with", "would", "you", "your", "yours",
	"don", "doesn", "didn", "isn", "aren", "wasn", "weren", "won", "cannot", "never",
	"many", "often", "really", "still", "within", "across", "like",
	"want", "wants", "wanted", "need", "needs", "request", "requests", "requested", "ask",
	"asks", "asked", "wish", "wishes",
)
