package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// Placeholder tokens substituted for volatile spans. They are plain lowercase
// words so a second pass leaves them untouched.
const (
	URLToken    = "urltoken"
	EmailToken  = "emailtoken"
	DateToken   = "datetoken"
	NumberToken = "numtoken"
)

var (
	urlPattern   = regexp.MustCompile(`(?:https?://|www\.)[^\s]+`)
	emailPattern = regexp.MustCompile(`[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}`)
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`\b\d{4}-\d{1,2}-\d{1,2}\b`),
		regexp.MustCompile(`\b\d{1,2}/\d{1,2}/\d{2,4}\b`),
		regexp.MustCompile(`\b(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?\s+\d{1,2}(?:st|nd|rd|th)?,?\s+\d{4}\b`),
		regexp.MustCompile(`\b\d{1,2}(?:st|nd|rd|th)?\s+(?:jan|feb|mar|apr|may|jun|jul|aug|sep|sept|oct|nov|dec)[a-z]*\.?,?\s+\d{4}\b`),
		regexp.MustCompile(`\bq[1-4]\s+\d{4}\b`),
	}
)

// synonymPhrases collapses domain jargon to one canonical token. Keys are
// matched longest-first against the token stream; no value may appear inside
// a key, which keeps the rewrite idempotent.
var synonymPhrases = map[string]string{
	"warehouse management":        "3pl",
	"warehouse management system": "3pl",
	"wms":                         "3pl",
	"third party logistics":       "3pl",
	"third-party logistics":       "3pl",
	"webhook":                     "api",
	"webhooks":                    "api",
	"portal":                      "api",
	"portals":                     "api",
	"apis":                        "api",
	"rest endpoint":               "api",
	"rest endpoints":              "api",
	"clients":                     "customers",
	"client":                      "customers",
	"customer":                    "customers",
	"self serve":                  "self-service",
	"self service":                "self-service",
	"selfserve":                   "self-service",
	"proof of concept":            "pilot",
	"poc":                         "pilot",
	"transparent":                 "clear",
	"transparency":                "clarity",
}

var maxSynonymWords = longestSynonym()

// Normalize canonicalizes a theme statement for comparison. It is pure and
// deterministic, and Normalize(Normalize(x)) == Normalize(x).
func Normalize(input string) string {
	text := strings.TrimSpace(input)
	if text == "" {
		return ""
	}

	text = strings.ToLower(norm.NFKC.String(text))
	text = urlPattern.ReplaceAllString(text, " "+URLToken+" ")
	text = emailPattern.ReplaceAllString(text, " "+EmailToken+" ")
	for _, pattern := range datePatterns {
		text = pattern.ReplaceAllString(text, " "+DateToken+" ")
	}

	tokens := strings.Fields(stripPunctuation(text))
	if len(tokens) == 0 {
		return ""
	}
	for i, token := range tokens {
		if isNumeric(token) {
			tokens[i] = NumberToken
		}
	}

	return strings.Join(collapseSynonyms(tokens), " ")
}

// Tokens splits normalized text into its word tokens.
func Tokens(normalized string) []string {
	return strings.Fields(normalized)
}

func stripPunctuation(text string) string {
	runes := []rune(text)
	var b strings.Builder
	b.Grow(len(text))
	for i, r := range runes {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
		case r == '&' || r == '+':
			b.WriteRune(r)
		case r == '-':
			// Hyphens survive only inside words ("self-service", "24-7").
			if between(runes, i, isWordRune) {
				b.WriteRune(r)
			} else {
				b.WriteRune(' ')
			}
		case r == '.' || r == ',':
			// Decimal and thousands separators ("1,200", "99.9").
			if between(runes, i, unicode.IsDigit) {
				b.WriteRune(r)
			} else {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func between(runes []rune, i int, match func(rune) bool) bool {
	return i > 0 && i < len(runes)-1 && match(runes[i-1]) && match(runes[i+1])
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsNumber(r)
}

func isNumeric(token string) bool {
	digits := 0
	for _, r := range token {
		switch {
		case unicode.IsDigit(r):
			digits++
		case r == '-' || r == '.' || r == ',':
		default:
			return false
		}
	}
	return digits > 0
}

func collapseSynonyms(tokens []string) []string {
	out := make([]string, 0, len(tokens))
	for i := 0; i < len(tokens); {
		matched := false
		for width := min(maxSynonymWords, len(tokens)-i); width >= 1; width-- {
			phrase := strings.Join(tokens[i:i+width], " ")
			if canonical, ok := synonymPhrases[phrase]; ok {
				out = append(out, canonical)
				i += width
				matched = true
				break
			}
		}
		if !matched {
			out = append(out, tokens[i])
			i++
		}
	}
	return out
}

func longestSynonym() int {
	longest := 1
	for phrase := range synonymPhrases {
		if n := len(strings.Fields(phrase)); n > longest {
			longest = n
		}
	}
	return longest
}
