package lexical

// negationWindow is how many following words a negator flips.
const negationWindow = 3

// Sentiment holds keyword counts after negation handling.
type Sentiment struct {
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

// Net is Positive minus Negative.
func (s Sentiment) Net() int {
	return s.Positive - s.Negative
}

// Direction returns +1, -1 or 0 depending on the sign of Net.
func (s Sentiment) Direction() int {
	switch net := s.Net(); {
	case net > 0:
		return 1
	case net < 0:
		return -1
	default:
		return 0
	}
}

// Polarity reports an unambiguous direction: +1 or -1 when the count
// difference reaches margin, otherwise 0.
func (s Sentiment) Polarity(margin int) int {
	if margin < 1 {
		margin = 1
	}
	net := s.Net()
	switch {
	case net >= margin:
		return 1
	case -net >= margin:
		return -1
	default:
		return 0
	}
}

func scoreSentiment(words []string) Sentiment {
	var out Sentiment
	negatedUntil := -1
	for i, word := range words {
		if _, ok := negators[word]; ok {
			negatedUntil = i + negationWindow
			continue
		}

		polarity := 0
		if _, ok := positiveWords[word]; ok {
			polarity = 1
		} else if _, ok := negativeWords[word]; ok {
			polarity = -1
		}
		if polarity == 0 {
			continue
		}
		if i <= negatedUntil {
			polarity = -polarity
			negatedUntil = -1
		}

		if polarity > 0 {
			out.Positive++
		} else {
			out.Negative++
		}
	}
	return out
}

var negators = setOf(
	"not", "no", "never", "none", "cannot", "without", "hardly", "barely", "lack", "lacks",
	"don", "doesn", "didn", "isn", "aren", "wasn", "weren", "won", "nothing", "neither", "nor",
)

var positiveWords = setOf(
	"fast", "quick", "quickly", "easy", "easier", "helpful", "responsive", "reliable",
	"clear", "transparent", "great", "good", "love", "loves", "loved", "intuitive", "simple",
	"smooth", "valuable", "excellent", "satisfied", "happy", "praise", "praised", "efficient",
	"flexible", "affordable", "stable", "seamless", "appreciate", "appreciated", "improved",
	"better", "best", "fantastic", "friendly", "powerful", "convenient", "accurate", "useful",
	"enjoy", "enjoys", "impressed", "trust", "trusted", "fair",
)

var negativeWords = setOf(
	"slow", "slowly", "difficult", "hard", "unhelpful", "unresponsive", "unreliable",
	"confusing", "opaque", "poor", "bad", "hate", "hates", "frustrated", "frustrating",
	"frustration", "painful", "pain", "expensive", "broken", "buggy", "complex",
	"complicated", "clunky", "lacking", "missing", "worse", "worst", "unclear", "hidden",
	"delay", "delays", "delayed", "fails", "failing", "failure", "failures", "churn",
	"complain", "complaints", "tedious", "annoying", "overpriced", "inaccurate", "unstable",
	"outage", "outages", "disappointed", "disappointing", "struggle", "struggles", "unfair",
)
