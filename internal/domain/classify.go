package domain

import "context"

// KeywordClassifier flags text as relevant when it mentions any disaster
// keyword. It backs the remote model when that is unavailable.
type KeywordClassifier struct {
	keywords keywordSet
}

// DefaultClassifierKeywords is the vocabulary used when no table overrides it.
var DefaultClassifierKeywords = []string{
	"earthquake", "fire", "flood", "tornado", "hurricane", "wildfire",
	"emergency", "disaster", "evacuation", "rescue", "urgent", "help",
	"explosion", "collapse", "storm", "tsunami", "landslide", "avalanche",
	"accident", "crash", "incident", "alert", "warning", "danger",
}

// NewKeywordClassifier builds a classifier over the given vocabulary.
func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	return &KeywordClassifier{keywords: newKeywordSet(keywords)}
}

// Classify never fails. Confidence grows by 0.1 per matching term from a
// base of 0.5, capped at 0.95; irrelevant text reports 0.3.
func (k *KeywordClassifier) Classify(_ context.Context, text string) (Classification, error) {
	hits := k.keywords.count(text)
	if hits == 0 {
		return Classification{Relevant: false, Confidence: 0.3, Method: "keyword_matching"}, nil
	}
	return Classification{
		Relevant:   true,
		Confidence: min(0.5+float64(hits)*0.1, 0.95),
		Method:     "keyword_matching",
	}, nil
}
