package domain

import "math"

// ScoringPolicy holds the tunable weights and keyword sets for Scorer.
type ScoringPolicy struct {
	UrgencyKeywords  []string
	DisasterKeywords []string
	ActionKeywords   []string

	UrgencyBonus      float64
	DisasterBonus     float64
	ActionBonus       float64
	CoordinateBonus   float64 // coordinate resolved at or above the threshold
	TextLocationBonus float64 // weaker, textual location evidence only

	CoordinateConfidenceThreshold float64
}

// DefaultScoringPolicy returns the weights the service ships with.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{
		UrgencyKeywords: []string{
			"urgent", "emergency", "help", "breaking", "critical", "severe", "major",
			"sos", "trapped", "evacuate", "immediately",
		},
		DisasterKeywords: []string{
			"fire", "wildfire", "flood", "flooding", "earthquake", "quake", "tornado",
			"hurricane", "storm", "tsunami", "landslide", "explosion", "avalanche",
		},
		ActionKeywords: []string{
			"evacuation", "rescue", "emergency services", "first responders",
		},
		UrgencyBonus:                  0.2,
		DisasterBonus:                 0.15,
		ActionBonus:                   0.1,
		CoordinateBonus:               0.15,
		TextLocationBonus:             0.1,
		CoordinateConfidenceThreshold: 0.7,
	}
}

// Scorer computes alert priority. It is safe for concurrent use.
type Scorer struct {
	policy   ScoringPolicy
	urgency  keywordSet
	disaster keywordSet
	action   keywordSet
}

// NewScorer compiles the policy's keyword sets.
func NewScorer(policy ScoringPolicy) *Scorer {
	return &Scorer{
		policy:   policy,
		urgency:  newKeywordSet(policy.UrgencyKeywords),
		disaster: newKeywordSet(policy.DisasterKeywords),
		action:   newKeywordSet(policy.ActionKeywords),
	}
}

// Policy returns the policy the scorer was built from.
func (s *Scorer) Policy() ScoringPolicy {
	return s.policy
}

// Score combines classifier confidence with keyword and location signals.
// Each keyword bonus applies at most once regardless of how many terms match.
// The result is clamped to [0, 1].
func (s *Scorer) Score(text string, confidence float64, hasExplicitCoordinate bool, coordinateConfidence float64) float64 {
	score := Clamp01(confidence)

	if s.urgency.matchAny(text) {
		score += s.policy.UrgencyBonus
	}
	if s.disaster.matchAny(text) {
		score += s.policy.DisasterBonus
	}
	if s.action.matchAny(text) {
		score += s.policy.ActionBonus
	}

	coordinateConfidence = Clamp01(coordinateConfidence)
	switch {
	case coordinateConfidence > 0 && coordinateConfidence >= s.policy.CoordinateConfidenceThreshold:
		score += s.policy.CoordinateBonus
	case hasExplicitCoordinate || coordinateConfidence > 0:
		score += s.policy.TextLocationBonus
	}

	return Clamp01(score)
}

// Clamp01 bounds v to [0, 1]. NaN maps to 0.
func Clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
