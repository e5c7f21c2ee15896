package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AlertKey returns the identity key for an item. Provider ids are namespaced
// by provider; items without one are keyed by a hash of normalized text and
// author so that repeats collapse onto the same cache entry.
func AlertKey(source string, item RawItem) string {
	if id := strings.TrimSpace(item.ID); id != "" {
		return source + ":" + id
	}
	input := strings.Join(strings.Fields(strings.ToLower(item.Text)), " ") + "|" + item.AuthorID
	hash := sha256.Sum256([]byte(input))
	return "h-" + hex.EncodeToString(hash[:8])
}

// Validate rejects items that cannot be classified.
func (i RawItem) Validate() error {
	if strings.TrimSpace(i.Text) == "" {
		return ErrMalformedItem
	}
	return nil
}

// AlertInput gathers everything BuildAlert needs besides the item itself.
type AlertInput struct {
	Source               string
	Synthetic            bool
	Classification       Classification
	Priority             float64
	Coordinate           *Coordinate
	CoordinateConfidence float64
}

// BuildAlert assembles a ScoredAlert, clamping every score to [0, 1] and
// stamping the receipt time from the package clock.
func BuildAlert(item RawItem, in AlertInput) ScoredAlert {
	var coord *Coordinate
	confidence := 0.0
	if in.Coordinate != nil {
		c := *in.Coordinate
		coord = &c
		confidence = Clamp01(in.CoordinateConfidence)
	}
	return ScoredAlert{
		ID:                   AlertKey(in.Source, item),
		Text:                 item.Text,
		AuthorID:             item.AuthorID,
		Location:             item.Location,
		Relevant:             in.Classification.Relevant,
		Confidence:           Clamp01(in.Classification.Confidence),
		Method:               in.Classification.Method,
		Priority:             Clamp01(in.Priority),
		Coordinate:           coord,
		CoordinateConfidence: confidence,
		PublishedAt:          item.PublishedAt,
		ReceivedAt:           now(),
		Source:               in.Source,
		Synthetic:            in.Synthetic,
	}
}
