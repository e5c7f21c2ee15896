package domain

import "time"

// Coordinate is a WGS-84 latitude/longitude pair.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the pair lies inside the WGS-84 range.
func (c Coordinate) Valid() bool {
	return c.Lat >= -90 && c.Lat <= 90 && c.Lon >= -180 && c.Lon <= 180
}

// RawItem is a report as fetched from a provider, before classification.
type RawItem struct {
	ID          string      `json:"id,omitempty"`
	Text        string      `json:"text"`
	AuthorID    string      `json:"author_id,omitempty"`
	Location    string      `json:"location,omitempty"` // user or place location text
	Coordinate  *Coordinate `json:"coordinate,omitempty"`
	PublishedAt time.Time   `json:"published_at,omitempty"`
	Language    string      `json:"lang,omitempty"`
}

// Classification is the classifier's verdict on a piece of text.
type Classification struct {
	Relevant   bool    `json:"is_relevant"`
	Confidence float64 `json:"confidence"`
	Method     string  `json:"method"`
}

// ScoredAlert is a relevant item with its priority and resolved location.
type ScoredAlert struct {
	ID                   string      `json:"id"`
	Text                 string      `json:"text"`
	AuthorID             string      `json:"author_id,omitempty"`
	Location             string      `json:"location,omitempty"`
	Relevant             bool        `json:"is_relevant"`
	Confidence           float64     `json:"confidence"`
	Method               string      `json:"classification_method,omitempty"`
	Priority             float64     `json:"priority_score"`
	Coordinate           *Coordinate `json:"coordinate"`
	CoordinateConfidence float64     `json:"coordinate_confidence"`
	PublishedAt          time.Time   `json:"published_at,omitempty"`
	ReceivedAt           time.Time   `json:"received_at"`
	Source               string      `json:"source"`
	Synthetic            bool        `json:"synthetic"`
}

// LocationCluster summarizes alerts that share a rounded coordinate.
type LocationCluster struct {
	Key         string     `json:"key"`
	Coordinate  Coordinate `json:"coordinate"`
	AlertIDs    []string   `json:"alert_ids"`
	Count       int        `json:"count"`
	MaxPriority float64    `json:"max_priority"`
	AvgPriority float64    `json:"avg_priority"`
}
