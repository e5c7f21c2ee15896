package domain

import "context"

// PlaceMatch is a remote geocoder's best guess for a location string.
type PlaceMatch struct {
	Coordinate Coordinate
	Name       string  // full place name as the provider formats it
	Relevance  float64 // provider's own score in [0, 1]
}

// Geocoder resolves location text the gazetteer does not know. A nil match
// with a nil error means the provider has no usable answer.
type Geocoder interface {
	Locate(ctx context.Context, location string) (*PlaceMatch, error)
}
