package domain

import (
	"regexp"
	"strconv"
	"strings"
)

// Place is one gazetteer entry.
type Place struct {
	Name       string
	Coordinate Coordinate
}

// ResolverPolicy holds the fixed confidences assigned per evidence type.
type ResolverPolicy struct {
	ExplicitConfidence  float64
	LiteralConfidence   float64
	GazetteerConfidence float64
}

// DefaultResolverPolicy returns the confidences the service ships with.
func DefaultResolverPolicy() ResolverPolicy {
	return ResolverPolicy{
		ExplicitConfidence:  0.95,
		LiteralConfidence:   0.8,
		GazetteerConfidence: 0.6,
	}
}

// literalCoordRe matches text that is nothing but a "lat, lon" pair, e.g. a
// profile location of "37.77, -122.41".
var literalCoordRe = regexp.MustCompile(`^\s*(-?\d{1,2}(?:\.\d+)?)\s*,\s*(-?\d{1,3}(?:\.\d+)?)\s*$`)

// Resolver maps text and optional explicit coordinates to a best-effort
// coordinate. It holds no mutable state and is safe for concurrent use.
type Resolver struct {
	policy ResolverPolicy
	places map[string]Coordinate // keyed by normalized name
	re     *regexp.Regexp        // nil when the gazetteer is empty
}

// NewResolver compiles the gazetteer into a single whole-word matcher.
func NewResolver(policy ResolverPolicy, gazetteer []Place) *Resolver {
	r := &Resolver{
		policy: policy,
		places: make(map[string]Coordinate, len(gazetteer)),
	}
	names := make([]string, 0, len(gazetteer))
	for _, p := range gazetteer {
		key := normalizeTerm(p.Name)
		if key == "" || !p.Coordinate.Valid() {
			continue
		}
		if _, dup := r.places[key]; dup {
			continue
		}
		r.places[key] = p.Coordinate
		names = append(names, key)
	}
	r.re = compileTerms(names)
	return r
}

// Resolve returns the coordinate and its confidence. An explicit valid
// coordinate wins outright; otherwise text that is a literal pair, then the
// leftmost gazetteer match. No evidence yields (nil, 0): callers must treat
// that as unplottable rather than (0, 0).
func (r *Resolver) Resolve(text string, explicit *Coordinate) (*Coordinate, float64) {
	if explicit != nil && explicit.Valid() {
		c := *explicit
		return &c, Clamp01(r.policy.ExplicitConfidence)
	}
	if c, ok := parseLiteralCoordinate(text); ok {
		return &c, Clamp01(r.policy.LiteralConfidence)
	}
	if c, ok := r.lookup(text); ok {
		return &c, Clamp01(r.policy.GazetteerConfidence)
	}
	return nil, 0
}

// GazetteerConfidence is the confidence assigned to textual place matches.
func (r *Resolver) GazetteerConfidence() float64 {
	return Clamp01(r.policy.GazetteerConfidence)
}

// Places returns the number of usable gazetteer entries.
func (r *Resolver) Places() int {
	return len(r.places)
}

func (r *Resolver) lookup(text string) (Coordinate, bool) {
	if r.re == nil || text == "" {
		return Coordinate{}, false
	}
	var name string
	eachTerm(r.re, text, func(term string) bool {
		name = term
		return false
	})
	if name == "" {
		return Coordinate{}, false
	}
	c, ok := r.places[normalizeTerm(name)]
	return c, ok
}

func parseLiteralCoordinate(text string) (Coordinate, bool) {
	m := literalCoordRe.FindStringSubmatch(text)
	if len(m) != 3 {
		return Coordinate{}, false
	}
	lat, errLat := strconv.ParseFloat(strings.TrimSpace(m[1]), 64)
	lon, errLon := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
	if errLat != nil || errLon != nil {
		return Coordinate{}, false
	}
	c := Coordinate{Lat: lat, Lon: lon}
	if !c.Valid() {
		return Coordinate{}, false
	}
	return c, true
}
