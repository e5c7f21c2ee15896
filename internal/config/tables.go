package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

//go:embed default_tables.yaml
var defaultTablesYAML []byte

// Tables holds the tunable data behind classification, scoring and location
// resolution.
type Tables struct {
	Classifier ClassifierTable `yaml:"classifier"`
	Scoring    ScoringTable    `yaml:"scoring"`
	Resolver   ResolverTable   `yaml:"resolver"`
	Gazetteer  []PlaceEntry    `yaml:"gazetteer"`
}

// ClassifierTable configures the keyword classifier.
type ClassifierTable struct {
	Keywords []string `yaml:"keywords"`
}

// ScoringTable mirrors domain.ScoringPolicy.
type ScoringTable struct {
	UrgencyBonus                  float64  `yaml:"urgency_bonus"`
	DisasterBonus                 float64  `yaml:"disaster_bonus"`
	ActionBonus                   float64  `yaml:"action_bonus"`
	CoordinateBonus               float64  `yaml:"coordinate_bonus"`
	TextLocationBonus             float64  `yaml:"text_location_bonus"`
	CoordinateConfidenceThreshold float64  `yaml:"coordinate_confidence_threshold"`
	UrgencyKeywords               []string `yaml:"urgency_keywords"`
	DisasterKeywords              []string `yaml:"disaster_keywords"`
	ActionKeywords                []string `yaml:"action_keywords"`
}

// ResolverTable mirrors domain.ResolverPolicy.
type ResolverTable struct {
	ExplicitConfidence  float64 `yaml:"explicit_confidence"`
	LiteralConfidence   float64 `yaml:"literal_confidence"`
	GazetteerConfidence float64 `yaml:"gazetteer_confidence"`
}

// PlaceEntry is one gazetteer row.
type PlaceEntry struct {
	Name string  `yaml:"name"`
	Lat  float64 `yaml:"lat"`
	Lon  float64 `yaml:"lon"`
}

// DefaultTables returns the embedded tables.
func DefaultTables() *Tables {
	t, err := decodeTables(&Tables{}, defaultTablesYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded scoring tables: %v", err))
	}
	return t
}

// LoadTables returns the embedded tables overlaid with the file at path.
// An empty path returns the defaults.
func LoadTables(path string) (*Tables, error) {
	if path == "" {
		return DefaultTables(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scoring tables: %w", err)
	}
	t, err := ParseTables(data)
	if err != nil {
		return nil, fmt.Errorf("scoring tables %s: %w", path, err)
	}
	return t, nil
}

// ParseTables overlays data onto the embedded defaults and validates the result.
func ParseTables(data []byte) (*Tables, error) {
	return decodeTables(DefaultTables(), data)
}

func decodeTables(base *Tables, data []byte) (*Tables, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(base); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if err := base.Validate(); err != nil {
		return nil, err
	}
	return base, nil
}

// Validate checks that every weight and confidence lies in [0, 1] and that
// each gazetteer entry is usable.
func (t *Tables) Validate() error {
	var errs []error
	check := func(name string, v float64) {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("%s must be in [0, 1], got %v", name, v))
		}
	}
	check("scoring.urgency_bonus", t.Scoring.UrgencyBonus)
	check("scoring.disaster_bonus", t.Scoring.DisasterBonus)
	check("scoring.action_bonus", t.Scoring.ActionBonus)
	check("scoring.coordinate_bonus", t.Scoring.CoordinateBonus)
	check("scoring.text_location_bonus", t.Scoring.TextLocationBonus)
	check("scoring.coordinate_confidence_threshold", t.Scoring.CoordinateConfidenceThreshold)
	check("resolver.explicit_confidence", t.Resolver.ExplicitConfidence)
	check("resolver.literal_confidence", t.Resolver.LiteralConfidence)
	check("resolver.gazetteer_confidence", t.Resolver.GazetteerConfidence)

	if t.Scoring.CoordinateBonus < t.Scoring.TextLocationBonus {
		errs = append(errs, errors.New("scoring.coordinate_bonus must not be below scoring.text_location_bonus"))
	}
	for i, p := range t.Gazetteer {
		if p.Name == "" {
			errs = append(errs, fmt.Errorf("gazetteer[%d]: name is required", i))
		}
		if !(domain.Coordinate{Lat: p.Lat, Lon: p.Lon}).Valid() {
			errs = append(errs, fmt.Errorf("gazetteer[%d] %q: coordinate out of range", i, p.Name))
		}
	}
	return errors.Join(errs...)
}

// ScoringPolicy converts the scoring table for domain.NewScorer.
func (t *Tables) ScoringPolicy() domain.ScoringPolicy {
	s := t.Scoring
	return domain.ScoringPolicy{
		UrgencyKeywords:               s.UrgencyKeywords,
		DisasterKeywords:              s.DisasterKeywords,
		ActionKeywords:                s.ActionKeywords,
		UrgencyBonus:                  s.UrgencyBonus,
		DisasterBonus:                 s.DisasterBonus,
		ActionBonus:                   s.ActionBonus,
		CoordinateBonus:               s.CoordinateBonus,
		TextLocationBonus:             s.TextLocationBonus,
		CoordinateConfidenceThreshold: s.CoordinateConfidenceThreshold,
	}
}

// ResolverPolicy converts the resolver table for domain.NewResolver.
func (t *Tables) ResolverPolicy() domain.ResolverPolicy {
	return domain.ResolverPolicy(t.Resolver)
}

// Places converts the gazetteer for domain.NewResolver.
func (t *Tables) Places() []domain.Place {
	out := make([]domain.Place, len(t.Gazetteer))
	for i, p := range t.Gazetteer {
		out[i] = domain.Place{Name: p.Name, Coordinate: domain.Coordinate{Lat: p.Lat, Lon: p.Lon}}
	}
	return out
}
