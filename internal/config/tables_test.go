package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

func TestDefaultTables_MatchDomainDefaults(t *testing.T) {
	tables := DefaultTables()

	assert.Equal(t, domain.DefaultScoringPolicy(), tables.ScoringPolicy())
	assert.Equal(t, domain.DefaultResolverPolicy(), tables.ResolverPolicy())
	assert.Len(t, tables.Places(), 20)
	assert.Equal(t, domain.DefaultClassifierKeywords, tables.Classifier.Keywords)
}

func TestDefaultTables_ResolveKnownCity(t *testing.T) {
	tables := DefaultTables()
	r := domain.NewResolver(tables.ResolverPolicy(), tables.Places())

	coord, conf := r.Resolve("Flooding reported across chicago this morning", nil)
	require.NotNil(t, coord)
	assert.InDelta(t, 41.8781, coord.Lat, 1e-9)
	assert.InDelta(t, 0.6, conf, 1e-9)
}

func TestParseTables_OverlaysDefaults(t *testing.T) {
	tables, err := ParseTables([]byte(`
scoring:
  urgency_bonus: 0.3
  urgency_keywords: [mayday]
gazetteer:
  - { name: Reno, lat: 39.5296, lon: -119.8138 }
`))
	require.NoError(t, err)

	policy := tables.ScoringPolicy()
	assert.InDelta(t, 0.3, policy.UrgencyBonus, 1e-9)
	assert.Equal(t, []string{"mayday"}, policy.UrgencyKeywords)
	// Untouched keys keep their defaults.
	assert.InDelta(t, 0.15, policy.DisasterBonus, 1e-9)
	assert.NotEmpty(t, policy.DisasterKeywords)
	assert.InDelta(t, 0.95, tables.Resolver.ExplicitConfidence, 1e-9)

	require.Len(t, tables.Places(), 1)
	assert.Equal(t, "Reno", tables.Places()[0].Name)
}

func TestParseTables_EmptyDocument(t *testing.T) {
	tables, err := ParseTables(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTables(), tables)
}

func TestParseTables_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want string
	}{
		{"unknown key", "scoring:\n  surge_bonus: 0.1\n", "surge_bonus"},
		{"bonus above one", "scoring:\n  urgency_bonus: 1.5\n", "scoring.urgency_bonus"},
		{"negative confidence", "resolver:\n  gazetteer_confidence: -0.1\n", "resolver.gazetteer_confidence"},
		{"inverted location tiers", "scoring:\n  coordinate_bonus: 0.05\n", "coordinate_bonus"},
		{"unnamed place", "gazetteer:\n  - { lat: 1, lon: 2 }\n", "gazetteer[0]"},
		{"place out of range", "gazetteer:\n  - { name: Nowhere, lat: 95, lon: 0 }\n", "Nowhere"},
		{"not yaml", "scoring: [", "decode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTables([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTables(t *testing.T) {
	t.Run("empty path uses defaults", func(t *testing.T) {
		tables, err := LoadTables("")
		require.NoError(t, err)
		assert.Equal(t, DefaultTables(), tables)
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "tables.yaml")
		require.NoError(t, os.WriteFile(path, []byte("scoring:\n  action_bonus: 0\n"), 0o600))

		tables, err := LoadTables(path)
		require.NoError(t, err)
		assert.Zero(t, tables.Scoring.ActionBonus)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadTables(filepath.Join(t.TempDir(), "absent.yaml"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "read scoring tables")
	})
}
