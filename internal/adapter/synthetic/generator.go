// Package synthetic generates plausible disaster and everyday reports without
// any network access. It is the chain's terminal provider and the source of
// replay fixtures.
package synthetic

import (
	"context"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// Name is the provider name reported on alerts and in health output.
const Name = "synthetic"

const (
	maxBatch      = 100
	disasterShare = 0.4
)

// Generator implements domain.Provider. Output is a pure function of the seed
// and the sequence of calls, so tests and fixtures are reproducible.
type Generator struct {
	clock clockwork.Clock

	mu  sync.Mutex
	src *rand.ChaCha8
	rng *rand.Rand
}

// New creates a generator seeded with seed.
func New(seed uint64, clock clockwork.Clock) *Generator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	src := rand.NewChaCha8(key)
	return &Generator{clock: clock, src: src, rng: rand.New(src)}
}

// Name implements domain.Provider.
func (g *Generator) Name() string { return Name }

// Fetch implements domain.Provider. It never fails unless ctx is done.
func (g *Generator) Fetch(ctx context.Context, query string, maxResults int) ([]domain.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return g.Generate(query, maxResults), nil
}

// Generate returns n items, 40% built from disaster templates. Disaster types
// named in query are preferred. Half the items carry an explicit coordinate;
// the rest only a location string.
func (g *Generator) Generate(query string, n int) []domain.RawItem {
	n = min(max(n, 1), maxBatch)
	types := typesFor(query)

	g.mu.Lock()
	defer g.mu.Unlock()

	disasters := int(float64(n) * disasterShare)
	now := g.clock.Now()
	items := make([]domain.RawItem, 0, n)
	for i := range n {
		loc := sampleLocations[g.rng.IntN(len(sampleLocations))]
		var text string
		if i < disasters {
			text = fmt.Sprintf(disasterTemplates[g.rng.IntN(len(disasterTemplates))],
				types[g.rng.IntN(len(types))], loc.Name, actionPhrases[g.rng.IntN(len(actionPhrases))])
		} else {
			text = fmt.Sprintf(normalTemplates[g.rng.IntN(len(normalTemplates))], loc.Name)
		}

		item := domain.RawItem{
			ID:          g.newID(),
			Text:        capitalize(text),
			AuthorID:    fmt.Sprintf("user_%06d", 100000+g.rng.IntN(900000)),
			Location:    loc.Name,
			PublishedAt: now.Add(-time.Duration(g.rng.IntN(60)) * time.Minute),
			Language:    "en",
		}
		if i%2 == 0 {
			c := loc.Coordinate
			item.Coordinate = &c
		}
		items = append(items, item)
	}
	g.rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
	return items
}

// newID draws a v4 UUID from the seeded stream. Caller holds g.mu.
func (g *Generator) newID() string {
	id, err := uuid.NewRandomFromReader(g.src)
	if err != nil {
		// ChaCha8 reads never fail.
		panic(err)
	}
	return "syn-" + id.String()
}

func typesFor(query string) []string {
	q := strings.ToLower(query)
	var matched []string
	for _, t := range disasterTypes {
		if strings.Contains(q, t) {
			matched = append(matched, t)
		}
	}
	if len(matched) == 0 {
		return disasterTypes
	}
	return matched
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
