// Command checktables validates a scoring tables YAML file and, optionally, a
// replay fixture against it. It loads both through the same code the service
// uses, so a file that passes here will be accepted at startup.
//
// Usage:
//
//	go run ./cmd/checktables \
//	  -tables config/tables.yaml \
//	  -fixture data/fixtures/replay.json
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/couchcryptid/disaster-feed-service/internal/adapter/replay"
	"github.com/couchcryptid/disaster-feed-service/internal/config"
	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

func main() {
	tablesPath := flag.String("tables", "", "scoring tables YAML (default: embedded tables)")
	fixturePath := flag.String("fixture", "", "optional replay fixture to check against the tables")
	flag.Parse()

	os.Exit(run(*tablesPath, *fixturePath))
}

func run(tablesPath, fixturePath string) int {
	fmt.Println("=== Scoring Tables Validation ===")
	fmt.Println()

	tables, err := config.LoadTables(tablesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
		return 1
	}

	phases := []*phase{
		checkKeywords(tables),
		checkGazetteer(tables),
	}
	if fixturePath != "" {
		p, err := checkFixture(tables, fixturePath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			return 1
		}
		phases = append(phases, p)
	}

	allPassed := true
	for _, p := range phases {
		status := "\033[32mPASS\033[0m"
		if !p.passed() {
			status = fmt.Sprintf("\033[31mFAIL (%d errors)\033[0m", len(p.errors))
			allPassed = false
		}
		fmt.Printf("  %-42s %s\n", p.name, status)
	}

	fmt.Println()
	fmt.Printf("Tables: %d classifier keywords, %d gazetteer places\n",
		len(tables.Classifier.Keywords), len(tables.Gazetteer))

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Printf("\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Printf("  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Println("\nAll validations passed.")
		return 0
	}
	fmt.Println("\nValidation FAILED.")
	return 1
}

// checkKeywords flags empty and duplicate entries in every keyword list.
func checkKeywords(t *config.Tables) *phase {
	p := &phase{name: "Keyword lists"}
	lists := map[string][]string{
		"classifier.keywords":       t.Classifier.Keywords,
		"scoring.urgency_keywords":  t.Scoring.UrgencyKeywords,
		"scoring.disaster_keywords": t.Scoring.DisasterKeywords,
		"scoring.action_keywords":   t.Scoring.ActionKeywords,
	}
	for name, words := range lists {
		seen := make(map[string]bool, len(words))
		for i, w := range words {
			key := strings.ToLower(strings.TrimSpace(w))
			if key == "" {
				p.errorf("%s[%d]: empty keyword", name, i)
				continue
			}
			if seen[key] {
				p.errorf("%s[%d]: duplicate keyword %q", name, i, w)
			}
			seen[key] = true
		}
	}
	return p
}

// checkGazetteer verifies every place resolves to its own coordinate, which
// catches names shadowed by an earlier, overlapping entry.
func checkGazetteer(t *config.Tables) *phase {
	p := &phase{name: "Gazetteer self-resolution"}
	resolver := domain.NewResolver(t.ResolverPolicy(), t.Places())
	for _, place := range t.Places() {
		got, conf := resolver.Resolve(place.Name, nil)
		if got == nil {
			p.errorf("%q does not resolve", place.Name)
			continue
		}
		if *got != place.Coordinate {
			p.errorf("%q resolves to %.4f,%.4f, want %.4f,%.4f",
				place.Name, got.Lat, got.Lon, place.Coordinate.Lat, place.Coordinate.Lon)
		}
		if conf != t.Resolver.GazetteerConfidence {
			p.errorf("%q resolved with confidence %.2f, want %.2f", place.Name, conf, t.Resolver.GazetteerConfidence)
		}
	}
	return p
}

// checkFixture runs the keyword classifier and resolver over a replay fixture
// and reports items the pipeline would skip or could not plot.
func checkFixture(t *config.Tables, path string) (*phase, error) {
	provider, err := replay.Load(path)
	if err != nil {
		return nil, err
	}
	items, err := provider.Fetch(context.Background(), "", provider.Len())
	if err != nil {
		return nil, err
	}

	p := &phase{name: "Replay fixture"}
	classifier := domain.NewKeywordClassifier(t.Classifier.Keywords)
	resolver := domain.NewResolver(t.ResolverPolicy(), t.Places())
	ids := make(map[string]bool, len(items))
	var relevant, plotted int
	for i, item := range items {
		if err := item.Validate(); err != nil {
			p.errorf("item %d (%s): %v", i, item.ID, err)
			continue
		}
		if item.ID != "" {
			if ids[item.ID] {
				p.errorf("item %d: duplicate id %s", i, item.ID)
			}
			ids[item.ID] = true
		}
		if item.Coordinate != nil && !item.Coordinate.Valid() {
			p.errorf("item %d (%s): coordinate out of range", i, item.ID)
		}
		c, err := classifier.Classify(context.Background(), item.Text)
		if err != nil {
			return nil, err
		}
		if !c.Relevant {
			continue
		}
		relevant++
		coord, _ := resolver.Resolve(item.Location, item.Coordinate)
		if coord == nil {
			coord, _ = resolver.Resolve(item.Text, nil)
		}
		if coord != nil {
			plotted++
		}
	}
	fmt.Printf("Fixture: %d items, %d relevant, %d relevant and plottable\n", len(items), relevant, plotted)
	return p, nil
}
