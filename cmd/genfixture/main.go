// Command genfixture writes synthetic raw items to a JSON fixture that the
// replay provider can serve. Output is reproducible for a given seed and
// query. The keyword classifier from the domain package is run over the
// result so the log shows how many items the pipeline would keep.
//
// Usage:
//
//	go run ./cmd/genfixture \
//	  -query "earthquake OR flood" \
//	  -count 250 \
//	  -seed 42 \
//	  -out data/fixtures/replay.json
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/disaster-feed-service/internal/adapter/synthetic"
	"github.com/couchcryptid/disaster-feed-service/internal/config"
	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// Fixed generation time so fixtures diff cleanly between runs.
var generatedAt = time.Date(2024, time.April, 27, 6, 0, 0, 0, time.UTC)

// batchSize matches the largest batch the generator produces per call.
const batchSize = 100

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	query := flag.String("query", "earthquake OR flood OR wildfire", "query the generator biases disaster types toward")
	count := flag.Int("count", 100, "number of items to write")
	seed := flag.Uint64("seed", 42, "generator seed")
	tablesPath := flag.String("tables", "", "scoring tables YAML for the relevance summary (default: embedded)")
	out := flag.String("out", "", "output path for the JSON fixture")
	flag.Parse()

	if *out == "" || *count < 1 {
		flag.Usage()
		return fmt.Errorf("missing required flag -out or non-positive -count")
	}

	tables, err := config.LoadTables(*tablesPath)
	if err != nil {
		return err
	}

	gen := synthetic.New(*seed, clockwork.NewFakeClockAt(generatedAt))
	items := make([]domain.RawItem, 0, *count)
	for len(items) < *count {
		items = append(items, gen.Generate(*query, min(batchSize, *count-len(items)))...)
	}

	relevant, err := countRelevant(items, domain.NewKeywordClassifier(tables.Classifier.Keywords))
	if err != nil {
		return err
	}
	log.Printf("generated %d items, %d relevant by keyword", len(items), relevant)

	return writeJSON(*out, items)
}

func countRelevant(items []domain.RawItem, c domain.Classifier) (int, error) {
	ctx := context.Background()
	n := 0
	for _, item := range items {
		res, err := c.Classify(ctx, item.Text)
		if err != nil {
			return 0, fmt.Errorf("classify %s: %w", item.ID, err)
		}
		if res.Relevant {
			n++
		}
	}
	return n, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	log.Printf("wrote %s", path)
	return nil
}
