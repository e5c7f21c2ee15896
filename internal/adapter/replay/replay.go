// Package replay serves recorded items from a JSON fixture, cycling through
// them so a demo or test feed never runs dry.
package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// Name is the provider name reported on alerts and in health output.
const Name = "replay"

// Provider implements domain.Provider over an in-memory item list.
type Provider struct {
	mu    sync.Mutex
	items []domain.RawItem
	next  int
}

// New serves items in order, wrapping around at the end.
func New(items []domain.RawItem) *Provider {
	return &Provider{items: append([]domain.RawItem(nil), items...)}
}

// Load reads a fixture file holding a JSON array of items.
func Load(path string) (*Provider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var items []domain.RawItem
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return New(items), nil
}

// Name implements domain.Provider.
func (p *Provider) Name() string { return Name }

// Len returns the number of recorded items.
func (p *Provider) Len() int { return len(p.items) }

// Fetch implements domain.Provider. It ignores the query and returns the next
// maxResults recorded items, never repeating one within a single call.
func (p *Provider) Fetch(ctx context.Context, _ string, maxResults int) ([]domain.RawItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	n := min(max(maxResults, 0), len(p.items))
	out := make([]domain.RawItem, 0, n)
	for range n {
		out = append(out, p.items[p.next])
		p.next = (p.next + 1) % len(p.items)
	}
	return out, nil
}
