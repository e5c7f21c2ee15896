// Package cache holds the bounded, identity-keyed store of scored alerts
// that backs every feed query.
package cache

import (
	"sync"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// DefaultMaxSize matches the number of alerts the live feed keeps by default.
const DefaultMaxSize = 100

// Dedup keeps at most maxSize alerts keyed by identity. Writes move an entry
// to the front; reads never reorder. When full, a new key evicts the entry
// written longest ago.
type Dedup struct {
	maxSize   int
	mu        sync.RWMutex
	entries   map[string]*entry
	head      *entry // most recently written
	tail      *entry // least recently written
	evictions uint64
}

type entry struct {
	alert domain.ScoredAlert
	prev  *entry
	next  *entry
}

// NewDedup creates a cache holding up to maxSize alerts. Non-positive sizes
// fall back to DefaultMaxSize.
func NewDedup(maxSize int) *Dedup {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Dedup{
		maxSize: maxSize,
		entries: make(map[string]*entry, maxSize),
	}
}

// Upsert stores the alert under its ID and reports whether the key was new.
// Re-inserting a known key replaces the stored value without growing the cache.
func (d *Dedup) Upsert(alert domain.ScoredAlert) (inserted bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[alert.ID]; ok {
		e.alert = alert
		d.moveToFront(e)
		return false
	}

	if len(d.entries) >= d.maxSize {
		d.evictTail()
	}
	e := &entry{alert: alert}
	d.entries[alert.ID] = e
	d.addToFront(e)
	return true
}

// Get returns the alert stored under id.
func (d *Dedup) Get(id string) (domain.ScoredAlert, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	e, ok := d.entries[id]
	if !ok {
		return domain.ScoredAlert{}, false
	}
	return copyAlert(e.alert), true
}

// Snapshot copies up to limit alerts, most recently written first. A limit of
// zero or less returns everything.
func (d *Dedup) Snapshot(limit int) []domain.ScoredAlert {
	d.mu.RLock()
	defer d.mu.RUnlock()

	n := len(d.entries)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ScoredAlert, 0, n)
	for e := d.head; e != nil && len(out) < n; e = e.next {
		out = append(out, copyAlert(e.alert))
	}
	return out
}

// Size returns the number of cached alerts.
func (d *Dedup) Size() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

// Capacity returns the configured maximum size.
func (d *Dedup) Capacity() int {
	return d.maxSize
}

// Evictions returns how many alerts have been pushed out since creation.
func (d *Dedup) Evictions() uint64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.evictions
}

// copyAlert detaches the coordinate pointer so callers cannot alter cached state.
func copyAlert(a domain.ScoredAlert) domain.ScoredAlert {
	if a.Coordinate != nil {
		c := *a.Coordinate
		a.Coordinate = &c
	}
	return a
}

func (d *Dedup) moveToFront(e *entry) {
	if e == d.head {
		return
	}
	d.remove(e)
	d.addToFront(e)
}

func (d *Dedup) addToFront(e *entry) {
	e.next = d.head
	e.prev = nil
	if d.head != nil {
		d.head.prev = e
	}
	d.head = e
	if d.tail == nil {
		d.tail = e
	}
}

func (d *Dedup) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		d.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		d.tail = e.prev
	}
}

func (d *Dedup) evictTail() {
	if d.tail == nil {
		return
	}
	delete(d.entries, d.tail.alert.ID)
	d.remove(d.tail)
	d.evictions++
}
