package feed

import "github.com/couchcryptid/disaster-feed-service/internal/domain"

// Priority band lower bounds.
const (
	criticalPriority = 0.9
	highPriority     = 0.7
	mediumPriority   = 0.5
)

// Stats summarizes the cached alerts.
type Stats struct {
	Total                int               `json:"total_alerts"`
	Geolocated           int               `json:"geolocated"`
	Synthetic            int               `json:"synthetic"`
	AveragePriority      float64           `json:"average_priority"`
	AverageConfidence    float64           `json:"average_confidence"`
	PriorityDistribution PriorityBands     `json:"priority_distribution"`
	BySource             map[string]int    `json:"by_source"`
	ByMethod             map[string]int    `json:"by_method"`
	Cache                CacheUsage        `json:"cache"`
	Providers            []string          `json:"providers"`
	Stream               StreamStatsDigest `json:"stream"`
}

// PriorityBands counts alerts per priority band.
type PriorityBands struct {
	Critical int `json:"critical"` // >= 0.9
	High     int `json:"high"`     // >= 0.7
	Medium   int `json:"medium"`   // >= 0.5
	Low      int `json:"low"`
}

// StreamStatsDigest is the part of the stream state stats callers care about.
type StreamStatsDigest struct {
	State string `json:"state"`
	Ticks uint64 `json:"ticks"`
}

// Stats computes counts and averages over the current cache.
func (s *Service) Stats() Stats {
	alerts := s.store.Snapshot(0)
	st := Stats{
		Total:     len(alerts),
		BySource:  make(map[string]int),
		ByMethod:  make(map[string]int),
		Cache:     CacheUsage{Size: s.store.Size(), Capacity: s.store.Capacity()},
		Providers: s.chain.Names(),
	}
	stream := s.streamer.Status()
	st.Stream = StreamStatsDigest{State: string(stream.State), Ticks: stream.Ticks}

	var prioritySum, confidenceSum float64
	for _, a := range alerts {
		prioritySum += a.Priority
		confidenceSum += a.Confidence
		st.BySource[a.Source]++
		if a.Method != "" {
			st.ByMethod[a.Method]++
		}
		if a.Coordinate != nil {
			st.Geolocated++
		}
		if a.Synthetic {
			st.Synthetic++
		}
		st.PriorityDistribution.add(a)
	}
	if len(alerts) > 0 {
		st.AveragePriority = prioritySum / float64(len(alerts))
		st.AverageConfidence = confidenceSum / float64(len(alerts))
	}
	return st
}

func (b *PriorityBands) add(a domain.ScoredAlert) {
	switch {
	case a.Priority >= criticalPriority:
		b.Critical++
	case a.Priority >= highPriority:
		b.High++
	case a.Priority >= mediumPriority:
		b.Medium++
	default:
		b.Low++
	}
}
