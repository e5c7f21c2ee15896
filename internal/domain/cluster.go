package domain

import (
	"fmt"
	"math"
	"sort"
)

const (
	// DefaultClusterPrecision rounds to three decimals, roughly 100 m.
	DefaultClusterPrecision = 3
	maxClusterPrecision     = 8
)

// Cluster groups alerts whose coordinates round identically at precision
// decimal places. Alerts without a coordinate are left out. The result is
// sorted by count descending, then key, so the same input always yields the
// same output.
func Cluster(alerts []ScoredAlert, precision int) []LocationCluster {
	precision = ClampPrecision(precision)

	byKey := make(map[string]*LocationCluster)
	sums := make(map[string]float64)
	for _, a := range alerts {
		if a.Coordinate == nil {
			continue
		}
		rounded := Coordinate{
			Lat: roundTo(a.Coordinate.Lat, precision),
			Lon: roundTo(a.Coordinate.Lon, precision),
		}
		key := fmt.Sprintf("%.*f,%.*f", precision, rounded.Lat, precision, rounded.Lon)

		c, ok := byKey[key]
		if !ok {
			c = &LocationCluster{Key: key, Coordinate: rounded}
			byKey[key] = c
		}
		c.AlertIDs = append(c.AlertIDs, a.ID)
		c.Count++
		if c.Count == 1 || a.Priority > c.MaxPriority {
			c.MaxPriority = a.Priority
		}
		sums[key] += a.Priority
	}

	out := make([]LocationCluster, 0, len(byKey))
	for key, c := range byKey {
		c.AvgPriority = sums[key] / float64(c.Count)
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// ClampPrecision bounds a cluster precision to [0, 8].
func ClampPrecision(p int) int {
	switch {
	case p < 0:
		return 0
	case p > maxClusterPrecision:
		return maxClusterPrecision
	default:
		return p
	}
}

// roundTo rounds half away from zero and normalizes -0 to 0 so that keys
// such as "-0.000" never split a cluster.
func roundTo(v float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	r := math.Round(v*scale) / scale
	if r == 0 {
		return 0
	}
	return r
}
