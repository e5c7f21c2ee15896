package domain

import "context"

// Provider fetches raw items matching a query from one data source.
//
// Implementations return *ProviderError on failure so callers can tell
// credential problems and throttling apart from plain outages.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, query string, maxResults int) ([]RawItem, error)
}

// Classifier decides whether text describes an emergency.
type Classifier interface {
	Classify(ctx context.Context, text string) (Classification, error)
}
