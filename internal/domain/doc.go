// Package domain models disaster reports and the alerts derived from them.
//
// # Data Source
//
// Reports are short free-text posts pulled from social search APIs (the
// official v2 recent-search endpoint, twitterapi.io) or produced locally by
// the synthetic and replay providers. Each provider maps its payload into a
// RawItem; nothing downstream knows which provider produced an item except
// through the source tag and synthetic flag carried on the ScoredAlert.
//
// # Alert Derivation
//
// An item becomes an alert only when the classifier flags it as relevant.
// Relevant items are then geolocated and scored:
//
//	coordinate:  explicit provider coordinate   -> confidence 0.95
//	             location text "lat, lon"       -> confidence 0.80
//	             gazetteer place-name match     -> confidence 0.60
//	             nothing                        -> unplottable (nil)
//
//	priority = confidence
//	         + urgency bonus   (once, any urgency keyword)
//	         + disaster bonus  (once, any disaster keyword)
//	         + action bonus    (once, any action keyword)
//	         + location bonus  (coordinate tier or text tier)
//	         clamped to [0, 1]
//
// All bonuses, keyword sets, and the gazetteer are data loaded from the
// scoring tables file; the defaults above are what ships in the embedded
// table.
//
// # Identity
//
// Provider-assigned ids are namespaced by provider ("official:1790..."). Items
// without an id get a content hash of their normalized text and author, so
// re-ingesting the same report refreshes the cached alert instead of adding
// a duplicate.
//
// # Clusters
//
// Clusters group alerts whose coordinates round to the same value at a fixed
// decimal precision (3 places is roughly 100 m). Alerts without coordinates
// stay in the list feed but never appear in a cluster.
package domain
