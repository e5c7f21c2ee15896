package synthetic

import "github.com/couchcryptid/disaster-feed-service/internal/domain"

type location struct {
	Name       string
	Coordinate domain.Coordinate
}

var sampleLocations = []location{
	{"San Francisco, CA", domain.Coordinate{Lat: 37.7749, Lon: -122.4194}},
	{"Los Angeles, CA", domain.Coordinate{Lat: 34.0522, Lon: -118.2437}},
	{"New York, NY", domain.Coordinate{Lat: 40.7128, Lon: -74.0060}},
	{"Houston, TX", domain.Coordinate{Lat: 29.7604, Lon: -95.3698}},
	{"Chicago, IL", domain.Coordinate{Lat: 41.8781, Lon: -87.6298}},
	{"Miami, FL", domain.Coordinate{Lat: 25.7617, Lon: -80.1918}},
	{"Seattle, WA", domain.Coordinate{Lat: 47.6062, Lon: -122.3321}},
	{"Denver, CO", domain.Coordinate{Lat: 39.7392, Lon: -104.9903}},
	{"Atlanta, GA", domain.Coordinate{Lat: 33.7490, Lon: -84.3880}},
	{"Phoenix, AZ", domain.Coordinate{Lat: 33.4484, Lon: -112.0740}},
}

// Templates take (disaster type, location, action) in that order.
var disasterTemplates = []string{
	"URGENT: Major %s hits %s, %s!",
	"%s spreading rapidly near %s, %s",
	"Emergency: %s reported in %s, %s",
	"Breaking: %s warning issued for %s, %s",
	"%s spotted moving towards %s, %s",
	"ALERT: %s in %s, %s",
	"Massive %s affecting %s area, %s",
	"%s evacuation ordered for %s, %s",
	"Critical: %s emergency in %s, %s",
	"Live: %s situation developing in %s, %s",
}

var disasterTypes = []string{
	"earthquake", "wildfire", "flood", "tornado", "hurricane",
	"building fire", "explosion", "storm", "landslide", "gas leak",
}

var actionPhrases = []string{
	"evacuations ordered", "buildings collapsing", "emergency services responding",
	"immediate evacuation needed", "roads blocked", "power outages reported",
	"water levels rising", "winds reaching dangerous speeds", "smoke visible",
	"residents advised to shelter", "multiple injuries reported", "rescue operations underway",
}

var normalTemplates = []string{
	"Beautiful sunset tonight in %s",
	"Great weather today in %s",
	"Having lunch at a nice restaurant in %s",
	"Traffic is moving well in %s today",
	"Enjoying the weekend in %s",
	"New coffee shop opened in %s",
	"Concert was amazing last night in %s",
	"Perfect day for a walk in %s",
	"Local farmers market busy in %s",
	"Sports game was exciting in %s",
}
