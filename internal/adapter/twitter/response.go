package twitter

import (
	"time"

	"github.com/couchcryptid/disaster-feed-service/internal/domain"
)

// v2 recent-search response types.

type searchResponse struct {
	Data     []tweet  `json:"data"`
	Includes includes `json:"includes"`
}

type includes struct {
	Users  []user  `json:"users"`
	Places []place `json:"places"`
}

type tweet struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	AuthorID  string    `json:"author_id"`
	CreatedAt string    `json:"created_at"`
	Lang      string    `json:"lang"`
	Geo       *tweetGeo `json:"geo"`
}

type tweetGeo struct {
	PlaceID     string `json:"place_id"`
	Coordinates *point `json:"coordinates"`
}

type point struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [lon, lat]
}

type user struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

type place struct {
	ID       string    `json:"id"`
	FullName string    `json:"full_name"`
	Geo      *placeGeo `json:"geo"`
}

type placeGeo struct {
	BBox []float64 `json:"bbox"` // [west, south, east, north]
}

func (r searchResponse) items() []domain.RawItem {
	users := make(map[string]user, len(r.Includes.Users))
	for _, u := range r.Includes.Users {
		users[u.ID] = u
	}
	places := make(map[string]place, len(r.Includes.Places))
	for _, p := range r.Includes.Places {
		places[p.ID] = p
	}

	items := make([]domain.RawItem, 0, len(r.Data))
	for _, t := range r.Data {
		item := domain.RawItem{
			ID:       t.ID,
			Text:     t.Text,
			AuthorID: t.AuthorID,
			Language: t.Lang,
		}
		if ts, err := time.Parse(time.RFC3339, t.CreatedAt); err == nil {
			item.PublishedAt = ts
		}

		var pl *place
		if t.Geo != nil && t.Geo.PlaceID != "" {
			if p, ok := places[t.Geo.PlaceID]; ok {
				pl = &p
			}
		}
		if pl != nil {
			item.Location = pl.FullName
		} else {
			item.Location = users[t.AuthorID].Location
		}

		switch {
		case t.Geo != nil && t.Geo.Coordinates != nil && len(t.Geo.Coordinates.Coordinates) == 2:
			item.Coordinate = &domain.Coordinate{Lat: t.Geo.Coordinates.Coordinates[1], Lon: t.Geo.Coordinates.Coordinates[0]}
		case pl != nil && pl.Geo != nil && len(pl.Geo.BBox) == 4:
			item.Coordinate = bboxCenter(pl.Geo.BBox)
		}
		items = append(items, item)
	}
	return items
}

func bboxCenter(b []float64) *domain.Coordinate {
	return &domain.Coordinate{
		Lat: (b[1] + b[3]) / 2,
		Lon: (b[0] + b[2]) / 2,
	}
}
