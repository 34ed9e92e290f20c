package model

import "fmt"

// Coordinates is a WGS84 point.
type Coordinates struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// IsZero reports whether the point was never resolved.
func (c Coordinates) IsZero() bool {
	return c.Latitude == 0 && c.Longitude == 0
}

func (c Coordinates) String() string {
	return fmt.Sprintf("%.4f,%.4f", c.Latitude, c.Longitude)
}

// Location is a named point on the map.
type Location struct {
	Name        string      `json:"name"`
	Coordinates Coordinates `json:"coordinates"`
}

// Requirements are the validated trip parameters gathered during planning.
// They are replaced wholesale by route-editing tools, never edited in place.
type Requirements struct {
	Origin          Location   `json:"origin"`
	Destination     Location   `json:"destination"`
	Intermediates   []Location `json:"intermediates,omitempty"`
	DailyDistanceKM int        `json:"daily_distance_km"`
	Context         string     `json:"context,omitempty"`
}

func (r Requirements) clone() Requirements {
	out := r
	if r.Intermediates != nil {
		out.Intermediates = append([]Location(nil), r.Intermediates...)
	}
	return out
}

// Route is an encoded path between two locations.
type Route struct {
	Polyline            string   `json:"polyline"`
	Origin              Location `json:"origin"`
	Destination         Location `json:"destination"`
	DistanceMeters      int      `json:"distance_meters"`
	ElevationGainMeters int      `json:"elevation_gain_meters"`
	Duration            string   `json:"duration,omitempty"`
}

// DistanceKM returns the route length in kilometres.
func (r Route) DistanceKM() float64 {
	return float64(r.DistanceMeters) / 1000
}

// Lodging is a place to stay near a segment endpoint.
type Lodging struct {
	Name    string  `json:"name"`
	Address string  `json:"address,omitempty"`
	MapLink string  `json:"map_link,omitempty"`
	Rating  float64 `json:"rating,omitempty"`
}

// Segment is one day of riding. Day is 1-indexed and equals its list position + 1.
type Segment struct {
	Day     int       `json:"day"`
	Route   Route     `json:"route"`
	Lodging []Lodging `json:"lodging_options"`
}

// HasLodging reports whether at least one option was found.
func (s Segment) HasLodging() bool {
	return len(s.Lodging) > 0
}

func (s Segment) clone() Segment {
	out := s
	if s.Lodging != nil {
		out.Lodging = append([]Lodging(nil), s.Lodging...)
	}
	return out
}

// CloneSegments deep-copies a segment list, preserving nil.
func CloneSegments(in []Segment) []Segment {
	if in == nil {
		return nil
	}
	out := make([]Segment, len(in))
	for i, s := range in {
		out[i] = s.clone()
	}
	return out
}

// WeatherReport is the answer of a weather lookup.
type WeatherReport struct {
	Location    string          `json:"location"`
	Timezone    string          `json:"timezone,omitempty"`
	Units       string          `json:"units"`
	Temperature float64         `json:"temperature"`
	Conditions  string          `json:"conditions"`
	Forecast    []DailyForecast `json:"forecast,omitempty"`
}

type DailyForecast struct {
	Date       string  `json:"date"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Conditions string  `json:"conditions"`
}
