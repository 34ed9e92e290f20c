package model

import "context"

// Geocoder resolves place names and coordinates.
type Geocoder interface {
	Geocode(ctx context.Context, placeName string) (Location, error)
	ReverseGeocode(ctx context.Context, point Coordinates) (string, error)
}

// RouteFetcher computes a route through optional intermediates.
type RouteFetcher interface {
	FetchRoute(ctx context.Context, origin, destination Location, intermediates []Location) (Route, error)
}

// Segmenter splits a route into daily segments.
type Segmenter interface {
	Segment(ctx context.Context, route Route, dailyDistanceKM int) ([]Segment, error)
}

// LodgingFinder searches lodging around a point.
type LodgingFinder interface {
	SearchLodging(ctx context.Context, point Coordinates, radiusKM float64) ([]Lodging, error)
}

// WeatherProvider reports current conditions and an optional forecast.
type WeatherProvider interface {
	Weather(ctx context.Context, locationName, units string, forecast bool) (WeatherReport, error)
}
