package maps

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/twpayne/go-polyline"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// ElevationSource reports climbing for an encoded polyline.
type ElevationSource interface {
	ElevationGain(ctx context.Context, encoded string) (int, error)
}

// Segmenter cuts a route into days of roughly equal distance along its
// polyline. Interior endpoints are named by reverse geocoding.
type Segmenter struct {
	names     model.Geocoder
	elevation ElevationSource
}

// NewSegmenter builds a Segmenter. elevation may be nil.
func NewSegmenter(names model.Geocoder, elevation ElevationSource) *Segmenter {
	return &Segmenter{names: names, elevation: elevation}
}

type cut struct {
	from, to int
	km       float64
}

func toPoint(c []float64) orb.Point {
	return orb.Point{c[1], c[0]}
}

// Segment walks the polyline and closes a day each time the cumulative
// distance reaches the next multiple of dailyDistanceKM. The first origin is
// the route origin and the last destination is the route destination; every
// other origin is the previous day's destination.
func (s *Segmenter) Segment(ctx context.Context, route model.Route, dailyDistanceKM int) ([]model.Segment, error) {
	if dailyDistanceKM <= 0 {
		return nil, errx.Validation("daily distance must be positive", nil)
	}
	coords, _, err := polyline.DecodeCoords([]byte(route.Polyline))
	if err != nil {
		return nil, errx.Validation("invalid route polyline", err)
	}
	if len(coords) < 2 {
		return nil, errx.Validation("route polyline has fewer than two points", nil)
	}

	cuts := splitByDistance(coords, float64(dailyDistanceKM))

	segments := make([]model.Segment, 0, len(cuts))
	for i, c := range cuts {
		origin := route.Origin
		if i > 0 {
			origin = segments[i-1].Route.Destination
		}
		destination := route.Destination
		if i < len(cuts)-1 {
			pt := model.Coordinates{Latitude: coords[c.to][0], Longitude: coords[c.to][1]}
			name, err := s.names.ReverseGeocode(ctx, pt)
			if err != nil {
				return nil, err
			}
			destination = model.Location{Name: name, Coordinates: pt}
		}

		encoded := string(polyline.EncodeCoords(coords[c.from : c.to+1]))
		day := model.Route{
			Polyline:       encoded,
			Origin:         origin,
			Destination:    destination,
			DistanceMeters: int(c.km * 1000),
		}
		if s.elevation != nil {
			gain, err := s.elevation.ElevationGain(ctx, encoded)
			if err != nil {
				logx.Warn().Err(err).Int("day", i+1).Msg("segment elevation lookup failed")
			}
			day.ElevationGainMeters = gain
		}
		segments = append(segments, model.Segment{Day: i + 1, Route: day, Lodging: []model.Lodging{}})
	}

	if err := model.ValidateChain(route, segments); err != nil {
		return nil, errx.Internal(fmt.Sprintf("segmentation produced a broken chain for %d days", len(segments)), err)
	}
	logx.Info().Int("days", len(segments)).Int("daily_km", dailyDistanceKM).Msg("route segmented")
	return segments, nil
}

// splitByDistance returns index ranges over coords. A final partial day is
// kept unless the last cut already landed on the final point.
func splitByDistance(coords [][]float64, dailyKM float64) []cut {
	var (
		cuts   []cut
		total  float64
		dayKM  float64
		from   int
		target = dailyKM
	)
	for i := 0; i < len(coords)-1; i++ {
		d := geo.DistanceHaversine(toPoint(coords[i]), toPoint(coords[i+1])) / 1000
		total += d
		dayKM += d
		if total >= target {
			cuts = append(cuts, cut{from: from, to: i + 1, km: dayKM})
			from, dayKM = i+1, 0
			target += dailyKM
		}
	}
	if from < len(coords)-1 {
		cuts = append(cuts, cut{from: from, to: len(coords) - 1, km: dayKM})
	}
	return cuts
}
