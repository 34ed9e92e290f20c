// Package pipelinetest provides deterministic in-memory collaborators for
// the planning pipeline.
package pipelinetest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

// Unknown is a place name the Geocoder never finds.
const Unknown = "Atlantis"

// Geocoder places every name at latitude 40 and a longitude derived from
// the name length.
type Geocoder struct{}

func (Geocoder) Geocode(_ context.Context, name string) (model.Location, error) {
	name = strings.TrimSpace(name)
	if strings.EqualFold(name, Unknown) {
		return model.Location{}, errx.NotFound(fmt.Sprintf("no results for %q", name), nil)
	}
	return model.Location{Name: name, Coordinates: model.Coordinates{Latitude: 40, Longitude: float64(len(name))}}, nil
}

func (Geocoder) ReverseGeocode(_ context.Context, pt model.Coordinates) (string, error) {
	return fmt.Sprintf("Stop %.0f", pt.Latitude), nil
}

// Router returns straight routes of 100 km plus 20 km per intermediate.
type Router struct {
	mu    sync.Mutex
	err   error
	calls int
}

// FailWith makes every following call return err; nil heals it.
func (r *Router) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Router) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func (r *Router) FetchRoute(_ context.Context, o, d model.Location, via []model.Location) (model.Route, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return model.Route{}, r.err
	}
	return model.Route{
		Polyline:            "_p~iF~ps|U_ulLnnqC",
		Origin:              o,
		Destination:         d,
		DistanceMeters:      100000 + 20000*len(via),
		ElevationGainMeters: 800,
	}, nil
}

// Segmenter cuts routes into whole days; day k ends at latitude k except
// the last, which ends at the route destination.
type Segmenter struct {
	mu  sync.Mutex
	err error
}

// FailWith makes every following call return err; nil heals it.
func (sg *Segmenter) FailWith(err error) {
	sg.mu.Lock()
	defer sg.mu.Unlock()
	sg.err = err
}

func (sg *Segmenter) Segment(_ context.Context, r model.Route, daily int) ([]model.Segment, error) {
	sg.mu.Lock()
	err := sg.err
	sg.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if daily <= 0 {
		return nil, errx.Validation("daily distance must be positive", nil)
	}
	km := r.DistanceMeters / 1000
	days := (km + daily - 1) / daily
	segs := make([]model.Segment, days)
	prev := r.Origin
	left := r.DistanceMeters
	for i := range segs {
		dest := model.Location{Name: fmt.Sprintf("Stop %d", i+1), Coordinates: model.Coordinates{Latitude: float64(i + 1), Longitude: 1}}
		dist := daily * 1000
		if i == days-1 {
			dest = r.Destination
			dist = left
		}
		left -= dist
		segs[i] = model.Segment{
			Day:     i + 1,
			Route:   model.Route{Polyline: r.Polyline, Origin: prev, Destination: dest, DistanceMeters: dist, ElevationGainMeters: r.ElevationGainMeters / days},
			Lodging: []model.Lodging{},
		}
		prev = dest
	}
	return segs, nil
}

// Lodging finds one inn around every point unless the point's latitude is
// listed in Sparse, in which case nothing is found below that radius.
type Lodging struct {
	mu       sync.Mutex
	sparse   map[float64]float64
	err      error
	searches int
}

func NewLodging() *Lodging {
	return &Lodging{sparse: map[float64]float64{}}
}

// Sparse makes the area around day's end empty below minRadiusKM.
func (l *Lodging) Sparse(day int, minRadiusKM float64) *Lodging {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sparse[float64(day)] = minRadiusKM
	return l
}

func (l *Lodging) FailWith(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *Lodging) Searches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.searches
}

func (l *Lodging) SearchLodging(_ context.Context, pt model.Coordinates, radiusKM float64) ([]model.Lodging, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.searches++
	if l.err != nil {
		return nil, l.err
	}
	if need, ok := l.sparse[pt.Latitude]; ok && radiusKM < need {
		return []model.Lodging{}, nil
	}
	return []model.Lodging{{
		Name:    fmt.Sprintf("Inn %.0f/%.0f", pt.Latitude, radiusKM),
		Address: "Main street 1",
		Rating:  4.2,
	}}, nil
}

// Weather reports mild weather everywhere.
type Weather struct{}

func (Weather) Weather(_ context.Context, name, units string, forecast bool) (model.WeatherReport, error) {
	if strings.EqualFold(name, Unknown) {
		return model.WeatherReport{}, errx.NotFound(fmt.Sprintf("no results for %q", name), nil)
	}
	r := model.WeatherReport{Location: name, Units: "celsius", Temperature: 17, Conditions: "Partly cloudy"}
	if forecast {
		r.Forecast = []model.DailyForecast{{Date: "2026-06-01", High: 21, Low: 11, Conditions: "Clear sky"}}
	}
	return r, nil
}

// Fakes bundles one of each collaborator.
type Fakes struct {
	Router    *Router
	Segmenter *Segmenter
	Lodging   *Lodging
	Weather   Weather
}

func NewFakes() *Fakes {
	return &Fakes{Router: &Router{}, Segmenter: &Segmenter{}, Lodging: NewLodging()}
}

// Pipeline wires the fakes with a 5 km default lodging radius.
func (f *Fakes) Pipeline() *pipeline.Pipeline {
	return pipeline.New(Geocoder{}, f.Router, f.Segmenter, f.Lodging, model.LodgingConfig{RadiusKM: 5, MaxResults: 5, Parallelism: 2})
}
