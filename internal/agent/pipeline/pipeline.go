// Package pipeline runs the deterministic part of planning: requirements to
// route, route to daily segments, segments to lodging. Nodes and route
// editing tools share it so both produce the same shapes.
package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

const (
	defaultRadiusKM    = 5
	defaultParallelism = 4
)

type Pipeline struct {
	Geocoder    model.Geocoder
	Router      model.RouteFetcher
	Segmenter   model.Segmenter
	Lodging     model.LodgingFinder
	RadiusKM    float64
	Parallelism int
}

// Plan is a complete recomputation result.
type Plan struct {
	Requirements model.Requirements
	Route        model.Route
	Segments     []model.Segment
}

// Patch expresses the plan as a state update.
func (p Plan) Patch() model.StatePatch {
	req := p.Requirements
	route := p.Route
	return model.StatePatch{Requirements: &req, Route: &route, Segments: model.CloneSegments(p.Segments)}
}

func New(geo model.Geocoder, router model.RouteFetcher, seg model.Segmenter, lodging model.LodgingFinder, cfg model.LodgingConfig) *Pipeline {
	return &Pipeline{
		Geocoder:    geo,
		Router:      router,
		Segmenter:   seg,
		Lodging:     lodging,
		RadiusKM:    cfg.RadiusKM,
		Parallelism: cfg.Parallelism,
	}
}

func (p *Pipeline) radius() float64 {
	if p.RadiusKM > 0 {
		return p.RadiusKM
	}
	return defaultRadiusKM
}

// ResolveLocation geocodes loc when it has no coordinates yet.
func (p *Pipeline) ResolveLocation(ctx context.Context, loc model.Location) (model.Location, error) {
	loc.Name = strings.TrimSpace(loc.Name)
	if !loc.Coordinates.IsZero() {
		return loc, nil
	}
	if loc.Name == "" {
		return model.Location{}, errx.Validation("location needs a name or coordinates", nil)
	}
	return p.Geocoder.Geocode(ctx, loc.Name)
}

// ResolveRequirements checks the trip parameters and fills in missing
// coordinates. The input is not modified.
func (p *Pipeline) ResolveRequirements(ctx context.Context, req model.Requirements) (model.Requirements, error) {
	if req.DailyDistanceKM <= 0 {
		return model.Requirements{}, errx.Validation("daily distance must be a positive number of kilometres", nil)
	}
	out := req
	var err error
	if out.Origin, err = p.ResolveLocation(ctx, req.Origin); err != nil {
		return model.Requirements{}, fmt.Errorf("origin: %w", err)
	}
	if out.Destination, err = p.ResolveLocation(ctx, req.Destination); err != nil {
		return model.Requirements{}, fmt.Errorf("destination: %w", err)
	}
	out.Intermediates = make([]model.Location, 0, len(req.Intermediates))
	for i, stop := range req.Intermediates {
		resolved, err := p.ResolveLocation(ctx, stop)
		if err != nil {
			return model.Requirements{}, fmt.Errorf("waypoint %d: %w", i+1, err)
		}
		out.Intermediates = append(out.Intermediates, resolved)
	}
	return out, nil
}

// Route computes the route described by req.
func (p *Pipeline) Route(ctx context.Context, req model.Requirements) (model.Route, error) {
	return p.Router.FetchRoute(ctx, req.Origin, req.Destination, req.Intermediates)
}

// Segments splits route into days and validates the resulting chain.
func (p *Pipeline) Segments(ctx context.Context, route model.Route, dailyKM int) ([]model.Segment, error) {
	segs, err := p.Segmenter.Segment(ctx, route, dailyKM)
	if err != nil {
		return nil, err
	}
	if err := model.ValidateChain(route, segs); err != nil {
		return nil, err
	}
	return segs, nil
}

// AttachLodging searches around every segment destination and returns a
// copy of segs whose lodging options are replaced by the results.
func (p *Pipeline) AttachLodging(ctx context.Context, segs []model.Segment) ([]model.Segment, error) {
	out := model.CloneSegments(segs)

	limit := p.Parallelism
	if limit <= 0 {
		limit = defaultParallelism
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range out {
		g.Go(func() error {
			found, err := p.SearchDay(gctx, out[i], p.radius())
			if err != nil {
				return fmt.Errorf("day %d lodging: %w", out[i].Day, err)
			}
			out[i].Lodging = found
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// SearchDay looks for lodging at the end of one segment.
func (p *Pipeline) SearchDay(ctx context.Context, seg model.Segment, radiusKM float64) ([]model.Lodging, error) {
	if radiusKM <= 0 {
		radiusKM = p.radius()
	}
	found, err := p.Lodging.SearchLodging(ctx, seg.Route.Destination.Coordinates, radiusKM)
	if err != nil {
		return nil, err
	}
	if found == nil {
		found = []model.Lodging{}
	}
	logx.Debug().Int("day", seg.Day).Int("options", len(found)).Float64("radius_km", radiusKM).Msg("lodging searched")
	return found, nil
}

// Resegment re-splits an existing route and refreshes lodging.
func (p *Pipeline) Resegment(ctx context.Context, route model.Route, dailyKM int) ([]model.Segment, error) {
	segs, err := p.Segments(ctx, route, dailyKM)
	if err != nil {
		return nil, err
	}
	return p.AttachLodging(ctx, segs)
}

// Replan resolves req and recomputes route, segments and lodging from scratch.
func (p *Pipeline) Replan(ctx context.Context, req model.Requirements) (Plan, error) {
	resolved, err := p.ResolveRequirements(ctx, req)
	if err != nil {
		return Plan{}, err
	}
	route, err := p.Route(ctx, resolved)
	if err != nil {
		return Plan{}, err
	}
	segs, err := p.Resegment(ctx, route, resolved.DailyDistanceKM)
	if err != nil {
		return Plan{}, err
	}
	return Plan{Requirements: resolved, Route: route, Segments: segs}, nil
}

// MissingLodging lists the days without any lodging option.
func MissingLodging(segs []model.Segment) []int {
	var days []int
	for _, s := range segs {
		if !s.HasLodging() {
			days = append(days, s.Day)
		}
	}
	return days
}
