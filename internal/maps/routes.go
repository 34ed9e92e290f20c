package maps

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

const routesFieldMask = "routes.duration,routes.distanceMeters,routes.polyline.encodedPolyline"

// routeStrategy is one attempt at a path. Bicycle routing is not available
// everywhere, so a highway-free drive is tried next.
type routeStrategy struct {
	TravelMode        string
	RoutingPreference string
	Modifiers         *routeModifiers
}

var routeStrategies = []routeStrategy{
	{TravelMode: "BICYCLE"},
	{TravelMode: "DRIVE", RoutingPreference: "TRAFFIC_UNAWARE", Modifiers: &routeModifiers{AvoidHighways: true, AvoidFerries: true}},
}

type latLng struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type waypoint struct {
	Via      bool `json:"via,omitempty"`
	Location struct {
		LatLng latLng `json:"latLng"`
	} `json:"location"`
}

type routeModifiers struct {
	AvoidHighways bool `json:"avoidHighways,omitempty"`
	AvoidFerries  bool `json:"avoidFerries,omitempty"`
}

type routesRequest struct {
	Origin            waypoint        `json:"origin"`
	Destination       waypoint        `json:"destination"`
	Intermediates     []waypoint      `json:"intermediates,omitempty"`
	TravelMode        string          `json:"travelMode"`
	RoutingPreference string          `json:"routingPreference,omitempty"`
	RouteModifiers    *routeModifiers `json:"routeModifiers,omitempty"`
	PolylineQuality   string          `json:"polylineQuality"`
}

type routesResponse struct {
	Routes []struct {
		DistanceMeters int    `json:"distanceMeters"`
		Duration       string `json:"duration"`
		Polyline       struct {
			EncodedPolyline string `json:"encodedPolyline"`
		} `json:"polyline"`
	} `json:"routes"`
}

func toWaypoint(c model.Coordinates, via bool) waypoint {
	var w waypoint
	w.Via = via
	w.Location.LatLng = latLng{Latitude: c.Latitude, Longitude: c.Longitude}
	return w
}

// FetchRoute computes a path from origin to destination passing through the
// intermediates in order. Elevation gain is filled in when available.
func (c *Client) FetchRoute(ctx context.Context, origin, destination model.Location, intermediates []model.Location) (model.Route, error) {
	if origin.Coordinates.IsZero() || destination.Coordinates.IsZero() {
		return model.Route{}, errx.Validation("origin and destination need coordinates", nil)
	}

	headers := map[string]string{
		"X-Goog-Api-Key":   c.cfg.APIKey,
		"X-Goog-FieldMask": routesFieldMask,
	}
	vias := lo.Map(intermediates, func(l model.Location, _ int) waypoint {
		return toWaypoint(l.Coordinates, true)
	})

	var lastErr error
	for _, strategy := range routeStrategies {
		req := routesRequest{
			Origin:            toWaypoint(origin.Coordinates, false),
			Destination:       toWaypoint(destination.Coordinates, false),
			Intermediates:     vias,
			TravelMode:        strategy.TravelMode,
			RoutingPreference: strategy.RoutingPreference,
			RouteModifiers:    strategy.Modifiers,
			PolylineQuality:   "HIGH_QUALITY",
		}
		var resp routesResponse
		if err := c.postJSON(ctx, "compute routes", c.cfg.RoutesEndpoint, headers, req, &resp); err != nil {
			if ctx.Err() != nil {
				return model.Route{}, err
			}
			logx.Warn().Err(err).Str("travel_mode", strategy.TravelMode).Msg("route strategy failed")
			lastErr = err
			continue
		}
		if len(resp.Routes) == 0 || resp.Routes[0].Polyline.EncodedPolyline == "" {
			logx.Debug().Str("travel_mode", strategy.TravelMode).Msg("no route for strategy")
			continue
		}

		best := resp.Routes[0]
		route := model.Route{
			Polyline:       best.Polyline.EncodedPolyline,
			Origin:         origin,
			Destination:    destination,
			DistanceMeters: best.DistanceMeters,
			Duration:       best.Duration,
		}
		gain, err := c.ElevationGain(ctx, route.Polyline)
		if err != nil {
			logx.Warn().Err(err).Msg("elevation lookup failed, reporting zero gain")
		}
		route.ElevationGainMeters = gain

		logx.Info().
			Str("origin", origin.Name).
			Str("destination", destination.Name).
			Int("intermediates", len(intermediates)).
			Str("travel_mode", strategy.TravelMode).
			Int("distance_m", route.DistanceMeters).
			Msg("route computed")
		return route, nil
	}

	if lastErr != nil {
		return model.Route{}, lastErr
	}
	return model.Route{}, errx.Validation(fmt.Sprintf("no route found from %s to %s", origin.Name, destination.Name), nil)
}
