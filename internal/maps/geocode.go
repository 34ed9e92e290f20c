package maps

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

const (
	statusOK          = "OK"
	statusZeroResults = "ZERO_RESULTS"
)

// address component types, most specific first
var placeNameTypes = []string{"locality", "postal_town", "administrative_area_level_2", "administrative_area_level_1"}

type geocodeResponse struct {
	Status       string          `json:"status"`
	ErrorMessage string          `json:"error_message"`
	Results      []geocodeResult `json:"results"`
}

type geocodeResult struct {
	FormattedAddress  string             `json:"formatted_address"`
	AddressComponents []addressComponent `json:"address_components"`
	Geometry          struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
}

type addressComponent struct {
	LongName string   `json:"long_name"`
	Types    []string `json:"types"`
}

// Geocode resolves a free-form place name. The returned location keeps the
// caller's name so the conversation reads naturally.
func (c *Client) Geocode(ctx context.Context, placeName string) (model.Location, error) {
	name := strings.TrimSpace(placeName)
	if name == "" {
		return model.Location{}, errx.Validation("location name is required", nil)
	}

	key := "geocode:" + strings.ToLower(name)
	if v, ok := c.cache.Get(key); ok {
		return v.(model.Location), nil
	}

	var resp geocodeResponse
	q := url.Values{"address": {name}, "key": {c.cfg.APIKey}}
	if err := c.getJSON(ctx, "geocode", c.cfg.GeocodingEndpoint, q, &resp); err != nil {
		return model.Location{}, err
	}

	switch resp.Status {
	case statusOK:
	case statusZeroResults:
		return model.Location{}, errx.NotFound(fmt.Sprintf("could not find coordinates for %q", name), nil)
	default:
		return model.Location{}, errx.External("geocode request failed",
			fmt.Errorf("geocode status %s: %s", resp.Status, resp.ErrorMessage))
	}
	if len(resp.Results) == 0 {
		return model.Location{}, errx.NotFound(fmt.Sprintf("could not find coordinates for %q", name), nil)
	}

	first := resp.Results[0].Geometry.Location
	loc := model.Location{
		Name:        name,
		Coordinates: model.Coordinates{Latitude: first.Lat, Longitude: first.Lng},
	}
	c.cache.SetDefault(key, loc)
	return loc, nil
}

// ReverseGeocode names a point. Lookup problems never fail segmentation:
// the coordinates themselves become the name.
func (c *Client) ReverseGeocode(ctx context.Context, point model.Coordinates) (string, error) {
	fallback := fmt.Sprintf("Location at %.4f,%.4f", point.Latitude, point.Longitude)

	key := "reverse:" + point.String()
	if v, ok := c.cache.Get(key); ok {
		return v.(string), nil
	}

	var resp geocodeResponse
	q := url.Values{"latlng": {point.String()}, "key": {c.cfg.APIKey}}
	if err := c.getJSON(ctx, "reverse geocode", c.cfg.GeocodingEndpoint, q, &resp); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		logx.Warn().Err(err).Str("point", point.String()).Msg("reverse geocode failed, using coordinates")
		return fallback, nil
	}
	if resp.Status != statusOK || len(resp.Results) == 0 {
		return fallback, nil
	}

	name := placeName(resp.Results)
	if name == "" {
		name = fallback
	}
	c.cache.SetDefault(key, name)
	return name, nil
}

func placeName(results []geocodeResult) string {
	for _, typ := range placeNameTypes {
		for _, r := range results {
			comp, ok := lo.Find(r.AddressComponents, func(ac addressComponent) bool {
				return lo.Contains(ac.Types, typ)
			})
			if ok && comp.LongName != "" {
				return comp.LongName
			}
		}
	}
	return results[0].FormattedAddress
}
