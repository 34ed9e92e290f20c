package maps

import (
	"context"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/model"
)

const (
	placesFieldMask = "places.displayName,places.formattedAddress,places.googleMapsUri,places.rating"
	maxRadiusMeters = 50000
)

type nearbyRequest struct {
	IncludedTypes       []string `json:"includedTypes"`
	MaxResultCount      int      `json:"maxResultCount"`
	LocationRestriction struct {
		Circle struct {
			Center latLng  `json:"center"`
			Radius float64 `json:"radius"`
		} `json:"circle"`
	} `json:"locationRestriction"`
}

type place struct {
	DisplayName struct {
		Text string `json:"text"`
	} `json:"displayName"`
	FormattedAddress string  `json:"formattedAddress"`
	GoogleMapsURI    string  `json:"googleMapsUri"`
	Rating           float64 `json:"rating"`
}

type nearbyResponse struct {
	Places []place `json:"places"`
}

// SearchLodging lists lodging within radiusKM of point. An empty list is a
// valid answer.
func (c *Client) SearchLodging(ctx context.Context, point model.Coordinates, radiusKM float64) ([]model.Lodging, error) {
	radius := math.Min(math.Max(radiusKM*1000, 100), maxRadiusMeters)

	key := fmt.Sprintf("lodging:%s:%.0f", point.String(), radius)
	if v, ok := c.cache.Get(key); ok {
		return append([]model.Lodging(nil), v.([]model.Lodging)...), nil
	}

	var req nearbyRequest
	req.IncludedTypes = []string{"lodging"}
	req.MaxResultCount = c.maxResults
	req.LocationRestriction.Circle.Center = latLng{Latitude: point.Latitude, Longitude: point.Longitude}
	req.LocationRestriction.Circle.Radius = radius

	headers := map[string]string{
		"X-Goog-Api-Key":   c.cfg.APIKey,
		"X-Goog-FieldMask": placesFieldMask,
	}
	var resp nearbyResponse
	if err := c.postJSON(ctx, "search nearby", c.cfg.PlacesEndpoint, headers, req, &resp); err != nil {
		return nil, err
	}

	found := lo.FilterMap(resp.Places, func(p place, _ int) (model.Lodging, bool) {
		return model.Lodging{
			Name:    p.DisplayName.Text,
			Address: p.FormattedAddress,
			MapLink: p.GoogleMapsURI,
			Rating:  p.Rating,
		}, p.DisplayName.Text != ""
	})
	if len(found) > c.maxResults {
		found = found[:c.maxResults]
	}
	c.cache.SetDefault(key, found)
	return append([]model.Lodging(nil), found...), nil
}
