package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/graph/parsers"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

type GetLocationInput struct {
	PlaceName string `json:"place_name"`
}

type GetLocationOutput struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func newGetLocationTool(geo model.Geocoder) Tool {
	return Plain(utils.NewTool(
		&schema.ToolInfo{
			Name: GetLocation,
			Desc: "Look up the coordinates of a town, city or landmark. Use it to check that a place the rider mentions exists before planning around it.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"place_name": {
					Type:     schema.String,
					Desc:     "Place name, ideally with region or country, e.g. \"Olot, Catalonia\".",
					Required: true,
				},
			}),
		},
		func(ctx context.Context, in *GetLocationInput) (*GetLocationOutput, error) {
			name := parsers.CleanPlace(in.PlaceName)
			if name == "" {
				return nil, errx.Validation("place_name is required", nil)
			}
			loc, err := geo.Geocode(ctx, name)
			if err != nil {
				return nil, err
			}
			return &GetLocationOutput{Name: loc.Name, Latitude: loc.Coordinates.Latitude, Longitude: loc.Coordinates.Longitude}, nil
		},
	))
}

type FindAccommodationInput struct {
	PlaceName string         `json:"place_name"`
	RadiusKM  parsers.Number `json:"radius_km,omitempty"`
}

type FindAccommodationOutput struct {
	Location string          `json:"location"`
	RadiusKM float64         `json:"radius_km"`
	Count    int             `json:"count"`
	Options  []model.Lodging `json:"options"`
}

func newFindAccommodationTool(p *pipeline.Pipeline) Tool {
	return Plain(utils.NewTool(
		&schema.ToolInfo{
			Name: FindAccommodationAtLocation,
			Desc: "List places to stay near a named location. Useful when the rider asks where they could sleep somewhere specific.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"place_name": {
					Type:     schema.String,
					Desc:     "Where to search.",
					Required: true,
				},
				"radius_km": {
					Type: schema.Number,
					Desc: "Search radius in kilometres (default 5, max 50).",
				},
			}),
		},
		func(ctx context.Context, in *FindAccommodationInput) (*FindAccommodationOutput, error) {
			name := parsers.CleanPlace(in.PlaceName)
			if name == "" {
				return nil, errx.Validation("place_name is required", nil)
			}
			loc, err := p.Geocoder.Geocode(ctx, name)
			if err != nil {
				return nil, err
			}
			radius := radiusOrDefault(in.RadiusKM, p.RadiusKM)
			found, err := p.Lodging.SearchLodging(ctx, loc.Coordinates, radius)
			if err != nil {
				return nil, fmt.Errorf("lodging near %s: %w", name, err)
			}
			if found == nil {
				found = []model.Lodging{}
			}
			return &FindAccommodationOutput{Location: loc.Name, RadiusKM: radius, Count: len(found), Options: found}, nil
		},
	))
}

func radiusOrDefault(n parsers.Number, fallback float64) float64 {
	if n <= 0 {
		if fallback > 0 {
			return fallback
		}
		return 5
	}
	return parsers.Clamp(float64(n), 1, 50)
}
