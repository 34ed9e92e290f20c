package tools

import (
	"context"

	"github.com/cloudwego/eino/components/tool/utils"
	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/graph/parsers"
	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

type GetWeatherInput struct {
	LocationName    string `json:"location_name"`
	Units           string `json:"units,omitempty"`
	IncludeForecast bool   `json:"include_forecast,omitempty"`
}

func newWeatherTool(w model.WeatherProvider) Tool {
	return Plain(utils.NewTool(
		&schema.ToolInfo{
			Name: GetWeather,
			Desc: "Current weather for a place, optionally with a five day forecast.",
			ParamsOneOf: schema.NewParamsOneOfByParams(map[string]*schema.ParameterInfo{
				"location_name": {
					Type:     schema.String,
					Desc:     "Place to report on.",
					Required: true,
				},
				"units": {
					Type: schema.String,
					Desc: "celsius or fahrenheit (default celsius).",
					Enum: []string{"celsius", "fahrenheit"},
				},
				"include_forecast": {
					Type: schema.Boolean,
					Desc: "Also return the daily forecast.",
				},
			}),
		},
		func(ctx context.Context, in *GetWeatherInput) (*model.WeatherReport, error) {
			name := parsers.CleanPlace(in.LocationName)
			if name == "" {
				return nil, errx.Validation("location_name is required", nil)
			}
			report, err := w.Weather(ctx, name, in.Units, in.IncludeForecast)
			if err != nil {
				return nil, err
			}
			return &report, nil
		},
	))
}
