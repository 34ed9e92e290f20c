// Package weather reports conditions from the Open-Meteo forecast API.
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	"github.com/bikepack-planner/server/pkg/retry"
)

const forecastDays = 5

// TimezoneFinder maps a point to an IANA zone name. tzf.DefaultFinder
// satisfies it.
type TimezoneFinder interface {
	GetTimezoneName(lng, lat float64) string
}

type Client struct {
	cfg   model.WeatherConfig
	geo   model.Geocoder
	tz    TimezoneFinder
	http  *http.Client
	retry retry.Policy
}

// New builds a weather client. tz may be nil, in which case the zone
// reported by the API is used.
func New(cfg model.WeatherConfig, geo model.Geocoder, tz TimezoneFinder) *Client {
	return &Client{
		cfg:   cfg,
		geo:   geo,
		tz:    tz,
		http:  &http.Client{},
		retry: retry.Policy{Retries: 1, Backoff: 200 * time.Millisecond, Timeout: cfg.Timeout},
	}
}

type forecastResponse struct {
	Timezone string `json:"timezone"`
	Current  struct {
		Temperature float64 `json:"temperature_2m"`
		WeatherCode int     `json:"weather_code"`
	} `json:"current"`
	Daily struct {
		Time        []string  `json:"time"`
		Max         []float64 `json:"temperature_2m_max"`
		Min         []float64 `json:"temperature_2m_min"`
		WeatherCode []int     `json:"weather_code"`
	} `json:"daily"`
}

// NormalizeUnits accepts celsius or fahrenheit, defaulting to celsius.
func NormalizeUnits(units string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(units)) {
	case "", "c", "celsius", "metric":
		return "celsius", nil
	case "f", "fahrenheit", "imperial":
		return "fahrenheit", nil
	default:
		return "", errx.Validation(fmt.Sprintf("unsupported temperature units %q", units), nil)
	}
}

// Weather geocodes locationName and fetches current conditions, plus a
// five day outlook when forecast is set.
func (c *Client) Weather(ctx context.Context, locationName, units string, forecast bool) (model.WeatherReport, error) {
	units, err := NormalizeUnits(units)
	if err != nil {
		return model.WeatherReport{}, err
	}
	loc, err := c.geo.Geocode(ctx, locationName)
	if err != nil {
		return model.WeatherReport{}, err
	}

	q := url.Values{
		"latitude":         {fmt.Sprint(loc.Coordinates.Latitude)},
		"longitude":        {fmt.Sprint(loc.Coordinates.Longitude)},
		"current":          {"temperature_2m,weather_code"},
		"temperature_unit": {units},
		"timezone":         {"auto"},
	}
	if forecast {
		q.Set("daily", "temperature_2m_max,temperature_2m_min,weather_code")
		q.Set("forecast_days", fmt.Sprint(forecastDays))
	}

	var resp forecastResponse
	if err := c.fetch(ctx, q, &resp); err != nil {
		return model.WeatherReport{}, err
	}

	report := model.WeatherReport{
		Location:    loc.Name,
		Timezone:    resp.Timezone,
		Units:       units,
		Temperature: resp.Current.Temperature,
		Conditions:  Describe(resp.Current.WeatherCode),
	}
	if c.tz != nil {
		if name := c.tz.GetTimezoneName(loc.Coordinates.Longitude, loc.Coordinates.Latitude); name != "" {
			report.Timezone = name
		}
	}
	if forecast {
		d := resp.Daily
		n := lo.Min([]int{len(d.Time), len(d.Max), len(d.Min), len(d.WeatherCode)})
		report.Forecast = make([]model.DailyForecast, 0, n)
		for i := 0; i < n; i++ {
			report.Forecast = append(report.Forecast, model.DailyForecast{
				Date:       d.Time[i],
				High:       d.Max[i],
				Low:        d.Min[i],
				Conditions: Describe(d.WeatherCode[i]),
			})
		}
	}
	return report, nil
}

func (c *Client) fetch(ctx context.Context, q url.Values, out any) error {
	err := retry.Do(ctx, c.retry, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
		if err != nil {
			return retry.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode >= 400 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			statusErr := fmt.Errorf("weather: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return statusErr
			}
			return retry.Permanent(statusErr)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("weather: decode response: %w", err))
		}
		return nil
	})
	if err != nil {
		return errx.External("weather request failed", err)
	}
	return nil
}
