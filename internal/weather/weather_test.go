package weather

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
)

type fixedGeocoder struct{}

func (fixedGeocoder) Geocode(_ context.Context, name string) (model.Location, error) {
	if name == "Nowhere" {
		return model.Location{}, errx.NotFound("no such place", nil)
	}
	return model.Location{Name: name, Coordinates: model.Coordinates{Latitude: 42.1, Longitude: 2.5}}, nil
}

func (fixedGeocoder) ReverseGeocode(context.Context, model.Coordinates) (string, error) {
	return "", nil
}

type zone string

func (z zone) GetTimezoneName(float64, float64) string { return string(z) }

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestWeatherCurrentAndForecast(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "fahrenheit", q.Get("temperature_unit"))
		assert.Equal(t, "5", q.Get("forecast_days"))
		assert.Equal(t, "42.1", q.Get("latitude"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"timezone": "GMT",
			"current":  map[string]any{"temperature_2m": 61.5, "weather_code": 3},
			"daily": map[string]any{
				"time":               []string{"2026-10-19", "2026-10-20"},
				"temperature_2m_max": []float64{65, 66},
				"temperature_2m_min": []float64{50, 51},
				"weather_code":       []int{61, 0},
			},
		})
	})
	c := New(model.WeatherConfig{Endpoint: srv.URL, Timeout: time.Second}, fixedGeocoder{}, zone("Europe/Madrid"))

	report, err := c.Weather(context.Background(), "Olot", "F", true)
	require.NoError(t, err)
	assert.Equal(t, "Olot", report.Location)
	assert.Equal(t, "Europe/Madrid", report.Timezone)
	assert.Equal(t, 61.5, report.Temperature)
	assert.Equal(t, "overcast", report.Conditions)
	require.Len(t, report.Forecast, 2)
	assert.Equal(t, "slight rain", report.Forecast[0].Conditions)
	assert.Equal(t, 51.0, report.Forecast[1].Low)
}

func TestWeatherWithoutForecastUsesAPITimezone(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("daily"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"timezone": "Europe/Madrid",
			"current":  map[string]any{"temperature_2m": 14.0, "weather_code": 0},
		})
	})
	c := New(model.WeatherConfig{Endpoint: srv.URL, Timeout: time.Second}, fixedGeocoder{}, nil)

	report, err := c.Weather(context.Background(), "Olot", "", false)
	require.NoError(t, err)
	assert.Equal(t, "celsius", report.Units)
	assert.Equal(t, "Europe/Madrid", report.Timezone)
	assert.Nil(t, report.Forecast)
}

func TestWeatherErrors(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad", http.StatusBadRequest)
	})
	c := New(model.WeatherConfig{Endpoint: srv.URL, Timeout: time.Second}, fixedGeocoder{}, nil)

	_, err := c.Weather(context.Background(), "Olot", "kelvin", false)
	assert.True(t, errx.IsKind(err, errx.KindValidation))

	_, err = c.Weather(context.Background(), "Nowhere", "", false)
	assert.True(t, errx.IsKind(err, errx.KindNotFound))

	_, err = c.Weather(context.Background(), "Olot", "", false)
	assert.True(t, errx.IsKind(err, errx.KindExternal))
}

func TestDescribeUnknownCode(t *testing.T) {
	assert.Equal(t, "unknown conditions (code 42)", Describe(42))
}
