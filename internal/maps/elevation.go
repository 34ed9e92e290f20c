package maps

import (
	"context"
	"fmt"
	"math"
	"net/url"

	"github.com/twpayne/go-polyline"

	errx "github.com/bikepack-planner/server/internal/core/error"
)

const maxElevationSamples = 200

type elevationResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Elevation float64 `json:"elevation"`
	} `json:"results"`
}

// ElevationGain sums the climbs along an encoded polyline.
func (c *Client) ElevationGain(ctx context.Context, encoded string) (int, error) {
	coords, _, err := polyline.DecodeCoords([]byte(encoded))
	if err != nil {
		return 0, errx.Validation("invalid route polyline", err)
	}
	if len(coords) < 2 {
		return 0, nil
	}

	sampled := downsample(coords, maxElevationSamples)
	q := url.Values{
		"path":    {"enc:" + string(polyline.EncodeCoords(sampled))},
		"samples": {fmt.Sprint(len(sampled))},
		"key":     {c.cfg.APIKey},
	}
	var resp elevationResponse
	if err := c.getJSON(ctx, "elevation", c.cfg.ElevationEndpoint, q, &resp); err != nil {
		return 0, err
	}
	if resp.Status != statusOK {
		return 0, errx.External("elevation request failed",
			fmt.Errorf("elevation status %s: %s", resp.Status, resp.ErrorMessage))
	}

	gain := 0.0
	for i := 1; i < len(resp.Results); i++ {
		if d := resp.Results[i].Elevation - resp.Results[i-1].Elevation; d > 0 {
			gain += d
		}
	}
	return int(math.Round(gain)), nil
}

// downsample keeps at most n evenly spaced points, always including both ends.
func downsample(coords [][]float64, n int) [][]float64 {
	if len(coords) <= n || n < 2 {
		return coords
	}
	out := make([][]float64, 0, n)
	step := float64(len(coords)-1) / float64(n-1)
	for i := 0; i < n; i++ {
		out = append(out, coords[int(math.Round(float64(i)*step))])
	}
	return out
}
