package parsers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	errx "github.com/bikepack-planner/server/internal/core/error"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// basic safety limits to avoid pathological model output
const (
	maxArgumentsLen = 32 * 1024
	maxErrSnippet   = 200
)

// Number is a lenient numeric argument. Models send 80, 80.0, "80" and
// "80 km" interchangeably.
type Number float64

func (n *Number) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := ParseNumber(s)
		if err != nil {
			return err
		}
		*n = Number(v)
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("number parse: %w", err)
	}
	*n = Number(v)
	return nil
}

// Int rounds to the nearest integer.
func (n Number) Int() int {
	return int(math.Round(float64(n)))
}

// ParseNumber reads the leading number of s, ignoring a trailing unit.
func ParseNumber(s string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(s))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty number")
	}
	head := strings.TrimRight(strings.ToLower(fields[0]), "kmi")
	v, err := strconv.ParseFloat(head, 64)
	if err != nil {
		return 0, fmt.Errorf("number parse %q: %w", safeSnippet(s), err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid number %q", safeSnippet(s))
	}
	return v, nil
}

// DecodeArguments unmarshals a tool call's JSON arguments into out. Empty
// arguments decode as an empty object and a markdown code fence around the
// JSON is tolerated. Failures are validation errors so they can be reported
// back to the model.
func DecodeArguments(raw string, out any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("component", "arguments_parser").Msgf("panic recovered: %v", r)
			err = errx.New(fmt.Errorf("arguments parser panic"), http.StatusInternalServerError, errx.SystemErrorMessage)
		}
	}()

	if len(raw) > maxArgumentsLen {
		return errx.Validation("tool arguments too large", nil)
	}
	if !utf8.ValidString(raw) {
		return errx.Validation("tool arguments are not valid utf8", nil)
	}
	s := stripFence(strings.TrimSpace(raw))
	if s == "" {
		s = "{}"
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return errx.Validation(fmt.Sprintf("invalid tool arguments: %s", safeSnippet(s)), err)
	}
	return nil
}

func stripFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// CleanPlace normalises a place name: trims quotes and collapses whitespace.
func CleanPlace(s string) string {
	s = strings.Trim(strings.TrimSpace(s), `"'`)
	return strings.Join(strings.Fields(s), " ")
}

// SamePlace compares place names ignoring case and spacing.
func SamePlace(a, b string) bool {
	return strings.EqualFold(CleanPlace(a), CleanPlace(b))
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func safeSnippet(s string) string {
	if len(s) <= maxErrSnippet {
		return s
	}
	return s[:maxErrSnippet] + "..."
}
