package model

import "time"

// ================ Config ================

// ChatModelConfig configures one node's model. Loaded under a node prefix:
// PLANNER_MODEL wins over the shared MODEL, and the default applies when
// neither is set.
type ChatModelConfig struct {
	Model       string  `envconfig:"MODEL" default:"claude-haiku-4-5-20251001"`
	MaxTokens   int     `envconfig:"MAX_TOKENS" default:"1024"`
	Temperature float32 `envconfig:"TEMPERATURE" default:"0.3"`
}

type LLMConfig struct {
	Provider        string        `envconfig:"LLM_PROVIDER" default:"anthropic"`
	GeminiAPIKey    string        `envconfig:"GEMINI_API_KEY"`
	GeminiBaseURL   string        `envconfig:"GEMINI_BASE_URL"`
	AnthropicAPIKey string        `envconfig:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string        `envconfig:"OPENAI_API_KEY"`
	MaxRetries      int           `envconfig:"LLM_MAX_RETRIES" default:"2"`
	Backoff         time.Duration `envconfig:"LLM_BACKOFF" default:"500ms"`
	Timeout         time.Duration `envconfig:"LLM_TIMEOUT" default:"60s"`
}

type EngineConfig struct {
	MaxSteps int `envconfig:"ENGINE_MAX_STEPS" default:"40"`
}

type GoogleConfig struct {
	APIKey            string        `envconfig:"GOOGLE_API_KEY"`
	GeocodingEndpoint string        `envconfig:"GOOGLE_GEOCODING_ENDPOINT" default:"https://maps.googleapis.com/maps/api/geocode/json"`
	RoutesEndpoint    string        `envconfig:"GOOGLE_ROUTES_ENDPOINT" default:"https://routes.googleapis.com/directions/v2:computeRoutes"`
	PlacesEndpoint    string        `envconfig:"GOOGLE_PLACES_ENDPOINT" default:"https://places.googleapis.com/v1/places:searchNearby"`
	ElevationEndpoint string        `envconfig:"GOOGLE_ELEVATION_ENDPOINT" default:"https://maps.googleapis.com/maps/api/elevation/json"`
	Timeout           time.Duration `envconfig:"GOOGLE_TIMEOUT" default:"10s"`
	MaxRetries        int           `envconfig:"GOOGLE_MAX_RETRIES" default:"2"`
	Backoff           time.Duration `envconfig:"GOOGLE_BACKOFF" default:"300ms"`
	CacheTTL          time.Duration `envconfig:"MAPS_CACHE_TTL" default:"1h"`
}

type LodgingConfig struct {
	RadiusKM    float64 `envconfig:"LODGING_RADIUS_KM" default:"5"`
	MaxResults  int     `envconfig:"LODGING_MAX_RESULTS" default:"5"`
	Parallelism int     `envconfig:"LODGING_PARALLELISM" default:"4"`
}

type WeatherConfig struct {
	Endpoint string        `envconfig:"WEATHER_ENDPOINT" default:"https://api.open-meteo.com/v1/forecast"`
	Timeout  time.Duration `envconfig:"WEATHER_TIMEOUT" default:"10s"`
}

type CheckpointConfig struct {
	Store  string        `envconfig:"STORE" default:"memory"`
	TTL    time.Duration `envconfig:"CHECKPOINT_TTL" default:"24h"`
	Prefix string        `envconfig:"CHECKPOINT_PREFIX" default:"planner"`
}

type SessionConfig struct {
	MaxAge          time.Duration `envconfig:"SESSION_MAX_AGE" default:"24h"`
	CleanupInterval time.Duration `envconfig:"SESSION_CLEANUP_INTERVAL" default:"1h"`
}

// ConversationConfig shapes the context handed to the reviewer.
type ConversationConfig struct {
	ToolWindow    int `envconfig:"REVIEW_TOOL_WINDOW" default:"10"`
	MaxToolOutput int `envconfig:"REVIEW_TOOL_OUTPUT_CHARS" default:"1500"`
}
