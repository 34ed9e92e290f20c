package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/ringsaturn/tzf"
	"github.com/spf13/cobra"

	"github.com/bikepack-planner/server/internal/agent/graph"
	"github.com/bikepack-planner/server/internal/agent/graph/llm"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	"github.com/bikepack-planner/server/internal/agent/repo"
	"github.com/bikepack-planner/server/internal/agent/session"
	"github.com/bikepack-planner/server/internal/core"
	"github.com/bikepack-planner/server/internal/maps"
	"github.com/bikepack-planner/server/internal/metrics"
	"github.com/bikepack-planner/server/internal/weather"
	logx "github.com/bikepack-planner/server/pkg/logger"
	pkgredis "github.com/bikepack-planner/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the planner, sourced
// from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`
	HTTPAddr    string `envconfig:"HTTP_ADDR" default:":8080"`

	// Infrastructure
	Redis      pkgredis.Config
	Checkpoint model.CheckpointConfig

	// LLM provider and per node models
	LLM       model.LLMConfig
	Planner   model.ChatModelConfig `envconfig:"PLANNER"`
	Optimiser model.ChatModelConfig `envconfig:"OPTIMISER"`
	Reviewer  model.ChatModelConfig `envconfig:"REVIEWER"`
	Writer    model.ChatModelConfig `envconfig:"WRITER"`

	// Planning services
	Google  model.GoogleConfig
	Lodging model.LodgingConfig
	Weather model.WeatherConfig

	Engine       model.EngineConfig
	Session      model.SessionConfig
	Conversation model.ConversationConfig
}

var appConfig AppConfig

var rootCmd = &cobra.Command{
	Use:           "planner",
	Short:         "Bikepacking trip planner",
	Long:          `Plans multi-day bikepacking trips through a conversation with a team of model-driven nodes.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		envFile, _ := cmd.Flags().GetString("env-file")
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", envFile, err)
		}
		if err := envconfig.Process("", &appConfig); err != nil {
			return fmt.Errorf("process environment config: %w", err)
		}
		logx.Init(logx.LoggerOpts{
			Environment: core.ParseEnvironment(appConfig.Environment),
			Level:       appConfig.LogLevel,
		})
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("env-file", ".env", "Environment file to load when present")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// app is the wired planner shared by the serve and chat commands.
type app struct {
	sessions *session.Service
	registry *prometheus.Registry
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("Shutdown step failed")
		}
	}
}

// buildApp wires the checkpoint store, planning services, chat models and
// engine described by cfg.
func buildApp(ctx context.Context, cfg AppConfig) (*app, error) {
	a := &app{registry: prometheus.NewRegistry()}
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(a.registry)
	if err != nil {
		return nil, fmt.Errorf("register metrics: %w", err)
	}

	store, err := a.checkpointStore(cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	google := maps.NewClient(cfg.Google, maps.WithMaxResults(cfg.Lodging.MaxResults))
	segmenter := maps.NewSegmenter(google, google)
	plan := pipeline.New(google, google, segmenter, google, cfg.Lodging)

	var tz weather.TimezoneFinder
	if finder, err := tzf.NewDefaultFinder(); err != nil {
		logx.Warn().Err(err).Msg("Time zone finder unavailable, using forecast zones")
	} else {
		tz = finder
	}
	forecast := weather.New(cfg.Weather, google, tz)

	factory, err := llm.NewFactory(ctx, cfg.LLM)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create %s model factory: %w", cfg.LLM.Provider, err)
	}
	chatModels, err := graph.NewChatModels(ctx, factory, graph.ChatModelConfigs{
		Planner:   cfg.Planner,
		Optimiser: cfg.Optimiser,
		Reviewer:  cfg.Reviewer,
		Writer:    cfg.Writer,
	})
	if err != nil {
		a.Close()
		return nil, err
	}

	engine, err := graph.Build(ctx, graph.Config{
		Store:        store,
		Pipeline:     plan,
		Weather:      forecast,
		ChatModels:   chatModels,
		LLM:          cfg.LLM,
		Engine:       cfg.Engine,
		Conversation: cfg.Conversation,
		Metrics:      m,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build planner graph: %w", err)
	}

	registry := session.NewRegistry(store, m)
	if _, err := registry.Restore(ctx); err != nil {
		logx.Warn().Err(err).Msg("Could not restore sessions")
	}
	a.sessions = session.NewService(registry, engine)

	logx.Info().
		Str("provider", factory.Provider()).
		Str("store", cfg.Checkpoint.Store).
		Msg("Planner ready")
	return a, nil
}

func (a *app) checkpointStore(cfg AppConfig) (model.CheckpointStore, error) {
	switch cfg.Checkpoint.Store {
	case "memory", "":
		return repo.NewMemoryCheckpointStore(), nil
	case "redis":
		rdb, err := cfg.Redis.New()
		if err != nil {
			return nil, fmt.Errorf("initialise redis client: %w", err)
		}
		a.closers = append(a.closers, rdb.Close)
		logx.Info().Msg("Connected to Redis successfully")
		return repo.NewRedisCheckpointStore(rdb,
			repo.WithTTL(cfg.Checkpoint.TTL),
			repo.WithPrefix(cfg.Checkpoint.Prefix),
		), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint store %q", cfg.Checkpoint.Store)
	}
}
