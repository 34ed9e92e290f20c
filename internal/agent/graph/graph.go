package graph

import (
	"context"
	"fmt"

	einocb "github.com/cloudwego/eino/callbacks"
	einomodel "github.com/cloudwego/eino/components/model"

	"github.com/bikepack-planner/server/internal/agent/graph/conversations"
	"github.com/bikepack-planner/server/internal/agent/graph/llm"
	"github.com/bikepack-planner/server/internal/agent/graph/nodes"
	"github.com/bikepack-planner/server/internal/agent/graph/observers"
	"github.com/bikepack-planner/server/internal/agent/graph/tools"
	"github.com/bikepack-planner/server/internal/agent/model"
	"github.com/bikepack-planner/server/internal/agent/pipeline"
	"github.com/bikepack-planner/server/internal/metrics"
	logx "github.com/bikepack-planner/server/pkg/logger"
	"github.com/bikepack-planner/server/pkg/retry"
)

// Runner executes turns against persisted sessions.
type Runner interface {
	RunTurn(ctx context.Context, sessionID, text string, sink model.Sink) (*model.TurnResult, error)
	Resume(ctx context.Context, sessionID string, sink model.Sink) (*model.TurnResult, error)
	State(ctx context.Context, sessionID string) (*model.ConversationState, error)
}

// NodeModel is the chat model and sampling config of one model-calling node.
type NodeModel struct {
	Chat   einomodel.ToolCallingChatModel
	Config model.ChatModelConfig
}

// ChatModels holds one model per model-calling node.
type ChatModels struct {
	Planner   NodeModel
	Optimiser NodeModel
	Reviewer  NodeModel
	Writer    NodeModel
}

// ChatModelConfigs are the per-node model settings.
type ChatModelConfigs struct {
	Planner   model.ChatModelConfig
	Optimiser model.ChatModelConfig
	Reviewer  model.ChatModelConfig
	Writer    model.ChatModelConfig
}

// NewChatModels creates the node models from one provider factory.
func NewChatModels(ctx context.Context, f *llm.Factory, cfg ChatModelConfigs) (ChatModels, error) {
	var out ChatModels
	for _, slot := range []struct {
		name string
		cfg  model.ChatModelConfig
		dst  *NodeModel
	}{
		{nodes.NodePlanning, cfg.Planner, &out.Planner},
		{nodes.NodeOptimization, cfg.Optimiser, &out.Optimiser},
		{nodes.NodeReview, cfg.Reviewer, &out.Reviewer},
		{nodes.NodeItineraryWriting, cfg.Writer, &out.Writer},
	} {
		chat, err := f.ChatModel(ctx, slot.cfg)
		if err != nil {
			return ChatModels{}, fmt.Errorf("%s chat model: %w", slot.name, err)
		}
		*slot.dst = NodeModel{Chat: chat, Config: slot.cfg}
	}
	return out, nil
}

// Config holds everything needed to build the planner graph.
type Config struct {
	Store        model.CheckpointStore
	Pipeline     *pipeline.Pipeline
	Weather      model.WeatherProvider
	ChatModels   ChatModels
	LLM          model.LLMConfig
	Engine       model.EngineConfig
	Conversation model.ConversationConfig
	Metrics      *metrics.Collectors
}

// GraphBuilder wires toolsets, invokers and nodes into an Engine.
type GraphBuilder struct {
	config    *Config
	callbacks []einocb.Handler

	planningTools     *tools.Dispatcher
	optimizationTools *tools.Dispatcher
	reviewTools       *tools.Dispatcher

	planner   *llm.Invoker
	optimiser *llm.Invoker
	reviewer  *llm.Invoker
	writer    *llm.Invoker

	nodes []nodes.Node
}

// Build validates cfg and returns the compiled engine.
func Build(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("checkpoint store is nil")
	}
	if cfg.Pipeline == nil {
		return nil, fmt.Errorf("pipeline is nil")
	}
	if cfg.Weather == nil {
		return nil, fmt.Errorf("weather provider is nil")
	}
	cms := cfg.ChatModels
	if cms.Planner.Chat == nil || cms.Optimiser.Chat == nil || cms.Reviewer.Chat == nil || cms.Writer.Chat == nil {
		return nil, fmt.Errorf("chat models are not properly initialized")
	}

	builder := &GraphBuilder{
		config:    &cfg,
		callbacks: []einocb.Handler{observers.NewAllCallbacks()},
	}
	builder.setupTools()
	if err := builder.setupInvokers(ctx); err != nil {
		return nil, err
	}
	builder.addNodes()
	return builder.compile()
}

// setupTools creates the three toolsets.
func (b *GraphBuilder) setupTools() {
	deps := tools.Deps{
		Pipeline:  b.config.Pipeline,
		Weather:   b.config.Weather,
		Metrics:   b.config.Metrics,
		Callbacks: b.callbacks,
	}
	b.planningTools = tools.Planning(deps)
	b.optimizationTools = tools.Optimization(deps)
	b.reviewTools = tools.Review(deps)
}

// setupInvokers binds each node's toolset to its chat model.
func (b *GraphBuilder) setupInvokers(ctx context.Context) error {
	policy := retry.Policy{
		Retries: b.config.LLM.MaxRetries,
		Backoff: b.config.LLM.Backoff,
		Timeout: b.config.LLM.Timeout,
	}
	cms := b.config.ChatModels
	for _, slot := range []struct {
		name  string
		nm    NodeModel
		tools *tools.Dispatcher
		dst   **llm.Invoker
	}{
		{nodes.NodePlanning, cms.Planner, b.planningTools, &b.planner},
		{nodes.NodeOptimization, cms.Optimiser, b.optimizationTools, &b.optimiser},
		{nodes.NodeReview, cms.Reviewer, b.reviewTools, &b.reviewer},
		{nodes.NodeItineraryWriting, cms.Writer, nil, &b.writer},
	} {
		cfg := llm.Config{
			Name:      slot.name,
			Chat:      slot.nm.Chat,
			Model:     slot.nm.Config,
			Retry:     policy,
			Metrics:   b.config.Metrics,
			Callbacks: b.callbacks,
		}
		if slot.tools != nil {
			cfg.Tools = slot.tools.Infos()
		}
		inv, err := llm.NewInvoker(ctx, cfg)
		if err != nil {
			logx.Error().Err(err).Str("node", slot.name).Msg("Failed to build invoker")
			return fmt.Errorf("failed to build %s invoker: %w", slot.name, err)
		}
		*slot.dst = inv
	}
	return nil
}

// addNodes registers every node of the planner graph.
func (b *GraphBuilder) addNodes() {
	p := b.config.Pipeline
	mm := conversations.NewMessagesManager(b.config.Conversation)
	b.nodes = []nodes.Node{
		nodes.NewPlanningNode(b.planner),
		nodes.NewToolExecNode(nodes.NodePlanningTools, b.planningTools, nodes.NodePlanning),
		nodes.NewRequirementsNode(b.planningTools),
		nodes.NewRouteNode(p),
		nodes.NewSegmentationNode(p),
		nodes.NewLodgingNode(p),
		nodes.NewOptimizationNode(b.optimiser),
		nodes.NewToolExecNode(nodes.NodeOptimizationTools, b.optimizationTools, nodes.NodeOptimization),
		nodes.NewReviewNode(b.reviewer, mm),
		nodes.NewToolExecNode(nodes.NodeReviewTools, b.reviewTools, nodes.NodeReview),
		nodes.NewWriterNode(b.writer),
	}
}

// compile checks the branches and returns the engine.
func (b *GraphBuilder) compile() (*Engine, error) {
	engine, err := NewEngine(b.config.Store, b.config.Engine, b.config.Metrics, b.nodes...)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Int("nodes", len(b.nodes)).Msg("Graph compiled successfully")
	return engine, nil
}

var _ Runner = (*Engine)(nil)
