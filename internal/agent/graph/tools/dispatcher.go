package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	"github.com/bikepack-planner/server/internal/metrics"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

// ErrUnknownTool is returned for a request naming an unregistered tool.
var ErrUnknownTool = errx.ErrUnknownTool

// Result is the outcome of one tool call. Content becomes the tool-result
// message; a non-empty Patch makes the call a state-mutation command.
type Result struct {
	Content string
	Patch   model.StatePatch
}

// Handler executes a tool against a read-only view of the state.
type Handler func(ctx context.Context, args string, state *model.ConversationState) (Result, error)

type Tool struct {
	Info   *schema.ToolInfo
	Handle Handler
}

// Plain adapts an eino invokable tool that does not touch state.
func Plain(t tool.InvokableTool) Tool {
	info, err := t.Info(context.Background())
	if err != nil {
		panic(fmt.Sprintf("tool info: %v", err))
	}
	return Tool{
		Info: info,
		Handle: func(ctx context.Context, args string, _ *model.ConversationState) (Result, error) {
			out, err := t.InvokableRun(ctx, args)
			if err != nil {
				return Result{}, err
			}
			return Result{Content: out}, nil
		},
	}
}

// Dispatcher executes tool requests from one toolset.
type Dispatcher struct {
	name    string
	tools   map[string]Tool
	infos   []*schema.ToolInfo
	metrics *metrics.Collectors
	hooks   []einocb.Handler
}

func NewDispatcher(name string, m *metrics.Collectors, set ...Tool) *Dispatcher {
	d := &Dispatcher{name: name, tools: make(map[string]Tool, len(set)), metrics: m}
	for _, t := range set {
		if _, dup := d.tools[t.Info.Name]; dup {
			panic(fmt.Sprintf("toolset %s: duplicate tool %s", name, t.Info.Name))
		}
		d.tools[t.Info.Name] = t
		d.infos = append(d.infos, t.Info)
	}
	return d
}

// WithCallbacks attaches eino tool callbacks to every execution.
func (d *Dispatcher) WithCallbacks(h ...einocb.Handler) *Dispatcher {
	d.hooks = append(d.hooks, h...)
	return d
}

func (d *Dispatcher) Name() string { return d.name }

// Infos returns the tool schemas in registration order.
func (d *Dispatcher) Infos() []*schema.ToolInfo {
	return append([]*schema.ToolInfo(nil), d.infos...)
}

func (d *Dispatcher) Has(name string) bool {
	_, ok := d.tools[name]
	return ok
}

// Execute runs one request. Errors the model can act on (bad arguments,
// unknown places, invalid day numbers) come back as an "error:" result;
// external failures and unknown tool names are returned as errors and
// fail the turn.
func (d *Dispatcher) Execute(ctx context.Context, req model.ToolRequest, state *model.ConversationState) (Result, error) {
	t, ok := d.tools[req.Name]
	if !ok {
		err := fmt.Errorf("toolset %s: %w", d.name, errx.UnknownTool(req.Name))
		d.metrics.ObserveTool(req.Name, err)
		return Result{}, err
	}

	if len(d.hooks) > 0 {
		ctx = einocb.InitCallbacks(ctx, &einocb.RunInfo{Name: req.Name, Type: d.name, Component: components.ComponentOfTool}, d.hooks...)
		ctx = einocb.OnStart(ctx, &tool.CallbackInput{ArgumentsInJSON: req.Arguments})
	}
	started := time.Now()
	res, err := t.Handle(ctx, req.Arguments, state)
	if len(d.hooks) > 0 {
		if err != nil {
			einocb.OnError(ctx, err)
		} else {
			einocb.OnEnd(ctx, &tool.CallbackOutput{Response: res.Content})
		}
	}
	ev := logx.Debug().
		Str("toolset", d.name).
		Str("tool_name", req.Name).
		Str("call_id", req.ID).
		Dur("took", time.Since(started))
	d.metrics.ObserveTool(req.Name, err)
	if err != nil {
		if fatal(ctx, err) {
			ev.Err(err).Msg("tool failed")
			return Result{}, fmt.Errorf("tool %s: %w", req.Name, err)
		}
		ev.Err(err).Msg("tool rejected request")
		return Result{Content: "error: " + explain(err)}, nil
	}
	ev.Bool("command", !res.Patch.IsEmpty()).Msg("tool done")
	return res, nil
}

// ExecuteAll dispatches requests in order against a working copy of state so
// later calls see earlier commands. It returns one merged patch including a
// tool-result message per request, tagged with node.
func (d *Dispatcher) ExecuteAll(ctx context.Context, node string, reqs []model.ToolRequest, state *model.ConversationState) (model.StatePatch, error) {
	working := state.Clone()
	var patch model.StatePatch
	for _, req := range reqs {
		res, err := d.Execute(ctx, req, working)
		if err != nil {
			return model.StatePatch{}, err
		}
		step := res.Patch
		step.Messages = append(append([]model.Message(nil), res.Patch.Messages...),
			model.ToolResultMessage(node, req.ID, req.Name, res.Content))
		patch = patch.Merge(step)
		working = working.Apply(step)
	}
	return patch, nil
}

func fatal(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return true
	}
	switch errx.KindOf(err) {
	case errx.KindExternal, errx.KindUnknownTool, errx.KindLoopBound:
		return true
	}
	return false
}

// explain words a rejected call for the model.
func explain(err error) string {
	var appErr *errx.AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// encode renders a tool result as JSON text for the model.
func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}
