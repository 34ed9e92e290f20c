package graph

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"github.com/bikepack-planner/server/internal/agent/graph/conversations"
	"github.com/bikepack-planner/server/internal/agent/graph/nodes"
	"github.com/bikepack-planner/server/internal/agent/model"
	errx "github.com/bikepack-planner/server/internal/core/error"
	"github.com/bikepack-planner/server/internal/metrics"
	logx "github.com/bikepack-planner/server/pkg/logger"
)

const defaultMaxSteps = 40

// ErrLoopBound is wrapped by the error of a turn that hit the step cap.
var ErrLoopBound = errx.ErrLoopBound

// interruptedResult answers tool requests left open by an abandoned turn.
const interruptedResult = "error: turn interrupted"

// continuedNodes are the model-free pipeline nodes. A turn interrupted at
// one of them is continued from its cursor by the next user message
// instead of being abandoned.
var continuedNodes = map[string]bool{
	nodes.NodeRouteCalculation: true,
	nodes.NodeSegmentation:     true,
	nodes.NodeLodgingSearch:    true,
}

// Engine runs turns over the node graph and checkpoints after every node.
type Engine struct {
	nodes    map[string]nodes.Node
	store    model.CheckpointStore
	maxSteps int
	metrics  *metrics.Collectors
}

// NewEngine checks that every branch target is a registered node or
// Suspend.
func NewEngine(store model.CheckpointStore, cfg model.EngineConfig, m *metrics.Collectors, ns ...nodes.Node) (*Engine, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: nil checkpoint store")
	}
	e := &Engine{
		nodes:    make(map[string]nodes.Node, len(ns)),
		store:    store,
		maxSteps: cfg.MaxSteps,
		metrics:  m,
	}
	if e.maxSteps <= 0 {
		e.maxSteps = defaultMaxSteps
	}
	for _, n := range ns {
		if n.Run == nil || n.Next == nil {
			return nil, fmt.Errorf("engine: node %q is incomplete", n.Name)
		}
		if _, dup := e.nodes[n.Name]; dup {
			return nil, fmt.Errorf("engine: node %q registered twice", n.Name)
		}
		e.nodes[n.Name] = n
	}
	for _, n := range ns {
		for target := range n.Branches {
			if _, ok := e.nodes[target]; !ok && target != nodes.Suspend {
				return nil, fmt.Errorf("engine: node %q branches to unknown node %q", n.Name, target)
			}
		}
	}
	return e, nil
}

// State loads the checkpoint of a session.
func (e *Engine) State(ctx context.Context, sessionID string) (*model.ConversationState, error) {
	return e.store.Get(ctx, sessionID)
}

// RunTurn handles one inbound user message. The message and any cleanup of
// an interrupted turn are persisted together with the first node's patch,
// so a turn failing at its first node leaves the checkpoint untouched.
// A turn interrupted inside the route pipeline is picked up where it
// stopped; any other interrupted turn is abandoned.
func (e *Engine) RunTurn(ctx context.Context, sessionID, text string, sink model.Sink) (*model.TurnResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, e.fail(sessionID, "", errx.Validation("message must not be empty", nil), sink)
	}
	state, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, e.fail(sessionID, "", err, sink)
	}

	var cur model.Cursor
	switch {
	case state.Pending != nil && continuedNodes[state.Pending.Node]:
		cur = *state.Pending
		logx.Info().Str("session_id", sessionID).Str("node", cur.Node).Msg("Continuing interrupted pipeline")
	case state.Pending != nil:
		state = abandon(sessionID, state)
	}
	state = state.Apply(model.StatePatch{Messages: []model.Message{model.UserMessage(text)}})
	if cur.Node == "" {
		cur.Node = ResolveEntry(state)
	}

	logx.Info().Str("session_id", sessionID).Str("entry", cur.Node).Msg("Turn started")
	return e.run(ctx, sessionID, state, cur, sink)
}

// Resume continues a turn that stopped before reaching suspend, from the
// node recorded in its last checkpoint.
func (e *Engine) Resume(ctx context.Context, sessionID string, sink model.Sink) (*model.TurnResult, error) {
	state, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, e.fail(sessionID, "", err, sink)
	}
	if state.Pending == nil {
		return nil, e.fail(sessionID, "", errx.Conflict("session has no interrupted turn", nil), sink)
	}
	logx.Info().Str("session_id", sessionID).Str("node", state.Pending.Node).Msg("Turn resumed")
	return e.run(ctx, sessionID, state, *state.Pending, sink)
}

func (e *Engine) run(ctx context.Context, sessionID string, state *model.ConversationState, cur model.Cursor, sink model.Sink) (*model.TurnResult, error) {
	var produced []model.Message
	for step := 1; ; step++ {
		if step > e.maxSteps {
			return nil, e.fail(sessionID, cur.Node, errx.LoopBound(e.maxSteps), sink)
		}
		if err := ctx.Err(); err != nil {
			return nil, e.fail(sessionID, cur.Node, fmt.Errorf("turn stopped before %s: %w", cur.Node, err), sink)
		}
		node, ok := e.nodes[cur.Node]
		if !ok {
			return nil, e.fail(sessionID, cur.Node, errx.Internal("unknown node", fmt.Errorf("node %q is not registered", cur.Node)), sink)
		}

		sink.Emit(model.Event{Type: model.EventProcessing, SessionID: sessionID, Node: node.Name})
		patch, err := e.execute(ctx, node, state)
		if err != nil {
			return nil, e.fail(sessionID, node.Name, err, sink)
		}
		next := state.Apply(patch)

		tr, err := e.route(node, cur, next)
		if err != nil {
			return nil, e.fail(sessionID, node.Name, err, sink)
		}
		next = next.Apply(tr.Set)
		if err := next.Validate(); err != nil {
			return nil, e.fail(sessionID, node.Name, fmt.Errorf("%s produced an invalid state: %w", node.Name, err), sink)
		}
		switch {
		case tr.Next == nodes.Suspend:
			next.Pending = nil
		case tr.Via != "":
			next.Pending = &model.Cursor{Node: tr.Via, Then: tr.Next}
		default:
			next.Pending = &model.Cursor{Node: tr.Next}
		}

		if err := e.store.Put(ctx, sessionID, next); err != nil {
			return nil, e.fail(sessionID, node.Name, err, sink)
		}
		state = next

		logx.Debug().
			Str("session_id", sessionID).
			Str("node", node.Name).
			Int("step", step).
			Str("next", lo.Ternary(tr.Via != "", tr.Via, tr.Next)).
			Msg("Node completed")

		for _, m := range append(patch.Messages, tr.Set.Messages...) {
			produced = append(produced, m)
			sink.Emit(model.Event{Type: model.EventMessage, SessionID: sessionID, Node: node.Name, Message: &m})
		}
		progress := state.Progress()
		sink.Emit(model.Event{Type: model.EventStateUpdate, SessionID: sessionID, Node: node.Name, Progress: &progress})

		if tr.Next == nodes.Suspend {
			status := lo.Ternary(tr.Terminal, model.TurnCompleted, model.TurnSuspended)
			result := &model.TurnResult{
				SessionID: sessionID,
				Status:    status,
				Messages:  lo.Ternary(produced == nil, []model.Message{}, produced),
				Steps:     step,
				LastNode:  node.Name,
				Progress:  progress,
			}
			e.metrics.ObserveTurn(string(status))
			logx.Info().
				Str("session_id", sessionID).
				Str("status", string(status)).
				Int("steps", step).
				Str("last_node", node.Name).
				Msg("Turn finished")
			sink.Emit(model.Event{Type: model.EventComplete, SessionID: sessionID, Node: node.Name, Result: result})
			return result, nil
		}
		cur = *state.Pending
	}
}

// execute runs node on a private copy of state.
func (e *Engine) execute(ctx context.Context, node nodes.Node, state *model.ConversationState) (model.StatePatch, error) {
	started := time.Now()
	err := state.Require(node.Name, node.Requires...)
	var patch model.StatePatch
	if err == nil {
		patch, err = node.Run(ctx, state.Clone())
	}
	e.metrics.ObserveNode(node.Name, started, err)
	return patch, err
}

// route picks the successor. A forced continuation skips the predicate;
// otherwise the predicate's choice must be one of the node's branches.
func (e *Engine) route(node nodes.Node, cur model.Cursor, state *model.ConversationState) (nodes.Transition, error) {
	if cur.Then != "" {
		return nodes.Transition{Next: cur.Then}, nil
	}
	tr := node.Next(state)
	if !node.Branches[tr.Next] {
		return tr, errx.Internal("routing violation", fmt.Errorf("%s routed to %q outside its branches", node.Name, tr.Next))
	}
	if tr.Via != "" && !node.Branches[tr.Via] {
		return tr, errx.Internal("routing violation", fmt.Errorf("%s routed via %q outside its branches", node.Name, tr.Via))
	}
	return tr, nil
}

func (e *Engine) fail(sessionID, node string, err error, sink model.Sink) error {
	e.metrics.ObserveTurn("failed")
	logx.Error().
		Err(err).
		Str("session_id", sessionID).
		Str("node", node).
		Str("kind", string(errx.KindOf(err))).
		Msg("Turn failed")
	sink.Emit(model.Event{
		Type:      model.EventError,
		SessionID: sessionID,
		Node:      node,
		Error:     errx.MessageOf(err),
		Kind:      string(errx.KindOf(err)),
	})
	return err
}

// abandon closes a turn that never reached suspend: open tool requests
// get an error result and the cursor is dropped.
func abandon(sessionID string, s *model.ConversationState) *model.ConversationState {
	node := s.Pending.Node
	dangling := conversations.DanglingRequests(s.Messages)
	out := s.Apply(model.StatePatch{Messages: lo.Map(dangling, func(r model.ToolRequest, _ int) model.Message {
		return model.ToolResultMessage(node, r.ID, r.Name, interruptedResult)
	})})
	out.Pending = nil
	logx.Warn().
		Str("session_id", sessionID).
		Str("node", node).
		Int("dangling_requests", len(dangling)).
		Msg("Abandoning interrupted turn")
	return out
}
