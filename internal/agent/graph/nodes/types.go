package nodes

import (
	"context"

	"github.com/cloudwego/eino/schema"

	"github.com/bikepack-planner/server/internal/agent/model"
)

// Node names.
const (
	NodePlanning               = "planning"
	NodePlanningTools          = "planning_tools"
	NodeRequirementsValidation = "requirements_validation"
	NodeRouteCalculation       = "route_calculation"
	NodeSegmentation           = "segmentation"
	NodeLodgingSearch          = "lodging_search"
	NodeOptimization           = "optimization"
	NodeOptimizationTools      = "optimization_tools"
	NodeReview                 = "review"
	NodeReviewTools            = "review_tools"
	NodeItineraryWriting       = "itinerary_writing"
)

// Suspend ends the turn and waits for the next user message.
const Suspend = "__suspend__"

// Func runs a node against its own copy of the state and returns the
// patch to apply. It must not touch anything else.
type Func func(ctx context.Context, state *model.ConversationState) (model.StatePatch, error)

// Condition is a node's routing predicate, evaluated on the state after
// the node's patch is applied.
type Condition func(state *model.ConversationState) Transition

// Transition is a routing decision.
type Transition struct {
	// Next is a node name or Suspend.
	Next string
	// Via, when set, runs before Next and its own predicate is skipped.
	Via string
	// Set is applied together with the node's patch.
	Set model.StatePatch
	// Terminal marks the end of the conversation goal.
	Terminal bool
}

// Node is one unit of work in the planner graph.
type Node struct {
	Name     string
	Requires []model.Field
	Run      Func
	Next     Condition
	// Branches lists every target Next may choose.
	Branches map[string]bool
}

// Invoker calls the node's language model.
type Invoker interface {
	Invoke(ctx context.Context, node, system string, history []model.Message, extra ...*schema.Message) (model.Message, error)
}

func branches(names ...string) map[string]bool {
	out := make(map[string]bool, len(names))
	for _, n := range names {
		out[n] = true
	}
	return out
}

func always(next string) Condition {
	return func(*model.ConversationState) Transition {
		return Transition{Next: next}
	}
}
