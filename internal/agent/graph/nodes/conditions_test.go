package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/bikepack-planner/server/internal/agent/graph/tools"
	"github.com/bikepack-planner/server/internal/agent/model"
)

func withLast(msgs ...model.Message) *model.ConversationState {
	s := model.NewConversationState()
	s.Messages = append(s.Messages, msgs...)
	return s
}

func asking(node string, names ...string) model.Message {
	reqs := make([]model.ToolRequest, 0, len(names))
	for i, n := range names {
		reqs = append(reqs, model.ToolRequest{ID: n + string(rune('a'+i)), Name: n, Arguments: "{}"})
	}
	return model.AssistantMessage(node, "", reqs)
}

func TestPlanningCondition(t *testing.T) {
	cond := NewPlanningCondition()

	assert.Equal(t, Suspend, cond(withLast(model.AssistantMessage(NodePlanning, "Where to?", nil))).Next)
	assert.Equal(t, NodeRequirementsValidation, cond(withLast(asking(NodePlanning, tools.GetLocation, tools.SubmitRequirements))).Next)
	assert.Equal(t, NodePlanningTools, cond(withLast(asking(NodePlanning, tools.GetLocation))).Next)
	assert.Equal(t, Suspend, cond(model.NewConversationState()).Next)
}

func TestLodgingCondition(t *testing.T) {
	cond := NewLodgingCondition()
	s := model.NewConversationState()
	assert.Equal(t, NodeOptimization, cond(s).Next)
	s.CriticalOptimizationDone = true
	assert.Equal(t, NodeReview, cond(s).Next)
}

func TestOptimizationCondition(t *testing.T) {
	cond := NewOptimizationCondition()

	done := cond(withLast(model.AssistantMessage(NodeOptimization, "All good.", nil)))
	assert.Equal(t, NodeReview, done.Next)
	assert.Empty(t, done.Via)
	if assert.NotNil(t, done.Set.CriticalOptimizationDone) {
		assert.True(t, *done.Set.CriticalOptimizationDone)
	}

	confirm := cond(withLast(asking(NodeOptimization, tools.ConfirmRoute)))
	assert.Equal(t, NodeReview, confirm.Next)
	assert.Equal(t, NodeOptimizationTools, confirm.Via)
	assert.True(t, confirm.Set.IsEmpty())

	fix := cond(withLast(asking(NodeOptimization, tools.SearchAccommodationForDay)))
	assert.Equal(t, NodeOptimizationTools, fix.Next)
	assert.Empty(t, fix.Via)
}

func TestReviewCondition(t *testing.T) {
	cond := NewReviewCondition()

	s := withLast(model.AssistantMessage(NodeReview, "Here is your route", nil))
	wait := cond(s)
	assert.Equal(t, Suspend, wait.Next)
	if assert.NotNil(t, wait.Set.AwaitingUserResponse) {
		assert.True(t, *wait.Set.AwaitingUserResponse)
	}

	s.UserConfirmed = true
	assert.Equal(t, NodeItineraryWriting, cond(s).Next)

	s = withLast(asking(NodeReview, tools.GetWeather))
	s.UserConfirmed = true
	assert.Equal(t, NodeReviewTools, cond(s).Next)
}

func TestWritingConditionIsTerminal(t *testing.T) {
	tr := NewWritingCondition()(model.NewConversationState())
	assert.Equal(t, Suspend, tr.Next)
	assert.True(t, tr.Terminal)
}

func TestConditionsStayWithinBranches(t *testing.T) {
	states := []*model.ConversationState{
		model.NewConversationState(),
		withLast(model.AssistantMessage("x", "text", nil)),
		withLast(asking("x", tools.SubmitRequirements)),
		withLast(asking("x", tools.ConfirmRoute)),
		withLast(asking("x", tools.GetWeather)),
	}
	for _, confirmed := range []bool{false, true} {
		for _, done := range []bool{false, true} {
			for _, base := range states {
				s := base.Clone()
				s.UserConfirmed = confirmed
				s.CriticalOptimizationDone = done
				for _, n := range []Node{
					{Name: NodePlanning, Next: NewPlanningCondition(), Branches: branches(Suspend, NodeRequirementsValidation, NodePlanningTools)},
					{Name: NodeLodgingSearch, Next: NewLodgingCondition(), Branches: branches(NodeReview, NodeOptimization)},
					{Name: NodeOptimization, Next: NewOptimizationCondition(), Branches: branches(NodeReview, NodeOptimizationTools)},
					{Name: NodeReview, Next: NewReviewCondition(), Branches: branches(NodeReviewTools, NodeItineraryWriting, Suspend)},
				} {
					tr := n.Next(s)
					assert.True(t, n.Branches[tr.Next], "%s chose %s", n.Name, tr.Next)
				}
			}
		}
	}
}
