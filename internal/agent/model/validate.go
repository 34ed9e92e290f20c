package model

import (
	"fmt"

	errx "github.com/bikepack-planner/server/internal/core/error"
)

// Field names a piece of state a node depends on.
type Field string

const (
	FieldRequirements Field = "requirements"
	FieldRoute        Field = "route"
	FieldSegments     Field = "segments"
	// FieldToolRequests requires the last message to be an assistant
	// message carrying tool requests.
	FieldToolRequests Field = "tool_requests"
)

// Require fails with a validation error naming the first absent field.
func (s *ConversationState) Require(node string, fields ...Field) error {
	for _, f := range fields {
		if !s.has(f) {
			return errx.Validation(
				fmt.Sprintf("%s requires %s", node, f),
				fmt.Errorf("state field %q is absent", f),
			)
		}
	}
	return nil
}

func (s *ConversationState) has(f Field) bool {
	switch f {
	case FieldRequirements:
		return s.Requirements != nil
	case FieldRoute:
		return s.Route != nil
	case FieldSegments:
		return len(s.Segments) > 0
	case FieldToolRequests:
		last, ok := s.LastMessage()
		return ok && last.HasToolRequests()
	default:
		return false
	}
}

// Validate checks the structural invariants of the state: day numbering
// and the segment chain against the overall route.
func (s *ConversationState) Validate() error {
	if s.Requirements != nil && s.Requirements.DailyDistanceKM <= 0 {
		return errx.Validation("invalid requirements", fmt.Errorf("daily distance must be positive, got %d", s.Requirements.DailyDistanceKM))
	}
	if len(s.Segments) == 0 {
		return nil
	}
	if s.Route == nil {
		return errx.Validation("invalid segments", fmt.Errorf("segments present without a route"))
	}
	return ValidateChain(*s.Route, s.Segments)
}

// ValidateChain checks that segments join end to start and span route.
func ValidateChain(route Route, segments []Segment) error {
	if len(segments) == 0 {
		return errx.Validation("invalid segments", fmt.Errorf("no segments"))
	}
	for i, seg := range segments {
		if seg.Day != i+1 {
			return errx.Validation("invalid segments", fmt.Errorf("segment %d has day %d", i, seg.Day))
		}
		if i > 0 && segments[i-1].Route.Destination != seg.Route.Origin {
			return errx.Validation("invalid segments", fmt.Errorf("day %d does not start where day %d ends", seg.Day, i))
		}
	}
	if segments[0].Route.Origin != route.Origin {
		return errx.Validation("invalid segments", fmt.Errorf("first day does not start at route origin"))
	}
	if segments[len(segments)-1].Route.Destination != route.Destination {
		return errx.Validation("invalid segments", fmt.Errorf("last day does not end at route destination"))
	}
	return nil
}
