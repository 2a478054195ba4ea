// Package tools provides the velomcp MCP tool implementations.
package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/NERVsystems/velomcp/pkg/brouter"
	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/planner"
	"github.com/NERVsystems/velomcp/pkg/profile"
)

// Guidance messages
const (
	GuidanceNoItinerary   = "Try points closer to a road network or a different profile"
	GuidanceParams        = "Parameter values must be numbers, booleans or single-word strings"
	GuidanceEngineTimeout = "The routing engine is slow to answer. Try a shorter route or fewer profiles"
	GuidanceGeneral       = "Please try again later or modify your request parameters"
)

// toolError maps a planner or engine error to the structured error sent to
// the client. Engine details stay in the logs.
func toolError(err error, sets []string) *core.ToolError {
	var te *core.ToolError
	var invalid *profile.InvalidParamError

	switch {
	case errors.As(err, &te):
		return te
	case errors.Is(err, planner.ErrNoItinerary):
		return core.NoItineraryError()
	case errors.As(err, &invalid):
		return core.NewValidationError(core.ErrInvalidParameter, invalid.Error()).
			WithGuidance(GuidanceParams)
	case errors.Is(err, planner.ErrUnknownProfileSet):
		e := core.NewValidationError(core.ErrInvalidParameter, err.Error())
		if len(sets) > 0 {
			e = e.WithGuidance("Known profile sets: " + strings.Join(sets, ", "))
		}
		return e
	case errors.Is(err, profile.ErrUnknownProfile):
		return core.NewValidationError(core.ErrUnknownProfile, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewError(core.ErrServiceTimeout, "Routing engine timed out").
			WithGuidance(GuidanceEngineTimeout)
	case errors.Is(err, context.Canceled):
		return core.NewError(core.ErrServiceUnavailable, "Request cancelled")
	case isEngineError(err):
		return core.NewError(core.ErrServiceUnavailable, "Routing engine request failed").
			WithGuidance(GuidanceGeneral)
	default:
		return core.NewError(core.ErrInternalError, fmt.Sprintf("Failed to process request: %v", err))
	}
}

func isEngineError(err error) bool {
	var upstream *brouter.UpstreamRequestError
	var upload *brouter.ProfileUploadError
	var malformed *brouter.MalformedResponseError
	return errors.As(err, &upstream) || errors.As(err, &upload) || errors.As(err, &malformed)
}
