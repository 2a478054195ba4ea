package tools

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/velomcp/pkg/coords"
	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/planner"
	"github.com/NERVsystems/velomcp/pkg/profile"
)

// mgrsPrecision is 1 m resolution
const mgrsPrecision = 5

// PlanItinerariesInput defines the input of plan_itineraries
type PlanItinerariesInput struct {
	Start      *core.Endpoint `json:"start"`
	End        *core.Endpoint `json:"end"`
	Profiles   []string       `json:"profiles,omitempty"`
	ProfileSet string         `json:"profile_set,omitempty"`
	Mountain   bool           `json:"mountain,omitempty"`
	Electric   bool           `json:"electric,omitempty"`
	// BestOnly defaults to true when absent
	BestOnly *bool          `json:"best_only,omitempty"`
	Params   profile.Params `json:"params,omitempty"`
}

// EndpointInfo echoes a resolved endpoint back to the client
type EndpointInfo struct {
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	InputFormat string  `json:"input_format"`
	MGRS        string  `json:"mgrs,omitempty"`
}

// PlanItinerariesOutput defines the output of plan_itineraries
type PlanItinerariesOutput struct {
	PlanID      string                 `json:"plan_id"`
	Start       EndpointInfo           `json:"start"`
	End         EndpointInfo           `json:"end"`
	Profiles    []string               `json:"profiles"`
	Candidates  int                    `json:"candidates"`
	Itineraries []*itinerary.Itinerary `json:"itineraries"`
	CarDistance *int                   `json:"car_distance,omitempty"`
}

// PlanItinerariesTool returns the plan_itineraries tool definition
func (r *Registry) PlanItinerariesTool() mcp.Tool {
	return r.factory.CreateRouteTool("plan_itineraries",
		"Plan bicycle itineraries between two points. Every profile and alternative is fetched from the routing engine; itineraries both slower and less safe than another are dropped, as are near-identical ones.",
		mcp.WithArray("profiles",
			mcp.Description(r.factory.ProfileDescription("Profiles to query, in display order. Overrides profile_set")),
			mcp.Items(map[string]any{"type": "string"}),
		),
		mcp.WithString("profile_set",
			mcp.Description("Named profile selection: "+joinOr(r.planner.ProfileSets(), "none configured")),
		),
		mcp.WithBoolean("mountain",
			mcp.Description("Accept unpaved tracks and trails"),
			mcp.DefaultBool(false),
		),
		mcp.WithBoolean("electric",
			mcp.Description("Plan for an electrically assisted bicycle"),
			mcp.DefaultBool(false),
		),
		mcp.WithBoolean("best_only",
			mcp.Description("Drop itineraries dominated on both time and safety. Near-identical itineraries are always merged."),
			mcp.DefaultBool(true),
		),
	)
}

// HandlePlanItineraries implements itinerary planning
func (r *Registry) HandlePlanItineraries(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("plan_itineraries", r.logger, r.planner.ProfileSets,
		func(ctx context.Context, input PlanItinerariesInput, logger *slog.Logger) (any, error) {
			if err := core.ValidateEndpoint("start", input.Start); err != nil {
				return nil, err
			}
			if err := core.ValidateEndpoint("end", input.End); err != nil {
				return nil, err
			}

			preq := planner.PlanRequest{
				Start:         input.Start.Location,
				End:           input.End.Location,
				Profiles:      input.Profiles,
				Set:           input.ProfileSet,
				Mountain:      input.Mountain,
				Electric:      input.Electric,
				KeepDominated: input.BestOnly != nil && !*input.BestOnly,
				Overrides:     input.Params,
			}
			profiles, err := r.planner.Profiles(preq)
			if err != nil {
				return nil, err
			}

			plan, err := r.planner.PlanItineraries(ctx, preq)
			if err != nil {
				return nil, err
			}

			logger.Info("itineraries planned",
				"plan_id", plan.ID,
				"candidates", plan.Candidates,
				"selected", len(plan.Itineraries))

			return PlanItinerariesOutput{
				PlanID:      plan.ID,
				Start:       endpointInfo(input.Start),
				End:         endpointInfo(input.End),
				Profiles:    profiles,
				Candidates:  plan.Candidates,
				Itineraries: plan.Itineraries,
				CarDistance: plan.CarDistance,
			}, nil
		})(ctx, req)
}

func endpointInfo(e *core.Endpoint) EndpointInfo {
	info := EndpointInfo{
		Latitude:    e.Latitude,
		Longitude:   e.Longitude,
		InputFormat: e.Format.String(),
	}
	// MGRS is undefined near the poles; the field is left out there
	if s, err := coords.ToMGRS(e.Location, mgrsPrecision); err == nil {
		info.MGRS = s
	}
	return info
}

func joinOr(values []string, empty string) string {
	if len(values) == 0 {
		return empty
	}
	return strings.Join(values, ", ")
}
