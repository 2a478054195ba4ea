package tools

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/gpx"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/planner"
	"github.com/NERVsystems/velomcp/pkg/profile"
)

// Output formats of plan_route
const (
	FormatJSON = "json"
	FormatGPX  = "gpx"
)

// maxAlternative is the highest alternative index the engine computes
const maxAlternative = 3

// PlanRouteInput defines the input of plan_route
type PlanRouteInput struct {
	Start       *core.Endpoint `json:"start"`
	End         *core.Endpoint `json:"end"`
	Profile     string         `json:"profile"`
	Alternative int            `json:"alternative,omitempty"`
	Mountain    bool           `json:"mountain,omitempty"`
	Electric    bool           `json:"electric,omitempty"`
	Format      string         `json:"format,omitempty"`
	Params      profile.Params `json:"params,omitempty"`
}

// PlanRouteOutput defines the JSON output of plan_route
type PlanRouteOutput struct {
	Polyline  string               `json:"polyline"`
	Itinerary *itinerary.Itinerary `json:"itinerary"`
}

// PlanRouteTool returns the plan_route tool definition
func (r *Registry) PlanRouteTool() mcp.Tool {
	return r.factory.CreateRouteTool("plan_route",
		"Fetch one route for a profile and alternative, without selection. Use it to export an itinerary returned by plan_itineraries.",
		mcp.WithString("profile",
			mcp.Required(),
			mcp.Description(r.factory.ProfileDescription("Routing profile")),
		),
		mcp.WithNumber("alternative",
			mcp.Description("Alternative index, 0 to 3"),
			mcp.DefaultNumber(0),
		),
		mcp.WithBoolean("mountain",
			mcp.Description("Accept unpaved tracks and trails"),
			mcp.DefaultBool(false),
		),
		mcp.WithBoolean("electric",
			mcp.Description("Plan for an electrically assisted bicycle"),
			mcp.DefaultBool(false),
		),
		mcp.WithString("format",
			mcp.Description("Output format: json (itinerary and polyline) or gpx (GPX 1.1 track)"),
			mcp.Enum(FormatJSON, FormatGPX),
			mcp.DefaultString(FormatJSON),
		),
	)
}

// HandlePlanRoute implements single-route fetching and GPX export
func (r *Registry) HandlePlanRoute(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("plan_route", r.logger, r.planner.ProfileSets,
		func(ctx context.Context, input PlanRouteInput, logger *slog.Logger) (any, error) {
			if err := core.ValidateEndpoint("start", input.Start); err != nil {
				return nil, err
			}
			if err := core.ValidateEndpoint("end", input.End); err != nil {
				return nil, err
			}
			if input.Profile == "" {
				return nil, core.NewValidationError(core.ErrMissingParameter, `Missing required parameter "profile"`).
					WithSuggestions(r.catalog.Names()...)
			}
			if input.Alternative < 0 || input.Alternative > maxAlternative {
				return nil, core.NewValidationError(core.ErrInvalidParameter,
					fmt.Sprintf("alternative must be between 0 and %d, got %d", maxAlternative, input.Alternative))
			}
			format := input.Format
			if format == "" {
				format = FormatJSON
			}
			if format != FormatJSON && format != FormatGPX {
				return nil, core.NewValidationError(core.ErrInvalidParameter, fmt.Sprintf("unknown format %q", input.Format)).
					WithSuggestions(FormatJSON, FormatGPX)
			}

			params, err := r.planner.Params(planner.PlanRequest{
				Mountain:  input.Mountain,
				Electric:  input.Electric,
				Overrides: input.Params,
			})
			if err != nil {
				return nil, err
			}

			it, err := r.planner.PlanSingleRoute(ctx, input.Start.Location, input.End.Location, input.Profile, input.Alternative, params)
			if err != nil {
				return nil, err
			}
			logger.Info("route fetched", "id", it.ID(), "length", it.Length(), "format", format)

			if format == FormatGPX {
				return gpxResult(it)
			}
			return PlanRouteOutput{
				Polyline:  core.EncodePolyline(it.Track()),
				Itinerary: it,
			}, nil
		})(ctx, req)
}

// gpxResult returns the track as an embedded GPX resource
func gpxResult(it *itinerary.Itinerary) (*mcp.CallToolResult, error) {
	var buf bytes.Buffer
	if err := gpx.Encode(&buf, it); err != nil {
		return nil, err
	}
	summary := fmt.Sprintf("GPX track %s: %d m, %d s", it.ID(), it.Length(), it.Time())
	return mcp.NewToolResultResource(summary, mcp.TextResourceContents{
		URI:      "velomcp://routes/" + it.ID() + ".gpx",
		MIMEType: gpx.MimeType,
		Text:     buf.String(),
	}), nil
}
