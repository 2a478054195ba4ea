package core

import (
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// ToolFactory builds tool definitions that share the velomcp parameter
// conventions
type ToolFactory struct {
	// Profiles lists the names offered in profile parameter descriptions
	Profiles []string
}

// NewToolFactory creates a new tool factory
func NewToolFactory(profiles []string) *ToolFactory {
	return &ToolFactory{Profiles: profiles}
}

// CreateBasicTool creates a tool without parameters
func (f *ToolFactory) CreateBasicTool(name, description string) mcp.Tool {
	return mcp.NewTool(name, mcp.WithDescription(description))
}

const endpointHelp = `as "lat, lon" decimal degrees, degrees-minutes-seconds, MGRS, or {latitude, longitude}`

// CreateRouteTool creates a tool taking a start and an end point plus any
// extra options
func (f *ToolFactory) CreateRouteTool(name, description string, opts ...mcp.ToolOption) mcp.Tool {
	base := []mcp.ToolOption{
		mcp.WithDescription(description),
		mcp.WithString("start",
			mcp.Required(),
			mcp.Description("The starting point "+endpointHelp),
		),
		mcp.WithString("end",
			mcp.Required(),
			mcp.Description("The destination "+endpointHelp),
		),
		mcp.WithObject("params",
			mcp.Description("Profile parameter overrides, e.g. {\"avoid_unsafe\": true, \"cruise_speed\": 18}. Values must be numbers, booleans or single-word strings."),
		),
	}
	return mcp.NewTool(name, append(base, opts...)...)
}

// ProfileDescription describes a profile parameter, listing known names
func (f *ToolFactory) ProfileDescription(prefix string) string {
	if len(f.Profiles) == 0 {
		return prefix
	}
	return prefix + ". Templated profiles: " + strings.Join(f.Profiles, ", ") + "; any other name is passed to the engine as a built-in profile"
}
