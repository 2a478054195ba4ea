package tools

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/NERVsystems/velomcp/pkg/profile"
)

// ListProfilesOutput defines the output of list_profiles
type ListProfilesOutput struct {
	Profiles        []profile.Info      `json:"profiles"`
	DefaultProfiles []string            `json:"default_profiles"`
	ProfileSets     map[string][]string `json:"profile_sets"`
}

// ListProfilesTool returns the list_profiles tool definition
func (r *Registry) ListProfilesTool() mcp.Tool {
	return r.factory.CreateBasicTool("list_profiles",
		"List the templated routing profiles with their default and tunable parameters, the default selection and the named profile sets. Names not listed are passed to the engine as built-in profiles.")
}

// HandleListProfiles implements profile listing
func (r *Registry) HandleListProfiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return WithParsedInput("list_profiles", r.logger, nil,
		func(ctx context.Context, _ struct{}, logger *slog.Logger) (any, error) {
			sets := make(map[string][]string)
			for _, name := range r.planner.ProfileSets() {
				sets[name] = r.planner.ProfileSet(name)
			}
			return ListProfilesOutput{
				Profiles:        r.catalog.Describe(),
				DefaultProfiles: r.planner.DefaultProfiles(),
				ProfileSets:     sets,
			}, nil
		})(ctx, req)
}
