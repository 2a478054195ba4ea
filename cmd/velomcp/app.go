package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/NERVsystems/velomcp/pkg/brouter"
	"github.com/NERVsystems/velomcp/pkg/cache"
	"github.com/NERVsystems/velomcp/pkg/config"
	"github.com/NERVsystems/velomcp/pkg/planner"
	"github.com/NERVsystems/velomcp/pkg/profile"
	"github.com/NERVsystems/velomcp/pkg/tools"
)

// renderCacheSweep is how often expired rendered profiles are dropped
const renderCacheSweep = 10 * time.Minute

// app holds the wired components behind the MCP server
type app struct {
	catalog  *profile.Catalog
	client   *brouter.Client
	planner  *planner.Planner
	registry *tools.Registry

	renders *cache.TTLCache[string, profile.Rendered]
}

// newApp wires catalog, engine client, caches and planner from cfg
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	catalog, err := profile.NewCatalog(cfg.Profiles, cfg.Templates())
	if err != nil {
		return nil, fmt.Errorf("loading profiles: %w", err)
	}

	var sweep time.Duration
	if cfg.Cache.RenderTTL > 0 {
		sweep = renderCacheSweep
	}
	renders := cache.NewTTLCache[string, profile.Rendered](cfg.Cache.RenderTTL, sweep, cfg.Cache.RenderSize)

	clientOpts := cfg.ClientOptions()
	clientOpts.Logger = logger
	client, err := brouter.NewClient(clientOpts, profile.NewRenderer(catalog, renders))
	if err != nil {
		renders.Stop()
		return nil, fmt.Errorf("creating engine client: %w", err)
	}

	aggOpts := cfg.AggregatorOptions()
	aggOpts.Logger = logger
	if cfg.Cache.RouteSize > 0 {
		aggOpts.Cache = cache.NewRouteCache(cfg.Cache.RouteSize, cfg.Cache.RouteTTL)
	}

	planOpts := cfg.PlannerOptions()
	planOpts.Logger = logger
	p := planner.New(planner.NewAggregator(client, aggOpts), planOpts)

	return &app{
		catalog:  catalog,
		client:   client,
		planner:  p,
		registry: tools.NewRegistry(logger, p, catalog),
		renders:  renders,
	}, nil
}

func (a *app) close() {
	a.renders.Stop()
}
