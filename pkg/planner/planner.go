package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/NERVsystems/velomcp/pkg/brouter"
	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/monitoring"
	"github.com/NERVsystems/velomcp/pkg/profile"
	"github.com/NERVsystems/velomcp/pkg/tracing"
)

// ErrNoItinerary is returned when the engine produced nothing usable. The
// engine failure, when there is one, is wrapped alongside it.
var ErrNoItinerary = errors.New("no itinerary found")

// ErrUnknownProfileSet is returned for a profile set name with no definition
var ErrUnknownProfileSet = errors.New("unknown profile set")

// Switch names accepted by PlanRequest
const (
	SwitchMountain = "mountain"
	SwitchElectric = "electric"
)

// Options configures a Planner
type Options struct {
	// Profiles is the selection used when a request names neither profiles
	// nor a set
	Profiles []string
	// ProfileSets maps a set name ("route", "vtt") to its profiles
	ProfileSets map[string][]string
	// Alternatives requested per profile
	Alternatives []int
	// Switches maps a switch name to the parameter overrides it implies
	Switches map[string]profile.Params
	// CarProfile is the engine profile used for the car distance; empty
	// disables it
	CarProfile     string
	CarAlternative int
	Selector       Selector
	Logger         *slog.Logger
}

// PlanRequest is one call to PlanItineraries
type PlanRequest struct {
	Start geo.Location
	End   geo.Location
	// Profiles, when set, takes precedence over Set
	Profiles []string
	Set      string
	Mountain bool
	Electric bool
	// KeepDominated skips dominance filtering; duplicates are still dropped
	KeepDominated bool
	Overrides     profile.Params
}

// Plan is the answer to a PlanRequest
type Plan struct {
	ID          string                 `json:"plan_id"`
	Itineraries []*itinerary.Itinerary `json:"itineraries"`
	// Candidates counts the itineraries fetched before selection
	Candidates int `json:"candidates"`
	// CarDistance is the car route length in meters, absent when the car
	// fetch failed
	CarDistance *int `json:"car_distance,omitempty"`
}

// Planner answers itinerary requests
type Planner struct {
	agg    *Aggregator
	opts   Options
	logger *slog.Logger
}

// New creates a planner on top of an aggregator
func New(agg *Aggregator, opts Options) *Planner {
	if len(opts.Alternatives) == 0 {
		opts.Alternatives = []int{0}
	}
	if opts.Selector == (Selector{}) {
		opts.Selector = DefaultSelector()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		agg:    agg,
		opts:   opts,
		logger: logger.With("component", "planner"),
	}
}

// ProfileSets returns the configured set names in sorted order
func (p *Planner) ProfileSets() []string {
	names := make([]string, 0, len(p.opts.ProfileSets))
	for name := range p.opts.ProfileSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ProfileSet returns the profiles of a named set, nil when unknown
func (p *Planner) ProfileSet(name string) []string {
	return append([]string(nil), p.opts.ProfileSets[name]...)
}

// DefaultProfiles returns the selection used when a request names none
func (p *Planner) DefaultProfiles() []string {
	return append([]string(nil), p.opts.Profiles...)
}

// Profiles resolves the profile selection of a request
func (p *Planner) Profiles(req PlanRequest) ([]string, error) {
	switch {
	case len(req.Profiles) > 0:
		return req.Profiles, nil
	case req.Set != "":
		set, ok := p.opts.ProfileSets[req.Set]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownProfileSet, req.Set)
		}
		return set, nil
	case len(p.opts.Profiles) > 0:
		return p.opts.Profiles, nil
	default:
		return nil, errors.New("no profile selected")
	}
}

// Params merges the switch overrides and the request overrides
func (p *Planner) Params(req PlanRequest) (profile.Params, error) {
	params := profile.Params{}
	if req.Mountain {
		params = params.Merge(p.opts.Switches[SwitchMountain])
	}
	if req.Electric {
		params = params.Merge(p.opts.Switches[SwitchElectric])
	}
	params = params.Merge(req.Overrides)
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return params, nil
}

// PlanItineraries fetches every candidate for the request and keeps the
// ones worth showing, in canonical order
func (p *Planner) PlanItineraries(ctx context.Context, req PlanRequest) (*Plan, error) {
	profiles, err := p.Profiles(req)
	if err != nil {
		return nil, err
	}
	params, err := p.Params(req)
	if err != nil {
		return nil, err
	}

	plan := &Plan{ID: uuid.NewString()}
	logger := core.LoggerFrom(ctx, p.logger).With("plan_id", plan.ID)
	ctx = core.WithLogger(ctx, logger)

	ctx, span := tracing.StartSpan(ctx, "planner.plan")
	defer func() { tracing.EndWithError(span, err) }()
	span.SetAttributes(attribute.String(tracing.AttrPlanID, plan.ID))

	var car <-chan *int
	if p.opts.CarProfile != "" {
		car = p.carDistance(ctx, req.Start, req.End)
	}

	candidates, err := p.agg.FetchAll(ctx, req.Start, req.End, profiles, p.opts.Alternatives, params)
	if err != nil {
		err = p.noItinerary(err)
		return nil, err
	}
	if len(candidates) == 0 {
		err = ErrNoItinerary
		return nil, err
	}

	plan.Candidates = len(candidates)
	plan.Itineraries = p.opts.Selector.Select(candidates, !req.KeepDominated)
	if car != nil {
		plan.CarDistance = <-car
	}

	monitoring.RecordPlan(plan.Candidates, len(plan.Itineraries))
	span.SetAttributes(
		attribute.Int(tracing.AttrCandidates, plan.Candidates),
		attribute.Int(tracing.AttrSelected, len(plan.Itineraries)),
	)
	logger.Info("plan ready",
		"profiles", profiles,
		"candidates", plan.Candidates,
		"selected", len(plan.Itineraries))
	return plan, nil
}

// PlanSingleRoute fetches one (profile, alternative) route, for exports
func (p *Planner) PlanSingleRoute(ctx context.Context, start, end geo.Location, name string, alternative int, params profile.Params) (*itinerary.Itinerary, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	it, err := p.agg.fetch(ctx, brouter.RouteRequest{
		Start:       start,
		End:         end,
		Profile:     name,
		Alternative: alternative,
		Params:      params,
	})
	if err != nil {
		return nil, p.noItinerary(err)
	}
	return it, nil
}

// carDistance fetches the car route in the background. The channel yields
// nil when the fetch fails.
func (p *Planner) carDistance(ctx context.Context, start, end geo.Location) <-chan *int {
	out := make(chan *int, 1)
	go func() {
		it, err := p.agg.fetch(ctx, brouter.RouteRequest{
			Start:       start,
			End:         end,
			Profile:     p.opts.CarProfile,
			Alternative: p.opts.CarAlternative,
		})
		if err != nil {
			core.LoggerFrom(ctx, p.logger).Info("car distance unavailable", "error", err)
			out <- nil
			return
		}
		length := it.Length()
		out <- &length
	}()
	return out
}

// noItinerary hides engine failures behind ErrNoItinerary and passes
// caller errors through
func (p *Planner) noItinerary(err error) error {
	if errors.Is(err, context.Canceled) || !isUpstreamFailure(err) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrNoItinerary, err)
}
