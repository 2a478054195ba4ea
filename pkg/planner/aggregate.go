// Package planner turns a pair of endpoints into a reduced set of candidate
// bicycle itineraries: it fans route requests out to the engine, then keeps
// the candidates that bring something on time or safety.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/NERVsystems/velomcp/pkg/brouter"
	"github.com/NERVsystems/velomcp/pkg/cache"
	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/profile"
	"github.com/NERVsystems/velomcp/pkg/tracing"
)

// Policy decides what a failed fetch does to its batch
type Policy string

const (
	// PolicyBestEffort drops failed fetches from the result
	PolicyBestEffort Policy = "best_effort"
	// PolicyStrict fails the batch on the first failed fetch and cancels
	// the fetches still running
	PolicyStrict Policy = "strict"
)

// ParsePolicy validates a configured policy name
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyBestEffort, PolicyStrict:
		return p, nil
	case "":
		return PolicyBestEffort, nil
	default:
		return "", fmt.Errorf("unknown failure policy %q", s)
	}
}

// Fetcher fetches one route. *brouter.Client implements it.
type Fetcher interface {
	FetchRoute(ctx context.Context, req brouter.RouteRequest) (*itinerary.Itinerary, error)
	Identity(name string, params profile.Params) (string, error)
}

// AggregatorOptions configures an Aggregator
type AggregatorOptions struct {
	Workers int
	Policy  Policy
	// Cache holds fetched routes; nil disables caching
	Cache  *cache.RouteCache
	Logger *slog.Logger
}

// Aggregator runs the cross product of profiles and alternatives on a
// bounded pool of fetches
type Aggregator struct {
	fetcher Fetcher
	workers int
	policy  Policy
	cache   *cache.RouteCache
	logger  *slog.Logger
}

// NewAggregator creates an aggregator over fetcher
func NewAggregator(fetcher Fetcher, opts AggregatorOptions) *Aggregator {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	policy := opts.Policy
	if policy == "" {
		policy = PolicyBestEffort
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		fetcher: fetcher,
		workers: workers,
		policy:  policy,
		cache:   opts.Cache,
		logger:  logger.With("component", "aggregator"),
	}
}

// Policy returns the failure policy in force
func (a *Aggregator) Policy() Policy { return a.policy }

// FetchAll fetches every (profile, alternative) combination and returns the
// itineraries in canonical order: profiles in request order, then
// alternatives in request order. Under PolicyBestEffort failed combinations
// are absent from the result, and when every one failed the last failure is
// returned; under PolicyStrict the first failure is returned.
func (a *Aggregator) FetchAll(ctx context.Context, start, end geo.Location, profiles []string, alternatives []int, params profile.Params) ([]*itinerary.Itinerary, error) {
	ctx, span := tracing.StartSpan(ctx, "planner.fetch_all")
	span.SetAttributes(
		attribute.Int(tracing.AttrCandidates, len(profiles)*len(alternatives)),
		attribute.String(tracing.AttrFailurePolicy, string(a.policy)),
	)

	results, err := a.fetchAll(ctx, start, end, profiles, alternatives, params)
	tracing.EndWithError(span, err)
	return results, err
}

func (a *Aggregator) fetchAll(ctx context.Context, start, end geo.Location, profiles []string, alternatives []int, params profile.Params) ([]*itinerary.Itinerary, error) {
	logger := core.LoggerFrom(ctx, a.logger)
	slots := make([]*itinerary.Itinerary, len(profiles)*len(alternatives))
	var (
		failed  atomic.Int32
		mu      sync.Mutex
		lastErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)

	for pi, name := range profiles {
		for ai, alt := range alternatives {
			slot := pi*len(alternatives) + ai
			req := brouter.RouteRequest{
				Start:       start,
				End:         end,
				Profile:     name,
				Alternative: alt,
				Params:      params,
			}
			g.Go(func() error {
				it, err := a.fetch(gctx, req)
				if err != nil {
					if a.policy == PolicyStrict {
						return fmt.Errorf("%s: %w", itinerary.FormatID(name, alt), err)
					}
					failed.Add(1)
					mu.Lock()
					lastErr = err
					mu.Unlock()
					logger.Warn("dropping failed fetch",
						"profile", name, "alternative", alt, "error", err)
					return nil
				}
				slots[slot] = it
				return nil
			})
		}
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*itinerary.Itinerary, 0, len(slots))
	for _, it := range slots {
		if it != nil {
			out = append(out, it)
		}
	}
	logger.Debug("fetched candidates", "requested", len(slots), "received", len(out), "failed", failed.Load())
	if len(out) == 0 && lastErr != nil {
		return nil, fmt.Errorf("all %d fetches failed: %w", failed.Load(), lastErr)
	}
	return out, nil
}

func (a *Aggregator) fetch(ctx context.Context, req brouter.RouteRequest) (*itinerary.Itinerary, error) {
	if a.cache == nil {
		return a.fetcher.FetchRoute(ctx, req)
	}

	identity, err := a.fetcher.Identity(req.Profile, req.Params)
	if err != nil {
		return nil, err
	}
	key := cache.RouteKey{Start: req.Start, End: req.End, Identity: identity, Alternative: req.Alternative}
	if it, ok := a.cache.Get(key); ok {
		return it, nil
	}

	it, err := a.fetcher.FetchRoute(ctx, req)
	if err != nil {
		return nil, err
	}
	a.cache.Add(key, it)
	return it, nil
}

// isUpstreamFailure reports whether err comes from the engine exchange
// rather than from the caller's input
func isUpstreamFailure(err error) bool {
	var (
		upstream  *brouter.UpstreamRequestError
		upload    *brouter.ProfileUploadError
		malformed *brouter.MalformedResponseError
	)
	return errors.As(err, &upstream) || errors.As(err, &upload) || errors.As(err, &malformed) ||
		errors.Is(err, context.DeadlineExceeded)
}
