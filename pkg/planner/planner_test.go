package planner

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/velomcp/pkg/brouter"
	"github.com/NERVsystems/velomcp/pkg/cache"
	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/profile"
	"github.com/NERVsystems/velomcp/pkg/tracing"
)

var (
	from = geo.Location{Latitude: 48.85, Longitude: 2.35}
	to   = geo.Location{Latitude: 48.87, Longitude: 2.38}
)

type route struct {
	time   int
	unsafe float64
	// start offset in meters, so distinct routes never look duplicated
	shift float64
}

// fakeFetcher answers from a table keyed by itinerary id
type fakeFetcher struct {
	t      *testing.T
	routes map[string]route
	fail   map[string]error
	delay  func(id string) time.Duration

	calls    atomic.Int32
	inFlight atomic.Int32
	peak     atomic.Int32

	mu     sync.Mutex
	params []profile.Params
}

func (f *fakeFetcher) Identity(name string, params profile.Params) (string, error) {
	return name + "?" + params.Canonical(), nil
}

func (f *fakeFetcher) FetchRoute(ctx context.Context, req brouter.RouteRequest) (*itinerary.Itinerary, error) {
	f.calls.Add(1)
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.params = append(f.params, req.Params)
	f.mu.Unlock()

	id := itinerary.FormatID(req.Profile, req.Alternative)
	if f.delay != nil {
		select {
		case <-time.After(f.delay(id)):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err, ok := f.fail[id]; ok {
		return nil, err
	}
	r, ok := f.routes[id]
	if !ok {
		return nil, &brouter.UpstreamRequestError{URL: "fake", StatusCode: http.StatusBadRequest}
	}
	return candidate(f.t, req.Profile, req.Alternative, r.time, r.unsafe, offset(origin, r.shift)), nil
}

func TestFetchAllCanonicalOrder(t *testing.T) {
	f := &fakeFetcher{
		t: t,
		routes: map[string]route{
			"safe-0": {600, 0, 0}, "safe-1": {650, 0, 5000},
			"fast-0": {500, 900, 10000}, "fast-1": {520, 800, 15000},
		},
		// later combinations finish first
		delay: func(id string) time.Duration {
			return map[string]time.Duration{
				"safe-0": 40 * time.Millisecond, "safe-1": 30 * time.Millisecond,
				"fast-0": 20 * time.Millisecond, "fast-1": 10 * time.Millisecond,
			}[id]
		},
	}
	agg := NewAggregator(f, AggregatorOptions{Workers: 4})

	got, err := agg.FetchAll(context.Background(), from, to, []string{"safe", "fast"}, []int{0, 1}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"safe-0", "safe-1", "fast-0", "fast-1"}, ids(got))
}

func TestFetchAllBoundsConcurrency(t *testing.T) {
	routes := make(map[string]route)
	profiles := []string{"a", "b", "c"}
	for i, p := range profiles {
		for alt := 0; alt < 3; alt++ {
			routes[itinerary.FormatID(p, alt)] = route{600, 0, float64(i*3+alt) * 5000}
		}
	}
	f := &fakeFetcher{t: t, routes: routes, delay: func(string) time.Duration { return 10 * time.Millisecond }}
	agg := NewAggregator(f, AggregatorOptions{Workers: 2})

	got, err := agg.FetchAll(context.Background(), from, to, profiles, []int{0, 1, 2}, nil)
	require.NoError(t, err)
	assert.Len(t, got, 9)
	assert.EqualValues(t, 9, f.calls.Load())
	assert.LessOrEqual(t, f.peak.Load(), int32(2))
}

func TestFetchAllBestEffortDropsFailures(t *testing.T) {
	f := &fakeFetcher{
		t:      t,
		routes: map[string]route{"safe-0": {600, 0, 0}, "safe-2": {700, 0, 5000}},
		fail: map[string]error{
			"safe-1": &brouter.ProfileUploadError{Profile: "safe", Message: "syntax"},
		},
	}
	agg := NewAggregator(f, AggregatorOptions{Policy: PolicyBestEffort})

	got, err := agg.FetchAll(context.Background(), from, to, []string{"safe"}, []int{0, 1, 2}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"safe-0", "safe-2"}, ids(got))
}

func TestFetchAllStrictFailsBatch(t *testing.T) {
	f := &fakeFetcher{
		t:      t,
		routes: map[string]route{"safe-0": {600, 0, 0}, "safe-2": {700, 0, 5000}},
		fail: map[string]error{
			"safe-1": &brouter.UpstreamRequestError{URL: "fake", StatusCode: http.StatusBadGateway},
		},
	}
	agg := NewAggregator(f, AggregatorOptions{Policy: PolicyStrict})

	got, err := agg.FetchAll(context.Background(), from, to, []string{"safe"}, []int{0, 1, 2}, nil)
	assert.Nil(t, got)
	var upstream *brouter.UpstreamRequestError
	require.ErrorAs(t, err, &upstream)
	assert.Equal(t, http.StatusBadGateway, upstream.StatusCode)
	assert.Contains(t, err.Error(), "safe-1")
}

func TestFetchAllUsesRouteCache(t *testing.T) {
	f := &fakeFetcher{t: t, routes: map[string]route{"safe-0": {600, 0, 0}, "safe-1": {650, 0, 5000}}}
	routes := cache.NewRouteCache(16, time.Hour)
	agg := NewAggregator(f, AggregatorOptions{Cache: routes})

	first, err := agg.FetchAll(context.Background(), from, to, []string{"safe"}, []int{0, 1}, nil)
	require.NoError(t, err)
	second, err := agg.FetchAll(context.Background(), from, to, []string{"safe"}, []int{0, 1}, nil)
	require.NoError(t, err)

	assert.EqualValues(t, 2, f.calls.Load())
	assert.Equal(t, 2, routes.Len())
	assert.Same(t, first[0], second[0])

	// a different parameter set is a different identity
	_, err = agg.FetchAll(context.Background(), from, to, []string{"safe"}, []int{0}, profile.Params{"is_ebike": true})
	require.NoError(t, err)
	assert.EqualValues(t, 3, f.calls.Load())
}

func newTestPlanner(f *fakeFetcher, opts Options) *Planner {
	if opts.Profiles == nil {
		opts.Profiles = []string{"safe", "fast"}
	}
	if opts.Alternatives == nil {
		opts.Alternatives = []int{0, 1}
	}
	return New(NewAggregator(f, AggregatorOptions{}), opts)
}

func TestPlanItineraries(t *testing.T) {
	f := &fakeFetcher{
		t: t,
		routes: map[string]route{
			"safe-0":     {600, 0, 0},
			"safe-1":     {620, 500, 5000},   // dominated by safe-0
			"fast-0":     {500, 1000, 10000}, // trade-off against safe-0
			"fast-1":     {505, 1000, 10002}, // mutual with fast-0, which comes first
			"car-fast-1": {300, 0, 20000},
		},
	}
	p := newTestPlanner(f, Options{CarProfile: "car-fast", CarAlternative: 1})

	plan, err := p.PlanItineraries(context.Background(), PlanRequest{Start: from, End: to})
	require.NoError(t, err)

	assert.NotEmpty(t, plan.ID)
	assert.Equal(t, 4, plan.Candidates)
	assert.Equal(t, []string{"safe-0", "fast-0"}, ids(plan.Itineraries))
	require.NotNil(t, plan.CarDistance)
	assert.Equal(t, 1000, *plan.CarDistance)
}

func TestPlanItinerariesSpans(t *testing.T) {
	rec := tracing.RecordSpans(t)
	f := &fakeFetcher{t: t, routes: map[string]route{"safe-0": {600, 0, 0}, "safe-1": {900, 100, 5000}}}
	p := newTestPlanner(f, Options{Profiles: []string{"safe"}, Alternatives: []int{0, 1}})

	plan, err := p.PlanItineraries(context.Background(), PlanRequest{Start: from, End: to})
	require.NoError(t, err)

	plans := tracing.EndedSpans(rec, "planner.plan")
	require.Len(t, plans, 1)
	id, _ := tracing.SpanAttribute(plans[0], tracing.AttrPlanID)
	assert.Equal(t, plan.ID, id.AsString())
	candidates, _ := tracing.SpanAttribute(plans[0], tracing.AttrCandidates)
	assert.EqualValues(t, 2, candidates.AsInt64())
	selected, _ := tracing.SpanAttribute(plans[0], tracing.AttrSelected)
	assert.EqualValues(t, len(plan.Itineraries), selected.AsInt64())

	fetchAll := tracing.EndedSpans(rec, "planner.fetch_all")
	require.Len(t, fetchAll, 1)
	assert.Equal(t, plans[0].SpanContext().SpanID(), fetchAll[0].Parent().SpanID())
	policy, _ := tracing.SpanAttribute(fetchAll[0], tracing.AttrFailurePolicy)
	assert.Equal(t, string(PolicyBestEffort), policy.AsString())
}

func TestPlanItinerariesKeepDominated(t *testing.T) {
	f := &fakeFetcher{
		t: t,
		routes: map[string]route{
			"safe-0": {600, 0, 0},
			"safe-1": {620, 500, 5000},
			"safe-2": {630, 500, 5001},
		},
	}
	p := newTestPlanner(f, Options{Profiles: []string{"safe"}, Alternatives: []int{0, 1, 2}})

	plan, err := p.PlanItineraries(context.Background(), PlanRequest{Start: from, End: to, KeepDominated: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"safe-0", "safe-1"}, ids(plan.Itineraries))
	assert.Nil(t, plan.CarDistance)
}

func TestPlanItinerariesCarFailureOnlyOmitsDistance(t *testing.T) {
	f := &fakeFetcher{t: t, routes: map[string]route{"safe-0": {600, 0, 0}}}
	p := newTestPlanner(f, Options{Profiles: []string{"safe"}, Alternatives: []int{0}, CarProfile: "car-fast", CarAlternative: 1})

	plan, err := p.PlanItineraries(context.Background(), PlanRequest{Start: from, End: to})
	require.NoError(t, err)
	assert.Len(t, plan.Itineraries, 1)
	assert.Nil(t, plan.CarDistance)
}

func TestPlanItinerariesNoItinerary(t *testing.T) {
	f := &fakeFetcher{t: t}
	p := newTestPlanner(f, Options{})

	_, err := p.PlanItineraries(context.Background(), PlanRequest{Start: from, End: to})
	assert.ErrorIs(t, err, ErrNoItinerary)
	var lastFailure *brouter.UpstreamRequestError
	assert.ErrorAs(t, err, &lastFailure, "the last engine failure is wrapped")

	strict := New(NewAggregator(f, AggregatorOptions{Policy: PolicyStrict}), Options{Profiles: []string{"safe"}})
	_, err = strict.PlanItineraries(context.Background(), PlanRequest{Start: from, End: to})
	assert.ErrorIs(t, err, ErrNoItinerary)
	var upstream *brouter.UpstreamRequestError
	assert.ErrorAs(t, err, &upstream, "the engine failure stays inspectable")
}

func TestPlanItinerariesCallerCancellation(t *testing.T) {
	f := &fakeFetcher{t: t, delay: func(string) time.Duration { return time.Second }}
	p := New(NewAggregator(f, AggregatorOptions{}), Options{Profiles: []string{"safe"}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.PlanItineraries(ctx, PlanRequest{Start: from, End: to})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, errors.Is(err, ErrNoItinerary))
}

func TestPlanRequestProfileSelection(t *testing.T) {
	p := newTestPlanner(&fakeFetcher{t: t}, Options{
		ProfileSets: map[string][]string{"vtt": {"mtb"}, "route": {"road", "fast"}},
	})

	got, err := p.Profiles(PlanRequest{})
	require.NoError(t, err)
	assert.Equal(t, []string{"safe", "fast"}, got)

	got, err = p.Profiles(PlanRequest{Set: "vtt"})
	require.NoError(t, err)
	assert.Equal(t, []string{"mtb"}, got)

	got, err = p.Profiles(PlanRequest{Set: "vtt", Profiles: []string{"trekking"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"trekking"}, got)

	_, err = p.Profiles(PlanRequest{Set: "gravel"})
	assert.ErrorIs(t, err, ErrUnknownProfileSet)

	assert.Equal(t, []string{"route", "vtt"}, p.ProfileSets())
}

func TestPlanRequestSwitches(t *testing.T) {
	f := &fakeFetcher{t: t, routes: map[string]route{"safe-0": {600, 0, 0}}}
	p := newTestPlanner(f, Options{
		Profiles:     []string{"safe"},
		Alternatives: []int{0},
		Switches: map[string]profile.Params{
			SwitchMountain: {"allow_unpaved": true},
			SwitchElectric: {"is_ebike": true, "cruise_speed": 22},
		},
	})

	_, err := p.PlanItineraries(context.Background(), PlanRequest{
		Start:     from,
		End:       to,
		Mountain:  true,
		Electric:  true,
		Overrides: profile.Params{"cruise_speed": 25},
	})
	require.NoError(t, err)

	require.Len(t, f.params, 1)
	assert.Equal(t, profile.Params{"allow_unpaved": true, "is_ebike": true, "cruise_speed": 25}, f.params[0])

	_, err = p.PlanItineraries(context.Background(), PlanRequest{
		Start:     from,
		End:       to,
		Overrides: profile.Params{"cruise_speed": []string{"fast"}},
	})
	var invalid *profile.InvalidParamError
	assert.ErrorAs(t, err, &invalid)
}

func TestPlanSingleRoute(t *testing.T) {
	f := &fakeFetcher{t: t, routes: map[string]route{"safe-2": {600, 0, 0}}}
	p := newTestPlanner(f, Options{})

	it, err := p.PlanSingleRoute(context.Background(), from, to, "safe", 2, nil)
	require.NoError(t, err)
	assert.Equal(t, "safe-2", it.ID())

	_, err = p.PlanSingleRoute(context.Background(), from, to, "safe", 0, nil)
	assert.ErrorIs(t, err, ErrNoItinerary)
}
