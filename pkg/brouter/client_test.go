package brouter

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/monitoring"
	"github.com/NERVsystems/velomcp/pkg/profile"
	"github.com/NERVsystems/velomcp/pkg/tracing"
)

const safeTemplate = `---context:global
assign avoid_unsafe = true # %avoid_unsafe% | Avoid unsafe roads | boolean
assign unsafe_penalty = 3 # %unsafe_penalty% | Penalty | number
`

// fakeEngine mimics the engine: unknown profiles answer 500, uploads make
// a profile known.
type fakeEngine struct {
	body []byte

	mu           sync.Mutex
	known        map[string]bool
	routeHits    int
	queries      []url.Values
	uploads      map[string]string
	uploadCount  int
	uploadStatus int
	uploadReply  string
	routeStatus  int
	delay        time.Duration
	release      chan struct{}
}

func newFakeEngine(t *testing.T) (*fakeEngine, *httptest.Server) {
	t.Helper()
	e := &fakeEngine{
		body:    engineBody(t, line(4), []way{{end: 3, tags: "highway=cycleway", distance: 300}}),
		known:   map[string]bool{"trekking": true, "car-fast": true},
		uploads: make(map[string]string),
	}
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return e, srv
}

func (e *fakeEngine) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, "/brouter/profile/"):
		e.serveUpload(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/brouter":
		e.serveRoute(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (e *fakeEngine) serveUpload(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/brouter/profile/")
	text, _ := io.ReadAll(r.Body)

	e.mu.Lock()
	e.uploadCount++
	e.uploads[id] = string(text)
	release := e.release
	status, reply := e.uploadStatus, e.uploadReply
	e.mu.Unlock()

	if release != nil {
		<-release
	}
	if status != 0 && status != http.StatusOK {
		http.Error(w, "upload refused", status)
		return
	}
	if reply == "" {
		e.mu.Lock()
		e.known[id] = true
		e.mu.Unlock()
		reply = `{"profileid":"` + id + `"}`
	}
	_, _ = w.Write([]byte(reply))
}

func (e *fakeEngine) serveRoute(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	e.mu.Lock()
	e.routeHits++
	e.queries = append(e.queries, q)
	status, delay := e.routeStatus, e.delay
	known := e.known[q.Get("profile")]
	e.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	switch {
	case status != 0:
		http.Error(w, "engine refused", status)
	case !known:
		http.Error(w, "profile not found", http.StatusInternalServerError)
	default:
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(e.body)
	}
}

func (e *fakeEngine) counts() (routes, uploads int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.routeHits, e.uploadCount
}

func newTestClient(t *testing.T, baseURL string, timeout time.Duration) *Client {
	t.Helper()
	catalog, err := profile.NewCatalog(map[string]profile.Definition{
		"safe": {Template: "safe", Defaults: profile.Params{"unsafe_penalty": 4}},
	}, fstest.MapFS{"safe.brf": &fstest.MapFile{Data: []byte(safeTemplate)}})
	require.NoError(t, err)

	c, err := NewClient(Options{BaseURL: baseURL, Timeout: timeout}, profile.NewRenderer(catalog, nil))
	require.NoError(t, err)
	return c
}

func testRequest(name string) RouteRequest {
	return RouteRequest{
		Start:   geo.Location{Latitude: 48.85, Longitude: 2.35},
		End:     geo.Location{Latitude: 48.86, Longitude: 2.36},
		Profile: name,
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	renderer := profile.NewRenderer(nil, nil)
	for _, raw := range []string{"", "localhost:17777", "://x"} {
		_, err := NewClient(Options{BaseURL: raw}, renderer)
		assert.Error(t, err, raw)
	}
}

func TestRouteURL(t *testing.T) {
	c := newTestClient(t, "http://engine:17777/brouter/", time.Second)
	req := testRequest("trekking")
	req.Alternative = 2

	assert.Equal(t,
		"http://engine:17777/brouter?format=geojson&profile=trekking&lonlats=2.350000,48.850000|2.360000,48.860000&alternativeidx=2",
		c.RouteURL(req, "trekking"))
}

func TestFetchRouteBuiltinProfile(t *testing.T) {
	engine, srv := newFakeEngine(t)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)

	req := testRequest("trekking")
	req.Alternative = 1
	it, err := c.FetchRoute(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "trekking-1", it.ID())
	assert.Equal(t, 1, it.SegmentCount())

	routes, uploads := engine.counts()
	assert.Equal(t, 1, routes)
	assert.Zero(t, uploads)

	q := engine.queries[0]
	assert.Equal(t, "geojson", q.Get("format"))
	assert.Equal(t, "trekking", q.Get("profile"))
	assert.Equal(t, "2.350000,48.850000|2.360000,48.860000", q.Get("lonlats"))
	assert.Equal(t, "1", q.Get("alternativeidx"))
}

func TestFetchRouteUploadsMissingProfileAndRetries(t *testing.T) {
	engine, srv := newFakeEngine(t)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)
	before := testutil.ToFloat64(monitoring.FetchOutcomes.WithLabelValues("retried"))

	it, err := c.FetchRoute(context.Background(), testRequest("safe"))
	require.NoError(t, err)
	assert.Equal(t, "safe-0", it.ID())

	routes, uploads := engine.counts()
	assert.Equal(t, 2, routes)
	assert.Equal(t, 1, uploads)

	rendered, err := c.renderer.Render("safe", nil)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(rendered.Identity, "custom_safe_"))
	assert.Equal(t, rendered.Text, engine.uploads[rendered.Identity])
	assert.Contains(t, rendered.Text, "assign unsafe_penalty = 4 #")
	assert.Equal(t, rendered.Identity, engine.queries[0].Get("profile"))
	assert.Equal(t, rendered.Identity, engine.queries[1].Get("profile"))

	assert.Equal(t, before+1, testutil.ToFloat64(monitoring.FetchOutcomes.WithLabelValues("retried")))
}

func TestFetchRouteSpans(t *testing.T) {
	rec := tracing.RecordSpans(t)
	_, srv := newFakeEngine(t)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)

	_, err := c.FetchRoute(context.Background(), testRequest("safe"))
	require.NoError(t, err)

	fetches := tracing.EndedSpans(rec, "brouter.fetch")
	require.Len(t, fetches, 1)
	fetch := fetches[0]
	identity, ok := tracing.SpanAttribute(fetch, tracing.AttrProfileIdentity)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(identity.AsString(), "custom_safe_"))

	var states []string
	for _, ev := range fetch.Events() {
		for _, kv := range ev.Attributes {
			if string(kv.Key) == tracing.AttrFetchState {
				states = append(states, kv.Value.AsString())
			}
		}
	}
	assert.Equal(t, []string{"uploading", "retrying", "done"}, states)

	children := append(tracing.EndedSpans(rec, "brouter.route"), tracing.EndedSpans(rec, "brouter.upload")...)
	assert.Len(t, children, 3)
	for _, child := range children {
		assert.Equal(t, fetch.SpanContext().SpanID(), child.Parent().SpanID(), child.Name())
	}
}

func TestFetchRouteKnownCustomProfileSkipsUpload(t *testing.T) {
	engine, srv := newFakeEngine(t)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)

	_, err := c.FetchRoute(context.Background(), testRequest("safe"))
	require.NoError(t, err)
	_, err = c.FetchRoute(context.Background(), testRequest("safe"))
	require.NoError(t, err)

	routes, uploads := engine.counts()
	assert.Equal(t, 3, routes)
	assert.Equal(t, 1, uploads)
}

func TestFetchRouteOverridesChangeIdentity(t *testing.T) {
	engine, srv := newFakeEngine(t)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)

	req := testRequest("safe")
	req.Params = profile.Params{"avoid_unsafe": false}
	_, err := c.FetchRoute(context.Background(), req)
	require.NoError(t, err)

	base, err := c.Identity("safe", nil)
	require.NoError(t, err)
	tuned, err := c.Identity("safe", req.Params)
	require.NoError(t, err)
	assert.NotEqual(t, base, tuned)
	assert.Contains(t, engine.uploads[tuned], "assign avoid_unsafe = false #")
}

func TestFetchRouteFailures(t *testing.T) {
	tests := []struct {
		name        string
		profile     string
		setup       func(e *fakeEngine)
		wantRoutes  int
		wantUploads int
		check       func(t *testing.T, err error)
	}{
		{
			name:       "builtin profile missing is not uploaded",
			profile:    "hiking",
			wantRoutes: 1,
			check: func(t *testing.T, err error) {
				var upstream *UpstreamRequestError
				require.ErrorAs(t, err, &upstream)
				assert.Equal(t, http.StatusInternalServerError, upstream.StatusCode)
			},
		},
		{
			name:       "non-500 status fails at once",
			profile:    "safe",
			setup:      func(e *fakeEngine) { e.routeStatus = http.StatusBadRequest },
			wantRoutes: 1,
			check: func(t *testing.T, err error) {
				var upstream *UpstreamRequestError
				require.ErrorAs(t, err, &upstream)
				assert.Equal(t, http.StatusBadRequest, upstream.StatusCode)
				assert.False(t, upstream.ProfileMissing())
			},
		},
		{
			name:        "upload refused",
			profile:     "safe",
			setup:       func(e *fakeEngine) { e.uploadStatus = http.StatusServiceUnavailable },
			wantRoutes:  1,
			wantUploads: 1,
			check: func(t *testing.T, err error) {
				var upload *ProfileUploadError
				require.ErrorAs(t, err, &upload)
				assert.Equal(t, "safe", upload.Profile)
				assert.Equal(t, http.StatusServiceUnavailable, upload.StatusCode)
			},
		},
		{
			name:        "upload rejected in reply",
			profile:     "safe",
			setup:       func(e *fakeEngine) { e.uploadReply = `{"error":"syntax error at line 2"}` },
			wantRoutes:  1,
			wantUploads: 1,
			check: func(t *testing.T, err error) {
				var upload *ProfileUploadError
				require.ErrorAs(t, err, &upload)
				assert.Equal(t, "syntax error at line 2", upload.Message)
			},
		},
		{
			name:    "retry fails again",
			profile: "safe",
			setup: func(e *fakeEngine) {
				// accepted but never registered
				e.uploadReply = `{"profileid":"lost"}`
			},
			wantRoutes:  2,
			wantUploads: 1,
			check: func(t *testing.T, err error) {
				var upstream *UpstreamRequestError
				require.ErrorAs(t, err, &upstream)
				assert.True(t, upstream.ProfileMissing())
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, srv := newFakeEngine(t)
			if tt.setup != nil {
				tt.setup(engine)
			}
			c := newTestClient(t, srv.URL+"/brouter", time.Second)

			it, err := c.FetchRoute(context.Background(), testRequest(tt.profile))
			require.Error(t, err)
			assert.Nil(t, it)
			tt.check(t, err)

			routes, uploads := engine.counts()
			assert.Equal(t, tt.wantRoutes, routes)
			assert.Equal(t, tt.wantUploads, uploads)
		})
	}
}

func TestFetchRouteMalformedBody(t *testing.T) {
	engine, srv := newFakeEngine(t)
	engine.body = []byte(`{"type":"FeatureCollection","features":[]}`)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)

	_, err := c.FetchRoute(context.Background(), testRequest("trekking"))
	var malformed *MalformedResponseError
	assert.ErrorAs(t, err, &malformed)
}

func TestFetchRouteRejectsInvalidParams(t *testing.T) {
	_, srv := newFakeEngine(t)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)

	req := testRequest("safe")
	req.Params = profile.Params{"unsafe_penalty": []int{1}}
	_, err := c.FetchRoute(context.Background(), req)
	var invalid *profile.InvalidParamError
	assert.ErrorAs(t, err, &invalid)
}

func TestFetchRouteTimeout(t *testing.T) {
	engine, srv := newFakeEngine(t)
	engine.delay = 2 * time.Second
	c := newTestClient(t, srv.URL+"/brouter", 50*time.Millisecond)

	start := time.Now()
	_, err := c.FetchRoute(context.Background(), testRequest("trekking"))
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)

	var upstream *UpstreamRequestError
	require.ErrorAs(t, err, &upstream)
	assert.Zero(t, upstream.StatusCode)
}

func TestFetchRouteHonoursCallerCancellation(t *testing.T) {
	engine, srv := newFakeEngine(t)
	engine.delay = 2 * time.Second
	c := newTestClient(t, srv.URL+"/brouter", 5*time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)

	_, err := c.FetchRoute(ctx, testRequest("trekking"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestConcurrentUploadsCollapse(t *testing.T) {
	const fetches = 6

	engine, srv := newFakeEngine(t)
	engine.release = make(chan struct{})
	c := newTestClient(t, srv.URL+"/brouter", 5*time.Second)

	var wg sync.WaitGroup
	errs := make([]error, fetches)
	for i := 0; i < fetches; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = c.FetchRoute(context.Background(), testRequest("safe"))
		}(i)
	}

	require.Eventually(t, func() bool {
		routes, _ := engine.counts()
		return routes == fetches
	}, 2*time.Second, 5*time.Millisecond)
	// let every fetch reach the shared upload
	time.Sleep(100 * time.Millisecond)
	close(engine.release)
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	routes, uploads := engine.counts()
	assert.Equal(t, 1, uploads)
	assert.Equal(t, 2*fetches, routes)
}

func TestPing(t *testing.T) {
	_, srv := newFakeEngine(t)
	c := newTestClient(t, srv.URL+"/brouter", time.Second)
	assert.NoError(t, c.Ping(context.Background()), "an error status still proves the engine is up")

	srv.Close()
	assert.Error(t, c.Ping(context.Background()))
}
