// Package brouter is the client of the BRouter routing engine: it fetches
// one route per (profile, alternative) request, uploads templated profiles
// the engine does not know yet, and parses the engine's GeoJSON answer into
// an itinerary.
package brouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/geo"
	"github.com/NERVsystems/velomcp/pkg/itinerary"
	"github.com/NERVsystems/velomcp/pkg/monitoring"
	"github.com/NERVsystems/velomcp/pkg/profile"
	"github.com/NERVsystems/velomcp/pkg/tracing"
)

const (
	maxRouteBody = 32 << 20
	maxErrorBody = 64 << 10
	errorSnippet = 512
)

// Options configures a Client
type Options struct {
	// BaseURL is the engine endpoint, e.g. http://localhost:17777/brouter
	BaseURL string
	// Timeout bounds one fetch, upload and retry included
	Timeout time.Duration
	// RequestsPerSecond and Burst shape outbound engine calls
	RequestsPerSecond float64
	Burst             int
	// HTTPClient overrides the default pooled client
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// RouteRequest is one unit of fetch work
type RouteRequest struct {
	Start       geo.Location
	End         geo.Location
	Profile     string
	Alternative int
	Params      profile.Params
}

// Client talks to one routing engine. It is safe for concurrent use;
// concurrent uploads of the same profile identity are collapsed into one.
type Client struct {
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	renderer *profile.Renderer
	timeout  time.Duration
	uploads  singleflight.Group
	logger   *slog.Logger
}

// NewClient creates an engine client. renderer resolves profile names to
// engine identities.
func NewClient(opts Options, renderer *profile.Renderer) (*Client, error) {
	u, err := url.Parse(opts.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid engine URL %q", opts.BaseURL)
	}
	if renderer == nil {
		return nil, errors.New("brouter: renderer is required")
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = core.NewHTTPClient(timeout)
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(opts.BaseURL, "/"),
		http:     httpClient,
		limiter:  rate.NewLimiter(limit, burst),
		renderer: renderer,
		timeout:  timeout,
		logger:   logger.With("component", "brouter"),
	}, nil
}

// BaseURL returns the engine endpoint
func (c *Client) BaseURL() string { return c.baseURL }

// Identity returns the engine identity a request would use
func (c *Client) Identity(name string, params profile.Params) (string, error) {
	r, _, err := c.renderer.Resolve(name, params)
	if err != nil {
		return "", err
	}
	return r.Identity, nil
}

// fetchState is the per-fetch protocol state
type fetchState int

const (
	stateRequesting fetchState = iota
	stateUploading
	stateRetrying
	stateDone
	stateFailed
)

func (s fetchState) String() string {
	switch s {
	case stateRequesting:
		return "requesting"
	case stateUploading:
		return "uploading"
	case stateRetrying:
		return "retrying"
	case stateDone:
		return "done"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// FetchRoute fetches and parses one route.
//
// Requesting moves to Uploading only when the engine reports the profile
// missing and the profile is templated. Uploading moves to Retrying on a
// successful upload. Retrying never loops back, so a fetch makes at most
// two route requests.
func (c *Client) FetchRoute(ctx context.Context, req RouteRequest) (*itinerary.Itinerary, error) {
	rendered, templated, err := c.renderer.Resolve(req.Profile, req.Params)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := tracing.StartSpan(ctx, "brouter.fetch",
		trace.WithAttributes(tracing.RouteAttributes(req.Profile, rendered.Identity, req.Alternative)...))

	logger := core.LoggerFrom(ctx, c.logger).With(
		"component", "brouter",
		"profile", req.Profile,
		"alternative", req.Alternative,
	)

	var (
		it    *itinerary.Itinerary
		state = stateRequesting
		retry bool
	)
	for state != stateDone && state != stateFailed {
		from := state
		switch state {
		case stateRequesting, stateRetrying:
			it, err = c.requestRoute(ctx, logger, req, rendered.Identity)
			var upstream *UpstreamRequestError
			switch {
			case err == nil:
				state = stateDone
			case state == stateRequesting && templated && errors.As(err, &upstream) && upstream.ProfileMissing():
				state = stateUploading
			default:
				state = stateFailed
			}
		case stateUploading:
			retry = true
			if err = c.upload(ctx, logger, rendered); err != nil {
				state = stateFailed
			} else {
				state = stateRetrying
			}
		}
		tracing.AddEvent(ctx, "fetch_transition", trace.WithAttributes(
			attribute.String("from", from.String()),
			attribute.String(tracing.AttrFetchState, state.String()),
		))
		logger.Debug("fetch transition", "from", from, "to", state)
	}

	outcome := state.String()
	if state == stateDone && retry {
		outcome = "retried"
	}
	monitoring.RecordFetchOutcome(outcome)
	tracing.EndWithError(span, err)

	if err != nil {
		logger.Warn("fetch failed", "error", err)
		return nil, err
	}
	return it, nil
}

// RouteURL builds the engine query for a request
func (c *Client) RouteURL(req RouteRequest, identity string) string {
	return fmt.Sprintf("%s?format=geojson&profile=%s&lonlats=%f,%f|%f,%f&alternativeidx=%d",
		c.baseURL,
		url.QueryEscape(identity),
		req.Start.Longitude, req.Start.Latitude,
		req.End.Longitude, req.End.Latitude,
		req.Alternative,
	)
}

func (c *Client) requestRoute(ctx context.Context, logger *slog.Logger, req RouteRequest, identity string) (*itinerary.Itinerary, error) {
	target := c.RouteURL(req, identity)

	ctx, span := tracing.StartSpan(ctx, "brouter.route")
	var err error
	defer func() { tracing.EndWithError(span, err) }()

	body, status, err := c.do(ctx, http.MethodGet, target, nil, "", tracing.OperationRoute)
	span.SetAttributes(tracing.EngineAttributes(tracing.OperationRoute, target, status)...)
	if err != nil {
		err = &UpstreamRequestError{URL: target, Err: err}
		return nil, err
	}
	if status != http.StatusOK {
		err = &UpstreamRequestError{URL: target, StatusCode: status, Body: core.Snippet(body, errorSnippet)}
		return nil, err
	}

	it, warnings, err := Parse(body, req.Profile, req.Alternative)
	if err != nil {
		monitoring.RecordError("brouter", "malformed_response")
		return nil, err
	}
	for _, w := range warnings {
		monitoring.RecordParseWarning(w.Kind)
		logger.Warn("engine response misaligned", "kind", w.Kind, "detail", w.Detail)
	}
	return it, nil
}

// upload posts a rendered profile. Concurrent uploads of one identity share
// a single request; each caller still honours its own context.
func (c *Client) upload(ctx context.Context, logger *slog.Logger, r profile.Rendered) error {
	ch := c.uploads.DoChan(r.Identity, func() (any, error) {
		uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return nil, c.doUpload(uctx, r)
	})

	select {
	case res := <-ch:
		if res.Shared {
			logger.Debug("profile upload shared", "identity", r.Identity)
		}
		return res.Err
	case <-ctx.Done():
		return &ProfileUploadError{Profile: r.Name, URL: c.uploadURL(r.Identity), Err: ctx.Err()}
	}
}

func (c *Client) uploadURL(identity string) string {
	return c.baseURL + "/profile/" + url.PathEscape(identity)
}

// uploadReply is the engine's JSON answer to an upload
type uploadReply struct {
	ProfileID string `json:"profileid"`
	Error     string `json:"error"`
}

func (c *Client) doUpload(ctx context.Context, r profile.Rendered) (err error) {
	target := c.uploadURL(r.Identity)

	ctx, span := tracing.StartSpan(ctx, "brouter.upload",
		trace.WithAttributes(attribute.String(tracing.AttrProfileIdentity, r.Identity)))
	defer func() {
		monitoring.RecordProfileUpload(r.Name, err == nil)
		tracing.EndWithError(span, err)
	}()

	body, status, err := c.do(ctx, http.MethodPost, target, []byte(r.Text), "text/plain; charset=utf-8", tracing.OperationUpload)
	span.SetAttributes(tracing.EngineAttributes(tracing.OperationUpload, target, status)...)
	if err != nil {
		return &ProfileUploadError{Profile: r.Name, URL: target, Err: err}
	}
	if status != http.StatusOK {
		return &ProfileUploadError{Profile: r.Name, URL: target, StatusCode: status, Message: core.Snippet(body, errorSnippet)}
	}

	var reply uploadReply
	if json.Unmarshal(body, &reply) == nil && reply.Error != "" {
		return &ProfileUploadError{Profile: r.Name, URL: target, StatusCode: status, Message: reply.Error}
	}

	c.logger.Info("profile uploaded", "profile", r.Name, "identity", r.Identity)
	return nil
}

// do performs one rate-limited engine call and returns the body and status
func (c *Client) do(ctx context.Context, method, target string, payload []byte, contentType, operation string) ([]byte, int, error) {
	waitStart := time.Now()
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}
	waited := time.Since(waitStart)
	monitoring.RecordRateLimitWait("brouter", waited)
	tracing.SetAttributes(ctx, attribute.Int64(tracing.AttrRateLimitWaitMs, waited.Milliseconds()))

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, 0, err
	}
	core.SetDefaultHeaders(req, "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		monitoring.RecordEngineRequest(operation, time.Since(start), false)
		return nil, 0, err
	}
	defer resp.Body.Close()

	limit := int64(maxErrorBody)
	if resp.StatusCode == http.StatusOK {
		limit = maxRouteBody
	}
	data, err := core.ReadLimited(resp.Body, limit)
	monitoring.RecordEngineRequest(operation, time.Since(start), err == nil && resp.StatusCode == http.StatusOK)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// Ping checks that the engine answers HTTP at all. Any status counts as
// reachable since the engine rejects parameterless requests.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL, nil)
	if err != nil {
		return err
	}
	core.SetDefaultHeaders(req, "")

	start := time.Now()
	resp, err := c.http.Do(req)
	monitoring.RecordEngineRequest(tracing.OperationPing, time.Since(start), err == nil)
	if err != nil {
		return fmt.Errorf("brouter unreachable: %w", err)
	}
	resp.Body.Close()
	return nil
}
