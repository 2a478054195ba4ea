package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/monitoring"
)

// HTTPTransportConfig holds configuration for the HTTP transport
type HTTPTransportConfig struct {
	Addr           string  `json:"addr"`             // listen address, e.g. ":7082"
	BaseURL        string  `json:"base_url"`         // advertised base URL; derived from the request when empty
	AuthToken      string  `json:"auth_token"`       // bearer token; empty disables authentication
	MCPEndpoint    string  `json:"mcp_endpoint"`     // streamable HTTP endpoint path
	Metrics        bool    `json:"metrics"`          // serve /metrics on the same listener
	RateLimit      float64 `json:"rate_limit"`       // requests per second per IP, 0 disables
	RateBurst      int     `json:"rate_burst"`       // burst size for the rate limiter
	MaxRequestSize int64   `json:"max_request_size"` // maximum request body size in bytes
	MaxHeaderBytes int     `json:"max_header_bytes"`
	TLSCertFile    string  `json:"tls_cert_file"`
	TLSKeyFile     string  `json:"tls_key_file"`
}

// DefaultHTTPTransportConfig returns sensible defaults
func DefaultHTTPTransportConfig() HTTPTransportConfig {
	return HTTPTransportConfig{
		Addr:           ":7082",
		MCPEndpoint:    "/mcp",
		RateLimit:      10,
		RateBurst:      20,
		MaxRequestSize: 1 << 20,
		MaxHeaderBytes: 1 << 20,
	}
}

// HTTPTransport serves MCP over streamable HTTP next to the health and
// metrics endpoints
type HTTPTransport struct {
	config        HTTPTransportConfig
	logger        *slog.Logger
	mcpHTTP       *mcpserver.StreamableHTTPServer
	mux           *http.ServeMux
	httpSrv       *http.Server
	rateLimiter   *RateLimiter
	healthChecker *monitoring.HealthChecker
	mu            sync.RWMutex
}

// NewHTTPTransport creates a new HTTP transport instance
func NewHTTPTransport(mcpServer *mcpserver.MCPServer, config HTTPTransportConfig, logger *slog.Logger) *HTTPTransport {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "http")
	if config.MCPEndpoint == "" {
		config.MCPEndpoint = "/mcp"
	}
	if config.AuthToken != "" {
		if err := core.ValidateAuthToken(config.AuthToken); err != nil {
			logger.Warn("weak authentication token detected", "error", err.Error())
		}
	}

	t := &HTTPTransport{
		config: config,
		logger: logger,
		mcpHTTP: mcpserver.NewStreamableHTTPServer(mcpServer,
			mcpserver.WithEndpointPath(config.MCPEndpoint),
		),
		mux: http.NewServeMux(),
	}
	if config.RateLimit > 0 {
		t.rateLimiter = NewRateLimiter(rate.Limit(config.RateLimit), config.RateBurst)
	}
	t.setupRoutes()
	return t
}

// SetHealthChecker sets the health checker behind /health, /ready and /live
func (t *HTTPTransport) SetHealthChecker(hc *monitoring.HealthChecker) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.healthChecker = hc
}

func (t *HTTPTransport) setupRoutes() {
	t.mux.HandleFunc("/", t.handleServiceDiscovery)

	// Probes stay open so orchestrators need no credentials
	t.mux.HandleFunc("/health", t.handleHealth)
	t.mux.HandleFunc("/ready", t.handleReady)
	t.mux.HandleFunc("/live", t.handleLive)

	if t.config.Metrics {
		t.mux.Handle("/metrics", core.RequireBearer(t.config.AuthToken, promhttp.Handler()))
	}

	t.mux.Handle(t.config.MCPEndpoint, t.authMiddleware(t.mcpHTTP))
}

// authMiddleware answers unauthenticated MCP calls with a JSON-RPC error
func (t *HTTPTransport) authMiddleware(next http.Handler) http.Handler {
	if t.config.AuthToken == "" {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := core.BearerToken(r.Header.Get("Authorization"))
		if !ok || !core.SecureCompareString(token, t.config.AuthToken) {
			t.logger.Warn("authentication failed",
				"remote_addr", getIP(r),
				"path", r.URL.Path,
				"has_header", r.Header.Get("Authorization") != "")
			w.Header().Set("WWW-Authenticate", `Bearer realm="velomcp"`)
			t.writeJSONRPCError(w, http.StatusUnauthorized, -32001, "Authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Handler returns the mux wrapped in the middleware chain
func (t *HTTPTransport) Handler() http.Handler {
	handler := http.Handler(t.mux)
	if t.rateLimiter != nil {
		handler = t.rateLimiter.Middleware(handler)
	}
	if t.config.MaxRequestSize > 0 {
		handler = RequestSizeLimiter(t.config.MaxRequestSize)(handler)
	}
	handler = SecurityHeaders(handler)
	handler = LoggingMiddleware(t.logger)(handler)
	handler = TracingMiddleware()(handler)
	return handler
}

func (t *HTTPTransport) handleServiceDiscovery(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	baseURL := t.config.BaseURL
	if baseURL == "" {
		scheme := "http"
		if r.TLS != nil {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, r.Host)
	}

	discovery := map[string]any{
		"service":   ServerName,
		"transport": "streamable-http",
		"endpoints": map[string]string{
			"mcp": baseURL + t.config.MCPEndpoint,
		},
		"capabilities": map[string]any{
			"tools": true,
		},
		"auth": map[string]any{
			"required": t.config.AuthToken != "",
		},
	}
	t.writeJSON(w, http.StatusOK, discovery)
}

func (t *HTTPTransport) handleHealth(w http.ResponseWriter, r *http.Request) {
	if hc := t.checker(); hc != nil {
		hc.HealthHandler()(w, r)
		return
	}
	t.writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (t *HTTPTransport) handleReady(w http.ResponseWriter, r *http.Request) {
	if hc := t.checker(); hc != nil {
		hc.ReadinessHandler()(w, r)
		return
	}
	t.writeJSON(w, http.StatusOK, map[string]any{"ready": true, "status": "ok"})
}

func (t *HTTPTransport) handleLive(w http.ResponseWriter, r *http.Request) {
	if hc := t.checker(); hc != nil {
		hc.LivenessHandler()(w, r)
		return
	}
	t.writeJSON(w, http.StatusOK, map[string]any{"alive": true})
}

func (t *HTTPTransport) checker() *monitoring.HealthChecker {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.healthChecker
}

func (t *HTTPTransport) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.logger.Error("failed to encode response", "error", err)
	}
}

func (t *HTTPTransport) writeJSONRPCError(w http.ResponseWriter, status, code int, message string) {
	t.writeJSON(w, status, map[string]any{
		"jsonrpc": "2.0",
		"id":      nil,
		"error": map[string]any{
			"code":    code,
			"message": message,
		},
	})
}

// Start serves HTTP until Shutdown is called
func (t *HTTPTransport) Start() error {
	t.mu.Lock()
	if t.httpSrv != nil {
		t.mu.Unlock()
		return core.NewError(core.ErrInternalError, "HTTP transport already started").
			WithGuidance("Stop the HTTP transport before starting it again")
	}

	t.httpSrv = &http.Server{
		Addr:              t.config.Addr,
		Handler:           t.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// route planning over several profiles can take a while
		WriteTimeout:   2 * time.Minute,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: t.config.MaxHeaderBytes,
	}
	srv := t.httpSrv
	tls := t.config.TLSCertFile != "" && t.config.TLSKeyFile != ""
	t.mu.Unlock()

	t.logger.Info("starting HTTP transport",
		"addr", t.config.Addr,
		"mcp_endpoint", t.config.MCPEndpoint,
		"auth", t.config.AuthToken != "",
		"metrics", t.config.Metrics,
		"tls", tls)

	if tls {
		return srv.ListenAndServeTLS(t.config.TLSCertFile, t.config.TLSKeyFile)
	}
	return srv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP transport
func (t *HTTPTransport) Shutdown(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.rateLimiter != nil {
		t.rateLimiter.Stop()
		t.rateLimiter = nil
	}
	if t.httpSrv == nil {
		return nil
	}

	t.logger.Info("shutting down HTTP transport")
	if err := t.mcpHTTP.Shutdown(ctx); err != nil {
		t.logger.Error("failed to shut down MCP sessions", "error", err)
	}
	err := t.httpSrv.Shutdown(ctx)
	t.httpSrv = nil
	return err
}

// GetConfig returns the transport configuration
func (t *HTTPTransport) GetConfig() HTTPTransportConfig {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.config
}
