// Package registration announces the service to a service registry and keeps
// the entry alive with heartbeats. Registration is best effort: the server
// runs the same whether or not the registry answers.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/NERVsystems/velomcp/pkg/core"
)

// Defaults applied by NewClient
const (
	DefaultHeartbeatInterval = 30 * time.Second
	DefaultTimeout           = 5 * time.Second
)

const maxResponseBody = 64 << 10

// Config holds the configuration for service registration
type Config struct {
	// RegistryURL is the registry base URL, e.g. http://registry:7083.
	// Empty disables registration.
	RegistryURL string
	ServiceName string
	// ServiceType defaults to "mcp"
	ServiceType string
	ServiceURL  string
	HealthURL   string
	Version     string
	// Capabilities and Tools advertise what the service does
	Capabilities []string
	Tools        []string
	Metadata     map[string]any

	HeartbeatInterval time.Duration
	Timeout           time.Duration
}

// Request is the body of a registration or heartbeat
type Request struct {
	Name         string         `json:"name"`
	Type         string         `json:"type"`
	URL          string         `json:"url"`
	HealthURL    string         `json:"health_url"`
	Version      string         `json:"version"`
	Capabilities []string       `json:"capabilities,omitempty"`
	Tools        []string       `json:"tools,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// Response is the registry answer to a Request
type Response struct {
	Status     string `json:"status"`
	Name       string `json:"name"`
	TTLSeconds int    `json:"ttl_seconds"`
}

// Client registers one service
type Client struct {
	cfg    Config
	logger *slog.Logger
	http   *http.Client

	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	registered bool
}

// NewClient creates a registration client
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ServiceType == "" {
		cfg.ServiceType = "mcp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		logger: logger.With("component", "registration", "registry", cfg.RegistryURL),
		http:   core.NewHTTPClient(cfg.Timeout),
	}
}

// Start registers in the background and sends a heartbeat every interval
// until ctx is done or Stop is called. It returns immediately.
func (c *Client) Start(ctx context.Context) {
	if c.cfg.RegistryURL == "" {
		c.logger.Info("service registration disabled")
		return
	}

	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go c.heartbeatLoop(ctx)
}

// Stop deregisters and stops the heartbeat loop
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	c.deregister(ctx)
}

// IsRegistered reports whether the last heartbeat was accepted
func (c *Client) IsRegistered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.registered
}

func (c *Client) heartbeatLoop(ctx context.Context) {
	defer c.wg.Done()

	c.heartbeat(ctx)

	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.heartbeat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (c *Client) heartbeat(ctx context.Context) {
	was := c.IsRegistered()
	resp, err := c.Register(ctx)
	if err != nil {
		if ctx.Err() != nil {
			// stopping; Stop decides about deregistration
			return
		}
		c.setRegistered(false)
		c.logger.Debug("registration failed", "error", err)
		return
	}
	c.setRegistered(true)
	if !was {
		c.logger.Info("registered", "name", c.cfg.ServiceName, "ttl_seconds", resp.TTLSeconds)
	}
}

// Register sends one registration request
func (c *Client) Register(ctx context.Context) (*Response, error) {
	body, err := json.Marshal(Request{
		Name:         c.cfg.ServiceName,
		Type:         c.cfg.ServiceType,
		URL:          c.cfg.ServiceURL,
		HealthURL:    c.cfg.HealthURL,
		Version:      c.cfg.Version,
		Capabilities: c.cfg.Capabilities,
		Tools:        c.cfg.Tools,
		Metadata:     c.cfg.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding registration: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RegistryURL+"/api/register", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	core.SetDefaultHeaders(req, "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := core.ReadLimited(resp.Body, maxResponseBody)
	if err != nil {
		return nil, fmt.Errorf("reading registry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("registry returned %d: %s", resp.StatusCode, core.Snippet(data, 200))
	}

	var out Response
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}
	return &out, nil
}

func (c *Client) deregister(ctx context.Context) {
	if !c.IsRegistered() {
		return
	}
	defer c.setRegistered(false)

	target := c.cfg.RegistryURL + "/api/register/" + url.PathEscape(c.cfg.ServiceName)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, target, nil)
	if err != nil {
		return
	}
	core.SetDefaultHeaders(req, "")

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("deregistration failed", "error", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		c.logger.Info("deregistered", "name", c.cfg.ServiceName)
	}
}

func (c *Client) setRegistered(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.registered = v
}
