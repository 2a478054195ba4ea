package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/NERVsystems/velomcp/pkg/config"
	"github.com/NERVsystems/velomcp/pkg/core"
	"github.com/NERVsystems/velomcp/pkg/monitoring"
	"github.com/NERVsystems/velomcp/pkg/registration"
	"github.com/NERVsystems/velomcp/pkg/server"
	"github.com/NERVsystems/velomcp/pkg/tracing"
	ver "github.com/NERVsystems/velomcp/pkg/version"
)

const (
	engineCheckInterval = 30 * time.Second
	shutdownTimeout     = 30 * time.Second
)

var (
	showVersionFlag bool
	debug           bool
	configPath      string
	envFile         string
	engineURL       string
	generateConfig  string
	mergeOnly       bool

	// HTTP transport flags
	enableHTTP    bool
	httpOnly      bool
	httpAddr      string
	httpBaseURL   string
	httpAuthToken string

	// Monitoring flags
	enableMonitoring bool
	monitoringAddr   string

	// Registration flags
	registryURL string
	serviceURL  string
)

func init() {
	flag.BoolVar(&showVersionFlag, "version", false, "Display version information")
	flag.BoolVar(&debug, "debug", false, "Enable debug logging")
	flag.StringVar(&configPath, "config", os.Getenv("VELOMCP_CONFIG"), "YAML configuration file overriding the built-in defaults")
	flag.StringVar(&envFile, "env-file", ".env", "Environment file loaded before the configuration")
	flag.StringVar(&engineURL, "engine-url", "", "BRouter endpoint, overrides the configuration")
	flag.StringVar(&generateConfig, "generate-config", "", "Write an MCP client configuration for this binary to the given .json path")
	flag.BoolVar(&mergeOnly, "merge-only", false, "Keep the other servers of an existing client configuration")

	flag.BoolVar(&enableHTTP, "enable-http", false, "Enable the streamable HTTP transport (in addition to stdio)")
	flag.BoolVar(&httpOnly, "http-only", false, "Run the HTTP transport only, skip stdio (requires --enable-http)")
	flag.StringVar(&httpAddr, "http-addr", ":7082", "HTTP transport address")
	flag.StringVar(&httpBaseURL, "http-base-url", "", "Advertised base URL (derived from requests if empty)")
	flag.StringVar(&httpAuthToken, "http-auth-token", os.Getenv("VELOMCP_AUTH_TOKEN"), "Bearer token for the MCP and metrics endpoints")

	flag.BoolVar(&enableMonitoring, "enable-monitoring", true, "Serve Prometheus metrics and health probes on a separate listener")
	flag.StringVar(&monitoringAddr, "monitoring-addr", ":9090", "Monitoring server address")

	flag.StringVar(&registryURL, "registry-url", os.Getenv("VELOMCP_REGISTRY_URL"), "Service registry to announce this server to (disabled if empty)")
	flag.StringVar(&serviceURL, "service-url", "", "External URL of this server, advertised to the registry")
}

func main() {
	flag.Parse()

	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	// stdout belongs to the stdio transport
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	if showVersionFlag {
		fmt.Println(ver.String())
		return
	}

	if generateConfig != "" {
		if err := generateClientConfig(generateConfig, configPath, mergeOnly); err != nil {
			logger.Error("failed to generate client config", "error", err)
			os.Exit(1)
		}
		logger.Info("generated MCP client config", "path", generateConfig)
		return
	}

	if httpOnly && !enableHTTP {
		logger.Error("--http-only requires --enable-http")
		os.Exit(2)
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		logger.Error("failed to load environment file", "error", err)
		os.Exit(1)
	}
	if engineURL != "" {
		os.Setenv("VELOMCP_ENGINE_URL", engineURL)
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, ver.BuildVersion)
	if err != nil {
		// tracing is optional
		logger.Error("failed to initialize tracing", "error", err)
	} else {
		defer func() {
			if err := shutdownTracing(context.Background()); err != nil {
				logger.Error("error shutting down tracing", "error", err)
			}
		}()
		if endpoint := os.Getenv("OTLP_ENDPOINT"); endpoint != "" {
			logger.Info("OpenTelemetry tracing enabled", "endpoint", endpoint)
		}
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer a.close()

	logger.Info("starting velomcp",
		"version", ver.BuildVersion,
		"log_level", logLevel.String(),
		"engine", cfg.Engine.URL,
		"profiles", a.catalog.Names(),
		"profile_sets", a.planner.ProfileSets(),
		"failure_policy", cfg.Planner.FailurePolicy,
		"http_enabled", enableHTTP,
		"monitoring_enabled", enableMonitoring)

	if httpAuthToken != "" {
		if err := core.ValidateAuthToken(httpAuthToken); err != nil {
			logger.Warn("weak authentication token", "error", err)
		}
	} else if enableHTTP {
		logger.Warn("HTTP transport enabled without authentication")
	}

	healthChecker := monitoring.NewHealthChecker(monitoring.ServiceName, ver.BuildVersion)

	engineMonitor := monitoring.NewConnectionMonitor("brouter", healthChecker, a.client.Ping,
		engineCheckInterval, cfg.Engine.Timeout, logger)
	engineMonitor.Start()
	defer engineMonitor.Stop()

	s := server.NewServer(a.registry, logger)

	if enableMonitoring {
		mux := healthChecker.Mux()
		mux.Handle("/metrics", core.RequireBearer(httpAuthToken, promhttp.Handler()))
		monitoringServer := &http.Server{
			Addr:              monitoringAddr,
			Handler:           mux,
			ReadHeaderTimeout: 30 * time.Second,
		}
		go func() {
			logger.Info("starting monitoring server", "addr", monitoringAddr)
			if err := monitoringServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("monitoring server error", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := monitoringServer.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down monitoring server", "error", err)
			}
		}()
	}

	if enableHTTP {
		httpConfig := server.DefaultHTTPTransportConfig()
		httpConfig.Addr = httpAddr
		httpConfig.BaseURL = httpBaseURL
		httpConfig.AuthToken = httpAuthToken
		httpConfig.Metrics = !enableMonitoring

		httpTransport := server.NewHTTPTransport(s.GetMCPServer(), httpConfig, logger)
		httpTransport.SetHealthChecker(healthChecker)

		go func() {
			if err := httpTransport.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("HTTP transport error", "error", err)
				stop()
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := httpTransport.Shutdown(shutdownCtx); err != nil {
				logger.Error("failed to shut down HTTP transport", "error", err)
			}
		}()
	}

	if registryURL != "" {
		regClient := registration.NewClient(registrationConfig(a), logger)
		regClient.Start(ctx)
		defer regClient.Stop()
	}

	switch {
	case !enableHTTP:
		logger.Info("transport enabled", "type", "stdio", "mode", "blocking")
		if err := s.RunWithContext(ctx); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	case httpOnly:
		logger.Info("server ready", "transports", []string{"http"})
		<-ctx.Done()
	default:
		go func() {
			logger.Info("transport enabled", "type", "stdio", "mode", "background")
			if err := s.RunWithContext(ctx); err != nil {
				logger.Error("stdio transport error", "error", err)
			}
		}()
		logger.Info("server ready", "transports", []string{"stdio", "http"})
		<-ctx.Done()
	}

	logger.Info("server stopped")
}

// registrationConfig describes this server to the service registry
func registrationConfig(a *app) registration.Config {
	svcURL := serviceURL
	if svcURL == "" && enableHTTP {
		svcURL = "http://localhost" + httpAddr
	}
	healthURL := ""
	if svcURL != "" {
		healthURL = svcURL + "/health"
	}
	return registration.Config{
		RegistryURL:  registryURL,
		ServiceName:  monitoring.ServiceName,
		ServiceURL:   svcURL,
		HealthURL:    healthURL,
		Version:      ver.BuildVersion,
		Capabilities: []string{"routing", "cycling", "gpx"},
		Tools:        a.registry.GetToolNames(),
		Metadata: map[string]any{
			"transport":    map[string]bool{"stdio": !httpOnly, "http": enableHTTP},
			"profiles":     a.catalog.Names(),
			"profile_sets": a.planner.ProfileSets(),
		},
	}
}
