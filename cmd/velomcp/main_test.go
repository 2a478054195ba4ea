package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/NERVsystems/velomcp/pkg/config"
	"github.com/NERVsystems/velomcp/pkg/profile"
)

func TestNewAppFromDefaults(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	if got := len(a.catalog.Names()); got != len(cfg.Profiles) {
		t.Errorf("catalog has %d profiles, want %d", got, len(cfg.Profiles))
	}
	if got := a.planner.ProfileSets(); len(got) != len(cfg.ProfileSets) {
		t.Errorf("planner sets = %v", got)
	}
	if got := a.client.BaseURL(); got != cfg.Engine.URL {
		t.Errorf("client base URL = %q, want %q", got, cfg.Engine.URL)
	}
	if names := a.registry.GetToolNames(); len(names) != 4 {
		t.Errorf("registry tools = %v", names)
	}
}

func TestNewAppBoundsRenderCache(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cfg.Cache.RenderSize = 2

	a, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("newApp() error = %v", err)
	}
	defer a.close()

	r := profile.NewRenderer(a.catalog, a.renders)
	for _, speed := range []float64{18, 19.5, 21, 22.5} {
		if _, err := r.Render("safe", profile.Params{"cruise_speed": speed}); err != nil {
			t.Fatalf("Render(cruise_speed=%v) error = %v", speed, err)
		}
	}
	if got := a.renders.Count(); got != 2 {
		t.Errorf("render cache holds %d entries, want 2", got)
	}
}

func TestNewAppBadTemplate(t *testing.T) {
	cfg, err := config.Default()
	if err != nil {
		t.Fatalf("Default() error = %v", err)
	}
	cfg.TemplateDir = t.TempDir()

	if _, err := newApp(cfg, slog.New(slog.NewTextHandler(io.Discard, nil))); err == nil {
		t.Fatal("expected an error for a template directory without templates")
	}
}

func TestValidateSafePath(t *testing.T) {
	tests := []struct {
		path    string
		wantErr bool
	}{
		{"client.json", false},
		{filepath.Join("sub", "client.json"), false},
		{filepath.Join("..", "client.json"), true},
		{filepath.Join(string(filepath.Separator), "tmp", "client.json"), true},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			err := validateSafePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSafePath(%q) error = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestGenerateClientConfig(t *testing.T) {
	t.Chdir(t.TempDir())

	existing := `{"mcpServers":{"other":{"command":"other-mcp"}},"theme":"dark"}`
	if err := os.WriteFile("client.json", []byte(existing), 0600); err != nil {
		t.Fatal(err)
	}

	if err := generateClientConfig("client.json", "velomcp.yml", true); err != nil {
		t.Fatalf("generateClientConfig() error = %v", err)
	}

	data, err := os.ReadFile("client.json")
	if err != nil {
		t.Fatal(err)
	}
	var doc struct {
		MCPServers map[string]mcpServerEntry `json:"mcpServers"`
		Theme      string                    `json:"theme"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}

	if _, ok := doc.MCPServers["other"]; !ok {
		t.Error("merge dropped the other server")
	}
	if doc.Theme != "dark" {
		t.Error("merge dropped unrelated keys")
	}
	entry, ok := doc.MCPServers["velomcp"]
	if !ok {
		t.Fatal("velomcp entry missing")
	}
	if len(entry.Args) != 2 || entry.Args[0] != "--config" || !filepath.IsAbs(entry.Args[1]) {
		t.Errorf("args = %v", entry.Args)
	}

	if err := generateClientConfig("client.txt", "", false); err == nil {
		t.Error("expected an error for a non-json path")
	}
}
