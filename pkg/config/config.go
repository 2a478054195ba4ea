// Package config loads the velomcp settings: engine endpoint, planner
// tuning, caches and the profile catalog. Built-in defaults are embedded;
// a YAML file overrides them and VELOMCP_* environment variables override
// both.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/NERVsystems/velomcp/pkg/brouter"
	"github.com/NERVsystems/velomcp/pkg/planner"
	"github.com/NERVsystems/velomcp/pkg/profile"
)

//go:embed default.yml
var defaultYAML []byte

// EngineConfig locates and shapes traffic to the routing engine
type EngineConfig struct {
	URL               string        `yaml:"url" validate:"required,url"`
	Timeout           time.Duration `yaml:"timeout" validate:"gt=0"`
	RequestsPerSecond float64       `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int           `yaml:"burst" validate:"gte=0"`
}

// PlannerConfig tunes aggregation and selection
type PlannerConfig struct {
	Workers            int      `yaml:"workers" validate:"gte=1,lte=64"`
	Alternatives       []int    `yaml:"alternatives" validate:"required,min=1,dive,gte=0,lte=3"`
	Profiles           []string `yaml:"profiles" validate:"required,min=1,dive,required"`
	FailurePolicy      string   `yaml:"failure_policy" validate:"oneof=best_effort strict"`
	TimeTolerance      float64  `yaml:"time_tolerance" validate:"gte=0"`
	SafetyTolerance    float64  `yaml:"safety_tolerance" validate:"gte=0"`
	Boundary           string   `yaml:"boundary" validate:"oneof=inclusive strict"`
	DuplicateThreshold float64  `yaml:"duplicate_threshold" validate:"gte=0"`
}

// CarConfig selects the route used for the car distance. An empty profile
// disables it.
type CarConfig struct {
	Profile     string `yaml:"profile"`
	Alternative int    `yaml:"alternative" validate:"gte=0,lte=3"`
}

// CacheConfig sizes the route and render caches
type CacheConfig struct {
	RouteSize int           `yaml:"route_size" validate:"gte=0"`
	RouteTTL  time.Duration `yaml:"route_ttl" validate:"gte=0"`
	RenderTTL time.Duration `yaml:"render_ttl" validate:"gte=0"`
	// RenderSize bounds the render cache, whose keys follow caller params
	RenderSize int `yaml:"render_size" validate:"gt=0"`
}

// Config is the complete application configuration
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	Planner PlannerConfig `yaml:"planner"`
	Car     CarConfig     `yaml:"car"`
	Cache   CacheConfig   `yaml:"cache"`
	// TemplateDir replaces the embedded profile templates when set
	TemplateDir string                        `yaml:"template_dir"`
	Profiles    map[string]profile.Definition `yaml:"profiles" validate:"required,min=1,dive"`
	ProfileSets map[string][]string           `yaml:"profile_sets" validate:"dive,min=1,dive,required"`
	Switches    map[string]profile.Params     `yaml:"switches"`
}

// Default returns the embedded configuration
func Default() (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultYAML, &cfg); err != nil {
		return nil, fmt.Errorf("embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the embedded defaults, overlays path when non-empty, applies
// environment overrides and validates the result. Maps in the file are
// merged into the defaults key by key; lists replace them.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDotEnv loads environment files, ignoring the ones that don't exist.
// Variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv("VELOMCP_ENGINE_URL"); v != "" {
		c.Engine.URL = v
	}
	if v := getenv("VELOMCP_ENGINE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("VELOMCP_ENGINE_TIMEOUT: %w", err)
		}
		c.Engine.Timeout = d
	}
	if v := getenv("VELOMCP_WORKERS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("VELOMCP_WORKERS: %w", err)
		}
		c.Planner.Workers = n
	}
	if v := getenv("VELOMCP_FAILURE_POLICY"); v != "" {
		c.Planner.FailurePolicy = v
	}
	if v := getenv("VELOMCP_TEMPLATE_DIR"); v != "" {
		c.TemplateDir = v
	}
	return nil
}

// Validate checks field constraints and cross references
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	for name, def := range c.Profiles {
		if err := def.Defaults.Validate(); err != nil {
			return fmt.Errorf("invalid config: profile %s: %w", name, err)
		}
	}
	for name, params := range c.Switches {
		if err := params.Validate(); err != nil {
			return fmt.Errorf("invalid config: switch %s: %w", name, err)
		}
	}
	for _, name := range []string{planner.SwitchMountain, planner.SwitchElectric} {
		if _, ok := c.Switches[name]; !ok {
			return fmt.Errorf("invalid config: switch %s is not defined", name)
		}
	}
	return nil
}

// Templates returns the template source selected by TemplateDir
func (c *Config) Templates() fs.FS {
	if c.TemplateDir != "" {
		return profile.DirTemplates(c.TemplateDir)
	}
	return profile.EmbeddedTemplates()
}

// ClientOptions maps the engine section to client options
func (c *Config) ClientOptions() brouter.Options {
	return brouter.Options{
		BaseURL:           c.Engine.URL,
		Timeout:           c.Engine.Timeout,
		RequestsPerSecond: c.Engine.RequestsPerSecond,
		Burst:             c.Engine.Burst,
	}
}

// Selector builds the itinerary selector
func (c *Config) Selector() planner.Selector {
	return planner.Selector{
		TimeTolerance:      c.Planner.TimeTolerance,
		SafetyTolerance:    c.Planner.SafetyTolerance,
		Boundary:           planner.Boundary(c.Planner.Boundary),
		DuplicateThreshold: c.Planner.DuplicateThreshold,
	}
}

// AggregatorOptions maps the planner section to aggregator options
func (c *Config) AggregatorOptions() planner.AggregatorOptions {
	return planner.AggregatorOptions{
		Workers: c.Planner.Workers,
		Policy:  planner.Policy(c.Planner.FailurePolicy),
	}
}

// PlannerOptions maps the configuration to planner options
func (c *Config) PlannerOptions() planner.Options {
	return planner.Options{
		Profiles:       c.Planner.Profiles,
		ProfileSets:    c.ProfileSets,
		Alternatives:   c.Planner.Alternatives,
		Switches:       c.Switches,
		CarProfile:     c.Car.Profile,
		CarAlternative: c.Car.Alternative,
		Selector:       c.Selector(),
	}
}
