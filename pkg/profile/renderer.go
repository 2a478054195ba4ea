package profile

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/NERVsystems/velomcp/pkg/cache"
	"github.com/NERVsystems/velomcp/pkg/monitoring"
	"github.com/NERVsystems/velomcp/pkg/tracing"
)

// ErrUnknownProfile is returned when rendering a name absent from the catalog
var ErrUnknownProfile = errors.New("profile: unknown templated profile")

// Rendered is the engine-ready text of a profile and its identity
type Rendered struct {
	Name     string
	Text     string
	Identity string
}

// Identity returns "custom_<name>_<md5 hex of text>"
func Identity(name, text string) string {
	sum := md5.Sum([]byte(text))
	return "custom_" + name + "_" + hex.EncodeToString(sum[:])
}

// Renderer renders catalog profiles, memoizing results in an injected cache
type Renderer struct {
	catalog *Catalog
	cache   *cache.TTLCache[string, Rendered]
}

// NewRenderer creates a renderer. A nil cache disables memoization.
func NewRenderer(catalog *Catalog, c *cache.TTLCache[string, Rendered]) *Renderer {
	return &Renderer{catalog: catalog, cache: c}
}

// Catalog returns the catalog backing the renderer
func (r *Renderer) Catalog() *Catalog {
	return r.catalog
}

// Render merges overrides into the profile defaults and renders the template
func (r *Renderer) Render(name string, overrides Params) (Rendered, error) {
	e, ok := r.catalog.lookup(name)
	if !ok {
		return Rendered{}, fmt.Errorf("%w: %s", ErrUnknownProfile, name)
	}
	if err := overrides.Validate(); err != nil {
		return Rendered{}, err
	}

	params := e.def.Defaults.Merge(overrides)
	key := name + "?" + params.Canonical()

	if r.cache != nil {
		if hit, ok := r.cache.Get(key); ok {
			monitoring.RecordCacheHit(tracing.CacheTypeProfile)
			return hit, nil
		}
		monitoring.RecordCacheMiss(tracing.CacheTypeProfile)
	}

	text, err := renderTemplate(e.text, params)
	if err != nil {
		return Rendered{}, err
	}
	out := Rendered{Name: name, Text: text, Identity: Identity(name, text)}

	if r.cache != nil {
		r.cache.Set(key, out)
		monitoring.UpdateCacheSize(tracing.CacheTypeProfile, r.cache.Count())
	}
	return out, nil
}

// Resolve returns the identity to send to the engine for name. Templated
// profiles are rendered; any other name is an engine built-in and is
// returned verbatim with templated=false.
func (r *Renderer) Resolve(name string, overrides Params) (rendered Rendered, templated bool, err error) {
	if !r.catalog.IsTemplated(name) {
		return Rendered{Name: name, Identity: name}, false, nil
	}
	rendered, err = r.Render(name, overrides)
	return rendered, true, err
}
