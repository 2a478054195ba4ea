// Package profile renders routing-engine profiles from line-oriented
// templates and per-request parameter overrides. A rendered profile is
// identified by a hash of its text, so identical inputs always map to the
// same engine-side profile.
package profile

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

//go:embed templates/*.brf
var embedded embed.FS

// TemplateExt is the file extension of profile templates
const TemplateExt = ".brf"

// EmbeddedTemplates returns the templates compiled into the binary
func EmbeddedTemplates() fs.FS {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		panic(err)
	}
	return sub
}

// DirTemplates reads templates from a directory
func DirTemplates(dir string) fs.FS {
	return os.DirFS(dir)
}

// Definition declares a templated profile and its default parameters
type Definition struct {
	Template    string `yaml:"template" json:"template" validate:"required"`
	Description string `yaml:"description" json:"description,omitempty"`
	Defaults    Params `yaml:"defaults" json:"defaults,omitempty"`
}

// Info describes a catalog entry to callers
type Info struct {
	Name        string   `json:"name"`
	Template    string   `json:"template"`
	Description string   `json:"description,omitempty"`
	Defaults    Params   `json:"defaults"`
	Parameters  []string `json:"parameters"`
}

type entry struct {
	def  Definition
	text string
}

// Catalog holds the templated profiles known at start. It is read-only
// after construction and safe for concurrent use.
type Catalog struct {
	entries map[string]entry
}

// NewCatalog loads the template of every definition from templates
func NewCatalog(defs map[string]Definition, templates fs.FS) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]entry, len(defs))}
	for name, def := range defs {
		if name == "" {
			return nil, fmt.Errorf("profile with empty name")
		}
		if err := def.Defaults.Validate(); err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		raw, err := fs.ReadFile(templates, def.Template+TemplateExt)
		if err != nil {
			return nil, fmt.Errorf("profile %s: reading template %s: %w", name, def.Template, err)
		}
		c.entries[name] = entry{def: def, text: string(raw)}
	}
	return c, nil
}

// IsTemplated reports whether name is a catalog profile. Other names are
// engine built-ins and are sent verbatim.
func (c *Catalog) IsTemplated(name string) bool {
	_, ok := c.entries[name]
	return ok
}

// Names returns the catalog profile names in sorted order
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Describe returns the public description of every profile
func (c *Catalog) Describe() []Info {
	infos := make([]Info, 0, len(c.entries))
	for _, name := range c.Names() {
		e := c.entries[name]
		defaults := e.def.Defaults
		if defaults == nil {
			defaults = Params{}
		}
		params := templateParams(e.text)
		if params == nil {
			params = []string{}
		}
		infos = append(infos, Info{
			Name:        name,
			Template:    e.def.Template,
			Description: e.def.Description,
			Defaults:    defaults,
			Parameters:  params,
		})
	}
	return infos
}

func (c *Catalog) lookup(name string) (entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}
