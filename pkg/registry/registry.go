// Package registry loads and validates the declarative endpoint catalog
// that drives the Planner's Cartesian-product task generation.
package registry

import (
	"fmt"
	"os"
	"sort"

	"github.com/franklinbaldo/baliza/pkg/errz"
	"github.com/franklinbaldo/baliza/pkg/types"
	"gopkg.in/yaml.v3"
)

// catalog is the on-disk shape: a flat list of endpoint descriptors.
type catalog struct {
	Endpoints []types.Endpoint `yaml:"endpoints"`
}

// Registry holds a validated, immutable set of endpoint descriptors
// indexed by name.
type Registry struct {
	byName map[string]types.Endpoint
	names  []string // insertion order, preserved for fingerprint stability checks
}

// Load reads and validates the YAML endpoint catalog at path.
func Load(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errz.ConfigError("registry.Load", "read %s: %v", path, err)
	}

	var c catalog
	if err := yaml.Unmarshal(raw, &c); err != nil {
		return nil, errz.ConfigError("registry.Load", "parse %s: %v", path, err)
	}

	return newRegistry(c.Endpoints)
}

// newRegistry validates the invariants from the endpoint descriptor
// contract: unique names, non-empty path templates, min <= default <= max
// page sizes, and modality lists containing only positive integers.
func newRegistry(endpoints []types.Endpoint) (*Registry, error) {
	if len(endpoints) == 0 {
		return nil, errz.ConfigError("registry.newRegistry", "endpoint catalog is empty")
	}

	r := &Registry{byName: make(map[string]types.Endpoint, len(endpoints))}
	for _, ep := range endpoints {
		if ep.Name == "" {
			return nil, errz.ConfigError("registry.newRegistry", "endpoint with empty name")
		}
		if _, dup := r.byName[ep.Name]; dup {
			return nil, errz.ConfigError("registry.newRegistry", "duplicate endpoint name %q", ep.Name)
		}
		if ep.PathTemplate == "" {
			return nil, errz.ConfigError("registry.newRegistry", "endpoint %q has empty path template", ep.Name)
		}
		if !(ep.PageSizeMin <= ep.PageSize && ep.PageSize <= ep.PageSizeMax) {
			return nil, errz.ConfigError("registry.newRegistry", "endpoint %q page size bounds violated: min=%d default=%d max=%d", ep.Name, ep.PageSizeMin, ep.PageSize, ep.PageSizeMax)
		}
		for _, m := range ep.Modalities {
			if m <= 0 {
				return nil, errz.ConfigError("registry.newRegistry", "endpoint %q has non-positive modality %d", ep.Name, m)
			}
		}
		if ep.Granularity == "" {
			ep.Granularity = types.GranularityDay
		}
		r.byName[ep.Name] = ep
		r.names = append(r.names, ep.Name)
	}
	return r, nil
}

// Get returns the endpoint named name.
func (r *Registry) Get(name string) (types.Endpoint, error) {
	ep, ok := r.byName[name]
	if !ok {
		return types.Endpoint{}, errz.ConfigError("registry.Get", "unknown endpoint %q", name)
	}
	return ep, nil
}

// List returns every endpoint in the catalog, sorted by name so callers
// get a deterministic order regardless of file order.
func (r *Registry) List() []types.Endpoint {
	return r.sorted(func(types.Endpoint) bool { return true })
}

// ListActive returns only the endpoints with active=true, sorted by name.
func (r *Registry) ListActive() []types.Endpoint {
	return r.sorted(func(ep types.Endpoint) bool { return ep.Active })
}

func (r *Registry) sorted(keep func(types.Endpoint) bool) []types.Endpoint {
	names := make([]string, len(r.names))
	copy(names, r.names)
	sort.Strings(names)

	out := make([]types.Endpoint, 0, len(names))
	for _, n := range names {
		ep := r.byName[n]
		if keep(ep) {
			out = append(out, ep)
		}
	}
	return out
}

func (r *Registry) String() string {
	return fmt.Sprintf("registry(%d endpoints)", len(r.names))
}
