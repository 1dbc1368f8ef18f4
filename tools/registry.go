package tools

import (
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry is a namespaced catalog mapping a tool identifier to its
// invocation schema and executor (spec §4.1). A Registry is constructed
// once per process; after construction it is effectively read-only and
// safe to share across concurrent Agent Loops and Tree Search Controllers.
type Registry struct {
	mu      sync.RWMutex
	byName  map[Name]*Descriptor
	order   []Name
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[Name]*Descriptor)}
}

// Register inserts a Descriptor, compiling its ArgumentSchema if RawSchema
// is set and ArgumentSchema is not already compiled. Fails with
// ErrDuplicateTool if the name is already present.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tools: descriptor name is required")
	}
	if d.ArgumentSchema == nil && len(d.RawSchema) > 0 {
		compiled, err := compileSchema(string(d.Name), d.RawSchema)
		if err != nil {
			return fmt.Errorf("tools: compiling schema for %q: %w", d.Name, err)
		}
		d.ArgumentSchema = compiled
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[d.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, d.Name)
	}
	cp := d
	r.byName[d.Name] = &cp
	r.order = append(r.order, d.Name)
	return nil
}

// Lookup fails with ErrUnknownTool if name is absent.
func (r *Registry) Lookup(name Name) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	return d, nil
}

// List returns descriptors in stable insertion order, used when rendering
// the system prompt.
func (r *Registry) List() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Descriptor, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

func compileSchema(name string, raw []byte) (*jsonschema.Schema, error) {
	c := jsonschema.NewCompiler()
	url := "mem://tools/" + name + ".json"
	if err := c.AddResource(url, toUnmarshaled(raw)); err != nil {
		return nil, err
	}
	return c.Compile(url)
}
