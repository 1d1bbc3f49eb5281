package flow

import (
	"sort"
	"sync"
)

// Binding names the value a node exposes to its downstream consumers. Every
// node binds exactly one output, named "<node_id>_out".
type Binding struct {
	NodeID string
	Name   string
}

// OutBinding returns the canonical output binding for a node id.
func OutBinding(nodeID string) Binding {
	return Binding{NodeID: nodeID, Name: nodeID + "_out"}
}

// Fragment is the code a kind generates for one node: the source text and
// the output binding the text declares. The compiler rejects fragments whose
// binding does not follow the canonical naming.
type Fragment struct {
	Source  string
	Binding string
}

// GenerateFunc produces the fragment for a node. It must be pure: same
// nodeID, config, and inputs always yield the same fragment. inputs holds
// the bindings of the node's upstream producers sorted by source node id;
// it is empty for source nodes.
type GenerateFunc func(nodeID string, config map[string]any, inputs []Binding) (Fragment, error)

// Kind describes one node kind: its palette metadata, its default
// configuration, and its code generator.
type Kind struct {
	Name        string
	Category    string
	Description string
	// DefaultConfig returns a fresh config document. Callers own the map.
	DefaultConfig func() map[string]any
	Generate      GenerateFunc
}

// Registry is a table of node kinds. Registration happens at startup;
// lookups are concurrent-safe afterwards.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kinds: make(map[string]Kind)}
}

// Register adds a kind. Registering a name twice fails with DuplicateKind;
// a kind's contract cannot change once other flows may reference it.
func (r *Registry) Register(k Kind) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kinds[k.Name]; exists {
		return graphErr(CodeDuplicateKind, "kind "+k.Name+" is already registered")
	}
	r.kinds[k.Name] = k
	return nil
}

// Lookup returns the kind by name, or an UnknownKind error.
func (r *Registry) Lookup(name string) (Kind, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kinds[name]
	if !ok {
		return Kind{}, graphErr(CodeUnknownKind, "unknown node kind "+name)
	}
	return k, nil
}

// Names returns all registered kind names in lexicographic order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kinds returns all registered kinds ordered by name.
func (r *Registry) Kinds() []Kind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Kind, 0, len(r.kinds))
	for _, k := range r.kinds {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var (
	builtinsOnce sync.Once
	builtins     *Registry
)

// Builtins returns the process-wide registry holding the builtin node
// vocabulary. The registry is built once and shared; callers needing a
// custom vocabulary should build their own with NewRegistry.
func Builtins() *Registry {
	builtinsOnce.Do(func() {
		builtins = NewRegistry()
		registerBuiltins(builtins)
	})
	return builtins
}
