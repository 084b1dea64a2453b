package module

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/odoosync"
	"github.com/xraph/odoosync/id"
	"github.com/xraph/odoosync/job"
)

// Request carries one job's entity reference to an adapter.
type Request struct {
	JobID      id.JobID
	EntityType string
	Action     job.Action
	WPID       int64
	OdooID     int64
	Payload    map[string]any
}

// RequestFor builds the adapter request for j.
func RequestFor(j *job.Job) Request {
	return Request{
		JobID:      j.ID,
		EntityType: j.EntityType,
		Action:     j.Action,
		WPID:       j.WPID,
		OdooID:     j.OdooID,
		Payload:    j.Payload,
	}
}

// Adapter translates one integration's entities to and from Odoo.
// Returning an error fails the job; the engine decides whether it retries.
type Adapter interface {
	// Name is the module identifier stored on jobs, e.g. "crm".
	Name() string

	// PushToOdoo sends a local change to Odoo.
	PushToOdoo(ctx context.Context, req Request) error

	// PullFromOdoo applies a remote change locally. The context carries
	// the importing flag so local hooks do not enqueue a push back.
	PullFromOdoo(ctx context.Context, req Request) error

	// OdooModels maps each entity type to its remote model name.
	OdooModels() map[string]string
}

// Registry maps module names to adapters. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds a. Registering the same name twice returns an error
// wrapping odoosync.ErrDuplicateModule.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := a.Name()
	if _, ok := r.adapters[name]; ok {
		return fmt.Errorf("module %q: %w", name, odoosync.ErrDuplicateModule)
	}
	r.adapters[name] = a
	return nil
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Models returns every module's entity→model map keyed by module name.
func (r *Registry) Models() map[string]map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]map[string]string, len(r.adapters))
	for name, a := range r.adapters {
		out[name] = a.OdooModels()
	}
	return out
}

// Model returns the remote model for one module entity type.
func (r *Registry) Model(module, entityType string) (string, bool) {
	a, ok := r.Get(module)
	if !ok {
		return "", false
	}
	m, ok := a.OdooModels()[entityType]
	return m, ok
}
