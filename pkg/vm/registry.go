package vm

import (
	"cmp"
	"slices"
	"sync"

	"github.com/google/uuid"
)

// Registry keeps processes by id.
type Registry struct {
	procs map[uuid.UUID]*Process
	mu    sync.RWMutex
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		procs: make(map[uuid.UUID]*Process),
	}
}

// Add registers p and returns its id.
func (r *Registry) Add(p *Process) uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.procs[p.ID()] = p
	return p.ID()
}

// Get returns the process registered under id.
func (r *Registry) Get(id uuid.UUID) (*Process, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.procs[id]
	return p, ok
}

// Remove unregisters id. It reports whether the id was known.
func (r *Registry) Remove(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.procs[id]; !ok {
		return false
	}
	delete(r.procs, id)
	return true
}

// List returns all processes ordered by name, then id.
func (r *Registry) List() []*Process {
	r.mu.RLock()
	procs := make([]*Process, 0, len(r.procs))
	for _, p := range r.procs {
		procs = append(procs, p)
	}
	r.mu.RUnlock()

	slices.SortFunc(procs, func(a, b *Process) int {
		if c := cmp.Compare(a.Name(), b.Name()); c != 0 {
			return c
		}
		return cmp.Compare(a.ID().String(), b.ID().String())
	})
	return procs
}

// Len returns the number of registered processes.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.procs)
}
