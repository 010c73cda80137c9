package preimage

import (
	"fmt"
	"sort"
	"sync"
)

// Well-known names for the two secrets of a collateralized loan.
const (
	// NameL is the lender's delivery secret.
	NameL = "L"
	// NameM is the borrower's settlement secret, shared by the guarantee and
	// delivery contracts.
	NameM = "M"
)

// Registry holds named preimages for the lifetime of a process. Nothing is
// persisted; a restart requires the secrets to be supplied again.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Preimage
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]Preimage)}
}

// Generate creates a random preimage under name and returns it.
func (r *Registry) Generate(name string) (Preimage, error) {
	p := New()
	if err := r.Put(name, p); err != nil {
		return Preimage{}, err
	}
	return p, nil
}

// Put registers p under name. Registering a name twice is an error.
func (r *Registry) Put(name string, p Preimage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	r.entries[name] = p
	return nil
}

// Get returns the preimage registered under name.
func (r *Registry) Get(name string) (Preimage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.entries[name]
	if !ok {
		return Preimage{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return p, nil
}

// Commitment returns the commitment of the preimage registered under name.
func (r *Registry) Commitment(name string) (Hash, error) {
	p, err := r.Get(name)
	if err != nil {
		return Hash{}, err
	}
	return Commit(p), nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for n := range r.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
