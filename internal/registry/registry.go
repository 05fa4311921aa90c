// Package registry provides the key-value registry an application host exposes
// to its initializers.
//
// Keys are full names of the form "type:name" (for example
// "config:environment"). A key is either registered, possibly with an empty
// value, or not present at all; Resolve reports the difference.
package registry

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
)

// ErrInvalidKey is returned when a key is not a "type:name" full name.
var ErrInvalidKey = errors.New("invalid registry key")

// Registry is a concurrency-safe name -> value store.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]any
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{entries: make(map[string]any)}
}

// Register stores value under key, replacing any previous registration.
func (r *Registry) Register(key string, value any) error {
	if err := ValidateKey(key); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = value
	return nil
}

// Resolve returns the value registered under key and whether it is present.
func (r *Registry) Resolve(key string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.entries[key]
	return v, ok
}

// Has reports whether key is registered.
func (r *Registry) Has(key string) bool {
	_, ok := r.Resolve(key)
	return ok
}

// Unregister removes key. Removing an absent key is a no-op.
func (r *Registry) Unregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.entries))
	for k := range r.entries {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	slices.Sort(keys)
	return keys
}

// Len returns the number of registrations.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// ValidateKey checks that key has a non-empty type and name separated by ':'.
func ValidateKey(key string) error {
	typ, name, ok := strings.Cut(key, ":")
	if !ok || strings.TrimSpace(typ) == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: %q must be of the form type:name", ErrInvalidKey, key)
	}
	return nil
}
