package schema

import (
	"fmt"
	"sort"
	"sync/atomic"
)

// Registry holds the descriptors of every topic the gateway knows about.
//
// Lookups read an immutable snapshot; Reload builds a replacement table off
// to the side and swaps it in with a single pointer assignment, so a
// concurrent Lookup never observes a half-updated table.
type Registry struct {
	table atomic.Pointer[map[string]*TopicDescriptor]
}

// NewRegistry creates a registry from the given descriptors.
// Every descriptor is validated; duplicates are rejected.
func NewRegistry(descriptors []TopicDescriptor) (*Registry, error) {
	r := &Registry{}
	if err := r.Reload(descriptors); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload atomically replaces the registered descriptors.
func (r *Registry) Reload(descriptors []TopicDescriptor) error {
	table := make(map[string]*TopicDescriptor, len(descriptors))
	for i := range descriptors {
		d := descriptors[i]
		if err := d.Validate(); err != nil {
			return fmt.Errorf("invalid topic descriptor: %w", err)
		}
		if _, exists := table[d.Name]; exists {
			return fmt.Errorf("duplicate topic %q", d.Name)
		}
		table[d.Name] = &d
	}
	r.table.Store(&table)
	return nil
}

// Lookup returns the descriptor for the named topic, or false when
// the topic has no schema entry.
func (r *Registry) Lookup(topic string) (*TopicDescriptor, bool) {
	table := *r.table.Load()
	d, ok := table[topic]
	return d, ok
}

// Topics returns all registered topic names, sorted.
func (r *Registry) Topics() []string {
	table := *r.table.Load()
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered topics.
func (r *Registry) Len() int {
	return len(*r.table.Load())
}
