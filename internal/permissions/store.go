// Package permissions implements the per-agent topic authorization table.
//
// The table is loaded from configuration as a pair of topic-name sets per
// agent (readable, writable) and is read-only during request processing.
// Reload builds a replacement table off to the side and swaps it in with a
// single pointer assignment, so concurrent Authorize calls never observe a
// half-updated table. Missing agents and missing topics are denied.
package permissions

import (
	"sort"
	"sync/atomic"
)

// AccessMode selects which grant Authorize checks.
type AccessMode int

const (
	// ModeRead checks the read grant (read, subscribe)
	ModeRead AccessMode = iota
	// ModeWrite checks the write grant
	ModeWrite
)

func (m AccessMode) String() string {
	if m == ModeWrite {
		return "write"
	}
	return "read"
}

// AgentGrants is the configured permission entry for one agent.
type AgentGrants struct {
	// Read holds topic names the agent may read and subscribe to
	Read []string

	// Write holds topic names the agent may write
	Write []string
}

type topicPerm struct {
	read  bool
	write bool
}

type table map[string]map[string]topicPerm // agent -> topic -> grants

// Store answers authorization queries with O(1) amortized lookups and no
// side effects. Safe for concurrent use.
type Store struct {
	table atomic.Pointer[table]
}

// NewStore builds a store from the configured grants.
func NewStore(grants map[string]AgentGrants) *Store {
	s := &Store{}
	s.Reload(grants)
	return s
}

// Reload atomically replaces the permission table.
func (s *Store) Reload(grants map[string]AgentGrants) {
	t := make(table, len(grants))
	for agent, g := range grants {
		perms := make(map[string]topicPerm, len(g.Read)+len(g.Write))
		for _, topic := range g.Read {
			p := perms[topic]
			p.read = true
			perms[topic] = p
		}
		for _, topic := range g.Write {
			p := perms[topic]
			p.write = true
			perms[topic] = p
		}
		t[agent] = perms
	}
	s.table.Store(&t)
}

// Authorize reports whether the agent holds the given grant for the topic.
// Unknown agents and unknown topics are denied.
func (s *Store) Authorize(agent, topic string, mode AccessMode) bool {
	t := *s.table.Load()
	perms, ok := t[agent]
	if !ok {
		return false
	}
	p, ok := perms[topic]
	if !ok {
		return false
	}
	if mode == ModeWrite {
		return p.write
	}
	return p.read
}

// ReadableTopics returns the topics the agent may read, sorted.
func (s *Store) ReadableTopics(agent string) []string {
	return s.topics(agent, ModeRead)
}

// WritableTopics returns the topics the agent may write, sorted.
func (s *Store) WritableTopics(agent string) []string {
	return s.topics(agent, ModeWrite)
}

// Agents returns all configured agent names, sorted.
func (s *Store) Agents() []string {
	t := *s.table.Load()
	agents := make([]string, 0, len(t))
	for agent := range t {
		agents = append(agents, agent)
	}
	sort.Strings(agents)
	return agents
}

// AllTopics returns every topic named by any grant, sorted. Used at load
// time to cross-check the permission table against the schema registry.
func (s *Store) AllTopics() []string {
	t := *s.table.Load()
	seen := make(map[string]bool)
	for _, perms := range t {
		for topic := range perms {
			seen[topic] = true
		}
	}
	topics := make([]string, 0, len(seen))
	for topic := range seen {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

func (s *Store) topics(agent string, mode AccessMode) []string {
	t := *s.table.Load()
	perms, ok := t[agent]
	if !ok {
		return []string{}
	}
	topics := make([]string, 0, len(perms))
	for topic, p := range perms {
		if (mode == ModeRead && p.read) || (mode == ModeWrite && p.write) {
			topics = append(topics, topic)
		}
	}
	sort.Strings(topics)
	return topics
}
