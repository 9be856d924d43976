// Package store defines the host-side boundaries a script session reads
// from and writes back to: environment definitions and the persistent
// variable table. The engine itself only sees pre-resolved maps; these
// interfaces exist for the harness that feeds it.
package store

import (
	"context"
	"sort"
	"sync"
)

// EnvSnapshot is a point-in-time view of every environment and the name of
// the active one.
type EnvSnapshot struct {
	ActiveEnv string                       `yaml:"activeEnv"`
	Data      map[string]map[string]string `yaml:"environments"`
}

// Active flattens the active environment into the map handed to a session.
// An unknown active name yields an empty map, not an error.
func (s EnvSnapshot) Active() map[string]string {
	out := make(map[string]string, len(s.Data[s.ActiveEnv]))
	for k, v := range s.Data[s.ActiveEnv] {
		out[k] = v
	}
	return out
}

// Names lists the defined environments in sorted order.
func (s EnvSnapshot) Names() []string {
	names := make([]string, 0, len(s.Data))
	for name := range s.Data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EnvSource loads environment definitions.
type EnvSource interface {
	Load(ctx context.Context) (EnvSnapshot, error)
}

// VariableStore is the persistent variable table. Apply replays the
// modified-variable map a session produced; sessions already applied the
// same values locally, so replay must be idempotent.
type VariableStore interface {
	Read(ctx context.Context) (map[string]interface{}, error)
	Apply(ctx context.Context, modified map[string]interface{}) error
}

// MemoryEnvSource serves a fixed snapshot.
type MemoryEnvSource struct {
	Snapshot EnvSnapshot
}

func (m *MemoryEnvSource) Load(ctx context.Context) (EnvSnapshot, error) {
	return m.Snapshot, nil
}

// MemoryVariableStore keeps variables in process memory. Safe for
// concurrent sessions.
type MemoryVariableStore struct {
	mu   sync.Mutex
	vars map[string]interface{}
}

func NewMemoryVariableStore(initial map[string]interface{}) *MemoryVariableStore {
	vars := make(map[string]interface{}, len(initial))
	for k, v := range initial {
		vars[k] = v
	}
	return &MemoryVariableStore{vars: vars}
}

func (m *MemoryVariableStore) Read(ctx context.Context) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]interface{}, len(m.vars))
	for k, v := range m.vars {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryVariableStore) Apply(ctx context.Context, modified map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range modified {
		m.vars[k] = v
	}
	return nil
}
