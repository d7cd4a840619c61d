// Package environment keeps track of the environments (browser + platform
// capabilities) offered by the farm.
package environment

import (
	sync "github.com/sasha-s/go-deadlock"

	"sort"
)

// Environment is a named capability and the browser string workers are launched with.
type Environment struct {
	Name    string `json:"name" yaml:"name"`
	Browser string `json:"browser" yaml:"browser"`
}

type Manager struct {
	mu           sync.RWMutex
	environments map[string]Environment
}

func NewManager(environments ...Environment) *Manager {
	m := &Manager{environments: make(map[string]Environment)}
	for _, env := range environments {
		m.Add(env)
	}
	return m
}

// Add registers env, replacing any environment with the same name.
func (m *Manager) Add(env Environment) {
	m.mu.Lock()
	m.environments[env.Name] = env
	m.mu.Unlock()
}

func (m *Manager) Lookup(name string) (Environment, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	env, ok := m.environments[name]
	return env, ok
}

// Environments returns all environments sorted by name.
func (m *Manager) Environments() []Environment {
	m.mu.RLock()
	envs := make([]Environment, 0, len(m.environments))
	for _, env := range m.environments {
		envs = append(envs, env)
	}
	m.mu.RUnlock()
	sort.Slice(envs, func(i, j int) bool {
		return envs[i].Name < envs[j].Name
	})
	return envs
}
