// Package health tracks process liveness state reported by /healthz.
package health

import (
	"sync"
	"time"
)

// Component names registered by bootstrap.
const (
	ComponentScheduler      = "scheduler"
	ComponentSyncWorker     = "sync_worker"
	ComponentDispatchWorker = "dispatch_worker"
	ComponentHTTP           = "http"
)

// Worker heartbeat keys in Redis. Worker processes publish their liveness and
// pool counters under these keys so the API can report them from a separate
// process.
const (
	WorkerKeyPrefix    = "health:worker:"
	WorkerBeatInterval = 15 * time.Second
	WorkerBeatTTL      = 45 * time.Second
)

// WorkerKey returns the Redis key for one worker's heartbeat.
func WorkerKey(workerID string) string {
	return WorkerKeyPrefix + workerID
}

// Status of a single component.
type Status struct {
	Alive     bool      `json:"alive"`
	StartedAt time.Time `json:"started_at"`
	LastBeat  time.Time `json:"last_beat,omitempty"`
}

// Registry holds the liveness state of all running components.
type Registry struct {
	mu         sync.RWMutex
	components map[string]*Status
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{components: make(map[string]*Status)}
}

// MarkUp registers a component as running.
func (r *Registry) MarkUp(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	r.components[name] = &Status{Alive: true, StartedAt: now, LastBeat: now}
}

// Beat records a heartbeat for a component. Unknown names are ignored.
func (r *Registry) Beat(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.components[name]; ok {
		s.LastBeat = time.Now().UTC()
	}
}

// MarkDown flags a component as stopped.
func (r *Registry) MarkDown(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.components[name]; ok {
		s.Alive = false
	}
}

// Snapshot returns a copy of all component states.
func (r *Registry) Snapshot() map[string]Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Status, len(r.components))
	for name, s := range r.components {
		out[name] = *s
	}
	return out
}

// Healthy reports whether every registered component is alive.
func (r *Registry) Healthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.components {
		if !s.Alive {
			return false
		}
	}
	return true
}
