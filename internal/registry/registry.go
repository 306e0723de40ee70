// Package registry holds the fixed set of orchestrated agent identities
// and derives each agent's status from its active work. The identity set
// is a closed enumeration seeded at startup; no agents are added or
// removed at runtime.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/seolab/seopilot/internal/bus"
)

// ErrUnknownAgent indicates an identity outside the fixed enumeration.
// Hitting it from inside the core is a programming error.
var ErrUnknownAgent = errors.New("unknown agent")

// ID names a participant in the orchestration core.
type ID string

// The fixed agent enumeration, plus the virtual coordinator endpoint.
const (
	ContentAgent ID = "ContentAgent"
	UXAgent      ID = "UXAgent"
	LocalAgent   ID = "LocalAgent"
	TrustAgent   ID = "TrustAgent"

	// Coordinator is the virtual routing endpoint. It bears no tasks and
	// has no registry entry; messages may address it.
	Coordinator ID = "MCP"
)

// Order is the display order of the registry, matching the enumeration.
var Order = []ID{ContentAgent, UXAgent, LocalAgent, TrustAgent}

// IsCoordinator reports whether the identity is the virtual coordinator.
func (id ID) IsCoordinator() bool { return id == Coordinator }

// Valid reports whether the identity is addressable (any agent or the
// coordinator).
func (id ID) Valid() bool {
	return id.IsCoordinator() || slices.Contains(Order, id)
}

// Status is an agent's lifecycle status.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// DeriveStatus is the single projection deciding busy vs idle: an agent
// is processing iff it owns active tasks or sits inside a message busy
// window. Every registry mutation reapplies it.
func DeriveStatus(activeTasks int, inMessageWindow bool) Status {
	if activeTasks > 0 || inMessageWindow {
		return StatusProcessing
	}
	return StatusIdle
}

// Agent is a snapshot of one registry entry.
type Agent struct {
	ID           ID
	Name         string
	Description  string
	Status       Status
	Capabilities []string
	ActiveTasks  []string // IDs of tasks currently owned by this agent
}

type entry struct {
	agent     Agent
	busyEpoch uint64 // increments on every new busy window
	inWindow  bool
}

// Registry is the pre-seeded agent registry.
type Registry struct {
	mu      sync.RWMutex
	entries map[ID]*entry
	bus     *bus.Bus
	logger  *slog.Logger
}

// New creates a Registry seeded with the fixed agent set.
func New(b *bus.Bus, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		entries: make(map[ID]*entry, len(Order)),
		bus:     b,
		logger:  logger,
	}
	for _, a := range seedAgents() {
		r.entries[a.ID] = &entry{agent: a}
	}
	return r
}

// Get returns a snapshot of the agent with the given identity.
func (r *Registry) Get(id ID) (Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Agent{}, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	return snapshot(e), nil
}

// List returns snapshots of all agents in enumeration order.
func (r *Registry) List() []Agent {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := make([]Agent, 0, len(Order))
	for _, id := range Order {
		agents = append(agents, snapshot(r.entries[id]))
	}
	return agents
}

// SetStatus overrides an agent's status, e.g. to surface an externally
// reported error. The next task or message mutation re-derives it.
func (r *Registry) SetStatus(id ID, status Status) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	r.transition(e, status)
	return nil
}

// AddTask registers a task in the agent's active set and re-derives status.
func (r *Registry) AddTask(id ID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if !slices.Contains(e.agent.ActiveTasks, taskID) {
		e.agent.ActiveTasks = append(e.agent.ActiveTasks, taskID)
	}
	r.rederive(e)
	return nil
}

// RemoveTask drops a task from the agent's active set and re-derives
// status. Removing an unknown task id is a no-op.
func (r *Registry) RemoveTask(id ID, taskID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	e.agent.ActiveTasks = slices.DeleteFunc(e.agent.ActiveTasks, func(t string) bool {
		return t == taskID
	})
	r.rederive(e)
	return nil
}

// BeginBusy opens a message busy window for the agent and returns the
// window's epoch. The caller passes the epoch back to EndBusy; a newer
// window invalidates older epochs so an expiring reset cannot cut a
// later busy period short.
func (r *Registry) BeginBusy(id ID) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	e.busyEpoch++
	e.inWindow = true
	r.rederive(e)
	return e.busyEpoch, nil
}

// EndBusy closes a busy window opened by BeginBusy. It is a no-op when a
// newer window has begun since.
func (r *Registry) EndBusy(id ID, epoch uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownAgent, id)
	}
	if e.busyEpoch != epoch {
		return nil
	}
	e.inWindow = false
	r.rederive(e)
	return nil
}

// rederive applies the status projection. Caller holds the lock.
func (r *Registry) rederive(e *entry) {
	r.transition(e, DeriveStatus(len(e.agent.ActiveTasks), e.inWindow))
}

// transition records a status change and publishes it. Caller holds the lock.
func (r *Registry) transition(e *entry, status Status) {
	if e.agent.Status == status {
		return
	}
	old := e.agent.Status
	e.agent.Status = status
	r.logger.Debug("agent status changed",
		"agent", string(e.agent.ID), "from", string(old), "to", string(status))
	if r.bus != nil {
		r.bus.Publish(bus.TopicAgentStatusChanged, bus.AgentStatusChangedEvent{
			Agent:     string(e.agent.ID),
			OldStatus: string(old),
			NewStatus: string(status),
		})
	}
}

func snapshot(e *entry) Agent {
	a := e.agent
	a.Capabilities = slices.Clone(a.Capabilities)
	a.ActiveTasks = slices.Clone(a.ActiveTasks)
	return a
}
