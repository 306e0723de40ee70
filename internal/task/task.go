// Package task manages ephemeral agent tasks: creation, the lifecycle
// state machine, and the simulated autonomous completion that stands in
// for long-running external computation. An owning agent's status always
// follows its active task set through the registry.
package task

import (
	"time"

	"github.com/seolab/seopilot/internal/registry"
)

// Status is a task's lifecycle status.
type Status string

const (
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether the status permits no further transition.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Priority orders tasks for display and dispatch.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// rank returns the sort rank of a priority; critical sorts first.
func (p Priority) rank() int {
	switch p {
	case PriorityCritical:
		return 0
	case PriorityHigh:
		return 1
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 3
	default:
		return 4
	}
}

// Valid reports whether the priority is one of the fixed enumeration.
func (p Priority) Valid() bool {
	return p.rank() < 4
}

// Task is one unit of work owned by a single agent. Snapshots returned
// by the manager are copies; the manager owns the canonical state.
type Task struct {
	ID          string
	Agent       registry.ID
	Title       string
	Description string
	Status      Status
	Priority    Priority
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
	Result      string
	Err         string
}
