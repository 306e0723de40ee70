package task

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seolab/seopilot/internal/bus"
	"github.com/seolab/seopilot/internal/registry"
)

const defaultQueueDepth = 256

// Config tunes the task manager.
type Config struct {
	// Workers is the size of the completion worker pool. Zero means 4.
	Workers int
	// Runner performs the simulated work for each created task. Nil
	// means the default SimulatedRunner.
	Runner Runner
	// Bus receives task lifecycle events; optional.
	Bus *bus.Bus
}

// Manager owns the task set and drives each task from processing to a
// terminal state via the worker pool.
type Manager struct {
	reg     *registry.Registry
	bus     *bus.Bus
	logger  *slog.Logger
	runner  Runner
	workers int
	now     func() time.Time

	queue chan string

	mu    sync.Mutex
	tasks map[string]*Task

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates a task manager over the given registry. Call Start
// before creating tasks so the pool can complete them.
func NewManager(reg *registry.Registry, logger *slog.Logger, cfg Config) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	runner := cfg.Runner
	if runner == nil {
		runner = NewSimulatedRunner(0, 0, 0)
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Manager{
		reg:     reg,
		bus:     cfg.Bus,
		logger:  logger,
		runner:  runner,
		workers: workers,
		now:     time.Now,
		queue:   make(chan string, defaultQueueDepth),
		tasks:   make(map[string]*Task),
	}
}

// Start launches the worker pool. Workers exit when ctx is cancelled.
func (m *Manager) Start(ctx context.Context) {
	m.startOnce.Do(func() {
		ctx, m.cancel = context.WithCancel(ctx)
		for i := 0; i < m.workers; i++ {
			m.wg.Add(1)
			go func() {
				defer m.wg.Done()
				m.worker(ctx)
			}()
		}
		m.logger.Debug("task workers started", "count", m.workers)
	})
}

// Stop cancels the pool and waits for in-flight runs to unwind. No
// completion scheduled before Stop may fire afterwards.
func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Create registers a new processing task on the agent and submits it to
// the pool for simulated autonomous completion.
func (m *Manager) Create(agent registry.ID, title, description string, priority Priority) (Task, error) {
	if agent.IsCoordinator() || !agent.Valid() {
		return Task{}, fmt.Errorf("%w: %s", registry.ErrUnknownAgent, agent)
	}
	if !priority.Valid() {
		return Task{}, fmt.Errorf("invalid priority %q", priority)
	}

	now := m.now()
	t := &Task{
		ID:          uuid.NewString(),
		Agent:       agent,
		Title:       title,
		Description: description,
		Status:      StatusProcessing,
		Priority:    priority,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	m.mu.Lock()
	m.tasks[t.ID] = t
	m.mu.Unlock()

	if err := m.reg.AddTask(agent, t.ID); err != nil {
		return Task{}, err
	}

	m.logger.Info("task created",
		"task_id", t.ID, "agent", string(agent), "priority", string(priority))
	m.publish(bus.TopicTaskCreated, *t)

	select {
	case m.queue <- t.ID:
	default:
		// Pool backlog full; the task stays processing until completed
		// explicitly.
		m.logger.Warn("task queue full, autonomous completion skipped", "task_id", t.ID)
	}
	return *t, nil
}

// Complete records the single permitted terminal transition to
// completed. Unknown ids and already-terminal tasks are silent no-ops,
// so repeated completions never alter CompletedAt or Result.
func (m *Manager) Complete(taskID, result string) {
	m.finish(taskID, StatusCompleted, result, "")
}

// Fail records the terminal error transition for an externally-reported
// failure. Same no-op rules as Complete.
func (m *Manager) Fail(taskID, errMsg string) {
	m.finish(taskID, StatusError, "", errMsg)
}

func (m *Manager) finish(taskID string, status Status, result, errMsg string) {
	m.mu.Lock()
	t, ok := m.tasks[taskID]
	if !ok || t.Status.Terminal() {
		m.mu.Unlock()
		return
	}
	now := m.now()
	t.Status = status
	t.UpdatedAt = now
	t.CompletedAt = &now
	t.Result = result
	t.Err = errMsg
	agent := t.Agent
	snapshot := *t
	m.mu.Unlock()

	if err := m.reg.RemoveTask(agent, taskID); err != nil {
		m.logger.Error("active set removal failed", "task_id", taskID, "error", err)
	}

	if status == StatusCompleted {
		m.logger.Info("task completed", "task_id", taskID, "agent", string(agent))
		m.publish(bus.TopicTaskCompleted, snapshot)
	} else {
		m.logger.Warn("task failed", "task_id", taskID, "agent", string(agent), "error", errMsg)
		m.publish(bus.TopicTaskFailed, snapshot)
	}
}

// Get returns a snapshot of the task with the given id.
func (m *Manager) Get(taskID string) (Task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[taskID]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// List returns task snapshots ordered for display: processing tasks
// first, then by priority rank (critical first), then newest first.
func (m *Manager) List() []Task {
	m.mu.Lock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	m.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Status == StatusProcessing, out[j].Status == StatusProcessing
		if pi != pj {
			return pi
		}
		if ri, rj := out[i].Priority.rank(), out[j].Priority.rank(); ri != rj {
			return ri < rj
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// worker drains the queue, running the simulated computation for each
// task and recording its outcome. It re-reads the task at fire time: a
// task finished or discarded in the interim is skipped.
func (m *Manager) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case taskID := <-m.queue:
			t, ok := m.Get(taskID)
			if !ok || t.Status != StatusProcessing {
				continue
			}
			result, err := m.runner.Run(ctx, t)
			if err != nil {
				if ctx.Err() != nil {
					// Teardown: the scheduled completion must not fire.
					return
				}
				m.Fail(taskID, err.Error())
				continue
			}
			m.Complete(taskID, result)
		}
	}
}

func (m *Manager) publish(topic string, t Task) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(topic, bus.TaskEvent{
		TaskID:   t.ID,
		Agent:    string(t.Agent),
		Title:    t.Title,
		Priority: string(t.Priority),
	})
}
