package job

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/seolab/seopilot/internal/bus"
	"github.com/seolab/seopilot/internal/otelx"
	"github.com/seolab/seopilot/internal/provider"
	"github.com/seolab/seopilot/internal/schedule"
)

const defaultTick = 30 * time.Second

// SchedulerConfig tunes the background scheduler.
type SchedulerConfig struct {
	// Tick is the poll interval for due jobs. Zero means a 30s default.
	Tick time.Duration
	// Bus receives job run events. Optional.
	Bus *bus.Bus
	// Metrics records run telemetry. Optional.
	Metrics *otelx.Metrics
}

// Scheduler owns the job table and fires active jobs when their next
// run time passes.
type Scheduler struct {
	providers *provider.Registry
	eventBus  *bus.Bus
	metrics   *otelx.Metrics
	logger    *slog.Logger
	tick      time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job

	startOnce sync.Once
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewScheduler creates a scheduler over the given provider registry.
func NewScheduler(providers *provider.Registry, cfg SchedulerConfig, logger *slog.Logger) *Scheduler {
	tick := cfg.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	return &Scheduler{
		providers: providers,
		eventBus:  cfg.Bus,
		metrics:   cfg.Metrics,
		logger:    logger,
		tick:      tick,
		now:       time.Now,
		jobs:      make(map[string]*Job),
	}
}

// Create validates cfg and registers a new job. The job starts
// inactive with its first run time computed from the schedule; StartJob
// activates it.
func (s *Scheduler) Create(cfg Config) (*Job, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, ok := s.providers.Lookup(cfg.Type); !ok {
		return nil, fmt.Errorf("%w: no provider for type %q", ErrInvalidConfig, cfg.Type)
	}

	now := s.now()
	next, err := schedule.NextRun(cfg.Schedule, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	j := &Job{
		ID:        uuid.NewString(),
		Config:    cfg,
		Status:    StatusInactive,
		CreatedAt: now,
		UpdatedAt: now,
		NextRun:   &next,
	}

	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()

	s.logger.Info("job created", "job", j.ID, "name", cfg.Name, "type", cfg.Type, "next_run", next)
	return j.clone(), nil
}

// Update replaces the config of an existing job and recomputes its next
// run time. Run history is preserved.
func (s *Scheduler) Update(id string, cfg Config) (*Job, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if _, ok := s.providers.Lookup(cfg.Type); !ok {
		return nil, fmt.Errorf("%w: no provider for type %q", ErrInvalidConfig, cfg.Type)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	next, err := schedule.NextRun(cfg.Schedule, now)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	j.Config = cfg
	j.UpdatedAt = now
	j.NextRun = &next
	return j.clone(), nil
}

// Delete removes a job. A run already in flight for the job is
// discarded when it finishes.
func (s *Scheduler) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.jobs, id)
	s.logger.Info("job deleted", "job", id)
	return nil
}

// StartJob marks a job active. A job without a next run time gets one
// computed from its schedule.
func (s *Scheduler) StartJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	now := s.now()
	if j.NextRun == nil {
		next, err := schedule.NextRun(j.Config.Schedule, now)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
		j.NextRun = &next
	}
	j.Status = StatusActive
	j.UpdatedAt = now
	return nil
}

// StopJob marks a job inactive. The scheduler skips inactive jobs, but
// Run can still fire them manually; the next run time is kept.
func (s *Scheduler) StopJob(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	j.Status = StatusInactive
	j.UpdatedAt = s.now()
	return nil
}

// Get returns a snapshot of the job with the given id.
func (s *Scheduler) Get(id string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return j.clone(), nil
}

// List returns snapshots of all jobs, newest created first.
func (s *Scheduler) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.clone())
	}
	sort.SliceStable(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Run executes the job once, synchronously. On success the result is
// recorded and the next run time advances past the execution time. On
// failure the result is still recorded but the next run time is left
// unchanged so the schedule position survives transient provider
// errors. If the job was deleted while the run was in flight, the
// result is discarded and ErrNotFound is returned.
func (s *Scheduler) Run(ctx context.Context, id string) (*Result, error) {
	s.mu.RLock()
	j, ok := s.jobs[id]
	if !ok {
		s.mu.RUnlock()
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	cfg := j.Config
	targets := make([]string, len(cfg.Targets))
	copy(targets, cfg.Targets)
	s.mu.RUnlock()

	p, ok := s.providers.Lookup(cfg.Type)
	if !ok {
		return nil, fmt.Errorf("%w: no provider for type %q", ErrInvalidConfig, cfg.Type)
	}

	start := s.now()
	data := make(map[string]any, len(targets))
	var runErr error
	for _, target := range targets {
		out, err := p.Analyze(ctx, target)
		if err != nil {
			runErr = fmt.Errorf("analyze %s: %w", target, err)
			break
		}
		data[target] = out
	}
	elapsed := s.now().Sub(start)

	result := Result{
		Status:       StatusSuccess,
		Timestamp:    start,
		Data:         data,
		ResponseTime: elapsed,
	}
	if runErr != nil {
		result = Result{
			Status:       StatusError,
			Timestamp:    start,
			Err:          runErr.Error(),
			ResponseTime: elapsed,
		}
	}

	s.mu.Lock()
	j, ok = s.jobs[id]
	if !ok {
		s.mu.Unlock()
		// Deleted mid-flight. Do not resurrect.
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	last := start
	j.LastRun = &last
	j.UpdatedAt = s.now()
	j.prependResult(result)
	if runErr == nil {
		if j.Status == StatusError {
			j.Status = StatusActive
		}
		// Schedule was validated at create time; a parse failure here
		// leaves the previous next run in place.
		if next, err := schedule.NextRun(cfg.Schedule, start); err == nil {
			j.NextRun = &next
		}
	} else {
		j.Status = StatusError
	}
	s.mu.Unlock()

	s.metrics.RecordJobRun(ctx, string(cfg.Type), elapsed, runErr)
	s.publishRun(id, cfg, elapsed, runErr)
	if runErr != nil {
		s.logger.Warn("job run failed", "job", id, "name", cfg.Name, "error", runErr)
		return &result, nil
	}
	s.logger.Info("job run completed", "job", id, "name", cfg.Name, "elapsed", elapsed)
	return &result, nil
}

func (s *Scheduler) publishRun(id string, cfg Config, elapsed time.Duration, runErr error) {
	if s.eventBus == nil {
		return
	}
	ev := bus.JobRunEvent{
		JobID:          id,
		Name:           cfg.Name,
		Type:           string(cfg.Type),
		Target:         strings.Join(cfg.Targets, ","),
		ResponseTimeMS: float64(elapsed) / float64(time.Millisecond),
	}
	topic := bus.TopicJobRunCompleted
	if runErr != nil {
		ev.Err = runErr.Error()
		topic = bus.TopicJobRunFailed
	}
	s.eventBus.Publish(topic, ev)
}

// Metrics folds run history across all jobs into an aggregate view.
// SuccessRate is a fraction in [0, 1]; with no recorded runs it is 0.
func (s *Scheduler) Metrics() Metrics {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var m Metrics
	m.TotalJobs = len(s.jobs)
	var successes int
	var totalResponse time.Duration
	for _, j := range s.jobs {
		switch j.Status {
		case StatusActive:
			m.ActiveJobs++
		case StatusError:
			m.ErrorJobs++
		}
		for _, r := range j.History {
			m.TotalRuns++
			totalResponse += r.ResponseTime
			if r.Status == StatusSuccess {
				successes++
			}
		}
	}
	if m.TotalRuns > 0 {
		m.SuccessRate = float64(successes) / float64(m.TotalRuns)
		m.AvgResponseTime = totalResponse / time.Duration(m.TotalRuns)
	}
	return m
}

// Start launches the background loop that fires due jobs. Safe to call
// once; subsequent calls are no-ops.
func (s *Scheduler) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, s.cancel = context.WithCancel(ctx)
		s.wg.Add(1)
		go s.loop(ctx)
		s.logger.Info("job scheduler started", "tick", s.tick)
	})
}

// Stop halts the background loop and waits for in-flight runs.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Scheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.fireDue(ctx)
		}
	}
}

// fireDue runs every active job whose next run time has passed.
func (s *Scheduler) fireDue(ctx context.Context) {
	now := s.now()
	s.mu.RLock()
	var due []string
	for id, j := range s.jobs {
		if j.Status != StatusInactive && j.NextRun != nil && !j.NextRun.After(now) {
			due = append(due, id)
		}
	}
	s.mu.RUnlock()

	for _, id := range due {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Run(ctx, id); err != nil {
			s.logger.Warn("scheduled run skipped", "job", id, "error", err)
		}
	}
}
