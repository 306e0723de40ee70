// Package job manages recurring analysis jobs: their lifecycle,
// execution against analysis providers, run history, and schedule
// advancement.
package job

import (
	"errors"
	"time"

	"github.com/seolab/seopilot/internal/provider"
	"github.com/seolab/seopilot/internal/schedule"
)

var (
	// ErrNotFound is returned when a job id does not resolve.
	ErrNotFound = errors.New("job not found")
	// ErrInvalidConfig is returned when a job config fails validation.
	ErrInvalidConfig = errors.New("invalid job config")
)

// Status describes the lifecycle state of a job.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusError    Status = "error"
)

// Run result statuses. StatusError doubles as a run outcome.
const StatusSuccess Status = "success"

// historyCap bounds the number of retained run results per job.
const historyCap = 10

// Config is the user-supplied definition of a job.
type Config struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Type        provider.Kind `yaml:"type"`
	Schedule    schedule.Spec `yaml:"schedule"`
	Targets     []string      `yaml:"targets"`
}

func (c Config) validate() error {
	if c.Name == "" {
		return errors.New("name is required")
	}
	if !c.Type.Valid() {
		return errors.New("unknown job type: " + string(c.Type))
	}
	if err := c.Schedule.Validate(); err != nil {
		return err
	}
	if len(c.Targets) == 0 {
		return errors.New("at least one target is required")
	}
	for _, t := range c.Targets {
		if t == "" {
			return errors.New("empty target")
		}
	}
	return nil
}

// Result is the outcome of one job execution.
type Result struct {
	Status       Status         `json:"status"`
	Timestamp    time.Time      `json:"timestamp"`
	Data         map[string]any `json:"data,omitempty"`
	Err          string         `json:"error,omitempty"`
	ResponseTime time.Duration  `json:"responseTime"`
}

// Job is a scheduled analysis job with its run state.
type Job struct {
	ID        string     `json:"id"`
	Config    Config     `json:"config"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	LastRun   *time.Time `json:"lastRun,omitempty"`
	NextRun   *time.Time `json:"nextRun,omitempty"`
	// History holds the most recent run results, newest first.
	History []Result `json:"history,omitempty"`
}

func (j *Job) clone() *Job {
	c := *j
	if j.LastRun != nil {
		t := *j.LastRun
		c.LastRun = &t
	}
	if j.NextRun != nil {
		t := *j.NextRun
		c.NextRun = &t
	}
	c.History = make([]Result, len(j.History))
	copy(c.History, j.History)
	c.Config.Targets = make([]string, len(j.Config.Targets))
	copy(c.Config.Targets, j.Config.Targets)
	return &c
}

// prependResult adds r as the newest history entry, dropping the oldest
// once the cap is reached.
func (j *Job) prependResult(r Result) {
	j.History = append([]Result{r}, j.History...)
	if len(j.History) > historyCap {
		j.History = j.History[:historyCap]
	}
}

// Metrics is an aggregate view over all jobs and their histories.
type Metrics struct {
	TotalJobs       int           `json:"totalJobs"`
	ActiveJobs      int           `json:"activeJobs"`
	ErrorJobs       int           `json:"errorJobs"`
	TotalRuns       int           `json:"totalRuns"`
	SuccessRate     float64       `json:"successRate"` // fraction in [0, 1]
	AvgResponseTime time.Duration `json:"avgResponseTime"`
}
