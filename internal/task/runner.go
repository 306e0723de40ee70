package task

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

// summaryLen bounds how much of the task description the auto-generated
// result summary quotes.
const summaryLen = 50

// Runner performs the work behind a task and returns its result
// summary. The manager's worker pool invokes it once per task; a
// context error means teardown and leaves the task untouched.
type Runner interface {
	Run(ctx context.Context, t Task) (string, error)
}

// SimulatedRunner stands in for a long-running external computation: it
// sleeps a randomized delay inside [MinDelay, MaxDelay] and produces a
// summary derived from the task description.
type SimulatedRunner struct {
	minDelay time.Duration
	maxDelay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewSimulatedRunner creates a runner with the given delay bounds.
// Non-positive bounds fall back to the 3–8 second default window. A
// zero seed derives one from the clock.
func NewSimulatedRunner(minDelay, maxDelay time.Duration, seed uint64) *SimulatedRunner {
	if minDelay <= 0 {
		minDelay = 3 * time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay + 5*time.Second
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &SimulatedRunner{
		minDelay: minDelay,
		maxDelay: maxDelay,
		rng:      rand.New(rand.NewPCG(seed, seed)),
	}
}

// Run sleeps the randomized delay, honoring cancellation, then returns
// the auto-generated result summary.
func (r *SimulatedRunner) Run(ctx context.Context, t Task) (string, error) {
	timer := time.NewTimer(r.delay())
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-timer.C:
	}

	desc := t.Description
	if len(desc) > summaryLen {
		desc = desc[:summaryLen]
	}
	return fmt.Sprintf("Task completed with analysis: %s...", desc), nil
}

func (r *SimulatedRunner) delay() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	span := r.maxDelay - r.minDelay
	if span <= 0 {
		return r.minDelay
	}
	return r.minDelay + time.Duration(r.rng.Int64N(int64(span)))
}
