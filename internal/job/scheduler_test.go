package job

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/seolab/seopilot/internal/bus"
	"github.com/seolab/seopilot/internal/provider"
	"github.com/seolab/seopilot/internal/schedule"
)

// stubProvider is a controllable analysis provider for tests.
type stubProvider struct {
	kind provider.Kind

	mu      sync.Mutex
	failErr error
	entered chan struct{} // closed once Analyze is running, if set
	release chan struct{} // Analyze blocks until closed, if set
}

func (p *stubProvider) Name() string        { return "stub-" + string(p.kind) }
func (p *stubProvider) Kind() provider.Kind { return p.kind }

func (p *stubProvider) Analyze(ctx context.Context, target string) (map[string]any, error) {
	p.mu.Lock()
	entered, release, failErr := p.entered, p.release, p.failErr
	p.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if release != nil {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if failErr != nil {
		return nil, failErr
	}
	return map[string]any{"url": target, "score": 87}, nil
}

func (p *stubProvider) setError(err error) {
	p.mu.Lock()
	p.failErr = err
	p.mu.Unlock()
}

func newTestScheduler(t *testing.T) (*Scheduler, *stubProvider) {
	t.Helper()
	stub := &stubProvider{kind: provider.KindSEO}
	reg := provider.NewRegistry()
	if err := reg.Register(stub); err != nil {
		t.Fatalf("Register: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(reg, SchedulerConfig{Tick: 5 * time.Millisecond}, logger), stub
}

func dailyConfig(name string) Config {
	return Config{
		Name:     name,
		Type:     provider.KindSEO,
		Schedule: schedule.Spec{Frequency: schedule.Daily, TimeOfDay: "08:00"},
		Targets:  []string{"https://example.com"},
	}
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestScheduler(t)
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing name", Config{Type: provider.KindSEO, Schedule: schedule.Spec{Frequency: schedule.Daily, TimeOfDay: "08:00"}, Targets: []string{"https://example.com"}}},
		{"unknown type", Config{Name: "a", Type: "audit", Schedule: schedule.Spec{Frequency: schedule.Daily, TimeOfDay: "08:00"}, Targets: []string{"https://example.com"}}},
		{"unregistered provider", Config{Name: "a", Type: provider.KindBacklink, Schedule: schedule.Spec{Frequency: schedule.Daily, TimeOfDay: "08:00"}, Targets: []string{"https://example.com"}}},
		{"bad schedule", Config{Name: "a", Type: provider.KindSEO, Schedule: schedule.Spec{Frequency: schedule.Daily, TimeOfDay: "25:00"}, Targets: []string{"https://example.com"}}},
		{"no targets", Config{Name: "a", Type: provider.KindSEO, Schedule: schedule.Spec{Frequency: schedule.Daily, TimeOfDay: "08:00"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(tt.cfg); !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Create() err = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestCreateSetsNextRun(t *testing.T) {
	s, _ := newTestScheduler(t)
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if j.Status != StatusInactive {
		t.Fatalf("status = %q, want %q", j.Status, StatusInactive)
	}
	if j.NextRun == nil || !j.NextRun.After(time.Now()) {
		t.Fatalf("NextRun = %v, want strictly future", j.NextRun)
	}
	if len(j.History) != 0 {
		t.Fatalf("history len = %d, want empty", len(j.History))
	}
}

func TestGetAndDeleteNotFound(t *testing.T) {
	s, _ := newTestScheduler(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get() err = %v, want ErrNotFound", err)
	}
	if err := s.Delete("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Delete() err = %v, want ErrNotFound", err)
	}
	if _, err := s.Run(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Run() err = %v, want ErrNotFound", err)
	}
}

func TestRunSuccessAdvancesNextRun(t *testing.T) {
	s, _ := newTestScheduler(t)
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	res, err := s.Run(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusSuccess {
		t.Fatalf("result status = %q, want %q", res.Status, StatusSuccess)
	}
	if _, ok := res.Data["https://example.com"]; !ok {
		t.Fatalf("result data missing target entry: %v", res.Data)
	}

	got, err := s.Get(j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.LastRun == nil {
		t.Fatal("LastRun not set after run")
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now()) {
		t.Fatalf("NextRun = %v, want strictly future", got.NextRun)
	}
	if len(got.History) != 1 {
		t.Fatalf("history len = %d, want 1", len(got.History))
	}
}

func TestRunFailureKeepsNextRun(t *testing.T) {
	s, stub := newTestScheduler(t)
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	before := *j.NextRun

	stub.setError(errors.New("upstream timeout"))
	res, err := s.Run(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != StatusError {
		t.Fatalf("result status = %q, want %q", res.Status, StatusError)
	}
	if res.Err == "" {
		t.Fatal("result error message empty")
	}

	got, _ := s.Get(j.ID)
	if got.Status != StatusError {
		t.Fatalf("job status = %q, want %q", got.Status, StatusError)
	}
	if got.NextRun == nil || !got.NextRun.Equal(before) {
		t.Fatalf("NextRun changed on failure: %v, want %v", got.NextRun, before)
	}

	// A subsequent success restores the job and advances the schedule.
	stub.setError(nil)
	if _, err := s.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ = s.Get(j.ID)
	if got.Status != StatusActive {
		t.Fatalf("job status = %q, want %q", got.Status, StatusActive)
	}
	if got.NextRun == nil || !got.NextRun.After(time.Now()) {
		t.Fatalf("NextRun = %v, want strictly future", got.NextRun)
	}
	if len(got.History) != 2 {
		t.Fatalf("history len = %d, want 2", len(got.History))
	}
	if got.History[0].Status != StatusSuccess || got.History[1].Status != StatusError {
		t.Fatalf("history order = [%q %q], want newest first", got.History[0].Status, got.History[1].Status)
	}
}

func TestHistoryCapped(t *testing.T) {
	s, _ := newTestScheduler(t)
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 0; i < 11; i++ {
		if _, err := s.Run(context.Background(), j.ID); err != nil {
			t.Fatalf("Run %d: %v", i, err)
		}
	}
	got, _ := s.Get(j.ID)
	if len(got.History) != 10 {
		t.Fatalf("history len = %d, want 10", len(got.History))
	}
}

func TestDeleteMidFlightDiscardsResult(t *testing.T) {
	s, stub := newTestScheduler(t)
	stub.entered = make(chan struct{})
	stub.release = make(chan struct{})
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Run(context.Background(), j.ID)
		done <- err
	}()
	<-stub.entered
	if err := s.Delete(j.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	close(stub.release)

	if err := <-done; !errors.Is(err, ErrNotFound) {
		t.Fatalf("Run() err = %v, want ErrNotFound", err)
	}
	if _, err := s.Get(j.ID); !errors.Is(err, ErrNotFound) {
		t.Fatal("job resurrected after mid-flight delete")
	}
}

func TestStopAndStartJob(t *testing.T) {
	s, _ := newTestScheduler(t)
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := s.StartJob(j.ID); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	got, _ := s.Get(j.ID)
	if got.Status != StatusActive || got.NextRun == nil {
		t.Fatalf("started job = %q/%v, want active with next run", got.Status, got.NextRun)
	}

	if err := s.StopJob(j.ID); err != nil {
		t.Fatalf("StopJob: %v", err)
	}
	got, _ = s.Get(j.ID)
	if got.Status != StatusInactive {
		t.Fatalf("stopped job status = %q, want %q", got.Status, StatusInactive)
	}
	if got.NextRun == nil {
		t.Fatal("stop cleared the next run time")
	}

	if err := s.StartJob("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("StartJob() err = %v, want ErrNotFound", err)
	}
	if err := s.StopJob("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("StopJob() err = %v, want ErrNotFound", err)
	}
}

func TestMetricsFold(t *testing.T) {
	s, stub := newTestScheduler(t)
	if m := s.Metrics(); m.TotalRuns != 0 || m.SuccessRate != 0 {
		t.Fatalf("empty metrics = %+v, want zeros", m)
	}

	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.StartJob(j.ID); err != nil {
		t.Fatalf("StartJob: %v", err)
	}
	if _, err := s.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	m := s.Metrics()
	if m.TotalJobs != 1 || m.ActiveJobs != 1 || m.TotalRuns != 1 {
		t.Fatalf("metrics = %+v, want 1 job, 1 active, 1 run", m)
	}
	if m.SuccessRate != 1.0 {
		t.Fatalf("SuccessRate = %v, want 1.0", m.SuccessRate)
	}

	stub.setError(errors.New("boom"))
	if _, err := s.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	m = s.Metrics()
	if m.SuccessRate != 0.5 {
		t.Fatalf("SuccessRate = %v, want 0.5", m.SuccessRate)
	}
	if m.ErrorJobs != 1 {
		t.Fatalf("ErrorJobs = %d, want 1", m.ErrorJobs)
	}
	if m.AvgResponseTime < 0 {
		t.Fatalf("AvgResponseTime = %v, want non-negative", m.AvgResponseTime)
	}
}

func TestUpdateRecomputesNextRun(t *testing.T) {
	s, _ := newTestScheduler(t)
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	cfg := j.Config
	cfg.Schedule = schedule.Spec{Frequency: schedule.Hourly, TimeOfDay: "00:30"}
	updated, err := s.Update(j.ID, cfg)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.NextRun == nil || !updated.NextRun.After(time.Now()) {
		t.Fatalf("NextRun = %v, want strictly future", updated.NextRun)
	}
	if len(updated.History) != 1 {
		t.Fatal("history lost on update")
	}
	if _, err := s.Update("nope", cfg); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Update() err = %v, want ErrNotFound", err)
	}
}

func TestBackgroundLoopFiresDueJobs(t *testing.T) {
	s, _ := newTestScheduler(t)
	base := time.Now()
	s.now = func() time.Time { return base }
	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.StartJob(j.ID); err != nil {
		t.Fatalf("StartJob: %v", err)
	}

	// Move the clock past the first run time before starting the loop.
	s.now = func() time.Time { return base.Add(48 * time.Hour) }
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)
	defer s.Stop()

	waitFor(t, 2*time.Second, func() bool {
		got, err := s.Get(j.ID)
		return err == nil && len(got.History) >= 1
	})
	got, _ := s.Get(j.ID)
	if got.History[0].Status != StatusSuccess {
		t.Fatalf("run status = %q, want %q", got.History[0].Status, StatusSuccess)
	}
}

func TestRunPublishesBusEvents(t *testing.T) {
	stub := &stubProvider{kind: provider.KindSEO}
	reg := provider.NewRegistry()
	if err := reg.Register(stub); err != nil {
		t.Fatalf("Register: %v", err)
	}
	b := bus.New()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewScheduler(reg, SchedulerConfig{Tick: time.Minute, Bus: b}, logger)

	sub := b.Subscribe("job.")
	defer b.Unsubscribe(sub)

	j, err := s.Create(dailyConfig("daily audit"))
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}

	select {
	case ev := <-sub.Ch():
		if ev.Topic != bus.TopicJobRunCompleted {
			t.Fatalf("topic = %q, want %q", ev.Topic, bus.TopicJobRunCompleted)
		}
		payload, ok := ev.Payload.(bus.JobRunEvent)
		if !ok {
			t.Fatalf("payload type = %T", ev.Payload)
		}
		if payload.JobID != j.ID {
			t.Fatalf("event job = %q, want %q", payload.JobID, j.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no job run event published")
	}

	stub.setError(fmt.Errorf("boom"))
	if _, err := s.Run(context.Background(), j.ID); err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case ev := <-sub.Ch():
		if ev.Topic != bus.TopicJobRunFailed {
			t.Fatalf("topic = %q, want %q", ev.Topic, bus.TopicJobRunFailed)
		}
	case <-time.After(time.Second):
		t.Fatal("no failure event published")
	}
}
