// Command seopilot runs the agent orchestration core: the agent
// registry, message router, task engine, and job scheduler, wired
// together over the in-process event bus.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/seolab/seopilot/internal/bus"
	"github.com/seolab/seopilot/internal/config"
	"github.com/seolab/seopilot/internal/job"
	"github.com/seolab/seopilot/internal/otelx"
	"github.com/seolab/seopilot/internal/provider"
	"github.com/seolab/seopilot/internal/registry"
	"github.com/seolab/seopilot/internal/router"
	"github.com/seolab/seopilot/internal/task"
	"github.com/seolab/seopilot/internal/telemetry"
)

// Version is set via ldflags at build time: -ldflags "-X main.Version=..."
var Version = "v0.3-dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	demo := flag.Bool("demo", false, "send a sample message and task on startup")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Println("seopilot", Version)
		return
	}

	if err := run(*configPath, *demo); err != nil {
		fmt.Fprintln(os.Stderr, "seopilot:", err)
		os.Exit(1)
	}
}

func run(configPath string, demo bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := telemetry.NewLogger(cfg.LogLevel, cfg.Quiet)
	logger.Info("starting", "version", Version, "config", configPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	otelProvider, err := otelx.Init(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", "error", err)
		}
	}()
	metrics, err := otelx.NewMetrics(otelProvider.Meter)
	if err != nil {
		return fmt.Errorf("create metrics: %w", err)
	}

	eventBus := bus.New()
	agents := registry.New(eventBus, logger)

	minDelay, maxDelay := cfg.TaskDelayBounds()
	tasks := task.NewManager(agents, logger, task.Config{
		Workers: cfg.Tasks.Workers,
		Runner:  task.NewSimulatedRunner(minDelay, maxDelay, cfg.Tasks.Seed),
		Bus:     eventBus,
	})
	tasks.Start(ctx)
	defer tasks.Stop()

	messages := router.New(agents, eventBus, logger, router.Config{
		BusyWindow: cfg.BusyWindow(),
		ReplyDelay: cfg.ReplyDelay(),
	})
	defer messages.Close()

	providers := provider.SimulatedSet(cfg.Tasks.Seed)

	jobs := job.NewScheduler(providers, job.SchedulerConfig{
		Tick:    cfg.SchedulerTick(),
		Bus:     eventBus,
		Metrics: metrics,
	}, logger)
	for _, jc := range cfg.Jobs {
		seeded, err := jobs.Create(jc)
		if err != nil {
			return fmt.Errorf("seed job %q: %w", jc.Name, err)
		}
		if err := jobs.StartJob(seeded.ID); err != nil {
			return fmt.Errorf("start seed job %q: %w", jc.Name, err)
		}
	}
	jobs.Start(ctx)
	defer jobs.Stop()

	watcher := config.NewWatcher(configPath, logger)
	if err := watcher.Start(ctx); err != nil {
		logger.Warn("config watcher unavailable", "error", err)
	}

	// Mirror bus traffic into logs and counters.
	go mirrorEvents(ctx, eventBus, metrics, logger)

	if demo {
		runDemo(messages, tasks, logger)
	}

	logger.Info("running", "agents", len(agents.List()), "jobs", len(jobs.List()))
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

// mirrorEvents forwards bus activity to the logger and metrics until
// ctx is canceled.
func mirrorEvents(ctx context.Context, b *bus.Bus, metrics *otelx.Metrics, logger *slog.Logger) {
	sub := b.Subscribe("")
	defer b.Unsubscribe(sub)
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Ch():
			if !ok {
				return
			}
			switch p := ev.Payload.(type) {
			case bus.MessageSentEvent:
				metrics.RecordMessage(ctx, p.From)
			case bus.TaskEvent:
				switch ev.Topic {
				case bus.TopicTaskCreated:
					metrics.TasksCreated.Add(ctx, 1)
					metrics.TasksActive.Add(ctx, 1)
				case bus.TopicTaskCompleted:
					metrics.TasksCompleted.Add(ctx, 1)
					metrics.TasksActive.Add(ctx, -1)
				case bus.TopicTaskFailed:
					metrics.TasksFailed.Add(ctx, 1)
					metrics.TasksActive.Add(ctx, -1)
				}
			}
			logger.Debug("event", "topic", ev.Topic)
		}
	}
}

// runDemo exercises the core once so a fresh install shows activity.
func runDemo(messages *router.Router, tasks *task.Manager, logger *slog.Logger) {
	msg, err := messages.Send(registry.ContentAgent, registry.UXAgent,
		"Review the landing page copy for keyword coverage", nil)
	if err != nil {
		logger.Warn("demo message failed", "error", err)
	} else {
		logger.Info("demo message sent", "message", msg.ID)
	}

	created, err := tasks.Create(registry.LocalAgent,
		"Audit local listings",
		"Check NAP consistency across the top business directories",
		task.PriorityMedium)
	if err != nil {
		logger.Warn("demo task failed", "error", err)
	} else {
		logger.Info("demo task created", "task", created.ID)
	}
}
