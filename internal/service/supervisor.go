package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/scriptloop/scriptloop/internal/model"
)

// Supervisor is the non interactive driver. In oneshot mode it runs a single
// invocation and returns its error, otherwise it waits for triggers from the
// scheduler until ctx is cancelled.
type Supervisor struct {
	loop      *Loop
	notifier  model.Notifier
	console   io.Writer
	repeat    int
	oneshot   bool
	scheduler gocron.Scheduler
	start     chan struct{}
}

func NewSupervisor(loop *Loop, notifier model.Notifier, repeat int) *Supervisor {
	return &Supervisor{
		loop:     loop,
		notifier: notifier,
		console:  os.Stdout,
		repeat:   repeat,
		oneshot:  true,
		start:    make(chan struct{}, 1),
	}
}

// SupervisorFromConfig builds a supervisor for once or timer service mode.
func SupervisorFromConfig(ctx context.Context, cfg model.Service, loop *Loop, notifier model.Notifier) (*Supervisor, error) {
	s := NewSupervisor(loop, notifier, cfg.Repeat)
	switch cfg.Mode {
	case model.ServiceModeOnce:
		return s, nil
	case model.ServiceModeTimer:
		if cfg.Schedule == nil {
			return nil, fmt.Errorf("service.schedule is nil")
		}
		if err := s.WithSchedule(ctx, *cfg.Schedule); err != nil {
			return nil, fmt.Errorf("timer mode failed: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("service mode %q is not supported by supervisor", cfg.Mode)
	}
}

func (s *Supervisor) WithConsole(w io.Writer) *Supervisor {
	s.console = w
	return s
}

// WithSchedule turns the supervisor into timer mode.
func (s *Supervisor) WithSchedule(ctx context.Context, schedule model.Schedule) error {
	def, err := schedule.Definition()
	if err != nil {
		return err
	}
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = scheduler.NewJob(def, gocron.NewTask(s.Start))
	if err != nil {
		_ = scheduler.Shutdown()
		return fmt.Errorf("initializing gocron job: %w", err)
	}
	slog.DebugContext(ctx, "schedule parsed", "cron", schedule.Cron, "duration", schedule.Duration)
	s.scheduler = scheduler
	s.oneshot = false
	return nil
}

// Start asks for a new invocation. It never blocks: a trigger arriving
// while an invocation is pending or running is dropped.
func (s *Supervisor) Start() {
	if s.loop.Status().State == StateRunning {
		slog.Warn("invocation is running: ignoring trigger")
		return
	}
	select {
	case s.start <- struct{}{}:
	default:
		slog.Warn("invocation already pending: ignoring trigger")
	}
}

// Do runs the supervisor event loop.
// Oneshot: triggers a single invocation and returns its error.
// Timer: starts the scheduler, failures are only logged and the loop runs
// until ctx is cancelled. Invocations never overlap, the loop is busy while
// one is running.
func (s *Supervisor) Do(ctx context.Context) error {
	slog.DebugContext(ctx, "starting a supervisor", "oneshot", s.oneshot)

	if s.scheduler != nil {
		s.scheduler.Start()
		defer func() {
			if err := s.scheduler.Shutdown(); err != nil {
				slog.ErrorContext(ctx, "shutting down gocron has failed", "error", err)
			}
		}()
	}

	if s.oneshot {
		s.Start()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-s.start:
			err := invoke(ctx, s.loop, s.notifier, s.console, s.repeat)
			s.dropPending(ctx)
			if ctx.Err() != nil {
				return nil
			}
			if s.oneshot {
				return err
			}
			if err != nil {
				slog.ErrorContext(ctx, "scheduled invocation failed", "error", err)
			}
		}
	}
}

// dropPending discards a trigger which slipped in before the loop
// reported it is running.
func (s *Supervisor) dropPending(ctx context.Context) {
	select {
	case <-s.start:
		slog.WarnContext(ctx, "trigger arrived during invocation: dropped")
	default:
	}
}
