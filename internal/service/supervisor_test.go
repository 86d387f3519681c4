package service_test

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/scriptloop/scriptloop/internal/model"
	"github.com/scriptloop/scriptloop/internal/service"
	"github.com/stretchr/testify/require"
)

func TestSupervisor(t *testing.T) {
	t.Parallel()

	t.Run("oneshot", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{}
		var notes notifications
		loop, err := service.NewLoop(tasks("A", "B"), runner, &notes)
		require.NoError(t, err)

		supervisor := service.NewSupervisor(loop, &notes, 2).WithConsole(io.Discard)
		err = supervisor.Do(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"A", "B", "A", "B"}, runner.Calls())
		require.Equal(t, 1, notes.Count("🎉 All scripts executed 2 time(s)!"))
		require.Equal(t, 1, notes.Count("✅✅"))
	})

	t.Run("oneshot failure", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{failOn: map[string]int{"A": 1}, code: 7}
		var notes notifications
		loop, err := service.NewLoop(tasks("A", "B"), runner, &notes)
		require.NoError(t, err)

		err = service.NewSupervisor(loop, &notes, 1).WithConsole(io.Discard).Do(t.Context())
		var se *model.ScriptError
		require.ErrorAs(t, err, &se)
		require.Equal(t, 7, se.ExitCode)
		require.Equal(t, []string{"A"}, runner.Calls())
		require.Zero(t, notes.Count("✅✅"))
	})

	t.Run("timer", func(t *testing.T) {
		t.Parallel()
		runner := &fakeRunner{failOn: map[string]int{"B": 1}, code: 1}
		var notes notifications
		loop, err := service.NewLoop(tasks("A", "B"), runner, &notes)
		require.NoError(t, err)

		cfg := model.Service{
			Mode:     model.ServiceModeTimer,
			Repeat:   1,
			Schedule: &model.Schedule{Duration: "PT0.05S"},
		}
		supervisor, err := service.SupervisorFromConfig(t.Context(), cfg, loop, &notes)
		require.NoError(t, err)
		supervisor.WithConsole(io.Discard)

		ctx, cancel := context.WithCancel(t.Context())
		var wg sync.WaitGroup
		var doErr error
		wg.Go(func() {
			doErr = supervisor.Do(ctx)
		})

		// the first invocation fails, the supervisor must keep going
		require.Eventually(t, func() bool {
			return notes.Count("🎉 All scripts executed 1 time(s)!") >= 2
		}, timeout, tick)
		cancel()
		wg.Wait()
		require.NoError(t, doErr)

		calls := runner.Calls()
		for i := 0; i+1 < len(calls); i += 2 {
			require.Equal(t, []string{"A", "B"}, calls[i:i+2])
		}
	})
}

func TestSupervisorFromConfig(t *testing.T) {
	t.Parallel()
	loop, err := service.NewLoop(tasks("A"), &fakeRunner{}, &notifications{})
	require.NoError(t, err)

	s, err := service.SupervisorFromConfig(t.Context(), model.Service{Mode: model.ServiceModeOnce, Repeat: 1}, loop, &notifications{})
	require.NoError(t, err)
	require.NotNil(t, s)

	_, err = service.SupervisorFromConfig(t.Context(), model.Service{Mode: model.ServiceModeInteractive}, loop, &notifications{})
	require.ErrorContains(t, err, `service mode "interactive" is not supported`)

	_, err = service.SupervisorFromConfig(t.Context(), model.Service{Mode: model.ServiceModeTimer}, loop, &notifications{})
	require.ErrorContains(t, err, "service.schedule is nil")

	_, err = service.SupervisorFromConfig(t.Context(), model.Service{
		Mode:     model.ServiceModeTimer,
		Schedule: &model.Schedule{Cron: "not a cron"},
	}, loop, &notifications{})
	require.ErrorContains(t, err, "timer mode failed")
}

func TestSupervisor_TriggerWhileRunning(t *testing.T) {
	t.Parallel()
	runner := &fakeRunner{block: make(chan struct{})}
	var notes notifications
	loop, err := service.NewLoop(tasks("A"), runner, &notes)
	require.NoError(t, err)

	cfg := model.Service{
		Mode:     model.ServiceModeTimer,
		Repeat:   1,
		Schedule: &model.Schedule{Duration: "PT1H"},
	}
	supervisor, err := service.SupervisorFromConfig(t.Context(), cfg, loop, &notes)
	require.NoError(t, err)
	supervisor.WithConsole(io.Discard)

	ctx, cancel := context.WithCancel(t.Context())
	var wg sync.WaitGroup
	wg.Go(func() {
		_ = supervisor.Do(ctx)
	})

	supervisor.Start()
	require.Eventually(t, func() bool {
		return len(runner.Calls()) == 1
	}, timeout, tick)
	// A is blocked, so the loop is running
	supervisor.Start()
	close(runner.block)

	require.Eventually(t, func() bool {
		return notes.Count("✅✅") == 1
	}, timeout, tick)
	time.Sleep(50 * time.Millisecond)
	cancel()
	wg.Wait()

	require.Equal(t, []string{"A"}, runner.Calls())
	require.Equal(t, 1, notes.Count("✅✅"))
}
