package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"

	"github.com/scriptloop/scriptloop/internal/log"
	"github.com/scriptloop/scriptloop/internal/model"
)

// Asker returns the repeat count for the next invocation, io.EOF ends the
// session.
type Asker interface {
	Ask(ctx context.Context) (int, error)
}

// Session is the interactive driver: ask for a count, run the loop, repeat.
// A failed invocation is reported and the operator is asked again; the
// session ends on end of input or when ctx is cancelled.
type Session struct {
	asker    Asker
	loop     *Loop
	notifier model.Notifier
	console  io.Writer
}

func NewSession(asker Asker, loop *Loop, notifier model.Notifier) *Session {
	return &Session{
		asker:    asker,
		loop:     loop,
		notifier: notifier,
		console:  os.Stdout,
	}
}

func (s *Session) WithConsole(w io.Writer) *Session {
	s.console = w
	return s
}

func (s *Session) Do(ctx context.Context) error {
	s.printTasks()
	for {
		count, err := s.asker.Ask(ctx)
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), ctx.Err() != nil:
			slog.DebugContext(ctx, "session stopped")
			return nil
		default:
			return fmt.Errorf("reading repeat count: %w", err)
		}

		err = s.invoke(ctx, count)
		if ctx.Err() != nil {
			slog.DebugContext(ctx, "session cancelled")
			return nil
		}
		if err != nil {
			var se *model.ScriptError
			if errors.As(err, &se) {
				_, _ = fmt.Fprintf(s.console, "\n❌ %s failed with exit code %d\n\n", se.Task, se.ExitCode)
			}
			slog.ErrorContext(ctx, "invocation failed", "error", err)
		}
	}
}

// invoke runs one LoopInvocation, it is used by Supervisor as well.
func invoke(ctx context.Context, loop *Loop, notifier model.Notifier, console io.Writer, count int) error {
	ctx = log.ContextAttrs(ctx, slog.String("run_id", uuid.NewString()))
	slog.InfoContext(ctx, "invocation started", "repeat", count)

	_, _ = fmt.Fprintf(console, "\n🚀 Executing all scripts %d times...\n\n", count)
	notifier.Notify(ctx, fmt.Sprintf("🚀 Starting execution of all scripts (%d times)...", count))

	if err := loop.RunAll(ctx, count); err != nil {
		return err
	}

	_, _ = fmt.Fprintf(console, "\n✅✅ All scripts have been executed\n\n")
	notifier.Notify(ctx, "✅✅ All scripts have been executed successfully!")
	slog.InfoContext(ctx, "invocation completed", "repeat", count, "runs", loop.Status().Runs)
	return nil
}

func (s *Session) invoke(ctx context.Context, count int) error {
	return invoke(ctx, s.loop, s.notifier, s.console, count)
}

func (s *Session) printTasks() {
	_, _ = fmt.Fprintln(s.console, "Scripts:")
	for _, t := range s.loop.Tasks() {
		_, _ = fmt.Fprintf(s.console, "⏩ %s\n", t.Name)
	}
	_, _ = fmt.Fprintln(s.console)
}
