package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/scriptloop/scriptloop/internal/model"
)

// TaskRunner executes a single task. A failed task must be reported as a
// non-nil error.
type TaskRunner interface {
	Run(ctx context.Context, task model.ScriptTask) (model.RunResult, error)
}

type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Status is a snapshot of the Loop. Pass and Task are zero based indexes of
// the currently running (or last started) task.
type Status struct {
	State  State
	Repeat int
	Pass   int
	Task   int
	Runs   int
	Failed *model.ScriptError
	Err    error
}

// Loop drives LoopInvocations: repeat passes over an ordered list of tasks,
// one task at a time.
type Loop struct {
	tasks    []model.ScriptTask
	runner   TaskRunner
	notifier model.Notifier

	mx     sync.RWMutex
	status Status
}

func NewLoop(tasks []model.ScriptTask, runner TaskRunner, notifier model.Notifier) (*Loop, error) {
	if len(tasks) == 0 {
		return nil, model.ErrNoScripts
	}
	if runner == nil {
		return nil, errors.New("nil runner")
	}
	if notifier == nil {
		return nil, errors.New("nil notifier")
	}
	return &Loop{
		tasks:    append([]model.ScriptTask(nil), tasks...),
		runner:   runner,
		notifier: notifier,
	}, nil
}

func (l *Loop) Tasks() []model.ScriptTask {
	return append([]model.ScriptTask(nil), l.tasks...)
}

// Status returns a copy of the current state.
func (l *Loop) Status() Status {
	l.mx.RLock()
	defer l.mx.RUnlock()
	return l.status
}

// RunAll executes all tasks repeat times in order. The first failure aborts
// the whole invocation and is returned; nothing is retried. On success a
// single summary notification is sent.
func (l *Loop) RunAll(ctx context.Context, repeat int) error {
	if repeat <= 0 {
		return model.ErrInvalidRepeat
	}
	l.mx.Lock()
	if l.status.State == StateRunning {
		l.mx.Unlock()
		return model.ErrInvocationInProgress
	}
	l.status = Status{State: StateRunning, Repeat: repeat}
	l.mx.Unlock()

	for pass := range repeat {
		for idx, task := range l.tasks {
			if err := ctx.Err(); err != nil {
				return l.abort(ctx, nil, err)
			}
			l.mx.Lock()
			l.status.Pass = pass
			l.status.Task = idx
			l.status.Runs++
			l.mx.Unlock()

			slog.DebugContext(ctx, "running script", "pass", pass+1, "repeat", repeat, "task", task.Name)
			_, err := l.runner.Run(ctx, task)
			if err != nil {
				var se *model.ScriptError
				if !errors.As(err, &se) {
					se = &model.ScriptError{Task: task.Name, ExitCode: -1, Err: err}
				}
				return l.abort(ctx, se, fmt.Errorf("pass %d/%d: %w", pass+1, repeat, se))
			}
		}
	}

	l.mx.Lock()
	l.status.State = StateCompleted
	l.mx.Unlock()

	l.notifier.Notify(ctx, fmt.Sprintf("🎉 All scripts executed %d time(s)!", repeat))
	return nil
}

func (l *Loop) abort(ctx context.Context, failed *model.ScriptError, err error) error {
	l.mx.Lock()
	l.status.State = StateAborted
	l.status.Failed = failed
	l.status.Err = err
	l.mx.Unlock()
	slog.ErrorContext(ctx, "invocation aborted", "error", err)
	return err
}
