package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/scriptloop/scriptloop/internal/log"
	"github.com/scriptloop/scriptloop/internal/model"
)

const (
	maxLineSize = 1024 * 1024
	linesBuffer = 64
	// terminal notifications are sent even after ctx is cancelled
	reportTimeout = 10 * time.Second
)

type stream int

const (
	streamStdout stream = iota
	streamStderr
)

type outputLine struct {
	stream stream
	text   string
}

// Runner executes exactly one ScriptTask to completion, relaying its output
// to the console and the notable parts of it to a Notifier.
type Runner struct {
	notifier   model.Notifier
	classifier Classifier
	stdout     io.Writer
	stderr     io.Writer
}

func NewRunner(notifier model.Notifier) *Runner {
	return &Runner{
		notifier:   notifier,
		classifier: Classifier{Keywords: model.DefaultKeywords},
		stdout:     os.Stdout,
		stderr:     os.Stderr,
	}
}

func (r *Runner) WithClassifier(c Classifier) *Runner {
	r.classifier = c
	return r
}

// WithConsole sets where the child output and status lines are printed.
func (r *Runner) WithConsole(stdout, stderr io.Writer) *Runner {
	r.stdout = stdout
	r.stderr = stderr
	return r
}

// Run starts the task, streams its output line by line and waits for the
// exit. A non-zero exit code as well as a failure to start the process is
// returned as *model.ScriptError.
func (r *Runner) Run(ctx context.Context, task model.ScriptTask) (model.RunResult, error) {
	ctx = log.ContextAttrs(ctx, slog.String("task", task.Name))
	result := model.RunResult{Task: task}

	_, _ = fmt.Fprintf(r.stdout, "\n✅ Running %s...\n", task.Name)
	r.notifier.Notify(ctx, fmt.Sprintf("🚀 Starting %s...", task.Name))

	// notifications keep using ctx, so a timed out script is still reported
	runCtx := ctx
	if task.Timeout == 0 {
		slog.DebugContext(ctx, "script has no timeout", "path", task.Path)
	} else {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, task.Timeout)
		defer cancel()
	}

	path, args := task.Argv()
	cmd := exec.CommandContext(runCtx, path, args...)
	setProcessGroup(cmd)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return r.spawnFailed(ctx, result, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return r.spawnFailed(ctx, result, err)
	}

	result.Started = time.Now().UTC()
	if err := cmd.Start(); err != nil {
		return r.spawnFailed(ctx, result, err)
	}
	slog.DebugContext(ctx, "script started", "pid", cmd.Process.Pid, "path", path, "args", args)

	lines := make(chan outputLine, linesBuffer)
	var g errgroup.Group
	g.Go(func() error { return scan(stdout, streamStdout, lines) })
	g.Go(func() error { return scan(stderr, streamStderr, lines) })
	go func() {
		err := g.Wait()
		if err != nil {
			slog.ErrorContext(ctx, "reading script output", "error", err)
		}
		close(lines)
	}()

	for l := range lines {
		r.handle(ctx, task, l)
	}

	err = cmd.Wait()
	result.Stopped = time.Now().UTC()
	result.ExitCode = cmd.ProcessState.ExitCode()
	slog.DebugContext(ctx, "script stopped", "exit_code", result.ExitCode, "duration", result.Duration())

	if err == nil && result.ExitCode == 0 {
		_, _ = fmt.Fprintf(r.stdout, "✅ Finished %s\n", task.Name)
		r.notifier.Notify(ctx, fmt.Sprintf("✅ Finished %s", task.Name))
		return result, nil
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		result.Err = err
	} else if runCtx.Err() != nil {
		// killed by CommandContext
		result.Err = runCtx.Err()
	}
	msg := fmt.Sprintf("❌ Error in %s (Exit code: %d)", task.Name, result.ExitCode)
	_, _ = fmt.Fprintln(r.stderr, msg)
	r.report(ctx, msg)
	return result, &model.ScriptError{Task: task.Name, ExitCode: result.ExitCode, Err: result.Err}
}

func (r *Runner) handle(ctx context.Context, task model.ScriptTask, l outputLine) {
	switch l.stream {
	case streamStdout:
		_, _ = fmt.Fprintln(r.stdout, l.text)
		if r.classifier.Stdout(l.text) == Forward {
			r.notifier.Notify(ctx, fmt.Sprintf("🔄 %s Output:\n%s", task.Name, l.text))
		}
	case streamStderr:
		_, _ = fmt.Fprintln(r.stderr, l.text)
		if r.classifier.Stderr(l.text) == Forward {
			r.notifier.Notify(ctx, fmt.Sprintf("❌ Error in %s:\n%s", task.Name, l.text))
		}
	}
}

func (r *Runner) spawnFailed(ctx context.Context, result model.RunResult, err error) (model.RunResult, error) {
	now := time.Now().UTC()
	if result.Started.IsZero() {
		result.Started = now
	}
	result.Stopped = now
	result.ExitCode = -1
	result.Err = err
	slog.ErrorContext(ctx, "script can't be started", "error", err)

	msg := fmt.Sprintf("❌ Error in %s (spawn failed: %v)", result.Task.Name, err)
	_, _ = fmt.Fprintln(r.stderr, msg)
	r.report(ctx, msg)
	return result, &model.ScriptError{Task: result.Task.Name, ExitCode: -1, Err: err}
}

// report sends a terminal failure notification. Cancellation of ctx
// is ignored, the send is bounded by reportTimeout instead.
func (r *Runner) report(ctx context.Context, msg string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()
	r.notifier.Notify(ctx, msg)
}

// scan sends rd line by line to lines. A line longer than maxLineSize
// is split into maxLineSize chunks, nothing is dropped.
func scan(rd io.Reader, s stream, lines chan<- outputLine) error {
	br := bufio.NewReaderSize(rd, maxLineSize)
	for {
		// isPrefix is ignored, the rest of a long line comes as the next chunk
		line, _, err := br.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed) {
				return nil
			}
			// drain, so the child is not blocked on a full pipe
			_, _ = io.Copy(io.Discard, rd)
			return err
		}
		lines <- outputLine{stream: s, text: string(line)}
	}
}
