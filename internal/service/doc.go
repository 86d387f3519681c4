// Package service implements the sequential execution of script tasks.
//
// Overview
// A Loop owns the ordered list of ScriptTasks and runs it repeat times, one
// task after another. Each task is executed by a Runner, which starts the
// child process, relays its output and reports the exit.
//
// Runner is a thin, opinionated wrapper around os/exec:
//   - notifies about the start before the process is spawned
//   - reads stdout and stderr line by line (two goroutines, one consumer)
//   - prints every line to the console
//   - notifies about stdout lines matching the keywords and about every stderr line
//   - turns a non-zero exit code or a spawn error into *model.ScriptError
//
// Data flow:
//
//	Session/Supervisor        Loop                 Runner            child
//	       |                   |                     |                 |
//	       | RunAll(n) ------->| Run(task) --------->| Start --------->|
//	       |                   |                     |<--- lines ------|
//	       |                   |                     |---> Notifier    |
//	       |                   |<---- result --------|<--- exit -------|
//	       |<---- error/nil ---|                     |                 |
//
// Session drives the loop interactively (prompt for a count, run, repeat),
// Supervisor runs it once or on a schedule.
//
// Invariants:
//   - At most one child process runs at a time.
//   - The next task starts only after the previous process exited and the
//     terminal notification returned.
//   - The first failure aborts the invocation, there are no retries.
//   - Notifications are best effort and never abort a run.
package service
