package session

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
)

type Runner interface {
	Run(ctx context.Context, job Job) Result
}

// Worker runs every dispatched session on its own goroutine. Sessions share
// nothing but the runner.
type Worker struct {
	runner Runner
	logger *slog.Logger

	wg     sync.WaitGroup
	active atomic.Int64
}

func NewWorker(runner Runner, l *slog.Logger) *Worker {
	if l == nil {
		l = logger
	}
	return &Worker{runner: runner, logger: l}
}

// Dispatch starts a session and returns immediately. ctx must outlive the
// request that triggered the session; cancelling it ends the session.
//
// A room that can be disconnected is disconnected once the session is over.
func (w *Worker) Dispatch(ctx context.Context, job Job) {
	w.wg.Add(1)
	w.active.Add(1)
	go func() {
		defer w.wg.Done()
		defer w.active.Add(-1)
		if d, ok := job.Room.(interface{ Disconnect() }); ok {
			defer d.Disconnect()
		}

		result := w.runner.Run(ctx, job)
		w.logger.InfoContext(ctx, "session completed",
			"room", job.Room.Name(), "state", result.State.String(), "error", result.Err)
	}()
}

// Active returns the number of sessions still running.
func (w *Worker) Active() int {
	return int(w.active.Load())
}

// Wait blocks until every dispatched session has completed.
func (w *Worker) Wait() {
	w.wg.Wait()
}
