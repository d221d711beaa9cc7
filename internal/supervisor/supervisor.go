// Package supervisor runs blocking card operations one at a time.
//
// A scan or write can block for seconds while waiting for a card. The
// front-ends hand that work to a Supervisor, which runs it on a background
// goroutine and refuses a second operation while the first is in flight.
package supervisor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusy is returned by Start while another task is still running.
var ErrBusy = errors.New("a card operation is already in progress")

// Task is the unit of work. It should honour ctx cancellation.
type Task func(ctx context.Context) (any, error)

// Result is delivered exactly once on the channel returned by Start.
type Result struct {
	ID    string
	Name  string
	Value any
	Err   error
}

// Supervisor is a single-slot task runner. The zero value is not usable;
// call New.
type Supervisor struct {
	log *slog.Logger

	mu      sync.Mutex
	running string
}

// New returns an idle supervisor logging to log (slog.Default when nil).
func New(log *slog.Logger) *Supervisor {
	if log == nil {
		log = slog.Default()
	}
	return &Supervisor{log: log}
}

// Busy reports whether a task is in flight, and its name.
func (s *Supervisor) Busy() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running, s.running != ""
}

// Start launches fn in the background. The returned channel is buffered,
// so the task never blocks on delivery even if nobody reads the result.
func (s *Supervisor) Start(ctx context.Context, name string, fn Task) (<-chan Result, error) {
	s.mu.Lock()
	if s.running != "" {
		current := s.running
		s.mu.Unlock()
		s.log.Warn("card operation rejected",
			slog.String("task", name),
			slog.String("running", current))
		return nil, ErrBusy
	}
	s.running = name
	s.mu.Unlock()

	id := uuid.New().String()
	out := make(chan Result, 1)

	s.log.Debug("card operation started",
		slog.String("task", name),
		slog.String("task_id", id))

	go func() {
		start := time.Now()
		var res Result

		// The slot is released before the result is published so a caller
		// that reacts to the result can start the next task immediately.
		defer func() {
			if r := recover(); r != nil {
				res = Result{Err: errors.New("card operation panicked")}
				s.log.Error("card operation panicked",
					slog.String("task", name),
					slog.String("task_id", id),
					slog.Any("panic", r))
			}
			res.ID, res.Name = id, name

			s.mu.Lock()
			s.running = ""
			s.mu.Unlock()

			out <- res
			close(out)
		}()

		value, err := fn(ctx)
		res = Result{Value: value, Err: err}

		attrs := []any{
			slog.String("task", name),
			slog.String("task_id", id),
			slog.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			s.log.Info("card operation finished with error",
				append(attrs, slog.String("error", err.Error()))...)
		} else {
			s.log.Debug("card operation finished", attrs...)
		}
	}()

	return out, nil
}

// Run is Start followed by waiting for the result. If ctx ends first, Run
// returns ctx.Err(); the task keeps its slot until fn itself returns.
func (s *Supervisor) Run(ctx context.Context, name string, fn Task) (any, error) {
	ch, err := s.Start(ctx, name, fn)
	if err != nil {
		return nil, err
	}

	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
