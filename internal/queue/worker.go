package queue

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Handler processes one delivered task. Returning nil acks it; returning
// an error fails it (wrap with Permanent to skip retries).
type Handler func(ctx context.Context, t *Task) error

type Worker struct {
	ID           string
	Queue        string
	Repo         *Repo
	Handlers     map[string]Handler
	Concurrency  int
	PollInterval time.Duration
	Log          zerolog.Logger
}

func NewWorker(repo *Repo, queueName string, handlers map[string]Handler, log zerolog.Logger) *Worker {
	id := fmt.Sprintf("%s-%s", queueName, uuid.NewString()[:8])
	return &Worker{
		ID:           id,
		Queue:        queueName,
		Repo:         repo,
		Handlers:     handlers,
		Concurrency:  1,
		PollInterval: 800 * time.Millisecond,
		Log:          log.With().Str("comp", "worker").Str("queue", queueName).Str("worker", id).Logger(),
	}
}

// Run polls the queue from Concurrency loops until ctx is canceled.
// Each loop finishes its current task before taking the next one.
func (w *Worker) Run(ctx context.Context) {
	n := w.Concurrency
	if n <= 0 {
		n = 1
	}
	w.Log.Info().Int("concurrency", n).Msg("worker started")

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			w.loop(ctx, fmt.Sprintf("%s/%d", w.ID, slot))
		}(i)
	}
	wg.Wait()
	w.Log.Info().Msg("worker stopped")
}

func (w *Worker) loop(ctx context.Context, slotID string) {
	interval := w.PollInterval
	if interval <= 0 {
		interval = 800 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// drain everything that is due before waiting for the next tick
			for ctx.Err() == nil {
				ok, err := w.poll(ctx, slotID)
				if err != nil {
					w.Log.Error().Err(err).Msg("worker poll error")
					break
				}
				if !ok {
					break
				}
			}
		}
	}
}

// Poll claims and processes at most one due task. It reports whether a
// task was delivered.
func (w *Worker) Poll(ctx context.Context) (bool, error) {
	return w.poll(ctx, w.ID)
}

func (w *Worker) poll(ctx context.Context, slotID string) (bool, error) {
	t, err := w.Repo.Claim(ctx, w.Queue, slotID)
	if err != nil {
		return false, err
	}
	if t == nil {
		return false, nil
	}
	return true, w.handle(ctx, t)
}

func (w *Worker) handle(ctx context.Context, t *Task) error {
	log := w.Log.With().Str("task", t.ID).Str("kind", t.Kind).Int("attempt", t.Attempts).Logger()
	start := time.Now()

	h, ok := w.Handlers[t.Kind]
	var err error
	if !ok {
		err = Permanent(fmt.Errorf("%w: %q", ErrUnknownKind, t.Kind))
	} else {
		err = safeCall(ctx, h, t)
	}

	if err == nil {
		ackErr := w.Repo.Ack(ctx, t)
		if errors.Is(ackErr, ErrLeaseLost) {
			return nil
		}
		if ackErr != nil {
			// left RUNNING; RequeueStale redelivers it after the visibility timeout
			return fmt.Errorf("ack task %s: %w", t.ID, ackErr)
		}
		log.Debug().Dur("dur", time.Since(start)).Msg("task completed")
		return nil
	}

	status, failErr := w.Repo.Fail(ctx, t, err)
	if errors.Is(failErr, ErrLeaseLost) {
		return nil
	}
	if failErr != nil {
		return failErr
	}
	log.Warn().Err(err).Str("status", status).Dur("dur", time.Since(start)).Msg("task failed")
	return nil
}

func safeCall(ctx context.Context, h Handler, t *Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return h(ctx, t)
}
