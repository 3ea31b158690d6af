package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/AdamBeresnev/knockout-cup/internal/bracket"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Handler processes one finished match. ProgressionService.Progress is the
// handler used by the server.
type Handler func(ctx context.Context, matchID uuid.UUID) error

type Config struct {
	Delay        time.Duration
	Workers      int
	MaxAttempts  int
	RetryBackoff time.Duration
}

type task struct {
	matchID uuid.UUID
	attempt int
}

// Queue runs progression in the background, after a short delay so that a
// burst of edits to one match settles first. Delivery is at least once.
type Queue struct {
	handler Handler
	cfg     Config
	tasks   chan task
	done    chan struct{}
	stop    sync.Once
	logger  *slog.Logger
}

func New(handler Handler, cfg Config, logger *slog.Logger) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Queue{
		handler: handler,
		cfg:     cfg,
		tasks:   make(chan task, 64),
		done:    make(chan struct{}),
		logger:  logger,
	}
}

// Schedule implements service.ProgressScheduler.
func (q *Queue) Schedule(matchID uuid.UUID) {
	q.after(q.cfg.Delay, task{matchID: matchID, attempt: 1})
}

func (q *Queue) after(delay time.Duration, t task) {
	if delay <= 0 {
		go q.enqueue(t)
		return
	}
	time.AfterFunc(delay, func() { q.enqueue(t) })
}

func (q *Queue) enqueue(t task) {
	select {
	case q.tasks <- t:
	case <-q.done:
		q.logger.Warn("queue stopped, dropping progression", "match_id", t.matchID)
	}
}

// Run starts the workers and blocks until ctx is cancelled. Tasks still
// waiting are dropped.
func (q *Queue) Run(ctx context.Context) error {
	defer q.stop.Do(func() { close(q.done) })

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.cfg.Workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case t := <-q.tasks:
					q.process(gctx, t)
				}
			}
		})
	}
	q.logger.Info("progression queue started", "workers", q.cfg.Workers)
	return g.Wait()
}

func (q *Queue) process(ctx context.Context, t task) {
	err := q.handler(ctx, t.matchID)
	if err == nil {
		q.logger.Debug("progression done", "match_id", t.matchID, "attempt", t.attempt)
		return
	}
	if bracket.Retryable(err) && t.attempt < q.cfg.MaxAttempts {
		backoff := q.cfg.RetryBackoff * time.Duration(t.attempt)
		q.logger.Warn("progression failed, retrying", "match_id", t.matchID, "attempt", t.attempt, "backoff", backoff, "error", err)
		q.after(backoff, task{matchID: t.matchID, attempt: t.attempt + 1})
		return
	}
	q.logger.Error("progression failed", "match_id", t.matchID, "attempt", t.attempt, "kind", bracket.KindOf(err), "error", err)
}
