// Package notify decouples notification delivery from the state transitions
// that produce it. Producers enqueue intents; a worker pool delivers them
// best-effort per recipient. A delivery failure never reaches the producer.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"stroybot/core/logger"
	"stroybot/internal/metrics"
)

var (
	// ErrQueueClosed is returned when enqueue is attempted after Close.
	ErrQueueClosed = errors.New("notify: queue closed")
	// ErrQueueFull indicates the queue is saturated and the intent was dropped.
	ErrQueueFull = errors.New("notify: queue full")
)

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipientID int64, text string) error
}

// Intent is a single pending delivery.
type Intent struct {
	RecipientID int64
	Text        string
}

// Options bound the queue.
type Options struct {
	QueueSize  int
	Workers    int
	MaxRetries int
	Backoff    time.Duration
}

// Queue is a bounded in-process delivery queue with a fixed worker pool.
type Queue struct {
	sender Sender
	stats  *metrics.Collector
	opts   Options

	jobs chan Intent
	stop chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

// NewQueue starts the workers. Zeroed options get sane defaults.
func NewQueue(sender Sender, stats *metrics.Collector, opts Options) *Queue {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 2 * time.Second
	}
	q := &Queue{
		sender: sender,
		stats:  stats,
		opts:   opts,
		jobs:   make(chan Intent, opts.QueueSize),
		stop:   make(chan struct{}),
	}
	q.wg.Add(opts.Workers)
	for i := 0; i < opts.Workers; i++ {
		go q.worker()
	}
	return q
}

// Enqueue schedules one delivery. A full queue is reported, not blocked on:
// notifications are best-effort and must not stall state transitions.
func (q *Queue) Enqueue(intent Intent) error {
	select {
	case <-q.stop:
		return ErrQueueClosed
	default:
	}
	select {
	case q.jobs <- intent:
		return nil
	default:
		logger.Warn(context.Background(), "notify", "queue.full",
			slog.Int64("recipient", intent.RecipientID),
		)
		return ErrQueueFull
	}
}

// Close stops intake and waits for in-flight deliveries to drain.
func (q *Queue) Close() {
	q.once.Do(func() {
		close(q.stop)
		close(q.jobs)
	})
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for intent := range q.jobs {
		q.deliver(intent)
	}
}

func (q *Queue) deliver(intent Intent) {
	ctx := context.Background()
	var err error
	for attempt := 0; attempt <= q.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-q.stop:
				// Shutdown: give up on retries, the intent is best-effort.
				return
			case <-time.After(q.opts.Backoff):
			}
		}
		if err = q.sender.Send(ctx, intent.RecipientID, intent.Text); err == nil {
			q.stats.IncNotify(true)
			return
		}
	}
	q.stats.IncNotify(false)
	logger.Warn(ctx, "notify", "delivery.failed",
		slog.Int64("recipient", intent.RecipientID),
		slog.Int("attempts", q.opts.MaxRetries+1),
		slog.String("err", err.Error()),
	)
}
