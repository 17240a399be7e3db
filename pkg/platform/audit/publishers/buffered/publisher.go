// Package buffered decouples request handling from a slow audit sink. Emit
// only enqueues; Run drains the queue to the sink until its context ends and
// then flushes what is left.
package buffered

import (
	"context"
	"log/slog"
	"time"

	audit "accman/pkg/platform/audit"
)

const (
	defaultBatchSize     = 64
	defaultFlushInterval = 200 * time.Millisecond
	flushTimeout         = 5 * time.Second
)

type Publisher struct {
	sink          audit.Publisher
	buffer        *RingBuffer
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	wake          chan struct{}
}

type Option func(*Publisher)

func WithCapacity(n int) Option {
	return func(p *Publisher) {
		p.buffer = NewRingBuffer(n)
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.flushInterval = d
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

func New(sink audit.Publisher, opts ...Option) *Publisher {
	p := &Publisher{
		sink:          sink,
		buffer:        NewRingBuffer(0),
		logger:        slog.Default(),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		wake:          make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Emit never blocks on the sink.
func (p *Publisher) Emit(_ context.Context, event audit.Event) error {
	p.buffer.Enqueue(event)
	select {
	case p.wake <- struct{}{}:
	default:
	}
	return nil
}

// Run forwards buffered events to the sink until ctx is done, then drains the
// remainder with a bounded timeout. It always returns nil so it can run in an
// errgroup without tearing the process down.
func (p *Publisher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flushTimeout)
			p.flush(drainCtx)
			cancel()
			if dropped := p.buffer.Dropped(); dropped > 0 {
				p.logger.Warn("audit events dropped", "count", dropped)
			}
			return nil
		case <-p.wake:
			p.flush(ctx)
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

func (p *Publisher) flush(ctx context.Context) {
	for {
		batch := p.buffer.DequeueBatch(p.batchSize)
		if len(batch) == 0 {
			return
		}
		for _, event := range batch {
			if err := p.sink.Emit(ctx, event); err != nil {
				p.logger.ErrorContext(ctx, "failed to publish audit event",
					"action", string(event.Action),
					"event_id", event.ID,
					"error", err,
				)
			}
		}
	}
}

// Pending returns the number of events not yet handed to the sink.
func (p *Publisher) Pending() int {
	return p.buffer.Len()
}
