package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
)

// ErrSkip marks a message that can never be handled, such as one that fails
// to decode. It is committed without retrying.
var ErrSkip = errors.New("skip message")

// Source is a committable message stream
type Source interface {
	Consume(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, msg kafka.Message) error
}

// Handler processes one message
type Handler func(ctx context.Context, msg kafka.Message) error

// Decoded adapts a handler of decoded payloads. A payload that fails to
// decode is skipped, since redelivery cannot fix it.
func Decoded[T any](decode func([]byte) (T, error), fn func(ctx context.Context, v T) error) Handler {
	return func(ctx context.Context, msg kafka.Message) error {
		v, err := decode(msg.Value)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSkip, err)
		}
		return fn(ctx, v)
	}
}

// ProcessorConfig controls handler retries
type ProcessorConfig struct {
	MaxAttempts   int
	RetryInterval time.Duration // first wait; doubles per attempt
	MaxInterval   time.Duration
}

// Processor feeds messages to a handler and commits each one once it has
// been handled, skipped or has exhausted its retries.
type Processor struct {
	source  Source
	handler Handler
	cfg     ProcessorConfig
	log     *slog.Logger
}

// NewProcessor creates a processor
func NewProcessor(name string, source Source, handler Handler, cfg ProcessorConfig) *Processor {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}
	if cfg.MaxInterval < cfg.RetryInterval {
		cfg.MaxInterval = 30 * cfg.RetryInterval
	}
	return &Processor{
		source:  source,
		handler: handler,
		cfg:     cfg,
		log:     slog.With("component", name),
	}
}

// newBackOff returns the doubling wait schedule configured for p
func (p *Processor) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.cfg.RetryInterval
	b.MaxInterval = p.cfg.MaxInterval
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Run processes messages until ctx is cancelled
func (p *Processor) Run(ctx context.Context) error {
	consumeWait := p.newBackOff()
	for {
		msg, err := p.source.Consume(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.log.Error("failed to consume message", "error", err)
			if !sleep(ctx, consumeWait.NextBackOff()) {
				return ctx.Err()
			}
			continue
		}
		consumeWait.Reset()

		p.handle(ctx, msg)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if err := p.source.Commit(ctx, msg); err != nil {
			p.log.Error("failed to commit offset", "offset", msg.Offset, "error", err)
		}
	}
}

func (p *Processor) handle(ctx context.Context, msg kafka.Message) {
	log := p.log.With("partition", msg.Partition, "offset", msg.Offset, "key", string(msg.Key))

	attempt := 0
	policy := backoff.WithContext(backoff.WithMaxRetries(p.newBackOff(), uint64(p.cfg.MaxAttempts-1)), ctx)
	err := backoff.RetryNotify(func() error {
		attempt++
		err := p.handler(ctx, msg)
		if errors.Is(err, ErrSkip) {
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, wait time.Duration) {
		log.Warn("handler failed, retrying", "attempt", attempt, "wait", wait, "error", err)
	})

	switch {
	case err == nil, ctx.Err() != nil:
	case errors.Is(err, ErrSkip):
		log.Warn("skipping message", "error", err)
	default:
		log.Error("giving up on message", "attempts", attempt, "error", err)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
