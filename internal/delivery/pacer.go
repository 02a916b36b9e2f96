package delivery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/groupcast/groupcast/internal/delivery")

// Pacing holds the delays applied between consecutive sends.
type Pacing struct {
	// BatchDelay separates two group mention batches.
	BatchDelay time.Duration
	// DirectDelay follows an ordinary direct message.
	DirectDelay time.Duration
	// CooldownDelay replaces DirectDelay after every CooldownEvery-th send.
	CooldownDelay time.Duration
	CooldownEvery int
	// FailureDelay follows a failed direct message.
	FailureDelay time.Duration
}

// DefaultPacing returns the delays the bot ships with.
func DefaultPacing() Pacing {
	return Pacing{
		BatchDelay:    1000 * time.Millisecond,
		DirectDelay:   200 * time.Millisecond,
		CooldownDelay: 800 * time.Millisecond,
		CooldownEvery: 20,
		FailureDelay:  400 * time.Millisecond,
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SendFunc performs the i-th send of a sequence.
type SendFunc func(ctx context.Context, i int) error

// Report summarizes a direct-message sequence.
type Report struct {
	Attempted int
	Sent      int
	Failed    int
}

// Pacer runs send sequences one unit at a time, never concurrently.
type Pacer struct {
	pacing Pacing
	sleep  SleepFunc
	log    *slog.Logger
}

// NewPacer creates a pacer using real timers.
func NewPacer(p Pacing, log *slog.Logger) *Pacer {
	if log == nil {
		log = slog.Default()
	}
	return &Pacer{pacing: p, sleep: sleepContext, log: log}
}

// WithSleep swaps the wait primitive (tests use a recording fake).
func (p *Pacer) WithSleep(fn SleepFunc) *Pacer {
	p.sleep = fn
	return p
}

// RunBatches sends n batches in order with BatchDelay between them. The
// first failure stops the sequence and is returned with its position.
func (p *Pacer) RunBatches(ctx context.Context, n int, send SendFunc) error {
	for i := 0; i < n; i++ {
		if err := p.unit(ctx, "delivery.batch", i, n, send); err != nil {
			return fmt.Errorf("batch %d/%d: %w", i+1, n, err)
		}
		p.log.Debug("mention batch sent", "batch", i+1, "of", n)

		if i < n-1 {
			if err := p.sleep(ctx, p.pacing.BatchDelay); err != nil {
				return err
			}
		}
	}
	return nil
}

// RunDirect attempts every one of n direct messages exactly once, in order.
// Failures are logged, counted and followed by FailureDelay; successes are
// followed by DirectDelay, or CooldownDelay after every CooldownEvery-th
// send. Only context cancellation ends the sequence early.
func (p *Pacer) RunDirect(ctx context.Context, n int, send SendFunc) (Report, error) {
	var rep Report
	for i := 0; i < n; i++ {
		rep.Attempted++

		delay := p.pacing.DirectDelay
		if err := p.unit(ctx, "delivery.direct", i, n, send); err != nil {
			rep.Failed++
			p.log.Warn("direct message failed", "index", i, "error", err)
			delay = p.pacing.FailureDelay
		} else {
			rep.Sent++
			if every := p.pacing.CooldownEvery; every > 0 && (i+1)%every == 0 {
				delay = p.pacing.CooldownDelay
			}
		}

		if i < n-1 {
			if err := p.sleep(ctx, delay); err != nil {
				return rep, err
			}
		}
	}
	return rep, nil
}

func (p *Pacer) unit(ctx context.Context, name string, i, n int, send SendFunc) error {
	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("delivery.index", i),
		attribute.Int("delivery.total", n),
	))
	defer span.End()

	err := send(ctx, i)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
