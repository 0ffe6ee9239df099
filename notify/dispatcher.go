package notify

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"saascore/metrics"

	"go.uber.org/zap"
)

const DefaultTimeout = 10 * time.Second

// Dispatcher hands events to a sink on detached goroutines with a timeout and
// panic recovery. A nil *Dispatcher drops events.
type Dispatcher struct {
	sink    Sink
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Metrics
	wg      sync.WaitGroup
}

func NewDispatcher(sink Sink, logger *zap.Logger, m *metrics.Metrics) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{sink: sink, timeout: DefaultTimeout, logger: logger, metrics: m}
}

// WithTimeout sets the per-event delivery timeout.
func (d *Dispatcher) WithTimeout(timeout time.Duration) *Dispatcher {
	d.timeout = timeout
	return d
}

// Emit returns immediately. The request context only contributes its values;
// delivery outlives the request.
func (d *Dispatcher) Emit(ctx context.Context, events ...Event) {
	if d == nil || d.sink == nil {
		return
	}
	base := context.WithoutCancel(ctx)
	for _, ev := range events {
		if ev.ID == "" {
			ev.ID = newEventID()
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = time.Now().UTC()
		}
		d.wg.Add(1)
		go d.deliver(base, ev)
	}
}

func (d *Dispatcher) deliver(base context.Context, ev Event) {
	defer d.wg.Done()
	ctx, cancel := context.WithTimeout(base, d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			d.metrics.Notification(string(ev.Kind), "panic")
			d.logger.Error("notification sink panicked",
				zap.String("kind", string(ev.Kind)),
				zap.String("event_id", ev.ID),
				zap.String("panic", fmt.Sprint(r)),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	if err := d.sink.Notify(ctx, ev); err != nil {
		d.metrics.Notification(string(ev.Kind), "failed")
		d.logger.Warn("notification delivery failed",
			zap.String("kind", string(ev.Kind)),
			zap.String("event_id", ev.ID),
			zap.Uint("org_id", ev.OrgID),
			zap.Error(err),
		)
		return
	}
	d.metrics.Notification(string(ev.Kind), "delivered")
}

// Wait blocks until every emitted event has been handled. Used on shutdown and in tests.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogSink writes events to the structured log.
type LogSink struct {
	Logger *zap.Logger
}

func (s LogSink) Notify(_ context.Context, ev Event) error {
	s.Logger.Info("billing event",
		zap.String("kind", string(ev.Kind)),
		zap.String("event_id", ev.ID),
		zap.Uint("org_id", ev.OrgID),
		zap.Uint("invoice_id", ev.InvoiceID),
		zap.Uint("subscription_id", ev.SubscriptionID),
		zap.Uint("transaction_id", ev.TransactionID),
		zap.Time("occurred_at", ev.OccurredAt),
	)
	return nil
}
