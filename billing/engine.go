// Package billing is the billing lifecycle engine: subscription state machine,
// invoice generation and manual bank-transfer approval. Every multi-record change
// runs as one ledger unit of work, and transition events go to the notification
// dispatcher after commit.
package billing

import (
	"context"
	"time"

	"saascore/access"
	"saascore/config"
	"saascore/ledger"
	"saascore/metrics"
	"saascore/models"
	"saascore/notify"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const maxBankReference = 140

// Config holds plan pricing in minor currency units and lifecycle timings in days.
type Config struct {
	TrialDays       int
	GracePeriodDays int
	InvoiceLeadDays int
	PlanName        string
	MonthlyPrice    int64
	YearlyPrice     int64
	Currency        string
	Bank            config.BankDetails
}

func ConfigFrom(c config.BillingConfig) Config {
	return Config{
		TrialDays:       c.TrialDays,
		GracePeriodDays: c.GracePeriodDays,
		InvoiceLeadDays: c.InvoiceLeadDays,
		PlanName:        c.PlanName,
		MonthlyPrice:    c.MonthlyPrice,
		YearlyPrice:     c.YearlyPrice,
		Currency:        c.Currency,
		Bank:            c.Bank,
	}
}

func (c Config) price(interval models.BillingInterval) int64 {
	if interval == models.IntervalYearly {
		return c.YearlyPrice
	}
	return c.MonthlyPrice
}

type Engine struct {
	store   *ledger.Store
	guard   *access.Guard
	events  *notify.Dispatcher
	metrics *metrics.Metrics
	logger  *zap.Logger
	tracer  trace.Tracer
	cfg     Config
	clock   func() time.Time
}

type Option func(*Engine)

// WithClock replaces time.Now.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) { e.clock = clock }
}

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithDispatcher sets where transition events go. Without it events are dropped.
func WithDispatcher(d *notify.Dispatcher) Option {
	return func(e *Engine) { e.events = d }
}

func NewEngine(store *ledger.Store, guard *access.Guard, cfg Config, opts ...Option) *Engine {
	e := &Engine{
		store:  store,
		guard:  guard,
		cfg:    cfg,
		clock:  time.Now,
		tracer: otel.Tracer("saascore/billing"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = zap.NewNop()
	}
	return e
}

// now is UTC at microsecond precision so timestamps compare equal after a
// round trip through either database.
func (e *Engine) now() time.Time {
	return e.clock().UTC().Truncate(time.Microsecond)
}

// BankDetails are the transfer instructions shown next to a pending invoice.
func (e *Engine) BankDetails() config.BankDetails {
	return e.cfg.Bank
}

// op starts a span for one engine operation. The returned func ends it and
// records the outcome; call it deferred with the address of the named error.
func (e *Engine) op(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, func(*error)) {
	ctx, span := e.tracer.Start(ctx, "billing."+name, trace.WithAttributes(attrs...))
	return ctx, func(errp *error) {
		err := *errp
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if IsRetryable(err) {
				e.logger.Error("billing store failure", zap.String("operation", name), zap.Error(err))
			}
		}
		e.metrics.Operation(name, outcome(err))
		span.End()
	}
}

func (e *Engine) emit(ctx context.Context, events ...notify.Event) {
	e.events.Emit(ctx, events...)
}

func principalAttrs(p access.Principal) attribute.KeyValue {
	return attribute.Int64("billing.user_id", int64(p.UserID))
}

func invoiceEvent(kind notify.Kind, inv *models.Invoice, at time.Time) notify.Event {
	return notify.Event{
		Kind:           kind,
		OrgID:          inv.OrganizationID,
		InvoiceID:      inv.ID,
		SubscriptionID: inv.SubscriptionID,
		InvoiceNumber:  inv.Number,
		Amount:         inv.Amount,
		Currency:       inv.Currency,
		OccurredAt:     at,
	}
}

func subscriptionEvent(kind notify.Kind, sub *models.Subscription, at time.Time) notify.Event {
	return notify.Event{
		Kind:           kind,
		OrgID:          sub.OrganizationID,
		SubscriptionID: sub.ID,
		Amount:         sub.Amount,
		Currency:       sub.Currency,
		OccurredAt:     at,
	}
}
