// Package notify carries billing transition events out of the engine. Delivery is
// best-effort: a failing or slow sink never changes the outcome of a transition.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	SubscriptionCreated   Kind = "subscription.created"
	SubscriptionActivated Kind = "subscription.activated"
	SubscriptionPastDue   Kind = "subscription.past_due"
	SubscriptionExpired   Kind = "subscription.expired"
	InvoicePending        Kind = "invoice.pending"
	InvoicePaid           Kind = "invoice.paid"
	TransactionSubmitted  Kind = "transaction.submitted"
	TransactionApproved   Kind = "transaction.approved"
	TransactionRejected   Kind = "transaction.rejected"
)

// Event describes one committed transition. Zero ids are omitted.
type Event struct {
	ID             string    `json:"id"`
	Kind           Kind      `json:"kind"`
	OrgID          uint      `json:"org_id"`
	InvoiceID      uint      `json:"invoice_id,omitempty"`
	SubscriptionID uint      `json:"subscription_id,omitempty"`
	TransactionID  uint      `json:"transaction_id,omitempty"`
	InvoiceNumber  string    `json:"invoice_number,omitempty"`
	Amount         int64     `json:"amount,omitempty"`
	Currency       string    `json:"currency,omitempty"`
	Notes          string    `json:"notes,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Sink receives events.
type Sink interface {
	Notify(ctx context.Context, ev Event) error
}

type SinkFunc func(ctx context.Context, ev Event) error

func (f SinkFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Fanout delivers each event to every sink and joins their errors.
type Fanout []Sink

func (f Fanout) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, s := range f {
		if err := s.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func newEventID() string {
	return uuid.NewString()
}
