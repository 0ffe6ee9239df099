package notify

import (
	"context"
	"fmt"

	"saascore/models"

	"go.uber.org/zap"
)

// Message is a rendered plain-text email.
type Message struct {
	Template string
	Subject  string
	Body     string
}

// Mailer sends one message to one address.
type Mailer interface {
	Send(ctx context.Context, from, to string, msg Message) error
}

// LogMailer logs messages instead of sending them.
type LogMailer struct {
	Logger *zap.Logger
}

func (m LogMailer) Send(_ context.Context, from, to string, msg Message) error {
	m.Logger.Info("email sent",
		zap.String("from", from),
		zap.String("to", to),
		zap.String("template", msg.Template),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Directory resolves who hears about an organization's billing and keeps the
// email log.
type Directory interface {
	BillingContacts(ctx context.Context, orgID uint) ([]string, error)
	RecordEmail(ctx context.Context, entry *models.EmailLog) error
}

// Render builds the email for ev. ok is false for kinds that send no email.
func Render(product string, ev Event) (msg Message, ok bool) {
	switch ev.Kind {
	case SubscriptionCreated:
		return Message{
			Template: "subscription_created",
			Subject:  fmt.Sprintf("Welcome to %s", product),
			Body: fmt.Sprintf("Your %s trial has started. You will receive an invoice before it ends.\n\n"+
				"Pay by bank transfer and submit the transfer reference from your billing page.", product),
		}, true
	case InvoicePending:
		return Message{
			Template: "invoice_pending",
			Subject:  fmt.Sprintf("Invoice %s is ready", ev.InvoiceNumber),
			Body: fmt.Sprintf("Invoice %s for %s has been issued.\n\n"+
				"Please pay by bank transfer, quoting the invoice number in the payment reference.",
				ev.InvoiceNumber, formatAmount(ev.Amount, ev.Currency)),
		}, true
	case TransactionSubmitted:
		return Message{
			Template: "payment_submitted",
			Subject:  fmt.Sprintf("Payment received for invoice %s", ev.InvoiceNumber),
			Body: fmt.Sprintf("We received your transfer claim of %s for invoice %s. "+
				"It will be verified shortly.", formatAmount(ev.Amount, ev.Currency), ev.InvoiceNumber),
		}, true
	case TransactionApproved:
		return Message{
			Template: "payment_approved",
			Subject:  fmt.Sprintf("Payment approved for invoice %s", ev.InvoiceNumber),
			Body: fmt.Sprintf("Your payment of %s has been verified and invoice %s is paid. Thank you.",
				formatAmount(ev.Amount, ev.Currency), ev.InvoiceNumber),
		}, true
	case TransactionRejected:
		body := fmt.Sprintf("Your payment of %s for invoice %s could not be verified.",
			formatAmount(ev.Amount, ev.Currency), ev.InvoiceNumber)
		if ev.Notes != "" {
			body += "\n\nReason: " + ev.Notes
		}
		return Message{
			Template: "payment_rejected",
			Subject:  fmt.Sprintf("Payment for invoice %s was not approved", ev.InvoiceNumber),
			Body:     body,
		}, true
	}
	return Message{}, false
}

func formatAmount(minor int64, currency string) string {
	sign := ""
	if minor < 0 {
		sign, minor = "-", -minor
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, minor/100, minor%100, currency)
}

// Deliverer renders events and mails them to the organization's billing contacts,
// recording every attempt in the email log.
type Deliverer struct {
	dir     Directory
	mailer  Mailer
	from    string
	product string
	logger  *zap.Logger
}

func NewDeliverer(dir Directory, mailer Mailer, from, product string, logger *zap.Logger) *Deliverer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Deliverer{dir: dir, mailer: mailer, from: from, product: product, logger: logger}
}

// Deliver sends ev to recipients, or to the billing contacts when recipients is
// empty. It returns the addresses that could not be reached.
func (d *Deliverer) Deliver(ctx context.Context, ev Event, recipients []string) ([]string, error) {
	msg, ok := Render(d.product, ev)
	if !ok {
		return nil, nil
	}
	if len(recipients) == 0 {
		contacts, err := d.dir.BillingContacts(ctx, ev.OrgID)
		if err != nil {
			return nil, fmt.Errorf("resolve recipients: %w", err)
		}
		recipients = contacts
	}

	var failed []string
	for _, to := range recipients {
		entry := &models.EmailLog{To: to, Subject: msg.Subject, Template: msg.Template, Status: models.EmailSent, EventID: ev.ID}
		if err := d.mailer.Send(ctx, d.from, to, msg); err != nil {
			entry.Status = models.EmailFailed
			entry.Error = err.Error()
			failed = append(failed, to)
		}
		if err := d.dir.RecordEmail(ctx, entry); err != nil {
			d.logger.Warn("failed to record email log", zap.String("to", to), zap.String("event_id", ev.ID), zap.Error(err))
		}
	}
	if len(failed) > 0 {
		return failed, fmt.Errorf("%d of %d deliveries failed", len(failed), len(recipients))
	}
	return nil, nil
}

// DirectSink delivers email in the caller's goroutine. Used when no queue is configured.
type DirectSink struct {
	Deliverer *Deliverer
}

func (s DirectSink) Notify(ctx context.Context, ev Event) error {
	_, err := s.Deliverer.Deliver(ctx, ev, nil)
	return err
}
