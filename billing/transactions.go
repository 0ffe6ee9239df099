package billing

import (
	"context"
	"errors"
	"strings"

	"saascore/access"
	"saascore/ledger"
	"saascore/models"
	"saascore/notify"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

type CreateTransactionInput struct {
	InvoiceID     uint
	BankReference string
	Amount        int64
	Notes         string
}

// Approval is the result of approving a transaction: the three records as committed.
type Approval struct {
	Transaction  *models.Transaction  `json:"transaction"`
	Invoice      *models.Invoice      `json:"invoice"`
	Subscription *models.Subscription `json:"subscription"`
	Activated    bool                 `json:"activated"`
}

// CreateTransaction records a member's claim of a bank transfer against an invoice.
// A claim against a paid invoice is accepted and fails later at approval.
func (e *Engine) CreateTransaction(ctx context.Context, p access.Principal, in CreateTransactionInput) (txn *models.Transaction, err error) {
	ctx, done := e.op(ctx, "create_transaction", principalAttrs(p), attribute.Int64("billing.invoice_id", int64(in.InvoiceID)))
	defer done(&err)

	store := e.store.Read(ctx)
	inv, err := store.InvoiceByID(in.InvoiceID, false)
	if err != nil {
		return nil, classify(err, "invoice")
	}
	if _, err := e.guard.Authorize(ctx, p, inv.OrganizationID); err != nil {
		return nil, classify(err, "invoice")
	}

	ref := strings.TrimSpace(in.BankReference)
	switch {
	case in.Amount <= 0:
		return nil, invalid("amount must be greater than zero")
	case ref == "":
		return nil, invalid("bank reference is required")
	case len(ref) > maxBankReference:
		return nil, invalid("bank reference must be at most %d characters", maxBankReference)
	}

	txn = &models.Transaction{
		InvoiceID:      inv.ID,
		OrganizationID: inv.OrganizationID,
		SubmittedBy:    p.UserID,
		Amount:         in.Amount,
		BankReference:  ref,
		Notes:          strings.TrimSpace(in.Notes),
		Status:         models.TransactionPending,
	}
	if err := store.CreateTransaction(txn); err != nil {
		return nil, classify(err, "transaction")
	}

	e.metrics.Transition("transaction", string(models.TransactionPending))
	ev := invoiceEvent(notify.TransactionSubmitted, inv, e.now())
	ev.TransactionID = txn.ID
	ev.Amount = txn.Amount
	e.emit(ctx, ev)
	return txn, nil
}

// ApproveTransaction settles a transaction's invoice. In one unit of work the
// transaction becomes APPROVED, the invoice PAID and a trialing or past-due
// subscription ACTIVE for one billing interval from now. An active subscription
// keeps its period.
func (e *Engine) ApproveTransaction(ctx context.Context, p access.Principal, transactionID uint, notes string) (res *Approval, err error) {
	ctx, done := e.op(ctx, "approve_transaction", principalAttrs(p), attribute.Int64("billing.transaction_id", int64(transactionID)))
	defer done(&err)

	if err := e.guard.RequireElevated(p); err != nil {
		return nil, classify(err, "transaction")
	}
	notes = strings.TrimSpace(notes)
	now := e.now()

	err = e.store.RunAtomic(ctx, func(tx *ledger.Tx) error {
		txn, err := tx.TransactionByID(transactionID, true)
		if err != nil {
			return classify(err, "transaction")
		}
		if txn.Status != models.TransactionPending {
			return conflict("transaction %d has already been %s", txn.ID, strings.ToLower(string(txn.Status)))
		}
		inv, err := tx.InvoiceByID(txn.InvoiceID, true)
		if err != nil {
			return classify(err, "invoice")
		}
		if !inv.Status.Payable() {
			return settled(inv)
		}
		sub, err := tx.SubscriptionByID(inv.SubscriptionID, true)
		if err != nil {
			return classify(err, "subscription")
		}
		// a paid invoice has exactly one approved transaction
		approved, err := tx.CountByStatus(inv.ID, models.TransactionApproved)
		if err != nil {
			return classify(err, "transaction")
		}
		if approved > 0 {
			return settled(inv)
		}

		if err := tx.AdjudicateTransaction(txn.ID, models.TransactionApproved, p.UserID, notes, now); err != nil {
			if errors.Is(err, ledger.ErrStale) {
				return conflict("transaction %d was adjudicated by another request", txn.ID)
			}
			return classify(err, "transaction")
		}
		if err := tx.MarkInvoicePaid(inv.ID, now); err != nil {
			if errors.Is(err, ledger.ErrStale) {
				return settled(inv)
			}
			return classify(err, "invoice")
		}

		activated := false
		if activatable(sub.Status) {
			start, end := now, sub.BillingInterval.Next(now)
			err := tx.TransitionSubscription(sub.ID, sub.Status, map[string]interface{}{
				"status":               models.SubscriptionActive,
				"current_period_start": start,
				"current_period_end":   end,
			})
			if err != nil {
				return classify(err, "subscription")
			}
			sub.Status = models.SubscriptionActive
			sub.CurrentPeriodStart, sub.CurrentPeriodEnd = &start, &end
			activated = true
		}

		txn.Status = models.TransactionApproved
		txn.ApprovedBy = &p.UserID
		txn.AdjudicatedAt = &now
		if notes != "" {
			txn.Notes = notes
		}
		inv.Status = models.InvoicePaid
		inv.PaidAt = &now
		res = &Approval{Transaction: txn, Invoice: inv, Subscription: sub, Activated: activated}
		return nil
	})
	if err != nil {
		return nil, classify(err, "transaction")
	}

	e.metrics.Transition("transaction", string(models.TransactionApproved))
	e.metrics.Transition("invoice", string(models.InvoicePaid))
	approved := invoiceEvent(notify.TransactionApproved, res.Invoice, now)
	approved.TransactionID = res.Transaction.ID
	approved.Amount = res.Transaction.Amount
	events := []notify.Event{approved, invoiceEvent(notify.InvoicePaid, res.Invoice, now)}
	if res.Activated {
		e.metrics.Transition("subscription", string(models.SubscriptionActive))
		events = append(events, subscriptionEvent(notify.SubscriptionActivated, res.Subscription, now))
	}
	e.emit(ctx, events...)

	e.logger.Info("transaction approved",
		zap.Uint("transaction_id", res.Transaction.ID),
		zap.String("invoice", res.Invoice.Number),
		zap.Uint("approved_by", p.UserID),
		zap.Bool("activated", res.Activated),
	)
	return res, nil
}

// RejectTransaction marks a pending transaction REJECTED. Its invoice and
// subscription are left as they are.
func (e *Engine) RejectTransaction(ctx context.Context, p access.Principal, transactionID uint, notes string) (txn *models.Transaction, err error) {
	ctx, done := e.op(ctx, "reject_transaction", principalAttrs(p), attribute.Int64("billing.transaction_id", int64(transactionID)))
	defer done(&err)

	if err := e.guard.RequireElevated(p); err != nil {
		return nil, classify(err, "transaction")
	}
	notes = strings.TrimSpace(notes)
	now := e.now()

	var inv *models.Invoice
	err = e.store.RunAtomic(ctx, func(tx *ledger.Tx) error {
		var err error
		txn, err = tx.TransactionByID(transactionID, true)
		if err != nil {
			return classify(err, "transaction")
		}
		if txn.Status != models.TransactionPending {
			return conflict("transaction %d has already been %s", txn.ID, strings.ToLower(string(txn.Status)))
		}
		if inv, err = tx.InvoiceByID(txn.InvoiceID, false); err != nil {
			return classify(err, "invoice")
		}
		if err := tx.AdjudicateTransaction(txn.ID, models.TransactionRejected, p.UserID, notes, now); err != nil {
			if errors.Is(err, ledger.ErrStale) {
				return conflict("transaction %d was adjudicated by another request", txn.ID)
			}
			return classify(err, "transaction")
		}
		txn.Status = models.TransactionRejected
		txn.ApprovedBy = &p.UserID
		txn.AdjudicatedAt = &now
		if notes != "" {
			txn.Notes = notes
		}
		return nil
	})
	if err != nil {
		return nil, classify(err, "transaction")
	}

	e.metrics.Transition("transaction", string(models.TransactionRejected))
	ev := invoiceEvent(notify.TransactionRejected, inv, now)
	ev.TransactionID = txn.ID
	ev.Amount = txn.Amount
	ev.Notes = notes
	e.emit(ctx, ev)
	return txn, nil
}

func settled(inv *models.Invoice) *Error {
	return conflict("invoice %s has already been settled; this payment cannot be approved", inv.Number)
}
