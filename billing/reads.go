package billing

import (
	"context"

	"saascore/access"
	"saascore/models"

	"go.opentelemetry.io/otel/attribute"
)

// GetSubscription returns the organization's subscription with its invoices, newest first.
func (e *Engine) GetSubscription(ctx context.Context, p access.Principal, orgID uint) (sub *models.Subscription, err error) {
	ctx, done := e.op(ctx, "get_subscription", principalAttrs(p), attribute.Int64("billing.org_id", int64(orgID)))
	defer done(&err)

	if _, err := e.guard.Authorize(ctx, p, orgID); err != nil {
		return nil, classify(err, "organization")
	}
	sub, err = e.store.Read(ctx).SubscriptionByOrg(orgID, true)
	if err != nil {
		return nil, classify(err, "subscription")
	}
	return sub, nil
}

// GetInvoices returns the organization's invoices with their transactions, newest first.
func (e *Engine) GetInvoices(ctx context.Context, p access.Principal, orgID uint) (invs []models.Invoice, err error) {
	ctx, done := e.op(ctx, "get_invoices", principalAttrs(p), attribute.Int64("billing.org_id", int64(orgID)))
	defer done(&err)

	if _, err := e.guard.Authorize(ctx, p, orgID); err != nil {
		return nil, classify(err, "organization")
	}
	invs, err = e.store.Read(ctx).InvoicesByOrg(orgID)
	if err != nil {
		return nil, classify(err, "invoices")
	}
	return invs, nil
}

// GetInvoice returns one invoice with its transactions to a member of its organization.
func (e *Engine) GetInvoice(ctx context.Context, p access.Principal, invoiceID uint) (inv *models.Invoice, err error) {
	ctx, done := e.op(ctx, "get_invoice", principalAttrs(p), attribute.Int64("billing.invoice_id", int64(invoiceID)))
	defer done(&err)

	inv, err = e.store.Read(ctx).InvoiceWithTransactions(invoiceID)
	if err != nil {
		return nil, classify(err, "invoice")
	}
	if _, err := e.guard.Authorize(ctx, p, inv.OrganizationID); err != nil {
		return nil, classify(err, "invoice")
	}
	return inv, nil
}

// GetPendingTransactions lists pending transactions of every tenant for operators.
func (e *Engine) GetPendingTransactions(ctx context.Context, p access.Principal) (txns []models.Transaction, err error) {
	ctx, done := e.op(ctx, "get_pending_transactions", principalAttrs(p))
	defer done(&err)

	if err := e.guard.RequireElevated(p); err != nil {
		return nil, classify(err, "transactions")
	}
	txns, err = e.store.Read(ctx).PendingTransactions()
	if err != nil {
		return nil, classify(err, "transactions")
	}
	return txns, nil
}
