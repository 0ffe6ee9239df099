package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"saascore/ledger"
	"saascore/models"
	"saascore/notify"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// GenerateReport counts the outcome of one invoice generation pass.
type GenerateReport struct {
	Issued  int `json:"issued"`
	Skipped int `json:"skipped"`
}

// SweepReport counts the records each sweep step changed.
type SweepReport struct {
	Overdue int `json:"overdue"`
	Renewed int `json:"renewed"`
	PastDue int `json:"past_due"`
	Expired int `json:"expired"`
}

var errSubscriptionExpired = errors.New("subscription expired")

// IssueInvoice creates the PENDING invoice for the subscription's period starting
// at periodStart, due GracePeriodDays later. If that period was already invoiced
// the existing invoice is returned with created false.
func (e *Engine) IssueInvoice(ctx context.Context, subscriptionID uint, periodStart time.Time) (inv *models.Invoice, created bool, err error) {
	ctx, done := e.op(ctx, "issue_invoice", attribute.Int64("billing.subscription_id", int64(subscriptionID)))
	defer done(&err)

	periodStart = periodStart.UTC().Truncate(time.Microsecond)
	now := e.now()
	err = e.store.RunAtomic(ctx, func(tx *ledger.Tx) error {
		sub, err := tx.SubscriptionByID(subscriptionID, true)
		if err != nil {
			return classify(err, "subscription")
		}
		if sub.Status == models.SubscriptionExpired {
			return &Error{Kind: KindConflict, Message: fmt.Sprintf("subscription %d has expired", sub.ID), Err: errSubscriptionExpired}
		}
		existing, err := tx.InvoiceForPeriod(sub.ID, periodStart)
		if err == nil {
			inv = existing
			return nil
		}
		if !errors.Is(err, ledger.ErrNotFound) {
			return classify(err, "invoice")
		}

		number, err := tx.NextInvoiceNumber(now)
		if err != nil {
			return classify(err, "invoice number")
		}
		periodEnd := sub.BillingInterval.Next(periodStart)
		inv = &models.Invoice{
			Number:         number,
			OrganizationID: sub.OrganizationID,
			SubscriptionID: sub.ID,
			Status:         models.InvoicePending,
			Amount:         sub.Amount,
			Currency:       sub.Currency,
			Description: fmt.Sprintf("%s (%s) %s to %s", sub.PlanName, sub.BillingInterval,
				periodStart.Format("2006-01-02"), periodEnd.Format("2006-01-02")),
			PeriodStart: periodStart,
			PeriodEnd:   periodEnd,
			DueDate:     periodStart.AddDate(0, 0, e.cfg.GracePeriodDays),
		}
		if err := tx.CreateInvoice(inv); err != nil {
			return classify(err, "invoice for this period")
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, classify(err, "invoice")
	}

	if created {
		e.metrics.Transition("invoice", string(models.InvoicePending))
		e.emit(ctx, invoiceEvent(notify.InvoicePending, inv, now))
		e.logger.Info("invoice issued", zap.String("invoice", inv.Number), zap.Uint("org_id", inv.OrganizationID))
	}
	return inv, created, nil
}

// GenerateDueInvoices issues the next invoice for every trialing subscription
// whose trial ends, and every active subscription whose period ends, within
// InvoiceLeadDays of now. Running it again for the same periods issues nothing.
func (e *Engine) GenerateDueInvoices(ctx context.Context, now time.Time) (report GenerateReport, err error) {
	ctx, done := e.op(ctx, "generate_due_invoices")
	defer done(&err)

	horizon := now.UTC().AddDate(0, 0, e.cfg.InvoiceLeadDays)
	subs, err := e.store.Read(ctx).SubscriptionsDueForInvoice(horizon)
	if err != nil {
		return report, classify(err, "subscriptions")
	}

	var errs []error
	for _, sub := range subs {
		start := nextPeriodStart(&sub)
		if start == nil {
			continue
		}
		_, created, err := e.IssueInvoice(ctx, sub.ID, *start)
		switch {
		case err == nil && created:
			report.Issued++
		case err == nil, errors.Is(err, errSubscriptionExpired), e.periodInvoiced(ctx, err, sub.ID, *start):
			report.Skipped++
		default:
			errs = append(errs, fmt.Errorf("subscription %d: %w", sub.ID, err))
		}
	}
	return report, errors.Join(errs...)
}

// periodInvoiced reports whether err is a conflict caused by another run
// issuing the same period first.
func (e *Engine) periodInvoiced(ctx context.Context, err error, subscriptionID uint, periodStart time.Time) bool {
	if KindOf(err) != KindConflict {
		return false
	}
	_, lookupErr := e.store.Read(ctx).InvoiceForPeriod(subscriptionID, periodStart.UTC().Truncate(time.Microsecond))
	return lookupErr == nil
}

func nextPeriodStart(sub *models.Subscription) *time.Time {
	switch sub.Status {
	case models.SubscriptionTrialing:
		return sub.TrialEndsAt
	case models.SubscriptionActive:
		return sub.CurrentPeriodEnd
	}
	return nil
}

// SweepLifecycle applies the time-driven transitions as of now:
//   - pending invoices past their due date become OVERDUE
//   - active subscriptions whose period ended with the next period already paid roll forward
//   - active subscriptions whose period ended with an unpaid invoice become PAST_DUE
//   - trialing or past-due subscriptions holding an invoice overdue for more than
//     GracePeriodDays become EXPIRED
func (e *Engine) SweepLifecycle(ctx context.Context, now time.Time) (report SweepReport, err error) {
	ctx, done := e.op(ctx, "sweep_lifecycle")
	defer done(&err)

	now = now.UTC()
	store := e.store.Read(ctx)

	n, err := store.MarkOverdue(now)
	if err != nil {
		return report, classify(err, "invoices")
	}
	report.Overdue = int(n)
	for i := int64(0); i < n; i++ {
		e.metrics.Transition("invoice", string(models.InvoiceOverdue))
	}

	var errs []error

	renewing, err := store.ActiveWithPaidRenewal(now)
	if err != nil {
		return report, classify(err, "subscriptions")
	}
	for _, sub := range renewing {
		start := *sub.CurrentPeriodEnd
		end := sub.BillingInterval.Next(start)
		err := store.TransitionSubscription(sub.ID, models.SubscriptionActive, map[string]interface{}{
			"current_period_start": start,
			"current_period_end":   end,
		})
		switch {
		case err == nil:
			report.Renewed++
		case !errors.Is(err, ledger.ErrStale):
			errs = append(errs, fmt.Errorf("renew subscription %d: %w", sub.ID, err))
		}
	}

	lapsed, err := store.ActiveWithLapsedPeriod(now)
	if err != nil {
		return report, classify(err, "subscriptions")
	}
	for i := range lapsed {
		moved, err := e.transition(ctx, &lapsed[i], models.SubscriptionPastDue, now)
		if err != nil {
			errs = append(errs, err)
		} else if moved {
			report.PastDue++
		}
	}

	cutoff := now.AddDate(0, 0, -e.cfg.GracePeriodDays)
	stale, err := store.WithInvoiceOverdueSince(cutoff)
	if err != nil {
		return report, classify(err, "subscriptions")
	}
	for i := range stale {
		moved, err := e.transition(ctx, &stale[i], models.SubscriptionExpired, now)
		if err != nil {
			errs = append(errs, err)
		} else if moved {
			report.Expired++
		}
	}

	return report, errors.Join(errs...)
}

var transitionEvents = map[models.SubscriptionStatus]notify.Kind{
	models.SubscriptionActive:  notify.SubscriptionActivated,
	models.SubscriptionPastDue: notify.SubscriptionPastDue,
	models.SubscriptionExpired: notify.SubscriptionExpired,
}

// transition moves sub to status to if the state machine allows it. moved is
// false when the row changed underneath or the move is not allowed.
func (e *Engine) transition(ctx context.Context, sub *models.Subscription, to models.SubscriptionStatus, now time.Time) (moved bool, err error) {
	from := sub.Status
	if !CanTransition(from, to) {
		e.logger.Warn("illegal subscription transition skipped",
			zap.Uint("subscription_id", sub.ID), zap.String("from", string(from)), zap.String("to", string(to)))
		return false, nil
	}
	err = e.store.Read(ctx).TransitionSubscription(sub.ID, from, map[string]interface{}{"status": to})
	if errors.Is(err, ledger.ErrStale) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("subscription %d %s -> %s: %w", sub.ID, from, to, err)
	}

	sub.Status = to
	e.metrics.Transition("subscription", string(to))
	if kind, ok := transitionEvents[to]; ok {
		e.emit(ctx, subscriptionEvent(kind, sub, now))
	}
	e.logger.Info("subscription transitioned",
		zap.Uint("subscription_id", sub.ID), zap.Uint("org_id", sub.OrganizationID),
		zap.String("from", string(from)), zap.String("to", string(to)))
	return true, nil
}

// RunBillingCycle generates due invoices then sweeps the lifecycle, as of now.
func (e *Engine) RunBillingCycle(ctx context.Context) error {
	now := e.now()
	gen, genErr := e.GenerateDueInvoices(ctx, now)
	sweep, sweepErr := e.SweepLifecycle(ctx, now)
	err := errors.Join(genErr, sweepErr)

	e.metrics.CycleRun(outcome(err))
	e.logger.Info("billing cycle finished",
		zap.Int("invoices_issued", gen.Issued),
		zap.Int("invoices_skipped", gen.Skipped),
		zap.Int("invoices_overdue", sweep.Overdue),
		zap.Int("subscriptions_renewed", sweep.Renewed),
		zap.Int("subscriptions_past_due", sweep.PastDue),
		zap.Int("subscriptions_expired", sweep.Expired),
		zap.Error(err),
	)
	return err
}
