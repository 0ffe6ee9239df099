package ledger

import (
	"time"

	"saascore/models"

	"gorm.io/gorm"
)

var unpaid = []string{string(models.InvoicePending), string(models.InvoiceOverdue)}

func (t *Tx) CreateSubscription(sub *models.Subscription) error {
	return translate(t.db.Create(sub).Error)
}

// SubscriptionByOrg loads the organization's subscription, optionally with its
// invoices newest first.
func (t *Tx) SubscriptionByOrg(orgID uint, withInvoices bool) (*models.Subscription, error) {
	q := t.db
	if withInvoices {
		q = q.Preload("Invoices", newestFirst)
	}
	var sub models.Subscription
	if err := q.Where("organization_id = ?", orgID).First(&sub).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

func (t *Tx) SubscriptionByID(id uint, lock bool) (*models.Subscription, error) {
	var sub models.Subscription
	if err := t.query(lock).First(&sub, id).Error; err != nil {
		return nil, translate(err)
	}
	return &sub, nil
}

// TransitionSubscription applies fields only if the row is still in status from.
func (t *Tx) TransitionSubscription(id uint, from models.SubscriptionStatus, fields map[string]interface{}) error {
	return conditional(t.db.Model(&models.Subscription{}).
		Where("id = ? AND status = ?", id, from).Updates(fields))
}

// SubscriptionsDueForInvoice returns trialing subscriptions whose trial ends by
// horizon and active ones whose current period ends by horizon.
func (t *Tx) SubscriptionsDueForInvoice(horizon time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := t.db.Where(
		"(status = ? AND trial_ends_at <= ?) OR (status = ? AND current_period_end <= ?)",
		models.SubscriptionTrialing, horizon, models.SubscriptionActive, horizon,
	).Order("id ASC").Find(&subs).Error
	return subs, translate(err)
}

// ActiveWithLapsedPeriod returns active subscriptions whose period ended before
// now while an invoice is still unpaid.
func (t *Tx) ActiveWithLapsedPeriod(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := t.db.Where("status = ? AND current_period_end < ?", models.SubscriptionActive, now).
		Where("EXISTS (?)", t.unpaidInvoices(unpaid, nil)).
		Order("id ASC").Find(&subs).Error
	return subs, translate(err)
}

// WithInvoiceOverdueSince returns trialing or past-due subscriptions holding an
// overdue invoice whose due date is before cutoff.
func (t *Tx) WithInvoiceOverdueSince(cutoff time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	statuses := []string{string(models.SubscriptionTrialing), string(models.SubscriptionPastDue)}
	err := t.db.Where("status IN ?", statuses).
		Where("EXISTS (?)", t.unpaidInvoices([]string{string(models.InvoiceOverdue)}, &cutoff)).
		Order("id ASC").Find(&subs).Error
	return subs, translate(err)
}

// ActiveWithPaidRenewal returns active subscriptions whose period ended before now
// and whose next period's invoice is already paid.
func (t *Tx) ActiveWithPaidRenewal(now time.Time) ([]models.Subscription, error) {
	var subs []models.Subscription
	renewal := t.db.Session(&gorm.Session{NewDB: true}).Model(&models.Invoice{}).Select("1").
		Where("invoices.subscription_id = subscriptions.id AND invoices.status = ? AND invoices.period_start = subscriptions.current_period_end",
			models.InvoicePaid)
	err := t.db.Where("status = ? AND current_period_end < ?", models.SubscriptionActive, now).
		Where("EXISTS (?)", renewal).
		Order("id ASC").Find(&subs).Error
	return subs, translate(err)
}

func (t *Tx) unpaidInvoices(statuses []string, dueBefore *time.Time) *gorm.DB {
	q := t.db.Session(&gorm.Session{NewDB: true}).Model(&models.Invoice{}).Select("1").
		Where("invoices.subscription_id = subscriptions.id AND invoices.status IN ?", statuses)
	if dueBefore != nil {
		q = q.Where("invoices.due_date < ?", *dueBefore)
	}
	return q
}
