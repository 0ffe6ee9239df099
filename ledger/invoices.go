package ledger

import (
	"fmt"
	"time"

	"saascore/models"

	"gorm.io/gorm"
)

func (t *Tx) CreateInvoice(inv *models.Invoice) error {
	return translate(t.db.Create(inv).Error)
}

func (t *Tx) InvoiceByID(id uint, lock bool) (*models.Invoice, error) {
	var inv models.Invoice
	if err := t.query(lock).First(&inv, id).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// InvoiceWithTransactions loads one invoice and its transactions, newest first.
func (t *Tx) InvoiceWithTransactions(id uint) (*models.Invoice, error) {
	var inv models.Invoice
	if err := t.db.Preload("Transactions", newestFirst).First(&inv, id).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// InvoicesByOrg lists the organization's invoices with their transactions, newest first.
func (t *Tx) InvoicesByOrg(orgID uint) ([]models.Invoice, error) {
	var invs []models.Invoice
	err := newestFirst(t.db.Preload("Transactions", newestFirst).Where("organization_id = ?", orgID)).
		Find(&invs).Error
	return invs, translate(err)
}

// InvoiceForPeriod finds the invoice already issued for a subscription period, if any.
func (t *Tx) InvoiceForPeriod(subscriptionID uint, periodStart time.Time) (*models.Invoice, error) {
	var inv models.Invoice
	err := t.db.Where("subscription_id = ? AND period_start = ?", subscriptionID, periodStart).First(&inv).Error
	if err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// MarkInvoicePaid settles a pending or overdue invoice. A paid invoice yields ErrStale.
func (t *Tx) MarkInvoicePaid(id uint, paidAt time.Time) error {
	return conditional(t.db.Model(&models.Invoice{}).
		Where("id = ? AND status IN ?", id, unpaid).
		Updates(map[string]interface{}{"status": models.InvoicePaid, "paid_at": paidAt}))
}

// MarkOverdue flags every pending invoice whose due date has passed.
func (t *Tx) MarkOverdue(now time.Time) (int64, error) {
	res := t.db.Model(&models.Invoice{}).
		Where("status = ? AND due_date < ?", models.InvoicePending, now).
		Update("status", models.InvoiceOverdue)
	return res.RowsAffected, translate(res.Error)
}

// NextInvoiceNumber allocates the next number in at's month, e.g. INV-202610-0007.
// Call it inside RunAtomic so the number is released if the invoice is not created.
func (t *Tx) NextInvoiceNumber(at time.Time) (string, error) {
	period := at.UTC().Format("200601")
	seq := models.InvoiceSequence{Period: period}
	if err := t.query(true).Where("period = ?", period).FirstOrCreate(&seq).Error; err != nil {
		return "", translate(err)
	}
	res := t.db.Model(&models.InvoiceSequence{}).Where("id = ?", seq.ID).
		Update("last_value", gorm.Expr("last_value + 1"))
	if err := conditional(res); err != nil {
		return "", err
	}
	if err := t.db.First(&seq, seq.ID).Error; err != nil {
		return "", translate(err)
	}
	return fmt.Sprintf("INV-%s-%04d", period, seq.LastValue), nil
}
