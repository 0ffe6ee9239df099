package ledger

import (
	"time"

	"saascore/models"
)

func (t *Tx) CreateTransaction(txn *models.Transaction) error {
	return translate(t.db.Create(txn).Error)
}

func (t *Tx) TransactionByID(id uint, lock bool) (*models.Transaction, error) {
	var txn models.Transaction
	if err := t.query(lock).First(&txn, id).Error; err != nil {
		return nil, translate(err)
	}
	return &txn, nil
}

// AdjudicateTransaction moves a pending transaction to status. Notes replace the
// stored notes only when non-empty. A transaction that is no longer pending
// yields ErrStale.
func (t *Tx) AdjudicateTransaction(id uint, status models.TransactionStatus, by uint, notes string, at time.Time) error {
	fields := map[string]interface{}{
		"status":         status,
		"approved_by":    by,
		"adjudicated_at": at,
	}
	if notes != "" {
		fields["notes"] = notes
	}
	return conditional(t.db.Model(&models.Transaction{}).
		Where("id = ? AND status = ?", id, models.TransactionPending).Updates(fields))
}

// PendingTransactions lists pending transactions of every tenant with their
// invoice and organization, newest first.
func (t *Tx) PendingTransactions() ([]models.Transaction, error) {
	var txns []models.Transaction
	err := newestFirst(t.db.Preload("Invoice.Organization").Preload("Organization").
		Where("status = ?", models.TransactionPending)).Find(&txns).Error
	return txns, translate(err)
}

// CountByStatus counts an invoice's transactions in status.
func (t *Tx) CountByStatus(invoiceID uint, status models.TransactionStatus) (int64, error) {
	var n int64
	err := t.db.Model(&models.Transaction{}).Where("invoice_id = ? AND status = ?", invoiceID, status).Count(&n).Error
	return n, translate(err)
}
