package models

import (
	"time"

	"gorm.io/gorm"
)

type User struct {
	gorm.Model
	Email         string       `gorm:"uniqueIndex;not null" json:"email"`
	Name          string       `json:"name"`
	PasswordHash  string       `gorm:"not null" json:"-"`
	PlatformAdmin bool         `json:"platform_admin"`
	Memberships   []Membership `json:"memberships,omitempty"`
}

type Organization struct {
	gorm.Model
	Name         string        `gorm:"not null" json:"name"`
	Slug         string        `gorm:"uniqueIndex;not null" json:"slug"`
	Description  string        `json:"description"`
	CreatedByID  uint          `json:"created_by_id"`
	Memberships  []Membership  `json:"memberships,omitempty"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// Membership is unique per (user, organization).
type Membership struct {
	gorm.Model
	UserID         uint          `gorm:"not null;uniqueIndex:idx_membership_user_org" json:"user_id"`
	User           *User         `json:"user,omitempty"`
	OrganizationID uint          `gorm:"not null;uniqueIndex:idx_membership_user_org" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`
	Role           Role          `gorm:"type:varchar(16);not null" json:"role"`
}

// Subscription is 1:1 with its organization. Amount is in minor currency units.
type Subscription struct {
	gorm.Model
	OrganizationID     uint               `gorm:"uniqueIndex;not null" json:"organization_id"`
	Organization       *Organization      `json:"organization,omitempty"`
	Status             SubscriptionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	PlanName           string             `json:"plan_name"`
	Amount             int64              `gorm:"not null" json:"amount"`
	Currency           string             `gorm:"not null;default:'USD'" json:"currency"`
	BillingInterval    BillingInterval    `gorm:"type:varchar(16);not null;default:'monthly'" json:"billing_interval"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at"`
	CurrentPeriodStart *time.Time         `json:"current_period_start"`
	CurrentPeriodEnd   *time.Time         `json:"current_period_end"`
	AutoRenewal        bool               `json:"auto_renewal"`
	Invoices           []Invoice          `json:"invoices,omitempty"`
}

// Invoice bills one period of a subscription; (SubscriptionID, PeriodStart) is unique
// so a period can never be invoiced twice.
type Invoice struct {
	gorm.Model
	Number         string        `gorm:"uniqueIndex;not null" json:"number"`
	OrganizationID uint          `gorm:"not null;index" json:"organization_id"`
	Organization   *Organization `json:"organization,omitempty"`
	SubscriptionID uint          `gorm:"not null;uniqueIndex:idx_invoice_subscription_period" json:"subscription_id"`
	Subscription   *Subscription `json:"subscription,omitempty"`
	Status         InvoiceStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	Amount         int64         `gorm:"not null" json:"amount"`
	Currency       string        `gorm:"not null;default:'USD'" json:"currency"`
	Description    string        `json:"description"`
	PeriodStart    time.Time     `gorm:"not null;uniqueIndex:idx_invoice_subscription_period" json:"period_start"`
	PeriodEnd      time.Time     `gorm:"not null" json:"period_end"`
	DueDate        time.Time     `gorm:"not null;index" json:"due_date"`
	PaidAt         *time.Time    `json:"paid_at"`
	Transactions   []Transaction `json:"transactions,omitempty"`
}

// Transaction is a payer's claim of a manual bank transfer against an invoice.
// ApprovedBy records whoever adjudicated it, for approvals and rejections alike.
type Transaction struct {
	gorm.Model
	InvoiceID      uint              `gorm:"not null;index" json:"invoice_id"`
	Invoice        *Invoice          `json:"invoice,omitempty"`
	OrganizationID uint              `gorm:"not null;index" json:"organization_id"`
	Organization   *Organization     `json:"organization,omitempty"`
	SubmittedBy    uint              `json:"submitted_by"`
	Amount         int64             `gorm:"not null" json:"amount"`
	BankReference  string            `gorm:"not null" json:"bank_reference"`
	Notes          string            `json:"notes"`
	Status         TransactionStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	ApprovedBy     *uint             `json:"approved_by"`
	AdjudicatedAt  *time.Time        `json:"adjudicated_at"`
}

// InvoiceSequence hands out invoice numbers per calendar month.
type InvoiceSequence struct {
	ID        uint   `gorm:"primaryKey"`
	Period    string `gorm:"uniqueIndex;not null"` // YYYYMM
	LastValue int64  `gorm:"not null"`
	UpdatedAt time.Time
}

type EmailLog struct {
	gorm.Model
	To       string         `gorm:"not null" json:"to"`
	Subject  string         `json:"subject"`
	Template string         `gorm:"not null" json:"template"`
	Status   EmailLogStatus `gorm:"type:varchar(16);not null" json:"status"`
	Error    string         `json:"error,omitempty"`
	EventID  string         `gorm:"index" json:"event_id"`
}

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&User{},
		&Organization{},
		&Membership{},
		&Subscription{},
		&Invoice{},
		&Transaction{},
		&InvoiceSequence{},
		&EmailLog{},
	}
}
