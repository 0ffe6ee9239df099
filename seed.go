package main

import (
	"context"
	"errors"
	"fmt"

	"saascore/access"
	"saascore/billing"
	"saascore/ledger"
	"saascore/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const (
	demoEmail    = "demo@example.com"
	demoPassword = "demo12345"
	demoSlug     = "demo-corp"
)

// seed creates the demo user, Demo Corp on a trial and the invoice for its
// first paid period. Running it again changes nothing.
func seed(ctx context.Context, store *ledger.Store, guard *access.Guard, engine *billing.Engine, logger *zap.Logger) error {
	tx := store.Read(ctx)
	user, err := tx.UserByEmail(demoEmail)
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		hash, err := bcrypt.GenerateFromPassword([]byte(demoPassword), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash demo password: %w", err)
		}
		user = &models.User{Name: "Demo User", Email: demoEmail, PasswordHash: string(hash)}
		if err := tx.CreateUser(user); err != nil {
			return fmt.Errorf("create demo user: %w", err)
		}
		logger.Info("created demo user", zap.String("email", demoEmail))
	case err != nil:
		return fmt.Errorf("load demo user: %w", err)
	}

	p := guard.Principal(user)
	org, err := engine.OrganizationBySlug(ctx, p, demoSlug)
	if errors.Is(err, billing.ErrNotFound) {
		org, err = engine.ProvisionOrganization(ctx, p, billing.ProvisionInput{
			Name:        "Demo Corp",
			Slug:        demoSlug,
			Description: "A demonstration organization for testing purposes",
		})
		if err == nil {
			logger.Info("created demo organization", zap.String("slug", demoSlug))
		}
	}
	if err != nil {
		return fmt.Errorf("demo organization: %w", err)
	}

	sub := org.Subscription
	if sub == nil || sub.TrialEndsAt == nil {
		return nil
	}
	inv, created, err := engine.IssueInvoice(ctx, sub.ID, *sub.TrialEndsAt)
	if errors.Is(err, billing.ErrConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("demo invoice: %w", err)
	}
	if created {
		logger.Info("created demo invoice", zap.String("invoice", inv.Number), zap.Time("due_date", inv.DueDate))
	}
	return nil
}
