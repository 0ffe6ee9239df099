package billing

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"saascore/access"
	"saascore/ledger"
	"saascore/models"
	"saascore/notify"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var slugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

const maxSlugLength = 64

type ProvisionInput struct {
	Name            string
	Slug            string
	Description     string
	BillingInterval models.BillingInterval
}

type UpdateOrganizationInput struct {
	Name        *string
	Description *string
}

// ProvisionOrganization creates an organization, makes the caller its OWNER and
// starts a TRIALING subscription, all in one unit of work. No invoice is issued
// at signup.
func (e *Engine) ProvisionOrganization(ctx context.Context, p access.Principal, in ProvisionInput) (org *models.Organization, err error) {
	ctx, done := e.op(ctx, "provision_organization", principalAttrs(p))
	defer done(&err)

	if p.UserID == 0 {
		return nil, forbidden()
	}
	name := strings.TrimSpace(in.Name)
	slug := strings.ToLower(strings.TrimSpace(in.Slug))
	interval := in.BillingInterval
	if interval == "" {
		interval = models.IntervalMonthly
	}
	switch {
	case name == "":
		return nil, invalid("organization name is required")
	case slug == "" || len(slug) > maxSlugLength || !slugPattern.MatchString(slug):
		return nil, invalid("slug must be 1-%d characters of lowercase letters, digits and hyphens", maxSlugLength)
	case !interval.Valid():
		return nil, invalid("billing interval must be monthly or yearly")
	}

	now := e.now()
	trialEnd := now.AddDate(0, 0, e.cfg.TrialDays)
	err = e.store.RunAtomic(ctx, func(tx *ledger.Tx) error {
		taken, err := tx.SlugTaken(slug)
		if err != nil {
			return classify(err, "organization")
		}
		if taken {
			return conflict("organization slug %q is already taken", slug)
		}

		org = &models.Organization{Name: name, Slug: slug, Description: strings.TrimSpace(in.Description), CreatedByID: p.UserID}
		if err := tx.CreateOrganization(org); err != nil {
			return classify(err, "organization")
		}
		owner := models.Membership{UserID: p.UserID, OrganizationID: org.ID, Role: models.RoleOwner}
		if err := tx.CreateMembership(&owner); err != nil {
			return classify(err, "membership")
		}
		sub := &models.Subscription{
			OrganizationID:  org.ID,
			Status:          models.SubscriptionTrialing,
			PlanName:        e.cfg.PlanName,
			Amount:          e.cfg.price(interval),
			Currency:        e.cfg.Currency,
			BillingInterval: interval,
			TrialEndsAt:     &trialEnd,
			AutoRenewal:     true,
		}
		if err := tx.CreateSubscription(sub); err != nil {
			return classify(err, "subscription")
		}
		org.Memberships = []models.Membership{owner}
		org.Subscription = sub
		return nil
	})
	if err != nil {
		return nil, classify(err, "organization")
	}

	e.metrics.Transition("subscription", string(models.SubscriptionTrialing))
	e.emit(ctx, subscriptionEvent(notify.SubscriptionCreated, org.Subscription, now))
	e.logger.Info("organization provisioned", zap.Uint("org_id", org.ID), zap.String("slug", org.Slug), zap.Uint("owner_id", p.UserID))
	return org, nil
}

// ListOrganizations returns the caller's memberships with organization and subscription.
func (e *Engine) ListOrganizations(ctx context.Context, p access.Principal) (ms []models.Membership, err error) {
	ctx, done := e.op(ctx, "list_organizations", principalAttrs(p))
	defer done(&err)

	ms, err = e.store.Read(ctx).OrganizationsForUser(p.UserID)
	if err != nil {
		return nil, classify(err, "organizations")
	}
	return ms, nil
}

// OrganizationBySlug returns the organization to its members. Non-members get
// NotFound so slugs of other tenants stay hidden.
func (e *Engine) OrganizationBySlug(ctx context.Context, p access.Principal, slug string) (org *models.Organization, err error) {
	ctx, done := e.op(ctx, "organization_by_slug", principalAttrs(p), attribute.String("billing.slug", slug))
	defer done(&err)

	org, err = e.store.Read(ctx).OrganizationBySlug(strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, classify(err, "organization")
	}
	if _, err := e.guard.Authorize(ctx, p, org.ID); err != nil {
		if errors.Is(err, access.ErrDenied) {
			return nil, notFound("organization")
		}
		return nil, classify(err, "organization")
	}
	return org, nil
}

// UpdateOrganization changes name or description. Only owners and admins may.
func (e *Engine) UpdateOrganization(ctx context.Context, p access.Principal, orgID uint, in UpdateOrganizationInput) (org *models.Organization, err error) {
	ctx, done := e.op(ctx, "update_organization", principalAttrs(p), attribute.Int64("billing.org_id", int64(orgID)))
	defer done(&err)

	if _, err := e.guard.RequireRole(ctx, p, orgID, models.RoleOwner, models.RoleAdmin); err != nil {
		return nil, classify(err, "organization")
	}
	fields := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, invalid("organization name must not be empty")
		}
		fields["name"] = name
	}
	if in.Description != nil {
		fields["description"] = strings.TrimSpace(*in.Description)
	}
	if len(fields) == 0 {
		return nil, invalid("nothing to update")
	}

	store := e.store.Read(ctx)
	if err := store.UpdateOrganization(orgID, fields); err != nil && !errors.Is(err, ledger.ErrStale) {
		return nil, classify(err, "organization")
	}
	org, err = store.OrganizationByID(orgID)
	if err != nil {
		return nil, classify(err, "organization")
	}
	return org, nil
}
