package billing

import (
	"testing"
	"time"

	"saascore/access"
	"saascore/models"
	"saascore/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionOrganization(t *testing.T) {
	h := newHarness(t)

	org, err := h.engine.ProvisionOrganization(h.ctx, h.outsider, ProvisionInput{
		Name: " Globex ", Slug: "Globex-2", Description: "rockets", BillingInterval: models.IntervalYearly,
	})
	require.NoError(t, err)
	assert.Equal(t, "Globex", org.Name)
	assert.Equal(t, "globex-2", org.Slug)
	require.Len(t, org.Memberships, 1)
	assert.Equal(t, models.RoleOwner, org.Memberships[0].Role)

	sub := org.Subscription
	require.NotNil(t, sub)
	assert.Equal(t, models.SubscriptionTrialing, sub.Status)
	assert.EqualValues(t, 29000, sub.Amount)
	assert.Equal(t, models.IntervalYearly, sub.BillingInterval)
	assert.True(t, sub.TrialEndsAt.Equal(start.AddDate(0, 0, 14)))
	assert.Nil(t, sub.CurrentPeriodEnd)

	invs, err := h.engine.GetInvoices(h.ctx, h.outsider, org.ID)
	require.NoError(t, err)
	assert.Empty(t, invs)

	m, err := h.store.MembershipFor(h.ctx, h.outsider.UserID, org.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RoleOwner, m.Role)

	h.flush()
	assert.Equal(t, []notify.Kind{notify.SubscriptionCreated}, h.events.kinds())
}

func TestProvisionOrganizationRejects(t *testing.T) {
	h := newHarness(t)

	_, err := h.engine.ProvisionOrganization(h.ctx, h.outsider, ProvisionInput{Name: "Acme 2", Slug: "acme"})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Contains(t, err.Error(), "already taken")

	for _, in := range []ProvisionInput{
		{Name: "", Slug: "ok"},
		{Name: "Bad", Slug: "has space"},
		{Name: "Bad", Slug: "under_score"},
		{Name: "Bad", Slug: ""},
		{Name: "Bad", Slug: "fine", BillingInterval: "weekly"},
	} {
		_, err := h.engine.ProvisionOrganization(h.ctx, h.outsider, in)
		assert.ErrorIs(t, err, ErrInvalidInput, "input %+v", in)
	}

	_, err = h.engine.ProvisionOrganization(h.ctx, access.Principal{}, ProvisionInput{Name: "Anon", Slug: "anon"})
	assert.ErrorIs(t, err, ErrForbidden)

	ms, err := h.engine.ListOrganizations(h.ctx, h.outsider)
	require.NoError(t, err)
	assert.Empty(t, ms)
}

func TestGetSubscriptionIncludesInvoicesNewestFirst(t *testing.T) {
	h := newHarness(t)
	first := h.issue()
	sub := h.subscription()
	second, _, err := h.engine.IssueInvoice(h.ctx, sub.ID, sub.TrialEndsAt.AddDate(0, 1, 0))
	require.NoError(t, err)

	got, err := h.engine.GetSubscription(h.ctx, h.member, h.org.ID)
	require.NoError(t, err)
	require.Len(t, got.Invoices, 2)
	assert.Equal(t, second.ID, got.Invoices[0].ID)
	assert.Equal(t, first.ID, got.Invoices[1].ID)
}

func TestGetInvoicesIncludesTransactions(t *testing.T) {
	h := newHarness(t)
	inv := h.issue()
	h.submit(inv, 1000, "TX1")
	h.submit(inv, 1900, "TX2")

	invs, err := h.engine.GetInvoices(h.ctx, h.owner, h.org.ID)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	require.Len(t, invs[0].Transactions, 2)
	assert.Equal(t, "TX2", invs[0].Transactions[0].BankReference)

	one, err := h.engine.GetInvoice(h.ctx, h.member, inv.ID)
	require.NoError(t, err)
	assert.Len(t, one.Transactions, 2)
}

func TestNonMembersAreForbidden(t *testing.T) {
	h := newHarness(t)
	inv := h.issue()

	_, err := h.engine.GetSubscription(h.ctx, h.outsider, h.org.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.engine.GetInvoices(h.ctx, h.outsider, h.org.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.engine.GetInvoice(h.ctx, h.outsider, inv.ID)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.engine.CreateTransaction(h.ctx, h.outsider, CreateTransactionInput{InvoiceID: inv.ID, Amount: 2900, BankReference: "TX1"})
	assert.ErrorIs(t, err, ErrForbidden)

	// same answer for an organization that does not exist
	_, err = h.engine.GetSubscription(h.ctx, h.outsider, 424242)
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = h.engine.GetInvoices(h.ctx, h.outsider, 424242)
	assert.ErrorIs(t, err, ErrForbidden)

	// elevated authority is not membership
	_, err = h.engine.GetSubscription(h.ctx, h.operator, h.org.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	count, err := h.store.Read(h.ctx).CountByStatus(inv.ID, models.TransactionPending)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestOrganizationBySlugHidesFromNonMembers(t *testing.T) {
	h := newHarness(t)

	org, err := h.engine.OrganizationBySlug(h.ctx, h.member, "ACME")
	require.NoError(t, err)
	assert.Equal(t, h.org.ID, org.ID)
	require.NotNil(t, org.Subscription)
	assert.Len(t, org.Memberships, 2)

	_, err = h.engine.OrganizationBySlug(h.ctx, h.outsider, "acme")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.engine.OrganizationBySlug(h.ctx, h.outsider, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateOrganizationNeedsOwnerOrAdmin(t *testing.T) {
	h := newHarness(t)
	name := "Acme Corp"

	_, err := h.engine.UpdateOrganization(h.ctx, h.member, h.org.ID, UpdateOrganizationInput{Name: &name})
	assert.ErrorIs(t, err, ErrForbidden)

	org, err := h.engine.UpdateOrganization(h.ctx, h.owner, h.org.ID, UpdateOrganizationInput{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", org.Name)

	blank := " "
	_, err = h.engine.UpdateOrganization(h.ctx, h.owner, h.org.ID, UpdateOrganizationInput{Name: &blank})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = h.engine.UpdateOrganization(h.ctx, h.owner, h.org.ID, UpdateOrganizationInput{})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestListOrganizations(t *testing.T) {
	h := newHarness(t)
	h.clock.Set(start.Add(time.Hour))

	ms, err := h.engine.ListOrganizations(h.ctx, h.member)
	require.NoError(t, err)
	require.Len(t, ms, 1)
	assert.Equal(t, models.RoleMember, ms[0].Role)
	assert.Equal(t, "acme", ms[0].Organization.Slug)
}

func TestBankDetails(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, "12345678", h.engine.BankDetails().AccountNumber)
}
