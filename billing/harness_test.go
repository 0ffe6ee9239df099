package billing

import (
	"context"
	"sync"
	"testing"
	"time"

	"saascore/access"
	"saascore/config"
	"saascore/database/dbtest"
	"saascore/ledger"
	"saascore/metrics"
	"saascore/models"
	"saascore/notify"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testConfig = Config{
	TrialDays:       14,
	GracePeriodDays: 7,
	InvoiceLeadDays: 3,
	PlanName:        "Pro Plan",
	MonthlyPrice:    2900,
	YearlyPrice:     29000,
	Currency:        "USD",
	Bank:            config.BankDetails{AccountName: "SaaS Core Ltd", AccountNumber: "12345678"},
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Notify(_ context.Context, ev notify.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *recorder) kinds() []notify.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]notify.Kind, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Kind)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

type harness struct {
	t          *testing.T
	ctx        context.Context
	engine     *Engine
	store      *ledger.Store
	clock      *fakeClock
	events     *recorder
	dispatcher *notify.Dispatcher
	metrics    *metrics.Metrics

	owner    access.Principal
	member   access.Principal
	outsider access.Principal
	operator access.Principal
	org      *models.Organization
}

var start = time.Date(2026, 10, 1, 9, 30, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := ledger.New(dbtest.Open(t))
	guard := access.NewGuard(store, ledger.ErrNotFound, []string{"ops@example.com"})
	clock := &fakeClock{t: start}
	rec := &recorder{}
	m := metrics.New(prometheus.NewRegistry())
	d := notify.NewDispatcher(rec, zap.NewNop(), m)
	engine := NewEngine(store, guard, testConfig,
		WithClock(clock.Now), WithDispatcher(d), WithMetrics(m), WithLogger(zap.NewNop()))

	h := &harness{t: t, ctx: context.Background(), engine: engine, store: store, clock: clock, events: rec, dispatcher: d, metrics: m}
	h.owner = guard.Principal(h.user("owner@example.com"))
	h.member = guard.Principal(h.user("member@example.com"))
	h.outsider = guard.Principal(h.user("outsider@example.com"))
	h.operator = guard.Principal(h.user("ops@example.com"))
	require.True(t, h.operator.Elevated)

	org, err := engine.ProvisionOrganization(h.ctx, h.owner, ProvisionInput{Name: "Acme", Slug: "acme"})
	require.NoError(t, err)
	h.org = org
	require.NoError(t, store.Read(h.ctx).CreateMembership(&models.Membership{
		UserID: h.member.UserID, OrganizationID: org.ID, Role: models.RoleMember,
	}))
	h.flush()
	rec.reset()
	return h
}

func (h *harness) user(email string) *models.User {
	h.t.Helper()
	u := &models.User{Email: email, Name: email, PasswordHash: "hash"}
	require.NoError(h.t, h.store.Read(h.ctx).CreateUser(u))
	return u
}

// flush waits for every emitted event to reach the recorder.
func (h *harness) flush() {
	h.dispatcher.Wait()
}

func (h *harness) subscription() *models.Subscription {
	h.t.Helper()
	sub, err := h.store.Read(h.ctx).SubscriptionByOrg(h.org.ID, false)
	require.NoError(h.t, err)
	return sub
}

func (h *harness) invoice(id uint) *models.Invoice {
	h.t.Helper()
	inv, err := h.store.Read(h.ctx).InvoiceWithTransactions(id)
	require.NoError(h.t, err)
	return inv
}

func (h *harness) transaction(id uint) *models.Transaction {
	h.t.Helper()
	txn, err := h.store.Read(h.ctx).TransactionByID(id, false)
	require.NoError(h.t, err)
	return txn
}

// issue creates the first invoice, for the period starting at trial end.
func (h *harness) issue() *models.Invoice {
	h.t.Helper()
	sub := h.subscription()
	inv, created, err := h.engine.IssueInvoice(h.ctx, sub.ID, *sub.TrialEndsAt)
	require.NoError(h.t, err)
	require.True(h.t, created)
	return inv
}

func (h *harness) submit(inv *models.Invoice, amount int64, ref string) *models.Transaction {
	h.t.Helper()
	txn, err := h.engine.CreateTransaction(h.ctx, h.member, CreateTransactionInput{
		InvoiceID: inv.ID, Amount: amount, BankReference: ref,
	})
	require.NoError(h.t, err)
	return txn
}

// setSubscription forces subscription fields for lifecycle tests.
func (h *harness) setSubscription(fields map[string]interface{}) {
	h.t.Helper()
	sub := h.subscription()
	require.NoError(h.t, h.store.Read(h.ctx).TransitionSubscription(sub.ID, sub.Status, fields))
}
