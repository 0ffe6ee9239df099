package notify

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"saascore/metrics"
	"saascore/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDirectory struct {
	mu       sync.Mutex
	contacts []string
	logs     []models.EmailLog
}

func (d *fakeDirectory) BillingContacts(context.Context, uint) ([]string, error) {
	return d.contacts, nil
}

func (d *fakeDirectory) RecordEmail(_ context.Context, entry *models.EmailLog) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logs = append(d.logs, *entry)
	return nil
}

func (d *fakeDirectory) entries() []models.EmailLog {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]models.EmailLog(nil), d.logs...)
}

type flakyMailer struct {
	fail map[string]bool
	sent []string
}

func (m *flakyMailer) Send(_ context.Context, _, to string, _ Message) error {
	if m.fail[to] {
		return errors.New("smtp: mailbox unavailable")
	}
	m.sent = append(m.sent, to)
	return nil
}

func newTestQueue(t *testing.T) (*RedisQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisQueue(client, zap.NewNop()), mr
}

func TestDispatcherDeliversAsynchronously(t *testing.T) {
	var got []Event
	var mu sync.Mutex
	sink := SinkFunc(func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	})
	d := NewDispatcher(sink, zap.NewNop(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	d.Emit(ctx, Event{Kind: InvoicePaid, OrgID: 1}, Event{Kind: TransactionApproved, OrgID: 1})
	cancel()
	d.Wait()

	require.Len(t, got, 2)
	for _, ev := range got {
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.OccurredAt.IsZero())
	}
}

func TestDispatcherSurvivesFailingSinks(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	var calls atomic.Int32
	sink := SinkFunc(func(_ context.Context, ev Event) error {
		calls.Add(1)
		if ev.Kind == InvoicePaid {
			panic("sink exploded")
		}
		return errors.New("unreachable")
	})
	d := NewDispatcher(sink, zap.NewNop(), m)

	assert.NotPanics(t, func() {
		d.Emit(context.Background(), Event{Kind: InvoicePaid}, Event{Kind: TransactionApproved})
		d.Wait()
	})
	assert.EqualValues(t, 2, calls.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("invoice.paid", "panic")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsTotal.WithLabelValues("transaction.approved", "failed")))
}

func TestDispatcherTimesOutSlowSinks(t *testing.T) {
	sink := SinkFunc(func(ctx context.Context, _ Event) error {
		<-ctx.Done()
		return ctx.Err()
	})
	d := NewDispatcher(sink, zap.NewNop(), nil).WithTimeout(10 * time.Millisecond)

	d.Emit(context.Background(), Event{Kind: InvoicePaid})
	d.Wait()
}

func TestNilDispatcherDropsEvents(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Emit(context.Background(), Event{Kind: InvoicePaid})
		d.Wait()
	})
}

func TestFanoutJoinsErrors(t *testing.T) {
	boom := errors.New("boom")
	var reached bool
	f := Fanout{
		SinkFunc(func(context.Context, Event) error { return boom }),
		SinkFunc(func(context.Context, Event) error { reached = true; return nil }),
	}
	err := f.Notify(context.Background(), Event{Kind: InvoicePaid})
	assert.ErrorIs(t, err, boom)
	assert.True(t, reached)
}

func TestRender(t *testing.T) {
	msg, ok := Render("SaaS Core", Event{Kind: InvoicePending, InvoiceNumber: "INV-202610-0001", Amount: 2900, Currency: "USD"})
	require.True(t, ok)
	assert.Equal(t, "invoice_pending", msg.Template)
	assert.Equal(t, "Invoice INV-202610-0001 is ready", msg.Subject)
	assert.Contains(t, msg.Body, "29.00 USD")

	msg, ok = Render("SaaS Core", Event{Kind: TransactionRejected, Amount: 1500, Currency: "USD", Notes: "insufficient amount"})
	require.True(t, ok)
	assert.Equal(t, "payment_rejected", msg.Template)
	assert.Contains(t, msg.Body, "Reason: insufficient amount")

	_, ok = Render("SaaS Core", Event{Kind: SubscriptionActivated})
	assert.False(t, ok)
}

func TestDelivererRecordsEveryAttempt(t *testing.T) {
	dir := &fakeDirectory{contacts: []string{"owner@example.com", "admin@example.com"}}
	mailer := &flakyMailer{fail: map[string]bool{"admin@example.com": true}}
	d := NewDeliverer(dir, mailer, "billing@example.com", "SaaS Core", nil)

	failed, err := d.Deliver(context.Background(), Event{ID: "ev-1", Kind: SubscriptionCreated, OrgID: 1}, nil)
	assert.Error(t, err)
	assert.Equal(t, []string{"admin@example.com"}, failed)
	assert.Equal(t, []string{"owner@example.com"}, mailer.sent)

	logs := dir.entries()
	require.Len(t, logs, 2)
	assert.Equal(t, models.EmailSent, logs[0].Status)
	assert.Equal(t, "subscription_created", logs[0].Template)
	assert.Equal(t, models.EmailFailed, logs[1].Status)
	assert.Equal(t, "smtp: mailbox unavailable", logs[1].Error)
	assert.Equal(t, "ev-1", logs[1].EventID)
}

func TestDelivererSkipsSilentKinds(t *testing.T) {
	dir := &fakeDirectory{contacts: []string{"owner@example.com"}}
	d := NewDeliverer(dir, &flakyMailer{}, "billing@example.com", "SaaS Core", nil)

	_, err := d.Deliver(context.Background(), Event{Kind: InvoicePaid, OrgID: 1}, nil)
	require.NoError(t, err)
	assert.Empty(t, dir.entries())
}

func TestRedisQueueRoundTrip(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Notify(ctx, Event{Kind: InvoicePending, OrgID: 7, InvoiceNumber: "INV-202610-0001"}))
	items, err := mr.List(QueueEvents)
	require.NoError(t, err)
	require.Len(t, items, 1)

	job, err := q.Dequeue(ctx, time.Second)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, InvoicePending, job.Event.Kind)
	assert.EqualValues(t, 7, job.Event.OrgID)
	assert.NotEmpty(t, job.Event.ID)
	assert.Equal(t, 0, job.Attempt)
}

func TestRedisQueueSkipsGarbage(t *testing.T) {
	q, mr := newTestQueue(t)
	_, err := mr.Lpush(QueueEvents, "{not json")
	require.NoError(t, err)

	job, err := q.Dequeue(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestRetryMovesToDLQ(t *testing.T) {
	q, mr := newTestQueue(t)
	ctx := context.Background()
	job := &Job{Event: Event{ID: "ev-1", Kind: InvoicePending}}

	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(ctx, job))
		assert.Equal(t, i, job.Attempt)
	}
	require.NoError(t, q.Retry(ctx, job))

	dlq, err := mr.List(QueueDLQ)
	require.NoError(t, err)
	assert.Len(t, dlq, 1)
	pending, _ := mr.List(QueueEvents)
	assert.Len(t, pending, MaxRetries-1)
}

func TestWorkerProcessKeepsFailedRecipients(t *testing.T) {
	q, _ := newTestQueue(t)
	dir := &fakeDirectory{contacts: []string{"owner@example.com", "admin@example.com"}}
	mailer := &flakyMailer{fail: map[string]bool{"admin@example.com": true}}
	w := NewWorker(q, NewDeliverer(dir, mailer, "billing@example.com", "SaaS Core", nil), nil)

	job := &Job{Event: Event{ID: "ev-1", Kind: TransactionApproved, OrgID: 1}}
	assert.Error(t, w.Process(context.Background(), job))
	assert.Equal(t, []string{"admin@example.com"}, job.Recipients)

	mailer.fail = nil
	require.NoError(t, w.Process(context.Background(), job))
	assert.Equal(t, []string{"owner@example.com", "admin@example.com"}, mailer.sent)
}

func TestWorkerRunDrainsQueue(t *testing.T) {
	q, _ := newTestQueue(t)
	dir := &fakeDirectory{contacts: []string{"owner@example.com"}}
	w := NewWorker(q, NewDeliverer(dir, &flakyMailer{}, "billing@example.com", "SaaS Core", nil), nil)
	w.wait = 50 * time.Millisecond
	w.backoff = 0

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, q.Notify(ctx, Event{Kind: SubscriptionCreated, OrgID: 1}))

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(dir.entries()) == 1 }, 2*time.Second, 10*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
