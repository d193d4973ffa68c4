package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/config"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/events"
	"github.com/spec-kit/ticket-sla/internal/notify"
	"github.com/spec-kit/ticket-sla/internal/observability"
	"github.com/spec-kit/ticket-sla/internal/repository/memstore"
	"github.com/spec-kit/ticket-sla/internal/service"
	"github.com/spec-kit/ticket-sla/internal/workflow"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// clockCache is a dedup cache that expires keys against a fake clock.
type clockCache struct {
	mu    sync.Mutex
	clock *fakeClock
	keys  map[string]time.Time
}

func (c *clockCache) ContainsKey(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	exp, ok := c.keys[key]
	return ok && c.clock.Now().Before(exp), nil
}

func (c *clockCache) Put(_ context.Context, key string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys[key] = c.clock.Now().Add(ttl)
	return nil
}

type recordingPush struct {
	mu      sync.Mutex
	failFor map[string]bool
	sent    []domain.Notification
}

func (p *recordingPush) Send(_ context.Context, n domain.Notification) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failFor[n.RecipientID] {
		return errors.New("socket closed")
	}
	p.sent = append(p.sent, n)
	return nil
}

func (p *recordingPush) recipients() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, n := range p.sent {
		out = append(out, n.RecipientID)
	}
	return out
}

type recordingEmail struct {
	mu   sync.Mutex
	sent []domain.EmailMessage
}

func (e *recordingEmail) SendEmail(_ context.Context, msg domain.EmailMessage) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sent = append(e.sent, msg)
	return nil
}

type env struct {
	store     *memstore.Store
	clock     *fakeClock
	graph     *workflow.Graph
	ledger    *service.LedgerService
	lifecycle *service.LifecycleService
	push      *recordingPush
	email     *recordingEmail
	metrics   *observability.Metrics
	warning   *SLAWarningJob
	violation *SLAViolationJob
	teamID    string
}

func hours(h int) *int { return &h }

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}

	wfs := service.NewWorkflowService(service.WorkflowDependencies{WorkflowRepo: store.Workflows()})
	ledger := service.NewLedgerService(service.LedgerDependencies{HistoryRepo: store.History(), Graphs: wfs, Now: clock.Now})
	lifecycle := service.NewLifecycleService(service.LifecycleDependencies{
		TicketRepo:  store.Tickets(),
		MessageRepo: store.Messages(),
		TeamRepo:    store.Teams(),
		StaffRepo:   store.Staff(),
		Graphs:      wfs,
		Ledger:      ledger,
	})

	_, g, err := wfs.CreateWorkflow(ctx, domain.WorkflowDefinition{
		Name: "Support",
		States: []domain.StateDefinition{
			{Name: "Open", Initial: true},
			{Name: "InProgress"},
			{Name: "Closed", Final: true},
		},
		Transitions: []domain.TransitionDefinition{
			{From: "Open", To: "InProgress", SLAHours: hours(4)},
			{From: "InProgress", To: "Closed", SLAHours: hours(2)},
		},
	})
	require.NoError(t, err)

	team := &domain.Team{ID: "team-1", Name: "Billing", IsActive: true}
	require.NoError(t, store.Teams().Create(ctx, team))
	for _, m := range []domain.StaffMember{
		{ID: "agent-1", Name: "Ada", Email: "ada@example.com", Role: domain.StaffRoleAgent, TeamID: &team.ID, Active: true},
		{ID: "manager-1", Name: "Max", Email: "max@example.com", Role: domain.StaffRoleManager, TeamID: &team.ID, Active: true},
	} {
		m := m
		require.NoError(t, store.Staff().Create(ctx, &m))
	}

	push, email := &recordingPush{failFor: map[string]bool{}}, &recordingEmail{}
	metrics := observability.NewMetrics()
	deps := MonitorDependencies{
		Ledger:   ledger,
		Tickets:  store.Tickets(),
		Staff:    store.Staff(),
		Cache:    &clockCache{clock: clock, keys: map[string]time.Time{}},
		Notifier: notify.NewDispatcher(push, email, zap.NewNop(), metrics),
		Config: config.MonitorConfig{
			WarningLead:       30 * time.Minute,
			DedupBucket:       time.Hour,
			WarningDedupTTL:   time.Hour,
			ViolationDedupTTL: time.Hour,
		},
		EmailFrom: "sla@example.com",
		Metrics:   metrics,
	}
	return &env{
		store:     store,
		clock:     clock,
		graph:     g,
		ledger:    ledger,
		lifecycle: lifecycle,
		push:      push,
		email:     email,
		metrics:   metrics,
		warning:   NewSLAWarningJob(deps),
		violation: NewSLAViolationJob(deps),
		teamID:    team.ID,
	}
}

func (e *env) openTicket(t *testing.T, assignee, team *string) *domain.Ticket {
	t.Helper()
	ticket, _, err := e.lifecycle.OpenTicket(context.Background(), events.Actor{Type: domain.SubjectTypeStaff}, service.OpenTicketInput{
		WorkflowID: e.graph.WorkflowID(),
		Title:      "Invoice missing",
		AssigneeID: assignee,
		TeamID:     team,
	})
	require.NoError(t, err)
	return ticket
}

func (e *env) state(t *testing.T, name string) string {
	t.Helper()
	st, ok := e.graph.StateByName(name)
	require.True(t, ok)
	return st.ID
}

func strPtr(s string) *string { return &s }

func TestWarningJob_NotifiesAssigneeOnceBeforeDeadline(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.openTicket(t, strPtr("agent-1"), &e.teamID)

	e.clock.Advance(time.Hour)
	_, _, err := e.lifecycle.Transition(ctx, events.Actor{Type: domain.SubjectTypeStaff}, ticket.ID, e.state(t, "InProgress"))
	require.NoError(t, err)

	e.clock.Advance(time.Hour + 45*time.Minute)
	report, err := e.warning.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 1, report.Notified)
	assert.Equal(t, []string{"agent-1"}, e.push.recipients())
	assert.Empty(t, e.email.sent)
	assert.Equal(t, domain.NotificationSLAWarning, e.push.sent[0].Type)

	report, err = e.warning.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Suppressed)
	assert.Len(t, e.push.sent, 1)
}

func TestWarningJob_WindowAcrossBucketBoundaryWarnsOnce(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.openTicket(t, strPtr("agent-1"), &e.teamID)

	// due 13:00; runs at 12:50, 12:55 and 13:00 with hourly buckets
	e.clock.Advance(3*time.Hour + 50*time.Minute)
	report, err := e.warning.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)

	e.clock.Advance(5 * time.Minute)
	report, err = e.warning.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Suppressed)

	e.clock.Advance(5 * time.Minute)
	report, err = e.warning.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Notified)
	assert.Equal(t, 1, report.Suppressed)
	assert.Len(t, e.push.sent, 1)
}

func TestWarningJob_NewEntryIsWarnedAgain(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.openTicket(t, strPtr("agent-1"), &e.teamID)

	e.clock.Advance(3*time.Hour + 45*time.Minute)
	_, err := e.warning.Run(ctx)
	require.NoError(t, err)
	require.Len(t, e.push.sent, 1)

	_, _, err = e.lifecycle.Transition(ctx, events.Actor{Type: domain.SubjectTypeStaff}, ticket.ID, e.state(t, "InProgress"))
	require.NoError(t, err)
	e.clock.Advance(time.Hour + 40*time.Minute)
	report, err := e.warning.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified)
	require.Len(t, e.push.sent, 2)
	assert.NotEqual(t, e.push.sent[0].EntryID, e.push.sent[1].EntryID)
}

func TestWarningJob_FallsBackToManagers(t *testing.T) {
	e := newEnv(t)
	e.openTicket(t, nil, &e.teamID)

	e.clock.Advance(3*time.Hour + 45*time.Minute)
	_, err := e.warning.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"manager-1"}, e.push.recipients())
}

func TestViolationJob_DedupWithinBucket(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.openTicket(t, strPtr("agent-1"), &e.teamID)

	e.clock.Advance(5 * time.Hour)
	report, err := e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, 2, report.Notified)
	assert.ElementsMatch(t, []string{"agent-1", "manager-1"}, e.push.recipients())
	require.Len(t, e.email.sent, 2)
	assert.Equal(t, notify.BreachEmailTemplate, e.email.sent[0].Template)
	assert.Equal(t, "sla@example.com", e.email.sent[0].From)
	assert.Equal(t, ticket.ExternalKey, e.email.sent[0].Variables["ticket_key"])

	report, err = e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Scanned)
	assert.Equal(t, 0, report.Escalated)
	assert.Equal(t, 2, report.Suppressed)
	assert.Len(t, e.push.sent, 2)

	e.clock.Advance(time.Hour)
	report, err = e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Notified)
	assert.Len(t, e.push.sent, 4)

	history, err := e.ledger.History(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionStatusEscalated, history[0].Status)
}

func TestViolationJob_NoAssigneeNotifiesManagerAndEscalates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.openTicket(t, nil, &e.teamID)

	e.clock.Advance(5 * time.Hour)
	report, err := e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)
	assert.Equal(t, []string{"manager-1"}, e.push.recipients())
	assert.Len(t, e.email.sent, 1)
	assert.Equal(t, 1.0, e.metrics.EscalationCount(true))
}

func TestViolationJob_NobodyToNotifyStillEscalates(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.openTicket(t, nil, nil)

	e.clock.Advance(5 * time.Hour)
	report, err := e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Escalated)
	assert.Zero(t, report.Failed)
	assert.Empty(t, e.push.sent)

	history, err := e.ledger.History(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransitionStatusEscalated, history[0].Status)
}

func TestViolationJob_FailedRecipientDoesNotStopScan(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.violation.notifier = notify.NewDispatcher(e.push, nil, zap.NewNop(), e.metrics)
	e.push.failFor["agent-1"] = true
	e.openTicket(t, strPtr("agent-1"), &e.teamID)
	e.openTicket(t, nil, &e.teamID)

	e.clock.Advance(5 * time.Hour)
	report, err := e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Escalated)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Notified)
	assert.Equal(t, []string{"manager-1", "manager-1"}, e.push.recipients())

	delete(e.push.failFor, "agent-1")
	report, err = e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Notified, "the failed recipient is retried")
	assert.Equal(t, 2, report.Suppressed)
}

func TestViolationJob_IgnoresCompletedTickets(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	ticket := e.openTicket(t, strPtr("agent-1"), &e.teamID)
	actor := events.Actor{Type: domain.SubjectTypeStaff}
	_, _, err := e.lifecycle.Transition(ctx, actor, ticket.ID, e.state(t, "InProgress"))
	require.NoError(t, err)
	_, _, err = e.lifecycle.Transition(ctx, actor, ticket.ID, e.state(t, "Closed"))
	require.NoError(t, err)

	e.clock.Advance(10 * time.Hour)
	report, err := e.violation.Run(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
}

func TestMonitor_SkipsOverlappingRun(t *testing.T) {
	e := newEnv(t)
	e.violation.running.Store(true)

	report, err := e.violation.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Skipped)
}

func TestPool_BoundsConcurrency(t *testing.T) {
	pool := NewPool(2, zap.NewNop())
	var active, peak atomic.Int32
	for i := 0; i < 10; i++ {
		pool.Go(context.Background(), "task", func(context.Context) error {
			n := active.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			active.Add(-1)
			return nil
		})
	}
	pool.Wait()
	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Positive(t, peak.Load())
}

func TestPool_OutlivesSubmitterContext(t *testing.T) {
	pool := NewPool(1, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	var ran atomic.Bool
	pool.Go(ctx, "task", func(taskCtx context.Context) error {
		cancel()
		ran.Store(taskCtx.Err() == nil)
		return nil
	})
	pool.Wait()
	assert.True(t, ran.Load())
}

func TestPool_ShutdownCancelsTasks(t *testing.T) {
	pool := NewPool(1, zap.NewNop())
	started := make(chan struct{})
	pool.Go(context.Background(), "blocking", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestScheduler_RejectsBadSpec(t *testing.T) {
	e := newEnv(t)
	s := NewScheduler(NewPool(1, nil), nil)
	require.Error(t, s.Add("every now and then", e.warning))
	require.NoError(t, s.Add("@every 15m", e.warning))
	s.Start()
	s.Stop()
}

type recordingEvaluator struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingEvaluator) EvaluateConversationHealth(_ context.Context, ticketID, message string, isCustomer bool) (*domain.ConversationHealthRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, ticketID+":"+message)
	return &domain.ConversationHealthRecord{TicketID: ticketID}, nil
}

func TestHealthWorker_ScoresPublishedMessages(t *testing.T) {
	dispatcher := events.NewInMemoryDispatcher(nil)
	pool := NewPool(2, nil)
	evaluator := &recordingEvaluator{}
	StartHealthWorker(dispatcher, pool, evaluator, nil)

	require.NoError(t, dispatcher.Publish(context.Background(), events.Event{
		Type:     events.EventTicketMessageAdded,
		TicketID: "t1",
		Payload:  events.TicketMessageAddedPayload{Body: "still broken", IsCustomerResponse: true},
	}))
	pool.Wait()
	assert.Equal(t, []string{"t1:still broken"}, evaluator.calls)
}
