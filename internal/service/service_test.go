package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-sla/internal/classifier"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/events"
	"github.com/spec-kit/ticket-sla/internal/repository"
	"github.com/spec-kit/ticket-sla/internal/repository/memstore"
	"github.com/spec-kit/ticket-sla/internal/workflow"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
)

var staffActor = events.Actor{Type: domain.SubjectTypeStaff}

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

type fixture struct {
	store     *memstore.Store
	clock     *fakeClock
	workflows *WorkflowService
	ledger    *LedgerService
	lifecycle *LifecycleService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	clock := &fakeClock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	wfs := NewWorkflowService(WorkflowDependencies{WorkflowRepo: store.Workflows()})
	ledger := NewLedgerService(LedgerDependencies{HistoryRepo: store.History(), Graphs: wfs, Now: clock.Now})
	lifecycle := NewLifecycleService(LifecycleDependencies{
		TicketRepo:  store.Tickets(),
		MessageRepo: store.Messages(),
		TeamRepo:    store.Teams(),
		StaffRepo:   store.Staff(),
		Graphs:      wfs,
		Ledger:      ledger,
	})
	return &fixture{store: store, clock: clock, workflows: wfs, ledger: ledger, lifecycle: lifecycle}
}

func hours(h int) *int { return &h }

func supportDefinition() domain.WorkflowDefinition {
	return domain.WorkflowDefinition{
		Name: "Support",
		States: []domain.StateDefinition{
			{Name: "Open", Initial: true},
			{Name: "InProgress"},
			{Name: "Closed", Final: true},
		},
		Transitions: []domain.TransitionDefinition{
			{From: "Open", To: "InProgress", SLAHours: hours(4)},
			{From: "InProgress", To: "Closed", SLAHours: hours(2)},
			{From: "Closed", To: "Open"},
		},
	}
}

func stateID(t *testing.T, g *workflow.Graph, name string) string {
	t.Helper()
	st, ok := g.StateByName(name)
	require.True(t, ok, name)
	return st.ID
}

func TestWorkflowService_CreateAndClone(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)
	assert.Len(t, g.States(), 3)
	assert.Len(t, g.Transitions(), 3)

	clone, cg, err := f.workflows.CloneWorkflow(ctx, wf.ID, "")
	require.NoError(t, err)
	assert.NotEqual(t, wf.ID, clone.ID)
	assert.Equal(t, "Support (copy)", clone.Name)
	assert.Len(t, cg.Transitions(), 3)
	assert.NotEqual(t, stateID(t, g, "Open"), stateID(t, cg, "Open"))
}

func TestWorkflowService_CreateRejectsInvalidGraph(t *testing.T) {
	f := newFixture(t)
	def := supportDefinition()
	def.States[0].Initial = false

	_, _, err := f.workflows.CreateWorkflow(context.Background(), def)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestWorkflowService_SaveGraphKeepsStateIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)

	def := supportDefinition()
	def.States = append(def.States, domain.StateDefinition{Name: "Waiting"})
	def.Transitions = append(def.Transitions, domain.TransitionDefinition{From: "InProgress", To: "Waiting", SLAHours: hours(1)})

	saved, err := f.workflows.SaveGraph(ctx, wf.ID, def)
	require.NoError(t, err)
	assert.Equal(t, stateID(t, g, "InProgress"), stateID(t, saved, "InProgress"))
	assert.Len(t, saved.States(), 4)

	loaded, err := f.workflows.Graph(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.Transitions(), 4)
}

func TestWorkflowService_DeleteInUseWorkflowConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, _, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)
	_, _, err = f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "printer"})
	require.NoError(t, err)

	err = f.workflows.DeleteWorkflow(ctx, wf.ID)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConflict))

	err = f.workflows.DeleteWorkflow(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestWorkflowService_DeleteState(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)

	err = f.workflows.DeleteState(ctx, wf.ID, stateID(t, g, "Open"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))

	require.NoError(t, f.workflows.DeleteState(ctx, wf.ID, stateID(t, g, "InProgress")))
	loaded, err := f.workflows.Graph(ctx, wf.ID)
	require.NoError(t, err)
	assert.Len(t, loaded.States(), 2)
	assert.Len(t, loaded.Transitions(), 1)
}

func TestLedger_EndToEndDueDates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	t0 := f.clock.Now()
	wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)

	ticket, created, err := f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "VPN down"})
	require.NoError(t, err)
	require.NotNil(t, created.SLADueDate)
	assert.Equal(t, t0.Add(4*time.Hour), *created.SLADueDate)
	assert.Nil(t, created.FromStateID)

	f.clock.Advance(time.Hour)
	_, moved, err := f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "InProgress"))
	require.NoError(t, err)
	require.NotNil(t, moved.SLADueDate)
	assert.Equal(t, t0.Add(3*time.Hour), *moved.SLADueDate)

	history, err := f.lifecycle.History(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.TransitionStatusInProgress, history[0].Status)
	assert.Equal(t, t0.Add(4*time.Hour), *history[0].SLADueDate)

	f.clock.Advance(time.Hour + 45*time.Minute)
	due, err := f.ledger.GetViolatingTransitions(ctx, int64((30 * time.Minute).Seconds()))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, moved.ID, due[0].ID)

	violated, err := f.ledger.GetViolatedTransitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, violated)
}

func TestLedger_FinalStateCompletesTicket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)
	ticket, _, err := f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "refund"})
	require.NoError(t, err)

	_, _, err = f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "InProgress"))
	require.NoError(t, err)
	closed, entry, err := f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "Closed"))
	require.NoError(t, err)
	assert.True(t, closed.IsCompleted)
	require.NotNil(t, closed.CompletedAt)
	assert.Equal(t, domain.TransitionStatusCompleted, entry.Status)

	history, err := f.lifecycle.History(ctx, ticket.ID)
	require.NoError(t, err)
	for _, h := range history {
		assert.Equal(t, domain.TransitionStatusCompleted, h.Status, h.ID)
	}

	reopened, _, err := f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "Open"))
	require.NoError(t, err)
	assert.False(t, reopened.IsCompleted)
	assert.Nil(t, reopened.CompletedAt)
}

func TestLedger_EscalateIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, _, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)
	_, entry, err := f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "late"})
	require.NoError(t, err)

	changed, err := f.ledger.Escalate(ctx, entry.ID)
	require.NoError(t, err)
	assert.True(t, changed)
	changed, err = f.ledger.Escalate(ctx, entry.ID)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = f.ledger.Escalate(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestLedger_CompletedEntriesAreNotEscalated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)
	ticket, _, err := f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "closed early"})
	require.NoError(t, err)
	_, _, err = f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "InProgress"))
	require.NoError(t, err)
	_, _, err = f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "Closed"))
	require.NoError(t, err)

	before, err := f.lifecycle.History(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, before, 3)

	f.clock.Advance(24 * time.Hour)
	for _, h := range before {
		changed, err := f.ledger.Escalate(ctx, h.ID)
		require.NoError(t, err)
		assert.False(t, changed, h.ID)
	}

	after, err := f.lifecycle.History(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	byID := make(map[string]domain.TransitionHistoryEntry, len(before))
	for _, h := range before {
		byID[h.ID] = h
	}
	for _, h := range after {
		prev, ok := byID[h.ID]
		require.True(t, ok, h.ID)
		assert.Equal(t, domain.TransitionStatusCompleted, h.Status)
		assert.Equal(t, prev.SLADueDate, h.SLADueDate)
		assert.Equal(t, prev.FromStateID, h.FromStateID)
		assert.Equal(t, prev.ToStateID, h.ToStateID)
		assert.Equal(t, prev.TransitionedAt, h.TransitionedAt)
	}

	violated, err := f.ledger.GetViolatedTransitions(ctx)
	require.NoError(t, err)
	assert.Empty(t, violated)
}

func TestLedger_ViolatingRequiresPositiveLead(t *testing.T) {
	f := newFixture(t)
	_, err := f.ledger.GetViolatingTransitions(context.Background(), 0)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestLifecycle_RejectsIllegalTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)
	ticket, _, err := f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "typo"})
	require.NoError(t, err)

	_, _, err = f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "Closed"))
	require.Error(t, err)
	domainErr := apperrors.ToDomainError(err)
	assert.Equal(t, apperrors.CodeValidation, domainErr.Code)
	assert.Equal(t, []string{stateID(t, g, "InProgress")}, domainErr.Details["allowed"])

	_, _, err = f.lifecycle.Transition(ctx, staffActor, "missing", stateID(t, g, "Closed"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

type contendedHistory struct {
	repository.TransitionHistoryRepository
	mu       sync.Mutex
	failures int
	calls    int
}

func (h *contendedHistory) Append(ctx context.Context, entry *domain.TransitionHistoryEntry, move repository.TicketMove) error {
	h.mu.Lock()
	h.calls++
	fail := h.calls <= h.failures
	h.mu.Unlock()
	if fail {
		return repository.ErrStaleState
	}
	return h.TransitionHistoryRepository.Append(ctx, entry, move)
}

func TestLifecycle_TransitionRetriesStaleWrites(t *testing.T) {
	for name, tc := range map[string]struct {
		failures int
		wantErr  bool
	}{
		"recovers":  {failures: 2},
		"exhausted": {failures: maxTransitionAttempts, wantErr: true},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			wf, g, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
			require.NoError(t, err)
			ticket, _, err := f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "race"})
			require.NoError(t, err)

			contended := &contendedHistory{TransitionHistoryRepository: f.store.History(), failures: tc.failures}
			f.ledger.history = contended

			_, _, err = f.lifecycle.Transition(ctx, staffActor, ticket.ID, stateID(t, g, "InProgress"))
			if tc.wantErr {
				require.Error(t, err)
				assert.True(t, apperrors.HasCode(err, apperrors.CodeConcurrentModification))
				assert.Equal(t, maxTransitionAttempts, contended.calls)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.failures+1, contended.calls)
		})
	}
}

func TestLifecycle_AddMessagePublishesEvent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dispatcher := events.NewInMemoryDispatcher(nil)
	var got []events.Event
	dispatcher.Subscribe(events.EventTicketMessageAdded, func(_ context.Context, e events.Event) error {
		got = append(got, e)
		return nil
	})
	f.lifecycle.dispatcher = dispatcher

	wf, _, err := f.workflows.CreateWorkflow(ctx, supportDefinition())
	require.NoError(t, err)
	ticket, _, err := f.lifecycle.OpenTicket(ctx, staffActor, OpenTicketInput{WorkflowID: wf.ID, Title: "hello"})
	require.NoError(t, err)

	_, err = f.lifecycle.AddMessage(ctx, staffActor, ticket.ID, MessageInput{AuthorType: domain.AuthorTypeCustomer, Body: " why? "})
	require.NoError(t, err)
	require.Len(t, got, 1)
	payload, ok := got[0].Payload.(events.TicketMessageAddedPayload)
	require.True(t, ok)
	assert.True(t, payload.IsCustomerResponse)
	assert.Equal(t, "why?", payload.Body)

	_, err = f.lifecycle.AddMessage(ctx, staffActor, ticket.ID, MessageInput{AuthorType: "BOT", Body: "x"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

type scriptedClassifier struct {
	mu      sync.Mutex
	answers map[string]string
	err     error
	prompts []string
}

func (c *scriptedClassifier) Classify(_ context.Context, prompt string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prompts = append(c.prompts, prompt)
	if c.err != nil {
		return "", c.err
	}
	for prefix, answer := range c.answers {
		if len(prompt) >= len(prefix) && prompt[:len(prefix)] == prefix {
			return answer, nil
		}
	}
	return "", errors.New("unexpected prompt")
}

func scorerAnswers(sentiment, question, resolved string) map[string]string {
	return map[string]string{
		classifier.SentimentPrompt(""):  sentiment,
		classifier.QuestionPrompt(""):   question,
		classifier.ResolutionPrompt(""): resolved,
		classifier.SummaryPrompt(""):    "Customer cannot log in",
	}
}

func TestWeightedClarity_DampsEarlyQuestions(t *testing.T) {
	assert.Equal(t, 0.5, WeightedClarity(0, 0))
	assert.InDelta(t, 0.4, WeightedClarity(1, 0), 1e-9)
	assert.InDelta(t, 0.0, WeightedClarity(5, 0), 1e-9)
	assert.InDelta(t, 1.0, WeightedClarity(6, 6), 1e-9)
}

func TestApplyMessage(t *testing.T) {
	rec := ApplyMessage(domain.ConversationHealthRecord{}, MessageClassification{Sentiment: 0.6, IsQuestion: true}, true)
	assert.Equal(t, 1, rec.TotalMessages)
	assert.Equal(t, 1, rec.TotalQuestions)
	assert.InDelta(t, 0.9, rec.CumulativeSentiment, 1e-9)
	assert.InDelta(t, 0.6*0.9+0.2*0.4, rec.ConversationHealth, 1e-9)

	rec = ApplyMessage(rec, MessageClassification{Sentiment: 0.2, IsQuestion: true, Resolved: true}, false)
	assert.Equal(t, 2, rec.TotalMessages)
	assert.Equal(t, 1, rec.TotalQuestions, "staff messages are not counted as questions")
	assert.Equal(t, 0, rec.ResolvedQuestions)
	assert.InDelta(t, 0.55, rec.CumulativeSentiment, 1e-9)

	rec = ApplyMessage(domain.ConversationHealthRecord{}, MessageClassification{Sentiment: 1}, true)
	assert.Equal(t, 1.0, rec.CumulativeSentiment)
}

func TestApplyMessage_StoredMeanStaysInRange(t *testing.T) {
	rec := ApplyMessage(domain.ConversationHealthRecord{}, MessageClassification{Sentiment: 0.8}, true)
	assert.Equal(t, 1.0, rec.CumulativeSentiment)

	rec = ApplyMessage(rec, MessageClassification{Sentiment: 0}, false)
	assert.InDelta(t, 0.5, rec.CumulativeSentiment, 1e-9)
	assert.InDelta(t, 0.6*0.5+0.2*0.5, rec.ConversationHealth, 1e-9)
}

func TestHealthScorer_Evaluate(t *testing.T) {
	store := memstore.New()
	cls := &scriptedClassifier{answers: scorerAnswers("0.4", "yes", "no")}
	scorer := NewHealthScorer(HealthScorerDependencies{HealthRepo: store.Health(), Classifier: cls})
	ctx := context.Background()

	rec, err := scorer.EvaluateConversationHealth(ctx, "t1", "<p>I can't <b>log in</b>?</p>", true)
	require.NoError(t, err)
	assert.Equal(t, "Customer cannot log in", rec.Summary)
	assert.Equal(t, 1, rec.TotalQuestions)
	assert.InDelta(t, 0.6*0.6+0.2*0.4, rec.ConversationHealth, 1e-9)
	assert.Contains(t, cls.prompts[0], "I can't log in?")

	cls.answers = scorerAnswers("0.9", "no", "no")
	rec, err = scorer.EvaluateConversationHealth(ctx, "t1", "Try resetting your password", false)
	require.NoError(t, err)
	assert.Equal(t, 2, rec.TotalMessages)
	assert.Equal(t, "Customer cannot log in", rec.Summary)

	stored, err := scorer.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, rec.ConversationHealth, stored.ConversationHealth)
}

func TestHealthScorer_ParseErrorLeavesRecordUntouched(t *testing.T) {
	store := memstore.New()
	cls := &scriptedClassifier{answers: scorerAnswers("0.7", "no", "no")}
	scorer := NewHealthScorer(HealthScorerDependencies{HealthRepo: store.Health(), Classifier: cls})
	ctx := context.Background()

	first, err := scorer.EvaluateConversationHealth(ctx, "t1", "thanks", true)
	require.NoError(t, err)

	cls.answers = scorerAnswers("quite happy", "no", "no")
	_, err = scorer.EvaluateConversationHealth(ctx, "t1", "great", true)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeClassificationParse))

	stored, err := scorer.Get(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, first.TotalMessages, stored.TotalMessages)
	assert.Equal(t, first.ConversationHealth, stored.ConversationHealth)
}

func TestHealthScorer_SummaryFallsBackToExcerpt(t *testing.T) {
	store := memstore.New()
	cls := &scriptedClassifier{answers: map[string]string{classifier.SentimentPrompt(""): "0.5"}}
	scorer := NewHealthScorer(HealthScorerDependencies{HealthRepo: store.Health(), Classifier: cls})

	rec, err := scorer.EvaluateConversationHealth(context.Background(), "t2", "Order #42 arrived damaged", false)
	require.NoError(t, err)
	assert.Equal(t, "Order #42 arrived damaged", rec.Summary)
}

func TestHealthScorer_SerializesPerTicket(t *testing.T) {
	store := memstore.New()
	cls := &scriptedClassifier{answers: scorerAnswers("0.5", "no", "no")}
	scorer := NewHealthScorer(HealthScorerDependencies{HealthRepo: store.Health(), Classifier: cls})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := scorer.EvaluateConversationHealth(ctx, "busy", "ok", false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := scorer.Get(ctx, "busy")
	require.NoError(t, err)
	assert.Equal(t, 20, rec.TotalMessages)
}
