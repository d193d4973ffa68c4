// Package memstore is an in-process implementation of the repository interfaces.
// It backs unit tests and local runs without a Postgres DSN.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/repository"
)

// Store holds every table in memory behind a single lock.
type Store struct {
	mu          sync.Mutex
	now         func() time.Time
	workflows   map[string]domain.Workflow
	states      map[string]domain.WorkflowState
	transitions map[string]domain.WorkflowTransition
	tickets     map[string]domain.Ticket
	history     map[string]domain.TransitionHistoryEntry
	messages    map[string][]domain.TicketMessage
	health      map[string]domain.ConversationHealthRecord
	staff       map[string]domain.StaffMember
	teams       map[string]domain.Team
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:         time.Now,
		workflows:   map[string]domain.Workflow{},
		states:      map[string]domain.WorkflowState{},
		transitions: map[string]domain.WorkflowTransition{},
		tickets:     map[string]domain.Ticket{},
		history:     map[string]domain.TransitionHistoryEntry{},
		messages:    map[string][]domain.TicketMessage{},
		health:      map[string]domain.ConversationHealthRecord{},
		staff:       map[string]domain.StaffMember{},
		teams:       map[string]domain.Team{},
	}
}

// Workflows returns the workflow repository view.
func (s *Store) Workflows() repository.WorkflowRepository { return workflowRepo{s} }

// Tickets returns the ticket repository view.
func (s *Store) Tickets() repository.TicketRepository { return ticketRepo{s} }

// History returns the transition ledger repository view.
func (s *Store) History() repository.TransitionHistoryRepository { return historyRepo{s} }

// Messages returns the ticket message repository view.
func (s *Store) Messages() repository.TicketMessageRepository { return messageRepo{s} }

// Health returns the conversation health repository view.
func (s *Store) Health() repository.ConversationHealthRepository { return healthRepo{s} }

// Staff returns the staff repository view.
func (s *Store) Staff() repository.StaffRepository { return staffRepo{s} }

// Teams returns the team repository view.
func (s *Store) Teams() repository.TeamRepository { return teamRepo{s} }

// SoftDeleteTicket marks a ticket deleted.
func (s *Store) SoftDeleteTicket(id string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tickets[id]; ok {
		t.DeletedAt = &at
		s.tickets[id] = t
	}
}

type workflowRepo struct{ s *Store }

func (r workflowRepo) Create(_ context.Context, wf *domain.Workflow, states []domain.WorkflowState, transitions []domain.WorkflowTransition) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	wf.CreatedAt, wf.UpdatedAt = now, now
	s.workflows[wf.ID] = *wf
	for _, st := range states {
		st.CreatedAt = now
		s.states[st.ID] = st
	}
	for _, tr := range transitions {
		tr.CreatedAt = now
		s.transitions[tr.ID] = tr
	}
	return nil
}

func (r workflowRepo) ReplaceGraph(_ context.Context, workflowID string, states []domain.WorkflowState, transitions []domain.WorkflowTransition) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	wf, ok := s.workflows[workflowID]
	if !ok {
		return repository.ErrNotFound
	}
	now := s.now()
	wf.UpdatedAt = now
	s.workflows[workflowID] = wf

	for id, tr := range s.transitions {
		if tr.WorkflowID == workflowID {
			delete(s.transitions, id)
		}
	}
	keep := make(map[string]struct{}, len(states))
	for _, st := range states {
		keep[st.ID] = struct{}{}
	}
	for id, st := range s.states {
		if _, ok := keep[id]; !ok && st.WorkflowID == workflowID {
			delete(s.states, id)
		}
	}
	for _, st := range states {
		if prev, ok := s.states[st.ID]; ok {
			st.CreatedAt = prev.CreatedAt
		} else {
			st.CreatedAt = now
		}
		s.states[st.ID] = st
	}
	for _, tr := range transitions {
		tr.CreatedAt = now
		s.transitions[tr.ID] = tr
	}
	return nil
}

func (r workflowRepo) GetByID(_ context.Context, id string) (*domain.Workflow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	wf, ok := r.s.workflows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &wf, nil
}

func (r workflowRepo) ListStates(_ context.Context, workflowID string) ([]domain.WorkflowState, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.WorkflowState
	for _, st := range r.s.states {
		if st.WorkflowID == workflowID {
			out = append(out, st)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r workflowRepo) ListTransitions(_ context.Context, workflowID string) ([]domain.WorkflowTransition, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.WorkflowTransition
	for _, tr := range r.s.transitions {
		if tr.WorkflowID == workflowID {
			out = append(out, tr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r workflowRepo) Delete(_ context.Context, id string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workflows[id]; !ok {
		return repository.ErrNotFound
	}
	for _, t := range s.tickets {
		if t.WorkflowID == id && t.DeletedAt == nil {
			return repository.ErrWorkflowInUse
		}
	}
	delete(s.workflows, id)
	for sid, st := range s.states {
		if st.WorkflowID == id {
			delete(s.states, sid)
		}
	}
	for tid, tr := range s.transitions {
		if tr.WorkflowID == id {
			delete(s.transitions, tid)
		}
	}
	return nil
}

func (r workflowRepo) DeleteState(_ context.Context, workflowID, stateID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[stateID]
	if !ok || st.WorkflowID != workflowID {
		return repository.ErrNotFound
	}
	delete(s.states, stateID)
	for id, tr := range s.transitions {
		if tr.SourceStateID == stateID || tr.TargetStateID == stateID {
			delete(s.transitions, id)
		}
	}
	return nil
}

func (r workflowRepo) DeleteTransition(_ context.Context, workflowID, transitionID string) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	tr, ok := s.transitions[transitionID]
	if !ok || tr.WorkflowID != workflowID {
		return repository.ErrNotFound
	}
	delete(s.transitions, transitionID)
	return nil
}

type ticketRepo struct{ s *Store }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	ticket.CreatedAt, ticket.UpdatedAt = now, now
	r.s.tickets[ticket.ID] = *ticket
	return nil
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tickets[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

type historyRepo struct{ s *Store }

func (r historyRepo) Append(_ context.Context, entry *domain.TransitionHistoryEntry, move repository.TicketMove) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tickets[entry.TicketID]
	if !ok || t.DeletedAt != nil {
		return repository.ErrNotFound
	}
	if !sameState(t.CurrentStateID, move.ExpectedStateID) {
		return repository.ErrStaleState
	}
	if move.Complete {
		for id, h := range s.history {
			if h.TicketID == entry.TicketID && h.Status != domain.TransitionStatusCompleted {
				h.Status = domain.TransitionStatusCompleted
				s.history[id] = h
			}
		}
	}
	entry.CreatedAt = s.now()
	s.history[entry.ID] = *entry

	to, entryID := entry.ToStateID, entry.ID
	t.CurrentStateID = &to
	t.CurrentEntryID = &entryID
	t.IsCompleted = move.Complete
	if move.Complete {
		if t.CompletedAt == nil {
			at := move.At
			t.CompletedAt = &at
		}
	} else {
		t.CompletedAt = nil
	}
	t.UpdatedAt = s.now()
	s.tickets[t.ID] = t
	return nil
}

func sameState(current, expected *string) bool {
	if current == nil || expected == nil {
		return current == nil && expected == nil
	}
	return *current == *expected
}

func (r historyRepo) GetByID(_ context.Context, id string) (*domain.TransitionHistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.history[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &h, nil
}

func (r historyRepo) Escalate(_ context.Context, id string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	h, ok := r.s.history[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if !h.Escalatable() {
		return false, nil
	}
	h.Status = domain.TransitionStatusEscalated
	r.s.history[id] = h
	return true, nil
}

func (r historyRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TransitionHistoryEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TransitionHistoryEntry
	for _, h := range r.s.history {
		if h.TicketID == ticketID {
			out = append(out, h)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TransitionedAt.Equal(out[j].TransitionedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TransitionedAt.Before(out[j].TransitionedAt)
	})
	return out, nil
}

func (r historyRepo) ListViolated(_ context.Context, now time.Time) ([]domain.TransitionHistoryEntry, error) {
	return r.current(func(h domain.TransitionHistoryEntry) bool {
		return h.SLADueDate.Before(now) && h.Status != domain.TransitionStatusCompleted
	}), nil
}

func (r historyRepo) ListDueBetween(_ context.Context, from, to time.Time) ([]domain.TransitionHistoryEntry, error) {
	return r.current(func(h domain.TransitionHistoryEntry) bool {
		return !h.SLADueDate.Before(from) && !h.SLADueDate.After(to) && h.Status == domain.TransitionStatusInProgress
	}), nil
}

// current selects the current entries of live tickets that carry a due date and match keep.
func (r historyRepo) current(keep func(domain.TransitionHistoryEntry) bool) []domain.TransitionHistoryEntry {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.TransitionHistoryEntry
	for _, t := range r.s.tickets {
		if t.DeletedAt != nil || t.IsCompleted || t.CurrentEntryID == nil {
			continue
		}
		h, ok := r.s.history[*t.CurrentEntryID]
		if !ok || h.SLADueDate == nil || !keep(h) {
			continue
		}
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SLADueDate.Before(*out[j].SLADueDate) })
	return out
}

type messageRepo struct{ s *Store }

func (r messageRepo) Create(_ context.Context, msg *domain.TicketMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	msg.CreatedAt = r.s.now()
	r.s.messages[msg.TicketID] = append(r.s.messages[msg.TicketID], *msg)
	return nil
}

func (r messageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return append([]domain.TicketMessage(nil), r.s.messages[ticketID]...), nil
}

type healthRepo struct{ s *Store }

func (r healthRepo) Get(_ context.Context, ticketID string) (*domain.ConversationHealthRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.health[ticketID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &rec, nil
}

func (r healthRepo) Upsert(_ context.Context, rec *domain.ConversationHealthRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	if prev, ok := r.s.health[rec.TicketID]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	r.s.health[rec.TicketID] = *rec
	return nil
}

type staffRepo struct{ s *Store }

func (r staffRepo) Create(_ context.Context, staff *domain.StaffMember) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	staff.CreatedAt, staff.UpdatedAt = now, now
	r.s.staff[staff.ID] = *staff
	return nil
}

func (r staffRepo) GetByID(_ context.Context, id string) (*domain.StaffMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	m, ok := r.s.staff[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &m, nil
}

func (r staffRepo) GetByEmail(_ context.Context, email string) (*domain.StaffMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, m := range r.s.staff {
		if m.Email == email {
			return &m, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r staffRepo) List(_ context.Context, filter repository.StaffFilter) ([]domain.StaffMember, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []domain.StaffMember
	for _, m := range r.s.staff {
		if filter.Role != nil && m.Role != *filter.Role {
			continue
		}
		if filter.TeamID != nil && (m.TeamID == nil || *m.TeamID != *filter.TeamID) {
			continue
		}
		if filter.Active != nil && m.Active != *filter.Active {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

type teamRepo struct{ s *Store }

func (r teamRepo) Create(_ context.Context, team *domain.Team) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	team.CreatedAt, team.UpdatedAt = now, now
	r.s.teams[team.ID] = *team
	return nil
}

func (r teamRepo) GetByID(_ context.Context, id string) (*domain.Team, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.teams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}
