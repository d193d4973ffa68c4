package workflow

import (
	"context"
	"time"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// TightestTransition returns the outgoing transition of sourceStateID with the smallest configured
// SLA duration. Transitions without an SLA are ignored; ties go to the lowest transition id.
func TightestTransition(g *Graph, sourceStateID string) (domain.WorkflowTransition, bool) {
	var (
		best  domain.WorkflowTransition
		found bool
	)
	for _, tr := range g.Outgoing(sourceStateID) {
		d, ok := tr.SLADuration()
		if !ok {
			continue
		}
		if !found {
			best, found = tr, true
			continue
		}
		bestDur, _ := best.SLADuration()
		if d < bestDur || (d == bestDur && tr.ID < best.ID) {
			best = tr
		}
	}
	return best, found
}

// EarliestDueDate returns now plus the tightest SLA leaving sourceStateID, or false when no
// outgoing transition carries an SLA.
func EarliestDueDate(g *Graph, sourceStateID string, now time.Time) (time.Time, bool) {
	tr, ok := TightestTransition(g, sourceStateID)
	if !ok {
		return time.Time{}, false
	}
	d, _ := tr.SLADuration()
	return now.Add(d), true
}

// GraphSource loads workflow graphs by id.
type GraphSource interface {
	Graph(ctx context.Context, workflowID string) (*Graph, error)
}

// Clock computes SLA due dates against graphs loaded from a GraphSource.
type Clock struct {
	graphs GraphSource
}

// NewClock builds a Clock.
func NewClock(graphs GraphSource) *Clock {
	return &Clock{graphs: graphs}
}

// EarliestDueDate resolves the graph of workflowID and returns the due date for leaving
// sourceStateID, or nil when no SLA applies.
func (c *Clock) EarliestDueDate(ctx context.Context, workflowID, sourceStateID string, now time.Time) (*time.Time, error) {
	g, err := c.graphs.Graph(ctx, workflowID)
	if err != nil {
		return nil, err
	}
	due, ok := EarliestDueDate(g, sourceStateID, now)
	if !ok {
		return nil, nil
	}
	return &due, nil
}
