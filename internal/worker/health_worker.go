package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/events"
)

// HealthEvaluator folds a message into a ticket's conversation health.
type HealthEvaluator interface {
	EvaluateConversationHealth(ctx context.Context, ticketID, message string, isCustomerResponse bool) (*domain.ConversationHealthRecord, error)
}

// StartHealthWorker scores every new ticket message on the pool. Publishers return immediately.
func StartHealthWorker(dispatcher events.Dispatcher, pool *Pool, scorer HealthEvaluator, logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if scorer == nil {
		logger.Warn("conversation health scoring disabled")
		return
	}
	dispatcher.Subscribe(events.EventTicketMessageAdded, func(ctx context.Context, event events.Event) error {
		payload, ok := event.Payload.(events.TicketMessageAddedPayload)
		if !ok {
			return fmt.Errorf("unexpected payload %T for %s", event.Payload, event.Type)
		}
		ticketID := event.TicketID
		pool.Go(ctx, "conversation_health", func(ctx context.Context) error {
			_, err := scorer.EvaluateConversationHealth(ctx, ticketID, payload.Body, payload.IsCustomerResponse)
			return err
		})
		return nil
	})
}
