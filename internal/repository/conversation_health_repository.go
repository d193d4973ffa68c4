package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// ConversationHealthRepository stores one health record per ticket.
type ConversationHealthRepository interface {
	Get(ctx context.Context, ticketID string) (*domain.ConversationHealthRecord, error)
	Upsert(ctx context.Context, record *domain.ConversationHealthRecord) error
}

type conversationHealthRepository struct {
	pool *pgxpool.Pool
}

// NewConversationHealthRepository builds repository.
func NewConversationHealthRepository(pool *pgxpool.Pool) ConversationHealthRepository {
	return &conversationHealthRepository{pool: pool}
}

func (r *conversationHealthRepository) Get(ctx context.Context, ticketID string) (*domain.ConversationHealthRecord, error) {
	const query = `
        SELECT ticket_id, total_messages, total_questions, resolved_questions, cumulative_sentiment,
               conversation_health, summary, created_at, updated_at
        FROM conversation_health WHERE ticket_id=$1`
	var rec domain.ConversationHealthRecord
	if err := r.pool.QueryRow(ctx, query, ticketID).Scan(
		&rec.TicketID,
		&rec.TotalMessages,
		&rec.TotalQuestions,
		&rec.ResolvedQuestions,
		&rec.CumulativeSentiment,
		&rec.ConversationHealth,
		&rec.Summary,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, translate(err)
	}
	return &rec, nil
}

func (r *conversationHealthRepository) Upsert(ctx context.Context, rec *domain.ConversationHealthRecord) error {
	const query = `
        INSERT INTO conversation_health (ticket_id, total_messages, total_questions, resolved_questions,
            cumulative_sentiment, conversation_health, summary)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (ticket_id) DO UPDATE SET
            total_messages=EXCLUDED.total_messages,
            total_questions=EXCLUDED.total_questions,
            resolved_questions=EXCLUDED.resolved_questions,
            cumulative_sentiment=EXCLUDED.cumulative_sentiment,
            conversation_health=EXCLUDED.conversation_health,
            summary=EXCLUDED.summary,
            updated_at=NOW()
        RETURNING created_at, updated_at`
	return r.pool.QueryRow(ctx, query,
		rec.TicketID,
		rec.TotalMessages,
		rec.TotalQuestions,
		rec.ResolvedQuestions,
		rec.CumulativeSentiment,
		rec.ConversationHealth,
		rec.Summary,
	).Scan(&rec.CreatedAt, &rec.UpdatedAt)
}
