package service

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/classifier"
	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/observability"
	"github.com/spec-kit/ticket-sla/internal/repository"
	apperrors "github.com/spec-kit/ticket-sla/pkg/util/errorutil"
	"github.com/spec-kit/ticket-sla/pkg/util/keylock"
)

const (
	customerSentimentWeight = 1.5
	neutralClarity          = 0.5
	clarityRampQuestions    = 5.0
	sentimentShare          = 0.6
	clarityShare            = 0.2
	resolvedShare           = 0.2
	maxSummaryFallbackRunes = 200
)

// MessageClassification is what the text classifier said about one message.
type MessageClassification struct {
	Sentiment  float64
	IsQuestion bool
	Resolved   bool
}

// HealthScorer maintains the conversation health record of each ticket.
// Updates for one ticket are serialized; different tickets proceed in parallel.
type HealthScorer struct {
	records    repository.ConversationHealthRepository
	classifier classifier.TextClassifier
	locks      *keylock.Locker
	logger     *zap.Logger
	metrics    *observability.Metrics
	tracer     trace.Tracer
}

// HealthScorerDependencies bundles collaborators of the scorer.
type HealthScorerDependencies struct {
	HealthRepo repository.ConversationHealthRepository
	Classifier classifier.TextClassifier
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewHealthScorer constructs the scorer.
func NewHealthScorer(deps HealthScorerDependencies) *HealthScorer {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthScorer{
		records:    deps.HealthRepo,
		classifier: deps.Classifier,
		locks:      keylock.New(),
		logger:     logger,
		metrics:    deps.Metrics,
		tracer:     otel.Tracer(observability.TracerName),
	}
}

// EvaluateConversationHealth folds one message into the ticket's health record.
// Classification happens before anything is written: an unreadable classifier reply leaves the record untouched.
func (s *HealthScorer) EvaluateConversationHealth(ctx context.Context, ticketID, message string, isCustomerResponse bool) (*domain.ConversationHealthRecord, error) {
	ctx, span := s.tracer.Start(ctx, "health.Evaluate", trace.WithAttributes(
		attribute.String("ticket.id", ticketID),
		attribute.Bool("message.customer", isCustomerResponse),
	))
	defer span.End()

	text := classifier.StripMarkup(message)
	cls, err := s.classify(ctx, text, isCustomerResponse)
	if err != nil {
		s.recordOutcome(err)
		s.logger.Warn("conversation health classification failed", zap.String("ticket_id", ticketID), zap.Error(err))
		return nil, err
	}

	unlock := s.locks.Lock(ticketID)
	defer unlock()

	rec, err := s.records.Get(ctx, ticketID)
	if errors.Is(err, repository.ErrNotFound) {
		rec = &domain.ConversationHealthRecord{TicketID: ticketID, Summary: s.summarize(ctx, ticketID, text)}
	} else if err != nil {
		s.recordOutcome(err)
		return nil, err
	}

	next := ApplyMessage(*rec, cls, isCustomerResponse)
	if err := s.records.Upsert(ctx, &next); err != nil {
		s.recordOutcome(err)
		return nil, err
	}
	s.recordOutcome(nil)
	s.logger.Debug("conversation health updated",
		zap.String("ticket_id", ticketID),
		zap.Int("total_messages", next.TotalMessages),
		zap.Float64("conversation_health", next.ConversationHealth))
	return &next, nil
}

// Get returns the stored record of ticketID.
func (s *HealthScorer) Get(ctx context.Context, ticketID string) (*domain.ConversationHealthRecord, error) {
	rec, err := s.records.Get(ctx, ticketID)
	if err != nil {
		return nil, mapRepoError("conversation health", ticketID, err)
	}
	return rec, nil
}

func (s *HealthScorer) classify(ctx context.Context, text string, isCustomer bool) (MessageClassification, error) {
	var cls MessageClassification

	raw, err := s.classifier.Classify(ctx, classifier.SentimentPrompt(text))
	if err != nil {
		return cls, fmt.Errorf("classify sentiment: %w", err)
	}
	if cls.Sentiment, err = classifier.ParseScore(raw); err != nil {
		return cls, err
	}
	if !isCustomer {
		return cls, nil
	}

	if raw, err = s.classifier.Classify(ctx, classifier.QuestionPrompt(text)); err != nil {
		return cls, fmt.Errorf("classify question: %w", err)
	}
	if cls.IsQuestion, err = classifier.ParseBool(classifier.KindQuestion, raw); err != nil {
		return cls, err
	}
	if raw, err = s.classifier.Classify(ctx, classifier.ResolutionPrompt(text)); err != nil {
		return cls, fmt.Errorf("classify resolution: %w", err)
	}
	if cls.Resolved, err = classifier.ParseBool(classifier.KindResolution, raw); err != nil {
		return cls, err
	}
	return cls, nil
}

// summarize asks for a one-line summary of the opening message and falls back to an excerpt.
func (s *HealthScorer) summarize(ctx context.Context, ticketID, text string) string {
	summary, err := s.classifier.Classify(ctx, classifier.SummaryPrompt(text))
	if err == nil && summary != "" {
		return summary
	}
	s.logger.Warn("summary generation failed; storing excerpt", zap.String("ticket_id", ticketID), zap.Error(err))
	runes := []rune(text)
	if len(runes) > maxSummaryFallbackRunes {
		runes = runes[:maxSummaryFallbackRunes]
	}
	return string(runes)
}

func (s *HealthScorer) recordOutcome(err error) {
	switch {
	case err == nil:
		s.metrics.RecordHealthUpdate("ok")
	case apperrors.HasCode(err, apperrors.CodeClassificationParse):
		s.metrics.RecordHealthUpdate("parse_error")
	default:
		s.metrics.RecordHealthUpdate("error")
	}
}

// ApplyMessage returns prev updated with one classified message.
func ApplyMessage(prev domain.ConversationHealthRecord, cls MessageClassification, isCustomer bool) domain.ConversationHealthRecord {
	next := prev
	next.TotalMessages++
	question := isCustomer && cls.IsQuestion
	resolved := isCustomer && cls.Resolved
	if question {
		next.TotalQuestions++
	}
	if resolved {
		next.ResolvedQuestions++
	}

	weight := 1.0
	if isCustomer {
		weight = customerSentimentWeight
	}
	n := float64(next.TotalMessages)
	next.CumulativeSentiment = clamp01((prev.CumulativeSentiment*(n-1) + cls.Sentiment*weight) / n)

	resolvedTerm := 0.0
	if resolved {
		resolvedTerm = 1
	}
	next.ConversationHealth = sentimentShare*next.CumulativeSentiment +
		clarityShare*WeightedClarity(next.TotalQuestions, next.ResolvedQuestions) +
		resolvedShare*resolvedTerm
	return next
}

// WeightedClarity blends the resolved/asked ratio with a neutral 0.5 until enough questions were asked.
func WeightedClarity(totalQuestions, resolvedQuestions int) float64 {
	if totalQuestions == 0 {
		return neutralClarity
	}
	ratio := math.Min(1, float64(resolvedQuestions)/float64(totalQuestions))
	scale := math.Min(1, float64(totalQuestions)/clarityRampQuestions)
	return ratio*scale + neutralClarity*(1-scale)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
