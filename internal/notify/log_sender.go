package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// LogSender only logs what it would deliver. It is used when no broker is configured.
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender builds the stub sender.
func NewLogSender(logger *zap.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) Send(_ context.Context, n domain.Notification) error {
	s.logger.Info("sendPushNotificationStub",
		zap.String("type", string(n.Type)),
		zap.String("recipient_id", n.RecipientID),
		zap.String("ticket_id", n.TicketID),
		zap.String("title", n.Title))
	return nil
}

func (s *LogSender) SendEmail(_ context.Context, msg domain.EmailMessage) error {
	s.logger.Info("sendEmailNotificationStub",
		zap.String("to", msg.To),
		zap.String("from", msg.From),
		zap.String("template", msg.Template))
	return nil
}
