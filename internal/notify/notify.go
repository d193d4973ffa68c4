// Package notify delivers SLA notifications to staff over push and email channels.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/observability"
)

// Channel names used in logs and metrics.
const (
	ChannelPush  = "push"
	ChannelEmail = "email"
)

// BreachEmailTemplate is the template id of the SLA breach email.
const BreachEmailTemplate = "sla_breach"

// PushSender delivers a notification to one staff member.
type PushSender interface {
	Send(ctx context.Context, n domain.Notification) error
}

// EmailSender delivers a templated email.
type EmailSender interface {
	SendEmail(ctx context.Context, msg domain.EmailMessage) error
}

// Delivery is one notification for one recipient. Email is optional.
type Delivery struct {
	Notification domain.Notification
	Email        *domain.EmailMessage
}

// Dispatcher fans deliveries out to the configured channels.
// Channel failures are logged and counted, never returned.
type Dispatcher struct {
	push    PushSender
	email   EmailSender
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewDispatcher wires the senders.
func NewDispatcher(push PushSender, email EmailSender, logger *zap.Logger, metrics *observability.Metrics) *Dispatcher {
	return &Dispatcher{push: push, email: email, logger: logger, metrics: metrics}
}

// Dispatch sends del on every channel it asks for and reports whether at least one channel accepted it.
func (d *Dispatcher) Dispatch(ctx context.Context, del Delivery) bool {
	n := del.Notification
	kind := string(n.Type)
	fields := []zap.Field{
		zap.String("notification_id", n.ID),
		zap.String("type", kind),
		zap.String("ticket_id", n.TicketID),
		zap.String("recipient_id", n.RecipientID),
	}

	delivered := false
	if err := d.push.Send(ctx, n); err != nil {
		d.logger.Warn("push notification failed", append(fields, zap.Error(err))...)
		d.metrics.RecordNotification(kind, ChannelPush, observability.OutcomeFailed)
	} else {
		delivered = true
		d.metrics.RecordNotification(kind, ChannelPush, observability.OutcomeSent)
	}

	if del.Email != nil && d.email != nil {
		if del.Email.To == "" {
			d.logger.Info("recipient has no email address; skipping email", fields...)
		} else if err := d.email.SendEmail(ctx, *del.Email); err != nil {
			d.logger.Warn("email notification failed", append(fields, zap.Error(err))...)
			d.metrics.RecordNotification(kind, ChannelEmail, observability.OutcomeFailed)
		} else {
			delivered = true
			d.metrics.RecordNotification(kind, ChannelEmail, observability.OutcomeSent)
		}
	}
	return delivered
}
