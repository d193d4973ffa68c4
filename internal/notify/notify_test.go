package notify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-sla/internal/domain"
	"github.com/spec-kit/ticket-sla/internal/observability"
)

type stubPush struct {
	err  error
	sent []domain.Notification
}

func (s *stubPush) Send(_ context.Context, n domain.Notification) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, n)
	return nil
}

type stubEmail struct {
	err  error
	sent []domain.EmailMessage
}

func (s *stubEmail) SendEmail(_ context.Context, msg domain.EmailMessage) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func breach() Delivery {
	return Delivery{
		Notification: domain.Notification{ID: "n1", Type: domain.NotificationSLABreach, RecipientID: "u1", TicketID: "t1"},
		Email:        &domain.EmailMessage{To: "u1@example.com", Template: BreachEmailTemplate},
	}
}

func TestDispatch_SendsBothChannels(t *testing.T) {
	push, email := &stubPush{}, &stubEmail{}
	metrics := observability.NewMetrics()
	d := NewDispatcher(push, email, zap.NewNop(), metrics)

	assert.True(t, d.Dispatch(context.Background(), breach()))
	assert.Len(t, push.sent, 1)
	assert.Len(t, email.sent, 1)
	assert.Equal(t, 1.0, metrics.NotificationCount("SLA_BREACH", ChannelEmail, observability.OutcomeSent))
}

func TestDispatch_PushFailureDoesNotStopEmail(t *testing.T) {
	push, email := &stubPush{err: errors.New("socket closed")}, &stubEmail{}
	metrics := observability.NewMetrics()
	d := NewDispatcher(push, email, zap.NewNop(), metrics)

	assert.True(t, d.Dispatch(context.Background(), breach()))
	assert.Len(t, email.sent, 1)
	assert.Equal(t, 1.0, metrics.NotificationCount("SLA_BREACH", ChannelPush, observability.OutcomeFailed))
}

func TestDispatch_AllChannelsFailing(t *testing.T) {
	d := NewDispatcher(&stubPush{err: errors.New("down")}, &stubEmail{err: errors.New("down")}, zap.NewNop(), nil)
	assert.False(t, d.Dispatch(context.Background(), breach()))
}

func TestDispatch_WarningIsPushOnly(t *testing.T) {
	push, email := &stubPush{}, &stubEmail{}
	d := NewDispatcher(push, email, zap.NewNop(), nil)

	ok := d.Dispatch(context.Background(), Delivery{
		Notification: domain.Notification{Type: domain.NotificationSLAWarning, RecipientID: "u1"},
	})
	assert.True(t, ok)
	assert.Len(t, push.sent, 1)
	assert.Empty(t, email.sent)
}
