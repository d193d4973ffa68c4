package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/segmentio/kafka-go"

	"github.com/spec-kit/ticket-sla/internal/domain"
)

// KafkaPublisher writes push notifications and emails to outbox topics consumed by the delivery services.
// Messages are keyed by recipient so one recipient's notifications stay ordered.
type KafkaPublisher struct {
	pushWriter  *kafka.Writer
	emailWriter *kafka.Writer
}

// NewKafkaPublisher creates the topic writers.
func NewKafkaPublisher(brokers []string, pushTopic, emailTopic string) *KafkaPublisher {
	return &KafkaPublisher{
		pushWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    pushTopic,
			Balancer: &kafka.Hash{},
		},
		emailWriter: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    emailTopic,
			Balancer: &kafka.Hash{},
		},
	}
}

// Send implements PushSender.
func (p *KafkaPublisher) Send(ctx context.Context, n domain.Notification) error {
	return write(ctx, p.pushWriter, n.RecipientID, n)
}

// SendEmail implements EmailSender.
func (p *KafkaPublisher) SendEmail(ctx context.Context, msg domain.EmailMessage) error {
	return write(ctx, p.emailWriter, msg.To, msg)
}

func write(ctx context.Context, w *kafka.Writer, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return w.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: data})
}

// Close closes the Kafka writers.
func (p *KafkaPublisher) Close() error {
	return errors.Join(p.pushWriter.Close(), p.emailWriter.Close())
}
