package notify

import (
	"fmt"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/logger"
)

// AMQPSink mirrors every event onto a fanout exchange so out-of-process
// consumers (cmd/listener, analytics) can follow campaigns. Publish waits
// on the broker; publishers reach it through Async.
type AMQPSink struct {
	conn     *amqp.Connection
	exchange string

	mu sync.Mutex
	ch *amqp.Channel
}

func NewAMQPSink(url, exchange string) (*AMQPSink, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}
	if err := DeclareExchange(ch, exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	return &AMQPSink{conn: conn, ch: ch, exchange: exchange}, nil
}

// DeclareExchange declares the events exchange; publisher and consumers
// must agree on its shape.
func DeclareExchange(ch *amqp.Channel, exchange string) error {
	err := ch.ExchangeDeclare(
		exchange, // name
		"fanout", // kind
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", exchange, err)
	}
	return nil
}

func (s *AMQPSink) Publish(topic string, payload any) {
	body, err := Encode(topic, payload)
	if err != nil {
		logger.Error("⚠️ failed to encode event", zap.String("topic", topic), zap.Error(err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.Publish(
		s.exchange,
		topic, // routing key, ignored by fanout but kept for bindings
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Type:        topic,
			Body:        body,
		},
	)
	if err != nil {
		logger.Warn("⚠️ failed to publish event to RabbitMQ", zap.String("topic", topic), zap.Error(err))
	}
}

func (s *AMQPSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch.Close()
	return s.conn.Close()
}

var _ Sink = (*AMQPSink)(nil)
