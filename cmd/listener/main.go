// cmd/listener/main.go
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/config"
	"github.com/HugoP8/whazaaa/internal/logger"
	"github.com/HugoP8/whazaaa/internal/notify"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}
	if err := logger.Init(cfg.Logging.Level, ""); err != nil {
		log.Fatalf("❌ failed to init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.AMQP.URL == "" {
		logger.Fatal("❌ AMQP_URL is not set")
	}

	conn, err := amqp.Dial(cfg.AMQP.URL)
	if err != nil {
		logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		logger.Fatal("Failed to open a channel", zap.Error(err))
	}
	defer ch.Close()

	if err := notify.DeclareExchange(ch, cfg.AMQP.Exchange); err != nil {
		logger.Fatal("Failed to declare exchange", zap.Error(err))
	}

	q, err := ch.QueueDeclare(
		"",    // server-named
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		logger.Fatal("Failed to declare queue", zap.Error(err))
	}
	if err := ch.QueueBind(q.Name, "", cfg.AMQP.Exchange, false, nil); err != nil {
		logger.Fatal("Failed to bind queue", zap.Error(err))
	}

	msgs, err := ch.Consume(
		q.Name,
		"",
		true, // events are informational, nothing to redeliver
		true,
		false,
		false,
		nil,
	)
	if err != nil {
		logger.Fatal("Failed to register consumer", zap.Error(err))
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	logger.Info("👂 Listener running, waiting for events...", zap.String("exchange", cfg.AMQP.Exchange))
	for {
		select {
		case d, ok := <-msgs:
			if !ok {
				logger.Warn("⚠️ delivery channel closed")
				return
			}
			handleDelivery(d.Body)
		case <-stop:
			logger.Info("🛑 listener stopped")
			return
		}
	}
}

func handleDelivery(body []byte) {
	env, err := decodeEvent(body)
	if err != nil {
		logger.Warn("Invalid event", zap.Error(err))
		return
	}
	logger.Info("📩 event",
		zap.String("topic", env.Topic),
		zap.Time("at", env.Timestamp),
		zap.ByteString("payload", env.Payload),
	)
}

func decodeEvent(body []byte) (notify.Envelope, error) {
	var env notify.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return env, fmt.Errorf("malformed envelope: %w", err)
	}
	if env.Topic == "" {
		return env, errors.New("envelope without topic")
	}
	return env, nil
}
