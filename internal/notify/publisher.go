package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"arbfee/internal/model"
)

const exchangeType = "topic"

// Publisher announces profitable opportunities found by a scan.
type Publisher interface {
	Publish(ctx context.Context, rec model.ScanRecord) error
}

// Opportunity is the message body published for a profitable row.
type Opportunity struct {
	RunID     string           `json:"run_id"`
	Row       int              `json:"row"`
	ScannedAt time.Time        `json:"scanned_at"`
	Result    model.ScanResult `json:"result"`
}

// RoutingKey returns opportunity.<buy>.<sell> in lower case.
func RoutingKey(res model.ScanResult) string {
	return fmt.Sprintf("opportunity.%s.%s", strings.ToLower(res.BuyExchange), strings.ToLower(res.SellExchange))
}

// channel is the subset of *amqp.Channel the publisher needs.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// RabbitPublisher publishes opportunities to a RabbitMQ topic exchange.
type RabbitPublisher struct {
	ch       channel
	exchange string
}

// NewRabbitPublisher creates a publisher on an already declared exchange.
func NewRabbitPublisher(ch channel, exchange string) *RabbitPublisher {
	return &RabbitPublisher{ch: ch, exchange: exchange}
}

// Publish sends rec to the exchange.
func (p *RabbitPublisher) Publish(ctx context.Context, rec model.ScanRecord) error {
	body, err := json.Marshal(Opportunity{RunID: rec.RunID, Row: rec.Row, ScannedAt: rec.ScannedAt, Result: rec.Result})
	if err != nil {
		return fmt.Errorf("could not marshal opportunity: %w", err)
	}
	return p.ch.PublishWithContext(ctx,
		p.exchange,
		RoutingKey(rec.Result),
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.ScannedAt,
			Body:         body,
		},
	)
}

// SetupConn dials url and declares a durable topic exchange.
func SetupConn(logger *slog.Logger, url, exchange string, attempts int) (*amqp.Connection, *amqp.Channel, error) {
	var conn *amqp.Connection
	var err error

	for i := 0; i < attempts; i++ {
		conn, err = amqp.Dial(url)
		if err == nil {
			break
		}
		logger.Warn("Failed to connect to RabbitMQ", "attempt", i+1, "error", err)
		if i+1 < attempts {
			time.Sleep(2 * time.Second)
		}
	}
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		exchange,     // name
		exchangeType, // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("could not declare exchange: %w", err)
	}

	return conn, ch, nil
}
