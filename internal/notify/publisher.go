// Package notify publishes client notifications to a message broker. The
// actual delivery (SMS gateway, WhatsApp sender) runs as a separate consumer;
// the API only enqueues.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

const exchangeName = "client_notifications"

// Message is one notification to deliver to a client.
type Message struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	Channel     string `json:"channel"`
	Recipient   string `json:"recipient"`
	Text        string `json:"text"`
}

// Publisher enqueues notification messages for delivery.
type Publisher interface {
	Publish(ctx context.Context, msg Message) error
	Close() error
}

type amqpPublisher struct {
	conn *amqp.Connection
}

// NewAMQP connects to the broker and returns a Publisher backed by a durable
// fanout exchange.
func NewAMQP(url string) (Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return &amqpPublisher{conn: conn}, nil
}

func (p *amqpPublisher) Publish(ctx context.Context, msg Message) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(exchangeName, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = ch.PublishWithContext(ctx, exchangeName, "", false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (p *amqpPublisher) Close() error {
	return p.conn.Close()
}

// Nop is a Publisher that discards messages. Used when no broker is
// configured; notifications are still recorded in the database.
type Nop struct{}

func (Nop) Publish(context.Context, Message) error { return nil }
func (Nop) Close() error                           { return nil }
