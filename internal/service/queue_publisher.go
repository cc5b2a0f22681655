// Package service contains outbound integrations invoked by the HTTP
// layer. The queue publisher pushes mail events to RabbitMQ; errors are
// logged and returned so callers can ignore failures without interrupting
// the request flow.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/tauhid97k/school-management-sub000/internal/queue"
)

// Publisher publishes auth mail events. A fresh connection per publish
// keeps the publisher stateless; the auth flows emit at most one event per
// request so connection churn is negligible here.
type Publisher struct {
	URL string
	Log zerolog.Logger
}

// NewPublisher builds a publisher for the given broker URL.
func NewPublisher(url string, log zerolog.Logger) *Publisher {
	return &Publisher{URL: url, Log: log}
}

// PublishEmail publishes an EmailEvent to the auth.email queue. The queue
// is declared durable and messages are persistent so mail survives a broker
// restart. Never panics; any error is logged and returned for the caller to
// ignore.
func (p *Publisher) PublishEmail(ctx context.Context, ev queue.EmailEvent) error {
	conn, err := amqp.Dial(p.URL)
	if err != nil {
		p.Log.Error().Err(err).Msg("queue: dial failed")
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.Log.Error().Err(err).Msg("queue: channel open failed")
		return err
	}
	defer func() { _ = ch.Close() }()

	// Idempotent declare so publisher and consumer can start in any order.
	if _, err := ch.QueueDeclare(
		queue.EmailQueueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		p.Log.Error().Err(err).Msg("queue: declare failed")
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		p.Log.Error().Err(err).Msg("queue: marshal event failed")
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",                   // default exchange
		queue.EmailQueueName, // routing key = queue name
		false, false, pub,
	); err != nil {
		p.Log.Error().Err(err).Msg("queue: publish failed")
		return err
	}
	return nil
}
