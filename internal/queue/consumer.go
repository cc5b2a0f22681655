package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/tauhid97k/school-management-sub000/internal/mail"
)

// EmailConsumer drains the auth.email queue and delivers messages through
// the Mailer. Delivery retries with backoff inside the handler; a message
// that keeps failing is rejected without requeue so a broken address cannot
// wedge the queue.
type EmailConsumer struct {
	URL    string
	From   string // From address on every outbound mail
	Mailer mail.Mailer
	Log    zerolog.Logger

	Attempts int           // per-message send attempts, default 3
	Backoff  time.Duration // base backoff between attempts, default 2s
}

// Start connects to RabbitMQ and consumes until ctx is cancelled. It runs a
// reconnect loop with exponential backoff and never panics; processing
// errors are logged while the server keeps operating.
func (c *EmailConsumer) Start(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Log.Warn().Err(err).Dur("retry_in", backoff).Msg("mail-consumer: dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn); err != nil {
			c.Log.Warn().Err(err).Msg("mail-consumer: consume loop ended, reconnecting")
		}
		_ = conn.Close()
		select {
		case <-ctx.Done():
			return
		case <-time.After(2 * time.Second):
		}
	}
}

func (c *EmailConsumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		c.Log.Warn().Err(err).Msg("mail-consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(EmailQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(EmailQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.handle(ctx, d.Body); err != nil {
				c.Log.Error().Err(err).Msg("mail-consumer: handle message failed")
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (c *EmailConsumer) handle(ctx context.Context, body []byte) error {
	var ev EmailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	msg, err := composeMail(c.From, ev)
	if err != nil {
		return err
	}

	attempts := c.Attempts
	if attempts <= 0 {
		attempts = 3
	}
	backoff := c.Backoff
	if backoff <= 0 {
		backoff = 2 * time.Second
	}

	var last error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff * time.Duration(i)):
			}
		}
		if last = c.Mailer.SendMail(ctx, msg); last == nil {
			c.Log.Info().Str("to", ev.To).Str("type", ev.Type).Msg("mail-consumer: mail sent")
			return nil
		}
	}
	return fmt.Errorf("send mail to %s: %w", ev.To, last)
}

func composeMail(from string, ev EmailEvent) (mail.Message, error) {
	switch ev.Type {
	case EmailVerification:
		return mail.Message{
			From:    from,
			To:      ev.To,
			Subject: "Verify your email",
			Text: fmt.Sprintf("Hi %s,\n\nYour verification code is %s (request token %s).\n\nIf you did not request this, ignore this mail.\n",
				ev.Name, ev.Code, ev.Token),
		}, nil
	case EmailPasswordReset:
		return mail.Message{
			From:    from,
			To:      ev.To,
			Subject: "Password reset code",
			Text: fmt.Sprintf("Hi %s,\n\nYour password reset code is %s (request token %s). It expires shortly.\n\nIf you did not request this, ignore this mail.\n",
				ev.Name, ev.Code, ev.Token),
		}, nil
	}
	return mail.Message{}, fmt.Errorf("unknown email event type %q", ev.Type)
}
