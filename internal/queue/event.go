// Package queue defines message payloads exchanged over the message broker
// and the background consumer that delivers them.
package queue

import "github.com/tauhid97k/school-management-sub000/internal/model"

// EmailQueueName is the durable queue carrying verification and reset mail
// events. Events are published only after the enclosing database
// transaction commits, so a rolled back registration never produces mail.
const EmailQueueName = "auth.email"

// Email event types.
const (
	EmailVerification  = "verification"
	EmailPasswordReset = "password_reset"
)

// EmailEvent asks the consumer to send one verification or reset mail. It
// carries everything needed to compose the message so the consumer never
// queries the primary database.
type EmailEvent struct {
	Type   string     `json:"type"` // EmailVerification or EmailPasswordReset
	Kind   model.Kind `json:"role"`
	To     string     `json:"to"`
	Name   string     `json:"name"`
	School string     `json:"school,omitempty"`
	Code   string     `json:"code"`
	Token  string     `json:"token"` // opaque pair member presented back with the code
	SentAt string     `json:"sent_at"`
}
