package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/hugh/estateflow/internal/email"
	"github.com/hugh/estateflow/pkg/queue"
)

const TypeEmailSend = "email:send"

const (
	emailMaxRetry  = 5
	emailTimeout   = 30 * time.Second
	emailRetention = 24 * time.Hour
)

// EmailPayload carries an already rendered message.
type EmailPayload struct {
	Message email.Message `json:"message"`
}

// QueueFor routes a message kind to its queue.
func QueueFor(kind string) string {
	switch kind {
	case email.KindMagicLink, email.KindInvitation:
		return queue.QueueAuth
	default:
		return queue.QueueNotifications
	}
}

func NewEmailTask(msg email.Message) (*asynq.Task, error) {
	data, err := json.Marshal(EmailPayload{Message: msg})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeEmailSend, data,
		asynq.Queue(QueueFor(msg.Kind)),
		asynq.MaxRetry(emailMaxRetry),
		asynq.Timeout(emailTimeout),
		asynq.Retention(emailRetention),
	), nil
}

func parseEmailPayload(t *asynq.Task) (EmailPayload, error) {
	var payload EmailPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("unmarshal payload: %w: %w", err, asynq.SkipRetry)
	}
	if payload.Message.To == "" {
		return payload, fmt.Errorf("email task without recipient: %w", asynq.SkipRetry)
	}
	return payload, nil
}
