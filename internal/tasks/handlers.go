package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/hugh/estateflow/internal/email"
	"github.com/hugh/estateflow/internal/metrics"
)

type Handler struct {
	sender  email.Sender
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewHandler(sender email.Sender, logger *slog.Logger) *Handler {
	return &Handler{
		sender: sender,
		logger: logger,
	}
}

// WithMetrics counts deliveries on m.
func (h *Handler) WithMetrics(m *metrics.Metrics) *Handler {
	h.metrics = m
	return h
}

func (h *Handler) RegisterHandlers(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeEmailSend, h.HandleEmailSend)
}

func (h *Handler) HandleEmailSend(ctx context.Context, t *asynq.Task) error {
	payload, err := parseEmailPayload(t)
	if err != nil {
		return err
	}

	if err := h.sender.Send(ctx, payload.Message); err != nil {
		h.metrics.EmailSent(payload.Message.Kind, "error")
		h.logger.Warn("email delivery failed, will retry",
			"kind", payload.Message.Kind,
			"to", payload.Message.To,
			"error", err,
		)
		return err
	}

	h.metrics.EmailSent(payload.Message.Kind, "sent")
	h.logger.Info("email delivered", "kind", payload.Message.Kind, "to", payload.Message.To)
	return nil
}

// Enqueuer is the part of *asynq.Client the email queue needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// EmailQueue is an email.Transport that defers delivery to the worker.
type EmailQueue struct {
	client Enqueuer
}

func NewEmailQueue(client Enqueuer) *EmailQueue {
	return &EmailQueue{client: client}
}

func (q *EmailQueue) Deliver(ctx context.Context, msg email.Message) error {
	task, err := NewEmailTask(msg)
	if err != nil {
		return fmt.Errorf("creating email task: %w", err)
	}
	if _, err := q.client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueueing email: %w", err)
	}
	return nil
}

var _ email.Transport = (*EmailQueue)(nil)
