package email

import (
	"context"
	"log/slog"
	"time"

	"github.com/hugh/estateflow/internal/database/models"
	"github.com/hugh/estateflow/internal/metrics"
)

// Transport hands a rendered message to a Sender, directly or through a queue.
type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

// Direct delivers synchronously through the sender. Metrics may be nil.
type Direct struct {
	Sender  Sender
	Metrics *metrics.Metrics
}

func (d Direct) Deliver(ctx context.Context, msg Message) error {
	if err := d.Sender.Send(ctx, msg); err != nil {
		d.Metrics.EmailSent(msg.Kind, "error")
		return err
	}
	d.Metrics.EmailSent(msg.Kind, "sent")
	return nil
}

// Notifier renders and delivers the product's transactional emails. Every
// method is best effort: failures are logged and never returned.
type Notifier struct {
	templates *Templates
	transport Transport
	logger    *slog.Logger
}

func NewNotifier(templates *Templates, transport Transport, logger *slog.Logger) *Notifier {
	return &Notifier{templates: templates, transport: transport, logger: logger}
}

func (n *Notifier) SendMagicLink(ctx context.Context, to, name, link string) {
	n.send(ctx, KindMagicLink, to, "Your EstateFlow sign-in link", map[string]any{
		"BrandColor": models.DefaultBrandColor,
		"Name":       name,
		"Link":       link,
	})
}

func (n *Notifier) SendNewDeal(ctx context.Context, deal *models.Deal, agentName, brandColor, link string) {
	data := map[string]any{
		"BrandColor": brandColorOr(brandColor),
		"ClientName": deal.ClientName,
		"AgentName":  agentName,
		"Property":   deref(deal.PropertyAddress),
		"Message":    deref(deal.WelcomeMessage),
		"Link":       link,
	}
	n.send(ctx, KindNewDeal, deal.ClientEmail, "Follow your transaction with "+agentName, data)
}

func (n *Notifier) SendStepUpdate(ctx context.Context, deal *models.Deal, step *models.TimelineStep, brandColor, link string) {
	data := map[string]any{
		"BrandColor": brandColorOr(brandColor),
		"ClientName": deal.ClientName,
		"StepTitle":  step.Title,
		"StepStatus": stepStatusLabel(step.Status),
		"Link":       link,
	}
	n.send(ctx, KindStepUpdate, deal.ClientEmail, "Update: "+step.Title, data)
}

func (n *Notifier) SendNewDocument(ctx context.Context, deal *models.Deal, doc *models.Document, agentName, brandColor, link string) {
	data := map[string]any{
		"BrandColor":   brandColorOr(brandColor),
		"ClientName":   deal.ClientName,
		"AgentName":    agentName,
		"DocumentName": doc.Filename,
		"ToSign":       doc.Category == models.DocumentCategoryToSign,
		"Link":         link,
	}
	n.send(ctx, KindNewDocument, deal.ClientEmail, "New document: "+doc.Filename, data)
}

func (n *Notifier) SendInvitation(ctx context.Context, inv *models.Invitation, orgName, inviterName, brandColor, link string) {
	data := map[string]any{
		"BrandColor":       brandColorOr(brandColor),
		"OrganizationName": orgName,
		"InviterName":      inviterName,
		"Role":             string(inv.Role),
		"Link":             link,
		"ExpiresAt":        inv.ExpiresAt.Format(time.DateOnly),
	}
	n.send(ctx, KindInvitation, inv.Email, "You are invited to join "+orgName, data)
}

func (n *Notifier) send(ctx context.Context, kind, to, subject string, data any) {
	html, err := n.templates.Render(kind, data)
	if err != nil {
		n.logger.Error("failed to render email", "kind", kind, "error", err)
		return
	}

	msg := Message{Kind: kind, To: to, Subject: subject, HTML: html}
	if err := n.transport.Deliver(ctx, msg); err != nil {
		n.logger.Error("failed to send email", "kind", kind, "to", to, "error", err)
	}
}

func stepStatusLabel(s models.StepStatus) string {
	switch s {
	case models.StepStatusPending:
		return "pending"
	case models.StepStatusInProgress:
		return "in progress"
	case models.StepStatusCompleted:
		return "completed"
	default:
		return string(s)
	}
}

func brandColorOr(c string) string {
	if c == "" {
		return models.DefaultBrandColor
	}
	return c
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
