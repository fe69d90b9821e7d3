package testutil

import (
	"context"
	"sync"

	"github.com/hugh/estateflow/internal/database/models"
)

// SentEmail is one call captured by RecordingNotifier.
type SentEmail struct {
	Kind string
	To   string
	Link string
}

// RecordingNotifier satisfies every notifier interface and records the calls.
type RecordingNotifier struct {
	mu   sync.Mutex
	Sent []SentEmail
}

func (n *RecordingNotifier) record(kind, to, link string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Sent = append(n.Sent, SentEmail{Kind: kind, To: to, Link: link})
}

func (n *RecordingNotifier) SendMagicLink(ctx context.Context, to, name, link string) {
	n.record("magic_link", to, link)
}

func (n *RecordingNotifier) SendNewDeal(ctx context.Context, deal *models.Deal, agentName, brandColor, link string) {
	n.record("new_deal", deal.ClientEmail, link)
}

func (n *RecordingNotifier) SendStepUpdate(ctx context.Context, deal *models.Deal, step *models.TimelineStep, brandColor, link string) {
	n.record("step_update", deal.ClientEmail, link)
}

func (n *RecordingNotifier) SendNewDocument(ctx context.Context, deal *models.Deal, doc *models.Document, agentName, brandColor, link string) {
	n.record("new_document", deal.ClientEmail, link)
}

func (n *RecordingNotifier) SendInvitation(ctx context.Context, inv *models.Invitation, orgName, inviterName, brandColor, link string) {
	n.record("invitation", inv.Email, link)
}

// Last returns the most recent email of kind, or false.
func (n *RecordingNotifier) Last(kind string) (SentEmail, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.Sent) - 1; i >= 0; i-- {
		if n.Sent[i].Kind == kind {
			return n.Sent[i], true
		}
	}
	return SentEmail{}, false
}

// Count returns how many emails of kind were sent.
func (n *RecordingNotifier) Count(kind string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.Sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}
