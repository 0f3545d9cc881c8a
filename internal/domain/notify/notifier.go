package notify

import (
	"context"

	"pairing_bot/internal/domain/pairing"
)

// FeedbackPrompt asks one member how their meeting with a partner went.
// The response is reported back asynchronously with ReportID.
type FeedbackPrompt struct {
	ReportID    int64
	TenantID    int64
	Cycle       int64
	PartnerName string
	Options     []pairing.Outcome
}

// Notifier delivers messages to members and tenant channels.
// It decouples the application logic from the chat library.
type Notifier interface {
	AnnounceToTenant(ctx context.Context, tenantID int64, text string) error
	DirectMessage(ctx context.Context, userID int64, text string) error
	PromptFeedback(ctx context.Context, userID int64, prompt FeedbackPrompt) error
	// PromptOptOut posts the per-cycle opt-out toggle to the tenant channel.
	PromptOptOut(ctx context.Context, tenantID int64, text string) error
}
