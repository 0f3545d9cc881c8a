package cli

import (
	"context"

	"pairing_bot/internal/domain/notify"

	"github.com/sirupsen/logrus"
)

// LogNotifier writes every outgoing message to the log instead of a chat.
type LogNotifier struct {
	log *logrus.Entry
}

var _ notify.Notifier = (*LogNotifier)(nil)

func NewLogNotifier(log *logrus.Entry) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) AnnounceToTenant(_ context.Context, tenantID int64, text string) error {
	n.log.WithFields(logrus.Fields{"tenant_id": tenantID, "kind": "announce"}).Info(text)
	return nil
}

func (n *LogNotifier) DirectMessage(_ context.Context, userID int64, text string) error {
	n.log.WithFields(logrus.Fields{"user_id": userID, "kind": "direct"}).Info(text)
	return nil
}

func (n *LogNotifier) PromptFeedback(_ context.Context, userID int64, prompt notify.FeedbackPrompt) error {
	n.log.WithFields(logrus.Fields{
		"user_id":   userID,
		"tenant_id": prompt.TenantID,
		"cycle":     prompt.Cycle,
		"report_id": prompt.ReportID,
		"kind":      "feedback",
	}).Infof("How did your meeting with %s go?", prompt.PartnerName)
	return nil
}

func (n *LogNotifier) PromptOptOut(_ context.Context, tenantID int64, text string) error {
	n.log.WithFields(logrus.Fields{"tenant_id": tenantID, "kind": "opt_out"}).Info(text)
	return nil
}
