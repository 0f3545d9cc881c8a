package telegram

import (
	"context"

	"pairing_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// RegisterResponseHandlers wires the inline buttons of feedback prompts and the opt-out window.
func RegisterResponseHandlers(ctx context.Context, b *telebot.Bot, feedback *app.FeedbackService, membership *app.MembershipService, baseLogger *logrus.Entry) {
	logger := baseLogger.WithField("handler_group", "callbacks")

	b.Handle(&telebot.Btn{Unique: feedbackUnique}, func(c telebot.Context) error {
		logCtx := logger.WithFields(logrus.Fields{"callback": feedbackUnique, "user_id": c.Sender().ID})

		reportID, answer, err := parseFeedbackPayload(c.Args())
		if err != nil {
			logCtx.WithError(err).Warn("Malformed feedback callback")
			return c.Respond(&telebot.CallbackResponse{Text: replyFor(app.ErrInvalidOutcome)})
		}
		logCtx = logCtx.WithField("report_id", reportID)

		rep, err := feedback.RecordResponse(ctx, reportID, c.Sender().ID, answer)
		if err != nil {
			text := replyFor(err)
			if text == genericErrorText {
				logCtx.WithError(err).Error("Failed to record feedback")
			} else {
				logCtx.WithError(err).Warn("Feedback rejected")
			}
			return c.Respond(&telebot.CallbackResponse{Text: text})
		}

		logCtx.WithField("outcome", rep.Outcome).Info("Feedback recorded")
		return c.Respond(&telebot.CallbackResponse{Text: "Thanks, noted!"})
	})

	b.Handle(&telebot.Btn{Unique: optOutUnique}, func(c telebot.Context) error {
		logCtx := logger.WithFields(logrus.Fields{"callback": optOutUnique, "user_id": c.Sender().ID, "tenant_id": c.Chat().ID})

		optedIn := c.Callback().Data == "in"
		if err := membership.SetOptIn(ctx, c.Chat().ID, c.Sender().ID, optedIn); err != nil {
			text := replyFor(err)
			if text == genericErrorText {
				logCtx.WithError(err).Error("Failed to toggle participation")
			}
			return c.Respond(&telebot.CallbackResponse{Text: text})
		}

		logCtx.WithField("opted_in", optedIn).Info("Participation toggled")
		if optedIn {
			return c.Respond(&telebot.CallbackResponse{Text: "You're in for the coming cycle."})
		}
		return c.Respond(&telebot.CallbackResponse{Text: "You'll sit out the coming cycle."})
	})
}
