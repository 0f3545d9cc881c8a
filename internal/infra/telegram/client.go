// internal/infra/telegram/client.go
package telegram

import (
	"context"
	"fmt"
	"strconv"

	"pairing_bot/internal/domain/notify"
	"pairing_bot/internal/domain/pairing"

	"gopkg.in/telebot.v3"
)

// Callback uniques. Telebot routes "\f<unique>|<payload>" to the handler for the unique.
const (
	feedbackUnique = "fb"
	optOutUnique   = "optout"
)

// sender is the part of *telebot.Bot the adapter needs.
type sender interface {
	Send(to telebot.Recipient, what interface{}, opts ...interface{}) (*telebot.Message, error)
}

// TelebotAdapter implements notify.Notifier using the gopkg.in/telebot.v3 library.
type TelebotAdapter struct {
	bot sender
}

var _ notify.Notifier = (*TelebotAdapter)(nil)

func NewTelebotAdapter(b *telebot.Bot) *TelebotAdapter {
	return &TelebotAdapter{bot: b}
}

func (tba *TelebotAdapter) AnnounceToTenant(_ context.Context, tenantID int64, text string) error {
	_, err := tba.bot.Send(telebot.ChatID(tenantID), text)
	return err
}

// DirectMessage sends a private message; tenant chats and user chats share the id space.
func (tba *TelebotAdapter) DirectMessage(_ context.Context, userID int64, text string) error {
	_, err := tba.bot.Send(&telebot.User{ID: userID}, text)
	return err
}

func (tba *TelebotAdapter) PromptFeedback(_ context.Context, userID int64, prompt notify.FeedbackPrompt) error {
	text := fmt.Sprintf("Cycle %d is over. How did your meeting with %s go?", prompt.Cycle, prompt.PartnerName)
	_, err := tba.bot.Send(&telebot.User{ID: userID}, text, feedbackMarkup(prompt))
	return err
}

func (tba *TelebotAdapter) PromptOptOut(_ context.Context, tenantID int64, text string) error {
	_, err := tba.bot.Send(telebot.ChatID(tenantID), text, optOutMarkup())
	return err
}

func feedbackMarkup(prompt notify.FeedbackPrompt) *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	id := strconv.FormatInt(prompt.ReportID, 10)
	buttons := make([]telebot.Btn, 0, len(prompt.Options))
	for _, o := range prompt.Options {
		buttons = append(buttons, markup.Data(outcomeLabel(o), feedbackUnique, id, string(o)))
	}
	markup.Inline(markup.Row(buttons...))
	return markup
}

func optOutMarkup() *telebot.ReplyMarkup {
	markup := &telebot.ReplyMarkup{}
	markup.Inline(markup.Row(
		markup.Data("Skip this cycle", optOutUnique, "out"),
		markup.Data("Count me in", optOutUnique, "in"),
	))
	return markup
}

func outcomeLabel(o pairing.Outcome) string {
	switch o {
	case pairing.OutcomeHappened:
		return "We met"
	case pairing.OutcomeScheduled:
		return "It's scheduled"
	case pairing.OutcomeMissed:
		return "We didn't meet"
	}
	return string(o)
}
