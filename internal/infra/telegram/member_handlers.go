// internal/infra/telegram/member_handlers.go
package telegram

import (
	"context"
	"fmt"
	"strconv"

	"pairing_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

const memberHelp = "1:1 pairing bot. Every cycle I pair up members of this chat for a meeting.\n\n" +
	"/join - join the programme\n" +
	"/leave - leave the programme\n" +
	"/frequency N - meet every N cycles\n" +
	"/prefer <user id> - ask to be paired with someone (or reply to their message)\n" +
	"/partner - show your current partner\n" +
	"/history - show your past partners\n" +
	"/help - show this message"

const adminHelp = "\n\nAdmin commands:\n" +
	"/setup [title] - enable pairing in this chat\n" +
	"/schedule cycle|reminder|optout <cron spec> - change a timer\n" +
	"/kick <user id> - remove a member (or reply to their message)\n" +
	"/pair - run a pairing cycle now\n" +
	"/remind - send reminders to current pairs\n" +
	"/optout - open the opt-out window\n" +
	"/state - show programme state\n" +
	"/stop - disable pairing in this chat"

// RegisterMemberCommands wires the commands any chat member can use.
func RegisterMemberCommands(ctx context.Context, b *telebot.Bot, membership *app.MembershipService, adminTelegramID int64, baseLogger *logrus.Entry) {
	logger := baseLogger.WithField("handler_group", "member")

	b.Handle("/start", func(c telebot.Context) error {
		return c.Send(memberHelp)
	})

	b.Handle("/help", func(c telebot.Context) error {
		if isAdmin(c, adminTelegramID) {
			return c.Send(memberHelp + adminHelp)
		}
		return c.Send(memberHelp)
	})

	b.Handle("/join", groupOnly(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/join")
		m, err := membership.Join(ctx, c.Chat().ID, c.Sender().ID, displayNameOf(c.Sender()))
		if err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx.Info("Member joined")
		return c.Send(fmt.Sprintf("Welcome, %s! You'll be paired every %d cycle(s).", m.DisplayName, m.Cadence))
	}))

	b.Handle("/leave", groupOnly(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/leave")
		if err := membership.Leave(ctx, c.Chat().ID, c.Sender().ID); err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx.Info("Member left")
		return nil // the departure is announced by the service
	}))

	b.Handle("/frequency", groupOnly(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/frequency")
		args := c.Args()
		if len(args) != 1 {
			return c.Send("Usage: /frequency N, e.g. /frequency 2 to meet every other cycle.")
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return replyError(c, logCtx, app.ErrInvalidCadence)
		}
		if err := membership.SetCadence(ctx, c.Chat().ID, c.Sender().ID, n); err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(fmt.Sprintf("Got it, you'll be paired every %d cycle(s).", n))
	}))

	b.Handle("/prefer", groupOnly(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/prefer")
		partnerID, err := targetUser(c.Args(), c.Message().ReplyTo)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		if _, err := membership.AddPreference(ctx, c.Chat().ID, c.Sender().ID, partnerID); err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send("Noted. I'll try to pair you two in the next cycle.")
	}))

	b.Handle("/partner", groupOnly(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/partner")
		partner, err := membership.CurrentPartner(ctx, c.Chat().ID, c.Sender().ID)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(fmt.Sprintf("Your current partner is %s.", partner.DisplayName))
	}))

	b.Handle("/history", groupOnly(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/history")
		entries, err := membership.History(ctx, c.Chat().ID, c.Sender().ID)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(formatHistory(entries))
	}))
}

func groupOnly(h telebot.HandlerFunc) telebot.HandlerFunc {
	return func(c telebot.Context) error {
		if c.Chat() == nil || c.Chat().Type == telebot.ChatPrivate {
			return c.Send(groupOnlyText)
		}
		return h(c)
	}
}

func commandLogger(base *logrus.Entry, c telebot.Context, command string) *logrus.Entry {
	fields := logrus.Fields{"command": command, "user_id": c.Sender().ID}
	if c.Chat() != nil {
		fields["tenant_id"] = c.Chat().ID
	}
	return base.WithFields(fields)
}

// replyError logs at WARN for expected rejections and ERROR for everything else.
func replyError(c telebot.Context, logCtx *logrus.Entry, err error) error {
	text := replyFor(err)
	if text == genericErrorText {
		logCtx.WithError(err).Error("Command failed")
	} else {
		logCtx.WithError(err).Warn("Command rejected")
	}
	return c.Send(text)
}

func isAdmin(c telebot.Context, adminTelegramID int64) bool {
	if c.Sender() == nil {
		return false
	}
	if adminTelegramID != 0 && c.Sender().ID == adminTelegramID {
		return true
	}
	if c.Chat() == nil || c.Chat().Type == telebot.ChatPrivate {
		return false
	}
	admins, err := c.Bot().AdminsOf(c.Chat())
	if err != nil {
		return false
	}
	for _, m := range admins {
		if m.User != nil && m.User.ID == c.Sender().ID {
			return true
		}
	}
	return false
}

func adminOnly(adminTelegramID int64, logger *logrus.Entry, h telebot.HandlerFunc) telebot.HandlerFunc {
	return groupOnly(func(c telebot.Context) error {
		if !isAdmin(c, adminTelegramID) {
			logger.WithFields(logrus.Fields{"user_id": c.Sender().ID, "tenant_id": c.Chat().ID, "text": c.Text()}).
				Warn("Unauthorized access attempt")
			return c.Send(unauthorizedText)
		}
		return h(c)
	})
}
