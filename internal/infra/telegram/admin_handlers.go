package telegram

import (
	"context"
	"fmt"
	"strings"

	"pairing_bot/internal/app"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// AdminServices are the services behind the admin commands.
type AdminServices struct {
	Membership *app.MembershipService
	Cycles     *app.CycleService
	Tenants    *app.TenantService
}

// RegisterAdminHandlers registers handlers for admin commands. Chat admins of the
// tenant chat are allowed, as is the configured operator id.
func RegisterAdminHandlers(ctx context.Context, b *telebot.Bot, svc AdminServices, adminTelegramID int64, baseLogger *logrus.Entry) {
	logger := baseLogger.WithField("handler_group", "admin")
	guard := func(h telebot.HandlerFunc) telebot.HandlerFunc {
		return adminOnly(adminTelegramID, logger, h)
	}

	b.Handle("/setup", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/setup")
		title := strings.TrimSpace(c.Message().Payload)
		if title == "" {
			title = c.Chat().Title
		}
		t, err := svc.Tenants.Register(ctx, c.Chat().ID, title)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx.WithField("cycle", t.Cycle).Info("Tenant registered")
		return c.Send(fmt.Sprintf("1:1 pairing is on for %s. Members can /join now.\nPairing runs on \"%s\" (UTC).", t.Title, t.CycleSpec))
	}))

	b.Handle("/schedule", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/schedule")
		kind, spec, ok := strings.Cut(strings.TrimSpace(c.Message().Payload), " ")
		spec = strings.TrimSpace(spec)
		if !ok || spec == "" {
			return c.Send("Usage: /schedule cycle|reminder|optout <cron spec>, e.g. /schedule cycle 0 9 * * 1")
		}
		var cycleSpec, reminderSpec, optOutSpec string
		switch kind {
		case "cycle":
			cycleSpec = spec
		case "reminder":
			reminderSpec = spec
		case "optout":
			optOutSpec = spec
		default:
			return c.Send("Timer must be one of: cycle, reminder, optout.")
		}
		if _, err := svc.Tenants.UpdateSchedule(ctx, c.Chat().ID, "", cycleSpec, reminderSpec, optOutSpec); err != nil {
			if text := replyFor(err); text != genericErrorText {
				return replyError(c, logCtx, err)
			}
			logCtx.WithError(err).Warn("Schedule update rejected")
			return c.Send(fmt.Sprintf("Could not use that schedule: %v", err))
		}
		logCtx.WithFields(logrus.Fields{"timer": kind, "spec": spec}).Info("Schedule updated")
		return c.Send(fmt.Sprintf("The %s timer now runs on \"%s\" (UTC).", kind, spec))
	}))

	b.Handle("/stop", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/stop")
		if err := svc.Tenants.Deregister(ctx, c.Chat().ID); err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx.Info("Tenant deregistered")
		return c.Send("1:1 pairing is off for this chat. Run /setup to turn it back on.")
	}))

	b.Handle("/kick", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/kick")
		userID, err := targetUser(c.Args(), c.Message().ReplyTo)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx = logCtx.WithField("target_id", userID)
		if err := svc.Membership.Kick(ctx, c.Chat().ID, userID); err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx.Info("Member kicked")
		return nil
	}))

	b.Handle("/pair", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/pair")
		report, err := svc.Cycles.RunCycle(ctx, c.Chat().ID, app.TriggerManual)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		logCtx.WithField("run_id", report.RunID).Info("Manual cycle finished")
		return c.Send(cycleSummary(report))
	}))

	b.Handle("/remind", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/remind")
		sent, err := svc.Cycles.SendReminders(ctx, c.Chat().ID)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(fmt.Sprintf("Sent %d reminder(s).", sent))
	}))

	b.Handle("/optout", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/optout")
		if err := svc.Membership.OpenOptOutWindow(ctx, c.Chat().ID); err != nil {
			return replyError(c, logCtx, err)
		}
		return nil
	}))

	b.Handle("/state", guard(func(c telebot.Context) error {
		logCtx := commandLogger(logger, c, "/state")
		state, err := svc.Cycles.State(ctx, c.Chat().ID)
		if err != nil {
			return replyError(c, logCtx, err)
		}
		return c.Send(formatState(state))
	}))
}
