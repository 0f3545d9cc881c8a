package telegram

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"pairing_bot/internal/app"
	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/pairing"
	"pairing_bot/internal/domain/tenant"

	"gopkg.in/telebot.v3"
)

const (
	unauthorizedText = "Only chat admins can use this command."
	groupOnlyText    = "Use this command in your group chat."
	genericErrorText = "Something went wrong. Please try again later."
)

var errNoTarget = errors.New("no target user")

// replyFor turns a service error into text for the chat. Unknown errors get a generic reply.
func replyFor(err error) string {
	switch {
	case errors.Is(err, tenant.ErrNotFound):
		return "This chat isn't set up for 1:1s yet. An admin can run /setup."
	case errors.Is(err, app.ErrAlreadyMember):
		return "You're already in the 1:1 programme."
	case errors.Is(err, app.ErrNotMember):
		return "You're not in the 1:1 programme. Use /join first."
	case errors.Is(err, member.ErrNotFound), errors.Is(err, app.ErrPartnerNotActive):
		return "That person isn't an active member of the programme."
	case errors.Is(err, app.ErrInvalidCadence):
		return "Frequency must be a positive number of cycles, e.g. /frequency 2."
	case errors.Is(err, app.ErrSelfPreference):
		return "You can't ask to be paired with yourself."
	case errors.Is(err, pairing.ErrPreferenceExists):
		return "That pairing request already exists."
	case errors.Is(err, pairing.ErrPairNotFound):
		return "You don't have a partner right now."
	case errors.Is(err, app.ErrCycleInProgress):
		return "A pairing run is already in progress for this chat."
	case errors.Is(err, app.ErrFeedbackClosed):
		return "Feedback for that cycle is closed."
	case errors.Is(err, app.ErrNotReporter):
		return "That question was meant for someone else."
	case errors.Is(err, app.ErrInvalidOutcome), errors.Is(err, pairing.ErrReportNotFound):
		return "Unknown answer."
	case errors.Is(err, app.ErrInvalidIdentifier), errors.Is(err, errNoTarget):
		return "Reply to someone's message or pass their numeric user id."
	}
	return genericErrorText
}

// targetUser picks the user a command refers to: the author of the replied-to
// message, otherwise the first argument as a numeric id.
func targetUser(args []string, replyTo *telebot.Message) (int64, error) {
	if replyTo != nil && replyTo.Sender != nil {
		return replyTo.Sender.ID, nil
	}
	if len(args) == 0 {
		return 0, errNoTarget
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id == 0 {
		return 0, app.ErrInvalidIdentifier
	}
	return id, nil
}

// parseFeedbackPayload reads "<reportID>|<outcome>" callback arguments.
func parseFeedbackPayload(args []string) (int64, string, error) {
	if len(args) != 2 {
		return 0, "", fmt.Errorf("invalid feedback payload %q", strings.Join(args, "|"))
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid report id %q: %w", args[0], err)
	}
	return id, args[1], nil
}

func displayNameOf(u *telebot.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" && u.Username != "" {
		return "@" + u.Username
	}
	return name
}

func formatHistory(entries []app.HistoryEntry) string {
	if len(entries) == 0 {
		return "You haven't been paired yet."
	}
	var b strings.Builder
	b.WriteString("Your pairing history:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "Cycle %d: %s (%s)\n", e.Cycle, e.PartnerName, e.Outcome)
	}
	return strings.TrimRight(b.String(), "\n")
}

func formatState(s *app.TenantState) string {
	var b strings.Builder
	active := 0
	for _, m := range s.Members {
		if m.IsActive() {
			active++
		}
	}
	fmt.Fprintf(&b, "Cycle: %d\nActive members: %d of %d\nCurrent pairs: %d\nUnpaired: %d\nPending requests: %d",
		s.Tenant.Cycle, active, len(s.Members), len(s.CurrentPairs), len(s.Unpaired), len(s.Preferences))
	return b.String()
}

func cycleSummary(r *app.CycleReport) string {
	return fmt.Sprintf("Cycle %d done: %d pairs, %d unpaired.", r.Cycle, len(r.Pairs), len(r.Unpaired))
}
