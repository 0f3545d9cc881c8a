package app

import (
	"fmt"
	"strings"

	"pairing_bot/internal/domain/member"
	"pairing_bot/internal/domain/pairing"
)

// names resolves user ids to display names for message rendering.
type names map[int64]string

func namesOf(members []*member.Member) names {
	n := make(names, len(members))
	for _, m := range members {
		n[m.UserID] = m.DisplayName
	}
	return n
}

func (n names) of(userID int64) string {
	if name := n[userID]; name != "" {
		return name
	}
	return fmt.Sprintf("user %d", userID)
}

func pairsAnnouncement(cycle int64, pairs []pairing.Pair, unpaired []int64, n names) string {
	var b strings.Builder
	if len(pairs) == 0 {
		fmt.Fprintf(&b, "Cycle %d: nobody to pair this time.", cycle)
	} else {
		fmt.Fprintf(&b, "Cycle %d pairs:\n", cycle)
		for _, p := range pairs {
			fmt.Fprintf(&b, "• %s + %s\n", n.of(p.A), n.of(p.B))
		}
	}
	for _, id := range unpaired {
		fmt.Fprintf(&b, "\n%s is unpaired this cycle and will be matched with the next person to join.", n.of(id))
	}
	return strings.TrimRight(b.String(), "\n")
}

func newPairText(a, b string) string {
	return fmt.Sprintf("New pair: %s + %s", a, b)
}

func unpairedText(name string) string {
	return fmt.Sprintf("%s is now unpaired.", name)
}

func departureText(name string, reason RemovalReason) string {
	switch reason {
	case ReasonKicked:
		return fmt.Sprintf("%s was removed from the 1:1 programme.", name)
	case ReasonAttrition:
		return fmt.Sprintf("%s has been opted out of the 1:1 programme after missing several meetings.", name)
	default:
		return fmt.Sprintf("%s has left the 1:1 programme.", name)
	}
}

func reminderText(partner string) string {
	return fmt.Sprintf("Don't forget to meet up with %s, if you haven't already!", partner)
}

const attritionText = "You've been automatically opted out of the 1:1 programme after %d missed meetings in a row. Use /join to come back any time."

const optOutPromptText = "Pairings for the coming cycle are being prepared. Press the button below to sit this one out."
