// Package render builds the chat messages for events, reminders and final summaries.
package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/squadron-ops/eventbot/internal/chat"
	"github.com/squadron-ops/eventbot/internal/models"
)

const (
	colorOpen      = 0x2f80ed
	colorConcluded = 0x7f8c8d
	maxListed      = 40
)

// Announcement renders the live event message with attendance counts and buttons.
func Announcement(ev *models.Event, s models.AttendanceSummary) chat.Message {
	msg := base(ev, s)
	msg.Color = colorOpen
	msg.Buttons = chat.AttendButtons()
	return msg
}

// Concluded renders the final, button-less state of an event.
func Concluded(ev *models.Event, s models.AttendanceSummary) chat.Message {
	msg := base(ev, s)
	msg.Color = colorConcluded
	msg.Title = "[Concluded] " + ev.Title
	msg.Footer = "This event has concluded."
	return msg
}

// Reminder renders a reminder that mentions userIDs.
func Reminder(ev *models.Event, kind string, userIDs []string) chat.Message {
	until := time.Until(ev.StartsAt).Round(time.Minute)
	var b strings.Builder
	b.WriteString(chat.MentionList(userIDs))
	if kind != "" {
		fmt.Fprintf(&b, "\n**%s** reminder: ", kind)
	} else {
		b.WriteString("\nReminder: ")
	}
	if until > 0 {
		fmt.Fprintf(&b, "%s starts in %s (<t:%d:F>).", ev.Title, until, ev.StartsAt.Unix())
	} else {
		fmt.Fprintf(&b, "%s has started (<t:%d:F>).", ev.Title, ev.StartsAt.Unix())
	}
	return chat.Message{Content: b.String(), Mentions: userIDs}
}

// ThreadName returns the discussion thread name for an event, capped at the platform's 100 chars.
func ThreadName(ev *models.Event) string {
	name := ev.Settings.ThreadName
	if name == "" {
		name = ev.Title + " " + ev.StartsAt.UTC().Format("2006-01-02")
	}
	if r := []rune(name); len(r) > 100 {
		name = string(r[:100])
	}
	return name
}

func base(ev *models.Event, s models.AttendanceSummary) chat.Message {
	when := fmt.Sprintf("<t:%d:F>", ev.StartsAt.Unix())
	if ev.EndsAt != nil {
		when += fmt.Sprintf(" – <t:%d:t>", ev.EndsAt.Unix())
	}
	return chat.Message{
		Title:       ev.Title,
		Description: ev.Description,
		Fields: []chat.Field{
			{Name: "When", Value: when},
			{Name: fmt.Sprintf("Accepted (%d)", len(s.Accepted)), Value: names(s.Accepted), Inline: true},
			{Name: fmt.Sprintf("Tentative (%d)", len(s.Tentative)), Value: names(s.Tentative), Inline: true},
			{Name: fmt.Sprintf("Declined (%d)", len(s.Declined)), Value: names(s.Declined), Inline: true},
		},
	}
}

func names(recs []models.AttendanceRecord) string {
	if len(recs) == 0 {
		return "-"
	}
	var out []string
	for i, r := range recs {
		if i == maxListed {
			out = append(out, fmt.Sprintf("+%d more", len(recs)-maxListed))
			break
		}
		out = append(out, r.DisplayName)
	}
	return strings.Join(out, "\n")
}
