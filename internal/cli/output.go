package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/squadron-ops/eventbot/internal/events"
	"github.com/squadron-ops/eventbot/internal/worker"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeResult prints an operation result and turns a failed result into an error.
func writeResult(w io.Writer, format, op string, res events.Result) error {
	if format == "json" {
		if err := writeJSON(w, res); err != nil {
			return err
		}
	} else if res.Success {
		fmt.Fprintf(w, "%s %s: ok\n", op, res.EventID)
		if len(res.MessageIDs) > 0 {
			fmt.Fprintf(w, "  messages: %s\n", strings.Join(res.MessageIDs, ", "))
		}
		if len(res.ThreadIDs) > 0 {
			fmt.Fprintf(w, "  threads:  %s\n", strings.Join(res.ThreadIDs, ", "))
		}
	}
	if !res.Success {
		return fmt.Errorf("%s %s: %s", op, res.EventID, res.Error)
	}
	return nil
}

type tickOutput struct {
	RemindersSent    int      `json:"reminders_sent"`
	RemindersDropped int      `json:"reminders_dropped"`
	Published        int      `json:"published"`
	Finalized        int      `json:"finalized"`
	Transitioned     int      `json:"transitioned"`
	Busy             int      `json:"busy"`
	Errors           []string `json:"errors,omitempty"`
}

func writeTick(w io.Writer, format string, r worker.TickReport) error {
	out := tickOutput{
		RemindersSent:    r.RemindersSent,
		RemindersDropped: r.RemindersDropped,
		Published:        r.Published,
		Finalized:        r.Finalized,
		Transitioned:     r.Transitioned,
		Busy:             r.Busy,
	}
	for _, e := range r.Errors {
		out.Errors = append(out.Errors, e.Error())
	}
	if format == "json" {
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "reminders sent:    %d\n", out.RemindersSent)
	fmt.Fprintf(w, "reminders dropped: %d\n", out.RemindersDropped)
	fmt.Fprintf(w, "published:         %d\n", out.Published)
	fmt.Fprintf(w, "finalized:         %d\n", out.Finalized)
	fmt.Fprintf(w, "transitioned:      %d\n", out.Transitioned)
	fmt.Fprintf(w, "busy:              %d\n", out.Busy)
	for _, e := range out.Errors {
		fmt.Fprintf(w, "error: %s\n", e)
	}
	return nil
}
