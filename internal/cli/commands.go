package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/squadron-ops/eventbot/config"
	"github.com/squadron-ops/eventbot/internal/events"
	"github.com/squadron-ops/eventbot/internal/lock"
	"github.com/squadron-ops/eventbot/internal/models"
	"github.com/squadron-ops/eventbot/pkg/database"
)

// NewMigrateCommand creates the migrate command. It needs only the database.
func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the embedded SQL migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), opts.logger())
			if err != nil {
				return err
			}
			defer pool.Close()
			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

// NewTickCommand runs one processor tick and prints its report.
func NewTickCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tick",
		Short: "Run the reminder/publication processor once",
		Long: `Run the reminder/publication processor once.

Safe to run while servers and workers are up: every item is taken under the
same job lock they use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.Open(cmd.Context(), opts.logger())
			if err != nil {
				return err
			}
			defer a.Close()
			return writeTick(cmd.OutOrStdout(), opts.Format, a.Processor.Tick(cmd.Context()))
		},
	}
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(opts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "publish <event-id>",
		Short: "Post an event to every squadron channel that lacks it",
		Long: `Post an event to every squadron channel that lacks it.

With --at the announcement is queued and posted by the processor once the
time is reached.

Examples:
  eventctl publish 6f1c...
  eventctl publish 6f1c... --at 2026-05-01T12:00:00Z`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}
			var when time.Time
			if at != "" {
				if when, err = time.Parse(time.RFC3339, at); err != nil {
					return fmt.Errorf("invalid --at %q: want RFC3339", at)
				}
			}
			a, err := opts.Open(cmd.Context(), opts.logger())
			if err != nil {
				return err
			}
			defer a.Close()
			if at != "" {
				return writeResult(cmd.OutOrStdout(), opts.Format, "schedule", a.Service.SchedulePublish(cmd.Context(), id, when))
			}
			return writeResult(cmd.OutOrStdout(), opts.Format, "publish", a.Service.Publish(cmd.Context(), id))
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "publish later, at this RFC3339 time")
	return cmd
}

// RemindOptions holds flags for the remind command.
type RemindOptions struct {
	*RootOptions
	Users      []string
	Accepted   bool
	Tentative  bool
	Declined   bool
	NoResponse bool
}

func (o *RemindOptions) request() (events.ManualReminder, error) {
	req := events.ManualReminder{
		UserIDs: o.Users,
		Filter: models.RecipientFilter{
			Accepted:   o.Accepted,
			Tentative:  o.Tentative,
			Declined:   o.Declined,
			NoResponse: o.NoResponse,
		},
	}
	if len(req.UserIDs) == 0 && !req.Filter.Any() {
		return req, fmt.Errorf("select recipients with --user or at least one response flag")
	}
	return req, nil
}

// NewRemindCommand creates the remind command.
func NewRemindCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RemindOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "remind <event-id>",
		Short: "Send a manual reminder",
		Long: `Send a manual reminder through the same pipeline as scheduled reminders.

Examples:
  eventctl remind 6f1c... --no-response
  eventctl remind 6f1c... --user 1234 --user 5678`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}
			req, err := opts.request()
			if err != nil {
				return err
			}
			a, err := opts.Open(cmd.Context(), opts.logger())
			if err != nil {
				return err
			}
			defer a.Close()
			return writeResult(cmd.OutOrStdout(), opts.Format, "remind", a.Service.SendManualReminder(cmd.Context(), id, req))
		},
	}

	cmd.Flags().StringSliceVar(&opts.Users, "user", nil, "explicit recipient user id (repeatable)")
	cmd.Flags().BoolVar(&opts.Accepted, "accepted", false, "remind users who accepted")
	cmd.Flags().BoolVar(&opts.Tentative, "tentative", false, "remind users who answered tentative")
	cmd.Flags().BoolVar(&opts.Declined, "declined", false, "remind users who declined")
	cmd.Flags().BoolVar(&opts.NoResponse, "no-response", false, "remind active members who have not answered")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <event-id>",
		Short: "Delete an event with its messages, threads and reminders",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseEventID(args[0])
			if err != nil {
				return err
			}
			a, err := opts.Open(cmd.Context(), opts.logger())
			if err != nil {
				return err
			}
			defer a.Close()
			return writeResult(cmd.OutOrStdout(), opts.Format, "delete", a.Service.Delete(cmd.Context(), id))
		},
	}
}

// NewLockKeyCommand prints the advisory lock key of a job id, for matching pg_locks rows.
func NewLockKeyCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "lock-key <job-id>",
		Short: "Print the Postgres advisory lock key for a job id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid job id %q: %w", args[0], err)
			}
			key := lock.KeyFor(id)
			if opts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"job_id": id, "key": key})
			}
			fmt.Fprintln(cmd.OutOrStdout(), key)
			return nil
		},
	}
}

func parseEventID(s string) (uuid.UUID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid event id %q: %w", s, err)
	}
	return id, nil
}
