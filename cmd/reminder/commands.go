package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"hydration_reminder/internal/app"
	"hydration_reminder/internal/domain/reminder"
	"hydration_reminder/internal/infra/logger"
)

func newSendCmd() *cobra.Command {
	send := &cobra.Command{
		Use:   "send",
		Short: "Deliver a notification now",
	}

	var title, body string
	var respectQuiet bool
	message := &cobra.Command{
		Use:   "message",
		Short: "Send a custom notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				res := a.services.Dispatcher.SendReminder(cmd.Context(), app.Intent{
					Title:             title,
					Body:              body,
					RespectQuietHours: respectQuiet,
				})
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
	message.Flags().StringVar(&title, "title", "", "notification title")
	message.Flags().StringVar(&body, "body", "", "notification body")
	message.Flags().BoolVar(&respectQuiet, "respect-quiet-hours", false, "defer the notification out of quiet hours")
	_ = message.MarkFlagRequired("title")

	var consumed, goal, streak int
	hydration := &cobra.Command{
		Use:   "hydration",
		Short: "Send a hydration reminder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				res := a.services.Dispatcher.SendHydrationReminder(cmd.Context(), a.stats(consumed, goal, streak))
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
	summary := &cobra.Command{
		Use:   "summary",
		Short: "Send the daily hydration summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				res := a.services.Dispatcher.SendDailySummary(cmd.Context(), a.stats(consumed, goal, streak))
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
	for _, c := range []*cobra.Command{hydration, summary} {
		c.Flags().IntVar(&consumed, "consumed", 0, "water consumed today, ml")
		c.Flags().IntVar(&goal, "goal", 0, "daily goal in ml (default DAILY_GOAL_ML)")
		c.Flags().IntVar(&streak, "streak", 0, "days in a row the goal was met")
	}

	var achievement app.Achievement
	achieve := &cobra.Command{
		Use:   "achievement",
		Short: "Announce an unlocked achievement",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				res := a.services.Dispatcher.SendAchievement(cmd.Context(), achievement)
				return printResult(cmd.OutOrStdout(), res)
			})
		},
	}
	achieve.Flags().StringVar(&achievement.ID, "id", "", "achievement id")
	achieve.Flags().StringVar(&achievement.Title, "title", "", "achievement title")
	achieve.Flags().StringVar(&achievement.Description, "description", "", "achievement description")
	_ = achieve.MarkFlagRequired("title")

	send.AddCommand(message, hydration, summary, achieve)
	return send
}

func (a *application) stats(consumed, goal, streak int) app.HydrationStats {
	if goal <= 0 {
		goal = a.cfg.DailyGoalML
	}
	return app.HydrationStats{ConsumedML: consumed, GoalML: goal, Streak: streak}
}

func printResult(w io.Writer, res app.DeliveryResult) error {
	if !res.Success {
		return fmt.Errorf("notification not delivered: %s", res.Error)
	}
	if res.Deferred() {
		fmt.Fprintf(w, "scheduled %s for %s\n", res.ID, res.ScheduledFor.Format(time.RFC3339))
		return nil
	}
	fmt.Fprintf(w, "accepted %s at %s\n", res.ID, res.SentAt.Format(time.RFC3339))
	return nil
}

func newScheduleCmd() *cobra.Command {
	var req app.ScheduleRequest
	var at string
	var in time.Duration
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Schedule a reminder",
		Long: "Schedules a reminder at --at (RFC3339 or HH:MM, the next occurrence) or after --in. " +
			"With --every it repeats every given number of minutes. Reusing an id replaces that reminder.\n\n" +
			servingCaveat,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				when, err := resolveTime(at, in, time.Now())
				if err != nil {
					return err
				}
				req.ScheduledTime = when
				r, err := a.services.Engine.ScheduleNotification(cmd.Context(), req)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scheduled %s at %s\n", r.ID, r.ScheduledTime.Format(time.RFC3339))
				warnIfServing(cmd, a)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&req.ID, "id", "", "reminder id (generated when empty)")
	cmd.Flags().StringVar(&req.Title, "title", "", "reminder title")
	cmd.Flags().StringVar(&req.Body, "body", "", "reminder body")
	cmd.Flags().IntVar(&req.IntervalMinutes, "every", 0, "repeat interval in minutes, 0 for a one-shot")
	cmd.Flags().StringVar(&at, "at", "", "fire time, RFC3339 or HH:MM")
	cmd.Flags().DurationVar(&in, "in", 0, "fire after this duration")
	cmd.MarkFlagsMutuallyExclusive("at", "in")
	cmd.MarkFlagsOneRequired("at", "in")
	_ = cmd.MarkFlagRequired("title")
	return cmd
}

const servingCaveat = "A running serve keeps its own copy of the reminders and overwrites this change " +
	"on its next write. Stop serve first, or use the bot commands while it runs."

// warnIfServing tells the user when a live serve process will overwrite
// the change just made.
func warnIfServing(cmd *cobra.Command, a *application) {
	beat, ok := a.heartbeat.Alive(cmd.Context(), time.Now(), heartbeatTTL)
	if !ok {
		return
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "warning: serve (pid %d, seen %s) is running and will overwrite this change; restart it to pick it up\n",
		beat.PID, beat.SeenAt.Format(time.RFC3339))
}

// resolveTime turns --at or --in into an absolute time. An HH:MM clock
// that already passed today means tomorrow.
func resolveTime(at string, in time.Duration, now time.Time) (time.Time, error) {
	if at == "" {
		if in <= 0 {
			return time.Time{}, errors.New("--in must be positive")
		}
		return now.Add(in), nil
	}
	if t, err := time.Parse(time.RFC3339, at); err == nil {
		return t, nil
	}
	hour, minute, err := reminder.ParseClock(at)
	if err != nil {
		return time.Time{}, fmt.Errorf("--at: want RFC3339 or HH:MM: %w", err)
	}
	t := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !t.After(now) {
		t = t.AddDate(0, 0, 1)
	}
	return t, nil
}

func newPendingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List scheduled reminders",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				pending, err := a.services.Engine.GetPending(cmd.Context())
				if err != nil {
					return err
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no reminders scheduled")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNEXT\tEVERY\tTITLE")
				for _, r := range pending {
					every := "-"
					if r.Recurring() {
						every = fmt.Sprintf("%dm", r.IntervalMinutes)
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.ID, r.ScheduledTime.Format(time.RFC3339), every, r.Title)
				}
				return tw.Flush()
			})
		},
	}
}

func newCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel every scheduled reminder",
		Long:  "Cancels every scheduled reminder.\n\n" + servingCaveat,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				if err := a.services.Engine.CancelAll(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "all reminders cancelled")
				warnIfServing(cmd, a)
				return nil
			})
		},
	}
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent notifications, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				entries := a.services.Engine.History(limit)
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no notifications yet")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "SENT\tSTATUS\tTITLE")
				for _, e := range entries {
					fmt.Fprintf(tw, "%s\t%s\t%s\n", e.SentAt.Format(time.RFC3339), e.Status, e.Title)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "entries to show, 0 for all")
	return cmd
}

func newPurgeCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Drop history older than the retention window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				if !cmd.Flags().Changed("days") {
					days = a.cfg.HistoryRetentionDays
				}
				removed := a.services.Engine.PurgeHistory(cmd.Context(), days)
				fmt.Fprintf(cmd.OutOrStdout(), "removed %d entries older than %d days\n", removed, days)
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&days, "days", 7, "retention window in days (default HISTORY_RETENTION_DAYS)")
	return cmd
}

func newLogsCmd() *cobra.Command {
	var format, level, service string
	var limit int
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Export the persisted diagnostic log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				logs := a.services.Logs
				entries := logs.All()
				if level != "" {
					lvl, err := logger.ParseLevel(level)
					if err != nil {
						return err
					}
					entries = logs.ByLevel(lvl)
				}
				if service != "" {
					entries = filterService(entries, service)
				}
				if limit > 0 && len(entries) > limit {
					entries = entries[len(entries)-limit:]
				}
				switch strings.ToLower(format) {
				case "json":
					out, err := logger.ExportEntriesJSON(entries)
					if err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), out)
				case "text":
					fmt.Fprint(cmd.OutOrStdout(), logger.ExportEntriesText(entries))
				default:
					return fmt.Errorf("unknown format %q: want json or text", format)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "output format: json or text")
	cmd.Flags().StringVar(&level, "level", "", "only this level: DEBUG, INFO, WARN or ERROR")
	cmd.Flags().StringVar(&service, "service", "", "only this service")
	cmd.Flags().IntVar(&limit, "limit", 0, "newest entries to keep, 0 for all")
	return cmd
}

func filterService(entries []logger.Entry, service string) []logger.Entry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Service == service {
			out = append(out, e)
		}
	}
	return out
}

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Rebuild the hydration schedule from the current settings",
		Long:  "Cancels every pending reminder and, when notifications are enabled, schedules the recurring hydration reminder.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				r, err := a.services.Planner.Apply(cmd.Context(), a.services.Settings.Settings())
				if err != nil {
					return err
				}
				if r == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "notifications disabled, nothing scheduled")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "hydration reminders every %d minutes, first at %s\n",
					r.IntervalMinutes, r.ScheduledTime.Format(time.RFC3339))
				return nil
			})
		},
	}
}

func newPermissionCmd() *cobra.Command {
	var request bool
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Show the delivery permission state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(a *application) error {
				perm := a.services.Engine.CheckPermission(cmd.Context())
				if request {
					perm = a.services.Engine.RequestPermission(cmd.Context())
				}
				fmt.Fprintln(cmd.OutOrStdout(), perm)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&request, "request", false, "ask for permission instead of only checking")
	return cmd
}
