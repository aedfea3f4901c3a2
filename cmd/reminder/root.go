package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "reminder",
		Short: "Hydration reminder scheduler",
		Long: "Schedules and delivers hydration reminders through the console, a Telegram chat " +
			"or the in-process alarm host. Configuration comes from the environment and an optional .env file.",
		SilenceUsage: true,
	}
	root.AddCommand(
		newServeCmd(),
		newSendCmd(),
		newScheduleCmd(),
		newPendingCmd(),
		newCancelCmd(),
		newHistoryCmd(),
		newPurgeCmd(),
		newLogsCmd(),
		newPlanCmd(),
		newPermissionCmd(),
	)
	return root
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// withApp bootstraps the application around a command body.
func withApp(cmd *cobra.Command, fn func(a *application) error) error {
	a, err := bootstrap(cmd.Context(), cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}
