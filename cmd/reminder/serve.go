package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"hydration_reminder/internal/infra/logger"
	"hydration_reminder/internal/infra/telegram"
)

const (
	historyRetentionJob = "history_retention"
	heartbeatJob        = "serve_heartbeat"

	heartbeatInterval = time.Minute
	// heartbeatTTL is how long a beat counts as a live server.
	heartbeatTTL = 3 * heartbeatInterval
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler until interrupted",
		Long: "Starts the due-reminder checker (or the alarm host on native platforms), " +
			"the daily history purge and, when configured, the Telegram bot commands.",
		Args: cobra.NoArgs,
		RunE: runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := bootstrap(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.Close()
	return a.serve(ctx)
}

func (a *application) serve(ctx context.Context) error {
	log := logger.ForService(a.log, "main")
	engine := a.services.Engine

	if err := a.services.Planner.Ensure(ctx, a.services.Settings.Settings()); err != nil {
		return err
	}

	retentionDays := a.cfg.HistoryRetentionDays
	err := a.cron.AddJob(historyRetentionJob, "@daily", time.Minute, func(ctx context.Context) error {
		removed := engine.PurgeHistory(ctx, retentionDays)
		log.WithField("removed", removed).Info("History retention applied")
		return nil
	})
	if err != nil {
		return err
	}
	pid := os.Getpid()
	beat := func(ctx context.Context) {
		if err := a.heartbeat.Beat(ctx, pid, time.Now()); err != nil {
			log.WithError(err).Warn("Failed to record heartbeat")
		}
	}
	beat(ctx)
	stopBeat, err := a.cron.Every(heartbeatJob, heartbeatInterval, beat)
	if err != nil {
		return err
	}
	defer func() {
		stopBeat()
		if err := a.heartbeat.Clear(context.Background()); err != nil {
			log.WithError(err).Warn("Failed to clear heartbeat")
		}
	}()

	a.cron.Start()
	defer a.cron.Stop()

	if a.alarms != nil {
		// Stopped by Close.
		a.alarms.Start()
	}

	if err := engine.StartChecker(ctx); err != nil {
		return err
	}
	defer engine.StopChecker()

	if a.bot != nil {
		commands := telegram.NewBotCommands(a.services, a.cfg.TelegramChatID)
		telegram.RegisterBotCommands(ctx, a.bot, commands, logger.ForService(a.log, "bot"))
		go a.bot.Start()
		defer a.bot.Stop()
		log.Info("Telegram bot started")
	}

	log.WithField("platform", a.cfg.Platform).Info("Hydration reminder service running")
	<-ctx.Done()
	log.Info("Shutting down...")
	return nil
}
