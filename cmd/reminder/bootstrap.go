package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"hydration_reminder/internal/app"
	"hydration_reminder/internal/domain/delivery"
	"hydration_reminder/internal/domain/reminder"
	"hydration_reminder/internal/infra/alarm"
	"hydration_reminder/internal/infra/config"
	"hydration_reminder/internal/infra/console"
	"hydration_reminder/internal/infra/database"
	"hydration_reminder/internal/infra/logger"
	"hydration_reminder/internal/infra/scheduler"
	"hydration_reminder/internal/infra/telegram"
)

// application is everything a command needs, wired from configuration.
type application struct {
	cfg       *config.AppConfig
	log       *logrus.Logger
	kv        database.KV
	heartbeat *database.Heartbeat
	services  *app.Services
	cron      *scheduler.CronScheduler
	alarms    *alarm.Host  // native platform only
	bot       *telebot.Bot // nil without TELEGRAM_TOKEN
}

func settingsFromConfig(cfg *config.AppConfig) reminder.Settings {
	return reminder.Settings{
		Notifications:    cfg.NotificationsEnabled,
		ReminderInterval: cfg.ReminderIntervalMinutes,
		QuietHours:       reminder.QuietHours{Start: cfg.QuietHoursStart, End: cfg.QuietHoursEnd},
		WeekendReminders: cfg.WeekendReminders,
		SmartReminders:   cfg.SmartReminders,
	}
}

// bootstrap loads configuration and wires the stores, the delivery channel
// and the engine. Console notices are written to out.
func bootstrap(ctx context.Context, out io.Writer) (*application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	log := logger.New(cfg)
	mainLog := logger.ForService(log, "main")
	mainLog.WithFields(logrus.Fields{
		"environment": cfg.Environment,
		"platform":    cfg.Platform,
		"storage":     cfg.StorageDriver,
	}).Debug("Configuration loaded")

	kv, err := database.Open(ctx, database.Config{
		Driver:      cfg.StorageDriver,
		Path:        cfg.StoragePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}
	a := &application{
		cfg:       cfg,
		log:       log,
		kv:        kv,
		heartbeat: database.NewHeartbeat(kv, logger.ForService(log, "heartbeat")),
	}

	logs := logger.NewBuffer(kv, logger.BufferOptions{
		Capacity:    cfg.LogBufferSize,
		PersistTail: cfg.LogPersistSize,
	})
	logs.Restore(ctx)
	log.AddHook(logs)

	store := database.NewNotificationStore(ctx, kv, logger.ForService(log, "notification-store"), cfg.MaxHistory)

	web, err := a.webChannel(out)
	if err != nil {
		a.Close()
		return nil, err
	}

	capability := cfg.Capability()
	var native delivery.AlarmChannel
	if capability.IsNative() {
		host, err := alarm.NewHost(web, database.NewAlarmSnapshot(kv, logger.ForService(log, "alarm-snapshot")), logger.ForService(log, "alarm-host"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.alarms = host
		native = host
		if err := host.Restore(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	channel, err := delivery.Resolve(capability, native, web)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.cron = scheduler.NewCronScheduler(logger.ForService(log, "cron"))
	settings := app.StaticSettings(settingsFromConfig(cfg))
	policy := reminder.Policy{Settings: settings.Settings()}

	engine, err := app.NewSchedulingEngine(app.EngineConfig{
		Channel:    channel,
		Capability: capability,
		Store:      store,
		Ticker:     a.cron,
		Logger:     logger.ForService(log, "scheduling-engine"),
		Policy:     &policy,
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating scheduling engine: %w", err)
	}
	if err := engine.Initialize(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("initializing scheduling engine: %w", err)
	}

	a.services = &app.Services{
		Store:      store,
		Engine:     engine,
		Dispatcher: app.NewDispatcher(engine, settings, logger.ForService(log, "dispatcher")),
		Planner:    app.NewHydrationPlanner(engine, logger.ForService(log, "hydration-planner")),
		Logs:       logs,
		Settings:   settings,
	}
	return a, nil
}

// webChannel picks Telegram when a token is configured and the console
// otherwise.
func (a *application) webChannel(out io.Writer) (delivery.Channel, error) {
	if a.cfg.TelegramToken == "" {
		return console.NewChannel(out), nil
	}
	botLog := logger.ForService(a.log, "telebot")
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  a.cfg.TelegramToken,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
		OnError: func(err error, c telebot.Context) {
			entry := botLog.WithError(err)
			if c != nil && c.Chat() != nil {
				entry = entry.WithField("chat_id", c.Chat().ID)
			}
			entry.Error("Telegram handler failed")
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating telegram bot: %w", err)
	}
	a.bot = bot
	return telegram.NewChannel(
		telegram.NewTelebotAdapter(bot),
		a.cfg.TelegramChatID,
		a.cfg.TelegramRatePerSecond,
		logger.ForService(a.log, "telegram"),
	), nil
}

// Close stops the alarm host, which may still be saving its snapshot,
// and then the storage.
func (a *application) Close() {
	log := logger.ForService(a.log, "main")
	if a.alarms != nil {
		if err := a.alarms.Shutdown(); err != nil {
			log.WithError(err).Warn("Alarm host did not stop cleanly")
		}
	}
	if err := a.kv.Close(); err != nil {
		log.WithError(err).Warn("Failed to close storage")
	}
}
