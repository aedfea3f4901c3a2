// internal/infra/telegram/bot_commands_handler.go
package telegram

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"

	"hydration_reminder/internal/app"
)

const historyPageSize = 10

// BotCommands answers the chat commands. Replies are plain strings so the
// telebot handlers stay thin.
type BotCommands struct {
	services *app.Services
	chatID   int64
	now      func() time.Time
}

func NewBotCommands(services *app.Services, chatID int64) *BotCommands {
	return &BotCommands{services: services, chatID: chatID, now: time.Now}
}

func RegisterBotCommands(
	ctx context.Context,
	b *telebot.Bot,
	bc *BotCommands,
	baseLogger *logrus.Entry, // For contextual logging
) {
	handle := func(command string, reply func(c telebot.Context) string) {
		b.Handle(command, func(c telebot.Context) error {
			logCtx := baseLogger.WithField("command", command).WithField("chat_id", c.Chat().ID)
			logCtx.Info("Processing command")

			if c.Chat().ID != bc.chatID {
				logCtx.Warn("Command from unknown chat ignored")
				return c.Send("This bot only serves its configured chat.")
			}
			return c.Send(reply(c), &telebot.SendOptions{ParseMode: telebot.ModeHTML})
		})
	}

	handle("/start", func(c telebot.Context) string { return bc.Start(c.Sender().FirstName) })
	handle("/help", func(telebot.Context) string { return bc.Help() })
	handle("/drink", func(telebot.Context) string { return bc.Drink(ctx) })
	handle("/remind", func(c telebot.Context) string { return bc.Remind(ctx, c.Args()) })
	handle("/pending", func(telebot.Context) string { return bc.Pending(ctx) })
	handle("/cancel", func(telebot.Context) string { return bc.Cancel(ctx) })
	handle("/history", func(telebot.Context) string { return bc.History() })
}

func (bc *BotCommands) Start(firstName string) string {
	if firstName == "" {
		firstName = "there"
	}
	return fmt.Sprintf("Hi %s! I will remind you to drink water. Use /help to see what I can do.", firstName)
}

func (bc *BotCommands) Help() string {
	var helpText strings.Builder
	helpText.WriteString("Available commands:\n\n")
	helpText.WriteString("/drink - send a hydration reminder now\n")
	helpText.WriteString("/remind &lt;minutes&gt; [text] - remind me once after the given minutes\n")
	helpText.WriteString("/pending - list scheduled reminders\n")
	helpText.WriteString("/cancel - cancel all scheduled reminders\n")
	helpText.WriteString("/history - show recent notifications\n")
	helpText.WriteString("/help - show this message")
	return helpText.String()
}

func (bc *BotCommands) Drink(ctx context.Context) string {
	res := bc.services.Dispatcher.SendHydrationReminder(ctx, app.HydrationStats{})
	if !res.Success {
		return "Could not send a reminder: " + html.EscapeString(res.Error)
	}
	if res.Deferred() {
		return fmt.Sprintf("Quiet hours now, I will remind you at %s.", res.ScheduledFor.Format("15:04"))
	}
	return "Reminder on its way."
}

func (bc *BotCommands) Remind(ctx context.Context, args []string) string {
	if len(args) == 0 {
		return "Usage: /remind &lt;minutes&gt; [text]"
	}
	minutes, err := strconv.Atoi(args[0])
	if err != nil || minutes <= 0 {
		return "Minutes must be a positive number."
	}
	body := strings.TrimSpace(strings.Join(args[1:], " "))
	if body == "" {
		body = "Have a glass of water."
	}
	at := bc.now().Add(time.Duration(minutes) * time.Minute)
	res := bc.services.Dispatcher.SendReminder(ctx, app.Intent{
		Title:             "💧 Reminder",
		Body:              body,
		ScheduledTime:     at,
		RespectQuietHours: true,
	})
	if !res.Success {
		return "Could not schedule the reminder: " + html.EscapeString(res.Error)
	}
	return fmt.Sprintf("OK, I will remind you at %s.", res.ScheduledFor.Format("15:04"))
}

func (bc *BotCommands) Pending(ctx context.Context) string {
	pending, err := bc.services.Engine.GetPending(ctx)
	if err != nil {
		return "Could not list reminders: " + err.Error()
	}
	if len(pending) == 0 {
		return "No reminders scheduled."
	}
	var sb strings.Builder
	sb.WriteString("<b>Scheduled reminders</b>\n")
	for _, r := range pending {
		fmt.Fprintf(&sb, "• %s %s", r.ScheduledTime.Format("Mon 15:04"), html.EscapeString(r.Title))
		if r.Recurring() {
			fmt.Fprintf(&sb, " (every %d min)", r.IntervalMinutes)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (bc *BotCommands) Cancel(ctx context.Context) string {
	if err := bc.services.Engine.CancelAll(ctx); err != nil {
		return "Could not cancel reminders: " + err.Error()
	}
	return "All reminders cancelled."
}

func (bc *BotCommands) History() string {
	entries := bc.services.Engine.History(historyPageSize)
	if len(entries) == 0 {
		return "No notifications yet."
	}
	var sb strings.Builder
	sb.WriteString("<b>Recent notifications</b>\n")
	for _, e := range entries {
		fmt.Fprintf(&sb, "• %s %s [%s]\n", e.SentAt.Format("Jan 2 15:04"), html.EscapeString(e.Title), e.Status)
	}
	return strings.TrimRight(sb.String(), "\n")
}
