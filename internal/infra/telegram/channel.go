// internal/infra/telegram/channel.go
package telegram

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gopkg.in/telebot.v3"

	"hydration_reminder/internal/domain/delivery"
	domaintg "hydration_reminder/internal/domain/telegram"
)

// Channel delivers notices as messages to a single Telegram chat. It can
// only send right now, so the engine drives recurrence itself.
type Channel struct {
	client  domaintg.Client
	chatID  int64
	limiter *rate.Limiter
	logger  *logrus.Entry
}

var _ delivery.Channel = (*Channel)(nil)

func NewChannel(client domaintg.Client, chatID int64, ratePerSecond float64, logger *logrus.Entry) *Channel {
	if ratePerSecond <= 0 {
		ratePerSecond = 1
	}
	return &Channel{
		client:  client,
		chatID:  chatID,
		limiter: rate.NewLimiter(rate.Limit(ratePerSecond), 1),
		logger:  logger.WithField("chat_id", chatID),
	}
}

func (c *Channel) Name() string { return "telegram" }

// CheckPermission maps chat reachability onto the permission model: a
// blocked bot or a vanished chat is a denial.
func (c *Channel) CheckPermission(ctx context.Context) delivery.Permission {
	_, err := c.client.ChatByID(c.chatID)
	switch {
	case err == nil:
		return delivery.PermissionGranted
	case errors.Is(err, telebot.ErrBlockedByUser),
		errors.Is(err, telebot.ErrChatNotFound),
		errors.Is(err, telebot.ErrUserIsDeactivated),
		errors.Is(err, telebot.ErrKickedFromGroup):
		c.logger.WithError(err).Warn("Telegram chat is not reachable")
		return delivery.PermissionDenied
	default:
		c.logger.WithError(err).Warn("Could not determine Telegram chat state")
		return delivery.PermissionDefault
	}
}

// RequestPermission cannot prompt: the user grants it by starting the bot.
func (c *Channel) RequestPermission(ctx context.Context) delivery.Permission {
	return c.CheckPermission(ctx)
}

func (c *Channel) Show(ctx context.Context, n delivery.Notice) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("waiting for telegram send slot: %w", err)
	}
	opts := &telebot.SendOptions{ParseMode: telebot.ModeHTML, DisableWebPagePreview: true}
	if err := c.client.SendMessage(c.chatID, FormatNotice(n), opts); err != nil {
		return fmt.Errorf("sending telegram message: %w", err)
	}
	c.logger.WithField("notice_id", n.ID).Debug("Notice sent to Telegram")
	return nil
}

// FormatNotice renders a notice as HTML: bold title, then the body.
func FormatNotice(n delivery.Notice) string {
	var sb strings.Builder
	if n.Icon != "" {
		sb.WriteString(n.Icon)
		sb.WriteString(" ")
	}
	if n.Title != "" {
		sb.WriteString("<b>")
		sb.WriteString(html.EscapeString(n.Title))
		sb.WriteString("</b>")
	}
	if n.Body != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(html.EscapeString(n.Body))
	}
	return sb.String()
}
