package telegram

import "gopkg.in/telebot.v3"

// Client defines an interface for talking to a Telegram bot.
// This helps in decoupling the application logic from the specific bot library.
type Client interface {
	SendMessage(chatID int64, text string, options *telebot.SendOptions) error
	// ChatByID resolves a chat; an error tells whether the bot can still reach it.
	ChatByID(chatID int64) (*telebot.Chat, error)
}
