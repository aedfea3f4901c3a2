package telegram

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/telebot.v3"

	"hydration_reminder/internal/domain/delivery"
)

func newTestLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

type sentMessage struct {
	chatID int64
	text   string
	opts   *telebot.SendOptions
}

// stubClient records sent messages and returns canned chat lookups.
type stubClient struct {
	sent    []sentMessage
	sendErr error
	chatErr error
}

func (s *stubClient) SendMessage(chatID int64, text string, opts *telebot.SendOptions) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.sent = append(s.sent, sentMessage{chatID: chatID, text: text, opts: opts})
	return nil
}

func (s *stubClient) ChatByID(chatID int64) (*telebot.Chat, error) {
	if s.chatErr != nil {
		return nil, s.chatErr
	}
	return &telebot.Chat{ID: chatID}, nil
}

func TestChannel_CheckPermission(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want delivery.Permission
	}{
		{"reachable", nil, delivery.PermissionGranted},
		{"blocked", telebot.ErrBlockedByUser, delivery.PermissionDenied},
		{"chat gone", telebot.ErrChatNotFound, delivery.PermissionDenied},
		{"network", errors.New("connection reset"), delivery.PermissionDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChannel(&stubClient{chatErr: tt.err}, 42, 10, newTestLogger())
			assert.Equal(t, tt.want, c.CheckPermission(context.Background()))
			assert.Equal(t, tt.want, c.RequestPermission(context.Background()))
		})
	}
}

func TestChannel_Show(t *testing.T) {
	client := &stubClient{}
	c := NewChannel(client, 42, 100, newTestLogger())

	err := c.Show(context.Background(), delivery.Notice{ID: "n1", Title: "Drink <now>", Body: "250 ml & more"})
	require.NoError(t, err)
	require.Len(t, client.sent, 1)
	assert.Equal(t, int64(42), client.sent[0].chatID)
	assert.Equal(t, "<b>Drink &lt;now&gt;</b>\n250 ml &amp; more", client.sent[0].text)
	assert.Equal(t, telebot.ModeHTML, client.sent[0].opts.ParseMode)
}

func TestChannel_ShowErrors(t *testing.T) {
	sendErr := errors.New("telegram: Too Many Requests")
	c := NewChannel(&stubClient{sendErr: sendErr}, 42, 100, newTestLogger())
	assert.ErrorIs(t, c.Show(context.Background(), delivery.Notice{Title: "x"}), sendErr)

	// The limiter's single token is spent; a cancelled wait reports the context.
	limited := NewChannel(&stubClient{}, 42, 0.001, newTestLogger())
	require.NoError(t, limited.Show(context.Background(), delivery.Notice{Title: "first"}))
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, limited.Show(ctx, delivery.Notice{Title: "second"}))
}

func TestFormatNotice(t *testing.T) {
	assert.Equal(t, "💧 <b>Hydrate</b>", FormatNotice(delivery.Notice{Icon: "💧", Title: "Hydrate"}))
	assert.Equal(t, "just body", FormatNotice(delivery.Notice{Body: "just body"}))
}
