package bot

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// maxCaption is the Bot API limit for media captions, in characters.
const maxCaption = 1024

// Telegram implements Chat over the Bot API.
type Telegram struct {
	api *tgbotapi.BotAPI
}

func NewTelegram(api *tgbotapi.BotAPI) *Telegram {
	return &Telegram{api: api}
}

func (t *Telegram) Reply(chatID int64, replyTo int, text string, markdown bool) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if markdown {
		msg.ParseMode = tgbotapi.ModeMarkdown
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

func (t *Telegram) Edit(chatID int64, messageID int, text string) error {
	_, err := t.api.Send(tgbotapi.NewEditMessageText(chatID, messageID, text))
	return err
}

func (t *Telegram) Delete(chatID int64, messageID int) error {
	_, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID))
	return err
}

func (t *Telegram) SendVideo(chatID int64, replyTo int, path, caption string) error {
	// The chat action is cosmetic; a failure there must not stop the upload.
	_, _ = t.api.Request(tgbotapi.NewChatAction(chatID, tgbotapi.ChatUploadVideo))

	video := tgbotapi.NewVideo(chatID, tgbotapi.FilePath(path))
	video.Caption = truncate(caption, maxCaption)
	video.ReplyToMessageID = replyTo
	video.SupportsStreaming = true
	if _, err := t.api.Send(video); err != nil {
		return fmt.Errorf("sending video: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Dispatch routes an update: /start and /help get the usage text, other
// commands are ignored and plain text goes to Handle.
func (h *Handler) Dispatch(ctx context.Context, update tgbotapi.Update) error {
	m, ok := toMessage(update)
	if !ok {
		return nil
	}
	if update.Message.IsCommand() {
		switch update.Message.Command() {
		case "start", "help":
			return h.Usage(ctx, m)
		}
		return nil
	}
	return h.Handle(ctx, m)
}

// toMessage converts an update to a Message. ok is false for anything that
// is not a text message.
func toMessage(update tgbotapi.Update) (m Message, ok bool) {
	msg := update.Message
	if msg == nil || msg.Text == "" {
		return Message{}, false
	}
	m = Message{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
		Text:      msg.Text,
	}
	if msg.From != nil {
		m.From = msg.From.UserName
	}
	return m, true
}

// Logger adapts a zerolog.Logger to tgbotapi.BotLogger.
type Logger struct {
	Log zerolog.Logger
}

func (l Logger) Println(v ...interface{}) {
	l.Log.Debug().Msg(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

func (l Logger) Printf(format string, v ...interface{}) {
	l.Log.Debug().Msgf(format, v...)
}
