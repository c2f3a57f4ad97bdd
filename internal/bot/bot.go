// Package bot turns a chat message with a link into a video uploaded back to
// the same chat.
package bot

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/s77rt/WatchItOffline/internal/config"
	"github.com/s77rt/WatchItOffline/internal/media"
)

// Message is an incoming plain-text chat message.
type Message struct {
	ChatID    int64
	MessageID int
	Text      string
	From      string
}

// Chat is the transport the handler talks back through. Message ids returned
// by Reply can be passed to Edit and Delete.
type Chat interface {
	Reply(chatID int64, replyTo int, text string, markdown bool) (int, error)
	Edit(chatID int64, messageID int, text string) error
	Delete(chatID int64, messageID int) error
	SendVideo(chatID int64, replyTo int, path, caption string) error
}

type Handler struct {
	cfg       *config.Config
	chat      Chat
	extractor media.Extractor
}

func NewHandler(cfg *config.Config, chat Chat, extractor media.Extractor) *Handler {
	return &Handler{cfg: cfg, chat: chat, extractor: extractor}
}

// Usage replies with a short description of what the bot does.
func (h *Handler) Usage(ctx context.Context, m Message) error {
	_, err := h.chat.Reply(m.ChatID, m.MessageID, textUsage, false)
	return err
}

// Handle processes one message. Progress and failures are reported to the
// chat; the returned error is for logging only and is an *Error unless the
// chat itself could not be reached before the status message existed.
func (h *Handler) Handle(ctx context.Context, m Message) error {
	link := strings.TrimSpace(m.Text)
	if !media.IsHTTPURL(link) {
		if _, err := h.chat.Reply(m.ChatID, m.MessageID, textInvalidURL, false); err != nil {
			return fmt.Errorf("replying to invalid URL: %w", err)
		}
		return &Error{Kind: KindValidation, Err: fmt.Errorf("not an http(s) URL: %q", link)}
	}

	if _, err := h.chat.Reply(m.ChatID, m.MessageID, textDisclaimer, true); err != nil {
		return fmt.Errorf("sending disclaimer: %w", err)
	}
	status, err := h.chat.Reply(m.ChatID, m.MessageID, textProcessing, false)
	if err != nil {
		return fmt.Errorf("sending status: %w", err)
	}

	if err := h.fetch(ctx, m, link, status); err != nil {
		e := classify(err)
		if editErr := h.chat.Edit(m.ChatID, status, e.Text()); editErr != nil {
			zerolog.Ctx(ctx).Warn().Err(editErr).Msg("Failed to report error to chat")
		}
		return e
	}
	return nil
}

// fetch probes, downloads and uploads link. Every file it creates lives in a
// directory of its own under DownloadDir, removed before returning.
func (h *Handler) fetch(ctx context.Context, m Message, link string, status int) error {
	log := zerolog.Ctx(ctx)

	dir := filepath.Join(h.cfg.DownloadDir, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating download directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Debug().Err(err).Str("dir", dir).Msg("Failed to remove download directory")
		}
	}()

	req := media.Request{
		URL:         link,
		Format:      media.FormatSelector(h.cfg.MaxHeight),
		OutputDir:   dir,
		TitleLength: h.cfg.TitleLength,
		MaxBytes:    h.cfg.MaxFileSize,
		MergeFormat: h.cfg.MergeFormat,
	}

	info, err := h.extractor.Probe(ctx, req)
	if err != nil {
		return err
	}
	log.Info().Str("title", info.Title).Int64("size", info.Size).Msg("Probed")
	if info.Size > h.cfg.MaxFileSize {
		return &Error{Kind: KindSizeLimit, Err: fmt.Errorf("reported size %d exceeds %d", info.Size, h.cfg.MaxFileSize)}
	}

	if err := h.chat.Edit(m.ChatID, status, textDownloading); err != nil {
		log.Warn().Err(err).Msg("Failed to update status")
	}
	if err := h.extractor.Download(ctx, req, info); err != nil {
		return err
	}

	fi, err := os.Stat(info.Filename)
	if errors.Is(err, os.ErrNotExist) {
		return &Error{Kind: KindMissing, Err: fmt.Errorf("%s: %w", info.Filename, err)}
	} else if err != nil {
		return err
	}
	// The probe may not have known the size.
	if fi.Size() > h.cfg.MaxFileSize {
		return &Error{Kind: KindSizeLimit, Err: fmt.Errorf("downloaded size %d exceeds %d", fi.Size(), h.cfg.MaxFileSize)}
	}

	if err := h.chat.Edit(m.ChatID, status, textUploading); err != nil {
		log.Warn().Err(err).Msg("Failed to update status")
	}
	if err := h.chat.SendVideo(m.ChatID, m.MessageID, info.Filename, info.Title); err != nil {
		return &Error{Kind: KindUpload, Err: err}
	}
	log.Info().Int64("size", fi.Size()).Msg("Uploaded")

	if err := h.chat.Delete(m.ChatID, status); err != nil {
		log.Debug().Err(err).Msg("Failed to delete status message")
	}
	if err := os.Remove(info.Filename); err != nil {
		log.Debug().Err(err).Str("file", info.Filename).Msg("Failed to remove file")
	}
	return nil
}
