package main

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/s77rt/WatchItOffline/internal/bot"
	"github.com/s77rt/WatchItOffline/internal/config"
	"github.com/s77rt/WatchItOffline/internal/media"
	"github.com/s77rt/WatchItOffline/internal/media/youtube"
	"github.com/s77rt/WatchItOffline/internal/media/ytdlp"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	level, _ := zerolog.ParseLevel(cfg.LogLevel)
	log = log.Level(level)

	if err := os.MkdirAll(cfg.DownloadDir, 0o755); err != nil {
		log.Fatal().Err(err).Msg("Failed to create download directory")
	}

	extractor, err := newExtractor(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up extractor")
	}

	tgbotapi.SetLogger(bot.Logger{Log: log.With().Str("component", "tgbotapi").Logger()})
	api, err := tgbotapi.NewBotAPI(cfg.BotToken)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to authorize bot")
	}
	api.Debug = cfg.Debug
	log.Info().Str("username", api.Self.UserName).Str("extractor", cfg.Extractor).Msg("Authorized")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = log.WithContext(ctx)

	h := bot.NewHandler(cfg, bot.NewTelegram(api), extractor)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = cfg.PollTimeout
	updates := api.GetUpdatesChan(u)
	go func() {
		<-ctx.Done()
		log.Info().Msg("Shutting down")
		api.StopReceivingUpdates()
	}()

	serve(ctx, h, updates, cfg.Workers)
}

type dispatcher interface {
	Dispatch(ctx context.Context, update tgbotapi.Update) error
}

// serve handles message updates until the channel is closed, running at most
// workers of them at once, and waits for the running ones to finish.
func serve(ctx context.Context, d dispatcher, updates <-chan tgbotapi.Update, workers int) {
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for update := range updates {
		if update.Message == nil {
			continue
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(update tgbotapi.Update) {
			defer func() {
				<-sem
				wg.Done()
			}()
			handleUpdate(ctx, d, update)
		}(update)
	}
	wg.Wait()
}

func handleUpdate(ctx context.Context, d dispatcher, update tgbotapi.Update) {
	msg := update.Message
	rlog := zerolog.Ctx(ctx).With().
		Str("request_id", uuid.NewString()).
		Int64("chat_id", msg.Chat.ID).
		Int("message_id", msg.MessageID).
		Logger()
	if msg.From != nil {
		rlog = rlog.With().Str("from", msg.From.UserName).Logger()
	}
	rlog.Info().Str("text", msg.Text).Msg("Received message")

	err := d.Dispatch(rlog.WithContext(ctx), update)
	var berr *bot.Error
	switch {
	case err == nil:
	case errors.As(err, &berr) && berr.Kind == bot.KindValidation:
		rlog.Debug().Err(err).Msg("Rejected message")
	default:
		rlog.Error().Err(err).Msg("Request failed")
	}
}

func newExtractor(cfg *config.Config) (media.Extractor, error) {
	yt := youtube.New(youtube.Options{MaxHeight: cfg.MaxHeight, Headers: cfg.Headers})
	if cfg.Extractor == config.ExtractorYouTube {
		return yt, nil
	}

	if _, err := exec.LookPath(cfg.YtDLPPath); err != nil {
		return nil, err
	}
	dl := ytdlp.New(ytdlp.Options{
		Binary:     cfg.YtDLPPath,
		CookieFile: cfg.CookieFile,
		FFmpegPath: cfg.FFmpegPath,
		Headers:    cfg.Headers,
	})
	if cfg.Extractor == config.ExtractorAuto {
		return media.Auto{YouTube: yt, Other: dl}, nil
	}
	return dl, nil
}
