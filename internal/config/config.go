// Package config loads the bot configuration from the process environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// Extractor backends.
const (
	ExtractorYtDLP   = "ytdlp"
	ExtractorYouTube = "youtube"
	ExtractorAuto    = "auto"
)

type Config struct {
	BotToken    string  `envconfig:"BOT_TOKEN" required:"true"`
	DownloadDir string  `envconfig:"DOWNLOAD_DIR" default:"downloads"`
	CookieFile  string  `envconfig:"COOKIE_FILE" default:"cookies.txt"`
	FFmpegPath  string  `envconfig:"FFMPEG_PATH"`
	YtDLPPath   string  `envconfig:"YTDLP_PATH" default:"yt-dlp"`
	Extractor   string  `envconfig:"EXTRACTOR" default:"ytdlp"`
	MaxFileSize int64   `envconfig:"MAX_FILE_SIZE" default:"51380224"`
	MaxHeight   int     `envconfig:"MAX_HEIGHT" default:"360"`
	TitleLength int     `envconfig:"TITLE_LENGTH" default:"50"`
	MergeFormat string  `envconfig:"MERGE_FORMAT" default:"mp4"`
	Headers     Headers `envconfig:"HTTP_HEADERS"`
	Workers     int     `envconfig:"WORKERS" default:"4"`
	PollTimeout int     `envconfig:"POLL_TIMEOUT" default:"60"`
	LogLevel    string  `envconfig:"LOG_LEVEL" default:"info"`
	Debug       bool    `envconfig:"DEBUG"`
}

// Load reads envFile into the environment if it exists, without overriding
// variables that are already set, and then processes the environment.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("loading %s: %w", envFile, err)
		}
	}

	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.BotToken) == "":
		return errors.New("BOT_TOKEN is not set")
	case c.DownloadDir == "":
		return errors.New("DOWNLOAD_DIR must not be empty")
	case c.MaxFileSize <= 0:
		return fmt.Errorf("MAX_FILE_SIZE must be positive, got %d", c.MaxFileSize)
	case c.MaxHeight <= 0:
		return fmt.Errorf("MAX_HEIGHT must be positive, got %d", c.MaxHeight)
	case c.TitleLength <= 0:
		return fmt.Errorf("TITLE_LENGTH must be positive, got %d", c.TitleLength)
	case c.Workers <= 0:
		return fmt.Errorf("WORKERS must be positive, got %d", c.Workers)
	case c.PollTimeout < 0:
		return fmt.Errorf("POLL_TIMEOUT must not be negative, got %d", c.PollTimeout)
	}

	switch c.Extractor {
	case ExtractorYtDLP, ExtractorYouTube, ExtractorAuto:
	default:
		return fmt.Errorf("unknown EXTRACTOR %q", c.Extractor)
	}

	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	return nil
}

// Headers is a set of HTTP headers given as "Name:Value" pairs separated by
// commas, e.g. "User-Agent:foo,Referer:https://example.com/". Values cannot
// contain commas.
type Headers map[string]string

// embeddedHeader matches a value that still carries another "Name:" pair,
// which is what a semicolon separated list decodes to.
var embeddedHeader = regexp.MustCompile(`;\s*[A-Za-z0-9-]+:`)

// Decode implements envconfig.Decoder.
func (h *Headers) Decode(value string) error {
	m := make(Headers)
	for _, pair := range strings.Split(value, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, val, ok := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || strings.ContainsAny(name, " \t;") {
			return fmt.Errorf("invalid header %q", pair)
		}
		val = strings.TrimSpace(val)
		if embeddedHeader.MatchString(val) {
			return fmt.Errorf("header %q: value %q holds another header; separate headers with commas", name, val)
		}
		if _, dup := m[name]; dup {
			return fmt.Errorf("duplicate header %q", name)
		}
		m[name] = val
	}
	*h = m
	return nil
}
