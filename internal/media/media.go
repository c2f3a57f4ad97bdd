// Package media defines the contract between the bot and the libraries that
// resolve a URL to a downloadable video.
package media

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"
)

var (
	// ErrLoginRequired is returned when the source wants an authenticated
	// session (cookies) to serve the video.
	ErrLoginRequired = errors.New("login required")
	// ErrUnavailable is returned when the requested content does not exist,
	// was removed or is private.
	ErrUnavailable = errors.New("requested content is not available")
	// ErrTooLarge is returned when a download would exceed Request.MaxBytes.
	ErrTooLarge = errors.New("file exceeds size limit")
)

// Request describes one fetch.
type Request struct {
	URL string
	// Format is a yt-dlp style format selector.
	Format string
	// OutputDir is where the file is written. It is unique per request.
	OutputDir string
	// TitleLength is how many characters of the title end up in the file name.
	TitleLength int
	// MaxBytes is the size ceiling. Zero disables the check.
	MaxBytes int64
	// MergeFormat is the container used when video and audio are merged.
	MergeFormat string
}

// Info is what a probe learns about the video without downloading it.
type Info struct {
	Title string
	// Filename is the path the file will have after Download.
	Filename string
	// Size is the reported or estimated size in bytes, 0 if unknown.
	Size int64
}

// Extractor resolves and downloads media.
type Extractor interface {
	Probe(ctx context.Context, req Request) (*Info, error)
	Download(ctx context.Context, req Request, info *Info) error
}

// FormatSelector returns a selector that prefers a pre-muxed stream at or below
// maxHeight and falls back to merging the best video and audio under the same
// cap. Formats without a known height are accepted.
func FormatSelector(maxHeight int) string {
	return fmt.Sprintf("best[height<=?%[1]d]/bestvideo[height<=?%[1]d]+bestaudio", maxHeight)
}

// FileName turns a title into a safe file name base of at most n characters.
func FileName(title string, n int) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			return '_'
		case unicode.IsControl(r):
			return -1
		}
		return r
	}, title)
	name = strings.TrimSpace(name)
	if n > 0 && utf8.RuneCountInString(name) > n {
		name = string([]rune(name)[:n])
	}
	name = strings.Trim(name, ". ")
	if name == "" {
		return "video"
	}
	return name
}

// IsHTTPURL reports whether s is an absolute http or https URL with a host.
func IsHTTPURL(s string) bool {
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		return u.Host != ""
	}
	return false
}

// IsYouTube reports whether rawURL points at a YouTube host.
func IsYouTube(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// Auto sends YouTube URLs to YouTube and everything else to Other.
type Auto struct {
	YouTube Extractor
	Other   Extractor
}

func (a Auto) pick(rawURL string) Extractor {
	if IsYouTube(rawURL) {
		return a.YouTube
	}
	return a.Other
}

func (a Auto) Probe(ctx context.Context, req Request) (*Info, error) {
	return a.pick(req.URL).Probe(ctx, req)
}

func (a Auto) Download(ctx context.Context, req Request, info *Info) error {
	return a.pick(req.URL).Download(ctx, req, info)
}
