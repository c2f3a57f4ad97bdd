// Package youtube implements media.Extractor for YouTube links without any
// external binary, using github.com/kkdai/youtube.
package youtube

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/kkdai/youtube/v2"
	"github.com/rs/zerolog"

	"github.com/s77rt/WatchItOffline/internal/media"
)

type Options struct {
	// MaxHeight caps the resolution of the chosen format.
	MaxHeight int
	// Headers are added to every request made to YouTube.
	Headers map[string]string
}

// client is the part of youtube.Client the extractor uses.
type client interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (io.ReadCloser, int64, error)
}

type Extractor struct {
	opts   Options
	client client
}

func New(opts Options) *Extractor {
	c := &youtube.Client{}
	if len(opts.Headers) > 0 {
		c.HTTPClient = &http.Client{Transport: &headerTransport{headers: opts.Headers, next: http.DefaultTransport}}
	}
	return &Extractor{opts: opts, client: c}
}

func (e *Extractor) Probe(ctx context.Context, req media.Request) (*media.Info, error) {
	video, format, err := e.resolve(ctx, req.URL)
	if err != nil {
		return nil, err
	}
	title := video.Title
	if title == "" {
		title = "video"
	}
	return &media.Info{
		Title:    title,
		Filename: filepath.Join(req.OutputDir, media.FileName(title, req.TitleLength)+"."+extension(format.MimeType)),
		Size:     format.ContentLength,
	}, nil
}

// Download streams the chosen format into info.Filename. The data goes to a
// temporary name first so a failed download never leaves a file behind at
// the expected path.
func (e *Extractor) Download(ctx context.Context, req media.Request, info *media.Info) error {
	video, format, err := e.resolve(ctx, req.URL)
	if err != nil {
		return err
	}

	stream, _, err := e.client.GetStreamContext(ctx, video, format)
	if err != nil {
		return classify(err)
	}
	defer stream.Close()

	part := info.Filename + ".part"
	f, err := os.Create(part)
	if err != nil {
		return err
	}
	defer os.Remove(part)

	var src io.Reader = stream
	if req.MaxBytes > 0 {
		src = io.LimitReader(stream, req.MaxBytes+1)
	}
	n, err := io.Copy(f, src)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("copying stream: %w", err)
	}
	if req.MaxBytes > 0 && n > req.MaxBytes {
		return media.ErrTooLarge
	}

	zerolog.Ctx(ctx).Debug().
		Str("video_id", video.ID).
		Int("itag", format.ItagNo).
		Int64("bytes", n).
		Msg("Stream copied")
	return os.Rename(part, info.Filename)
}

func (e *Extractor) resolve(ctx context.Context, url string) (*youtube.Video, *youtube.Format, error) {
	video, err := e.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, nil, classify(err)
	}
	format, ok := pickFormat(video.Formats, e.opts.MaxHeight)
	if !ok {
		return nil, nil, fmt.Errorf("no video with audio at or below %dp", e.opts.MaxHeight)
	}
	return video, format, nil
}

// pickFormat returns the tallest muxed (video with audio) format whose height
// does not exceed maxHeight, preferring a higher bitrate on ties.
func pickFormat(formats youtube.FormatList, maxHeight int) (*youtube.Format, bool) {
	var candidates []youtube.Format
	for _, f := range formats.WithAudioChannels() {
		if !strings.HasPrefix(f.MimeType, "video/") || f.Height == 0 {
			continue
		}
		if maxHeight > 0 && f.Height > maxHeight {
			continue
		}
		candidates = append(candidates, f)
	}
	if len(candidates) == 0 {
		return nil, false
	}
	slices.SortStableFunc(candidates, func(a, b youtube.Format) int {
		if a.Height != b.Height {
			return b.Height - a.Height
		}
		return b.Bitrate - a.Bitrate
	})
	return &candidates[0], true
}

// extension maps a MIME type such as `video/mp4; codecs="avc1"` to "mp4".
func extension(mimeType string) string {
	typ, _, _ := strings.Cut(mimeType, ";")
	_, sub, ok := strings.Cut(strings.TrimSpace(typ), "/")
	if !ok || sub == "" {
		return "mp4"
	}
	switch sub {
	case "3gpp":
		return "3gp"
	}
	return sub
}

func classify(err error) error {
	var status youtube.ErrPlayabiltyStatus
	switch {
	case errors.Is(err, youtube.ErrLoginRequired):
		return fmt.Errorf("%w: %w", media.ErrLoginRequired, err)
	case errors.Is(err, youtube.ErrVideoPrivate), errors.Is(err, youtube.ErrNotPlayableInEmbed):
		return fmt.Errorf("%w: %w", media.ErrUnavailable, err)
	case errors.As(err, &status):
		if status.Status == "LOGIN_REQUIRED" {
			return fmt.Errorf("%w: %w", media.ErrLoginRequired, err)
		}
		return fmt.Errorf("%w: %w", media.ErrUnavailable, err)
	}
	return err
}

type headerTransport struct {
	headers map[string]string
	next    http.RoundTripper
}

func (t *headerTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	r = r.Clone(r.Context())
	for name, value := range t.headers {
		r.Header.Set(name, value)
	}
	return t.next.RoundTrip(r)
}
