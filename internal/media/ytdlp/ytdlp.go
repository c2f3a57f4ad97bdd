// Package ytdlp implements media.Extractor on top of the yt-dlp binary.
package ytdlp

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/s77rt/WatchItOffline/internal/media"
)

type Options struct {
	// Binary is the yt-dlp executable, "yt-dlp" if empty.
	Binary string
	// CookieFile is passed with --cookies when the file exists at call time.
	CookieFile string
	// FFmpegPath is passed with --ffmpeg-location when set.
	FFmpegPath string
	// Headers are sent with every request yt-dlp makes.
	Headers map[string]string
}

// runFunc runs a command to completion. When onLine is not nil it is called
// with every stdout line as it arrives.
type runFunc func(ctx context.Context, onLine func(string), name string, args ...string) (stdout, stderr []byte, err error)

type Extractor struct {
	opts Options
	run  runFunc
}

func New(opts Options) *Extractor {
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	return &Extractor{opts: opts, run: runCommand}
}

// Probe resolves metadata with --dump-single-json. Nothing is downloaded.
func (e *Extractor) Probe(ctx context.Context, req media.Request) (*media.Info, error) {
	args := append(e.args(req), "--dump-single-json", "--", req.URL)
	stdout, stderr, err := e.run(ctx, nil, e.opts.Binary, args...)
	if err != nil {
		return nil, commandError(ctx, err, stderr)
	}
	return parseInfo(stdout)
}

func (e *Extractor) Download(ctx context.Context, req media.Request, info *media.Info) error {
	args := append(e.args(req), "--newline", "--progress-template", progressTemplate)
	if req.MaxBytes > 0 {
		args = append(args, "--max-filesize", strconv.FormatInt(req.MaxBytes, 10))
	}
	args = append(args, "--", req.URL)

	log := zerolog.Ctx(ctx)
	log.Debug().Strs("args", args).Msg("Running yt-dlp")
	p := &progress{log: log}
	stdout, stderr, err := e.run(ctx, p.line, e.opts.Binary, args...)
	if err != nil {
		return commandError(ctx, err, stderr)
	}
	// yt-dlp exits successfully when it skips a file for --max-filesize.
	if bytes.Contains(stdout, []byte("larger than max-filesize")) {
		return media.ErrTooLarge
	}
	return nil
}

// progressTemplate makes yt-dlp print one "progress: 42.0%" line per update.
const (
	progressPrefix   = "progress:"
	progressTemplate = "download:" + progressPrefix + "%(progress._percent_str)s"
)

// progress logs download percentages at debug level, at most once per
// progressStep points and once at 100%.
type progress struct {
	log    *zerolog.Logger
	logged float64
	seen   bool
}

const progressStep = 10

func (p *progress) line(line string) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), progressPrefix)
	if !ok {
		return
	}
	pct, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(rest), "%"), 64)
	if err != nil {
		return
	}
	done := pct >= 100 && p.logged < 100
	if p.seen && !done && pct-p.logged < progressStep {
		return
	}
	p.seen = true
	p.logged = pct
	p.log.Debug().Float64("percent", pct).Msg("Download progress")
}

// args returns the options shared by probe and download, so both agree on
// the output file name.
func (e *Extractor) args(req media.Request) []string {
	args := []string{
		"--ignore-config",
		"--no-playlist",
		"--no-warnings",
		"--format", req.Format,
		"--output", outputTemplate(req),
	}
	if req.MergeFormat != "" {
		args = append(args, "--merge-output-format", req.MergeFormat)
	}
	if e.opts.CookieFile != "" {
		if _, err := os.Stat(e.opts.CookieFile); err == nil {
			args = append(args, "--cookies", e.opts.CookieFile)
		}
	}
	if e.opts.FFmpegPath != "" {
		args = append(args, "--ffmpeg-location", e.opts.FFmpegPath)
	}
	for _, name := range sortedKeys(e.opts.Headers) {
		args = append(args, "--add-header", name+":"+e.opts.Headers[name])
	}
	return args
}

func outputTemplate(req media.Request) string {
	title := "%(title)s"
	if req.TitleLength > 0 {
		title = "%(title)." + strconv.Itoa(req.TitleLength) + "s"
	}
	return filepath.Join(req.OutputDir, title+".%(ext)s")
}

func parseInfo(b []byte) (*media.Info, error) {
	if !gjson.ValidBytes(b) {
		return nil, errors.New("yt-dlp returned invalid JSON")
	}
	r := gjson.ParseBytes(b)
	if r.Get("_type").String() == "playlist" {
		return nil, fmt.Errorf("%w: playlists are not supported", media.ErrUnavailable)
	}

	info := &media.Info{
		Title:    r.Get("title").String(),
		Filename: r.Get("filename").String(),
		Size:     r.Get("filesize").Int(),
	}
	if info.Title == "" {
		info.Title = "video"
	}
	if info.Filename == "" {
		info.Filename = r.Get("_filename").String()
	}
	if info.Filename == "" {
		return nil, errors.New("yt-dlp did not report a file name")
	}
	if info.Size == 0 {
		info.Size = r.Get("filesize_approx").Int()
	}
	return info, nil
}

var (
	loginMarkers = []string{
		"login required",
		"sign in to confirm",
		"cookies",
		"use --username",
		"account authentication",
	}
	unavailableMarkers = []string{
		"requested content is not available",
		"video unavailable",
		"private video",
		"has been removed",
		"this video is not available",
		"unsupported url",
	}
)

// commandError turns a failed run into an error that wraps one of the media
// sentinels when yt-dlp's message identifies the cause.
func commandError(ctx context.Context, err error, stderr []byte) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("yt-dlp: %w", ctxErr)
	}
	msg := errorLine(stderr)
	if msg == "" {
		return fmt.Errorf("running yt-dlp: %w", err)
	}
	lower := strings.ToLower(msg)
	switch {
	case containsAny(lower, loginMarkers):
		return fmt.Errorf("%w: %s", media.ErrLoginRequired, msg)
	case containsAny(lower, unavailableMarkers):
		return fmt.Errorf("%w: %s", media.ErrUnavailable, msg)
	}
	return fmt.Errorf("yt-dlp: %s", msg)
}

// errorLine returns the last "ERROR:" line of stderr without the prefix, or
// the last non-empty line if there is none.
func errorLine(stderr []byte) string {
	var last, lastErr string
	for _, line := range strings.Split(string(stderr), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		last = line
		if rest, ok := strings.CutPrefix(line, "ERROR:"); ok {
			lastErr = strings.TrimSpace(rest)
		}
	}
	if lastErr != "" {
		return lastErr
	}
	return last
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func runCommand(ctx context.Context, onLine func(string), name string, args ...string) ([]byte, []byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if onLine == nil {
		cmd.Stdout = &stdout
		err := cmd.Run()
		return stdout.Bytes(), stderr.Bytes(), err
	}

	pipe, err := cmd.StdoutPipe()
	if err != nil {
		return nil, nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, nil, err
	}
	sc := bufio.NewScanner(pipe)
	for sc.Scan() {
		stdout.Write(sc.Bytes())
		stdout.WriteByte('\n')
		onLine(sc.Text())
	}
	// Keep draining if the scanner gave up on an overlong line.
	_, _ = io.Copy(&stdout, pipe)
	err = cmd.Wait()
	return stdout.Bytes(), stderr.Bytes(), err
}
