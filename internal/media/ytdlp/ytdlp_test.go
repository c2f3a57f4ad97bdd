package ytdlp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/s77rt/WatchItOffline/internal/media"
)

type call struct {
	name string
	args []string
}

// fakeRun records every invocation and answers with canned output, feeding
// stdout to onLine line by line like the real runner does.
func fakeRun(calls *[]call, stdout, stderr string, err error) runFunc {
	return func(_ context.Context, onLine func(string), name string, args ...string) ([]byte, []byte, error) {
		*calls = append(*calls, call{name: name, args: args})
		if onLine != nil {
			for _, line := range strings.Split(strings.TrimSuffix(stdout, "\n"), "\n") {
				onLine(line)
			}
		}
		return []byte(stdout), []byte(stderr), err
	}
}

func testRequest() media.Request {
	return media.Request{
		URL:         "https://example.com/v/1",
		Format:      media.FormatSelector(360),
		OutputDir:   "/tmp/req",
		TitleLength: 50,
		MaxBytes:    100,
		MergeFormat: "mp4",
	}
}

func TestProbe(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		json string
		want *media.Info
	}{
		"filesize": {
			json: `{"title":"Clip","filename":"/tmp/req/Clip.mp4","filesize":1234,"filesize_approx":99}`,
			want: &media.Info{Title: "Clip", Filename: "/tmp/req/Clip.mp4", Size: 1234},
		},
		"approximate": {
			json: `{"title":"Clip","_filename":"/tmp/req/Clip.webm","filesize":null,"filesize_approx":5678.9}`,
			want: &media.Info{Title: "Clip", Filename: "/tmp/req/Clip.webm", Size: 5678},
		},
		"unknown size": {
			json: `{"filename":"/tmp/req/video.mp4"}`,
			want: &media.Info{Title: "video", Filename: "/tmp/req/video.mp4", Size: 0},
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var calls []call
			e := New(Options{})
			e.run = fakeRun(&calls, tc.json, "", nil)

			got, err := e.Probe(context.Background(), testRequest())
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("Probe() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestProbeArgs(t *testing.T) {
	t.Parallel()

	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	if err := os.WriteFile(cookies, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	var calls []call
	e := New(Options{
		Binary:     "/opt/yt-dlp",
		CookieFile: cookies,
		FFmpegPath: "/opt/ffmpeg",
		Headers:    map[string]string{"User-Agent": "bot", "Referer": "https://example.com/"},
	})
	e.run = fakeRun(&calls, `{"filename":"x.mp4"}`, "", nil)

	if _, err := e.Probe(context.Background(), testRequest()); err != nil {
		t.Fatal(err)
	}

	want := []call{{
		name: "/opt/yt-dlp",
		args: []string{
			"--ignore-config", "--no-playlist", "--no-warnings",
			"--format", "best[height<=?360]/bestvideo[height<=?360]+bestaudio",
			"--output", "/tmp/req/%(title).50s.%(ext)s",
			"--merge-output-format", "mp4",
			"--cookies", cookies,
			"--ffmpeg-location", "/opt/ffmpeg",
			"--add-header", "Referer:https://example.com/",
			"--add-header", "User-Agent:bot",
			"--dump-single-json", "--", "https://example.com/v/1",
		},
	}}
	if diff := cmp.Diff(want, calls, cmp.AllowUnexported(call{})); diff != "" {
		t.Errorf("invocation mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadArgs(t *testing.T) {
	t.Parallel()

	var calls []call
	e := New(Options{CookieFile: filepath.Join(t.TempDir(), "absent.txt")})
	e.run = fakeRun(&calls, "", "", nil)

	if err := e.Download(context.Background(), testRequest(), &media.Info{}); err != nil {
		t.Fatal(err)
	}

	want := []string{
		"--ignore-config", "--no-playlist", "--no-warnings",
		"--format", "best[height<=?360]/bestvideo[height<=?360]+bestaudio",
		"--output", "/tmp/req/%(title).50s.%(ext)s",
		"--merge-output-format", "mp4",
		"--newline", "--progress-template", "download:progress:%(progress._percent_str)s",
		"--max-filesize", "100",
		"--", "https://example.com/v/1",
	}
	if len(calls) != 1 || calls[0].name != "yt-dlp" {
		t.Fatalf("unexpected invocations: %+v", calls)
	}
	if diff := cmp.Diff(want, calls[0].args); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadProgress(t *testing.T) {
	t.Parallel()

	stdout := strings.Join([]string{
		"[youtube] Extracting URL: https://example.com/v/1",
		"[download] Destination: /tmp/req/Clip.mp4",
		"progress:  0.0%",
		"progress:  4.2%",
		"progress: 12.5%",
		"progress: 19.9%",
		"progress:  N/A%",
		"progress: 55.0%",
		"progress:100.0%",
		"progress:100.0%",
	}, "\n")

	var calls []call
	e := New(Options{})
	e.run = fakeRun(&calls, stdout, "", nil)

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())
	if err := e.Download(ctx, testRequest(), &media.Info{}); err != nil {
		t.Fatal(err)
	}

	var got []float64
	dec := json.NewDecoder(&buf)
	for dec.More() {
		var entry struct {
			Level   string  `json:"level"`
			Message string  `json:"message"`
			Percent float64 `json:"percent"`
		}
		if err := dec.Decode(&entry); err != nil {
			t.Fatal(err)
		}
		if entry.Message != "Download progress" {
			continue
		}
		if entry.Level != "debug" {
			t.Errorf("progress logged at %q, want debug", entry.Level)
		}
		got = append(got, entry.Percent)
	}
	if diff := cmp.Diff([]float64{0, 12.5, 55, 100}, got); diff != "" {
		t.Errorf("progress mismatch (-want +got):\n%s", diff)
	}
}

func TestDownloadTooLarge(t *testing.T) {
	t.Parallel()

	var calls []call
	e := New(Options{})
	e.run = fakeRun(&calls, "[download] File is larger than max-filesize (200 bytes > 100 bytes). Aborting.\n", "", nil)

	err := e.Download(context.Background(), testRequest(), &media.Info{})
	if !errors.Is(err, media.ErrTooLarge) {
		t.Fatalf("Download() = %v, want ErrTooLarge", err)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()

	exit := errors.New("exit status 1")

	cases := map[string]struct {
		stderr string
		want   error
	}{
		"login required": {
			stderr: "WARNING: something\nERROR: [instagram] abc: Login required to access this content\n",
			want:   media.ErrLoginRequired,
		},
		"bot check": {
			stderr: "ERROR: [youtube] x: Sign in to confirm you're not a bot. Use --cookies-from-browser or --cookies for the authentication.",
			want:   media.ErrLoginRequired,
		},
		"rate limited": {
			stderr: "ERROR: [instagram] 1: Requested content is not available, rate-limit reached or login required\n",
			want:   media.ErrLoginRequired,
		},
		"not available": {
			stderr: "ERROR: [instagram] 1: Requested content is not available\n",
			want:   media.ErrUnavailable,
		},
		"removed": {
			stderr: "ERROR: [youtube] x: Video unavailable. This video has been removed by the uploader\n",
			want:   media.ErrUnavailable,
		},
		"private": {
			stderr: "ERROR: [youtube] x: Private video. Sign in if you've been granted access\n",
			want:   media.ErrUnavailable,
		},
	}

	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var calls []call
			e := New(Options{})
			e.run = fakeRun(&calls, "", tc.stderr, exit)

			_, err := e.Probe(context.Background(), testRequest())
			if !errors.Is(err, tc.want) {
				t.Fatalf("Probe() = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestGenericError(t *testing.T) {
	t.Parallel()

	var calls []call
	e := New(Options{})
	e.run = fakeRun(&calls, "", "ERROR: Unable to download webpage: HTTP Error 500\n", errors.New("exit status 1"))

	err := e.Download(context.Background(), testRequest(), &media.Info{})
	if err == nil {
		t.Fatal("Download() succeeded")
	}
	if errors.Is(err, media.ErrLoginRequired) || errors.Is(err, media.ErrUnavailable) {
		t.Fatalf("Download() = %v, want an unclassified error", err)
	}
	if want := "yt-dlp: Unable to download webpage: HTTP Error 500"; err.Error() != want {
		t.Errorf("Download() = %q, want %q", err, want)
	}
}

func TestCanceled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls []call
	e := New(Options{})
	e.run = fakeRun(&calls, "", "", errors.New("signal: killed"))

	if _, err := e.Probe(ctx, testRequest()); !errors.Is(err, context.Canceled) {
		t.Fatalf("Probe() = %v, want context.Canceled", err)
	}
}

func TestParseInfoErrors(t *testing.T) {
	t.Parallel()

	for name, in := range map[string]string{
		"invalid":     "not json",
		"no filename": `{"title":"x"}`,
	} {
		if _, err := parseInfo([]byte(in)); err == nil {
			t.Errorf("%s: parseInfo succeeded", name)
		}
	}

	_, err := parseInfo([]byte(`{"_type":"playlist","title":"p","filename":"p.mp4"}`))
	if !errors.Is(err, media.ErrUnavailable) {
		t.Errorf("playlist: parseInfo = %v, want ErrUnavailable", err)
	}
}
