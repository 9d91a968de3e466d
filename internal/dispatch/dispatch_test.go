package dispatch

import (
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/metrics"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

type fakePublisher struct {
	platform poster.Platform
	mu       sync.Mutex
	requests []poster.Request
	// sizes records each media file's size at publish time.
	sizes []int64
	err   error
	panic bool
}

func (f *fakePublisher) Name() poster.Platform { return f.platform }

func (f *fakePublisher) Publish(_ context.Context, req poster.Request, status *poster.Reporter) error {
	if f.panic {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	for _, m := range req.Media {
		if info, err := os.Stat(m); err == nil {
			f.sizes = append(f.sizes, info.Size())
		}
	}
	if f.err != nil {
		return f.err
	}
	status.Successf("Posted to %s", f.platform)
	return nil
}

func fakeBuilder(pubs map[poster.Platform]*fakePublisher) Builder {
	return func(p poster.Platform, _ config.Credentials, _ Tools) (poster.Publisher, error) {
		if pub, ok := pubs[p]; ok {
			return pub, nil
		}
		return nil, poster.MissingCredentialsError{Provider: p.String(), Fields: []string{"token"}}
	}
}

func lines(events []poster.Event) []string {
	out := make([]string, len(events))
	for i, e := range events {
		out[i] = e.String()
	}
	return out
}

func collect(d *Dispatcher, ctx context.Context, job Job) ([]poster.Event, Summary) {
	var events []poster.Event
	s := d.Run(ctx, job, func(e poster.Event) { events = append(events, e) })
	return events, s
}

func requireCompleted(t *testing.T, events []poster.Event) {
	t.Helper()
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, poster.KindCompleted, last.Kind)
	assert.Equal(t, "✓ Posting completed!", last.String())
	for _, e := range events[:len(events)-1] {
		assert.NotEqual(t, poster.KindCompleted, e.Kind)
	}
}

func testSettings() config.Settings {
	s := config.DefaultSettings()
	s.DiscordPause = 0
	s.RedditPause = 0
	return s
}

// writeLargeJPEG writes a small decodable JPEG padded past EOI to size bytes.
func writeLargeJPEG(t *testing.T, path string, size int64) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 4), uint8(y * 5), 90, 255})
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(f, img, &jpeg.Options{Quality: 95}))
	require.NoError(t, f.Close())
	require.NoError(t, os.Truncate(path, size))
}

func TestPlatformsRunInCallerOrder(t *testing.T) {
	pubs := map[poster.Platform]*fakePublisher{
		poster.Mastodon: {platform: poster.Mastodon},
		poster.Twitter:  {platform: poster.Twitter},
		poster.Bluesky:  {platform: poster.Bluesky},
	}
	d := New(fakeBuilder(pubs))
	events, summary := collect(d, context.Background(), Job{
		Post:      poster.Post{Text: "hi"},
		Platforms: []poster.Platform{poster.Mastodon, poster.Twitter, poster.Bluesky},
	})
	requireCompleted(t, events)
	require.NoError(t, summary.Err())

	var order []string
	for _, l := range lines(events) {
		if strings.HasPrefix(l, "--- Processing") {
			order = append(order, l)
		}
	}
	assert.Equal(t, []string{"--- Processing Mastodon ---", "--- Processing Twitter ---", "--- Processing Bluesky ---"}, order)
	assert.Equal(t, "Starting posts with 0 media files...", events[0].String())
	assert.NotEmpty(t, summary.RunID)
}

func TestEventsCarryPlatform(t *testing.T) {
	d := New(fakeBuilder(map[poster.Platform]*fakePublisher{poster.Twitter: {platform: poster.Twitter}}))
	events, _ := collect(d, context.Background(), Job{Post: poster.Post{Text: "x"}, Platforms: []poster.Platform{poster.Twitter}})
	for _, e := range events {
		if strings.Contains(e.Text, "Posted to") {
			assert.Equal(t, poster.Twitter, e.Platform)
		}
	}
}

func TestFailureDoesNotStopOtherPlatforms(t *testing.T) {
	logutil.SetOutput(io.Discard)
	t.Cleanup(func() { logutil.SetOutput(os.Stderr) })

	pubs := map[poster.Platform]*fakePublisher{
		poster.Twitter:  {platform: poster.Twitter, err: poster.APIError{Provider: "Twitter", StatusCode: 500, Message: "over capacity"}},
		poster.Mastodon: {platform: poster.Mastodon, panic: true},
		poster.Bluesky:  {platform: poster.Bluesky},
	}
	d := New(fakeBuilder(pubs))
	d.Metrics = metrics.New()
	events, summary := collect(d, context.Background(), Job{
		Post:      poster.Post{Text: "x"},
		Platforms: []poster.Platform{poster.Twitter, poster.Mastodon, poster.Bluesky, poster.Reddit},
	})
	requireCompleted(t, events)

	joined := strings.Join(lines(events), "\n")
	assert.Contains(t, joined, "✗ Twitter failed: Twitter API error (HTTP 500): over capacity")
	assert.Contains(t, joined, "✗ Mastodon failed: panic: boom")
	assert.Contains(t, joined, "✓ Posted to Bluesky")
	assert.Contains(t, joined, "✗ Reddit: Missing token")

	require.Len(t, summary.Results, 4)
	assert.Len(t, summary.Failed(), 3)
	assert.ErrorContains(t, summary.Err(), "Twitter: ")

	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.Publishes.WithLabelValues("twitter", metrics.OutcomeFailure)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.Publishes.WithLabelValues("bluesky", metrics.OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(d.Metrics.Publishes.WithLabelValues("reddit", metrics.OutcomeSkipped)))
}

func TestScheduledWait(t *testing.T) {
	d := New(fakeBuilder(map[poster.Platform]*fakePublisher{poster.Twitter: {platform: poster.Twitter}}))
	at := time.Now().Add(50 * time.Millisecond)
	start := time.Now()
	events, summary := collect(d, context.Background(), Job{
		Post:      poster.Post{Text: "later", ScheduledAt: at},
		Platforms: []poster.Platform{poster.Twitter},
	})
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
	assert.False(t, summary.Canceled)
	assert.Equal(t, "Waiting until "+at.Format("2006-01-02 15:04")+"...", events[0].String())
	requireCompleted(t, events)
}

func TestPastScheduleRunsImmediately(t *testing.T) {
	d := New(fakeBuilder(map[poster.Platform]*fakePublisher{poster.Twitter: {platform: poster.Twitter}}))
	events, _ := collect(d, context.Background(), Job{
		Post:      poster.Post{Text: "now", ScheduledAt: time.Now().Add(-time.Hour)},
		Platforms: []poster.Platform{poster.Twitter},
	})
	assert.Equal(t, "Starting posts with 0 media files...", events[0].String())
}

func TestCancelDuringWait(t *testing.T) {
	pub := &fakePublisher{platform: poster.Twitter}
	d := New(fakeBuilder(map[poster.Platform]*fakePublisher{poster.Twitter: pub}))
	ctx, cancel := context.WithCancel(context.Background())
	h := d.Start(ctx, Job{
		Post:      poster.Post{Text: "never", ScheduledAt: time.Now().Add(time.Hour)},
		Platforms: []poster.Platform{poster.Twitter},
	})

	first := <-h.Events()
	assert.True(t, strings.HasPrefix(first.Text, "Waiting until"))
	cancel()

	var rest []poster.Event
	for e := range h.Events() {
		rest = append(rest, e)
	}
	summary := h.Wait()
	assert.True(t, summary.Canceled)
	assert.Empty(t, summary.Results)
	assert.Empty(t, pub.requests)
	requireCompleted(t, rest)
}

func TestWaitWithoutReadingEvents(t *testing.T) {
	d := New(fakeBuilder(map[poster.Platform]*fakePublisher{poster.Twitter: {platform: poster.Twitter}}))
	summary := d.Start(context.Background(), Job{Post: poster.Post{Text: "x"}, Platforms: []poster.Platform{poster.Twitter}}).Wait()
	require.Len(t, summary.Results, 1)
}

func TestDryRunBuildsNothing(t *testing.T) {
	var built atomic.Int32
	d := New(func(poster.Platform, config.Credentials, Tools) (poster.Publisher, error) {
		built.Add(1)
		return nil, errors.New("unexpected")
	})
	events, summary := collect(d, context.Background(), Job{
		Post:      poster.Post{Text: "plan"},
		Platforms: []poster.Platform{poster.Twitter, poster.Reddit},
		DryRun:    true,
	})
	require.NoError(t, summary.Err())
	assert.Zero(t, built.Load())
	assert.Contains(t, strings.Join(lines(events), "\n"), "[dry-run] would post 4 chars with 0 media files to Reddit")
}

// Text without media goes to Discord as a single JSON message.
func TestDiscordTextOnly(t *testing.T) {
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		bodies = append(bodies, string(body))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	creds := config.NewCredentials()
	require.NoError(t, creds.Set("discord.webhook_url", srv.URL))
	d := New(NewBuilder(testSettings()))
	events, summary := collect(d, context.Background(), Job{
		Post:        poster.Post{Text: "hello"},
		Platforms:   []poster.Platform{poster.Discord},
		Credentials: creds,
	})
	require.NoError(t, summary.Err())
	require.Len(t, bodies, 1)
	assert.JSONEq(t, `{"content":"hello"}`, bodies[0])

	var successes []string
	for _, e := range events {
		if e.Kind == poster.KindSuccess {
			successes = append(successes, e.String())
		}
	}
	assert.Equal(t, []string{"✓ Posted to Discord"}, successes)
	requireCompleted(t, events)
}

// An oversized JPEG never reaches Twitter above its limit, and the
// compressed copy is cleaned up.
func TestOversizedImageCompressedForTwitter(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "big.jpg")
	writeLargeJPEG(t, src, 10<<20)

	pub := &fakePublisher{platform: poster.Twitter}
	d := New(fakeBuilder(map[poster.Platform]*fakePublisher{poster.Twitter: pub}))
	d.TempDir = t.TempDir()
	events, summary := collect(d, context.Background(), Job{
		Post:      poster.Post{Text: "photo", Media: []string{src}},
		Platforms: []poster.Platform{poster.Twitter},
	})
	require.NoError(t, summary.Err())
	require.Len(t, pub.requests, 1)
	require.Len(t, pub.sizes, len(pub.requests[0].Media))
	for _, size := range pub.sizes {
		assert.LessOrEqual(t, size, int64(5<<20))
	}
	for _, m := range pub.requests[0].Media {
		assert.NotEqual(t, src, m)
		assert.NoFileExists(t, m, "temp files removed after the run")
	}
	assert.Equal(t, 1, summary.Removed)
	assert.FileExists(t, src)

	joined := strings.Join(lines(events), "\n")
	assert.Contains(t, joined, "Cleaning up temporary files...")
	assert.Contains(t, joined, "✓ Removed temporary file: ")
	requireCompleted(t, events)
}

// A missing Reddit password fails before any request.
func TestRedditMissingPassword(t *testing.T) {
	creds := config.NewCredentials()
	for k, v := range map[string]string{
		"reddit.client_id":     "id",
		"reddit.client_secret": "secret",
		"reddit.username":      "alice",
		"reddit.subreddits":    "golang",
	} {
		require.NoError(t, creds.Set(k, v))
	}
	settings := testSettings()
	settings.Endpoints.RedditToken = "http://127.0.0.1:1/token"
	settings.Endpoints.RedditAPI = "http://127.0.0.1:1"

	d := New(NewBuilder(settings))
	events, summary := collect(d, context.Background(), Job{
		Post:        poster.Post{Text: "hello"},
		Platforms:   []poster.Platform{poster.Reddit},
		Credentials: creds,
	})
	assert.Contains(t, lines(events), "✗ Reddit: Missing password")
	var missing poster.MissingCredentialsError
	require.ErrorAs(t, summary.Err(), &missing)
	requireCompleted(t, events)
}

// Instagram rejects video before any request.
func TestInstagramVideoRejected(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { hits.Add(1) }))
	defer srv.Close()

	clip := filepath.Join(t.TempDir(), "clip.mp4")
	require.NoError(t, os.WriteFile(clip, []byte("not really a video"), 0o600))

	creds := config.NewCredentials()
	require.NoError(t, creds.Set("instagram.access_token", "tok"))
	require.NoError(t, creds.Set("instagram.account_id", "1784"))
	require.NoError(t, creds.Set("imgbb.api_key", "key"))
	settings := testSettings()
	settings.Endpoints.InstagramGraph = srv.URL
	settings.Endpoints.ImgBB = srv.URL

	d := New(NewBuilder(settings))
	events, summary := collect(d, context.Background(), Job{
		Post:        poster.Post{Text: "reel", Media: []string{clip}},
		Platforms:   []poster.Platform{poster.Instagram},
		Credentials: creds,
	})
	assert.Contains(t, lines(events), "✗ Instagram: Video posting requires a video hosting solution (imgBB doesn't support videos)")
	assert.ErrorIs(t, summary.Err(), poster.ErrUnsupported)
	assert.Zero(t, hits.Load())
	requireCompleted(t, events)
}

// A rejected multi-file attachment post retries with the first file.
func TestDiscordAttachmentFallback(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			_, _ = w.Write([]byte(`{"message":"Request entity too large"}`))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	dir := t.TempDir()
	var media []string
	for _, n := range []string{"a.png", "b.png", "c.png"} {
		path := filepath.Join(dir, n)
		require.NoError(t, os.WriteFile(path, []byte(n), 0o600))
		media = append(media, path)
	}
	creds := config.NewCredentials()
	require.NoError(t, creds.Set("discord.webhook_url", srv.URL))

	d := New(NewBuilder(testSettings()))
	events, summary := collect(d, context.Background(), Job{
		Post:        poster.Post{Text: "three", Media: media},
		Platforms:   []poster.Platform{poster.Discord},
		Credentials: creds,
	})
	require.NoError(t, summary.Err())
	assert.Equal(t, int32(2), calls.Load())
	joined := strings.Join(lines(events), "\n")
	assert.Contains(t, joined, "Retrying with single file attachment...")
	assert.Contains(t, joined, "Tip: Enable 'Use Discord embeds' or 'Send as separate messages' for multiple images")
	requireCompleted(t, events)
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "Reddit: Missing password, user_agent",
		describe(poster.Reddit, poster.MissingCredentialsError{Provider: "Reddit", Fields: []string{"password", "user_agent"}}))
	assert.Equal(t, "Instagram: Missing imgBB api_key",
		describe(poster.Instagram, poster.MissingCredentialsError{Provider: "imgBB", Fields: []string{"api_key"}}))
	assert.Equal(t, "Instagram: Instagram requires at least one image or video",
		describe(poster.Instagram, poster.ValidationError{Provider: "Instagram", Reason: "Instagram requires at least one image or video"}))
	assert.Equal(t, "Discord failed: 0/2 files sent", describe(poster.Discord, errors.New("0/2 files sent")))
}
