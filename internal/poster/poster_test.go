package poster

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlatform(t *testing.T) {
	tests := []struct {
		in   string
		want Platform
	}{
		{"twitter", Twitter},
		{"X", Twitter},
		{" Bluesky ", Bluesky},
		{"DISCORD", Discord},
		{"instagram", Instagram},
		{"reddit", Reddit},
		{"mastodon", Mastodon},
	}
	for _, tt := range tests {
		got, err := ParsePlatform(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}

	_, err := ParsePlatform("myspace")
	require.Error(t, err)
}

func TestParseDiscordMode(t *testing.T) {
	for in, want := range map[string]DiscordMode{
		"":            DiscordAttachments,
		"attachments": DiscordAttachments,
		"separate":    DiscordSeparateMessages,
		"Embeds":      DiscordEmbeds,
	} {
		got, err := ParseDiscordMode(in)
		require.NoError(t, err)
		assert.Equal(t, want, got, in)
		if in != "" && in != "Embeds" {
			assert.Equal(t, in, got.String())
		}
	}
	_, err := ParseDiscordMode("carrier-pigeon")
	require.Error(t, err)
}

func TestLimitsFor(t *testing.T) {
	l, ok := LimitsFor(Twitter, true)
	require.True(t, ok)
	assert.EqualValues(t, 5*mib, l.MaxImageBytes)
	assert.Equal(t, 4, l.MaxMedia)

	d, _ := LimitsFor(Discord, false)
	n, _ := LimitsFor(Discord, true)
	assert.EqualValues(t, 8*mib, d.MaxImageBytes)
	assert.EqualValues(t, 50*mib, n.MaxImageBytes)
	assert.EqualValues(t, 500*mib, n.MaxVideoBytes)

	ig, _ := LimitsFor(Instagram, false)
	assert.True(t, ig.Accepts("photo.JPEG"))
	assert.False(t, ig.Accepts("anim.gif"))
	assert.EqualValues(t, 100*mib, ig.MaxBytes("clip.mp4"))
	assert.EqualValues(t, 8*mib, ig.MaxBytes("photo.jpg"))

	_, ok = LimitsFor(Platform("friendster"), false)
	assert.False(t, ok)
}

func TestLimitsTableIsNotShared(t *testing.T) {
	tw, _ := LimitsFor(Twitter, false)
	bs, _ := LimitsFor(Bluesky, false)
	tw.Formats[0] = ".bmp"
	assert.Equal(t, ".jpg", bs.Formats[0])
	tw.Formats[0] = ".jpg"
}

func TestClassify(t *testing.T) {
	assert.True(t, IsVideo("a.MP4"))
	assert.True(t, IsVideo("a.webm"))
	assert.True(t, IsVideo("a.mov"))
	assert.False(t, IsVideo("a.gif"))
	assert.True(t, IsImage("a.png"))
	assert.False(t, IsImage("a.txt"))
	assert.True(t, IsImage("a.JPEG"))
	assert.False(t, IsImage("a.webp"), "no platform accepts webp")
}

func TestTruncate(t *testing.T) {
	media := []string{"1", "2", "3", "4", "5"}
	assert.Equal(t, []string{"1", "2", "3", "4"}, Truncate(media, MaxMedia(Twitter)))
	assert.Equal(t, []string{"1"}, Truncate(media, MaxMedia(Reddit)))
	assert.Equal(t, media, Truncate(media, 10))
	assert.Empty(t, Truncate(nil, 4))
}

func TestReporter(t *testing.T) {
	var got []Event
	r := NewReporter(func(e Event) { got = append(got, e) })
	d := r.For(Discord)
	d.Infof("Sending %d files", 2)
	d.Successf("Discord: Posted")
	d.Warnf("skipped %s", "a.bmp")
	d.Failf("Discord failed: %v", errors.New("boom"))
	r.Completed("Posting completed!")

	require.Len(t, got, 5)
	assert.Equal(t, "Sending 2 files", got[0].String())
	assert.Equal(t, "✓ Discord: Posted", got[1].String())
	assert.Equal(t, "⚠ skipped a.bmp", got[2].String())
	assert.Equal(t, "✗ Discord failed: boom", got[3].String())
	assert.Equal(t, "✓ Posting completed!", got[4].String())
	assert.Equal(t, Discord, got[0].Platform)
	assert.Equal(t, Platform(""), got[4].Platform)
	assert.Equal(t, KindCompleted, got[4].Kind)
}

func TestNilReporterIsSilent(t *testing.T) {
	var r *Reporter
	assert.NotPanics(t, func() {
		r.For(Reddit).Infof("hello")
		r.Failf("nope")
	})
}

func TestRequireFields(t *testing.T) {
	err := RequireFields("Reddit", "client_id", "id", "password", "", "username", " ")
	var missing MissingCredentialsError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, []string{"password", "username"}, missing.Fields)
	assert.Contains(t, err.Error(), "password")

	assert.NoError(t, RequireFields("Reddit", "client_id", "id"))
}

func TestAPIErrorMessage(t *testing.T) {
	err := APIError{Provider: "Instagram", StatusCode: 400, Message: "Invalid image"}
	assert.Equal(t, "Instagram API error (HTTP 400): Invalid image", err.Error())
	assert.Equal(t, "imgBB API error: unknown error", APIError{Provider: "imgBB"}.Error())

	wrapped := TransportError{Provider: "Discord", Err: errors.New("dial tcp: timeout")}
	assert.ErrorContains(t, wrapped, "dial tcp")
}
