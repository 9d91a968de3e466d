/*
Copyright © 2025 HC91Dev

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

func resetFlags() {
	messageFlag = ""
	mediaFlags = nil
	targetsFlag = nil
	scheduleFlag = ""
	discordModeFlag = ""
	discordNitro = false
	dryRun = false
	metricsFile = ""
	verbose = false
}

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	resetFlags()
	t.Setenv("MULTIPOST_CONFIG_DIR", t.TempDir())
	t.Setenv("MULTIPOST_DISCORD_WEBHOOK_URL", "")

	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestNormalizeTargets(t *testing.T) {
	enabled := []poster.Platform{poster.Bluesky, poster.Discord}
	tests := []struct {
		name    string
		in      []string
		want    []poster.Platform
		wantErr bool
	}{
		{name: "enabled by default", in: nil, want: enabled},
		{name: "keeps order", in: []string{"reddit", "Discord", "x"}, want: []poster.Platform{poster.Reddit, poster.Discord, poster.Twitter}},
		{name: "dedupes", in: []string{"discord", "discord", " "}, want: []poster.Platform{poster.Discord}},
		{name: "all", in: []string{"mastodon", "all"}, want: poster.Platforms},
		{name: "unknown", in: []string{"myspace"}, wantErr: true},
		{name: "only blanks", in: []string{" "}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := normalizeTargets(tt.in, enabled)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := normalizeTargets(nil, nil)
	assert.Error(t, err)
}

func TestParseSchedule(t *testing.T) {
	at, err := parseSchedule("2026-10-19 09:30")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 10, 19, 9, 30, 0, 0, time.Local), at)

	zero, err := parseSchedule("  ")
	require.NoError(t, err)
	assert.True(t, zero.IsZero())

	_, err = parseSchedule("tomorrow")
	assert.ErrorContains(t, err, "2006-01-02 15:04")
}

func TestResolveMessage(t *testing.T) {
	resetFlags()
	root := newRootCommand()
	root.SetIn(strings.NewReader("  from stdin \n"))
	msg, err := resolveMessage(root, nil, false)
	require.NoError(t, err)
	assert.Equal(t, "from stdin", msg)

	msg, err = resolveMessage(root, []string{"hello", "world"}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello world", msg)

	messageFlag = "flag"
	_, err = resolveMessage(root, []string{"arg"}, false)
	assert.Error(t, err)
	messageFlag = ""

	root.SetIn(strings.NewReader(""))
	_, err = resolveMessage(root, nil, false)
	assert.Error(t, err)

	msg, err = resolveMessage(root, nil, true)
	require.NoError(t, err)
	assert.Empty(t, msg)
}

func TestDryRunPrintsPlan(t *testing.T) {
	out, err := execute(t, "", "--dry-run", "--target", "reddit,discord", "hello")
	require.NoError(t, err)
	assert.Contains(t, out, "--- Processing Reddit ---")
	assert.Contains(t, out, "[dry-run] would post 5 chars with 0 media files to Reddit")
	assert.Contains(t, out, "[dry-run] would post 5 chars with 0 media files to Discord")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(out), "✓ Posting completed!"))
	assert.Less(t, strings.Index(out, "Reddit ---"), strings.Index(out, "Discord ---"))
}

func TestPositionalMessageIsNotASubcommand(t *testing.T) {
	out, err := execute(t, "", "Ship", "it!", "--dry-run", "--target", "twitter")
	require.NoError(t, err)
	assert.Contains(t, out, "[dry-run] would post 8 chars with 0 media files to Twitter")

	_, err = execute(t, "", "setup-notes", "--dry-run", "--target", "twitter")
	require.NoError(t, err)
}

func TestMissingCredentialsFailsRun(t *testing.T) {
	out, err := execute(t, "", "--target", "discord", "--metrics-file", filepath.Join(t.TempDir(), "run.prom"), "hello")
	require.Error(t, err)
	assert.Contains(t, out, "✗ Discord: Missing webhook_url")
	assert.Contains(t, out, "✓ Posting completed!")
}

func TestMetricsFileWritten(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.prom")
	_, err := execute(t, "", "--dry-run", "--target", "twitter", "--metrics-file", path, "hi")
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `multipost_publish_total{outcome="skipped",platform="twitter"} 1`)
}

func TestInvalidDiscordMode(t *testing.T) {
	_, err := execute(t, "", "--dry-run", "--discord-mode", "carrier-pigeon", "hi")
	assert.ErrorContains(t, err, "unknown discord mode")
}

func TestCredentialsSetShowPath(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	t.Setenv("MULTIPOST_CONFIG_DIR", dir)

	run := func(args ...string) string {
		root := newRootCommand()
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(args)
		require.NoError(t, root.Execute())
		return out.String()
	}

	run("credentials", "set", "discord.webhook_url", "https://discord.com/api/webhooks/1/secrettoken")
	creds, err := config.LoadCredentials(filepath.Join(dir, "credentials.json"))
	require.NoError(t, err)
	assert.Equal(t, "https://discord.com/api/webhooks/1/secrettoken", creds.Value("discord", "webhook_url"))

	out := run("credentials", "show", "discord")
	assert.Contains(t, out, "[discord]")
	assert.Contains(t, out, "********oken")
	assert.NotContains(t, out, "secrettoken")

	out = run("credentials", "path")
	assert.Contains(t, out, filepath.Join(dir, "preferences.json"))

	out = run("credentials", "env")
	assert.Contains(t, out, "MULTIPOST_REDDIT_SUBREDDITS")
}

func TestPrefsCommands(t *testing.T) {
	resetFlags()
	dir := t.TempDir()
	t.Setenv("MULTIPOST_CONFIG_DIR", dir)

	for _, args := range [][]string{
		{"prefs", "discord-mode", "embeds"},
		{"prefs", "nitro", "on"},
		{"prefs", "disable", "twitter", "instagram"},
	} {
		root := newRootCommand()
		root.SetOut(&bytes.Buffer{})
		root.SetArgs(args)
		require.NoError(t, root.Execute(), args)
	}

	p, err := config.LoadPreferences(filepath.Join(dir, "preferences.json"))
	require.NoError(t, err)
	assert.Equal(t, poster.DiscordEmbeds, p.DiscordMode)
	assert.True(t, p.DiscordNitro)
	assert.Equal(t, []poster.Platform{poster.Bluesky, poster.Discord, poster.Reddit, poster.Mastodon}, p.Selected())

	root := newRootCommand()
	root.SetArgs([]string{"prefs", "nitro", "maybe"})
	root.SetOut(&bytes.Buffer{})
	assert.Error(t, root.Execute())
}

func TestCheckRecord(t *testing.T) {
	check := checkRecord(config.DefaultSettings())
	err := check(t.Context(), "reddit", config.Record{"client_id": "id", "client_secret": "s", "username": "u", "user_agent": "ua", "subreddits": "golang"})
	assert.EqualError(t, err, "Missing password")

	assert.NoError(t, check(t.Context(), "discord", config.Record{"webhook_url": "https://discord.com/api/webhooks/1/x"}))
	assert.Error(t, check(t.Context(), "imgbb", config.Record{}))
}
