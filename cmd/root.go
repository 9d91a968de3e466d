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
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
	"github.com/HC91Dev/MultiPlatformPoster/internal/dispatch"
	"github.com/HC91Dev/MultiPlatformPoster/internal/logutil"
	"github.com/HC91Dev/MultiPlatformPoster/internal/metrics"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

var (
	messageFlag     string
	mediaFlags      []string
	targetsFlag     []string
	scheduleFlag    string
	discordModeFlag string
	discordNitro    bool
	dryRun          bool
	metricsFile     string
	verbose         bool
)

const scheduleLayout = "2006-01-02 15:04"

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "multipost [message]",
		Short: "Cross-post to social networks",
		Long: "multipost publishes the same text and media to Twitter/X, Bluesky, Discord, Instagram, " +
			"Reddit and Mastodon. Media is filtered and compressed to fit each platform.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ArbitraryArgs,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			logutil.SetVerbose(verbose)
			return config.LoadDotEnv(".env.local", ".env")
		},
		RunE: runRoot,
		Example: `  multipost "Ship it!" --media ./shot.png --target discord --target twitter
  multipost -m "Weekly update" --media clip.mp4 --schedule "2026-10-19 09:30"
  echo "Release shipped" | multipost --target all --dry-run`,
	}

	cmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message text to post")
	cmd.Flags().StringArrayVar(&mediaFlags, "media", nil, "Path to an image or video to attach (repeatable)")
	cmd.Flags().StringSliceVarP(&targetsFlag, "target", "t", nil, "Targets in posting order (twitter, bluesky, discord, instagram, reddit, mastodon, or all)")
	cmd.Flags().StringVar(&scheduleFlag, "schedule", "", "Local time to post at ("+scheduleLayout+")")
	cmd.Flags().StringVar(&discordModeFlag, "discord-mode", "", "Discord media mode (attachments, separate or embeds)")
	cmd.Flags().BoolVar(&discordNitro, "discord-nitro", false, "Use Discord Nitro upload limits")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Prepare media and print the plan without posting")
	cmd.Flags().StringVar(&metricsFile, "metrics-file", "", "Write run metrics in Prometheus text format to this file")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newCredentialsCommand())
	cmd.AddCommand(newSetupCommand())
	cmd.AddCommand(newPrefsCommand())
	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func runRoot(cmd *cobra.Command, args []string) error {
	message, err := resolveMessage(cmd, args, len(mediaFlags) > 0)
	if err != nil {
		return err
	}

	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(paths.Credentials())
	if err != nil {
		return err
	}
	prefs, err := config.LoadPreferences(paths.Preferences())
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings(paths.Settings())
	if err != nil {
		return err
	}

	targets, err := normalizeTargets(targetsFlag, prefs.Selected())
	if err != nil {
		return err
	}

	scheduled, err := parseSchedule(scheduleFlag)
	if err != nil {
		return err
	}

	mode := prefs.DiscordMode
	if cmd.Flags().Changed("discord-mode") {
		if mode, err = poster.ParseDiscordMode(discordModeFlag); err != nil {
			return err
		}
	}
	nitro := prefs.DiscordNitro
	if cmd.Flags().Changed("discord-nitro") {
		nitro = discordNitro
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	d := dispatch.New(dispatch.NewBuilder(settings))
	d.TempDir = settings.TempDir
	if metricsFile != "" {
		d.Metrics = metrics.New()
	}

	job := dispatch.Job{
		Post: poster.Post{
			Text:        message,
			Media:       mediaFlags,
			ScheduledAt: scheduled,
		},
		Platforms:    targets,
		Credentials:  creds.WithEnv(os.LookupEnv),
		DiscordMode:  mode,
		DiscordNitro: nitro,
		DryRun:       dryRun,
	}

	printer := newEventPrinter(cmd.OutOrStdout())
	summary := d.Run(ctx, job, printer.Print)
	logutil.Debugf("run summary: id=%s platforms=%d failed=%d removed=%d", summary.RunID, len(summary.Results), len(summary.Failed()), summary.Removed)

	if metricsFile != "" {
		if err := d.Metrics.WriteTextfile(metricsFile); err != nil {
			logutil.Warnf("write metrics: %v", err)
		}
	}

	if summary.Canceled {
		return context.Canceled
	}
	return summary.Err()
}

func resolveMessage(cmd *cobra.Command, args []string, hasMedia bool) (string, error) {
	var message string

	if messageFlag != "" {
		message = messageFlag
	}

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	stdin := cmd.InOrStdin()
	if file, ok := stdin.(*os.File); ok && !term.IsTerminal(int(file.Fd())) {
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		message = strings.TrimSpace(string(data))
	} else if !ok {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		message = strings.TrimSpace(string(data))
	}

	if message == "" && !hasMedia {
		return "", errors.New("a message or at least one --media file is required")
	}

	return message, nil
}

// normalizeTargets keeps the given order and drops duplicates. No targets
// means the enabled platforms; "all" means every platform.
func normalizeTargets(values []string, enabled []poster.Platform) ([]poster.Platform, error) {
	if len(values) == 0 {
		if len(enabled) == 0 {
			return nil, errors.New("no platforms enabled; use --target or 'multipost prefs enable'")
		}
		return enabled, nil
	}

	result := make([]poster.Platform, 0, len(values))
	seen := map[poster.Platform]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return append([]poster.Platform(nil), poster.Platforms...), nil
		}
		p, err := poster.ParsePlatform(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		result = append(result, p)
	}

	if len(result) == 0 {
		return nil, errors.New("no targets selected")
	}

	return result, nil
}

func parseSchedule(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(scheduleLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --schedule %q (want %s)", raw, scheduleLayout)
	}
	return t, nil
}
