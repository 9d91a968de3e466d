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
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
)

func newPrefsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "prefs",
		Aliases: []string{"preferences"},
		Short:   "Show or change platform selection and Discord options",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the stored preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withPrefs(false, func(p *config.Preferences) error {
				printPrefs(cmd, *p)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "discord-mode <attachments|separate|embeds>",
		Short:     "Choose how Discord receives media",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"attachments", "separate", "embeds"},
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := poster.ParseDiscordMode(args[0])
			if err != nil {
				return err
			}
			return withPrefs(true, func(p *config.Preferences) error {
				p.SetDiscordMode(mode)
				fmt.Fprintf(cmd.OutOrStdout(), "Discord mode: %s\n", mode)
				return nil
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:       "nitro <on|off>",
		Short:     "Toggle Discord Nitro upload limits",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"on", "off"},
		RunE: func(cmd *cobra.Command, args []string) error {
			on, err := parseSwitch(args[0])
			if err != nil {
				return err
			}
			return withPrefs(true, func(p *config.Preferences) error {
				p.DiscordNitro = on
				fmt.Fprintf(cmd.OutOrStdout(), "Discord Nitro: %s\n", onOff(on))
				return nil
			})
		},
	})

	for _, enable := range []bool{true, false} {
		verb := "disable"
		if enable {
			verb = "enable"
		}
		cmd.AddCommand(&cobra.Command{
			Use:   verb + " <platform...>",
			Short: strings.ToUpper(verb[:1]) + verb[1:] + " platforms used when no --target is given",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				platforms, err := parsePlatforms(args)
				if err != nil {
					return err
				}
				return withPrefs(true, func(p *config.Preferences) error {
					for _, platform := range platforms {
						p.SetEnabled(platform, enable)
					}
					printPrefs(cmd, *p)
					return nil
				})
			},
		})
	}

	return cmd
}

func withPrefs(save bool, fn func(*config.Preferences) error) error {
	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	prefs, err := config.LoadPreferences(paths.Preferences())
	if err != nil {
		return err
	}
	if err := fn(&prefs); err != nil {
		return err
	}
	if !save {
		return nil
	}
	return config.SavePreferences(paths.Preferences(), prefs)
}

func printPrefs(cmd *cobra.Command, p config.Preferences) {
	out := cmd.OutOrStdout()
	selected := map[poster.Platform]bool{}
	for _, platform := range p.Selected() {
		selected[platform] = true
	}
	for _, platform := range poster.Platforms {
		fmt.Fprintf(out, "  %-10s %s\n", platform, onOff(selected[platform]))
	}
	fmt.Fprintf(out, "  discord mode  %s\n", p.DiscordMode)
	fmt.Fprintf(out, "  discord nitro %s\n", onOff(p.DiscordNitro))
}

func parsePlatforms(args []string) ([]poster.Platform, error) {
	var out []poster.Platform
	var errs []error
	for _, a := range args {
		p, err := poster.ParsePlatform(a)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	return out, errors.Join(errs...)
}

func parseSwitch(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "on", "true", "yes", "1":
		return true, nil
	case "off", "false", "no", "0":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", raw)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
