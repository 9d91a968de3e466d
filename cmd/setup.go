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
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
	"github.com/HC91Dev/MultiPlatformPoster/internal/dispatch"
	"github.com/HC91Dev/MultiPlatformPoster/internal/imghost"
	"github.com/HC91Dev/MultiPlatformPoster/internal/poster"
	"github.com/HC91Dev/MultiPlatformPoster/internal/tui"
)

func newSetupCommand() *cobra.Command {
	return &cobra.Command{
		Use:       "setup <platform>",
		Short:     "Enter credentials for one platform interactively",
		Long:      "Interactive wizard that edits one credential record and checks it is complete before saving.",
		Args:      cobra.ExactArgs(1),
		ValidArgs: sectionNames(),
		RunE:      runSetup,
	}
}

func runSetup(cmd *cobra.Command, args []string) error {
	section, ok := config.Lookup(normalizeSection(args[0]))
	if !ok {
		return fmt.Errorf("unknown platform %q (want one of %s)", args[0], strings.Join(sectionNames(), ", "))
	}

	paths, err := config.DefaultPaths()
	if err != nil {
		return err
	}
	creds, err := config.LoadCredentials(paths.Credentials())
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	settings, err := config.LoadSettings(paths.Settings())
	if err != nil {
		return err
	}

	model := tui.NewSetupModel(section, creds[section.Name], checkRecord(settings))
	result, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("TUI error: %w", err)
	}

	final := result.(tui.SetupModel)
	if !final.ShouldSave() {
		fmt.Fprintln(cmd.OutOrStdout(), "Setup cancelled.")
		return nil
	}

	creds[section.Name] = final.Result()
	if err := config.SaveCredentials(paths.Credentials(), creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Credentials saved to %s\n", paths.Credentials())
	return nil
}

// checkRecord validates a record by constructing the matching client, which
// never touches the network.
func checkRecord(settings config.Settings) tui.ValidateFn {
	build := dispatch.NewBuilder(settings)
	return func(_ context.Context, section string, rec config.Record) error {
		if section == "imgbb" {
			_, err := imghost.New(rec["api_key"])
			return missingMessage(err)
		}
		p, err := poster.ParsePlatform(section)
		if err != nil {
			return err
		}
		creds := config.NewCredentials()
		creds[section] = rec
		_, err = build(p, creds, dispatch.Tools{})
		return missingMessage(err)
	}
}

func missingMessage(err error) error {
	var missing poster.MissingCredentialsError
	if errors.As(err, &missing) {
		return fmt.Errorf("Missing %s", strings.Join(missing.Fields, ", "))
	}
	return err
}

func sectionNames() []string {
	names := make([]string, len(config.Schema))
	for i, s := range config.Schema {
		names[i] = s.Name
	}
	return names
}

// normalizeSection accepts platform aliases such as "x".
func normalizeSection(raw string) string {
	if p, err := poster.ParsePlatform(raw); err == nil {
		return string(p)
	}
	return strings.ToLower(strings.TrimSpace(raw))
}
