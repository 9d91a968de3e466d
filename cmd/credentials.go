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
	"sort"

	"github.com/spf13/cobra"

	"github.com/HC91Dev/MultiPlatformPoster/internal/config"
)

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "credentials",
		Aliases: []string{"creds"},
		Short:   "Inspect and edit stored credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [platform...]",
		Short: "Print credentials with secrets masked",
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.DefaultPaths()
			if err != nil {
				return err
			}
			creds, err := config.LoadCredentials(paths.Credentials())
			if err != nil {
				return err
			}
			sections, err := selectSections(args)
			if err != nil {
				return err
			}
			masked := creds.Masked()
			out := cmd.OutOrStdout()
			for _, s := range sections {
				fmt.Fprintf(out, "[%s]\n", s.Name)
				for _, f := range s.Fields {
					v := masked.Value(s.Name, f.Name)
					if v == "" {
						v = "(not set)"
					}
					fmt.Fprintf(out, "  %-14s %s\n", f.Name, v)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set <platform>.<field> <value>",
		Short: "Set one credential value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := config.DefaultPaths()
			if err != nil {
				return err
			}
			creds, err := config.LoadCredentials(paths.Credentials())
			if err != nil {
				return err
			}
			if err := creds.Set(args[0], args[1]); err != nil {
				return err
			}
			if err := config.SaveCredentials(paths.Credentials(), creds); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s to %s\n", args[0], paths.Credentials())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the configuration file locations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			paths, err := config.DefaultPaths()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, paths.Credentials())
			fmt.Fprintln(out, paths.Preferences())
			fmt.Fprintln(out, paths.Settings())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "env",
		Short: "List the environment variables that override credentials",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			var names []string
			for _, s := range config.Schema {
				for _, f := range s.Fields {
					names = append(names, config.EnvName(s.Name, f.Name))
				}
			}
			sort.Strings(names)
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
		},
	})

	return cmd
}

func selectSections(names []string) ([]config.Section, error) {
	if len(names) == 0 {
		return config.Schema, nil
	}
	var out []config.Section
	var errs []error
	for _, n := range names {
		s, ok := config.Lookup(normalizeSection(n))
		if !ok {
			errs = append(errs, fmt.Errorf("unknown credentials section %q", n))
			continue
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}
