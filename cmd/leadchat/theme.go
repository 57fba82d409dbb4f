// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tomtom215/leadchat/internal/validation"
	"github.com/tomtom215/leadchat/internal/widget"
)

func newThemeCmd(opts *cliOptions) *cobra.Command {
	var resolve bool

	cmd := &cobra.Command{
		Use:   "theme <projectId>",
		Short: "Fetch a project's widget theme",
		Long: "theme fetches the stored widget theme for a project the same way the widget does " +
			"and prints it with camelCase keys. With --resolve, unset fields are filled from the defaults.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			projectID := args[0]
			if !validation.ValidateProjectID(projectID) {
				return fmt.Errorf("invalid project id %q", projectID)
			}
			base := widget.NormalizeAPIBase(opts.apiBase)
			if base == "" {
				return errors.New("no usable API base: pass --api-base or set WIDGET_API_BASE_URL")
			}

			f := opts.fetcher()
			defer f.Close()

			theme := f.FetchTheme(cmd.Context(), base, projectID, true)
			if theme.IsEmpty() && !resolve {
				return fmt.Errorf("no theme stored for %q (or the API is unreachable)", projectID)
			}
			if resolve {
				theme = theme.Resolve()
			}
			return writeJSON(cmd.OutOrStdout(), theme)
		},
	}
	cmd.Flags().BoolVar(&resolve, "resolve", false, "fill unset fields from the built-in defaults")
	return cmd
}
