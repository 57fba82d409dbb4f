// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package main

import (
	"github.com/spf13/cobra"
)

func newDetectCmd(_ *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "detect <page.html|->",
		Short: "Print the listing details detected on a page",
		Long: "detect reads an HTML page and prints the property name, price and location " +
			"the widget would attach to leads from it. Keys with nothing detected are omitted.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := parseDocument(cmd, args[0])
			if err != nil {
				return err
			}
			props := doc.DetectProperty()
			if props == nil {
				props = map[string]string{}
			}
			return writeJSON(cmd.OutOrStdout(), props)
		},
	}
}
