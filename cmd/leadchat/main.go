// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

// Command leadchat drives the widget runtime without a browser: it detects
// listing details on saved pages, fetches project themes and mounts the
// widget onto HTML documents.
package main

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tomtom215/leadchat/internal/config"
	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/widget"
)

var version = "dev"

// cliOptions are the persistent flags shared by every subcommand.
type cliOptions struct {
	apiBase   string
	timeout   time.Duration
	logLevel  string
	logFormat string

	cfg *config.Config
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:           "leadchat",
		Short:         "LeadChat widget runtime tools",
		Long:          "leadchat detects listing details, fetches widget themes and mounts the chat widget onto HTML pages.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logging.Init(logging.Config{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				Output: cmd.ErrOrStderr(),
			})
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			if !cmd.Flags().Changed("api-base") && opts.apiBase == "" {
				opts.apiBase = cfg.Widget.APIBaseURL
			}
			if !cmd.Flags().Changed("timeout") && cfg.Widget.FetchTimeout > 0 {
				opts.timeout = cfg.Widget.FetchTimeout
			}
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.apiBase, "api-base", "", "LeadChat API base URL (default from WIDGET_API_BASE_URL)")
	pf.DurationVar(&opts.timeout, "timeout", widget.DefaultFetchTimeout, "per-request timeout for API calls")
	pf.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	pf.StringVar(&opts.logFormat, "log-format", "console", "log format: console or json")

	root.AddCommand(newDetectCmd(opts))
	root.AddCommand(newThemeCmd(opts))
	root.AddCommand(newEmbedCmd(opts))
	return root
}

func (o *cliOptions) httpClient() *http.Client {
	return &http.Client{Timeout: o.timeout + time.Second}
}

func (o *cliOptions) fetcher() *widget.Fetcher {
	fopts := []widget.FetcherOption{
		widget.WithHTTPClient(o.httpClient()),
		widget.WithFetchTimeout(o.timeout),
	}
	if o.cfg != nil && o.cfg.Widget.CacheWindow > 0 {
		fopts = append(fopts, widget.WithCacheWindow(o.cfg.Widget.CacheWindow))
	}
	return widget.NewFetcher(fopts...)
}

// openInput opens a path, or stdin for "-".
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}
	f, err := os.Open(path) //nolint:gosec // path is an operator-supplied CLI argument
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

func parseDocument(cmd *cobra.Command, path string, opts ...widget.DocumentOption) (*widget.Document, error) {
	in, err := openInput(cmd, path)
	if err != nil {
		return nil, err
	}
	defer in.Close()
	doc, err := widget.ParseDocument(in, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
