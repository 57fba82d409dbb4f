// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tomtom215/leadchat/internal/logging"
	"github.com/tomtom215/leadchat/internal/widget"
)

type embedOptions struct {
	pageURL   string
	projectID string
	microsite string
	noShadow  bool
	watch     bool
}

func newEmbedCmd(opts *cliOptions) *cobra.Command {
	eo := &embedOptions{}

	cmd := &cobra.Command{
		Use:   "embed <page.html|->",
		Short: "Mount the widget onto a page and print the result",
		Long: "embed mounts the chat widget onto an HTML page the way the embed script does and " +
			"prints the rendered document. Project and API base come from the page's widget script " +
			"tag unless given as flags.\n\n" +
			"With --watch the widget keeps polling its theme and follows live updates from the API " +
			"until interrupted; the document is printed again on exit if the theme changed.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if eo.watch {
				var stop context.CancelFunc
				ctx, stop = signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
			}
			return runEmbed(ctx, cmd, opts, eo, args[0])
		},
	}

	f := cmd.Flags()
	f.StringVar(&eo.pageURL, "url", "http://localhost/", "URL the page is served from")
	f.StringVar(&eo.projectID, "project", "", "project id (overrides the script tag)")
	f.StringVar(&eo.microsite, "microsite", "", "microsite name (defaults to the page hostname)")
	f.BoolVar(&eo.noShadow, "no-shadow", false, "render without a shadow root, as on browsers lacking one")
	f.BoolVar(&eo.watch, "watch", false, "keep the widget live until interrupted")
	return cmd
}

func runEmbed(ctx context.Context, cmd *cobra.Command, opts *cliOptions, eo *embedOptions, path string) error {
	var docOpts []widget.DocumentOption
	if eo.noShadow {
		docOpts = append(docOpts, widget.WithoutShadowDOM())
	}
	doc, err := parseDocument(cmd, path, docOpts...)
	if err != nil {
		return err
	}
	page, err := widget.NewPage(eo.pageURL, doc)
	if err != nil {
		return err
	}

	mc, _ := widget.ScriptConfig(page)
	if eo.projectID != "" {
		mc.ProjectID = eo.projectID
	}
	if eo.microsite != "" {
		mc.Microsite = eo.microsite
	}
	if cmd.Flags().Changed("api-base") {
		mc.APIBaseURL = opts.apiBase
	}

	ctrlOpts := widget.Options{
		Fetcher:         opts.fetcher(),
		HTTPClient:      opts.httpClient(),
		FallbackAPIBase: opts.apiBase,
	}
	if opts.cfg != nil {
		ctrlOpts.PollInterval = opts.cfg.Widget.PollInterval
	}
	defer ctrlOpts.Fetcher.Close()

	inst := widget.NewController(ctrlOpts).Mount(ctx, page, mc)
	defer func() {
		inst.Dispatcher().Wait()
		inst.Destroy()
	}()
	if inst.State() == widget.StateFailed {
		return errors.New("widget failed to mount on this page")
	}

	out := cmd.OutOrStdout()
	if err := doc.Render(out); err != nil {
		return err
	}
	if !eo.watch {
		return nil
	}
	return watch(ctx, out, page, inst)
}

// watch keeps inst polling and following live updates until ctx is done,
// then prints the document again if the theme changed.
func watch(ctx context.Context, out io.Writer, page *widget.Page, inst *widget.Instance) error {
	if inst.APIBase() == "" || inst.ProjectID() == "" {
		return errors.New("--watch needs an API base and a project id")
	}
	log := logging.WithComponent("cli")
	initial := inst.Theme()

	id := page.AddEventListener(widget.ConfigUpdatedEvent, func(detail string) {
		log.Info().Str("project_id", detail).Msg("Widget config update received")
	})
	defer page.RemoveEventListener(widget.ConfigUpdatedEvent, id)

	inst.StartConfigPolling()
	defer inst.StopConfigPolling()

	log.Info().Str("project_id", inst.ProjectID()).Str("api_base", inst.APIBase()).Msg("Watching widget config, press Ctrl+C to stop")
	err := widget.Follow(ctx, inst)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("live updates: %w", err)
	}

	inst.StopConfigPolling()
	if !inst.Theme().Equal(initial) {
		if _, err := io.WriteString(out, "\n"); err != nil {
			return err
		}
		return page.Document().Render(out)
	}
	return nil
}
