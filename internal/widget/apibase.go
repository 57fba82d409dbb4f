// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"net/url"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tomtom215/leadchat/internal/logging"
)

// Embedding script attributes.
const (
	ScriptAttrProject    = "data-project"
	ScriptAttrAPIBaseURL = "data-api-base-url"
	ScriptAttrMicrosite  = "data-microsite"
	ScriptAttrMarker     = "data-leadchat"
	scriptFileName       = "widget.js"
)

// NormalizeAPIBase trims whitespace, trailing slashes and a trailing /api
// segment. It returns "" for anything that is not an absolute http(s) URL.
//
//	NormalizeAPIBase("https://api.example.com/api/") // "https://api.example.com"
func NormalizeAPIBase(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	// Only the path is trimmed: a host named "api" stays.
	p := strings.TrimRight(u.Path, "/")
	p = strings.TrimRight(strings.TrimSuffix(p, "/api"), "/")
	u.Path, u.RawPath = p, ""
	u.RawQuery, u.Fragment = "", ""
	return u.String()
}

// ResolveAPIBase picks the API origin the widget on page may use. The
// configured base is discarded when it is loopback while the page is not,
// or when the page is https and the base is plain http; fallback is then
// tried under the same rules. "" means no network access.
func ResolveAPIBase(configured string, page *Page, fallback string) string {
	for _, candidate := range []string{configured, fallback} {
		base := NormalizeAPIBase(candidate)
		if base == "" {
			continue
		}
		if reason := mismatch(base, page); reason != "" {
			logging.Warn().Str("api_base", base).Str("reason", reason).Msg("Discarding widget API base URL")
			continue
		}
		return base
	}
	return ""
}

func mismatch(base string, page *Page) string {
	if page == nil {
		return ""
	}
	u, err := url.Parse(base)
	if err != nil {
		return "unparseable"
	}
	if isLoopbackHost(u.Hostname()) && !page.IsLoopback() {
		return "loopback api on public page"
	}
	if page.Secure() && u.Scheme == "http" {
		return "mixed content"
	}
	return ""
}

// ScriptConfig reads the mount configuration from the embedding script tag:
// the <script> whose src ends in widget.js or which carries data-leadchat.
// Microsite defaults to the page hostname. ok is false when no tag exists.
func ScriptConfig(page *Page) (cfg MountConfig, ok bool) {
	doc := page.Document()
	doc.mu.Lock()
	script := findFirst(doc.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Script && isWidgetScript(n)
	})
	if script != nil {
		cfg = MountConfig{
			ProjectID:  strings.TrimSpace(attr(script, ScriptAttrProject)),
			APIBaseURL: strings.TrimSpace(attr(script, ScriptAttrAPIBaseURL)),
			Microsite:  strings.TrimSpace(attr(script, ScriptAttrMicrosite)),
		}
	}
	doc.mu.Unlock()

	if script == nil {
		return MountConfig{}, false
	}
	if cfg.Microsite == "" {
		cfg.Microsite = page.Hostname()
	}
	return cfg, true
}

func isWidgetScript(n *html.Node) bool {
	if hasAttr(n, ScriptAttrMarker) {
		return true
	}
	src := attr(n, "src")
	if src == "" {
		return false
	}
	if u, err := url.Parse(src); err == nil {
		src = u.Path
	}
	return path.Base(src) == scriptFileName
}
