// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tomtom215/leadchat/internal/logging"
)

// Detected property keys.
const (
	PropertyName     = "propertyName"
	PropertyPrice    = "price"
	PropertyLocation = "location"
)

const maxDetectedLength = 160

// Signal priorities, strongest first.
const (
	prioDataAttr = iota
	prioMeta
	prioMetaWeak
	prioClassHint
	prioCurrencyText
	prioHeading
	prioTitle
)

var (
	currencyPattern = regexp.MustCompile(`(?i)(?:₹|\bRs\.?|\bINR)\s*[\d][\d,.]*\s*(?:Cr(?:ore)?s?|Lakhs?|Lacs?|L)?\b|[\d][\d,.]*\s*(?:Cr(?:ore)?s?|Lakhs?|Lacs?)\b`)

	metaSignals = map[string]struct {
		key  string
		prio int
	}{
		"og:title":             {PropertyName, prioMeta},
		"og:site_name":         {PropertyName, prioMetaWeak},
		"product:price:amount": {PropertyPrice, prioMeta},
		"og:price:amount":      {PropertyPrice, prioMeta},
		"og:locality":          {PropertyLocation, prioMeta},
		"geo.placename":        {PropertyLocation, prioMeta},
	}

	dataAttrSignals = map[string]string{
		"data-property-name":     PropertyName,
		"data-property-title":    PropertyName,
		"data-property-price":    PropertyPrice,
		"data-property-location": PropertyLocation,
		"data-property-address":  PropertyLocation,
	}
)

type candidate struct {
	prio  int
	value string
}

// DetectProperty extracts the property being marketed from a page: its
// name, price and location. Signals are tried strongest first: data-property-*
// attributes, meta tags, class/id hints, currency-looking text, then the
// page heading and title. It returns an empty map when nothing matches.
// The widget's own host is ignored.
func DetectProperty(doc *html.Node) map[string]string {
	best := map[string]candidate{}
	offer := func(key string, prio int, value string) {
		value = clip(collapseSpace(value))
		if value == "" {
			return
		}
		if cur, ok := best[key]; ok && cur.prio <= prio {
			return
		}
		best[key] = candidate{prio: prio, value: value}
	}

	walk(doc, func(n *html.Node) bool {
		switch n.Type {
		case html.ElementNode:
			if hasAttr(n, MarkerAttr) {
				return false
			}
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Template, atom.Noscript:
				return false
			case atom.Meta:
				detectMeta(n, offer)
				return false
			case atom.Title:
				offer(PropertyName, prioTitle, trimTitle(textContent(n)))
				return false
			case atom.H1:
				offer(PropertyName, prioHeading, textContent(n))
			}
			detectDataAttrs(n, offer)
			detectClassHints(n, offer)
		case html.TextNode:
			if m := currencyPattern.FindString(n.Data); m != "" {
				offer(PropertyPrice, prioCurrencyText, m)
			}
		}
		return true
	})

	out := make(map[string]string, len(best))
	for k, c := range best {
		out[k] = c.value
	}
	if len(out) > 0 {
		logging.Debug().Interface("property", out).Msg("Detected property on page")
	}
	return out
}

func detectMeta(n *html.Node, offer func(string, int, string)) {
	name := strings.ToLower(attr(n, "property"))
	if name == "" {
		name = strings.ToLower(attr(n, "name"))
	}
	if sig, ok := metaSignals[name]; ok {
		offer(sig.key, sig.prio, attr(n, "content"))
	}
}

func detectDataAttrs(n *html.Node, offer func(string, int, string)) {
	for _, a := range n.Attr {
		key, ok := dataAttrSignals[strings.ToLower(a.Key)]
		if !ok {
			continue
		}
		value := a.Val
		if strings.TrimSpace(value) == "" {
			value = textContent(n)
		}
		offer(key, prioDataAttr, value)
	}
}

func detectClassHints(n *html.Node, offer func(string, int, string)) {
	hints := strings.ToLower(attr(n, "class") + " " + attr(n, "id"))
	if strings.TrimSpace(hints) == "" {
		return
	}
	switch {
	case strings.Contains(hints, "project-name"), strings.Contains(hints, "property-name"):
		offer(PropertyName, prioClassHint, textContent(n))
	case strings.Contains(hints, "price"):
		if text := textContent(n); strings.ContainsAny(text, "0123456789") {
			offer(PropertyPrice, prioClassHint, text)
		}
	case strings.Contains(hints, "location"), strings.Contains(hints, "address"):
		offer(PropertyLocation, prioClassHint, textContent(n))
	}
}

// trimTitle drops a trailing " | Site" or " - Site" suffix.
func trimTitle(s string) string {
	for _, sep := range []string{" | ", " - ", " – "} {
		if i := strings.Index(s, sep); i > 0 {
			return s[:i]
		}
	}
	return s
}

func clip(s string) string {
	if len([]rune(s)) <= maxDetectedLength {
		return s
	}
	return strings.TrimSpace(string([]rune(s)[:maxDetectedLength]))
}
