// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Host element identity.
const (
	MarkerAttr = "data-leadchat-widget"
	HostID     = "leadchat-widget-root"
	resetAttr  = "data-leadchat-reset"
)

// Mount failure causes.
var (
	ErrNoBody            = errors.New("document has no body")
	ErrShadowUnsupported = errors.New("shadow roots are not supported")
)

// resetCSS is injected into the host when shadow roots are unavailable.
const resetCSS = `#leadchat-widget-root{all:initial;position:fixed;z-index:2147483000;font-family:system-ui,-apple-system,"Segoe UI",Roboto,sans-serif;line-height:1.4}` +
	`#leadchat-widget-root *{box-sizing:border-box;margin:0;padding:0;font:inherit;color:inherit;background:none;border:0}`

// Document is a parsed HTML page shared by everything running on it. All
// tree access goes through the document lock.
type Document struct {
	mu              sync.Mutex
	root            *html.Node
	shadowSupported bool
}

// DocumentOption configures a Document.
type DocumentOption func(*Document)

// WithoutShadowDOM makes AttachShadow fail, like a browser lacking the API.
func WithoutShadowDOM() DocumentOption {
	return func(d *Document) { d.shadowSupported = false }
}

// NewDocument wraps an already parsed tree.
func NewDocument(root *html.Node, opts ...DocumentOption) *Document {
	d := &Document{root: root, shadowSupported: true}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ParseDocument parses an HTML page.
func ParseDocument(r io.Reader, opts ...DocumentOption) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}
	return NewDocument(root, opts...), nil
}

// ParseDocumentString is ParseDocument for a string.
func ParseDocumentString(s string, opts ...DocumentOption) (*Document, error) {
	return ParseDocument(strings.NewReader(s), opts...)
}

// Render writes the page, widget included, as HTML.
func (d *Document) Render(w io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return html.Render(w, d.root)
}

// String renders the page, returning "" on error.
func (d *Document) String() string {
	var b strings.Builder
	if err := d.Render(&b); err != nil {
		return ""
	}
	return b.String()
}

// DetectProperty runs DetectProperty over the page.
func (d *Document) DetectProperty() map[string]string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DetectProperty(d.root)
}

// CountMarkers returns how many widget hosts are in the page.
func (d *Document) CountMarkers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	walk(d.root, func(node *html.Node) bool {
		if node.Type == html.ElementNode && hasAttr(node, MarkerAttr) {
			n++
		}
		return true
	})
	return n
}

// HasMarker reports whether a widget host exists.
func (d *Document) HasMarker() bool {
	return d.CountMarkers() > 0
}

// The methods below expect d.mu to be held.

func (d *Document) body() *html.Node {
	return findFirst(d.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.DataAtom == atom.Body
	})
}

// createHost appends the marked host element to body.
func (d *Document) createHost() (*html.Node, error) {
	body := d.body()
	if body == nil {
		return nil, ErrNoBody
	}
	host := &html.Node{
		Type:     html.ElementNode,
		Data:     "div",
		DataAtom: atom.Div,
		Attr: []html.Attribute{
			{Key: "id", Val: HostID},
			{Key: MarkerAttr, Val: "true"},
		},
	}
	body.AppendChild(host)
	return host, nil
}

// attachShadow gives host a declarative shadow root and returns it.
func (d *Document) attachShadow(host *html.Node) (*html.Node, error) {
	if !d.shadowSupported {
		return nil, ErrShadowUnsupported
	}
	shadow := &html.Node{
		Type:     html.ElementNode,
		Data:     "template",
		DataAtom: atom.Template,
		Attr:     []html.Attribute{{Key: "shadowrootmode", Val: "open"}},
	}
	host.AppendChild(shadow)
	return shadow, nil
}

// injectResetStyle adds the scoped reset stylesheet to host.
func (d *Document) injectResetStyle(host *html.Node) {
	style := &html.Node{
		Type:     html.ElementNode,
		Data:     "style",
		DataAtom: atom.Style,
		Attr:     []html.Attribute{{Key: resetAttr, Val: "true"}},
	}
	style.AppendChild(&html.Node{Type: html.TextNode, Data: resetCSS})
	host.AppendChild(style)
}

func detach(n *html.Node) {
	if n != nil && n.Parent != nil {
		n.Parent.RemoveChild(n)
	}
}

// replaceRendered swaps root's rendered children for nodes, keeping the
// reset stylesheet in place.
func replaceRendered(root *html.Node, nodes []*html.Node) {
	clearRendered(root)
	for _, n := range nodes {
		root.AppendChild(n)
	}
}

func clearRendered(root *html.Node) {
	for c := root.FirstChild; c != nil; {
		next := c.NextSibling
		if !(c.Type == html.ElementNode && hasAttr(c, resetAttr)) {
			root.RemoveChild(c)
		}
		c = next
	}
}

// walk visits n and its descendants depth-first; visit returns false to
// skip a node's children.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if n == nil {
		return
	}
	if !visit(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, visit)
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(node *html.Node) bool {
		if found != nil {
			return false
		}
		if match(node) {
			found = node
			return false
		}
		return true
	})
	return found
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	var b strings.Builder
	walk(n, func(node *html.Node) bool {
		if node.Type == html.ElementNode && (node.DataAtom == atom.Script || node.DataAtom == atom.Style) {
			return false
		}
		if node.Type == html.TextNode {
			b.WriteString(node.Data)
			b.WriteByte(' ')
		}
		return true
	})
	return collapseSpace(b.String())
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
