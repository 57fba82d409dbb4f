// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package widget

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"sort"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/tomtom215/leadchat/internal/leads"
	"github.com/tomtom215/leadchat/internal/models"
)

// RenderProps is everything a render pass sees. State is the same pointer
// on every pass of an instance.
type RenderProps struct {
	Theme     models.ThemeConfig // resolved against DefaultTheme
	ProjectID string
	Microsite string
	State     *ConversationState
}

// Renderer writes the widget markup for props.
type Renderer interface {
	Render(w io.Writer, props RenderProps) error
}

// RenderFunc adapts a function to Renderer.
type RenderFunc func(w io.Writer, props RenderProps) error

// Render calls f.
func (f RenderFunc) Render(w io.Writer, props RenderProps) error { return f(w, props) }

type propertyLine struct {
	Label string
	Value string
}

type templateData struct {
	Theme      models.ThemeConfig
	ProjectID  string
	Microsite  string
	Chat       ConversationSnapshot
	Property   []propertyLine
	BHKOptions []string
	Left       bool
}

var propertyLabels = map[string]string{
	PropertyName:     "Project",
	PropertyPrice:    "Price",
	PropertyLocation: "Location",
}

var widgetTemplate = template.Must(template.New("widget").Parse(`<style>
.lc-widget{position:fixed;bottom:20px;{{if .Left}}left{{else}}right{{end}}:20px;font-family:system-ui,sans-serif}
.lc-bubble{width:56px;height:56px;border-radius:50%;background:{{.Theme.PrimaryColor}};color:#fff;cursor:pointer}
.lc-panel{width:320px;max-height:480px;overflow:auto;background:#fff;border-radius:12px;box-shadow:0 8px 24px rgba(0,0,0,.18)}
.lc-header{background:{{.Theme.PrimaryColor}};color:#fff;padding:12px}
.lc-msg{padding:6px 12px}.lc-msg-user{text-align:right}
.lc-error{color:#c62828;padding:6px 12px}
</style>
<div class="lc-widget" data-stage="{{.Chat.Stage}}" data-project="{{.ProjectID}}" data-microsite="{{.Microsite}}">
<button class="lc-bubble" type="button" aria-label="Chat with {{.Theme.AgentName}}">{{if .Theme.AvatarURL}}<img src="{{.Theme.AvatarURL}}" alt="{{.Theme.AgentName}}" width="56" height="56">{{else}}{{.Theme.AgentName}}{{end}}</button>
{{- if .Chat.Open}}
<div class="lc-panel" role="dialog">
<div class="lc-header"><strong>{{.Theme.AgentName}}</strong></div>
{{- if .Property}}
<dl class="lc-property">{{range .Property}}<dt>{{.Label}}</dt><dd>{{.Value}}</dd>{{end}}</dl>
{{- end}}
<div class="lc-messages">{{range .Chat.Messages}}<p class="lc-msg lc-msg-{{.Role}}">{{.Text}}</p>{{end}}</div>
{{- if eq .Chat.Stage "preference"}}
<div class="lc-options">{{range .BHKOptions}}<button type="button" class="lc-option" data-bhk="{{.}}">{{.}}</button>{{end}}</div>
{{- else if eq .Chat.Stage "phone"}}
<form class="lc-phone"><input type="tel" name="phone" autocomplete="tel" placeholder="10-digit mobile number"><button type="submit">Call me back</button></form>
{{- end}}
{{- if .Chat.Error}}
<p class="lc-error" role="alert">{{.Chat.Error}}</p>
{{- end}}
</div>
{{- end}}
</div>`))

// HTMLRenderer is the built-in chat bubble and panel.
type HTMLRenderer struct{}

// Render writes the widget markup.
func (HTMLRenderer) Render(w io.Writer, props RenderProps) error {
	data := templateData{
		Theme:      props.Theme,
		ProjectID:  props.ProjectID,
		Microsite:  props.Microsite,
		Chat:       props.State.Snapshot(),
		BHKOptions: leads.BHKOptions(),
		Left:       props.Theme.BubblePosition == models.BubbleBottomLeft,
	}
	keys := make([]string, 0, len(props.Theme.PropertyInfo))
	for k := range props.Theme.PropertyInfo {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		label, ok := propertyLabels[k]
		if !ok {
			label = k
		}
		data.Property = append(data.Property, propertyLine{Label: label, Value: props.Theme.PropertyInfo[k]})
	}
	return widgetTemplate.Execute(w, data)
}

// renderNodes runs r and parses its output as children of a <div>.
func renderNodes(r Renderer, props RenderProps) ([]*html.Node, error) {
	var buf bytes.Buffer
	if err := r.Render(&buf, props); err != nil {
		return nil, fmt.Errorf("render widget: %w", err)
	}
	context := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(&buf, context)
	if err != nil {
		return nil, fmt.Errorf("parse widget markup: %w", err)
	}
	return nodes, nil
}
