// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package models

import (
	"fmt"
	"maps"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// ThemeConfig is the widget presentation record. It is stored sparse: an
// empty string or nil field means "not configured" and is filled from
// DefaultTheme only when rendering (Resolve). Treat values as immutable and
// build a new ThemeConfig instead of editing one that has been published.
type ThemeConfig struct {
	AgentName        string            `json:"agentName,omitempty"`
	AvatarURL        string            `json:"avatarUrl,omitempty"`
	PrimaryColor     string            `json:"primaryColor,omitempty"`
	WelcomeMessage   string            `json:"welcomeMessage,omitempty"`
	FollowupMessage  string            `json:"followupMessage,omitempty"`
	BHKPrompt        string            `json:"bhkPrompt,omitempty"`
	InventoryMessage string            `json:"inventoryMessage,omitempty"`
	PhonePrompt      string            `json:"phonePrompt,omitempty"`
	ThankYouMessage  string            `json:"thankYouMessage,omitempty"`
	BubblePosition   string            `json:"bubblePosition,omitempty"`
	AutoOpenDelayMs  *int              `json:"autoOpenDelayMs,omitempty"`
	PropertyInfo     map[string]string `json:"propertyInfo,omitempty"`
}

// Bubble positions accepted by the renderer.
const (
	BubbleBottomRight = "bottom-right"
	BubbleBottomLeft  = "bottom-left"
)

// DefaultTheme returns the hardcoded presentation defaults.
func DefaultTheme() ThemeConfig {
	delay := 4000
	return ThemeConfig{
		AgentName:        "Riya",
		PrimaryColor:     "#6158ff",
		WelcomeMessage:   "Hi! Looking for a home here? I can help you with prices and availability.",
		FollowupMessage:  "Sure, let me help you with that.",
		BHKPrompt:        "Which configuration are you looking for?",
		InventoryMessage: "Great choice! We have a few units available in that configuration.",
		PhonePrompt:      "Share your mobile number and our property expert will call you back.",
		ThankYouMessage:  "Thank you! Our expert will reach out to you shortly.",
		BubblePosition:   BubbleBottomRight,
		AutoOpenDelayMs:  &delay,
	}
}

// IsEmpty reports whether no field carries a value.
func (t ThemeConfig) IsEmpty() bool {
	return reflect.DeepEqual(t.Normalize(), ThemeConfig{})
}

// Clone returns a deep copy.
func (t ThemeConfig) Clone() ThemeConfig {
	out := t
	if t.AutoOpenDelayMs != nil {
		v := *t.AutoOpenDelayMs
		out.AutoOpenDelayMs = &v
	}
	if t.PropertyInfo != nil {
		out.PropertyInfo = maps.Clone(t.PropertyInfo)
	}
	return out
}

// Normalize returns the canonical form used for change detection:
// whitespace-only strings become empty, empty property values are dropped and
// an empty property map becomes nil.
func (t ThemeConfig) Normalize() ThemeConfig {
	out := t.Clone()
	for _, f := range out.stringFields() {
		*f = strings.TrimSpace(*f)
	}
	if len(out.PropertyInfo) > 0 {
		for k, v := range out.PropertyInfo {
			if strings.TrimSpace(v) == "" {
				delete(out.PropertyInfo, k)
			}
		}
	}
	if len(out.PropertyInfo) == 0 {
		out.PropertyInfo = nil
	}
	return out
}

// Equal compares two themes after normalization.
func (t ThemeConfig) Equal(other ThemeConfig) bool {
	return reflect.DeepEqual(t.Normalize(), other.Normalize())
}

// Overlay returns a copy of t with every field set in top replacing t's.
// A non-empty top.PropertyInfo replaces the whole map.
func (t ThemeConfig) Overlay(top ThemeConfig) ThemeConfig {
	out := t.Clone()
	top = top.Normalize()
	dst := out.stringFields()
	for i, f := range top.stringFields() {
		if *f != "" {
			*dst[i] = *f
		}
	}
	if top.AutoOpenDelayMs != nil {
		v := *top.AutoOpenDelayMs
		out.AutoOpenDelayMs = &v
	}
	if len(top.PropertyInfo) > 0 {
		out.PropertyInfo = maps.Clone(top.PropertyInfo)
	}
	return out
}

// Resolve fills unset fields from DefaultTheme. It is applied at render time only.
func (t ThemeConfig) Resolve() ThemeConfig {
	return DefaultTheme().Overlay(t)
}

// AutoOpenDelay returns the auto-open delay, or 0 when unset.
func (t ThemeConfig) AutoOpenDelay() time.Duration {
	if t.AutoOpenDelayMs == nil || *t.AutoOpenDelayMs < 0 {
		return 0
	}
	return time.Duration(*t.AutoOpenDelayMs) * time.Millisecond
}

// stringFields returns pointers to the string fields in declaration order.
func (t *ThemeConfig) stringFields() []*string {
	return []*string{
		&t.AgentName,
		&t.AvatarURL,
		&t.PrimaryColor,
		&t.WelcomeMessage,
		&t.FollowupMessage,
		&t.BHKPrompt,
		&t.InventoryMessage,
		&t.PhonePrompt,
		&t.ThankYouMessage,
		&t.BubblePosition,
	}
}

// CamelCaseKey converts snake_case or kebab-case to camelCase. Keys that are
// already camelCase are returned unchanged.
//
//	CamelCaseKey("thank_you_message") // "thankYouMessage"
func CamelCaseKey(key string) string {
	if !strings.ContainsAny(key, "_-") {
		return key
	}
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		p = strings.ToLower(p)
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}

// NormalizeKeys rewrites top-level keys to camelCase. When both spellings
// of a field are present the camelCase one wins.
func NormalizeKeys(raw map[string]any) map[string]any {
	out := make(map[string]any, len(raw))
	for k, v := range raw {
		if CamelCaseKey(k) == k {
			out[k] = v
		}
	}
	for k, v := range raw {
		camel := CamelCaseKey(k)
		if camel == k || camel == "" {
			continue
		}
		if _, exists := out[camel]; !exists {
			out[camel] = v
		}
	}
	return out
}

// ThemeFromMap builds a ThemeConfig from a decoded JSON object whose keys may
// be snake_case or camelCase. Values of the wrong type are ignored rather
// than failing the whole record.
func ThemeFromMap(raw map[string]any) ThemeConfig {
	m := NormalizeKeys(raw)
	var t ThemeConfig
	fields := map[string]*string{
		"agentName":        &t.AgentName,
		"avatarUrl":        &t.AvatarURL,
		"primaryColor":     &t.PrimaryColor,
		"welcomeMessage":   &t.WelcomeMessage,
		"followupMessage":  &t.FollowupMessage,
		"bhkPrompt":        &t.BHKPrompt,
		"inventoryMessage": &t.InventoryMessage,
		"phonePrompt":      &t.PhonePrompt,
		"thankYouMessage":  &t.ThankYouMessage,
		"bubblePosition":   &t.BubblePosition,
	}
	for key, dst := range fields {
		if s, ok := scalarString(m[key]); ok {
			*dst = s
		}
	}
	if n, ok := intValue(m["autoOpenDelayMs"]); ok {
		t.AutoOpenDelayMs = &n
	}
	if info, ok := m["propertyInfo"].(map[string]any); ok {
		t.PropertyInfo = make(map[string]string, len(info))
		for k, v := range info {
			if s, ok := scalarString(v); ok && s != "" {
				t.PropertyInfo[CamelCaseKey(k)] = s
			}
		}
	}
	return t.Normalize()
}

func scalarString(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case int:
		return strconv.Itoa(val), true
	case int64:
		return strconv.FormatInt(val, 10), true
	case bool:
		return strconv.FormatBool(val), true
	case fmt.Stringer:
		return val.String(), true
	default:
		return "", false
	}
}

func intValue(v any) (int, bool) {
	switch val := v.(type) {
	case float64:
		return int(val), true
	case int:
		return val, true
	case int64:
		return int(val), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(val))
		return n, err == nil
	default:
		return 0, false
	}
}
