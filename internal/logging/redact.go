// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package logging

import (
	"strings"
	"unicode"
)

// RedactPhone masks all but the last two digits of a phone number.
//
//	RedactPhone("+91 98765 43210") // "**********10"
func RedactPhone(phone string) string {
	digits := make([]rune, 0, len(phone))
	for _, r := range phone {
		if unicode.IsDigit(r) {
			digits = append(digits, r)
		}
	}
	if len(digits) <= 2 {
		return strings.Repeat("*", len(digits))
	}
	return strings.Repeat("*", len(digits)-2) + string(digits[len(digits)-2:])
}

// RedactSecret keeps the first four characters of a key or token.
func RedactSecret(secret string) string {
	switch {
	case secret == "":
		return ""
	case len(secret) <= 8:
		return "[REDACTED]"
	default:
		return secret[:4] + "...[REDACTED]"
	}
}

// sensitiveKeys are lower-cased field names whose values never reach a log line.
var sensitiveKeys = map[string]struct{}{
	"password":      {},
	"password_hash": {},
	"token":         {},
	"api_key":       {},
	"apikey":        {},
	"x-api-key":     {},
	"authorization": {},
	"secret":        {},
	"cookie":        {},
}

// SanitizeFields returns a copy of fields safe for logging: secrets are
// redacted and phone-like keys are masked.
func SanitizeFields(fields map[string]any) map[string]any {
	if fields == nil {
		return nil
	}
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		lower := strings.ToLower(k)
		if _, ok := sensitiveKeys[lower]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		if strings.Contains(lower, "phone") || strings.Contains(lower, "mobile") {
			if s, ok := v.(string); ok {
				out[k] = RedactPhone(s)
				continue
			}
		}
		out[k] = v
	}
	return out
}

// TruncateString shortens s to at most maxLen bytes, appending "..." when cut.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
