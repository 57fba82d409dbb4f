// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package leads

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone is returned for numbers that are not plausible mobiles.
var ErrInvalidPhone = errors.New("invalid phone number")

// DefaultCountryCode is assumed for bare 10-digit numbers.
const DefaultCountryCode = "+91"

// Phone is a normalized phone number split into country code and subscriber digits.
type Phone struct {
	CountryCode string
	Number      string
}

// String renders the number in E.164 form.
func (p Phone) String() string {
	return p.CountryCode + p.Number
}

// NormalizePhone accepts Indian mobiles with optional +91, 91 or 0 prefixes
// and separators, and other international numbers written with a leading +.
//
//	NormalizePhone("+91 98765-43210") // {+91 9876543210}
//	NormalizePhone("09876543210")     // {+91 9876543210}
//	NormalizePhone("+44 7911 123456") // {+44 7911123456}
func NormalizePhone(raw string) (Phone, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Phone{}, fmt.Errorf("%w: phone is required", ErrInvalidPhone)
	}

	international := strings.HasPrefix(s, "+")
	var digits strings.Builder
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		case r == '+' && i == 0:
		default:
			return Phone{}, fmt.Errorf("%w: unexpected character %q", ErrInvalidPhone, r)
		}
	}
	d := digits.String()

	switch {
	case len(d) == 10:
		if international {
			break
		}
		return indianMobile(d)
	case len(d) == 11 && strings.HasPrefix(d, "0") && !international:
		return indianMobile(d[1:])
	case len(d) == 12 && strings.HasPrefix(d, "91"):
		return indianMobile(d[2:])
	}

	if international && len(d) >= 8 && len(d) <= 15 {
		// Country codes are 1-3 digits; the split is informational only.
		cc := countryCodeLength(d)
		return Phone{CountryCode: "+" + d[:cc], Number: d[cc:]}, nil
	}
	return Phone{}, fmt.Errorf("%w: %d digits", ErrInvalidPhone, len(d))
}

func indianMobile(d string) (Phone, error) {
	if d[0] < '6' || d[0] > '9' {
		return Phone{}, fmt.Errorf("%w: indian mobiles start with 6-9", ErrInvalidPhone)
	}
	return Phone{CountryCode: DefaultCountryCode, Number: d}, nil
}

// countryCodeLength guesses the calling-code length for the common zones.
func countryCodeLength(d string) int {
	switch d[0] {
	case '1', '7':
		return 1
	}
	switch d[:2] {
	case "20", "27", "30", "31", "32", "33", "34", "36", "39", "40", "41", "43", "44", "45", "46", "47", "48", "49",
		"51", "52", "53", "54", "55", "56", "57", "58", "60", "61", "62", "63", "64", "65", "66",
		"81", "82", "84", "86", "90", "91", "92", "93", "94", "95", "98":
		return 2
	}
	return 3
}
