// LeadChat - Lead Capture Chat Widget and Dashboard API
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/leadchat

package leads

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/tomtom215/leadchat/internal/models"
)

// MaxBHK is the largest configuration accepted as a numeric BHK count.
const MaxBHK = 5

// ErrInvalidBHK is returned when a BHK preference cannot be normalized.
var ErrInvalidBHK = errors.New("invalid bhk preference")

var (
	bhkPattern = regexp.MustCompile(`^(\d+)\s*(?:bhk)?$`)

	undecidedValues = map[string]struct{}{
		"0":             {},
		"yet to decide": {},
		"yet-to-decide": {},
		"yet_to_decide": {},
		"yettodecide":   {},
		"not decided":   {},
		"undecided":     {},
		"ytd":           {},
	}
)

// BHK is a normalized configuration preference. Count is nil for "Yet to decide".
type BHK struct {
	Count *int
	Type  string
}

// Undecided reports whether the visitor has not chosen a configuration.
func (b BHK) Undecided() bool {
	return b.Count == nil
}

// NormalizeBHK normalizes a preference supplied as a number (bhk) or a
// label (bhkType / bhk_type). The label is preferred when both are present.
//
//	NormalizeBHK(nil, "2")             // Count=2, Type="2 BHK"
//	NormalizeBHK(0, "")                // Count=nil, Type="Yet to decide"
//	NormalizeBHK(nil, "Yet to Decide") // Count=nil, Type="Yet to decide"
func NormalizeBHK(number any, label string) (BHK, error) {
	if strings.TrimSpace(label) != "" {
		return parseBHKLabel(label)
	}
	switch v := number.(type) {
	case nil:
		return BHK{}, fmt.Errorf("%w: bhk or bhkType is required", ErrInvalidBHK)
	case string:
		return parseBHKLabel(v)
	case float64:
		if v != math.Trunc(v) {
			return BHK{}, fmt.Errorf("%w: %v is not a whole number", ErrInvalidBHK, v)
		}
		return bhkFromCount(int(v))
	case int:
		return bhkFromCount(v)
	case int64:
		return bhkFromCount(int(v))
	default:
		return BHK{}, fmt.Errorf("%w: unsupported type %T", ErrInvalidBHK, number)
	}
}

func parseBHKLabel(label string) (BHK, error) {
	s := strings.ToLower(strings.Join(strings.Fields(label), " "))
	if _, ok := undecidedValues[s]; ok {
		return undecided(), nil
	}
	m := bhkPattern.FindStringSubmatch(s)
	if m == nil {
		return BHK{}, fmt.Errorf("%w: %q", ErrInvalidBHK, label)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return BHK{}, fmt.Errorf("%w: %q", ErrInvalidBHK, label)
	}
	return bhkFromCount(n)
}

func bhkFromCount(n int) (BHK, error) {
	if n == 0 {
		return undecided(), nil
	}
	if n < 0 || n > MaxBHK {
		return BHK{}, fmt.Errorf("%w: %d is out of range 1-%d", ErrInvalidBHK, n, MaxBHK)
	}
	return BHK{Count: &n, Type: fmt.Sprintf("%d BHK", n)}, nil
}

func undecided() BHK {
	return BHK{Type: models.BHKTypeUndecided}
}

// BHKOptions returns the labels offered by the widget's preference step.
func BHKOptions() []string {
	opts := make([]string, 0, MaxBHK+1)
	for n := 1; n <= MaxBHK; n++ {
		opts = append(opts, fmt.Sprintf("%d BHK", n))
	}
	return append(opts, models.BHKTypeUndecided)
}
