package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// ErrBadDuration is returned for duration strings that cannot be parsed.
var ErrBadDuration = errors.New("invalid duration")

var unitMultipliers = map[string]time.Duration{
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
	"mo": 30 * 24 * time.Hour,
	"y":  365 * 24 * time.Hour,
}

// ParseDuration parses compact moderation durations like "10m", "2h", "7d",
// "1w", "1mo", "1y", including concatenated forms such as "5d3h10m".
// "perm" and "permanent" parse to zero, the permanent sentinel.
func ParseDuration(s string) (time.Duration, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("%w: empty string", ErrBadDuration)
	}
	if s == "perm" || s == "permanent" {
		return 0, nil
	}

	var total time.Duration
	i := 0
	for i < len(s) {
		start := i
		for i < len(s) && unicode.IsDigit(rune(s[i])) {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}
		n, err := strconv.ParseInt(s[start:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
		}

		unitStart := i
		for i < len(s) && !unicode.IsDigit(rune(s[i])) {
			i++
		}
		mult, ok := unitMultipliers[s[unitStart:i]]
		if !ok {
			return 0, fmt.Errorf("%w: unknown unit in %q", ErrBadDuration, s)
		}
		total += time.Duration(n) * mult
	}

	if total <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrBadDuration, s)
	}
	return total, nil
}

// FormatDuration renders d in the same compact unit style, largest unit
// first, for log and status output.
func FormatDuration(d time.Duration) string {
	if d <= 0 {
		return "permanent"
	}
	units := []struct {
		name string
		size time.Duration
	}{
		{"y", 365 * 24 * time.Hour},
		{"mo", 30 * 24 * time.Hour},
		{"w", 7 * 24 * time.Hour},
		{"d", 24 * time.Hour},
		{"h", time.Hour},
		{"m", time.Minute},
		{"s", time.Second},
	}
	var b strings.Builder
	for _, u := range units {
		if d >= u.size {
			fmt.Fprintf(&b, "%d%s", d/u.size, u.name)
			d %= u.size
		}
	}
	if b.Len() == 0 {
		return "0s"
	}
	return b.String()
}
