package userstore

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Custom reminder offsets are bounded: at least 20 minutes before
// quali close, at most 70 hours (4200 minutes).
const (
	MinCustomMinutes = 20
	MaxCustomMinutes = 4200
)

// ValidateCustomMinutes checks a custom slot offset against the
// allowed range.
func ValidateCustomMinutes(minutes int) error {
	if minutes < MinCustomMinutes {
		return fmt.Errorf("custom reminder must be at least %d minutes before quali close, got %d", MinCustomMinutes, minutes)
	}
	if minutes > MaxCustomMinutes {
		return fmt.Errorf("custom reminder must be at most %d minutes before quali close, got %d", MaxCustomMinutes, minutes)
	}
	return nil
}

var timeExprRe = regexp.MustCompile(`^(?:(\d{1,3})\s*h)?\s*(?:(\d{1,4})\s*m)?$`)

// ParseTimeInput parses a user-entered duration like "20m", "2h" or
// "1h 30m" into whole minutes. A bare number is taken as minutes.
func ParseTimeInput(s string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, fmt.Errorf("empty time expression")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	m := timeExprRe.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "") {
		return 0, fmt.Errorf("cannot parse time expression %q (use forms like 20m, 2h, 1h 30m)", s)
	}
	var minutes int
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		minutes += h * 60
	}
	if m[2] != "" {
		mm, _ := strconv.Atoi(m[2])
		minutes += mm
	}
	return minutes, nil
}
