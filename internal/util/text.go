package util

import "strings"

// Truncate cuts s to at most max runes.
func Truncate(s string, max int) string {
	if max < 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max])
}

func FirstLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	line, _, _ := strings.Cut(s, "\n")
	return strings.TrimSpace(line)
}

func StringPtr(v string) *string {
	return &v
}

func FloatPtr(v float64) *float64 {
	return &v
}
