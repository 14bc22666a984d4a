package util

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	currencyReplacer = strings.NewReplacer("€", "", "$", "", " ", "", "\u00a0", "")
	thousandsDot     = regexp.MustCompile(`^-?\d{1,3}(?:\.\d{3})+$`)
)

// ParsePrice turns a quoted price cell into a float. Currency symbols are
// dropped and the last of ',' / '.' is taken as the decimal separator.
// Anything that still does not parse, or parses to NaN/Inf, yields 0.
func ParsePrice(input string) float64 {
	token := normalizeNumericToken(currencyReplacer.Replace(strings.TrimSpace(input)))
	if token == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0
	}
	return parsed
}

func normalizeNumericToken(token string) string {
	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			return strings.ReplaceAll(strings.ReplaceAll(token, ".", ""), ",", ".")
		}
		return strings.ReplaceAll(token, ",", "")
	case lastComma >= 0:
		return strings.ReplaceAll(token, ",", ".")
	case thousandsDot.MatchString(token) && strings.Count(token, ".") > 1:
		return strings.ReplaceAll(token, ".", "")
	default:
		return token
	}
}

// ParseNumber parses a spreadsheet key cell. Unlike ParsePrice it reports
// failure instead of defaulting.
func ParseNumber(input string) (float64, error) {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(parsed) || math.IsInf(parsed, 0) {
		return 0, strconv.ErrRange
	}
	return parsed, nil
}

func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
