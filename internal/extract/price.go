package extract

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	digitGap    = regexp.MustCompile(`(\d)\s+(\d)`)
	numberToken = regexp.MustCompile(`-?\d(?:[\d.,]*\d)?`)
)

// NormalizePrice parses a display price in any of the common locale formats.
// Currency symbols, letters and whitespace are ignored. With both separators
// present the rightmost one is the decimal mark; a lone comma is a decimal
// comma and a lone dot a decimal point, while a repeated separator is read
// as thousands grouping. Negative or unparsable input reports false.
func NormalizePrice(raw string) (float64, bool) {
	s := digitGap.ReplaceAllString(CleanText(raw), "$1$2")
	token := numberToken.FindString(s)
	if token == "" || strings.HasPrefix(token, "-") {
		return 0, false
	}

	lastComma := strings.LastIndex(token, ",")
	lastDot := strings.LastIndex(token, ".")
	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			token = strings.ReplaceAll(token, ".", "")
			token = strings.Replace(token, ",", ".", 1)
		} else {
			token = strings.ReplaceAll(token, ",", "")
		}
	case lastComma >= 0:
		if strings.Count(token, ",") > 1 {
			token = strings.ReplaceAll(token, ",", "")
		} else {
			token = strings.Replace(token, ",", ".", 1)
		}
	case lastDot >= 0:
		if strings.Count(token, ".") > 1 {
			token = strings.ReplaceAll(token, ".", "")
		}
	}

	value, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return 0, false
	}
	return math.Round(value*100) / 100, true
}

// ParsePrice is NormalizePrice returning nil for an absent price.
func ParsePrice(raw string) *float64 {
	v, ok := NormalizePrice(raw)
	if !ok {
		return nil
	}
	return &v
}

// SanitizePrice drops negative or non-finite prices.
func SanitizePrice(p *float64) *float64 {
	if p == nil || *p < 0 || math.IsNaN(*p) || math.IsInf(*p, 0) {
		return nil
	}
	v := math.Round(*p*100) / 100
	return &v
}
