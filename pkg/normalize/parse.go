package normalize

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	isoDatePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)
	amountStrip   = regexp.MustCompile(`[^0-9.\-]`)
)

// dateFormats are the layouts curated sheets use, tried in order.
var dateFormats = []string{"02.01.2006", "2006/01/02", "02/01/2006"}

// ParseDate parses the date spellings found in curated sheets: ISO dates
// (possibly with a time suffix), Norwegian day-first dots, and slashed
// variants. Returns nil when the value doesn't parse.
func ParseDate(value string) *time.Time {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}

	if len(text) >= 10 && isoDatePrefix.MatchString(text) {
		if d, err := time.Parse("2006-01-02", text[:10]); err == nil {
			return &d
		}
	}

	for _, layout := range dateFormats {
		if d, err := time.Parse(layout, text); err == nil {
			return &d
		}
	}

	return nil
}

// ParseAmountNOK parses amount spellings like "NOK 270 000 000" or
// "1.250.000,50" into a number. Returns nil when the value is blank or
// unparseable.
func ParseAmountNOK(value string) *float64 {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}

	text = strings.ReplaceAll(text, " ", " ")
	text = strings.ReplaceAll(text, "NOK", "")
	text = strings.ReplaceAll(text, "nok", "")
	text = strings.ReplaceAll(text, " ", "")
	text = strings.ReplaceAll(text, ".", "")
	text = strings.ReplaceAll(text, ",", ".")
	text = amountStrip.ReplaceAllString(text, "")
	if text == "" {
		return nil
	}

	amount, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil
	}

	return &amount
}

// stringField pulls a trimmed string out of a payload map, "" when absent.
func stringField(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// optional returns a pointer to s, or nil when s is blank.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
