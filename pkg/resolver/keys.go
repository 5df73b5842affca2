// Package resolver maps raw names and external references to canonical
// organizations and persons. Matching is exact on normalized keys only;
// anything fuzzier belongs to enrichment candidate scoring, not here.
package resolver

import (
	"regexp"
	"strings"
)

var (
	nameKeyStrip  = regexp.MustCompile(`[^a-z0-9æøå ]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	refCountry    = regexp.MustCompile(`^([A-Za-z]{2})-`)
)

// NameKey normalizes an organization name into its case-insensitive match
// key: lowercased, "&" spelled out, everything outside [a-z0-9æøå ]
// dropped, whitespace collapsed.
func NameKey(value string) string {
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "&", " and ")
	value = nameKeyStrip.ReplaceAllString(value, " ")
	value = whitespaceRun.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// RefKey normalizes an external organization reference: uppercased with all
// whitespace removed.
func RefKey(value string) string {
	value = strings.ToUpper(strings.TrimSpace(value))
	return whitespaceRun.ReplaceAllString(value, "")
}

// RefCountryCode extracts the two-letter country prefix of a reference like
// "NO-BRC-971277882", or "" when the reference has no such prefix.
func RefCountryCode(ref string) string {
	m := refCountry.FindStringSubmatch(strings.TrimSpace(ref))
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1])
}

// CleanText trims a raw value and collapses it to "" when blank.
func CleanText(value string) string {
	return strings.TrimSpace(value)
}
