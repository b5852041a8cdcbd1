// Package normalize converts raw strings extracted from the Ciqual XML
// files into clean, typed values. The source data is French-locale:
// decimal commas, "traces"/"-" sentinels for missing numerics, and the
// literal string "missing" for absent text.
package normalize

import (
	"regexp"
	"strconv"
	"strings"
)

// unitPattern matches a parenthesized per-100g unit inside a nutrient
// name, e.g. "Calcium (mg/100g)" or "Vitamine C (mg/100 g)".
var unitPattern = regexp.MustCompile(`\(([^)]+/100\s?g)\)`)

// CleanText trims a raw XML text value. The empty string and the
// sentinel "missing" both normalize to "" (absent).
func CleanText(raw string) string {
	text := strings.TrimSpace(raw)
	if text == "missing" {
		return ""
	}
	return text
}

// ParseNumber parses a French-formatted numeric cell. The comma is the
// decimal separator. Returns false for empty values, the sentinels "-"
// and "traces", and anything that does not parse — a malformed cell
// must never abort a load.
func ParseNumber(raw string) (float64, bool) {
	value := strings.TrimSpace(raw)
	switch value {
	case "", "-", "traces":
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// ExtractUnit pulls the measurement unit out of a nutrient name,
// trying the French name first and falling back to the English one.
// Internal whitespace is removed, so "(mg/100 g)" yields "mg/100g".
// Returns "" when neither name carries a unit.
func ExtractUnit(nameFr, nameEng string) string {
	for _, name := range []string{nameFr, nameEng} {
		if m := unitPattern.FindStringSubmatch(name); m != nil {
			return strings.ReplaceAll(m[1], " ", "")
		}
	}
	return ""
}
