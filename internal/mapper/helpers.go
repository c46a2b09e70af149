package mapper

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// deepLinkBase is the source system's UI origin. Deep links are synthesized
// from the entity key with a fixed template per kind; no network call is
// involved.
const deepLinkBase = "https://app.karbonhq.com"

var timeLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseTime tries the known source timestamp layouts in order. Returns nil
// for an empty or unparseable value; a missing timestamp is data, not an
// error.
func parseTime(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

// firstNonEmpty returns the first candidate with non-whitespace content.
func firstNonEmpty(candidates ...string) string {
	for _, c := range candidates {
		if strings.TrimSpace(c) != "" {
			return strings.TrimSpace(c)
		}
	}
	return ""
}

// joinName concatenates first and last name, tolerating either being empty.
func joinName(first, last string) string {
	return strings.TrimSpace(strings.TrimSpace(first) + " " + strings.TrimSpace(last))
}

var yearPattern = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// yearFromTitle extracts the first 4-digit year found in free text.
func yearFromTitle(title string) *int {
	match := yearPattern.FindString(title)
	if match == "" {
		return nil
	}
	year, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &year
}

// nullable turns an empty string into nil so VARCHAR columns store NULL
// rather than "".
func nullable(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return strings.TrimSpace(value)
}

// nullableTime widens a *time.Time into the any used by record fields.
func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// nullableInt widens a *int into the any used by record fields.
func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}
