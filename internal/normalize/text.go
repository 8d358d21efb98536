package normalize

import (
	"regexp"
	"strings"
)

var innerWhitespace = regexp.MustCompile(`\s+`)

// Text collapses runs of whitespace and trims the result.
func Text(s string) string {
	return strings.TrimSpace(innerWhitespace.ReplaceAllString(s, " "))
}

// JoinBreaches normalizes each breach line, drops blanks and duplicates, and
// joins the rest with "; ". It returns nil when nothing is left.
func JoinBreaches(lines []string) *string {
	seen := make(map[string]bool, len(lines))
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		for _, piece := range strings.Split(line, "\n") {
			piece = strings.Trim(Text(piece), " ;")
			if piece == "" || seen[piece] {
				continue
			}
			seen[piece] = true
			parts = append(parts, piece)
		}
	}
	if len(parts) == 0 {
		return nil
	}
	joined := strings.Join(parts, "; ")
	return &joined
}

// OptionalText returns nil for blank input.
func OptionalText(s string) *string {
	s = Text(s)
	if s == "" {
		return nil
	}
	return &s
}

var (
	nonAlnum       = regexp.MustCompile(`[^a-z0-9 ]+`)
	companySuffix  = strings.NewReplacer(" limited", " ltd", " public limited company", " plc", " company", " co")
	postcodeFinder = regexp.MustCompile(`(?i)\b([A-Z]{1,2}[0-9][A-Z0-9]?)\s*([0-9][A-Z]{2})\b`)
)

// OffenderName produces the key used to match offenders across sightings.
func OffenderName(name string) string {
	n := strings.ToLower(Text(name))
	n = strings.ReplaceAll(n, "&", " and ")
	n = nonAlnum.ReplaceAllString(n, " ")
	n = Text(n)
	n = companySuffix.Replace(n + " ")
	return strings.TrimSpace(n)
}

// Postcode extracts a UK postcode from free text in canonical "AA9 9AA" form.
func Postcode(s string) string {
	m := postcodeFinder.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	return strings.ToUpper(m[1] + " " + m[2])
}
