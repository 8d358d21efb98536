// Package enrich derives secondary attributes from scraped record text.
package enrich

import (
	"regexp"
	"strings"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/normalize"
)

// Matches titles such as "Health and Safety at Work etc Act 1974" or
// "Control of Substances Hazardous to Health Regulations 2002".
var titlePattern = regexp.MustCompile(`((?:\(?[A-Z][\w'()]*|and|of|the|to|at|for|in|on|etc\.?)(?:\s+(?:\(?[A-Z][\w'()]*|and|of|the|to|at|for|in|on|etc\.?))*\s+(?:Act|Regulations|Order))\s+((?:19|20)\d{2})`)

// Legislation extracts the distinct Act/Regulations titles named in text,
// in order of first appearance.
func Legislation(text string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, m := range titlePattern.FindAllStringSubmatch(text, -1) {
		title := normalize.Text(trimLeadingConnectors(m[1])) + " " + m[2]
		key := strings.ToLower(title)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, title)
	}
	return out
}

var connectors = map[string]bool{"and": true, "of": true, "the": true, "to": true, "at": true, "for": true, "in": true, "on": true}

func trimLeadingConnectors(s string) string {
	fields := strings.Fields(s)
	for len(fields) > 0 && connectors[strings.ToLower(fields[0])] && fields[0] != "The" {
		fields = fields[1:]
	}
	return strings.Join(fields, " ")
}

// Apply fills rec.Legislation from its breach text.
func Apply(rec *domain.ProcessedRecord) {
	if rec.BreachText == nil {
		return
	}
	rec.Legislation = Legislation(*rec.BreachText)
}
