// Package source holds the pieces shared by the per-agency scrapers.
package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"enforcement_scraper/internal/normalize"
)

// Fetcher returns the raw body behind a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Document parses an HTML body.
func Document(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// Text returns the whitespace-normalized text of a selection.
func Text(sel *goquery.Selection) string {
	return normalize.Text(sel.Text())
}

// Lines returns the text of a selection split on <br> and block boundaries.
func Lines(sel *goquery.Selection) []string {
	html, err := sel.Html()
	if err != nil {
		return nil
	}
	html = strings.NewReplacer("<br>", "\n", "<br/>", "\n", "<br />", "\n", "</p>", "\n", "</li>", "\n").Replace(html)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = normalize.Text(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

// Fields is a label -> value view over a detail page.
type Fields map[string]*goquery.Selection

// LabelValues collects two-cell table rows and dt/dd pairs keyed by their
// lower-cased label without a trailing colon. The first occurrence wins.
func LabelValues(doc *goquery.Document) Fields {
	fields := make(Fields)
	add := func(label string, value *goquery.Selection) {
		key := strings.TrimSuffix(strings.ToLower(normalize.Text(label)), ":")
		key = strings.TrimSpace(key)
		if key == "" {
			return
		}
		if _, ok := fields[key]; !ok {
			fields[key] = value
		}
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("th, td")
		if cells.Length() != 2 {
			return
		}
		add(cells.First().Text(), cells.Last())
	})
	doc.Find("dt").Each(func(_ int, dt *goquery.Selection) {
		dd := dt.NextFiltered("dd")
		if dd.Length() == 0 {
			return
		}
		add(dt.Text(), dd)
	})
	return fields
}

// Get returns the text of the first field whose label equals one of keys.
func (f Fields) Get(keys ...string) string {
	if sel := f.Sel(keys...); sel != nil {
		return Text(sel)
	}
	return ""
}

// Sel returns the value selection for the first matching key.
func (f Fields) Sel(keys ...string) *goquery.Selection {
	for _, k := range keys {
		if sel, ok := f[k]; ok {
			return sel
		}
	}
	return nil
}

// List returns the value lines of the first matching key.
func (f Fields) List(keys ...string) []string {
	if sel := f.Sel(keys...); sel != nil {
		return Lines(sel)
	}
	return nil
}

// Resolve makes href absolute against base.
func Resolve(base, href string) string {
	b, err := url.Parse(base)
	if err != nil {
		return href
	}
	h, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return href
	}
	return b.ResolveReference(h).String()
}

// SplitList splits a comma or semicolon separated reference list.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' || r == '\n' }) {
		if part = normalize.Text(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// RawRow zips header names with cell texts for audit snapshots.
func RawRow(headers []string, cells *goquery.Selection) map[string]string {
	raw := make(map[string]string, cells.Length())
	cells.Each(func(i int, c *goquery.Selection) {
		key := fmt.Sprintf("col%d", i)
		if i < len(headers) && headers[i] != "" {
			key = headers[i]
		}
		raw[key] = Text(c)
	})
	return raw
}

// Headers returns the normalized header texts of the first row holding th cells.
func Headers(table *goquery.Selection) []string {
	var headers []string
	table.Find("tr").EachWithBreak(func(_ int, row *goquery.Selection) bool {
		ths := row.ChildrenFiltered("th")
		if ths.Length() == 0 {
			return true
		}
		ths.Each(func(_ int, th *goquery.Selection) {
			headers = append(headers, strings.ToLower(Text(th)))
		})
		return false
	})
	return headers
}
