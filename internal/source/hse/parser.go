package hse

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/normalize"
	"enforcement_scraper/internal/source"
)

var idPattern = regexp.MustCompile(`^[A-Za-z0-9/\-]{4,}$`)

// Column layout of the HSE listing tables.
const (
	caseColumns   = 5 // case number, defendant, date, local authority, main activity
	noticeColumns = 6 // notice number, recipient, type, issue date, local authority, main activity
)

// ParseListing extracts summary rows from a case or notice listing page.
// Rows that do not have the expected shape are skipped.
func ParseListing(dataType domain.DataType, baseURL string, body []byte) ([]domain.SummaryRecord, error) {
	doc, err := source.Document(body)
	if err != nil {
		return nil, err
	}

	want := caseColumns
	if dataType == domain.DataTypeNotice {
		want = noticeColumns
	}

	var records []domain.SummaryRecord
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		headers := source.Headers(table)
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("td")
			if cells.Length() < want {
				return
			}
			rec, ok := parseRow(dataType, baseURL, headers, cells)
			if !ok {
				return
			}
			records = append(records, rec)
		})
	})

	return dedupe(records), nil
}

func parseRow(dataType domain.DataType, baseURL string, headers []string, cells *goquery.Selection) (domain.SummaryRecord, bool) {
	cell := func(i int) string { return source.Text(cells.Eq(i)) }

	id := cell(0)
	if !idPattern.MatchString(id) {
		return domain.SummaryRecord{}, false
	}

	rec := domain.SummaryRecord{
		Agency:       domain.AgencyHSE,
		DataType:     dataType,
		ExternalID:   id,
		OffenderName: cell(1),
		Raw:          source.RawRow(headers, cells),
	}
	if href, ok := cells.Eq(0).Find("a").Attr("href"); ok {
		rec.DetailURL = source.Resolve(baseURL+"/", href)
	}

	switch dataType {
	case domain.DataTypeCase:
		rec.ActionType = "Court Case"
		rec.ActionDate = normalize.Date(cell(2))
		rec.LocalAuthority = cell(3)
		rec.MainActivity = cell(4)
	case domain.DataTypeNotice:
		rec.ActionType = cell(2)
		rec.ActionDate = normalize.Date(cell(3))
		rec.LocalAuthority = cell(4)
		rec.MainActivity = cell(5)
	}
	return rec, true
}

func dedupe(records []domain.SummaryRecord) []domain.SummaryRecord {
	seen := make(map[string]bool, len(records))
	out := records[:0]
	for _, r := range records {
		if seen[r.ExternalID] {
			continue
		}
		seen[r.ExternalID] = true
		out = append(out, r)
	}
	return out
}

// ParseDetail reads the label/value table of a case or notice detail page.
func ParseDetail(body []byte) (domain.DetailRecord, error) {
	doc, err := source.Document(body)
	if err != nil {
		return domain.DetailRecord{}, err
	}
	f := source.LabelValues(doc)

	address := f.Get("address", "defendant address", "recipient address")
	d := domain.DetailRecord{
		OffenderName:          f.Get("defendant", "defendant name", "recipient name", "recipient"),
		Address:               address,
		Postcode:              normalize.Postcode(address),
		LocalAuthority:        f.Get("local authority"),
		Region:                f.Get("region"),
		Industry:              f.Get("industry"),
		MainActivity:          f.Get("main activity"),
		SICCode:               sicCode(f.Get("main activity")),
		BusinessType:          f.Get("type of location", "business type"),
		ActionType:            f.Get("notice type", "type"),
		ActionDate:            normalize.Date(f.Get("issue date", "date issued")),
		OffenceDate:           normalize.Date(f.Get("offence date", "date of offence")),
		HearingDate:           normalize.Date(f.Get("date of hearing", "hearing date")),
		ComplianceDate:        normalize.Date(f.Get("compliance date")),
		RevisedComplianceDate: normalize.Date(f.Get("revised compliance date")),
		Fine:                  f.Get("fine", "total fine"),
		Costs:                 f.Get("costs awarded to hse", "costs"),
		Court:                 f.Get("court name", "court"),
		Result:                f.Get("result"),
		RegulatorFunction:     f.Get("hse directorate", "hse group", "directorate"),
		RelatedCases:          source.SplitList(f.Get("related cases", "related notices")),
		Breaches:              f.List("legislation", "breach", "act or regulation"),
		NoticeBody:            f.Get("description", "notice description"),
	}
	return d, nil
}

// ParseBreaches extracts the act/regulation column of a case's breach list.
func ParseBreaches(body []byte) ([]string, error) {
	doc, err := source.Document(body)
	if err != nil {
		return nil, err
	}

	var lines []string
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		col := -1
		for i, h := range source.Headers(table) {
			if strings.Contains(h, "act") || strings.Contains(h, "regulation") || strings.Contains(h, "legislation") {
				col = i
				break
			}
		}
		if col < 0 {
			return
		}
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("td")
			if cells.Length() <= col {
				return
			}
			if text := source.Text(cells.Eq(col)); text != "" {
				lines = append(lines, text)
			}
		})
	})
	return lines, nil
}

var sicPattern = regexp.MustCompile(`^(\d{4,5})\b`)

func sicCode(activity string) string {
	if m := sicPattern.FindStringSubmatch(activity); m != nil {
		return m[1]
	}
	return ""
}
