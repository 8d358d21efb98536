package ea

import (
	"net/url"
	"path"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/normalize"
	"enforcement_scraper/internal/source"
)

const listingColumns = 4 // name, address, action date, action type

// ParseListing extracts summary rows from an enforcement-action register page.
// Rows without a registration link are skipped.
func ParseListing(dataType domain.DataType, baseURL string, body []byte) ([]domain.SummaryRecord, error) {
	doc, err := source.Document(body)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var records []domain.SummaryRecord
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		headers := source.Headers(table)
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.ChildrenFiltered("td")
			if cells.Length() < listingColumns {
				return
			}
			href, ok := cells.Eq(0).Find("a").Attr("href")
			if !ok {
				return
			}
			id := registrationID(href)
			if id == "" || seen[id] {
				return
			}
			seen[id] = true

			address := source.Text(cells.Eq(1))
			records = append(records, domain.SummaryRecord{
				Agency:       domain.AgencyEA,
				DataType:     dataType,
				ExternalID:   id,
				OffenderName: source.Text(cells.Eq(0)),
				Address:      address,
				ActionDate:   normalize.Date(source.Text(cells.Eq(2))),
				ActionType:   source.Text(cells.Eq(3)),
				DetailURL:    source.Resolve(baseURL+"/", href),
				Raw:          source.RawRow(headers, cells),
			})
		})
	})
	return records, nil
}

// registrationID returns the last path segment of a /registration/<id> link.
func registrationID(href string) string {
	u, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if !strings.Contains(p, "/registration/") {
		return ""
	}
	id := path.Base(p)
	if id == "registration" || id == "." || id == "/" {
		return ""
	}
	return id
}

// ParseDetail reads the definition list (or label table) of a registration page.
func ParseDetail(body []byte) (domain.DetailRecord, error) {
	doc, err := source.Document(body)
	if err != nil {
		return domain.DetailRecord{}, err
	}
	f := source.LabelValues(doc)

	address := f.Get("address", "offender address")
	postcode := normalize.Postcode(f.Get("postcode"))
	if postcode == "" {
		postcode = normalize.Postcode(address)
	}

	related := source.SplitList(f.Get("case reference"))
	related = append(related, source.SplitList(f.Get("event reference"))...)

	return domain.DetailRecord{
		OffenderName:      f.Get("offender", "name"),
		Address:           address,
		Postcode:          postcode,
		Industry:          f.Get("industry sector", "sector"),
		CompanyNumber:     f.Get("company no", "company number", "company registration number"),
		ActionType:        f.Get("action type"),
		ActionDate:        normalize.Date(f.Get("action date")),
		OffenceDate:       normalize.Date(f.Get("offence date")),
		Fine:              f.Get("total fine", "fine"),
		Costs:             f.Get("costs", "total costs"),
		Court:             f.Get("court"),
		RegulatorFunction: f.Get("agency function"),
		RelatedCases:      related,
		Breaches:          f.List("offence", "offences"),
		NoticeBody:        f.Get("description", "notice details"),
	}, nil
}
