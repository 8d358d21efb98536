package ea

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/testutil"
)

const listingHTML = `<html><body>
<table class="register">
  <thead><tr><th>Name</th><th>Address</th><th>Action Date</th><th>Action Type</th></tr></thead>
  <tbody>
    <tr>
      <td><a href="/public-register/enforcement-action/registration/EA-10001">River Waste Ltd</a></td>
      <td>Unit 4, Dock Road, Bristol, BS1 5TT</td>
      <td>2024-01-15</td>
      <td>Court Case</td>
    </tr>
    <tr>
      <td>No link here</td>
      <td>Somewhere</td>
      <td>2024-01-16</td>
      <td>Court Case</td>
    </tr>
    <tr>
      <td><a href="/public-register/enforcement-action/registration/EA-10002/">Green Farm</a></td>
      <td>Hill Lane, Exeter</td>
      <td>16/01/2024</td>
      <td>Court Case</td>
    </tr>
  </tbody>
</table>
</body></html>`

const detailHTML = `<html><body>
<dl>
  <dt>Offender</dt><dd>River Waste Limited</dd>
  <dt>Address</dt><dd>Unit 4, Dock Road, Bristol</dd>
  <dt>Postcode</dt><dd>bs1 5tt</dd>
  <dt>Company No</dt><dd>01234567</dd>
  <dt>Action Date</dt><dd>15/01/2024</dd>
  <dt>Action Type</dt><dd>Court Case</dd>
  <dt>Total Fine</dt><dd>£12,500</dd>
  <dt>Costs</dt><dd>£2,000.00</dd>
  <dt>Offence</dt><dd>Environmental Permitting (England and Wales) Regulations 2016 Regulation 12<br>Water Resources Act 1991 Section 85</dd>
  <dt>Agency Function</dt><dd>Waste</dd>
  <dt>Case Reference</dt><dd>C-555</dd>
  <dt>Event Reference</dt><dd>E-777</dd>
</dl>
</body></html>`

type mapFetcher map[string]string

func (m mapFetcher) Fetch(_ context.Context, u string) ([]byte, error) {
	body, ok := m[u]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return []byte(body), nil
}

func newTestSource(f mapFetcher) *Source {
	s := New(Config{BaseURL: "http://ea.test"}, f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	return s
}

func TestListingURL(t *testing.T) {
	s := newTestSource(nil)
	cfg := domain.SessionConfig{
		BatchSize: 50,
		DateFrom:  testutil.Date(2024, 1, 1),
		DateTo:    testutil.Date(2024, 1, 31),
	}

	raw, err := s.ListingURL(domain.DataTypeNotice, 3, cfg)
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "/public-register/enforcement-action/registration", u.Path)
	q := u.Query()
	assert.Equal(t, "enforcement-notice", q.Get("actionType"))
	assert.Equal(t, "2024-01-01", q.Get("after"))
	assert.Equal(t, "2024-01-31", q.Get("before"))
	assert.Equal(t, "50", q.Get("_limit"))
	assert.Equal(t, "100", q.Get("_offset"))
}

func TestParseListing(t *testing.T) {
	recs, err := ParseListing(domain.DataTypeCase, "http://ea.test", []byte(listingHTML))
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "EA-10001", recs[0].ExternalID)
	assert.Equal(t, "River Waste Ltd", recs[0].OffenderName)
	assert.Equal(t, "http://ea.test/public-register/enforcement-action/registration/EA-10001", recs[0].DetailURL)
	require.NotNil(t, recs[0].ActionDate)
	require.NotNil(t, recs[1].ActionDate)
	assert.Equal(t, *recs[0].ActionDate, recs[1].ActionDate.AddDate(0, 0, -1))
	assert.Equal(t, "EA-10002", recs[1].ExternalID)
}

func TestParseDetail(t *testing.T) {
	d, err := ParseDetail([]byte(detailHTML))
	require.NoError(t, err)

	assert.Equal(t, "River Waste Limited", d.OffenderName)
	assert.Equal(t, "BS1 5TT", d.Postcode)
	assert.Equal(t, "01234567", d.CompanyNumber)
	assert.Equal(t, "Waste", d.RegulatorFunction)
	assert.Equal(t, []string{"C-555", "E-777"}, d.RelatedCases)
	assert.Len(t, d.Breaches, 2)
}

func TestProcess(t *testing.T) {
	s := newTestSource(mapFetcher{
		"http://ea.test/public-register/enforcement-action/registration/EA-10001": detailHTML,
	})
	summary := domain.SummaryRecord{
		Agency:       domain.AgencyEA,
		DataType:     domain.DataTypeCase,
		ExternalID:   "EA-10001",
		OffenderName: "River Waste Ltd",
		DetailURL:    "http://ea.test/public-register/enforcement-action/registration/EA-10001",
	}

	rec, err := s.Process(context.Background(), summary, domain.SessionConfig{FetchDetails: true})
	require.NoError(t, err)

	assert.Equal(t, domain.AgencyEA, rec.Agency)
	assert.Equal(t, "River Waste Limited", rec.Offender.Name)
	assert.True(t, rec.Fine.Decimal.Equal(decimal.NewFromInt(12500)))
	assert.True(t, rec.Costs.Decimal.Equal(decimal.NewFromInt(2000)))
	require.NotNil(t, rec.BreachText)
	assert.Equal(t,
		"Environmental Permitting (England and Wales) Regulations 2016 Regulation 12; Water Resources Act 1991 Section 85",
		*rec.BreachText)
}

func TestProcess_DetailError(t *testing.T) {
	s := newTestSource(mapFetcher{})
	_, err := s.Process(context.Background(), domain.SummaryRecord{
		DataType:   domain.DataTypeCase,
		ExternalID: "EA-404",
	}, domain.SessionConfig{FetchDetails: true})
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
