package hse

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"enforcement_scraper/internal/domain"
)

type stubFetcher struct {
	pages map[string]string
	calls []string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.calls = append(f.calls, url)
	body, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return []byte(body), nil
}

func newTestSource(f *stubFetcher) *Source {
	s := New(Config{BaseURL: "http://hse.test"}, f, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC) }
	return s
}

func TestListingURL(t *testing.T) {
	s := newTestSource(&stubFetcher{})

	u, err := s.ListingURL(domain.DataTypeCase, 3, domain.SessionConfig{})
	require.NoError(t, err)
	assert.Equal(t, "http://hse.test/convictions/case/case_list.asp?PN=3&ST=C&EO=LIKE&SN=F&SF=DN&SV=&SO=DODS", u)

	u, err = s.ListingURL(domain.DataTypeNotice, 1, domain.SessionConfig{})
	require.NoError(t, err)
	assert.Contains(t, u, "/notices/notices/notice_list.asp?PN=1&")

	_, err = s.ListingURL("bogus", 1, domain.SessionConfig{})
	require.Error(t, err)
}

func TestProcess_CaseWithDetailsAndBreaches(t *testing.T) {
	f := &stubFetcher{pages: map[string]string{
		"http://hse.test/convictions/case/case_details.asp?SF=CN&SV=4512345":                     caseDetailHTML,
		"http://hse.test/convictions/breach/breach_list.asp?ST=B&EO=%3D&SN=F&SF=CN&SV=4512345": breachListHTML,
	}}
	s := newTestSource(f)

	summary := domain.SummaryRecord{
		Agency:       domain.AgencyHSE,
		DataType:     domain.DataTypeCase,
		ExternalID:   "4512345",
		OffenderName: "ACME Construction Limited",
		ActionType:   "Court Case",
	}
	rec, err := s.Process(context.Background(), summary, domain.SessionConfig{FetchDetails: true})
	require.NoError(t, err)
	require.Len(t, f.calls, 2)

	assert.Equal(t, "4512345", rec.ExternalID)
	assert.Equal(t, "ACME Construction Limited", rec.Offender.Name)
	assert.Equal(t, "LS1 4AB", rec.Offender.Postcode)
	assert.Equal(t, "41201", rec.Offender.SICCode)
	require.True(t, rec.Fine.Valid)
	assert.True(t, rec.Fine.Decimal.Equal(decimal.NewFromInt(5000)))
	assert.True(t, rec.Costs.Decimal.Equal(decimal.RequireFromString("1250.50")))
	require.NotNil(t, rec.BreachText)
	assert.Equal(t, "Health and Safety at Work etc Act 1974 Section 2(1); Work at Height Regulations 2005 Regulation 4(1)", *rec.BreachText)
	require.NotNil(t, rec.ActionDate, "hearing date stands in for a missing action date")
	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *rec.ActionDate)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC), rec.ScrapedAt)
}

func TestProcess_WithoutDetails(t *testing.T) {
	f := &stubFetcher{}
	s := newTestSource(f)

	rec, err := s.Process(context.Background(), domain.SummaryRecord{
		DataType:   domain.DataTypeNotice,
		ExternalID: "310012345",
	}, domain.SessionConfig{})
	require.NoError(t, err)

	assert.Empty(t, f.calls)
	assert.Equal(t, "Unknown", rec.Offender.Name)
	assert.False(t, rec.Fine.Valid)
	assert.Nil(t, rec.BreachText)
}

func TestProcess_DetailFetchError(t *testing.T) {
	s := newTestSource(&stubFetcher{pages: map[string]string{}})

	_, err := s.Process(context.Background(), domain.SummaryRecord{
		DataType:   domain.DataTypeCase,
		ExternalID: "4512345",
	}, domain.SessionConfig{FetchDetails: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch detail")
	assert.False(t, errors.Is(err, context.Canceled))
}
