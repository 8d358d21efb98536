// Package ea scrapes court cases and enforcement notices from the Environment
// Agency public register.
package ea

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/normalize"
	"enforcement_scraper/internal/source"
)

const (
	DefaultBaseURL = "https://environment.data.gov.uk"

	registerPath = "/public-register/enforcement-action/registration"
)

var actionTypes = map[domain.DataType]string{
	domain.DataTypeCase:   "court-case",
	domain.DataTypeNotice: "enforcement-notice",
}

type Config struct {
	BaseURL string
}

type Source struct {
	baseURL string
	fetcher source.Fetcher
	now     func() time.Time
	logger  *slog.Logger
}

func New(cfg Config, fetcher source.Fetcher, logger *slog.Logger) *Source {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return &Source{
		baseURL: base,
		fetcher: fetcher,
		now:     time.Now,
		logger:  logger.With("agency", domain.AgencyEA),
	}
}

func (s *Source) Agency() domain.Agency {
	return domain.AgencyEA
}

// ListingURL builds an offset-paginated register query. The register pages
// by batch size, so page N starts at (N-1)*batch.
func (s *Source) ListingURL(dataType domain.DataType, page int, cfg domain.SessionConfig) (string, error) {
	actionType, ok := actionTypes[dataType]
	if !ok {
		return "", fmt.Errorf("ea: unsupported data type %q", dataType)
	}
	if page < 1 {
		return "", fmt.Errorf("ea: page must be >= 1, got %d", page)
	}
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 100
	}

	q := url.Values{}
	q.Set("actionType", actionType)
	if cfg.DateFrom != nil {
		q.Set("after", normalize.FormatDate(cfg.DateFrom))
	}
	if cfg.DateTo != nil {
		q.Set("before", normalize.FormatDate(cfg.DateTo))
	}
	q.Set("_limit", strconv.Itoa(batch))
	q.Set("_offset", strconv.Itoa((page-1)*batch))

	return s.baseURL + registerPath + "?" + q.Encode(), nil
}

func (s *Source) ParseListing(dataType domain.DataType, body []byte) ([]domain.SummaryRecord, error) {
	return ParseListing(dataType, s.baseURL, body)
}

func (s *Source) Process(ctx context.Context, summary domain.SummaryRecord, cfg domain.SessionConfig) (*domain.ProcessedRecord, error) {
	var detail domain.DetailRecord
	if summary.ExternalID != "" && cfg.FetchDetails {
		detailURL := summary.DetailURL
		if detailURL == "" {
			detailURL = s.baseURL + registerPath + "/" + url.PathEscape(summary.ExternalID)
		}
		body, err := s.fetcher.Fetch(ctx, detailURL)
		if err != nil {
			return nil, fmt.Errorf("fetch detail: %w", err)
		}
		if detail, err = ParseDetail(body); err != nil {
			return nil, fmt.Errorf("parse detail: %w", err)
		}
		s.logger.Debug("merged detail page", "external_id", summary.ExternalID, "url", detailURL)
	}
	return Build(summary, detail, s.now()), nil
}

// Build merges summary and detail fields into a ProcessedRecord.
func Build(summary domain.SummaryRecord, detail domain.DetailRecord, scrapedAt time.Time) *domain.ProcessedRecord {
	name := detail.OffenderName
	if name == "" {
		name = summary.OffenderName
	}
	if name == "" {
		name = "Unknown"
	}
	address := detail.Address
	if address == "" {
		address = summary.Address
	}
	postcode := detail.Postcode
	if postcode == "" {
		postcode = normalize.Postcode(address)
	}
	actionType := detail.ActionType
	if actionType == "" {
		actionType = summary.ActionType
	}
	actionDate := detail.ActionDate
	if actionDate == nil {
		actionDate = summary.ActionDate
	}

	return &domain.ProcessedRecord{
		Agency:     domain.AgencyEA,
		DataType:   summary.DataType,
		ExternalID: summary.ExternalID,
		Offender: domain.OffenderAttrs{
			Name:          name,
			Address:       address,
			Postcode:      postcode,
			Industry:      detail.Industry,
			CompanyNumber: detail.CompanyNumber,
		},
		ActionType:        actionType,
		ActionDate:        actionDate,
		OffenceDate:       detail.OffenceDate,
		Fine:              normalize.Money(detail.Fine),
		Costs:             normalize.Money(detail.Costs),
		Court:             detail.Court,
		RegulatorFunction: detail.RegulatorFunction,
		RelatedCases:      detail.RelatedCases,
		BreachText:        normalize.JoinBreaches(detail.Breaches),
		NoticeBody:        normalize.OptionalText(detail.NoticeBody),
		ScrapedAt:         scrapedAt,
	}
}
