// Package hse scrapes prosecution cases and enforcement notices published by
// the Health and Safety Executive.
package hse

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/normalize"
	"enforcement_scraper/internal/source"
)

const DefaultBaseURL = "https://resources.hse.gov.uk"

const (
	caseListPath     = "/convictions/case/case_list.asp?PN=%d&ST=C&EO=LIKE&SN=F&SF=DN&SV=&SO=DODS"
	caseDetailPath   = "/convictions/case/case_details.asp?SF=CN&SV=%s"
	breachListPath   = "/convictions/breach/breach_list.asp?ST=B&EO=%%3D&SN=F&SF=CN&SV=%s"
	noticeListPath   = "/notices/notices/notice_list.asp?PN=%d&rdoNType=&NT=&SN=F&EO=LIKE&SF=RN&SV=&SO=DNIS"
	noticeDetailPath = "/notices/notices/notice_details.asp?SF=CN&SV=%s"
)

type Config struct {
	BaseURL string
}

// Source implements the scraping source for HSE.
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
		logger:  logger.With("agency", domain.AgencyHSE),
	}
}

func (s *Source) Agency() domain.Agency {
	return domain.AgencyHSE
}

// ListingURL returns the listing page for page (1-based). HSE pages have a
// fixed size, so batch size and date range are not part of the query.
func (s *Source) ListingURL(dataType domain.DataType, page int, _ domain.SessionConfig) (string, error) {
	switch dataType {
	case domain.DataTypeCase:
		return s.baseURL + fmt.Sprintf(caseListPath, page), nil
	case domain.DataTypeNotice:
		return s.baseURL + fmt.Sprintf(noticeListPath, page), nil
	}
	return "", fmt.Errorf("hse: unsupported data type %q", dataType)
}

func (s *Source) ParseListing(dataType domain.DataType, body []byte) ([]domain.SummaryRecord, error) {
	return ParseListing(dataType, s.baseURL, body)
}

// Process enriches a summary row with its detail page (and breach list for
// cases) and builds the canonical record.
func (s *Source) Process(ctx context.Context, summary domain.SummaryRecord, cfg domain.SessionConfig) (*domain.ProcessedRecord, error) {
	var detail domain.DetailRecord
	if summary.ExternalID != "" && cfg.FetchDetails {
		d, err := s.fetchDetail(ctx, summary)
		if err != nil {
			return nil, err
		}
		detail = d

		if summary.DataType == domain.DataTypeCase {
			breaches, err := s.fetchBreaches(ctx, summary.ExternalID)
			if err != nil {
				return nil, err
			}
			detail.Breaches = append(detail.Breaches, breaches...)
		}
	}

	return Build(summary, detail, s.now()), nil
}

func (s *Source) fetchDetail(ctx context.Context, summary domain.SummaryRecord) (domain.DetailRecord, error) {
	path := caseDetailPath
	if summary.DataType == domain.DataTypeNotice {
		path = noticeDetailPath
	}
	detailURL := s.baseURL + fmt.Sprintf(path, url.QueryEscape(summary.ExternalID))

	body, err := s.fetcher.Fetch(ctx, detailURL)
	if err != nil {
		return domain.DetailRecord{}, fmt.Errorf("fetch detail: %w", err)
	}
	detail, err := ParseDetail(body)
	if err != nil {
		return domain.DetailRecord{}, fmt.Errorf("parse detail: %w", err)
	}
	s.logger.Debug("merged detail page", "external_id", summary.ExternalID, "url", detailURL)
	return detail, nil
}

func (s *Source) fetchBreaches(ctx context.Context, caseID string) ([]string, error) {
	body, err := s.fetcher.Fetch(ctx, s.baseURL+fmt.Sprintf(breachListPath, url.QueryEscape(caseID)))
	if err != nil {
		return nil, fmt.Errorf("fetch breaches: %w", err)
	}
	lines, err := ParseBreaches(body)
	if err != nil {
		return nil, fmt.Errorf("parse breaches: %w", err)
	}
	return lines, nil
}

// Build merges summary and detail fields into a ProcessedRecord.
func Build(summary domain.SummaryRecord, detail domain.DetailRecord, scrapedAt time.Time) *domain.ProcessedRecord {
	name := firstNonEmpty(detail.OffenderName, summary.OffenderName, "Unknown")

	rec := &domain.ProcessedRecord{
		Agency:     domain.AgencyHSE,
		DataType:   summary.DataType,
		ExternalID: summary.ExternalID,
		Offender: domain.OffenderAttrs{
			Name:           name,
			Address:        firstNonEmpty(detail.Address, summary.Address),
			Postcode:       detail.Postcode,
			LocalAuthority: firstNonEmpty(detail.LocalAuthority, summary.LocalAuthority),
			MainActivity:   firstNonEmpty(detail.MainActivity, summary.MainActivity),
			Industry:       detail.Industry,
			SICCode:        firstNonEmpty(detail.SICCode, sicCode(summary.MainActivity)),
			BusinessType:   detail.BusinessType,
		},
		ActionType:            firstNonEmpty(detail.ActionType, summary.ActionType),
		ActionDate:            firstDate(detail.ActionDate, summary.ActionDate),
		OffenceDate:           detail.OffenceDate,
		HearingDate:           detail.HearingDate,
		ComplianceDate:        detail.ComplianceDate,
		RevisedComplianceDate: detail.RevisedComplianceDate,
		Fine:                  normalize.Money(detail.Fine),
		Costs:                 normalize.Money(detail.Costs),
		Court:                 detail.Court,
		Result:                detail.Result,
		RegulatorFunction:     detail.RegulatorFunction,
		RelatedCases:          detail.RelatedCases,
		BreachText:            normalize.JoinBreaches(detail.Breaches),
		NoticeBody:            normalize.OptionalText(detail.NoticeBody),
		ScrapedAt:             scrapedAt,
	}
	if summary.DataType == domain.DataTypeCase && rec.ActionDate == nil {
		rec.ActionDate = detail.HearingDate
	}
	return rec
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstDate(dates ...*time.Time) *time.Time {
	for _, d := range dates {
		if d != nil {
			return d
		}
	}
	return nil
}
