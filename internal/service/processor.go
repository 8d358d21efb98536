package service

import (
	"context"
	"log/slog"

	"enforcement_scraper/internal/domain"
)

// Enricher is an optional post-processing step applied to every record.
type Enricher func(rec *domain.ProcessedRecord)

// BatchResult always carries both the processed records and the per-record
// failures of a batch.
type BatchResult struct {
	Processed []*domain.ProcessedRecord
	Errors    []domain.RecordError
}

type Processor struct {
	enrichers []Enricher
	logger    *slog.Logger
}

func NewProcessor(logger *slog.Logger, enrichers ...Enricher) *Processor {
	return &Processor{enrichers: enrichers, logger: logger}
}

// ProcessBatch turns summaries into processed records. A failure on one
// record is collected and never stops its siblings.
func (p *Processor) ProcessBatch(ctx context.Context, src Source, summaries []domain.SummaryRecord, cfg domain.SessionConfig, page int) BatchResult {
	var result BatchResult
	for _, summary := range summaries {
		rec, err := p.processOne(ctx, src, summary, cfg)
		if err != nil {
			p.logger.Warn("process record failed", "external_id", summary.ExternalID, "error", err)
			result.Errors = append(result.Errors, domain.RecordError{ExternalID: summary.ExternalID, Reason: err.Error()})
			continue
		}
		rec.SourcePage = page
		result.Processed = append(result.Processed, rec)
	}
	return result
}

func (p *Processor) processOne(ctx context.Context, src Source, summary domain.SummaryRecord, cfg domain.SessionConfig) (*domain.ProcessedRecord, error) {
	rec, err := src.Process(ctx, summary, cfg)
	if err != nil {
		return nil, err
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	for _, enrich := range p.enrichers {
		enrich(rec)
	}
	return rec, nil
}
