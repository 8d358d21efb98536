package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"enforcement_scraper/internal/domain"
)

// Gateway classifies records as new or existing and writes them.
type Gateway struct {
	records   RecordStore
	offenders OffenderStore
	txManager TransactionManager
	logger    *slog.Logger
	now       func() time.Time
}

func NewGateway(records RecordStore, offenders OffenderStore, txManager TransactionManager, logger *slog.Logger) *Gateway {
	return &Gateway{
		records:   records,
		offenders: offenders,
		txManager: txManager,
		logger:    logger,
		now:       time.Now,
	}
}

// PersistResult is the outcome of persisting one page of records.
type PersistResult struct {
	Created  int
	Existing int
	Outcomes map[string]domain.Outcome
	Errors   []domain.RecordError
}

func (r *PersistResult) add(id string, outcome domain.Outcome) {
	r.Outcomes[id] = outcome
	if outcome == domain.OutcomeCreated {
		r.Created++
	} else {
		r.Existing++
	}
}

// CheckExisting returns the subset of ids already stored for the agency and
// data type, using a single query.
func (g *Gateway) CheckExisting(ctx context.Context, agency domain.Agency, dataType domain.DataType, ids []string) (map[string]struct{}, error) {
	existing := make(map[string]struct{})
	if len(ids) == 0 {
		return existing, nil
	}
	found, err := g.records.ExistingExternalIDs(ctx, agency, dataType, ids)
	if err != nil {
		return nil, fmt.Errorf("check existing: %w", err)
	}
	for id := range found {
		existing[id] = struct{}{}
	}
	return existing, nil
}

// CreateOrUpdate inserts rec, resolving its offender first. A uniqueness
// conflict on the external id routes to the update path and reports
// OutcomeExisting.
func (g *Gateway) CreateOrUpdate(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, domain.Outcome, error) {
	persisted, err := g.create(ctx, rec)
	if err == nil {
		return persisted, domain.OutcomeCreated, nil
	}
	if !errors.Is(err, domain.ErrDuplicateExternalID) {
		return nil, 0, err
	}

	g.logger.Debug("external id already stored, updating", "external_id", rec.ExternalID)
	persisted, err = g.update(ctx, rec)
	if err != nil {
		return nil, 0, err
	}
	return persisted, domain.OutcomeExisting, nil
}

func (g *Gateway) create(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error) {
	var persisted *domain.PersistedRecord
	err := g.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := g.insert(txCtx, rec)
		persisted = p
		return err
	})
	return persisted, err
}

func (g *Gateway) insert(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error) {
	seenAt := g.now()
	offender, err := g.offenders.FindOrCreate(ctx, rec.Offender, seenAt)
	if err != nil {
		return nil, fmt.Errorf("resolve offender: %w", err)
	}
	rec.OffenderID = offender.ID

	persisted, err := g.records.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("create record: %w", err)
	}

	if err := g.offenders.RecordSighting(ctx, offender.ID, rec.Fine.Decimal, seenAt); err != nil {
		return nil, fmt.Errorf("record offender sighting: %w", err)
	}
	return persisted, nil
}

func (g *Gateway) update(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error) {
	var persisted *domain.PersistedRecord
	err := g.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		p, err := g.records.UpdateFromScrape(txCtx, rec)
		if err != nil {
			return fmt.Errorf("update record: %w", err)
		}
		persisted = p
		return nil
	})
	return persisted, err
}

// PersistBatch writes a page of records. Records already known are refreshed
// through the update path and counted as existing; the remainder is inserted
// in one transaction, falling back to one-by-one writes if that fails.
func (g *Gateway) PersistBatch(ctx context.Context, agency domain.Agency, dataType domain.DataType, recs []*domain.ProcessedRecord) *PersistResult {
	result := &PersistResult{Outcomes: make(map[string]domain.Outcome, len(recs))}
	if len(recs) == 0 {
		return result
	}

	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.ExternalID
	}

	existing, err := g.CheckExisting(ctx, agency, dataType, ids)
	if err != nil {
		g.logger.Warn("existence check failed, persisting one by one", "error", err)
		g.persistEach(ctx, recs, result)
		return result
	}

	var fresh []*domain.ProcessedRecord
	for _, rec := range recs {
		if _, ok := existing[rec.ExternalID]; !ok {
			fresh = append(fresh, rec)
			continue
		}
		if _, err := g.update(ctx, rec); err != nil {
			result.Errors = append(result.Errors, domain.RecordError{ExternalID: rec.ExternalID, Reason: err.Error()})
			continue
		}
		result.add(rec.ExternalID, domain.OutcomeExisting)
	}

	if len(fresh) == 0 {
		return result
	}

	err = g.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		for _, rec := range fresh {
			if _, err := g.insert(txCtx, rec); err != nil {
				return fmt.Errorf("external id %s: %w", rec.ExternalID, err)
			}
		}
		return nil
	})
	if err != nil {
		g.logger.Warn("bulk insert failed, persisting one by one", "count", len(fresh), "error", err)
		g.persistEach(ctx, fresh, result)
		return result
	}

	for _, rec := range fresh {
		result.add(rec.ExternalID, domain.OutcomeCreated)
	}
	return result
}

func (g *Gateway) persistEach(ctx context.Context, recs []*domain.ProcessedRecord, result *PersistResult) {
	for _, rec := range recs {
		_, outcome, err := g.CreateOrUpdate(ctx, rec)
		if err != nil {
			g.logger.Warn("persist record failed", "external_id", rec.ExternalID, "error", err)
			result.Errors = append(result.Errors, domain.RecordError{ExternalID: rec.ExternalID, Reason: err.Error()})
			continue
		}
		result.add(rec.ExternalID, outcome)
	}
}
