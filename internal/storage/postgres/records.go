package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"enforcement_scraper/internal/domain"
)

const uniqueViolation = "23505"

var recordTables = map[domain.DataType]string{
	domain.DataTypeCase:   "cases",
	domain.DataTypeNotice: "notices",
}

func recordTable(dataType domain.DataType) (string, error) {
	table, ok := recordTables[dataType]
	if !ok {
		return "", fmt.Errorf("unknown data type %q", dataType)
	}
	return table, nil
}

// RecordStore keeps cases and notices, one table per data type.
type RecordStore struct {
	db *sqlx.DB
}

func NewRecordStore(db *sqlx.DB) *RecordStore {
	return &RecordStore{db: db}
}

func (s *RecordStore) ExistingExternalIDs(ctx context.Context, agency domain.Agency, dataType domain.DataType, ids []string) (map[string]int64, error) {
	result := make(map[string]int64)
	if len(ids) == 0 {
		return result, nil
	}
	table, err := recordTable(dataType)
	if err != nil {
		return nil, err
	}

	query := `SELECT external_id, id FROM ` + table + ` WHERE agency_code = $1 AND external_id = ANY($2)`

	rows, err := GetExecutor(ctx, s.db).QueryContext(ctx, query, agency, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var extID string
		var id int64
		if err := rows.Scan(&extID, &id); err != nil {
			return nil, err
		}
		result[extID] = id
	}
	return result, rows.Err()
}

const returningRecord = `RETURNING id, agency_code, external_id, offender_id, created_at, updated_at`

// Create inserts rec. A clash on the natural key returns
// domain.ErrDuplicateExternalID.
func (s *RecordStore) Create(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error) {
	table, err := recordTable(rec.DataType)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO ` + table + ` (
			agency_code, external_id, offender_id, action_type, action_date,
			offence_date, hearing_date, compliance_date, revised_compliance_date,
			fine, costs, court, result, regulator_function, related_cases,
			breach_text, legislation, notice_body, source_page, scraped_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20
		)
		` + returningRecord

	var persisted domain.PersistedRecord
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &persisted, query,
		rec.Agency,
		rec.ExternalID,
		rec.OffenderID,
		rec.ActionType,
		rec.ActionDate,
		rec.OffenceDate,
		rec.HearingDate,
		rec.ComplianceDate,
		rec.RevisedComplianceDate,
		rec.Fine,
		rec.Costs,
		rec.Court,
		rec.Result,
		rec.RegulatorFunction,
		pq.Array(nonNil(rec.RelatedCases)),
		rec.BreachText,
		pq.Array(nonNil(rec.Legislation)),
		rec.NoticeBody,
		rec.SourcePage,
		rec.ScrapedAt,
	)
	if err != nil {
		return nil, mapError(err)
	}
	persisted.DataType = rec.DataType
	return &persisted, nil
}

// UpdateFromScrape refreshes the mutable fields of an existing record.
// Fields the new scrape did not produce keep their stored values.
func (s *RecordStore) UpdateFromScrape(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error) {
	table, err := recordTable(rec.DataType)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE ` + table + ` SET
			action_type = COALESCE(NULLIF($3, ''), action_type),
			action_date = COALESCE($4, action_date),
			offence_date = COALESCE($5, offence_date),
			hearing_date = COALESCE($6, hearing_date),
			compliance_date = COALESCE($7, compliance_date),
			revised_compliance_date = COALESCE($8, revised_compliance_date),
			fine = COALESCE($9, fine),
			costs = COALESCE($10, costs),
			court = COALESCE(NULLIF($11, ''), court),
			result = COALESCE(NULLIF($12, ''), result),
			regulator_function = COALESCE(NULLIF($13, ''), regulator_function),
			related_cases = CASE WHEN cardinality($14::text[]) > 0 THEN $14 ELSE related_cases END,
			breach_text = COALESCE($15, breach_text),
			legislation = CASE WHEN cardinality($16::text[]) > 0 THEN $16 ELSE legislation END,
			notice_body = COALESCE($17, notice_body),
			source_page = $18,
			scraped_at = $19,
			updated_at = NOW()
		WHERE agency_code = $1 AND external_id = $2
		` + returningRecord

	var persisted domain.PersistedRecord
	err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &persisted, query,
		rec.Agency,
		rec.ExternalID,
		rec.ActionType,
		rec.ActionDate,
		rec.OffenceDate,
		rec.HearingDate,
		rec.ComplianceDate,
		rec.RevisedComplianceDate,
		rec.Fine,
		rec.Costs,
		rec.Court,
		rec.Result,
		rec.RegulatorFunction,
		pq.Array(nonNil(rec.RelatedCases)),
		rec.BreachText,
		pq.Array(nonNil(rec.Legislation)),
		rec.NoticeBody,
		rec.SourcePage,
		rec.ScrapedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s %s/%s not found", table, rec.Agency, rec.ExternalID)
	}
	if err != nil {
		return nil, err
	}
	persisted.DataType = rec.DataType
	return &persisted, nil
}

func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && strings.HasSuffix(pqErr.Constraint, "_external_id_key") {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateExternalID, pqErr.Detail)
	}
	return err
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
