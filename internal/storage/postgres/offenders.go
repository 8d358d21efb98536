package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/normalize"
)

const offenderColumns = `id, name, normalized_name, address, postcode, local_authority, main_activity,
	industry, sic_code, company_number, business_type, enforcement_count, total_fines,
	first_seen_at, last_seen_at`

// OffenderStore resolves offenders by normalized name and postcode.
type OffenderStore struct {
	db *sqlx.DB
}

func NewOffenderStore(db *sqlx.DB) *OffenderStore {
	return &OffenderStore{db: db}
}

// FindOrCreate returns the offender matching attrs, creating it on first
// sighting. Blank stored attributes are filled from attrs. When attrs has no
// postcode, the most active offender with the same name is reused.
func (s *OffenderStore) FindOrCreate(ctx context.Context, attrs domain.OffenderAttrs, seenAt time.Time) (*domain.Offender, error) {
	normalized := normalize.OffenderName(attrs.Name)
	postcode := normalize.Postcode(attrs.Postcode)
	exec := GetExecutor(ctx, s.db)

	if postcode == "" {
		var existing domain.Offender
		err := sqlx.GetContext(ctx, exec, &existing, `
			SELECT `+offenderColumns+`
			FROM offenders
			WHERE normalized_name = $1
			ORDER BY enforcement_count DESC, id
			LIMIT 1`, normalized)
		if err == nil {
			return &existing, nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("find offender: %w", err)
		}
	}

	query := `
		INSERT INTO offenders (
			name, normalized_name, address, postcode, local_authority, main_activity,
			industry, sic_code, company_number, business_type, first_seen_at, last_seen_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11
		)
		ON CONFLICT (normalized_name, postcode) DO UPDATE SET
			address = COALESCE(NULLIF(offenders.address, ''), EXCLUDED.address),
			local_authority = COALESCE(NULLIF(offenders.local_authority, ''), EXCLUDED.local_authority),
			main_activity = COALESCE(NULLIF(offenders.main_activity, ''), EXCLUDED.main_activity),
			industry = COALESCE(NULLIF(offenders.industry, ''), EXCLUDED.industry),
			sic_code = COALESCE(NULLIF(offenders.sic_code, ''), EXCLUDED.sic_code),
			company_number = COALESCE(NULLIF(offenders.company_number, ''), EXCLUDED.company_number),
			business_type = COALESCE(NULLIF(offenders.business_type, ''), EXCLUDED.business_type)
		RETURNING ` + offenderColumns

	var offender domain.Offender
	err := sqlx.GetContext(ctx, exec, &offender, query,
		attrs.Name,
		normalized,
		attrs.Address,
		postcode,
		attrs.LocalAuthority,
		attrs.MainActivity,
		attrs.Industry,
		attrs.SICCode,
		attrs.CompanyNumber,
		attrs.BusinessType,
		seenAt,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert offender: %w", err)
	}
	return &offender, nil
}

// RecordSighting bumps the aggregate counters for a newly stored record.
func (s *OffenderStore) RecordSighting(ctx context.Context, offenderID int64, fine decimal.Decimal, seenAt time.Time) error {
	query := `
		UPDATE offenders SET
			enforcement_count = enforcement_count + 1,
			total_fines = total_fines + $2,
			last_seen_at = GREATEST(last_seen_at, $3)
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query, offenderID, fine, seenAt)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("offender %d not found", offenderID)
	}
	return nil
}

func (s *OffenderStore) Get(ctx context.Context, id int64) (*domain.Offender, error) {
	var offender domain.Offender
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &offender,
		`SELECT `+offenderColumns+` FROM offenders WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &offender, nil
}
