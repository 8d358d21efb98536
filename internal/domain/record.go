package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// SummaryRecord is the data extracted from one row of a listing page.
// Fields that a given agency does not publish are left empty.
type SummaryRecord struct {
	Agency         Agency            `json:"agency"`
	DataType       DataType          `json:"data_type"`
	ExternalID     string            `json:"external_id"`
	OffenderName   string            `json:"offender_name,omitempty"`
	ActionDate     *time.Time        `json:"action_date,omitempty"`
	ActionType     string            `json:"action_type,omitempty"`
	LocalAuthority string            `json:"local_authority,omitempty"`
	Address        string            `json:"address,omitempty"`
	MainActivity   string            `json:"main_activity,omitempty"`
	DetailURL      string            `json:"detail_url,omitempty"`
	Raw            map[string]string `json:"raw,omitempty"`
}

// DetailRecord carries fields from a per-item detail page. Amounts are kept
// as scraped; the processor normalizes them.
type DetailRecord struct {
	OffenderName          string
	Address               string
	Postcode              string
	LocalAuthority        string
	Region                string
	Industry              string
	MainActivity          string
	SICCode               string
	CompanyNumber         string
	BusinessType          string
	ActionType            string
	ActionDate            *time.Time
	OffenceDate           *time.Time
	HearingDate           *time.Time
	ComplianceDate        *time.Time
	RevisedComplianceDate *time.Time
	Fine                  string
	Costs                 string
	Court                 string
	Result                string
	RegulatorFunction     string
	RelatedCases          []string
	Breaches              []string
	NoticeBody            string
}

// OffenderAttrs are the attributes used to resolve or create an offender.
type OffenderAttrs struct {
	Name           string `json:"name"`
	Address        string `json:"address,omitempty"`
	Postcode       string `json:"postcode,omitempty"`
	LocalAuthority string `json:"local_authority,omitempty"`
	MainActivity   string `json:"main_activity,omitempty"`
	Industry       string `json:"industry,omitempty"`
	SICCode        string `json:"sic_code,omitempty"`
	CompanyNumber  string `json:"company_number,omitempty"`
	BusinessType   string `json:"business_type,omitempty"`
}

// ProcessedRecord is the canonical shape handed to persistence.
type ProcessedRecord struct {
	Agency                Agency              `json:"agency"`
	DataType              DataType            `json:"data_type"`
	ExternalID            string              `json:"external_id"`
	Offender              OffenderAttrs       `json:"offender"`
	OffenderID            int64               `json:"offender_id,omitempty"`
	ActionType            string              `json:"action_type,omitempty"`
	ActionDate            *time.Time          `json:"action_date,omitempty"`
	OffenceDate           *time.Time          `json:"offence_date,omitempty"`
	HearingDate           *time.Time          `json:"hearing_date,omitempty"`
	ComplianceDate        *time.Time          `json:"compliance_date,omitempty"`
	RevisedComplianceDate *time.Time          `json:"revised_compliance_date,omitempty"`
	Fine                  decimal.NullDecimal `json:"fine"`
	Costs                 decimal.NullDecimal `json:"costs"`
	Court                 string              `json:"court,omitempty"`
	Result                string              `json:"result,omitempty"`
	RegulatorFunction     string              `json:"regulator_function,omitempty"`
	RelatedCases          []string            `json:"related_cases,omitempty"`
	BreachText            *string             `json:"breach_text,omitempty"`
	Legislation           []string            `json:"legislation,omitempty"`
	NoticeBody            *string             `json:"notice_body,omitempty"`
	ScrapedAt             time.Time           `json:"scraped_at"`
	SourcePage            int                 `json:"source_page"`
}

// Validate checks the natural key.
func (r *ProcessedRecord) Validate() error {
	if r.ExternalID == "" || r.Agency == "" {
		return ErrMissingNaturalKey
	}
	if !r.DataType.Valid() {
		return fmt.Errorf("external id %s: unknown data type %q", r.ExternalID, r.DataType)
	}
	return nil
}

// PersistedRecord is the durable case or notice row.
type PersistedRecord struct {
	ID         int64     `db:"id"`
	Agency     Agency    `db:"agency_code"`
	DataType   DataType  `db:"-"`
	ExternalID string    `db:"external_id"`
	OffenderID int64     `db:"offender_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Offender is an organisation or person named in enforcement records.
type Offender struct {
	ID               int64           `db:"id"`
	Name             string          `db:"name"`
	NormalizedName   string          `db:"normalized_name"`
	Address          string          `db:"address"`
	Postcode         string          `db:"postcode"`
	LocalAuthority   string          `db:"local_authority"`
	MainActivity     string          `db:"main_activity"`
	Industry         string          `db:"industry"`
	SICCode          string          `db:"sic_code"`
	CompanyNumber    string          `db:"company_number"`
	BusinessType     string          `db:"business_type"`
	EnforcementCount int64           `db:"enforcement_count"`
	TotalFines       decimal.Decimal `db:"total_fines"`
	FirstSeenAt      time.Time       `db:"first_seen_at"`
	LastSeenAt       time.Time       `db:"last_seen_at"`
}

// Outcome says what persistence did with a record.
type Outcome int

const (
	OutcomeCreated Outcome = iota + 1
	OutcomeExisting
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeExisting:
		return "existing"
	}
	return "unknown"
}
