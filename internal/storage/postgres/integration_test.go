//go:build integration

package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/testutil"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB

	records   *RecordStore
	offenders *OffenderStore
	sessions  *SessionStore
	logs      *ProcessingLogStore
	txManager *TransactionManager
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db

	s.Require().NoError(Migrate(s.ctx, db))

	s.records = NewRecordStore(db)
	s.offenders = NewOffenderStore(db)
	s.sessions = NewSessionStore(db)
	s.logs = NewProcessingLogStore(db)
	s.txManager = NewTransactionManager(db)
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM processing_logs")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM scrape_sessions")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM cases")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM notices")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM offenders")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) offender(name, postcode string) *domain.Offender {
	o, err := s.offenders.FindOrCreate(s.ctx, domain.OffenderAttrs{Name: name, Postcode: postcode}, time.Now())
	s.Require().NoError(err)
	return o
}

func (s *PostgresIntegrationSuite) newRecord(dataType domain.DataType, id string, offenderID int64) *domain.ProcessedRecord {
	return &domain.ProcessedRecord{
		Agency:       domain.AgencyHSE,
		DataType:     dataType,
		ExternalID:   id,
		OffenderID:   offenderID,
		ActionType:   "Court Case",
		ActionDate:   testutil.Date(2024, 1, 15),
		Fine:         decimal.NewNullDecimal(decimal.RequireFromString("5000.00")),
		RelatedCases: []string{"4512300"},
		BreachText:   testutil.Ptr("Health and Safety at Work etc Act 1974 Section 2(1)"),
		ScrapedAt:    time.Now().UTC().Truncate(time.Microsecond),
		SourcePage:   1,
	}
}

func (s *PostgresIntegrationSuite) TestRecordStore_CreateAndExisting() {
	o := s.offender("Acme Ltd", "LS1 4AB")

	for _, id := range []string{"1", "2", "3"} {
		_, err := s.records.Create(s.ctx, s.newRecord(domain.DataTypeCase, id, o.ID))
		s.Require().NoError(err)
	}

	existing, err := s.records.ExistingExternalIDs(s.ctx, domain.AgencyHSE, domain.DataTypeCase, []string{"5", "3", "1", "9"})
	s.Require().NoError(err)
	s.Len(existing, 2)
	s.Contains(existing, "1")
	s.Contains(existing, "3")

	other, err := s.records.ExistingExternalIDs(s.ctx, domain.AgencyEA, domain.DataTypeCase, []string{"1"})
	s.Require().NoError(err)
	s.Empty(other)

	notices, err := s.records.ExistingExternalIDs(s.ctx, domain.AgencyHSE, domain.DataTypeNotice, []string{"1"})
	s.Require().NoError(err)
	s.Empty(notices)
}

func (s *PostgresIntegrationSuite) TestRecordStore_DuplicateMapsToSentinel() {
	o := s.offender("Acme Ltd", "")
	_, err := s.records.Create(s.ctx, s.newRecord(domain.DataTypeNotice, "N1", o.ID))
	s.Require().NoError(err)

	_, err = s.records.Create(s.ctx, s.newRecord(domain.DataTypeNotice, "N1", o.ID))
	s.True(errors.Is(err, domain.ErrDuplicateExternalID), "got %v", err)
}

func (s *PostgresIntegrationSuite) TestRecordStore_UpdateFromScrape() {
	o := s.offender("Acme Ltd", "")
	created, err := s.records.Create(s.ctx, s.newRecord(domain.DataTypeCase, "1", o.ID))
	s.Require().NoError(err)

	rec := s.newRecord(domain.DataTypeCase, "1", o.ID)
	rec.Fine = decimal.NewNullDecimal(decimal.RequireFromString("7500.50"))
	rec.BreachText = nil
	rec.RelatedCases = nil
	updated, err := s.records.UpdateFromScrape(s.ctx, rec)
	s.Require().NoError(err)
	s.Equal(created.ID, updated.ID)

	var row struct {
		Fine         decimal.Decimal `db:"fine"`
		BreachText   *string         `db:"breach_text"`
		RelatedCount int             `db:"related"`
	}
	err = s.db.GetContext(s.ctx, &row, `SELECT fine, breach_text, cardinality(related_cases) AS related FROM cases WHERE id = $1`, created.ID)
	s.Require().NoError(err)
	s.True(row.Fine.Equal(decimal.RequireFromString("7500.50")))
	s.Require().NotNil(row.BreachText)
	s.Equal(1, row.RelatedCount)
}

func (s *PostgresIntegrationSuite) TestOffenderStore_ResolvesByNormalizedName() {
	first := s.offender("ACME Construction Limited", "ls1 4ab")
	second := s.offender("Acme Construction Ltd.", "LS1 4AB")
	s.Equal(first.ID, second.ID)

	noPostcode := s.offender("acme construction ltd", "")
	s.Equal(first.ID, noPostcode.ID)

	elsewhere := s.offender("Acme Construction Ltd", "M1 1AA")
	s.NotEqual(first.ID, elsewhere.ID)
}

func (s *PostgresIntegrationSuite) TestOffenderStore_RecordSighting() {
	o := s.offender("Acme Ltd", "")

	s.Require().NoError(s.offenders.RecordSighting(s.ctx, o.ID, decimal.NewFromInt(1000), time.Now()))
	s.Require().NoError(s.offenders.RecordSighting(s.ctx, o.ID, decimal.NewFromInt(250), time.Now()))

	got, err := s.offenders.Get(s.ctx, o.ID)
	s.Require().NoError(err)
	s.Equal(int64(2), got.EnforcementCount)
	s.True(got.TotalFines.Equal(decimal.NewFromInt(1250)))
}

func (s *PostgresIntegrationSuite) TestTransaction_RollbackOnError() {
	o := s.offender("Acme Ltd", "")

	err := s.txManager.WithTransaction(s.ctx, func(txCtx context.Context) error {
		if _, err := s.records.Create(txCtx, s.newRecord(domain.DataTypeCase, "T1", o.ID)); err != nil {
			return err
		}
		return errors.New("abort")
	})
	s.Error(err)

	existing, err := s.records.ExistingExternalIDs(s.ctx, domain.AgencyHSE, domain.DataTypeCase, []string{"T1"})
	s.Require().NoError(err)
	s.Empty(existing)
}

func (s *PostgresIntegrationSuite) TestSessionAndLogs() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	session := &domain.Session{
		ID:        uuid.NewString(),
		Agency:    domain.AgencyEA,
		DataType:  domain.DataTypeNotice,
		Status:    domain.StatusPending,
		Config:    domain.SessionConfig{StartPage: 1, MaxPages: 2, BatchSize: 50, MaxPageErrors: 1, DateFrom: testutil.Date(2024, 1, 1)},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.Require().NoError(s.sessions.Create(s.ctx, session))

	s.Require().NoError(session.Transition(domain.StatusRunning, now))
	session.PagesScraped = 1
	session.TotalFound = 2
	s.Require().NoError(s.sessions.Update(s.ctx, session))

	got, err := s.sessions.Get(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Equal(domain.StatusRunning, got.Status)
	s.Equal(2, got.TotalFound)
	s.Equal(50, got.Config.BatchSize)
	s.Require().NotNil(got.Config.DateFrom)
	s.Require().NotNil(got.StartedAt)

	_, err = s.sessions.Get(s.ctx, uuid.NewString())
	s.ErrorIs(err, domain.ErrSessionNotFound)

	entry := &domain.ProcessingLogEntry{
		SessionID:    session.ID,
		Agency:       domain.AgencyEA,
		DataType:     domain.DataTypeNotice,
		BatchOrPage:  1,
		ItemsFound:   2,
		ItemsCreated: 1,
		ItemsFailed:  1,
		Errors:       []string{"EA-2: malformed date"},
		ScrapedItems: []json.RawMessage{json.RawMessage(`{"external_id":"EA-1"}`), json.RawMessage(`{"external_id":"EA-2"}`)},
		CreatedAt:    now,
	}
	s.Require().NoError(s.logs.Append(s.ctx, entry))
	s.Greater(entry.ID, int64(0))

	entries, err := s.logs.ListBySession(s.ctx, session.ID)
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal([]string{"EA-2: malformed date"}, entries[0].Errors)
	s.Len(entries[0].ScrapedItems, 2)

	list, err := s.sessions.List(s.ctx, 10)
	s.Require().NoError(err)
	s.Len(list, 1)
}
