package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"enforcement_scraper/internal/domain"
)

// Source is one agency's listing/detail scraper.
type Source interface {
	Agency() domain.Agency
	ListingURL(dataType domain.DataType, page int, cfg domain.SessionConfig) (string, error)
	ParseListing(dataType domain.DataType, body []byte) ([]domain.SummaryRecord, error)
	Process(ctx context.Context, summary domain.SummaryRecord, cfg domain.SessionConfig) (*domain.ProcessedRecord, error)
}

type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// RecordStore persists cases and notices. Create returns
// domain.ErrDuplicateExternalID when the natural key already exists.
type RecordStore interface {
	ExistingExternalIDs(ctx context.Context, agency domain.Agency, dataType domain.DataType, ids []string) (map[string]int64, error)
	Create(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error)
	UpdateFromScrape(ctx context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error)
}

type OffenderStore interface {
	FindOrCreate(ctx context.Context, attrs domain.OffenderAttrs, seenAt time.Time) (*domain.Offender, error)
	RecordSighting(ctx context.Context, offenderID int64, fine decimal.Decimal, seenAt time.Time) error
}

type SessionStore interface {
	Create(ctx context.Context, session *domain.Session) error
	Update(ctx context.Context, session *domain.Session) error
	Get(ctx context.Context, id string) (*domain.Session, error)
	List(ctx context.Context, limit int) ([]domain.Session, error)
}

type ProcessingLogStore interface {
	Append(ctx context.Context, entry *domain.ProcessingLogEntry) error
	ListBySession(ctx context.Context, sessionID string) ([]domain.ProcessingLogEntry, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Publisher receives one progress event per processed page. Delivery is
// best effort.
type Publisher interface {
	Publish(ctx context.Context, event domain.ProgressEvent) error
	Close() error
}
