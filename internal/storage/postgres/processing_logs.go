package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"enforcement_scraper/internal/domain"
)

type logRow struct {
	ID            int64           `db:"id"`
	SessionID     string          `db:"session_id"`
	Agency        domain.Agency   `db:"agency_code"`
	DataType      domain.DataType `db:"data_type"`
	BatchOrPage   int             `db:"batch_or_page"`
	ItemsFound    int             `db:"items_found"`
	ItemsCreated  int             `db:"items_created"`
	ItemsExisting int             `db:"items_existing"`
	ItemsFailed   int             `db:"items_failed"`
	Errors        pq.StringArray  `db:"errors"`
	ScrapedItems  []byte          `db:"scraped_items"`
	CreatedAt     time.Time       `db:"created_at"`
}

// ProcessingLogStore is the append-only per-page audit trail.
type ProcessingLogStore struct {
	db *sqlx.DB
}

func NewProcessingLogStore(db *sqlx.DB) *ProcessingLogStore {
	return &ProcessingLogStore{db: db}
}

func (s *ProcessingLogStore) Append(ctx context.Context, entry *domain.ProcessingLogEntry) error {
	items := entry.ScrapedItems
	if items == nil {
		items = []json.RawMessage{}
	}
	scraped, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode scraped items: %w", err)
	}
	errs := entry.Errors
	if errs == nil {
		errs = []string{}
	}

	query := `
		INSERT INTO processing_logs (
			session_id, agency_code, data_type, batch_or_page, items_found, items_created,
			items_existing, items_failed, errors, scraped_items, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`

	return GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		entry.SessionID,
		entry.Agency,
		entry.DataType,
		entry.BatchOrPage,
		entry.ItemsFound,
		entry.ItemsCreated,
		entry.ItemsExisting,
		entry.ItemsFailed,
		pq.StringArray(errs),
		string(scraped),
		entry.CreatedAt,
	).Scan(&entry.ID)
}

func (s *ProcessingLogStore) ListBySession(ctx context.Context, sessionID string) ([]domain.ProcessingLogEntry, error) {
	var rows []logRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, `
		SELECT id, session_id, agency_code, data_type, batch_or_page, items_found, items_created,
			items_existing, items_failed, errors, scraped_items, created_at
		FROM processing_logs
		WHERE session_id = $1
		ORDER BY batch_or_page, id`, sessionID)
	if err != nil {
		return nil, err
	}

	entries := make([]domain.ProcessingLogEntry, 0, len(rows))
	for _, r := range rows {
		var items []json.RawMessage
		if len(r.ScrapedItems) > 0 {
			if err := json.Unmarshal(r.ScrapedItems, &items); err != nil {
				return nil, fmt.Errorf("decode scraped items: %w", err)
			}
		}
		entries = append(entries, domain.ProcessingLogEntry{
			ID:            r.ID,
			SessionID:     r.SessionID,
			Agency:        r.Agency,
			DataType:      r.DataType,
			BatchOrPage:   r.BatchOrPage,
			ItemsFound:    r.ItemsFound,
			ItemsCreated:  r.ItemsCreated,
			ItemsExisting: r.ItemsExisting,
			ItemsFailed:   r.ItemsFailed,
			Errors:        []string(r.Errors),
			ScrapedItems:  items,
			CreatedAt:     r.CreatedAt,
		})
	}
	return entries, nil
}
