package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"enforcement_scraper/internal/domain"
)

const sessionColumns = `id, agency_code, data_type, status, config, current_page, pages_scraped,
	total_found, total_created, total_existing, total_errors, error_message,
	started_at, finished_at, created_at, updated_at`

type sessionRow struct {
	domain.Session
	ConfigJSON []byte `db:"config"`
}

func (r *sessionRow) toDomain() (*domain.Session, error) {
	s := r.Session
	if len(r.ConfigJSON) > 0 {
		if err := json.Unmarshal(r.ConfigJSON, &s.Config); err != nil {
			return nil, fmt.Errorf("decode session config: %w", err)
		}
	}
	return &s, nil
}

type SessionStore struct {
	db *sqlx.DB
}

func NewSessionStore(db *sqlx.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) Create(ctx context.Context, session *domain.Session) error {
	cfg, err := json.Marshal(session.Config)
	if err != nil {
		return fmt.Errorf("encode session config: %w", err)
	}

	query := `
		INSERT INTO scrape_sessions (
			id, agency_code, data_type, status, config, current_page, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $7)`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, query,
		session.ID,
		session.Agency,
		session.DataType,
		session.Status,
		string(cfg),
		session.CurrentPage,
		session.CreatedAt,
	)
	return err
}

func (s *SessionStore) Update(ctx context.Context, session *domain.Session) error {
	query := `
		UPDATE scrape_sessions SET
			status = $2,
			current_page = $3,
			pages_scraped = $4,
			total_found = $5,
			total_created = $6,
			total_existing = $7,
			total_errors = $8,
			error_message = $9,
			started_at = $10,
			finished_at = $11,
			updated_at = NOW()
		WHERE id = $1`

	res, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		session.ID,
		session.Status,
		session.CurrentPage,
		session.PagesScraped,
		session.TotalFound,
		session.TotalCreated,
		session.TotalExisting,
		session.TotalErrors,
		session.ErrorMessage,
		session.StartedAt,
		session.FinishedAt,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", domain.ErrSessionNotFound, session.ID)
	}
	return nil
}

func (s *SessionStore) Get(ctx context.Context, id string) (*domain.Session, error) {
	var row sessionRow
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &row,
		`SELECT `+sessionColumns+` FROM scrape_sessions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

// List returns the most recently created sessions first.
func (s *SessionStore) List(ctx context.Context, limit int) ([]domain.Session, error) {
	var rows []sessionRow
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows,
		`SELECT `+sessionColumns+` FROM scrape_sessions ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(rows))
	for i := range rows {
		session, err := rows[i].toDomain()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	return sessions, nil
}
