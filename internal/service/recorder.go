package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"enforcement_scraper/internal/domain"
)

// Recorder appends processing log entries and broadcasts progress.
type Recorder struct {
	logs      ProcessingLogStore
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewRecorder(logs ProcessingLogStore, publisher Publisher, logger *slog.Logger) *Recorder {
	return &Recorder{
		logs:      logs,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// Record persists entry and then publishes a progress event for it. An
// unbalanced entry is logged and stored as is. Publish failures are logged
// only; the stored entry is the source of truth.
func (r *Recorder) Record(ctx context.Context, session *domain.Session, entry *domain.ProcessingLogEntry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	if !entry.Balanced() {
		r.logger.Warn("processing log counts do not add up",
			"session_id", entry.SessionID,
			"page", entry.BatchOrPage,
			"found", entry.ItemsFound,
			"created", entry.ItemsCreated,
			"existing", entry.ItemsExisting,
			"failed", entry.ItemsFailed,
		)
	}

	entry.CreatedAt = r.now()
	if err := r.logs.Append(ctx, entry); err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}

	if r.publisher == nil {
		return nil
	}
	event := domain.NewProgressEvent(session, entry, entry.CreatedAt)
	if err := r.publisher.Publish(ctx, event); err != nil {
		r.logger.Warn("publish progress failed", "session_id", session.ID, "page", entry.BatchOrPage, "error", err)
	}
	return nil
}
