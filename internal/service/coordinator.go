package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"enforcement_scraper/internal/domain"
)

// Coordinator drives one session page by page:
// fetch, parse, process, dedupe, persist, log.
type Coordinator struct {
	sources   map[domain.Agency]Source
	fetcher   Fetcher
	processor *Processor
	gateway   *Gateway
	recorder  *Recorder
	sessions  SessionStore
	logger    *slog.Logger
	now       func() time.Time
}

func NewCoordinator(
	sources []Source,
	fetcher Fetcher,
	processor *Processor,
	gateway *Gateway,
	recorder *Recorder,
	sessions SessionStore,
	logger *slog.Logger,
) *Coordinator {
	bySource := make(map[domain.Agency]Source, len(sources))
	for _, s := range sources {
		bySource[s.Agency()] = s
	}
	return &Coordinator{
		sources:   bySource,
		fetcher:   fetcher,
		processor: processor,
		gateway:   gateway,
		recorder:  recorder,
		sessions:  sessions,
		logger:    logger,
		now:       time.Now,
	}
}

// pageResult is what one successfully fetched page contributed.
type pageResult struct {
	found    int
	unique   int
	created  int
	existing int
	failed   int
}

// Run executes session until its configured pages are done, an empty page
// is reached, it is cancelled, or page failures exceed the threshold.
// cancel is checked once per page; a page already in flight finishes.
// The returned error is only set when session state could not be stored.
func (c *Coordinator) Run(ctx context.Context, session *domain.Session, cancel <-chan struct{}) error {
	logger := c.logger.With("session_id", session.ID, "agency", session.Agency, "data_type", session.DataType)
	cfg := session.Config
	// state writes must land even when ctx is being torn down
	storeCtx := context.WithoutCancel(ctx)

	src, ok := c.sources[session.Agency]
	if !ok {
		if err := session.Fail(fmt.Sprintf("no source registered for agency %q", session.Agency), c.now()); err != nil {
			return err
		}
		return c.sessions.Update(storeCtx, session)
	}

	if err := session.Transition(domain.StatusRunning, c.now()); err != nil {
		return err
	}
	if err := c.sessions.Update(storeCtx, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	logger.Info("session started", "start_page", cfg.StartPage, "end_page", cfg.EndPage())

	seen := make(map[string]bool)
	pageErrors := 0
	existingStreak := 0

	for page := cfg.StartPage; page <= cfg.EndPage(); page++ {
		if cancelled(ctx, cancel) {
			logger.Info("session cancelled", "next_page", page, "pages_scraped", session.PagesScraped)
			return c.finish(storeCtx, session, domain.StatusCancelled, "")
		}

		session.CurrentPage = page
		res, err := c.scrapePage(ctx, src, session, page, seen)
		if err != nil {
			pageErrors++
			session.TotalErrors++
			logger.Warn("page failed", "page", page, "page_errors", pageErrors, "error", err)

			if recErr := c.recordPageFailure(ctx, session, page, err); recErr != nil {
				logger.Error("record page failure", "page", page, "error", recErr)
			}

			if pageErrors >= cfg.MaxPageErrors || page == cfg.EndPage() {
				return c.finish(storeCtx, session, domain.StatusFailed, fmt.Sprintf("page %d: %v", page, err))
			}
			if err := c.sessions.Update(storeCtx, session); err != nil {
				return fmt.Errorf("update session: %w", err)
			}
			continue
		}

		session.PagesScraped++
		session.TotalFound += res.unique
		session.TotalCreated += res.created
		session.TotalExisting += res.existing
		session.TotalErrors += res.failed
		session.UpdatedAt = c.now()
		if err := c.sessions.Update(storeCtx, session); err != nil {
			return fmt.Errorf("update session: %w", err)
		}

		logger.Info("page processed",
			"page", page,
			"found", res.found,
			"created", res.created,
			"existing", res.existing,
			"failed", res.failed,
		)

		if res.found == 0 {
			logger.Info("empty page, no more results", "page", page)
			break
		}

		if res.created == 0 && res.failed == 0 {
			existingStreak++
		} else {
			existingStreak = 0
		}
		if cfg.StopAfterExistingPages > 0 && existingStreak >= cfg.StopAfterExistingPages {
			logger.Info("only known records on recent pages, stopping early", "pages", existingStreak)
			break
		}
	}

	return c.finish(storeCtx, session, domain.StatusCompleted, "")
}

func (c *Coordinator) scrapePage(ctx context.Context, src Source, session *domain.Session, page int, seen map[string]bool) (pageResult, error) {
	var res pageResult

	pageURL, err := src.ListingURL(session.DataType, page, session.Config)
	if err != nil {
		return res, fmt.Errorf("build listing url: %w", err)
	}
	body, err := c.fetcher.Fetch(ctx, pageURL)
	if err != nil {
		return res, fmt.Errorf("fetch page: %w", err)
	}
	summaries, err := src.ParseListing(session.DataType, body)
	if err != nil {
		return res, fmt.Errorf("parse page: %w", err)
	}

	batch := c.processor.ProcessBatch(ctx, src, summaries, session.Config, page)
	persisted := c.gateway.PersistBatch(ctx, session.Agency, session.DataType, batch.Processed)

	res.found = len(summaries)
	res.failed = len(batch.Errors) + len(persisted.Errors)
	for _, s := range summaries {
		if !seen[s.ExternalID] {
			seen[s.ExternalID] = true
			res.unique++
		}
	}
	res.created = persisted.Created
	res.existing = persisted.Existing

	entry := &domain.ProcessingLogEntry{
		SessionID:     session.ID,
		Agency:        session.Agency,
		DataType:      session.DataType,
		BatchOrPage:   page,
		ItemsFound:    res.found,
		ItemsCreated:  res.created,
		ItemsExisting: res.existing,
		ItemsFailed:   res.failed,
		Errors:        errorStrings(batch.Errors, persisted.Errors),
		ScrapedItems:  snapshots(summaries),
	}
	if err := c.recorder.Record(context.WithoutCancel(ctx), session, entry); err != nil {
		c.logger.Error("record processing log", "session_id", session.ID, "page", page, "error", err)
	}
	return res, nil
}

func (c *Coordinator) recordPageFailure(ctx context.Context, session *domain.Session, page int, pageErr error) error {
	return c.recorder.Record(context.WithoutCancel(ctx), session, &domain.ProcessingLogEntry{
		SessionID:   session.ID,
		Agency:      session.Agency,
		DataType:    session.DataType,
		BatchOrPage: page,
		Errors:      []string{pageErr.Error()},
	})
}

func (c *Coordinator) finish(ctx context.Context, session *domain.Session, status domain.SessionStatus, reason string) error {
	now := c.now()
	var err error
	if status == domain.StatusFailed {
		err = session.Fail(reason, now)
	} else {
		err = session.Transition(status, now)
	}
	if err != nil {
		return err
	}
	if err := c.sessions.Update(ctx, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	c.logger.Info("session finished",
		"session_id", session.ID,
		"status", session.Status,
		"pages_scraped", session.PagesScraped,
		"total_found", session.TotalFound,
		"total_created", session.TotalCreated,
		"total_existing", session.TotalExisting,
		"total_errors", session.TotalErrors,
	)
	return nil
}

func cancelled(ctx context.Context, cancel <-chan struct{}) bool {
	if ctx.Err() != nil {
		return true
	}
	select {
	case <-cancel:
		return true
	default:
		return false
	}
}

func errorStrings(groups ...[]domain.RecordError) []string {
	out := []string{}
	for _, g := range groups {
		for _, e := range g {
			out = append(out, e.Error())
		}
	}
	return out
}

func snapshots(summaries []domain.SummaryRecord) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(summaries))
	for _, s := range summaries {
		b, err := json.Marshal(s)
		if err != nil {
			continue
		}
		out = append(out, b)
	}
	return out
}
