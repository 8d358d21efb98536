package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/service"
)

var runFlags struct {
	agency    string
	dataType  string
	startPage int
	pages     int
	batchSize int
	from      string
	to        string
	noDetails bool
}

func init() {
	f := runCmd.Flags()
	f.StringVar(&runFlags.agency, "agency", "", "agency to scrape (hse or ea)")
	f.StringVar(&runFlags.dataType, "type", "case", "record type (case or notice)")
	f.IntVar(&runFlags.startPage, "start-page", 0, "first page to scrape")
	f.IntVar(&runFlags.pages, "pages", 0, "number of pages to scrape")
	f.IntVar(&runFlags.batchSize, "batch-size", 0, "records per page where the source supports it")
	f.StringVar(&runFlags.from, "from", "", "earliest action date (YYYY-MM-DD)")
	f.StringVar(&runFlags.to, "to", "", "latest action date (YYYY-MM-DD)")
	f.BoolVar(&runFlags.noDetails, "no-details", false, "skip detail page fetches")
	_ = runCmd.MarkFlagRequired("agency")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run --agency <hse|ea> [--type <case|notice>]",
	Short: "Runs a single scrape session and waits for it to finish.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		req, err := runRequest(a)
		if err != nil {
			return err
		}

		session, err := a.manager.Start(ctx, req)
		if err != nil {
			return fmt.Errorf("start session: %w", err)
		}
		a.logger.Info("session started", "session_id", session.ID, "agency", req.Agency, "data_type", req.DataType)

		waitErr := a.manager.Wait(ctx, session.ID)

		shutdownCtx, cancel := contextWithTimeout(a.cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := a.manager.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("shutdown did not complete", "error", err)
		}

		final, err := a.manager.Get(shutdownCtx, session.ID)
		if err != nil {
			return fmt.Errorf("load session: %w", err)
		}
		a.logger.Info("session finished",
			"session_id", final.ID,
			"status", final.Status,
			"pages_scraped", final.PagesScraped,
			"total_found", final.TotalFound,
			"total_created", final.TotalCreated,
			"total_existing", final.TotalExisting,
			"total_errors", final.TotalErrors,
		)
		if waitErr != nil {
			return waitErr
		}
		if final.Status == domain.StatusFailed {
			return fmt.Errorf("session %s failed: %s", final.ID, final.ErrorMessage)
		}
		return nil
	},
}

func runRequest(a *app) (service.StartRequest, error) {
	agency, err := domain.ParseAgency(runFlags.agency)
	if err != nil {
		return service.StartRequest{}, err
	}
	dataType, err := domain.ParseDataType(runFlags.dataType)
	if err != nil {
		return service.StartRequest{}, err
	}

	cfg, err := a.cfg.Session.Domain()
	if err != nil {
		return service.StartRequest{}, err
	}
	if runFlags.startPage > 0 {
		cfg.StartPage = runFlags.startPage
	}
	if runFlags.pages > 0 {
		cfg.MaxPages = runFlags.pages
	}
	if runFlags.batchSize > 0 {
		cfg.BatchSize = runFlags.batchSize
	}
	if runFlags.noDetails {
		cfg.FetchDetails = false
	}
	if cfg.DateFrom, err = flagDate(runFlags.from, cfg.DateFrom); err != nil {
		return service.StartRequest{}, fmt.Errorf("--from: %w", err)
	}
	if cfg.DateTo, err = flagDate(runFlags.to, cfg.DateTo); err != nil {
		return service.StartRequest{}, fmt.Errorf("--to: %w", err)
	}

	return service.StartRequest{Agency: agency, DataType: dataType, Config: cfg}, nil
}

func flagDate(s string, fallback *time.Time) (*time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
