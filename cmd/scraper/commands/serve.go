package commands

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"enforcement_scraper/internal/api"
	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/scheduler"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the session API and runs scheduled scrapes.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()

		defaults, err := a.cfg.Session.Domain()
		if err != nil {
			return err
		}

		jobs, err := scheduledJobs(a, defaults)
		if err != nil {
			return err
		}

		srv := &http.Server{
			Addr:              a.cfg.HTTP.ListenAddr,
			Handler:           api.New(a.manager, a.broker, defaults, a.logger).Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		g, gctx := errgroup.WithContext(ctx)

		g.Go(func() error {
			a.logger.Info("http server listening", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})

		if a.cfg.Schedule.Enabled {
			sched := scheduler.NewScheduler(a.manager, jobs, a.cfg.Schedule.Interval, a.logger)
			g.Go(func() error {
				if err := sched.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
					return err
				}
				return nil
			})
		}

		g.Go(func() error {
			<-gctx.Done()
			a.logger.Info("shutting down")

			shutdownCtx, cancel := contextWithTimeout(a.cfg.HTTP.ShutdownTimeout)
			defer cancel()

			httpErr := srv.Shutdown(shutdownCtx)
			managerErr := a.manager.Shutdown(shutdownCtx)
			return errors.Join(httpErr, managerErr)
		})

		return g.Wait()
	},
}

func scheduledJobs(a *app, defaults domain.SessionConfig) ([]scheduler.Job, error) {
	jobs := make([]scheduler.Job, 0, len(a.cfg.Schedule.Jobs))
	for _, j := range a.cfg.Schedule.Jobs {
		agency, err := domain.ParseAgency(j.Agency)
		if err != nil {
			return nil, err
		}
		dataType, err := domain.ParseDataType(j.DataType)
		if err != nil {
			return nil, err
		}
		cfg := defaults
		if j.MaxPages > 0 {
			cfg.MaxPages = j.MaxPages
		}
		jobs = append(jobs, scheduler.Job{Agency: agency, DataType: dataType, Config: cfg})
	}
	return jobs, nil
}

func contextWithTimeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}
