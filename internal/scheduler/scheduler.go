package scheduler

import (
	"context"
	"log/slog"
	"time"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/service"
)

// Launcher starts sessions and reports which are still in flight.
type Launcher interface {
	Start(ctx context.Context, req service.StartRequest) (*domain.Session, error)
	Running(agency domain.Agency, dataType domain.DataType) bool
}

// Job is one agency/data type pair scraped on every tick.
type Job struct {
	Agency   domain.Agency
	DataType domain.DataType
	Config   domain.SessionConfig
}

type Scheduler struct {
	launcher Launcher
	jobs     []Job
	interval time.Duration
	logger   *slog.Logger
}

func NewScheduler(launcher Launcher, jobs []Job, interval time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		launcher: launcher,
		jobs:     jobs,
		interval: interval,
		logger:   logger,
	}
}

func (s *Scheduler) Start(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval, "jobs", len(s.jobs))

	s.launchAll(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.launchAll(ctx)
		}
	}
}

// launchAll starts a session per job, skipping jobs whose previous session
// has not finished yet.
func (s *Scheduler) launchAll(ctx context.Context) {
	for _, job := range s.jobs {
		if s.launcher.Running(job.Agency, job.DataType) {
			s.logger.Info("previous session still running, skipping",
				"agency", job.Agency,
				"data_type", job.DataType,
			)
			continue
		}

		session, err := s.launcher.Start(ctx, service.StartRequest{
			Agency:   job.Agency,
			DataType: job.DataType,
			Config:   job.Config,
		})
		if err != nil {
			s.logger.Error("start session failed", "agency", job.Agency, "data_type", job.DataType, "error", err)
			continue
		}
		s.logger.Info("session launched", "session_id", session.ID, "agency", job.Agency, "data_type", job.DataType)
	}
}
