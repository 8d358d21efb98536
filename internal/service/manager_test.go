package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"enforcement_scraper/internal/domain"
)

type ManagerTestSuite struct {
	suite.Suite

	records  *memRecords
	sessions *memSessions
	logs     *memLogs
	source   *pagedSource
	fetcher  *pageFetcher

	manager *Manager
	cfg     domain.SessionConfig
}

func (s *ManagerTestSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.records = newMemRecords()
	s.sessions = newMemSessions()
	s.logs = &memLogs{}
	s.source = &pagedSource{agency: domain.AgencyHSE, pages: map[int][]string{1: {"A"}, 2: {"B"}, 3: {"C"}}}
	s.fetcher = &pageFetcher{}

	coordinator := NewCoordinator(
		[]Source{s.source},
		s.fetcher,
		NewProcessor(logger),
		NewGateway(s.records, newMemOffenders(), memTx{records: s.records}, logger),
		NewRecorder(s.logs, nil, logger),
		s.sessions,
		logger,
	)
	s.manager = NewManager(coordinator, s.sessions, s.logs, logger)
	s.cfg = domain.SessionConfig{StartPage: 1, MaxPages: 3, BatchSize: 10, MaxPageErrors: 1}
}

func (s *ManagerTestSuite) TearDownTest() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.NoError(s.manager.Shutdown(ctx))
}

func TestManagerTestSuite(t *testing.T) {
	suite.Run(t, new(ManagerTestSuite))
}

func (s *ManagerTestSuite) waitFor(id string) *domain.Session {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.Require().NoError(s.manager.Wait(ctx, id))
	got, err := s.manager.Get(ctx, id)
	s.Require().NoError(err)
	return got
}

func (s *ManagerTestSuite) TestStart_RunsToCompletion() {
	ctx := context.Background()

	session, err := s.manager.Start(ctx, StartRequest{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, Config: s.cfg})
	s.Require().NoError(err)
	s.Equal(domain.StatusPending, session.Status)
	s.NotEmpty(session.ID)

	got := s.waitFor(session.ID)
	s.Equal(domain.StatusCompleted, got.Status)
	s.Equal(3, got.TotalCreated)

	logs, err := s.manager.Logs(ctx, session.ID)
	s.Require().NoError(err)
	s.Len(logs, 3)
}

func (s *ManagerTestSuite) TestStart_RejectsInvalidConfig() {
	cfg := s.cfg
	cfg.MaxPages = 0

	_, err := s.manager.Start(context.Background(), StartRequest{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, Config: cfg})
	s.Error(err)

	_, err = s.manager.Start(context.Background(), StartRequest{Agency: "osha", DataType: domain.DataTypeCase, Config: s.cfg})
	s.Error(err)
}

func (s *ManagerTestSuite) TestCancel_StopsAtPageBoundary() {
	reached := make(chan struct{})
	release := make(chan struct{})
	s.fetcher.onFetch = func(page int) {
		if page == 1 {
			close(reached)
			<-release
		}
	}

	session, err := s.manager.Start(context.Background(), StartRequest{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, Config: s.cfg})
	s.Require().NoError(err)

	<-reached
	s.True(s.manager.Running(domain.AgencyHSE, domain.DataTypeCase))
	s.Require().NoError(s.manager.Cancel(context.Background(), session.ID))
	close(release)

	got := s.waitFor(session.ID)
	s.Equal(domain.StatusCancelled, got.Status)
	s.Equal(1, got.PagesScraped)
	s.Equal([]int{1}, s.logs.pages())
	s.False(s.manager.Running(domain.AgencyHSE, domain.DataTypeCase))
}

func (s *ManagerTestSuite) TestCancel_FinishedSession() {
	session, err := s.manager.Start(context.Background(), StartRequest{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, Config: s.cfg})
	s.Require().NoError(err)
	s.waitFor(session.ID)

	err = s.manager.Cancel(context.Background(), session.ID)
	s.ErrorIs(err, domain.ErrInvalidTransition)

	err = s.manager.Cancel(context.Background(), "missing")
	s.ErrorIs(err, domain.ErrSessionNotFound)
}

func (s *ManagerTestSuite) TestPanicMarksOnlyThatSessionFailed() {
	s.source.panicOn = 2

	crashed, err := s.manager.Start(context.Background(), StartRequest{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, Config: s.cfg})
	s.Require().NoError(err)
	got := s.waitFor(crashed.ID)

	s.Equal(domain.StatusFailed, got.Status)
	s.Contains(got.ErrorMessage, "parser exploded")
	s.Equal(1, got.PagesScraped)

	s.source.panicOn = 0
	healthy, err := s.manager.Start(context.Background(), StartRequest{Agency: domain.AgencyHSE, DataType: domain.DataTypeCase, Config: s.cfg})
	s.Require().NoError(err)
	s.Equal(domain.StatusCompleted, s.waitFor(healthy.ID).Status)
}
