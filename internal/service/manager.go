package service

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"enforcement_scraper/internal/domain"
)

// StartRequest names what a new session should scrape.
type StartRequest struct {
	Agency   domain.Agency
	DataType domain.DataType
	Config   domain.SessionConfig
}

type runHandle struct {
	session  *domain.Session
	cancel   chan struct{}
	once     sync.Once
	done     chan struct{}
	agency   domain.Agency
	dataType domain.DataType
}

func (h *runHandle) stop() {
	h.once.Do(func() { close(h.cancel) })
}

// Manager launches sessions on their own goroutines and supervises them.
// A panic in one session marks that session failed and leaves the rest
// running.
type Manager struct {
	coordinator *Coordinator
	sessions    SessionStore
	logs        ProcessingLogStore
	logger      *slog.Logger
	now         func() time.Time

	ctx  context.Context
	stop context.CancelFunc
	wg   sync.WaitGroup

	mu      sync.Mutex
	running map[string]*runHandle
}

func NewManager(coordinator *Coordinator, sessions SessionStore, logs ProcessingLogStore, logger *slog.Logger) *Manager {
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		coordinator: coordinator,
		sessions:    sessions,
		logs:        logs,
		logger:      logger,
		now:         time.Now,
		ctx:         ctx,
		stop:        stop,
		running:     make(map[string]*runHandle),
	}
}

// Start stores a pending session and launches it.
func (m *Manager) Start(ctx context.Context, req StartRequest) (*domain.Session, error) {
	if !req.Agency.Valid() {
		return nil, fmt.Errorf("unknown agency %q", req.Agency)
	}
	if !req.DataType.Valid() {
		return nil, fmt.Errorf("unknown data type %q", req.DataType)
	}
	if err := req.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid session config: %w", err)
	}

	now := m.now()
	session := &domain.Session{
		ID:          uuid.NewString(),
		Agency:      req.Agency,
		DataType:    req.DataType,
		Status:      domain.StatusPending,
		Config:      req.Config,
		CurrentPage: req.Config.StartPage,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	h := &runHandle{
		session:  session,
		cancel:   make(chan struct{}),
		done:     make(chan struct{}),
		agency:   req.Agency,
		dataType: req.DataType,
	}
	m.mu.Lock()
	m.running[session.ID] = h
	m.mu.Unlock()

	snapshot := *session
	m.wg.Add(1)
	go m.supervise(h)

	return &snapshot, nil
}

func (m *Manager) supervise(h *runHandle) {
	logger := m.logger.With("session_id", h.session.ID)
	defer m.wg.Done()
	defer close(h.done)
	defer func() {
		m.mu.Lock()
		delete(m.running, h.session.ID)
		m.mu.Unlock()
	}()
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		logger.Error("session panicked", "panic", r, "stack", string(debug.Stack()))
		if err := h.session.Fail(fmt.Sprintf("panic: %v", r), m.now()); err != nil {
			logger.Error("mark panicked session failed", "error", err)
			return
		}
		if err := m.sessions.Update(context.WithoutCancel(m.ctx), h.session); err != nil {
			logger.Error("update panicked session", "error", err)
		}
	}()

	if err := m.coordinator.Run(m.ctx, h.session, h.cancel); err != nil {
		logger.Error("session run failed", "error", err)
	}
}

// Cancel asks a running session to stop at its next page boundary.
func (m *Manager) Cancel(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.running[id]
	m.mu.Unlock()
	if ok {
		h.stop()
		return nil
	}

	session, err := m.sessions.Get(ctx, id)
	if err != nil {
		return err
	}
	if session.Status.Terminal() {
		return fmt.Errorf("%w: session %s is %s", domain.ErrInvalidTransition, id, session.Status)
	}
	// stored as pending/running but not owned by this process
	if err := session.Transition(domain.StatusCancelled, m.now()); err != nil {
		return err
	}
	return m.sessions.Update(ctx, session)
}

func (m *Manager) Get(ctx context.Context, id string) (*domain.Session, error) {
	return m.sessions.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit int) ([]domain.Session, error) {
	return m.sessions.List(ctx, limit)
}

func (m *Manager) Logs(ctx context.Context, id string) ([]domain.ProcessingLogEntry, error) {
	if _, err := m.sessions.Get(ctx, id); err != nil {
		return nil, err
	}
	return m.logs.ListBySession(ctx, id)
}

// Wait blocks until the session finishes or ctx is done. It returns
// immediately for sessions not running in this process.
func (m *Manager) Wait(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.running[id]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Running reports whether a session for agency and data type is in flight.
func (m *Manager) Running(agency domain.Agency, dataType domain.DataType) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range m.running {
		if h.agency == agency && h.dataType == dataType {
			return true
		}
	}
	return false
}

// Shutdown cancels every running session and waits for them to record
// their final state.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, h := range m.running {
		h.stop()
	}
	m.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		m.stop()
		return nil
	case <-ctx.Done():
		m.stop()
		return ctx.Err()
	}
}
