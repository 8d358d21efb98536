package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"enforcement_scraper/internal/domain"
	"enforcement_scraper/internal/normalize"
)

// In-memory collaborators for exercising the coordinator end to end.

type recordKey struct {
	agency   domain.Agency
	dataType domain.DataType
	id       string
}

type memRecords struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[recordKey]*domain.PersistedRecord
	updates map[string]int
	failOn  map[string]bool
}

func newMemRecords() *memRecords {
	return &memRecords{rows: make(map[recordKey]*domain.PersistedRecord), updates: make(map[string]int), failOn: make(map[string]bool)}
}

func (s *memRecords) ExistingExternalIDs(_ context.Context, agency domain.Agency, dataType domain.DataType, ids []string) (map[string]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64)
	for _, id := range ids {
		if row, ok := s.rows[recordKey{agency, dataType, id}]; ok {
			out[id] = row.ID
		}
	}
	return out, nil
}

func (s *memRecords) Create(_ context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failOn[rec.ExternalID] {
		return nil, fmt.Errorf("disk full")
	}
	key := recordKey{rec.Agency, rec.DataType, rec.ExternalID}
	if _, ok := s.rows[key]; ok {
		return nil, domain.ErrDuplicateExternalID
	}
	s.nextID++
	row := &domain.PersistedRecord{ID: s.nextID, Agency: rec.Agency, DataType: rec.DataType, ExternalID: rec.ExternalID, OffenderID: rec.OffenderID}
	s.rows[key] = row
	return row, nil
}

func (s *memRecords) UpdateFromScrape(_ context.Context, rec *domain.ProcessedRecord) (*domain.PersistedRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[recordKey{rec.Agency, rec.DataType, rec.ExternalID}]
	if !ok {
		return nil, fmt.Errorf("record %s not found", rec.ExternalID)
	}
	s.updates[rec.ExternalID]++
	return row, nil
}

func (s *memRecords) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

type memOffenders struct {
	mu     sync.Mutex
	byName map[string]*domain.Offender
}

func newMemOffenders() *memOffenders {
	return &memOffenders{byName: make(map[string]*domain.Offender)}
}

func (s *memOffenders) FindOrCreate(_ context.Context, attrs domain.OffenderAttrs, seenAt time.Time) (*domain.Offender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := normalize.OffenderName(attrs.Name) + "|" + attrs.Postcode
	if o, ok := s.byName[key]; ok {
		return o, nil
	}
	o := &domain.Offender{ID: int64(len(s.byName) + 1), Name: attrs.Name, FirstSeenAt: seenAt, LastSeenAt: seenAt}
	s.byName[key] = o
	return o, nil
}

func (s *memOffenders) RecordSighting(_ context.Context, id int64, fine decimal.Decimal, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.byName {
		if o.ID == id {
			o.EnforcementCount++
			o.TotalFines = o.TotalFines.Add(fine)
			o.LastSeenAt = seenAt
			return nil
		}
	}
	return fmt.Errorf("offender %d not found", id)
}

type memSessions struct {
	mu   sync.Mutex
	rows map[string]domain.Session
}

func newMemSessions() *memSessions {
	return &memSessions{rows: make(map[string]domain.Session)}
}

func (s *memSessions) Create(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[session.ID] = *session
	return nil
}

func (s *memSessions) Update(_ context.Context, session *domain.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[session.ID] = *session
	return nil
}

func (s *memSessions) Get(_ context.Context, id string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return &row, nil
}

func (s *memSessions) List(_ context.Context, limit int) ([]domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Session
	for _, row := range s.rows {
		out = append(out, row)
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type memLogs struct {
	mu      sync.Mutex
	entries []domain.ProcessingLogEntry
}

func (s *memLogs) Append(_ context.Context, entry *domain.ProcessingLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry.ID = int64(len(s.entries) + 1)
	s.entries = append(s.entries, *entry)
	return nil
}

func (s *memLogs) ListBySession(_ context.Context, sessionID string) ([]domain.ProcessingLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ProcessingLogEntry
	for _, e := range s.entries {
		if e.SessionID == sessionID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memLogs) pages() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, len(s.entries))
	for i, e := range s.entries {
		out[i] = e.BatchOrPage
	}
	return out
}

// memTx restores the record table when fn fails.
type memTx struct {
	records *memRecords
}

func (t memTx) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	t.records.mu.Lock()
	saved := make(map[recordKey]*domain.PersistedRecord, len(t.records.rows))
	for k, v := range t.records.rows {
		saved[k] = v
	}
	nextID := t.records.nextID
	t.records.mu.Unlock()

	if err := fn(ctx); err != nil {
		t.records.mu.Lock()
		t.records.rows = saved
		t.records.nextID = nextID
		t.records.mu.Unlock()
		return err
	}
	return nil
}

type memPublisher struct {
	mu     sync.Mutex
	events []domain.ProgressEvent
}

func (p *memPublisher) Publish(_ context.Context, e domain.ProgressEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *memPublisher) Close() error { return nil }

// pagedSource serves a fixed set of listing pages. Page bodies are just the
// page number; ids listed in failIDs fail processing.
type pagedSource struct {
	agency  domain.Agency
	pages   map[int][]string
	failIDs map[string]bool
	panicOn int
}

func (s *pagedSource) Agency() domain.Agency { return s.agency }

func (s *pagedSource) ListingURL(_ domain.DataType, page int, _ domain.SessionConfig) (string, error) {
	return "page://" + strconv.Itoa(page), nil
}

func (s *pagedSource) ParseListing(dataType domain.DataType, body []byte) ([]domain.SummaryRecord, error) {
	page, err := strconv.Atoi(string(body))
	if err != nil {
		return nil, fmt.Errorf("bad body %q", body)
	}
	if page == s.panicOn {
		panic("parser exploded")
	}
	var out []domain.SummaryRecord
	for _, id := range s.pages[page] {
		out = append(out, domain.SummaryRecord{Agency: s.agency, DataType: dataType, ExternalID: id, OffenderName: "Offender " + id})
	}
	return out, nil
}

func (s *pagedSource) Process(_ context.Context, summary domain.SummaryRecord, _ domain.SessionConfig) (*domain.ProcessedRecord, error) {
	if s.failIDs[summary.ExternalID] {
		return nil, fmt.Errorf("malformed detail page")
	}
	return &domain.ProcessedRecord{
		Agency:     s.agency,
		DataType:   summary.DataType,
		ExternalID: summary.ExternalID,
		Offender:   domain.OffenderAttrs{Name: summary.OffenderName},
		Fine:       decimal.NewNullDecimal(decimal.NewFromInt(100)),
	}, nil
}

// pageFetcher echoes the page number from a page:// URL. Pages listed in
// failPages return an error; onFetch runs before each fetch returns.
type pageFetcher struct {
	mu        sync.Mutex
	failPages map[int]bool
	onFetch   func(page int)
	fetched   []int
}

func (f *pageFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	page, err := strconv.Atoi(strings.TrimPrefix(url, "page://"))
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.fetched = append(f.fetched, page)
	hook := f.onFetch
	f.mu.Unlock()
	if hook != nil {
		hook(page)
	}
	if f.failPages[page] {
		return nil, fmt.Errorf("HTTP 503 after 3 attempts")
	}
	return []byte(strconv.Itoa(page)), nil
}
