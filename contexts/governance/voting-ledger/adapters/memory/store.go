package memory

import (
	"bytes"
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/ports"

	"github.com/google/uuid"
)

// Store keeps every voting-ledger table in process memory. Reads and writes
// copy ledgers so callers never share tally or choice maps with the store.
type Store struct {
	mu sync.RWMutex

	ledgers    map[string]entities.Ledger
	schedule   map[string]entities.ScheduleEntry
	requests   map[string]entities.RandomnessRequest
	holdings   map[string]entities.RightHolding
	eventDedup map[string]dedupRecord
	outbox     map[string]outboxRecord
	outboxSeq  uint64

	clock func() time.Time
}

type dedupRecord struct {
	PayloadHash string
	ExpiresAt   time.Time
}

type outboxRecord struct {
	Message     ports.OutboxMessage
	Sequence    uint64
	Status      string
	PublishedAt *time.Time
}

const (
	outboxStatusPending   = "pending"
	outboxStatusPublished = "published"
)

func NewStore() *Store {
	return &Store{
		ledgers:    make(map[string]entities.Ledger),
		schedule:   make(map[string]entities.ScheduleEntry),
		requests:   make(map[string]entities.RandomnessRequest),
		holdings:   make(map[string]entities.RightHolding),
		eventDedup: make(map[string]dedupRecord),
		outbox:     make(map[string]outboxRecord),
	}
}

// SetClock overrides the wall clock, mostly for tests that walk past deadlines.
func (s *Store) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *Store) CreateLedger(_ context.Context, ledger entities.Ledger) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(ledger.LedgerID)
	if id == "" {
		return domainerrors.ErrInvalidLedgerInput
	}
	if _, exists := s.ledgers[id]; exists {
		return domainerrors.ErrConflict
	}
	stored := ledger.Clone()
	stored.Version = 1
	s.ledgers[id] = stored
	return nil
}

func (s *Store) SaveLedger(_ context.Context, ledger entities.Ledger) (entities.Ledger, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(ledger.LedgerID)
	current, ok := s.ledgers[id]
	if !ok {
		return entities.Ledger{}, domainerrors.ErrLedgerNotFound
	}
	if current.Version != ledger.Version {
		return entities.Ledger{}, domainerrors.ErrConflict
	}
	stored := ledger.Clone()
	stored.Version = current.Version + 1
	s.ledgers[id] = stored
	return stored.Clone(), nil
}

func (s *Store) GetLedger(_ context.Context, ledgerID string) (entities.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ledger, ok := s.ledgers[strings.TrimSpace(ledgerID)]
	if !ok {
		return entities.Ledger{}, domainerrors.ErrLedgerNotFound
	}
	return ledger.Clone(), nil
}

func (s *Store) ListLedgers(_ context.Context) ([]entities.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Ledger, 0, len(s.ledgers))
	for _, ledger := range s.ledgers {
		items = append(items, ledger.Clone())
	}
	sortLedgers(items)
	return items, nil
}

func (s *Store) ListLedgersBySettlement(_ context.Context, status entities.SettlementStatus) ([]entities.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.Ledger, 0)
	for _, ledger := range s.ledgers {
		if ledger.Settlement == status {
			items = append(items, ledger.Clone())
		}
	}
	sortLedgers(items)
	return items, nil
}

func (s *Store) SaveScheduleEntry(_ context.Context, entry entities.ScheduleEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(entry.LedgerID)
	if id == "" {
		return domainerrors.ErrInvalidLedgerInput
	}
	if _, exists := s.schedule[id]; exists {
		return domainerrors.ErrAlreadyScheduled
	}
	s.schedule[id] = entry
	return nil
}

func (s *Store) ListScheduleEntries(_ context.Context) ([]entities.ScheduleEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.ScheduleEntry, 0, len(s.schedule))
	for _, entry := range s.schedule {
		items = append(items, entry)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Sequence < items[j].Sequence
	})
	return items, nil
}

func (s *Store) MarkScheduleEntryDone(_ context.Context, ledgerID string, executedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(ledgerID)
	entry, ok := s.schedule[id]
	if !ok {
		return domainerrors.ErrScheduleEntryNotFound
	}
	if entry.Done {
		return nil
	}
	ts := executedAt.UTC()
	entry.Done = true
	entry.ExecutedAt = &ts
	s.schedule[id] = entry
	return nil
}

func (s *Store) SaveRandomnessRequest(_ context.Context, request entities.RandomnessRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(request.RequestID)
	if id == "" {
		return domainerrors.ErrUnknownOrStaleRequest
	}
	s.requests[id] = request
	return nil
}

func (s *Store) GetRandomnessRequest(_ context.Context, requestID string) (entities.RandomnessRequest, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	request, ok := s.requests[strings.TrimSpace(requestID)]
	return request, ok, nil
}

func (s *Store) ListPendingRandomnessRequests(_ context.Context) ([]entities.RandomnessRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.RandomnessRequest, 0)
	for _, request := range s.requests {
		if request.Status == entities.RandomnessRequestPending {
			items = append(items, request)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].IssuedAt.Before(items[j].IssuedAt)
	})
	return items, nil
}

func (s *Store) GetHoldingByHolder(_ context.Context, ledgerID string, holder string) (entities.RightHolding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, holding := range s.holdings {
		if holding.LedgerID == strings.TrimSpace(ledgerID) && holding.Holder == strings.TrimSpace(holder) {
			return holding, true, nil
		}
	}
	return entities.RightHolding{}, false, nil
}

func (s *Store) GetHolding(_ context.Context, rightID string) (entities.RightHolding, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	holding, ok := s.holdings[strings.TrimSpace(rightID)]
	return holding, ok, nil
}

func (s *Store) SaveHolding(_ context.Context, holding entities.RightHolding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := strings.TrimSpace(holding.RightID)
	if id == "" {
		return domainerrors.ErrInvalidTransfer
	}
	for otherID, other := range s.holdings {
		if otherID != id && other.LedgerID == holding.LedgerID && other.Holder == holding.Holder {
			return domainerrors.ErrAlreadyHoldsRight
		}
	}
	s.holdings[id] = holding
	return nil
}

func (s *Store) ListHoldings(_ context.Context, ledgerID string) ([]entities.RightHolding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items := make([]entities.RightHolding, 0)
	for _, holding := range s.holdings {
		if holding.LedgerID == strings.TrimSpace(ledgerID) {
			items = append(items, holding)
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].GrantedAt.Equal(items[j].GrantedAt) {
			return items[i].RightID < items[j].RightID
		}
		return items[i].GrantedAt.Before(items[j].GrantedAt)
	})
	return items, nil
}

func (s *Store) ReserveEvent(_ context.Context, eventID string, payloadHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := strings.TrimSpace(eventID)
	if key == "" {
		return false, domainerrors.ErrConflict
	}
	if existing, ok := s.eventDedup[key]; ok && existing.ExpiresAt.After(s.nowLocked()) {
		if existing.PayloadHash != payloadHash {
			return false, domainerrors.ErrConflict
		}
		return true, nil
	}
	s.eventDedup[key] = dedupRecord{
		PayloadHash: payloadHash,
		ExpiresAt:   expiresAt.UTC(),
	}
	return false, nil
}

func (s *Store) AppendOutbox(_ context.Context, envelope ports.EventEnvelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	outboxID := strings.TrimSpace(envelope.EventID)
	if outboxID == "" {
		return domainerrors.ErrConflict
	}
	if existing, ok := s.outbox[outboxID]; ok {
		if !bytes.Equal(existing.Message.Payload, payload) {
			return domainerrors.ErrConflict
		}
		return nil
	}
	s.outboxSeq++
	s.outbox[outboxID] = outboxRecord{
		Message: ports.OutboxMessage{
			OutboxID:     outboxID,
			EventType:    envelope.EventType,
			PartitionKey: envelope.PartitionKey,
			Payload:      payload,
			CreatedAt:    envelope.OccurredAt.UTC(),
		},
		Sequence: s.outboxSeq,
		Status:   outboxStatusPending,
	}
	return nil
}

func (s *Store) ListPendingOutbox(_ context.Context, limit int) ([]ports.OutboxMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows := make([]outboxRecord, 0)
	for _, row := range s.outbox {
		if row.Status == outboxStatusPending {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Sequence < rows[j].Sequence
	})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	items := make([]ports.OutboxMessage, 0, len(rows))
	for _, row := range rows {
		items = append(items, row.Message)
	}
	return items, nil
}

func (s *Store) MarkOutboxPublished(_ context.Context, outboxID string, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.outbox[strings.TrimSpace(outboxID)]
	if !ok {
		return domainerrors.ErrConflict
	}
	ts := publishedAt.UTC()
	row.Status = outboxStatusPublished
	row.PublishedAt = &ts
	s.outbox[strings.TrimSpace(outboxID)] = row
	return nil
}

// OutboxEventTypes lists every appended event type in append order.
func (s *Store) OutboxEventTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]outboxRecord, 0, len(s.outbox))
	for _, row := range s.outbox {
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Sequence < rows[j].Sequence
	})
	types := make([]string, 0, len(rows))
	for _, row := range rows {
		types = append(types, row.Message.EventType)
	}
	return types
}

func (s *Store) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.nowLocked()
}

func (s *Store) nowLocked() time.Time {
	if s.clock != nil {
		return s.clock().UTC()
	}
	return time.Now().UTC()
}

func (s *Store) NewID(_ context.Context) (string, error) {
	return uuid.NewString(), nil
}

func sortLedgers(items []entities.Ledger) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].LedgerID < items[j].LedgerID
		}
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
}

var (
	_ ports.LedgerRepository            = (*Store)(nil)
	_ ports.ScheduleRepository          = (*Store)(nil)
	_ ports.RandomnessRequestRepository = (*Store)(nil)
	_ ports.RightsStore                 = (*Store)(nil)
	_ ports.OutboxWriter                = (*Store)(nil)
	_ ports.OutboxRepository            = (*Store)(nil)
	_ ports.EventDedupStore             = (*Store)(nil)
	_ ports.Clock                       = (*Store)(nil)
	_ ports.IDGenerator                 = (*Store)(nil)
)
