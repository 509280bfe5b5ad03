package services

import (
	"container/heap"
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"

	"github.com/moznion/go-optional"
)

// LedgerCloser closes and settles a ledger once its schedule entry executes.
type LedgerCloser interface {
	CloseLedger(ctx context.Context, ledgerID string, now time.Time) error
}

// DeadlineScheduler settles ledgers earliest-deadline-first, each at most once.
// Not-done entries sit in a min-heap keyed by (deadline, registration order);
// done entries stay in the index for audit. An entry whose close failed is
// parked until a later instant so it cannot hold back the entries behind it.
type DeadlineScheduler struct {
	mu       sync.Mutex
	entries  map[string]*scheduleItem
	queue    scheduleQueue
	parked   map[string]*scheduleItem
	nextSeq  uint64
	nextWake optional.Option[time.Time]
}

type scheduleItem struct {
	entry    entities.ScheduleEntry
	index    int
	failedAt time.Time
}

func NewDeadlineScheduler() *DeadlineScheduler {
	return &DeadlineScheduler{
		entries: make(map[string]*scheduleItem),
		parked:  make(map[string]*scheduleItem),
		nextSeq: 1,
	}
}

func (s *DeadlineScheduler) Register(ledgerID string, deadline time.Time, now time.Time) (entities.ScheduleEntry, error) {
	ledgerID = strings.TrimSpace(ledgerID)
	if ledgerID == "" || deadline.IsZero() {
		return entities.ScheduleEntry{}, domainerrors.ErrInvalidLedgerInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[ledgerID]; exists {
		return entities.ScheduleEntry{}, domainerrors.ErrAlreadyScheduled
	}
	entry := entities.ScheduleEntry{
		LedgerID:     ledgerID,
		Deadline:     deadline.UTC(),
		Sequence:     s.nextSeq,
		RegisteredAt: now.UTC(),
	}
	s.nextSeq++
	s.insertLocked(entry)
	if wake, err := s.nextWake.Take(); err != nil || entry.Deadline.Before(wake) {
		s.nextWake = optional.Some(entry.Deadline)
	}
	return entry, nil
}

// IsDue reports whether some not-done entry has a deadline at or before now.
func (s *DeadlineScheduler) IsDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requeueLocked(now)
	wake, err := s.nextWake.Take()
	if err != nil || now.UTC().Before(wake) {
		return false
	}
	return s.queue.Len() > 0 && !now.UTC().Before(s.queue[0].entry.Deadline)
}

// PollDue returns the earliest-deadline not-done entry that is due at now.
func (s *DeadlineScheduler) PollDue(now time.Time) optional.Option[entities.ScheduleEntry] {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.requeueLocked(now)
	if s.queue.Len() == 0 || now.UTC().Before(s.queue[0].entry.Deadline) {
		return optional.None[entities.ScheduleEntry]()
	}
	return optional.Some(s.queue[0].entry)
}

// Execute marks the ledger's entry done and closes the ledger through closer.
// A failing closer rolls the entry back and parks it: IsDue and PollDue skip
// it at now and return it again at any later instant.
func (s *DeadlineScheduler) Execute(
	ctx context.Context,
	ledgerID string,
	now time.Time,
	closer LedgerCloser,
) (entities.ScheduleEntry, error) {
	ledgerID = strings.TrimSpace(ledgerID)

	s.mu.Lock()
	s.requeueLocked(now)
	item, ok := s.entries[ledgerID]
	if !ok {
		s.mu.Unlock()
		return entities.ScheduleEntry{}, domainerrors.ErrScheduleEntryNotFound
	}
	if item.entry.Done {
		s.mu.Unlock()
		return entities.ScheduleEntry{}, domainerrors.ErrAlreadyExecuted
	}
	if now.UTC().Before(item.entry.Deadline) {
		s.mu.Unlock()
		return entities.ScheduleEntry{}, domainerrors.ErrNotDueYet
	}
	executedAt := now.UTC()
	item.entry.Done = true
	item.entry.ExecutedAt = &executedAt
	s.detachLocked(item)
	s.recomputeWakeLocked()
	s.mu.Unlock()

	if err := closer.CloseLedger(ctx, ledgerID, now); err != nil {
		s.mu.Lock()
		item.entry.Done = false
		item.entry.ExecutedAt = nil
		item.failedAt = executedAt
		s.parked[ledgerID] = item
		s.recomputeWakeLocked()
		s.mu.Unlock()
		return entities.ScheduleEntry{}, err
	}
	return item.entry, nil
}

// Hydrate merges persisted entries. Unknown entries are indexed with their
// stored sequence and done flag; a persisted done flag wins over a local one.
func (s *DeadlineScheduler) Hydrate(entries []entities.ScheduleEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		entry.LedgerID = strings.TrimSpace(entry.LedgerID)
		if entry.LedgerID == "" {
			continue
		}
		if item, exists := s.entries[entry.LedgerID]; exists {
			if entry.Done && !item.entry.Done {
				item.entry.Done = true
				item.entry.ExecutedAt = entry.ExecutedAt
				s.detachLocked(item)
			}
			continue
		}
		if entry.Sequence == 0 {
			entry.Sequence = s.nextSeq
		}
		if entry.Sequence >= s.nextSeq {
			s.nextSeq = entry.Sequence + 1
		}
		entry.Deadline = entry.Deadline.UTC()
		s.insertLocked(entry)
	}
	s.recomputeWakeLocked()
}

func (s *DeadlineScheduler) NextWake() optional.Option[time.Time] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextWake
}

// Pending counts entries that have not executed yet.
func (s *DeadlineScheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len() + len(s.parked)
}

func (s *DeadlineScheduler) Entry(ledgerID string) (entities.ScheduleEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.entries[strings.TrimSpace(ledgerID)]
	if !ok {
		return entities.ScheduleEntry{}, false
	}
	return item.entry, true
}

// Entries lists every entry, done or not, in firing order.
func (s *DeadlineScheduler) Entries() []entities.ScheduleEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]entities.ScheduleEntry, 0, len(s.entries))
	for _, item := range s.entries {
		items = append(items, item.entry)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Deadline.Equal(items[j].Deadline) {
			return items[i].Sequence < items[j].Sequence
		}
		return items[i].Deadline.Before(items[j].Deadline)
	})
	return items
}

func (s *DeadlineScheduler) insertLocked(entry entities.ScheduleEntry) {
	item := &scheduleItem{entry: entry, index: -1}
	s.entries[entry.LedgerID] = item
	if !entry.Done {
		heap.Push(&s.queue, item)
	}
}

// detachLocked takes a not-done item out of the queue or the parked set.
func (s *DeadlineScheduler) detachLocked(item *scheduleItem) {
	if item.index >= 0 {
		heap.Remove(&s.queue, item.index)
		return
	}
	delete(s.parked, item.entry.LedgerID)
}

func (s *DeadlineScheduler) requeueLocked(now time.Time) {
	if len(s.parked) == 0 {
		return
	}
	for ledgerID, item := range s.parked {
		if now.UTC().After(item.failedAt) {
			delete(s.parked, ledgerID)
			heap.Push(&s.queue, item)
		}
	}
	s.recomputeWakeLocked()
}

func (s *DeadlineScheduler) recomputeWakeLocked() {
	if s.queue.Len() == 0 {
		s.nextWake = optional.None[time.Time]()
		return
	}
	s.nextWake = optional.Some(s.queue[0].entry.Deadline)
}

type scheduleQueue []*scheduleItem

func (q scheduleQueue) Len() int { return len(q) }

func (q scheduleQueue) Less(i, j int) bool {
	if q[i].entry.Deadline.Equal(q[j].entry.Deadline) {
		return q[i].entry.Sequence < q[j].entry.Sequence
	}
	return q[i].entry.Deadline.Before(q[j].entry.Deadline)
}

func (q scheduleQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}

func (q *scheduleQueue) Push(x any) {
	item := x.(*scheduleItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *scheduleQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*q = old[:n-1]
	return item
}
