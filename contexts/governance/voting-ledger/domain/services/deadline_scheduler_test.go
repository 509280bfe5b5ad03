package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"

	"github.com/stretchr/testify/require"
)

type closerFunc func(ctx context.Context, ledgerID string, now time.Time) error

func (f closerFunc) CloseLedger(ctx context.Context, ledgerID string, now time.Time) error {
	return f(ctx, ledgerID, now)
}

var noopCloser = closerFunc(func(context.Context, string, time.Time) error { return nil })

var t0 = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func TestSchedulerPollsEarliestDeadlineFirst(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("late", t0.Add(3*time.Minute), t0)
	require.NoError(t, err)
	_, err = s.Register("early", t0.Add(time.Minute), t0)
	require.NoError(t, err)
	_, err = s.Register("middle", t0.Add(2*time.Minute), t0)
	require.NoError(t, err)

	wake, err := s.NextWake().Take()
	require.NoError(t, err)
	require.Equal(t, t0.Add(time.Minute), wake)

	require.False(t, s.IsDue(t0))
	require.True(t, s.PollDue(t0).IsNone())

	now := t0.Add(time.Hour)
	var order []string
	for s.IsDue(now) {
		entry, err := s.PollDue(now).Take()
		require.NoError(t, err)
		_, err = s.Execute(context.Background(), entry.LedgerID, now, noopCloser)
		require.NoError(t, err)
		order = append(order, entry.LedgerID)
	}
	require.Equal(t, []string{"early", "middle", "late"}, order)
	require.Equal(t, 0, s.Pending())
	require.True(t, s.NextWake().IsNone())
	require.Len(t, s.Entries(), 3)
}

func TestSchedulerBreaksTiesByRegistrationOrder(t *testing.T) {
	s := NewDeadlineScheduler()
	for _, id := range []string{"b", "a", "c"} {
		_, err := s.Register(id, t0, t0.Add(-time.Minute))
		require.NoError(t, err)
	}
	var order []string
	for s.IsDue(t0) {
		entry := s.PollDue(t0).Unwrap()
		_, err := s.Execute(context.Background(), entry.LedgerID, t0, noopCloser)
		require.NoError(t, err)
		order = append(order, entry.LedgerID)
	}
	require.Equal(t, []string{"b", "a", "c"}, order)
}

func TestSchedulerRegisterRejectsDuplicatesAndBadInput(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("l1", t0, t0)
	require.NoError(t, err)
	_, err = s.Register("l1", t0.Add(time.Hour), t0)
	require.ErrorIs(t, err, domainerrors.ErrAlreadyScheduled)
	_, err = s.Register(" ", t0, t0)
	require.ErrorIs(t, err, domainerrors.ErrInvalidLedgerInput)
	_, err = s.Register("l2", time.Time{}, t0)
	require.ErrorIs(t, err, domainerrors.ErrInvalidLedgerInput)
}

func TestSchedulerExecuteIsIdempotent(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("l1", t0, t0.Add(-time.Hour))
	require.NoError(t, err)

	var calls atomic.Int32
	closer := closerFunc(func(context.Context, string, time.Time) error {
		calls.Add(1)
		return nil
	})

	_, err = s.Execute(context.Background(), "l1", t0.Add(-time.Second), closer)
	require.ErrorIs(t, err, domainerrors.ErrNotDueYet)

	entry, err := s.Execute(context.Background(), "l1", t0, closer)
	require.NoError(t, err)
	require.True(t, entry.Done)
	require.NotNil(t, entry.ExecutedAt)

	_, err = s.Execute(context.Background(), "l1", t0.Add(time.Minute), closer)
	require.ErrorIs(t, err, domainerrors.ErrAlreadyExecuted)
	_, err = s.Execute(context.Background(), "missing", t0, closer)
	require.ErrorIs(t, err, domainerrors.ErrScheduleEntryNotFound)
	require.Equal(t, int32(1), calls.Load())
}

func TestSchedulerConcurrentExecuteClosesOnce(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("l1", t0, t0.Add(-time.Hour))
	require.NoError(t, err)

	var calls atomic.Int32
	closer := closerFunc(func(context.Context, string, time.Time) error {
		calls.Add(1)
		return nil
	})
	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Execute(context.Background(), "l1", t0, closer); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), succeeded.Load())
	require.Equal(t, int32(1), calls.Load())
}

func TestSchedulerRollsBackWhenCloserFails(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("l1", t0, t0.Add(-time.Hour))
	require.NoError(t, err)

	boom := errors.New("store unavailable")
	_, err = s.Execute(context.Background(), "l1", t0, closerFunc(func(context.Context, string, time.Time) error {
		return boom
	}))
	require.ErrorIs(t, err, boom)

	entry, ok := s.Entry("l1")
	require.True(t, ok)
	require.False(t, entry.Done)
	require.Nil(t, entry.ExecutedAt)
	require.Equal(t, 1, s.Pending())
	require.False(t, s.IsDue(t0))
	require.True(t, s.IsDue(t0.Add(time.Nanosecond)))

	// an explicit execution may still retry at the same instant
	_, err = s.Execute(context.Background(), "l1", t0, noopCloser)
	require.NoError(t, err)
	require.Zero(t, s.Pending())
	require.False(t, s.IsDue(t0.Add(time.Hour)))
}

func TestSchedulerFailedEntryDoesNotBlockLaterDeadlines(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("stuck", t0, t0.Add(-time.Hour))
	require.NoError(t, err)
	_, err = s.Register("healthy", t0.Add(time.Second), t0.Add(-time.Hour))
	require.NoError(t, err)

	now := t0.Add(time.Minute)
	failing := closerFunc(func(_ context.Context, ledgerID string, _ time.Time) error {
		if ledgerID == "stuck" {
			return errors.New("close failed")
		}
		return nil
	})

	var executed, failed []string
	for s.IsDue(now) {
		entry := s.PollDue(now).Unwrap()
		if _, err := s.Execute(context.Background(), entry.LedgerID, now, failing); err != nil {
			failed = append(failed, entry.LedgerID)
			continue
		}
		executed = append(executed, entry.LedgerID)
	}
	require.Equal(t, []string{"stuck"}, failed)
	require.Equal(t, []string{"healthy"}, executed)
	require.Equal(t, 1, s.Pending())

	later := now.Add(time.Second)
	require.True(t, s.IsDue(later))
	require.Equal(t, "stuck", s.PollDue(later).Unwrap().LedgerID)
	_, err = s.Execute(context.Background(), "stuck", later, noopCloser)
	require.NoError(t, err)
	require.True(t, s.NextWake().IsNone())
}

func TestSchedulerHydrateSettlesParkedEntry(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("l1", t0, t0.Add(-time.Hour))
	require.NoError(t, err)
	_, err = s.Execute(context.Background(), "l1", t0, closerFunc(func(context.Context, string, time.Time) error {
		return errors.New("close failed")
	}))
	require.Error(t, err)

	executedAt := t0.Add(time.Second)
	s.Hydrate([]entities.ScheduleEntry{{LedgerID: "l1", Deadline: t0, Sequence: 1, Done: true, ExecutedAt: &executedAt}})

	entry, ok := s.Entry("l1")
	require.True(t, ok)
	require.True(t, entry.Done)
	require.Zero(t, s.Pending())
	require.False(t, s.IsDue(t0.Add(time.Hour)))
}

func TestSchedulerHydrateMergesPersistedEntries(t *testing.T) {
	s := NewDeadlineScheduler()
	_, err := s.Register("local", t0.Add(time.Minute), t0)
	require.NoError(t, err)

	executedAt := t0
	s.Hydrate([]entities.ScheduleEntry{
		{LedgerID: "local", Deadline: t0.Add(time.Minute), Sequence: 1, Done: true, ExecutedAt: &executedAt},
		{LedgerID: "remote", Deadline: t0.Add(2 * time.Minute), Sequence: 7},
		{LedgerID: "finished", Deadline: t0, Sequence: 3, Done: true, ExecutedAt: &executedAt},
		{LedgerID: " "},
	})

	local, ok := s.Entry("local")
	require.True(t, ok)
	require.True(t, local.Done)
	require.Equal(t, 1, s.Pending())

	next, err := s.Register("next", t0.Add(time.Hour), t0)
	require.NoError(t, err)
	require.Equal(t, uint64(8), next.Sequence)

	_, err = s.Execute(context.Background(), "finished", t0.Add(time.Hour), noopCloser)
	require.ErrorIs(t, err, domainerrors.ErrAlreadyExecuted)

	wake, err := s.NextWake().Take()
	require.NoError(t, err)
	require.Equal(t, t0.Add(2*time.Minute), wake)
}
