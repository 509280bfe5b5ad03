package postgresadapter

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"
	"ballotbox/contexts/governance/voting-ledger/ports"

	"github.com/glebarez/sqlite"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var base = time.Date(2026, 7, 1, 15, 0, 0, 0, time.UTC)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Discard,
		SkipDefaultTransaction: true,
		TranslateError:         true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	repo := NewRepository(db, nil)
	require.NoError(t, repo.AutoMigrate(context.Background()))
	return repo
}

func newTestLedger(t *testing.T, id string) entities.Ledger {
	t.Helper()
	ledger, err := entities.NewLedger(id, "treasurer", "", 3, entities.SelectionModeWeightedLottery, base.Add(time.Hour), base)
	require.NoError(t, err)
	return ledger
}

func TestRepositoryLedgerRoundTripAndVersioning(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	ledger := newTestLedger(t, "ledger-1")
	require.NoError(t, repo.CreateLedger(ctx, ledger))
	require.ErrorIs(t, repo.CreateLedger(ctx, ledger), domainerrors.ErrConflict)

	loaded, err := repo.GetLedger(ctx, "ledger-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), loaded.Version)
	require.Equal(t, []uint64{0, 0, 0, 0}, loaded.Tally)

	require.NoError(t, loaded.Cast("alice", 2))
	saved, err := repo.SaveLedger(ctx, loaded)
	require.NoError(t, err)
	require.Equal(t, int64(2), saved.Version)

	// a writer holding the old version loses
	_, err = repo.SaveLedger(ctx, loaded)
	require.ErrorIs(t, err, domainerrors.ErrConflict)

	require.NoError(t, saved.Close(base.Add(2*time.Hour)))
	require.NoError(t, saved.AwaitRandomness("req-1", base.Add(2*time.Hour)))
	saved, err = repo.SaveLedger(ctx, saved)
	require.NoError(t, err)

	reloaded, err := repo.GetLedger(ctx, "ledger-1")
	require.NoError(t, err)
	require.Equal(t, entities.LedgerStateClosed, reloaded.State)
	require.Equal(t, 2, reloaded.ChoiceOf("alice"))
	require.Equal(t, []uint64{0, 0, 1, 0}, reloaded.Tally)
	require.Equal(t, optional.Some("req-1"), reloaded.PendingRandomRequest)
	require.True(t, reloaded.Winner.IsNone())
	require.NotNil(t, reloaded.ClosedAt)
	require.NoError(t, reloaded.CheckInvariants())

	pending, err := repo.ListLedgersBySettlement(ctx, entities.SettlementStatusPendingRandomness)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	_, err = repo.GetLedger(ctx, "missing")
	require.ErrorIs(t, err, domainerrors.ErrLedgerNotFound)
	_, err = repo.SaveLedger(ctx, newTestLedger(t, "missing"))
	require.ErrorIs(t, err, domainerrors.ErrLedgerNotFound)
}

func TestRepositoryScheduleEntries(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	require.NoError(t, repo.SaveScheduleEntry(ctx, entities.ScheduleEntry{LedgerID: "b", Deadline: base.Add(2 * time.Hour), Sequence: 2}))
	require.NoError(t, repo.SaveScheduleEntry(ctx, entities.ScheduleEntry{LedgerID: "a", Deadline: base.Add(time.Hour), Sequence: 1}))

	require.ErrorIs(t, repo.SaveScheduleEntry(ctx, entities.ScheduleEntry{LedgerID: "a", Deadline: base}), domainerrors.ErrAlreadyScheduled)

	require.NoError(t, repo.MarkScheduleEntryDone(ctx, "a", base.Add(time.Hour)))
	require.NoError(t, repo.MarkScheduleEntryDone(ctx, "a", base.Add(3*time.Hour)))
	require.ErrorIs(t, repo.MarkScheduleEntryDone(ctx, "zzz", base), domainerrors.ErrScheduleEntryNotFound)

	entries, err := repo.ListScheduleEntries(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	byID := map[string]entities.ScheduleEntry{}
	for _, entry := range entries {
		byID[entry.LedgerID] = entry
	}
	require.True(t, byID["a"].Done)
	require.True(t, byID["a"].ExecutedAt.Equal(base.Add(time.Hour)))
	require.False(t, byID["b"].Done)
	require.Equal(t, uint64(2), byID["b"].Sequence)
}

func TestRepositoryRandomnessRequests(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	request := entities.RandomnessRequest{
		RequestID: "req-1",
		LedgerID:  "ledger-1",
		Attempt:   1,
		Status:    entities.RandomnessRequestPending,
		IssuedAt:  base,
	}
	require.NoError(t, repo.SaveRandomnessRequest(ctx, request))

	pending, err := repo.ListPendingRandomnessRequests(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	fulfilledAt := base.Add(time.Minute)
	request.Status = entities.RandomnessRequestFulfilled
	request.FulfilledAt = &fulfilledAt
	require.NoError(t, repo.SaveRandomnessRequest(ctx, request))

	loaded, found, err := repo.GetRandomnessRequest(ctx, "req-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, entities.RandomnessRequestFulfilled, loaded.Status)
	require.True(t, loaded.FulfilledAt.Equal(fulfilledAt))

	pending, err = repo.ListPendingRandomnessRequests(ctx)
	require.NoError(t, err)
	require.Empty(t, pending)

	_, found, err = repo.GetRandomnessRequest(ctx, "req-unknown")
	require.NoError(t, err)
	require.False(t, found)
}

func TestRepositoryHoldingsStayUniquePerHolder(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	require.NoError(t, repo.SaveHolding(ctx, entities.RightHolding{RightID: "r1", LedgerID: "l1", Holder: "alice", GrantedAt: base}))
	require.NoError(t, repo.SaveHolding(ctx, entities.RightHolding{RightID: "r2", LedgerID: "l1", Holder: "bob", GrantedAt: base.Add(time.Second)}))
	require.NoError(t, repo.SaveHolding(ctx, entities.RightHolding{RightID: "r3", LedgerID: "l2", Holder: "alice", GrantedAt: base}))

	err := repo.SaveHolding(ctx, entities.RightHolding{RightID: "r4", LedgerID: "l1", Holder: "alice", GrantedAt: base})
	require.ErrorIs(t, err, domainerrors.ErrAlreadyHoldsRight)

	transferredAt := base.Add(time.Minute)
	err = repo.SaveHolding(ctx, entities.RightHolding{RightID: "r1", LedgerID: "l1", Holder: "bob", GrantedAt: base, TransferredAt: &transferredAt})
	require.ErrorIs(t, err, domainerrors.ErrAlreadyHoldsRight)
	require.NoError(t, repo.SaveHolding(ctx, entities.RightHolding{RightID: "r1", LedgerID: "l1", Holder: "carol", GrantedAt: base, TransferredAt: &transferredAt}))

	holding, found, err := repo.GetHoldingByHolder(ctx, "l1", "carol")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "r1", holding.RightID)
	require.NotNil(t, holding.TransferredAt)

	_, found, err = repo.GetHoldingByHolder(ctx, "l1", "alice")
	require.NoError(t, err)
	require.False(t, found)

	holdings, err := repo.ListHoldings(ctx, "l1")
	require.NoError(t, err)
	require.Len(t, holdings, 2)
	require.Equal(t, "r1", holdings[0].RightID)
}

func TestRepositoryOutboxAndDedup(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepository(t)
	first := ports.EventEnvelope{EventID: "e1", EventType: "vote.cast", PartitionKey: "l1", OccurredAt: base, Data: []byte(`{"option":1}`)}
	second := ports.EventEnvelope{EventID: "e2", EventType: "vote.changed", PartitionKey: "l1", OccurredAt: base.Add(time.Second), Data: []byte(`{"option":2}`)}
	require.NoError(t, repo.AppendOutbox(ctx, first))
	require.NoError(t, repo.AppendOutbox(ctx, second))
	require.NoError(t, repo.AppendOutbox(ctx, first))

	tampered := first
	tampered.Data = []byte(`{"option":3}`)
	require.ErrorIs(t, repo.AppendOutbox(ctx, tampered), domainerrors.ErrConflict)

	pending, err := repo.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	require.Equal(t, "e1", pending[0].OutboxID)

	require.NoError(t, repo.MarkOutboxPublished(ctx, "e1", base.Add(time.Minute)))
	require.ErrorIs(t, repo.MarkOutboxPublished(ctx, "nope", base), domainerrors.ErrConflict)
	pending, err = repo.ListPendingOutbox(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "vote.changed", pending[0].EventType)

	seen, err := repo.ReserveEvent(ctx, "evt-1", "hash-a", base.Add(time.Hour))
	require.NoError(t, err)
	require.False(t, seen)
	seen, err = repo.ReserveEvent(ctx, "evt-1", "hash-a", base.Add(time.Hour))
	require.NoError(t, err)
	require.True(t, seen)
	_, err = repo.ReserveEvent(ctx, "evt-1", "hash-b", base.Add(time.Hour))
	require.ErrorIs(t, err, domainerrors.ErrConflict)
}

func TestRuntimeHelpers(t *testing.T) {
	id, err := UUIDGenerator{}.NewID(context.Background())
	require.NoError(t, err)
	require.Len(t, id, 36)
	require.Equal(t, time.UTC, SystemClock{}.Now().Location())
}
