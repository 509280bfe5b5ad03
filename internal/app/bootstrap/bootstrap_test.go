package bootstrap

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"ballotbox/contexts/governance/voting-ledger/application/commands"
	"ballotbox/contexts/governance/voting-ledger/domain/entities"
	"ballotbox/internal/platform/config"

	"github.com/stretchr/testify/require"
)

func testConfig(name string) config.Config {
	cfg := config.Default()
	cfg.DatabaseDSN = "sqlite:file:" + name + "?mode=memory&cache=shared"
	cfg.MetricsPort = "127.0.0.1:0"
	cfg.HTTPPort = "127.0.0.1:0"
	cfg.SweepInterval = time.Second
	cfg.OracleDelay = 0
	return cfg
}

func TestNewRuntimeWiresModuleOnSqlite(t *testing.T) {
	ctx := context.Background()
	runtime, err := NewRuntime(ctx, testConfig("bootstrap_runtime"), slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = runtime.Close() })

	ledger, err := runtime.Module.Handler.Ledgers.CreateLedger(ctx, commands.CreateLedgerCommand{
		Name:         "runtime",
		TotalOptions: 3,
		Mode:         string(entities.SelectionModeDeterministic),
		Deadline:     time.Now().UTC().Add(time.Hour),
	})
	require.NoError(t, err)

	loaded, err := runtime.Module.Handler.Results.GetLedger(ctx, ledger.LedgerID)
	require.NoError(t, err)
	require.Equal(t, ledger.LedgerID, loaded.LedgerID)
	require.NotNil(t, runtime.Module.Oracle)
}

func TestNewRuntimeRequiresDSN(t *testing.T) {
	cfg := config.Default()
	cfg.DatabaseDSN = " "
	_, err := NewRuntime(context.Background(), cfg, nil)
	require.Error(t, err)
}

func TestWorkerSettlesDueLedger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := testConfig("bootstrap_worker")
	app, err := BuildWorker(ctx, cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	module := app.runtime.Module
	ledger, err := module.Handler.Ledgers.CreateLedger(ctx, commands.CreateLedgerCommand{
		Name:         "worker",
		TotalOptions: 3,
		Mode:         string(entities.SelectionModeWeightedLottery),
		Deadline:     time.Now().UTC().Add(200 * time.Millisecond),
	})
	require.NoError(t, err)
	_, err = module.Handler.Ledgers.CastVote(ctx, commands.CastVoteCommand{
		LedgerID:  ledger.LedgerID,
		Principal: "p1",
		Option:    2,
	})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	// sweep closes and requests randomness, the oracle publishes and the
	// consumer resolves on a later tick.
	require.Eventually(t, func() bool {
		loaded, err := module.Handler.Results.GetLedger(ctx, ledger.LedgerID)
		return err == nil && loaded.Settlement == entities.SettlementStatusResolved
	}, 10*time.Second, 50*time.Millisecond)

	loaded, err := module.Handler.Results.GetLedger(ctx, ledger.LedgerID)
	require.NoError(t, err)
	winner, err := loaded.Winner.Take()
	require.NoError(t, err)
	require.Equal(t, 2, winner)

	cancel()
	require.NoError(t, <-done)
}

func TestNormalizeAddr(t *testing.T) {
	require.Equal(t, ":8080", normalizeAddr("", ":8080"))
	require.Equal(t, ":9000", normalizeAddr("9000", ":8080"))
	require.Equal(t, "127.0.0.1:0", normalizeAddr("127.0.0.1:0", ":8080"))
}
