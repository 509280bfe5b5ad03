package votingledger

import (
	"log/slog"
	"time"

	httpadapter "ballotbox/contexts/governance/voting-ledger/adapters/http"
	"ballotbox/contexts/governance/voting-ledger/adapters/memory"
	"ballotbox/contexts/governance/voting-ledger/adapters/randomness"
	"ballotbox/contexts/governance/voting-ledger/application/commands"
	"ballotbox/contexts/governance/voting-ledger/application/queries"
	"ballotbox/contexts/governance/voting-ledger/application/rights"
	"ballotbox/contexts/governance/voting-ledger/application/workers"
	"ballotbox/contexts/governance/voting-ledger/domain/services"
	"ballotbox/contexts/governance/voting-ledger/ports"
)

type Module struct {
	Handler   httpadapter.Handler
	Scheduler *services.DeadlineScheduler
	Workers   Workers
	// Oracle is set when no external randomness source was supplied.
	Oracle *randomness.LocalOracle
	Store  *memory.Store
}

type Workers struct {
	Sweeper             workers.DeadlineSweeper
	Watchdog            workers.RandomnessWatchdog
	FulfillmentConsumer workers.RandomnessFulfillmentConsumer
	OutboxRelay         workers.OutboxRelay
}

type Dependencies struct {
	Ledgers     ports.LedgerRepository
	Schedule    ports.ScheduleRepository
	Requests    ports.RandomnessRequestRepository
	RightsStore ports.RightsStore
	Outbox      ports.OutboxWriter
	OutboxRepo  ports.OutboxRepository
	EventDedup  ports.EventDedupStore
	Bus         ports.EventBus
	Randomness  ports.RandomnessSource
	Metrics     ports.SettlementMetrics
	Clock       ports.Clock
	IDGenerator ports.IDGenerator

	RandomnessTimeout          time.Duration
	MaxRandomnessAttempts      int
	OracleDelay                time.Duration
	OutboxBatchSize            int
	EventDedupTTL              time.Duration
	DisableFulfillmentConsumer bool
	Logger                     *slog.Logger
}

func NewModule(deps Dependencies) Module {
	scheduler := services.NewDeadlineScheduler()

	var oracle *randomness.LocalOracle
	source := deps.Randomness
	if source == nil {
		oracle = randomness.NewLocalOracle(deps.Requests, deps.Bus, deps.Clock, deps.OracleDelay, deps.Logger)
		source = oracle
	}

	ledgers := commands.LedgerUseCase{
		Ledgers:   deps.Ledgers,
		Schedule:  deps.Schedule,
		Scheduler: scheduler,
		Outbox:    deps.Outbox,
		Clock:     deps.Clock,
		IDGen:     deps.IDGenerator,
		Logger:    deps.Logger,
	}
	registry := rights.Registry{
		Store:  deps.RightsStore,
		Hook:   ledgers,
		Outbox: deps.Outbox,
		Clock:  deps.Clock,
		IDGen:  deps.IDGenerator,
		Logger: deps.Logger,
	}
	ledgers.Rights = registry

	settlement := commands.SettlementUseCase{
		Ledgers:               deps.Ledgers,
		Schedule:              deps.Schedule,
		Requests:              deps.Requests,
		Scheduler:             scheduler,
		Randomness:            source,
		Outbox:                deps.Outbox,
		Metrics:               deps.Metrics,
		Clock:                 deps.Clock,
		IDGen:                 deps.IDGenerator,
		RandomnessTimeout:     deps.RandomnessTimeout,
		MaxRandomnessAttempts: deps.MaxRandomnessAttempts,
		Logger:                deps.Logger,
	}
	results := queries.ResultsUseCase{
		Ledgers:   deps.Ledgers,
		Schedule:  deps.Schedule,
		Scheduler: scheduler,
	}

	return Module{
		Handler: httpadapter.Handler{
			Ledgers:    ledgers,
			Settlement: settlement,
			Rights:     registry,
			Results:    results,
			Logger:     deps.Logger,
		},
		Scheduler: scheduler,
		Oracle:    oracle,
		Workers: Workers{
			Sweeper: workers.DeadlineSweeper{
				Settlement: settlement,
				Logger:     deps.Logger,
			},
			Watchdog: workers.RandomnessWatchdog{
				Settlement: settlement,
				Logger:     deps.Logger,
			},
			FulfillmentConsumer: workers.RandomnessFulfillmentConsumer{
				Subscriber: deps.Bus,
				Dedup:      deps.EventDedup,
				Settlement: settlement,
				Clock:      deps.Clock,
				DedupTTL:   deps.EventDedupTTL,
				Disabled:   deps.DisableFulfillmentConsumer,
				Logger:     deps.Logger,
			},
			OutboxRelay: workers.OutboxRelay{
				Outbox:    deps.OutboxRepo,
				Publisher: deps.Bus,
				Clock:     deps.Clock,
				BatchSize: deps.OutboxBatchSize,
				Logger:    deps.Logger,
			},
		},
	}
}

// NewInMemoryModule wires every port to one memory store. bus carries
// outbox events and local oracle fulfilments.
func NewInMemoryModule(bus ports.EventBus, logger *slog.Logger) Module {
	store := memory.NewStore()
	module := NewModule(Dependencies{
		Ledgers:               store,
		Schedule:              store,
		Requests:              store,
		RightsStore:           store,
		Outbox:                store,
		OutboxRepo:            store,
		EventDedup:            store,
		Bus:                   bus,
		Clock:                 store,
		IDGenerator:           store,
		RandomnessTimeout:     10 * time.Minute,
		MaxRandomnessAttempts: 3,
		EventDedupTTL:         7 * 24 * time.Hour,
		Logger:                logger,
	})
	module.Store = store
	return module
}
