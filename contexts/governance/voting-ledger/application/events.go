package application

import (
	"encoding/json"
	"time"

	"ballotbox/contexts/governance/voting-ledger/ports"
)

const SourceService = "voting-ledger"

// NewLedgerEnvelope builds the canonical envelope for ledger-scoped events.
// Every event is partitioned by ledger so consumers see one ledger in order.
func NewLedgerEnvelope(
	eventID string,
	eventType string,
	ledgerID string,
	occurredAt time.Time,
	data map[string]any,
) (ports.EventEnvelope, error) {
	if data == nil {
		data = map[string]any{}
	}
	data["ledger_id"] = ledgerID
	payload, err := json.Marshal(data)
	if err != nil {
		return ports.EventEnvelope{}, err
	}
	return ports.EventEnvelope{
		EventID:          eventID,
		EventType:        eventType,
		OccurredAt:       occurredAt.UTC(),
		SourceService:    SourceService,
		TraceID:          eventID,
		SchemaVersion:    1,
		PartitionKeyPath: "ledger_id",
		PartitionKey:     ledgerID,
		Data:             payload,
	}, nil
}
