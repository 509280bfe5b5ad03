package v1

import (
	"encoding/json"
	"time"
)

// Envelope wraps every ledger, rights and randomness event on the bus and in
// the outbox. PartitionKey is the ledger id so one ledger's events stay ordered.
// Data holds the event-specific JSON object; SchemaVersion bumps on any
// incompatible change to it.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}
