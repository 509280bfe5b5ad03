package v1

// Event types published by the voting ledger. Topic names equal event types.
const (
	EventLedgerCreated       = "ledger.created"
	EventVoteCast            = "vote.cast"
	EventVoteChanged         = "vote.changed"
	EventVoteCleared         = "vote.cleared"
	EventRightTransferred    = "right.transferred"
	EventLedgerSettled       = "ledger.settled"
	EventRandomnessRequested = "randomness.requested"
	EventRandomnessFulfilled = "randomness.fulfilled"
	EventRandomnessRetried   = "randomness.retried"
	EventRandomnessStalled   = "randomness.stalled"
)

// RandomnessFulfilled is the payload of randomness.fulfilled. Value is a
// non-negative decimal integer of arbitrary width.
type RandomnessFulfilled struct {
	RequestID string `json:"request_id"`
	LedgerID  string `json:"ledger_id"`
	Value     string `json:"value"`
}
