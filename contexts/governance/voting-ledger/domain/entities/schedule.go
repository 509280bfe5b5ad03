package entities

import "time"

// ScheduleEntry pairs a ledger with the deadline copied at registration.
// Done only moves from false to true; entries are kept for audit.
type ScheduleEntry struct {
	LedgerID     string
	Deadline     time.Time
	Sequence     uint64
	Done         bool
	RegisteredAt time.Time
	ExecutedAt   *time.Time
}

type RightHolding struct {
	RightID       string
	LedgerID      string
	Holder        string
	GrantedAt     time.Time
	TransferredAt *time.Time
}

type RandomnessRequestStatus string

const (
	RandomnessRequestPending   RandomnessRequestStatus = "pending"
	RandomnessRequestFulfilled RandomnessRequestStatus = "fulfilled"
	RandomnessRequestStale     RandomnessRequestStatus = "stale"
)

type RandomnessRequest struct {
	RequestID   string
	LedgerID    string
	Attempt     int
	Status      RandomnessRequestStatus
	IssuedAt    time.Time
	FulfilledAt *time.Time
}

// Expired reports whether a pending request outlived timeout at now.
func (r RandomnessRequest) Expired(now time.Time, timeout time.Duration) bool {
	if r.Status != RandomnessRequestPending || timeout <= 0 {
		return false
	}
	return !now.UTC().Before(r.IssuedAt.UTC().Add(timeout))
}
