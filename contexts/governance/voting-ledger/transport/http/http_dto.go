package http

import "time"

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type CreateLedgerRequest struct {
	Name         string    `json:"name" validate:"required,max=200"`
	Description  string    `json:"description,omitempty" validate:"max=2000"`
	TotalOptions int       `json:"total_options" validate:"min=2,max=256"`
	Mode         string    `json:"mode" validate:"required,oneof=deterministic weighted_lottery"`
	Deadline     time.Time `json:"deadline" validate:"required"`
}

type LedgerResponse struct {
	LedgerID           string     `json:"ledger_id"`
	Name               string     `json:"name"`
	Description        string     `json:"description,omitempty"`
	TotalOptions       int        `json:"total_options"`
	State              string     `json:"state"`
	Mode               string     `json:"mode"`
	Deadline           time.Time  `json:"deadline"`
	Tally              []uint64   `json:"tally"`
	TotalVotes         uint64     `json:"total_votes"`
	Settlement         string     `json:"settlement"`
	SettlementReason   string     `json:"settlement_reason,omitempty"`
	PendingRequestID   string     `json:"pending_request_id,omitempty"`
	RandomnessAttempts int        `json:"randomness_attempts"`
	Winner             *int       `json:"winner,omitempty"`
	Version            int64      `json:"version"`
	CreatedAt          time.Time  `json:"created_at"`
	ClosedAt           *time.Time `json:"closed_at,omitempty"`
	ResolvedAt         *time.Time `json:"resolved_at,omitempty"`
}

type VoteRequest struct {
	Option int `json:"option" validate:"min=1"`
}

type VoteResponse struct {
	LedgerID  string   `json:"ledger_id"`
	Principal string   `json:"principal"`
	Option    int      `json:"option"`
	Tally     []uint64 `json:"tally"`
}

type TransferRightRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required,nefield=From"`
}

type RightHoldingResponse struct {
	RightID       string     `json:"right_id"`
	LedgerID      string     `json:"ledger_id"`
	Holder        string     `json:"holder"`
	GrantedAt     time.Time  `json:"granted_at"`
	TransferredAt *time.Time `json:"transferred_at,omitempty"`
}

type RightsResponse struct {
	Items []RightHoldingResponse `json:"items"`
}

type ResultsResponse struct {
	LedgerID         string     `json:"ledger_id"`
	Mode             string     `json:"mode"`
	Tally            []uint64   `json:"tally"`
	TotalVotes       uint64     `json:"total_votes"`
	Settlement       string     `json:"settlement"`
	SettlementReason string     `json:"settlement_reason,omitempty"`
	Winner           *int       `json:"winner,omitempty"`
	RandomValue      string     `json:"random_value,omitempty"`
	ClosedAt         *time.Time `json:"closed_at,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
}

// FulfillRandomnessRequest carries an oracle callback. Value is a
// non-negative decimal integer of any width.
type FulfillRandomnessRequest struct {
	RequestID string `json:"request_id" validate:"required"`
	Value     string `json:"value" validate:"required,numeric"`
}

type ScheduleEntryResponse struct {
	LedgerID     string     `json:"ledger_id"`
	Deadline     time.Time  `json:"deadline"`
	Sequence     uint64     `json:"sequence"`
	Done         bool       `json:"done"`
	RegisteredAt time.Time  `json:"registered_at"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
}

type ScheduleResponse struct {
	NextWake *time.Time              `json:"next_wake,omitempty"`
	Items    []ScheduleEntryResponse `json:"items"`
}

type LedgerListResponse struct {
	Items []LedgerResponse `json:"items"`
}
