package entities

import (
	"fmt"
	"strings"
	"time"

	domainerrors "ballotbox/contexts/governance/voting-ledger/domain/errors"

	"github.com/moznion/go-optional"
)

const (
	MinOptions = 2
	MaxOptions = 256
)

type LedgerState string

const (
	LedgerStateOpen   LedgerState = "open"
	LedgerStateClosed LedgerState = "closed"
)

type SelectionMode string

const (
	SelectionModeDeterministic   SelectionMode = "deterministic"
	SelectionModeWeightedLottery SelectionMode = "weighted_lottery"
)

func (m SelectionMode) Valid() bool {
	switch m {
	case SelectionModeDeterministic, SelectionModeWeightedLottery:
		return true
	default:
		return false
	}
}

type SettlementStatus string

const (
	SettlementStatusNone              SettlementStatus = "none"
	SettlementStatusPendingRandomness SettlementStatus = "pending_randomness"
	SettlementStatusResolved          SettlementStatus = "resolved"
	SettlementStatusFailed            SettlementStatus = "failed"
	SettlementStatusStalled           SettlementStatus = "stalled"
)

// Ledger is a single vote's record. Tally has one slot per option plus the
// reserved slot 0; Choices holds only principals with an active vote.
type Ledger struct {
	LedgerID     string
	Name         string
	Description  string
	TotalOptions int
	State        LedgerState
	Mode         SelectionMode
	Deadline     time.Time

	Tally   []uint64
	Choices map[string]int

	PendingRandomRequest optional.Option[string]
	RandomnessAttempts   int
	Winner               optional.Option[int]
	RandomValue          string
	Settlement           SettlementStatus
	SettlementReason     string

	Version    int64
	CreatedAt  time.Time
	UpdatedAt  time.Time
	ClosedAt   *time.Time
	ResolvedAt *time.Time
}

func NewLedger(
	ledgerID string,
	name string,
	description string,
	totalOptions int,
	mode SelectionMode,
	deadline time.Time,
	now time.Time,
) (Ledger, error) {
	if strings.TrimSpace(ledgerID) == "" || strings.TrimSpace(name) == "" {
		return Ledger{}, domainerrors.ErrInvalidLedgerInput
	}
	if totalOptions < MinOptions || totalOptions > MaxOptions {
		return Ledger{}, domainerrors.ErrInvalidLedgerInput
	}
	if !mode.Valid() || deadline.IsZero() {
		return Ledger{}, domainerrors.ErrInvalidLedgerInput
	}
	return Ledger{
		LedgerID:     strings.TrimSpace(ledgerID),
		Name:         strings.TrimSpace(name),
		Description:  strings.TrimSpace(description),
		TotalOptions: totalOptions,
		State:        LedgerStateOpen,
		Mode:         mode,
		Deadline:     deadline.UTC(),
		Tally:        make([]uint64, totalOptions+1),
		Choices:      make(map[string]int),
		Settlement:   SettlementStatusNone,
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

func (l Ledger) IsOpen() bool {
	return l.State == LedgerStateOpen
}

func (l Ledger) ValidOption(option int) bool {
	return option >= 1 && option <= l.TotalOptions
}

// ChoiceOf returns the recorded option for principal, 0 meaning no active vote.
func (l Ledger) ChoiceOf(principal string) int {
	return l.Choices[strings.TrimSpace(principal)]
}

func (l Ledger) TotalVotes() uint64 {
	var total uint64
	for _, count := range l.Tally {
		total += count
	}
	return total
}

// Cast records a first vote for principal.
func (l *Ledger) Cast(principal string, option int) error {
	principal = strings.TrimSpace(principal)
	if !l.IsOpen() {
		return domainerrors.ErrVoteClosed
	}
	if principal == "" || !l.ValidOption(option) {
		return domainerrors.ErrInvalidOption
	}
	if l.Choices[principal] != 0 {
		return domainerrors.ErrAlreadyVoted
	}
	l.Choices[principal] = option
	l.Tally[option]++
	return nil
}

func (l *Ledger) ChangeVote(principal string, option int) error {
	principal = strings.TrimSpace(principal)
	if !l.IsOpen() {
		return domainerrors.ErrVoteClosed
	}
	if !l.ValidOption(option) {
		return domainerrors.ErrInvalidOption
	}
	current := l.Choices[principal]
	if current == 0 {
		return domainerrors.ErrNoExistingVote
	}
	if current == option {
		return domainerrors.ErrSameOption
	}
	l.Tally[current]--
	l.Tally[option]++
	l.Choices[principal] = option
	return nil
}

// ClearVote withdraws principal's vote. Whether principal holds the voting
// right is checked by the caller against the rights registry.
func (l *Ledger) ClearVote(principal string) error {
	principal = strings.TrimSpace(principal)
	if !l.IsOpen() {
		return domainerrors.ErrVoteClosed
	}
	current := l.Choices[principal]
	if current == 0 {
		return domainerrors.ErrNoExistingVote
	}
	l.Tally[current]--
	delete(l.Choices, principal)
	return nil
}

// TransferChoice moves from's recorded choice to to. The tally is untouched.
// It reports false without error on a closed ledger or when from has no vote.
func (l *Ledger) TransferChoice(from string, to string) (bool, error) {
	from = strings.TrimSpace(from)
	to = strings.TrimSpace(to)
	if !l.IsOpen() {
		return false, nil
	}
	current := l.Choices[from]
	if current == 0 {
		return false, nil
	}
	if to == "" || to == from {
		return false, domainerrors.ErrInvalidTransfer
	}
	if l.Choices[to] != 0 {
		return false, domainerrors.ErrAlreadyVoted
	}
	delete(l.Choices, from)
	l.Choices[to] = current
	return true, nil
}

func (l *Ledger) Close(now time.Time) error {
	if !l.IsOpen() {
		return domainerrors.ErrVoteClosed
	}
	if now.UTC().Before(l.Deadline) {
		return domainerrors.ErrNotDueYet
	}
	closedAt := now.UTC()
	l.State = LedgerStateClosed
	l.ClosedAt = &closedAt
	l.UpdatedAt = closedAt
	return nil
}

// AwaitRandomness stores the in-flight request id. Only one may be pending.
func (l *Ledger) AwaitRandomness(requestID string, now time.Time) error {
	if l.IsOpen() {
		return domainerrors.ErrNotClosed
	}
	if l.PendingRandomRequest.IsSome() {
		return domainerrors.ErrRequestAlreadyPending
	}
	l.PendingRandomRequest = optional.Some(requestID)
	l.RandomnessAttempts++
	l.Settlement = SettlementStatusPendingRandomness
	l.SettlementReason = ""
	l.UpdatedAt = now.UTC()
	return nil
}

// ConsumeRandomness clears the pending request when requestID matches it.
func (l *Ledger) ConsumeRandomness(requestID string) error {
	pending, err := l.PendingRandomRequest.Take()
	if err != nil || pending != strings.TrimSpace(requestID) {
		return domainerrors.ErrUnknownOrStaleRequest
	}
	l.PendingRandomRequest = optional.None[string]()
	return nil
}

func (l *Ledger) Resolve(winner int, now time.Time) {
	resolvedAt := now.UTC()
	l.Winner = optional.Some(winner)
	l.Settlement = SettlementStatusResolved
	l.SettlementReason = ""
	l.ResolvedAt = &resolvedAt
	l.UpdatedAt = resolvedAt
}

func (l *Ledger) FailSettlement(status SettlementStatus, reason string, now time.Time) {
	l.Settlement = status
	l.SettlementReason = strings.TrimSpace(reason)
	l.UpdatedAt = now.UTC()
}

// CheckInvariants verifies the tally against the recorded choices.
func (l Ledger) CheckInvariants() error {
	if len(l.Tally) != l.TotalOptions+1 {
		return fmt.Errorf("tally has %d slots, want %d", len(l.Tally), l.TotalOptions+1)
	}
	if l.Tally[0] != 0 {
		return fmt.Errorf("reserved tally slot holds %d", l.Tally[0])
	}
	counted := make([]uint64, l.TotalOptions+1)
	for principal, option := range l.Choices {
		if !l.ValidOption(option) {
			return fmt.Errorf("principal %s holds option %d", principal, option)
		}
		counted[option]++
	}
	for option := range counted {
		if counted[option] != l.Tally[option] {
			return fmt.Errorf("option %d tally %d, choices %d", option, l.Tally[option], counted[option])
		}
	}
	return nil
}

func (l Ledger) Clone() Ledger {
	clone := l
	clone.Tally = append([]uint64(nil), l.Tally...)
	clone.Choices = make(map[string]int, len(l.Choices))
	for principal, option := range l.Choices {
		clone.Choices[principal] = option
	}
	if l.PendingRandomRequest.IsSome() {
		clone.PendingRandomRequest = optional.Some(l.PendingRandomRequest.Unwrap())
	}
	if l.Winner.IsSome() {
		clone.Winner = optional.Some(l.Winner.Unwrap())
	}
	if l.ClosedAt != nil {
		closedAt := *l.ClosedAt
		clone.ClosedAt = &closedAt
	}
	if l.ResolvedAt != nil {
		resolvedAt := *l.ResolvedAt
		clone.ResolvedAt = &resolvedAt
	}
	return clone
}
